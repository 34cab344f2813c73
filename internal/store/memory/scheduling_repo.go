package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mgonzalezm-dev/vet-clinic/internal/domain"
	"github.com/mgonzalezm-dev/vet-clinic/internal/store"
)

// SchedulingRepo is an in-memory store.SchedulingRepository. It mirrors the
// postgres repo's semantics, including per-vet serialization (a mutex per vet
// calendar instead of an advisory lock) and version CAS on updates, so the
// coordinator's concurrency properties hold against it in tests and in dev
// mode.
type SchedulingRepo struct {
	mu           sync.RWMutex
	vetLocks     map[string]*sync.Mutex
	appointments map[uuid.UUID]domain.Appointment
	rules        map[string][]domain.AvailabilityRule
	exceptions   map[string][]domain.AvailabilityException
}

func NewSchedulingRepo() *SchedulingRepo {
	return &SchedulingRepo{
		vetLocks:     make(map[string]*sync.Mutex),
		appointments: make(map[uuid.UUID]domain.Appointment),
		rules:        make(map[string][]domain.AvailabilityRule),
		exceptions:   make(map[string][]domain.AvailabilityException),
	}
}

func (r *SchedulingRepo) vetLock(vetID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.vetLocks[vetID]
	if !ok {
		l = &sync.Mutex{}
		r.vetLocks[vetID] = l
	}
	return l
}

func (r *SchedulingRepo) InVetCalendar(ctx context.Context, vetID string, fn func(ctx context.Context, tx store.CalendarTx) error) error {
	l := r.vetLock(vetID)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, &calendarTx{repo: r})
}

func (r *SchedulingRepo) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getAppointmentLocked(id)
}

func (r *SchedulingRepo) getAppointmentLocked(id uuid.UUID) (domain.Appointment, error) {
	a, ok := r.appointments[id]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return a, nil
}

func (r *SchedulingRepo) ListAppointments(ctx context.Context, vetID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked(vetID, windowStart, windowEnd, false), nil
}

func (r *SchedulingRepo) ListScheduled(ctx context.Context, vetID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked(vetID, windowStart, windowEnd, true), nil
}

func (r *SchedulingRepo) listLocked(vetID string, windowStart, windowEnd time.Time, scheduledOnly bool) []domain.Appointment {
	window := domain.Interval{Start: windowStart.UTC(), End: windowEnd.UTC()}
	out := make([]domain.Appointment, 0)
	for _, a := range r.appointments {
		if a.VetID != vetID {
			continue
		}
		if scheduledOnly && a.Status != domain.StatusScheduled {
			continue
		}
		if !a.Interval().Overlaps(window) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

func (r *SchedulingRepo) ListRules(ctx context.Context, vetID string) ([]domain.AvailabilityRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.AvailabilityRule(nil), r.rules[vetID]...), nil
}

func (r *SchedulingRepo) ListExceptions(ctx context.Context, vetID string, from, to time.Time) ([]domain.AvailabilityException, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listExceptionsLocked(vetID, from, to), nil
}

func (r *SchedulingRepo) listExceptionsLocked(vetID string, from, to time.Time) []domain.AvailabilityException {
	fromDay := domain.DateOf(from)
	toDay := domain.DateOf(to)
	out := make([]domain.AvailabilityException, 0)
	for _, e := range r.exceptions[vetID] {
		day := domain.DateOf(e.Date)
		if day.Before(fromDay) || day.After(toDay) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (r *SchedulingRepo) CreateRule(ctx context.Context, rule domain.AvailabilityRule) (domain.AvailabilityRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rule.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.AvailabilityRule{}, err
		}
		rule.ID = id
	}
	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	r.rules[rule.VetID] = append(r.rules[rule.VetID], rule)
	return rule, nil
}

func (r *SchedulingRepo) CreateException(ctx context.Context, ex domain.AvailabilityException) (domain.AvailabilityException, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ex.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.AvailabilityException{}, err
		}
		ex.ID = id
	}
	now := time.Now().UTC()
	ex.CreatedAt = now
	ex.UpdatedAt = now
	r.exceptions[ex.VetID] = append(r.exceptions[ex.VetID], ex)
	return ex, nil
}

type calendarTx struct {
	repo *SchedulingRepo
}

func (t *calendarTx) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	return t.repo.getAppointmentLocked(id)
}

func (t *calendarTx) InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()

	for _, existing := range t.repo.appointments {
		if existing.VetID != appt.VetID || existing.Status != domain.StatusScheduled {
			continue
		}
		if existing.Interval().Overlaps(appt.Interval()) {
			return domain.Appointment{}, store.ErrOverlap
		}
	}

	if appt.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Appointment{}, err
		}
		appt.ID = id
	}
	now := time.Now().UTC()
	appt.Status = domain.StatusScheduled
	appt.Version = 1
	appt.CreatedAt = now
	appt.UpdatedAt = now
	t.repo.appointments[appt.ID] = appt
	return appt, nil
}

func (t *calendarTx) UpdateAppointment(ctx context.Context, appt domain.Appointment, expectedVersion int64) (domain.Appointment, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()

	stored, ok := t.repo.appointments[appt.ID]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return domain.Appointment{}, store.ErrVersionMismatch
	}

	if appt.Status == domain.StatusScheduled {
		for _, existing := range t.repo.appointments {
			if existing.ID == appt.ID || existing.VetID != appt.VetID || existing.Status != domain.StatusScheduled {
				continue
			}
			if existing.Interval().Overlaps(appt.Interval()) {
				return domain.Appointment{}, store.ErrOverlap
			}
		}
	}

	stored.StartTime = appt.StartTime
	stored.EndTime = appt.EndTime
	stored.Status = appt.Status
	stored.Version = expectedVersion + 1
	stored.UpdatedAt = time.Now().UTC()
	t.repo.appointments[stored.ID] = stored
	return stored, nil
}

func (t *calendarTx) ListScheduled(ctx context.Context, vetID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	return t.repo.listLocked(vetID, windowStart, windowEnd, true), nil
}

func (t *calendarTx) ListRules(ctx context.Context, vetID string) ([]domain.AvailabilityRule, error) {
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	return append([]domain.AvailabilityRule(nil), t.repo.rules[vetID]...), nil
}

func (t *calendarTx) ListExceptions(ctx context.Context, vetID string, from, to time.Time) ([]domain.AvailabilityException, error) {
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	return t.repo.listExceptionsLocked(vetID, from, to), nil
}
