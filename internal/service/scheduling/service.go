package scheduling

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mgonzalezm-dev/vet-clinic/internal/domain"
	"github.com/mgonzalezm-dev/vet-clinic/internal/events"
	"github.com/mgonzalezm-dev/vet-clinic/internal/store"
)

// Options configures the booking coordinator.
type Options struct {
	Policy domain.BookingPolicy

	// MaxAttempts bounds the check-then-commit retry loop per operation.
	MaxAttempts int
	// CommitTimeout bounds a single commit attempt; exceeding it surfaces
	// ErrBusy instead of hanging on the calendar lock.
	CommitTimeout time.Duration
	// RescheduleLeadTimeCheck re-applies the lead-time floor against now when
	// rescheduling. Off by default: a reschedule only re-checks availability
	// and overlap.
	RescheduleLeadTimeCheck bool

	// Now overrides the clock, for tests.
	Now func() time.Time
}

const (
	defaultMaxAttempts   = 3
	defaultCommitTimeout = 3 * time.Second
)

// Service is the scheduling facade: it composes availability resolution,
// conflict detection, the booking coordinator, and the appointment state
// machine into the externally consumed operation set. It assumes the caller
// has already authorized the vet/pet identifiers and verified they exist.
type Service struct {
	repo store.SchedulingRepository
	sink events.Sink
	log  *slog.Logger

	policy         domain.BookingPolicy
	maxAttempts    int
	commitTimeout  time.Duration
	rescheduleLead bool
	now            func() time.Time

	// Read-path cache of resolved availability windows per (vet, date),
	// invalidated when the vet's rules or exceptions change. Booking commits
	// never read it; they resolve inside the calendar boundary.
	cacheMu    sync.RWMutex
	dayWindows map[dayKey][]domain.Interval
}

type dayKey struct {
	vetID string
	day   string
}

func NewService(repo store.SchedulingRepository, sink events.Sink, log *slog.Logger, opts Options) *Service {
	if log == nil {
		log = slog.Default()
	}
	policy := opts.Policy
	if policy.Granularity == 0 && policy.MinDuration == 0 {
		policy = domain.DefaultBookingPolicy()
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}
	commitTimeout := opts.CommitTimeout
	if commitTimeout <= 0 {
		commitTimeout = defaultCommitTimeout
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &Service{
		repo:           repo,
		sink:           sink,
		log:            log.With(slog.String("component", "scheduling")),
		policy:         policy,
		maxAttempts:    maxAttempts,
		commitTimeout:  commitTimeout,
		rescheduleLead: opts.RescheduleLeadTimeCheck,
		now:            now,
		dayWindows:     make(map[dayKey][]domain.Interval),
	}
}

type CreateInput struct {
	VetID     string
	PetID     string
	StartTime time.Time
	EndTime   time.Time
}

// CreateAppointment books a new appointment. Conflict detection and the
// insert run inside the vet's calendar boundary; when a competitor commits
// first, the attempt is retried against fresh state up to the configured
// budget, each retry re-running detection.
func (s *Service) CreateAppointment(ctx context.Context, in CreateInput) (domain.Appointment, error) {
	if in.VetID == "" {
		return domain.Appointment{}, validationError("vet_id is required")
	}
	if in.PetID == "" {
		return domain.Appointment{}, validationError("pet_id is required")
	}

	proposed := domain.NewInterval(in.StartTime, in.EndTime)
	if err := s.policy.ValidateInterval(proposed); err != nil {
		return domain.Appointment{}, err
	}

	var created domain.Appointment
	commit := func(ctx context.Context, tx store.CalendarTx) error {
		if err := s.checkInterval(ctx, tx, in.VetID, proposed, uuid.Nil, true); err != nil {
			return err
		}
		a, err := tx.InsertAppointment(ctx, domain.Appointment{
			VetID:     in.VetID,
			PetID:     in.PetID,
			StartTime: proposed.Start,
			EndTime:   proposed.End,
		})
		if err != nil {
			return err
		}
		created = a
		return nil
	}

	if err := s.commitWithRetry(ctx, in.VetID, commit); err != nil {
		return domain.Appointment{}, err
	}

	s.publish(ctx, events.OpCreate, created)
	return created, nil
}

type RescheduleInput struct {
	AppointmentID   uuid.UUID
	StartTime       time.Time
	EndTime         time.Time
	ExpectedVersion int64
}

// RescheduleAppointment moves an appointment to a new interval. The
// appointment's own booking is excluded from the overlap set, and the commit
// only lands if the stored version still equals ExpectedVersion.
func (s *Service) RescheduleAppointment(ctx context.Context, in RescheduleInput) (domain.Appointment, error) {
	if in.AppointmentID == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}

	proposed := domain.NewInterval(in.StartTime, in.EndTime)
	if err := s.policy.ValidateInterval(proposed); err != nil {
		return domain.Appointment{}, err
	}

	appt, err := s.repo.GetAppointment(ctx, in.AppointmentID)
	if err != nil {
		return domain.Appointment{}, err
	}
	if appt.Status != domain.StatusScheduled {
		return domain.Appointment{}, domain.ErrInvalidTransition
	}

	var updated domain.Appointment
	commit := func(ctx context.Context, tx store.CalendarTx) error {
		if err := s.checkInterval(ctx, tx, appt.VetID, proposed, appt.ID, s.rescheduleLead); err != nil {
			return err
		}
		a, err := tx.UpdateAppointment(ctx, domain.Appointment{
			ID:        appt.ID,
			VetID:     appt.VetID,
			StartTime: proposed.Start,
			EndTime:   proposed.End,
			Status:    domain.StatusScheduled,
		}, in.ExpectedVersion)
		if err != nil {
			return err
		}
		updated = a
		return nil
	}

	if err := s.commitWithRetry(ctx, appt.VetID, commit); err != nil {
		return domain.Appointment{}, err
	}

	s.publish(ctx, events.OpReschedule, updated)
	return updated, nil
}

// CancelAppointment cancels a scheduled appointment. Cancelling an already
// cancelled appointment is idempotent and returns the current state; any
// other terminal state fails with ErrInvalidTransition.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID, expectedVersion int64) (domain.Appointment, error) {
	return s.transition(ctx, id, expectedVersion, domain.StatusCancelled, events.OpCancel)
}

// CompleteAppointment marks a scheduled appointment as completed after the
// visit occurred.
func (s *Service) CompleteAppointment(ctx context.Context, id uuid.UUID, expectedVersion int64) (domain.Appointment, error) {
	return s.transition(ctx, id, expectedVersion, domain.StatusCompleted, events.OpComplete)
}

// MarkNoShow records that the visit time passed without attendance. The
// appointment's start must be in the past.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID, expectedVersion int64) (domain.Appointment, error) {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	if appt.Status == domain.StatusScheduled && !appt.StartTime.Before(s.now()) {
		return domain.Appointment{}, domain.ErrInvalidWindow
	}
	return s.transition(ctx, id, expectedVersion, domain.StatusNoShow, events.OpNoShow)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, expectedVersion int64, to domain.AppointmentStatus, operation string) (domain.Appointment, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}

	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}

	// Cancel twice lands here: same terminal state both times, no error.
	// Other repeated transitions are rejected by the transition table.
	if to == domain.StatusCancelled && appt.Status == domain.StatusCancelled {
		return appt, nil
	}
	if err := appt.Transition(to); err != nil {
		return domain.Appointment{}, err
	}

	var updated domain.Appointment
	commit := func(ctx context.Context, tx store.CalendarTx) error {
		a, err := tx.UpdateAppointment(ctx, appt, expectedVersion)
		if err != nil {
			return err
		}
		updated = a
		return nil
	}

	if err := s.commitWithRetry(ctx, appt.VetID, commit); err != nil {
		return domain.Appointment{}, err
	}

	s.publish(ctx, operation, updated)
	return updated, nil
}

// GetAppointment returns a snapshot of one appointment.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	return s.repo.GetAppointment(ctx, id)
}

// ListAppointments returns all appointments for a vet intersecting the window,
// any status, ordered by start time.
func (s *Service) ListAppointments(ctx context.Context, vetID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	if vetID == "" {
		return nil, validationError("vet_id is required")
	}
	start, end := windowStart.UTC(), windowEnd.UTC()
	if !end.After(start) {
		return nil, validationError("window_end must be after window_start")
	}
	return s.repo.ListAppointments(ctx, vetID, start, end)
}

// ListAvailableSlots returns the vet's free windows in [from, to): resolved
// availability with all currently scheduled appointments subtracted, clamped
// to the requested range. A read-only snapshot; it never waits on bookers.
func (s *Service) ListAvailableSlots(ctx context.Context, vetID string, from, to time.Time) ([]domain.Interval, error) {
	if vetID == "" {
		return nil, validationError("vet_id is required")
	}
	rng := domain.NewInterval(from, to)
	if !rng.IsValid() {
		return nil, validationError("to must be after from")
	}

	windows, err := s.resolveRange(ctx, vetID, rng)
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return []domain.Interval{}, nil
	}

	booked, err := s.repo.ListScheduled(ctx, vetID, rng.Start, rng.End)
	if err != nil {
		return nil, err
	}
	blocked := make([]domain.Interval, 0, len(booked))
	for _, a := range booked {
		blocked = append(blocked, a.Interval())
	}

	slots := make([]domain.Interval, 0, len(windows))
	for _, w := range windows {
		if w.Start.Before(rng.Start) {
			w.Start = rng.Start
		}
		if w.End.After(rng.End) {
			w.End = rng.End
		}
		if !w.IsValid() {
			continue
		}
		slots = append(slots, domain.SubtractIntervals(w, blocked)...)
	}
	return slots, nil
}

type RuleInput struct {
	VetID          string
	Weekday        int
	StartMinute    int
	EndMinute      int
	EffectiveFrom  time.Time
	EffectiveUntil *time.Time
}

// CreateAvailabilityRule adds a recurring weekly bookable window for a vet.
// The new rule may not overlap an existing rule on the same weekday while
// their effective ranges intersect.
func (s *Service) CreateAvailabilityRule(ctx context.Context, in RuleInput) (domain.AvailabilityRule, error) {
	if in.VetID == "" {
		return domain.AvailabilityRule{}, validationError("vet_id is required")
	}
	if in.Weekday < 1 || in.Weekday > 7 {
		return domain.AvailabilityRule{}, validationError("weekday must be 1 (Monday) through 7 (Sunday)")
	}
	if err := s.validateMinuteWindow(in.StartMinute, in.EndMinute); err != nil {
		return domain.AvailabilityRule{}, err
	}
	if in.EffectiveUntil != nil && !in.EffectiveUntil.After(in.EffectiveFrom) {
		return domain.AvailabilityRule{}, validationError("effective_until must be after effective_from")
	}

	existing, err := s.repo.ListRules(ctx, in.VetID)
	if err != nil {
		return domain.AvailabilityRule{}, err
	}
	for _, r := range existing {
		if r.Weekday != in.Weekday {
			continue
		}
		if !effectiveRangesIntersect(r, in) {
			continue
		}
		if in.StartMinute < r.EndMinute && r.StartMinute < in.EndMinute {
			return domain.AvailabilityRule{}, validationError("rule overlaps an existing rule for that weekday")
		}
	}

	rule, err := s.repo.CreateRule(ctx, domain.AvailabilityRule{
		VetID:          in.VetID,
		Weekday:        in.Weekday,
		StartMinute:    in.StartMinute,
		EndMinute:      in.EndMinute,
		EffectiveFrom:  domain.DateOf(in.EffectiveFrom),
		EffectiveUntil: normalizeUntil(in.EffectiveUntil),
	})
	if err != nil {
		return domain.AvailabilityRule{}, err
	}
	s.invalidateVet(in.VetID)
	return rule, nil
}

type ExceptionInput struct {
	VetID       string
	Date        time.Time
	Kind        domain.ExceptionKind
	StartMinute int
	EndMinute   int
	Reason      string
}

// CreateAvailabilityException adds a date-scoped availability override.
func (s *Service) CreateAvailabilityException(ctx context.Context, in ExceptionInput) (domain.AvailabilityException, error) {
	if in.VetID == "" {
		return domain.AvailabilityException{}, validationError("vet_id is required")
	}
	if in.Kind != domain.ExceptionKindOpen && in.Kind != domain.ExceptionKindBlocked {
		return domain.AvailabilityException{}, validationError("kind must be open or blocked")
	}
	if err := s.validateMinuteWindow(in.StartMinute, in.EndMinute); err != nil {
		return domain.AvailabilityException{}, err
	}

	ex, err := s.repo.CreateException(ctx, domain.AvailabilityException{
		VetID:       in.VetID,
		Date:        domain.DateOf(in.Date),
		Kind:        in.Kind,
		StartMinute: in.StartMinute,
		EndMinute:   in.EndMinute,
		Reason:      in.Reason,
	})
	if err != nil {
		return domain.AvailabilityException{}, err
	}
	s.invalidateVet(in.VetID)
	return ex, nil
}

// commitWithRetry drives the bounded check-then-commit loop. Typed outcome
// errors surface immediately; a storage overlap means a competitor committed
// first and the next attempt re-runs detection against fresh state; a commit
// timeout aborts with ErrBusy; other storage errors are retried up to the
// budget before surfacing as ErrBusy.
func (s *Service) commitWithRetry(ctx context.Context, vetID string, commit func(ctx context.Context, tx store.CalendarTx) error) error {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		commitCtx, cancel := context.WithTimeout(ctx, s.commitTimeout)
		err := s.repo.InVetCalendar(commitCtx, vetID, commit)
		cancel()

		switch {
		case err == nil:
			return nil
		case isOutcomeError(err):
			return err
		case errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrVersionMismatch):
			if errors.Is(err, store.ErrVersionMismatch) {
				return ErrConcurrentModification
			}
			return err
		case errors.Is(err, store.ErrOverlap):
			// Competitor committed first; re-run detection on fresh state.
			lastErr = err
		case errors.Is(err, context.Canceled) && ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn("commit attempt timed out", slog.String("vet_id", vetID), slog.Int("attempt", attempt))
			return ErrBusy
		default:
			s.log.Warn("commit attempt failed",
				slog.Any("err", err),
				slog.String("vet_id", vetID),
				slog.Int("attempt", attempt),
			)
			lastErr = err
		}
	}

	if errors.Is(lastErr, store.ErrOverlap) {
		return domain.ErrSlotUnavailable
	}
	return ErrBusy
}

// checkInterval re-runs conflict detection inside the calendar boundary.
// excludeID removes the appointment's own booking from the overlap set on
// reschedule; enforceLead applies the lead-time floor.
func (s *Service) checkInterval(ctx context.Context, tx store.CalendarTx, vetID string, proposed domain.Interval, excludeID uuid.UUID, enforceLead bool) error {
	windows, err := resolveWindows(ctx, tx, vetID, proposed)
	if err != nil {
		return err
	}

	scheduled, err := tx.ListScheduled(ctx, vetID, proposed.Start, proposed.End)
	if err != nil {
		return err
	}
	booked := make([]domain.Interval, 0, len(scheduled))
	for _, a := range scheduled {
		if a.ID == excludeID {
			continue
		}
		booked = append(booked, a.Interval())
	}

	policy := s.policy
	if !enforceLead {
		// Disable the floor by anchoring it far in the past.
		return domain.CheckProposedInterval(proposed, proposed.Start.Add(-policy.LeadTime-time.Hour), policy, windows, booked)
	}
	return domain.CheckProposedInterval(proposed, s.now(), policy, windows, booked)
}

// resolveWindows resolves availability for every UTC date the interval
// touches and merges the result, so an interval crossing midnight is judged
// against one coalesced window set.
func resolveWindows(ctx context.Context, tx store.CalendarTx, vetID string, span domain.Interval) ([]domain.Interval, error) {
	rules, err := tx.ListRules(ctx, vetID)
	if err != nil {
		return nil, err
	}
	exceptions, err := tx.ListExceptions(ctx, vetID, span.Start, span.End)
	if err != nil {
		return nil, err
	}

	var all []domain.Interval
	for _, day := range coveredDates(span) {
		all = append(all, domain.ResolveDailyAvailability(day, rules, exceptions)...)
	}
	return domain.MergeIntervals(all), nil
}

func (s *Service) resolveRange(ctx context.Context, vetID string, rng domain.Interval) ([]domain.Interval, error) {
	var (
		all    []domain.Interval
		missed []time.Time
	)

	s.cacheMu.RLock()
	for _, day := range coveredDates(rng) {
		if cached, ok := s.dayWindows[keyFor(vetID, day)]; ok {
			all = append(all, cached...)
		} else {
			missed = append(missed, day)
		}
	}
	s.cacheMu.RUnlock()

	if len(missed) > 0 {
		rules, err := s.repo.ListRules(ctx, vetID)
		if err != nil {
			return nil, err
		}
		exceptions, err := s.repo.ListExceptions(ctx, vetID, rng.Start, rng.End)
		if err != nil {
			return nil, err
		}

		s.cacheMu.Lock()
		for _, day := range missed {
			windows := domain.ResolveDailyAvailability(day, rules, exceptions)
			s.dayWindows[keyFor(vetID, day)] = windows
			all = append(all, windows...)
		}
		s.cacheMu.Unlock()
	}

	return domain.MergeIntervals(all), nil
}

func (s *Service) invalidateVet(vetID string) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	for k := range s.dayWindows {
		if k.vetID == vetID {
			delete(s.dayWindows, k)
		}
	}
}

func keyFor(vetID string, day time.Time) dayKey {
	return dayKey{vetID: vetID, day: day.Format("2006-01-02")}
}

// coveredDates lists the UTC dates the half-open interval touches. The end
// instant is exclusive, so an interval ending exactly at midnight does not
// cover the following date.
func coveredDates(span domain.Interval) []time.Time {
	first := domain.DateOf(span.Start)
	last := domain.DateOf(span.End.Add(-time.Nanosecond))

	var out []time.Time
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		out = append(out, day)
	}
	return out
}

func (s *Service) validateMinuteWindow(startMinute, endMinute int) error {
	if startMinute < 0 || endMinute > domain.MinutesPerDay || startMinute >= endMinute {
		return validationError("window must satisfy 0 <= start < end <= 1440")
	}
	if g := int(s.policy.Granularity / time.Minute); g > 0 {
		if startMinute%g != 0 || endMinute%g != 0 {
			return validationError("window must align to the booking granularity")
		}
	}
	return nil
}

func (s *Service) publish(ctx context.Context, operation string, appt domain.Appointment) {
	if s.sink == nil {
		return
	}
	rec := events.Record{
		Operation:     operation,
		AppointmentID: appt.ID,
		VetID:         appt.VetID,
		PetID:         appt.PetID,
		StartTime:     appt.StartTime,
		EndTime:       appt.EndTime,
		OccurredAt:    s.now(),
	}
	if err := s.sink.Publish(context.WithoutCancel(ctx), rec); err != nil {
		s.log.Warn("event publish failed",
			slog.Any("err", err),
			slog.String("operation", operation),
			slog.String("appointment_id", appt.ID.String()),
		)
	}
}

func effectiveRangesIntersect(r domain.AvailabilityRule, in RuleInput) bool {
	inFrom := domain.DateOf(in.EffectiveFrom)
	rFrom := domain.DateOf(r.EffectiveFrom)

	if r.EffectiveUntil != nil && domain.DateOf(*r.EffectiveUntil).Before(inFrom) {
		return false
	}
	if in.EffectiveUntil != nil && domain.DateOf(*in.EffectiveUntil).Before(rFrom) {
		return false
	}
	return true
}

func normalizeUntil(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := domain.DateOf(*t)
	return &d
}
