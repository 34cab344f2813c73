package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mgonzalezm-dev/vet-clinic/internal/domain"
	"github.com/mgonzalezm-dev/vet-clinic/internal/store"
)

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func slot(startHour, startMin, endHour, endMin int) (time.Time, time.Time) {
	return day.Add(time.Duration(startHour)*time.Hour + time.Duration(startMin)*time.Minute),
		day.Add(time.Duration(endHour)*time.Hour + time.Duration(endMin)*time.Minute)
}

func insert(t *testing.T, repo *SchedulingRepo, vetID string, start, end time.Time) domain.Appointment {
	t.Helper()
	var out domain.Appointment
	err := repo.InVetCalendar(context.Background(), vetID, func(ctx context.Context, tx store.CalendarTx) error {
		a, err := tx.InsertAppointment(ctx, domain.Appointment{
			VetID:     vetID,
			PetID:     "pet-1",
			StartTime: start,
			EndTime:   end,
		})
		if err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		t.Fatalf("insert [%v, %v): %v", start, end, err)
	}
	return out
}

func TestInsertAppointmentOverlap(t *testing.T) {
	repo := NewSchedulingRepo()
	ctx := context.Background()

	s1, e1 := slot(10, 0, 10, 30)
	first := insert(t, repo, "vet-1", s1, e1)
	if first.ID == uuid.Nil {
		t.Fatal("insert did not assign an id")
	}
	if first.Version != 1 {
		t.Fatalf("version = %d, want 1", first.Version)
	}
	if first.Status != domain.StatusScheduled {
		t.Fatalf("status = %s, want scheduled", first.Status)
	}

	// Overlapping booking for the same vet is rejected.
	s2, e2 := slot(10, 15, 10, 45)
	err := repo.InVetCalendar(ctx, "vet-1", func(ctx context.Context, tx store.CalendarTx) error {
		_, err := tx.InsertAppointment(ctx, domain.Appointment{VetID: "vet-1", PetID: "pet-2", StartTime: s2, EndTime: e2})
		return err
	})
	if !errors.Is(err, store.ErrOverlap) {
		t.Fatalf("overlapping insert err = %v, want ErrOverlap", err)
	}

	// Same interval for a different vet is fine.
	insert(t, repo, "vet-2", s1, e1)

	// Adjacent interval for the same vet is fine.
	s3, e3 := slot(10, 30, 11, 0)
	insert(t, repo, "vet-1", s3, e3)
}

func TestInsertIgnoresTerminalAppointments(t *testing.T) {
	repo := NewSchedulingRepo()
	ctx := context.Background()

	s, e := slot(10, 0, 10, 30)
	appt := insert(t, repo, "vet-1", s, e)

	err := repo.InVetCalendar(ctx, "vet-1", func(ctx context.Context, tx store.CalendarTx) error {
		appt.Status = domain.StatusCancelled
		_, err := tx.UpdateAppointment(ctx, appt, 1)
		return err
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// The cancelled booking no longer blocks the slot.
	insert(t, repo, "vet-1", s, e)
}

func TestUpdateAppointmentVersionCAS(t *testing.T) {
	repo := NewSchedulingRepo()
	ctx := context.Background()

	s, e := slot(10, 0, 10, 30)
	appt := insert(t, repo, "vet-1", s, e)

	var updated domain.Appointment
	err := repo.InVetCalendar(ctx, "vet-1", func(ctx context.Context, tx store.CalendarTx) error {
		appt.Status = domain.StatusCompleted
		a, err := tx.UpdateAppointment(ctx, appt, 1)
		if err != nil {
			return err
		}
		updated = a
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("version = %d, want 2", updated.Version)
	}
	if updated.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want completed", updated.Status)
	}

	// Stale expected version is rejected.
	err = repo.InVetCalendar(ctx, "vet-1", func(ctx context.Context, tx store.CalendarTx) error {
		_, err := tx.UpdateAppointment(ctx, appt, 1)
		return err
	})
	if !errors.Is(err, store.ErrVersionMismatch) {
		t.Fatalf("stale update err = %v, want ErrVersionMismatch", err)
	}
}

func TestUpdateAppointmentNotFound(t *testing.T) {
	repo := NewSchedulingRepo()
	err := repo.InVetCalendar(context.Background(), "vet-1", func(ctx context.Context, tx store.CalendarTx) error {
		_, err := tx.UpdateAppointment(ctx, domain.Appointment{ID: uuid.New(), VetID: "vet-1"}, 1)
		return err
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateAppointmentRescheduleOverlap(t *testing.T) {
	repo := NewSchedulingRepo()
	ctx := context.Background()

	s1, e1 := slot(10, 0, 10, 30)
	first := insert(t, repo, "vet-1", s1, e1)
	s2, e2 := slot(11, 0, 11, 30)
	insert(t, repo, "vet-1", s2, e2)

	// Moving the first appointment onto the second is rejected.
	err := repo.InVetCalendar(ctx, "vet-1", func(ctx context.Context, tx store.CalendarTx) error {
		first.StartTime, first.EndTime = slot(11, 15, 11, 45)
		_, err := tx.UpdateAppointment(ctx, first, 1)
		return err
	})
	if !errors.Is(err, store.ErrOverlap) {
		t.Fatalf("err = %v, want ErrOverlap", err)
	}

	// Moving it within its own former slot is fine; the booking does not
	// conflict with itself.
	err = repo.InVetCalendar(ctx, "vet-1", func(ctx context.Context, tx store.CalendarTx) error {
		first.StartTime, first.EndTime = slot(10, 15, 10, 45)
		_, err := tx.UpdateAppointment(ctx, first, 1)
		return err
	})
	if err != nil {
		t.Fatalf("self-overlapping reschedule: %v", err)
	}
}

func TestGetAppointment(t *testing.T) {
	repo := NewSchedulingRepo()
	ctx := context.Background()

	if _, err := repo.GetAppointment(ctx, uuid.New()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing id err = %v, want ErrNotFound", err)
	}

	s, e := slot(10, 0, 10, 30)
	appt := insert(t, repo, "vet-1", s, e)
	got, err := repo.GetAppointment(ctx, appt.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != appt.ID || !got.StartTime.Equal(s) || !got.EndTime.Equal(e) {
		t.Fatalf("got %+v, want id=%s [%v, %v)", got, appt.ID, s, e)
	}
}

func TestListScheduledWindowAndOrder(t *testing.T) {
	repo := NewSchedulingRepo()
	ctx := context.Background()

	s1, e1 := slot(14, 0, 14, 30)
	s2, e2 := slot(9, 0, 9, 30)
	s3, e3 := slot(11, 0, 11, 30)
	insert(t, repo, "vet-1", s1, e1)
	insert(t, repo, "vet-1", s2, e2)
	third := insert(t, repo, "vet-1", s3, e3)
	insert(t, repo, "vet-2", s3, e3)

	// Cancelled appointments drop out of the scheduled listing.
	err := repo.InVetCalendar(ctx, "vet-1", func(ctx context.Context, tx store.CalendarTx) error {
		third.Status = domain.StatusCancelled
		_, err := tx.UpdateAppointment(ctx, third, 1)
		return err
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}

	got, err := repo.ListScheduled(ctx, "vet-1", day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d appointments, want 2", len(got))
	}
	if !got[0].StartTime.Equal(s2) || !got[1].StartTime.Equal(s1) {
		t.Fatalf("order = [%v, %v], want [%v, %v]", got[0].StartTime, got[1].StartTime, s2, s1)
	}

	// A window touching only the 14:00 slot returns just that one.
	got, err = repo.ListScheduled(ctx, "vet-1", day.Add(13*time.Hour), day.Add(15*time.Hour))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || !got[0].StartTime.Equal(s1) {
		t.Fatalf("got %v, want single appointment at %v", got, s1)
	}

	// ListAppointments includes terminal statuses.
	all, err := repo.ListAppointments(ctx, "vet-1", day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d appointments, want 3", len(all))
	}
}

func TestInVetCalendarHonorsContext(t *testing.T) {
	repo := NewSchedulingRepo()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := repo.InVetCalendar(ctx, "vet-1", func(ctx context.Context, tx store.CalendarTx) error {
		t.Fatal("callback ran despite cancelled context")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestRulesAndExceptions(t *testing.T) {
	repo := NewSchedulingRepo()
	ctx := context.Background()

	rule, err := repo.CreateRule(ctx, domain.AvailabilityRule{
		VetID:         "vet-1",
		Weekday:       1,
		StartMinute:   9 * 60,
		EndMinute:     17 * 60,
		EffectiveFrom: day,
	})
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}
	if rule.ID == uuid.Nil {
		t.Fatal("rule id not assigned")
	}

	rules, err := repo.ListRules(ctx, "vet-1")
	if err != nil {
		t.Fatalf("list rules: %v", err)
	}
	if len(rules) != 1 || rules[0].ID != rule.ID {
		t.Fatalf("got %v, want the created rule", rules)
	}

	ex, err := repo.CreateException(ctx, domain.AvailabilityException{
		VetID:       "vet-1",
		Date:        day,
		Kind:        domain.ExceptionKindBlocked,
		StartMinute: 12 * 60,
		EndMinute:   13 * 60,
	})
	if err != nil {
		t.Fatalf("create exception: %v", err)
	}
	if ex.ID == uuid.Nil {
		t.Fatal("exception id not assigned")
	}

	// Date filter is inclusive on the covered days.
	got, err := repo.ListExceptions(ctx, "vet-1", day, day.Add(time.Hour))
	if err != nil {
		t.Fatalf("list exceptions: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d exceptions, want 1", len(got))
	}
	got, err = repo.ListExceptions(ctx, "vet-1", day.AddDate(0, 0, 1), day.AddDate(0, 0, 2))
	if err != nil {
		t.Fatalf("list exceptions: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d exceptions outside the range, want 0", len(got))
	}
}
