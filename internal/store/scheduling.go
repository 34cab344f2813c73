package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mgonzalezm-dev/vet-clinic/internal/domain"
)

// SchedulingRepository is the storage contract the booking coordinator runs
// against. InVetCalendar is the atomicity anchor: fn executes with the vet's
// calendar serialized, so detection and commit happen inside one boundary and
// calendars of different vets never contend with each other.
//
// The methods outside InVetCalendar are snapshot reads; they never wait on a
// writer beyond the snapshot itself.
type SchedulingRepository interface {
	InVetCalendar(ctx context.Context, vetID string, fn func(ctx context.Context, tx CalendarTx) error) error

	GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	ListAppointments(ctx context.Context, vetID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
	ListScheduled(ctx context.Context, vetID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
	ListRules(ctx context.Context, vetID string) ([]domain.AvailabilityRule, error)
	ListExceptions(ctx context.Context, vetID string, from, to time.Time) ([]domain.AvailabilityException, error)

	CreateRule(ctx context.Context, rule domain.AvailabilityRule) (domain.AvailabilityRule, error)
	CreateException(ctx context.Context, ex domain.AvailabilityException) (domain.AvailabilityException, error)
}
