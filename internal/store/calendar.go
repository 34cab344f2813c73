package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mgonzalezm-dev/vet-clinic/internal/domain"
)

// CalendarTx is the view of one vet's calendar inside its serialization
// boundary. All reads observe the state the commit will be validated against;
// writes either land atomically or return a sentinel error.
type CalendarTx interface {
	GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)

	// InsertAppointment persists a new scheduled appointment. It returns
	// ErrOverlap if the interval intersects an existing scheduled appointment
	// for the same vet.
	InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)

	// UpdateAppointment commits new interval/status for an appointment only if
	// the stored version still equals expectedVersion, bumping the version and
	// the last-modified timestamp. It returns ErrNotFound, ErrVersionMismatch,
	// or ErrOverlap when the new interval collides.
	UpdateAppointment(ctx context.Context, appt domain.Appointment, expectedVersion int64) (domain.Appointment, error)

	ListScheduled(ctx context.Context, vetID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
	ListRules(ctx context.Context, vetID string) ([]domain.AvailabilityRule, error)
	ListExceptions(ctx context.Context, vetID string, from, to time.Time) ([]domain.AvailabilityException, error)
}
