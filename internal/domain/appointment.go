package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ErrInvalidTransition is returned when a lifecycle transition is not in the
// transition table. Terminal states have no outgoing transitions.
var ErrInvalidTransition = errors.New("invalid appointment status transition")

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusNoShow    AppointmentStatus = "no_show"
)

var statusTransitions = map[AppointmentStatus]map[AppointmentStatus]bool{
	StatusScheduled: {
		StatusCompleted: true,
		StatusCancelled: true,
		StatusNoShow:    true,
	},
}

func (s AppointmentStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

func (s AppointmentStatus) CanTransitionTo(to AppointmentStatus) bool {
	return statusTransitions[s][to]
}

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID        uuid.UUID         `bun:"id,pk,type:uuid"`
	VetID     string            `bun:"vet_id,notnull"`
	PetID     string            `bun:"pet_id,notnull"`
	StartTime time.Time         `bun:"start_time,notnull"`
	EndTime   time.Time         `bun:"end_time,notnull"`
	Status    AppointmentStatus `bun:"status,notnull"`
	Version   int64             `bun:"version,notnull"`
	CreatedAt time.Time         `bun:"created_at,notnull"`
	UpdatedAt time.Time         `bun:"updated_at,notnull"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.Status == "" {
			a.Status = StatusScheduled
		}
		if a.Version == 0 {
			a.Version = 1
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}

func (a Appointment) Interval() Interval {
	return Interval{Start: a.StartTime, End: a.EndTime}
}

// Transition applies a lifecycle transition in place. It does not bump the
// version; the store does that on commit so the bump and the write stay on
// the same atomicity boundary.
func (a *Appointment) Transition(to AppointmentStatus) error {
	if !a.Status.CanTransitionTo(to) {
		return ErrInvalidTransition
	}
	a.Status = to
	return nil
}
