package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Operation names carried on scheduling event records.
const (
	OpCreate     = "appointment.created"
	OpReschedule = "appointment.rescheduled"
	OpCancel     = "appointment.cancelled"
	OpComplete   = "appointment.completed"
	OpNoShow     = "appointment.no_show"
)

// Record is emitted after every successful scheduling commit. Delivery is
// best-effort: a sink failure never rolls back the operation that produced it.
type Record struct {
	Operation     string
	AppointmentID uuid.UUID
	VetID         string
	PetID         string
	StartTime     time.Time
	EndTime       time.Time
	OccurredAt    time.Time
}

type Sink interface {
	Publish(ctx context.Context, rec Record) error
}

// LogSink writes event records to the structured log. It stands in for the
// external audit/notification sink.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	if log == nil {
		log = slog.Default()
	}
	return &LogSink{log: log.With(slog.String("component", "events"))}
}

func (s *LogSink) Publish(ctx context.Context, rec Record) error {
	s.log.Info("scheduling event",
		slog.String("operation", rec.Operation),
		slog.String("appointment_id", rec.AppointmentID.String()),
		slog.String("vet_id", rec.VetID),
		slog.String("pet_id", rec.PetID),
		slog.Time("start_time", rec.StartTime),
		slog.Time("end_time", rec.EndTime),
		slog.Time("occurred_at", rec.OccurredAt),
	)
	return nil
}
