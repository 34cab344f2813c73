package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mgonzalezm-dev/vet-clinic/internal/domain"
	"github.com/mgonzalezm-dev/vet-clinic/internal/service/scheduling"
	"github.com/mgonzalezm-dev/vet-clinic/internal/store"
)

// SchedulingService is the facade surface the transport consumes.
type SchedulingService interface {
	CreateAppointment(ctx context.Context, in scheduling.CreateInput) (domain.Appointment, error)
	RescheduleAppointment(ctx context.Context, in scheduling.RescheduleInput) (domain.Appointment, error)
	CancelAppointment(ctx context.Context, id uuid.UUID, expectedVersion int64) (domain.Appointment, error)
	CompleteAppointment(ctx context.Context, id uuid.UUID, expectedVersion int64) (domain.Appointment, error)
	MarkNoShow(ctx context.Context, id uuid.UUID, expectedVersion int64) (domain.Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	ListAppointments(ctx context.Context, vetID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
	ListAvailableSlots(ctx context.Context, vetID string, from, to time.Time) ([]domain.Interval, error)
	CreateAvailabilityRule(ctx context.Context, in scheduling.RuleInput) (domain.AvailabilityRule, error)
	CreateAvailabilityException(ctx context.Context, in scheduling.ExceptionInput) (domain.AvailabilityException, error)
}

type handlers struct {
	svc SchedulingService
	log *slog.Logger
}

func (h *handlers) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	appt, err := h.svc.CreateAppointment(r.Context(), scheduling.CreateInput{
		VetID:     req.VetID,
		PetID:     req.PetID,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	})
	if err != nil {
		h.writeSchedulingError(w, r, err)
		return
	}

	h.log.Info("appointment created",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("vet_id", appt.VetID),
		slog.Time("start_time", appt.StartTime),
		slog.Time("end_time", appt.EndTime),
	)
	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}

	appt, err := h.svc.GetAppointment(r.Context(), id)
	if err != nil {
		h.writeSchedulingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) rescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}

	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	appt, err := h.svc.RescheduleAppointment(r.Context(), scheduling.RescheduleInput{
		AppointmentID:   id,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		h.writeSchedulingError(w, r, err)
		return
	}

	h.log.Info("appointment rescheduled",
		slog.String("appointment_id", appt.ID.String()),
		slog.Time("start_time", appt.StartTime),
		slog.Time("end_time", appt.EndTime),
	)
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) transitionHandler(name string, fn func(ctx context.Context, id uuid.UUID, expectedVersion int64) (domain.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		var req transitionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := fn(r.Context(), id, req.ExpectedVersion)
		if err != nil {
			h.writeSchedulingError(w, r, err)
			return
		}

		h.log.Info("appointment "+name,
			slog.String("appointment_id", appt.ID.String()),
			slog.String("status", string(appt.Status)),
		)
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func (h *handlers) listAppointments(w http.ResponseWriter, r *http.Request) {
	vetID := chi.URLParam(r, "vetID")
	from, to, ok := timeRange(w, r)
	if !ok {
		return
	}

	appts, err := h.svc.ListAppointments(r.Context(), vetID, from, to)
	if err != nil {
		h.writeSchedulingError(w, r, err)
		return
	}

	out := make([]appointmentResponse, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointmentResponse(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) listAvailableSlots(w http.ResponseWriter, r *http.Request) {
	vetID := chi.URLParam(r, "vetID")
	from, to, ok := timeRange(w, r)
	if !ok {
		return
	}

	slots, err := h.svc.ListAvailableSlots(r.Context(), vetID, from, to)
	if err != nil {
		h.writeSchedulingError(w, r, err)
		return
	}

	out := slotsResponse{VetID: vetID, Slots: make([]slotResponse, 0, len(slots))}
	for _, s := range slots {
		out.Slots = append(out.Slots, slotResponse{StartTime: s.Start, EndTime: s.End})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) createRule(w http.ResponseWriter, r *http.Request) {
	vetID := chi.URLParam(r, "vetID")

	var req createRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	rule, err := h.svc.CreateAvailabilityRule(r.Context(), scheduling.RuleInput{
		VetID:          vetID,
		Weekday:        req.Weekday,
		StartMinute:    req.StartMinute,
		EndMinute:      req.EndMinute,
		EffectiveFrom:  req.EffectiveFrom,
		EffectiveUntil: req.EffectiveUntil,
	})
	if err != nil {
		h.writeSchedulingError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, ruleResponse{
		ID:             rule.ID.String(),
		VetID:          rule.VetID,
		Weekday:        rule.Weekday,
		StartMinute:    rule.StartMinute,
		EndMinute:      rule.EndMinute,
		EffectiveFrom:  rule.EffectiveFrom,
		EffectiveUntil: rule.EffectiveUntil,
	})
}

func (h *handlers) createException(w http.ResponseWriter, r *http.Request) {
	vetID := chi.URLParam(r, "vetID")

	var req createExceptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	ex, err := h.svc.CreateAvailabilityException(r.Context(), scheduling.ExceptionInput{
		VetID:       vetID,
		Date:        req.Date,
		Kind:        domain.ExceptionKind(req.Kind),
		StartMinute: req.StartMinute,
		EndMinute:   req.EndMinute,
		Reason:      req.Reason,
	})
	if err != nil {
		h.writeSchedulingError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, exceptionResponse{
		ID:          ex.ID.String(),
		VetID:       ex.VetID,
		Date:        ex.Date,
		Kind:        string(ex.Kind),
		StartMinute: ex.StartMinute,
		EndMinute:   ex.EndMinute,
		Reason:      ex.Reason,
	})
}

// writeSchedulingError maps the typed scheduling outcomes onto status codes.
// None of them expose storage internals; unexpected errors are logged and
// reported as a bare internal error.
func (h *handlers) writeSchedulingError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *scheduling.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, "invalid_request", vErr.Error())
	case errors.Is(err, domain.ErrInvalidDuration):
		writeError(w, http.StatusBadRequest, "invalid_duration", err.Error())
	case errors.Is(err, domain.ErrInvalidWindow):
		writeError(w, http.StatusBadRequest, "invalid_window", err.Error())
	case errors.Is(err, domain.ErrOutsideAvailability):
		writeError(w, http.StatusConflict, "outside_availability", err.Error())
	case errors.Is(err, domain.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, scheduling.ErrConcurrentModification):
		writeError(w, http.StatusConflict, "concurrent_modification", err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "appointment not found")
	case errors.Is(err, scheduling.ErrBusy):
		writeError(w, http.StatusServiceUnavailable, "busy", err.Error())
	default:
		h.log.Error("request failed",
			slog.Any("err", err),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func appointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func timeRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_range", "from must be RFC 3339")
		return time.Time{}, time.Time{}, false
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_range", "to must be RFC 3339")
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}
