package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mgonzalezm-dev/vet-clinic/internal/domain"
)

type createAppointmentRequest struct {
	VetID     string    `json:"vet_id"`
	PetID     string    `json:"pet_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

type rescheduleRequest struct {
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	ExpectedVersion int64     `json:"expected_version"`
}

type transitionRequest struct {
	ExpectedVersion int64 `json:"expected_version"`
}

type appointmentResponse struct {
	ID        string    `json:"id"`
	VetID     string    `json:"vet_id"`
	PetID     string    `json:"pet_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Status    string    `json:"status"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toAppointmentResponse(a domain.Appointment) appointmentResponse {
	return appointmentResponse{
		ID:        a.ID.String(),
		VetID:     a.VetID,
		PetID:     a.PetID,
		StartTime: a.StartTime,
		EndTime:   a.EndTime,
		Status:    string(a.Status),
		Version:   a.Version,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

type slotResponse struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

type slotsResponse struct {
	VetID string         `json:"vet_id"`
	Slots []slotResponse `json:"slots"`
}

type createRuleRequest struct {
	Weekday        int        `json:"weekday"`
	StartMinute    int        `json:"start_minute"`
	EndMinute      int        `json:"end_minute"`
	EffectiveFrom  time.Time  `json:"effective_from"`
	EffectiveUntil *time.Time `json:"effective_until,omitempty"`
}

type ruleResponse struct {
	ID             string     `json:"id"`
	VetID          string     `json:"vet_id"`
	Weekday        int        `json:"weekday"`
	StartMinute    int        `json:"start_minute"`
	EndMinute      int        `json:"end_minute"`
	EffectiveFrom  time.Time  `json:"effective_from"`
	EffectiveUntil *time.Time `json:"effective_until,omitempty"`
}

type createExceptionRequest struct {
	Date        time.Time `json:"date"`
	Kind        string    `json:"kind"`
	StartMinute int       `json:"start_minute"`
	EndMinute   int       `json:"end_minute"`
	Reason      string    `json:"reason"`
}

type exceptionResponse struct {
	ID          string    `json:"id"`
	VetID       string    `json:"vet_id"`
	Date        time.Time `json:"date"`
	Kind        string    `json:"kind"`
	StartMinute int       `json:"start_minute"`
	EndMinute   int       `json:"end_minute"`
	Reason      string    `json:"reason,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, errorResponse{Error: code, Details: details})
}
