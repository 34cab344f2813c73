package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mgonzalezm-dev/vet-clinic/internal/events"
	"github.com/mgonzalezm-dev/vet-clinic/internal/service/scheduling"
	"github.com/mgonzalezm-dev/vet-clinic/internal/store/memory"
)

// 2026-03-02 is a Monday.
var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

// newTestServer runs the full router over the in-memory store with a
// 09:00-17:00 Monday rule for vet-1 and the clock parked at 08:00 that Monday.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := scheduling.NewService(memory.NewSchedulingRepo(), events.NewLogSink(log), log, scheduling.Options{
		Now: func() time.Time { return monday.Add(8 * time.Hour) },
	})
	srv := httptest.NewServer(NewRouter(svc, log))
	t.Cleanup(srv.Close)

	postJSON(t, srv, "/v1/vets/vet-1/availability/rules", map[string]any{
		"weekday":        1,
		"start_minute":   9 * 60,
		"end_minute":     17 * 60,
		"effective_from": "2026-01-01T00:00:00Z",
	}, http.StatusCreated)

	return srv
}

func postJSON(t *testing.T, srv *httptest.Server, path string, body any, wantStatus int) []byte {
	t.Helper()

	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if resp.StatusCode != wantStatus {
		t.Fatalf("POST %s status = %d, want %d (body %s)", path, resp.StatusCode, wantStatus, out)
	}
	return out
}

func getJSON(t *testing.T, srv *httptest.Server, path string, wantStatus int) []byte {
	t.Helper()

	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s status = %d, want %d (body %s)", path, resp.StatusCode, wantStatus, out)
	}
	return out
}

func createAppointment(t *testing.T, srv *httptest.Server, startHour, startMin int) appointmentResponse {
	t.Helper()

	start := monday.Add(time.Duration(startHour)*time.Hour + time.Duration(startMin)*time.Minute)
	body := postJSON(t, srv, "/v1/appointments", map[string]any{
		"vet_id":     "vet-1",
		"pet_id":     "pet-1",
		"start_time": start.Format(time.RFC3339),
		"end_time":   start.Add(30 * time.Minute).Format(time.RFC3339),
	}, http.StatusCreated)

	var out appointmentResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var e errorResponse
	if err := json.Unmarshal(body, &e); err != nil {
		t.Fatalf("unmarshal error body %s: %v", body, err)
	}
	return e.Error
}

func TestCreateAppointmentEndpoint(t *testing.T) {
	srv := newTestServer(t)

	appt := createAppointment(t, srv, 10, 0)
	if appt.ID == "" {
		t.Fatal("no id in response")
	}
	if appt.Status != "scheduled" {
		t.Errorf("status = %s, want scheduled", appt.Status)
	}
	if appt.Version != 1 {
		t.Errorf("version = %d, want 1", appt.Version)
	}

	got := getJSON(t, srv, "/v1/appointments/"+appt.ID, http.StatusOK)
	var fetched appointmentResponse
	if err := json.Unmarshal(got, &fetched); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if fetched.ID != appt.ID {
		t.Errorf("fetched id = %s, want %s", fetched.ID, appt.ID)
	}
}

func TestCreateAppointmentErrors(t *testing.T) {
	srv := newTestServer(t)
	createAppointment(t, srv, 10, 0)

	tests := []struct {
		name       string
		start, end time.Time
		wantStatus int
		wantCode   string
	}{
		{
			name:       "overlapping slot",
			start:      monday.Add(10*time.Hour + 15*time.Minute),
			end:        monday.Add(10*time.Hour + 45*time.Minute),
			wantStatus: http.StatusConflict,
			wantCode:   "slot_unavailable",
		},
		{
			name:       "outside availability",
			start:      monday.Add(18 * time.Hour),
			end:        monday.Add(18*time.Hour + 30*time.Minute),
			wantStatus: http.StatusConflict,
			wantCode:   "outside_availability",
		},
		{
			name:       "too short",
			start:      monday.Add(11 * time.Hour),
			end:        monday.Add(11*time.Hour + 10*time.Minute),
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_duration",
		},
		{
			name:       "start in the past",
			start:      monday.Add(7 * time.Hour),
			end:        monday.Add(7*time.Hour + 30*time.Minute),
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_window",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := postJSON(t, srv, "/v1/appointments", map[string]any{
				"vet_id":     "vet-1",
				"pet_id":     "pet-2",
				"start_time": tt.start.Format(time.RFC3339),
				"end_time":   tt.end.Format(time.RFC3339),
			}, tt.wantStatus)
			if code := errorCode(t, body); code != tt.wantCode {
				t.Errorf("error code = %s, want %s", code, tt.wantCode)
			}
		})
	}
}

func TestCreateAppointmentBadRequests(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/v1/appointments", "application/json", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed body status = %d, want 400", resp.StatusCode)
	}

	body := postJSON(t, srv, "/v1/appointments", map[string]any{
		"pet_id":     "pet-1",
		"start_time": monday.Add(10 * time.Hour).Format(time.RFC3339),
		"end_time":   monday.Add(10*time.Hour + 30*time.Minute).Format(time.RFC3339),
	}, http.StatusBadRequest)
	if code := errorCode(t, body); code != "invalid_request" {
		t.Errorf("error code = %s, want invalid_request", code)
	}
}

func TestGetAppointmentNotFound(t *testing.T) {
	srv := newTestServer(t)

	body := getJSON(t, srv, "/v1/appointments/018f3c6e-8d9a-7000-8000-000000000000", http.StatusNotFound)
	if code := errorCode(t, body); code != "not_found" {
		t.Errorf("error code = %s, want not_found", code)
	}

	body = getJSON(t, srv, "/v1/appointments/not-a-uuid", http.StatusBadRequest)
	if code := errorCode(t, body); code != "invalid_appointment_id" {
		t.Errorf("error code = %s, want invalid_appointment_id", code)
	}
}

func TestRescheduleEndpoint(t *testing.T) {
	srv := newTestServer(t)
	appt := createAppointment(t, srv, 10, 0)

	body := postJSON(t, srv, "/v1/appointments/"+appt.ID+"/reschedule", map[string]any{
		"start_time":       monday.Add(14 * time.Hour).Format(time.RFC3339),
		"end_time":         monday.Add(14*time.Hour + 30*time.Minute).Format(time.RFC3339),
		"expected_version": appt.Version,
	}, http.StatusOK)

	var moved appointmentResponse
	if err := json.Unmarshal(body, &moved); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if moved.Version != appt.Version+1 {
		t.Errorf("version = %d, want %d", moved.Version, appt.Version+1)
	}

	// Stale version maps to 409.
	body = postJSON(t, srv, "/v1/appointments/"+appt.ID+"/reschedule", map[string]any{
		"start_time":       monday.Add(15 * time.Hour).Format(time.RFC3339),
		"end_time":         monday.Add(15*time.Hour + 30*time.Minute).Format(time.RFC3339),
		"expected_version": appt.Version,
	}, http.StatusConflict)
	if code := errorCode(t, body); code != "concurrent_modification" {
		t.Errorf("error code = %s, want concurrent_modification", code)
	}
}

func TestTransitionEndpoints(t *testing.T) {
	srv := newTestServer(t)
	appt := createAppointment(t, srv, 10, 0)

	body := postJSON(t, srv, "/v1/appointments/"+appt.ID+"/cancel", map[string]any{
		"expected_version": appt.Version,
	}, http.StatusOK)
	var cancelled appointmentResponse
	if err := json.Unmarshal(body, &cancelled); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cancelled.Status != "cancelled" {
		t.Errorf("status = %s, want cancelled", cancelled.Status)
	}

	// Completing a cancelled appointment maps to 409.
	body = postJSON(t, srv, "/v1/appointments/"+appt.ID+"/complete", map[string]any{
		"expected_version": cancelled.Version,
	}, http.StatusConflict)
	if code := errorCode(t, body); code != "invalid_transition" {
		t.Errorf("error code = %s, want invalid_transition", code)
	}
}

func TestListSlotsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	createAppointment(t, srv, 10, 0)

	path := fmt.Sprintf("/v1/vets/vet-1/slots?from=%s&to=%s",
		monday.Add(9*time.Hour).Format(time.RFC3339),
		monday.Add(17*time.Hour).Format(time.RFC3339),
	)
	body := getJSON(t, srv, path, http.StatusOK)

	var out slotsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.VetID != "vet-1" {
		t.Errorf("vet_id = %s, want vet-1", out.VetID)
	}
	if len(out.Slots) != 2 {
		t.Fatalf("got %d slots %v, want 2", len(out.Slots), out.Slots)
	}
	if !out.Slots[0].EndTime.Equal(monday.Add(10 * time.Hour)) {
		t.Errorf("first slot ends %v, want %v", out.Slots[0].EndTime, monday.Add(10*time.Hour))
	}
	if !out.Slots[1].StartTime.Equal(monday.Add(10*time.Hour + 30*time.Minute)) {
		t.Errorf("second slot starts %v, want %v", out.Slots[1].StartTime, monday.Add(10*time.Hour+30*time.Minute))
	}

	// Missing range parameters map to 400.
	body = getJSON(t, srv, "/v1/vets/vet-1/slots", http.StatusBadRequest)
	if code := errorCode(t, body); code != "invalid_range" {
		t.Errorf("error code = %s, want invalid_range", code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)
	getJSON(t, srv, "/health", http.StatusOK)
}
