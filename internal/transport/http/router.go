package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

func NewRouter(svc SchedulingService, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	h := &handlers{svc: svc, log: log.With(slog.String("component", "http"))}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(log))
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", h.createAppointment)
			r.Get("/{id}", h.getAppointment)
			r.Post("/{id}/reschedule", h.rescheduleAppointment)
			r.Post("/{id}/cancel", h.transitionHandler("cancelled", h.svc.CancelAppointment))
			r.Post("/{id}/complete", h.transitionHandler("completed", h.svc.CompleteAppointment))
			r.Post("/{id}/no-show", h.transitionHandler("marked no-show", h.svc.MarkNoShow))
		})

		r.Route("/vets/{vetID}", func(r chi.Router) {
			r.Get("/appointments", h.listAppointments)
			r.Get("/slots", h.listAvailableSlots)
			r.Post("/availability/rules", h.createRule)
			r.Post("/availability/exceptions", h.createException)
		})
	})

	return r
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log.Info("http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", chimw.GetReqID(r.Context())),
			)
		})
	}
}
