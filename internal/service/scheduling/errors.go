package scheduling

import (
	"errors"

	"github.com/mgonzalezm-dev/vet-clinic/internal/domain"
)

var (
	// ErrConcurrentModification means an optimistic version check failed: the
	// appointment was rescheduled or cancelled by another actor in between.
	ErrConcurrentModification = errors.New("appointment was modified concurrently")
	// ErrBusy means the commit timed out or transient storage failures
	// exhausted the retry budget. Distinct from a genuine conflict; the caller
	// may retry later.
	ErrBusy = errors.New("scheduling busy, retry later")
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// isOutcomeError reports whether err is one of the typed scheduling outcomes
// that must surface to the caller as-is rather than being retried.
func isOutcomeError(err error) bool {
	return errors.Is(err, domain.ErrInvalidDuration) ||
		errors.Is(err, domain.ErrInvalidWindow) ||
		errors.Is(err, domain.ErrOutsideAvailability) ||
		errors.Is(err, domain.ErrSlotUnavailable) ||
		errors.Is(err, domain.ErrInvalidTransition)
}
