package domain

import (
	"errors"
	"time"
)

var (
	// ErrInvalidDuration covers start >= end, boundaries not aligned to the
	// booking granularity, and durations below the configured minimum.
	ErrInvalidDuration = errors.New("invalid appointment duration")
	// ErrInvalidWindow is returned when the start violates the booking
	// lead-time floor relative to now.
	ErrInvalidWindow = errors.New("appointment start violates booking lead time")
	// ErrOutsideAvailability means no single availability window fully
	// contains the proposed interval.
	ErrOutsideAvailability = errors.New("interval outside availability")
	// ErrSlotUnavailable means the proposed interval overlaps a scheduled
	// appointment.
	ErrSlotUnavailable = errors.New("slot unavailable")
)

// BookingPolicy holds the validation knobs applied to every proposed interval.
type BookingPolicy struct {
	// Granularity is the increment appointment boundaries must align to.
	Granularity time.Duration
	// MinDuration is the shortest bookable appointment.
	MinDuration time.Duration
	// LeadTime is the floor between now and the earliest bookable start.
	// Zero still rejects starts in the past.
	LeadTime time.Duration
}

func DefaultBookingPolicy() BookingPolicy {
	return BookingPolicy{
		Granularity: 5 * time.Minute,
		MinDuration: 15 * time.Minute,
		LeadTime:    0,
	}
}

// ValidateInterval applies the policy's shape checks: ordering, granularity
// alignment of both boundaries, and minimum duration.
func (p BookingPolicy) ValidateInterval(proposed Interval) error {
	if !proposed.IsValid() {
		return ErrInvalidDuration
	}
	if p.Granularity > 0 {
		if proposed.Start.UnixNano()%int64(p.Granularity) != 0 ||
			proposed.End.UnixNano()%int64(p.Granularity) != 0 {
			return ErrInvalidDuration
		}
	}
	if p.MinDuration > 0 && proposed.Duration() < p.MinDuration {
		return ErrInvalidDuration
	}
	return nil
}

// CheckProposedInterval validates a proposed appointment interval against the
// policy, the resolved availability windows for the covered dates, and the
// vet's currently scheduled appointments overlapping the interval. It is a
// pure read-only pre-check; the booking coordinator re-runs it inside the
// commit boundary to close the check-then-write race.
//
// The windows must already be coalesced: a request spanning the gap between
// two windows is rejected even if each endpoint falls inside some window.
func CheckProposedInterval(proposed Interval, now time.Time, policy BookingPolicy, windows []Interval, booked []Interval) error {
	if err := policy.ValidateInterval(proposed); err != nil {
		return err
	}
	if proposed.Start.Before(now.Add(policy.LeadTime)) {
		return ErrInvalidWindow
	}

	contained := false
	for _, w := range windows {
		if w.Contains(proposed) {
			contained = true
			break
		}
	}
	if !contained {
		return ErrOutsideAvailability
	}

	for _, b := range booked {
		if proposed.Overlaps(b) {
			return ErrSlotUnavailable
		}
	}
	return nil
}
