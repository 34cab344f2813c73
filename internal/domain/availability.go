package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const MinutesPerDay = 24 * 60

// AvailabilityRule is a recurring weekly bookable window for one vet.
// Weekday follows ISO numbering, 1 (Monday) through 7 (Sunday). Start and end
// are minutes from midnight UTC, half-open. A rule applies on dates covered by
// [EffectiveFrom, EffectiveUntil]; a nil EffectiveUntil leaves it open-ended.
type AvailabilityRule struct {
	bun.BaseModel `bun:"table:availability_rules"`

	ID             uuid.UUID  `bun:"id,pk,type:uuid"`
	VetID          string     `bun:"vet_id,notnull"`
	Weekday        int        `bun:"weekday,notnull"`
	StartMinute    int        `bun:"start_minute,notnull"`
	EndMinute      int        `bun:"end_minute,notnull"`
	EffectiveFrom  time.Time  `bun:"effective_from,notnull"`
	EffectiveUntil *time.Time `bun:"effective_until"`
	CreatedAt      time.Time  `bun:"created_at,notnull"`
	UpdatedAt      time.Time  `bun:"updated_at,notnull"`
}

func (r *AvailabilityRule) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if r.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			r.ID = id
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		if r.UpdatedAt.IsZero() {
			r.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		r.UpdatedAt = now
	}
	return nil
}

// AppliesOn reports whether the rule covers the given UTC date.
func (r AvailabilityRule) AppliesOn(date time.Time) bool {
	day := DateOf(date)
	if WeekdayNumber(day) != r.Weekday {
		return false
	}
	if day.Before(DateOf(r.EffectiveFrom)) {
		return false
	}
	if r.EffectiveUntil != nil && day.After(DateOf(*r.EffectiveUntil)) {
		return false
	}
	return true
}

func (r AvailabilityRule) WindowOn(date time.Time) Interval {
	day := DateOf(date)
	return Interval{
		Start: day.Add(time.Duration(r.StartMinute) * time.Minute),
		End:   day.Add(time.Duration(r.EndMinute) * time.Minute),
	}
}

type ExceptionKind string

const (
	// ExceptionKindOpen adds an extra bookable window on the exception date.
	ExceptionKindOpen ExceptionKind = "open"
	// ExceptionKindBlocked removes a window on the exception date, shadowing
	// any recurring rule it intersects.
	ExceptionKindBlocked ExceptionKind = "blocked"
)

// AvailabilityException is a date-scoped override of the recurring rules.
// Date is a UTC midnight; the window is minutes from that midnight.
type AvailabilityException struct {
	bun.BaseModel `bun:"table:availability_exceptions"`

	ID          uuid.UUID     `bun:"id,pk,type:uuid"`
	VetID       string        `bun:"vet_id,notnull"`
	Date        time.Time     `bun:"date,notnull"`
	Kind        ExceptionKind `bun:"kind,notnull"`
	StartMinute int           `bun:"start_minute,notnull"`
	EndMinute   int           `bun:"end_minute,notnull"`
	Reason      string        `bun:"reason"`
	CreatedAt   time.Time     `bun:"created_at,notnull"`
	UpdatedAt   time.Time     `bun:"updated_at,notnull"`
}

func (e *AvailabilityException) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if e.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			e.ID = id
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		if e.UpdatedAt.IsZero() {
			e.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		e.UpdatedAt = now
	}
	return nil
}

func (e AvailabilityException) WindowOn(date time.Time) Interval {
	day := DateOf(date)
	return Interval{
		Start: day.Add(time.Duration(e.StartMinute) * time.Minute),
		End:   day.Add(time.Duration(e.EndMinute) * time.Minute),
	}
}

// DateOf truncates t to its UTC calendar date (midnight).
func DateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// WeekdayNumber maps time.Weekday onto ISO numbering (Monday=1 .. Sunday=7).
func WeekdayNumber(t time.Time) int {
	wd := t.UTC().Weekday()
	if wd == time.Sunday {
		return 7
	}
	return int(wd)
}

// ResolveDailyAvailability derives the bookable windows for one vet on one UTC
// date, before accounting for existing appointments: rules matching the
// weekday and effective range are unioned, blocked exceptions for the date are
// subtracted, open exceptions are unioned back in, and the result is coalesced
// into maximal disjoint intervals sorted ascending. An empty result means the
// vet has no availability that date.
func ResolveDailyAvailability(date time.Time, rules []AvailabilityRule, exceptions []AvailabilityException) []Interval {
	day := DateOf(date)

	windows := make([]Interval, 0, len(rules))
	for _, r := range rules {
		if r.AppliesOn(day) {
			windows = append(windows, r.WindowOn(day))
		}
	}
	windows = MergeIntervals(windows)

	var blocked, opened []Interval
	for _, e := range exceptions {
		if !DateOf(e.Date).Equal(day) {
			continue
		}
		switch e.Kind {
		case ExceptionKindBlocked:
			blocked = append(blocked, e.WindowOn(day))
		case ExceptionKindOpen:
			opened = append(opened, e.WindowOn(day))
		}
	}

	if len(blocked) > 0 {
		remaining := make([]Interval, 0, len(windows))
		for _, w := range windows {
			remaining = append(remaining, SubtractIntervals(w, blocked)...)
		}
		windows = remaining
	}

	if len(opened) > 0 {
		windows = MergeIntervals(append(windows, opened...))
	}

	return windows
}
