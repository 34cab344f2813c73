package domain

import (
	"fmt"
	"sort"
	"time"
)

// Interval is a half-open time range [Start, End). Two intervals that share a
// boundary instant (a.End == b.Start) do not overlap, so back-to-back
// appointments are legal.
type Interval struct {
	Start time.Time
	End   time.Time
}

func NewInterval(start, end time.Time) Interval {
	return Interval{Start: start.UTC(), End: end.UTC()}
}

func (iv Interval) IsValid() bool {
	return iv.Start.Before(iv.End)
}

func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Contains reports whether other lies fully within iv.
func (iv Interval) Contains(other Interval) bool {
	return !other.Start.Before(iv.Start) && !other.End.After(iv.End)
}

func (iv Interval) String() string {
	return fmt.Sprintf("[%s, %s)", iv.Start.Format(time.RFC3339), iv.End.Format(time.RFC3339))
}

// MergeIntervals returns the maximal disjoint intervals covering the input,
// sorted ascending. Overlapping and adjacent intervals coalesce; invalid
// (zero or negative length) inputs are dropped.
func MergeIntervals(ivs []Interval) []Interval {
	valid := make([]Interval, 0, len(ivs))
	for _, iv := range ivs {
		if iv.IsValid() {
			valid = append(valid, iv)
		}
	}
	if len(valid) == 0 {
		return nil
	}

	sort.Slice(valid, func(i, j int) bool {
		return valid[i].Start.Before(valid[j].Start)
	})

	out := make([]Interval, 0, len(valid))
	cur := valid[0]
	for _, iv := range valid[1:] {
		if iv.Start.After(cur.End) {
			out = append(out, cur)
			cur = iv
			continue
		}
		if iv.End.After(cur.End) {
			cur.End = iv.End
		}
	}
	return append(out, cur)
}

// SubtractIntervals removes every interval in blocked from window and returns
// the remaining sub-intervals, sorted ascending and disjoint. The blocked set
// need not be sorted or disjoint.
func SubtractIntervals(window Interval, blocked []Interval) []Interval {
	if !window.IsValid() {
		return nil
	}

	merged := MergeIntervals(blocked)
	out := make([]Interval, 0, len(merged)+1)
	cursor := window.Start

	for _, b := range merged {
		if !b.End.After(window.Start) || !b.Start.Before(window.End) {
			continue
		}
		if b.Start.After(cursor) {
			out = append(out, Interval{Start: cursor, End: b.Start})
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
	}

	if cursor.Before(window.End) {
		out = append(out, Interval{Start: cursor, End: window.End})
	}
	return out
}
