package models

import (
	"fmt"
	"time"
)

// Timestamps are carried as opaque sortable strings end to end and stored
// verbatim. Interval math parses them; ParseTime accepts RFC3339 with or
// without a zone suffix.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
}

func ParseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// TimeRange is a half-open interval [StartAt, EndAt).
type TimeRange struct {
	StartAt string `json:"start_at"`
	EndAt   string `json:"end_at"`
}

func (r TimeRange) Validate() error {
	start, err := ParseTime(r.StartAt)
	if err != nil {
		return err
	}
	end, err := ParseTime(r.EndAt)
	if err != nil {
		return err
	}
	if !end.After(start) {
		return fmt.Errorf("range end %q must be after start %q", r.EndAt, r.StartAt)
	}
	return nil
}

// Duration returns the length of a valid range; zero for malformed input.
func (r TimeRange) Duration() time.Duration {
	start, err := ParseTime(r.StartAt)
	if err != nil {
		return 0
	}
	end, err := ParseTime(r.EndAt)
	if err != nil {
		return 0
	}
	if end.Before(start) {
		return 0
	}
	return end.Sub(start)
}

// CompareTimes orders two timestamp strings; unparseable values sort last so
// the ordering stays total.
func CompareTimes(a, b string) int {
	ta, errA := ParseTime(a)
	tb, errB := ParseTime(b)
	if errA != nil || errB != nil {
		switch {
		case errA == nil:
			return -1
		case errB == nil:
			return 1
		default:
			return 0
		}
	}
	switch {
	case ta.Before(tb):
		return -1
	case ta.After(tb):
		return 1
	default:
		return 0
	}
}
