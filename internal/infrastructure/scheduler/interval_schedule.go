package scheduler

import (
	"fmt"
	"time"
)

// IntervalSchedule runs a job every Interval. With Align set, runs land on
// multiples of Interval since the Unix epoch, so every replica refreshes at
// the same wall-clock instants.
type IntervalSchedule struct {
	Interval time.Duration
	Align    bool
}

// NewIntervalSchedule creates an unaligned IntervalSchedule.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval}
}

// Next returns the first run time strictly after t.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	if s.Interval <= 0 {
		return t.Add(time.Minute)
	}
	if !s.Align {
		return t.Add(s.Interval)
	}
	next := t.Truncate(s.Interval).Add(s.Interval)
	if !next.After(t) {
		next = next.Add(s.Interval)
	}
	return next
}

func (s *IntervalSchedule) String() string {
	if s.Align {
		return fmt.Sprintf("@every %s (aligned)", s.Interval)
	}
	return fmt.Sprintf("@every %s", s.Interval)
}
