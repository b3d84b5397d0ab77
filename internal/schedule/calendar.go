// Package schedule models a provider's declared availability: the recurring
// weekly calendar, daily breaks, and date-range closures. All writes are
// validated here so malformed intervals never reach slot generation.
package schedule

import (
	"fmt"
	"time"

	"github.com/medidir/booking-engine/internal/timerange"
)

// DayRule is one weekday's recurring rule.
type DayRule struct {
	Open  bool
	Hours timerange.TimeRange
}

func (r DayRule) Validate() error {
	if !r.Open {
		return nil
	}
	if err := r.Hours.Validate(); err != nil {
		return fmt.Errorf("day rule: %w", err)
	}
	return nil
}

// WeekCalendar holds one rule per weekday, all seven always present.
// Index by time.Weekday (Sunday == 0).
type WeekCalendar [7]DayRule

func (w WeekCalendar) Validate() error {
	for wd, rule := range w {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("%s: %w", time.Weekday(wd), err)
		}
	}
	return nil
}

// Closure makes a provider fully unavailable for an inclusive date range.
type Closure struct {
	StartDate timerange.Date
	EndDate   timerange.Date
	Reason    string
}

func (c Closure) Validate() error {
	if c.EndDate.Before(c.StartDate) {
		return fmt.Errorf("closure %s..%s: %w", c.StartDate, c.EndDate, timerange.ErrInvalidInterval)
	}
	return nil
}

// Covers reports whether d falls inside the closure, bounds inclusive.
func (c Closure) Covers(d timerange.Date) bool {
	return !d.Before(c.StartDate) && !d.After(c.EndDate)
}

// Break is a recurring closed sub-interval applied to every open day.
type Break struct {
	Range timerange.TimeRange
}

func (b Break) Validate() error {
	if err := b.Range.Validate(); err != nil {
		return fmt.Errorf("break: %w", err)
	}
	return nil
}

// Calendar is the read view the slot generator consumes: weekly rules plus
// closures plus breaks, already validated at the write boundary.
type Calendar struct {
	Week     WeekCalendar
	Closures []Closure
	Breaks   []Break
}

// OpenInterval resolves the open interval for a date. ok is false when the
// weekday rule is closed or any closure covers the date.
func (c Calendar) OpenInterval(d timerange.Date) (timerange.TimeRange, bool) {
	for _, cl := range c.Closures {
		if cl.Covers(d) {
			return timerange.TimeRange{}, false
		}
	}
	rule := c.Week[d.Weekday()]
	if !rule.Open {
		return timerange.TimeRange{}, false
	}
	return rule.Hours, true
}

// BlockedIntervals returns the merged union of all break intervals so
// downstream carving never double-subtracts overlapping breaks.
func (c Calendar) BlockedIntervals() []timerange.TimeRange {
	if len(c.Breaks) == 0 {
		return nil
	}
	ranges := make([]timerange.TimeRange, 0, len(c.Breaks))
	for _, b := range c.Breaks {
		ranges = append(ranges, b.Range)
	}
	return timerange.MergeRanges(ranges)
}
