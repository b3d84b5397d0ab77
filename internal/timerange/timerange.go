// Package timerange holds the clock-time and civil-date primitives shared by
// the schedule and availability packages. All intervals are half-open
// [start, end) and measured in whole minutes.
package timerange

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var ErrInvalidInterval = errors.New("invalid interval: start must be before end")

// TimeOfDay is minutes from midnight, 0..1440.
type TimeOfDay int

const EndOfDay TimeOfDay = 24 * 60

// ParseClock parses "HH:MM" in 24-hour form. A single-digit hour is
// accepted; anything beyond the two fields is not.
func ParseClock(s string) (TimeOfDay, error) {
	colon := strings.IndexByte(s, ':')
	if colon < 1 || colon > 2 || len(s)-colon-1 != 2 {
		return 0, fmt.Errorf("parse clock %q: want HH:MM", s)
	}
	h, err := parseClockField(s[:colon])
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	m, err := parseClockField(s[colon+1:])
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	if h > 24 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("parse clock %q: out of range", s)
	}
	return TimeOfDay(h*60 + m), nil
}

func parseClockField(s string) (int, error) {
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, errors.New("want HH:MM")
		}
		n = n*10 + int(s[i]-'0')
	}
	return n, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Date is a civil date with no time-of-day or zone attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses "2006-01-02".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t, time.UTC), nil
}

// DateOf truncates t to its civil date in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	y, m, d := t.In(loc).Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Weekday()
}

// At combines the date with a time of day in loc.
func (d Date) At(t TimeOfDay, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, int(t)/60, int(t)%60, 0, 0, loc)
}

// AddDays returns the date n days later (negative n is allowed).
func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 0, 0, 0, 0, time.UTC), time.UTC)
}

// Before reports whether d falls strictly before other.
func (d Date) Before(other Date) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

func (d Date) After(other Date) bool {
	return other.Before(d)
}

// TimeRange is a half-open [Start, End) interval within one day.
type TimeRange struct {
	Start TimeOfDay
	End   TimeOfDay
}

func (r TimeRange) Validate() error {
	if r.Start >= r.End {
		return ErrInvalidInterval
	}
	if r.Start < 0 || r.End > EndOfDay {
		return ErrInvalidInterval
	}
	return nil
}

// Overlaps reports whether two half-open ranges share any minute.
func (r TimeRange) Overlaps(other TimeRange) bool {
	return r.Start < other.End && other.Start < r.End
}

// Contains reports whether other lies entirely inside r.
func (r TimeRange) Contains(other TimeRange) bool {
	return r.Start <= other.Start && other.End <= r.End
}

func (r TimeRange) String() string {
	return r.Start.String() + "-" + r.End.String()
}

// MergeRanges unions overlapping or adjacent ranges into a sorted, disjoint
// list. The input is not modified.
func MergeRanges(ranges []TimeRange) []TimeRange {
	if len(ranges) == 0 {
		return nil
	}

	sorted := make([]TimeRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	merged := []TimeRange{sorted[0]}
	for _, r := range sorted[1:] {
		last := &merged[len(merged)-1]
		if r.Start <= last.End {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// SubtractRanges removes blocked from base, returning the disjoint remainder
// in ascending order. blocked must already be merged and sorted (use
// MergeRanges); base minus nothing is base itself.
func SubtractRanges(base TimeRange, blocked []TimeRange) []TimeRange {
	var out []TimeRange
	cursor := base.Start

	for _, b := range blocked {
		if b.End <= cursor || b.Start >= base.End {
			continue
		}
		if b.Start > cursor {
			out = append(out, TimeRange{Start: cursor, End: b.Start})
		}
		if b.End > cursor {
			cursor = b.End
		}
	}
	if cursor < base.End {
		out = append(out, TimeRange{Start: cursor, End: base.End})
	}
	return out
}

// Carve walks r in fixed steps of stepMinutes from r.Start and returns every
// start whose full [t, t+step) window fits inside r. No partial tail slot.
func Carve(r TimeRange, stepMinutes int) []TimeOfDay {
	if stepMinutes <= 0 {
		return nil
	}
	step := TimeOfDay(stepMinutes)

	var out []TimeOfDay
	for t := r.Start; t+step <= r.End; t += step {
		out = append(out, t)
	}
	return out
}
