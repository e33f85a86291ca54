package engine

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Calendar date, day granularity (leave is priced in whole days)
// =============================================================================

type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func Today() Date {
	return DateOf(time.Now().UTC())
}

// ParseDate parses an ISO date (YYYY-MM-DD).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return DateOf(t), nil
}

// Comparison
func (d Date) Before(other Date) bool        { return d.normalize().Before(other.normalize()) }
func (d Date) Equal(other Date) bool         { return d.normalize().Equal(other.normalize()) }
func (d Date) After(other Date) bool         { return d.normalize().After(other.normalize()) }
func (d Date) BeforeOrEqual(other Date) bool { return d.Before(other) || d.Equal(other) }
func (d Date) AfterOrEqual(other Date) bool  { return d.After(other) || d.Equal(other) }

func (d Date) normalize() time.Time {
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{Time: d.Time.AddDate(0, 0, n)} }

// Properties
func (d Date) Year() int    { return d.Time.Year() }
func (d Date) IsZero() bool { return d.Time.IsZero() }

func (d Date) String() string { return d.normalize().Format("2006-01-02") }

// =============================================================================
// DATE RANGE - Inclusive [Start, End]
// =============================================================================

type DateRange struct {
	Start Date
	End   Date
}

// Valid reports whether End >= Start.
func (r DateRange) Valid() bool { return r.End.AfterOrEqual(r.Start) }

// Days returns every calendar date in the range, inclusive of both ends.
func (r DateRange) Days() []Date {
	if !r.Valid() {
		return nil
	}
	var days []Date
	for d := r.Start; d.BeforeOrEqual(r.End); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

// Len returns the number of calendar days in the range.
func (r DateRange) Len() int {
	if !r.Valid() {
		return 0
	}
	return int(r.End.normalize().Sub(r.Start.normalize()).Hours()/24) + 1
}

// Overlaps reports whether two inclusive ranges share at least one day.
func (r DateRange) Overlaps(other DateRange) bool {
	return r.Start.BeforeOrEqual(other.End) && other.Start.BeforeOrEqual(r.End)
}

// =============================================================================
// DATE SET - Membership lookups for already-approved days
// =============================================================================

// DateSet holds a set of calendar dates keyed by their ISO form.
type DateSet map[string]struct{}

func NewDateSet(dates ...Date) DateSet {
	s := make(DateSet, len(dates))
	for _, d := range dates {
		s.Add(d)
	}
	return s
}

func (s DateSet) Add(d Date)           { s[d.String()] = struct{}{} }
func (s DateSet) Contains(d Date) bool { _, ok := s[d.String()]; return ok }
func (s DateSet) Len() int             { return len(s) }
