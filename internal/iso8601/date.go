// Package iso8601 implements full and partial ISO-8601 calendar values.
//
// A partial value carries only leading components ("2008-09" means
// September 2008, day unknown). Partials represent "unknown", not an
// instant, so arithmetic that needs day precision reports that it
// cannot be computed instead of guessing.
package iso8601

import (
	"fmt"
	"strings"
	"time"
)

// Precision identifies the last populated component of a Date.
type Precision int

const (
	PrecisionNone Precision = iota
	PrecisionYear
	PrecisionMonth
	PrecisionDay
	PrecisionHour
	PrecisionMinute
	PrecisionSecond
)

// Date is a full or partial ISO-8601 calendar value.
//
// Components beyond Precision are zero and carry no meaning.
// The zero Date has PrecisionNone and formats as the empty string.
type Date struct {
	Year      int
	Month     int
	Day       int
	Hour      int
	Minute    int
	Second    int
	Precision Precision
}

// IsZero reports whether the value carries no components at all.
func (d Date) IsZero() bool {
	return d.Precision == PrecisionNone
}

// HasDay reports whether the value is precise to at least the day.
func (d Date) HasDay() bool {
	return d.Precision >= PrecisionDay
}

// String emits the canonical ISO-8601 form for the value's precision.
// A zero Date formats as "".
func (d Date) String() string {
	var b strings.Builder
	switch {
	case d.Precision >= PrecisionSecond:
		fmt.Fprintf(&b, "%04d-%02d-%02dT%02d:%02d:%02d", d.Year, d.Month, d.Day, d.Hour, d.Minute, d.Second)
	case d.Precision >= PrecisionMinute:
		fmt.Fprintf(&b, "%04d-%02d-%02dT%02d:%02d", d.Year, d.Month, d.Day, d.Hour, d.Minute)
	case d.Precision >= PrecisionHour:
		fmt.Fprintf(&b, "%04d-%02d-%02dT%02d", d.Year, d.Month, d.Day, d.Hour)
	case d.Precision >= PrecisionDay:
		fmt.Fprintf(&b, "%04d-%02d-%02d", d.Year, d.Month, d.Day)
	case d.Precision >= PrecisionMonth:
		fmt.Fprintf(&b, "%04d-%02d", d.Year, d.Month)
	case d.Precision >= PrecisionYear:
		fmt.Fprintf(&b, "%04d", d.Year)
	}
	return b.String()
}

// Parse decodes a canonical full or partial ISO-8601 string.
//
// Accepted forms: "YYYY", "YYYY-MM", "YYYY-MM-DD", and the latter with a
// "THH", "THH:MM", or "THH:MM:SS" time suffix. Anything else is an error.
func Parse(s string) (Date, error) {
	if s == "" {
		return Date{}, fmt.Errorf("empty date")
	}

	datePart := s
	timePart := ""
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		datePart, timePart = s[:i], s[i+1:]
	}

	var d Date
	switch len(datePart) {
	case 4:
		if !digits(datePart) {
			return Date{}, fmt.Errorf("invalid year %q", datePart)
		}
		d.Year = atoi(datePart)
		d.Precision = PrecisionYear
	case 7:
		if !digits(datePart[:4]) || datePart[4] != '-' || !digits(datePart[5:]) {
			return Date{}, fmt.Errorf("invalid year-month %q", datePart)
		}
		d.Year, d.Month = atoi(datePart[:4]), atoi(datePart[5:])
		d.Precision = PrecisionMonth
	case 10:
		if !digits(datePart[:4]) || datePart[4] != '-' || !digits(datePart[5:7]) || datePart[7] != '-' || !digits(datePart[8:]) {
			return Date{}, fmt.Errorf("invalid date %q", datePart)
		}
		d.Year, d.Month, d.Day = atoi(datePart[:4]), atoi(datePart[5:7]), atoi(datePart[8:])
		d.Precision = PrecisionDay
	default:
		return Date{}, fmt.Errorf("invalid date %q", datePart)
	}

	if err := d.checkCalendar(); err != nil {
		return Date{}, err
	}
	if timePart == "" {
		return d, nil
	}
	if d.Precision != PrecisionDay {
		return Date{}, fmt.Errorf("time component requires a full date: %q", s)
	}
	return parseTime(d, timePart)
}

// IsCanonical reports whether s parses as a canonical full or partial value.
func IsCanonical(s string) bool {
	_, err := Parse(s)
	return err == nil
}

func parseTime(d Date, t string) (Date, error) {
	parts := strings.Split(t, ":")
	if len(parts) > 3 {
		return Date{}, fmt.Errorf("invalid time %q", t)
	}
	bounds := []int{23, 59, 59}
	fields := []*int{&d.Hour, &d.Minute, &d.Second}
	precs := []Precision{PrecisionHour, PrecisionMinute, PrecisionSecond}
	for i, p := range parts {
		if len(p) != 2 || !digits(p) {
			return Date{}, fmt.Errorf("invalid time %q", t)
		}
		v := atoi(p)
		if v > bounds[i] {
			return Date{}, fmt.Errorf("time component out of range in %q", t)
		}
		*fields[i] = v
		d.Precision = precs[i]
	}
	return d, nil
}

// checkCalendar validates populated components against the calendar.
func (d Date) checkCalendar() error {
	if d.Precision >= PrecisionMonth && (d.Month < 1 || d.Month > 12) {
		return fmt.Errorf("month out of range: %d", d.Month)
	}
	if d.Precision >= PrecisionDay {
		if d.Day < 1 || d.Day > daysInMonth(d.Year, d.Month) {
			return fmt.Errorf("day out of range: %04d-%02d-%02d", d.Year, d.Month, d.Day)
		}
	}
	return nil
}

// Compare orders two values chronologically by their shared components.
// Returns -1, 0, or 1. Components beyond the coarser precision are
// ignored, so Compare("2008-09", "2008-09-10") is 0.
func Compare(a, b Date) int {
	p := a.Precision
	if b.Precision < p {
		p = b.Precision
	}
	pairs := [][2]int{{a.Year, b.Year}}
	if p >= PrecisionMonth {
		pairs = append(pairs, [2]int{a.Month, b.Month})
	}
	if p >= PrecisionDay {
		pairs = append(pairs, [2]int{a.Day, b.Day})
	}
	if p >= PrecisionHour {
		pairs = append(pairs, [2]int{a.Hour, b.Hour})
	}
	if p >= PrecisionMinute {
		pairs = append(pairs, [2]int{a.Minute, b.Minute})
	}
	if p >= PrecisionSecond {
		pairs = append(pairs, [2]int{a.Second, b.Second})
	}
	for _, pr := range pairs {
		if pr[0] < pr[1] {
			return -1
		}
		if pr[0] > pr[1] {
			return 1
		}
	}
	return 0
}

// DaysBetween returns the signed number of calendar days from a to b.
// Both values must be precise to the day; ok is false otherwise.
func DaysBetween(a, b Date) (days int, ok bool) {
	if !a.HasDay() || !b.HasDay() {
		return 0, false
	}
	ta := time.Date(a.Year, time.Month(a.Month), a.Day, 0, 0, 0, 0, time.UTC)
	tb := time.Date(b.Year, time.Month(b.Month), b.Day, 0, 0, 0, 0, time.UTC)
	return int(tb.Sub(ta).Hours() / 24), true
}

func daysInMonth(year, month int) int {
	// Day 0 of the next month normalizes to the last day of this one.
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}

func atoi(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		n = n*10 + int(s[i]-'0')
	}
	return n
}
