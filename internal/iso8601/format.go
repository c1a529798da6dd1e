package iso8601

import (
	"fmt"
	"strings"
)

// Named source formats understood by ParseFormat. Raw clinical captures
// arrive in a handful of site-specific layouts; each name identifies one
// layout, not a pattern language.
const (
	FormatISO8601        = "ISO8601"        // already-canonical full or partial value
	FormatYYYYMMDD       = "YYYYMMDD"       // 8 digits, degrades on shorter input
	FormatYYYYDashMMDD   = "YYYY-MM-DD"     // dashed, degrades on shorter input
	FormatDDMONYYYY      = "DDMONYYYY"      // 10SEP2008
	FormatDDDashMONYYYY  = "DD-MON-YYYY"    // 10-SEP-2008
	FormatMMSlashDDYYYY  = "MM/DD/YYYY"     // US slashed
	FormatDDSlashMMYYYY  = "DD/MM/YYYY"     // EU slashed
	FormatYYYYMMDDHHMMSS = "YYYYMMDDHHMMSS" // 14 digits, degrades like YYYYMMDD
)

var monthAbbrev = map[string]int{
	"JAN": 1, "FEB": 2, "MAR": 3, "APR": 4, "MAY": 5, "JUN": 6,
	"JUL": 7, "AUG": 8, "SEP": 9, "OCT": 10, "NOV": 11, "DEC": 12,
}

// KnownFormat reports whether name is a registered source format.
func KnownFormat(name string) bool {
	switch name {
	case FormatISO8601, FormatYYYYMMDD, FormatYYYYDashMMDD, FormatDDMONYYYY,
		FormatDDDashMONYYYY, FormatMMSlashDDYYYY, FormatDDSlashMMYYYY,
		FormatYYYYMMDDHHMMSS:
		return true
	}
	return false
}

// ParseFormat decodes raw under the named source format.
//
// Inputs shorter than the format token degrade to a partial value where
// the layout allows it: "200809" under YYYYMMDD yields September 2008.
// A truncated capture means trailing precision is unknown, so the known
// prefix is kept rather than rejected.
func ParseFormat(name, raw string) (Date, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Date{}, fmt.Errorf("empty input")
	}

	switch name {
	case FormatISO8601:
		return Parse(raw)
	case FormatYYYYMMDD:
		return parseCompactDigits(raw, false)
	case FormatYYYYMMDDHHMMSS:
		return parseCompactDigits(raw, true)
	case FormatYYYYDashMMDD:
		// Canonical partials are a prefix of this layout already.
		return Parse(raw)
	case FormatDDMONYYYY:
		return parseDayMonthYear(raw, "")
	case FormatDDDashMONYYYY:
		return parseDayMonthYear(raw, "-")
	case FormatMMSlashDDYYYY:
		return parseSlashed(raw, true)
	case FormatDDSlashMMYYYY:
		return parseSlashed(raw, false)
	default:
		return Date{}, fmt.Errorf("unknown date format %q", name)
	}
}

// parseCompactDigits handles the all-digit layouts. Accepted lengths are
// 4 (year), 6 (year-month), 8 (full date) and, with time enabled, 10,
// 12, and 14 for hour, minute, and second precision.
func parseCompactDigits(raw string, withTime bool) (Date, error) {
	if !digits(raw) {
		return Date{}, fmt.Errorf("non-digit input %q", raw)
	}

	var d Date
	switch {
	case len(raw) >= 4:
		d.Year = atoi(raw[:4])
		d.Precision = PrecisionYear
	default:
		return Date{}, fmt.Errorf("input too short: %q", raw)
	}
	if len(raw) >= 6 {
		d.Month = atoi(raw[4:6])
		d.Precision = PrecisionMonth
	}
	if len(raw) >= 8 {
		d.Day = atoi(raw[6:8])
		d.Precision = PrecisionDay
	}

	rest := raw[min(len(raw), 8):]
	if len(rest) > 0 {
		if !withTime {
			return Date{}, fmt.Errorf("unexpected trailing digits in %q", raw)
		}
		if d.Precision != PrecisionDay || len(rest)%2 != 0 || len(rest) > 6 {
			return Date{}, fmt.Errorf("invalid compact datetime %q", raw)
		}
		fields := []*int{&d.Hour, &d.Minute, &d.Second}
		precs := []Precision{PrecisionHour, PrecisionMinute, PrecisionSecond}
		bounds := []int{23, 59, 59}
		for i := 0; i*2 < len(rest); i++ {
			v := atoi(rest[i*2 : i*2+2])
			if v > bounds[i] {
				return Date{}, fmt.Errorf("time component out of range in %q", raw)
			}
			*fields[i] = v
			d.Precision = precs[i]
		}
	}

	if len(raw)%2 != 0 {
		return Date{}, fmt.Errorf("odd-length input %q", raw)
	}
	if err := d.checkCalendar(); err != nil {
		return Date{}, err
	}
	return d, nil
}

// parseDayMonthYear handles 10SEP2008 style input, optionally separated.
func parseDayMonthYear(raw, sep string) (Date, error) {
	s := strings.ToUpper(raw)
	if sep != "" {
		parts := strings.Split(s, sep)
		if len(parts) != 3 {
			return Date{}, fmt.Errorf("invalid %s-separated date %q", sep, raw)
		}
		day := parts[0]
		if len(day) == 1 {
			day = "0" + day
		}
		s = day + parts[1] + parts[2]
	}
	if len(s) != 9 || !digits(s[:2]) || !digits(s[5:]) {
		return Date{}, fmt.Errorf("invalid day-month-year date %q", raw)
	}
	month, ok := monthAbbrev[s[2:5]]
	if !ok {
		return Date{}, fmt.Errorf("unknown month abbreviation in %q", raw)
	}
	d := Date{
		Year:      atoi(s[5:]),
		Month:     month,
		Day:       atoi(s[:2]),
		Precision: PrecisionDay,
	}
	if err := d.checkCalendar(); err != nil {
		return Date{}, err
	}
	return d, nil
}

// parseSlashed handles the two slash-separated layouts; monthFirst
// selects MM/DD/YYYY over DD/MM/YYYY.
func parseSlashed(raw string, monthFirst bool) (Date, error) {
	parts := strings.Split(raw, "/")
	if len(parts) != 3 || !digits(parts[0]) || !digits(parts[1]) || len(parts[2]) != 4 || !digits(parts[2]) {
		return Date{}, fmt.Errorf("invalid slashed date %q", raw)
	}
	first, second := atoi(parts[0]), atoi(parts[1])
	d := Date{Year: atoi(parts[2]), Precision: PrecisionDay}
	if monthFirst {
		d.Month, d.Day = first, second
	} else {
		d.Month, d.Day = second, first
	}
	if err := d.checkCalendar(); err != nil {
		return Date{}, err
	}
	return d, nil
}
