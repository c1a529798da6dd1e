package derive

import (
	"strconv"

	"github.com/clinforge/sdtmap/internal/iso8601"
	"github.com/clinforge/sdtmap/internal/sdtm"
)

// StudyDay populates the study-day variable for every record.
//
// Day 1 is the reference date itself; days before it are negative.
// The value 0 never occurs: there is no day zero. A record whose event
// or reference date is missing, partial, or unparseable gets an empty
// study day; that is a data condition for the Validator, not an error.
func StudyDay(records []*sdtm.OutputRecord, spec sdtm.StudyDaySpec) {
	for _, r := range records {
		day, ok := StudyDayValue(r.Value(spec.Event), r.Value(spec.Reference))
		if !ok {
			r.Set(spec.Target, "")
			continue
		}
		r.Set(spec.Target, strconv.Itoa(day))
	}
}

// StudyDayValue computes the study-day number for an event date
// relative to a reference date, both canonical ISO-8601 strings.
//
//	event >= ref: days(ref, event) + 1   (day of ref is day 1)
//	event <  ref: days(ref, event)       (negative, no day zero)
//
// ok is false when either input is missing or lacks day precision.
func StudyDayValue(event, ref string) (day int, ok bool) {
	if event == "" || ref == "" {
		return 0, false
	}
	ed, err := iso8601.Parse(event)
	if err != nil {
		return 0, false
	}
	rd, err := iso8601.Parse(ref)
	if err != nil {
		return 0, false
	}
	days, ok := iso8601.DaysBetween(rd, ed)
	if !ok {
		return 0, false
	}
	if days >= 0 {
		return days + 1, true
	}
	return days, true
}
