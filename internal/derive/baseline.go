package derive

import (
	"github.com/clinforge/sdtmap/internal/iso8601"
	"github.com/clinforge/sdtmap/internal/sdtm"
)

// BaselineFlag marks the baseline observation within each partition.
//
// A row qualifies when its result is non-missing, its date parses, and
// its date is at or before the cutoff. The chronologically last
// qualifying row receives "Y"; every other row receives no value,
// never "N". A partition with no qualifying row receives no flag at
// all, which is a valid terminal state, not a defect.
//
// Ties on the observation date resolve to the later source position,
// so at most one "Y" exists per partition under any input.
func BaselineFlag(records []*sdtm.OutputRecord, spec sdtm.BaselineSpec) {
	winners := make(map[string]*sdtm.OutputRecord)

	for _, r := range records {
		r.Set(spec.Target, "")

		if spec.Result != "" && r.Value(spec.Result) == "" {
			continue
		}
		date, err := iso8601.Parse(r.Value(spec.Date))
		if err != nil {
			continue
		}
		if cutoff := r.Value(spec.Cutoff); cutoff != "" {
			cd, err := iso8601.Parse(cutoff)
			if err != nil {
				continue
			}
			if iso8601.Compare(date, cd) > 0 {
				continue
			}
		}

		key := groupKey(r, spec.GroupBy)
		cur, ok := winners[key]
		if !ok {
			winners[key] = r
			continue
		}
		curDate, _ := iso8601.Parse(cur.Value(spec.Date))
		switch iso8601.Compare(date, curDate) {
		case 1:
			winners[key] = r
		case 0:
			if r.SourceIndex > cur.SourceIndex {
				winners[key] = r
			}
		}
	}

	for _, r := range winners {
		r.Set(spec.Target, "Y")
	}
}
