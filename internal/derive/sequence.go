// Package derive implements the composite, set-aware derivations that
// cannot be computed per cell: dense per-group sequencing, study-day
// offsets, and single-winner baseline selection.
//
// Every derivation here runs over the complete in-progress record set,
// after all per-cell evaluation is done.
package derive

import (
	"sort"
	"strconv"
	"strings"

	"github.com/clinforge/sdtmap/internal/iso8601"
	"github.com/clinforge/sdtmap/internal/sdtm"
)

// groupSep joins group-key components without colliding on values that
// themselves contain separators.
const groupSep = "\x1f"

// Sequence assigns dense 1..N sequence values within each group.
//
// Records are partitioned by the group keys, ordered by the declared
// order keys, and numbered from 1 with no gaps and no restarts within
// a group. The tie-break is the record's stable source position, so
// the assignment is deterministic for any input ordering.
//
// Source-supplied sequence values are ignored entirely: four records
// that all arrived carrying "1" still come out 1, 2, 3, 4.
func Sequence(records []*sdtm.OutputRecord, spec sdtm.SequenceSpec) {
	groups := make(map[string][]*sdtm.OutputRecord)
	var order []string
	for _, r := range records {
		key := groupKey(r, spec.GroupBy)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], r)
	}

	for _, key := range order {
		group := groups[key]
		sort.SliceStable(group, func(i, j int) bool {
			return lessByKeys(group[i], group[j], spec.OrderBy)
		})
		for i, r := range group {
			r.Set(spec.Target, strconv.Itoa(i+1))
		}
	}
}

func groupKey(r *sdtm.OutputRecord, keys []string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = r.Value(k)
	}
	return strings.Join(parts, groupSep)
}

// lessByKeys compares two records over the declared order keys, falling
// back to source position so the order is total.
func lessByKeys(a, b *sdtm.OutputRecord, keys []string) bool {
	for _, k := range keys {
		if c := compareValues(a.Value(k), b.Value(k)); c != 0 {
			return c < 0
		}
	}
	return a.SourceIndex < b.SourceIndex
}

// compareValues orders two cell values: chronologically when both are
// ISO-8601 values, numerically when both are numbers, lexically
// otherwise. Empty sorts after non-empty so an unknown date lands at
// the end of its group.
func compareValues(a, b string) int {
	switch {
	case a == "" && b == "":
		return 0
	case a == "":
		return 1
	case b == "":
		return -1
	}

	if da, err := iso8601.Parse(a); err == nil {
		if db, err := iso8601.Parse(b); err == nil {
			return iso8601.Compare(da, db)
		}
	}
	if na, err := strconv.ParseFloat(a, 64); err == nil {
		if nb, err := strconv.ParseFloat(b, 64); err == nil {
			switch {
			case na < nb:
				return -1
			case na > nb:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(a, b)
}
