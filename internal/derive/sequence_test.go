package derive

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clinforge/sdtmap/internal/sdtm"
)

func rec(t *testing.T, domain string, idx int, kv ...string) *sdtm.OutputRecord {
	t.Helper()
	r := sdtm.NewOutputRecord(domain, idx)
	for i := 0; i < len(kv); i += 2 {
		r.Set(kv[i], kv[i+1])
	}
	return r
}

func values(records []*sdtm.OutputRecord, variable string) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Value(variable)
	}
	return out
}

func TestSequenceDensePerGroup(t *testing.T) {
	records := []*sdtm.OutputRecord{
		rec(t, "VS", 0, "USUBJID", "S001", "VSDTC", "2008-09-10"),
		rec(t, "VS", 1, "USUBJID", "S002", "VSDTC", "2008-09-01"),
		rec(t, "VS", 2, "USUBJID", "S001", "VSDTC", "2008-09-01"),
		rec(t, "VS", 3, "USUBJID", "S001", "VSDTC", "2008-09-05"),
	}

	Sequence(records, sdtm.SequenceSpec{
		Target:  "VSSEQ",
		GroupBy: []string{"USUBJID"},
		OrderBy: []string{"VSDTC"},
	})

	// Numbering follows the date order within each subject; the slice
	// order itself is untouched.
	assert.Equal(t, "3", records[0].Value("VSSEQ"))
	assert.Equal(t, "1", records[1].Value("VSSEQ"))
	assert.Equal(t, "1", records[2].Value("VSSEQ"))
	assert.Equal(t, "2", records[3].Value("VSSEQ"))
}

func TestSequenceIgnoresSourceValues(t *testing.T) {
	// Four records that all arrived claiming sequence 1 still come out
	// dense.
	records := []*sdtm.OutputRecord{
		rec(t, "VS", 0, "USUBJID", "S001", "VSSEQ", "1", "VSDTC", "2008-09-01"),
		rec(t, "VS", 1, "USUBJID", "S001", "VSSEQ", "1", "VSDTC", "2008-09-02"),
		rec(t, "VS", 2, "USUBJID", "S001", "VSSEQ", "1", "VSDTC", "2008-09-03"),
		rec(t, "VS", 3, "USUBJID", "S001", "VSSEQ", "1", "VSDTC", "2008-09-04"),
	}

	Sequence(records, sdtm.SequenceSpec{
		Target:  "VSSEQ",
		GroupBy: []string{"USUBJID"},
		OrderBy: []string{"VSDTC"},
	})

	assert.Equal(t, []string{"1", "2", "3", "4"}, values(records, "VSSEQ"))
}

func TestSequenceTieBreaksOnSourcePosition(t *testing.T) {
	records := []*sdtm.OutputRecord{
		rec(t, "VS", 5, "USUBJID", "S001", "VSDTC", "2008-09-01"),
		rec(t, "VS", 2, "USUBJID", "S001", "VSDTC", "2008-09-01"),
	}

	Sequence(records, sdtm.SequenceSpec{
		Target:  "VSSEQ",
		GroupBy: []string{"USUBJID"},
		OrderBy: []string{"VSDTC"},
	})

	assert.Equal(t, "2", records[0].Value("VSSEQ"))
	assert.Equal(t, "1", records[1].Value("VSSEQ"))
}

func TestSequenceEmptyOrderKeySortsLast(t *testing.T) {
	records := []*sdtm.OutputRecord{
		rec(t, "VS", 0, "USUBJID", "S001", "VSDTC", ""),
		rec(t, "VS", 1, "USUBJID", "S001", "VSDTC", "2008-09-01"),
	}

	Sequence(records, sdtm.SequenceSpec{
		Target:  "VSSEQ",
		GroupBy: []string{"USUBJID"},
		OrderBy: []string{"VSDTC"},
	})

	assert.Equal(t, "2", records[0].Value("VSSEQ"))
	assert.Equal(t, "1", records[1].Value("VSSEQ"))
}

func TestSequenceNumericOrderKey(t *testing.T) {
	// Numbers compare numerically, not lexically: 9 before 10.
	records := []*sdtm.OutputRecord{
		rec(t, "LB", 0, "USUBJID", "S001", "VISITNUM", "10"),
		rec(t, "LB", 1, "USUBJID", "S001", "VISITNUM", "9"),
	}

	Sequence(records, sdtm.SequenceSpec{
		Target:  "LBSEQ",
		GroupBy: []string{"USUBJID"},
		OrderBy: []string{"VISITNUM"},
	})

	assert.Equal(t, "2", records[0].Value("LBSEQ"))
	assert.Equal(t, "1", records[1].Value("LBSEQ"))
}

func TestSequenceMultipleGroupKeys(t *testing.T) {
	records := []*sdtm.OutputRecord{
		rec(t, "VS", 0, "USUBJID", "S001", "VSTESTCD", "SYSBP", "VSDTC", "2008-09-01"),
		rec(t, "VS", 1, "USUBJID", "S001", "VSTESTCD", "DIABP", "VSDTC", "2008-09-01"),
		rec(t, "VS", 2, "USUBJID", "S001", "VSTESTCD", "SYSBP", "VSDTC", "2008-09-02"),
	}

	Sequence(records, sdtm.SequenceSpec{
		Target:  "VSSEQ",
		GroupBy: []string{"USUBJID", "VSTESTCD"},
		OrderBy: []string{"VSDTC"},
	})

	assert.Equal(t, []string{"1", "1", "2"}, values(records, "VSSEQ"))
}
