package derive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinforge/sdtmap/internal/sdtm"
)

func TestStudyDayValue(t *testing.T) {
	tests := []struct {
		name  string
		event string
		ref   string
		want  int
		ok    bool
	}{
		{"reference day is day 1", "2008-09-01", "2008-09-01", 1, true},
		{"day after reference", "2008-09-02", "2008-09-01", 2, true},
		{"ten days in", "2008-09-10", "2008-09-01", 10, true},
		{"day before reference", "2008-08-31", "2008-09-01", -1, true},
		{"week before reference", "2008-08-25", "2008-09-01", -7, true},
		{"no day zero either side", "2008-09-01", "2008-09-02", -1, true},
		{"missing event", "", "2008-09-01", 0, false},
		{"missing reference", "2008-09-10", "", 0, false},
		{"partial event", "2008-09", "2008-09-01", 0, false},
		{"partial reference", "2008-09-10", "2008", 0, false},
		{"garbage event", "10SEP2008", "2008-09-01", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			day, ok := StudyDayValue(tt.event, tt.ref)
			require.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, day)
		})
	}
}

func TestStudyDayPopulatesRecords(t *testing.T) {
	records := []*sdtm.OutputRecord{
		rec(t, "VS", 0, "VSDTC", "2008-09-10", "RFSTDTC", "2008-09-01"),
		rec(t, "VS", 1, "VSDTC", "2008-09", "RFSTDTC", "2008-09-01"),
		rec(t, "VS", 2, "VSDTC", "", "RFSTDTC", "2008-09-01"),
	}

	StudyDay(records, sdtm.StudyDaySpec{
		Target:    "VSDY",
		Event:     "VSDTC",
		Reference: "RFSTDTC",
	})

	assert.Equal(t, "10", records[0].Value("VSDY"))

	// Partial and missing event dates yield an empty study day, but the
	// variable itself is always stamped.
	v, ok := records[1].Get("VSDY")
	assert.True(t, ok)
	assert.Equal(t, "", v)
	v, ok = records[2].Get("VSDY")
	assert.True(t, ok)
	assert.Equal(t, "", v)
}
