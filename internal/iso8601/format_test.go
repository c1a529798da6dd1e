package iso8601

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name   string
		format string
		raw    string
		want   string
	}{
		{"iso passthrough", FormatISO8601, "2008-09-10", "2008-09-10"},
		{"iso partial passthrough", FormatISO8601, "2008-09", "2008-09"},
		{"compact full", FormatYYYYMMDD, "20080910", "2008-09-10"},
		{"compact degrades to month", FormatYYYYMMDD, "200809", "2008-09"},
		{"compact degrades to year", FormatYYYYMMDD, "2008", "2008"},
		{"compact with whitespace", FormatYYYYMMDD, "  20080910 ", "2008-09-10"},
		{"dashed full", FormatYYYYDashMMDD, "2008-09-10", "2008-09-10"},
		{"dashed degrades to month", FormatYYYYDashMMDD, "2008-09", "2008-09"},
		{"day month year", FormatDDMONYYYY, "10SEP2008", "2008-09-10"},
		{"day month year lowercase", FormatDDMONYYYY, "10sep2008", "2008-09-10"},
		{"separated day month year", FormatDDDashMONYYYY, "10-SEP-2008", "2008-09-10"},
		{"separated single-digit day", FormatDDDashMONYYYY, "9-SEP-2008", "2008-09-09"},
		{"us slashed", FormatMMSlashDDYYYY, "09/10/2008", "2008-09-10"},
		{"eu slashed", FormatDDSlashMMYYYY, "10/09/2008", "2008-09-10"},
		{"compact datetime full", FormatYYYYMMDDHHMMSS, "20080910143005", "2008-09-10T14:30:05"},
		{"compact datetime to minute", FormatYYYYMMDDHHMMSS, "200809101430", "2008-09-10T14:30"},
		{"compact datetime degrades to month", FormatYYYYMMDDHHMMSS, "200809", "2008-09"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFormat(tt.format, tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParseFormatRejects(t *testing.T) {
	tests := []struct {
		name   string
		format string
		raw    string
	}{
		{"empty input", FormatYYYYMMDD, ""},
		{"blank input", FormatYYYYMMDD, "   "},
		{"unknown format", "DD.MM.YYYY", "10.09.2008"},
		{"non-digit compact", FormatYYYYMMDD, "2008SEP10"},
		{"odd length compact", FormatYYYYMMDD, "20080"},
		{"too short compact", FormatYYYYMMDD, "200"},
		{"trailing digits without time", FormatYYYYMMDD, "2008091014"},
		{"time on partial compact", FormatYYYYMMDDHHMMSS, "20080914" + "99"},
		{"bad month abbreviation", FormatDDMONYYYY, "10XXX2008"},
		{"two-part slashed", FormatMMSlashDDYYYY, "09/2008"},
		{"two-digit year slashed", FormatMMSlashDDYYYY, "09/10/08"},
		{"calendar violation", FormatDDSlashMMYYYY, "31/02/2008"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFormat(tt.format, tt.raw)
			assert.Error(t, err)
		})
	}
}

func TestKnownFormat(t *testing.T) {
	assert.True(t, KnownFormat(FormatISO8601))
	assert.True(t, KnownFormat(FormatDDMONYYYY))
	assert.False(t, KnownFormat("RFC3339"))
	assert.False(t, KnownFormat(""))
}
