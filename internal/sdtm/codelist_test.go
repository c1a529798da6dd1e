package sdtm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodelistContains(t *testing.T) {
	cl := NewCodelist("SEX", []string{"M", "F", "U"}, nil)

	assert.True(t, cl.Contains("M"))
	assert.False(t, cl.Contains("m"))
	assert.False(t, cl.Contains("MALE"))
	assert.Equal(t, []string{"M", "F", "U"}, cl.Terms())
}

func TestCodelistDecode(t *testing.T) {
	cl := NewCodelist("SEX", []string{"M", "F"}, map[string]string{
		"male":   "M",
		"female": "F",
	})

	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"male", "M", true},
		{"MALE", "M", true},
		{"  Male  ", "M", true},
		{"female", "F", true},
		{"M", "M", true},  // terms decode to themselves
		{"m", "M", true},  // case-normalized self-decode
		{"unknown", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := cl.Decode(tt.raw)
			require.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCodelistDecodeMapWins(t *testing.T) {
	// An explicit decode entry for a term's normalized spelling takes
	// precedence over the self-decode default.
	cl := NewCodelist("UNIT", []string{"mmHg"}, map[string]string{"MMHG": "mmHg"})

	got, ok := cl.Decode("mmhg")
	require.True(t, ok)
	assert.Equal(t, "mmHg", got)
}

func TestCodelistNearMiss(t *testing.T) {
	cl := NewCodelist("POS", []string{"SITTING", "STANDING"}, nil)

	t.Run("case variant", func(t *testing.T) {
		term, ok := cl.NearMiss("sitting")
		require.True(t, ok)
		assert.Equal(t, "SITTING", term)
	})

	t.Run("spacing variant", func(t *testing.T) {
		term, ok := cl.NearMiss("  STANDING ")
		require.True(t, ok)
		assert.Equal(t, "STANDING", term)
	})

	t.Run("exact member is not a near miss", func(t *testing.T) {
		_, ok := cl.NearMiss("SITTING")
		assert.False(t, ok)
	})

	t.Run("unrelated value", func(t *testing.T) {
		_, ok := cl.NearMiss("SUPINE")
		assert.False(t, ok)
	})
}

func TestCodelistsProvider(t *testing.T) {
	lists := Codelists{
		"SEX": NewCodelist("SEX", []string{"M", "F"}, map[string]string{"male": "M"}),
	}

	t.Run("lookup", func(t *testing.T) {
		cl, ok := lists.Codelist("SEX")
		require.True(t, ok)
		assert.Equal(t, "SEX", cl.Name)

		_, ok = lists.Codelist("RACE")
		assert.False(t, ok)
	})

	t.Run("decode through provider", func(t *testing.T) {
		got, ok := lists.Decode("SEX", "Male")
		require.True(t, ok)
		assert.Equal(t, "M", got)

		_, ok = lists.Decode("RACE", "asian")
		assert.False(t, ok)
	})
}

func TestStaticRegistry(t *testing.T) {
	reg := NewStaticRegistry().
		AddSubject("S001").
		AddVisit("S002", "BASELINE")

	assert.True(t, reg.HasSubject("S001"))
	assert.True(t, reg.HasSubject("S002"))
	assert.False(t, reg.HasSubject("S003"))

	assert.True(t, reg.HasVisit("S002", "BASELINE"))
	assert.False(t, reg.HasVisit("S002", "WEEK 2"))
	assert.False(t, reg.HasVisit("S001", "BASELINE"))
}
