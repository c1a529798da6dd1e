package sdtm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordHashStable(t *testing.T) {
	a := NewOutputRecord("VS", 0)
	a.Set("USUBJID", "S001")
	a.Set("VSTESTCD", "SYSBP")

	// Same values set in a different order, different source position.
	b := NewOutputRecord("VS", 7)
	b.Set("VSTESTCD", "SYSBP")
	b.Set("USUBJID", "S001")

	ha, err := a.RecordHash()
	require.NoError(t, err)
	hb, err := b.RecordHash()
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
	assert.Len(t, ha, 64)
}

func TestRecordHashDistinguishes(t *testing.T) {
	a := NewOutputRecord("VS", 0)
	a.Set("USUBJID", "S001")

	b := NewOutputRecord("VS", 0)
	b.Set("USUBJID", "S002")

	c := NewOutputRecord("LB", 0)
	c.Set("USUBJID", "S001")

	ha, err := a.RecordHash()
	require.NoError(t, err)
	hb, err := b.RecordHash()
	require.NoError(t, err)
	hc, err := c.RecordHash()
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)
	assert.NotEqual(t, ha, hc)
}

func TestRecordHashIgnoresDiagnostics(t *testing.T) {
	a := NewOutputRecord("VS", 0)
	a.Set("USUBJID", "S001")

	b := NewOutputRecord("VS", 0)
	b.Set("USUBJID", "S001")
	b.Diagnostics = append(b.Diagnostics, FieldDiagnostic{Variable: "VSDTC", Code: "X", Message: "y"})

	ha, err := a.RecordHash()
	require.NoError(t, err)
	hb, err := b.RecordHash()
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestReportHashExcludesRunID(t *testing.T) {
	issue := Issue{RuleID: "CT-001", Layer: LayerTerminology, Severity: SeverityMajor, Variable: "SEX", Count: 2}

	a := ComplianceReport{RunID: "run-1", Domain: "VS", Score: 92.6, Issues: []Issue{issue}}
	b := ComplianceReport{RunID: "run-2", Domain: "VS", Score: 92.6, Issues: []Issue{issue}}

	ha, err := a.ReportHash()
	require.NoError(t, err)
	hb, err := b.ReportHash()
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestReportHashCoversFindings(t *testing.T) {
	a := ComplianceReport{Domain: "VS", Score: 100, SubmissionReady: true}
	b := ComplianceReport{Domain: "VS", Score: 95, SubmissionReady: true}

	ha, err := a.ReportHash()
	require.NoError(t, err)
	hb, err := b.ReportHash()
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)
}

func TestRecordAndReportHashDomainsDiffer(t *testing.T) {
	// An empty record and an empty report must never collide even if
	// their canonical payloads were crafted to match.
	rec := NewOutputRecord("X", 0)
	hr, err := rec.RecordHash()
	require.NoError(t, err)

	rep := ComplianceReport{Domain: "X"}
	hp, err := rep.ReportHash()
	require.NoError(t, err)
	assert.NotEqual(t, hr, hp)
}
