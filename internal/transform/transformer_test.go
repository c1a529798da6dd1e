package transform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinforge/sdtmap/internal/expr"
	"github.com/clinforge/sdtmap/internal/sdtm"
	"github.com/clinforge/sdtmap/internal/source"
	"github.com/clinforge/sdtmap/internal/testutil"
)

func rule(t *testing.T, variable, expression string) sdtm.VariableRule {
	t.Helper()
	n, err := expr.Parse(expression)
	require.NoError(t, err)
	return sdtm.VariableRule{
		Domain:      "VS",
		Variable:    variable,
		Type:        sdtm.TypeChar,
		Requirement: sdtm.RequirementRequired,
		Expression:  n,
	}
}

func flatFixture(t *testing.T) (*sdtm.DomainConfig, *sdtm.RuleSet, *source.TableSet) {
	t.Helper()

	cfg := &sdtm.DomainConfig{
		Domain:          "DM",
		PrimaryTable:    "DEMOG",
		JoinKey:         "SUBJID",
		SubjectVariable: "USUBJID",
	}
	rules := &sdtm.RuleSet{
		Domain: "DM",
		Rules: []sdtm.VariableRule{
			rule(t, "STUDYID", `ASSIGN("STUDY1")`),
			rule(t, "USUBJID", `CONCAT("STUDY1-", SUBJID)`),
			rule(t, "SEX", `UPCASE(TRIM(SEX))`),
		},
	}
	tables := testutil.Tables(
		testutil.Table("DEMOG",
			[]string{"SUBJID", "SEX"},
			[]string{"S002", " f "},
			[]string{"S001", "m"},
		),
	)
	return cfg, rules, tables
}

func TestTransformFlatDomain(t *testing.T) {
	cfg, rules, tables := flatFixture(t)

	records, err := New(nil).Transform(context.Background(), cfg, rules, tables)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Output is sorted by subject key regardless of input order.
	assert.Equal(t, "STUDY1-S001", records[0].Value("USUBJID"))
	assert.Equal(t, "STUDY1-S002", records[1].Value("USUBJID"))
	assert.Equal(t, "M", records[0].Value("SEX"))
	assert.Equal(t, "F", records[1].Value("SEX"))
	assert.Equal(t, []string{"STUDYID", "USUBJID", "SEX"}, records[0].Variables)
}

func verticalFixture(t *testing.T) (*sdtm.DomainConfig, *sdtm.RuleSet, *source.TableSet) {
	t.Helper()

	cfg := &sdtm.DomainConfig{
		Domain:          "VS",
		PrimaryTable:    "VITALS",
		JoinKey:         "SUBJID",
		SubjectVariable: "USUBJID",
		Vertical:        true,
		Measures: []sdtm.Measure{
			{Column: "SYSBP", Code: "SYSBP", Name: "Systolic Blood Pressure", Unit: "mmHg"},
			{Column: "DIABP", Code: "DIABP", Name: "Diastolic Blood Pressure", Unit: "mmHg"},
		},
		Sequence: &sdtm.SequenceSpec{
			Target:  "VSSEQ",
			GroupBy: []string{"USUBJID"},
			OrderBy: []string{"VSDTC", "VSTESTCD"},
		},
	}
	rules := &sdtm.RuleSet{
		Domain: "VS",
		Rules: []sdtm.VariableRule{
			rule(t, "USUBJID", `CONCAT("STUDY1-", SUBJID)`),
			rule(t, "VSTESTCD", `MEASURE.CODE`),
			rule(t, "VSTEST", `MEASURE.NAME`),
			rule(t, "VSORRES", `MEASURE.VALUE`),
			rule(t, "VSORRESU", `MEASURE.UNIT`),
			rule(t, "VSDTC", `ISO8601DATEFORMAT(VSDATE, "YYYYMMDD")`),
		},
	}
	tables := testutil.Tables(
		testutil.Table("VITALS",
			[]string{"SUBJID", "VSDATE", "SYSBP", "DIABP"},
			[]string{"S001", "20080910", "120", "80"},
			[]string{"S001", "20080901", "118", ""},
		),
	)
	return cfg, rules, tables
}

func TestTransformVerticalDomain(t *testing.T) {
	cfg, rules, tables := verticalFixture(t)

	records, err := New(nil).Transform(context.Background(), cfg, rules, tables)
	require.NoError(t, err)

	// Row one has both measurements, row two only SYSBP: three records.
	require.Len(t, records, 3)

	assert.Equal(t, "SYSBP", records[0].Value("VSTESTCD"))
	assert.Equal(t, "118", records[0].Value("VSORRES"))
	assert.Equal(t, "2008-09-01", records[0].Value("VSDTC"))
	assert.Equal(t, "1", records[0].Value("VSSEQ"))

	assert.Equal(t, "DIABP", records[1].Value("VSTESTCD"))
	assert.Equal(t, "2", records[1].Value("VSSEQ"))
	assert.Equal(t, "SYSBP", records[2].Value("VSTESTCD"))
	assert.Equal(t, "3", records[2].Value("VSSEQ"))
	assert.Equal(t, "mmHg", records[2].Value("VSORRESU"))
}

func TestTransformJoinedLookup(t *testing.T) {
	cfg := &sdtm.DomainConfig{
		Domain:          "VS",
		PrimaryTable:    "VITALS",
		JoinKey:         "SUBJID",
		SubjectVariable: "USUBJID",
	}
	rules := &sdtm.RuleSet{
		Domain: "VS",
		Rules: []sdtm.VariableRule{
			rule(t, "USUBJID", `SUBJID`),
			rule(t, "SEX", `DEMOG.SEX`),
		},
	}
	tables := testutil.Tables(
		testutil.Table("VITALS", []string{"SUBJID"}, []string{"S001"}),
		testutil.Table("DEMOG", []string{"SUBJID", "SEX"}, []string{"S001", "M"}),
	)

	records, err := New(nil).Transform(context.Background(), cfg, rules, tables)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "M", records[0].Value("SEX"))
}

func TestTransformRejectsUnknownColumn(t *testing.T) {
	cfg, rules, tables := flatFixture(t)
	rules.Rules = append(rules.Rules, rule(t, "AGE", `AGEYRS`))

	_, err := New(nil).Transform(context.Background(), cfg, rules, tables)
	require.Error(t, err)
	assert.True(t, IsSchemaViolation(err))
}

func TestTransformRejectsMeasureRefInFlatDomain(t *testing.T) {
	cfg, rules, tables := flatFixture(t)
	rules.Rules = append(rules.Rules, rule(t, "VSORRES", `MEASURE.VALUE`))

	_, err := New(nil).Transform(context.Background(), cfg, rules, tables)
	require.Error(t, err)
	assert.True(t, IsSchemaViolation(err))
}

func TestTransformRejectsUnpinnedDuplicateJoinKeys(t *testing.T) {
	cfg := &sdtm.DomainConfig{
		Domain:          "VS",
		PrimaryTable:    "VITALS",
		JoinKey:         "SUBJID",
		SubjectVariable: "USUBJID",
	}
	rules := &sdtm.RuleSet{
		Domain: "VS",
		Rules: []sdtm.VariableRule{
			rule(t, "USUBJID", `SUBJID`),
			rule(t, "SEX", `DEMOG.SEX`),
		},
	}
	tables := testutil.Tables(
		testutil.Table("VITALS", []string{"SUBJID"}, []string{"S001"}),
		testutil.Table("DEMOG",
			[]string{"SUBJID", "SEX"},
			[]string{"S001", ""},
			[]string{"S001", "M"},
		),
	)

	_, err := New(nil).Transform(context.Background(), cfg, rules, tables)
	require.Error(t, err)
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrCodeUnpinnedCoalesce, ce.Code)

	// Listing the table in pinned_tables clears the defect.
	cfg.PinnedTables = []string{"DEMOG"}
	records, err := New(nil).Transform(context.Background(), cfg, rules, tables)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "M", records[0].Value("SEX"))
}

func TestTransformPinnedTablesIsMembershipOnly(t *testing.T) {
	// The pin list acknowledges input-order coalesce per table; its
	// ordering carries no meaning and must not change resolution.
	build := func(pins []string) *sdtm.DomainConfig {
		return &sdtm.DomainConfig{
			Domain:          "VS",
			PrimaryTable:    "VITALS",
			JoinKey:         "SUBJID",
			SubjectVariable: "USUBJID",
			PinnedTables:    pins,
		}
	}
	rules := &sdtm.RuleSet{
		Domain: "VS",
		Rules: []sdtm.VariableRule{
			rule(t, "USUBJID", `SUBJID`),
			rule(t, "SEX", `DEMOG.SEX`),
			rule(t, "SITEID", `SITE.SITEID`),
		},
	}
	tables := func() *source.TableSet {
		return testutil.Tables(
			testutil.Table("VITALS", []string{"SUBJID"}, []string{"S001"}),
			testutil.Table("DEMOG",
				[]string{"SUBJID", "SEX"},
				[]string{"S001", ""},
				[]string{"S001", "M"},
			),
			testutil.Table("SITE",
				[]string{"SUBJID", "SITEID"},
				[]string{"S001", "01"},
				[]string{"S001", "99"},
			),
		)
	}

	for _, pins := range [][]string{
		{"DEMOG", "SITE"},
		{"SITE", "DEMOG"},
	} {
		records, err := New(nil).Transform(context.Background(), build(pins), rules, tables())
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "M", records[0].Value("SEX"))
		assert.Equal(t, "01", records[0].Value("SITEID"))
	}
}

func TestTransformDerivedInputs(t *testing.T) {
	cfg := &sdtm.DomainConfig{
		Domain:          "DM",
		PrimaryTable:    "DEMOG",
		SubjectVariable: "USUBJID",
	}
	rules := &sdtm.RuleSet{
		Domain:             "DM",
		AllowDerivedInputs: true,
		Rules: []sdtm.VariableRule{
			rule(t, "USUBJID", `CONCAT("STUDY1-", SUBJID)`),
			rule(t, "SUBJLABEL", `CONCAT(USUBJID, "/DM")`),
		},
	}
	tables := testutil.Tables(
		testutil.Table("DEMOG", []string{"SUBJID"}, []string{"S001"}),
	)

	records, err := New(nil).Transform(context.Background(), cfg, rules, tables)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "STUDY1-S001/DM", records[0].Value("SUBJLABEL"))

	// The same spec without derived inputs is a schema violation.
	rules.AllowDerivedInputs = false
	_, err = New(nil).Transform(context.Background(), cfg, rules, tables)
	assert.True(t, IsSchemaViolation(err))
}

func TestTransformDiagnosticsRetainRecord(t *testing.T) {
	cfg := &sdtm.DomainConfig{
		Domain:          "DM",
		PrimaryTable:    "DEMOG",
		SubjectVariable: "USUBJID",
	}
	rules := &sdtm.RuleSet{
		Domain: "DM",
		Rules: []sdtm.VariableRule{
			rule(t, "USUBJID", `SUBJID`),
			rule(t, "BRTHDTC", `ISO8601DATEFORMAT(BRTHDT, "YYYY.MM.DD")`),
		},
	}
	tables := testutil.Tables(
		testutil.Table("DEMOG", []string{"SUBJID", "BRTHDT"}, []string{"S001", "19700101"}),
	)

	records, err := New(nil).Transform(context.Background(), cfg, rules, tables)
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, "", records[0].Value("BRTHDTC"))
	require.NotEmpty(t, records[0].Diagnostics)
	assert.Equal(t, "BRTHDTC", records[0].Diagnostics[0].Variable)
	assert.Equal(t, expr.DiagUnknownFormat, records[0].Diagnostics[0].Code)
}

func TestTransformCancellation(t *testing.T) {
	cfg, rules, tables := flatFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(nil).Transform(ctx, cfg, rules, tables)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTransformDomainMismatch(t *testing.T) {
	cfg, rules, tables := flatFixture(t)
	rules.Domain = "VS"

	_, err := New(nil).Transform(context.Background(), cfg, rules, tables)
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}
