package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinforge/sdtmap/internal/expr"
	"github.com/clinforge/sdtmap/internal/score"
	"github.com/clinforge/sdtmap/internal/sdtm"
	"github.com/clinforge/sdtmap/internal/testutil"
)

func rule(t *testing.T, domain, variable string, order int, requirement sdtm.Requirement, codelist, expression string) sdtm.VariableRule {
	t.Helper()
	n, err := expr.Parse(expression)
	require.NoError(t, err)
	return sdtm.VariableRule{
		Domain:      domain,
		Variable:    variable,
		Order:       order,
		Type:        sdtm.TypeChar,
		Requirement: requirement,
		Codelist:    codelist,
		Expression:  n,
	}
}

// cleanDomain builds a small vitals domain whose output passes every
// layer.
func cleanDomain(t *testing.T) Domain {
	t.Helper()
	return Domain{
		Config: &sdtm.DomainConfig{
			Domain:          "VS",
			PrimaryTable:    "VITALS",
			JoinKey:         "SUBJID",
			SubjectVariable: "USUBJID",
			Vertical:        true,
			Measures: []sdtm.Measure{
				{Column: "SYSBP", Code: "SYSBP", Name: "Systolic Blood Pressure", Unit: "mmHg"},
			},
			Sequence: &sdtm.SequenceSpec{
				Target:  "VSSEQ",
				GroupBy: []string{"USUBJID"},
				OrderBy: []string{"VSDTC"},
			},
		},
		Rules: &sdtm.RuleSet{
			Domain: "VS",
			Rules: []sdtm.VariableRule{
				rule(t, "VS", "USUBJID", 1, sdtm.RequirementRequired, "", `CONCAT("STUDY1-", SUBJID)`),
				rule(t, "VS", "VSSEQ", 2, sdtm.RequirementRequired, "", `ASSIGN("")`),
				rule(t, "VS", "VSTESTCD", 3, sdtm.RequirementRequired, "", `MEASURE.CODE`),
				rule(t, "VS", "VSORRES", 4, sdtm.RequirementExpected, "", `MEASURE.VALUE`),
				rule(t, "VS", "VSDTC", 5, sdtm.RequirementExpected, "", `ISO8601DATEFORMAT(VSDATE, "YYYYMMDD")`),
			},
		},
		Tables: testutil.Tables(
			testutil.Table("VITALS",
				[]string{"SUBJID", "VSDATE", "SYSBP"},
				[]string{"S001", "20080901", "120"},
				[]string{"S001", "20080910", "118"},
			),
		),
	}
}

func TestEngineTransform(t *testing.T) {
	eng := New()
	records, err := eng.Transform(context.Background(), cleanDomain(t))
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "STUDY1-S001", records[0].Value("USUBJID"))
	assert.Equal(t, "1", records[0].Value("VSSEQ"))
	assert.Equal(t, "2", records[1].Value("VSSEQ"))
}

func TestEngineValidateStampsRunID(t *testing.T) {
	eng := New(WithRunIDGenerator(testutil.NewFixedRunIDGenerator("run-fixed")))
	d := cleanDomain(t)

	records, err := eng.Transform(context.Background(), d)
	require.NoError(t, err)

	report := eng.Validate(d, records)
	assert.Equal(t, "run-fixed", report.RunID)
	assert.Equal(t, "VS", report.Domain)
	assert.Equal(t, 100.0, report.Score)
	assert.True(t, report.SubmissionReady)
}

func TestEngineDefaultRunIDsAreUUIDs(t *testing.T) {
	gen := UUIDv7Generator{}
	a, b := gen.Generate(), gen.Generate()

	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
	// Time-ordered identifiers sort by generation order.
	assert.Less(t, a, b)
}

func TestEngineCorrectionLoopReady(t *testing.T) {
	eng := New(WithRunIDGenerator(testutil.NewSequencedRunIDGenerator("t")))

	outcome, err := eng.RunCorrectionLoop(context.Background(), cleanDomain(t))
	require.NoError(t, err)

	assert.True(t, outcome.Report.SubmissionReady)
	assert.Equal(t, 0, outcome.State.Iteration)
	assert.Len(t, outcome.Records, 2)
}

func TestEngineCorrectionLoopExhausts(t *testing.T) {
	d := cleanDomain(t)
	// Bind VSTESTCD to a codelist it can never satisfy: the data is
	// wrong every pass, so the loop must exhaust.
	d.Rules.Rules[2].Codelist = "TESTCD"

	eng := New(
		WithCodelists(sdtm.Codelists{
			"TESTCD": sdtm.NewCodelist("TESTCD", []string{"HEIGHT"}, nil),
		}),
		WithScoreConfig(score.Config{
			Weights:            map[sdtm.Severity]float64{sdtm.SeverityMajor: 30},
			Threshold:          90,
			AllowedMajor:       0,
			MaxPerIssuePenalty: 60,
		}),
		WithMaxIterations(2),
		WithRunIDGenerator(testutil.NewSequencedRunIDGenerator("t")),
	)

	outcome, err := eng.RunCorrectionLoop(context.Background(), d)
	require.NoError(t, err)

	assert.False(t, outcome.Report.SubmissionReady)
	assert.Equal(t, 2, outcome.State.Iteration)
	assert.True(t, outcome.State.Exhausted())
	assert.NotEmpty(t, outcome.State.Feedback)
	// Each scoring pass stamped a fresh run id; the final report carries
	// the last one.
	assert.Equal(t, "t-000003", outcome.Report.RunID)
}

func TestEngineCorrectionLoopConfigError(t *testing.T) {
	d := cleanDomain(t)
	d.Config.PrimaryTable = "MISSING"

	_, err := New().RunCorrectionLoop(context.Background(), d)
	assert.Error(t, err)
}

func TestRunAll(t *testing.T) {
	eng := New(WithRunIDGenerator(testutil.NewSequencedRunIDGenerator("t")))

	good := cleanDomain(t)
	bad := cleanDomain(t)
	bad.Config = &sdtm.DomainConfig{Domain: "LB", PrimaryTable: "MISSING", SubjectVariable: "USUBJID"}
	bad.Rules = &sdtm.RuleSet{Domain: "LB", Rules: []sdtm.VariableRule{
		rule(t, "LB", "USUBJID", 1, sdtm.RequirementRequired, "", `SUBJID`),
	}}

	results := eng.RunAll(context.Background(), []Domain{good, bad})
	require.Len(t, results, 2)

	// Results preserve input order; one domain's failure leaves the
	// sibling's outcome intact.
	assert.Equal(t, "VS", results[0].Domain)
	require.NoError(t, results[0].Err)
	assert.True(t, results[0].Outcome.Report.SubmissionReady)

	assert.Equal(t, "LB", results[1].Domain)
	assert.Error(t, results[1].Err)
}

func TestEngineCrossDomainWiring(t *testing.T) {
	d := cleanDomain(t)
	registry := sdtm.NewStaticRegistry().AddSubject("STUDY1-S999")

	eng := New(
		WithRegistry(registry),
		WithRunIDGenerator(testutil.NewFixedRunIDGenerator("r")),
	)

	records, err := eng.Transform(context.Background(), d)
	require.NoError(t, err)
	report := eng.Validate(d, records)

	assert.False(t, report.SubmissionReady)
	found := false
	for _, iss := range report.Issues {
		if iss.Layer == sdtm.LayerCrossDomain {
			found = true
			assert.Equal(t, sdtm.SeverityCritical, iss.Severity)
		}
	}
	assert.True(t, found)
}
