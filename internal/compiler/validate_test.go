package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinforge/sdtmap/internal/expr"
	"github.com/clinforge/sdtmap/internal/sdtm"
)

func mustParse(t *testing.T, src string) expr.Node {
	t.Helper()
	node, err := expr.Parse(src)
	require.NoError(t, err)
	return node
}

func validDomain(t *testing.T) CompiledDomain {
	t.Helper()
	return CompiledDomain{
		Config: &sdtm.DomainConfig{
			Domain:          "VS",
			PrimaryTable:    "VITALS",
			SubjectVariable: "USUBJID",
			Vertical:        true,
			Measures:        []sdtm.Measure{{Column: "SYSBP", Code: "SYSBP"}},
			Sequence:        &sdtm.SequenceSpec{Target: "VSSEQ", GroupBy: []string{"USUBJID"}},
		},
		Rules: &sdtm.RuleSet{
			Domain: "VS",
			Rules: []sdtm.VariableRule{
				{
					Domain: "VS", Variable: "USUBJID", Order: 1,
					Type: sdtm.TypeChar, Requirement: sdtm.RequirementRequired,
					Expression: mustParse(t, `CONCAT("STUDY1-", SUBJID)`),
				},
				{
					Domain: "VS", Variable: "VSORRES", Order: 2,
					Type: sdtm.TypeChar, Requirement: sdtm.RequirementExpected,
					Expression: mustParse(t, "ASSIGN(MEASURE.VALUE)"),
				},
				{
					Domain: "VS", Variable: "VSSEQ", Order: 3,
					Type: sdtm.TypeNum, Requirement: sdtm.RequirementRequired,
					Expression: mustParse(t, `ASSIGN("")`),
				},
			},
		},
	}
}

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidateCleanDomain(t *testing.T) {
	assert.Empty(t, Validate(validDomain(t)))
}

func TestValidateRuleSet(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *CompiledDomain)
		code   string
	}{
		{
			name: "empty domain name",
			mutate: func(d *CompiledDomain) {
				d.Rules.Domain = ""
			},
			code: ErrDomainNameEmpty,
		},
		{
			name: "no variables",
			mutate: func(d *CompiledDomain) {
				d.Rules.Rules = nil
				d.Config.Sequence = nil
			},
			code: ErrNoVariables,
		},
		{
			name: "invalid type",
			mutate: func(d *CompiledDomain) {
				d.Rules.Rules[0].Type = "text"
			},
			code: ErrInvalidType,
		},
		{
			name: "invalid requirement",
			mutate: func(d *CompiledDomain) {
				d.Rules.Rules[0].Requirement = "mandatory"
			},
			code: ErrInvalidRequire,
		},
		{
			name: "duplicate variable",
			mutate: func(d *CompiledDomain) {
				d.Rules.Rules[1].Variable = "USUBJID"
			},
			code: ErrDuplicateVariable,
		},
		{
			name: "duplicate order",
			mutate: func(d *CompiledDomain) {
				d.Rules.Rules[1].Order = 1
			},
			code: ErrDuplicateOrder,
		},
		{
			name: "negative length",
			mutate: func(d *CompiledDomain) {
				d.Rules.Rules[0].Length = -1
			},
			code: ErrNegativeLength,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDomain(t)
			tt.mutate(&d)
			assert.Contains(t, codes(Validate(d)), tt.code)
		})
	}
}

func TestValidateZeroOrderNeverCollides(t *testing.T) {
	d := validDomain(t)
	for i := range d.Rules.Rules {
		d.Rules.Rules[i].Order = 0
	}
	assert.Empty(t, Validate(d))
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *testing.T, d *CompiledDomain)
		code   string
	}{
		{
			name: "blank primary table",
			mutate: func(t *testing.T, d *CompiledDomain) {
				d.Config.PrimaryTable = "  "
			},
			code: ErrNoPrimaryTable,
		},
		{
			name: "blank subject variable",
			mutate: func(t *testing.T, d *CompiledDomain) {
				d.Config.SubjectVariable = ""
			},
			code: ErrNoSubjectVariable,
		},
		{
			name: "vertical without measures",
			mutate: func(t *testing.T, d *CompiledDomain) {
				d.Config.Measures = nil
			},
			code: ErrVerticalNoMeasures,
		},
		{
			name: "measures on flat domain",
			mutate: func(t *testing.T, d *CompiledDomain) {
				d.Config.Vertical = false
				d.Rules.Rules[1].Expression = mustParse(t, "ASSIGN(RESULT)")
			},
			code: ErrMeasuresNoVertical,
		},
		{
			name: "measure reference on flat domain",
			mutate: func(t *testing.T, d *CompiledDomain) {
				d.Config.Vertical = false
				d.Config.Measures = nil
			},
			code: ErrMeasureRefFlat,
		},
		{
			name: "sequence target unmapped",
			mutate: func(t *testing.T, d *CompiledDomain) {
				d.Config.Sequence.Target = "NOSUCH"
			},
			code: ErrUnknownTarget,
		},
		{
			name: "study day target unmapped",
			mutate: func(t *testing.T, d *CompiledDomain) {
				d.Config.StudyDays = []sdtm.StudyDaySpec{
					{Target: "VSDY", Event: "VSDTC", Reference: "RFSTDTC"},
				}
			},
			code: ErrUnknownTarget,
		},
		{
			name: "baseline target unmapped",
			mutate: func(t *testing.T, d *CompiledDomain) {
				d.Config.Baselines = []sdtm.BaselineSpec{
					{Target: "VSBLFL", GroupBy: []string{"USUBJID"}, Date: "VSDTC"},
				}
			},
			code: ErrUnknownTarget,
		},
		{
			name: "date pair names unmapped variable",
			mutate: func(t *testing.T, d *CompiledDomain) {
				d.Config.DatePairs = [][2]string{{"VSSTDTC", "VSENDTC"}}
			},
			code: ErrBadDatePair,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDomain(t)
			tt.mutate(t, &d)
			assert.Contains(t, codes(Validate(d)), tt.code)
		})
	}
}

func TestValidateDeclaredTables(t *testing.T) {
	d := validDomain(t)
	d.Rules.Rules[0].Tables = []string{"VITALS"}
	d.Rules.Rules[0].Expression = mustParse(t, "CONCAT(VITALS.SUBJID, DEMOG.SITEID)")

	errs := Validate(d)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrTableNotDeclared, errs[0].Code)
	assert.Contains(t, errs[0].Message, `"DEMOG"`)

	// MEASURE is virtual and always allowed; unqualified refs resolve
	// through the row context and are not checked here.
	d.Rules.Rules[0].Expression = mustParse(t, "CONCAT(VITALS.SUBJID, MEASURE.CODE, SITEID)")
	assert.Empty(t, Validate(d))
}

func TestValidateReportsAllErrors(t *testing.T) {
	d := validDomain(t)
	d.Rules.Rules[0].Type = "text"
	d.Rules.Rules[0].Requirement = "mandatory"
	d.Config.PrimaryTable = ""

	got := codes(Validate(d))
	assert.Contains(t, got, ErrInvalidType)
	assert.Contains(t, got, ErrInvalidRequire)
	assert.Contains(t, got, ErrNoPrimaryTable)
}
