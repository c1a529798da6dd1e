package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinforge/sdtmap/internal/expr"
	"github.com/clinforge/sdtmap/internal/sdtm"
)

func compileValue(t *testing.T, src string) cue.Value {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())
	return v
}

const fullSpec = `
domain: "VS": {
	config: {
		primary_table:    "VITALS"
		join_key:         "SUBJID"
		subject_variable: "USUBJID"
		vertical:         true
		pinned_tables: ["VITALS", "DEMOG"]
		allow_derived_inputs: true
		measures: [
			{column: "SYSBP", code: "SYSBP", name: "Systolic Blood Pressure", unit: "mmHg"},
			{column: "DIABP", code: "DIABP"},
		]
		sequence: {
			target:   "VSSEQ"
			group_by: ["USUBJID"]
			order_by: ["VSDTC", "VSTESTCD"]
		}
		study_days: [{target: "VSDY", event: "VSDTC", reference: "RFSTDTC"}]
		baselines: [{target: "VSBLFL", group_by: ["USUBJID", "VSTESTCD"], result: "VSORRES", date: "VSDTC", cutoff: "RFSTDTC"}]
		date_pairs: [["VSDTC", "VSDTC"]]
	}
	variable: "USUBJID": {
		order:       1
		type:        "char"
		length:      20
		requirement: "required"
		expression:  "CONCAT(\"STUDY1-\", SUBJID)"
	}
	variable: "VSTESTCD": {
		order:       2
		requirement: "required"
		expression:  "ASSIGN(MEASURE.CODE)"
		codelist:    "VSTESTCD"
	}
	variable: "VSORRES": {
		order:      3
		expression: "ASSIGN(MEASURE.VALUE)"
	}
	variable: "VSDTC": {
		order:      4
		expression: "ISO8601DATEFORMAT(VSDT, 'DD-MON-YYYY')"
	}
	variable: "VSSEQ": {
		order:      5
		type:       "num"
		expression: "ASSIGN(\"\")"
	}
	variable: "VSDY": {
		order:      6
		type:       "num"
		expression: "ASSIGN(\"\")"
	}
	variable: "VSBLFL": {
		order:      7
		expression: "ASSIGN(\"\")"
	}
	variable: "RFSTDTC": {
		order:      8
		expression: "ISO8601DATEFORMAT(RFSTDT, 'DD-MON-YYYY')"
	}
}
domain: "AE": {
	config: {
		primary_table:    "ADVERSE"
		subject_variable: "USUBJID"
	}
	variable: "USUBJID": {
		order:       1
		requirement: "required"
		expression:  "ASSIGN(SUBJID)"
	}
	variable: "AETERM": {
		order:      2
		expression: "UPCASE(AE_DESC)"
	}
}
`

func TestCompileAll(t *testing.T) {
	domains, err := CompileAll(compileValue(t, fullSpec))
	require.NoError(t, err)
	require.Len(t, domains, 2)

	// Sorted by domain name regardless of declaration order.
	assert.Equal(t, "AE", domains[0].Config.Domain)
	assert.Equal(t, "VS", domains[1].Config.Domain)

	vs := domains[1]
	assert.Equal(t, "VITALS", vs.Config.PrimaryTable)
	assert.Equal(t, "SUBJID", vs.Config.JoinKey)
	assert.Equal(t, "USUBJID", vs.Config.SubjectVariable)
	assert.True(t, vs.Config.Vertical)
	assert.Equal(t, []string{"VITALS", "DEMOG"}, vs.Config.PinnedTables)
	assert.True(t, vs.Rules.AllowDerivedInputs)

	require.Len(t, vs.Config.Measures, 2)
	assert.Equal(t, sdtm.Measure{
		Column: "SYSBP", Code: "SYSBP",
		Name: "Systolic Blood Pressure", Unit: "mmHg",
	}, vs.Config.Measures[0])
	assert.Equal(t, sdtm.Measure{Column: "DIABP", Code: "DIABP"}, vs.Config.Measures[1])

	require.NotNil(t, vs.Config.Sequence)
	assert.Equal(t, "VSSEQ", vs.Config.Sequence.Target)
	assert.Equal(t, []string{"USUBJID"}, vs.Config.Sequence.GroupBy)
	assert.Equal(t, []string{"VSDTC", "VSTESTCD"}, vs.Config.Sequence.OrderBy)

	require.Len(t, vs.Config.StudyDays, 1)
	assert.Equal(t, sdtm.StudyDaySpec{Target: "VSDY", Event: "VSDTC", Reference: "RFSTDTC"}, vs.Config.StudyDays[0])

	require.Len(t, vs.Config.Baselines, 1)
	assert.Equal(t, sdtm.BaselineSpec{
		Target:  "VSBLFL",
		GroupBy: []string{"USUBJID", "VSTESTCD"},
		Result:  "VSORRES",
		Date:    "VSDTC",
		Cutoff:  "RFSTDTC",
	}, vs.Config.Baselines[0])

	require.Len(t, vs.Config.DatePairs, 1)
	assert.Equal(t, [2]string{"VSDTC", "VSDTC"}, vs.Config.DatePairs[0])

	require.Len(t, vs.Rules.Rules, 8)
	assert.Equal(t, "USUBJID", vs.Rules.Rules[0].Variable)
	assert.Equal(t, "VSTESTCD", vs.Rules.Rules[1].Variable)
	assert.Equal(t, "VSTESTCD", vs.Rules.Rules[1].Codelist)

	ae := domains[0]
	assert.False(t, ae.Config.Vertical)
	assert.False(t, ae.Rules.AllowDerivedInputs)
	assert.Empty(t, ae.Config.Measures)
	assert.Nil(t, ae.Config.Sequence)
}

func TestCompileDefaults(t *testing.T) {
	v := compileValue(t, `
domain: "DM": {
	config: {
		primary_table:    "DEMOG"
		subject_variable: "USUBJID"
	}
	variable: "USUBJID": {expression: "ASSIGN(SUBJID)"}
}
`)
	domains, err := CompileAll(v)
	require.NoError(t, err)
	require.Len(t, domains, 1)

	r := domains[0].Rules.Rules[0]
	assert.Equal(t, sdtm.TypeChar, r.Type)
	assert.Equal(t, sdtm.RequirementPermissible, r.Requirement)
	assert.Equal(t, 0, r.Order)
	assert.Equal(t, 0, r.Length)
}

func TestCompileRuleOrdering(t *testing.T) {
	v := compileValue(t, `
domain: "DM": {
	config: {
		primary_table:    "DEMOG"
		subject_variable: "USUBJID"
	}
	variable: "SEX": {order: 3, expression: "ASSIGN(GENDER)"}
	variable: "USUBJID": {order: 1, expression: "ASSIGN(SUBJID)"}
	variable: "AGE": {order: 2, expression: "ASSIGN(AGE_YRS)"}
	variable: "ZZTEST": {expression: "ASSIGN(X)"}
	variable: "AATEST": {expression: "ASSIGN(Y)"}
}
`)
	domains, err := CompileAll(v)
	require.NoError(t, err)

	var names []string
	for _, r := range domains[0].Rules.Rules {
		names = append(names, r.Variable)
	}
	// Order zero sorts first; ties break on variable name.
	assert.Equal(t, []string{"AATEST", "ZZTEST", "USUBJID", "AGE", "SEX"}, names)
}

func TestCompileDomainDirect(t *testing.T) {
	v := compileValue(t, fullSpec)
	d, err := CompileDomain(v.LookupPath(cue.ParsePath(`domain."AE"`)))
	require.NoError(t, err)

	assert.Equal(t, "AE", d.Config.Domain)
	assert.Equal(t, "AE", d.Rules.Domain)
	require.Len(t, d.Rules.Rules, 2)

	call, ok := d.Rules.Rules[1].Expression.(*expr.Call)
	require.True(t, ok)
	assert.Equal(t, "UPCASE", call.Name)
}

func TestCompileAllNoDomains(t *testing.T) {
	_, err := CompileAll(compileValue(t, `other: "thing"`))
	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "domain", cerr.Field)
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{
			name: "missing config",
			src: `domain: "VS": {
				variable: "X": {expression: "ASSIGN(A)"}
			}`,
			field: "config",
		},
		{
			name: "missing primary table",
			src: `domain: "VS": {
				config: {subject_variable: "USUBJID"}
				variable: "X": {expression: "ASSIGN(A)"}
			}`,
			field: "primary_table",
		},
		{
			name: "missing variables",
			src: `domain: "VS": {
				config: {primary_table: "T", subject_variable: "USUBJID"}
			}`,
			field: "variable",
		},
		{
			name: "missing expression",
			src: `domain: "VS": {
				config: {primary_table: "T", subject_variable: "USUBJID"}
				variable: "X": {order: 1}
			}`,
			field: "variable.X.expression",
		},
		{
			name: "malformed expression",
			src: `domain: "VS": {
				config: {primary_table: "T", subject_variable: "USUBJID"}
				variable: "X": {expression: "CONCAT(A,"}
			}`,
			field: "variable.X.expression",
		},
		{
			name: "order not an integer",
			src: `domain: "VS": {
				config: {primary_table: "T", subject_variable: "USUBJID"}
				variable: "X": {order: "three", expression: "ASSIGN(A)"}
			}`,
			field: "variable.X.order",
		},
		{
			name: "length not an integer",
			src: `domain: "VS": {
				config: {primary_table: "T", subject_variable: "USUBJID"}
				variable: "X": {length: "eight", expression: "ASSIGN(A)"}
			}`,
			field: "variable.X.length",
		},
		{
			name: "measure missing code",
			src: `domain: "VS": {
				config: {
					primary_table: "T", subject_variable: "USUBJID"
					vertical: true
					measures: [{column: "SYSBP"}]
				}
				variable: "X": {expression: "ASSIGN(A)"}
			}`,
			field: "code",
		},
		{
			name: "vertical not a bool",
			src: `domain: "VS": {
				config: {primary_table: "T", subject_variable: "USUBJID", vertical: "yes"}
				variable: "X": {expression: "ASSIGN(A)"}
			}`,
			field: "vertical",
		},
		{
			name: "date pair wrong arity",
			src: `domain: "VS": {
				config: {
					primary_table: "T", subject_variable: "USUBJID"
					date_pairs: [["A", "B", "C"]]
				}
				variable: "X": {expression: "ASSIGN(A)"}
			}`,
			field: "date_pairs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileAll(compileValue(t, tt.src))
			var cerr *CompileError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.field, cerr.Field)
		})
	}
}
