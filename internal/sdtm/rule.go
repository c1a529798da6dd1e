// Package sdtm defines the core data model for the standardization
// engine: mapping rules, output records, validation issues, compliance
// reports, and correction-loop state.
//
// Everything in this package is plain data. Rule sets and domain
// configuration are owned by an external loader and are read-only once
// constructed; a RuleSet handed to the engine is never mutated.
package sdtm

import (
	"fmt"

	"github.com/clinforge/sdtmap/internal/expr"
)

// Requirement is the conformance level of a target variable.
type Requirement string

const (
	// RequirementRequired variables must be present and populated in
	// every record.
	RequirementRequired Requirement = "required"

	// RequirementExpected variables must be present in the schema;
	// individual records may leave them empty.
	RequirementExpected Requirement = "expected"

	// RequirementPermissible variables are optional.
	RequirementPermissible Requirement = "permissible"
)

// ValidRequirements defines allowed requirement levels.
var ValidRequirements = map[Requirement]bool{
	RequirementRequired:    true,
	RequirementExpected:    true,
	RequirementPermissible: true,
}

// VariableType is the declared data type of a target variable.
type VariableType string

const (
	TypeChar VariableType = "char"
	TypeNum  VariableType = "num"
)

// VariableRule maps one target variable from raw source data.
//
// Rules are immutable after compilation. Expression is the parsed AST,
// never re-parsed at evaluation time.
type VariableRule struct {
	Domain      string       `json:"domain"`
	Variable    string       `json:"variable"`
	Order       int          `json:"order"`
	Type        VariableType `json:"type"`
	Length      int          `json:"length"`
	Requirement Requirement  `json:"requirement"`

	// Tables lists the source tables this rule may reference. A column
	// reference outside these tables is a configuration defect.
	Tables []string `json:"tables,omitempty"`

	// Expression computes the variable's value for one grain unit.
	Expression expr.Node `json:"-"`

	// Codelist names the controlled-terminology list bound to this
	// variable, or "" when unbound.
	Codelist string `json:"codelist,omitempty"`
}

// RuleSet is the ordered mapping specification for one target domain.
type RuleSet struct {
	Domain string         `json:"domain"`
	Rules  []VariableRule `json:"rules"`

	// AllowDerivedInputs permits a later rule to read a variable already
	// derived on the in-progress record. Off by default: rules read raw
	// source columns only.
	AllowDerivedInputs bool `json:"allow_derived_inputs,omitempty"`
}

// RuleFor returns the rule for a variable, or nil if the variable is
// not mapped in this set.
func (rs *RuleSet) RuleFor(variable string) *VariableRule {
	for i := range rs.Rules {
		if rs.Rules[i].Variable == variable {
			return &rs.Rules[i]
		}
	}
	return nil
}

// Validate checks internal consistency of a compiled rule set.
// A failure here is a configuration defect, not a data-quality finding.
func (rs *RuleSet) Validate() error {
	if rs.Domain == "" {
		return fmt.Errorf("rule set has no domain")
	}
	seen := make(map[string]bool, len(rs.Rules))
	for _, r := range rs.Rules {
		if r.Variable == "" {
			return fmt.Errorf("domain %s: rule with empty variable name", rs.Domain)
		}
		if seen[r.Variable] {
			return fmt.Errorf("domain %s: duplicate rule for variable %s", rs.Domain, r.Variable)
		}
		seen[r.Variable] = true
		if r.Expression == nil {
			return fmt.Errorf("domain %s: variable %s has no expression", rs.Domain, r.Variable)
		}
		if !ValidRequirements[r.Requirement] {
			return fmt.Errorf("domain %s: variable %s has invalid requirement %q", rs.Domain, r.Variable, r.Requirement)
		}
	}
	return nil
}

// Measure describes one unpivoted measurement column of a vertical domain.
type Measure struct {
	// Column is the source column holding the raw result.
	Column string `json:"column"`

	// Code and Name identify the test in the standardized output
	// (exposed to expressions as MEASURE.CODE and MEASURE.NAME).
	Code string `json:"code"`
	Name string `json:"name"`

	// Unit is the unit of measure, if fixed per column.
	Unit string `json:"unit,omitempty"`
}

// SequenceSpec declares the dense per-group sequence derivation.
type SequenceSpec struct {
	Target  string   `json:"target"`   // variable receiving 1..N
	GroupBy []string `json:"group_by"` // typically the subject key
	OrderBy []string `json:"order_by"` // declared sort keys within a group
}

// StudyDaySpec declares a study-day offset derivation.
// Event and Reference name variables on the in-progress record.
type StudyDaySpec struct {
	Target    string `json:"target"`
	Event     string `json:"event"`
	Reference string `json:"reference"`
}

// BaselineSpec declares single-winner baseline selection.
type BaselineSpec struct {
	Target  string   `json:"target"`   // flag variable, receives "Y" or nothing
	GroupBy []string `json:"group_by"` // typically subject + test code
	Result  string   `json:"result"`   // variable that must be non-missing to qualify
	Date    string   `json:"date"`     // observation date variable
	Cutoff  string   `json:"cutoff"`   // variable holding the cutoff date
}

// DomainConfig is the per-domain shape declaration: grain, source
// topology, and composite derivations. Grain is always declared, never
// inferred from data.
type DomainConfig struct {
	Domain string `json:"domain"`

	// PrimaryTable is the table providing one source row per grain unit.
	PrimaryTable string `json:"primary_table"`

	// JoinKey is the column shared by the primary and supplemental
	// tables, used for qualified reference resolution.
	JoinKey string `json:"join_key,omitempty"`

	// PinnedTables acknowledges supplemental tables whose duplicate
	// join-key rows coalesce first-non-empty in input order. The
	// transformer rejects a run when a table with duplicates is not
	// listed here, so the coalesce is always explicit configuration.
	PinnedTables []string `json:"pinned_tables,omitempty"`

	// Vertical marks an unpivoted domain: one output record per
	// non-missing measurement column per source row.
	Vertical bool      `json:"vertical,omitempty"`
	Measures []Measure `json:"measures,omitempty"`

	// SubjectVariable names the output variable holding the subject key
	// (used for final sort and uniqueness checks).
	SubjectVariable string `json:"subject_variable"`

	Sequence  *SequenceSpec  `json:"sequence,omitempty"`
	StudyDays []StudyDaySpec `json:"study_days,omitempty"`
	Baselines []BaselineSpec `json:"baselines,omitempty"`

	// DatePairs lists (start, end) variable pairs that must satisfy
	// start <= end when both are populated.
	DatePairs [][2]string `json:"date_pairs,omitempty"`
}

// Validate checks the domain configuration for defects that would make
// a run meaningless.
func (c *DomainConfig) Validate() error {
	if c.Domain == "" {
		return fmt.Errorf("domain config has no domain")
	}
	if c.PrimaryTable == "" {
		return fmt.Errorf("domain %s: no primary table", c.Domain)
	}
	if c.Vertical && len(c.Measures) == 0 {
		return fmt.Errorf("domain %s: vertical domain declares no measures", c.Domain)
	}
	if !c.Vertical && len(c.Measures) > 0 {
		return fmt.Errorf("domain %s: measures declared on a non-vertical domain", c.Domain)
	}
	if c.Sequence != nil {
		if c.Sequence.Target == "" || len(c.Sequence.GroupBy) == 0 {
			return fmt.Errorf("domain %s: sequence spec needs a target and group keys", c.Domain)
		}
	}
	for _, b := range c.Baselines {
		if b.Target == "" || len(b.GroupBy) == 0 || b.Date == "" {
			return fmt.Errorf("domain %s: baseline spec needs target, group keys, and date", c.Domain)
		}
	}
	return nil
}
