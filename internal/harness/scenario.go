package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario: a mapping spec, inline
// source data, and assertions over the scored outcome of a full
// correction-loop run.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Specs lists paths to CUE mapping spec files to compile and load.
	// Paths are relative to the scenario file location.
	Specs []string `yaml:"specs"`

	// Domain selects the domain to run when the specs compile more than
	// one. Required in that case.
	Domain string `yaml:"domain,omitempty"`

	// Data holds the inline source tables, keyed by table name.
	Data map[string]TableDef `yaml:"data"`

	// Codelists holds inline controlled terminology, keyed by list name.
	Codelists map[string]CodelistDef `yaml:"codelists,omitempty"`

	// Weights overrides the scoring weight table. Omitted fields keep
	// their defaults.
	Weights map[string]any `yaml:"weights,omitempty"`

	// MaxIterations bounds the correction loop (0 = engine default).
	MaxIterations int `yaml:"max_iterations,omitempty"`

	// RunToken is an optional fixed run id for deterministic goldens.
	// If empty, ids default to "test-run-000001", "test-run-000002", ...
	RunToken string `yaml:"run_token,omitempty"`

	// Assertions validate the final records and report.
	Assertions []Assertion `yaml:"assertions"`
}

// TableDef is one inline source table. Rows line up positionally with
// the columns; empty cells are treated as missing.
type TableDef struct {
	Columns []string   `yaml:"columns"`
	Rows    [][]string `yaml:"rows"`
}

// CodelistDef is one inline controlled-terminology list.
type CodelistDef struct {
	Terms  []string          `yaml:"terms"`
	Decode map[string]string `yaml:"decode,omitempty"`
}

// Assertion validates the outcome of a scenario run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "record_count": exactly Count records came out
	// - "record_contains": some record carries all Values
	// - "record_order": Variable takes these Values in record order
	// - "issue_contains": an issue with RuleID (and Severity/Count when set) exists
	// - "issue_absent": no issue with RuleID exists
	// - "score_at_least": final score >= Value
	// - "ready": submission readiness equals Ready
	// - "iterations": the loop ran exactly Count correction iterations
	Type string `yaml:"type"`

	// Count is the expected cardinality (record_count, issue_contains,
	// iterations).
	Count int `yaml:"count,omitempty"`

	// Values are expected variable values, subset match
	// (record_contains).
	Values map[string]string `yaml:"values,omitempty"`

	// Variable and Sequence drive record_order: Sequence lists the
	// values Variable must take across records, in order.
	Variable string   `yaml:"variable,omitempty"`
	Sequence []string `yaml:"sequence,omitempty"`

	// RuleID and Severity select issues (issue_contains, issue_absent).
	RuleID   string `yaml:"rule_id,omitempty"`
	Severity string `yaml:"severity,omitempty"`

	// Value is the score bound (score_at_least).
	Value float64 `yaml:"value,omitempty"`

	// Ready is the expected readiness verdict (ready).
	Ready bool `yaml:"ready,omitempty"`
}

// Assertion type constants.
const (
	AssertRecordCount    = "record_count"
	AssertRecordContains = "record_contains"
	AssertRecordOrder    = "record_order"
	AssertIssueContains  = "issue_contains"
	AssertIssueAbsent    = "issue_absent"
	AssertScoreAtLeast   = "score_at_least"
	AssertReady          = "ready"
	AssertIterations     = "iterations"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving spec paths relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i, specPath := range scenario.Specs {
		if !filepath.IsAbs(specPath) && basePath != "" {
			scenario.Specs[i] = filepath.Join(basePath, specPath)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Specs) == 0 {
		return fmt.Errorf("specs list is required and must be non-empty")
	}
	if len(s.Data) == 0 {
		return fmt.Errorf("data is required and must declare at least one table")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for _, specPath := range s.Specs {
		if _, err := os.Stat(specPath); os.IsNotExist(err) {
			return fmt.Errorf("spec file not found: %s", specPath)
		}
	}

	for name, def := range s.Data {
		if len(def.Columns) == 0 {
			return fmt.Errorf("data.%s: columns is required", name)
		}
		for i, row := range def.Rows {
			if len(row) > len(def.Columns) {
				return fmt.Errorf("data.%s: row %d has %d cells, table has %d columns", name, i, len(row), len(def.Columns))
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertRecordCount, AssertIterations:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertRecordContains:
		if len(a.Values) == 0 {
			return fmt.Errorf("assertions[%d]: values is required for record_contains", index)
		}
	case AssertRecordOrder:
		if a.Variable == "" || len(a.Sequence) == 0 {
			return fmt.Errorf("assertions[%d]: variable and sequence are required for record_order", index)
		}
	case AssertIssueContains, AssertIssueAbsent:
		if a.RuleID == "" {
			return fmt.Errorf("assertions[%d]: rule_id is required for %s", index, a.Type)
		}
	case AssertScoreAtLeast:
		if a.Value < 0 || a.Value > 100 {
			return fmt.Errorf("assertions[%d]: value must be within 0..100 for score_at_least", index)
		}
	case AssertReady:
		// Ready defaults to false, nothing further to check.
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
