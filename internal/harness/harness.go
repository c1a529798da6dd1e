// Package harness executes declarative conformance scenarios: YAML
// files pairing a CUE mapping spec with inline source tables and
// assertions over the transformed, validated, and scored outcome.
//
// Scenarios exercise the full pipeline end to end, the same path the
// CLI takes, with deterministic run identity so report snapshots can
// be golden-tested.
package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"gopkg.in/yaml.v3"

	"github.com/clinforge/sdtmap/internal/compiler"
	"github.com/clinforge/sdtmap/internal/correction"
	"github.com/clinforge/sdtmap/internal/engine"
	"github.com/clinforge/sdtmap/internal/score"
	"github.com/clinforge/sdtmap/internal/sdtm"
	"github.com/clinforge/sdtmap/internal/source"
	"github.com/clinforge/sdtmap/internal/testutil"
)

// Result captures the outcome of one scenario run.
type Result struct {
	Scenario *Scenario
	Outcome  correction.Outcome

	// Failures lists every assertion that did not hold, in assertion
	// order. Empty means the scenario passed.
	Failures []string
}

// Passed reports whether every assertion held.
func (r *Result) Passed() bool {
	return len(r.Failures) == 0
}

// Run executes a scenario: compile the specs, build the inline tables,
// drive the correction loop, and evaluate every assertion. An error
// means the scenario itself is broken (bad spec, bad data); assertion
// failures come back on the Result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	domain, err := compileScenario(scenario)
	if err != nil {
		return nil, err
	}

	tables, err := buildTables(scenario)
	if err != nil {
		return nil, err
	}
	domain.Tables = tables

	eng, err := buildEngine(scenario)
	if err != nil {
		return nil, err
	}

	outcome, err := eng.RunCorrectionLoop(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	result := &Result{Scenario: scenario, Outcome: outcome}
	for i, a := range scenario.Assertions {
		if msg := evaluateAssertion(&a, &outcome); msg != "" {
			result.Failures = append(result.Failures, fmt.Sprintf("assertions[%d] %s: %s", i, a.Type, msg))
		}
	}
	return result, nil
}

// compileScenario loads the CUE spec files and selects the scenario's
// domain.
func compileScenario(scenario *Scenario) (engine.Domain, error) {
	cuectx := cuecontext.New()
	insts := load.Instances(scenario.Specs, nil)
	if len(insts) == 0 {
		return engine.Domain{}, fmt.Errorf("scenario %s: no CUE instances", scenario.Name)
	}
	if insts[0].Err != nil {
		return engine.Domain{}, fmt.Errorf("scenario %s: %w", scenario.Name, insts[0].Err)
	}
	v := cuectx.BuildInstance(insts[0])
	if v.Err() != nil {
		return engine.Domain{}, fmt.Errorf("scenario %s: %w", scenario.Name, v.Err())
	}

	compiled, err := compiler.CompileAll(v)
	if err != nil {
		return engine.Domain{}, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	var selected *compiler.CompiledDomain
	for i := range compiled {
		if scenario.Domain == "" || compiled[i].Config.Domain == scenario.Domain {
			if selected != nil {
				return engine.Domain{}, fmt.Errorf("scenario %s: specs compile multiple domains, set domain to pick one", scenario.Name)
			}
			selected = &compiled[i]
		}
	}
	if selected == nil {
		return engine.Domain{}, fmt.Errorf("scenario %s: domain %q not found in specs", scenario.Name, scenario.Domain)
	}

	if verrs := compiler.Validate(*selected); len(verrs) > 0 {
		msgs := make([]string, len(verrs))
		for i, ve := range verrs {
			msgs[i] = ve.Error()
		}
		return engine.Domain{}, fmt.Errorf("scenario %s: invalid spec: %s", scenario.Name, strings.Join(msgs, "; "))
	}

	return engine.Domain{Config: selected.Config, Rules: selected.Rules}, nil
}

// buildTables converts the inline table definitions into a TableSet.
// Table names sort deterministically so duplicate detection and error
// text are stable across runs.
func buildTables(scenario *Scenario) (*source.TableSet, error) {
	names := make([]string, 0, len(scenario.Data))
	for name := range scenario.Data {
		names = append(names, name)
	}
	sort.Strings(names)

	tables := make([]*source.Table, 0, len(names))
	for _, name := range names {
		def := scenario.Data[name]
		rows := make([]source.Row, 0, len(def.Rows))
		for _, cells := range def.Rows {
			row := make(source.Row, len(def.Columns))
			for i, cell := range cells {
				if cell != "" {
					row[def.Columns[i]] = cell
				}
			}
			rows = append(rows, row)
		}
		tables = append(tables, source.NewTable(name, def.Columns, rows))
	}

	set, err := source.NewTableSet(tables...)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	return set, nil
}

// buildEngine assembles the engine with the scenario's codelists,
// weights, iteration budget, and a deterministic run-id generator.
func buildEngine(scenario *Scenario) (*engine.Engine, error) {
	opts := []engine.Option{}

	if len(scenario.Codelists) > 0 {
		codelists := make(sdtm.Codelists, len(scenario.Codelists))
		for name, def := range scenario.Codelists {
			codelists[name] = sdtm.NewCodelist(name, def.Terms, def.Decode)
		}
		opts = append(opts, engine.WithCodelists(codelists))
	}

	if len(scenario.Weights) > 0 {
		raw, err := yaml.Marshal(scenario.Weights)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: weights: %w", scenario.Name, err)
		}
		cfg, err := score.LoadConfig(raw)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: weights: %w", scenario.Name, err)
		}
		opts = append(opts, engine.WithScoreConfig(cfg))
	}

	if scenario.MaxIterations > 0 {
		opts = append(opts, engine.WithMaxIterations(scenario.MaxIterations))
	}

	if scenario.RunToken != "" {
		opts = append(opts, engine.WithRunIDGenerator(testutil.NewFixedRunIDGenerator(scenario.RunToken)))
	} else {
		opts = append(opts, engine.WithRunIDGenerator(testutil.NewSequencedRunIDGenerator("")))
	}

	return engine.New(opts...), nil
}

// evaluateAssertion checks one assertion against the outcome, returning
// an empty string when it holds and a failure message when it doesn't.
func evaluateAssertion(a *Assertion, outcome *correction.Outcome) string {
	switch a.Type {
	case AssertRecordCount:
		if got := len(outcome.Records); got != a.Count {
			return fmt.Sprintf("expected %d records, got %d", a.Count, got)
		}

	case AssertRecordContains:
		for _, rec := range outcome.Records {
			if recordMatches(rec, a.Values) {
				return ""
			}
		}
		return fmt.Sprintf("no record matches %v", a.Values)

	case AssertRecordOrder:
		got := make([]string, 0, len(outcome.Records))
		for _, rec := range outcome.Records {
			got = append(got, rec.Value(a.Variable))
		}
		if len(got) != len(a.Sequence) {
			return fmt.Sprintf("%s: expected %d values, got %d", a.Variable, len(a.Sequence), len(got))
		}
		for i, want := range a.Sequence {
			if got[i] != want {
				return fmt.Sprintf("%s[%d]: expected %q, got %q", a.Variable, i, want, got[i])
			}
		}

	case AssertIssueContains:
		for _, iss := range outcome.Report.Issues {
			if !issueMatches(&iss, a) {
				continue
			}
			if a.Count > 0 && iss.Count != a.Count {
				return fmt.Sprintf("issue %s has count %d, expected %d", a.RuleID, iss.Count, a.Count)
			}
			return ""
		}
		return fmt.Sprintf("no issue with rule_id %s", a.RuleID)

	case AssertIssueAbsent:
		for _, iss := range outcome.Report.Issues {
			if iss.RuleID == a.RuleID {
				return fmt.Sprintf("unexpected issue %s: %s", iss.RuleID, iss.Message)
			}
		}

	case AssertScoreAtLeast:
		if outcome.Report.Score < a.Value {
			return fmt.Sprintf("score %.1f below %.1f", outcome.Report.Score, a.Value)
		}

	case AssertReady:
		if outcome.Report.SubmissionReady != a.Ready {
			return fmt.Sprintf("submission_ready = %v, expected %v", outcome.Report.SubmissionReady, a.Ready)
		}

	case AssertIterations:
		if outcome.State.Iteration != a.Count {
			return fmt.Sprintf("loop ran %d iterations, expected %d", outcome.State.Iteration, a.Count)
		}
	}
	return ""
}

// recordMatches reports whether a record carries every expected value.
func recordMatches(rec *sdtm.OutputRecord, values map[string]string) bool {
	for variable, want := range values {
		got, ok := rec.Get(variable)
		if !ok || got != want {
			return false
		}
	}
	return true
}

// issueMatches reports whether an issue satisfies the assertion's
// rule_id and optional severity filter.
func issueMatches(iss *sdtm.Issue, a *Assertion) bool {
	if iss.RuleID != a.RuleID {
		return false
	}
	if a.Severity != "" && string(iss.Severity) != a.Severity {
		return false
	}
	return true
}
