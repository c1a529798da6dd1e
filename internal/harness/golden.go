package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/clinforge/sdtmap/internal/correction"
	"github.com/clinforge/sdtmap/internal/sdtm"
)

// RunSnapshot captures the complete outcome of a scenario run for
// golden comparison: the scored report, the final records, and the
// loop state. Serialized through canonical JSON so byte comparison is
// deterministic.
type RunSnapshot struct {
	ScenarioName string
	Outcome      correction.Outcome
}

// toCanonicalMap flattens the snapshot into plain maps and slices,
// the shapes MarshalCanonical accepts.
func (s *RunSnapshot) toCanonicalMap() map[string]any {
	report := s.Outcome.Report

	layers := make([]any, len(report.LayerScores))
	for i, ls := range report.LayerScores {
		layers[i] = map[string]any{
			"layer":       string(ls.Layer),
			"score":       ls.Score,
			"issue_count": ls.IssueCount,
		}
	}

	issues := make([]any, len(report.Issues))
	for i, iss := range report.Issues {
		m := map[string]any{
			"rule_id":  iss.RuleID,
			"layer":    string(iss.Layer),
			"severity": string(iss.Severity),
			"message":  iss.Message,
			"count":    iss.Count,
			"counting": string(iss.Counting),
		}
		if iss.Variable != "" {
			m["variable"] = iss.Variable
		}
		issues[i] = m
	}

	records := make([]any, len(s.Outcome.Records))
	for i, rec := range s.Outcome.Records {
		values := make(map[string]any, len(rec.Variables))
		for _, variable := range rec.Variables {
			values[variable] = rec.Value(variable)
		}
		records[i] = values
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"report": map[string]any{
			"run_id":           report.RunID,
			"domain":           report.Domain,
			"score":            report.Score,
			"submission_ready": report.SubmissionReady,
			"layer_scores":     layers,
			"issues":           issues,
		},
		"records":    records,
		"iterations": s.Outcome.State.Iteration,
	}
}

// RunWithGolden executes a scenario, fails the test on any assertion
// failure, and compares a canonical snapshot of the outcome against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return err
	}
	for _, failure := range result.Failures {
		t.Errorf("%s: %s", scenario.Name, failure)
	}

	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an already-obtained result against a golden
// file without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := RunSnapshot{
		ScenarioName: scenarioName,
		Outcome:      result.Outcome,
	}

	data, err := sdtm.MarshalCanonical(snapshot.toCanonicalMap())
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
