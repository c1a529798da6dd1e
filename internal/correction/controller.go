// Package correction implements the bounded self-correction loop: a
// state machine that reruns Transform→Validate→Score with accumulated
// feedback until the output is submission-ready or the iteration
// budget is exhausted.
//
// The loop is iteration-bounded, never time-bounded. Exhaustion is a
// terminal state that surfaces a manual-review signal, not a failure,
// and it is never an error.
package correction

import (
	"context"
	"log/slog"

	"github.com/clinforge/sdtmap/internal/sdtm"
)

// Phase names a controller state, mostly for logging and tests.
type Phase string

const (
	PhaseScoring   Phase = "scoring"
	PhaseFeedback  Phase = "feedback"
	PhaseRemap     Phase = "remap"
	PhaseReady     Phase = "ready"
	PhaseExhausted Phase = "exhausted"
)

// Pass runs one full Transform→Validate→Score pass for a domain. The
// feedback slice carries the previous iteration's hints; it is
// advisory context for whoever supplies rules. The engine never
// synthesizes new rules itself.
type Pass func(ctx context.Context, feedback []string) ([]*sdtm.OutputRecord, sdtm.ComplianceReport, error)

// Outcome is the loop's terminal result: the last records and report,
// plus the final correction state.
type Outcome struct {
	Records []*sdtm.OutputRecord
	Report  sdtm.ComplianceReport
	State   sdtm.CorrectionState
}

// Controller drives the bounded loop for one domain. Iterations are
// strictly sequential: each depends on the previous validation output.
type Controller struct {
	// MaxIterations bounds the number of remap passes after the initial
	// one. Zero or negative falls back to the default of 3.
	MaxIterations int
}

// Run executes the loop:
//
//	Scoring → Ready      when submission_ready
//	Scoring → Feedback   when not ready and budget remains
//	Scoring → Exhausted  when not ready and budget is spent
//	Feedback → Remap → Scoring
//
// The total number of scoring passes never exceeds MaxIterations + 1.
// The only errors are configuration-class defects and cancellation
// bubbled up from the pass; data quality always comes back as a value.
func (c *Controller) Run(ctx context.Context, pass Pass) (Outcome, error) {
	state := sdtm.NewCorrectionState(c.MaxIterations)

	records, report, err := pass(ctx, nil)
	if err != nil {
		return Outcome{}, err
	}

	for {
		slog.Debug("correction loop scoring",
			"domain", report.Domain,
			"iteration", state.Iteration,
			"score", report.Score,
			"ready", report.SubmissionReady,
		)

		if report.SubmissionReady {
			slog.Info("correction loop done", "domain", report.Domain, "phase", PhaseReady, "iterations", state.Iteration)
			return Outcome{Records: records, Report: report, State: state.Settled(true)}, nil
		}

		if state.Exhausted() {
			slog.Info("correction loop done",
				"domain", report.Domain,
				"phase", PhaseExhausted,
				"iterations", state.Iteration,
				"score", report.Score,
			)
			return Outcome{Records: records, Report: report, State: state.Settled(false)}, nil
		}

		feedback := Hints(report)
		state = state.Advance(feedback)
		slog.Debug("correction loop remapping",
			"domain", report.Domain,
			"iteration", state.Iteration,
			"hints", len(feedback),
		)

		records, report, err = pass(ctx, feedback)
		if err != nil {
			return Outcome{}, err
		}
	}
}
