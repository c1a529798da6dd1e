package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/clinforge/sdtmap/internal/correction"
)

// DomainResult is the outcome of one domain's correction loop inside a
// RunAll batch. Exactly one of Outcome and Err is meaningful: Err is
// set for configuration defects and cancellation, never for
// data-quality findings.
type DomainResult struct {
	Domain  string
	Outcome correction.Outcome
	Err     error
}

// RunAll runs the correction loop for every domain concurrently.
// Domains share no mutable state, so each gets its own goroutine;
// iterations within a domain stay strictly sequential.
//
// Results come back in the same order as the input slice regardless of
// completion order. The first cancellation or configuration error does
// not stop sibling domains; each result carries its own Err.
func (e *Engine) RunAll(ctx context.Context, domains []Domain) []DomainResult {
	results := make([]DomainResult, len(domains))

	var wg sync.WaitGroup
	for i, d := range domains {
		wg.Add(1)
		go func(i int, d Domain) {
			defer wg.Done()

			name := ""
			if d.Config != nil {
				name = d.Config.Domain
			}
			outcome, err := e.RunCorrectionLoop(ctx, d)
			if err != nil {
				slog.Error("domain run failed", "domain", name, "error", err)
			} else {
				slog.Info("domain run complete",
					"domain", name,
					"run_id", outcome.Report.RunID,
					"score", outcome.Report.Score,
					"submission_ready", outcome.Report.SubmissionReady,
					"iterations", outcome.State.Iteration)
			}
			results[i] = DomainResult{Domain: name, Outcome: outcome, Err: err}
		}(i, d)
	}
	wg.Wait()

	return results
}
