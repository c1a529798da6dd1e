package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/clinforge/sdtmap/internal/engine"
	"github.com/clinforge/sdtmap/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Data          string
	Domain        string
	Codelists     string
	Weights       string
	Database      string // optional sqlite archive
	MaxIterations int

	// RunIDGenerator allows overriding run identity (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDGenerator engine.RunIDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <specs-dir>",
		Short: "Run the bounded correction loop",
		Long: `Run the full standardization pipeline with the bounded self-correction
loop: transform, validate, score, and re-map with feedback until the
output is submission ready or the iteration budget is spent.

Independent domains run in parallel. With --db, every finished run is
archived to a SQLite database (created if it doesn't exist).

Example:
  sdtmap run ./specs --data ./raw
  sdtmap run ./specs --data ./raw --db ./runs.db --codelists ct.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunCmd(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Data, "data", "", "path to source CSV directory (required)")
	cmd.Flags().StringVar(&opts.Domain, "domain", "", "restrict to one domain code")
	cmd.Flags().StringVar(&opts.Codelists, "codelists", "", "controlled-terminology YAML file")
	cmd.Flags().StringVar(&opts.Weights, "weights", "", "scoring weight YAML file")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite run archive")
	cmd.Flags().IntVar(&opts.MaxIterations, "max-iterations", 0, "correction iteration budget (0 = default)")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

func runRunCmd(opts *RunOptions, specsDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	// Configure logging based on verbose flag
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))

	domains, codelists, err := loadRunInputs(formatter, specsDir, opts.Data, opts.Domain, opts.Codelists)
	if err != nil {
		return err
	}

	scoreCfg, err := loadScoreConfig(formatter, opts.Weights)
	if err != nil {
		return err
	}

	engOpts := []engine.Option{
		engine.WithCodelists(codelists),
		engine.WithScoreConfig(scoreCfg),
	}
	if opts.MaxIterations > 0 {
		engOpts = append(engOpts, engine.WithMaxIterations(opts.MaxIterations))
	}
	if opts.RunIDGenerator != nil {
		engOpts = append(engOpts, engine.WithRunIDGenerator(opts.RunIDGenerator))
	}
	eng := engine.New(engOpts...)

	var archive *store.Store
	if opts.Database != "" {
		slog.Info("opening run archive", "path", opts.Database)
		archive, err = store.Open(opts.Database)
		if err != nil {
			_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to open run archive", err)
		}
		defer func() {
			if closeErr := archive.Close(); closeErr != nil {
				slog.Error("error closing run archive", "error", closeErr)
			}
		}()
	}

	results := eng.RunAll(cmd.Context(), domains)

	allReady := true
	type runResult struct {
		Domain          string  `json:"domain"`
		RunID           string  `json:"run_id"`
		Score           float64 `json:"score"`
		SubmissionReady bool    `json:"submission_ready"`
		Iterations      int     `json:"iterations"`
		IssueCount      int     `json:"issue_count"`
	}
	var out []runResult

	for _, res := range results {
		if res.Err != nil {
			_ = formatter.Error(ErrCodeRun, fmt.Sprintf("domain %s: %v", res.Domain, res.Err), nil)
			return WrapExitError(ExitCommandError, fmt.Sprintf("domain %s failed", res.Domain), res.Err)
		}

		report := res.Outcome.Report
		if archive != nil {
			if err := archive.WriteRun(cmd.Context(), report, res.Outcome.State, res.Outcome.Records); err != nil {
				_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
				return WrapExitError(ExitCommandError, "archiving run", err)
			}
			formatter.VerboseLog("Archived run %s for domain %s", report.RunID, res.Domain)
		}

		out = append(out, runResult{
			Domain:          res.Domain,
			RunID:           report.RunID,
			Score:           report.Score,
			SubmissionReady: report.SubmissionReady,
			Iterations:      res.Outcome.State.Iteration,
			IssueCount:      len(report.Issues),
		})
		if !report.SubmissionReady {
			allReady = false
		}
	}

	if formatter.Format == "json" {
		if err := formatter.Success(out); err != nil {
			return err
		}
	} else {
		for _, r := range out {
			mark := "✓"
			if !r.SubmissionReady {
				mark = "✗"
			}
			fmt.Fprintf(formatter.Writer, "%s %s: score %.1f after %d iteration(s), %d issue(s), run %s\n",
				mark, r.Domain, r.Score, r.Iterations, r.IssueCount, r.RunID)
		}
	}

	if !allReady {
		return NewExitError(ExitFailure, "output is not submission ready")
	}
	return nil
}
