package cli

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clinforge/sdtmap/internal/score"
	"github.com/clinforge/sdtmap/internal/store"
)

// ScoreOptions holds flags for the score command.
type ScoreOptions struct {
	*RootOptions
	Database string
	Weights  string
}

// NewScoreCommand creates the score command.
func NewScoreCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "score <run-id>",
		Short: "Re-score an archived run",
		Long: `Re-score the validation findings of an archived run, optionally under a
different weight table. The archive is never modified; the original
score stays on record.

Example:
  sdtmap score --db ./runs.db 0190a7e2-...
  sdtmap score --db ./runs.db 0190a7e2-... --weights strict.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScoreCmd(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite run archive (required)")
	cmd.Flags().StringVar(&opts.Weights, "weights", "", "scoring weight YAML file")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runScoreCmd(opts *ScoreOptions, runID string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	scoreCfg, err := loadScoreConfig(formatter, opts.Weights)
	if err != nil {
		return err
	}

	archive, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open run archive", err)
	}
	defer archive.Close()

	run, err := archive.ReadRun(cmd.Context(), runID)
	if errors.Is(err, sql.ErrNoRows) {
		msg := fmt.Sprintf("run %s not found in archive", runID)
		_ = formatter.Error(ErrCodeNotFound, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "reading run", err)
	}

	issues, err := archive.ReadIssues(cmd.Context(), runID)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "reading issues", err)
	}

	report := score.New(scoreCfg).Score(run.Domain, issues)
	report.RunID = run.ID

	if formatter.Format == "json" {
		return formatter.Success(report)
	}

	fmt.Fprintf(formatter.Writer, "run %s (domain %s)\n", run.ID, run.Domain)
	fmt.Fprintf(formatter.Writer, "  archived score: %.1f (ready: %v)\n", run.Score, run.SubmissionReady)
	fmt.Fprintf(formatter.Writer, "  re-scored:      %.1f (ready: %v)\n\n", report.Score, report.SubmissionReady)
	for _, ls := range report.LayerScores {
		fmt.Fprintf(formatter.Writer, "    %-12s %6.1f (%d issue(s))\n", ls.Layer, ls.Score, ls.IssueCount)
	}
	return nil
}
