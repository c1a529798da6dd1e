package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clinforge/sdtmap/internal/engine"
	"github.com/clinforge/sdtmap/internal/score"
	"github.com/clinforge/sdtmap/internal/sdtm"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Data      string
	Domain    string
	Codelists string
	Weights   string // scoring weight YAML
	Output    string
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <specs-dir>",
		Short: "Transform, validate, and score one pass",
		Long: `Run a single transform pass, validate the output through every enabled
layer, and score the findings. No correction iterations are attempted -
use run for the bounded correction loop.

Exit code is 0 when every domain is submission ready, 1 otherwise.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidateCmd(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Data, "data", "", "path to source CSV directory (required)")
	cmd.Flags().StringVar(&opts.Domain, "domain", "", "restrict to one domain code")
	cmd.Flags().StringVar(&opts.Codelists, "codelists", "", "controlled-terminology YAML file")
	cmd.Flags().StringVar(&opts.Weights, "weights", "", "scoring weight YAML file")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

func runValidateCmd(opts *ValidateOptions, specsDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	domains, codelists, err := loadRunInputs(formatter, specsDir, opts.Data, opts.Domain, opts.Codelists)
	if err != nil {
		return err
	}

	scoreCfg, err := loadScoreConfig(formatter, opts.Weights)
	if err != nil {
		return err
	}

	eng := engine.New(
		engine.WithCodelists(codelists),
		engine.WithScoreConfig(scoreCfg),
	)

	var reports []sdtm.ComplianceReport
	allReady := true
	for _, d := range domains {
		records, err := eng.Transform(cmd.Context(), d)
		if err != nil {
			_ = formatter.Error(ErrCodeRun, err.Error(), nil)
			return WrapExitError(ExitCommandError, "transform failed", err)
		}
		report := eng.Validate(d, records)
		formatter.VerboseLog("Validated domain %s: score %.1f, %d issue(s)",
			report.Domain, report.Score, len(report.Issues))
		reports = append(reports, report)
		if !report.SubmissionReady {
			allReady = false
		}
	}

	if opts.Output != "" {
		if err := writeJSONFile(reports, opts.Output); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
			return WrapExitError(ExitCommandError, "writing output file", err)
		}
	}

	if err := outputReports(formatter, reports); err != nil {
		return err
	}

	if !allReady {
		return NewExitError(ExitFailure, "output is not submission ready")
	}
	return nil
}

// loadScoreConfig reads the weight table, or returns the defaults when
// no file is given.
func loadScoreConfig(formatter *OutputFormatter, path string) (score.Config, error) {
	if path == "" {
		return score.DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("weights file: %v", err), nil)
		return score.Config{}, WrapExitError(ExitCommandError, "weights file", err)
	}
	cfg, err := score.LoadConfig(data)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return score.Config{}, WrapExitError(ExitCommandError, "weights file", err)
	}
	return cfg, nil
}

// outputReports renders compliance reports in the configured format.
func outputReports(formatter *OutputFormatter, reports []sdtm.ComplianceReport) error {
	if formatter.Format == "json" {
		return formatter.Success(reports)
	}

	for _, r := range reports {
		mark := "✓"
		if !r.SubmissionReady {
			mark = "✗"
		}
		fmt.Fprintf(formatter.Writer, "%s %s: score %.1f, submission ready: %v\n",
			mark, r.Domain, r.Score, r.SubmissionReady)

		for _, ls := range r.LayerScores {
			fmt.Fprintf(formatter.Writer, "    %-12s %6.1f (%d issue(s))\n", ls.Layer, ls.Score, ls.IssueCount)
		}
		if len(r.Issues) > 0 {
			fmt.Fprintln(formatter.Writer)
			for _, iss := range r.Issues {
				fmt.Fprintf(formatter.Writer, "    [%s] %s %s: %s (×%d)\n",
					iss.RuleID, iss.Severity, iss.Variable, iss.Message, iss.Count)
			}
		}
		fmt.Fprintln(formatter.Writer)
	}
	return nil
}
