package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clinforge/sdtmap/internal/engine"
	"github.com/clinforge/sdtmap/internal/sdtm"
)

// TransformOptions holds flags for the transform command.
type TransformOptions struct {
	*RootOptions
	Data      string // source CSV directory
	Domain    string // restrict to one domain
	Codelists string // controlled-terminology YAML
	Output    string // output file path
}

// NewTransformCommand creates the transform command.
func NewTransformCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TransformOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "transform <specs-dir>",
		Short: "Transform raw source tables to standardized records",
		Long: `Run the two-pass transformation for every compiled domain.

Source tables are read from the --data directory (one CSV per table,
filename is the table name). Records are printed per domain; validation
and scoring are not run - use validate or run for that.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransformCmd(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Data, "data", "", "path to source CSV directory (required)")
	cmd.Flags().StringVar(&opts.Domain, "domain", "", "restrict to one domain code")
	cmd.Flags().StringVar(&opts.Codelists, "codelists", "", "controlled-terminology YAML file")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

func runTransformCmd(opts *TransformOptions, specsDir string, cmd *cobra.Command) error {
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

	eng := engine.New(engine.WithCodelists(codelists))

	type domainRecords struct {
		Domain  string               `json:"domain"`
		Records []*sdtm.OutputRecord `json:"records"`
	}
	var out []domainRecords

	for _, d := range domains {
		records, err := eng.Transform(cmd.Context(), d)
		if err != nil {
			_ = formatter.Error(ErrCodeRun, err.Error(), nil)
			return WrapExitError(ExitCommandError, "transform failed", err)
		}
		formatter.VerboseLog("Transformed domain %s: %d record(s)", d.Config.Domain, len(records))
		out = append(out, domainRecords{Domain: d.Config.Domain, Records: records})
	}

	if opts.Output != "" {
		if err := writeJSONFile(out, opts.Output); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
			return WrapExitError(ExitCommandError, "writing output file", err)
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(out)
	}

	for _, dr := range out {
		fmt.Fprintf(formatter.Writer, "%s: %d record(s)\n", dr.Domain, len(dr.Records))
		for _, rec := range dr.Records {
			for i, v := range rec.Variables {
				if i > 0 {
					fmt.Fprint(formatter.Writer, "  ")
				}
				fmt.Fprintf(formatter.Writer, "%s=%s", v, rec.Values[v])
			}
			fmt.Fprintln(formatter.Writer)
		}
		fmt.Fprintln(formatter.Writer)
	}
	if opts.Output != "" {
		fmt.Fprintf(formatter.Writer, "Wrote records to %s\n", opts.Output)
	}
	return nil
}

// loadRunInputs is the shared front half of transform, validate, and
// run: compile the specs, read the source tables, and bundle them into
// per-domain inputs. Any failure here is a command error (exit 2).
func loadRunInputs(formatter *OutputFormatter, specsDir, dataDir, only, codelistPath string) ([]engine.Domain, sdtm.Codelists, error) {
	compiled, loadErrors := LoadSpecs(specsDir)
	if compiled == nil && len(loadErrors) > 0 {
		return nil, nil, outputLoadError(formatter, loadErrors[0])
	}
	if len(loadErrors) > 0 {
		return nil, nil, outputCompileErrors(formatter, loadErrors)
	}

	tables, err := LoadTables(dataDir)
	if err != nil {
		return nil, nil, outputLoadError(formatter, err)
	}

	var codelists sdtm.Codelists
	if codelistPath != "" {
		codelists, err = LoadCodelists(codelistPath)
		if err != nil {
			return nil, nil, outputLoadError(formatter, err)
		}
	}

	var domains []engine.Domain
	for _, d := range compiled {
		if only != "" && d.Config.Domain != only {
			continue
		}
		domains = append(domains, engine.Domain{Config: d.Config, Rules: d.Rules, Tables: tables})
	}
	if len(domains) == 0 {
		msg := "specs compiled to no domains"
		if only != "" {
			msg = fmt.Sprintf("domain %q not found in specs", only)
		}
		_ = formatter.Error(ErrCodeNotFound, msg, nil)
		return nil, nil, NewExitError(ExitCommandError, msg)
	}

	return domains, codelists, nil
}
