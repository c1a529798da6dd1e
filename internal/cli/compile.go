package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clinforge/sdtmap/internal/compiler"
	"github.com/clinforge/sdtmap/internal/sdtm"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompiledDomainSummary is the JSON-facing view of one compiled domain.
type CompiledDomainSummary struct {
	Domain    string             `json:"domain"`
	Config    *sdtm.DomainConfig `json:"config"`
	Rules     []ruleSummary      `json:"rules"`
	RuleCount int                `json:"rule_count"`
}

type ruleSummary struct {
	Variable    string `json:"variable"`
	Order       int    `json:"order"`
	Type        string `json:"type"`
	Length      int    `json:"length,omitempty"`
	Requirement string `json:"requirement"`
	Expression  string `json:"expression"`
	Codelist    string `json:"codelist,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <specs-dir>",
		Short: "Compile CUE mapping specs",
		Long: `Compile CUE mapping specifications to rule sets and domain configurations.

The compiler parses CUE files, parses every mapping expression to its AST,
validates the result against the schema rules, and reports what it built.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompileCmd(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompileCmd(opts *CompileOptions, specsDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	domains, loadErrors := LoadSpecs(specsDir)
	if domains == nil && len(loadErrors) > 0 {
		return outputLoadError(formatter, loadErrors[0])
	}

	for _, d := range domains {
		formatter.VerboseLog("Compiled domain: %s (%d rules)", d.Config.Domain, len(d.Rules.Rules))
	}

	if len(loadErrors) > 0 {
		return outputCompileErrors(formatter, loadErrors)
	}

	summaries := make([]CompiledDomainSummary, len(domains))
	for i, d := range domains {
		summaries[i] = summarizeDomain(d)
	}

	if opts.Output != "" {
		if err := writeJSONFile(summaries, opts.Output); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
			return WrapExitError(ExitCommandError, "writing output file", err)
		}
	}

	return outputCompileSuccess(formatter, summaries, opts.Output)
}

func summarizeDomain(d compiler.CompiledDomain) CompiledDomainSummary {
	s := CompiledDomainSummary{
		Domain:    d.Config.Domain,
		Config:    d.Config,
		RuleCount: len(d.Rules.Rules),
	}
	for _, r := range d.Rules.Rules {
		s.Rules = append(s.Rules, ruleSummary{
			Variable:    r.Variable,
			Order:       r.Order,
			Type:        string(r.Type),
			Length:      r.Length,
			Requirement: string(r.Requirement),
			Expression:  r.Expression.String(),
			Codelist:    r.Codelist,
		})
	}
	return s
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, summaries []CompiledDomainSummary, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(summaries)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %d domain(s)\n\n", len(summaries))
	for _, s := range summaries {
		fmt.Fprintf(formatter.Writer, "  %s: %d variable(s), primary table %s\n",
			s.Domain, s.RuleCount, s.Config.PrimaryTable)
	}
	fmt.Fprintln(formatter.Writer)

	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "Wrote compiled mapping to %s\n", outputFile)
	}

	return nil
}

// outputLoadError outputs a single load error and maps it to exit code 2.
func outputLoadError(formatter *OutputFormatter, err error) error {
	if loadErr, ok := err.(*LoadError); ok {
		_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
		return WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", loadErr.Code, loadErr.Message), nil)
	}
	_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
	return WrapExitError(ExitCommandError, err.Error(), nil)
}

// outputCompileErrors outputs multiple compilation errors.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := parseLoadError(err)
			cliErrors[i] = CLIError{Code: code, Message: message}
		}

		response := CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors, // Include all errors in data
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		code, message := parseLoadError(err)
		if loadErr, ok := err.(*LoadError); ok && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}

	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

// parseLoadError extracts error code and message from an error.
func parseLoadError(err error) (string, string) {
	if loadErr, ok := err.(*LoadError); ok {
		return loadErr.Code, loadErr.Message
	}
	return ErrCodeGeneric, err.Error()
}

// writeJSONFile writes a payload to a file as indented JSON.
func writeJSONFile(payload any, filename string) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling output: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
