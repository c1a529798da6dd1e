package cli

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"

	"github.com/clinforge/sdtmap/internal/compiler"
	"github.com/clinforge/sdtmap/internal/sdtm"
	"github.com/clinforge/sdtmap/internal/source"
)

// LoadError represents an error that occurred during spec or data
// loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadSpecs loads and compiles CUE mapping specs from a directory.
// Every domain in every .cue file is compiled and schema-validated;
// validation findings are collected, not fail-fast.
func LoadSpecs(dir string) ([]compiler.CompiledDomain, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("specs directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing specs directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	cfg := &load.Config{Dir: dir}
	instances := load.Instances([]string{"."}, cfg)
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}

	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	domains, err := compiler.CompileAll(value)
	if err != nil {
		return nil, []error{convertCompileError(err)}
	}

	var errs []error
	for _, d := range domains {
		for _, verr := range compiler.Validate(d) {
			errs = append(errs, &LoadError{Code: verr.Code, Message: fmt.Sprintf("%s: %s: %s", d.Config.Domain, verr.Field, verr.Message)})
		}
	}

	return domains, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// LoadTables reads every .csv file in a directory into a table set.
// The table name is the base filename without extension, upper-cased;
// the first CSV row is the header.
func LoadTables(dir string) (*source.TableSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("data directory: %v", err)}
	}

	var tables []*source.Table
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".csv" {
			continue
		}
		name := strings.ToUpper(strings.TrimSuffix(entry.Name(), ".csv"))
		t, err := loadCSVTable(name, filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	if len(tables) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CSV files found in %s", dir)}
	}

	set, err := source.NewTableSet(tables...)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
	}
	return set, nil
}

// loadCSVTable parses one CSV file. Short rows leave trailing cells
// absent; long rows are a format error.
func loadCSVTable(name, path string) (*source.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("open %s: %v", path, err)}
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // ragged rows handled below
	all, err := r.ReadAll()
	if err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("parse %s: %v", path, err)}
	}
	if len(all) == 0 {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("%s: empty CSV, header row required", path)}
	}

	header := all[0]
	rows := make([]source.Row, 0, len(all)-1)
	for i, record := range all[1:] {
		if len(record) > len(header) {
			return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("%s: row %d has %d cells, header has %d", path, i+2, len(record), len(header))}
		}
		row := make(source.Row, len(record))
		for j, cell := range record {
			if cell != "" {
				row[header[j]] = cell
			}
		}
		rows = append(rows, row)
	}

	return source.NewTable(name, header, rows), nil
}

// codelistFile is the YAML shape of a controlled-terminology file.
type codelistFile struct {
	Codelists map[string]struct {
		Terms  []string          `yaml:"terms"`
		Decode map[string]string `yaml:"decode"`
	} `yaml:"codelists"`
}

// LoadCodelists parses a YAML controlled-terminology file.
func LoadCodelists(path string) (sdtm.Codelists, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("codelists file: %v", err)}
	}

	var file codelistFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("parse codelists: %v", err)}
	}

	lists := make(sdtm.Codelists, len(file.Codelists))
	for name, def := range file.Codelists {
		lists[name] = sdtm.NewCodelist(name, def.Terms, def.Decode)
	}
	return lists, nil
}

// convertCompileError converts a compiler error to a LoadError with
// position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    ErrCodeCompile,
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: err.Error(),
	}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No input files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeCompile     = "E008" // Mapping spec compile error
	ErrCodeRun         = "E009" // Engine run error
)
