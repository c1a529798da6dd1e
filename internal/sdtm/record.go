package sdtm

import "github.com/clinforge/sdtmap/internal/expr"

// FieldDiagnostic attaches a recovered evaluation defect to one field
// of one record. Diagnostics never abort a run; the Validator reads
// them when scoring the output.
type FieldDiagnostic struct {
	Variable string `json:"variable"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// OutputRecord is one standardized record: an ordered variable→value
// mapping for a single grain unit, plus any per-field diagnostics
// collected while deriving it.
//
// Variable order is declaration order from the rule set. Values are
// strings throughout; typed interpretation (numeric, date) happens at
// the point of use.
type OutputRecord struct {
	Domain      string            `json:"domain"`
	Variables   []string          `json:"variables"`
	Values      map[string]string `json:"values"`
	Diagnostics []FieldDiagnostic `json:"diagnostics,omitempty"`

	// SourceIndex is the grain unit's stable position in the source
	// input. It is the declared deterministic tie-break for ordering.
	SourceIndex int `json:"source_index"`
}

// NewOutputRecord creates an empty record for a domain grain unit.
func NewOutputRecord(domain string, sourceIndex int) *OutputRecord {
	return &OutputRecord{
		Domain:      domain,
		Values:      make(map[string]string),
		SourceIndex: sourceIndex,
	}
}

// Set stores a variable's value, appending to the declared order on
// first write.
func (r *OutputRecord) Set(variable, value string) {
	if _, exists := r.Values[variable]; !exists {
		r.Variables = append(r.Variables, variable)
	}
	r.Values[variable] = value
}

// Get returns a variable's value and whether the variable exists on
// the record at all (an existing variable may hold "").
func (r *OutputRecord) Get(variable string) (string, bool) {
	v, ok := r.Values[variable]
	return v, ok
}

// Value returns a variable's value, or "" when absent.
func (r *OutputRecord) Value(variable string) string {
	return r.Values[variable]
}

// AddDiagnostics attaches evaluator diagnostics under a variable name.
func (r *OutputRecord) AddDiagnostics(variable string, diags []expr.Diagnostic) {
	for _, d := range diags {
		r.Diagnostics = append(r.Diagnostics, FieldDiagnostic{
			Variable: variable,
			Code:     d.Code,
			Message:  d.Message,
		})
	}
}

// recordContext adapts an OutputRecord to expr.Context so business-rule
// conditions can read standardized values. Table qualifiers are not
// meaningful on output records and never resolve.
type recordContext struct {
	record *OutputRecord
}

// AsContext exposes the record to the expression evaluator.
func (r *OutputRecord) AsContext() expr.Context {
	return recordContext{record: r}
}

func (c recordContext) Lookup(table, column string) (string, bool) {
	if table != "" {
		return "", false
	}
	return c.record.Get(column)
}
