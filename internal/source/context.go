package source

// MeasureTable is the reserved qualifier exposing the current
// measurement of a vertical (unpivoted) grain unit to expressions.
// MEASURE.CODE, MEASURE.NAME, MEASURE.VALUE, and MEASURE.UNIT resolve
// here; the qualifier never names a physical table.
const MeasureTable = "MEASURE"

// Measure column names within the reserved MEASURE qualifier.
const (
	MeasureCode  = "CODE"
	MeasureName  = "NAME"
	MeasureValue = "VALUE"
	MeasureUnit  = "UNIT"
)

// RowContext resolves field references for one grain unit.
//
// Resolution rules:
//   - unqualified column      → current row in the primary table
//   - primary-table qualifier → same as unqualified
//   - MEASURE qualifier       → current measurement (vertical grain only)
//   - other table qualifier   → join-key match into that table
//
// Duplicate join-key matches coalesce deterministically: rows are
// scanned in input order and the first row holding a non-empty value
// wins. Tables where duplicates can occur must be listed in the domain
// configuration's pinned tables; the transformer rejects the run
// otherwise, so the input-order coalesce is always declared, never an
// unnoticed accident.
//
// When derived-input reads are enabled for a rule set, unqualified
// columns absent from the primary row fall back to the in-progress
// record's own values.
type RowContext struct {
	primaryTable string
	primary      Row
	joinKey      string
	tables       *TableSet

	measure map[string]string // nil unless vertical grain

	// derived exposes already-computed record values when the rule set
	// allows forward references. Nil otherwise.
	derived func(column string) (string, bool)
}

// NewRowContext builds the lookup closure for one primary row.
func NewRowContext(tables *TableSet, primaryTable string, primary Row, joinKey string) *RowContext {
	return &RowContext{
		primaryTable: primaryTable,
		primary:      primary,
		joinKey:      joinKey,
		tables:       tables,
	}
}

// WithMeasure attaches the current measurement for a vertical grain
// unit and returns the context for chaining.
func (c *RowContext) WithMeasure(code, name, value, unit string) *RowContext {
	c.measure = map[string]string{
		MeasureCode:  code,
		MeasureName:  name,
		MeasureValue: value,
		MeasureUnit:  unit,
	}
	return c
}

// WithDerived enables fall-through reads of already-derived record
// values for unqualified columns missing from the primary row.
func (c *RowContext) WithDerived(lookup func(column string) (string, bool)) *RowContext {
	c.derived = lookup
	return c
}

// Lookup implements expr.Context.
func (c *RowContext) Lookup(table, column string) (string, bool) {
	switch table {
	case "", c.primaryTable:
		if v, ok := c.primary[column]; ok {
			return v, true
		}
		if table == "" && c.derived != nil {
			return c.derived(column)
		}
		return "", false

	case MeasureTable:
		if c.measure == nil {
			return "", false
		}
		v, ok := c.measure[column]
		return v, ok

	default:
		return c.lookupJoined(table, column)
	}
}

// lookupJoined resolves a qualified reference through the join key.
func (c *RowContext) lookupJoined(table, column string) (string, bool) {
	t, ok := c.tables.Table(table)
	if !ok {
		return "", false
	}
	key := c.primary[c.joinKey]
	if key == "" {
		return "", false
	}

	var first string
	var found bool
	for _, i := range t.RowsByKey(key) {
		v, ok := t.Rows[i][column]
		if !ok {
			continue
		}
		if v != "" {
			return v, true
		}
		if !found {
			first, found = v, true
		}
	}
	return first, found
}
