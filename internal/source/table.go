// Package source models raw tabular input: named tables of string-keyed
// rows, join-key indexes, and the RowContext lookup closure handed to
// the expression evaluator.
//
// The package performs no I/O. Tables arrive pre-parsed from an
// external provider and are read-only once constructed.
package source

import "fmt"

// Row is one raw source row: column name → raw value. Missing cells
// are simply absent keys.
type Row map[string]string

// Table is a named table of rows with an optional join-key index.
type Table struct {
	Name    string
	Columns []string
	Rows    []Row

	columnSet map[string]bool
	index     map[string][]int // join-key value -> row positions, input order
	joinKey   string
}

// NewTable constructs a table. Columns declares the table's schema;
// rows may omit cells but never add columns outside the schema.
func NewTable(name string, columns []string, rows []Row) *Table {
	t := &Table{
		Name:      name,
		Columns:   append([]string(nil), columns...),
		Rows:      rows,
		columnSet: make(map[string]bool, len(columns)),
	}
	for _, c := range columns {
		t.columnSet[c] = true
	}
	return t
}

// HasColumn reports whether the table declares a column.
func (t *Table) HasColumn(column string) bool {
	return t.columnSet[column]
}

// BuildIndex indexes rows by the given join-key column. Rows with an
// empty key are unreachable through the index: an empty key joins to
// nothing.
func (t *Table) BuildIndex(joinKey string) {
	t.joinKey = joinKey
	t.index = make(map[string][]int)
	for i, row := range t.Rows {
		key := row[joinKey]
		if key == "" {
			continue
		}
		t.index[key] = append(t.index[key], i)
	}
}

// RowsByKey returns the positions of rows matching a join-key value,
// in input order. Requires BuildIndex.
func (t *Table) RowsByKey(key string) []int {
	if t.index == nil {
		return nil
	}
	return t.index[key]
}

// HasDuplicateKeys reports whether any join-key value maps to more
// than one row. Requires BuildIndex.
func (t *Table) HasDuplicateKeys() bool {
	for _, rows := range t.index {
		if len(rows) > 1 {
			return true
		}
	}
	return false
}

// TableSet is the collection of tables backing one domain run.
type TableSet struct {
	tables map[string]*Table
	order  []string
}

// NewTableSet groups tables by name. Duplicate names are a caller bug
// and return an error.
func NewTableSet(tables ...*Table) (*TableSet, error) {
	s := &TableSet{tables: make(map[string]*Table, len(tables))}
	for _, t := range tables {
		if _, dup := s.tables[t.Name]; dup {
			return nil, fmt.Errorf("duplicate table %q", t.Name)
		}
		s.tables[t.Name] = t
		s.order = append(s.order, t.Name)
	}
	return s, nil
}

// Table returns a table by name.
func (s *TableSet) Table(name string) (*Table, bool) {
	t, ok := s.tables[name]
	return t, ok
}

// Names returns the table names in input order.
func (s *TableSet) Names() []string {
	return s.order
}
