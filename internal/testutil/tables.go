package testutil

import (
	"github.com/clinforge/sdtmap/internal/source"
)

// Table builds a source table from a header and cell rows. Cells line
// up positionally with the header; empty cells stay absent, matching
// how the CSV loader treats them.
func Table(name string, header []string, cells ...[]string) *source.Table {
	rows := make([]source.Row, len(cells))
	for i, line := range cells {
		row := make(source.Row, len(line))
		for j, cell := range line {
			if j < len(header) && cell != "" {
				row[header[j]] = cell
			}
		}
		rows[i] = row
	}
	return source.NewTable(name, header, rows)
}

// Tables groups tables into a set, panicking on duplicates. Test-only:
// a duplicate table name in a fixture is a bug in the test.
func Tables(tables ...*source.Table) *source.TableSet {
	set, err := source.NewTableSet(tables...)
	if err != nil {
		panic(err)
	}
	return set
}
