package storage

import "github.com/use-agent/scrollsnap/models"

// Table is a rectangular set of string rows under named columns.
type Table struct {
	Columns []string
	Rows    [][]string
}

// TableFromRecords lays records out as a table. Columns appear in first-seen
// order across the records; a record without a column gets "".
func TableFromRecords(records []models.Record) *Table {
	t := &Table{}
	index := make(map[string]int)
	for _, rec := range records {
		for _, k := range rec.Keys() {
			if _, ok := index[k]; !ok {
				index[k] = len(t.Columns)
				t.Columns = append(t.Columns, k)
			}
		}
	}
	t.Rows = make([][]string, 0, len(records))
	for _, rec := range records {
		row := make([]string, len(t.Columns))
		for i, col := range t.Columns {
			row[i] = rec.Value(col)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// Records converts the table back into records with every column set.
func (t *Table) Records() []models.Record {
	out := make([]models.Record, 0, len(t.Rows))
	for _, row := range t.Rows {
		var rec models.Record
		for i, col := range t.Columns {
			v := ""
			if i < len(row) {
				v = row[i]
			}
			rec.Set(col, v)
		}
		out = append(out, rec)
	}
	return out
}

// ColumnIndex returns the position of col, or -1.
func (t *Table) ColumnIndex(col string) int {
	for i, c := range t.Columns {
		if c == col {
			return i
		}
	}
	return -1
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }
