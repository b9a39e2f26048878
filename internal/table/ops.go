package table

import "strings"

// Concat appends the selected rows of src to dst. dst adopts src's columns
// when it has none yet.
func Concat(dst, src *Table, rows []int) {
	if dst.Columns == nil {
		dst.Columns = append([]string(nil), src.Columns...)
	}
	for _, i := range rows {
		dst.Rows = append(dst.Rows, append([]Cell(nil), src.Rows[i]...))
	}
}

// Dedupe removes exact full-row duplicates, keeping the first occurrence of
// each row and the original order. Short rows compare equal to the same row
// padded with nulls.
func Dedupe(t *Table) *Table {
	out := &Table{Columns: append([]string(nil), t.Columns...)}
	seen := make(map[string]struct{}, len(t.Rows))
	width := len(t.Columns)

	for _, r := range t.Rows {
		key := rowKey(r, width)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out.Rows = append(out.Rows, r)
	}
	return out
}

func rowKey(r []Cell, width int) string {
	var b strings.Builder
	n := max(len(r), width)
	for i := 0; i < n; i++ {
		var c Cell
		if i < len(r) {
			c = r[i]
		}
		b.WriteByte(byte('0' + c.Kind))
		b.WriteString(c.String())
		b.WriteByte(0x1f)
	}
	return b.String()
}

// Select projects the table onto the requested columns. Names that do not
// exist are silently dropped; the caller's order is kept for the rest.
func Select(t *Table, columns []string) *Table {
	var names []string
	var idx []int
	for _, name := range columns {
		if i := t.ColumnIndex(name); i >= 0 {
			names = append(names, name)
			idx = append(idx, i)
		}
	}

	out := &Table{Columns: names, Rows: make([][]Cell, len(t.Rows))}
	for r := range t.Rows {
		row := make([]Cell, len(idx))
		for j, c := range idx {
			row[j] = t.Cell(r, c)
		}
		out.Rows[r] = row
	}
	return out
}

// Strings renders every row as text, padded to the column count. Null cells
// become "".
func (t *Table) Strings() [][]string {
	out := make([][]string, len(t.Rows))
	for i := range t.Rows {
		row := make([]string, len(t.Columns))
		for j := range row {
			row[j] = t.Cell(i, j).String()
		}
		out[i] = row
	}
	return out
}
