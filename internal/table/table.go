// Package table provides the flat row/column model shared by the loaders,
// the raw package extractor and the matching engine.
//
// A Table is deliberately simple: ordered column names plus rows of scalar
// cells. Column names need not be unique; lookups by name resolve to the
// first column carrying that name, while positional access always works.
package table

import (
	"strconv"
	"strings"
)

// Kind identifies the scalar type held by a Cell.
type Kind uint8

const (
	KindNull Kind = iota
	KindText
	KindNumber
)

// Cell is a single scalar value. The zero value is null.
type Cell struct {
	Kind Kind
	Text string
	Num  float64
}

// Null returns a null cell.
func Null() Cell { return Cell{} }

// Text returns a text cell.
func Text(s string) Cell { return Cell{Kind: KindText, Text: s} }

// Number returns a numeric cell.
func Number(f float64) Cell { return Cell{Kind: KindNumber, Num: f} }

// IsNull reports whether the cell holds no value.
func (c Cell) IsNull() bool { return c.Kind == KindNull }

// String returns the text form of the cell. Null cells render as "".
// Whole numbers render without a fractional part ("42", not "42.0").
func (c Cell) String() string {
	switch c.Kind {
	case KindText:
		return c.Text
	case KindNumber:
		return strconv.FormatFloat(c.Num, 'f', -1, 64)
	default:
		return ""
	}
}

// Value returns the cell as a native Go value: nil, string or float64.
func (c Cell) Value() any {
	switch c.Kind {
	case KindText:
		return c.Text
	case KindNumber:
		return c.Num
	default:
		return nil
	}
}

// Equal reports whether two cells hold the same kind and value.
func (c Cell) Equal(o Cell) bool {
	if c.Kind != o.Kind {
		return false
	}
	switch c.Kind {
	case KindText:
		return c.Text == o.Text
	case KindNumber:
		return c.Num == o.Num
	default:
		return true
	}
}

// Infer converts raw file text into a cell: empty text is null, plain
// numeric literals become numbers, everything else stays text. Literals with
// a leading zero ("0119") are kept as text so phone numbers and codes
// survive untouched.
func Infer(s string) Cell {
	if strings.TrimSpace(s) == "" {
		return Null()
	}
	if !numericLiteral(s) {
		return Text(s)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Text(s)
	}
	return Number(f)
}

func numericLiteral(s string) bool {
	digits := s
	if strings.HasPrefix(digits, "-") {
		digits = digits[1:]
	}
	if digits == "" {
		return false
	}
	intPart, frac, hasDot := strings.Cut(digits, ".")
	if intPart == "" || (hasDot && frac == "") {
		return false
	}
	if len(intPart) > 1 && intPart[0] == '0' {
		return false
	}
	for _, part := range []string{intPart, frac} {
		for i := 0; i < len(part); i++ {
			if part[i] < '0' || part[i] > '9' {
				return false
			}
		}
	}
	return true
}

// Table is an ordered set of named columns and rows of cells.
type Table struct {
	Columns []string
	Rows    [][]Cell
}

// New creates an empty table with the given columns.
func New(columns ...string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

// Empty returns a table with neither columns nor rows.
func Empty() *Table { return &Table{} }

// NumRows returns the number of data rows.
func (t *Table) NumRows() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// NumCols returns the number of columns.
func (t *Table) NumCols() int {
	if t == nil {
		return 0
	}
	return len(t.Columns)
}

// IsEmpty reports whether the table has no usable data: no rows or no columns.
func (t *Table) IsEmpty() bool {
	return t.NumRows() == 0 || t.NumCols() == 0
}

// ColumnIndex returns the position of the first column named name, or -1.
func (t *Table) ColumnIndex(name string) int {
	if t == nil {
		return -1
	}
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether a column named name exists.
func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// Cell returns the cell at (row, col). Positions past the end of a short
// row read as null.
func (t *Table) Cell(row, col int) Cell {
	if row < 0 || row >= len(t.Rows) || col < 0 {
		return Null()
	}
	r := t.Rows[row]
	if col >= len(r) {
		return Null()
	}
	return r[col]
}

// AppendRow adds a row, padding it with nulls to the column count.
func (t *Table) AppendRow(cells ...Cell) {
	row := make([]Cell, max(len(cells), len(t.Columns)))
	copy(row, cells)
	t.Rows = append(t.Rows, row)
}

// AddColumn appends a column filled with nulls and returns its index.
func (t *Table) AddColumn(name string) int {
	t.Columns = append(t.Columns, name)
	idx := len(t.Columns) - 1
	for i, r := range t.Rows {
		if len(r) <= idx {
			padded := make([]Cell, idx+1)
			copy(padded, r)
			t.Rows[i] = padded
		}
	}
	return idx
}

// Set stores a cell, growing the row if needed.
func (t *Table) Set(row, col int, c Cell) {
	r := t.Rows[row]
	if col >= len(r) {
		grown := make([]Cell, col+1)
		copy(grown, r)
		r = grown
		t.Rows[row] = r
	}
	r[col] = c
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	out := &Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([][]Cell, len(t.Rows)),
	}
	for i, r := range t.Rows {
		out.Rows[i] = append([]Cell(nil), r...)
	}
	return out
}
