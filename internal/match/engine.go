// Package match finds source rows that satisfy column-pair criteria driven by
// the rows of a query table.
package match

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JonMunkholm/datafinder/internal/perf"
	"github.com/JonMunkholm/datafinder/internal/table"
)

var (
	// ErrNotReady means a table is missing or no criteria are defined.
	ErrNotReady = errors.New("source, query and at least one criterion are required")
	// ErrUnknownColumn means a criterion names a column the table lacks.
	ErrUnknownColumn = errors.New("unknown column")
)

// Operation is a comparison applied between a query value and a source cell.
type Operation string

const (
	OpEquals     Operation = "equals"
	OpContains   Operation = "contains"
	OpStartsWith Operation = "startswith"
)

// Operations lists the supported operations.
var Operations = []Operation{OpEquals, OpContains, OpStartsWith}

// Known reports whether op is supported.
func (op Operation) Known() bool {
	switch op {
	case OpEquals, OpContains, OpStartsWith:
		return true
	}
	return false
}

// Criterion compares QueryColumn of each query row against SourceColumn.
type Criterion struct {
	QueryColumn   string    `json:"query_column"`
	SourceColumn  string    `json:"source_column"`
	Operation     Operation `json:"operation"`
	CaseSensitive bool      `json:"case_sensitive"`
}

func (c Criterion) String() string {
	return fmt.Sprintf("%s %s %s", c.QueryColumn, c.Operation, c.SourceColumn)
}

// Engine holds an ordered list of criteria and evaluates them.
type Engine struct {
	logger   *slog.Logger
	monitor  *perf.Monitor
	criteria []Criterion
}

// NewEngine creates an engine with no criteria.
func NewEngine(logger *slog.Logger, monitor *perf.Monitor) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger, monitor: monitor}
}

// AddCriterion appends c. An empty operation means equals.
func (e *Engine) AddCriterion(c Criterion) {
	if c.Operation == "" {
		c.Operation = OpEquals
	}
	e.criteria = append(e.criteria, c)
	e.logger.Info("criterion added", "criterion", c.String(), "case_sensitive", c.CaseSensitive)
}

// ResetCriteria removes every criterion.
func (e *Engine) ResetCriteria() { e.criteria = nil }

// Criteria returns a copy of the current criteria.
func (e *Engine) Criteria() []Criterion { return append([]Criterion(nil), e.criteria...) }

// Match evaluates the criteria for every query row, in query order, and
// returns the union of the selected source rows with exact duplicates
// removed. A null query value leaves its criterion unconstrained for that
// row; a null source cell never matches. Criteria with an unknown operation
// are skipped. An empty query table yields an empty result without checking
// the criteria's columns. When columns is non-empty the result is projected
// onto the listed columns that exist, in the caller's order.
func (e *Engine) Match(source, query *table.Table, columns []string) (result *table.Table, err error) {
	span := e.monitor.Start("match")
	defer span.Stop(&err)

	if source == nil || query == nil || len(e.criteria) == 0 {
		e.logger.Error("match not ready", "source", source != nil, "query", query != nil, "criteria", len(e.criteria))
		return nil, ErrNotReady
	}

	if query.NumRows() == 0 {
		e.logger.Info("query table has no rows, nothing to match")
		result = &table.Table{Columns: append([]string(nil), source.Columns...)}
		if len(columns) > 0 {
			result = table.Select(result, columns)
		}
		return result, nil
	}

	plan, err := e.compile(source, query)
	if err != nil {
		e.logger.Error("match failed", "error", err)
		return nil, err
	}

	e.logger.Info("running match", "source_rows", source.NumRows(), "query_rows", query.NumRows(), "criteria", len(plan))

	result = &table.Table{Columns: append([]string(nil), source.Columns...)}
	mask := make([]bool, source.NumRows())
	selected := make([]int, 0, len(mask))

	for q := range query.Rows {
		for i := range mask {
			mask[i] = true
		}
		for _, p := range plan {
			p.apply(query.Cell(q, p.queryCol), mask)
		}

		selected = selected[:0]
		for i, ok := range mask {
			if ok {
				selected = append(selected, i)
			}
		}
		table.Concat(result, source, selected)
	}

	result = table.Dedupe(result)
	if len(columns) > 0 {
		result = table.Select(result, columns)
	}

	e.logger.Info("match complete", "results", result.NumRows())
	return result, nil
}

// compiled is a criterion resolved against concrete tables, with the source
// column pre-rendered for comparison.
type compiled struct {
	Criterion
	queryCol int
	source   []string
	present  []bool
}

func (e *Engine) compile(source, query *table.Table) ([]compiled, error) {
	plan := make([]compiled, 0, len(e.criteria))
	for _, c := range e.criteria {
		qc := query.ColumnIndex(c.QueryColumn)
		if qc < 0 {
			return nil, fmt.Errorf("%w: query column %q", ErrUnknownColumn, c.QueryColumn)
		}
		if !c.Operation.Known() {
			e.logger.Warn("operation not supported, criterion skipped", "operation", string(c.Operation), "criterion", c.String())
			continue
		}
		sc := source.ColumnIndex(c.SourceColumn)
		if sc < 0 {
			return nil, fmt.Errorf("%w: source column %q", ErrUnknownColumn, c.SourceColumn)
		}

		p := compiled{
			Criterion: c,
			queryCol:  qc,
			source:    make([]string, source.NumRows()),
			present:   make([]bool, source.NumRows()),
		}
		for r := range source.Rows {
			cell := source.Cell(r, sc)
			if cell.IsNull() {
				continue
			}
			p.present[r] = true
			p.source[r] = p.fold(cell.String())
		}
		plan = append(plan, p)
	}
	return plan, nil
}

func (p compiled) fold(s string) string {
	if p.CaseSensitive {
		return s
	}
	return strings.ToLower(s)
}

// apply ANDs this criterion's result for query value v into mask.
func (p compiled) apply(v table.Cell, mask []bool) {
	if v.IsNull() {
		return
	}
	want := p.fold(v.String())

	for i := range mask {
		if !mask[i] {
			continue
		}
		if !p.present[i] {
			mask[i] = false
			continue
		}
		got := p.source[i]
		switch p.Operation {
		case OpEquals:
			mask[i] = got == want
		case OpContains:
			mask[i] = strings.Contains(got, want)
		case OpStartsWith:
			mask[i] = strings.HasPrefix(got, want)
		}
	}
}
