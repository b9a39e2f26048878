package core

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/JonMunkholm/datafinder/internal/loader"
	"github.com/JonMunkholm/datafinder/internal/match"
	"github.com/JonMunkholm/datafinder/internal/perf"
	"github.com/JonMunkholm/datafinder/internal/table"
)

// ErrNoResults is returned by Export when the last search produced no rows.
var ErrNoResults = errors.New("no results to export")

// Session is the stateful search workflow: load a source and a query table,
// define criteria, execute, export. It is safe for concurrent use; loads and
// searches are serialised.
type Session struct {
	loader  *loader.Loader
	engine  *match.Engine
	logger  *slog.Logger
	monitor *perf.Monitor

	mu         sync.Mutex
	source     *table.Table
	query      *table.Table
	results    *table.Table
	sourcePath string
	queryPath  string
}

// NewSession creates an empty session.
func NewSession(ldr *loader.Loader, logger *slog.Logger, monitor *perf.Monitor) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if ldr == nil {
		ldr = loader.New(nil, logger, monitor)
	}
	return &Session{
		loader:  ldr,
		engine:  match.NewEngine(logger, monitor),
		logger:  logger,
		monitor: monitor,
	}
}

// LoadSource replaces the source table. On failure the previous table is kept.
func (s *Session) LoadSource(path string, opts loader.Options) error {
	t, err := s.loader.Load(path, opts)
	if err != nil {
		return fmt.Errorf("load source: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.source, s.sourcePath = t, path
	return nil
}

// LoadQuery replaces the query table. On failure the previous table is kept.
func (s *Session) LoadQuery(path string, opts loader.Options) error {
	t, err := s.loader.Load(path, opts)
	if err != nil {
		return fmt.Errorf("load query: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.query, s.queryPath = t, path
	return nil
}

// AddCriterion appends c to the search. An empty operation means equals.
func (s *Session) AddCriterion(c match.Criterion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.AddCriterion(c)
}

// ResetCriteria removes every criterion. Loaded tables and the last result
// are kept.
func (s *Session) ResetCriteria() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.ResetCriteria()
	s.logger.Info("criteria reset")
}

// Execute runs the search and keeps the result for Export. A failed search
// clears any previous result.
func (s *Session) Execute(columns []string) (*table.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.engine.Match(s.source, s.query, columns)
	if err != nil {
		s.results = nil
		return nil, err
	}
	s.results = result
	return result, nil
}

// Results returns the last successful search result, or nil.
func (s *Session) Results() *table.Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results
}

// Export writes the last result to path. format is "xlsx", "csv" or "tsv";
// empty means the extension of path decides.
func (s *Session) Export(path, format string) error {
	s.mu.Lock()
	results := s.results
	s.mu.Unlock()

	if results == nil || results.NumRows() == 0 {
		return ErrNoResults
	}
	if err := s.loader.Export(results, path, format); err != nil {
		return err
	}
	s.logger.Info("results exported", "path", path, "rows", results.NumRows())
	return nil
}

// TableSummary describes one of the session's tables.
type TableSummary struct {
	Loaded  bool     `json:"loaded"`
	Path    string   `json:"path,omitempty"`
	Rows    int      `json:"rows"`
	Columns []string `json:"columns"`
}

// Summary is a snapshot of the session state.
type Summary struct {
	Source   TableSummary      `json:"source"`
	Query    TableSummary      `json:"query"`
	Results  TableSummary      `json:"results"`
	Criteria []match.Criterion `json:"criteria"`
}

// Summary reports what is loaded: row and column counts for the source,
// query and result tables, plus the current criteria.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summary{
		Source:   summarize(s.source, s.sourcePath),
		Query:    summarize(s.query, s.queryPath),
		Results:  summarize(s.results, ""),
		Criteria: s.engine.Criteria(),
	}
}

func summarize(t *table.Table, path string) TableSummary {
	if t == nil {
		return TableSummary{Columns: []string{}}
	}
	return TableSummary{
		Loaded:  true,
		Path:    path,
		Rows:    t.NumRows(),
		Columns: append([]string{}, t.Columns...),
	}
}
