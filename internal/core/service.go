package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/datafinder/internal/history"
	"github.com/JonMunkholm/datafinder/internal/loader"
	"github.com/JonMunkholm/datafinder/internal/match"
	"github.com/JonMunkholm/datafinder/internal/merge"
	"github.com/JonMunkholm/datafinder/internal/perf"
	"github.com/JonMunkholm/datafinder/internal/table"
	"github.com/JonMunkholm/datafinder/internal/verify"
)

// MatchPreviewRows caps the rows returned inline with a match result.
const MatchPreviewRows = 50

// recordTimeout bounds a history write after the run itself has finished.
var recordTimeout = 5 * time.Second

// ServiceConfig wires a Service. A nil Loader gets one with default
// settings, a nil History disables run recording and a nil Limiter admits
// one run at a time.
type ServiceConfig struct {
	Loader      *loader.Loader
	History     history.Store
	Limiter     *RunLimiter
	Monitor     *perf.Monitor
	Logger      *slog.Logger
	Merge       merge.Options
	PreviewRows int
}

// Service runs searches and merges on behalf of the CLI and HTTP layers.
// Every run holds a limiter slot for its whole duration because the raw
// extractor unpacks into a single temp directory.
type Service struct {
	loader   *loader.Loader
	verifier *verify.Verifier
	history  history.Store
	limiter  *RunLimiter
	monitor  *perf.Monitor
	logger   *slog.Logger
	merge    merge.Options
	now      func() time.Time
}

func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ldr := cfg.Loader
	if ldr == nil {
		ldr = loader.New(nil, logger, cfg.Monitor)
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = NewRunLimiter(DefaultMaxConcurrentRuns, DefaultMaxRunWait)
	}
	return &Service{
		loader:   ldr,
		verifier: verify.NewVerifier(ldr, logger, cfg.PreviewRows),
		history:  cfg.History,
		limiter:  limiter,
		monitor:  cfg.Monitor,
		logger:   logger,
		merge:    cfg.Merge,
		now:      time.Now,
	}
}

// MatchRequest describes one search run.
type MatchRequest struct {
	SourcePath  string `json:"source"`
	QueryPath   string `json:"query"`
	SourceSheet string `json:"source_sheet,omitempty"`
	QuerySheet  string `json:"query_sheet,omitempty"`

	// Raw routes the source spreadsheet through the raw package extractor.
	Raw bool `json:"raw,omitempty"`

	Criteria []match.Criterion `json:"criteria"`
	Columns  []string          `json:"columns,omitempty"`

	// OutputPath, when set, receives the result. An empty result is then
	// an error.
	OutputPath   string `json:"output,omitempty"`
	OutputFormat string `json:"format,omitempty"`
}

// MatchResult is the outcome of RunMatch.
type MatchResult struct {
	RunID      uuid.UUID    `json:"run_id"`
	SourceRows int          `json:"source_rows"`
	QueryRows  int          `json:"query_rows"`
	Rows       int          `json:"rows"`
	Columns    []string     `json:"columns"`
	Preview    [][]string   `json:"preview"`
	OutputPath string       `json:"output_path,omitempty"`
	Table      *table.Table `json:"-"`
}

// RunMatch loads both tables, applies the criteria and optionally exports
// the result.
func (s *Service) RunMatch(ctx context.Context, req MatchRequest) (res MatchResult, err error) {
	if err := req.Validate(); err != nil {
		return res, err
	}
	if len(req.Criteria) == 0 {
		return res, match.ErrNotReady
	}
	release, err := s.acquire(ctx)
	if err != nil {
		return res, err
	}
	defer release()

	run := history.NewRun(history.KindMatch, s.now(), withClient(ctx, map[string]any{
		"source":   req.SourcePath,
		"query":    req.QueryPath,
		"criteria": criteriaStrings(req.Criteria),
		"raw":      req.Raw,
	}))
	res.RunID = run.ID
	defer func() { s.record(ctx, &run, res.Rows, err) }()

	logger := s.logger.With("run_id", run.ID, "kind", run.Kind)
	logger.Info("match started", "source", req.SourcePath, "query", req.QueryPath, "criteria", len(req.Criteria))

	session := NewSession(s.loader, logger, s.monitor)
	if err = session.LoadSource(req.SourcePath, loader.Options{Sheet: req.SourceSheet, Raw: req.Raw}); err != nil {
		return res, err
	}
	if err = session.LoadQuery(req.QueryPath, loader.Options{Sheet: req.QuerySheet}); err != nil {
		return res, err
	}
	for _, c := range req.Criteria {
		session.AddCriterion(c)
	}

	result, err := session.Execute(req.Columns)
	if err != nil {
		return res, err
	}
	sum := session.Summary()
	res.SourceRows, res.QueryRows = sum.Source.Rows, sum.Query.Rows
	res.Table = result
	res.Rows = result.NumRows()
	res.Columns = result.Columns
	res.Preview = preview(result, MatchPreviewRows)

	if req.OutputPath != "" {
		if err = session.Export(req.OutputPath, req.OutputFormat); err != nil {
			return res, err
		}
		res.OutputPath = req.OutputPath
	}

	logger.Info("match finished", "rows", res.Rows)
	return res, nil
}

// MergeRequest describes one merge run. Empty OutputName keeps the
// configured one.
type MergeRequest struct {
	ClientFiles []string `json:"clients"`
	PhoneFile   string   `json:"phones"`
	OutputName  string   `json:"output_name,omitempty"`
}

// RunMerge annotates the client files with phones from the contacts file.
// The report is returned even when the run fails.
func (s *Service) RunMerge(ctx context.Context, req MergeRequest) (report merge.Report, err error) {
	if err := req.Validate(); err != nil {
		return report, err
	}
	release, err := s.acquire(ctx)
	if err != nil {
		return report, err
	}
	defer release()

	run := history.NewRun(history.KindMerge, s.now(), withClient(ctx, map[string]any{
		"clients": req.ClientFiles,
		"phones":  req.PhoneFile,
	}))
	defer func() { s.record(ctx, &run, report.Phones, err) }()

	opts := s.merge
	if req.OutputName != "" {
		opts.OutputName = req.OutputName
	}
	logger := s.logger.With("run_id", run.ID, "kind", run.Kind)
	logger.Info("merge started", "clients", len(req.ClientFiles), "phones", req.PhoneFile)

	report, err = merge.NewProcessor(opts, s.loader, logger, s.monitor).Process(req.ClientFiles, req.PhoneFile)
	if err != nil {
		return report, err
	}
	logger.Info("merge finished", "output", report.OutputPath, "sheets", report.Sheets, "phones", report.Phones)
	return report, nil
}

// Verify inspects a workbook. It does not take a run slot because it never
// touches the extraction directory.
func (s *Service) Verify(path string) verify.Report {
	return s.verifier.Inspect(path)
}

// WriteVerifyReport inspects path and saves the text report in outDir.
func (s *Service) WriteVerifyReport(path, outDir string) (string, verify.Report, error) {
	if outDir == "" {
		outDir = s.merge.OutputDir
	}
	return s.verifier.WriteReport(path, outDir)
}

// RecentRuns returns up to n recorded runs, newest first. It returns
// history.ErrDisabled when no store is configured.
func (s *Service) RecentRuns(ctx context.Context, n int) ([]history.Run, error) {
	if s.history == nil {
		return nil, history.ErrDisabled
	}
	return s.history.Recent(ctx, n)
}

// HistoryEnabled reports whether runs are being recorded.
func (s *Service) HistoryEnabled() bool { return s.history != nil }

// Metrics summarises the operation timings collected so far.
func (s *Service) Metrics() []perf.Summary {
	return s.monitor.Summary()
}

// LimiterStatus reports run slot usage.
func (s *Service) LimiterStatus() RunLimiterStatus {
	return s.limiter.Status()
}

// Drain waits for running work to finish.
func (s *Service) Drain(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

func (s *Service) acquire(ctx context.Context) (func(), error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		if errors.Is(err, ErrBusy) {
			s.logger.Warn("run rejected", "active", s.limiter.ActiveCount())
		}
		return nil, fmt.Errorf("acquire run slot: %w", err)
	}
	return s.limiter.Release, nil
}

func (s *Service) record(ctx context.Context, run *history.Run, rows int, err error) {
	run.Finish(s.now(), rows, err)
	if err != nil {
		s.logger.Error("run failed", "run_id", run.ID, "kind", run.Kind, "error", err)
	}
	if s.history == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if rerr := s.history.Record(ctx, *run); rerr != nil {
		s.logger.Warn("failed to record run", "run_id", run.ID, "error", rerr)
	}
}

func criteriaStrings(cs []match.Criterion) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.String()
	}
	return out
}

func preview(t *table.Table, n int) [][]string {
	rows := t.Strings()
	if len(rows) > n {
		rows = rows[:n]
	}
	return rows
}
