// Package loader reads tabular files into a table.Table and writes them back.
//
// Delimited text (.csv, .tsv) is parsed with encoding/csv; spreadsheet
// packages (.xlsx, .xlsm) are read through excelize. Spreadsheets can also be
// routed through the raw package extractor, either on request or as a
// fallback when the structured reader rejects a file.
package loader

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/datafinder/internal/perf"
	"github.com/JonMunkholm/datafinder/internal/table"
	"github.com/JonMunkholm/datafinder/internal/xlsxraw"
)

var (
	// ErrNotFound means the input path does not exist.
	ErrNotFound = errors.New("file not found")
	// ErrUnsupportedFormat means the file extension is not recognized.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrExtraction means the file exists but could not be parsed.
	ErrExtraction = errors.New("extraction failed")
	// ErrWrite means an output file could not be written.
	ErrWrite = errors.New("write failed")
)

// Format is the broad family of a file.
type Format int

const (
	FormatUnknown Format = iota
	FormatDelimited
	FormatSpreadsheet
)

// DetectFormat classifies path by its extension.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv":
		return FormatDelimited
	case ".xlsx", ".xlsm":
		return FormatSpreadsheet
	default:
		return FormatUnknown
	}
}

// Options controls a single Load.
type Options struct {
	// Sheet selects a worksheet by name. Empty means the first sheet.
	Sheet string
	// Raw routes spreadsheets through the raw package extractor.
	Raw bool
}

// Loader reads and writes tables.
type Loader struct {
	extractor *xlsxraw.Extractor
	logger    *slog.Logger
	monitor   *perf.Monitor
}

// New creates a loader. A nil extractor gets one with default settings.
func New(extractor *xlsxraw.Extractor, logger *slog.Logger, monitor *perf.Monitor) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	if extractor == nil {
		extractor = xlsxraw.NewExtractor("", logger, monitor)
	}
	return &Loader{extractor: extractor, logger: logger, monitor: monitor}
}

// Extractor returns the raw package extractor used for fallback reads.
func (l *Loader) Extractor() *xlsxraw.Extractor { return l.extractor }

// Load reads path into a table.
func (l *Loader) Load(path string, opts Options) (t *table.Table, err error) {
	span := l.monitor.Start("load", "path", path)
	defer span.Stop(&err)

	l.logger.Info("loading file", "path", path, "sheet", opts.Sheet, "raw", opts.Raw)

	format, err := l.check(path)
	if err != nil {
		return nil, err
	}

	switch {
	case format == FormatDelimited:
		t, err = readDelimited(path)
	case opts.Raw:
		t = l.extractor.ExtractTable(path, opts.Sheet)
		if t.NumCols() == 0 {
			l.logger.Warn("raw extraction produced no data", "path", path)
		}
	default:
		t, err = readWorkbook(path, opts.Sheet)
	}
	if err != nil {
		l.logger.Error("load failed", "path", path, "error", err)
		return nil, err
	}

	l.logger.Info("file loaded", "path", path, "rows", t.NumRows(), "columns", t.NumCols())
	return t, nil
}

// LoadWithFallback reads path with the structured reader and retries with
// the raw package extractor when that fails. A raw read that recovers no
// columns or no rows is reported as ErrExtraction.
func (l *Loader) LoadWithFallback(path, sheet string) (*table.Table, error) {
	t, err := l.Load(path, Options{Sheet: sheet})
	if err == nil {
		return t, nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnsupportedFormat) || DetectFormat(path) != FormatSpreadsheet {
		return nil, err
	}

	l.logger.Warn("structured read failed, falling back to raw extraction", "path", path, "error", err)
	t, rawErr := l.Load(path, Options{Sheet: sheet, Raw: true})
	if rawErr != nil {
		return nil, rawErr
	}
	if t.IsEmpty() {
		return nil, fmt.Errorf("%w: %s: no data recovered", ErrExtraction, path)
	}
	return t, nil
}

func (l *Loader) check(path string) (Format, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return FormatUnknown, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return FormatUnknown, fmt.Errorf("%w: stat %s: %w", ErrExtraction, path, err)
	}
	if info.IsDir() {
		return FormatUnknown, fmt.Errorf("%w: %s is a directory", ErrNotFound, path)
	}

	format := DetectFormat(path)
	if format == FormatUnknown {
		return FormatUnknown, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
	return format, nil
}

// readWorkbook reads one worksheet with excelize.
func readWorkbook(path, sheet string) (*table.Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrExtraction, path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%w: %s has no sheets", ErrExtraction, path)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %w", ErrExtraction, sheet, err)
	}
	return buildTable(rows), nil
}

// buildTable turns raw records into a table. The first non-blank record is
// the header; blank records are dropped and every cell is type-inferred.
func buildTable(records [][]string) *table.Table {
	start := -1
	for i, rec := range records {
		if !isBlank(rec) {
			start = i
			break
		}
	}
	if start < 0 {
		return table.Empty()
	}

	width := len(records[start])
	for _, rec := range records[start+1:] {
		width = max(width, len(rec))
	}

	t := &table.Table{Columns: headerNames(records[start], width)}
	for _, rec := range records[start+1:] {
		if isBlank(rec) {
			continue
		}
		row := make([]table.Cell, width)
		for j, v := range rec {
			row[j] = table.Infer(v)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// headerNames cleans the header record, naming blank or missing positions
// "Unnamed: N" and suffixing repeated names with ".1", ".2" and so on.
// Generated names are unique even against names that already carry a suffix.
func headerNames(rec []string, width int) []string {
	names := make([]string, width)
	seen := make(map[string]int, width)
	for i := range names {
		name := ""
		if i < len(rec) {
			name = strings.TrimSpace(rec[i])
		}
		if name == "" {
			name = "Unnamed: " + strconv.Itoa(i)
		}
		if n, dup := seen[name]; dup {
			base := name
			for {
				n++
				name = base + "." + strconv.Itoa(n)
				if _, taken := seen[name]; !taken {
					break
				}
			}
			seen[base] = n
		}
		seen[name] = 0
		names[i] = name
	}
	return names
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
