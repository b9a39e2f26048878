// Package verify inspects an output workbook and renders a plain-text report
// of its sheets, row counts and phone coverage.
package verify

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/datafinder/internal/loader"
	"github.com/JonMunkholm/datafinder/internal/merge"
)

// DefaultPreviewRows is how many leading rows each sheet summary shows.
const DefaultPreviewRows = 5

// SheetInfo describes one worksheet.
type SheetInfo struct {
	Name    string     `json:"name"`
	Rows    int        `json:"rows"`
	Columns []string   `json:"columns"`
	Preview [][]string `json:"preview"`

	HasPhones    bool    `json:"has_phones"`
	PhonesFilled int     `json:"phones_filled,omitempty"`
	PhonePercent float64 `json:"phone_percent,omitempty"`
}

// Report is the result of inspecting a workbook.
type Report struct {
	File   string      `json:"file"`
	Exists bool        `json:"exists"`
	Error  string      `json:"error,omitempty"`
	Sheets []SheetInfo `json:"sheets"`
}

// SheetNames lists the inspected sheet names in workbook order.
func (r Report) SheetNames() []string {
	names := make([]string, len(r.Sheets))
	for i, s := range r.Sheets {
		names[i] = s.Name
	}
	return names
}

// Verifier inspects workbooks.
type Verifier struct {
	loader      *loader.Loader
	logger      *slog.Logger
	previewRows int
}

// NewVerifier creates a verifier. previewRows <= 0 selects DefaultPreviewRows.
func NewVerifier(ldr *loader.Loader, logger *slog.Logger, previewRows int) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	if ldr == nil {
		ldr = loader.New(nil, logger, nil)
	}
	if previewRows <= 0 {
		previewRows = DefaultPreviewRows
	}
	return &Verifier{loader: ldr, logger: logger, previewRows: previewRows}
}

// Inspect reads every sheet of path. Problems are reported in Report.Error
// rather than returned; sheets read before a failure are kept.
func (v *Verifier) Inspect(path string) Report {
	report := Report{File: path}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		report.Error = fmt.Sprintf("file %s not found", path)
		return report
	}
	report.Exists = true

	names, err := sheetList(path)
	if err != nil {
		report.Error = err.Error()
		v.logger.Error("verification failed", "path", path, "error", err)
		return report
	}

	for _, name := range names {
		t, err := v.loader.Load(path, loader.Options{Sheet: name})
		if err != nil {
			report.Error = err.Error()
			v.logger.Error("verification failed", "path", path, "sheet", name, "error", err)
			break
		}

		info := SheetInfo{Name: name, Rows: t.NumRows(), Columns: t.Columns}
		rows := t.Strings()
		info.Preview = rows[:min(len(rows), v.previewRows)]

		if col := t.ColumnIndex(merge.PhoneColumn); col >= 0 {
			info.HasPhones = true
			for r := range t.Rows {
				if !t.Cell(r, col).IsNull() {
					info.PhonesFilled++
				}
			}
			if info.Rows > 0 {
				info.PhonePercent = float64(info.PhonesFilled) / float64(info.Rows) * 100
			}
		}
		report.Sheets = append(report.Sheets, info)
	}

	v.logger.Info("workbook verified", "path", path, "sheets", len(report.Sheets))
	return report
}

// WriteReport inspects path and writes <name>_report.txt into outDir,
// returning the report file's path.
func (v *Verifier) WriteReport(path, outDir string) (string, Report, error) {
	report := v.Inspect(path)

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", report, fmt.Errorf("create report dir: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	out := filepath.Join(outDir, base+"_report.txt")

	f, err := os.Create(out)
	if err != nil {
		return "", report, fmt.Errorf("create report: %w", err)
	}
	if err := Render(f, report); err != nil {
		f.Close()
		return "", report, fmt.Errorf("write report: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", report, fmt.Errorf("write report: %w", err)
	}

	v.logger.Info("verification report written", "path", out)
	return out, report, nil
}

// Render writes the plain-text form of r.
func Render(w io.Writer, r Report) error {
	ew := &errWriter{w: w}

	ew.printf("VERIFICATION REPORT: %s\n", filepath.Base(r.File))
	ew.printf("%s\n\n", strings.Repeat("=", 80))

	if !r.Exists {
		ew.printf("ERROR: %s\n", r.Error)
		return ew.err
	}
	if r.Error != "" {
		ew.printf("WARNING: verification stopped early: %s\n\n", r.Error)
	}

	ew.printf("Sheets found: %s\n\n", strings.Join(r.SheetNames(), ", "))

	for _, s := range r.Sheets {
		ew.printf("SHEET: %s\n", s.Name)
		ew.printf("%s\n", strings.Repeat("-", 40))
		ew.printf("Total rows: %d\n", s.Rows)
		ew.printf("Columns: %s\n", strings.Join(s.Columns, ", "))
		if s.HasPhones {
			ew.printf("Phones filled: %d of %d (%.1f%%)\n", s.PhonesFilled, s.Rows, s.PhonePercent)
		}

		ew.printf("\nFirst rows:\n")
		for i, row := range s.Preview {
			pairs := make([]string, len(row))
			for j, v := range row {
				pairs[j] = s.Columns[j] + "=" + v
			}
			ew.printf("%d. %s\n", i+1, strings.Join(pairs, " | "))
		}
		ew.printf("\n")
	}
	return ew.err
}

func sheetList(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return f.GetSheetList(), nil
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
