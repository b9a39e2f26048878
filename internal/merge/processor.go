// Package merge annotates client spreadsheets with phone numbers taken from
// a contacts workbook and consolidates them into one output workbook.
package merge

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"

	"github.com/JonMunkholm/datafinder/internal/loader"
	"github.com/JonMunkholm/datafinder/internal/perf"
	"github.com/JonMunkholm/datafinder/internal/table"
	"github.com/JonMunkholm/datafinder/internal/xlsxraw"
)

// Defaults for Options fields left empty.
const (
	DefaultInputDir   = "dados/entrada"
	DefaultOutputDir  = "dados/saida"
	DefaultOutputName = "Clientes_Com_Telefones.xlsx"
)

// PhoneColumn is the column appended to every processed sheet.
const PhoneColumn = "Telefone"

// nameColumn is the position of the client name in client files.
const nameColumn = 2

var (
	// ErrNoPhones means the contacts file produced an empty lookup.
	ErrNoPhones = errors.New("no phone numbers could be extracted")
	// ErrNothingProcessed means no client file could be loaded.
	ErrNothingProcessed = errors.New("no client file could be processed")
)

// Options locates inputs and the output workbook.
type Options struct {
	InputDir   string
	OutputDir  string
	OutputName string
}

// FileResult describes what happened to one client file.
type FileResult struct {
	File      string `json:"file"`
	Sheet     string `json:"sheet,omitempty"`
	Rows      int    `json:"rows"`
	Names     int    `json:"names"`
	Phones    int    `json:"phones"`
	Annotated bool   `json:"annotated"`
	Error     string `json:"error,omitempty"`
}

// Report summarises a Process run.
type Report struct {
	OutputPath string       `json:"output_path,omitempty"`
	Contacts   int          `json:"contacts"`
	Files      []FileResult `json:"files"`
	Sheets     int          `json:"sheets"`
	Phones     int          `json:"phones"`
}

// Processor runs the merge.
type Processor struct {
	opts      Options
	loader    *loader.Loader
	extractor *xlsxraw.Extractor
	logger    *slog.Logger
	monitor   *perf.Monitor
}

// NewProcessor creates a processor. Phone extraction shares the loader's
// raw extractor.
func NewProcessor(opts Options, ldr *loader.Loader, logger *slog.Logger, monitor *perf.Monitor) *Processor {
	if opts.InputDir == "" {
		opts.InputDir = DefaultInputDir
	}
	if opts.OutputDir == "" {
		opts.OutputDir = DefaultOutputDir
	}
	if opts.OutputName == "" {
		opts.OutputName = DefaultOutputName
	}
	if logger == nil {
		logger = slog.Default()
	}
	if ldr == nil {
		ldr = loader.New(nil, logger, monitor)
	}
	return &Processor{
		opts:      opts,
		loader:    ldr,
		extractor: ldr.Extractor(),
		logger:    logger,
		monitor:   monitor,
	}
}

// OutputPath is where Process writes the consolidated workbook.
func (p *Processor) OutputPath() string {
	return filepath.Join(p.opts.OutputDir, p.opts.OutputName)
}

// Process builds the phone lookup from phoneFile, annotates each client file
// with a Telefone column and writes the results as sheets Planilha1,
// Planilha2, ... numbered by position in clientFiles. Relative names are
// resolved against the input directory.
//
// An empty lookup aborts before any file is read. Files that cannot be loaded
// are skipped; the run fails only if none could be processed or the output
// cannot be written. The report is populated even when an error is returned.
func (p *Processor) Process(clientFiles []string, phoneFile string) (report Report, err error) {
	span := p.monitor.Start("merge", "files", len(clientFiles))
	defer span.Stop(&err)

	p.logger.Info("starting merge", "files", len(clientFiles), "phones", phoneFile)

	phones := p.extractor.ExtractPhones(p.resolve(phoneFile))
	report.Contacts = len(phones)
	if len(phones) == 0 {
		p.logger.Error("phone lookup is empty, aborting", "phones", phoneFile)
		return report, fmt.Errorf("%w: %s", ErrNoPhones, phoneFile)
	}
	p.logger.Info("phone lookup built", "contacts", len(phones))

	var sheets []loader.Sheet
	for i, name := range clientFiles {
		res, t := p.processFile(name, phones)
		if t != nil {
			res.Sheet = "Planilha" + strconv.Itoa(i+1)
			sheets = append(sheets, loader.Sheet{Name: res.Sheet, Table: t})
			report.Phones += res.Phones
		}
		report.Files = append(report.Files, res)
	}

	if len(sheets) == 0 {
		p.logger.Warn("no client file was processed")
		return report, ErrNothingProcessed
	}

	out := p.OutputPath()
	if err := p.loader.WriteWorkbook(out, sheets); err != nil {
		p.logger.Error("failed to write output", "path", out, "error", err)
		return report, err
	}

	report.OutputPath = out
	report.Sheets = len(sheets)
	p.logger.Info("merge complete", "output", out, "sheets", report.Sheets, "phones", report.Phones)
	return report, nil
}

// processFile loads and annotates one client file. The returned table is nil
// when the file could not be loaded.
func (p *Processor) processFile(name string, phones map[string]string) (FileResult, *table.Table) {
	res := FileResult{File: name}
	p.logger.Info("processing client file", "file", name)

	t, err := p.loader.LoadWithFallback(p.resolve(name), "")
	if err != nil {
		p.logger.Error("could not load client file", "file", name, "error", err)
		res.Error = err.Error()
		return res, nil
	}
	res.Rows = t.NumRows()

	annotatable := t.NumCols() > nameColumn
	if !annotatable {
		p.logger.Warn("client file has no name column, skipping phone lookup", "file", name, "columns", t.NumCols())
	}

	phoneCol := t.AddColumn(PhoneColumn)
	if annotatable {
		res.Annotated = true
		for r := range t.Rows {
			cell := t.Cell(r, nameColumn)
			if cell.IsNull() {
				continue
			}
			res.Names++
			if phone, ok := phones[xlsxraw.NormalizeName(cell.String())]; ok {
				t.Set(r, phoneCol, table.Text(phone))
				res.Phones++
			}
		}
	}

	p.logger.Info("client file processed", "file", name, "rows", res.Rows, "names", res.Names, "phones", res.Phones)
	return res, t
}

func (p *Processor) resolve(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(p.opts.InputDir, name)
}
