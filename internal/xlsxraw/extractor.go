// Package xlsxraw reads spreadsheet packages without a spreadsheet library.
//
// Some production workbooks are serialized inconsistently enough that the
// structured reader rejects them. The Extractor works around that by
// unpacking the package (a zip of XML parts) into a scratch directory and
// pattern-matching the worksheet markup directly. It only understands the
// OOXML layout: xl/workbook.xml plus xl/worksheets/sheetN.xml.
//
// Every exported method guarantees that the scratch directory is removed
// before it returns, on success and on failure. The directory name is fixed
// and reused between calls. Calls on one Extractor are serialized, but two
// Extractors pointing at the same directory must not be used concurrently.
package xlsxraw

import (
	"archive/zip"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/JonMunkholm/datafinder/internal/perf"
	"github.com/JonMunkholm/datafinder/internal/table"
)

// DefaultTempDir is the scratch directory used when none is configured.
const DefaultTempDir = "xlsx_extracted"

// Package part locations.
const (
	workbookPart      = "xl/workbook.xml"
	sharedStringsPart = "xl/sharedStrings.xml"
	worksheetPattern  = "xl/worksheets/sheet%d.xml"
)

var (
	sheetEntryRe = regexp.MustCompile(`<sheet name="([^"]+)"[^>]*sheetId="(\d+)"`)
	rowSpanRe    = regexp.MustCompile(`(?s)<row[^>]*>(.*?)</row>`)
	cellRe       = regexp.MustCompile(`<c([^>]*)><v>(.*?)</v></c>|<c[^>]*><is><t(?:\s[^>]*)?>(.*?)</t></is></c>`)
	sharedItemRe = regexp.MustCompile(`(?s)<si>(.*?)</si>`)
	textRunRe    = regexp.MustCompile(`(?s)<t(?:\s[^>]*)?>(.*?)</t>`)
	sharedAttrRe = regexp.MustCompile(`\st="s"`)
)

// errPartMissing marks a package that lacks the requested worksheet.
var errPartMissing = errors.New("worksheet part not found")

// SheetRef pairs a sheet's display name with its internal id.
type SheetRef struct {
	Name string
	ID   int
}

// Extractor unpacks spreadsheet packages into TempDir and parses their markup.
// It is safe for concurrent use: each call holds mu for its whole
// unpack, read and cleanup cycle.
type Extractor struct {
	mu      sync.Mutex
	tempDir string
	logger  *slog.Logger
	monitor *perf.Monitor
}

// NewExtractor creates an extractor. An empty tempDir selects DefaultTempDir,
// a nil logger selects slog.Default() and a nil monitor disables timing.
func NewExtractor(tempDir string, logger *slog.Logger, monitor *perf.Monitor) *Extractor {
	if tempDir == "" {
		tempDir = DefaultTempDir
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{tempDir: tempDir, logger: logger, monitor: monitor}
}

// TempDir returns the scratch directory path.
func (x *Extractor) TempDir() string { return x.tempDir }

// ExtractTable parses one worksheet into a table. The first parsed row
// becomes the header. sheet selects a worksheet by display name; when it is
// empty or unknown the first sheet (id 1) is used.
//
// Failures never escape: they are logged and an empty table is returned.
func (x *Extractor) ExtractTable(path, sheet string) *table.Table {
	t, err := x.extractTable(path, sheet)
	if err != nil {
		x.logger.Error("raw extraction failed", "path", path, "sheet", sheet, "error", err)
		return table.Empty()
	}
	return t
}

func (x *Extractor) extractTable(path, sheet string) (t *table.Table, err error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	span := x.monitor.Start("extract_table", "path", path)
	defer span.Stop(&err)

	x.logger.Info("extracting worksheet via package markup", "path", path)

	defer x.cleanup()
	if err := x.unpack(path); err != nil {
		return nil, err
	}

	sheetID := 1
	if wb, ok, err := x.readPart(workbookPart); err != nil {
		return nil, err
	} else if ok {
		refs := parseSheetRefs(wb)
		if len(refs) > 0 {
			x.logger.Debug("sheets found", "sheets", refs)
		}
		if sheet != "" {
			if id, found := lookupSheet(refs, sheet); found {
				sheetID = id
				x.logger.Info("sheet selected", "sheet", sheet, "id", id)
			} else {
				x.logger.Warn("sheet not found, using first sheet", "sheet", sheet)
			}
		}
	}

	part := fmt.Sprintf(worksheetPattern, sheetID)
	content, ok, err := x.readPart(part)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", errPartMissing, part)
	}

	var shared []string
	if sst, ok, err := x.readPart(sharedStringsPart); err != nil {
		return nil, err
	} else if ok {
		shared = parseSharedStrings(sst)
	}

	t, err = parseWorksheet(content, shared)
	if err != nil {
		return nil, err
	}

	x.logger.Info("worksheet extracted", "path", path, "rows", t.NumRows(), "columns", t.NumCols())
	return t, nil
}

// SheetRefs lists the sheets declared in the workbook part.
func (x *Extractor) SheetRefs(path string) ([]SheetRef, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	defer x.cleanup()
	if err := x.unpack(path); err != nil {
		return nil, err
	}
	wb, ok, err := x.readPart(workbookPart)
	if err != nil || !ok {
		return nil, err
	}
	return parseSheetRefs(wb), nil
}

// parseWorksheet turns worksheet markup into a table. Rows are aligned to the
// header positionally; a row with more cells than headers is rejected.
func parseWorksheet(content string, shared []string) (*table.Table, error) {
	rows := rowSpanRe.FindAllStringSubmatch(content, -1)
	if len(rows) == 0 {
		return table.Empty(), nil
	}

	header := parseCells(rows[0][1], shared)
	out := &table.Table{Columns: header, Rows: make([][]table.Cell, 0, len(rows)-1)}

	for i, m := range rows[1:] {
		values := parseCells(m[1], shared)
		if len(values) > len(header) {
			return nil, fmt.Errorf("row %d has %d cells, header has %d", i+2, len(values), len(header))
		}
		row := make([]table.Cell, len(values))
		for j, v := range values {
			row[j] = table.Infer(v)
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

// parseCells returns the cell values of one row in document order.
func parseCells(rowXML string, shared []string) []string {
	matches := cellRe.FindAllStringSubmatch(rowXML, -1)
	values := make([]string, 0, len(matches))
	for _, m := range matches {
		attrs, direct, inline := m[1], m[2], m[3]
		v := direct
		if v == "" {
			v = inline
		} else if shared != nil && sharedAttrRe.MatchString(attrs) {
			if idx, err := strconv.Atoi(v); err == nil && idx >= 0 && idx < len(shared) {
				v = shared[idx]
			}
		}
		values = append(values, html.UnescapeString(v))
	}
	return values
}

func parseSheetRefs(workbook string) []SheetRef {
	var refs []SheetRef
	for _, m := range sheetEntryRe.FindAllStringSubmatch(workbook, -1) {
		id, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		refs = append(refs, SheetRef{Name: html.UnescapeString(m[1]), ID: id})
	}
	return refs
}

func lookupSheet(refs []SheetRef, name string) (int, bool) {
	for _, r := range refs {
		if r.Name == name {
			return r.ID, true
		}
	}
	return 0, false
}

func parseSharedStrings(sst string) []string {
	items := sharedItemRe.FindAllStringSubmatch(sst, -1)
	out := make([]string, len(items))
	for i, item := range items {
		var b strings.Builder
		for _, run := range textRunRe.FindAllStringSubmatch(item[1], -1) {
			b.WriteString(run[1])
		}
		out[i] = b.String()
	}
	return out
}

// unpack recreates the scratch directory and extracts the archive into it.
func (x *Extractor) unpack(path string) error {
	if err := os.RemoveAll(x.tempDir); err != nil {
		return fmt.Errorf("clear temp dir: %w", err)
	}
	if err := os.MkdirAll(x.tempDir, 0o755); err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}

	r, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("open package: %w", err)
	}
	defer r.Close()

	root, err := filepath.Abs(x.tempDir)
	if err != nil {
		return fmt.Errorf("resolve temp dir: %w", err)
	}

	for _, f := range r.File {
		if err := extractFile(root, f); err != nil {
			return err
		}
	}
	return nil
}

// extractFile writes one archive entry below root, rejecting entries that
// would escape it.
func extractFile(root string, f *zip.File) error {
	dest := filepath.Join(root, filepath.FromSlash(f.Name))
	if dest != root && !strings.HasPrefix(dest, root+string(os.PathSeparator)) {
		return fmt.Errorf("invalid archive entry: %q", f.Name)
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(dest, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", f.Name, err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", f.Name, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	return out.Close()
}

// readPart reads an unpacked part. ok is false when the part does not exist.
func (x *Extractor) readPart(rel string) (content string, ok bool, err error) {
	data, err := os.ReadFile(filepath.Join(x.tempDir, filepath.FromSlash(rel)))
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", rel, err)
	}
	return string(data), true, nil
}

func (x *Extractor) cleanup() {
	if err := os.RemoveAll(x.tempDir); err != nil {
		x.logger.Warn("failed to remove temp dir", "dir", x.tempDir, "error", err)
	}
}
