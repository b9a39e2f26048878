package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/datafinder/internal/table"
)

// Sheet is one named worksheet of an output workbook.
type Sheet struct {
	Name  string
	Table *table.Table
}

// Export writes t to path. format is "xlsx", "csv" or "tsv"; when empty it
// is taken from the path's extension. The format, not the extension, picks
// the delimiter. Parent directories are created as needed.
func (l *Loader) Export(t *table.Table, path, format string) (err error) {
	span := l.monitor.Start("export", "path", path)
	defer span.Stop(&err)

	if format == "" {
		format = strings.TrimPrefix(filepath.Ext(path), ".")
	}
	format = strings.ToLower(format)

	if err := ensureDir(path); err != nil {
		return err
	}

	l.logger.Info("exporting table", "path", path, "format", format, "rows", t.NumRows())

	switch format {
	case "xlsx":
		err = l.WriteWorkbook(path, []Sheet{{Name: "Sheet1", Table: t}})
	case "csv", "tsv":
		comma := ','
		if format == "tsv" {
			comma = '\t'
		}
		if err = writeDelimited(t, path, comma); err != nil {
			err = fmt.Errorf("%w: %s: %w", ErrWrite, path, err)
		}
	default:
		return fmt.Errorf("%w: export format %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return err
	}

	l.logger.Info("table exported", "path", path)
	return nil
}

// WriteWorkbook writes each sheet, in order, into a new workbook at path.
func (l *Loader) WriteWorkbook(path string, sheets []Sheet) (err error) {
	span := l.monitor.Start("write_workbook", "path", path, "sheets", len(sheets))
	defer span.Stop(&err)

	if len(sheets) == 0 {
		return fmt.Errorf("%w: no sheets to write", ErrWrite)
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), s.Name); err != nil {
				return fmt.Errorf("%w: name sheet %q: %w", ErrWrite, s.Name, err)
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			return fmt.Errorf("%w: add sheet %q: %w", ErrWrite, s.Name, err)
		}
		if err := writeSheet(f, s); err != nil {
			return fmt.Errorf("%w: sheet %q: %w", ErrWrite, s.Name, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("%w: save %s: %w", ErrWrite, path, err)
	}

	l.logger.Info("workbook written", "path", path, "sheets", len(sheets))
	return nil
}

func writeSheet(f *excelize.File, s Sheet) error {
	header := make([]any, len(s.Table.Columns))
	for i, c := range s.Table.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(s.Name, "A1", &header); err != nil {
		return err
	}

	for r := range s.Table.Rows {
		values := make([]any, s.Table.NumCols())
		for c := range values {
			values[c] = s.Table.Cell(r, c).Value()
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(s.Name, cell, &values); err != nil {
			return err
		}
	}
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrWrite, dir, err)
	}
	return nil
}
