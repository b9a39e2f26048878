package loader

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/JonMunkholm/datafinder/internal/table"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// readDelimited parses a comma or tab separated file. Files that are not
// valid UTF-8 are decoded as Windows-1252, the usual encoding of
// spreadsheet exports on Portuguese-locale desktops.
func readDelimited(path string) (*table.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrExtraction, path, err)
	}

	data, err = decodeText(data)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrExtraction, path, err)
	}

	records, err := parseRecords(data, delimiterFor(path))
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrExtraction, path, err)
	}
	return buildTable(records), nil
}

func decodeText(data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return data, nil
	}
	return charmap.Windows1252.NewDecoder().Bytes(data)
}

func parseRecords(data []byte, comma rune) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.ReadAll()
}

func delimiterFor(path string) rune {
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		return '\t'
	}
	return ','
}

// writeDelimited writes t as UTF-8 text separated by comma, with a header row.
func writeDelimited(t *table.Table, path string, comma rune) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	w.Comma = comma
	if err := w.Write(t.Columns); err != nil {
		f.Close()
		return err
	}
	if err := w.WriteAll(t.Strings()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
