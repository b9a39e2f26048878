package loader

import (
	"archive/zip"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/datafinder/internal/table"
	"github.com/JonMunkholm/datafinder/internal/xlsxraw"
)

func newTestLoader(t *testing.T) *Loader {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	x := xlsxraw.NewExtractor(filepath.Join(t.TempDir(), "scratch"), logger, nil)
	return New(x, logger, nil)
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func sampleTable() *table.Table {
	return &table.Table{
		Columns: []string{"Cliente", "Idade", "Cidade"},
		Rows: [][]table.Cell{
			{table.Text("Ana Silva"), table.Number(30), table.Text("Recife")},
			{table.Text("Bruno"), table.Number(41.5), table.Text("Natal")},
			{table.Text("Carla & Filhos"), table.Number(7), table.Text("0800")},
		},
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	l := newTestLoader(t)

	tests := []struct {
		name string
		path string
		want error
	}{
		{name: "missing file", path: filepath.Join(dir, "absent.csv"), want: ErrNotFound},
		{name: "directory", path: dir, want: ErrNotFound},
		{name: "unknown extension", path: writeFile(t, dir, "notes.txt", []byte("a")), want: ErrUnsupportedFormat},
		{name: "broken workbook", path: writeFile(t, dir, "broken.xlsx", []byte("garbage")), want: ErrExtraction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Load(tt.path, Options{})
			if !errors.Is(err, tt.want) {
				t.Errorf("Load() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoadDelimited(t *testing.T) {
	dir := t.TempDir()
	l := newTestLoader(t)

	tests := []struct {
		name     string
		file     string
		data     []byte
		wantCols []string
		wantRows [][]string
	}{
		{
			name:     "csv with bom and blank lines",
			file:     "a.csv",
			data:     []byte("\xEF\xBB\xBFNome,Idade\n\nAna,30\n,\nBruno,\n"),
			wantCols: []string{"Nome", "Idade"},
			wantRows: [][]string{{"Ana", "30"}, {"Bruno", ""}},
		},
		{
			name:     "windows-1252 input",
			file:     "b.csv",
			data:     []byte("Nome\nJos\xe9\n"),
			wantCols: []string{"Nome"},
			wantRows: [][]string{{"José"}},
		},
		{
			name:     "tab separated",
			file:     "c.tsv",
			data:     []byte("a\tb\n1\t2\n"),
			wantCols: []string{"a", "b"},
			wantRows: [][]string{{"1", "2"}},
		},
		{
			name:     "ragged rows",
			file:     "d.csv",
			data:     []byte("a,,a\n1\n1,2,3,4\n"),
			wantCols: []string{"a", "Unnamed: 1", "a.1", "Unnamed: 3"},
			wantRows: [][]string{{"1", "", "", ""}, {"1", "2", "3", "4"}},
		},
		{
			name:     "suffix already taken",
			file:     "e.csv",
			data:     []byte("a,a,a.1\n1,2,3\n"),
			wantCols: []string{"a", "a.1", "a.1.1"},
			wantRows: [][]string{{"1", "2", "3"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, tt.file, tt.data)
			got, err := l.Load(path, Options{})
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if !reflect.DeepEqual(got.Columns, tt.wantCols) {
				t.Errorf("columns = %v, want %v", got.Columns, tt.wantCols)
			}
			if !reflect.DeepEqual(got.Strings(), tt.wantRows) {
				t.Errorf("rows = %v, want %v", got.Strings(), tt.wantRows)
			}
		})
	}
}

func TestLoadInfersCellKinds(t *testing.T) {
	dir := t.TempDir()
	l := newTestLoader(t)
	path := writeFile(t, dir, "k.csv", []byte("v\n42\n0119\nabc\n\n"))

	got, err := l.Load(path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	wantKinds := []table.Kind{table.KindNumber, table.KindText, table.KindText}
	for i, k := range wantKinds {
		if got.Cell(i, 0).Kind != k {
			t.Errorf("row %d kind = %v, want %v", i, got.Cell(i, 0).Kind, k)
		}
	}
}

func TestExportAndReload(t *testing.T) {
	l := newTestLoader(t)
	src := sampleTable()

	for _, format := range []string{"xlsx", "csv"} {
		t.Run(format, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out", "result."+format)
			if err := l.Export(src, path, format); err != nil {
				t.Fatalf("Export() error = %v", err)
			}

			got, err := l.Load(path, Options{})
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if !reflect.DeepEqual(got.Columns, src.Columns) {
				t.Errorf("columns = %v, want %v", got.Columns, src.Columns)
			}
			if !reflect.DeepEqual(got.Strings(), src.Strings()) {
				t.Errorf("rows = %v, want %v", got.Strings(), src.Strings())
			}
		})
	}
}

func TestExportFormatPicksDelimiter(t *testing.T) {
	l := newTestLoader(t)
	dir := t.TempDir()

	tests := []struct {
		file   string
		format string
		want   string
	}{
		{file: "out.csv", format: "tsv", want: "Cliente\tIdade\tCidade\n"},
		{file: "out.tsv", format: "csv", want: "Cliente,Idade,Cidade\n"},
		{file: "plain.tsv", format: "", want: "Cliente\tIdade\tCidade\n"},
	}
	for _, tt := range tests {
		t.Run(tt.file+"/"+tt.format, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			if err := l.Export(sampleTable(), path, tt.format); err != nil {
				t.Fatalf("Export() error = %v", err)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.HasPrefix(string(data), tt.want) {
				t.Errorf("header line = %q, want %q", strings.SplitN(string(data), "\n", 2)[0], tt.want)
			}
		})
	}
}

func TestExportUnsupportedFormat(t *testing.T) {
	l := newTestLoader(t)
	err := l.Export(sampleTable(), filepath.Join(t.TempDir(), "x.json"), "")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Export() error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestRawAndStructuredReadsAgree(t *testing.T) {
	l := newTestLoader(t)
	path := filepath.Join(t.TempDir(), "roundtrip.xlsx")
	if err := l.Export(sampleTable(), path, ""); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	std, err := l.Load(path, Options{})
	if err != nil {
		t.Fatalf("structured Load() error = %v", err)
	}
	raw, err := l.Load(path, Options{Raw: true})
	if err != nil {
		t.Fatalf("raw Load() error = %v", err)
	}

	if !reflect.DeepEqual(std.Columns, raw.Columns) {
		t.Errorf("columns differ: structured %v, raw %v", std.Columns, raw.Columns)
	}
	if std.NumRows() != raw.NumRows() {
		t.Errorf("row counts differ: structured %d, raw %d", std.NumRows(), raw.NumRows())
	}
	if !reflect.DeepEqual(std.Strings(), raw.Strings()) {
		t.Errorf("rows differ: structured %v, raw %v", std.Strings(), raw.Strings())
	}
}

func TestLoadWithFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sheet-only.xlsx")

	// A package holding only a worksheet part: excelize cannot resolve a
	// sheet from it, the raw extractor can.
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	w, _ := zw.Create("xl/worksheets/sheet1.xml")
	io.WriteString(w, `<worksheet><sheetData>`+
		`<row><c t="inlineStr"><is><t>Nome</t></is></c></row>`+
		`<row><c t="inlineStr"><is><t>Ana</t></is></c></row>`+
		`</sheetData></worksheet>`)
	zw.Close()
	f.Close()

	l := newTestLoader(t)
	got, err := l.LoadWithFallback(path, "")
	if err != nil {
		t.Fatalf("LoadWithFallback() error = %v", err)
	}
	if !reflect.DeepEqual(got.Strings(), [][]string{{"Ana"}}) {
		t.Errorf("rows = %v", got.Strings())
	}

	garbage := writeFile(t, dir, "garbage.xlsx", []byte("nope"))
	if _, err := l.LoadWithFallback(garbage, ""); !errors.Is(err, ErrExtraction) {
		t.Errorf("garbage fallback error = %v, want ErrExtraction", err)
	}

	if _, err := l.LoadWithFallback(filepath.Join(dir, "absent.xlsx"), ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing fallback error = %v, want ErrNotFound", err)
	}
}

func TestLoadWithFallbackRejectsHeaderOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "header-only.xlsx")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	w, _ := zw.Create("xl/worksheets/sheet1.xml")
	io.WriteString(w, `<worksheet><sheetData>`+
		`<row><c t="inlineStr"><is><t>Nome</t></is></c></row>`+
		`</sheetData></worksheet>`)
	zw.Close()
	f.Close()

	l := newTestLoader(t)
	if _, err := l.LoadWithFallback(path, ""); !errors.Is(err, ErrExtraction) {
		t.Errorf("LoadWithFallback() error = %v, want ErrExtraction", err)
	}
}

func TestWriteWorkbookSheetOrder(t *testing.T) {
	l := newTestLoader(t)
	path := filepath.Join(t.TempDir(), "multi.xlsx")

	sheets := []Sheet{
		{Name: "Planilha1", Table: sampleTable()},
		{Name: "Planilha2", Table: table.New("Telefone")},
	}
	if err := l.WriteWorkbook(path, sheets); err != nil {
		t.Fatalf("WriteWorkbook() error = %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if got := f.GetSheetList(); !reflect.DeepEqual(got, []string{"Planilha1", "Planilha2"}) {
		t.Errorf("sheets = %v", got)
	}

	got, err := l.Load(path, Options{Sheet: "Planilha2"})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got.Columns, []string{"Telefone"}) || got.NumRows() != 0 {
		t.Errorf("Planilha2 = %v / %v", got.Columns, got.Strings())
	}

	if err := l.WriteWorkbook(path, nil); !errors.Is(err, ErrWrite) {
		t.Errorf("empty WriteWorkbook error = %v, want ErrWrite", err)
	}
}
