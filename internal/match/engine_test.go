package match

import (
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/JonMunkholm/datafinder/internal/table"
)

func newTestEngine(criteria ...Criterion) *Engine {
	e := NewEngine(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	for _, c := range criteria {
		e.AddCriterion(c)
	}
	return e
}

func textTable(cols []string, rows ...[]string) *table.Table {
	t := table.New(cols...)
	for _, r := range rows {
		cells := make([]table.Cell, len(r))
		for i, v := range r {
			cells[i] = table.Infer(v)
		}
		t.AppendRow(cells...)
	}
	return t
}

func clientes() *table.Table {
	return textTable([]string{"Cliente", "Cidade", "Codigo"},
		[]string{"Ana Silva", "Recife", "10"},
		[]string{"Bruno", "Natal", "20"},
		[]string{"", "Natal", "30"},
		[]string{"Maria", "Recife", "10"},
	)
}

func TestMatchOperations(t *testing.T) {
	tests := []struct {
		name  string
		crit  Criterion
		query *table.Table
		want  [][]string
	}{
		{
			name:  "contains case-insensitive",
			crit:  Criterion{QueryColumn: "Nome", SourceColumn: "Cliente", Operation: OpContains},
			query: textTable([]string{"Nome"}, []string{"ana"}),
			want:  [][]string{{"Ana Silva", "Recife", "10"}},
		},
		{
			name:  "contains case-sensitive",
			crit:  Criterion{QueryColumn: "Nome", SourceColumn: "Cliente", Operation: OpContains, CaseSensitive: true},
			query: textTable([]string{"Nome"}, []string{"ana"}),
			want:  nil,
		},
		{
			name:  "equals ignores case by default",
			crit:  Criterion{QueryColumn: "Nome", SourceColumn: "Cliente"},
			query: textTable([]string{"Nome"}, []string{"MARIA"}),
			want:  [][]string{{"Maria", "Recife", "10"}},
		},
		{
			name:  "startswith",
			crit:  Criterion{QueryColumn: "Nome", SourceColumn: "Cliente", Operation: OpStartsWith},
			query: textTable([]string{"Nome"}, []string{"br"}),
			want:  [][]string{{"Bruno", "Natal", "20"}},
		},
		{
			name:  "numeric query compared as text",
			crit:  Criterion{QueryColumn: "Cod", SourceColumn: "Codigo", Operation: OpEquals},
			query: textTable([]string{"Cod"}, []string{"20"}),
			want:  [][]string{{"Bruno", "Natal", "20"}},
		},
		{
			name:  "duplicates across query rows removed",
			crit:  Criterion{QueryColumn: "Cidade", SourceColumn: "Cidade"},
			query: textTable([]string{"Cidade"}, []string{"recife"}, []string{"RECIFE"}),
			want:  [][]string{{"Ana Silva", "Recife", "10"}, {"Maria", "Recife", "10"}},
		},
		{
			name:  "null query value matches everything",
			crit:  Criterion{QueryColumn: "Nome", SourceColumn: "Cliente", Operation: OpContains},
			query: textTable([]string{"Nome"}, []string{""}),
			want:  clientes().Strings(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(tt.crit)
			got, err := e.Match(clientes(), tt.query, nil)
			if err != nil {
				t.Fatalf("Match() error = %v", err)
			}
			if !reflect.DeepEqual(got.Strings(), tt.want) && !(len(tt.want) == 0 && got.NumRows() == 0) {
				t.Errorf("Match() = %v, want %v", got.Strings(), tt.want)
			}
			if !reflect.DeepEqual(got.Columns, clientes().Columns) {
				t.Errorf("columns = %v", got.Columns)
			}
		})
	}
}

func TestMatchEndToEnd(t *testing.T) {
	source := textTable([]string{"Cliente"}, []string{"Ana Silva"}, []string{"Bruno"})
	query := textTable([]string{"Nome"}, []string{"ana"})

	e := newTestEngine(Criterion{QueryColumn: "Nome", SourceColumn: "Cliente", Operation: OpContains})
	got, err := e.Match(source, query, nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := [][]string{{"Ana Silva"}}; !reflect.DeepEqual(got.Strings(), want) {
		t.Errorf("Match() = %v, want %v", got.Strings(), want)
	}
}

func TestEqualsIgnoresCaseVariants(t *testing.T) {
	source := textTable([]string{"Cliente"}, []string{"Maria"})
	for _, q := range []string{"Maria", "MARIA", "maria"} {
		e := newTestEngine(Criterion{QueryColumn: "Nome", SourceColumn: "Cliente", Operation: OpEquals})
		got, err := e.Match(source, textTable([]string{"Nome"}, []string{q}), nil)
		if err != nil {
			t.Fatal(err)
		}
		if got.NumRows() != 1 {
			t.Errorf("equals %q matched %d rows, want 1", q, got.NumRows())
		}
	}
}

func TestNullSourceNeverMatches(t *testing.T) {
	source := textTable([]string{"Cliente"}, []string{""}, []string{""})
	for _, op := range Operations {
		for _, cs := range []bool{false, true} {
			e := newTestEngine(Criterion{QueryColumn: "Nome", SourceColumn: "Cliente", Operation: op, CaseSensitive: cs})
			got, err := e.Match(source, textTable([]string{"Nome"}, []string{"a"}), nil)
			if err != nil {
				t.Fatalf("%s: %v", op, err)
			}
			if got.NumRows() != 0 {
				t.Errorf("%s (case_sensitive=%v) matched null source cell", op, cs)
			}
		}
	}
}

func TestNullQueryColumnAddsNoConstraint(t *testing.T) {
	query := textTable([]string{"Nome", "Vazio"}, []string{"natal", ""})
	city := Criterion{QueryColumn: "Nome", SourceColumn: "Cidade"}
	empty := Criterion{QueryColumn: "Vazio", SourceColumn: "Cliente", Operation: OpContains}

	without, err := newTestEngine(city).Match(clientes(), query, nil)
	if err != nil {
		t.Fatal(err)
	}
	with, err := newTestEngine(city, empty).Match(clientes(), query, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(without.Strings(), with.Strings()) {
		t.Errorf("null criterion changed result: %v vs %v", without.Strings(), with.Strings())
	}
}

func TestCriteriaAreANDed(t *testing.T) {
	query := textTable([]string{"Cidade", "Cod"}, []string{"recife", "10"})
	e := newTestEngine(
		Criterion{QueryColumn: "Cidade", SourceColumn: "Cidade"},
		Criterion{QueryColumn: "Cod", SourceColumn: "Codigo"},
		Criterion{QueryColumn: "Cidade", SourceColumn: "Cliente", Operation: "regex"},
	)
	got, err := e.Match(clientes(), query, []string{"Cliente", "Missing"})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got.Columns, []string{"Cliente"}) {
		t.Errorf("columns = %v", got.Columns)
	}
	if want := [][]string{{"Ana Silva"}, {"Maria"}}; !reflect.DeepEqual(got.Strings(), want) {
		t.Errorf("rows = %v, want %v", got.Strings(), want)
	}
}

func TestMatchDedupeIdempotent(t *testing.T) {
	query := textTable([]string{"Cidade"}, []string{"natal"})
	e := newTestEngine(Criterion{QueryColumn: "Cidade", SourceColumn: "Cidade"})

	once, err := e.Match(clientes(), query, nil)
	if err != nil {
		t.Fatal(err)
	}
	again, _ := e.Match(clientes(), query, nil)

	combined := &table.Table{}
	table.Concat(combined, once, []int{0, 1})
	table.Concat(combined, again, []int{0, 1})
	if got := table.Dedupe(combined); !reflect.DeepEqual(got.Strings(), once.Strings()) {
		t.Errorf("dedupe of doubled result = %v, want %v", got.Strings(), once.Strings())
	}
}

func TestMatchErrors(t *testing.T) {
	src := clientes()
	qry := textTable([]string{"Nome"}, []string{"a"})

	tests := []struct {
		name   string
		engine *Engine
		source *table.Table
		query  *table.Table
		want   error
	}{
		{name: "no criteria", engine: newTestEngine(), source: src, query: qry, want: ErrNotReady},
		{name: "no source", engine: newTestEngine(Criterion{QueryColumn: "Nome", SourceColumn: "Cliente"}), query: qry, want: ErrNotReady},
		{name: "no query", engine: newTestEngine(Criterion{QueryColumn: "Nome", SourceColumn: "Cliente"}), source: src, want: ErrNotReady},
		{name: "unknown query column", engine: newTestEngine(Criterion{QueryColumn: "X", SourceColumn: "Cliente"}), source: src, query: qry, want: ErrUnknownColumn},
		{name: "unknown source column", engine: newTestEngine(Criterion{QueryColumn: "Nome", SourceColumn: "X"}), source: src, query: qry, want: ErrUnknownColumn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.engine.Match(tt.source, tt.query, nil)
			if !errors.Is(err, tt.want) {
				t.Errorf("Match() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMatchEmptyQuerySkipsColumnChecks(t *testing.T) {
	e := newTestEngine(Criterion{QueryColumn: "CPF", SourceColumn: "Cliente"})
	empty := table.New("Nome")

	got, err := e.Match(clientes(), empty, []string{"Cidade"})
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if got.NumRows() != 0 || !reflect.DeepEqual(got.Columns, []string{"Cidade"}) {
		t.Errorf("result = %v / %v", got.Columns, got.Strings())
	}
}

func TestResetCriteria(t *testing.T) {
	e := newTestEngine(Criterion{QueryColumn: "a", SourceColumn: "b"})
	if got := e.Criteria(); len(got) != 1 || got[0].Operation != OpEquals {
		t.Fatalf("Criteria() = %v", got)
	}
	e.ResetCriteria()
	if len(e.Criteria()) != 0 {
		t.Error("ResetCriteria left criteria behind")
	}
}
