package core

import (
	"archive/zip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/datafinder/internal/history"
	"github.com/JonMunkholm/datafinder/internal/loader"
	"github.com/JonMunkholm/datafinder/internal/match"
	"github.com/JonMunkholm/datafinder/internal/merge"
	"github.com/JonMunkholm/datafinder/internal/perf"
)

type serviceFixture struct {
	dir     string
	svc     *Service
	store   history.Store
	limiter *RunLimiter
}

func newServiceFixture(t *testing.T, withHistory bool) *serviceFixture {
	t.Helper()
	f := &serviceFixture{dir: t.TempDir(), limiter: NewRunLimiter(1, 20*time.Millisecond)}

	cfg := ServiceConfig{
		Loader:  newTestLoader(t),
		Limiter: f.limiter,
		Monitor: perf.NewMonitor(discardLogger()),
		Logger:  discardLogger(),
		Merge: merge.Options{
			InputDir:   f.dir,
			OutputDir:  filepath.Join(f.dir, "saida"),
			OutputName: "merged.xlsx",
		},
	}
	if withHistory {
		store, err := history.OpenSQLite(context.Background(), ":memory:")
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { store.Close() })
		f.store = store
		cfg.History = store
	}
	f.svc = NewService(cfg)
	return f
}

func (f *serviceFixture) matchRequest(t *testing.T) MatchRequest {
	return MatchRequest{
		SourcePath: writeFile(t, f.dir, "clientes.csv", sourceCSV),
		QueryPath:  writeFile(t, f.dir, "busca.csv", queryCSV),
		Criteria:   []match.Criterion{{QueryColumn: "Nome", SourceColumn: "Cliente", Operation: match.OpContains}},
	}
}

// writeContacts writes a raw contacts package with name, two unused cells,
// landline and mobile per row.
func writeContacts(t *testing.T, path string, rows ...[5]string) {
	t.Helper()
	var b strings.Builder
	b.WriteString(`<worksheet><sheetData>`)
	for _, r := range rows {
		b.WriteString(`<row>`)
		for _, v := range r {
			b.WriteString(`<c t="inlineStr"><is><t>` + v + `</t></is></c>`)
		}
		b.WriteString(`</row>`)
	}
	b.WriteString(`</sheetData></worksheet>`)

	out, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()
	zw := zip.NewWriter(out)
	w, err := zw.Create("xl/worksheets/sheet1.xml")
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(w, b.String())
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestRunMatch(t *testing.T) {
	f := newServiceFixture(t, true)
	req := f.matchRequest(t)
	req.OutputPath = filepath.Join(f.dir, "saida", "resultado.csv")

	res, err := f.svc.RunMatch(context.Background(), req)
	if err != nil {
		t.Fatalf("RunMatch() error = %v", err)
	}
	if res.Rows != 2 || len(res.Preview) != 2 || res.Preview[1][0] != "Maria Silva" {
		t.Errorf("result = %+v", res)
	}
	if _, err := os.Stat(res.OutputPath); err != nil {
		t.Errorf("output not written: %v", err)
	}

	runs, err := f.svc.RecentRuns(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	if r := runs[0]; r.ID != res.RunID || r.Kind != history.KindMatch || !r.Success || r.Rows != 2 {
		t.Errorf("recorded run = %+v", r)
	}
	if f.limiter.ActiveCount() != 0 {
		t.Error("RunMatch did not release its slot")
	}
}

func TestRunMatchFailureIsRecorded(t *testing.T) {
	f := newServiceFixture(t, true)
	req := f.matchRequest(t)
	req.SourcePath = filepath.Join(f.dir, "missing.xlsx")

	_, err := f.svc.RunMatch(context.Background(), req)
	if !errors.Is(err, loader.ErrNotFound) {
		t.Fatalf("RunMatch() error = %v, want ErrNotFound", err)
	}

	runs, _ := f.svc.RecentRuns(context.Background(), 10)
	if len(runs) != 1 || runs[0].Success || runs[0].Error == "" {
		t.Errorf("runs = %+v", runs)
	}
}

func TestRunMatchValidation(t *testing.T) {
	f := newServiceFixture(t, false)
	req := f.matchRequest(t)

	req.Criteria = nil
	if _, err := f.svc.RunMatch(context.Background(), req); !errors.Is(err, match.ErrNotReady) {
		t.Errorf("no criteria: error = %v, want ErrNotReady", err)
	}

	req.Criteria = []match.Criterion{{QueryColumn: "CPF", SourceColumn: "Cliente"}}
	if _, err := f.svc.RunMatch(context.Background(), req); !errors.Is(err, match.ErrUnknownColumn) {
		t.Errorf("unknown column: error = %v, want ErrUnknownColumn", err)
	}

	req.Criteria = []match.Criterion{{QueryColumn: "Nome"}}
	if _, err := f.svc.RunMatch(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("blank source column: error = %v, want ErrInvalidRequest", err)
	}

	req = f.matchRequest(t)
	req.QueryPath = writeFile(t, f.dir, "none.csv", "Nome\nninguem\n")
	req.OutputPath = filepath.Join(f.dir, "saida", "vazio.xlsx")
	if _, err := f.svc.RunMatch(context.Background(), req); !errors.Is(err, ErrNoResults) {
		t.Errorf("empty export: error = %v, want ErrNoResults", err)
	}
}

func TestRunBusy(t *testing.T) {
	f := newServiceFixture(t, false)
	if !f.limiter.TryAcquire() {
		t.Fatal("could not take the only slot")
	}
	defer f.limiter.Release()

	_, err := f.svc.RunMatch(context.Background(), f.matchRequest(t))
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("RunMatch() error = %v, want ErrBusy", err)
	}
	if code := MapError(err).Code; code != "RUN001" {
		t.Errorf("code = %s, want RUN001", code)
	}

	mreq := MergeRequest{ClientFiles: []string{"clientes.csv"}, PhoneFile: "telefones.xlsx"}
	if _, err := f.svc.RunMerge(context.Background(), mreq); !errors.Is(err, ErrBusy) {
		t.Errorf("RunMerge() error = %v, want ErrBusy", err)
	}
}

func TestRunMerge(t *testing.T) {
	f := newServiceFixture(t, true)
	writeContacts(t, filepath.Join(f.dir, "telefones.xlsx"),
		[5]string{"Ana Silva", "", "", "8133334444", "81999990000"},
	)
	writeFile(t, f.dir, "clientes.csv", "Codigo,Cidade,Nome\n1,Recife,Ana Silva\n2,Natal,Bruno\n")

	report, err := f.svc.RunMerge(context.Background(), MergeRequest{
		ClientFiles: []string{"clientes.csv"},
		PhoneFile:   "telefones.xlsx",
		OutputName:  "custom.xlsx",
	})
	if err != nil {
		t.Fatalf("RunMerge() error = %v", err)
	}
	if report.Sheets != 1 || report.Phones != 1 {
		t.Errorf("report = %+v", report)
	}
	if want := filepath.Join(f.dir, "saida", "custom.xlsx"); report.OutputPath != want {
		t.Errorf("OutputPath = %q, want %q", report.OutputPath, want)
	}

	vr := f.svc.Verify(report.OutputPath)
	if len(vr.Sheets) != 1 || !vr.Sheets[0].HasPhones || vr.Sheets[0].PhonesFilled != 1 {
		t.Errorf("verify = %+v", vr)
	}

	runs, _ := f.svc.RecentRuns(context.Background(), 10)
	if len(runs) != 1 || runs[0].Kind != history.KindMerge || !runs[0].Success {
		t.Errorf("runs = %+v", runs)
	}
}

func TestRunMergeNoPhones(t *testing.T) {
	f := newServiceFixture(t, false)
	writeFile(t, f.dir, "clientes.csv", "Codigo,Cidade,Nome\n1,Recife,Ana\n")

	_, err := f.svc.RunMerge(context.Background(), MergeRequest{
		ClientFiles: []string{"clientes.csv"},
		PhoneFile:   "missing.xlsx",
	})
	if !errors.Is(err, merge.ErrNoPhones) {
		t.Errorf("RunMerge() error = %v, want ErrNoPhones", err)
	}
}

func TestWriteVerifyReportDefaultsToOutputDir(t *testing.T) {
	f := newServiceFixture(t, false)
	src := writeFile(t, f.dir, "clientes.csv", sourceCSV)

	path, report, err := f.svc.WriteVerifyReport(src, "")
	if err != nil {
		t.Fatalf("WriteVerifyReport() error = %v", err)
	}
	if filepath.Dir(path) != filepath.Join(f.dir, "saida") {
		t.Errorf("report path = %q", path)
	}
	if !report.Exists {
		t.Errorf("report = %+v", report)
	}
}

func TestRecentRunsDisabled(t *testing.T) {
	f := newServiceFixture(t, false)
	if f.svc.HistoryEnabled() {
		t.Error("HistoryEnabled() = true without a store")
	}
	if _, err := f.svc.RecentRuns(context.Background(), 5); !errors.Is(err, history.ErrDisabled) {
		t.Errorf("RecentRuns() error = %v, want ErrDisabled", err)
	}
}

func TestMetrics(t *testing.T) {
	f := newServiceFixture(t, false)
	if _, err := f.svc.RunMatch(context.Background(), f.matchRequest(t)); err != nil {
		t.Fatal(err)
	}

	ops := map[string]perf.Summary{}
	for _, s := range f.svc.Metrics() {
		ops[s.Operation] = s
	}
	if ops["match"].Count != 1 || ops["match"].Failures != 0 {
		t.Errorf("match summary = %+v", ops["match"])
	}
}
