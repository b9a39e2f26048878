package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JonMunkholm/datafinder/internal/loader"
	"github.com/JonMunkholm/datafinder/internal/merge"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	t.Setenv("INPUT_DIR", filepath.Join(root, "entrada"))
	t.Setenv("OUTPUT_DIR", filepath.Join(root, "saida"))
	t.Setenv("EXTRACT_TEMP_DIR", filepath.Join(root, "scratch"))
	t.Setenv("LOG_TO_FILE", "false")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("HISTORY_DSN", "sqlite:"+filepath.Join(root, "history.db"))
	return root
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := execute(args, &out, &out, false)
	return out.String(), err
}

func write(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestMatchCommand(t *testing.T) {
	root := setupEnv(t)
	source := write(t, filepath.Join(root, "grande.csv"), "Cliente,Codigo\nAna Silva,1\nBruno,2\nMaria Silva,3\n")
	query := write(t, filepath.Join(root, "consulta.csv"), "Nome\nSILVA\n")
	output := filepath.Join(root, "resultados.xlsx")

	out, err := run(t, "match",
		"--source", source, "--query", query,
		"--source-column", "Cliente", "--query-column", "Nome",
		"--output", output, "--columns", "Cliente")
	if err != nil {
		t.Fatalf("match error = %v\n%s", err, out)
	}
	for _, want := range []string{"Results found: 2", "Operation:     contains", "(3 rows)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if _, err := os.Stat(output); err != nil {
		t.Errorf("result file: %v", err)
	}
}

func TestMatchCommandErrors(t *testing.T) {
	root := setupEnv(t)
	query := write(t, filepath.Join(root, "consulta.csv"), "Nome\nx\n")

	if _, err := run(t, "match", "--source", "a.csv"); err == nil {
		t.Error("missing required flags: error = nil")
	}

	_, err := run(t, "match", "--source", "a.csv", "--query", query,
		"--source-column", "A", "--query-column", "Nome", "--output", "o.xlsx", "--operation", "regex")
	if err == nil || !strings.Contains(err.Error(), "regex") {
		t.Errorf("bad operation: error = %v", err)
	}

	out, err := run(t, "match", "--source", filepath.Join(root, "nope.csv"), "--query", query,
		"--source-column", "A", "--query-column", "Nome", "--output", "o.xlsx")
	if !errors.Is(err, loader.ErrNotFound) {
		t.Fatalf("missing source: error = %v", err)
	}
	var reported reportedError
	if !errors.As(err, &reported) || !strings.Contains(out, "FILE001") {
		t.Errorf("error not reported to the user:\n%s", out)
	}
}

func TestMergeCommandNoPhones(t *testing.T) {
	root := setupEnv(t)
	write(t, filepath.Join(root, "entrada", "clientes.csv"), "Codigo,Cidade,Nome\n1,Recife,Ana\n")

	out, err := run(t, "merge", "--phones", "telefones.xlsx", "clientes.csv")
	if !errors.Is(err, merge.ErrNoPhones) {
		t.Fatalf("merge error = %v", err)
	}
	if !strings.Contains(out, "MERGE001") {
		t.Errorf("output = %s", out)
	}
}

func TestVerifyCommand(t *testing.T) {
	root := setupEnv(t)

	out, err := run(t, "verify")
	if !errors.Is(err, loader.ErrNotFound) {
		t.Fatalf("verify error = %v", err)
	}
	if !strings.Contains(out, "VERIFICATION REPORT") {
		t.Errorf("output = %s", out)
	}

	csv := write(t, filepath.Join(root, "dados.csv"), "a,b\n1,2\n")
	out, _ = run(t, "verify", "--report", csv)
	if !strings.Contains(out, "Report saved to") {
		t.Errorf("output = %s", out)
	}
	if _, err := os.Stat(filepath.Join(root, "saida", "dados_report.txt")); err != nil {
		t.Errorf("report file: %v", err)
	}
}
