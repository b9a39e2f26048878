package logging

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewWritesRotatingFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	var console bytes.Buffer

	logger, closer, err := New(Options{
		Level:           "info",
		Format:          "text",
		Console:         &console,
		ToFile:          true,
		Dir:             dir,
		MaxSizeMB:       5,
		MaxBackups:      5,
		ErrorMaxSizeMB:  2,
		ErrorMaxBackups: 3,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Debug("hidden")
	logger.Info("loaded", "rows", 3)
	logger.With("file", "a.xlsx").Error("extraction failed")

	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	general, err := os.ReadFile(filepath.Join(dir, GeneralLogFile))
	if err != nil {
		t.Fatal(err)
	}
	errorsOnly, err := os.ReadFile(filepath.Join(dir, ErrorLogFile))
	if err != nil {
		t.Fatal(err)
	}

	for name, out := range map[string]string{"console": console.String(), "general": string(general)} {
		if strings.Contains(out, "hidden") {
			t.Errorf("%s log contains debug record", name)
		}
		if !strings.Contains(out, "loaded") || !strings.Contains(out, "extraction failed") {
			t.Errorf("%s log missing records:\n%s", name, out)
		}
	}
	if strings.Contains(string(errorsOnly), "loaded") {
		t.Error("error log contains info record")
	}
	if !strings.Contains(string(errorsOnly), "file=a.xlsx") {
		t.Errorf("error log missing attrs:\n%s", errorsOnly)
	}
}

func TestNewConsoleOnlyJSON(t *testing.T) {
	var console bytes.Buffer
	logger, closer, err := New(Options{Level: "debug", Format: "json", Console: &console})
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()

	logger.WithGroup("run").Debug("started", "kind", "match")
	if !strings.Contains(console.String(), `"run":{"kind":"match"}`) {
		t.Errorf("console = %s", console.String())
	}
}

func TestFromContextAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	var ctx context.Context
	h := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx = r.Context()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	WithFields(ctx, "kind", "merge").Info("run started")
	if !strings.Contains(buf.String(), "request_id=") || !strings.Contains(buf.String(), "kind=merge") {
		t.Errorf("log = %s", buf.String())
	}
}
