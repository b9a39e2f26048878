package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/JonMunkholm/datafinder/internal/core"
	"github.com/JonMunkholm/datafinder/internal/history"
	"github.com/JonMunkholm/datafinder/internal/web/templates"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
	maxJSONBody         = 1 << 20
)

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	status := s.service.LimiterStatus()
	data := templates.DashboardData{
		HistoryEnabled: s.service.HistoryEnabled(),
		ActiveRuns:     status.Active,
		MaxRuns:        status.MaxConcurrent,
		InputDir:       s.cfg.Paths.InputDir,
		OutputDir:      s.cfg.Paths.OutputDir,
	}

	if data.HistoryEnabled {
		runs, err := s.service.RecentRuns(r.Context(), defaultHistoryLimit)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		for _, run := range runs {
			data.Runs = append(data.Runs, templates.RunRow{
				ID:        run.ID.String(),
				Kind:      run.Kind,
				StartedAt: run.StartedAt.Local().Format("2006-01-02 15:04:05"),
				Duration:  formatDuration(run.Duration),
				Rows:      run.Rows,
				Success:   run.Success,
				Error:     run.Error,
			})
		}
	}
	for _, m := range s.service.Metrics() {
		data.Metrics = append(data.Metrics, templates.MetricRow{
			Operation: m.Operation,
			Count:     m.Count,
			Failures:  m.Failures,
			Mean:      formatDuration(m.Mean),
			Min:       formatDuration(m.Min),
			Max:       formatDuration(m.Max),
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.Dashboard(data).Render(r.Context(), w); err != nil {
		s.logger.Error("render dashboard", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":  "ok",
		"runs":    s.service.LimiterStatus(),
		"history": s.service.HistoryEnabled(),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.respondError(w, r, fmt.Errorf("%w: limit must be a positive integer", errBadRequest))
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	runs, err := s.service.RecentRuns(r.Context(), limit)
	if errors.Is(err, history.ErrDisabled) {
		writeJSON(w, r, http.StatusOK, map[string]any{"enabled": false, "runs": []history.Run{}})
		return
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if runs == nil {
		runs = []history.Run{}
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"enabled": true, "runs": runs})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"operations": s.service.Metrics(),
		"runs":       s.service.LimiterStatus(),
	})
}

// handleMatch accepts either a JSON core.MatchRequest naming files on the
// server, or a multipart form with "source" and "query" uploads, a
// "criteria" JSON array and optional "columns", "source_sheet",
// "query_sheet", "raw" and "format" fields. A multipart request with a
// format gets the result file back as an attachment.
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	if isMultipart(r) {
		s.handleMatchUpload(w, r)
		return
	}

	var req core.MatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	req.SourcePath = s.inputPath(req.SourcePath)
	req.QueryPath = s.inputPath(req.QueryPath)
	if req.OutputPath != "" {
		out, err := s.outputPath(req.OutputPath)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		req.OutputPath = out
	}

	res, err := s.service.RunMatch(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

func (s *Server) handleMatchUpload(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Server.MaxUploadSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.respondError(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	dir, err := os.MkdirTemp("", "datafinder-upload-")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer os.RemoveAll(dir)

	req := core.MatchRequest{
		SourceSheet: r.FormValue("source_sheet"),
		QuerySheet:  r.FormValue("query_sheet"),
		Raw:         r.FormValue("raw") == "true",
		Columns:     splitList(r.FormValue("columns")),
	}
	if req.SourcePath, err = saveUpload(r, "source", dir); err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.QueryPath, err = saveUpload(r, "query", dir); err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := json.Unmarshal([]byte(r.FormValue("criteria")), &req.Criteria); err != nil {
		s.respondError(w, r, fmt.Errorf("%w: criteria must be a JSON array: %v", errBadRequest, err))
		return
	}

	format := strings.ToLower(r.FormValue("format"))
	if format != "" {
		req.OutputFormat = format
		req.OutputPath = filepath.Join(dir, "resultado."+format)
	}

	res, err := s.service.RunMatch(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if format == "" {
		writeJSON(w, r, http.StatusOK, res)
		return
	}

	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filepath.Base(res.OutputPath)}))
	w.Header().Set("X-Run-ID", res.RunID.String())
	http.ServeFile(w, r, res.OutputPath)
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	var req core.MergeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	report, err := s.service.RunMerge(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}

type verifyRequest struct {
	Path        string `json:"path"`
	WriteReport bool   `json:"write_report"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	path := req.Path
	if path == "" {
		path = filepath.Join(s.cfg.Paths.OutputDir, s.cfg.Paths.OutputFile)
	} else {
		var err error
		if path, err = s.outputPath(path); err != nil {
			s.respondError(w, r, err)
			return
		}
	}

	if !req.WriteReport {
		writeJSON(w, r, http.StatusOK, map[string]any{"report": s.service.Verify(path)})
		return
	}
	out, report, err := s.service.WriteVerifyReport(path, s.cfg.Paths.OutputDir)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"report": report, "report_path": out})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadRequest)
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

// saveUpload copies form file field into dir, keeping only the base name
// of the client's file name so its extension still selects the reader.
func saveUpload(r *http.Request, field, dir string) (string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return "", fmt.Errorf("%w: missing %s file", errBadRequest, field)
	}
	defer file.Close()

	name := filepath.Base(filepath.Clean("/" + header.Filename))
	path := filepath.Join(dir, field+"_"+name)
	out, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		return "", err
	}
	return path, out.Close()
}

func (s *Server) inputPath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(s.cfg.Paths.InputDir, p)
}

// outputPath resolves p against the output directory. Absolute paths and
// paths that climb out of the directory are rejected.
func (s *Server) outputPath(p string) (string, error) {
	if filepath.IsAbs(p) || filepath.VolumeName(p) != "" {
		return "", fmt.Errorf("%w: output path must be relative to the output directory", errBadRequest)
	}
	root, err := filepath.Abs(s.cfg.Paths.OutputDir)
	if err != nil {
		return "", fmt.Errorf("resolve output dir: %w", err)
	}
	full := filepath.Join(root, p)
	if full == root || !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: output path %q leaves the output directory", errBadRequest, p)
	}
	return full, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
