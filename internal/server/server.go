// Package server exposes the web runner: a page with a Run button and a
// small JSON API over the catalog, runs and run history.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ajramos/keycheck/internal/config"
	"github.com/ajramos/keycheck/internal/render"
	"github.com/ajramos/keycheck/internal/report"
	"github.com/ajramos/keycheck/internal/services"
	"github.com/ajramos/keycheck/internal/verify"
	"github.com/ajramos/keycheck/internal/version"
)

// Server holds what the handlers need. Config is read on every request so
// a reloaded configuration applies to the next run.
type Server struct {
	Config  *config.Manager
	Runs    services.RunService
	History services.HistoryService
	Logger  *log.Logger
}

// Routes returns the HTTP handler
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/catalog", s.handleCatalog)

	// Runs
	mux.HandleFunc("POST /api/run", s.handleRun)
	mux.HandleFunc("GET /run-tests", s.handleRunTests)

	// History
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/runs/latest", s.handleLatestRun)
	mux.HandleFunc("GET /api/runs/compare", s.handleCompareRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /api/runs/{id}/report", s.handleRunReport)

	return s.withLogging(mux)
}

// ListenAndServe serves until ctx is done, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logf("listening on http://%s", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"version":   version.GetVersionString(),
		"timestamp": time.Now().UTC(),
	})
}

type catalogItem struct {
	ID             string `json:"id"`
	KeyCombination string `json:"keyCombination"`
	Category       string `json:"category"`
	Context        string `json:"context"`
	ExpectedEffect string `json:"expectedEffect"`
	Description    string `json:"description,omitempty"`
	Group          string `json:"group,omitempty"`
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	cat, err := s.Config.GetConfig().LoadCatalog()
	if err != nil {
		s.err(w, http.StatusInternalServerError, "load catalog: "+err.Error())
		return
	}
	items := make([]catalogItem, 0, cat.Len())
	for d := range cat.Entries() {
		items = append(items, catalogItem{
			ID:             d.ID(),
			KeyCombination: d.Keys().String(),
			Category:       string(d.Category()),
			Context:        d.Context(),
			ExpectedEffect: d.ExpectedEffect(),
			Description:    d.Description(),
			Group:          d.Group(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"application": cat.Meta().Application,
		"url":         cat.Meta().URL,
		"count":       len(items),
		"items":       items,
	})
}

type runResponse struct {
	RunID    string          `json:"runId,omitempty"`
	Notified bool            `json:"notified"`
	Delta    *report.Delta   `json:"delta,omitempty"`
	Report   report.Document `json:"report"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	out, ok := s.run(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, runResponse{
		RunID:    out.RunID,
		Notified: out.Notified,
		Delta:    out.Delta,
		Report:   out.Report.Document(),
	})
}

// handleRunTests answers with the bare report document, the shape the
// original runner page consumed
func (s *Server) handleRunTests(w http.ResponseWriter, r *http.Request) {
	out, ok := s.run(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, out.Report.Document())
}

func (s *Server) run(w http.ResponseWriter, r *http.Request) (*services.RunOutcome, bool) {
	q := r.URL.Query()
	f, err := verify.ParseFilter(q.Get("category"), q.Get("context"), q.Get("id"), q.Get("prefix"))
	if err != nil {
		s.err(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	out, err := s.Runs.Run(r.Context(), s.Config.GetConfig(), f)
	if err != nil {
		if out != nil && errors.Is(err, context.Canceled) {
			// client went away; nobody is left to read the answer
			s.logf("run cancelled after %d checks", out.Report.Summary().Total-out.Report.Summary().Skipped)
			return nil, false
		}
		s.fail(w, err)
		return nil, false
	}
	return out, true
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := clamp(parseInt(r.URL.Query().Get("limit"), 20), 1, 200)
	runs, err := s.History.ListRuns(r.Context(), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": runs, "limit": limit})
}

func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	rep, err := s.History.LatestRun(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep.Document())
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	rep, err := s.History.LoadRun(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep.Document())
}

func (s *Server) handleCompareRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	d, err := s.History.CompareRuns(r.Context(), q.Get("prev"), q.Get("next"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

var contentTypes = map[render.Format]string{
	render.FormatText:     "text/plain; charset=utf-8",
	render.FormatJSON:     "application/json",
	render.FormatYAML:     "application/yaml",
	render.FormatMarkdown: "text/markdown; charset=utf-8",
	render.FormatHTML:     "text/html; charset=utf-8",
}

func (s *Server) handleRunReport(w http.ResponseWriter, r *http.Request) {
	format, err := render.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.err(w, http.StatusBadRequest, err.Error())
		return
	}
	rep, err := s.History.LoadRun(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", contentTypes[format])
	if err := render.Write(w, rep, format); err != nil {
		s.logf("write report: %v", err)
	}
}

// fail maps service errors to status codes
func (s *Server) fail(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrRunInProgress):
		code = http.StatusConflict
	case errors.Is(err, services.ErrInvalidInput):
		code = http.StatusBadRequest
	case errors.Is(err, services.ErrHistoryDisabled), services.IsNotFoundError(err):
		code = http.StatusNotFound
	}
	if code == http.StatusInternalServerError {
		s.logf("request failed: %v", err)
	}
	s.err(w, code, err.Error())
}

func (s *Server) err(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func (s *Server) logf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
	}
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logf("%s %s (%s)", r.Method, r.URL.Path, time.Since(start).Round(time.Millisecond))
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func parseInt(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}

func clamp(n, lo, hi int) int {
	return max(lo, min(n, hi))
}
