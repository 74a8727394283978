// Package server exposes the context-stability dashboard over HTTP.
package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/KaramelBytes/cropctx/internal/advisory"
	"github.com/KaramelBytes/cropctx/internal/analysis"
	"github.com/KaramelBytes/cropctx/internal/chart"
	"github.com/KaramelBytes/cropctx/internal/contextstats"
	"github.com/KaramelBytes/cropctx/internal/dataset"
)

//go:embed templates/*.html
var templateFiles embed.FS

// Config holds the dataset and analysis settings used for every request.
type Config struct {
	Addr     string
	DataPath string
	Dataset  dataset.Options
	Analysis analysis.Options
	// OnReport, when set, receives every report served by / and /api/analysis.
	OnReport func(ctx context.Context, rep *analysis.Report)
}

// Server serves the dashboard. Each request loads the dataset itself; no
// dataset state is shared between requests.
type Server struct {
	cfg    Config
	log    *zap.Logger
	router *chi.Mux
	tmpl   *template.Template
}

// New builds the router. A nil logger discards logs.
func New(cfg Config, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	tmpl, err := template.ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	s := &Server{cfg: cfg, log: log, router: chi.NewRouter(), tmpl: tmpl}
	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(requestLogger(s.log))
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleIndex)
	s.router.Get("/api/analysis", s.handleAnalysis)
	s.router.Get("/api/advisory", s.handleAdvisory)
	s.router.Get("/chart.png", s.handleChart)
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on cfg.Addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("dashboard listening", zap.String("addr", s.cfg.Addr), zap.String("dataset", s.cfg.DataPath))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		s.log.Info("dashboard stopped")
		return nil
	}
}

// load reads the dataset for one request. ?sheet= selects an XLSX sheet.
func (s *Server) load(r *http.Request) (*dataset.Dataset, error) {
	opt := s.cfg.Dataset
	if sheet := r.URL.Query().Get("sheet"); sheet != "" {
		opt.SheetName = sheet
	}
	return dataset.Load(s.cfg.DataPath, opt)
}

func (s *Server) report(r *http.Request) (*analysis.Report, error) {
	ds, err := s.load(r)
	if err != nil {
		return nil, err
	}
	rep, err := analysis.Run(ds, s.cfg.Analysis)
	if err != nil {
		return nil, err
	}
	for _, w := range rep.Warnings {
		s.log.Debug("dataset warning", zap.String("dataset", rep.Dataset), zap.String("warning", w))
	}
	if s.cfg.OnReport != nil {
		s.cfg.OnReport(r.Context(), rep)
	}
	return rep, nil
}

type indexData struct {
	Disclaimer string
	Error      string
	Report     *analysis.Report
	Body       template.HTML
	Query      string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := indexData{Disclaimer: analysis.Disclaimer}
	data.Query = chartQuery(r.URL.Query().Get("sheet"))
	status := http.StatusOK
	rep, err := s.report(r)
	if err != nil {
		status = statusFor(err)
		data.Error = err.Error()
		s.logFailure(r, status, err)
	} else {
		data.Report = rep
		data.Body = template.HTML(renderHTML(rep.Markdown()))
	}
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, "index", data); err != nil {
		s.log.Error("render index", zap.Error(err))
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	rep, err := s.report(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

type advisoryResponse struct {
	Mode           string                  `json:"mode"`
	Bucket         string                  `json:"bucket"`
	ContextFailure bool                    `json:"contextFailure"`
	StabilityIndex float64                 `json:"stabilityIndex"`
	Recommendation advisory.Recommendation `json:"recommendation"`
}

func (s *Server) handleAdvisory(w http.ResponseWriter, r *http.Request) {
	ds, err := s.load(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	opt := s.cfg.Analysis
	opt.Profile, opt.Drivers = false, false
	rep, err := analysis.Run(ds, opt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, advisoryResponse{
		Mode:           string(rep.AdvisoryMode),
		Bucket:         string(rep.Bucket),
		ContextFailure: rep.Stats.ContextFailure,
		StabilityIndex: rep.Stats.StabilityIndex,
		Recommendation: rep.Advisory,
	})
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	ds, err := s.load(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	series := ds.YieldSeries()
	res, err := contextstats.ComputeWithOptions(series, s.cfg.Analysis.Stats)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := chart.RenderYield(series, res, &buf); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var mce *dataset.MissingColumnsError
	switch {
	case errors.As(err, &mce), errors.Is(err, contextstats.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	s.logFailure(r, status, err)
	writeJSON(w, status, errorBody{Error: err.Error(), Status: status})
}

func (s *Server) logFailure(r *http.Request, status int, err error) {
	fields := []zap.Field{
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", fields...)
		return
	}
	s.log.Warn("request rejected", fields...)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// chartQuery keeps the sheet selection when linking to the chart.
func chartQuery(sheet string) string {
	if sheet == "" {
		return ""
	}
	return "?" + url.Values{"sheet": {sheet}}.Encode()
}
