// Package server exposes the heatmap service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/exec-heatmap/internal/heatmap"
	apperrors "github.com/exec-heatmap/pkg/errors"
	"github.com/exec-heatmap/pkg/utils"
)

const maxBodyBytes = 1 << 20

// Server represents the heatmap HTTP server
type Server struct {
	addr         string
	readTimeout  time.Duration
	writeTimeout time.Duration

	service  *heatmap.Service
	exporter *heatmap.Exporter
	metrics  http.Handler
	logger   utils.Logger

	server *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithExporter enables the export routes.
func WithExporter(e *heatmap.Exporter) Option {
	return func(s *Server) {
		s.exporter = e
	}
}

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithLogger sets the logger.
func WithLogger(logger utils.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTimeouts sets the read and write timeouts.
func WithTimeouts(read, write time.Duration) Option {
	return func(s *Server) {
		s.readTimeout = read
		s.writeTimeout = write
	}
}

// NewServer creates a new heatmap server listening on addr.
func NewServer(addr string, service *heatmap.Service, opts ...Option) *Server {
	s := &Server{
		addr:         addr,
		readTimeout:  15 * time.Second,
		writeTimeout: 30 * time.Second,
		service:      service,
		logger:       &utils.NullLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/heatmap", s.handleHeatmap)
	mux.HandleFunc("GET /api/heatmap/stats", s.handleStats)
	mux.HandleFunc("GET /api/heatmap/files", s.handleFiles)
	mux.HandleFunc("GET /api/heatmap/mode", s.handleMode)
	mux.HandleFunc("POST /api/heatmap/reset", s.handleReset)
	mux.HandleFunc("POST /api/heatmap/auto-instrument/{enabled}", s.handleAutoInstrument)
	mux.HandleFunc("POST /api/heatmap/export", s.handleExport)
	mux.HandleFunc("GET /api/heatmap/exports", s.handleListExports)

	mux.HandleFunc("POST /api/track", s.handleTrack)
	mux.HandleFunc("POST /api/track/stack", s.handleTrackStack)
	mux.HandleFunc("POST /api/track/generated", s.handleTrackGenerated)

	mux.HandleFunc("GET /api/sourcemaps", s.handleSourceMaps)
	mux.HandleFunc("POST /api/sourcemaps/reload", s.handleReloadSourceMaps)

	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	return mux
}

// Start starts the server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
	}

	s.logger.Info("Heatmap agent listening on %s", s.addr)
	s.logger.Info("  GET  /api/heatmap               - current heatmap")
	s.logger.Info("  GET  /api/heatmap/stats?topN=N  - heatmap with stats")
	s.logger.Info("  GET  /api/heatmap/mode          - tracking mode")
	s.logger.Info("  POST /api/heatmap/reset         - reset counters")
	s.logger.Info("  POST /api/track                 - record line executions")

	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.GetHeatmap(r.Context()))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	topN := 0
	if raw := r.URL.Query().Get("topN"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "topN must be a positive integer")
			return
		}
		topN = n
	}
	writeJSON(w, http.StatusOK, s.service.GetStats(r.Context(), topN))
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.GetFileStats(r.Context()))
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Mode())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.service.Reset(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"message": "Heatmap reset"})
}

func (s *Server) handleAutoInstrument(w http.ResponseWriter, r *http.Request) {
	enabled, err := strconv.ParseBool(r.PathValue("enabled"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "enabled must be true or false")
		return
	}

	message := "No change needed"
	if s.service.SetAutoInstrument(enabled) {
		message = "Auto-instrumentation disabled"
		if enabled {
			message = "Auto-instrumentation enabled"
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": message,
		"enabled": s.service.Mode().AutoInstrumentation,
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	result, err := s.exporter.Export(r.Context())
	if err != nil {
		s.logger.Error("Export failed: %v", err)
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListExports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.exporter.ListReports(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	if reports == nil {
		reports = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

// trackRequest is one manual line event.
type trackRequest struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column,omitempty"`
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	events, err := decodeTrackRequests(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, e := range events {
		s.service.TrackLine(e.File, e.Line)
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": len(events)})
}

func (s *Server) handleTrackGenerated(w http.ResponseWriter, r *http.Request) {
	events, err := decodeTrackRequests(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	accepted := 0
	for _, e := range events {
		if s.service.TrackGenerated(e.File, e.Line, e.Column) {
			accepted++
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": accepted})
}

func (s *Server) handleTrackStack(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	frames := s.service.TrackStack(string(body))
	writeJSON(w, http.StatusAccepted, map[string]any{
		"frames":  frames,
		"enabled": s.service.Auto().Enabled(),
	})
}

func (s *Server) handleSourceMaps(w http.ResponseWriter, r *http.Request) {
	tables := s.service.SourceMaps()
	if tables == nil {
		tables = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"root":   s.service.SourceMapRoot(),
		"tables": tables,
	})
}

func (s *Server) handleReloadSourceMaps(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.ReloadSourceMaps(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Health())
}

// decodeTrackRequests accepts a single object or an array of objects.
func decodeTrackRequests(r *http.Request) ([]trackRequest, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.New("failed to read body")
	}

	trimmed := strings.TrimSpace(string(body))
	var events []trackRequest
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &events); err != nil {
			return nil, errors.New("invalid JSON body")
		}
	} else {
		var event trackRequest
		if err := json.Unmarshal([]byte(trimmed), &event); err != nil {
			return nil, errors.New("invalid JSON body")
		}
		events = append(events, event)
	}

	for _, e := range events {
		if e.File == "" {
			return nil, errors.New("file is required")
		}
	}
	return events, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeAppError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case apperrors.IsInvalidInput(err):
		status = http.StatusBadRequest
	case apperrors.IsNotFound(err):
		status = http.StatusNotFound
	}
	writeError(w, status, apperrors.GetErrorMessage(err))
}
