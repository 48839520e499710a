// Package heatmap is the query side of the execution heatmap.
//
// A Service owns one counter store per ingestion source: the always-on
// ManualTracker and the switchable StackTracker. Queries merge the stores of
// every enabled source by summing counts for identical locations. Reset clears
// all sources under the service write lock while queries share the read lock.
package heatmap

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/exec-heatmap/internal/counter"
	"github.com/exec-heatmap/internal/resolver"
	"github.com/exec-heatmap/internal/sourcemap"
	"github.com/exec-heatmap/internal/statistics"
	apperrors "github.com/exec-heatmap/pkg/errors"
	"github.com/exec-heatmap/pkg/model"
	"github.com/exec-heatmap/pkg/telemetry"
	"github.com/exec-heatmap/pkg/utils"
)

const (
	hybridModeDescription = "Hybrid mode: both manual trackLine() and automatic instrumentation"
	manualModeDescription = "Manual mode: only explicit trackLine() calls"
)

// Service answers heatmap queries and accepts ingestion events.
type Service struct {
	mu sync.RWMutex

	manual   *ManualTracker
	auto     *StackTracker
	resolver *resolver.Resolver

	loader *sourcemap.Loader
	mapsMu sync.Mutex
	root   string

	defaultTopN int
	logger      utils.Logger
	tracer      trace.Tracer
	metrics     *instruments
}

// Option configures a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	logger         utils.Logger
	meter          metric.Meter
	defaultTopN    int
	autoInstrument bool
	root           string
	workers        int
}

// WithLogger sets the logger.
func WithLogger(logger utils.Logger) Option {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMeter sets the meter instruments are created on.
func WithMeter(meter metric.Meter) Option {
	return func(o *serviceOptions) {
		if meter != nil {
			o.meter = meter
		}
	}
}

// WithDefaultTopN sets the hottest-list length used when a query passes
// topN <= 0.
func WithDefaultTopN(n int) Option {
	return func(o *serviceOptions) {
		o.defaultTopN = n
	}
}

// WithAutoInstrument sets the initial state of the automatic source.
func WithAutoInstrument(enabled bool) Option {
	return func(o *serviceOptions) {
		o.autoInstrument = enabled
	}
}

// WithSourceMapRoot sets the directory ReloadSourceMaps scans.
func WithSourceMapRoot(root string) Option {
	return func(o *serviceOptions) {
		o.root = root
	}
}

// WithLoaderWorkers sets the number of map files decoded concurrently.
func WithLoaderWorkers(n int) Option {
	return func(o *serviceOptions) {
		o.workers = n
	}
}

// New creates a Service with empty stores and no source maps loaded.
func New(opts ...Option) (*Service, error) {
	o := &serviceOptions{
		logger:      &utils.NullLogger{},
		meter:       noop.NewMeterProvider().Meter(telemetry.InstrumentationName),
		defaultTopN: statistics.DefaultTopN,
		workers:     4,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.defaultTopN <= 0 {
		o.defaultTopN = statistics.DefaultTopN
	}

	r := resolver.New(nil)
	s := &Service{
		manual:      NewManualTracker(),
		auto:        NewStackTracker(r, o.autoInstrument),
		resolver:    r,
		loader:      sourcemap.NewLoader(sourcemap.WithWorkers(o.workers), sourcemap.WithLogger(o.logger)),
		root:        o.root,
		defaultTopN: o.defaultTopN,
		logger:      o.logger,
		tracer:      telemetry.Tracer(),
	}

	m, err := newInstruments(o.meter, s.trackedLines)
	if err != nil {
		return nil, fmt.Errorf("failed to create heatmap instruments: %w", err)
	}
	s.metrics = m

	return s, nil
}

// Manual returns the manual ingestion source.
func (s *Service) Manual() *ManualTracker {
	return s.manual
}

// Auto returns the automatic ingestion source.
func (s *Service) Auto() *StackTracker {
	return s.auto
}

// TrackLine records one execution of file:line on the manual source.
func (s *Service) TrackLine(file string, line int) {
	s.manual.TrackLine(file, line)
	s.metrics.events.Add(context.Background(), 1, s.metrics.manualAttrs)
}

// TrackStack records every frame of a stack trace on the automatic source.
// It returns the number of frames recorded, 0 while the source is disabled.
func (s *Service) TrackStack(stack string) int {
	n := s.auto.TrackStack(stack)
	if n > 0 {
		s.metrics.events.Add(context.Background(), int64(n), s.metrics.autoAttrs)
	}
	return n
}

// TrackGenerated records one generated-code position on the automatic
// source.
func (s *Service) TrackGenerated(file string, line, column int) bool {
	ok := s.auto.TrackGenerated(file, line, column)
	if ok {
		s.metrics.events.Add(context.Background(), 1, s.metrics.autoAttrs)
	}
	return ok
}

// GetHeatmap returns the merged counts of all enabled sources.
func (s *Service) GetHeatmap(ctx context.Context) model.HeatmapSnapshot {
	_, span := s.tracer.Start(ctx, "heatmap.GetHeatmap")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.merged()
	span.SetAttributes(attribute.Int("heatmap.lines", snap.Lines()))
	return snap
}

// GetStats returns totals, the topN hottest lines and the merged heatmap.
// topN <= 0 selects the configured default.
func (s *Service) GetStats(ctx context.Context, topN int) *model.StatsResult {
	_, span := s.tracer.Start(ctx, "heatmap.GetStats")
	defer span.End()

	if topN <= 0 {
		topN = s.defaultTopN
	}

	s.mu.RLock()
	entries := s.merged().Entries()
	autoEnabled := s.auto.Enabled()
	s.mu.RUnlock()

	stats := counter.BuildStats(entries, topN)
	stats.AutoInstrumentEnabled = autoEnabled

	span.SetAttributes(
		attribute.Int("heatmap.top_n", topN),
		attribute.Int("heatmap.lines", stats.TotalLines),
	)
	return stats
}

// GetFileStats returns per-file totals of the merged heatmap.
func (s *Service) GetFileStats(ctx context.Context) *statistics.FileStatsResult {
	return statistics.NewFileStatsCalculator().Calculate(s.GetHeatmap(ctx))
}

// Reset clears every source.
func (s *Service) Reset(ctx context.Context) {
	ctx, span := s.tracer.Start(ctx, "heatmap.Reset")
	defer span.End()

	s.mu.Lock()
	s.manual.Store().Reset()
	s.auto.Store().Reset()
	s.mu.Unlock()

	s.metrics.resets.Add(ctx, 1)
	s.logger.Info("Heatmap reset")
}

// Health reports liveness without touching any store.
func (s *Service) Health() model.HealthStatus {
	return model.HealthStatus{Status: "ok"}
}

// Mode describes which sources are active.
func (s *Service) Mode() model.ModeInfo {
	auto := s.auto.Enabled()
	desc := manualModeDescription
	if auto {
		desc = hybridModeDescription
	}
	return model.ModeInfo{
		ManualTracking:      true,
		AutoInstrumentation: auto,
		Description:         desc,
	}
}

// SetAutoInstrument turns the automatic source on or off and reports
// whether the state changed.
func (s *Service) SetAutoInstrument(enabled bool) bool {
	s.mu.Lock()
	changed := s.auto.SetEnabled(enabled)
	s.mu.Unlock()

	if changed {
		s.logger.Info("Auto-instrumentation enabled=%t", enabled)
	}
	return changed
}

// LoadSourceMaps scans root for map files and installs the decoded tables.
// Unreadable or malformed files are skipped. root becomes the directory used
// by ReloadSourceMaps.
func (s *Service) LoadSourceMaps(ctx context.Context, root string) *sourcemap.LoadReport {
	ctx, span := s.tracer.Start(ctx, "heatmap.LoadSourceMaps", trace.WithAttributes(
		attribute.String("sourcemaps.root", root),
	))
	defer span.End()

	s.mapsMu.Lock()
	defer s.mapsMu.Unlock()

	set, report := s.loader.LoadDir(ctx, root)
	s.resolver.Reload(set)
	s.root = root

	span.SetAttributes(
		attribute.Int("sourcemaps.found", report.Found),
		attribute.Int("sourcemaps.loaded", report.Loaded),
	)
	return report
}

// ReloadSourceMaps rescans the last loaded (or configured) root.
func (s *Service) ReloadSourceMaps(ctx context.Context) (*sourcemap.LoadReport, error) {
	root := s.SourceMapRoot()
	if root == "" {
		return nil, apperrors.New(apperrors.CodeInvalidInput, "no source map root configured")
	}
	return s.LoadSourceMaps(ctx, root), nil
}

// SourceMapRoot returns the directory ReloadSourceMaps scans.
func (s *Service) SourceMapRoot() string {
	s.mapsMu.Lock()
	defer s.mapsMu.Unlock()
	return s.root
}

// SourceMaps returns the names of the loaded tables.
func (s *Service) SourceMaps() []string {
	return s.resolver.Tables().Names()
}

// Watch reloads source maps whenever map files under the root change. It
// blocks until ctx is done.
func (s *Service) Watch(ctx context.Context, debounce time.Duration) error {
	root := s.SourceMapRoot()
	if root == "" {
		return apperrors.New(apperrors.CodeInvalidInput, "no source map root configured")
	}

	w := sourcemap.NewWatcher(root, debounce, func(changed []string) {
		s.logger.Info("Reloading source maps (%d files changed)", len(changed))
		if _, err := s.ReloadSourceMaps(ctx); err != nil {
			s.logger.Warn("Source map reload failed: %v", err)
		}
	}, s.logger)
	return w.Run(ctx)
}

// merged sums the snapshots of all enabled sources. Callers hold s.mu.
func (s *Service) merged() model.HeatmapSnapshot {
	if !s.auto.Enabled() {
		return model.Merge(s.manual.Store().Snapshot())
	}
	return model.Merge(s.manual.Store().Snapshot(), s.auto.Store().Snapshot())
}

func (s *Service) trackedLines() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.merged().Lines()
}
