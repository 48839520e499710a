package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/exec-heatmap/internal/heatmap"
	"github.com/exec-heatmap/internal/repository"
	"github.com/exec-heatmap/internal/server"
	"github.com/exec-heatmap/internal/storage"
	"github.com/exec-heatmap/pkg/config"
	"github.com/exec-heatmap/pkg/telemetry"
	"github.com/exec-heatmap/pkg/utils"
)

var (
	// Serve command flags
	port           int
	sourceMapRoot  string
	autoInstrument bool
	watchMaps      bool
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the heatmap agent",
	Long: `Start the heatmap agent: load source maps, accept execution events and
serve the query API.

Routes:
  GET  /api/heatmap                         current heatmap
  GET  /api/heatmap/stats?topN=N            heatmap with totals and hottest lines
  GET  /api/heatmap/files                   per-file totals
  GET  /api/heatmap/mode                    tracking mode
  POST /api/heatmap/reset                   reset all counters
  POST /api/heatmap/auto-instrument/{bool}  toggle automatic instrumentation
  POST /api/heatmap/export                  export to the configured targets
  GET  /api/heatmap/exports                 list stored reports
  POST /api/track                           record {"file","line"} events
  POST /api/track/stack                     record every frame of a stack trace
  POST /api/track/generated                 record generated-code positions
  GET  /api/sourcemaps                      loaded source maps
  POST /api/sourcemaps/reload               rescan the source map root
  GET  /health                              liveness
  GET  /metrics                             Prometheus metrics`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVarP(&port, "port", "p", 0, "Port for the HTTP server (overrides server.port)")
	serveCmd.Flags().StringVarP(&sourceMapRoot, "root", "r", "", "Source map directory (overrides sourcemaps.root)")
	serveCmd.Flags().BoolVar(&autoInstrument, "auto", false, "Enable automatic instrumentation at startup")
	serveCmd.Flags().BoolVar(&watchMaps, "watch", false, "Reload source maps when map files change")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	applyServeFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := buildLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	var metrics *telemetry.Metrics
	if cfg.Metrics.Enabled {
		metrics, err = telemetry.NewMetrics(true)
		if err != nil {
			return fmt.Errorf("failed to initialize metrics: %w", err)
		}
	}

	svc, err := heatmap.New(
		heatmap.WithLogger(log),
		heatmap.WithMeter(metrics.Meter()),
		heatmap.WithDefaultTopN(cfg.Heatmap.DefaultTopN),
		heatmap.WithAutoInstrument(cfg.Heatmap.AutoInstrument),
		heatmap.WithSourceMapRoot(cfg.SourceMaps.Root),
		heatmap.WithLoaderWorkers(cfg.SourceMaps.Workers),
	)
	if err != nil {
		return fmt.Errorf("failed to create heatmap service: %w", err)
	}

	svc.LoadSourceMaps(ctx, cfg.SourceMaps.Root)
	if cfg.SourceMaps.Watch {
		go func() {
			if err := svc.Watch(ctx, cfg.SourceMaps.Debounce()); err != nil {
				log.Warn("Source map watcher stopped: %v", err)
			}
		}()
	}

	exporter, closeExport, err := buildExporter(ctx, cfg, svc, log)
	if err != nil {
		return err
	}
	defer closeExport()

	opts := []server.Option{
		server.WithLogger(log),
		server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		server.WithExporter(exporter),
	}
	if metrics != nil {
		opts = append(opts, server.WithMetricsHandler(metrics.Handler()))
	}
	srv := server.NewServer(cfg.Addr(), svc, opts...)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("Shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}
	if err := metrics.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("metrics shutdown: %w", err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("tracing shutdown: %w", err))
	}
	return errors.Join(errs...)
}

// applyServeFlags copies explicitly set flags over the loaded configuration.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Server.Port = port
	}
	if flags.Changed("root") {
		cfg.SourceMaps.Root = sourceMapRoot
	}
	if flags.Changed("auto") {
		cfg.Heatmap.AutoInstrument = autoInstrument
	}
	if flags.Changed("watch") {
		cfg.SourceMaps.Watch = watchMaps
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
}

// buildLogger creates the logger described by the log section.
func buildLogger(cfg *config.Config) (utils.Logger, error) {
	level := utils.ParseLogLevel(cfg.Log.Level)
	if cfg.Log.File == "" {
		return utils.NewDefaultLogger(level, os.Stdout), nil
	}
	log, err := utils.NewFileLogger(level, cfg.Log.File)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return log, nil
}

// buildExporter connects the configured export targets. The returned close
// function is always safe to call.
func buildExporter(ctx context.Context, cfg *config.Config, svc *heatmap.Service, log utils.Logger) (*heatmap.Exporter, func(), error) {
	noop := func() {}
	if !cfg.Export.Enabled {
		return nil, noop, nil
	}

	var repo repository.LineCountRepository
	if cfg.Export.Database.Type != "" {
		r, err := repository.Open(ctx, &cfg.Export.Database)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to open export database: %w", err)
		}
		log.Info("Export database: %s", cfg.Export.Database.Type)
		repo = r
	}

	var store storage.Storage
	if cfg.Export.Storage.Type != "" {
		s, err := storage.NewStorage(&cfg.Export.Storage)
		if err != nil {
			if repo != nil {
				repo.Close()
			}
			return nil, noop, fmt.Errorf("failed to initialize report storage: %w", err)
		}
		log.Info("Export storage: %s", cfg.Export.Storage.Type)
		store = s
	}

	closeFn := func() {
		if repo != nil {
			if err := repo.Close(); err != nil {
				log.Warn("Failed to close export database: %v", err)
			}
		}
	}
	return heatmap.NewExporter(svc, repo, store, cfg.Export.Storage.Prefix, utils.NewRealClock(), log), closeFn, nil
}
