package sourcemap

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	apperrors "github.com/exec-heatmap/pkg/errors"
	"github.com/exec-heatmap/pkg/parallel"
	"github.com/exec-heatmap/pkg/utils"
)

// MapFileSuffix is the extension of source-map files picked up by the loader.
const MapFileSuffix = ".map"

// LoadReport summarizes one directory scan.
type LoadReport struct {
	Root     string        `json:"root"`
	Found    int           `json:"found"`
	Loaded   int           `json:"loaded"`
	Skipped  []SkippedFile `json:"skipped,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// SkippedFile records a map file that could not be loaded.
type SkippedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Loader discovers and decodes source maps under a directory.
type Loader struct {
	workers int
	logger  utils.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithWorkers sets the number of files decoded concurrently.
func WithWorkers(n int) LoaderOption {
	return func(l *Loader) {
		l.workers = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger utils.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader creates a Loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		workers: 4,
		logger:  &utils.NullLogger{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadDir scans root recursively and decodes every map file found.
// Discovery is best-effort: unreadable directories are skipped silently and
// files that fail to read or decode are logged and left out of the Set.
func (l *Loader) LoadDir(ctx context.Context, root string) (*Set, *LoadReport) {
	start := time.Now()
	report := &LoadReport{Root: root}

	files := FindMapFiles(root)
	report.Found = len(files)

	pool := parallel.NewWorkerPool[string, *Table](parallel.DefaultPoolConfig().WithWorkers(l.workers))
	results := pool.ExecuteFunc(ctx, files, func(ctx context.Context, path string) (*Table, error) {
		return LoadFile(path)
	})

	tables := make([]*Table, 0, len(results))
	for _, r := range results {
		if r.Error != nil {
			report.Skipped = append(report.Skipped, SkippedFile{Path: r.Input, Reason: r.Error.Error()})
			if apperrors.IsMalformedSourceMap(r.Error) {
				l.logger.Warn("Skipping source map %s: %v", r.Input, r.Error)
			} else {
				l.logger.Debug("Skipping source map %s: %v", r.Input, r.Error)
			}
			continue
		}
		tables = append(tables, r.Result)
	}

	set := NewSet(tables...)
	report.Loaded = len(tables)
	report.Duration = time.Since(start)

	l.logger.Info("Loaded %d source maps from %s (%d skipped)", report.Loaded, root, len(report.Skipped))
	return set, report
}

// LoadFile reads and decodes a single map file.
// The table is named after the map file without its suffix unless the
// document declares a "file" field.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.UnreadableFile(path, err)
	}
	return Decode(strings.TrimSuffix(filepath.Base(path), MapFileSuffix), data)
}

// FindMapFiles returns the sorted paths of all map files under root.
func FindMapFiles(root string) []string {
	var files []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), MapFileSuffix) {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files
}
