package repository

import (
	"context"
	"time"

	"github.com/exec-heatmap/pkg/model"
)

// LineCountRepository stores the exported per-line execution counts.
type LineCountRepository interface {
	// Migrate creates or updates the heatmap_lines schema.
	Migrate(ctx context.Context) error

	// ReplaceAll overwrites the stored counts with snap and returns the
	// number of rows written.
	ReplaceAll(ctx context.Context, snap model.HeatmapSnapshot, at time.Time) (int, error)

	// List returns the stored counts, hottest first.
	List(ctx context.Context) ([]model.LineCount, error)

	// Close releases the underlying connection.
	Close() error
}
