package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/exec-heatmap/internal/statistics"
	apperrors "github.com/exec-heatmap/pkg/errors"
	"github.com/exec-heatmap/pkg/model"
)

// DefaultBatchSize is the number of rows per INSERT statement.
const DefaultBatchSize = 500

// GormLineCountRepository implements LineCountRepository using GORM.
type GormLineCountRepository struct {
	db        *gorm.DB
	batchSize int
}

// NewGormLineCountRepository creates a new GormLineCountRepository.
func NewGormLineCountRepository(db *gorm.DB) *GormLineCountRepository {
	return &GormLineCountRepository{db: db, batchSize: DefaultBatchSize}
}

// Migrate creates the heatmap_lines table and its unique location index.
func (r *GormLineCountRepository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&HeatmapLine{}); err != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to migrate heatmap_lines", err)
	}
	return nil
}

// ReplaceAll deletes every stored row and inserts snap in one transaction.
func (r *GormLineCountRepository) ReplaceAll(ctx context.Context, snap model.HeatmapSnapshot, at time.Time) (int, error) {
	rows := FromSnapshot(snap, at)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&HeatmapLine{}).Error; err != nil {
			return fmt.Errorf("failed to clear heatmap_lines: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(&rows, r.batchSize).Error; err != nil {
			return fmt.Errorf("failed to insert heatmap_lines: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to replace heatmap lines", err)
	}
	return len(rows), nil
}

// List reads back every stored row.
func (r *GormLineCountRepository) List(ctx context.Context) ([]model.LineCount, error) {
	var rows []HeatmapLine
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to list heatmap lines", err)
	}

	result := make([]model.LineCount, len(rows))
	for i := range rows {
		result[i] = rows[i].ToModel()
	}
	statistics.SortLineCounts(result)
	return result, nil
}

// Close closes the database connection.
func (r *GormLineCountRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
