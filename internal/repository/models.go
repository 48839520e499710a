// Package repository persists exported heatmap counts through gorm.
package repository

import (
	"math"
	"time"

	"github.com/exec-heatmap/pkg/model"
)

// HeatmapLine represents the heatmap_lines table.
// The table mirrors the most recent export only.
type HeatmapLine struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	File      string    `gorm:"column:file;type:varchar(512);uniqueIndex:idx_heatmap_lines_location,priority:1"`
	Line      int       `gorm:"column:line;uniqueIndex:idx_heatmap_lines_location,priority:2"`
	Count     int64     `gorm:"column:count"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName returns the table name for HeatmapLine.
func (HeatmapLine) TableName() string {
	return "heatmap_lines"
}

// ToModel converts HeatmapLine to model.LineCount.
func (l *HeatmapLine) ToModel() model.LineCount {
	count := l.Count
	if count < 0 {
		count = 0
	}
	return model.LineCount{
		Key:   model.NewLocationKey(l.File, l.Line),
		Count: uint64(count),
	}
}

// FromSnapshot builds one row per location in snap, stamped with at.
func FromSnapshot(snap model.HeatmapSnapshot, at time.Time) []HeatmapLine {
	rows := make([]HeatmapLine, 0, snap.Lines())
	for file, lines := range snap {
		for line, count := range lines {
			rows = append(rows, HeatmapLine{
				File:      file,
				Line:      line,
				Count:     clampCount(count),
				UpdatedAt: at,
			})
		}
	}
	return rows
}

// clampCount converts an unsigned count to the signed column type,
// saturating at math.MaxInt64.
func clampCount(count uint64) int64 {
	if count > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(count)
}
