package repository

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/exec-heatmap/pkg/model"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// every pooled connection would get its own in-memory database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	return db
}

func newTestRepo(t *testing.T) *GormLineCountRepository {
	repo := NewGormLineCountRepository(setupTestDB(t))
	require.NoError(t, repo.Migrate(context.Background()))
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestGormLineCountRepository_ReplaceAll(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("Empty", func(t *testing.T) {
		lines, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, lines)
	})

	t.Run("WithData", func(t *testing.T) {
		snap := model.HeatmapSnapshot{
			"app.ts":  {10: 100, 20: 10},
			"util.ts": {5: 1},
		}

		n, err := repo.ReplaceAll(ctx, snap, at)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		lines, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []model.LineCount{
			{Key: model.NewLocationKey("app.ts", 10), Count: 100},
			{Key: model.NewLocationKey("app.ts", 20), Count: 10},
			{Key: model.NewLocationKey("util.ts", 5), Count: 1},
		}, lines)
	})

	t.Run("ReplacesPreviousRows", func(t *testing.T) {
		n, err := repo.ReplaceAll(ctx, model.HeatmapSnapshot{"app.ts": {10: 150}}, at.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		lines, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, lines, 1)
		assert.Equal(t, uint64(150), lines[0].Count)

		var stored HeatmapLine
		require.NoError(t, repo.db.First(&stored).Error)
		assert.True(t, stored.UpdatedAt.Equal(at.Add(time.Minute)))
	})

	t.Run("EmptySnapshotClearsTable", func(t *testing.T) {
		n, err := repo.ReplaceAll(ctx, model.HeatmapSnapshot{}, at)
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		lines, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, lines)
	})
}

func TestGormLineCountRepository_ReplaceAllInBatches(t *testing.T) {
	repo := newTestRepo(t)
	repo.batchSize = 7
	ctx := context.Background()

	snap := make(model.HeatmapSnapshot)
	for i := 1; i <= 50; i++ {
		snap.Add(model.NewLocationKey("big.ts", i), uint64(i))
	}

	n, err := repo.ReplaceAll(ctx, snap, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 50, n)

	lines, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, lines, 50)
	assert.Equal(t, model.NewLocationKey("big.ts", 50), lines[0].Key)
	assert.Equal(t, model.NewLocationKey("big.ts", 1), lines[49].Key)
}

func TestGormLineCountRepository_UniqueLocation(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.db.Create(&HeatmapLine{File: "a.ts", Line: 1, Count: 1}).Error)
	err := repo.db.Create(&HeatmapLine{File: "a.ts", Line: 1, Count: 2}).Error
	assert.Error(t, err)
}

func TestHeatmapLine_ToModel(t *testing.T) {
	row := HeatmapLine{File: "x.ts", Line: 3, Count: 9}
	assert.Equal(t, model.LineCount{Key: model.NewLocationKey("x.ts", 3), Count: 9}, row.ToModel())

	row.Count = -1
	assert.Equal(t, uint64(0), row.ToModel().Count)
	assert.Equal(t, "heatmap_lines", HeatmapLine{}.TableName())
}

func TestFromSnapshot_ClampsCounts(t *testing.T) {
	at := time.Unix(1700000000, 0)
	snap := model.HeatmapSnapshot{
		"big.ts": {1: math.MaxUint64, 2: math.MaxInt64 + 1, 3: math.MaxInt64, 4: 7},
	}

	rows := FromSnapshot(snap, at)
	require.Len(t, rows, 4)

	counts := make(map[int]int64, len(rows))
	for _, row := range rows {
		assert.Equal(t, "big.ts", row.File)
		assert.Equal(t, at, row.UpdatedAt)
		counts[row.Line] = row.Count
	}
	assert.Equal(t, map[int]int64{1: math.MaxInt64, 2: math.MaxInt64, 3: math.MaxInt64, 4: 7}, counts)
}
