package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exec-heatmap/pkg/config"
	"github.com/exec-heatmap/pkg/model"
)

func TestNewDialector(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.DatabaseConfig
		dialect string
		wantErr bool
	}{
		{"SQLite", config.DatabaseConfig{Type: "sqlite", Path: "x.db"}, "sqlite", false},
		{"SQLiteWithoutPath", config.DatabaseConfig{Type: "sqlite"}, "", true},
		{"PostgreSQL", config.DatabaseConfig{Type: "postgres", Host: "db"}, "postgres", false},
		{"PostgreSQL_Alt", config.DatabaseConfig{Type: "postgresql", Host: "db"}, "postgres", false},
		{"MySQL", config.DatabaseConfig{Type: "mysql", Host: "db"}, "mysql", false},
		{"Unsupported", config.DatabaseConfig{Type: "oracle"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDialector(&tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.dialect, d.Name())
		})
	}
}

func TestDSN(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Host: "localhost", Port: 5432, User: "u", Password: "p", Database: "heatmap",
	}
	assert.Equal(t, "host=localhost port=5432 user=u password=p dbname=heatmap sslmode=disable", PostgresDSN(cfg))

	cfg.Port = 3306
	assert.Equal(t, "u:p@tcp(localhost:3306)/heatmap?parseTime=true&loc=Local", MySQLDSN(cfg))
}

func TestOpen_SQLiteFile(t *testing.T) {
	ctx := context.Background()
	cfg := &config.DatabaseConfig{Type: "sqlite", Path: filepath.Join(t.TempDir(), "heatmap.db")}

	repo, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer repo.Close()

	_, err = repo.ReplaceAll(ctx, model.HeatmapSnapshot{"a.ts": {1: 3}}, time.Now())
	require.NoError(t, err)

	lines, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.LineCount{{Key: model.NewLocationKey("a.ts", 1), Count: 3}}, lines)
}

func TestNewGormDB_Unsupported(t *testing.T) {
	_, err := NewGormDB(&config.DatabaseConfig{Type: "oracle"})
	assert.Error(t, err)
}
