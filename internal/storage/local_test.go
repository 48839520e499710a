package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exec-heatmap/pkg/config"
	apperrors "github.com/exec-heatmap/pkg/errors"
)

func newTestLocal(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := NewLocalStorage(filepath.Join(t.TempDir(), "reports"))
	require.NoError(t, err)
	return s
}

func TestNewLocalStorage_CreatesDir(t *testing.T) {
	base := filepath.Join(t.TempDir(), "a", "b")
	s, err := NewLocalStorage(base)
	require.NoError(t, err)
	assert.Equal(t, base, s.GetBasePath())

	info, err := os.Stat(base)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLocalStorage_UploadDownload(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	require.NoError(t, s.Upload(ctx, "heatmaps/heatmap-1.json.gz", strings.NewReader("first")))
	require.NoError(t, s.Upload(ctx, "heatmaps/heatmap-1.json.gz", strings.NewReader("second")))

	rc, err := s.Download(ctx, "heatmaps/heatmap-1.json.gz")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestLocalStorage_DownloadMissing(t *testing.T) {
	s := newTestLocal(t)

	_, err := s.Download(context.Background(), "nope.json.gz")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestLocalStorage_ExistsAndDelete(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	ok, err := s.Exists(ctx, "r.json.gz")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Upload(ctx, "r.json.gz", strings.NewReader("x")))
	ok, err = s.Exists(ctx, "r.json.gz")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, "r.json.gz"))
	require.NoError(t, s.Delete(ctx, "r.json.gz"))
	ok, err = s.Exists(ctx, "r.json.gz")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalStorage_List(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	for _, key := range []string{"heatmaps/heatmap-2.json.gz", "heatmaps/heatmap-1.json.gz", "other/x.txt"} {
		require.NoError(t, s.Upload(ctx, key, strings.NewReader(key)))
	}

	keys, err := s.List(ctx, "heatmaps/")
	require.NoError(t, err)
	assert.Equal(t, []string{"heatmaps/heatmap-1.json.gz", "heatmaps/heatmap-2.json.gz"}, keys)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestLocalStorage_CancelledContext(t *testing.T) {
	s := newTestLocal(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Upload(ctx, "k", strings.NewReader("x")), context.Canceled)
	_, err := s.Exists(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalStorage_GetURL(t *testing.T) {
	s := newTestLocal(t)
	assert.Equal(t, filepath.Join(s.GetBasePath(), "heatmaps", "a.json.gz"), s.GetURL("heatmaps/a.json.gz"))
}

func TestNewStorage_Local(t *testing.T) {
	s, err := NewStorage(&config.StorageConfig{Type: "local", LocalPath: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalStorage{}, s)

	s, err = NewStorage(&config.StorageConfig{LocalPath: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalStorage{}, s)
}
