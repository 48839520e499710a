package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exec-heatmap/pkg/config"
	"github.com/exec-heatmap/pkg/model"
	"github.com/exec-heatmap/pkg/utils"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func writeMap(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.js.map")
	doc := `{"sources":["src/app.ts"],"mappings":"AAAA;AACA,EAAE;;;IAQA"}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))
	return path
}

func TestDecodeCommand_Table(t *testing.T) {
	out, err := execute(t, "decode", writeMap(t), "--json=false", "--limit", "0")
	require.NoError(t, err)

	assert.Contains(t, out, "src/app.ts")
	assert.Contains(t, out, "app.js: 1 sources, showing 4 of 4 mappings")
}

func TestDecodeCommand_JSONWithLimit(t *testing.T) {
	out, err := execute(t, "decode", writeMap(t), "--json", "--limit", "2")
	require.NoError(t, err)

	var entries []model.MappingEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, model.MappingEntry{GeneratedLine: 1, GeneratedColumn: 0, SourceLine: 1, SourceColumn: 0, SourceFile: "src/app.ts"}, entries[0])
}

func TestDecodeCommand_Errors(t *testing.T) {
	_, err := execute(t, "decode", filepath.Join(t.TempDir(), "missing.js.map"), "--json=false", "--limit", "0")
	assert.Error(t, err)

	_, err = execute(t, "decode")
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "version "+Version)
	assert.Contains(t, out, "Go Version:")
}

func TestFetchStatsAndRenderTop(t *testing.T) {
	var gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/heatmap/stats", r.URL.Path)
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"totalLines": 3,
			"totalExecutions": 1111,
			"autoInstrumentEnabled": true,
			"hottest": [{"key":"app.ts:10","count":1000},{"key":"app.ts:20","count":100}],
			"heatmap": {}
		}`))
	}))
	defer ts.Close()

	stats, err := fetchStats(context.Background(), ts.Client(), ts.URL+"/", 2)
	require.NoError(t, err)
	assert.Equal(t, "topN=2", gotQuery)
	assert.Equal(t, 3, stats.TotalLines)
	assert.Equal(t, uint64(1111), stats.TotalExecutions)
	require.Len(t, stats.Hottest, 2)

	var buf bytes.Buffer
	renderTop(&buf, stats)
	out := buf.String()
	assert.Contains(t, out, "app.ts:10")
	assert.Contains(t, out, "1,000")
	assert.Contains(t, out, "90.0%")
	assert.Contains(t, strings.ToLower(out), "manual+auto")
}

func TestFetchStats_ErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"topN must be a positive integer"}`, http.StatusBadRequest)
	}))
	defer ts.Close()

	_, err := fetchStats(context.Background(), ts.Client(), ts.URL, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestRenderTop_Empty(t *testing.T) {
	var buf bytes.Buffer
	renderTop(&buf, &statsResponse{})
	assert.NotEmpty(t, buf.String())
}

func TestApplyServeFlags(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "")
	cmd.Flags().StringVarP(&sourceMapRoot, "root", "r", "", "")
	cmd.Flags().BoolVar(&autoInstrument, "auto", false, "")
	cmd.Flags().BoolVar(&watchMaps, "watch", false, "")
	require.NoError(t, cmd.Flags().Parse([]string{"--port", "8088", "--auto"}))

	cfg, err := config.LoadFromReader("yaml", []byte("sourcemaps:\n  root: ./build\n"))
	require.NoError(t, err)

	applyServeFlags(cmd, cfg)
	assert.Equal(t, 8088, cfg.Server.Port)
	assert.True(t, cfg.Heatmap.AutoInstrument)
	assert.Equal(t, "./build", cfg.SourceMaps.Root)
	assert.False(t, cfg.SourceMaps.Watch)
}

func TestBuildLogger(t *testing.T) {
	cfg, err := config.LoadFromReader("yaml", []byte("log:\n  level: debug\n"))
	require.NoError(t, err)

	log, err := buildLogger(cfg)
	require.NoError(t, err)
	assert.IsType(t, &utils.DefaultLogger{}, log)

	cfg.Log.File = filepath.Join(t.TempDir(), "logs", "heatmap.log")
	log, err = buildLogger(cfg)
	require.NoError(t, err)
	log.Info("written to file")

	data, err := os.ReadFile(cfg.Log.File)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestBuildExporter(t *testing.T) {
	cfg, err := config.LoadFromReader("yaml", []byte("export:\n  enabled: false\n"))
	require.NoError(t, err)

	exporter, closeFn, err := buildExporter(context.Background(), cfg, nil, &utils.NullLogger{})
	require.NoError(t, err)
	assert.Nil(t, exporter)
	closeFn()

	dir := t.TempDir()
	cfg.Export.Enabled = true
	cfg.Export.Database.Type = "sqlite"
	cfg.Export.Database.Path = filepath.Join(dir, "heatmap.db")
	cfg.Export.Storage.Type = "local"
	cfg.Export.Storage.LocalPath = filepath.Join(dir, "reports")

	exporter, closeFn, err = buildExporter(context.Background(), cfg, nil, &utils.NullLogger{})
	require.NoError(t, err)
	defer closeFn()
	assert.True(t, exporter.Enabled())
}
