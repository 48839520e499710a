package heatmap

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/exec-heatmap/internal/repository"
	"github.com/exec-heatmap/internal/storage"
	apperrors "github.com/exec-heatmap/pkg/errors"
	"github.com/exec-heatmap/pkg/model"
	"github.com/exec-heatmap/pkg/telemetry"
	"github.com/exec-heatmap/pkg/utils"
	"github.com/exec-heatmap/pkg/writer"
)

const reportSuffix = ".json.gz"

// StatsProvider is the query surface the Exporter reads from.
type StatsProvider interface {
	GetStats(ctx context.Context, topN int) *model.StatsResult
}

// Exporter writes the current heatmap to a database table, an object
// storage report, or both. Either target may be nil.
type Exporter struct {
	source  StatsProvider
	repo    repository.LineCountRepository
	storage storage.Storage
	prefix  string
	clock   utils.Clock
	logger  utils.Logger
	gzip    *writer.GzipWriter[*model.StatsResult]
}

// ExportResult describes one export.
type ExportResult struct {
	ExportedAt      time.Time           `json:"exportedAt"`
	TotalLines      int                 `json:"totalLines"`
	TotalExecutions uint64              `json:"totalExecutions"`
	DatabaseRows    int                 `json:"databaseRows"`
	ReportKey       string              `json:"reportKey,omitempty"`
	ReportURL       string              `json:"reportUrl,omitempty"`
	Report          *writer.WriteResult `json:"report,omitempty"`
}

// NewExporter creates an Exporter. prefix is the storage key prefix for
// reports.
func NewExporter(source StatsProvider, repo repository.LineCountRepository, store storage.Storage, prefix string, clock utils.Clock, logger utils.Logger) *Exporter {
	if clock == nil {
		clock = utils.NewRealClock()
	}
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	return &Exporter{
		source:  source,
		repo:    repo,
		storage: store,
		prefix:  strings.Trim(prefix, "/"),
		clock:   clock,
		logger:  logger,
		gzip:    writer.NewGzipWriter[*model.StatsResult](),
	}
}

// Enabled reports whether at least one target is configured.
func (e *Exporter) Enabled() bool {
	return e != nil && (e.repo != nil || e.storage != nil)
}

// Export takes one stats snapshot and writes it to every configured target.
func (e *Exporter) Export(ctx context.Context) (*ExportResult, error) {
	if !e.Enabled() {
		return nil, apperrors.New(apperrors.CodeInvalidInput, "no export target configured")
	}

	ctx, span := telemetry.Tracer().Start(ctx, "heatmap.Export")
	defer span.End()

	stats := e.source.GetStats(ctx, 0)
	now := e.clock.Now()
	result := &ExportResult{
		ExportedAt:      now,
		TotalLines:      stats.TotalLines,
		TotalExecutions: stats.TotalExecutions,
	}

	if e.repo != nil {
		n, err := e.repo.ReplaceAll(ctx, stats.Heatmap, now)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		result.DatabaseRows = n
	}

	if e.storage != nil {
		buf, written, err := e.gzip.Encode(stats)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeStorageError, "failed to encode report", err)
		}

		key := e.reportKey(now)
		if err := e.storage.Upload(ctx, key, buf); err != nil {
			span.RecordError(err)
			return nil, err
		}
		result.ReportKey = key
		result.ReportURL = e.storage.GetURL(key)
		result.Report = written
	}

	span.SetAttributes(
		attribute.Int("heatmap.lines", result.TotalLines),
		attribute.String("heatmap.report_key", result.ReportKey),
	)
	e.logger.Info("Exported heatmap: %d lines, %d executions, %d rows, report=%s",
		result.TotalLines, result.TotalExecutions, result.DatabaseRows, result.ReportKey)
	return result, nil
}

// ListReports returns the stored report keys, newest first.
func (e *Exporter) ListReports(ctx context.Context) ([]string, error) {
	if e == nil || e.storage == nil {
		return nil, apperrors.New(apperrors.CodeInvalidInput, "no report storage configured")
	}

	keys, err := e.storage.List(ctx, e.prefix)
	if err != nil {
		return nil, err
	}

	reports := keys[:0]
	for _, k := range keys {
		if strings.HasSuffix(k, reportSuffix) {
			reports = append(reports, k)
		}
	}
	// unix-second names of equal length sort chronologically
	sort.Sort(sort.Reverse(sort.StringSlice(reports)))
	return reports, nil
}

func (e *Exporter) reportKey(at time.Time) string {
	name := fmt.Sprintf("heatmap-%d%s", at.Unix(), reportSuffix)
	if e.prefix == "" {
		return name
	}
	return path.Join(e.prefix, name)
}
