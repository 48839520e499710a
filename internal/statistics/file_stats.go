package statistics

import (
	"sort"

	"github.com/exec-heatmap/pkg/model"
)

// FileStatsCalculator aggregates execution counts per source file.
type FileStatsCalculator struct {
	maxFiles int
}

// FileStatsOption configures the FileStatsCalculator.
type FileStatsOption func(*FileStatsCalculator)

// WithMaxFiles sets the maximum number of files to return.
func WithMaxFiles(n int) FileStatsOption {
	return func(c *FileStatsCalculator) {
		c.maxFiles = n
	}
}

// NewFileStatsCalculator creates a new FileStatsCalculator.
func NewFileStatsCalculator(opts ...FileStatsOption) *FileStatsCalculator {
	c := &FileStatsCalculator{
		maxFiles: 0, // 0 means no limit
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FileEntry represents a source file with its statistics.
type FileEntry struct {
	File        string  `json:"file"`
	Lines       int     `json:"lines"`
	Executions  uint64  `json:"executions"`
	Percentage  float64 `json:"percentage"`
	HottestLine int     `json:"hottestLine"`
}

// FileStatsResult holds the calculation result.
type FileStatsResult struct {
	Files           []FileEntry `json:"files"`
	TotalExecutions uint64      `json:"totalExecutions"`
}

// Calculate aggregates the snapshot by file, hottest file first.
func (c *FileStatsCalculator) Calculate(snapshot model.HeatmapSnapshot) *FileStatsResult {
	result := &FileStatsResult{
		Files: make([]FileEntry, 0),
	}

	if len(snapshot) == 0 {
		return result
	}

	entries := make([]FileEntry, 0, len(snapshot))
	for file, lines := range snapshot {
		entry := FileEntry{File: file, Lines: len(lines)}
		var hottest uint64
		for line, count := range lines {
			entry.Executions += count
			if count > hottest || (count == hottest && line < entry.HottestLine) {
				hottest = count
				entry.HottestLine = line
			}
		}
		result.TotalExecutions += entry.Executions
		entries = append(entries, entry)
	}

	for i := range entries {
		if result.TotalExecutions > 0 {
			entries[i].Percentage = float64(entries[i].Executions) / float64(result.TotalExecutions) * 100
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Executions != entries[j].Executions {
			return entries[i].Executions > entries[j].Executions
		}
		return entries[i].File < entries[j].File
	})

	if c.maxFiles > 0 && len(entries) > c.maxFiles {
		entries = entries[:c.maxFiles]
	}

	result.Files = entries
	return result
}

// GetFile returns the entry for file, or nil.
func (r *FileStatsResult) GetFile(file string) *FileEntry {
	for i := range r.Files {
		if r.Files[i].File == file {
			return &r.Files[i]
		}
	}
	return nil
}
