package model

import (
	"encoding/json"
	"strconv"
)

// LocationKey identifies a single source line.
type LocationKey struct {
	File string `json:"file"`
	Line int    `json:"line"`
}

// NewLocationKey creates a LocationKey.
func NewLocationKey(file string, line int) LocationKey {
	return LocationKey{File: file, Line: line}
}

// String returns the "file:line" form used in stats output.
func (k LocationKey) String() string {
	return k.File + ":" + strconv.Itoa(k.Line)
}

// LineCount pairs a location with its execution count.
type LineCount struct {
	Key   LocationKey
	Count uint64
}

// MarshalJSON renders the entry as {"key": "file:line", "count": n}.
func (c LineCount) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Key   string `json:"key"`
		Count uint64 `json:"count"`
	}{Key: c.Key.String(), Count: c.Count})
}

// HeatmapSnapshot is a point-in-time copy of execution counts grouped by file.
// Line numbers are serialized as string object keys by encoding/json.
type HeatmapSnapshot map[string]map[int]uint64

// Add accumulates count into the snapshot at key.
func (s HeatmapSnapshot) Add(key LocationKey, count uint64) {
	lines, ok := s[key.File]
	if !ok {
		lines = make(map[int]uint64)
		s[key.File] = lines
	}
	lines[key.Line] += count
}

// Get returns the count recorded for key.
func (s HeatmapSnapshot) Get(key LocationKey) uint64 {
	return s[key.File][key.Line]
}

// Entries flattens the snapshot into a slice in unspecified order.
func (s HeatmapSnapshot) Entries() []LineCount {
	entries := make([]LineCount, 0, s.Lines())
	for file, lines := range s {
		for line, count := range lines {
			entries = append(entries, LineCount{Key: LocationKey{File: file, Line: line}, Count: count})
		}
	}
	return entries
}

// Lines returns the number of distinct locations in the snapshot.
func (s HeatmapSnapshot) Lines() int {
	n := 0
	for _, lines := range s {
		n += len(lines)
	}
	return n
}

// Merge returns a new snapshot holding the per-key sum of all inputs.
func Merge(snapshots ...HeatmapSnapshot) HeatmapSnapshot {
	merged := make(HeatmapSnapshot)
	for _, snap := range snapshots {
		for file, lines := range snap {
			for line, count := range lines {
				merged.Add(LocationKey{File: file, Line: line}, count)
			}
		}
	}
	return merged
}

// StatsResult is the aggregate view served by the stats query.
type StatsResult struct {
	TotalLines            int             `json:"totalLines"`
	TotalExecutions       uint64          `json:"totalExecutions"`
	AutoInstrumentEnabled bool            `json:"autoInstrumentEnabled"`
	Hottest               []LineCount     `json:"hottest"`
	Heatmap               HeatmapSnapshot `json:"heatmap"`
}

// ModeInfo describes which ingestion sources are active.
type ModeInfo struct {
	ManualTracking      bool   `json:"manualTracking"`
	AutoInstrumentation bool   `json:"autoInstrumentation"`
	Description         string `json:"description"`
}

// MappingEntry maps one generated position to its original source position.
// Lines are 1-based, columns 0-based.
type MappingEntry struct {
	GeneratedLine   int    `json:"generated_line"`
	GeneratedColumn int    `json:"generated_column"`
	SourceLine      int    `json:"source_line"`
	SourceColumn    int    `json:"source_column"`
	SourceFile      string `json:"source_file"`
}

// HealthStatus is the liveness response.
type HealthStatus struct {
	Status string `json:"status"`
}
