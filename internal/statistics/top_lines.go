// Package statistics computes aggregate views over execution counts.
package statistics

import (
	"sort"

	"github.com/exec-heatmap/pkg/model"
)

// DefaultTopN is the number of hottest lines reported when no limit is given.
const DefaultTopN = 10

// TopLinesCalculator ranks source lines by execution count.
type TopLinesCalculator struct {
	topN int
}

// TopLinesOption configures the TopLinesCalculator.
type TopLinesOption func(*TopLinesCalculator)

// WithTopN sets the number of hottest lines to return.
// Values <= 0 select DefaultTopN.
func WithTopN(n int) TopLinesOption {
	return func(c *TopLinesCalculator) {
		c.topN = n
	}
}

// NewTopLinesCalculator creates a new TopLinesCalculator.
func NewTopLinesCalculator(opts ...TopLinesOption) *TopLinesCalculator {
	c := &TopLinesCalculator{
		topN: DefaultTopN,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.topN <= 0 {
		c.topN = DefaultTopN
	}
	return c
}

// TopLinesResult holds the calculation result.
type TopLinesResult struct {
	TotalLines      int
	TotalExecutions uint64
	Hottest         []model.LineCount
}

// Calculate computes totals and the hottest lines from entries.
// Entries are expected to carry distinct keys. Ordering is count descending,
// ties broken by file then line ascending. The input slice is not modified.
func (c *TopLinesCalculator) Calculate(entries []model.LineCount) *TopLinesResult {
	result := &TopLinesResult{
		Hottest: make([]model.LineCount, 0),
	}

	if len(entries) == 0 {
		return result
	}

	sorted := make([]model.LineCount, len(entries))
	copy(sorted, entries)

	for _, e := range sorted {
		result.TotalExecutions += e.Count
	}
	result.TotalLines = len(sorted)

	SortLineCounts(sorted)

	topN := c.topN
	if topN > len(sorted) {
		topN = len(sorted)
	}
	result.Hottest = sorted[:topN]

	return result
}

// SortLineCounts orders entries hottest first with a deterministic tie-break.
func SortLineCounts(entries []model.LineCount) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.Key.File != b.Key.File {
			return a.Key.File < b.Key.File
		}
		return a.Key.Line < b.Key.Line
	})
}
