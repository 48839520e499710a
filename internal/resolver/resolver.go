// Package resolver translates raw execution locations into canonical
// (source file, source line) keys.
//
// Two inputs are accepted: an explicit generated position (file, line,
// column) and free-form stack-trace frames of the shape
// "at <name> (<file>:<line>:<col>)". Positions are mapped through the
// currently loaded source-map tables when one exists for the generated file;
// otherwise the raw location is used unchanged. Resolution never fails.
package resolver

import (
	"path"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/exec-heatmap/internal/sourcemap"
	"github.com/exec-heatmap/pkg/model"
)

// Generated is a position in generated (compiled) code.
// Line is 1-based, Column 0-based.
type Generated struct {
	File   string
	Line   int
	Column int
}

// Frame is one parsed stack-trace frame.
// Line and Column are 1-based, as printed by the runtime.
type Frame struct {
	Function string
	File     string
	Line     int
	Column   int
}

// "at name (file:line:col)"; file may itself contain colons (e.g. "file:///x").
var frameRegex = regexp.MustCompile(`at\s+(.+?)\s+\((.+?):(\d+):(\d+)\)`)

// Resolver maps generated locations to source locations.
// Tables are swapped atomically by Reload and never locked on lookup.
type Resolver struct {
	tables atomic.Pointer[sourcemap.Set]
}

// New creates a Resolver with an optional initial table set.
func New(set *sourcemap.Set) *Resolver {
	r := &Resolver{}
	if set == nil {
		set = sourcemap.NewSet()
	}
	r.tables.Store(set)
	return r
}

// Reload replaces the table set.
func (r *Resolver) Reload(set *sourcemap.Set) {
	if set == nil {
		set = sourcemap.NewSet()
	}
	r.tables.Store(set)
}

// Tables returns the current table set.
func (r *Resolver) Tables() *sourcemap.Set {
	return r.tables.Load()
}

// Resolve maps a generated position to its source location. When no table
// or no exactly matching entry exists, the raw file and line are returned.
func (r *Resolver) Resolve(loc Generated) model.LocationKey {
	if table, ok := r.tables.Load().Get(loc.File); ok {
		if entry, found := table.Lookup(loc.Line, loc.Column); found {
			return model.LocationKey{File: entry.SourceFile, Line: entry.SourceLine}
		}
	}
	return model.LocationKey{File: loc.File, Line: loc.Line}
}

// ResolveFrame resolves a parsed frame and normalizes the resulting file
// name to its last path component.
func (r *Resolver) ResolveFrame(f Frame) model.LocationKey {
	col := f.Column
	if col > 0 {
		col--
	}
	key := r.Resolve(Generated{File: f.File, Line: f.Line, Column: col})
	key.File = BaseName(key.File)
	return key
}

// ResolveStack parses every line of a stack trace and resolves the frames
// that match. Lines that are not frames are skipped.
func (r *Resolver) ResolveStack(stack string) []model.LocationKey {
	frames := ParseStack(stack)
	keys := make([]model.LocationKey, 0, len(frames))
	for _, f := range frames {
		keys = append(keys, r.ResolveFrame(f))
	}
	return keys
}

// ParseFrame parses a single "at <name> (<file>:<line>:<col>)" frame.
func ParseFrame(line string) (Frame, bool) {
	m := frameRegex.FindStringSubmatch(line)
	if m == nil {
		return Frame{}, false
	}
	lineNum, err := strconv.Atoi(m[3])
	if err != nil {
		return Frame{}, false
	}
	col, err := strconv.Atoi(m[4])
	if err != nil {
		return Frame{}, false
	}
	return Frame{Function: m[1], File: m[2], Line: lineNum, Column: col}, true
}

// ParseStack returns the frames of a multi-line stack trace, skipping
// runtime-internal frames.
func ParseStack(stack string) []Frame {
	var frames []Frame
	for _, line := range strings.Split(stack, "\n") {
		if f, ok := ParseFrame(line); ok && !IsRuntimeFrame(f) {
			frames = append(frames, f)
		}
	}
	return frames
}

// IsRuntimeFrame reports whether f belongs to the runtime itself
// ("node:internal/...", "internal/...") rather than application code.
func IsRuntimeFrame(f Frame) bool {
	return strings.HasPrefix(f.File, "node:") || strings.HasPrefix(f.File, "internal/")
}

// BaseName returns the last path component of a file reference, accepting
// both slash and backslash separators.
func BaseName(file string) string {
	file = strings.ReplaceAll(file, "\\", "/")
	if file == "" {
		return file
	}
	return path.Base(file)
}
