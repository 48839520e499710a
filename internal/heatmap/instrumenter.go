package heatmap

import (
	"runtime"
	"sync/atomic"

	"github.com/exec-heatmap/internal/counter"
	"github.com/exec-heatmap/internal/resolver"
	"github.com/exec-heatmap/pkg/model"
)

// Instrumenter receives one event per executed source line.
type Instrumenter interface {
	OnLineExecuted(file string, line int)
}

// Source names used for ingest metrics.
const (
	SourceManual = "manual"
	SourceAuto   = "auto"
)

// ManualTracker counts explicit TrackLine calls. It is always on.
type ManualTracker struct {
	store *counter.Store
}

// NewManualTracker creates a ManualTracker with an empty store.
func NewManualTracker() *ManualTracker {
	return &ManualTracker{store: counter.New()}
}

// TrackLine records one execution of file:line. The location is not
// validated.
func (t *ManualTracker) TrackLine(file string, line int) {
	t.store.Increment(model.NewLocationKey(file, line))
}

// OnLineExecuted implements Instrumenter.
func (t *ManualTracker) OnLineExecuted(file string, line int) {
	t.TrackLine(file, line)
}

// Store returns the backing counter store.
func (t *ManualTracker) Store() *counter.Store {
	return t.store
}

// StackTracker is the automatic ingestion source. Events are stack traces or
// generated positions that are mapped through source maps before counting.
// While disabled every event is dropped.
type StackTracker struct {
	store    *counter.Store
	resolver *resolver.Resolver
	enabled  atomic.Bool
}

// NewStackTracker creates a StackTracker resolving through r.
func NewStackTracker(r *resolver.Resolver, enabled bool) *StackTracker {
	if r == nil {
		r = resolver.New(nil)
	}
	t := &StackTracker{store: counter.New(), resolver: r}
	t.enabled.Store(enabled)
	return t
}

// Enabled reports whether events are currently recorded.
func (t *StackTracker) Enabled() bool {
	return t.enabled.Load()
}

// SetEnabled switches the tracker on or off and reports whether the state
// changed. Turning it on starts from an empty store.
func (t *StackTracker) SetEnabled(enabled bool) bool {
	if !t.enabled.CompareAndSwap(!enabled, enabled) {
		return false
	}
	if enabled {
		t.store.Reset()
	}
	return true
}

// TrackStack counts every frame of stack and returns the number recorded.
func (t *StackTracker) TrackStack(stack string) int {
	if !t.Enabled() {
		return 0
	}
	keys := t.resolver.ResolveStack(stack)
	for _, key := range keys {
		t.store.Increment(key)
	}
	return len(keys)
}

// TrackGenerated counts one generated-code position.
func (t *StackTracker) TrackGenerated(file string, line, column int) bool {
	if !t.Enabled() {
		return false
	}
	t.store.Increment(t.resolver.Resolve(resolver.Generated{File: file, Line: line, Column: column}))
	return true
}

// CaptureCaller counts the Go source line skip frames above its caller.
// CaptureCaller(0) records the line that called it.
func (t *StackTracker) CaptureCaller(skip int) bool {
	if !t.Enabled() {
		return false
	}
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return false
	}
	t.store.Increment(model.NewLocationKey(resolver.BaseName(file), line))
	return true
}

// OnLineExecuted implements Instrumenter.
func (t *StackTracker) OnLineExecuted(file string, line int) {
	if t.Enabled() {
		t.store.Increment(model.NewLocationKey(file, line))
	}
}

// Resolver returns the resolver used for frame mapping.
func (t *StackTracker) Resolver() *resolver.Resolver {
	return t.resolver
}

// Store returns the backing counter store.
func (t *StackTracker) Store() *counter.Store {
	return t.store
}
