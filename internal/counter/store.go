// Package counter implements the concurrency-safe execution counter store.
//
// Keys are spread over a fixed number of shards. Incrementing an existing key
// takes only the shard's read lock and an atomic add, so hot lines hit by many
// goroutines do not serialize on a single mutex. A new key takes the shard's
// write lock once.
//
// The shard array forms a generation. Reset installs a fresh generation with
// a single atomic store; an increment racing with Reset lands either in the
// old generation (and is discarded) or in the new one. Snapshot and Stats
// share a store-level read lock that Reset takes exclusively, so a query
// never straddles a reset.
package counter

import (
	"sync"
	"sync/atomic"

	"github.com/exec-heatmap/internal/statistics"
	"github.com/exec-heatmap/pkg/model"
)

const shardCount = 64

type shard struct {
	mu     sync.RWMutex
	counts map[model.LocationKey]*atomic.Uint64
}

type generation struct {
	shards [shardCount]shard
}

func newGeneration() *generation {
	g := &generation{}
	for i := range g.shards {
		g.shards[i].counts = make(map[model.LocationKey]*atomic.Uint64)
	}
	return g
}

// Store maps source locations to execution counts.
// The zero value is not usable; call New.
type Store struct {
	gen atomic.Pointer[generation]

	// queryMu orders Reset against Snapshot/Stats. Increment never takes it.
	queryMu sync.RWMutex
}

// New creates an empty Store.
func New() *Store {
	s := &Store{}
	s.gen.Store(newGeneration())
	return s
}

const (
	fnvOffset32 = 2166136261
	fnvPrime32  = 16777619
)

// shardFor hashes key with FNV-1a over the file bytes and the little-endian
// line. It runs on every increment and must not allocate.
func shardFor(key model.LocationKey) uint32 {
	h := uint32(fnvOffset32)
	for i := 0; i < len(key.File); i++ {
		h ^= uint32(key.File[i])
		h *= fnvPrime32
	}
	line := uint64(key.Line)
	for i := 0; i < 8; i++ {
		h ^= uint32(byte(line >> (8 * i)))
		h *= fnvPrime32
	}
	return h % shardCount
}

// Increment adds one execution for key.
func (s *Store) Increment(key model.LocationKey) {
	s.Add(key, 1)
}

// Add adds n executions for key. Adding zero still registers the key.
func (s *Store) Add(key model.LocationKey, n uint64) {
	sh := &s.gen.Load().shards[shardFor(key)]

	sh.mu.RLock()
	c, ok := sh.counts[key]
	sh.mu.RUnlock()
	if ok {
		c.Add(n)
		return
	}

	sh.mu.Lock()
	c, ok = sh.counts[key]
	if !ok {
		c = new(atomic.Uint64)
		sh.counts[key] = c
	}
	sh.mu.Unlock()
	c.Add(n)
}

// Get returns the current count for key.
func (s *Store) Get(key model.LocationKey) uint64 {
	sh := &s.gen.Load().shards[shardFor(key)]
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	if c, ok := sh.counts[key]; ok {
		return c.Load()
	}
	return 0
}

// Snapshot returns a deep copy of the current counts grouped by file.
func (s *Store) Snapshot() model.HeatmapSnapshot {
	s.queryMu.RLock()
	defer s.queryMu.RUnlock()

	snap := make(model.HeatmapSnapshot)
	s.each(func(key model.LocationKey, count uint64) {
		snap.Add(key, count)
	})
	return snap
}

// Entries returns every (key, count) pair in unspecified order.
func (s *Store) Entries() []model.LineCount {
	s.queryMu.RLock()
	defer s.queryMu.RUnlock()
	return s.entries()
}

func (s *Store) entries() []model.LineCount {
	entries := make([]model.LineCount, 0, s.len())
	s.each(func(key model.LocationKey, count uint64) {
		entries = append(entries, model.LineCount{Key: key, Count: count})
	})
	return entries
}

// Stats computes totals, the topN hottest lines and the full heatmap from one
// pass over the store. topN <= 0 selects the default.
func (s *Store) Stats(topN int) *model.StatsResult {
	s.queryMu.RLock()
	entries := s.entries()
	s.queryMu.RUnlock()

	return BuildStats(entries, topN)
}

// BuildStats derives a StatsResult from entries with distinct keys.
func BuildStats(entries []model.LineCount, topN int) *model.StatsResult {
	top := statistics.NewTopLinesCalculator(statistics.WithTopN(topN)).Calculate(entries)

	heatmap := make(model.HeatmapSnapshot)
	for _, e := range entries {
		heatmap.Add(e.Key, e.Count)
	}

	return &model.StatsResult{
		TotalLines:      top.TotalLines,
		TotalExecutions: top.TotalExecutions,
		Hottest:         top.Hottest,
		Heatmap:         heatmap,
	}
}

// Reset discards every counter. It waits for in-flight Snapshot and Stats
// calls to return.
func (s *Store) Reset() {
	s.queryMu.Lock()
	s.gen.Store(newGeneration())
	s.queryMu.Unlock()
}

// Len returns the number of distinct keys.
func (s *Store) Len() int {
	return s.len()
}

func (s *Store) len() int {
	g := s.gen.Load()
	n := 0
	for i := range g.shards {
		sh := &g.shards[i]
		sh.mu.RLock()
		n += len(sh.counts)
		sh.mu.RUnlock()
	}
	return n
}

// each visits every entry of the current generation. Each count is read
// atomically; entries are not a single global point in time.
func (s *Store) each(fn func(model.LocationKey, uint64)) {
	g := s.gen.Load()
	for i := range g.shards {
		sh := &g.shards[i]
		sh.mu.RLock()
		for key, c := range sh.counts {
			fn(key, c.Load())
		}
		sh.mu.RUnlock()
	}
}
