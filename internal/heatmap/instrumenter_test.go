package heatmap

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exec-heatmap/internal/resolver"
	"github.com/exec-heatmap/internal/sourcemap"
	"github.com/exec-heatmap/pkg/model"
)

// app.js line 5 col 4 -> src/app.ts:10
func newMappedResolver(t *testing.T) *resolver.Resolver {
	t.Helper()
	table, err := sourcemap.Decode("app.js", []byte(`{"sources":["src/app.ts"],"mappings":"AAAA;AACA,EAAE;;;IAQA"}`))
	require.NoError(t, err)
	return resolver.New(sourcemap.NewSet(table))
}

func TestManualTracker(t *testing.T) {
	var inst Instrumenter = NewManualTracker()
	inst.OnLineExecuted("app.ts", 10)
	inst.OnLineExecuted("app.ts", 10)

	tracker := inst.(*ManualTracker)
	tracker.TrackLine("app.ts", 20)
	tracker.TrackLine("", 0)

	assert.Equal(t, uint64(2), tracker.Store().Get(model.NewLocationKey("app.ts", 10)))
	assert.Equal(t, uint64(1), tracker.Store().Get(model.NewLocationKey("app.ts", 20)))
	assert.Equal(t, uint64(1), tracker.Store().Get(model.NewLocationKey("", 0)))
}

func TestStackTracker_TrackStack(t *testing.T) {
	tracker := NewStackTracker(newMappedResolver(t), true)

	stack := "Error\n    at run (/srv/dist/app.js:5:5)\n    at main (/srv/dist/main.js:3:1)"
	assert.Equal(t, 2, tracker.TrackStack(stack))
	assert.Equal(t, 2, tracker.TrackStack(stack))

	snap := tracker.Store().Snapshot()
	assert.Equal(t, uint64(2), snap.Get(model.NewLocationKey("app.ts", 10)))
	assert.Equal(t, uint64(2), snap.Get(model.NewLocationKey("main.js", 3)))
	assert.Equal(t, 0, tracker.TrackStack("no frames"))
}

func TestStackTracker_TrackGenerated(t *testing.T) {
	tracker := NewStackTracker(newMappedResolver(t), true)

	assert.True(t, tracker.TrackGenerated("app.js", 5, 4))
	assert.True(t, tracker.TrackGenerated("app.js", 5, 3))

	assert.Equal(t, uint64(1), tracker.Store().Get(model.NewLocationKey("src/app.ts", 10)))
	assert.Equal(t, uint64(1), tracker.Store().Get(model.NewLocationKey("app.js", 5)))
}

func TestStackTracker_Disabled(t *testing.T) {
	tracker := NewStackTracker(nil, false)

	assert.Equal(t, 0, tracker.TrackStack("at f (/a/b.js:1:1)"))
	assert.False(t, tracker.TrackGenerated("b.js", 1, 1))
	assert.False(t, tracker.CaptureCaller(0))
	tracker.OnLineExecuted("b.js", 1)

	assert.Equal(t, 0, tracker.Store().Len())
}

func TestStackTracker_SetEnabled(t *testing.T) {
	tracker := NewStackTracker(nil, true)
	tracker.OnLineExecuted("a.js", 1)

	assert.False(t, tracker.SetEnabled(true))
	assert.True(t, tracker.SetEnabled(false))
	assert.False(t, tracker.Enabled())
	assert.False(t, tracker.SetEnabled(false))

	assert.True(t, tracker.SetEnabled(true))
	assert.Equal(t, 0, tracker.Store().Len(), "re-enabling starts from an empty store")
}

func TestStackTracker_CaptureCaller(t *testing.T) {
	tracker := NewStackTracker(nil, true)

	var line int
	func() {
		require.True(t, tracker.CaptureCaller(0))
		line = callerLine() - 1
	}()

	assert.Equal(t, uint64(1), tracker.Store().Get(model.NewLocationKey("instrumenter_test.go", line)))
}

func TestStackTracker_ConcurrentEvents(t *testing.T) {
	tracker := NewStackTracker(newMappedResolver(t), true)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				tracker.TrackGenerated("app.js", 5, 4)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(8000), tracker.Store().Get(model.NewLocationKey("src/app.ts", 10)))
}
