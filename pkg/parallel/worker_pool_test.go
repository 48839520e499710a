package parallel

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_ExecuteFunc(t *testing.T) {
	pool := NewWorkerPool[int, int](DefaultPoolConfig())

	inputs := []int{1, 2, 3, 4, 5}
	results := pool.ExecuteFunc(context.Background(), inputs, func(ctx context.Context, input int) (int, error) {
		return input * 2, nil
	})

	require.Len(t, results, len(inputs))
	for i, r := range results {
		assert.NoError(t, r.Error)
		assert.Equal(t, inputs[i], r.Input)
		assert.Equal(t, inputs[i]*2, r.Result)
	}
}

func TestWorkerPool_Empty(t *testing.T) {
	pool := NewWorkerPool[int, int](DefaultPoolConfig())
	assert.Nil(t, pool.ExecuteFunc(context.Background(), nil, func(ctx context.Context, input int) (int, error) {
		return input, nil
	}))
}

func TestWorkerPool_BoundedConcurrency(t *testing.T) {
	pool := NewWorkerPool[int, int](DefaultPoolConfig().WithWorkers(2))

	var running, peak atomic.Int32
	inputs := make([]int, 20)
	pool.ExecuteFunc(context.Background(), inputs, func(ctx context.Context, input int) (int, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		running.Add(-1)
		return input, nil
	})

	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestWorkerPool_CancelledContext(t *testing.T) {
	pool := NewWorkerPool[int, int](DefaultPoolConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := pool.ExecuteFunc(ctx, []int{1, 2, 3}, func(ctx context.Context, input int) (int, error) {
		return input, nil
	})

	require.Len(t, results, 3)
	for _, r := range results {
		assert.ErrorIs(t, r.Error, context.Canceled)
	}
}

func TestWorkerPool_Metrics(t *testing.T) {
	pool := NewWorkerPool[int, int](DefaultPoolConfig().WithMetrics())

	pool.ExecuteFunc(context.Background(), []int{1, 2, 3, 4}, func(ctx context.Context, input int) (int, error) {
		if input%2 == 0 {
			return 0, errors.New("even")
		}
		return input, nil
	})

	m := pool.Metrics()
	assert.Equal(t, int64(4), m.TotalTasks)
	assert.Equal(t, int64(2), m.CompletedTasks)
	assert.Equal(t, int64(2), m.FailedTasks)
}

func TestForEach(t *testing.T) {
	var sum atomic.Int64
	processed, err := ForEach(context.Background(), []int{1, 2, 3, 4}, DefaultPoolConfig(), func(ctx context.Context, item int) error {
		sum.Add(int64(item))
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int64(4), processed)
	assert.Equal(t, int64(10), sum.Load())
}

func TestForEach_Error(t *testing.T) {
	boom := errors.New("boom")
	processed, err := ForEach(context.Background(), []string{"ok", "bad", "ok"}, DefaultPoolConfig(), func(ctx context.Context, item string) error {
		if item == "bad" {
			return boom
		}
		return nil
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(2), processed)
}
