package concurrent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParallelMapKeepsOrder(t *testing.T) {
	items := []int{5, 1, 4, 2, 3}
	got, err := ParallelMap(context.Background(), items, 2, func(_ context.Context, v int) (int, error) {
		time.Sleep(time.Duration(v) * time.Millisecond)
		return v * 10, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{50, 10, 40, 20, 30}, got)
}

func TestParallelMapBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	items := make([]int, 40)
	_, err := ParallelMap(context.Background(), items, 5, func(_ context.Context, _ int) (struct{}, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return struct{}{}, nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(5))
}

func TestParallelMapJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	got, err := ParallelMap(context.Background(), []int{1, 2, 3}, 0, func(_ context.Context, v int) (int, error) {
		if v == 2 {
			return 0, boom
		}
		return v, nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []int{1, 0, 3}, got)
}

func TestParallelMapEmpty(t *testing.T) {
	got, err := ParallelMap(context.Background(), []string(nil), 3, func(_ context.Context, s string) (string, error) {
		t.Fatal("fn must not be called")
		return s, nil
	})
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestParallelMapCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ParallelMap(ctx, []int{1, 2}, 1, func(_ context.Context, v int) (int, error) {
		return v, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
