package worker

import (
	"context"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolProcessesEveryTask(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var inFlight, peak atomic.Int32
	pool := NewPool[int, int](3, "TestPool", 10, func(_ context.Context, n int) int {
		cur := inFlight.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return n * n
	})
	pool.Start(ctx)

	for i := 1; i <= 9; i++ {
		require.True(t, pool.Submit(ctx, i))
	}

	got := make([]int, 0, 9)
	timeout := time.After(5 * time.Second)
	for len(got) < 9 {
		select {
		case r := <-pool.Results():
			got = append(got, r)
		case <-timeout:
			t.Fatalf("only %d results received", len(got))
		}
	}
	sort.Ints(got)
	assert.Equal(t, []int{1, 4, 9, 16, 25, 36, 49, 64, 81}, got)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestPoolClosesResultsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool[int, int](2, "TestPool", 1, func(_ context.Context, n int) int { return n })
	pool.Start(ctx)
	cancel()

	select {
	case _, ok := <-pool.Results():
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("results channel not closed")
	}
}
