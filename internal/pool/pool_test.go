package pool

import (
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPool(t *testing.T, workers int) *Pool {
	t.Helper()
	p := New(workers, testLogger())
	p.Start()
	t.Cleanup(p.Stop)
	return p
}

func TestSubmitIndexedRunsWholeRange(t *testing.T) {
	p := newTestPool(t, 4)

	var sum atomic.Int64
	b := p.SubmitIndexed(0, 100, func(i int) {
		sum.Add(int64(i))
	})
	require.NotNil(t, b)
	b.Await()
	require.Equal(t, int64(99*100/2), sum.Load())
}

func TestSubmitIndexedEmptyRange(t *testing.T) {
	p := newTestPool(t, 2)
	require.Nil(t, p.SubmitIndexed(5, 5, func(int) {}))
	require.Nil(t, p.SubmitIndexed(7, 3, func(int) {}))
}

func TestSubmitAfterStopReturnsNil(t *testing.T) {
	p := New(2, testLogger())
	p.Start()
	p.Stop()

	require.True(t, p.IsStopped())
	require.Nil(t, p.SubmitIndexed(0, 10, func(int) {}))
}

func TestItemPanicDoesNotCancelSiblings(t *testing.T) {
	p := newTestPool(t, 4)

	var ran atomic.Int32
	b := p.SubmitIndexed(0, 50, func(i int) {
		if i == 25 {
			panic("bad item")
		}
		ran.Add(1)
	})
	b.Await()
	require.Equal(t, int32(49), ran.Load())
}

func TestAwaitNilBatch(t *testing.T) {
	var b *Batch
	b.Await()
}

func TestStopDrainsEnqueuedJobs(t *testing.T) {
	p := New(1, testLogger())
	p.Start()

	var ran atomic.Int32
	b := p.SubmitIndexed(0, 8, func(i int) { ran.Add(1) })
	p.Stop()
	b.Await()
	require.Equal(t, int32(8), ran.Load())
}

func TestWorkersDefault(t *testing.T) {
	p := New(0, nil)
	require.Positive(t, p.Workers())
}

func TestSplitCoversRange(t *testing.T) {
	for _, tc := range []struct{ lo, hi, parts int }{
		{0, 1, 4}, {0, 10, 3}, {5, 25, 4}, {0, 7, 7}, {2, 3, 1},
	} {
		spans := split(tc.lo, tc.hi, tc.parts)
		at := tc.lo
		for _, s := range spans {
			require.Equal(t, at, s.lo)
			require.Greater(t, s.hi, s.lo)
			at = s.hi
		}
		require.Equal(t, tc.hi, at)
	}
}
