package heap_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scostello/monty-go/heap"
)

// node is a minimal heap object for exercising the collector, including
// reference cycles.
type node struct {
	size int
	refs []heap.Handle
}

func (n *node) Kind() heap.Kind            { return heap.KindList }
func (n *node) Size() int                  { return n.size }
func (n *node) References() []heap.Handle  { return n.refs }

func noRoots() []heap.Handle { return nil }

func TestAllocAccounting(t *testing.T) {
	h := heap.New(heap.Limits{})
	h1, err := h.Alloc(&node{size: 100}, noRoots)
	require.NoError(t, err)
	_, err = h.Alloc(&node{size: 50}, noRoots)
	require.NoError(t, err)

	stats := h.Stats()
	assert.Equal(t, 150, stats.LiveBytes)
	assert.Equal(t, 2, stats.LiveCount)
	assert.Equal(t, 2, stats.TotalAllocs)
	assert.NotNil(t, h.Get(h1))
}

func TestSweepFreesUnreachable(t *testing.T) {
	h := heap.New(heap.Limits{})
	kept, err := h.Alloc(&node{size: 10}, noRoots)
	require.NoError(t, err)
	dropped, err := h.Alloc(&node{size: 20}, noRoots)
	require.NoError(t, err)

	h.Sweep([]heap.Handle{kept})

	assert.NotNil(t, h.Get(kept))
	assert.Nil(t, h.Get(dropped))
	assert.Equal(t, 10, h.Stats().LiveBytes)
	assert.Equal(t, uint64(1), h.Stats().Generation)
}

func TestSweepHandlesCycles(t *testing.T) {
	h := heap.New(heap.Limits{})
	a := &node{size: 8}
	b := &node{size: 8}
	ha, err := h.Alloc(a, noRoots)
	require.NoError(t, err)
	hb, err := h.Alloc(b, noRoots)
	require.NoError(t, err)
	a.refs = []heap.Handle{hb}
	b.refs = []heap.Handle{ha}

	// Reachable through the cycle from one root.
	h.Sweep([]heap.Handle{ha})
	assert.NotNil(t, h.Get(ha))
	assert.NotNil(t, h.Get(hb))

	// Unreachable cycle collected wholesale.
	h.Sweep(nil)
	assert.Nil(t, h.Get(ha))
	assert.Nil(t, h.Get(hb))
}

func TestByteBudgetSweepRetry(t *testing.T) {
	h := heap.New(heap.Limits{MaxBytes: 100})
	live, err := h.Alloc(&node{size: 60}, noRoots)
	require.NoError(t, err)
	_, err = h.Alloc(&node{size: 30}, noRoots)
	require.NoError(t, err)

	// Over budget, but the 30-byte object is garbage: the last-resort sweep
	// reclaims it and the retry succeeds.
	roots := func() []heap.Handle { return []heap.Handle{live} }
	_, err = h.Alloc(&node{size: 35}, roots)
	require.NoError(t, err)

	// Now the budget is genuinely full of live data.
	_, err = h.Alloc(&node{size: 50}, roots)
	require.Error(t, err)
	var mem *heap.ErrMemory
	assert.ErrorAs(t, err, &mem)
}

func TestAllocationCountIsMonotone(t *testing.T) {
	h := heap.New(heap.Limits{MaxAllocs: 3})
	for i := 0; i < 3; i++ {
		_, err := h.Alloc(&node{size: 1}, noRoots)
		require.NoError(t, err)
	}
	// Sweeping frees the bytes but not the count: the allocation budget is
	// monotone within an execution.
	_, err := h.Alloc(&node{size: 1}, noRoots)
	require.Error(t, err)
	var mem *heap.ErrMemory
	assert.ErrorAs(t, err, &mem)
}

func TestPeriodicSweepInterval(t *testing.T) {
	h := heap.New(heap.Limits{SweepInterval: 4})
	for i := 0; i < 12; i++ {
		_, err := h.Alloc(&node{size: 1}, noRoots)
		require.NoError(t, err)
	}
	// Nothing is rooted, so each periodic sweep empties the heap.
	assert.Less(t, h.Stats().LiveCount, 12)
	assert.GreaterOrEqual(t, h.Stats().Generation, uint64(1))
}

func TestRestoreReinstallsHandles(t *testing.T) {
	h := heap.New(heap.Limits{})
	h.Restore(7, &node{size: 40})
	assert.NotNil(t, h.Get(7))
	assert.Equal(t, 40, h.Stats().LiveBytes)

	// Subsequent fresh allocations never collide with restored handles.
	fresh, err := h.Alloc(&node{size: 1}, noRoots)
	require.NoError(t, err)
	assert.Greater(t, uint32(fresh), uint32(7))
}
