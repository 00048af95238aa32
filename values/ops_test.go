package values_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scostello/monty-go/heap"
	"github.com/scostello/monty-go/values"
)

func newHeap() (*heap.Heap, heap.RootFunc) {
	h := heap.New(heap.Limits{})
	return h, func() []heap.Handle { return nil }
}

func TestFloorDivTruncatesTowardNegativeInfinity(t *testing.T) {
	h, roots := newHeap()
	cases := []struct{ a, b, want int64 }{
		{7, 2, 3},
		{-7, 2, -4},
		{7, -2, -4},
		{-7, -2, 3},
	}
	for _, tc := range cases {
		got, err := values.FloorDiv(h, roots, values.Int(tc.a), values.Int(tc.b))
		require.NoError(t, err)
		assert.Equal(t, tc.want, got.Int(), "%d // %d", tc.a, tc.b)
	}
}

func TestModHasSignOfDivisor(t *testing.T) {
	h, roots := newHeap()
	cases := []struct{ a, b, want int64 }{
		{7, 3, 1},
		{-7, 3, 2},
		{7, -3, -2},
		{-7, -3, -1},
	}
	for _, tc := range cases {
		got, err := values.Mod(h, roots, values.Int(tc.a), values.Int(tc.b))
		require.NoError(t, err)
		assert.Equal(t, tc.want, got.Int(), "%d %% %d", tc.a, tc.b)
	}
}

func TestTrueDivAlwaysFloat(t *testing.T) {
	h, _ := newHeap()
	got, err := values.TrueDiv(h, values.Int(1), values.Int(2))
	require.NoError(t, err)
	assert.True(t, got.IsFloat())
	assert.Equal(t, 0.5, got.Float())

	_, err = values.TrueDiv(h, values.Int(1), values.Int(0))
	require.Error(t, err)
}

func TestArbitraryPrecisionPromotion(t *testing.T) {
	h, roots := newHeap()
	big1 := values.Int(1 << 62)
	prod, err := values.Mul(h, roots, big1, big1)
	require.NoError(t, err)
	want := new(big.Int).Lsh(big.NewInt(1), 124)
	assert.Equal(t, want.String(), values.FormatRepr(h, prod))
}

func TestEqualitySemantics(t *testing.T) {
	h, roots := newHeap()
	assert.True(t, values.Equal(h, values.Bool(true), values.Int(1)))
	assert.True(t, values.Equal(h, values.Int(1), values.Float(1.0)))
	assert.False(t, values.Equal(h, values.Int(1), values.ImmediateStr("1")))
	assert.True(t, values.Equal(h, values.None(), values.None()))

	s1, err := values.Str(h, roots, "short")
	require.NoError(t, err)
	s2, err := values.Str(h, roots, "sho"+"rt")
	require.NoError(t, err)
	assert.True(t, values.Equal(h, s1, s2))
}

func TestTruthiness(t *testing.T) {
	h, roots := newHeap()
	assert.False(t, values.Truthy(h, values.None()))
	assert.False(t, values.Truthy(h, values.Int(0)))
	assert.False(t, values.Truthy(h, values.ImmediateStr("")))
	assert.True(t, values.Truthy(h, values.Float(0.1)))

	empty, err := values.Bytes(h, roots, nil)
	require.NoError(t, err)
	assert.False(t, values.Truthy(h, empty))
}

func TestStringRepetition(t *testing.T) {
	h, roots := newHeap()
	got, err := values.Mul(h, roots, values.ImmediateStr("ab"), values.Int(3))
	require.NoError(t, err)
	assert.Equal(t, "ababab", values.FormatStr(h, got))

	got, err = values.Mul(h, roots, values.Int(0), values.ImmediateStr("ab"))
	require.NoError(t, err)
	assert.Equal(t, "", values.FormatStr(h, got))
}

func TestLongStringsBoxOntoHeap(t *testing.T) {
	h, roots := newHeap()
	long := make([]byte, values.InlineLimit+1)
	for i := range long {
		long[i] = 'a'
	}
	v, err := values.Str(h, roots, string(long))
	require.NoError(t, err)
	assert.True(t, v.IsHandle())
	assert.Equal(t, 1, h.Stats().LiveCount)

	short, err := values.Str(h, roots, "tiny")
	require.NoError(t, err)
	assert.False(t, short.IsHandle())
}

func TestHashKeyRejectsUnhashable(t *testing.T) {
	h, roots := newHeap()
	listHandle, err := h.Alloc(&values.ListObj{}, roots)
	require.NoError(t, err)
	_, ok := values.HashKey(h, values.FromHandle(listHandle))
	assert.False(t, ok)

	_, ok = values.HashKey(h, values.Int(3))
	assert.True(t, ok)
}

func TestCompareOrdersStringsAndNumbers(t *testing.T) {
	h, _ := newHeap()
	c, err := values.Compare(h, values.Int(2), values.Float(2.5))
	require.NoError(t, err)
	assert.Negative(t, c)

	c, err = values.Compare(h, values.ImmediateStr("b"), values.ImmediateStr("a"))
	require.NoError(t, err)
	assert.Positive(t, c)

	_, err = values.Compare(h, values.Int(1), values.ImmediateStr("a"))
	require.Error(t, err)
}
