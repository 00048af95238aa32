package asyncio_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scostello/monty-go/asyncio"
)

func TestRegisterResolveLookup(t *testing.T) {
	c := asyncio.New()
	c.Register(1)
	c.Register(2)

	oc, ok := c.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, asyncio.Pending, oc.Status)
	assert.False(t, c.IsDone(1))

	c.Resolve(1, asyncio.Outcome{Status: asyncio.CompletedOK, Value: 42})
	oc, ok = c.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, asyncio.CompletedOK, oc.Status)
	assert.Equal(t, 42, oc.Value)
	assert.True(t, c.IsDone(1))
}

func TestPendingAmong(t *testing.T) {
	c := asyncio.New()
	c.Register(1)
	c.Register(2)
	c.Register(3)
	c.Resolve(2, asyncio.Outcome{Status: asyncio.CompletedOK})

	assert.Equal(t, []uint64{1, 3}, c.PendingAmong([]uint64{1, 2, 3}))
	assert.Empty(t, c.PendingAmong([]uint64{2}))
}

func TestErrorOutcome(t *testing.T) {
	c := asyncio.New()
	c.Register(7)
	c.Resolve(7, asyncio.Outcome{Status: asyncio.CompletedErr, ExcKind: "ValueError", ExcMsg: "bad"})

	oc, ok := c.Lookup(7)
	require.True(t, ok)
	assert.Equal(t, asyncio.CompletedErr, oc.Status)
	assert.Equal(t, "ValueError", oc.ExcKind)
}

func TestForget(t *testing.T) {
	c := asyncio.New()
	c.Register(1)
	c.Resolve(1, asyncio.Outcome{Status: asyncio.CompletedOK})
	c.Forget(1)
	_, ok := c.Lookup(1)
	assert.False(t, ok)
}

func TestIdsPreserveRegistrationOrder(t *testing.T) {
	c := asyncio.New()
	for _, id := range []uint64{5, 3, 9} {
		c.Register(id)
	}
	assert.Equal(t, []uint64{5, 3, 9}, c.Ids())
}
