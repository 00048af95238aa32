package repl_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scostello/monty-go/interp"
	"github.com/scostello/monty-go/monty"
	"github.com/scostello/monty-go/registry"
	"github.com/scostello/monty-go/repl"
	"github.com/scostello/monty-go/values"
)

func testConfig() repl.Config {
	return repl.Config{
		ScriptName:  "<repl>",
		Builtins:    monty.SharedBuiltins(),
		Dataclasses: registry.NewDataclassRegistry(),
		NamedTuples: registry.NewNamedTupleRegistry(),
	}
}

func reprOf(r *repl.Repl, res repl.Result) string {
	return values.FormatRepr(r.Interpreter().Heap, res.Value)
}

func TestCreateAndFeedSharedScope(t *testing.T) {
	r, res, err := repl.Create("x = 10", testConfig(), nil)
	require.NoError(t, err)
	assert.False(t, res.LastWasExpr)

	res, err = r.Feed("x * 2")
	require.NoError(t, err)
	assert.True(t, res.LastWasExpr)
	assert.Equal(t, "20", reprOf(r, res))

	res, err = r.Feed("y = x + 1")
	require.NoError(t, err)
	assert.False(t, res.LastWasExpr)

	res, err = r.Feed("y")
	require.NoError(t, err)
	assert.Equal(t, "11", reprOf(r, res))
}

func TestFeedFunctionsPersistAcrossBlocks(t *testing.T) {
	r, _, err := repl.Create("def double(n):\n    return n * 2", testConfig(), nil)
	require.NoError(t, err)

	res, err := r.Feed("double(21)")
	require.NoError(t, err)
	assert.Equal(t, "42", reprOf(r, res))

	// A later feed can reference both the function and fresh bindings.
	_, err = r.Feed("xs = [double(i) for i in range(3)]")
	require.NoError(t, err)
	res, err = r.Feed("xs")
	require.NoError(t, err)
	assert.Equal(t, "[0, 2, 4]", reprOf(r, res))
}

func TestFeedErrorLeavesScopeUsable(t *testing.T) {
	r, _, err := repl.Create("x = 1", testConfig(), nil)
	require.NoError(t, err)

	_, err = r.Feed("1 // 0")
	require.Error(t, err)
	var re *interp.RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "ZeroDivisionError", re.Kind)

	res, err := r.Feed("x + 1")
	require.NoError(t, err)
	assert.Equal(t, "2", reprOf(r, res))
}

func TestDumpLoadPersistsScope(t *testing.T) {
	r, _, err := repl.Create("x = 5\nnote = 'persisted across a dump'", testConfig(), nil)
	require.NoError(t, err)
	_, err = r.Feed("xs = [x, x * 2]")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.Dump(&buf))

	loaded, err := repl.Load(&buf, testConfig())
	require.NoError(t, err)

	res, err := loaded.Feed("(x, xs, note)")
	require.NoError(t, err)
	assert.Equal(t, "(5, [5, 10], 'persisted across a dump')", reprOf(loaded, res))
}

func TestLimitsCarryAcrossFeeds(t *testing.T) {
	cfg := testConfig()
	cfg.Limits = interp.Limits{MaxAllocations: 400}
	r, _, err := repl.Create("xs = []", cfg, nil)
	require.NoError(t, err)

	grow := "for i in range(120):\n    xs.append([i])"
	// The per-interpreter allocation budget is cumulative, so repeating the
	// same feed eventually exhausts it.
	var feedErr error
	for i := 0; i < 10 && feedErr == nil; i++ {
		_, feedErr = r.Feed(grow)
	}
	require.Error(t, feedErr)
	var re *interp.RuntimeError
	require.ErrorAs(t, feedErr, &re)
	assert.Equal(t, "MemoryError", re.Kind)
}
