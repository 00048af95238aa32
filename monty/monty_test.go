package monty_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scostello/monty-go/interp"
	"github.com/scostello/monty-go/monty"
)

func TestRunSimpleExpression(t *testing.T) {
	m, err := monty.New("1 + 2 * 3", monty.Config{})
	require.NoError(t, err)
	out, err := m.Run(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(7), out)
}

func TestRunWithInputs(t *testing.T) {
	m, err := monty.New("x + y", monty.Config{Inputs: []string{"x", "y"}})
	require.NoError(t, err)

	out, err := m.Run(map[string]any{"x": 10, "y": 20})
	require.NoError(t, err)
	assert.Equal(t, int64(30), out)

	out, err = m.Run(map[string]any{"x": 100, "y": 200})
	require.NoError(t, err)
	assert.Equal(t, int64(300), out)
}

func TestProgressProtocol(t *testing.T) {
	m, err := monty.New("a() + b()", monty.Config{ExternalFunctions: []string{"a", "b"}})
	require.NoError(t, err)

	p, err := m.Start(nil)
	require.NoError(t, err)
	require.Equal(t, monty.Suspended, p.Kind)
	assert.Equal(t, "a", p.Snapshot.FunctionName())

	p, err = p.Snapshot.Resume(10)
	require.NoError(t, err)
	require.Equal(t, monty.Suspended, p.Kind)
	assert.Equal(t, "b", p.Snapshot.FunctionName())

	p, err = p.Snapshot.Resume(5)
	require.NoError(t, err)
	require.Equal(t, monty.Complete, p.Kind)
	assert.Equal(t, int64(15), p.Output)
}

func TestFutureJoin(t *testing.T) {
	src := `
import asyncio
await asyncio.gather(foo(1), bar(2))
`
	m, err := monty.New(src, monty.Config{ExternalFunctions: []string{"foo", "bar"}})
	require.NoError(t, err)

	p, err := m.Start(nil)
	require.NoError(t, err)
	require.Equal(t, monty.Suspended, p.Kind)
	require.Equal(t, "foo", p.Snapshot.FunctionName())
	fooID := p.Snapshot.CallID()
	p, err = p.Snapshot.ResumeAsPending()
	require.NoError(t, err)

	require.Equal(t, monty.Suspended, p.Kind)
	require.Equal(t, "bar", p.Snapshot.FunctionName())
	barID := p.Snapshot.CallID()
	p, err = p.Snapshot.ResumeAsPending()
	require.NoError(t, err)

	require.Equal(t, monty.SuspendedOnFutures, p.Kind)
	assert.ElementsMatch(t, []uint64{fooID, barID}, p.FutureSnapshot.PendingIDs())

	p, err = p.FutureSnapshot.Resume(map[uint64]monty.Outcome{
		fooID: monty.Return(3),
		barID: monty.Return(4),
	})
	require.NoError(t, err)
	require.Equal(t, monty.Complete, p.Kind)
	assert.Equal(t, []any{int64(3), int64(4)}, p.Output)
}

func TestOSMediation(t *testing.T) {
	src := `
from pathlib import Path
Path("/etc/motd").read_text()
`
	m, err := monty.New(src, monty.Config{MediateOS: true})
	require.NoError(t, err)

	p, err := m.Start(nil)
	require.NoError(t, err)
	require.Equal(t, monty.Suspended, p.Kind)
	snap := p.Snapshot
	assert.True(t, snap.IsOS())
	assert.Equal(t, "Path.read_text", snap.FunctionName())
	args, err := snap.Args()
	require.NoError(t, err)
	assert.Equal(t, monty.Path("/etc/motd"), args[0])

	p, err = snap.Resume("welcome\n")
	require.NoError(t, err)
	require.Equal(t, monty.Complete, p.Kind)
	assert.Equal(t, "welcome\n", p.Output)
}

func TestOSUnmediatedRaises(t *testing.T) {
	src := `
from pathlib import Path
Path("/f").exists()
`
	m, err := monty.New(src, monty.Config{})
	require.NoError(t, err)
	_, err = m.Run(nil)
	require.Error(t, err)
	var re *interp.RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "NotImplementedError: OS function 'Path.exists' not implemented", re.Error())
}

func TestSnapshotRoundTripAcrossLoad(t *testing.T) {
	m, err := monty.New("a() + b()", monty.Config{ExternalFunctions: []string{"a", "b"}})
	require.NoError(t, err)

	p, err := m.Start(nil)
	require.NoError(t, err)
	p, err = p.Snapshot.Resume(10)
	require.NoError(t, err)
	require.Equal(t, "b", p.Snapshot.FunctionName())

	var buf bytes.Buffer
	require.NoError(t, p.Snapshot.Dump(&buf))

	loaded, err := m.LoadSnapshot(&buf)
	require.NoError(t, err)
	final, err := loaded.Resume(5)
	require.NoError(t, err)
	require.Equal(t, monty.Complete, final.Kind)
	assert.Equal(t, int64(15), final.Output)
}

func TestFrozenDataclass(t *testing.T) {
	src := `
from dataclasses import dataclass

@dataclass(frozen=True)
class Point:
    x: int
    y: int

p = Point(1, 2)
p.x = 10
`
	m, err := monty.New(src, monty.Config{})
	require.NoError(t, err)
	_, err = m.Run(nil)
	require.Error(t, err)
	var re *interp.RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "FrozenInstanceError: cannot assign to field 'x'", re.Error())
}

func TestHostValueMapping(t *testing.T) {
	src := `
(payload["name"], payload["tags"], payload["count"] + 1)
`
	m, err := monty.New(src, monty.Config{Inputs: []string{"payload"}})
	require.NoError(t, err)
	out, err := m.Run(map[string]any{"payload": map[string]any{
		"name":  "ada",
		"tags":  []any{"x", "y"},
		"count": 41,
	}})
	require.NoError(t, err)
	tup, ok := out.(monty.Tuple)
	require.True(t, ok)
	assert.Equal(t, "ada", tup[0])
	assert.Equal(t, []any{"x", "y"}, tup[1])
	assert.Equal(t, int64(42), tup[2])
}

func TestSyntaxErrorSurface(t *testing.T) {
	_, err := monty.New("def broken(:\n    pass", monty.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SyntaxError")
}

func TestPrintGoesToSink(t *testing.T) {
	var lines []string
	m, err := monty.New(`print("hello", 42)`, monty.Config{
		PrintSink: func(s string) { lines = append(lines, s) },
	})
	require.NoError(t, err)
	_, err = m.Run(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello 42"}, lines)
}
