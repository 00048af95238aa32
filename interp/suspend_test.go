package interp_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scostello/monty-go/compiler/codegen"
	"github.com/scostello/monty-go/interp"
	"github.com/scostello/monty-go/registry"
	"github.com/scostello/monty-go/values"
)

func startExternal(t *testing.T, src string, externals []string) (*interp.Interpreter, interp.Progress) {
	t.Helper()
	prog, err := codegen.Compile(src, codegen.Options{ScriptName: "ext.py", Externals: externals})
	require.NoError(t, err)
	in := interp.New(prog, testBuiltins(), registry.NewDataclassRegistry(), registry.NewNamedTupleRegistry(), interp.Limits{}, nil)
	in.ExtEnabled = true
	progress, err := in.Start(nil)
	require.NoError(t, err)
	return in, progress
}

func TestExternalCallProtocol(t *testing.T) {
	in, progress := startExternal(t, "a() + b()", []string{"a", "b"})

	require.Equal(t, interp.ProgressSnapshot, progress.Kind)
	snap := progress.Snapshot
	assert.Equal(t, "a", snap.FuncName)
	assert.False(t, snap.IsOS)
	assert.Equal(t, uint64(1), snap.CallID)

	progress, err := in.Resume(snap, interp.Return(values.Int(10)))
	require.NoError(t, err)
	require.Equal(t, interp.ProgressSnapshot, progress.Kind)
	assert.Equal(t, "b", progress.Snapshot.FuncName)
	assert.Equal(t, uint64(2), progress.Snapshot.CallID)

	progress, err = in.Resume(progress.Snapshot, interp.Return(values.Int(5)))
	require.NoError(t, err)
	require.Equal(t, interp.ProgressComplete, progress.Kind)
	assert.Equal(t, int64(15), progress.Output.Int())
}

func TestSnapshotSingleUse(t *testing.T) {
	in, progress := startExternal(t, "a()", []string{"a"})
	snap := progress.Snapshot

	_, err := in.Resume(snap, interp.Return(values.Int(1)))
	require.NoError(t, err)

	_, err = in.Resume(snap, interp.Return(values.Int(2)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already consumed")
}

func TestExternalArgsMaterialised(t *testing.T) {
	_, progress := startExternal(t, `lookup("users", limit=3)`, []string{"lookup"})
	snap := progress.Snapshot
	require.Equal(t, "lookup", snap.FuncName)
	require.Len(t, snap.Args, 1)
	assert.Equal(t, "users", snap.Args[0].Text())
	require.Equal(t, []string{"limit"}, snap.KwNames)
	assert.Equal(t, int64(3), snap.KwValues[0].Int())
}

func TestResumeWithException(t *testing.T) {
	src := `
try:
    fetch()
except FileNotFoundError:
    result = "fell back"
result
`
	in, progress := startExternal(t, src, []string{"fetch"})
	final, err := in.Resume(progress.Snapshot, interp.Raise("FileNotFoundError", "gone"))
	require.NoError(t, err)
	require.Equal(t, interp.ProgressComplete, final.Kind)
	assert.Equal(t, "fell back", values.FormatStr(in.Heap, final.Output))
}

func TestGatherProtocol(t *testing.T) {
	src := `
import asyncio
await asyncio.gather(foo(1), bar(2))
`
	in, progress := startExternal(t, src, []string{"foo", "bar"})

	require.Equal(t, interp.ProgressSnapshot, progress.Kind)
	require.Equal(t, "foo", progress.Snapshot.FuncName)
	fooID := progress.Snapshot.CallID
	progress, err := in.Resume(progress.Snapshot, interp.AsFuture(fooID))
	require.NoError(t, err)

	require.Equal(t, interp.ProgressSnapshot, progress.Kind)
	require.Equal(t, "bar", progress.Snapshot.FuncName)
	barID := progress.Snapshot.CallID
	progress, err = in.Resume(progress.Snapshot, interp.AsFuture(barID))
	require.NoError(t, err)

	require.Equal(t, interp.ProgressFutureSnapshot, progress.Kind)
	assert.ElementsMatch(t, []uint64{fooID, barID}, progress.FutureSnapshot.PendingIDs)

	final, err := in.ResumeFuture(progress.FutureSnapshot, map[uint64]interp.Outcome{
		fooID: interp.Return(values.Int(3)),
		barID: interp.Return(values.Int(4)),
	})
	require.NoError(t, err)
	require.Equal(t, interp.ProgressComplete, final.Kind)
	assert.Equal(t, "[3, 4]", values.FormatRepr(in.Heap, final.Output))
}

// Completion order must not affect gather's result order (spec.md §4.6).
func TestGatherPartialResumePreservesArgumentOrder(t *testing.T) {
	src := `
import asyncio
await asyncio.gather(foo(1), bar(2))
`
	in, progress := startExternal(t, src, []string{"foo", "bar"})
	fooID := progress.Snapshot.CallID
	progress, err := in.Resume(progress.Snapshot, interp.AsFuture(fooID))
	require.NoError(t, err)
	barID := progress.Snapshot.CallID
	progress, err = in.Resume(progress.Snapshot, interp.AsFuture(barID))
	require.NoError(t, err)

	// First-completed policy: resolve bar alone first.
	progress, err = in.ResumeFuture(progress.FutureSnapshot, map[uint64]interp.Outcome{
		barID: interp.Return(values.Int(40)),
	})
	require.NoError(t, err)
	require.Equal(t, interp.ProgressFutureSnapshot, progress.Kind)
	assert.Equal(t, []uint64{fooID}, progress.FutureSnapshot.PendingIDs)

	final, err := in.ResumeFuture(progress.FutureSnapshot, map[uint64]interp.Outcome{
		fooID: interp.Return(values.Int(30)),
	})
	require.NoError(t, err)
	require.Equal(t, interp.ProgressComplete, final.Kind)
	assert.Equal(t, "[30, 40]", values.FormatRepr(in.Heap, final.Output))
}

func TestGatherChildError(t *testing.T) {
	src := `
import asyncio
await asyncio.gather(foo(1), bar(2))
`
	in, progress := startExternal(t, src, []string{"foo", "bar"})
	fooID := progress.Snapshot.CallID
	progress, err := in.Resume(progress.Snapshot, interp.AsFuture(fooID))
	require.NoError(t, err)
	barID := progress.Snapshot.CallID
	progress, err = in.Resume(progress.Snapshot, interp.AsFuture(barID))
	require.NoError(t, err)

	_, err = in.ResumeFuture(progress.FutureSnapshot, map[uint64]interp.Outcome{
		fooID: interp.Raise("ValueError", "foo failed"),
		barID: interp.Return(values.Int(4)),
	})
	require.Error(t, err)
	var re *interp.RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "ValueError", re.Kind)
	assert.Equal(t, "foo failed", re.Message)
}

func TestAwaitSingleExternalCall(t *testing.T) {
	src := `
result = await fetch("id-1")
result + 1
`
	in, progress := startExternal(t, src, []string{"fetch"})
	require.Equal(t, interp.ProgressSnapshot, progress.Kind)
	final, err := in.Resume(progress.Snapshot, interp.Return(values.Int(41)))
	require.NoError(t, err)
	require.Equal(t, interp.ProgressComplete, final.Kind)
	assert.Equal(t, int64(42), final.Output.Int())
}

func TestSnapshotDumpLoadResume(t *testing.T) {
	prog, err := codegen.Compile("a() + b()", codegen.Options{ScriptName: "rt.py", Externals: []string{"a", "b"}})
	require.NoError(t, err)
	reg := testBuiltins()
	dc := registry.NewDataclassRegistry()
	nt := registry.NewNamedTupleRegistry()

	in := interp.New(prog, reg, dc, nt, interp.Limits{}, nil)
	in.ExtEnabled = true
	progress, err := in.Start(nil)
	require.NoError(t, err)
	progress, err = in.Resume(progress.Snapshot, interp.Return(values.Int(10)))
	require.NoError(t, err)
	require.Equal(t, "b", progress.Snapshot.FuncName)

	// Persist the pause between the two external calls and resume the
	// reloaded copy in a "fresh process" sharing only the Program.
	var buf bytes.Buffer
	require.NoError(t, progress.Snapshot.Dump(&buf))

	loaded, err := interp.LoadSnapshot(bytes.NewReader(buf.Bytes()), prog, reg, dc, nt, nil)
	require.NoError(t, err)
	assert.Equal(t, "b", loaded.FuncName)

	restored := loaded.Interpreter()
	restored.ExtEnabled = true
	final, err := restored.Resume(loaded, interp.Return(values.Int(5)))
	require.NoError(t, err)
	require.Equal(t, interp.ProgressComplete, final.Kind)
	assert.Equal(t, int64(15), final.Output.Int())
}

func TestDumpAfterResumeFails(t *testing.T) {
	in, progress := startExternal(t, "a()", []string{"a"})
	snap := progress.Snapshot
	_, err := in.Resume(snap, interp.Return(values.Int(1)))
	require.NoError(t, err)

	var buf bytes.Buffer
	err = snap.Dump(&buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already consumed")
}
