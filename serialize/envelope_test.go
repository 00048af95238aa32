package serialize_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scostello/monty-go/heap"
	"github.com/scostello/monty-go/opcodes"
	"github.com/scostello/monty-go/program"
	"github.com/scostello/monty-go/serialize"
	"github.com/scostello/monty-go/values"
)

func TestPrimitiveRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	wr := serialize.NewWriter(&buf)
	wr.WriteHeader(serialize.TagProgram)
	wr.WriteBool(true)
	wr.WriteInt(-42)
	wr.WriteUint64(1 << 40)
	wr.WriteFloat64(3.25)
	wr.WriteString("hello")
	wr.WriteBytes([]byte{0, 1, 2})
	wr.WriteStrings([]string{"a", "b"})
	require.NoError(t, wr.Err())

	rd := serialize.NewReader(&buf)
	assert.Equal(t, serialize.TagProgram, rd.ReadHeader())
	assert.True(t, rd.ReadBool())
	assert.Equal(t, -42, rd.ReadInt())
	assert.Equal(t, uint64(1<<40), rd.ReadUint64())
	assert.Equal(t, 3.25, rd.ReadFloat64())
	assert.Equal(t, "hello", rd.ReadString())
	assert.Equal(t, []byte{0, 1, 2}, rd.ReadBytes())
	assert.Equal(t, []string{"a", "b"}, rd.ReadStrings())
	require.NoError(t, rd.Err())
}

func TestTruncationMessage(t *testing.T) {
	var buf bytes.Buffer
	wr := serialize.NewWriter(&buf)
	wr.WriteHeader(serialize.TagSnapshot)
	wr.WriteString("cut off mid-record")
	require.NoError(t, wr.Err())

	short := buf.Bytes()[:buf.Len()-4]
	rd := serialize.NewReader(bytes.NewReader(short))
	rd.ReadHeader()
	rd.ReadString()
	require.Error(t, rd.Err())
	assert.Equal(t, "Hit the end of buffer, expected more data", rd.Err().Error())
}

func TestBadMagicRejected(t *testing.T) {
	rd := serialize.NewReader(bytes.NewReader([]byte{'N', 'O', 'P', 'E', 1, 0}))
	rd.ReadHeader()
	require.Error(t, rd.Err())
	assert.Contains(t, rd.Err().Error(), "bad magic")
}

func TestProgramRoundTrip(t *testing.T) {
	p := program.New("roundtrip.py")
	p.InputNames = []string{"x"}
	p.ExternalFuncs = []string{"fetch"}
	p.TypeCheckerStub = "def fetch(url: str) -> str: ..."
	ci := p.AddConst(program.Const{Kind: program.ConstInt, Int: 7})
	cs := p.AddConst(program.Const{Kind: program.ConstStr, Str: "x"})
	p.TopLevel = p.AddCode(program.CodeObject{
		Name:      "<module>",
		NumLocals: 1,
		Params:    []program.Param{{Name: "x", HasDef: true, DefConst: ci}},
		FreeVars:  []program.FreeVar{{Name: "captured", FromOuter: true}},
		Code: []opcodes.Instruction{
			{Op: opcodes.OpLoadConst, A: int32(ci), Line: 1},
			{Op: opcodes.OpLoadGlobal, A: int32(cs), Line: 2},
			{Op: opcodes.OpBinaryAdd, Line: 2},
			{Op: opcodes.OpReturn, Line: 2},
		},
		Lines: []program.LineEntry{{StartPC: 0, Line: 1}, {StartPC: 1, Line: 2}},
	})

	var buf bytes.Buffer
	require.NoError(t, serialize.DumpProgram(&buf, p))
	got, err := serialize.LoadProgram(&buf)
	require.NoError(t, err)

	assert.Equal(t, p.BuildID, got.BuildID)
	assert.Equal(t, p.ScriptName, got.ScriptName)
	assert.Equal(t, p.InputNames, got.InputNames)
	assert.Equal(t, p.ExternalFuncs, got.ExternalFuncs)
	assert.Equal(t, p.TypeCheckerStub, got.TypeCheckerStub)
	assert.Equal(t, p.TopLevel, got.TopLevel)
	require.Len(t, got.Codes, 1)
	assert.Equal(t, p.Codes[0], got.Codes[0])
	assert.Equal(t, p.Consts, got.Consts)
}

func TestValueRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	wr := serialize.NewWriter(&buf)
	wr.WriteHeader(serialize.TagSnapshot)
	serialize.WriteValue(wr, values.None())
	serialize.WriteValue(wr, values.Bool(true))
	serialize.WriteValue(wr, values.Int(-9))
	serialize.WriteValue(wr, values.Float(2.5))
	serialize.WriteValue(wr, values.ImmediateStr("inline"))
	serialize.WriteValue(wr, values.ImmediateBytes([]byte{9}))
	require.NoError(t, wr.Err())

	rd := serialize.NewReader(&buf)
	rd.ReadHeader()
	assert.True(t, serialize.ReadValue(rd).IsNone())
	assert.True(t, serialize.ReadValue(rd).Bool())
	assert.Equal(t, int64(-9), serialize.ReadValue(rd).Int())
	assert.Equal(t, 2.5, serialize.ReadValue(rd).Float())
	assert.Equal(t, "inline", serialize.ReadValue(rd).Text())
	assert.Equal(t, "\x09", serialize.ReadValue(rd).Text())
	require.NoError(t, rd.Err())
}

func TestHeapDumpRejectsCallables(t *testing.T) {
	h := heap.New(heap.Limits{})
	roots := func() []heap.Handle { return nil }
	closure, err := h.Alloc(&values.ClosureObj{CodeIndex: 3, Name: "f"}, roots)
	require.NoError(t, err)

	var buf bytes.Buffer
	wr := serialize.NewWriter(&buf)
	wr.WriteHeader(serialize.TagSnapshot)
	serialize.WriteHeap(wr, h, []heap.Handle{closure})
	require.Error(t, wr.Err())
	assert.Contains(t, wr.Err().Error(), "cannot serialise")
}

func TestHeapRoundTripContainers(t *testing.T) {
	h := heap.New(heap.Limits{})
	roots := func() []heap.Handle { return nil }

	inner, err := h.Alloc(&values.ListObj{Elems: []values.Value{values.Int(1), values.Int(2)}}, roots)
	require.NoError(t, err)
	outer, err := h.Alloc(&values.TupleObj{Elems: []values.Value{values.FromHandle(inner), values.ImmediateStr("s")}}, roots)
	require.NoError(t, err)

	var buf bytes.Buffer
	wr := serialize.NewWriter(&buf)
	wr.WriteHeader(serialize.TagSnapshot)
	serialize.WriteHeap(wr, h, []heap.Handle{inner, outer})
	require.NoError(t, wr.Err())

	h2 := heap.New(heap.Limits{})
	rd := serialize.NewReader(&buf)
	rd.ReadHeader()
	serialize.ReadHeap(rd, h2, nil)
	require.NoError(t, rd.Err())

	restoredOuter, ok := h2.Get(outer).(*values.TupleObj)
	require.True(t, ok)
	require.Len(t, restoredOuter.Elems, 2)
	restoredInner, ok := h2.Get(restoredOuter.Elems[0].Handle()).(*values.ListObj)
	require.True(t, ok)
	assert.Equal(t, int64(2), restoredInner.Elems[1].Int())
}
