package interp

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/scostello/monty-go/asyncio"
	"github.com/scostello/monty-go/heap"
	"github.com/scostello/monty-go/program"
	"github.com/scostello/monty-go/registry"
	"github.com/scostello/monty-go/serialize"
	"github.com/scostello/monty-go/values"
)

// Dump writes s as a single-use envelope (spec.md §3/§6): interpreter
// globals, the full frame stack with per-frame evaluation/handler stacks,
// every heap object reachable from those roots, the futures table, the
// call-id counter and this Snapshot's own paused call descriptor. Dumping
// after Resume has already consumed s fails, the same invariant Resume
// itself enforces.
func (s *Snapshot) Dump(w io.Writer) error {
	if s.consumed {
		return fmt.Errorf("monty: snapshot already consumed")
	}
	wr := serialize.NewWriter(w)
	wr.WriteHeader(serialize.TagSnapshot)
	writeInterpreterState(wr, s.interp)
	wr.WriteUint64(s.CallID)
	wr.WriteString(s.FuncName)
	wr.WriteBool(s.IsOS)
	serialize.WriteValues(wr, s.Args)
	wr.WriteStrings(s.KwNames)
	serialize.WriteValues(wr, s.KwValues)
	return wr.Err()
}

// LoadSnapshot reconstructs a Snapshot from an envelope Dump wrote, wiring
// it to a freshly built Interpreter that shares the given read-only tables.
// The returned Snapshot is resumable exactly once, same as one produced by
// a live Start/Resume call.
func LoadSnapshot(r io.Reader, prog *program.Program, builtins *registry.Builtins, dataclasses *registry.DataclassRegistry, namedTuples *registry.NamedTupleRegistry, printSink func(string)) (*Snapshot, error) {
	rd := serialize.NewReader(r)
	tag := rd.ReadHeader()
	if rd.Err() != nil {
		return nil, rd.Err()
	}
	if tag != serialize.TagSnapshot {
		return nil, fmt.Errorf("monty: expected a Snapshot envelope, got tag %d", tag)
	}
	in := newForLoad(prog, builtins, dataclasses, namedTuples, printSink)
	readInterpreterState(rd, in, dataclasses)
	snap := &Snapshot{
		CallID:   rd.ReadUint64(),
		FuncName: rd.ReadString(),
		IsOS:     rd.ReadBool(),
		Args:     serialize.ReadValues(rd),
		KwNames:  rd.ReadStrings(),
		KwValues: serialize.ReadValues(rd),
		interp:   in,
	}
	if rd.Err() != nil {
		return nil, rd.Err()
	}
	return snap, nil
}

// Dump writes f the same way Snapshot.Dump does, substituting f's own
// paused-join descriptor (PendingIDs/allIDs) for a single call's arguments.
func (f *FutureSnapshot) Dump(w io.Writer) error {
	if f.consumed {
		return fmt.Errorf("monty: snapshot already consumed")
	}
	wr := serialize.NewWriter(w)
	wr.WriteHeader(serialize.TagFutureSnapshot)
	writeInterpreterState(wr, f.interp)
	writeUint64Slice(wr, f.PendingIDs)
	writeUint64Slice(wr, f.allIDs)
	return wr.Err()
}

// LoadFutureSnapshot is LoadSnapshot's counterpart for a YIELD_FUTURE_JOIN
// pause.
func LoadFutureSnapshot(r io.Reader, prog *program.Program, builtins *registry.Builtins, dataclasses *registry.DataclassRegistry, namedTuples *registry.NamedTupleRegistry, printSink func(string)) (*FutureSnapshot, error) {
	rd := serialize.NewReader(r)
	tag := rd.ReadHeader()
	if rd.Err() != nil {
		return nil, rd.Err()
	}
	if tag != serialize.TagFutureSnapshot {
		return nil, fmt.Errorf("monty: expected a FutureSnapshot envelope, got tag %d", tag)
	}
	in := newForLoad(prog, builtins, dataclasses, namedTuples, printSink)
	readInterpreterState(rd, in, dataclasses)
	snap := &FutureSnapshot{
		PendingIDs: readUint64Slice(rd),
		allIDs:     readUint64Slice(rd),
		interp:     in,
	}
	if rd.Err() != nil {
		return nil, rd.Err()
	}
	return snap, nil
}

func newForLoad(prog *program.Program, builtins *registry.Builtins, dataclasses *registry.DataclassRegistry, namedTuples *registry.NamedTupleRegistry, printSink func(string)) *Interpreter {
	return New(prog, builtins, dataclasses, namedTuples, Limits{}, printSink)
}

// writeInterpreterState encodes everything a Snapshot/FutureSnapshot shares:
// globals, frames, limits/opCount, the call-id counter, the futures table
// and the heap content those roots keep alive.
func writeInterpreterState(wr *serialize.Writer, in *Interpreter) {
	writeLimits(wr, in.Limits)
	wr.WriteInt(in.opCount)
	wr.WriteUint64(in.nextCallID)

	wr.WriteInt(len(in.Globals))
	names := make([]string, 0, len(in.Globals))
	for name := range in.Globals {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		wr.WriteString(name)
		serialize.WriteValue(wr, in.Globals[name])
	}

	wr.WriteInt(len(in.Frames))
	for _, fr := range in.Frames {
		writeFrame(wr, fr)
	}

	serialize.WriteValues(wr, in.pendingArgs)
	serialize.WriteValues(wr, in.pendingKwValues)

	writeFutures(wr, in.Futures)

	serialize.WriteHeap(wr, in.Heap, in.Heap.Reachable(in.roots()))
}

func readInterpreterState(rd *serialize.Reader, in *Interpreter, dataclasses *registry.DataclassRegistry) {
	in.Limits = readLimits(rd)
	in.opCount = rd.ReadInt()
	in.nextCallID = rd.ReadUint64()

	n := rd.ReadInt()
	in.Globals = make(map[string]values.Value, n)
	for i := 0; i < n; i++ {
		name := rd.ReadString()
		in.Globals[name] = serialize.ReadValue(rd)
	}

	n = rd.ReadInt()
	in.Frames = make([]*Frame, n)
	for i := range in.Frames {
		in.Frames[i] = readFrame(rd, in.Prog)
	}

	in.pendingArgs = serialize.ReadValues(rd)
	in.pendingKwValues = serialize.ReadValues(rd)

	in.Futures = readFutures(rd)

	in.Heap = heap.New(heap.Limits{
		MaxBytes:      in.Limits.MaxHeapBytes,
		MaxAllocs:     in.Limits.MaxAllocations,
		SweepInterval: in.Limits.GCInterval,
	})
	serialize.ReadHeap(rd, in.Heap, dataclasses.Lookup)
}

func writeLimits(wr *serialize.Writer, l Limits) {
	wr.WriteBool(l.hasDeadline())
	if l.hasDeadline() {
		wr.WriteInt64(l.Deadline.UnixNano())
	}
	wr.WriteInt(l.MaxAllocations)
	wr.WriteInt(l.MaxHeapBytes)
	wr.WriteInt(l.MaxRecursionDepth)
	wr.WriteInt(l.GCInterval)
	wr.WriteInt(l.CheckInterval)
}

func readLimits(rd *serialize.Reader) Limits {
	var l Limits
	if rd.ReadBool() {
		l.Deadline = time.Unix(0, rd.ReadInt64())
	}
	l.MaxAllocations = rd.ReadInt()
	l.MaxHeapBytes = rd.ReadInt()
	l.MaxRecursionDepth = rd.ReadInt()
	l.GCInterval = rd.ReadInt()
	l.CheckInterval = rd.ReadInt()
	return l
}

func writeFrame(wr *serialize.Writer, fr *Frame) {
	wr.WriteInt(fr.CodeIndex)
	wr.WriteInt(fr.PC)
	serialize.WriteValues(wr, fr.Locals)
	serialize.WriteValues(wr, fr.Cells)
	serialize.WriteValues(wr, fr.Free)
	serialize.WriteValues(wr, fr.Stack)

	wr.WriteInt(len(fr.Handlers))
	for _, h := range fr.Handlers {
		wr.WriteInt(h.ExceptPC)
		wr.WriteInt(h.FinallyPC)
		wr.WriteInt(h.StackDepth)
	}

	wr.WriteInt(fr.GatherIdx)
	wr.WriteBool(fr.IsCtor)
	serialize.WriteValue(wr, fr.CtorSelf)
}

func readFrame(rd *serialize.Reader, prog *program.Program) *Frame {
	codeIndex := rd.ReadInt()
	fr := &Frame{
		Code:      &prog.Codes[codeIndex],
		CodeIndex: codeIndex,
		PC:        rd.ReadInt(),
	}
	fr.Locals = serialize.ReadValues(rd)
	fr.Cells = serialize.ReadValues(rd)
	fr.Free = serialize.ReadValues(rd)
	fr.Stack = serialize.ReadValues(rd)

	n := rd.ReadInt()
	fr.Handlers = make([]TryHandler, n)
	for i := range fr.Handlers {
		fr.Handlers[i] = TryHandler{
			ExceptPC:   rd.ReadInt(),
			FinallyPC:  rd.ReadInt(),
			StackDepth: rd.ReadInt(),
		}
	}

	fr.GatherIdx = rd.ReadInt()
	fr.IsCtor = rd.ReadBool()
	fr.CtorSelf = serialize.ReadValue(rd)
	return fr
}

// writeFutures encodes the Async Coordinator's table in registration order
// (asyncio.Coordinator.Ids(), documented there as existing "for root
// enumeration and serialisation").
func writeFutures(wr *serialize.Writer, c *asyncio.Coordinator) {
	ids := c.Ids()
	wr.WriteInt(len(ids))
	for _, id := range ids {
		wr.WriteUint64(id)
		oc, _ := c.Lookup(id)
		wr.WriteByte(byte(oc.Status))
		switch oc.Status {
		case asyncio.CompletedOK:
			v, _ := oc.Value.(values.Value)
			serialize.WriteValue(wr, v)
		case asyncio.CompletedErr:
			wr.WriteString(oc.ExcKind)
			wr.WriteString(oc.ExcMsg)
		}
	}
}

func readFutures(rd *serialize.Reader) *asyncio.Coordinator {
	c := asyncio.New()
	n := rd.ReadInt()
	for i := 0; i < n; i++ {
		id := rd.ReadUint64()
		status := asyncio.Status(rd.ReadByte())
		switch status {
		case asyncio.Pending:
			c.Register(id)
		case asyncio.CompletedOK:
			v := serialize.ReadValue(rd)
			c.Resolve(id, asyncio.Outcome{Status: asyncio.CompletedOK, Value: v})
		case asyncio.CompletedErr:
			kind := rd.ReadString()
			msg := rd.ReadString()
			c.Resolve(id, asyncio.Outcome{Status: asyncio.CompletedErr, ExcKind: kind, ExcMsg: msg})
		}
	}
	return c
}

func writeUint64Slice(wr *serialize.Writer, ids []uint64) {
	wr.WriteInt(len(ids))
	for _, id := range ids {
		wr.WriteUint64(id)
	}
}

func readUint64Slice(rd *serialize.Reader) []uint64 {
	n := rd.ReadInt()
	if n == 0 {
		return nil
	}
	out := make([]uint64, n)
	for i := range out {
		out[i] = rd.ReadUint64()
	}
	return out
}
