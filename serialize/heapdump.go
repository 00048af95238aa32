package serialize

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/scostello/monty-go/heap"
	"github.com/scostello/monty-go/values"
)

// heapKind mirrors heap.Kind on the wire. Declared independently so the
// format never shifts just because heap.Kind gains a value.
type heapKind byte

const (
	hkString heapKind = iota
	hkBytes
	hkBigInt
	hkTuple
	hkList
	hkSet
	hkFrozenSet
	hkMap
	hkPath
	hkStat
	hkException
	hkRange
	hkSlice
	hkIterator
	hkFuture
	hkPartialArgs
	hkDataclass
	hkModule
)

func wireKind(k heap.Kind) (heapKind, bool) {
	switch k {
	case heap.KindString:
		return hkString, true
	case heap.KindBytes:
		return hkBytes, true
	case heap.KindBigInt:
		return hkBigInt, true
	case heap.KindTuple:
		return hkTuple, true
	case heap.KindList:
		return hkList, true
	case heap.KindSet:
		return hkSet, true
	case heap.KindFrozenSet:
		return hkFrozenSet, true
	case heap.KindMap:
		return hkMap, true
	case heap.KindPath:
		return hkPath, true
	case heap.KindStat:
		return hkStat, true
	case heap.KindException:
		return hkException, true
	case heap.KindRange:
		return hkRange, true
	case heap.KindSlice:
		return hkSlice, true
	case heap.KindIterator:
		return hkIterator, true
	case heap.KindFuture:
		return hkFuture, true
	case heap.KindPartialArgs:
		return hkPartialArgs, true
	case heap.KindDataclass:
		return hkDataclass, true
	case heap.KindModule:
		return hkModule, true
	default:
		return 0, false
	}
}

// WriteHeap flattens every object reachable from the given handles into a
// flat table, intra-heap references written as bare handle ids (spec.md §3:
// "heap content reachable from roots ... serialised as a flat table with
// intra-reference ids"). Function values, bound methods, plain class
// instances and class objects are not in the representable set spec.md §6
// guarantees (only registered dataclass instances round-trip among
// class-shaped values); WriteHeap fails with a clear message if one is
// reachable, the same way it already refuses other unrepresentable state.
func WriteHeap(wr *Writer, h *heap.Heap, handles []heap.Handle) {
	sorted := append([]heap.Handle(nil), handles...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	wr.WriteInt(len(sorted))
	for _, handle := range sorted {
		obj := h.Get(handle)
		wk, ok := wireKind(obj.Kind())
		if !ok {
			wr.Fail(fmt.Errorf("monty: cannot serialise a live %s reference", obj.Kind()))
			return
		}
		wr.WriteUint32(uint32(handle))
		wr.WriteByte(byte(wk))
		writeHeapObject(wr, obj)
		if wr.Err() != nil {
			return
		}
	}
}

func writeHeapObject(wr *Writer, obj heap.Object) {
	switch o := obj.(type) {
	case *values.StringObj:
		wr.WriteString(o.S)
	case *values.BytesObj:
		wr.WriteBytes(o.B)
	case *values.BigIntObj:
		wr.WriteString(o.Z.String())
	case *values.TupleObj:
		wr.WriteString(o.TypeName)
		WriteValues(wr, o.Elems)
	case *values.ListObj:
		WriteValues(wr, o.Elems)
	case *values.SetObj:
		writeSetValues(wr, o.Values())
	case *values.FrozenSetObj:
		writeSetValues(wr, o.Set.Values())
	case *values.MapObj:
		entries := o.Entries()
		wr.WriteInt(len(entries))
		for _, e := range entries {
			WriteValue(wr, hashKeyToValue(e.Key))
			WriteValue(wr, e.Value)
		}
	case *values.PathObj:
		wr.WriteString(o.P)
	case *values.StatObj:
		wr.WriteUint64(o.Mode)
		wr.WriteUint64(o.Ino)
		wr.WriteUint64(o.Dev)
		wr.WriteUint64(o.Nlink)
		wr.WriteUint64(o.Uid)
		wr.WriteUint64(o.Gid)
		wr.WriteInt64(o.FileSize)
		wr.WriteFloat64(o.Atime)
		wr.WriteFloat64(o.Mtime)
		wr.WriteFloat64(o.Ctime)
	case *values.ExceptionObj:
		wr.WriteString(o.ExcKind)
		wr.WriteString(o.Message)
		WriteValue(wr, o.Cause)
		wr.WriteInt(len(o.Traceback))
		for _, t := range o.Traceback {
			wr.WriteString(t.File)
			wr.WriteInt(t.Line)
			wr.WriteString(t.FuncName)
			wr.WriteString(t.Source)
		}
	case *values.RangeObj:
		wr.WriteInt64(o.Start)
		wr.WriteInt64(o.Stop)
		wr.WriteInt64(o.Step)
	case *values.SliceObj:
		WriteValue(wr, o.Start)
		WriteValue(wr, o.Stop)
		WriteValue(wr, o.Step)
	case *values.IteratorObj:
		WriteValue(wr, o.Source)
		wr.WriteInt(o.Index)
		wr.WriteBool(o.Done)
	case *values.FutureObj:
		wr.WriteUint64(o.CallID)
	case *values.PartialArgsObj:
		WriteValues(wr, o.Positional)
		wr.WriteStrings(o.KwNames)
		WriteValues(wr, o.KwValues)
	case *values.DataclassObj:
		wr.WriteString(o.RegisteredName)
		wr.WriteInt(len(o.Slots))
		for name, v := range o.Slots {
			wr.WriteString(name)
			WriteValue(wr, v)
		}
	case *values.ModuleObj:
		wr.WriteString(o.Name)
	default:
		wr.Fail(fmt.Errorf("monty: cannot serialise heap object of kind %s", obj.Kind()))
	}
}

func writeSetValues(wr *Writer, vals []values.Value) {
	wr.WriteInt(len(vals))
	for _, v := range vals {
		WriteValue(wr, v)
	}
}

// hashKeyToValue reconstructs the Value a set/map entry's opaque HashKey()
// was computed from, for the same common-immediate cases
// builtins.keyToVal/interp.keyToValue already accept as good enough:
// composite keys (tuples, frozensets) collapse to None rather than round-
// tripping, matching the existing list(dict)/set(dict) behaviour.
func hashKeyToValue(key interface{}) values.Value {
	switch k := key.(type) {
	case nil:
		return values.None()
	case bool:
		return values.Bool(k)
	case int64:
		return values.Int(k)
	case float64:
		return values.Float(k)
	case string:
		if len(k) >= 2 && k[1] == ':' {
			switch k[0] {
			case 's':
				return values.ImmediateStr(k[2:])
			case 'b':
				return values.ImmediateBytes([]byte(k[2:]))
			}
		}
		return values.ImmediateStr(k)
	default:
		return values.None()
	}
}

// DataclassResolver looks a registered dataclass name up to its class
// metadata, the shape registry.DataclassRegistry.Lookup has. ReadHeap takes
// this instead of *registry.DataclassRegistry directly so serialize never
// has to import registry.
type DataclassResolver func(name string) (*values.ClassInfo, bool)

// ReadHeap restores a table written by WriteHeap into h, via Heap.Restore so
// the original handle ids (and therefore every intra-heap reference still
// embedded in already-read Values) resolve correctly. Records arrive in
// ascending handle order, which does not ensure a referenced object is
// restored before its referrer (a list can hold an object allocated after
// it); set decoding rehashes each element through h as it is read.
func ReadHeap(rd *Reader, h *heap.Heap, resolve DataclassResolver) {
	n := rd.ReadInt()
	for i := 0; i < n; i++ {
		handle := heap.Handle(rd.ReadUint32())
		kind := heapKind(rd.ReadByte())
		obj := readHeapObject(rd, h, kind, resolve)
		if rd.Err() != nil {
			return
		}
		h.Restore(handle, obj)
	}
}

func readHeapObject(rd *Reader, h *heap.Heap, kind heapKind, resolve DataclassResolver) heap.Object {
	switch kind {
	case hkString:
		return &values.StringObj{S: rd.ReadString()}
	case hkBytes:
		return &values.BytesObj{B: rd.ReadBytes()}
	case hkBigInt:
		z := new(big.Int)
		s := rd.ReadString()
		if _, ok := z.SetString(s, 10); !ok {
			rd.Fail(fmt.Errorf("monty: malformed big integer %q", s))
		}
		return &values.BigIntObj{Z: z}
	case hkTuple:
		typeName := rd.ReadString()
		return &values.TupleObj{TypeName: typeName, Elems: ReadValues(rd)}
	case hkList:
		return &values.ListObj{Elems: ReadValues(rd)}
	case hkSet:
		return readSetObj(rd, h)
	case hkFrozenSet:
		return &values.FrozenSetObj{Set: readSetObj(rd, h)}
	case hkMap:
		m := values.NewMapObj()
		n := rd.ReadInt()
		for i := 0; i < n; i++ {
			keyVal := ReadValue(rd)
			val := ReadValue(rd)
			key, ok := values.HashKey(h, keyVal)
			if !ok {
				key = nil
			}
			m.Put(key, val)
		}
		return m
	case hkPath:
		return &values.PathObj{P: rd.ReadString()}
	case hkStat:
		return &values.StatObj{
			Mode: rd.ReadUint64(), Ino: rd.ReadUint64(), Dev: rd.ReadUint64(),
			Nlink: rd.ReadUint64(), Uid: rd.ReadUint64(), Gid: rd.ReadUint64(),
			FileSize: rd.ReadInt64(),
			Atime: rd.ReadFloat64(), Mtime: rd.ReadFloat64(), Ctime: rd.ReadFloat64(),
		}
	case hkException:
		kindName := rd.ReadString()
		msg := rd.ReadString()
		cause := ReadValue(rd)
		n := rd.ReadInt()
		tb := make([]values.TracebackEntry, n)
		for i := range tb {
			tb[i] = values.TracebackEntry{
				File: rd.ReadString(), Line: rd.ReadInt(),
				FuncName: rd.ReadString(), Source: rd.ReadString(),
			}
		}
		return &values.ExceptionObj{ExcKind: kindName, Message: msg, Cause: cause, Traceback: tb}
	case hkRange:
		return &values.RangeObj{Start: rd.ReadInt64(), Stop: rd.ReadInt64(), Step: rd.ReadInt64()}
	case hkSlice:
		return &values.SliceObj{Start: ReadValue(rd), Stop: ReadValue(rd), Step: ReadValue(rd)}
	case hkIterator:
		src := ReadValue(rd)
		idx := rd.ReadInt()
		done := rd.ReadBool()
		return &values.IteratorObj{Source: src, Index: idx, Done: done}
	case hkFuture:
		return &values.FutureObj{CallID: rd.ReadUint64()}
	case hkPartialArgs:
		pos := ReadValues(rd)
		kwNames := rd.ReadStrings()
		kwValues := ReadValues(rd)
		return &values.PartialArgsObj{Positional: pos, KwNames: kwNames, KwValues: kwValues}
	case hkDataclass:
		name := rd.ReadString()
		n := rd.ReadInt()
		slots := make(map[string]values.Value, n)
		for i := 0; i < n; i++ {
			slotName := rd.ReadString()
			slots[slotName] = ReadValue(rd)
		}
		cls, ok := resolve(name)
		if !ok {
			rd.Fail(fmt.Errorf("monty: dataclass %q is not registered with this host; cannot decode", name))
			return nil
		}
		return &values.DataclassObj{
			InstanceObj:    values.InstanceObj{Class: cls, Slots: slots},
			RegisteredName: name,
		}
	case hkModule:
		return &values.ModuleObj{Name: rd.ReadString()}
	default:
		rd.Fail(fmt.Errorf("monty: unknown heap record tag %d", kind))
		return nil
	}
}

func readSetObj(rd *Reader, h *heap.Heap) *values.SetObj {
	n := rd.ReadInt()
	s := values.NewSetObj()
	for i := 0; i < n; i++ {
		v := ReadValue(rd)
		key, ok := values.HashKey(h, v)
		if !ok {
			key = nil
		}
		s.Add(key, v)
	}
	return s
}
