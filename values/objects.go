package values

import (
	"math/big"

	"github.com/scostello/monty-go/heap"
)

// StringObj boxes text longer than InlineLimit.
type StringObj struct{ S string }

func (o *StringObj) Kind() heap.Kind        { return heap.KindString }
func (o *StringObj) Size() int              { return 24 + len(o.S) }
func (o *StringObj) References() []heap.Handle { return nil }

// BytesObj boxes a byte-string longer than InlineLimit.
type BytesObj struct{ B []byte }

func (o *BytesObj) Kind() heap.Kind        { return heap.KindBytes }
func (o *BytesObj) Size() int              { return 24 + len(o.B) }
func (o *BytesObj) References() []heap.Handle { return nil }

// BigIntObj boxes an integer that overflows int64.
type BigIntObj struct{ Z *big.Int }

func (o *BigIntObj) Kind() heap.Kind        { return heap.KindBigInt }
func (o *BigIntObj) Size() int              { return 32 + len(o.Z.Bits())*8 }
func (o *BigIntObj) References() []heap.Handle { return nil }

// TupleObj is an immutable fixed-length sequence. TypeName is empty for an
// ordinary tuple; a non-empty TypeName marks it as a collections.namedtuple
// instance, whose field order is looked up by that name in a
// registry.NamedTupleRegistry rather than carried on every instance.
type TupleObj struct {
	Elems    []Value
	TypeName string
}

func (o *TupleObj) Kind() heap.Kind { return heap.KindTuple }
func (o *TupleObj) Size() int       { return 24 + 16*len(o.Elems) }
func (o *TupleObj) References() []heap.Handle { return handlesOf(o.Elems) }

// ListObj is a mutable, insertion-ordered sequence.
type ListObj struct{ Elems []Value }

func (o *ListObj) Kind() heap.Kind { return heap.KindList }
func (o *ListObj) Size() int       { return 24 + 16*len(o.Elems) }
func (o *ListObj) References() []heap.Handle { return handlesOf(o.Elems) }

// setEntry pairs a set/map member with its precomputed hash key so lookups
// don't need to recompute hashing (and so unhashable members can't sneak
// in — HashKey rejects containers).
type setEntry struct {
	key   interface{}
	value Value
}

// SetObj is a mutable, insertion-ordered set. Iteration order is stable but
// not semantically meaningful (spec.md §3/§9): tests must compare as sets.
type SetObj struct {
	entries []setEntry
	index   map[interface{}]int
}

func NewSetObj() *SetObj { return &SetObj{index: make(map[interface{}]int)} }

func (o *SetObj) Kind() heap.Kind { return heap.KindSet }
func (o *SetObj) Size() int       { return 32 + 24*len(o.entries) }
func (o *SetObj) References() []heap.Handle {
	vals := make([]Value, len(o.entries))
	for i, e := range o.entries {
		vals[i] = e.value
	}
	return handlesOf(vals)
}

func (o *SetObj) Len() int { return len(o.entries) }

func (o *SetObj) Has(key interface{}) bool {
	_, ok := o.index[key]
	return ok
}

func (o *SetObj) Add(key interface{}, v Value) {
	if _, ok := o.index[key]; ok {
		return
	}
	o.index[key] = len(o.entries)
	o.entries = append(o.entries, setEntry{key: key, value: v})
}

func (o *SetObj) Remove(key interface{}) bool {
	i, ok := o.index[key]
	if !ok {
		return false
	}
	delete(o.index, key)
	o.entries = append(o.entries[:i], o.entries[i+1:]...)
	for k, idx := range o.index {
		if idx > i {
			o.index[k] = idx - 1
		}
	}
	return true
}

func (o *SetObj) Values() []Value {
	out := make([]Value, len(o.entries))
	for i, e := range o.entries {
		out[i] = e.value
	}
	return out
}

// FrozenSetObj is SetObj's immutable counterpart; produced once and never
// mutated after construction.
type FrozenSetObj struct{ Set *SetObj }

func (o *FrozenSetObj) Kind() heap.Kind           { return heap.KindFrozenSet }
func (o *FrozenSetObj) Size() int                 { return o.Set.Size() }
func (o *FrozenSetObj) References() []heap.Handle { return o.Set.References() }

// MapObj is an insertion-ordered mapping (spec.md §3: "iteration order for
// mappings ... matches insertion order").
type MapObj struct {
	entries []setEntry
	index   map[interface{}]int
}

func NewMapObj() *MapObj { return &MapObj{index: make(map[interface{}]int)} }

func (o *MapObj) Kind() heap.Kind { return heap.KindMap }
func (o *MapObj) Size() int       { return 32 + 32*len(o.entries) }
func (o *MapObj) References() []heap.Handle {
	vals := make([]Value, 0, len(o.entries)*2)
	for _, e := range o.entries {
		vals = append(vals, e.value)
	}
	return handlesOf(vals)
}

func (o *MapObj) Len() int { return len(o.entries) }

func (o *MapObj) Get(key interface{}) (Value, bool) {
	i, ok := o.index[key]
	if !ok {
		return Value{}, false
	}
	return o.entries[i].value, true
}

// Put inserts or updates key -> value, preserving first-insertion order.
func (o *MapObj) Put(key interface{}, v Value) {
	if i, ok := o.index[key]; ok {
		o.entries[i].value = v
		return
	}
	o.index[key] = len(o.entries)
	o.entries = append(o.entries, setEntry{key: key, value: v})
}

func (o *MapObj) Delete(key interface{}) bool {
	i, ok := o.index[key]
	if !ok {
		return false
	}
	delete(o.index, key)
	o.entries = append(o.entries[:i], o.entries[i+1:]...)
	for k, idx := range o.index {
		if idx > i {
			o.index[k] = idx - 1
		}
	}
	return true
}

func (o *MapObj) Keys() []interface{} {
	out := make([]interface{}, len(o.entries))
	for i, e := range o.entries {
		out[i] = e.key
	}
	return out
}

func (o *MapObj) Entries() []struct {
	Key   interface{}
	Value Value
} {
	out := make([]struct {
		Key   interface{}
		Value Value
	}, len(o.entries))
	for i, e := range o.entries {
		out[i].Key, out[i].Value = e.key, e.value
	}
	return out
}

// ClosureObj is a user-defined function value: a reference to its code
// object plus the free-variable cells it closed over.
type ClosureObj struct {
	CodeIndex int // index into Program.Codes
	Name      string
	Free      []Value // captured cell values, by closure-variable slot order
}

func (o *ClosureObj) Kind() heap.Kind           { return heap.KindClosure }
func (o *ClosureObj) Size() int                 { return 32 + 16*len(o.Free) }
func (o *ClosureObj) References() []heap.Handle { return handlesOf(o.Free) }

// BoundMethodObj binds a receiver to a closure or class method.
type BoundMethodObj struct {
	Receiver Value
	Method   Value // a ClosureObj handle
}

func (o *BoundMethodObj) Kind() heap.Kind { return heap.KindBoundMethod }
func (o *BoundMethodObj) Size() int       { return 32 }
func (o *BoundMethodObj) References() []heap.Handle {
	return handlesOf([]Value{o.Receiver, o.Method})
}

// ClassInfo is shared, immutable per-class metadata. Instances point to it
// by pointer; it is never itself heap-accounted (it lives for the lifetime
// of the owning Program, alongside code objects).
type ClassInfo struct {
	Name       string
	Bases      []*ClassInfo
	Methods    map[string]int // name -> CodeIndex
	IsDataclass bool
	Frozen     bool
	Fields     []string // declared dataclass field order
}

// InstanceObj is a plain class instance: a class pointer plus a slot map.
type InstanceObj struct {
	Class *ClassInfo
	Slots map[string]Value
}

func (o *InstanceObj) Kind() heap.Kind { return heap.KindInstance }
func (o *InstanceObj) Size() int       { return 32 + 24*len(o.Slots) }
func (o *InstanceObj) References() []heap.Handle {
	vals := make([]Value, 0, len(o.Slots))
	for _, v := range o.Slots {
		vals = append(vals, v)
	}
	return handlesOf(vals)
}

// DataclassObj is an InstanceObj specialisation that additionally tracks the
// registered name under which the host's dataclass registry can serialise
// and reconstruct it across a Program/Snapshot boundary (spec.md §4.4).
type DataclassObj struct {
	InstanceObj
	RegisteredName string // empty if unregistered: opaque on the wire
}

func (o *DataclassObj) Kind() heap.Kind { return heap.KindDataclass }

// PathObj is a pure path value: string manipulation only, no I/O. Actual
// filesystem access on a Path happens through builtins that yield to the
// host (spec.md §6).
type PathObj struct{ P string }

func (o *PathObj) Kind() heap.Kind           { return heap.KindPath }
func (o *PathObj) Size() int                 { return 24 + len(o.P) }
func (o *PathObj) References() []heap.Handle { return nil }

// StatObj is the 10-field stat_result record returned by Path.stat().
// FileSize is st_size; the name avoids the heap.Object Size method.
type StatObj struct {
	Mode, Ino, Dev, Nlink, Uid, Gid uint64
	FileSize                        int64
	Atime, Mtime, Ctime             float64
}

func (o *StatObj) Kind() heap.Kind           { return heap.KindStat }
func (o *StatObj) Size() int                 { return 96 }
func (o *StatObj) References() []heap.Handle { return nil }

// ExceptionObj is a raised/propagating exception: a kind tag, message,
// optional cause, and an accumulated traceback.
type ExceptionObj struct {
	ExcKind   string // taxonomy name, see builtins.ExceptionKind
	Message   string
	Cause     Value // TagNone if absent
	Traceback []TracebackEntry
}

type TracebackEntry struct {
	File     string
	Line     int
	FuncName string
	Source   string
}

func (o *ExceptionObj) Kind() heap.Kind         { return heap.KindException }
func (o *ExceptionObj) Size() int               { return 48 + len(o.Message) + 64*len(o.Traceback) }
func (o *ExceptionObj) References() []heap.Handle { return handlesOf([]Value{o.Cause}) }

// RangeObj is Python's range(): three ints, no materialised elements.
type RangeObj struct{ Start, Stop, Step int64 }

func (o *RangeObj) Kind() heap.Kind           { return heap.KindRange }
func (o *RangeObj) Size() int                 { return 24 }
func (o *RangeObj) References() []heap.Handle { return nil }

// SliceObj is a slice literal a[start:stop:step]; any field may be "unset".
type SliceObj struct {
	Start, Stop, Step    Value
}

func (o *SliceObj) Kind() heap.Kind { return heap.KindSlice }
func (o *SliceObj) Size() int       { return 48 }
func (o *SliceObj) References() []heap.Handle {
	return handlesOf([]Value{o.Start, o.Stop, o.Step})
}

// IteratorObj is the live cursor produced by GET_ITER over any iterable.
type IteratorObj struct {
	Source Value
	Index  int  // for sequence/range iteration
	Done   bool
}

func (o *IteratorObj) Kind() heap.Kind           { return heap.KindIterator }
func (o *IteratorObj) Size() int                 { return 32 }
func (o *IteratorObj) References() []heap.Handle { return handlesOf([]Value{o.Source}) }

// FutureObj is the handle a script holds for a pending or completed external
// call; the Async Coordinator (asyncio package) owns the actual outcome
// table keyed by CallID.
type FutureObj struct {
	CallID uint64
}

func (o *FutureObj) Kind() heap.Kind           { return heap.KindFuture }
func (o *FutureObj) Size() int                 { return 16 }
func (o *FutureObj) References() []heap.Handle { return nil }

// PartialArgsObj records materialised positional/keyword arguments for a
// suspended call site, referenced by a Snapshot until it is resumed.
type PartialArgsObj struct {
	Positional []Value
	KwNames    []string
	KwValues   []Value
}

func (o *PartialArgsObj) Kind() heap.Kind { return heap.KindPartialArgs }
func (o *PartialArgsObj) Size() int {
	return 24 + 16*len(o.Positional) + 16*len(o.KwValues)
}
func (o *PartialArgsObj) References() []heap.Handle {
	return handlesOf(append(append([]Value(nil), o.Positional...), o.KwValues...))
}

// ClassObj is a first-class reference to a compiled class: calling it
// constructs a new InstanceObj/DataclassObj. Its ClassInfo is shared,
// immutable metadata (see ClassInfo's doc comment).
type ClassObj struct{ Info *ClassInfo }

func (o *ClassObj) Kind() heap.Kind           { return heap.KindClass }
func (o *ClassObj) Size() int                 { return 24 }
func (o *ClassObj) References() []heap.Handle { return nil }

// ModuleObj is an imported module binding: a fixed name resolved against the
// allow-listed module table (spec.md §4.1). Attribute access on it resolves
// to either a pure Go-computed value (e.g. typing.TYPE_CHECKING) or a marker
// closure naming an OS call (e.g. os.getenv), same as PathObj attribute
// access.
type ModuleObj struct{ Name string }

func (o *ModuleObj) Kind() heap.Kind           { return heap.KindModule }
func (o *ModuleObj) Size() int                 { return 24 + len(o.Name) }
func (o *ModuleObj) References() []heap.Handle { return nil }

func handlesOf(vals []Value) []heap.Handle {
	out := make([]heap.Handle, 0, len(vals))
	for _, v := range vals {
		if v.Tag == TagHandle && v.H != 0 {
			out = append(out, v.H)
		}
	}
	return out
}
