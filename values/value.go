// Package values implements Monty's tagged value representation: primitive
// immediates stored inline, and handles into a caller-supplied heap.Heap for
// everything boxed. Copying a Value never copies boxed payloads; reference
// semantics for containers fall out of the handle indirection.
package values

import "github.com/scostello/monty-go/heap"

// Tag identifies what a Value holds.
type Tag byte

const (
	TagNone Tag = iota
	TagBool
	TagInt   // fits in int64; wider integers box as heap.KindBigInt
	TagFloat
	TagStr   // immediate short text, len(s) <= InlineLimit
	TagBytes // immediate short byte-string, len(s) <= InlineLimit
	TagHandle
)

// InlineLimit is the longest text/byte-string payload kept as a Value
// immediate rather than boxed on the heap and charged against its budget.
// Chosen to match common small-string-optimisation thresholds. The
// serialisation envelope keeps the distinction: an immediate string is
// written inline as a value record, a boxed one as a heap string record.
const InlineLimit = 32

// Value is Monty's tagged union. Copying a Value is always cheap: boxed data
// lives behind a heap.Handle, immediates are plain scalars/short strings.
type Value struct {
	Tag Tag
	i   int64
	f   float64
	s   string
	H   heap.Handle
}

func None() Value           { return Value{Tag: TagNone} }
func Bool(b bool) Value     { return Value{Tag: TagBool, i: boolToInt(b)} }
func Int(i int64) Value     { return Value{Tag: TagInt, i: i} }
func Float(f float64) Value { return Value{Tag: TagFloat, f: f} }

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// Str returns an immediate string Value if s is short enough, otherwise
// boxes it on h as a heap.KindString object.
func Str(h *heap.Heap, roots heap.RootFunc, s string) (Value, error) {
	if len(s) <= InlineLimit {
		return Value{Tag: TagStr, s: s}, nil
	}
	obj := &StringObj{S: s}
	handle, err := h.Alloc(obj, roots)
	if err != nil {
		return Value{}, err
	}
	return Value{Tag: TagHandle, H: handle}, nil
}

// Bytes returns an immediate byte-string Value if b is short enough,
// otherwise boxes it as heap.KindBytes.
func Bytes(h *heap.Heap, roots heap.RootFunc, b []byte) (Value, error) {
	if len(b) <= InlineLimit {
		return Value{Tag: TagBytes, s: string(b)}, nil
	}
	obj := &BytesObj{B: append([]byte(nil), b...)}
	handle, err := h.Alloc(obj, roots)
	if err != nil {
		return Value{}, err
	}
	return Value{Tag: TagHandle, H: handle}, nil
}

// FromHandle wraps an existing heap allocation (used by every container
// constructor in objects.go).
func FromHandle(handle heap.Handle) Value {
	return Value{Tag: TagHandle, H: handle}
}

// ImmediateStr/ImmediateBytes construct an inline string/byte-string Value
// without consulting InlineLimit or a heap, for callers (the serialisation
// envelope) that already know the payload was inline when it was written.
func ImmediateStr(s string) Value   { return Value{Tag: TagStr, s: s} }
func ImmediateBytes(b []byte) Value { return Value{Tag: TagBytes, s: string(b)} }

// Handle returns v's heap handle. Only meaningful when v.IsHandle().
func (v Value) Handle() heap.Handle { return v.H }

func (v Value) IsNone() bool   { return v.Tag == TagNone }
func (v Value) IsBool() bool   { return v.Tag == TagBool }
func (v Value) IsFloat() bool  { return v.Tag == TagFloat }
func (v Value) IsHandle() bool { return v.Tag == TagHandle }

func (v Value) Bool() bool     { return v.i != 0 }
func (v Value) Int() int64     { return v.i }
func (v Value) Float() float64 { return v.f }

// Text returns the string payload for an immediate TagStr/TagBytes Value.
// Boxed strings must be read via heap.Get + StringObj/BytesObj.
func (v Value) Text() string { return v.s }

// IsBoxedKind reports whether v is a TagHandle Value whose heap object has
// the given kind. h may be nil only if v is known not to be TagHandle.
func (v Value) IsBoxedKind(h *heap.Heap, kind heap.Kind) bool {
	if v.Tag != TagHandle || h == nil {
		return false
	}
	obj := h.Get(v.H)
	return obj != nil && obj.Kind() == kind
}

// IsInt reports whether v holds an integer, immediate or boxed big.Int.
func (v Value) IsInt(h *heap.Heap) bool {
	return v.Tag == TagInt || v.IsBoxedKind(h, heap.KindBigInt)
}

// KindOf reports a value's effective kind name, resolving boxed values
// through the heap. Used by type(), isinstance(), repr, and error messages.
func KindOf(h *heap.Heap, v Value) string {
	switch v.Tag {
	case TagNone:
		return "NoneType"
	case TagBool:
		return "bool"
	case TagInt:
		return "int"
	case TagFloat:
		return "float"
	case TagStr:
		return "str"
	case TagBytes:
		return "bytes"
	case TagHandle:
		if obj := h.Get(v.H); obj != nil {
			if obj.Kind() == heap.KindBigInt {
				return "int"
			}
			return obj.Kind().String()
		}
	}
	return "object"
}
