package values

import (
	"strconv"
	"strings"

	"github.com/scostello/monty-go/heap"
)

// Str renders v the way Python's str() does: readable form, no quoting for
// top-level strings.
func FormatStr(h *heap.Heap, v Value) string {
	if v.Tag == TagStr || v.IsBoxedKind(h, heap.KindString) {
		return textOf(h, v)
	}
	return FormatRepr(h, v)
}

// Repr renders v the way Python's repr() does: quoted strings, canonical
// container syntax, used for nested elements and debugging output.
func FormatRepr(h *heap.Heap, v Value) string {
	switch v.Tag {
	case TagNone:
		return "None"
	case TagBool:
		if v.Bool() {
			return "True"
		}
		return "False"
	case TagInt:
		return strconv.FormatInt(v.i, 10)
	case TagFloat:
		return formatFloat(v.f)
	case TagStr:
		return quoteStr(v.s)
	case TagBytes:
		return "b" + quoteStr(v.s)
	case TagHandle:
		return reprHandle(h, v)
	}
	return "<?>"
}

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") && !strings.Contains(s, "inf") && !strings.Contains(s, "nan") {
		s += ".0"
	}
	return s
}

func quoteStr(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\'':
			b.WriteString(`\'`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

func reprHandle(h *heap.Heap, v Value) string {
	obj := h.Get(v.H)
	if obj == nil {
		return "<dead>"
	}
	switch o := obj.(type) {
	case *StringObj:
		return quoteStr(o.S)
	case *BytesObj:
		return "b" + quoteStr(string(o.B))
	case *BigIntObj:
		return o.Z.String()
	case *TupleObj:
		parts := make([]string, len(o.Elems))
		for i, e := range o.Elems {
			parts[i] = FormatRepr(h, e)
		}
		if len(parts) == 1 {
			return "(" + parts[0] + ",)"
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case *ListObj:
		parts := make([]string, len(o.Elems))
		for i, e := range o.Elems {
			parts[i] = FormatRepr(h, e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *SetObj:
		if o.Len() == 0 {
			return "set()"
		}
		parts := make([]string, 0, o.Len())
		for _, e := range o.Values() {
			parts = append(parts, FormatRepr(h, e))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *FrozenSetObj:
		parts := make([]string, 0, o.Set.Len())
		for _, e := range o.Set.Values() {
			parts = append(parts, FormatRepr(h, e))
		}
		return "frozenset({" + strings.Join(parts, ", ") + "})"
	case *MapObj:
		parts := make([]string, 0, o.Len())
		for _, e := range o.Entries() {
			parts = append(parts, FormatRepr(h, e.Value))
		}
		_ = parts
		return formatMap(h, o)
	case *RangeObj:
		if o.Step == 1 {
			return "range(" + strconv.FormatInt(o.Start, 10) + ", " + strconv.FormatInt(o.Stop, 10) + ")"
		}
		return "range(" + strconv.FormatInt(o.Start, 10) + ", " + strconv.FormatInt(o.Stop, 10) + ", " + strconv.FormatInt(o.Step, 10) + ")"
	case *PathObj:
		return "Path(" + quoteStr(o.P) + ")"
	case *ExceptionObj:
		return o.ExcKind + "(" + quoteStr(o.Message) + ")"
	case *ClosureObj:
		return "<function " + o.Name + ">"
	case *BoundMethodObj:
		return "<bound method>"
	case *InstanceObj:
		return instanceRepr(h, o)
	case *DataclassObj:
		return instanceRepr(h, &o.InstanceObj)
	case *FutureObj:
		return "<future>"
	case *IteratorObj:
		return "<iterator>"
	case *ModuleObj:
		return "<module '" + o.Name + "'>"
	case *ClassObj:
		return "<class '" + o.Info.Name + "'>"
	default:
		return "<" + obj.Kind().String() + ">"
	}
}

func formatMap(h *heap.Heap, o *MapObj) string {
	parts := make([]string, 0, o.Len())
	for _, e := range o.Entries() {
		parts = append(parts, reprHashKey(e.Key)+": "+FormatRepr(h, e.Value))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// reprHashKey renders a HashKey()-produced key back to something readable.
// Keys are tagged by HashKey ("s:", "b:", "z:") or are plain Go scalars.
func reprHashKey(key interface{}) string {
	switch k := key.(type) {
	case string:
		if strings.HasPrefix(k, "s:") {
			return quoteStr(k[2:])
		}
		if strings.HasPrefix(k, "b:") {
			return "b" + quoteStr(k[2:])
		}
		if strings.HasPrefix(k, "z:") {
			return k[2:]
		}
		return quoteStr(k)
	case bool:
		if k {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(k, 10)
	case float64:
		return formatFloat(k)
	case nil:
		return "None"
	default:
		return "?"
	}
}

func instanceRepr(h *heap.Heap, o *InstanceObj) string {
	if o.Class == nil {
		return "<instance>"
	}
	if !o.Class.IsDataclass {
		return "<" + o.Class.Name + " object>"
	}
	parts := make([]string, 0, len(o.Class.Fields))
	for _, f := range o.Class.Fields {
		if v, ok := o.Slots[f]; ok {
			parts = append(parts, f+"="+FormatRepr(h, v))
		}
	}
	return o.Class.Name + "(" + strings.Join(parts, ", ") + ")"
}
