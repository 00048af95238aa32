// Package builtins implements the fixed set of global functions and
// marker-dispatched module intrinsics a Monty program can call: the Python
// subset's core builtins (len, str, isinstance, ...), the exception
// taxonomy's constructors, and the pure (non-OS-mediated) surface of
// pathlib/dataclasses. Everything that actually needs the host — file I/O,
// environment lookups, wall-clock sleep — is never registered here; it is
// resolved by interp as an OS call and handed to the host's Snapshot
// protocol instead.
package builtins

import (
	"fmt"
	"math"
	"math/big"
	"sort"

	"github.com/scostello/monty-go/heap"
	"github.com/scostello/monty-go/registry"
	"github.com/scostello/monty-go/values"
)

// Register populates reg with every builtin this package implements. Called
// once at process start; the resulting table is shared read-only by every
// Interpreter (registry.Builtins has no per-run state).
func Register(reg *registry.Builtins) {
	reg.Add("print", biPrint)
	reg.Add("len", biLen)
	reg.Add("str", biStr)
	reg.Add("repr", biRepr)
	reg.Add("int", biInt)
	reg.Add("float", biFloat)
	reg.Add("bool", biBool)
	reg.Add("list", biList)
	reg.Add("tuple", biTuple)
	reg.Add("dict", biDict)
	reg.Add("set", biSet)
	reg.Add("frozenset", biFrozenSet)
	reg.Add("range", biRange)
	reg.Add("type", biType)
	reg.Add("isinstance", biIsinstance)
	reg.Add("issubclass", biIssubclass)
	reg.Add("abs", biAbs)
	reg.Add("round", biRound)
	reg.Add("min", biMinMax(true))
	reg.Add("max", biMinMax(false))
	reg.Add("sum", biSum)
	reg.Add("sorted", biSorted)
	reg.Add("reversed", biReversed)
	reg.Add("enumerate", biEnumerate)
	reg.Add("zip", biZip)
	reg.Add("any", biAny)
	reg.Add("all", biAll)
	reg.Add("hasattr", biHasattr)
	reg.Add("getattr", biGetattr)

	RegisterExceptions(reg)
	RegisterPath(reg)
	RegisterAsyncio(reg)
	RegisterDataclasses(reg)
	RegisterNamedTuple(reg)
}

func biPrint(ctx registry.BuiltinCallContext, args []values.Value, _ []string, kwValues []values.Value) (values.Value, error) {
	s := ""
	for i, v := range args {
		if i > 0 {
			s += " "
		}
		s += values.FormatStr(ctx.Heap(), v)
	}
	ctx.Print(s)
	return values.None(), nil
}

func biLen(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	if len(args) != 1 {
		return values.Value{}, ctx.Raise("TypeError", "len() takes exactly one argument")
	}
	n, err := sequenceLen(ctx.Heap(), args[0])
	if err != nil {
		return values.Value{}, ctx.Raise("TypeError", err.Error())
	}
	return values.Int(int64(n)), nil
}

func sequenceLen(h *heap.Heap, v values.Value) (int, error) {
	if v.Tag == values.TagStr {
		return len([]rune(v.Text())), nil
	}
	if v.Tag == values.TagBytes {
		return len(v.Text()), nil
	}
	if !v.IsHandle() {
		return 0, fmt.Errorf("object of type '%s' has no len()", values.KindOf(h, v))
	}
	switch o := h.Get(v.Handle()).(type) {
	case *values.StringObj:
		return len([]rune(o.S)), nil
	case *values.BytesObj:
		return len(o.B), nil
	case *values.ListObj:
		return len(o.Elems), nil
	case *values.TupleObj:
		return len(o.Elems), nil
	case *values.SetObj:
		return o.Len(), nil
	case *values.FrozenSetObj:
		return o.Set.Len(), nil
	case *values.MapObj:
		return o.Len(), nil
	}
	return 0, fmt.Errorf("object of type '%s' has no len()", values.KindOf(h, v))
}

func biStr(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	if len(args) == 0 {
		return values.Str(ctx.Heap(), ctx.Roots(), "")
	}
	return values.Str(ctx.Heap(), ctx.Roots(), values.FormatStr(ctx.Heap(), args[0]))
}

func biRepr(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	if len(args) != 1 {
		return values.Value{}, ctx.Raise("TypeError", "repr() takes exactly one argument")
	}
	return values.Str(ctx.Heap(), ctx.Roots(), values.FormatRepr(ctx.Heap(), args[0]))
}

func biInt(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	if len(args) == 0 {
		return values.Int(0), nil
	}
	v := args[0]
	switch {
	case v.Tag == values.TagInt:
		return v, nil
	case v.Tag == values.TagFloat:
		return values.Int(int64(v.Float())), nil
	case v.Tag == values.TagBool:
		return values.Int(v.Int()), nil
	case v.IsBoxedKind(ctx.Heap(), heap.KindBigInt):
		return v, nil
	case v.Tag == values.TagStr || v.IsBoxedKind(ctx.Heap(), heap.KindString):
		s := values.FormatStr(ctx.Heap(), v)
		z, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return values.Value{}, ctx.Raise("ValueError", fmt.Sprintf("invalid literal for int() with base 10: %s", values.FormatRepr(ctx.Heap(), v)))
		}
		return values.IntFromBig(ctx.Heap(), ctx.Roots(), z)
	}
	return values.Value{}, ctx.Raise("TypeError", fmt.Sprintf("int() argument must be a string or a number, not '%s'", values.KindOf(ctx.Heap(), v)))
}

func biFloat(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	if len(args) == 0 {
		return values.Float(0), nil
	}
	v := args[0]
	switch {
	case v.Tag == values.TagFloat:
		return v, nil
	case v.Tag == values.TagInt:
		return values.Float(float64(v.Int())), nil
	case v.Tag == values.TagBool:
		return values.Float(float64(v.Int())), nil
	}
	return values.Value{}, ctx.Raise("TypeError", fmt.Sprintf("float() argument must be a string or a number, not '%s'", values.KindOf(ctx.Heap(), v)))
}

func biBool(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	if len(args) == 0 {
		return values.Bool(false), nil
	}
	return values.Bool(values.Truthy(ctx.Heap(), args[0])), nil
}

// materializeElemsRoots flattens any iterable Value into a slice, threading
// roots through so a re-materialised long dict key can box correctly
// instead of risking a nil Sweep callback under memory pressure.
func materializeElemsRoots(h *heap.Heap, roots heap.RootFunc, v values.Value) ([]values.Value, error) {
	if v.Tag == values.TagStr {
		runes := []rune(v.Text())
		out := make([]values.Value, len(runes))
		for i, r := range runes {
			out[i] = Value1(h, roots, string(r))
		}
		return out, nil
	}
	if !v.IsHandle() {
		return nil, fmt.Errorf("'%s' object is not iterable", values.KindOf(h, v))
	}
	switch o := h.Get(v.Handle()).(type) {
	case *values.StringObj:
		runes := []rune(o.S)
		out := make([]values.Value, len(runes))
		for i, r := range runes {
			out[i] = Value1(h, roots, string(r))
		}
		return out, nil
	case *values.ListObj:
		return append([]values.Value(nil), o.Elems...), nil
	case *values.TupleObj:
		return append([]values.Value(nil), o.Elems...), nil
	case *values.SetObj:
		return o.Values(), nil
	case *values.FrozenSetObj:
		return o.Set.Values(), nil
	case *values.MapObj:
		out := make([]values.Value, 0, o.Len())
		for _, k := range o.Keys() {
			out = append(out, keyToVal(h, roots, k))
		}
		return out, nil
	case *values.RangeObj:
		var out []values.Value
		for cur := o.Start; (o.Step > 0 && cur < o.Stop) || (o.Step < 0 && cur > o.Stop); cur += o.Step {
			out = append(out, values.Int(cur))
		}
		return out, nil
	}
	return nil, fmt.Errorf("'%s' object is not iterable", values.KindOf(h, v))
}

// Value1 boxes a short string without ever failing: used for splitting a
// string into its (always-short) single-character runes, where InlineLimit
// can never be exceeded.
func Value1(h *heap.Heap, roots heap.RootFunc, s string) values.Value {
	v, _ := values.Str(h, roots, s)
	return v
}

// keyToVal reconstructs a dict key produced by values.HashKey for the common
// immediate cases; good enough for list(dict)/set(dict) builtins, which only
// ever see the same keys a script itself inserted.
func keyToVal(h *heap.Heap, roots heap.RootFunc, key interface{}) values.Value {
	switch k := key.(type) {
	case string:
		if len(k) >= 2 && k[1] == ':' && k[0] == 's' {
			return Value1(h, roots, k[2:])
		}
		return Value1(h, roots, k)
	case bool:
		return values.Bool(k)
	case int64:
		return values.Int(k)
	case float64:
		return values.Float(k)
	}
	return values.None()
}

func biList(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	var elems []values.Value
	if len(args) == 1 {
		var err error
		elems, err = materializeElemsRoots(ctx.Heap(), ctx.Roots(), args[0])
		if err != nil {
			return values.Value{}, ctx.Raise("TypeError", err.Error())
		}
	}
	handle, err := ctx.Heap().Alloc(&values.ListObj{Elems: elems}, ctx.Roots())
	if err != nil {
		return values.Value{}, err
	}
	return values.FromHandle(handle), nil
}

func biTuple(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	var elems []values.Value
	if len(args) == 1 {
		var err error
		elems, err = materializeElemsRoots(ctx.Heap(), ctx.Roots(), args[0])
		if err != nil {
			return values.Value{}, ctx.Raise("TypeError", err.Error())
		}
	}
	handle, err := ctx.Heap().Alloc(&values.TupleObj{Elems: elems}, ctx.Roots())
	if err != nil {
		return values.Value{}, err
	}
	return values.FromHandle(handle), nil
}

func biSet(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	set := values.NewSetObj()
	if len(args) == 1 {
		elems, err := materializeElemsRoots(ctx.Heap(), ctx.Roots(), args[0])
		if err != nil {
			return values.Value{}, ctx.Raise("TypeError", err.Error())
		}
		for _, v := range elems {
			key, ok := values.HashKey(ctx.Heap(), v)
			if !ok {
				return values.Value{}, ctx.Raise("TypeError", fmt.Sprintf("unhashable type: '%s'", values.KindOf(ctx.Heap(), v)))
			}
			set.Add(key, v)
		}
	}
	handle, err := ctx.Heap().Alloc(set, ctx.Roots())
	if err != nil {
		return values.Value{}, err
	}
	return values.FromHandle(handle), nil
}

func biFrozenSet(ctx registry.BuiltinCallContext, args []values.Value, kwNames []string, kwValues []values.Value) (values.Value, error) {
	v, err := biSet(ctx, args, kwNames, kwValues)
	if err != nil {
		return values.Value{}, err
	}
	set := ctx.Heap().Get(v.Handle()).(*values.SetObj)
	handle, err := ctx.Heap().Alloc(&values.FrozenSetObj{Set: set}, ctx.Roots())
	if err != nil {
		return values.Value{}, err
	}
	return values.FromHandle(handle), nil
}

func biDict(ctx registry.BuiltinCallContext, args []values.Value, kwNames []string, kwValues []values.Value) (values.Value, error) {
	m := values.NewMapObj()
	if len(args) == 1 {
		pairs, err := materializeElemsRoots(ctx.Heap(), ctx.Roots(), args[0])
		if err != nil {
			return values.Value{}, ctx.Raise("TypeError", err.Error())
		}
		for _, pair := range pairs {
			if !pair.IsHandle() {
				return values.Value{}, ctx.Raise("TypeError", "dict() update sequence element must be a pair")
			}
			t, ok := ctx.Heap().Get(pair.Handle()).(*values.TupleObj)
			if !ok || len(t.Elems) != 2 {
				return values.Value{}, ctx.Raise("TypeError", "dict() update sequence element must be a pair")
			}
			key, ok := values.HashKey(ctx.Heap(), t.Elems[0])
			if !ok {
				return values.Value{}, ctx.Raise("TypeError", fmt.Sprintf("unhashable type: '%s'", values.KindOf(ctx.Heap(), t.Elems[0])))
			}
			m.Put(key, t.Elems[1])
		}
	}
	for i, name := range kwNames {
		key, _ := values.HashKey(ctx.Heap(), Value1(ctx.Heap(), ctx.Roots(), name))
		m.Put(key, kwValues[i])
	}
	handle, err := ctx.Heap().Alloc(m, ctx.Roots())
	if err != nil {
		return values.Value{}, err
	}
	return values.FromHandle(handle), nil
}

func biRange(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	var start, stop, step int64 = 0, 0, 1
	switch len(args) {
	case 1:
		stop = args[0].Int()
	case 2:
		start, stop = args[0].Int(), args[1].Int()
	case 3:
		start, stop, step = args[0].Int(), args[1].Int(), args[2].Int()
		if step == 0 {
			return values.Value{}, ctx.Raise("ValueError", "range() arg 3 must not be zero")
		}
	default:
		return values.Value{}, ctx.Raise("TypeError", "range expected 1 to 3 arguments")
	}
	handle, err := ctx.Heap().Alloc(&values.RangeObj{Start: start, Stop: stop, Step: step}, ctx.Roots())
	if err != nil {
		return values.Value{}, err
	}
	return values.FromHandle(handle), nil
}

// biType implements type(x): for instances of a user-defined class it
// returns the live ClassObj (so type(x) is x.__class__ and identity
// comparisons against the class work); for every builtin kind there is no
// class object to hand back, so it returns the same name isinstance()
// accepts as its second argument's marker name, rendered as "<class '...'>"
// text, matching repr(type(x)) without modelling a full metaclass.
func biType(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	if len(args) != 1 {
		return values.Value{}, ctx.Raise("TypeError", "type() takes exactly one argument")
	}
	v := args[0]
	if v.IsBoxedKind(ctx.Heap(), heap.KindInstance) {
		o := ctx.Heap().Get(v.Handle()).(*values.InstanceObj)
		handle, err := ctx.Heap().Alloc(&values.ClassObj{Info: o.Class}, ctx.Roots())
		if err != nil {
			return values.Value{}, err
		}
		return values.FromHandle(handle), nil
	}
	if v.IsBoxedKind(ctx.Heap(), heap.KindDataclass) {
		o := ctx.Heap().Get(v.Handle()).(*values.DataclassObj)
		handle, err := ctx.Heap().Alloc(&values.ClassObj{Info: o.Class}, ctx.Roots())
		if err != nil {
			return values.Value{}, err
		}
		return values.FromHandle(handle), nil
	}
	return values.Str(ctx.Heap(), ctx.Roots(), "<class '"+values.KindOf(ctx.Heap(), v)+"'>")
}

// builtinTypeNames maps a marker closure's recorded name to the KindOf
// string isinstance() compares against, for the handful of builtin type
// constructors (int, str, ...) that double as isinstance's second argument.
var builtinTypeNames = map[string]string{
	"int": "int", "float": "float", "str": "str", "bytes": "bytes",
	"bool": "bool", "list": "list", "tuple": "tuple", "dict": "dict",
	"set": "set", "frozenset": "frozenset",
}

func biIsinstance(ctx registry.BuiltinCallContext, args []values.Value, kwNames []string, kwValues []values.Value) (values.Value, error) {
	ok, err := isinstanceCheck(ctx, args, kwNames, kwValues)
	if err != nil {
		return values.Value{}, err
	}
	return values.Bool(ok), nil
}

func isinstanceCheck(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (bool, error) {
	if len(args) != 2 {
		return false, ctx.Raise("TypeError", "isinstance() takes exactly two arguments")
	}
	v, cls := args[0], args[1]
	h := ctx.Heap()
	if cls.IsBoxedKind(h, heap.KindClass) {
		target := h.Get(cls.Handle()).(*values.ClassObj).Info
		return isInstanceOfClass(h, v, target), nil
	}
	if cls.IsBoxedKind(h, heap.KindClosure) {
		name := h.Get(cls.Handle()).(*values.ClosureObj).Name
		if v.IsBoxedKind(h, heap.KindException) {
			kind := h.Get(v.Handle()).(*values.ExceptionObj).ExcKind
			return IsSubclass(kind, name), nil
		}
		if want, ok := builtinTypeNames[name]; ok {
			return values.KindOf(h, v) == want, nil
		}
	}
	return false, nil
}

func isInstanceOfClass(h *heap.Heap, v values.Value, target *values.ClassInfo) bool {
	var cls *values.ClassInfo
	if v.IsBoxedKind(h, heap.KindInstance) {
		cls = h.Get(v.Handle()).(*values.InstanceObj).Class
	} else if v.IsBoxedKind(h, heap.KindDataclass) {
		cls = h.Get(v.Handle()).(*values.DataclassObj).Class
	} else {
		return false
	}
	return classDescends(cls, target)
}

func classDescends(cls, target *values.ClassInfo) bool {
	if cls == target {
		return true
	}
	for _, base := range cls.Bases {
		if classDescends(base, target) {
			return true
		}
	}
	return false
}

func biIssubclass(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	if len(args) != 2 {
		return values.Value{}, ctx.Raise("TypeError", "issubclass() takes exactly two arguments")
	}
	h := ctx.Heap()
	a, b := args[0], args[1]
	if a.IsBoxedKind(h, heap.KindClosure) && b.IsBoxedKind(h, heap.KindClosure) {
		an := h.Get(a.Handle()).(*values.ClosureObj).Name
		bn := h.Get(b.Handle()).(*values.ClosureObj).Name
		return values.Bool(IsSubclass(an, bn)), nil
	}
	if a.IsBoxedKind(h, heap.KindClass) && b.IsBoxedKind(h, heap.KindClass) {
		ac := h.Get(a.Handle()).(*values.ClassObj).Info
		bc := h.Get(b.Handle()).(*values.ClassObj).Info
		return values.Bool(classDescends(ac, bc)), nil
	}
	return values.Bool(false), nil
}

func biAbs(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	if len(args) != 1 {
		return values.Value{}, ctx.Raise("TypeError", "abs() takes exactly one argument")
	}
	v := args[0]
	switch {
	case v.Tag == values.TagFloat:
		return values.Float(math.Abs(v.Float())), nil
	case v.Tag == values.TagInt:
		if v.Int() < 0 {
			return values.Int(-v.Int()), nil
		}
		return v, nil
	case v.IsBoxedKind(ctx.Heap(), heap.KindBigInt):
		z := ctx.Heap().Get(v.Handle()).(*values.BigIntObj).Z
		return values.IntFromBig(ctx.Heap(), ctx.Roots(), new(big.Int).Abs(z))
	}
	return values.Value{}, ctx.Raise("TypeError", fmt.Sprintf("bad operand type for abs(): '%s'", values.KindOf(ctx.Heap(), v)))
}

func biRound(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	if len(args) == 0 {
		return values.Value{}, ctx.Raise("TypeError", "round() takes at least one argument")
	}
	f, ok := toFloatLoose(args[0])
	if !ok {
		return values.Value{}, ctx.Raise("TypeError", fmt.Sprintf("type '%s' doesn't define __round__ method", values.KindOf(ctx.Heap(), args[0])))
	}
	if len(args) == 1 {
		return values.Int(int64(math.Round(f))), nil
	}
	ndigits := args[1].Int()
	mult := math.Pow(10, float64(ndigits))
	return values.Float(math.Round(f*mult) / mult), nil
}

func toFloatLoose(v values.Value) (float64, bool) {
	switch v.Tag {
	case values.TagFloat:
		return v.Float(), true
	case values.TagInt:
		return float64(v.Int()), true
	case values.TagBool:
		return float64(v.Int()), true
	}
	return 0, false
}

func biMinMax(wantMin bool) registry.BuiltinImplementation {
	return func(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
		elems := args
		if len(args) == 1 {
			var err error
			elems, err = materializeElemsRoots(ctx.Heap(), ctx.Roots(), args[0])
			if err != nil {
				return values.Value{}, ctx.Raise("TypeError", err.Error())
			}
		}
		if len(elems) == 0 {
			name := "max"
			if wantMin {
				name = "min"
			}
			return values.Value{}, ctx.Raise("ValueError", name+"() arg is an empty sequence")
		}
		best := elems[0]
		for _, v := range elems[1:] {
			cmp, err := values.Compare(ctx.Heap(), v, best)
			if err != nil {
				return values.Value{}, err
			}
			if (wantMin && cmp < 0) || (!wantMin && cmp > 0) {
				best = v
			}
		}
		return best, nil
	}
}

func biSum(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	if len(args) == 0 {
		return values.Value{}, ctx.Raise("TypeError", "sum() takes at least one argument")
	}
	elems, err := materializeElemsRoots(ctx.Heap(), ctx.Roots(), args[0])
	if err != nil {
		return values.Value{}, ctx.Raise("TypeError", err.Error())
	}
	total := values.Int(0)
	if len(args) > 1 {
		total = args[1]
	}
	for _, v := range elems {
		total, err = values.Add(ctx.Heap(), ctx.Roots(), total, v)
		if err != nil {
			return values.Value{}, err
		}
	}
	return total, nil
}

// biSorted implements sorted() for the no-key case plus reverse=True/False.
// A key= callback would need to call back into user bytecode mid-sort,
// which a synchronous Go builtin can't do without its own suspend/resume
// protocol; unlike map/filter (which codegen can desugar to an ordinary
// loop), an in-place sort comparator can't be expressed as a linear bytecode
// sequence, so key= is left unsupported and documented rather than faked.
func biSorted(ctx registry.BuiltinCallContext, args []values.Value, kwNames []string, kwValues []values.Value) (values.Value, error) {
	if len(args) != 1 {
		return values.Value{}, ctx.Raise("TypeError", "sorted() takes exactly one argument")
	}
	for _, name := range kwNames {
		if name == "key" {
			return values.Value{}, ctx.Raise("NotImplementedError", "sorted(key=...) is not supported")
		}
	}
	elems, err := materializeElemsRoots(ctx.Heap(), ctx.Roots(), args[0])
	if err != nil {
		return values.Value{}, ctx.Raise("TypeError", err.Error())
	}
	out := append([]values.Value(nil), elems...)
	var sortErr error
	sort.SliceStable(out, func(i, j int) bool {
		cmp, err := values.Compare(ctx.Heap(), out[i], out[j])
		if err != nil {
			sortErr = err
		}
		return cmp < 0
	})
	if sortErr != nil {
		return values.Value{}, sortErr
	}
	reverse := false
	for i, name := range kwNames {
		if name == "reverse" {
			reverse = values.Truthy(ctx.Heap(), kwValues[i])
		}
	}
	if reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	handle, err := ctx.Heap().Alloc(&values.ListObj{Elems: out}, ctx.Roots())
	if err != nil {
		return values.Value{}, err
	}
	return values.FromHandle(handle), nil
}

func biReversed(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	if len(args) != 1 {
		return values.Value{}, ctx.Raise("TypeError", "reversed() takes exactly one argument")
	}
	elems, err := materializeElemsRoots(ctx.Heap(), ctx.Roots(), args[0])
	if err != nil {
		return values.Value{}, ctx.Raise("TypeError", err.Error())
	}
	out := make([]values.Value, len(elems))
	for i, v := range elems {
		out[len(elems)-1-i] = v
	}
	handle, err := ctx.Heap().Alloc(&values.ListObj{Elems: out}, ctx.Roots())
	if err != nil {
		return values.Value{}, err
	}
	return values.FromHandle(handle), nil
}

func biEnumerate(ctx registry.BuiltinCallContext, args []values.Value, kwNames []string, kwValues []values.Value) (values.Value, error) {
	if len(args) == 0 {
		return values.Value{}, ctx.Raise("TypeError", "enumerate() takes at least one argument")
	}
	start := int64(0)
	for i, name := range kwNames {
		if name == "start" {
			start = kwValues[i].Int()
		}
	}
	if len(args) > 1 {
		start = args[1].Int()
	}
	elems, err := materializeElemsRoots(ctx.Heap(), ctx.Roots(), args[0])
	if err != nil {
		return values.Value{}, ctx.Raise("TypeError", err.Error())
	}
	out := make([]values.Value, len(elems))
	for i, v := range elems {
		handle, err := ctx.Heap().Alloc(&values.TupleObj{Elems: []values.Value{values.Int(start + int64(i)), v}}, ctx.Roots())
		if err != nil {
			return values.Value{}, err
		}
		out[i] = values.FromHandle(handle)
	}
	handle, err := ctx.Heap().Alloc(&values.ListObj{Elems: out}, ctx.Roots())
	if err != nil {
		return values.Value{}, err
	}
	return values.FromHandle(handle), nil
}

func biZip(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	if len(args) == 0 {
		handle, err := ctx.Heap().Alloc(&values.ListObj{}, ctx.Roots())
		if err != nil {
			return values.Value{}, err
		}
		return values.FromHandle(handle), nil
	}
	seqs := make([][]values.Value, len(args))
	n := -1
	for i, a := range args {
		elems, err := materializeElemsRoots(ctx.Heap(), ctx.Roots(), a)
		if err != nil {
			return values.Value{}, ctx.Raise("TypeError", err.Error())
		}
		seqs[i] = elems
		if n == -1 || len(elems) < n {
			n = len(elems)
		}
	}
	out := make([]values.Value, n)
	for i := 0; i < n; i++ {
		row := make([]values.Value, len(seqs))
		for j := range seqs {
			row[j] = seqs[j][i]
		}
		handle, err := ctx.Heap().Alloc(&values.TupleObj{Elems: row}, ctx.Roots())
		if err != nil {
			return values.Value{}, err
		}
		out[i] = values.FromHandle(handle)
	}
	handle, err := ctx.Heap().Alloc(&values.ListObj{Elems: out}, ctx.Roots())
	if err != nil {
		return values.Value{}, err
	}
	return values.FromHandle(handle), nil
}

func biAny(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	if len(args) != 1 {
		return values.Value{}, ctx.Raise("TypeError", "any() takes exactly one argument")
	}
	elems, err := materializeElemsRoots(ctx.Heap(), ctx.Roots(), args[0])
	if err != nil {
		return values.Value{}, ctx.Raise("TypeError", err.Error())
	}
	for _, v := range elems {
		if values.Truthy(ctx.Heap(), v) {
			return values.Bool(true), nil
		}
	}
	return values.Bool(false), nil
}

func biAll(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	if len(args) != 1 {
		return values.Value{}, ctx.Raise("TypeError", "all() takes exactly one argument")
	}
	elems, err := materializeElemsRoots(ctx.Heap(), ctx.Roots(), args[0])
	if err != nil {
		return values.Value{}, ctx.Raise("TypeError", err.Error())
	}
	for _, v := range elems {
		if !values.Truthy(ctx.Heap(), v) {
			return values.Bool(false), nil
		}
	}
	return values.Bool(true), nil
}

func biHasattr(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	if len(args) != 2 {
		return values.Value{}, ctx.Raise("TypeError", "hasattr() takes exactly two arguments")
	}
	_, err := biGetattr(ctx, args, nil, nil)
	return values.Bool(err == nil), nil
}

func biGetattr(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	if len(args) < 2 {
		return values.Value{}, ctx.Raise("TypeError", "getattr() takes at least two arguments")
	}
	v, o := args[0], args[1]
	if !o.IsHandle() && o.Tag != values.TagStr {
		return values.Value{}, ctx.Raise("TypeError", "getattr() attribute name must be a string")
	}
	name := values.FormatStr(ctx.Heap(), o)
	if !v.IsHandle() {
		if len(args) > 2 {
			return args[2], nil
		}
		return values.Value{}, ctx.Raise("AttributeError", fmt.Sprintf("'%s' object has no attribute '%s'", values.KindOf(ctx.Heap(), v), name))
	}
	switch obj := ctx.Heap().Get(v.Handle()).(type) {
	case *values.InstanceObj:
		if val, ok := obj.Slots[name]; ok {
			return val, nil
		}
	case *values.DataclassObj:
		if val, ok := obj.Slots[name]; ok {
			return val, nil
		}
	}
	if len(args) > 2 {
		return args[2], nil
	}
	return values.Value{}, ctx.Raise("AttributeError", fmt.Sprintf("'%s' object has no attribute '%s'", values.KindOf(ctx.Heap(), v), name))
}
