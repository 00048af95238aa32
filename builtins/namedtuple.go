package builtins

import (
	"strings"

	"github.com/scostello/monty-go/heap"
	"github.com/scostello/monty-go/registry"
	"github.com/scostello/monty-go/values"
)

// namedTupleMarkerCode mirrors interp's unexported markerCodeIndex sentinel
// (-1): a ClosureObj carrying this CodeIndex never points at real bytecode,
// it names a call interp resolves dynamically instead. The value has to be
// duplicated here rather than imported since builtins never imports interp.
const namedTupleMarkerCode = -1

// RegisterNamedTuple binds collections.namedtuple. Unlike the other module
// intrinsics, the value it returns isn't one of the fixed names in
// registry.Builtins: it's a fresh marker naming a type the caller just
// declared, which interp resolves against registry.NamedTupleRegistry
// (populated here) instead of the builtin table.
func RegisterNamedTuple(reg *registry.Builtins) {
	reg.Add("collections.namedtuple", biNamedTuple)
}

func biNamedTuple(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	if len(args) != 2 {
		return values.Value{}, ctx.Raise("TypeError", "namedtuple() takes exactly two positional arguments")
	}
	h := ctx.Heap()
	typeName := values.FormatStr(h, args[0])
	fields, err := namedTupleFieldNames(ctx, args[1])
	if err != nil {
		return values.Value{}, err
	}
	if regErr := ctx.NamedTuples().Register(typeName, fields); regErr != nil {
		return values.Value{}, ctx.Raise("TypeError", regErr.Error())
	}
	handle, err := h.Alloc(&values.ClosureObj{CodeIndex: namedTupleMarkerCode, Name: typeName}, ctx.Roots())
	if err != nil {
		return values.Value{}, err
	}
	return values.FromHandle(handle), nil
}

// namedTupleFieldNames accepts either an iterable of field-name strings or a
// single string of names separated by whitespace and/or commas, matching
// collections.namedtuple's own constructor.
func namedTupleFieldNames(ctx registry.BuiltinCallContext, v values.Value) ([]string, error) {
	h := ctx.Heap()
	if v.Tag == values.TagStr || v.IsBoxedKind(h, heap.KindString) {
		raw := values.FormatStr(h, v)
		raw = strings.ReplaceAll(raw, ",", " ")
		return strings.Fields(raw), nil
	}
	elems, err := materializeElemsRoots(h, ctx.Roots(), v)
	if err != nil {
		return nil, ctx.Raise("TypeError", "namedtuple() field_names must be a string or an iterable of strings")
	}
	out := make([]string, len(elems))
	for i, e := range elems {
		out[i] = values.FormatStr(h, e)
	}
	return out, nil
}
