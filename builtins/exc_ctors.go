package builtins

import (
	"github.com/scostello/monty-go/registry"
	"github.com/scostello/monty-go/values"
)

// RegisterExceptions binds every taxonomy kind in ExcParent (plus the two
// roots, BaseException and Exception) as a callable global: the way a
// script raises a typed exception is `raise ValueError("message")`, which
// resolves ValueError to one of these the same way any other builtin name
// resolves, then calls it like any other global function (spec.md §4.4).
func RegisterExceptions(reg *registry.Builtins) {
	kinds := map[string]bool{"BaseException": true, "Exception": true}
	for kind := range ExcParent {
		kinds[kind] = true
	}
	for kind := range kinds {
		kind := kind
		reg.Add(kind, func(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
			return constructException(ctx, kind, args)
		})
	}
}

func constructException(ctx registry.BuiltinCallContext, kind string, args []values.Value) (values.Value, error) {
	msg := ""
	if len(args) > 0 {
		msg = values.FormatStr(ctx.Heap(), args[0])
	}
	handle, err := ctx.Heap().Alloc(&values.ExceptionObj{ExcKind: kind, Message: msg}, ctx.Roots())
	if err != nil {
		return values.Value{}, err
	}
	return values.FromHandle(handle), nil
}
