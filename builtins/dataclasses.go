package builtins

import (
	"github.com/scostello/monty-go/heap"
	"github.com/scostello/monty-go/registry"
	"github.com/scostello/monty-go/values"
)

// RegisterDataclasses binds the dataclasses module's two names. The common
// `@dataclasses.dataclass` / `@dataclasses.dataclass(frozen=True)` form on a
// class statement is recognised syntactically by codegen, which emits
// MAKE_DATACLASS instead of BUILD_CLASS+CALL so the field list from the
// class body's annotations is available at construction time (ClassInfo has
// no annotation table to consult after the fact). These two builtins only
// cover the decorator used as an ordinary value.
func RegisterDataclasses(reg *registry.Builtins) {
	reg.Add("dataclasses.dataclass", biDataclassDecorator)
	reg.Add("dataclasses.field", biDataclassField)
}

// biDataclassDecorator marks an already-built ClassObj as a dataclass and
// registers it under its own name, for the decorator-called-as-a-value
// path (field layout is whatever MAKE_DATACLASS-equivalent codegen already
// attached; a class built via plain BUILD_CLASS and decorated afterwards
// has no fields to infer and is registered with none).
func biDataclassDecorator(ctx registry.BuiltinCallContext, args []values.Value, kwNames []string, kwValues []values.Value) (values.Value, error) {
	if len(args) != 1 || !args[0].IsBoxedKind(ctx.Heap(), heap.KindClass) {
		return values.Value{}, ctx.Raise("TypeError", "dataclasses.dataclass() argument must be a class")
	}
	cls := ctx.Heap().Get(args[0].Handle()).(*values.ClassObj)
	cls.Info.IsDataclass = true
	for i, name := range kwNames {
		if name == "frozen" {
			cls.Info.Frozen = values.Truthy(ctx.Heap(), kwValues[i])
		}
	}
	if err := ctx.Dataclasses().Register(cls.Info.Name, cls.Info); err != nil {
		return values.Value{}, ctx.Raise("TypeError", err.Error())
	}
	return args[0], nil
}

// biDataclassField implements dataclasses.field(default=...): returns the
// supplied default immediately, since a class body's field initialisers
// run once at MAKE_DATACLASS time in this engine, not per-instance.
// default_factory needs calling a closure per instance, which a builtin
// can't do without its own suspend/resume path, so it is rejected rather
// than silently producing a shared mutable default.
func biDataclassField(ctx registry.BuiltinCallContext, _ []values.Value, kwNames []string, kwValues []values.Value) (values.Value, error) {
	for i, name := range kwNames {
		if name == "default_factory" {
			return values.Value{}, ctx.Raise("NotImplementedError", "dataclasses.field(default_factory=...) is not supported")
		}
		if name == "default" {
			return kwValues[i], nil
		}
	}
	return values.None(), nil
}
