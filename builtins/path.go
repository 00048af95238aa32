package builtins

import (
	"path"

	"github.com/scostello/monty-go/heap"
	"github.com/scostello/monty-go/registry"
	"github.com/scostello/monty-go/values"
)

// RegisterPath binds pathlib.Path's constructor and the pure (string-only,
// no filesystem access) Path/os.path surface spec.md §6 and the original
// os_access.py shim both carry: anything that needs to see the real
// filesystem is instead listed in interp's isOSCallName and yielded to the
// host as a Snapshot, never registered here.
func RegisterPath(reg *registry.Builtins) {
	reg.Add("pathlib.Path", biPathNew)
	reg.Add("Path.with_suffix", biPathWithSuffix)
	reg.Add("Path.with_name", biPathWithName)
	reg.Add("Path.joinpath", biPathJoin)
	reg.Add("Path.as_posix", biPathAsPosix)
	reg.Add("Path.is_absolute", biPathIsAbsolute)
	reg.Add("os.path.join", biOSPathJoin)
	reg.Add("os.path.basename", biOSPathBasename)
	reg.Add("os.path.dirname", biOSPathDirname)
	reg.Add("os.path.splitext", biOSPathSplitext)
}

func pathArgOf(ctx registry.BuiltinCallContext, v values.Value) (string, bool) {
	h := ctx.Heap()
	if p, ok := h.Get(v.Handle()).(*values.PathObj); ok {
		return p.P, true
	}
	if v.Tag == values.TagStr || v.IsBoxedKind(h, heap.KindString) {
		return values.FormatStr(h, v), true
	}
	return "", false
}

func newPath(ctx registry.BuiltinCallContext, p string) (values.Value, error) {
	handle, err := ctx.Heap().Alloc(&values.PathObj{P: p}, ctx.Roots())
	if err != nil {
		return values.Value{}, err
	}
	return values.FromHandle(handle), nil
}

// biPathNew implements pathlib.Path(*parts): joins its arguments with "/"
// the way pathlib's constructor does, purely in Go.
func biPathNew(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	if len(args) == 0 {
		return newPath(ctx, ".")
	}
	parts := make([]string, 0, len(args))
	for _, a := range args {
		s, ok := pathArgOf(ctx, a)
		if !ok {
			return values.Value{}, ctx.Raise("TypeError", "argument should be a str or Path object")
		}
		parts = append(parts, s)
	}
	return newPath(ctx, path.Join(parts...))
}

func biPathWithSuffix(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	recv, ok := pathArgOf(ctx, args[0])
	if !ok || len(args) < 2 {
		return values.Value{}, ctx.Raise("TypeError", "Path.with_suffix(suffix) requires a path and a suffix")
	}
	suffix := values.FormatStr(ctx.Heap(), args[1])
	base := path.Base(recv)
	ext := path.Ext(base)
	trimmed := base[:len(base)-len(ext)]
	return newPath(ctx, path.Join(path.Dir(recv), trimmed+suffix))
}

func biPathWithName(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	recv, ok := pathArgOf(ctx, args[0])
	if !ok || len(args) < 2 {
		return values.Value{}, ctx.Raise("TypeError", "Path.with_name(name) requires a path and a name")
	}
	name := values.FormatStr(ctx.Heap(), args[1])
	return newPath(ctx, path.Join(path.Dir(recv), name))
}

func biPathJoin(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	if len(args) == 0 {
		return values.Value{}, ctx.Raise("TypeError", "Path.joinpath() requires a receiver")
	}
	recv, ok := pathArgOf(ctx, args[0])
	if !ok {
		return values.Value{}, ctx.Raise("TypeError", "argument should be a str or Path object")
	}
	parts := []string{recv}
	for _, a := range args[1:] {
		s, ok := pathArgOf(ctx, a)
		if !ok {
			return values.Value{}, ctx.Raise("TypeError", "argument should be a str or Path object")
		}
		parts = append(parts, s)
	}
	return newPath(ctx, path.Join(parts...))
}

func biPathAsPosix(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	recv, ok := pathArgOf(ctx, args[0])
	if !ok {
		return values.Value{}, ctx.Raise("TypeError", "argument should be a str or Path object")
	}
	return values.Str(ctx.Heap(), ctx.Roots(), recv)
}

func biPathIsAbsolute(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	recv, ok := pathArgOf(ctx, args[0])
	if !ok {
		return values.Value{}, ctx.Raise("TypeError", "argument should be a str or Path object")
	}
	return values.Bool(path.IsAbs(recv)), nil
}

func biOSPathJoin(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, values.FormatStr(ctx.Heap(), a))
	}
	return values.Str(ctx.Heap(), ctx.Roots(), path.Join(parts...))
}

func biOSPathBasename(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	if len(args) != 1 {
		return values.Value{}, ctx.Raise("TypeError", "basename() takes exactly one argument")
	}
	return values.Str(ctx.Heap(), ctx.Roots(), path.Base(values.FormatStr(ctx.Heap(), args[0])))
}

func biOSPathDirname(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	if len(args) != 1 {
		return values.Value{}, ctx.Raise("TypeError", "dirname() takes exactly one argument")
	}
	return values.Str(ctx.Heap(), ctx.Roots(), path.Dir(values.FormatStr(ctx.Heap(), args[0])))
}

func biOSPathSplitext(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	if len(args) != 1 {
		return values.Value{}, ctx.Raise("TypeError", "splitext() takes exactly one argument")
	}
	p := values.FormatStr(ctx.Heap(), args[0])
	ext := path.Ext(p)
	root := p[:len(p)-len(ext)]
	rootVal, err := values.Str(ctx.Heap(), ctx.Roots(), root)
	if err != nil {
		return values.Value{}, err
	}
	extVal, err := values.Str(ctx.Heap(), ctx.Roots(), ext)
	if err != nil {
		return values.Value{}, err
	}
	handle, err := ctx.Heap().Alloc(&values.TupleObj{Elems: []values.Value{rootVal, extVal}}, ctx.Roots())
	if err != nil {
		return values.Value{}, err
	}
	return values.FromHandle(handle), nil
}
