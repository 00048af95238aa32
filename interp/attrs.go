package interp

import (
	"path"
	"strings"

	"github.com/scostello/monty-go/values"
)

// pathAttr resolves the Path attributes computable without touching the host
// filesystem, per spec.md §6's split between pure Path surface and
// OS-mediated methods (isOSCallName covers the latter).
func (in *Interpreter) pathAttr(p *values.PathObj, name string) (values.Value, bool, error) {
	switch name {
	case "name":
		v, err := values.Str(in.Heap, in.roots, path.Base(p.P))
		return v, true, err
	case "suffix":
		ext := path.Ext(path.Base(p.P))
		v, err := values.Str(in.Heap, in.roots, ext)
		return v, true, err
	case "stem":
		base := path.Base(p.P)
		ext := path.Ext(base)
		v, err := values.Str(in.Heap, in.roots, strings.TrimSuffix(base, ext))
		return v, true, err
	case "parent":
		handle, err := in.Heap.Alloc(&values.PathObj{P: path.Dir(p.P)}, in.roots)
		if err != nil {
			return values.Value{}, true, err
		}
		return values.FromHandle(handle), true, nil
	case "parts":
		segments := strings.Split(strings.Trim(p.P, "/"), "/")
		elems := make([]values.Value, 0, len(segments))
		for _, s := range segments {
			if s == "" {
				continue
			}
			v, err := values.Str(in.Heap, in.roots, s)
			if err != nil {
				return values.Value{}, true, err
			}
			elems = append(elems, v)
		}
		handle, err := in.Heap.Alloc(&values.TupleObj{Elems: elems}, in.roots)
		if err != nil {
			return values.Value{}, true, err
		}
		return values.FromHandle(handle), true, nil
	}
	return values.Value{}, false, nil
}

// attrGet implements ATTR_GET across every receiver kind: pure Path
// attributes and methods, module member lookup, instance/dataclass slots,
// and bound-method construction for class methods.
func (in *Interpreter) attrGet(recv values.Value, name string) (values.Value, error) {
	if !recv.IsHandle() {
		switch recv.Tag {
		case values.TagStr:
			return in.kindMethod(recv, "str", name)
		case values.TagBytes:
			return in.kindMethod(recv, "bytes", name)
		}
		return values.Value{}, scriptErrorf("AttributeError", "'%s' object has no attribute '%s'", values.KindOf(in.Heap, recv), name)
	}
	switch o := in.Heap.Get(recv.Handle()).(type) {
	case *values.PathObj:
		if v, ok, err := in.pathAttr(o, name); ok {
			return v, err
		}
		return in.boundMarker(recv, "Path."+name)
	case *values.ModuleObj:
		return in.moduleAttr(o.Name, name)
	case *values.InstanceObj:
		return in.instanceAttr(recv, o, name)
	case *values.DataclassObj:
		return in.instanceAttr(recv, &o.InstanceObj, name)
	case *values.StringObj:
		return in.kindMethod(recv, "str", name)
	case *values.BytesObj:
		return in.kindMethod(recv, "bytes", name)
	case *values.ListObj:
		return in.kindMethod(recv, "list", name)
	case *values.MapObj:
		return in.kindMethod(recv, "dict", name)
	case *values.SetObj:
		return in.kindMethod(recv, "set", name)
	case *values.TupleObj:
		if o.TypeName != "" {
			if fields, ok := in.NamedTuples.Lookup(o.TypeName); ok {
				for i, f := range fields {
					if f == name {
						return o.Elems[i], nil
					}
				}
			}
			return values.Value{}, scriptErrorf("AttributeError", "'%s' object has no attribute '%s'", o.TypeName, name)
		}
		return in.kindMethod(recv, "tuple", name)
	case *values.StatObj:
		return in.statAttr(o, name)
	case *values.ExceptionObj:
		switch name {
		case "args":
			v, err := values.Str(in.Heap, in.roots, o.Message)
			if err != nil {
				return values.Value{}, err
			}
			handle, err := in.Heap.Alloc(&values.TupleObj{Elems: []values.Value{v}}, in.roots)
			if err != nil {
				return values.Value{}, err
			}
			return values.FromHandle(handle), nil
		}
	}
	return values.Value{}, scriptErrorf("AttributeError", "'%s' object has no attribute '%s'", values.KindOf(in.Heap, recv), name)
}

// statAttr resolves the st_* named accessors of a stat record (spec.md §6:
// 10-tuples with named field accessors).
func (in *Interpreter) statAttr(o *values.StatObj, name string) (values.Value, error) {
	switch name {
	case "st_mode":
		return values.Int(int64(o.Mode)), nil
	case "st_ino":
		return values.Int(int64(o.Ino)), nil
	case "st_dev":
		return values.Int(int64(o.Dev)), nil
	case "st_nlink":
		return values.Int(int64(o.Nlink)), nil
	case "st_uid":
		return values.Int(int64(o.Uid)), nil
	case "st_gid":
		return values.Int(int64(o.Gid)), nil
	case "st_size":
		return values.Int(o.FileSize), nil
	case "st_atime":
		return values.Float(o.Atime), nil
	case "st_mtime":
		return values.Float(o.Mtime), nil
	case "st_ctime":
		return values.Float(o.Ctime), nil
	}
	return values.Value{}, scriptErrorf("AttributeError", "'os.stat_result' object has no attribute '%s'", name)
}

// kindMethod resolves a method on a built-in kind through the fixed
// per-kind table (spec.md §4.1): "<kind>.<name>" must be registered in the
// builtin table, otherwise the attribute doesn't exist at all.
func (in *Interpreter) kindMethod(recv values.Value, kind, name string) (values.Value, error) {
	qualified := kind + "." + name
	if _, ok := in.Builtins.Lookup(qualified); !ok {
		return values.Value{}, scriptErrorf("AttributeError", "'%s' object has no attribute '%s'", kind, name)
	}
	return in.boundMarker(recv, qualified)
}

// boundMarker wraps name as a marker closure bound to recv so CALL's
// receiver-prepending path (callValue's BoundMethodObj case) supplies recv
// as the leading argument of the eventual OS call.
func (in *Interpreter) boundMarker(recv values.Value, name string) (values.Value, error) {
	marker, ok := in.markerValue(name)
	if !ok {
		return values.Value{}, scriptErrorf("MemoryError", "allocation failed binding %s", name)
	}
	handle, err := in.Heap.Alloc(&values.BoundMethodObj{Receiver: recv, Method: marker}, in.roots)
	if err != nil {
		return values.Value{}, err
	}
	return values.FromHandle(handle), nil
}

// moduleAttr resolves a member of one of the fixed allow-listed modules
// (spec.md §4.1). typing.TYPE_CHECKING is always False at runtime: the
// engine never runs under a type-checker, so code gated on it executes
// only its non-checking branch.
func (in *Interpreter) moduleAttr(module, name string) (values.Value, error) {
	switch module {
	case "typing":
		if name == "TYPE_CHECKING" {
			return values.Bool(false), nil
		}
	case "sys":
		if name == "argv" {
			handle, err := in.Heap.Alloc(&values.ListObj{}, in.roots)
			if err != nil {
				return values.Value{}, err
			}
			return values.FromHandle(handle), nil
		}
	case "os":
		if name == "getenv" || name == "environ" {
			return in.markerValueOrErr("os." + name)
		}
		if name == "path" {
			handle, err := in.Heap.Alloc(&values.ModuleObj{Name: "os.path"}, in.roots)
			if err != nil {
				return values.Value{}, err
			}
			return values.FromHandle(handle), nil
		}
	case "os.path":
		switch name {
		case "join", "basename", "dirname", "splitext":
			return in.markerValueOrErr("os.path." + name)
		case "exists":
			return in.markerValueOrErr("os.path.exists")
		}
	case "pathlib":
		if name == "Path" {
			return in.markerValueOrErr("pathlib.Path")
		}
	case "asyncio":
		if name == "gather" || name == "wait" || name == "sleep" || name == "run" {
			return in.markerValueOrErr("asyncio." + name)
		}
	case "dataclasses":
		if name == "dataclass" || name == "field" {
			return in.markerValueOrErr("dataclasses." + name)
		}
	case "collections":
		if name == "namedtuple" {
			return in.markerValueOrErr("collections.namedtuple")
		}
	}
	return values.Value{}, scriptErrorf("AttributeError", "module '%s' has no attribute '%s'", module, name)
}

func (in *Interpreter) markerValueOrErr(name string) (values.Value, error) {
	v, ok := in.markerValue(name)
	if !ok {
		return values.Value{}, scriptErrorf("MemoryError", "allocation failed binding %s", name)
	}
	return v, nil
}

func (in *Interpreter) instanceAttr(recv values.Value, o *values.InstanceObj, name string) (values.Value, error) {
	if v, ok := o.Slots[name]; ok {
		return v, nil
	}
	if o.Class != nil {
		if codeIdx, ok := lookupMethod(o.Class, name); ok {
			handle, err := in.Heap.Alloc(&values.ClosureObj{CodeIndex: codeIdx, Name: name}, in.roots)
			if err != nil {
				return values.Value{}, err
			}
			return in.boundMarkerClosure(recv, values.FromHandle(handle))
		}
	}
	return values.Value{}, scriptErrorf("AttributeError", "'%s' object has no attribute '%s'", o.Class.Name, name)
}

func (in *Interpreter) boundMarkerClosure(recv, method values.Value) (values.Value, error) {
	handle, err := in.Heap.Alloc(&values.BoundMethodObj{Receiver: recv, Method: method}, in.roots)
	if err != nil {
		return values.Value{}, err
	}
	return values.FromHandle(handle), nil
}

func lookupMethod(cls *values.ClassInfo, name string) (int, bool) {
	for c := cls; c != nil; {
		if idx, ok := c.Methods[name]; ok {
			return idx, true
		}
		if len(c.Bases) == 0 {
			break
		}
		c = c.Bases[0]
	}
	return 0, false
}

// attrSet implements ATTR_SET: plain instance slot assignment, rejecting
// writes to a frozen dataclass's fields (spec.md §4.4 FrozenInstanceError
// edge cases).
func (in *Interpreter) attrSet(recv values.Value, name string, val values.Value) error {
	if !recv.IsHandle() {
		return scriptErrorf("AttributeError", "'%s' object has no attribute '%s'", values.KindOf(in.Heap, recv), name)
	}
	switch o := in.Heap.Get(recv.Handle()).(type) {
	case *values.DataclassObj:
		if o.Class != nil && o.Class.Frozen {
			return scriptErrorf("FrozenInstanceError", "cannot assign to field '%s'", name)
		}
		o.Slots[name] = val
		return nil
	case *values.InstanceObj:
		o.Slots[name] = val
		return nil
	}
	return scriptErrorf("AttributeError", "'%s' object has no attribute '%s'", values.KindOf(in.Heap, recv), name)
}
