package monty

import (
	"fmt"
	"math/big"

	"github.com/scostello/monty-go/heap"
	"github.com/scostello/monty-go/values"
)

// Path marks a host string as a path value, converting to the engine's
// distinct path kind rather than to text (spec.md §6).
type Path string

// Tuple marks a host slice as a tuple rather than a list.
type Tuple []any

// Set marks a host slice as a set.
type Set []any

// Stat is the host-side form of a stat record: the 10 POSIX fields.
type Stat struct {
	Mode, Ino, Dev, Nlink, Uid, Gid uint64
	Size                            int64
	Atime, Mtime, Ctime             float64
}

// Dataclass is the host-side form of a registered dataclass instance; Name
// must be registered in the Monty's dataclass registry for the instance to
// round-trip (spec.md §4.4).
type Dataclass struct {
	Name   string
	Fields map[string]any
}

// toValue converts a host Go value into an interpreter value allocated on
// h. The convertible set is the host value mapping of spec.md §6; anything
// else fails.
func toValue(h *heap.Heap, roots heap.RootFunc, v any) (values.Value, error) {
	switch t := v.(type) {
	case nil:
		return values.None(), nil
	case bool:
		return values.Bool(t), nil
	case int:
		return values.Int(int64(t)), nil
	case int32:
		return values.Int(int64(t)), nil
	case int64:
		return values.Int(t), nil
	case uint64:
		if t <= 1<<62 {
			return values.Int(int64(t)), nil
		}
		return values.IntFromBig(h, roots, new(big.Int).SetUint64(t))
	case *big.Int:
		return values.IntFromBig(h, roots, t)
	case float32:
		return values.Float(float64(t)), nil
	case float64:
		return values.Float(t), nil
	case string:
		return values.Str(h, roots, t)
	case []byte:
		return values.Bytes(h, roots, t)
	case Path:
		return allocValue(h, roots, &values.PathObj{P: string(t)})
	case Stat:
		return allocValue(h, roots, &values.StatObj{
			Mode: t.Mode, Ino: t.Ino, Dev: t.Dev, Nlink: t.Nlink,
			Uid: t.Uid, Gid: t.Gid, FileSize: t.Size,
			Atime: t.Atime, Mtime: t.Mtime, Ctime: t.Ctime,
		})
	case Tuple:
		elems, err := toValues(h, roots, t)
		if err != nil {
			return values.Value{}, err
		}
		return allocValue(h, roots, &values.TupleObj{Elems: elems})
	case Set:
		set := values.NewSetObj()
		for _, e := range t {
			ev, err := toValue(h, roots, e)
			if err != nil {
				return values.Value{}, err
			}
			key, ok := values.HashKey(h, ev)
			if !ok {
				return values.Value{}, fmt.Errorf("monty: unhashable set element %T", e)
			}
			set.Add(key, ev)
		}
		return allocValue(h, roots, set)
	case []any:
		elems, err := toValues(h, roots, t)
		if err != nil {
			return values.Value{}, err
		}
		return allocValue(h, roots, &values.ListObj{Elems: elems})
	case []string:
		elems := make([]any, len(t))
		for i, s := range t {
			elems[i] = s
		}
		return toValue(h, roots, elems)
	case []int:
		elems := make([]any, len(t))
		for i, n := range t {
			elems[i] = n
		}
		return toValue(h, roots, elems)
	case map[string]any:
		m := values.NewMapObj()
		for k, mv := range t {
			kv, err := values.Str(h, roots, k)
			if err != nil {
				return values.Value{}, err
			}
			key, _ := values.HashKey(h, kv)
			vv, err := toValue(h, roots, mv)
			if err != nil {
				return values.Value{}, err
			}
			m.Put(key, vv)
		}
		return allocValue(h, roots, m)
	case map[string]string:
		m := make(map[string]any, len(t))
		for k, s := range t {
			m[k] = s
		}
		return toValue(h, roots, m)
	case values.Value:
		return t, nil
	}
	return values.Value{}, fmt.Errorf("monty: cannot convert host value of type %T", v)
}

func toValues(h *heap.Heap, roots heap.RootFunc, in []any) ([]values.Value, error) {
	out := make([]values.Value, len(in))
	for i, e := range in {
		v, err := toValue(h, roots, e)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func allocValue(h *heap.Heap, roots heap.RootFunc, obj heap.Object) (values.Value, error) {
	handle, err := h.Alloc(obj, roots)
	if err != nil {
		return values.Value{}, err
	}
	return values.FromHandle(handle), nil
}

// fromValue converts an interpreter value back into a host Go value.
// Callables and iterators do not convert (spec.md §6).
func fromValue(h *heap.Heap, v values.Value) (any, error) {
	switch v.Tag {
	case values.TagNone:
		return nil, nil
	case values.TagBool:
		return v.Bool(), nil
	case values.TagInt:
		return v.Int(), nil
	case values.TagFloat:
		return v.Float(), nil
	case values.TagStr:
		return v.Text(), nil
	case values.TagBytes:
		return []byte(v.Text()), nil
	}
	switch o := h.Get(v.Handle()).(type) {
	case *values.StringObj:
		return o.S, nil
	case *values.BytesObj:
		return append([]byte(nil), o.B...), nil
	case *values.BigIntObj:
		return new(big.Int).Set(o.Z), nil
	case *values.PathObj:
		return Path(o.P), nil
	case *values.StatObj:
		return Stat{
			Mode: o.Mode, Ino: o.Ino, Dev: o.Dev, Nlink: o.Nlink,
			Uid: o.Uid, Gid: o.Gid, Size: o.FileSize,
			Atime: o.Atime, Mtime: o.Mtime, Ctime: o.Ctime,
		}, nil
	case *values.ListObj:
		return fromValues(h, o.Elems)
	case *values.TupleObj:
		elems, err := fromValues(h, o.Elems)
		if err != nil {
			return nil, err
		}
		return Tuple(elems), nil
	case *values.SetObj:
		elems, err := fromValues(h, o.Values())
		if err != nil {
			return nil, err
		}
		return Set(elems), nil
	case *values.FrozenSetObj:
		elems, err := fromValues(h, o.Set.Values())
		if err != nil {
			return nil, err
		}
		return Set(elems), nil
	case *values.MapObj:
		out := make(map[string]any, o.Len())
		for _, e := range o.Entries() {
			val, err := fromValue(h, e.Value)
			if err != nil {
				return nil, err
			}
			out[hashKeyText(e.Key)] = val
		}
		return out, nil
	case *values.DataclassObj:
		fields := make(map[string]any, len(o.Slots))
		for name, fv := range o.Slots {
			hv, err := fromValue(h, fv)
			if err != nil {
				return nil, err
			}
			fields[name] = hv
		}
		name := o.RegisteredName
		if name == "" && o.Class != nil {
			name = o.Class.Name
		}
		return Dataclass{Name: name, Fields: fields}, nil
	case *values.ExceptionObj:
		return fmt.Errorf("%s: %s", o.ExcKind, o.Message), nil
	}
	return nil, fmt.Errorf("monty: value of kind %s does not convert to a host value", values.KindOf(h, v))
}

func fromValues(h *heap.Heap, in []values.Value) ([]any, error) {
	out := make([]any, len(in))
	for i, v := range in {
		hv, err := fromValue(h, v)
		if err != nil {
			return nil, err
		}
		out[i] = hv
	}
	return out, nil
}

// hashKeyText renders a MapObj key for the host mapping, which only
// supports text keys; non-text keys use their stored text form.
func hashKeyText(key interface{}) string {
	switch k := key.(type) {
	case string:
		if len(k) >= 2 && k[1] == ':' && (k[0] == 's' || k[0] == 'b' || k[0] == 'z') {
			return k[2:]
		}
		return k
	case bool:
		if k {
			return "True"
		}
		return "False"
	case int64:
		return fmt.Sprintf("%d", k)
	case float64:
		return fmt.Sprintf("%g", k)
	case nil:
		return "None"
	}
	return fmt.Sprintf("%v", key)
}
