package interp

import "github.com/scostello/monty-go/values"

// indexGet implements INDEX_GET: subscripting a list/tuple/string/bytes by
// int or slice, or a dict/set-backed map by hashable key (spec.md §3).
func (in *Interpreter) indexGet(recv, idx values.Value) (values.Value, error) {
	if recv.IsHandle() {
		switch o := in.Heap.Get(recv.Handle()).(type) {
		case *values.ListObj:
			return in.sequenceIndex(o.Elems, idx, func(e []values.Value) (values.Value, error) {
				h, err := in.Heap.Alloc(&values.ListObj{Elems: e}, in.roots)
				if err != nil {
					return values.Value{}, err
				}
				return values.FromHandle(h), nil
			})
		case *values.TupleObj:
			return in.sequenceIndex(o.Elems, idx, func(e []values.Value) (values.Value, error) {
				h, err := in.Heap.Alloc(&values.TupleObj{Elems: e}, in.roots)
				if err != nil {
					return values.Value{}, err
				}
				return values.FromHandle(h), nil
			})
		case *values.StringObj:
			return in.stringIndex(o.S, idx, true)
		case *values.BytesObj:
			return in.stringIndex(string(o.B), idx, false)
		case *values.MapObj:
			key, ok := values.HashKey(in.Heap, idx)
			if !ok {
				return values.Value{}, scriptErrorf("TypeError", "unhashable type: '%s'", values.KindOf(in.Heap, idx))
			}
			v, found := o.Get(key)
			if !found {
				return values.Value{}, scriptErrorf("KeyError", "%s", values.FormatRepr(in.Heap, idx))
			}
			return v, nil
		}
	}
	if recv.Tag == values.TagStr {
		return in.stringIndex(recv.Text(), idx, true)
	}
	if recv.Tag == values.TagBytes {
		return in.stringIndex(recv.Text(), idx, false)
	}
	return values.Value{}, scriptErrorf("TypeError", "'%s' object is not subscriptable", values.KindOf(in.Heap, recv))
}

func (in *Interpreter) sequenceIndex(elems []values.Value, idx values.Value, rebuild func([]values.Value) (values.Value, error)) (values.Value, error) {
	if slice, ok := in.asSlice(idx); ok {
		start, stop, step := in.resolveSlice(slice, len(elems))
		return rebuild(sliceElems(elems, start, stop, step))
	}
	i, err := in.normalizeIndex(idx, len(elems))
	if err != nil {
		return values.Value{}, err
	}
	return elems[i], nil
}

func (in *Interpreter) stringIndex(s string, idx values.Value, asStr bool) (values.Value, error) {
	runes := []rune(s)
	if slice, ok := in.asSlice(idx); ok {
		start, stop, step := in.resolveSlice(slice, len(runes))
		out := make([]rune, 0, len(runes))
		if step > 0 {
			for i := start; i < stop; i += step {
				out = append(out, runes[i])
			}
		} else if step < 0 {
			for i := start; i > stop; i += step {
				out = append(out, runes[i])
			}
		}
		return boxText(in, string(out), asStr)
	}
	i, err := in.normalizeIndex(idx, len(runes))
	if err != nil {
		return values.Value{}, err
	}
	return boxText(in, string(runes[i]), asStr)
}

func boxText(in *Interpreter, s string, asStr bool) (values.Value, error) {
	if asStr {
		return values.Str(in.Heap, in.roots, s)
	}
	return values.Bytes(in.Heap, in.roots, []byte(s))
}

func (in *Interpreter) normalizeIndex(idx values.Value, n int) (int, error) {
	if idx.Tag != values.TagInt {
		return 0, scriptErrorf("TypeError", "indices must be integers")
	}
	i := int(idx.Int())
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return 0, scriptErrorf("IndexError", "index out of range")
	}
	return i, nil
}

func (in *Interpreter) asSlice(v values.Value) (*values.SliceObj, bool) {
	if !v.IsHandle() {
		return nil, false
	}
	s, ok := in.Heap.Get(v.Handle()).(*values.SliceObj)
	return s, ok
}

// resolveSlice turns a SliceObj's possibly-unset start/stop/step values into
// concrete bounds over a sequence of length n, following Python's slicing
// clamp rules.
func (in *Interpreter) resolveSlice(s *values.SliceObj, n int) (start, stop, step int) {
	step = 1
	if !s.Step.IsNone() {
		step = int(s.Step.Int())
	}
	if step > 0 {
		start, stop = 0, n
	} else {
		start, stop = n-1, -1
	}
	if !s.Start.IsNone() {
		start = clampIndex(int(s.Start.Int()), n, step > 0)
	}
	if !s.Stop.IsNone() {
		stop = clampIndex(int(s.Stop.Int()), n, step > 0)
	}
	return
}

func clampIndex(i, n int, forward bool) int {
	if i < 0 {
		i += n
	}
	if forward {
		if i < 0 {
			i = 0
		}
		if i > n {
			i = n
		}
	} else {
		if i < -1 {
			i = -1
		}
		if i >= n {
			i = n - 1
		}
	}
	return i
}

func sliceElems(elems []values.Value, start, stop, step int) []values.Value {
	out := make([]values.Value, 0, len(elems))
	if step > 0 {
		for i := start; i < stop; i += step {
			out = append(out, elems[i])
		}
	} else if step < 0 {
		for i := start; i > stop; i += step {
			out = append(out, elems[i])
		}
	}
	return out
}

// indexSet implements INDEX_SET: list item assignment by integer index and
// dict assignment. Slice assignment is not supported. Tuples, strings and
// bytes are immutable and reject it.
func (in *Interpreter) indexSet(recv, idx, val values.Value) error {
	if !recv.IsHandle() {
		return scriptErrorf("TypeError", "'%s' object does not support item assignment", values.KindOf(in.Heap, recv))
	}
	switch o := in.Heap.Get(recv.Handle()).(type) {
	case *values.ListObj:
		i, err := in.normalizeIndex(idx, len(o.Elems))
		if err != nil {
			return err
		}
		o.Elems[i] = val
		return nil
	case *values.MapObj:
		key, ok := values.HashKey(in.Heap, idx)
		if !ok {
			return scriptErrorf("TypeError", "unhashable type: '%s'", values.KindOf(in.Heap, idx))
		}
		o.Put(key, val)
		return nil
	}
	return scriptErrorf("TypeError", "'%s' object does not support item assignment", values.KindOf(in.Heap, recv))
}
