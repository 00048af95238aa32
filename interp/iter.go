package interp

import (
	"math/big"

	"github.com/scostello/monty-go/values"
)

// execIterNext implements ITER_NEXT: advance the iterator on top of the
// stack, pushing its next element and True, or leaving it in place and
// pushing a None placeholder and False once exhausted (codegen uses the boolean to decide whether
// to jump to ITER_STOP). target is unused at runtime; it documents which
// local slot the compiler associated with this iteration for disassembly.
func (in *Interpreter) execIterNext(fr *Frame, target int) error {
	itVal := fr.Top()
	it, ok := in.Heap.Get(itVal.Handle()).(*values.IteratorObj)
	if !ok {
		return scriptErrorf("TypeError", "'%s' object is not an iterator", values.KindOf(in.Heap, itVal))
	}
	if it.Done {
		fr.Push(values.None())
		fr.Push(values.Bool(false))
		return nil
	}
	v, ok, err := in.iterAdvance(it)
	if err != nil {
		return err
	}
	if !ok {
		it.Done = true
		fr.Push(values.None())
		fr.Push(values.Bool(false))
		return nil
	}
	fr.Push(v)
	fr.Push(values.Bool(true))
	return nil
}

func (in *Interpreter) iterAdvance(it *values.IteratorObj) (values.Value, bool, error) {
	src := it.Source
	if src.IsHandle() {
		switch o := in.Heap.Get(src.Handle()).(type) {
		case *values.ListObj:
			return indexOrDone(o.Elems, it)
		case *values.TupleObj:
			return indexOrDone(o.Elems, it)
		case *values.SetObj:
			return indexOrDone(o.Values(), it)
		case *values.FrozenSetObj:
			return indexOrDone(o.Set.Values(), it)
		case *values.MapObj:
			keys := o.Keys()
			if it.Index >= len(keys) {
				return values.Value{}, false, nil
			}
			idx := it.Index
			it.Index++
			return keyToValue(in, keys[idx])
		case *values.RangeObj:
			cur := o.Start + int64(it.Index)*o.Step
			if (o.Step > 0 && cur >= o.Stop) || (o.Step < 0 && cur <= o.Stop) {
				return values.Value{}, false, nil
			}
			it.Index++
			return values.Int(cur), true, nil
		case *values.StringObj:
			runes := []rune(o.S)
			if it.Index >= len(runes) {
				return values.Value{}, false, nil
			}
			idx := it.Index
			it.Index++
			v, err := values.Str(in.Heap, in.roots, string(runes[idx]))
			return v, true, err
		}
	}
	if src.Tag == values.TagStr {
		runes := []rune(src.Text())
		if it.Index >= len(runes) {
			return values.Value{}, false, nil
		}
		idx := it.Index
		it.Index++
		v, err := values.Str(in.Heap, in.roots, string(runes[idx]))
		return v, true, err
	}
	return values.Value{}, false, scriptErrorf("TypeError", "'%s' object is not iterable", values.KindOf(in.Heap, src))
}

func indexOrDone(elems []values.Value, it *values.IteratorObj) (values.Value, bool, error) {
	if it.Index >= len(elems) {
		return values.Value{}, false, nil
	}
	idx := it.Index
	it.Index++
	return elems[idx], true, nil
}

// keyToValue turns a MapObj's opaque HashKey()-produced key back into a
// Value for iteration over a dict's keys (spec.md §3: "iterating a mapping
// yields its keys").
func keyToValue(in *Interpreter, key interface{}) (values.Value, bool, error) {
	switch k := key.(type) {
	case string:
		if len(k) >= 2 && k[1] == ':' {
			switch k[0] {
			case 's':
				v, err := values.Str(in.Heap, in.roots, k[2:])
				return v, true, err
			case 'b':
				v, err := values.Bytes(in.Heap, in.roots, []byte(k[2:]))
				return v, true, err
			case 'z':
				z, ok := new(big.Int).SetString(k[2:], 10)
				if !ok {
					return values.None(), true, nil
				}
				v, err := values.IntFromBig(in.Heap, in.roots, z)
				return v, true, err
			}
		}
		v, err := values.Str(in.Heap, in.roots, k)
		return v, true, err
	case bool:
		return values.Bool(k), true, nil
	case int64:
		return values.Int(k), true, nil
	case float64:
		return values.Float(k), true, nil
	case nil:
		return values.None(), true, nil
	}
	return values.None(), true, nil
}
