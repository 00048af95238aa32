package builtins

import (
	"sort"
	"strconv"
	"strings"

	"github.com/scostello/monty-go/registry"
	"github.com/scostello/monty-go/values"
)

// RegisterMethods installs the fixed per-kind method tables (spec.md §4.1:
// "attribute lookup on built-ins dispatches through a fixed per-kind method
// table"). Each entry is registered under "<kind>.<method>" and receives the
// receiver as its leading argument, the same marker-closure convention the
// Path surface uses: ATTR_GET on a str/list/dict/set/tuple receiver builds a
// bound marker naming one of these, and CALL prepends the receiver.
func RegisterMethods(reg *registry.Builtins) {
	reg.Add("str.upper", strMethod(strings.ToUpper))
	reg.Add("str.lower", strMethod(strings.ToLower))
	reg.Add("str.title", strMethod(titleCase))
	reg.Add("str.capitalize", strMethod(capitalize))
	reg.Add("str.strip", strStrip(strings.Trim, strings.TrimSpace))
	reg.Add("str.lstrip", strStrip(strings.TrimLeft, trimLeftSpace))
	reg.Add("str.rstrip", strStrip(strings.TrimRight, trimRightSpace))
	reg.Add("str.split", miSplit)
	reg.Add("str.splitlines", miSplitlines)
	reg.Add("str.join", miJoin)
	reg.Add("str.replace", miReplace)
	reg.Add("str.startswith", strPredicate2(strings.HasPrefix))
	reg.Add("str.endswith", strPredicate2(strings.HasSuffix))
	reg.Add("str.find", miFind)
	reg.Add("str.index", miStrIndex)
	reg.Add("str.count", miStrCount)
	reg.Add("str.isdigit", strPredicate(func(s string) bool {
		return s != "" && strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }) < 0
	}))
	reg.Add("str.isalpha", strPredicate(func(s string) bool {
		return s != "" && strings.IndexFunc(s, func(r rune) bool {
			return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
		}) < 0
	}))

	reg.Add("bytes.decode", miBytesDecode)

	reg.Add("list.append", miListAppend)
	reg.Add("list.extend", miListExtend)
	reg.Add("list.insert", miListInsert)
	reg.Add("list.pop", miListPop)
	reg.Add("list.remove", miListRemove)
	reg.Add("list.clear", miListClear)
	reg.Add("list.index", miListIndex)
	reg.Add("list.count", miListCount)
	reg.Add("list.reverse", miListReverse)
	reg.Add("list.sort", miListSort)
	reg.Add("list.copy", miListCopy)

	reg.Add("tuple.count", miTupleCount)
	reg.Add("tuple.index", miTupleIndex)

	reg.Add("dict.get", miDictGet)
	reg.Add("dict.keys", miDictKeys)
	reg.Add("dict.values", miDictValues)
	reg.Add("dict.items", miDictItems)
	reg.Add("dict.pop", miDictPop)
	reg.Add("dict.setdefault", miDictSetdefault)
	reg.Add("dict.update", miDictUpdate)
	reg.Add("dict.clear", miDictClear)
	reg.Add("dict.copy", miDictCopy)

	reg.Add("set.add", miSetAdd)
	reg.Add("set.remove", miSetRemove)
	reg.Add("set.discard", miSetDiscard)
	reg.Add("set.clear", miSetClear)
	reg.Add("set.union", miSetUnion)
	reg.Add("set.intersection", miSetIntersection)
	reg.Add("set.difference", miSetDifference)
	reg.Add("set.copy", miSetCopy)
}

// textOf resolves a str receiver, immediate or boxed.
func textOf(ctx registry.BuiltinCallContext, v values.Value) (string, bool) {
	if v.Tag == values.TagStr {
		return v.Text(), true
	}
	if o, ok := ctx.Heap().Get(v.Handle()).(*values.StringObj); v.IsHandle() && ok {
		return o.S, true
	}
	return "", false
}

func recvText(ctx registry.BuiltinCallContext, args []values.Value, method string) (string, []values.Value, error) {
	if len(args) == 0 {
		return "", nil, ctx.Raise("TypeError", "str."+method+" requires a receiver")
	}
	s, ok := textOf(ctx, args[0])
	if !ok {
		return "", nil, ctx.Raise("TypeError", "'"+values.KindOf(ctx.Heap(), args[0])+"' object has no attribute '"+method+"'")
	}
	return s, args[1:], nil
}

func strMethod(fn func(string) string) registry.BuiltinImplementation {
	return func(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
		s, _, err := recvText(ctx, args, "method")
		if err != nil {
			return values.Value{}, err
		}
		return values.Str(ctx.Heap(), ctx.Roots(), fn(s))
	}
}

func strPredicate(fn func(string) bool) registry.BuiltinImplementation {
	return func(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
		s, _, err := recvText(ctx, args, "method")
		if err != nil {
			return values.Value{}, err
		}
		return values.Bool(fn(s)), nil
	}
}

func strPredicate2(fn func(string, string) bool) registry.BuiltinImplementation {
	return func(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
		s, rest, err := recvText(ctx, args, "method")
		if err != nil {
			return values.Value{}, err
		}
		if len(rest) != 1 {
			return values.Value{}, ctx.Raise("TypeError", "expected exactly one argument")
		}
		arg, ok := textOf(ctx, rest[0])
		if !ok {
			return values.Value{}, ctx.Raise("TypeError", "argument must be str")
		}
		return values.Bool(fn(s, arg)), nil
	}
}

func strStrip(trim func(string, string) string, trimSpace func(string) string) registry.BuiltinImplementation {
	return func(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
		s, rest, err := recvText(ctx, args, "strip")
		if err != nil {
			return values.Value{}, err
		}
		if len(rest) == 0 || rest[0].IsNone() {
			return values.Str(ctx.Heap(), ctx.Roots(), trimSpace(s))
		}
		cutset, ok := textOf(ctx, rest[0])
		if !ok {
			return values.Value{}, ctx.Raise("TypeError", "strip arg must be str or None")
		}
		return values.Str(ctx.Heap(), ctx.Roots(), trim(s, cutset))
	}
}

func trimLeftSpace(s string) string  { return strings.TrimLeft(s, " \t\n\r\v\f") }
func trimRightSpace(s string) string { return strings.TrimRight(s, " \t\n\r\v\f") }

func titleCase(s string) string {
	out := []rune(s)
	prevAlpha := false
	for i, r := range out {
		isAlpha := r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'
		if isAlpha && !prevAlpha && r >= 'a' && r <= 'z' {
			out[i] = r - 'a' + 'A'
		} else if isAlpha && prevAlpha && r >= 'A' && r <= 'Z' {
			out[i] = r - 'A' + 'a'
		}
		prevAlpha = isAlpha
	}
	return string(out)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

func allocList(ctx registry.BuiltinCallContext, elems []values.Value) (values.Value, error) {
	handle, err := ctx.Heap().Alloc(&values.ListObj{Elems: elems}, ctx.Roots())
	if err != nil {
		return values.Value{}, err
	}
	return values.FromHandle(handle), nil
}

func miSplit(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	s, rest, err := recvText(ctx, args, "split")
	if err != nil {
		return values.Value{}, err
	}
	var parts []string
	if len(rest) == 0 || rest[0].IsNone() {
		parts = strings.Fields(s)
	} else {
		sep, ok := textOf(ctx, rest[0])
		if !ok || sep == "" {
			return values.Value{}, ctx.Raise("ValueError", "empty separator")
		}
		parts = strings.Split(s, sep)
	}
	elems := make([]values.Value, len(parts))
	for i, p := range parts {
		v, err := values.Str(ctx.Heap(), ctx.Roots(), p)
		if err != nil {
			return values.Value{}, err
		}
		elems[i] = v
	}
	return allocList(ctx, elems)
}

func miSplitlines(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	s, _, err := recvText(ctx, args, "splitlines")
	if err != nil {
		return values.Value{}, err
	}
	var parts []string
	if s != "" {
		normalized := strings.ReplaceAll(s, "\r\n", "\n")
		parts = strings.Split(strings.TrimSuffix(normalized, "\n"), "\n")
	}
	elems := make([]values.Value, len(parts))
	for i, p := range parts {
		v, err := values.Str(ctx.Heap(), ctx.Roots(), p)
		if err != nil {
			return values.Value{}, err
		}
		elems[i] = v
	}
	return allocList(ctx, elems)
}

func miJoin(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	sep, rest, err := recvText(ctx, args, "join")
	if err != nil {
		return values.Value{}, err
	}
	if len(rest) != 1 {
		return values.Value{}, ctx.Raise("TypeError", "join() takes exactly one argument")
	}
	elems, err := materializeElemsRoots(ctx.Heap(), ctx.Roots(), rest[0])
	if err != nil {
		return values.Value{}, err
	}
	parts := make([]string, len(elems))
	for i, e := range elems {
		t, ok := textOf(ctx, e)
		if !ok {
			return values.Value{}, ctx.Raise("TypeError", "sequence item "+strconv.Itoa(i)+": expected str instance")
		}
		parts[i] = t
	}
	return values.Str(ctx.Heap(), ctx.Roots(), strings.Join(parts, sep))
}

func miReplace(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	s, rest, err := recvText(ctx, args, "replace")
	if err != nil {
		return values.Value{}, err
	}
	if len(rest) != 2 {
		return values.Value{}, ctx.Raise("TypeError", "replace() takes exactly two arguments")
	}
	old, ok1 := textOf(ctx, rest[0])
	new_, ok2 := textOf(ctx, rest[1])
	if !ok1 || !ok2 {
		return values.Value{}, ctx.Raise("TypeError", "replace() arguments must be str")
	}
	return values.Str(ctx.Heap(), ctx.Roots(), strings.ReplaceAll(s, old, new_))
}

func miFind(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	s, rest, err := recvText(ctx, args, "find")
	if err != nil {
		return values.Value{}, err
	}
	if len(rest) != 1 {
		return values.Value{}, ctx.Raise("TypeError", "find() takes exactly one argument")
	}
	sub, ok := textOf(ctx, rest[0])
	if !ok {
		return values.Value{}, ctx.Raise("TypeError", "must be str")
	}
	return values.Int(int64(strings.Index(s, sub))), nil
}

func miStrIndex(ctx registry.BuiltinCallContext, args []values.Value, kwNames []string, kwValues []values.Value) (values.Value, error) {
	v, err := miFind(ctx, args, kwNames, kwValues)
	if err != nil {
		return values.Value{}, err
	}
	if v.Int() < 0 {
		return values.Value{}, ctx.Raise("ValueError", "substring not found")
	}
	return v, nil
}

func miStrCount(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	s, rest, err := recvText(ctx, args, "count")
	if err != nil {
		return values.Value{}, err
	}
	if len(rest) != 1 {
		return values.Value{}, ctx.Raise("TypeError", "count() takes exactly one argument")
	}
	sub, ok := textOf(ctx, rest[0])
	if !ok {
		return values.Value{}, ctx.Raise("TypeError", "must be str")
	}
	return values.Int(int64(strings.Count(s, sub))), nil
}

func miBytesDecode(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	if len(args) == 0 {
		return values.Value{}, ctx.Raise("TypeError", "decode requires a receiver")
	}
	v := args[0]
	if v.Tag == values.TagBytes {
		return values.Str(ctx.Heap(), ctx.Roots(), v.Text())
	}
	if o, ok := ctx.Heap().Get(v.Handle()).(*values.BytesObj); v.IsHandle() && ok {
		return values.Str(ctx.Heap(), ctx.Roots(), string(o.B))
	}
	return values.Value{}, ctx.Raise("TypeError", "'"+values.KindOf(ctx.Heap(), v)+"' object has no attribute 'decode'")
}

func recvList(ctx registry.BuiltinCallContext, args []values.Value, method string) (*values.ListObj, []values.Value, error) {
	if len(args) == 0 || !args[0].IsHandle() {
		return nil, nil, ctx.Raise("TypeError", "list."+method+" requires a list receiver")
	}
	o, ok := ctx.Heap().Get(args[0].Handle()).(*values.ListObj)
	if !ok {
		return nil, nil, ctx.Raise("TypeError", "'"+values.KindOf(ctx.Heap(), args[0])+"' object has no attribute '"+method+"'")
	}
	return o, args[1:], nil
}

func miListAppend(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	o, rest, err := recvList(ctx, args, "append")
	if err != nil {
		return values.Value{}, err
	}
	if len(rest) != 1 {
		return values.Value{}, ctx.Raise("TypeError", "append() takes exactly one argument")
	}
	o.Elems = append(o.Elems, rest[0])
	return values.None(), nil
}

func miListExtend(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	o, rest, err := recvList(ctx, args, "extend")
	if err != nil {
		return values.Value{}, err
	}
	if len(rest) != 1 {
		return values.Value{}, ctx.Raise("TypeError", "extend() takes exactly one argument")
	}
	elems, err := materializeElemsRoots(ctx.Heap(), ctx.Roots(), rest[0])
	if err != nil {
		return values.Value{}, err
	}
	o.Elems = append(o.Elems, elems...)
	return values.None(), nil
}

func miListInsert(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	o, rest, err := recvList(ctx, args, "insert")
	if err != nil {
		return values.Value{}, err
	}
	if len(rest) != 2 || rest[0].Tag != values.TagInt {
		return values.Value{}, ctx.Raise("TypeError", "insert(index, value)")
	}
	i := int(rest[0].Int())
	if i < 0 {
		i += len(o.Elems)
	}
	if i < 0 {
		i = 0
	}
	if i > len(o.Elems) {
		i = len(o.Elems)
	}
	o.Elems = append(o.Elems, values.Value{})
	copy(o.Elems[i+1:], o.Elems[i:])
	o.Elems[i] = rest[1]
	return values.None(), nil
}

func miListPop(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	o, rest, err := recvList(ctx, args, "pop")
	if err != nil {
		return values.Value{}, err
	}
	if len(o.Elems) == 0 {
		return values.Value{}, ctx.Raise("IndexError", "pop from empty list")
	}
	i := len(o.Elems) - 1
	if len(rest) == 1 {
		i = int(rest[0].Int())
		if i < 0 {
			i += len(o.Elems)
		}
		if i < 0 || i >= len(o.Elems) {
			return values.Value{}, ctx.Raise("IndexError", "pop index out of range")
		}
	}
	v := o.Elems[i]
	o.Elems = append(o.Elems[:i], o.Elems[i+1:]...)
	return v, nil
}

func miListRemove(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	o, rest, err := recvList(ctx, args, "remove")
	if err != nil {
		return values.Value{}, err
	}
	if len(rest) != 1 {
		return values.Value{}, ctx.Raise("TypeError", "remove() takes exactly one argument")
	}
	for i, e := range o.Elems {
		if values.Equal(ctx.Heap(), e, rest[0]) {
			o.Elems = append(o.Elems[:i], o.Elems[i+1:]...)
			return values.None(), nil
		}
	}
	return values.Value{}, ctx.Raise("ValueError", "list.remove(x): x not in list")
}

func miListClear(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	o, _, err := recvList(ctx, args, "clear")
	if err != nil {
		return values.Value{}, err
	}
	o.Elems = nil
	return values.None(), nil
}

func miListIndex(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	o, rest, err := recvList(ctx, args, "index")
	if err != nil {
		return values.Value{}, err
	}
	if len(rest) != 1 {
		return values.Value{}, ctx.Raise("TypeError", "index() takes exactly one argument")
	}
	for i, e := range o.Elems {
		if values.Equal(ctx.Heap(), e, rest[0]) {
			return values.Int(int64(i)), nil
		}
	}
	return values.Value{}, ctx.Raise("ValueError", "x not in list")
}

func miListCount(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	o, rest, err := recvList(ctx, args, "count")
	if err != nil {
		return values.Value{}, err
	}
	if len(rest) != 1 {
		return values.Value{}, ctx.Raise("TypeError", "count() takes exactly one argument")
	}
	n := int64(0)
	for _, e := range o.Elems {
		if values.Equal(ctx.Heap(), e, rest[0]) {
			n++
		}
	}
	return values.Int(n), nil
}

func miListReverse(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	o, _, err := recvList(ctx, args, "reverse")
	if err != nil {
		return values.Value{}, err
	}
	for i, j := 0, len(o.Elems)-1; i < j; i, j = i+1, j-1 {
		o.Elems[i], o.Elems[j] = o.Elems[j], o.Elems[i]
	}
	return values.None(), nil
}

func miListSort(ctx registry.BuiltinCallContext, args []values.Value, kwNames []string, kwValues []values.Value) (values.Value, error) {
	o, _, err := recvList(ctx, args, "sort")
	if err != nil {
		return values.Value{}, err
	}
	reverse := false
	for i, name := range kwNames {
		switch name {
		case "reverse":
			reverse = values.Truthy(ctx.Heap(), kwValues[i])
		case "key":
			return values.Value{}, ctx.Raise("TypeError", "sort() key functions are not supported")
		default:
			return values.Value{}, ctx.Raise("TypeError", "sort() got an unexpected keyword argument '"+name+"'")
		}
	}
	var sortErr error
	sort.SliceStable(o.Elems, func(i, j int) bool {
		c, err := values.Compare(ctx.Heap(), o.Elems[i], o.Elems[j])
		if err != nil && sortErr == nil {
			sortErr = err
		}
		if reverse {
			return c > 0
		}
		return c < 0
	})
	if sortErr != nil {
		return values.Value{}, sortErr
	}
	return values.None(), nil
}

func miListCopy(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	o, _, err := recvList(ctx, args, "copy")
	if err != nil {
		return values.Value{}, err
	}
	return allocList(ctx, append([]values.Value(nil), o.Elems...))
}

func recvTuple(ctx registry.BuiltinCallContext, args []values.Value, method string) (*values.TupleObj, []values.Value, error) {
	if len(args) == 0 || !args[0].IsHandle() {
		return nil, nil, ctx.Raise("TypeError", "tuple."+method+" requires a tuple receiver")
	}
	o, ok := ctx.Heap().Get(args[0].Handle()).(*values.TupleObj)
	if !ok {
		return nil, nil, ctx.Raise("TypeError", "'"+values.KindOf(ctx.Heap(), args[0])+"' object has no attribute '"+method+"'")
	}
	return o, args[1:], nil
}

func miTupleCount(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	o, rest, err := recvTuple(ctx, args, "count")
	if err != nil {
		return values.Value{}, err
	}
	if len(rest) != 1 {
		return values.Value{}, ctx.Raise("TypeError", "count() takes exactly one argument")
	}
	n := int64(0)
	for _, e := range o.Elems {
		if values.Equal(ctx.Heap(), e, rest[0]) {
			n++
		}
	}
	return values.Int(n), nil
}

func miTupleIndex(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	o, rest, err := recvTuple(ctx, args, "index")
	if err != nil {
		return values.Value{}, err
	}
	if len(rest) != 1 {
		return values.Value{}, ctx.Raise("TypeError", "index() takes exactly one argument")
	}
	for i, e := range o.Elems {
		if values.Equal(ctx.Heap(), e, rest[0]) {
			return values.Int(int64(i)), nil
		}
	}
	return values.Value{}, ctx.Raise("ValueError", "tuple.index(x): x not in tuple")
}

func recvMap(ctx registry.BuiltinCallContext, args []values.Value, method string) (*values.MapObj, []values.Value, error) {
	if len(args) == 0 || !args[0].IsHandle() {
		return nil, nil, ctx.Raise("TypeError", "dict."+method+" requires a dict receiver")
	}
	o, ok := ctx.Heap().Get(args[0].Handle()).(*values.MapObj)
	if !ok {
		return nil, nil, ctx.Raise("TypeError", "'"+values.KindOf(ctx.Heap(), args[0])+"' object has no attribute '"+method+"'")
	}
	return o, args[1:], nil
}

func miDictGet(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	o, rest, err := recvMap(ctx, args, "get")
	if err != nil {
		return values.Value{}, err
	}
	if len(rest) < 1 || len(rest) > 2 {
		return values.Value{}, ctx.Raise("TypeError", "get expected 1 or 2 arguments")
	}
	key, ok := values.HashKey(ctx.Heap(), rest[0])
	if !ok {
		return values.Value{}, ctx.Raise("TypeError", "unhashable type: '"+values.KindOf(ctx.Heap(), rest[0])+"'")
	}
	if v, found := o.Get(key); found {
		return v, nil
	}
	if len(rest) == 2 {
		return rest[1], nil
	}
	return values.None(), nil
}

func miDictKeys(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	o, _, err := recvMap(ctx, args, "keys")
	if err != nil {
		return values.Value{}, err
	}
	keys := o.Keys()
	elems := make([]values.Value, 0, len(keys))
	for _, k := range keys {
		elems = append(elems, keyToVal(ctx.Heap(), ctx.Roots(), k))
	}
	return allocList(ctx, elems)
}

func miDictValues(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	o, _, err := recvMap(ctx, args, "values")
	if err != nil {
		return values.Value{}, err
	}
	elems := make([]values.Value, 0, o.Len())
	for _, e := range o.Entries() {
		elems = append(elems, e.Value)
	}
	return allocList(ctx, elems)
}

func miDictItems(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	o, _, err := recvMap(ctx, args, "items")
	if err != nil {
		return values.Value{}, err
	}
	elems := make([]values.Value, 0, o.Len())
	for _, e := range o.Entries() {
		kv := keyToVal(ctx.Heap(), ctx.Roots(), e.Key)
		handle, err := ctx.Heap().Alloc(&values.TupleObj{Elems: []values.Value{kv, e.Value}}, ctx.Roots())
		if err != nil {
			return values.Value{}, err
		}
		elems = append(elems, values.FromHandle(handle))
	}
	return allocList(ctx, elems)
}

func miDictPop(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	o, rest, err := recvMap(ctx, args, "pop")
	if err != nil {
		return values.Value{}, err
	}
	if len(rest) < 1 || len(rest) > 2 {
		return values.Value{}, ctx.Raise("TypeError", "pop expected 1 or 2 arguments")
	}
	key, ok := values.HashKey(ctx.Heap(), rest[0])
	if !ok {
		return values.Value{}, ctx.Raise("TypeError", "unhashable type: '"+values.KindOf(ctx.Heap(), rest[0])+"'")
	}
	if v, found := o.Get(key); found {
		o.Delete(key)
		return v, nil
	}
	if len(rest) == 2 {
		return rest[1], nil
	}
	return values.Value{}, ctx.Raise("KeyError", values.FormatRepr(ctx.Heap(), rest[0]))
}

func miDictSetdefault(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	o, rest, err := recvMap(ctx, args, "setdefault")
	if err != nil {
		return values.Value{}, err
	}
	if len(rest) < 1 || len(rest) > 2 {
		return values.Value{}, ctx.Raise("TypeError", "setdefault expected 1 or 2 arguments")
	}
	key, ok := values.HashKey(ctx.Heap(), rest[0])
	if !ok {
		return values.Value{}, ctx.Raise("TypeError", "unhashable type: '"+values.KindOf(ctx.Heap(), rest[0])+"'")
	}
	if v, found := o.Get(key); found {
		return v, nil
	}
	def := values.None()
	if len(rest) == 2 {
		def = rest[1]
	}
	o.Put(key, def)
	return def, nil
}

func miDictUpdate(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	o, rest, err := recvMap(ctx, args, "update")
	if err != nil {
		return values.Value{}, err
	}
	if len(rest) != 1 || !rest[0].IsHandle() {
		return values.Value{}, ctx.Raise("TypeError", "update() takes a dict argument")
	}
	other, ok := ctx.Heap().Get(rest[0].Handle()).(*values.MapObj)
	if !ok {
		return values.Value{}, ctx.Raise("TypeError", "update() takes a dict argument")
	}
	for _, e := range other.Entries() {
		o.Put(e.Key, e.Value)
	}
	return values.None(), nil
}

func miDictClear(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	o, _, err := recvMap(ctx, args, "clear")
	if err != nil {
		return values.Value{}, err
	}
	for _, k := range o.Keys() {
		o.Delete(k)
	}
	return values.None(), nil
}

func miDictCopy(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	o, _, err := recvMap(ctx, args, "copy")
	if err != nil {
		return values.Value{}, err
	}
	m := values.NewMapObj()
	for _, e := range o.Entries() {
		m.Put(e.Key, e.Value)
	}
	handle, err := ctx.Heap().Alloc(m, ctx.Roots())
	if err != nil {
		return values.Value{}, err
	}
	return values.FromHandle(handle), nil
}

func recvSet(ctx registry.BuiltinCallContext, args []values.Value, method string) (*values.SetObj, []values.Value, error) {
	if len(args) == 0 || !args[0].IsHandle() {
		return nil, nil, ctx.Raise("TypeError", "set."+method+" requires a set receiver")
	}
	o, ok := ctx.Heap().Get(args[0].Handle()).(*values.SetObj)
	if !ok {
		return nil, nil, ctx.Raise("TypeError", "'"+values.KindOf(ctx.Heap(), args[0])+"' object has no attribute '"+method+"'")
	}
	return o, args[1:], nil
}

func miSetAdd(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	o, rest, err := recvSet(ctx, args, "add")
	if err != nil {
		return values.Value{}, err
	}
	if len(rest) != 1 {
		return values.Value{}, ctx.Raise("TypeError", "add() takes exactly one argument")
	}
	key, ok := values.HashKey(ctx.Heap(), rest[0])
	if !ok {
		return values.Value{}, ctx.Raise("TypeError", "unhashable type: '"+values.KindOf(ctx.Heap(), rest[0])+"'")
	}
	o.Add(key, rest[0])
	return values.None(), nil
}

func miSetRemove(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	o, rest, err := recvSet(ctx, args, "remove")
	if err != nil {
		return values.Value{}, err
	}
	if len(rest) != 1 {
		return values.Value{}, ctx.Raise("TypeError", "remove() takes exactly one argument")
	}
	key, ok := values.HashKey(ctx.Heap(), rest[0])
	if !ok {
		return values.Value{}, ctx.Raise("TypeError", "unhashable type: '"+values.KindOf(ctx.Heap(), rest[0])+"'")
	}
	if !o.Remove(key) {
		return values.Value{}, ctx.Raise("KeyError", values.FormatRepr(ctx.Heap(), rest[0]))
	}
	return values.None(), nil
}

func miSetDiscard(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	o, rest, err := recvSet(ctx, args, "discard")
	if err != nil {
		return values.Value{}, err
	}
	if len(rest) != 1 {
		return values.Value{}, ctx.Raise("TypeError", "discard() takes exactly one argument")
	}
	if key, ok := values.HashKey(ctx.Heap(), rest[0]); ok {
		o.Remove(key)
	}
	return values.None(), nil
}

func miSetClear(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	o, _, err := recvSet(ctx, args, "clear")
	if err != nil {
		return values.Value{}, err
	}
	for _, v := range o.Values() {
		if key, ok := values.HashKey(ctx.Heap(), v); ok {
			o.Remove(key)
		}
	}
	return values.None(), nil
}

func setBinary(ctx registry.BuiltinCallContext, args []values.Value, method string, keep func(inOther bool) bool) (values.Value, error) {
	o, rest, err := recvSet(ctx, args, method)
	if err != nil {
		return values.Value{}, err
	}
	if len(rest) != 1 {
		return values.Value{}, ctx.Raise("TypeError", method+"() takes exactly one argument")
	}
	otherElems, err := materializeElemsRoots(ctx.Heap(), ctx.Roots(), rest[0])
	if err != nil {
		return values.Value{}, err
	}
	other := values.NewSetObj()
	for _, v := range otherElems {
		if key, ok := values.HashKey(ctx.Heap(), v); ok {
			other.Add(key, v)
		}
	}
	out := values.NewSetObj()
	for _, v := range o.Values() {
		key, _ := values.HashKey(ctx.Heap(), v)
		if keep(other.Has(key)) {
			out.Add(key, v)
		}
	}
	if method == "union" {
		for _, v := range other.Values() {
			key, _ := values.HashKey(ctx.Heap(), v)
			out.Add(key, v)
		}
	}
	handle, err := ctx.Heap().Alloc(out, ctx.Roots())
	if err != nil {
		return values.Value{}, err
	}
	return values.FromHandle(handle), nil
}

func miSetUnion(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	return setBinary(ctx, args, "union", func(bool) bool { return true })
}

func miSetIntersection(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	return setBinary(ctx, args, "intersection", func(inOther bool) bool { return inOther })
}

func miSetDifference(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	return setBinary(ctx, args, "difference", func(inOther bool) bool { return !inOther })
}

func miSetCopy(ctx registry.BuiltinCallContext, args []values.Value, _ []string, _ []values.Value) (values.Value, error) {
	o, _, err := recvSet(ctx, args, "copy")
	if err != nil {
		return values.Value{}, err
	}
	out := values.NewSetObj()
	for _, v := range o.Values() {
		if key, ok := values.HashKey(ctx.Heap(), v); ok {
			out.Add(key, v)
		}
	}
	handle, err := ctx.Heap().Alloc(out, ctx.Roots())
	if err != nil {
		return values.Value{}, err
	}
	return values.FromHandle(handle), nil
}

