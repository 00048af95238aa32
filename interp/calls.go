package interp

import (
	"fmt"

	"github.com/scostello/monty-go/asyncio"
	"github.com/scostello/monty-go/heap"
	"github.com/scostello/monty-go/program"
	"github.com/scostello/monty-go/registry"
	"github.com/scostello/monty-go/values"
)

// markerCodeIndex flags a ClosureObj that doesn't point at a real CodeObject
// at all: it stands in for a name resolved at call time instead, collapsing
// spec.md §4.1's call-path cases 1 ("builtin function"), 4 ("declared
// external function") and 5 ("OS call") onto one representation, so
// LOAD_GLOBAL/ATTR_GET never have to decide ahead of the call which of the
// three a name is going to turn out to be.
const markerCodeIndex = -1

// resolveCallableName builds the marker Value LOAD_GLOBAL pushes for a name
// that isn't a local/global binding: a declared external function or a
// fixed builtin, in that priority order. OS-call names never reach this
// path directly — they're produced by ATTR_GET on a Path/module value
// (attrGet / moduleAttr in attrs.go), already carrying the
// "Path.foo"/"os.foo" qualified name callMarker dispatches on.
func (in *Interpreter) resolveCallableName(name string) (values.Value, bool) {
	for _, ext := range in.Prog.ExternalFuncs {
		if ext == name {
			return in.markerValue(name)
		}
	}
	if _, ok := in.Builtins.Lookup(name); ok {
		return in.markerValue(name)
	}
	return values.Value{}, false
}

func (in *Interpreter) markerValue(name string) (values.Value, bool) {
	handle, err := in.Heap.Alloc(&values.ClosureObj{CodeIndex: markerCodeIndex, Name: name}, in.roots)
	if err != nil {
		return values.Value{}, false
	}
	return values.FromHandle(handle), true
}

func (in *Interpreter) asMarker(v values.Value) (*values.ClosureObj, bool) {
	if !v.IsHandle() {
		return nil, false
	}
	c, ok := in.Heap.Get(v.Handle()).(*values.ClosureObj)
	if !ok || c.CodeIndex != markerCodeIndex {
		return nil, false
	}
	return c, true
}

func (in *Interpreter) asClosure(v values.Value) (*values.ClosureObj, bool) {
	if !v.IsBoxedKind(in.Heap, heap.KindClosure) {
		return nil, false
	}
	c := in.Heap.Get(v.Handle()).(*values.ClosureObj)
	if c.CodeIndex == markerCodeIndex {
		return nil, false
	}
	return c, true
}

// doReturn pops the current frame. If it was the outermost frame, execution
// is complete and retVal becomes the final Output; otherwise the value
// pushed onto the new top frame's stack is retVal, unless the popped frame
// was a constructor frame (IsCtor), in which case it's the instance that
// constructor call produced regardless of what __init__ itself returned.
func (in *Interpreter) doReturn(retVal values.Value) error {
	popped := in.Frames[len(in.Frames)-1]
	n := len(in.Frames) - 1
	in.Frames = in.Frames[:n]
	if popped.IsCtor {
		retVal = popped.CtorSelf
	}
	if n == 0 {
		in.lastReturn = retVal
		return nil
	}
	in.Frames[n-1].Push(retVal)
	return nil
}

// errDeferToCtorFrame is instantiate's signal that it already pushed a new
// __init__ frame onto in.Frames instead of producing a value directly;
// callValue treats it as success with nothing left to push here.
var errDeferToCtorFrame = &deferToCtorFrame{}

type deferToCtorFrame struct{}

func (*deferToCtorFrame) Error() string { return "monty: deferred to constructor frame" }

// callValue implements the six call-path cases of spec.md §4.1.
func (in *Interpreter) callValue(fr *Frame, callee values.Value, args []values.Value, kwNames []string, kwValues []values.Value) error {
	if marker, ok := in.asMarker(callee); ok {
		return in.callMarker(fr, marker.Name, args, kwNames, kwValues)
	}
	if closure, ok := in.asClosure(callee); ok {
		return in.callClosure(closure, args, kwNames, kwValues)
	}
	if callee.IsBoxedKind(in.Heap, heap.KindClass) {
		cls := in.Heap.Get(callee.Handle()).(*values.ClassObj)
		result, err := in.instantiate(cls.Info, args, kwNames, kwValues)
		if err == errDeferToCtorFrame {
			return nil
		}
		if err != nil {
			return err
		}
		fr.Push(result)
		return nil
	}
	if callee.IsBoxedKind(in.Heap, heap.KindBoundMethod) {
		bm := in.Heap.Get(callee.Handle()).(*values.BoundMethodObj)
		full := append([]values.Value{bm.Receiver}, args...)
		if marker, ok := in.asMarker(bm.Method); ok {
			return in.callMarker(fr, marker.Name, full, kwNames, kwValues)
		}
		if closure, ok := in.asClosure(bm.Method); ok {
			return in.callClosure(closure, full, kwNames, kwValues)
		}
		return scriptErrorf("TypeError", "bound method has no callable target")
	}
	return scriptErrorf("TypeError", "'%s' object is not callable", values.KindOf(in.Heap, callee))
}

func (in *Interpreter) callMarker(fr *Frame, name string, args []values.Value, kwNames []string, kwValues []values.Value) error {
	for _, ext := range in.Prog.ExternalFuncs {
		if ext == name {
			return in.yieldExternal(name, false, args, kwNames, kwValues)
		}
	}
	if isOSCallName(name) {
		if !in.OSEnabled {
			return scriptErrorf("NotImplementedError", "OS function '%s' not implemented", name)
		}
		return in.yieldExternal(name, true, args, kwNames, kwValues)
	}
	if fields, ok := in.NamedTuples.Lookup(name); ok {
		return in.constructNamedTuple(fr, name, fields, args, kwNames, kwValues)
	}
	impl, ok := in.Builtins.Lookup(name)
	if !ok {
		return scriptErrorf("NameError", "name '%s' is not defined", name)
	}
	ctx := &callContext{in: in}
	result, err := impl(ctx, args, kwNames, kwValues)
	if err != nil {
		return err
	}
	fr.Push(result)
	return nil
}

// constructNamedTuple builds the TupleObj for a collections.namedtuple
// instance: positional args bind to fields in declared order, keyword args
// fill the rest by name, same binding rule bindParams uses for closures.
func (in *Interpreter) constructNamedTuple(fr *Frame, typeName string, fields []string, args []values.Value, kwNames []string, kwValues []values.Value) error {
	if len(args) > len(fields) {
		return scriptErrorf("TypeError", "%s() takes %d arguments but %d were given", typeName, len(fields), len(args))
	}
	elems := make([]values.Value, len(fields))
	set := make([]bool, len(fields))
	for i, v := range args {
		elems[i] = v
		set[i] = true
	}
	for i, name := range kwNames {
		found := false
		for slot, f := range fields {
			if f == name {
				elems[slot] = kwValues[i]
				set[slot] = true
				found = true
				break
			}
		}
		if !found {
			return scriptErrorf("TypeError", "%s() got an unexpected keyword argument '%s'", typeName, name)
		}
	}
	for i, ok := range set {
		if !ok {
			return scriptErrorf("TypeError", "%s() missing required argument: '%s'", typeName, fields[i])
		}
	}
	handle, err := in.Heap.Alloc(&values.TupleObj{Elems: elems, TypeName: typeName}, in.roots)
	if err != nil {
		return err
	}
	fr.Push(values.FromHandle(handle))
	return nil
}

func (in *Interpreter) callClosure(closure *values.ClosureObj, args []values.Value, kwNames []string, kwValues []values.Value) error {
	if in.Limits.MaxRecursionDepth > 0 && len(in.Frames) >= in.Limits.MaxRecursionDepth {
		return scriptErrorf("RecursionError", "maximum recursion depth exceeded")
	}
	code := &in.Prog.Codes[closure.CodeIndex]
	locals := make([]values.Value, code.NumLocals)
	if err := bindParams(in, code, locals, args, kwNames, kwValues); err != nil {
		return err
	}
	newFrame := NewFrame(code, closure.CodeIndex, closure.Free)
	newFrame.Locals = locals
	in.Frames = append(in.Frames, newFrame)
	return nil
}

// bindParams assigns positional and keyword arguments to a new frame's
// local slots, applying declared defaults for params the call omitted.
func bindParams(in *Interpreter, code *program.CodeObject, locals []values.Value, args []values.Value, kwNames []string, kwValues []values.Value) error {
	n := len(code.Params)
	for i := 0; i < n && i < len(args); i++ {
		locals[i] = args[i]
	}
	for i, name := range kwNames {
		for slot, p := range code.Params {
			if p.Name == name {
				locals[slot] = kwValues[i]
			}
		}
	}
	for i, p := range code.Params {
		if i < len(args) {
			continue
		}
		bound := false
		for _, name := range kwNames {
			if name == p.Name {
				bound = true
			}
		}
		if bound {
			continue
		}
		if !p.HasDef {
			return scriptErrorf("TypeError", "missing required argument: '%s'", p.Name)
		}
		v, err := in.constToValue(p.DefConst)
		if err != nil {
			return err
		}
		locals[i] = v
	}
	return nil
}

func isOSCallName(name string) bool {
	switch name {
	case "Path.exists", "Path.is_file", "Path.is_dir", "Path.is_symlink",
		"Path.read_text", "Path.read_bytes", "Path.write_text", "Path.write_bytes",
		"Path.mkdir", "Path.unlink", "Path.rmdir", "Path.iterdir", "Path.glob",
		"Path.stat", "Path.rename", "Path.resolve", "Path.absolute",
		"os.getenv", "os.environ", "os.path.exists", "asyncio.sleep":
		return true
	}
	return false
}

// yieldExternal materialises a Snapshot for an external or OS call and
// returns a *suspendSignal so execOne/run surface it to the host verbatim
// (spec.md §4.3 triggers 1 and 2).
func (in *Interpreter) yieldExternal(name string, isOS bool, args []values.Value, kwNames []string, kwValues []values.Value) error {
	if !isOS && !in.ExtEnabled {
		return fmt.Errorf("monty: program calls declared external function %q but host has not opted into the Snapshot protocol", name)
	}
	if isOS && !in.OSEnabled {
		return scriptErrorf("NotImplementedError", "OS function '%s' not implemented", name)
	}
	in.nextCallID++
	callID := in.nextCallID
	in.pendingArgs = args
	in.pendingKwValues = kwValues
	snap := &Snapshot{
		CallID:   callID,
		FuncName: name,
		IsOS:     isOS,
		Args:     append([]values.Value(nil), args...),
		KwNames:  append([]string(nil), kwNames...),
		KwValues: append([]values.Value(nil), kwValues...),
		interp:   in,
	}
	return &suspendSignal{progress: Progress{Kind: ProgressSnapshot, Snapshot: snap}}
}

// tryJoin implements the YIELD_FUTURE_JOIN suspension trigger and its
// resumption (spec.md §4.3 trigger 3, §4.6 gather semantics): if any id in
// ids is still pending, it suspends with a FutureSnapshot; once every id is
// complete, it pushes the ordered result list (or propagates the
// earliest-in-argument-order error) and lets dispatch continue normally.
func (in *Interpreter) tryJoin(ids []uint64) error {
	pending := in.Futures.PendingAmong(ids)
	if len(pending) > 0 {
		return &suspendSignal{progress: Progress{
			Kind: ProgressFutureSnapshot,
			FutureSnapshot: &FutureSnapshot{
				PendingIDs: pending,
				interp:     in,
				allIDs:     ids,
			},
		}}
	}
	vals := make([]values.Value, len(ids))
	for i, id := range ids {
		oc, _ := in.Futures.Lookup(id)
		if oc.Status == asyncio.CompletedErr {
			return in.raiseInto(oc.ExcKind, oc.ExcMsg)
		}
		vals[i], _ = oc.Value.(values.Value)
	}
	for _, id := range ids {
		in.Futures.Forget(id)
	}
	handle, err := in.Heap.Alloc(&values.ListObj{Elems: vals}, in.roots)
	if err != nil {
		return err
	}
	in.Frames[len(in.Frames)-1].Push(values.FromHandle(handle))
	return nil
}

// callContext adapts *Interpreter to registry.BuiltinCallContext so the
// builtins package never imports interp directly.
type callContext struct{ in *Interpreter }

func (c *callContext) Heap() *heap.Heap     { return c.in.Heap }
func (c *callContext) Roots() heap.RootFunc { return c.in.roots }
func (c *callContext) Print(s string)       { c.in.PrintSink(s) }
func (c *callContext) Raise(kind, msg string) error {
	return &ScriptError{Kind: kind, Msg: msg}
}
func (c *callContext) Dataclasses() *registry.DataclassRegistry { return c.in.Dataclasses }
func (c *callContext) NamedTuples() *registry.NamedTupleRegistry { return c.in.NamedTuples }
func (c *callContext) YieldExternal(name string, isOS bool, args []values.Value, kwNames []string, kwValues []values.Value) (values.Value, error) {
	err := c.in.yieldExternal(name, isOS, args, kwNames, kwValues)
	return values.Value{}, err
}
