package interp

import "github.com/scostello/monty-go/values"

// newException allocates an ExceptionObj on the heap and returns it as a
// Value, ready to be propagated or pushed onto a script-visible stack (e.g.
// the except-clause binding).
func (in *Interpreter) newException(kind, msg string) (values.Value, error) {
	handle, err := in.Heap.Alloc(&values.ExceptionObj{ExcKind: kind, Message: msg}, in.roots)
	if err != nil {
		return values.Value{}, err
	}
	return values.FromHandle(handle), nil
}

// raiseInto constructs kind/msg as an exception and propagates it starting
// at the current top frame, used when a host-supplied Resume outcome is an
// exception (spec.md §4.3: "raises an exception of the appropriate kind at
// the call site; normal try/except applies").
func (in *Interpreter) raiseInto(kind, msg string) error {
	excVal, err := in.newException(kind, msg)
	if err != nil {
		return err
	}
	return in.propagate(excVal)
}

// propagate unwinds the frame stack looking for a handler whose kind
// matches excVal's, per spec.md §4.1/§7. A match truncates the stack to the
// handler's declared depth, pushes the exception value and repositions PC
// at the handler; dispatch resumes normally on the next run() iteration.
// No match anywhere surfaces a *RuntimeError carrying the full traceback.
func (in *Interpreter) propagate(excVal values.Value) error {
	excKind := "Exception"
	excMsg := ""
	if obj, ok := in.Heap.Get(excVal.Handle()).(*values.ExceptionObj); ok {
		excKind, excMsg = obj.ExcKind, obj.Message
	}

	for len(in.Frames) > 0 {
		fr := in.Frames[len(in.Frames)-1]
		if h, ok := popMatchingHandler(fr, excKind); ok {
			fr.Stack = fr.Stack[:h.StackDepth]
			fr.Push(excVal)
			fr.PC = h.ExceptPC
			return nil
		}
		// No handler in this frame: record a traceback entry and unwind.
		entry := values.TracebackEntry{
			File:     in.Prog.ScriptName,
			Line:     lineFor(fr.Code, fr.PC),
			FuncName: fr.Code.Name,
		}
		if obj, ok := in.Heap.Get(excVal.Handle()).(*values.ExceptionObj); ok {
			obj.Traceback = append(obj.Traceback, entry)
		}
		in.Frames = in.Frames[:len(in.Frames)-1]
	}

	var tb []values.TracebackEntry
	if obj, ok := in.Heap.Get(excVal.Handle()).(*values.ExceptionObj); ok {
		tb = obj.Traceback
	}
	return &RuntimeError{Kind: excKind, Message: excMsg, Traceback: tb}
}

// popMatchingHandler finds and removes the innermost handler in fr whose
// declared kind (carried implicitly: every SETUP_TRY handles all kinds at
// the bytecode level, matching is left to the generated except-clause code
// that re-raises on a kind mismatch) is consulted. Monty's codegen emits
// one SETUP_TRY per try block covering all of its except clauses, each
// responsible for re-dispatching by kind at the handler PC itself — so at
// the frame-unwind level any pending handler is a candidate; it is up to
// the generated except dispatch to RERAISE if the live exception's kind
// doesn't match any of its except clauses.
func popMatchingHandler(fr *Frame, _ string) (TryHandler, bool) {
	if len(fr.Handlers) == 0 {
		return TryHandler{}, false
	}
	n := len(fr.Handlers) - 1
	h := fr.Handlers[n]
	fr.Handlers = fr.Handlers[:n]
	return h, true
}
