package interp

import (
	"github.com/scostello/monty-go/heap"
	"github.com/scostello/monty-go/serialize"
	"github.com/scostello/monty-go/values"
)

// Roots exposes this interpreter's root enumerator so hosts converting
// values onto its heap charge allocations against live roots.
func (in *Interpreter) Roots() heap.RootFunc {
	return in.roots
}

// RunCode runs the code object at codeIdx as a fresh top-level frame over
// this Interpreter's existing global scope, without Start's input-name
// check. The Repl uses it to execute each fed block against the same
// persistent bindings (spec.md §4.5); limits and counters carry over from
// previous runs by design.
func (in *Interpreter) RunCode(codeIdx int) (Progress, error) {
	code := &in.Prog.Codes[codeIdx]
	in.Frames = []*Frame{NewFrame(code, codeIdx, nil)}
	in.lastReturn = values.None()
	return in.run()
}

// WriteState and ReadState expose the Snapshot envelope's interpreter-state
// record for the Repl's whole-interpreter Dump/Load (spec.md §4.5: "persist
// the entire interpreter - scope, heap, limits counters"). The Repl writes
// its own envelope header and Program record around them.
func (in *Interpreter) WriteState(wr *serialize.Writer) {
	writeInterpreterState(wr, in)
}

func (in *Interpreter) ReadState(rd *serialize.Reader) {
	readInterpreterState(rd, in, in.Dataclasses)
}
