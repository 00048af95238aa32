// Package interp implements the Monty bytecode dispatch loop: an explicit,
// caller-visible array of Frame records (not host-language goroutines or
// channels) so that a pending call can be captured into a Snapshot and
// resumed later, possibly much later and possibly after a process restart.
// The execution context holds a call stack of frames and a single dispatch
// switch over opcodes.Instruction; suspension is a return from that loop,
// per the cooperative suspend/resume protocol spec.md §4 requires.
package interp

import (
	"github.com/scostello/monty-go/program"
	"github.com/scostello/monty-go/values"
)

// TryHandler records one active try block: where to jump on a matching
// except, and the eval-stack depth to restore to before jumping there.
type TryHandler struct {
	ExceptPC  int
	FinallyPC int // -1 if no finally
	StackDepth int
}

// Frame is one activation record: a code object, its program counter, local
// slots, and a private evaluation stack. Frames never share Go call-stack
// state with each other, so the whole CallStack can be copied into a
// Snapshot and later restored verbatim.
type Frame struct {
	Code      *program.CodeObject
	CodeIndex int // index into Program.Codes; Code's serialisable identity
	PC        int
	Locals    []values.Value
	Cells     []values.Value // this frame's own closure cells, for child closures
	Free      []values.Value // free-variable values captured from an enclosing frame
	Stack     []values.Value
	Handlers  []TryHandler
	GatherIdx int // initialised to -1 and carried through Dump/Load; dispatch never sets or reads it

	// IsCtor marks a frame running a class's __init__: on return, doReturn
	// pushes CtorSelf onto the caller's stack instead of __init__'s own
	// (always-None) return value, so `ClassName(...)` evaluates to the new
	// instance rather than to whatever __init__ returned.
	IsCtor   bool
	CtorSelf values.Value
}

func NewFrame(code *program.CodeObject, codeIndex int, free []values.Value) *Frame {
	return &Frame{
		Code:      code,
		CodeIndex: codeIndex,
		Locals:    make([]values.Value, code.NumLocals),
		Free:      free,
		Stack:     make([]values.Value, 0, 16),
		GatherIdx: -1,
	}
}

func (f *Frame) Push(v values.Value) { f.Stack = append(f.Stack, v) }

func (f *Frame) Pop() values.Value {
	n := len(f.Stack) - 1
	v := f.Stack[n]
	f.Stack = f.Stack[:n]
	return v
}

func (f *Frame) Top() values.Value { return f.Stack[len(f.Stack)-1] }

func (f *Frame) PopN(n int) []values.Value {
	start := len(f.Stack) - n
	out := append([]values.Value(nil), f.Stack[start:]...)
	f.Stack = f.Stack[:start]
	return out
}
