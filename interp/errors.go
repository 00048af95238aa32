package interp

import (
	"fmt"

	"github.com/scostello/monty-go/builtins"
	"github.com/scostello/monty-go/heap"
	"github.com/scostello/monty-go/values"
)

// ScriptError is a taxonomy exception raised directly by opcode dispatch
// (bad index, bad attribute, unresolved name, ...) rather than by the
// values package's operator implementations. interp converts both into the
// same ExceptionObj/propagate path so user try/except sees one uniform
// shape regardless of which layer detected the failure.
type ScriptError struct {
	Kind string
	Msg  string
}

func (e *ScriptError) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Msg) }

func scriptErrorf(kind, format string, a ...interface{}) *ScriptError {
	return &ScriptError{Kind: kind, Msg: fmt.Sprintf(format, a...)}
}

// classify maps any error dispatch.go/calls.go can produce to an exception
// kind+message pair ready for propagate, or bypass=true for the one kind
// that must skip the handler stack entirely (spec.md §4.2).
func classify(err error) (kind, msg string, bypass bool) {
	switch e := err.(type) {
	case *ScriptError:
		return e.Kind, e.Msg, false
	case *values.OpError:
		return e.ExcKind, e.Message, false
	case *heap.ErrMemory:
		return "MemoryError", e.Reason, false
	case builtins.DeadlineExceeded:
		return "TimeoutError", "deadline exceeded", true
	default:
		return "RuntimeError", err.Error(), false
	}
}
