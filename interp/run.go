package interp

import (
	"time"

	"github.com/scostello/monty-go/builtins"
	"github.com/scostello/monty-go/values"
)

// suspendSignal is returned up through execOne/dispatch when an opcode
// transfers control back to the host instead of continuing the dispatch
// loop (spec.md §9: "suspension is simply returning from the dispatch loop
// with a Snapshot value"). It is never converted into a script exception.
type suspendSignal struct{ progress Progress }

func (s *suspendSignal) Error() string { return "monty: suspend" }

// run is the fetch-execute loop shared by Start and every Resume path. It
// returns exactly one of: a completion Progress, a suspension Progress, or
// a *RuntimeError / builtins.DeadlineExceeded error that callers surface to
// the host verbatim.
func (in *Interpreter) run() (Progress, error) {
	for {
		if len(in.Frames) == 0 {
			return Progress{Kind: ProgressComplete, Output: in.lastReturn}, nil
		}
		fr := in.Frames[len(in.Frames)-1]

		if fr.PC >= len(fr.Code.Code) {
			if err := in.doReturn(values.None()); err != nil {
				if terminal, progress, rerr := in.handleDispatchError(err); terminal {
					return progress, rerr
				}
				continue
			}
			continue
		}

		in.opCount++
		if in.Limits.hasDeadline() && in.opCount%in.Limits.checkInterval() == 0 {
			if !time.Now().Before(in.Limits.Deadline) {
				return Progress{}, builtins.DeadlineExceeded{}
			}
		}

		instr := fr.Code.Code[fr.PC]
		fr.PC++

		err := in.execOne(fr, instr)
		if err == nil {
			continue
		}
		if ss, ok := err.(*suspendSignal); ok {
			return ss.progress, nil
		}
		if terminal, progress, rerr := in.handleDispatchError(err); terminal {
			return progress, rerr
		}
	}
}

// handleDispatchError converts a dispatch-layer error into either a script
// exception that propagate can route to a handler (terminal=false: the
// loop should just continue, propagate already repositioned PC/Frames), or
// a terminal RuntimeError/DeadlineExceeded the host must see directly.
func (in *Interpreter) handleDispatchError(err error) (terminal bool, progress Progress, rerr error) {
	if re, ok := err.(*RuntimeError); ok {
		// Already propagated to exhaustion (e.g. a join error raised inside
		// tryJoin); surface as-is rather than re-wrapping.
		return true, Progress{}, re
	}
	kind, msg, bypass := classify(err)
	if bypass {
		return true, Progress{}, builtins.DeadlineExceeded{}
	}
	excVal, allocErr := in.newException(kind, msg)
	if allocErr != nil {
		k2, m2, _ := classify(allocErr)
		return true, Progress{}, &RuntimeError{Kind: k2, Message: m2}
	}
	if perr := in.propagate(excVal); perr != nil {
		return true, Progress{}, perr
	}
	return false, Progress{}, nil
}
