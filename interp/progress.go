package interp

import "github.com/scostello/monty-go/values"

// ProgressKind tags which variant of Progress (spec.md glossary) a Start or
// Resume call returned.
type ProgressKind byte

const (
	ProgressComplete ProgressKind = iota
	ProgressSnapshot
	ProgressFutureSnapshot
)

// Progress is the sum type spec.md §2/§4.1 returns from start/resume: exactly
// one of Complete, Snapshot or FutureSnapshot is populated, selected by
// Kind.
type Progress struct {
	Kind ProgressKind

	// ProgressComplete
	Output values.Value

	// ProgressSnapshot
	Snapshot *Snapshot

	// ProgressFutureSnapshot
	FutureSnapshot *FutureSnapshot
}

// Snapshot is a paused-at-external-call record (spec.md §3). It is
// single-use: Resume marks it consumed and any second Resume fails.
type Snapshot struct {
	CallID   uint64
	FuncName string
	IsOS     bool
	Args     []values.Value
	KwNames  []string
	KwValues []values.Value

	interp   *Interpreter
	consumed bool
}

// Consumed reports whether Resume has already been called on this Snapshot.
func (s *Snapshot) Consumed() bool { return s.consumed }

// Interpreter returns the paused interpreter owning this Snapshot's state,
// for hosts that need to materialise values onto its heap before resuming.
func (s *Snapshot) Interpreter() *Interpreter { return s.interp }

// FutureSnapshot is a paused-at-join record (spec.md §3): the interpreter is
// waiting for any non-empty subset of PendingIDs to complete before it can
// make further progress (first-completed policy, spec.md §4.6).
type FutureSnapshot struct {
	PendingIDs []uint64

	interp   *Interpreter
	consumed bool
	allIDs   []uint64 // the full join set, including already-completed ids, for ordered gather results
}

func (f *FutureSnapshot) Consumed() bool { return f.consumed }

// Interpreter returns the paused interpreter owning this FutureSnapshot's
// state.
func (f *FutureSnapshot) Interpreter() *Interpreter { return f.interp }

// Outcome is what a host supplies back to Resume for one Snapshot, or one
// entry of the map supplied to a FutureSnapshot's Resume.
type Outcome struct {
	Kind OutcomeKind

	// OutcomeReturn
	Value values.Value

	// OutcomeException
	ExcKind string
	ExcMsg  string

	// OutcomeFuture
	FutureCallID uint64
}

type OutcomeKind byte

const (
	OutcomeReturn OutcomeKind = iota
	OutcomeException
	OutcomeFuture
)

func Return(v values.Value) Outcome { return Outcome{Kind: OutcomeReturn, Value: v} }
func Raise(kind, msg string) Outcome {
	return Outcome{Kind: OutcomeException, ExcKind: kind, ExcMsg: msg}
}
func AsFuture(callID uint64) Outcome { return Outcome{Kind: OutcomeFuture, FutureCallID: callID} }
