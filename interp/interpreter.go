package interp

import (
	"fmt"
	"time"

	"github.com/scostello/monty-go/asyncio"
	"github.com/scostello/monty-go/heap"
	"github.com/scostello/monty-go/program"
	"github.com/scostello/monty-go/registry"
	"github.com/scostello/monty-go/values"
)

// OSHandler is the signature of a host callback for OS calls. The
// interpreter never invokes Interpreter.OSHandler: an OS call either
// suspends with a Snapshot (OSEnabled) or raises NotImplementedError.
type OSHandler func(name string, args []values.Value) (values.Value, error)

// RuntimeError is the envelope spec.md §7 describes: every script-level
// exception that escapes user code surfaces to the host wrapped in one of
// these, carrying the inner taxonomy kind, message and formatted
// traceback.
type RuntimeError struct {
	Kind      string
	Message   string
	Traceback []values.TracebackEntry
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// FormattedTraceback renders e the way the parent language does
// (spec.md §7): "Traceback (most recent call last): ..." followed by one
// frame per entry and a final "Kind: message" line.
func (e *RuntimeError) FormattedTraceback() string {
	s := "Traceback (most recent call last):\n"
	for _, t := range e.Traceback {
		s += fmt.Sprintf("  File \"%s\", line %d, in %s\n", t.File, t.Line, t.FuncName)
		if t.Source != "" {
			s += fmt.Sprintf("    %s\n", t.Source)
		}
	}
	s += fmt.Sprintf("%s: %s\n", e.Kind, e.Message)
	return s
}

// InvalidArgument is returned by Start when the inputs map doesn't exactly
// match the Program's declared input names (spec.md §4.1).
type InvalidArgument struct{ Message string }

func (e *InvalidArgument) Error() string { return "InvalidArgument: " + e.Message }

// Interpreter executes one Program's top-level code object to completion or
// suspension. Every execution owns its own heap, frame stack and futures
// table (spec.md §9: "global state: none"); the only datum shared across
// concurrent Interpreters running the same Program is the Program itself,
// which is read-only.
type Interpreter struct {
	Prog    *program.Program
	Heap    *heap.Heap
	Frames  []*Frame
	Globals map[string]values.Value

	Builtins    *registry.Builtins
	Dataclasses *registry.DataclassRegistry
	NamedTuples *registry.NamedTupleRegistry
	Futures     *asyncio.Coordinator

	Limits  Limits
	started time.Time
	opCount int // opcodes executed so far; the deadline is checked at every multiple of the check interval

	PrintSink func(string)
	OSHandler OSHandler

	OSEnabled  bool // host opted into mediating OS calls via the Snapshot protocol
	ExtEnabled bool // host opted into mediating declared external calls

	nextCallID uint64

	// pendingArgs/pendingKwValues are the materialised arguments of the call
	// currently being turned into a Snapshot/OS call, kept as an explicit
	// root while the interpreter is suspended mid-suspend-construction.
	pendingArgs     []values.Value
	pendingKwValues []values.Value

	extraRoots []heap.RootFunc

	lastReturn values.Value
}

// New constructs an Interpreter ready to Start prog. builtins/dataclasses/
// namedTuples may be shared read-only across many Interpreters; heap limits
// come from limits.
func New(prog *program.Program, builtins *registry.Builtins, dataclasses *registry.DataclassRegistry, namedTuples *registry.NamedTupleRegistry, limits Limits, printSink func(string)) *Interpreter {
	hl := heap.Limits{
		MaxBytes:      limits.MaxHeapBytes,
		MaxAllocs:     limits.MaxAllocations,
		SweepInterval: limits.GCInterval,
	}
	if printSink == nil {
		printSink = func(string) {}
	}
	return &Interpreter{
		Prog:        prog,
		Heap:        heap.New(hl),
		Globals:     make(map[string]values.Value),
		Builtins:    builtins,
		Dataclasses: dataclasses,
		NamedTuples: namedTuples,
		Futures:     asyncio.New(),
		Limits:      limits,
		PrintSink:   printSink,
	}
}

// AddExtraRoot registers an additional root enumerator (e.g. a Repl's
// persistent scope) that must be kept alive across this Interpreter's
// sweeps even though it isn't part of the interpreter's own frames/globals.
func (in *Interpreter) AddExtraRoot(fn heap.RootFunc) {
	in.extraRoots = append(in.extraRoots, fn)
}

// Start seeds the top-level frame with inputs and runs until the first
// suspension or completion (spec.md §4.1).
func (in *Interpreter) Start(inputs map[string]values.Value) (Progress, error) {
	if err := in.checkInputs(inputs); err != nil {
		return Progress{}, err
	}
	top := &in.Prog.Codes[in.Prog.TopLevel]
	frame := NewFrame(top, in.Prog.TopLevel, nil)
	for name, v := range inputs {
		in.Globals[name] = v
	}
	in.Frames = []*Frame{frame}
	in.started = time.Now()
	return in.run()
}

// RunSync is the convenience entry point (spec.md §4.1): if the Program
// declares no external functions, it behaves like Start but fails instead
// of returning a Snapshot/FutureSnapshot should one ever be produced
// (covers both "and no OS calls occur" via OSEnabled/ExtEnabled being left
// false, which makes any yield attempt fail at the call site instead of
// suspending).
func (in *Interpreter) RunSync(inputs map[string]values.Value) (values.Value, error) {
	if len(in.Prog.ExternalFuncs) > 0 {
		return values.Value{}, fmt.Errorf("monty: run_sync: program declares external functions; use start/resume")
	}
	progress, err := in.Start(inputs)
	if err != nil {
		return values.Value{}, err
	}
	switch progress.Kind {
	case ProgressComplete:
		return progress.Output, nil
	default:
		return values.Value{}, fmt.Errorf("monty: run_sync: program suspended; host has not opted into the Snapshot protocol")
	}
}

func (in *Interpreter) checkInputs(inputs map[string]values.Value) error {
	want := make(map[string]bool, len(in.Prog.InputNames))
	for _, n := range in.Prog.InputNames {
		want[n] = true
	}
	for n := range inputs {
		if !want[n] {
			return &InvalidArgument{Message: fmt.Sprintf("unexpected input %q", n)}
		}
	}
	for n := range want {
		if _, ok := inputs[n]; !ok {
			return &InvalidArgument{Message: fmt.Sprintf("missing input %q", n)}
		}
	}
	return nil
}

// Resume restores execution against a single-use Snapshot and continues the
// dispatch loop with the host-supplied outcome applied at the paused call
// site (spec.md §4.3).
func (in *Interpreter) Resume(snap *Snapshot, outcome Outcome) (Progress, error) {
	if snap.consumed {
		return Progress{}, fmt.Errorf("monty: snapshot already consumed")
	}
	snap.consumed = true
	owner := snap.interp
	owner.pendingArgs = nil
	owner.pendingKwValues = nil

	top := owner.Frames[len(owner.Frames)-1]
	switch outcome.Kind {
	case OutcomeReturn:
		top.Push(outcome.Value)
	case OutcomeException:
		if err := owner.raiseInto(outcome.ExcKind, outcome.ExcMsg); err != nil {
			return owner.surfaceFailure(err)
		}
	case OutcomeFuture:
		owner.Futures.Register(outcome.FutureCallID)
		handle, err := owner.Heap.Alloc(&values.FutureObj{CallID: outcome.FutureCallID}, owner.roots)
		if err != nil {
			return owner.surfaceFailure(err)
		}
		top.Push(values.FromHandle(handle))
	}
	return owner.run()
}

// ResumeFuture restores execution against a FutureSnapshot: outcomes maps
// some non-empty subset of PendingIDs to their resolved outcome
// (spec.md §4.3 first-completed policy).
func (in *Interpreter) ResumeFuture(snap *FutureSnapshot, outcomes map[uint64]Outcome) (Progress, error) {
	if snap.consumed {
		return Progress{}, fmt.Errorf("monty: snapshot already consumed")
	}
	if len(outcomes) == 0 {
		return Progress{}, fmt.Errorf("monty: resume requires at least one completed outcome")
	}
	snap.consumed = true
	owner := snap.interp
	for id, oc := range outcomes {
		switch oc.Kind {
		case OutcomeReturn:
			owner.Futures.Resolve(id, asyncio.Outcome{Status: asyncio.CompletedOK, Value: oc.Value})
		case OutcomeException:
			owner.Futures.Resolve(id, asyncio.Outcome{Status: asyncio.CompletedErr, ExcKind: oc.ExcKind, ExcMsg: oc.ExcMsg})
		default:
			return Progress{}, fmt.Errorf("monty: FutureSnapshot resume outcome must be return or exception, not future")
		}
	}
	if err := owner.tryJoin(snap.allIDs); err != nil {
		if ss, ok := err.(*suspendSignal); ok {
			return ss.progress, nil
		}
		if terminal, progress, rerr := owner.handleDispatchError(err); terminal {
			return progress, rerr
		}
	}
	return owner.run()
}

func (in *Interpreter) surfaceFailure(err error) (Progress, error) {
	return Progress{}, err
}
