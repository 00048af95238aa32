// Package monty is the host-facing surface of the engine: compile a script
// once into an immutable Program, then run it any number of times — fully
// synchronously via Run, or through the Snapshot/resume protocol via Start
// when the script calls declared external functions or the mediated OS
// surface (spec.md §4.1, §4.3).
package monty

import (
	"io"
	"sync"

	"github.com/scostello/monty-go/builtins"
	"github.com/scostello/monty-go/compiler/codegen"
	"github.com/scostello/monty-go/interp"
	"github.com/scostello/monty-go/program"
	"github.com/scostello/monty-go/registry"
	"github.com/scostello/monty-go/values"
)

// Config selects a Monty's compilation inputs and per-run behaviour.
type Config struct {
	ScriptName        string
	Inputs            []string // declared input parameter names
	ExternalFunctions []string // declared external function names
	TypeCheckStubs    string   // opaque, stored on the Program verbatim
	Limits            interp.Limits
	PrintSink         func(string)
	// MediateOS opts the host into receiving OS calls as Snapshots. When
	// false, any Path/os call raises NotImplementedError in-script.
	MediateOS bool
}

// Monty owns one compiled Program plus the shared read-only tables. It is
// safe to Start/Run from many goroutines concurrently: each execution gets
// its own Interpreter, heap and stacks (spec.md §5).
type Monty struct {
	prog        *program.Program
	cfg         Config
	builtins    *registry.Builtins
	dataclasses *registry.DataclassRegistry
	namedTuples *registry.NamedTupleRegistry
}

var (
	sharedBuiltinsOnce sync.Once
	sharedBuiltins     *registry.Builtins
)

// SharedBuiltins returns the process-wide builtin table, built once.
func SharedBuiltins() *registry.Builtins {
	sharedBuiltinsOnce.Do(func() {
		reg := registry.NewBuiltins()
		builtins.Register(reg) // pulls in exceptions, Path, asyncio, dataclasses, namedtuple
		builtins.RegisterMethods(reg)
		sharedBuiltins = reg
	})
	return sharedBuiltins
}

// New compiles source under cfg. Compilation failures surface as
// *lexer.SyntaxError.
func New(source string, cfg Config) (*Monty, error) {
	prog, err := codegen.Compile(source, codegen.Options{
		ScriptName: cfg.ScriptName,
		Inputs:     cfg.Inputs,
		Externals:  cfg.ExternalFunctions,
		TypeStub:   cfg.TypeCheckStubs,
	})
	if err != nil {
		return nil, err
	}
	return &Monty{
		prog:        prog,
		cfg:         cfg,
		builtins:    SharedBuiltins(),
		dataclasses: registry.NewDataclassRegistry(),
		namedTuples: registry.NewNamedTupleRegistry(),
	}, nil
}

// MustNew is New for sources known good at build time, in examples and
// tests.
func MustNew(source string, cfg Config) *Monty {
	m, err := New(source, cfg)
	if err != nil {
		panic(err)
	}
	return m
}

// Program exposes the immutable compiled unit, e.g. for Program.Dump.
func (m *Monty) Program() *program.Program { return m.prog }

// RegisterDataclass registers a host-known dataclass layout by name so
// instances round-trip through Snapshot serialisation (spec.md §4.4).
func (m *Monty) RegisterDataclass(name string, fields []string, frozen bool) error {
	return m.dataclasses.Register(name, &values.ClassInfo{
		Name: name, Fields: fields, IsDataclass: true, Frozen: frozen,
	})
}

// Dataclasses exposes the registry for snapshot loading.
func (m *Monty) Dataclasses() *registry.DataclassRegistry { return m.dataclasses }

func (m *Monty) newInterp() *interp.Interpreter {
	in := interp.New(m.prog, m.builtins, m.dataclasses, m.namedTuples, m.cfg.Limits, m.cfg.PrintSink)
	in.OSEnabled = m.cfg.MediateOS
	in.ExtEnabled = len(m.cfg.ExternalFunctions) > 0
	return in
}

// Run executes synchronously to completion (spec.md §4.1 run_sync): the
// Program must declare no external functions, and any OS call fails unless
// the host opted into mediation — in which case Start must be used instead.
func (m *Monty) Run(inputs map[string]any) (any, error) {
	in := m.newInterp()
	vals, err := convertInputs(in, inputs)
	if err != nil {
		return nil, err
	}
	out, err := in.RunSync(vals)
	if err != nil {
		return nil, err
	}
	return fromValue(in.Heap, out)
}

// Start begins an execution and runs to the first suspension or
// completion.
func (m *Monty) Start(inputs map[string]any) (Progress, error) {
	in := m.newInterp()
	vals, err := convertInputs(in, inputs)
	if err != nil {
		return Progress{}, err
	}
	progress, err := in.Start(vals)
	if err != nil {
		return Progress{}, err
	}
	return m.finishProgress(in, progress)
}

func convertInputs(in *interp.Interpreter, inputs map[string]any) (map[string]values.Value, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	out := make(map[string]values.Value, len(inputs))
	for name, hv := range inputs {
		v, err := toValue(in.Heap, in.Roots(), hv)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

// ProgressKind tags the variant a Start/Resume returned.
type ProgressKind byte

const (
	Complete ProgressKind = iota
	Suspended
	SuspendedOnFutures
)

// Progress is the host-level sum of Complete | Snapshot | FutureSnapshot.
type Progress struct {
	Kind ProgressKind

	// Complete
	Output any

	// Suspended
	Snapshot *Snapshot

	// SuspendedOnFutures
	FutureSnapshot *FutureSnapshot
}

// Snapshot is the host view of a paused-at-external-call record.
type Snapshot struct {
	m     *Monty
	inner *interp.Snapshot
}

// FunctionName is the declared external (or OS) function being called.
func (s *Snapshot) FunctionName() string { return s.inner.FuncName }

// CallID is the monotonically assigned identifier of this pending call.
func (s *Snapshot) CallID() uint64 { return s.inner.CallID }

// IsOS reports whether this is an OS-surface call rather than a declared
// external function.
func (s *Snapshot) IsOS() bool { return s.inner.IsOS }

// Args converts the positional arguments to host values.
func (s *Snapshot) Args() ([]any, error) {
	return fromValues(s.inner.Interpreter().Heap, s.inner.Args)
}

// Kwargs converts the keyword arguments to host values.
func (s *Snapshot) Kwargs() (map[string]any, error) {
	out := make(map[string]any, len(s.inner.KwNames))
	for i, name := range s.inner.KwNames {
		hv, err := fromValue(s.inner.Interpreter().Heap, s.inner.KwValues[i])
		if err != nil {
			return nil, err
		}
		out[name] = hv
	}
	return out, nil
}

// Resume supplies the call's return value and continues execution.
func (s *Snapshot) Resume(result any) (Progress, error) {
	in := s.inner.Interpreter()
	v, err := toValue(in.Heap, in.Roots(), result)
	if err != nil {
		return Progress{}, err
	}
	return s.finishResume(in, interp.Return(v))
}

// ResumeError raises kind/message at the paused call site.
func (s *Snapshot) ResumeError(kind, message string) (Progress, error) {
	return s.finishResume(s.inner.Interpreter(), interp.Raise(kind, message))
}

// ResumeAsPending marks this call as an in-flight future: the script
// receives an awaitable handle instead of a result (spec.md §4.3).
func (s *Snapshot) ResumeAsPending() (Progress, error) {
	return s.finishResume(s.inner.Interpreter(), interp.AsFuture(s.inner.CallID))
}

func (s *Snapshot) finishResume(in *interp.Interpreter, outcome interp.Outcome) (Progress, error) {
	progress, err := in.Resume(s.inner, outcome)
	if err != nil {
		return Progress{}, err
	}
	return s.m.finishProgress(in, progress)
}

// Dump serialises the paused state (spec.md §4.3). Fails once the snapshot
// has been consumed by a Resume.
func (s *Snapshot) Dump(w io.Writer) error { return s.inner.Dump(w) }

// LoadSnapshot restores a paused execution dumped by Snapshot.Dump against
// this Monty's Program and registries.
func (m *Monty) LoadSnapshot(r io.Reader) (*Snapshot, error) {
	inner, err := interp.LoadSnapshot(r, m.prog, m.builtins, m.dataclasses, m.namedTuples, m.cfg.PrintSink)
	if err != nil {
		return nil, err
	}
	in := inner.Interpreter()
	in.OSEnabled = m.cfg.MediateOS
	in.ExtEnabled = len(m.cfg.ExternalFunctions) > 0
	return &Snapshot{m: m, inner: inner}, nil
}

// FutureSnapshot is the host view of a paused-at-join record.
type FutureSnapshot struct {
	m     *Monty
	inner *interp.FutureSnapshot
}

// PendingIDs lists the call ids the script is waiting on; any non-empty
// subset may be resolved per the first-completed policy.
func (f *FutureSnapshot) PendingIDs() []uint64 {
	return append([]uint64(nil), f.inner.PendingIDs...)
}

// Outcome is one resolved entry of a FutureSnapshot resume.
type Outcome struct {
	Value   any
	Err     bool
	ExcKind string
	ExcMsg  string
}

// Return builds a successful Outcome.
func Return(v any) Outcome { return Outcome{Value: v} }

// RaiseOutcome builds an exception Outcome.
func RaiseOutcome(kind, msg string) Outcome {
	return Outcome{Err: true, ExcKind: kind, ExcMsg: msg}
}

// Resume records the supplied outcomes and continues; unresolved ids leave
// the script to emit another FutureSnapshot if it still needs them.
func (f *FutureSnapshot) Resume(outcomes map[uint64]Outcome) (Progress, error) {
	in := f.inner.Interpreter()
	converted := make(map[uint64]interp.Outcome, len(outcomes))
	for id, oc := range outcomes {
		if oc.Err {
			converted[id] = interp.Raise(oc.ExcKind, oc.ExcMsg)
			continue
		}
		v, err := toValue(in.Heap, in.Roots(), oc.Value)
		if err != nil {
			return Progress{}, err
		}
		converted[id] = interp.Return(v)
	}
	progress, err := in.ResumeFuture(f.inner, converted)
	if err != nil {
		return Progress{}, err
	}
	return f.m.finishProgress(in, progress)
}

// Dump serialises the paused join state.
func (f *FutureSnapshot) Dump(w io.Writer) error { return f.inner.Dump(w) }

// LoadFutureSnapshot restores a paused join dumped by FutureSnapshot.Dump.
func (m *Monty) LoadFutureSnapshot(r io.Reader) (*FutureSnapshot, error) {
	inner, err := interp.LoadFutureSnapshot(r, m.prog, m.builtins, m.dataclasses, m.namedTuples, m.cfg.PrintSink)
	if err != nil {
		return nil, err
	}
	in := inner.Interpreter()
	in.OSEnabled = m.cfg.MediateOS
	in.ExtEnabled = len(m.cfg.ExternalFunctions) > 0
	return &FutureSnapshot{m: m, inner: inner}, nil
}

// finishProgress converts an interp-level Progress, with access to the
// interpreter that produced it so a completion's output can be converted
// off its heap before the interpreter is dropped.
func (m *Monty) finishProgress(in *interp.Interpreter, p interp.Progress) (Progress, error) {
	switch p.Kind {
	case interp.ProgressComplete:
		out, err := fromValue(in.Heap, p.Output)
		if err != nil {
			return Progress{}, err
		}
		return Progress{Kind: Complete, Output: out}, nil
	case interp.ProgressSnapshot:
		return Progress{Kind: Suspended, Snapshot: &Snapshot{m: m, inner: p.Snapshot}}, nil
	default:
		return Progress{Kind: SuspendedOnFutures, FutureSnapshot: &FutureSnapshot{m: m, inner: p.FutureSnapshot}}, nil
	}
}
