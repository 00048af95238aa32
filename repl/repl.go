// Package repl wraps one long-lived Interpreter with a persistent top-level
// scope (spec.md §4.5). Each fed source block compiles into the same
// growing Program, so closures created by earlier feeds keep their code
// indices valid, and runs against the same global bindings. Resource limits
// are per-interpreter and therefore accumulate across feeds.
package repl

import (
	"fmt"
	"io"

	"github.com/scostello/monty-go/compiler/codegen"
	"github.com/scostello/monty-go/interp"
	"github.com/scostello/monty-go/program"
	"github.com/scostello/monty-go/registry"
	"github.com/scostello/monty-go/serialize"
	"github.com/scostello/monty-go/values"
)

// Repl is a persistent interactive session over one Interpreter.
type Repl struct {
	in *interp.Interpreter
}

// Result is what one fed block produced.
type Result struct {
	Value values.Value
	// LastWasExpr reports whether the block ended in an expression
	// statement; only then is Value meaningful (a statement-ending block
	// evaluates to nothing).
	LastWasExpr bool
}

// Config carries the tables and limits a Repl's interpreter needs.
type Config struct {
	ScriptName  string
	Inputs      []string
	Builtins    *registry.Builtins
	Dataclasses *registry.DataclassRegistry
	NamedTuples *registry.NamedTupleRegistry
	Limits      interp.Limits
	PrintSink   func(string)
}

// Create compiles and runs the first source block, retaining its bindings.
// startInputs seeds declared input names, exactly like Start.
func Create(source string, cfg Config, startInputs map[string]values.Value) (*Repl, Result, error) {
	name := cfg.ScriptName
	if name == "" {
		name = "<repl>"
	}
	prog := program.New(name)
	prog.InputNames = append([]string(nil), cfg.Inputs...)
	top, lastWasExpr, err := codegen.CompileInto(prog, source)
	if err != nil {
		return nil, Result{}, err
	}
	prog.TopLevel = top
	in := interp.New(prog, cfg.Builtins, cfg.Dataclasses, cfg.NamedTuples, cfg.Limits, cfg.PrintSink)
	progress, err := in.Start(startInputs)
	if err != nil {
		return nil, Result{}, err
	}
	r := &Repl{in: in}
	res, err := r.finish(progress)
	if err != nil {
		return nil, Result{}, err
	}
	res.LastWasExpr = lastWasExpr
	return r, res, nil
}

// Feed compiles a new block against the persistent scope, runs it, and
// returns the last expression's value (or a zero Result for a block ending
// in a statement).
func (r *Repl) Feed(source string) (Result, error) {
	topIdx, lastWasExpr, err := codegen.CompileInto(r.in.Prog, source)
	if err != nil {
		return Result{}, err
	}
	progress, err := r.in.RunCode(topIdx)
	if err != nil {
		return Result{}, err
	}
	res, err := r.finish(progress)
	if err != nil {
		return Result{}, err
	}
	res.LastWasExpr = lastWasExpr
	return res, nil
}

// finish converts a block's Progress into a Result. A Repl mediates no
// external calls: a block that suspends is an error at the feed level, the
// same contract run_sync applies.
func (r *Repl) finish(progress interp.Progress) (Result, error) {
	switch progress.Kind {
	case interp.ProgressComplete:
		return Result{Value: progress.Output, LastWasExpr: true}, nil
	default:
		return Result{}, fmt.Errorf("monty: repl block suspended on an external call; the repl does not mediate host callbacks")
	}
}

// Interpreter exposes the underlying interpreter, letting a host inspect
// globals or install extra heap roots.
func (r *Repl) Interpreter() *interp.Interpreter { return r.in }

// Dump persists the whole session: the grown Program and the complete
// interpreter state (globals, heap, limits counters), under the shared
// envelope format.
func (r *Repl) Dump(w io.Writer) error {
	wr := serialize.NewWriter(w)
	wr.WriteHeader(serialize.TagRepl)
	serialize.WriteProgram(wr, r.in.Prog)
	r.in.WriteState(wr)
	return wr.Err()
}

// Load reconstructs a Repl from a Dump. The registries are supplied fresh
// (builtin tables are process-wide, never serialised).
func Load(rd io.Reader, cfg Config) (*Repl, error) {
	r := serialize.NewReader(rd)
	tag := r.ReadHeader()
	if r.Err() != nil {
		return nil, r.Err()
	}
	if tag != serialize.TagRepl {
		return nil, fmt.Errorf("monty: expected a Repl envelope, got tag %d", tag)
	}
	prog := serialize.ReadProgram(r)
	if r.Err() != nil {
		return nil, r.Err()
	}
	in := interp.New(prog, cfg.Builtins, cfg.Dataclasses, cfg.NamedTuples, interp.Limits{}, cfg.PrintSink)
	in.ReadState(r)
	if r.Err() != nil {
		return nil, r.Err()
	}
	return &Repl{in: in}, nil
}
