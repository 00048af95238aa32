package interp

import (
	"github.com/scostello/monty-go/heap"
	"github.com/scostello/monty-go/values"
)

// roots implements heap.RootFunc for this Interpreter: the evaluation
// stacks and locals of every active frame, the global scope, any externally
// owned scope (the REPL's persistent top-level bindings, installed via
// AddExtraRoot), and the in-flight Snapshot's materialised call arguments,
// if any (spec.md §3 heap invariant: "every live heap handle is reachable
// from at least one root at sweep time").
func (in *Interpreter) roots() []heap.Handle {
	var out []heap.Handle
	add := func(v values.Value) {
		if v.IsHandle() {
			out = append(out, v.Handle())
		}
	}
	for _, fr := range in.Frames {
		for _, v := range fr.Locals {
			add(v)
		}
		for _, v := range fr.Free {
			add(v)
		}
		for _, v := range fr.Cells {
			add(v)
		}
		for _, v := range fr.Stack {
			add(v)
		}
	}
	for _, v := range in.Globals {
		add(v)
	}
	for _, v := range in.pendingArgs {
		add(v)
	}
	for _, v := range in.pendingKwValues {
		add(v)
	}
	for _, fn := range in.extraRoots {
		out = append(out, fn()...)
	}
	return out
}
