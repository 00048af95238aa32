// Package registry holds the cross-cutting lookup tables an interpreter
// needs outside the per-run heap: the fixed table of builtin implementations,
// and the dataclass registry that lets a Program/Snapshot round-trip
// dataclass instances through serialisation by name (spec.md §4.4).
//
// Builtins are plain Go functions taking a narrow capability interface
// (BuiltinCallContext), so the builtins package never has to import interp
// and interp never has to import builtins.
package registry

import (
	"fmt"
	"sync"

	"github.com/scostello/monty-go/heap"
	"github.com/scostello/monty-go/values"
)

// BuiltinImplementation is a fixed builtin function's Go body. kwNames/
// kwValues carry keyword arguments separately from positional args so a
// builtin like dataclasses.field can tell `default=` apart from
// `default_factory=` instead of seeing one flattened positional list.
type BuiltinImplementation func(ctx BuiltinCallContext, args []values.Value, kwNames []string, kwValues []values.Value) (values.Value, error)

// BuiltinCallContext exposes the minimal interpreter services a builtin
// needs, without builtins depending on the interp package directly.
type BuiltinCallContext interface {
	Heap() *heap.Heap
	Roots() heap.RootFunc
	Raise(kind, message string) error
	Print(s string)
	// YieldExternal suspends the current call as an external/OS call;
	// returns the host's resolved result once the interpreter is resumed.
	YieldExternal(name string, isOS bool, args []values.Value, kwNames []string, kwValues []values.Value) (values.Value, error)
	Dataclasses() *DataclassRegistry
	NamedTuples() *NamedTupleRegistry
}

// NamedTupleRegistry maps a collections.namedtuple-declared type name to its
// field order, the same name-keyed shape as DataclassRegistry but simpler:
// a namedtuple has no methods or frozen flag, just field names in
// declaration order.
type NamedTupleRegistry struct {
	mu     sync.RWMutex
	fields map[string][]string
}

func NewNamedTupleRegistry() *NamedTupleRegistry {
	return &NamedTupleRegistry{fields: make(map[string][]string)}
}

// Register records name's field order. Re-registering the same name with an
// identical field list is allowed; a different field list under an existing
// name is rejected so two namedtuple declarations can never collide.
func (r *NamedTupleRegistry) Register(name string, fields []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.fields[name]; ok && !sameFields(existing, fields) {
		return fmt.Errorf("namedtuple %q already registered with a different field list", name)
	}
	r.fields[name] = fields
	return nil
}

func (r *NamedTupleRegistry) Lookup(name string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fields, ok := r.fields[name]
	return fields, ok
}

func sameFields(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// DataclassRegistry maps a registered dataclass name to its field layout,
// so a DataclassObj can be serialised as (name, field values) and
// reconstructed against the same class definition on load.
type DataclassRegistry struct {
	mu      sync.RWMutex
	classes map[string]*values.ClassInfo
}

func NewDataclassRegistry() *DataclassRegistry {
	return &DataclassRegistry{classes: make(map[string]*values.ClassInfo)}
}

// Register records cls under name. Re-registering the same name with an
// identically-shaped class is allowed (recompilation of the same source);
// registering a different shape under an existing name is an error so a
// stale Snapshot can never silently deserialise against the wrong layout.
func (r *DataclassRegistry) Register(name string, cls *values.ClassInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.classes[name]; ok && !sameShape(existing, cls) {
		return fmt.Errorf("dataclass %q already registered with a different field layout", name)
	}
	r.classes[name] = cls
	return nil
}

func (r *DataclassRegistry) Lookup(name string) (*values.ClassInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cls, ok := r.classes[name]
	return cls, ok
}

func sameShape(a, b *values.ClassInfo) bool {
	if len(a.Fields) != len(b.Fields) || a.Frozen != b.Frozen {
		return false
	}
	for i := range a.Fields {
		if a.Fields[i] != b.Fields[i] {
			return false
		}
	}
	return true
}

// Builtins is the fixed table of builtin-function implementations. It is
// built once at process start (see builtins.Register) and never mutated
// per-run: every Interpreter shares the same table.
type Builtins struct {
	funcs map[string]BuiltinImplementation
}

func NewBuiltins() *Builtins {
	return &Builtins{funcs: make(map[string]BuiltinImplementation)}
}

func (b *Builtins) Add(name string, impl BuiltinImplementation) {
	b.funcs[name] = impl
}

func (b *Builtins) Lookup(name string) (BuiltinImplementation, bool) {
	impl, ok := b.funcs[name]
	return impl, ok
}

func (b *Builtins) Names() []string {
	out := make([]string, 0, len(b.funcs))
	for name := range b.funcs {
		out = append(out, name)
	}
	return out
}
