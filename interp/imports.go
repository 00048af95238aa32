package interp

import "github.com/scostello/monty-go/values"

// allowedModules is the fixed import allow-list (spec.md §4.1): any other
// module name raises ModuleNotFoundError rather than being resolved against
// a real filesystem/package index, since the engine never shells out to a
// host Python installation.
var allowedModules = map[string]bool{
	"os":          true,
	"pathlib":     true,
	"sys":         true,
	"asyncio":     true,
	"typing":      true,
	"dataclasses": true,
	"collections": true,
}

// execImport implements IMPORT: binds name as a global to a ModuleObj if it
// is on the allow-list, or raises ModuleNotFoundError.
func (in *Interpreter) execImport(fr *Frame, name string) error {
	if !allowedModules[name] {
		return scriptErrorf("ModuleNotFoundError", "No module named '%s'", name)
	}
	handle, err := in.Heap.Alloc(&values.ModuleObj{Name: name}, in.roots)
	if err != nil {
		return err
	}
	in.Globals[name] = values.FromHandle(handle)
	return nil
}
