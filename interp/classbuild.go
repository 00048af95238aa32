package interp

import (
	"github.com/scostello/monty-go/opcodes"
	"github.com/scostello/monty-go/values"
)

// execBuildClass implements BUILD_CLASS and MAKE_DATACLASS. Both pop a
// methods dict (string name -> ClosureObj) and a bases tuple (ClassObj
// elements); MAKE_DATACLASS additionally pops a fields tuple (string names,
// in declaration order) and reads ins.B as a frozen flag. The class name
// comes from the constant at ins.A. The result is a ClassObj pushed back
// onto the stack, left for the following STORE_GLOBAL/STORE_LOCAL to bind.
func (in *Interpreter) execBuildClass(fr *Frame, ins opcodes.Instruction) error {
	isDataclass := ins.Op == opcodes.OpMakeDataclass

	var fields []string
	if isDataclass {
		fieldsVal := fr.Pop()
		fieldsTuple, ok := in.Heap.Get(fieldsVal.Handle()).(*values.TupleObj)
		if !ok {
			return scriptErrorf("RuntimeError", "MAKE_DATACLASS: malformed fields operand")
		}
		for _, v := range fieldsTuple.Elems {
			fields = append(fields, values.FormatStr(in.Heap, v))
		}
	}

	methodsVal := fr.Pop()
	methodsMap, ok := in.Heap.Get(methodsVal.Handle()).(*values.MapObj)
	if !ok {
		return scriptErrorf("RuntimeError", "BUILD_CLASS: malformed methods operand")
	}

	basesVal := fr.Pop()
	basesTuple, ok := in.Heap.Get(basesVal.Handle()).(*values.TupleObj)
	if !ok {
		return scriptErrorf("RuntimeError", "BUILD_CLASS: malformed bases operand")
	}
	bases := make([]*values.ClassInfo, 0, len(basesTuple.Elems))
	for _, v := range basesTuple.Elems {
		cls, ok := in.Heap.Get(v.Handle()).(*values.ClassObj)
		if !ok {
			return scriptErrorf("TypeError", "base class must be a class object")
		}
		bases = append(bases, cls.Info)
	}

	// methodsMap's keys are opaque HashKey() values, not plain names; the
	// closures' own recorded Name is the source of truth for method lookup.
	methods := make(map[string]int, methodsMap.Len())
	for _, e := range methodsMap.Entries() {
		closure, ok := in.Heap.Get(e.Value.Handle()).(*values.ClosureObj)
		if !ok {
			continue
		}
		methods[closure.Name] = closure.CodeIndex
	}

	info := &values.ClassInfo{
		Name:        in.nameConst(ins.A),
		Bases:       bases,
		Methods:     methods,
		IsDataclass: isDataclass,
		Frozen:      isDataclass && ins.B != 0,
		Fields:      fields,
	}
	handle, err := in.Heap.Alloc(&values.ClassObj{Info: info}, in.roots)
	if err != nil {
		return err
	}
	fr.Push(values.FromHandle(handle))
	return nil
}

// instantiate builds a new instance of cls, binding positional/keyword
// arguments to declared dataclass fields in order, or delegating to a
// user-defined __init__ for a plain class.
func (in *Interpreter) instantiate(cls *values.ClassInfo, args []values.Value, kwNames []string, kwValues []values.Value) (values.Value, error) {
	slots := make(map[string]values.Value, len(cls.Fields))
	if cls.IsDataclass {
		for i, name := range cls.Fields {
			if i < len(args) {
				slots[name] = args[i]
				continue
			}
			bound := false
			for k, kn := range kwNames {
				if kn == name {
					slots[name] = kwValues[k]
					bound = true
				}
			}
			if !bound {
				return values.Value{}, scriptErrorf("TypeError", "missing required argument: '%s'", name)
			}
		}
		registeredName := ""
		if _, ok := in.Dataclasses.Lookup(cls.Name); ok {
			registeredName = cls.Name
		}
		handle, err := in.Heap.Alloc(&values.DataclassObj{InstanceObj: values.InstanceObj{Class: cls, Slots: slots}, RegisteredName: registeredName}, in.roots)
		if err != nil {
			return values.Value{}, err
		}
		return values.FromHandle(handle), nil
	}

	handle, err := in.Heap.Alloc(&values.InstanceObj{Class: cls, Slots: slots}, in.roots)
	if err != nil {
		return values.Value{}, err
	}
	self := values.FromHandle(handle)
	if codeIdx, ok := lookupMethod(cls, "__init__"); ok {
		code := &in.Prog.Codes[codeIdx]
		locals := make([]values.Value, code.NumLocals)
		full := append([]values.Value{self}, args...)
		if err := bindParams(in, code, locals, full, kwNames, kwValues); err != nil {
			return values.Value{}, err
		}
		newFrame := NewFrame(code, codeIdx, nil)
		newFrame.Locals = locals
		newFrame.IsCtor = true
		newFrame.CtorSelf = self
		in.Frames = append(in.Frames, newFrame)
		return values.Value{}, errDeferToCtorFrame
	}
	return self, nil
}
