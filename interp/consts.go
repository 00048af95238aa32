package interp

import (
	"github.com/scostello/monty-go/program"
	"github.com/scostello/monty-go/values"
)

// constToValue materialises Program.Consts[idx] into a live Value, boxing
// long strings/byte-strings onto this interpreter's heap the same way any
// other allocation is charged.
func (in *Interpreter) constToValue(idx int) (values.Value, error) {
	c := in.Prog.Consts[idx]
	switch c.Kind {
	case program.ConstNone:
		return values.None(), nil
	case program.ConstBool:
		return values.Bool(c.Bool), nil
	case program.ConstInt:
		return values.Int(c.Int), nil
	case program.ConstFloat:
		return values.Float(c.Float), nil
	case program.ConstStr:
		return values.Str(in.Heap, in.roots, c.Str)
	case program.ConstBytes:
		return values.Bytes(in.Heap, in.roots, c.Bytes)
	default:
		return values.None(), nil
	}
}

// constToValue is the non-failing form of (*Interpreter).constToValue: an
// allocation failure yields None instead of an error. bindParams uses the
// method form for default-value constants, so a failed default allocation
// surfaces as a MemoryError.
func constToValue(in *Interpreter, idx int) values.Value {
	v, err := in.constToValue(idx)
	if err != nil {
		return values.None()
	}
	return v
}
