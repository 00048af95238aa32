package values

import (
	"fmt"
	"math"
	"math/big"

	"github.com/scostello/monty-go/heap"
)

// OpError reports a Python-flavoured operator failure (unsupported operand
// types, division by zero). The interp package turns these into raised
// exceptions of the matching taxonomy kind.
type OpError struct {
	ExcKind string // "TypeError", "ZeroDivisionError", "OverflowError", ...
	Message string
}

func (e *OpError) Error() string { return e.Message }

func typeError(format string, a ...interface{}) error {
	return &OpError{ExcKind: "TypeError", Message: fmt.Sprintf(format, a...)}
}

// bigOf returns the big.Int backing v if v is an integer, promoting an
// immediate int64 on the fly. ok is false if v is not an integer at all.
func bigOf(h *heap.Heap, v Value) (*big.Int, bool) {
	switch {
	case v.Tag == TagInt:
		return big.NewInt(v.i), true
	case v.IsBoxedKind(h, heap.KindBigInt):
		return h.Get(v.H).(*BigIntObj).Z, true
	default:
		return nil, false
	}
}

// intResult narrows z back to an immediate int64 Value when it fits,
// otherwise boxes it as a BigIntObj.
func intResult(h *heap.Heap, roots heap.RootFunc, z *big.Int) (Value, error) {
	if z.IsInt64() {
		return Int(z.Int64()), nil
	}
	handle, err := h.Alloc(&BigIntObj{Z: z}, roots)
	if err != nil {
		return Value{}, err
	}
	return FromHandle(handle), nil
}

// IntFromBig boxes an arbitrary-precision integer as a Value, narrowing to
// an immediate int64 when it fits.
func IntFromBig(h *heap.Heap, roots heap.RootFunc, z *big.Int) (Value, error) {
	return intResult(h, roots, z)
}

func isFloat(v Value) bool { return v.Tag == TagFloat }

func toFloat(h *heap.Heap, v Value) (float64, bool) {
	switch {
	case v.Tag == TagFloat:
		return v.f, true
	case v.Tag == TagInt:
		return float64(v.i), true
	case v.IsBoxedKind(h, heap.KindBigInt):
		f, _ := new(big.Float).SetInt(h.Get(v.H).(*BigIntObj).Z).Float64()
		return f, true
	default:
		return 0, false
	}
}

// Add implements binary +: numeric addition, string/bytes concatenation, and
// list/tuple concatenation, each per spec.md §3's type rules.
func Add(h *heap.Heap, roots heap.RootFunc, a, b Value) (Value, error) {
	if isFloat(a) || isFloat(b) {
		if fa, ok := toFloat(h, a); ok {
			if fb, ok := toFloat(h, b); ok {
				return Float(fa + fb), nil
			}
		}
	}
	if za, ok := bigOf(h, a); ok {
		if zb, ok := bigOf(h, b); ok {
			return intResult(h, roots, new(big.Int).Add(za, zb))
		}
	}
	if (a.Tag == TagStr || a.IsBoxedKind(h, heap.KindString)) &&
		(b.Tag == TagStr || b.IsBoxedKind(h, heap.KindString)) {
		return Str(h, roots, textOf(h, a)+textOf(h, b))
	}
	if (a.Tag == TagBytes || a.IsBoxedKind(h, heap.KindBytes)) &&
		(b.Tag == TagBytes || b.IsBoxedKind(h, heap.KindBytes)) {
		return Bytes(h, roots, append([]byte(bytesOf(h, a)), bytesOf(h, b)...))
	}
	if a.IsBoxedKind(h, heap.KindList) && b.IsBoxedKind(h, heap.KindList) {
		la := h.Get(a.H).(*ListObj)
		lb := h.Get(b.H).(*ListObj)
		elems := append(append([]Value(nil), la.Elems...), lb.Elems...)
		handle, err := h.Alloc(&ListObj{Elems: elems}, roots)
		if err != nil {
			return Value{}, err
		}
		return FromHandle(handle), nil
	}
	if a.IsBoxedKind(h, heap.KindTuple) && b.IsBoxedKind(h, heap.KindTuple) {
		ta := h.Get(a.H).(*TupleObj)
		tb := h.Get(b.H).(*TupleObj)
		elems := append(append([]Value(nil), ta.Elems...), tb.Elems...)
		handle, err := h.Alloc(&TupleObj{Elems: elems}, roots)
		if err != nil {
			return Value{}, err
		}
		return FromHandle(handle), nil
	}
	return Value{}, typeError("unsupported operand type(s) for +: '%s' and '%s'", KindOf(h, a), KindOf(h, b))
}

func textOf(h *heap.Heap, v Value) string {
	if v.Tag == TagStr {
		return v.Text()
	}
	return h.Get(v.H).(*StringObj).S
}

func bytesOf(h *heap.Heap, v Value) []byte {
	if v.Tag == TagBytes {
		return []byte(v.Text())
	}
	return h.Get(v.H).(*BytesObj).B
}

// Sub implements binary -.
func Sub(h *heap.Heap, roots heap.RootFunc, a, b Value) (Value, error) {
	return numericBinOp(h, roots, a, b, "-",
		func(x, y float64) float64 { return x - y },
		func(x, y *big.Int) *big.Int { return new(big.Int).Sub(x, y) })
}

// Mul implements binary *, including int*sequence and int*string
// repetition.
func Mul(h *heap.Heap, roots heap.RootFunc, a, b Value) (Value, error) {
	if a.IsBoxedKind(h, heap.KindList) && b.Tag == TagInt {
		return repeatList(h, roots, a, b.Int())
	}
	if b.IsBoxedKind(h, heap.KindList) && a.Tag == TagInt {
		return repeatList(h, roots, b, a.Int())
	}
	if isText(h, a) && b.Tag == TagInt {
		return repeatStr(h, roots, textOf(h, a), b.Int())
	}
	if isText(h, b) && a.Tag == TagInt {
		return repeatStr(h, roots, textOf(h, b), a.Int())
	}
	return numericBinOp(h, roots, a, b, "*",
		func(x, y float64) float64 { return x * y },
		func(x, y *big.Int) *big.Int { return new(big.Int).Mul(x, y) })
}

func repeatList(h *heap.Heap, roots heap.RootFunc, list Value, n int64) (Value, error) {
	src := h.Get(list.H).(*ListObj)
	if n < 0 {
		n = 0
	}
	elems := make([]Value, 0, int64(len(src.Elems))*n)
	for i := int64(0); i < n; i++ {
		elems = append(elems, src.Elems...)
	}
	handle, err := h.Alloc(&ListObj{Elems: elems}, roots)
	if err != nil {
		return Value{}, err
	}
	return FromHandle(handle), nil
}

func isText(h *heap.Heap, v Value) bool {
	return v.Tag == TagStr || v.IsBoxedKind(h, heap.KindString)
}

func repeatStr(h *heap.Heap, roots heap.RootFunc, s string, n int64) (Value, error) {
	if n < 0 {
		n = 0
	}
	out := make([]byte, 0, int64(len(s))*n)
	for i := int64(0); i < n; i++ {
		out = append(out, s...)
	}
	return Str(h, roots, string(out))
}

// numericBinOp shares the float/bigint dispatch used by Sub, Mul and others
// that have no string/sequence overload.
func numericBinOp(h *heap.Heap, roots heap.RootFunc, a, b Value, sym string,
	ffn func(x, y float64) float64, zfn func(x, y *big.Int) *big.Int) (Value, error) {
	if isFloat(a) || isFloat(b) {
		if fa, ok := toFloat(h, a); ok {
			if fb, ok := toFloat(h, b); ok {
				return Float(ffn(fa, fb)), nil
			}
		}
	}
	if za, ok := bigOf(h, a); ok {
		if zb, ok := bigOf(h, b); ok {
			return intResult(h, roots, zfn(za, zb))
		}
	}
	return Value{}, typeError("unsupported operand type(s) for %s: '%s' and '%s'", sym, KindOf(h, a), KindOf(h, b))
}

// TrueDiv implements binary /: always produces a float, per spec.
func TrueDiv(h *heap.Heap, a, b Value) (Value, error) {
	fa, ok1 := toFloat(h, a)
	fb, ok2 := toFloat(h, b)
	if !ok1 || !ok2 {
		return Value{}, typeError("unsupported operand type(s) for /: '%s' and '%s'", KindOf(h, a), KindOf(h, b))
	}
	if fb == 0 {
		return Value{}, &OpError{ExcKind: "ZeroDivisionError", Message: "division by zero"}
	}
	return Float(fa / fb), nil
}

// FloorDiv implements binary //, floor-rounding toward negative infinity.
func FloorDiv(h *heap.Heap, roots heap.RootFunc, a, b Value) (Value, error) {
	if isFloat(a) || isFloat(b) {
		fa, _ := toFloat(h, a)
		fb, _ := toFloat(h, b)
		if fb == 0 {
			return Value{}, &OpError{ExcKind: "ZeroDivisionError", Message: "float floor division by zero"}
		}
		return Float(math.Floor(fa / fb)), nil
	}
	za, ok1 := bigOf(h, a)
	zb, ok2 := bigOf(h, b)
	if !ok1 || !ok2 {
		return Value{}, typeError("unsupported operand type(s) for //: '%s' and '%s'", KindOf(h, a), KindOf(h, b))
	}
	if zb.Sign() == 0 {
		return Value{}, &OpError{ExcKind: "ZeroDivisionError", Message: "integer division or modulo by zero"}
	}
	q, m := new(big.Int), new(big.Int)
	q.DivMod(za, zb, m) // Euclidean; DivMod already floors toward -inf for Go's big.Int per its docs on positive modulus
	if m.Sign() != 0 && (m.Sign() < 0) != (zb.Sign() < 0) {
		q.Sub(q, big.NewInt(1))
	}
	return intResult(h, roots, q)
}

// Mod implements binary %, with the result taking the sign of the divisor.
func Mod(h *heap.Heap, roots heap.RootFunc, a, b Value) (Value, error) {
	if isFloat(a) || isFloat(b) {
		fa, _ := toFloat(h, a)
		fb, _ := toFloat(h, b)
		if fb == 0 {
			return Value{}, &OpError{ExcKind: "ZeroDivisionError", Message: "float modulo"}
		}
		m := math.Mod(fa, fb)
		if m != 0 && (m < 0) != (fb < 0) {
			m += fb
		}
		return Float(m), nil
	}
	za, ok1 := bigOf(h, a)
	zb, ok2 := bigOf(h, b)
	if !ok1 || !ok2 {
		return Value{}, typeError("unsupported operand type(s) for %%: '%s' and '%s'", KindOf(h, a), KindOf(h, b))
	}
	if zb.Sign() == 0 {
		return Value{}, &OpError{ExcKind: "ZeroDivisionError", Message: "integer division or modulo by zero"}
	}
	m := new(big.Int).Mod(za, zb) // Go's Mod is Euclidean (non-negative); adjust to divisor's sign
	if m.Sign() != 0 && zb.Sign() < 0 {
		m.Add(m, zb)
	}
	return intResult(h, roots, m)
}

// Pow implements binary **.
func Pow(h *heap.Heap, roots heap.RootFunc, a, b Value) (Value, error) {
	if isFloat(a) || isFloat(b) {
		fa, _ := toFloat(h, a)
		fb, _ := toFloat(h, b)
		return Float(math.Pow(fa, fb)), nil
	}
	za, ok1 := bigOf(h, a)
	zb, ok2 := bigOf(h, b)
	if !ok1 || !ok2 {
		return Value{}, typeError("unsupported operand type(s) for ** or pow(): '%s' and '%s'", KindOf(h, a), KindOf(h, b))
	}
	if zb.Sign() < 0 {
		fa, _ := toFloat(h, a)
		fb, _ := toFloat(h, b)
		return Float(math.Pow(fa, fb)), nil
	}
	return intResult(h, roots, new(big.Int).Exp(za, zb, nil))
}

func intBitOp(h *heap.Heap, roots heap.RootFunc, a, b Value, sym string, zfn func(x, y *big.Int) *big.Int) (Value, error) {
	za, ok1 := bigOf(h, a)
	zb, ok2 := bigOf(h, b)
	if !ok1 || !ok2 {
		return Value{}, typeError("unsupported operand type(s) for %s: '%s' and '%s'", sym, KindOf(h, a), KindOf(h, b))
	}
	return intResult(h, roots, zfn(za, zb))
}

func BitAnd(h *heap.Heap, roots heap.RootFunc, a, b Value) (Value, error) {
	return intBitOp(h, roots, a, b, "&", func(x, y *big.Int) *big.Int { return new(big.Int).And(x, y) })
}

func BitOr(h *heap.Heap, roots heap.RootFunc, a, b Value) (Value, error) {
	return intBitOp(h, roots, a, b, "|", func(x, y *big.Int) *big.Int { return new(big.Int).Or(x, y) })
}

func BitXor(h *heap.Heap, roots heap.RootFunc, a, b Value) (Value, error) {
	return intBitOp(h, roots, a, b, "^", func(x, y *big.Int) *big.Int { return new(big.Int).Xor(x, y) })
}

func Shl(h *heap.Heap, roots heap.RootFunc, a, b Value) (Value, error) {
	zb, ok := bigOf(h, b)
	if !ok || zb.Sign() < 0 {
		return Value{}, typeError("negative shift count")
	}
	return intBitOp(h, roots, a, b, "<<", func(x, y *big.Int) *big.Int { return new(big.Int).Lsh(x, uint(y.Uint64())) })
}

func Shr(h *heap.Heap, roots heap.RootFunc, a, b Value) (Value, error) {
	zb, ok := bigOf(h, b)
	if !ok || zb.Sign() < 0 {
		return Value{}, typeError("negative shift count")
	}
	return intBitOp(h, roots, a, b, ">>", func(x, y *big.Int) *big.Int { return new(big.Int).Rsh(x, uint(y.Uint64())) })
}

// Neg implements unary -.
func Neg(h *heap.Heap, roots heap.RootFunc, v Value) (Value, error) {
	if isFloat(v) {
		f, _ := toFloat(h, v)
		return Float(-f), nil
	}
	if z, ok := bigOf(h, v); ok {
		return intResult(h, roots, new(big.Int).Neg(z))
	}
	return Value{}, typeError("bad operand type for unary -: '%s'", KindOf(h, v))
}

// Invert implements unary ~.
func Invert(h *heap.Heap, roots heap.RootFunc, v Value) (Value, error) {
	z, ok := bigOf(h, v)
	if !ok {
		return Value{}, typeError("bad operand type for unary ~: '%s'", KindOf(h, v))
	}
	return intResult(h, roots, new(big.Int).Not(z))
}

// Truthy implements Python's bool() coercion rules used by conditionals.
func Truthy(h *heap.Heap, v Value) bool {
	switch v.Tag {
	case TagNone:
		return false
	case TagBool, TagInt:
		return v.i != 0
	case TagFloat:
		return v.f != 0
	case TagStr, TagBytes:
		return len(v.s) != 0
	case TagHandle:
		obj := h.Get(v.H)
		if obj == nil {
			return false
		}
		switch o := obj.(type) {
		case *StringObj:
			return len(o.S) != 0
		case *BytesObj:
			return len(o.B) != 0
		case *BigIntObj:
			return o.Z.Sign() != 0
		case *ListObj:
			return len(o.Elems) != 0
		case *TupleObj:
			return len(o.Elems) != 0
		case *SetObj:
			return o.Len() != 0
		case *FrozenSetObj:
			return o.Set.Len() != 0
		case *MapObj:
			return o.Len() != 0
		default:
			return true
		}
	}
	return true
}

// Equal implements ==. Numeric values compare across int/float/bool; other
// kinds never compare equal to a different kind (spec.md §3).
func Equal(h *heap.Heap, a, b Value) bool {
	if a.Tag == TagBool {
		a = Int(a.i)
	}
	if b.Tag == TagBool {
		b = Int(b.i)
	}
	an, aIsNum := toFloat(h, a)
	bn, bIsNum := toFloat(h, b)
	if aIsNum && bIsNum && a.Tag != TagStr && a.Tag != TagBytes && b.Tag != TagStr && b.Tag != TagBytes {
		return an == bn
	}
	switch {
	case a.Tag == TagNone && b.Tag == TagNone:
		return true
	case (a.Tag == TagStr || a.IsBoxedKind(h, heap.KindString)) && (b.Tag == TagStr || b.IsBoxedKind(h, heap.KindString)):
		return textOf(h, a) == textOf(h, b)
	case (a.Tag == TagBytes || a.IsBoxedKind(h, heap.KindBytes)) && (b.Tag == TagBytes || b.IsBoxedKind(h, heap.KindBytes)):
		return string(bytesOf(h, a)) == string(bytesOf(h, b))
	case a.IsBoxedKind(h, heap.KindTuple) && b.IsBoxedKind(h, heap.KindTuple):
		ta := h.Get(a.H).(*TupleObj).Elems
		tb := h.Get(b.H).(*TupleObj).Elems
		if len(ta) != len(tb) {
			return false
		}
		for i := range ta {
			if !Equal(h, ta[i], tb[i]) {
				return false
			}
		}
		return true
	case a.IsBoxedKind(h, heap.KindList) && b.IsBoxedKind(h, heap.KindList):
		la := h.Get(a.H).(*ListObj).Elems
		lb := h.Get(b.H).(*ListObj).Elems
		if len(la) != len(lb) {
			return false
		}
		for i := range la {
			if !Equal(h, la[i], lb[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// HashKey returns a comparable Go value usable as a map key for v, and false
// if v is unhashable (lists, sets, dicts — spec.md §3).
func HashKey(h *heap.Heap, v Value) (interface{}, bool) {
	switch v.Tag {
	case TagNone:
		return nil, true
	case TagBool:
		return v.i != 0, true
	case TagInt:
		return v.i, true
	case TagFloat:
		return v.f, true
	case TagStr:
		return "s:" + v.s, true
	case TagBytes:
		return "b:" + v.s, true
	case TagHandle:
		obj := h.Get(v.H)
		switch o := obj.(type) {
		case *StringObj:
			return "s:" + o.S, true
		case *BytesObj:
			return "b:" + string(o.B), true
		case *BigIntObj:
			return "z:" + o.Z.String(), true
		case *TupleObj:
			parts := make([]interface{}, len(o.Elems))
			for i, e := range o.Elems {
				k, ok := HashKey(h, e)
				if !ok {
					return nil, false
				}
				parts[i] = k
			}
			return fmt.Sprintf("%v", parts), true
		case *FrozenSetObj:
			return fmt.Sprintf("frozenset:%v", o.Set.index), true
		default:
			return nil, false
		}
	}
	return nil, false
}

// Compare implements the ordered comparisons (<, <=, >, >=) for numbers,
// strings and bytes. Returns -1/0/1, or an error for unorderable types.
func Compare(h *heap.Heap, a, b Value) (int, error) {
	if an, ok1 := toFloat(h, a); ok1 {
		if bn, ok2 := toFloat(h, b); ok2 {
			switch {
			case an < bn:
				return -1, nil
			case an > bn:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}
	if (a.Tag == TagStr || a.IsBoxedKind(h, heap.KindString)) && (b.Tag == TagStr || b.IsBoxedKind(h, heap.KindString)) {
		ta, tb := textOf(h, a), textOf(h, b)
		switch {
		case ta < tb:
			return -1, nil
		case ta > tb:
			return 1, nil
		default:
			return 0, nil
		}
	}
	return 0, typeError("'<' not supported between instances of '%s' and '%s'", KindOf(h, a), KindOf(h, b))
}
