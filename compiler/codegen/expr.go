package codegen

import (
	"strconv"

	"github.com/scostello/monty-go/compiler/ast"
	"github.com/scostello/monty-go/opcodes"
	"github.com/scostello/monty-go/program"
)

var compareOps = map[string]opcodes.Opcode{
	"==": opcodes.OpCompareEq, "!=": opcodes.OpCompareNe,
	"<": opcodes.OpCompareLt, "<=": opcodes.OpCompareLe,
	">": opcodes.OpCompareGt, ">=": opcodes.OpCompareGe,
	"is": opcodes.OpCompareIs, "is not": opcodes.OpCompareIsNot,
	"in": opcodes.OpCompareIn, "not in": opcodes.OpCompareNotIn,
}

func (c *compiler) compileExpr(s *funcScope, e ast.Expr) error {
	line := e.NodeLine()
	switch n := e.(type) {
	case *ast.Name:
		c.loadName(s, n.Ident, line)
		return nil
	case *ast.NoneLit:
		s.emit(opcodes.OpLoadNone, 0, 0, 0, line)
		return nil
	case *ast.BoolLit:
		if n.Value {
			s.emit(opcodes.OpLoadTrue, 0, 0, 0, line)
		} else {
			s.emit(opcodes.OpLoadFalse, 0, 0, 0, line)
		}
		return nil
	case *ast.IntLit:
		v, err := strconv.ParseInt(n.Text, 0, 64)
		if err != nil {
			// Arbitrary-precision literal: route through int("...") so the
			// runtime's bignum promotion owns the conversion.
			c.loadName(s, "int", line)
			s.emit(opcodes.OpLoadConst, c.strConst(n.Text), 0, 0, line)
			s.emit(opcodes.OpCall, 1, 0, 0, line)
			return nil
		}
		c.emitIntConst(s, v, line)
		return nil
	case *ast.FloatLit:
		idx := c.prog.AddConst(program.Const{Kind: program.ConstFloat, Float: n.Value})
		s.emit(opcodes.OpLoadConst, idx, 0, 0, line)
		return nil
	case *ast.StrLit:
		s.emit(opcodes.OpLoadConst, c.strConst(n.Value), 0, 0, line)
		return nil
	case *ast.BytesLit:
		idx := c.prog.AddConst(program.Const{Kind: program.ConstBytes, Bytes: n.Value})
		s.emit(opcodes.OpLoadConst, idx, 0, 0, line)
		return nil
	case *ast.FString:
		return c.compileFString(s, n)
	case *ast.TupleLit:
		for _, el := range n.Elems {
			if err := c.compileExpr(s, el); err != nil {
				return err
			}
		}
		s.emit(opcodes.OpBuildTuple, len(n.Elems), 0, 0, line)
		return nil
	case *ast.ListLit:
		for _, el := range n.Elems {
			if err := c.compileExpr(s, el); err != nil {
				return err
			}
		}
		s.emit(opcodes.OpBuildList, len(n.Elems), 0, 0, line)
		return nil
	case *ast.SetLit:
		for _, el := range n.Elems {
			if err := c.compileExpr(s, el); err != nil {
				return err
			}
		}
		s.emit(opcodes.OpBuildSet, len(n.Elems), 0, 0, line)
		return nil
	case *ast.DictLit:
		for i := range n.Keys {
			if err := c.compileExpr(s, n.Keys[i]); err != nil {
				return err
			}
			if err := c.compileExpr(s, n.Values[i]); err != nil {
				return err
			}
		}
		s.emit(opcodes.OpBuildMap, len(n.Keys), 0, 0, line)
		return nil
	case *ast.Comprehension:
		return c.compileComprehension(s, n)
	case *ast.BinaryExpr:
		if err := c.compileExpr(s, n.Left); err != nil {
			return err
		}
		if err := c.compileExpr(s, n.Right); err != nil {
			return err
		}
		op, ok := augOps[n.Op]
		if !ok {
			return c.errAt(line, "unsupported binary operator %s", n.Op)
		}
		s.emit(op, 0, 0, 0, line)
		return nil
	case *ast.BoolOp:
		if err := c.compileExpr(s, n.Left); err != nil {
			return err
		}
		var short int
		if n.Op == "and" {
			short = s.emit(opcodes.OpJumpIfFalseOrPop, 0, 0, 0, line)
		} else {
			short = s.emit(opcodes.OpJumpIfTrueOrPop, 0, 0, 0, line)
		}
		if err := c.compileExpr(s, n.Right); err != nil {
			return err
		}
		s.patchJump(short)
		return nil
	case *ast.UnaryExpr:
		if err := c.compileExpr(s, n.Operand); err != nil {
			return err
		}
		switch n.Op {
		case "-":
			s.emit(opcodes.OpUnaryNeg, 0, 0, 0, line)
		case "+":
			s.emit(opcodes.OpUnaryPos, 0, 0, 0, line)
		case "~":
			s.emit(opcodes.OpUnaryInvert, 0, 0, 0, line)
		case "not":
			s.emit(opcodes.OpUnaryNot, 0, 0, 0, line)
		default:
			return c.errAt(line, "unsupported unary operator %s", n.Op)
		}
		return nil
	case *ast.Compare:
		return c.compileCompare(s, n)
	case *ast.Call:
		return c.compileCall(s, n)
	case *ast.Attribute:
		if err := c.compileExpr(s, n.Value); err != nil {
			return err
		}
		s.emit(opcodes.OpAttrGet, c.strConst(n.Attr), 0, 0, line)
		return nil
	case *ast.Index:
		if err := c.compileExpr(s, n.Value); err != nil {
			return err
		}
		if err := c.compileIndexKey(s, n.Key); err != nil {
			return err
		}
		s.emit(opcodes.OpIndexGet, 0, 0, 0, line)
		return nil
	case *ast.Ternary:
		if err := c.compileExpr(s, n.Test); err != nil {
			return err
		}
		elseJump := s.emit(opcodes.OpJumpIfFalse, 0, 0, 0, line)
		if err := c.compileExpr(s, n.Body); err != nil {
			return err
		}
		endJump := s.emit(opcodes.OpJump, 0, 0, 0, line)
		s.patchJump(elseJump)
		if err := c.compileExpr(s, n.Orelse); err != nil {
			return err
		}
		s.patchJump(endJump)
		return nil
	case *ast.Lambda:
		codeIdx, freeNames, err := c.compileFunctionBody(s, "<lambda>", n.Params, nil, n.Body)
		if err != nil {
			return err
		}
		return c.emitClosure(s, codeIdx, freeNames, line)
	case *ast.Await:
		return c.compileAwait(s, n)
	}
	return c.errAt(line, "unsupported expression")
}

func (c *compiler) emitIntConst(s *funcScope, v int64, line int) {
	idx := c.prog.AddConst(program.Const{Kind: program.ConstInt, Int: v})
	s.emit(opcodes.OpLoadConst, idx, 0, 0, line)
}

// compileIndexKey compiles a plain subscript or a SliceExpr (omitted slice
// parts become None).
func (c *compiler) compileIndexKey(s *funcScope, key ast.Expr) error {
	sl, ok := key.(*ast.SliceExpr)
	if !ok {
		return c.compileExpr(s, key)
	}
	line := sl.NodeLine()
	for _, part := range []ast.Expr{sl.Start, sl.Stop, sl.Step} {
		if part == nil {
			s.emit(opcodes.OpLoadNone, 0, 0, 0, line)
			continue
		}
		if err := c.compileExpr(s, part); err != nil {
			return err
		}
	}
	s.emit(opcodes.OpBuildSlice, 0, 0, 0, line)
	return nil
}

// compileCompare lowers a chained comparison to an `and` of pairwise
// comparisons; middle operands of a chain are re-evaluated, so side effects
// there run once per adjacent comparison. Single comparisons (the common
// case) compile directly.
func (c *compiler) compileCompare(s *funcScope, n *ast.Compare) error {
	line := n.NodeLine()
	if len(n.Ops) == 1 {
		if err := c.compileExpr(s, n.Left); err != nil {
			return err
		}
		if err := c.compileExpr(s, n.Rights[0]); err != nil {
			return err
		}
		op, ok := compareOps[n.Ops[0]]
		if !ok {
			return c.errAt(line, "unsupported comparison %s", n.Ops[0])
		}
		s.emit(op, 0, 0, 0, line)
		return nil
	}
	var chain ast.Expr
	left := n.Left
	for i, op := range n.Ops {
		single := &ast.Compare{
			ExprBase: ast.AtExpr(line),
			Left:     left,
			Ops:      []string{op},
			Rights:   []ast.Expr{n.Rights[i]},
		}
		if chain == nil {
			chain = single
		} else {
			chain = &ast.BoolOp{ExprBase: ast.AtExpr(line), Op: "and", Left: chain, Right: single}
		}
		left = n.Rights[i]
	}
	return c.compileExpr(s, chain)
}

func (c *compiler) compileCall(s *funcScope, n *ast.Call) error {
	line := n.NodeLine()
	if err := c.compileExpr(s, n.Func); err != nil {
		return err
	}
	for _, arg := range n.Args {
		if err := c.compileExpr(s, arg); err != nil {
			return err
		}
	}
	if len(n.KwNames) == 0 {
		s.emit(opcodes.OpCall, len(n.Args), 0, 0, line)
		return nil
	}
	// CALL_KW reads its keyword names from consecutive constant-pool slots
	// starting at C.
	firstKw := -1
	for i, kw := range n.KwNames {
		idx := c.prog.AddConst(program.Const{Kind: program.ConstStr, Str: kw})
		if i == 0 {
			firstKw = idx
		}
	}
	for _, v := range n.KwValues {
		if err := c.compileExpr(s, v); err != nil {
			return err
		}
	}
	s.emit(opcodes.OpCallKw, len(n.Args), len(n.KwNames), firstKw, line)
	return nil
}

// compileAwait lowers `await asyncio.gather(...)` to a future-join
// suspension over every argument's future handle; any other awaited value
// goes through the single-future AWAIT opcode.
func (c *compiler) compileAwait(s *funcScope, n *ast.Await) error {
	line := n.NodeLine()
	if call, ok := n.Value.(*ast.Call); ok && isAsyncioRef(call.Func, "gather") {
		if len(call.KwNames) > 0 {
			return c.errAt(line, "gather() keyword arguments are not supported")
		}
		for _, arg := range call.Args {
			if err := c.compileExpr(s, arg); err != nil {
				return err
			}
		}
		s.emit(opcodes.OpYieldFutureJoin, len(call.Args), 0, 0, line)
		return nil
	}
	if err := c.compileExpr(s, n.Value); err != nil {
		return err
	}
	s.emit(opcodes.OpAwait, 0, 0, 0, line)
	return nil
}

func isAsyncioRef(e ast.Expr, member string) bool {
	if attr, ok := e.(*ast.Attribute); ok {
		if mod, ok := attr.Value.(*ast.Name); ok {
			return mod.Ident == "asyncio" && attr.Attr == member
		}
	}
	return false
}

// compileFString concatenates literal segments and str()-converted
// interpolations.
func (c *compiler) compileFString(s *funcScope, n *ast.FString) error {
	line := n.NodeLine()
	if len(n.Parts) == 0 {
		s.emit(opcodes.OpLoadConst, c.strConst(""), 0, 0, line)
		return nil
	}
	for i, part := range n.Parts {
		if part.Expr == nil {
			s.emit(opcodes.OpLoadConst, c.strConst(part.Text), 0, 0, line)
		} else {
			c.loadName(s, "str", line)
			if err := c.compileExpr(s, part.Expr); err != nil {
				return err
			}
			s.emit(opcodes.OpCall, 1, 0, 0, line)
		}
		if i > 0 {
			s.emit(opcodes.OpBinaryAdd, 0, 0, 0, line)
		}
	}
	return nil
}

// compileComprehension lowers a list/set/dict comprehension to an explicit
// accumulator + iterator loop over hidden local slots.
func (c *compiler) compileComprehension(s *funcScope, n *ast.Comprehension) error {
	line := n.NodeLine()
	resTmp := s.newTemp()
	iterTmp := s.newTemp()

	switch n.Kind {
	case ast.CompList:
		s.emit(opcodes.OpBuildList, 0, 0, 0, line)
	case ast.CompSet:
		s.emit(opcodes.OpBuildSet, 0, 0, 0, line)
	case ast.CompDict:
		s.emit(opcodes.OpBuildMap, 0, 0, 0, line)
	}
	s.emit(opcodes.OpStoreLocal, resTmp, 0, 0, line)

	if err := c.compileExpr(s, n.Iter); err != nil {
		return err
	}
	s.emit(opcodes.OpGetIter, 0, 0, 0, line)
	s.emit(opcodes.OpStoreLocal, iterTmp, 0, 0, line)

	next := s.here()
	s.emit(opcodes.OpLoadLocal, iterTmp, 0, 0, line)
	s.emit(opcodes.OpIterNext, 0, 0, 0, line)
	exhaust := s.emit(opcodes.OpJumpIfFalse, 0, 0, 0, line)
	if err := c.storeTarget(s, n.Target); err != nil {
		return err
	}
	s.emit(opcodes.OpPop, 0, 0, 0, line) // the iterator copy this round loaded

	for _, cond := range n.Conditions {
		if err := c.compileExpr(s, cond); err != nil {
			return err
		}
		s.emit(opcodes.OpJumpIfFalse, next, 0, 0, line)
	}

	s.emit(opcodes.OpLoadLocal, resTmp, 0, 0, line)
	switch n.Kind {
	case ast.CompList:
		if err := c.compileExpr(s, n.Elem); err != nil {
			return err
		}
		s.emit(opcodes.OpListAppend, 0, 0, 0, line)
	case ast.CompSet:
		if err := c.compileExpr(s, n.Elem); err != nil {
			return err
		}
		s.emit(opcodes.OpSetAdd, 0, 0, 0, line)
	case ast.CompDict:
		if err := c.compileExpr(s, n.Elem); err != nil {
			return err
		}
		if err := c.compileExpr(s, n.Value); err != nil {
			return err
		}
		s.emit(opcodes.OpMapPut, 0, 0, 0, line)
	}
	s.emit(opcodes.OpPop, 0, 0, 0, line) // the accumulator left by APPEND/ADD/PUT
	s.emit(opcodes.OpJump, next, 0, 0, line)

	s.patchJump(exhaust)
	s.emit(opcodes.OpPop, 0, 0, 0, line) // sentinel None
	s.emit(opcodes.OpPop, 0, 0, 0, line) // iterator
	s.emit(opcodes.OpLoadLocal, resTmp, 0, 0, line)
	return nil
}
