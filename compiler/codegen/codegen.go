// Package codegen lowers the ast package's syntax tree to the opcodes
// instruction set, producing program.Program units the interp package
// executes. One funcScope per code object tracks local slots, declared
// globals and transitively captured free variables; the module scope keeps
// user bindings in globals and uses local slots only for compiler
// temporaries.
package codegen

import (
	"fmt"
	"strconv"

	"github.com/scostello/monty-go/compiler/ast"
	"github.com/scostello/monty-go/compiler/lexer"
	"github.com/scostello/monty-go/compiler/parser"
	"github.com/scostello/monty-go/opcodes"
	"github.com/scostello/monty-go/program"
)

// Options carries the Program-construction inputs (spec.md §6).
type Options struct {
	ScriptName string
	Inputs     []string
	Externals  []string
	TypeStub   string
}

// Compile parses and compiles src into a fresh Program.
func Compile(src string, opts Options) (*program.Program, error) {
	name := opts.ScriptName
	if name == "" {
		name = "main.py"
	}
	prog := program.New(name)
	prog.InputNames = append([]string(nil), opts.Inputs...)
	prog.ExternalFuncs = append([]string(nil), opts.Externals...)
	prog.TypeCheckerStub = opts.TypeStub
	top, _, err := CompileInto(prog, src)
	if err != nil {
		return nil, err
	}
	prog.TopLevel = top
	return prog, nil
}

// CompileInto compiles src as a new top-level code object appended to prog,
// leaving existing code objects untouched so closures from earlier
// compilations stay valid. It reports whether the block's final statement
// was an expression (whose value the block returns), the distinction the
// REPL surfaces as its feed result.
func CompileInto(prog *program.Program, src string) (int, bool, error) {
	mod, err := parser.Parse(src, prog.ScriptName)
	if err != nil {
		return 0, false, err
	}
	c := &compiler{prog: prog, file: prog.ScriptName, strConsts: make(map[string]int)}
	for i, k := range prog.Consts {
		if k.Kind == program.ConstStr {
			if _, ok := c.strConsts[k.Str]; !ok {
				c.strConsts[k.Str] = i
			}
		}
	}
	top, lastWasExpr, err := c.compileModule(mod)
	if err != nil {
		return 0, false, err
	}
	return top, lastWasExpr, nil
}

type compiler struct {
	prog      *program.Program
	file      string
	strConsts map[string]int
}

// funcScope is the per-code-object compilation context.
type funcScope struct {
	c        *compiler
	parent   *funcScope
	isModule bool
	name     string

	locals     map[string]int
	numLocals  int
	globalDecl map[string]bool
	freeIdx    map[string]int
	freeNames  []string

	code []opcodes.Instruction

	loops   []*loopCtx
	excTmps []int // hidden slots holding the live exception per nested except clause
}

type loopCtx struct {
	continuePC int   // jump target for continue
	cleanupPC  int   // patched: break target (pops the loop iterator when present)
	breaks     []int // JUMP instruction indices awaiting the break target
	hasIter    bool
}

func (c *compiler) newScope(parent *funcScope, name string, isModule bool) *funcScope {
	return &funcScope{
		c:          c,
		parent:     parent,
		isModule:   isModule,
		name:       name,
		locals:     make(map[string]int),
		globalDecl: make(map[string]bool),
		freeIdx:    make(map[string]int),
	}
}

func (s *funcScope) emit(op opcodes.Opcode, a, b, cc int, line int) int {
	s.code = append(s.code, opcodes.Instruction{Op: op, A: int32(a), B: int32(b), C: int32(cc), Line: int32(line)})
	return len(s.code) - 1
}

func (s *funcScope) patchJump(at int) {
	s.code[at].A = int32(len(s.code))
}

func (s *funcScope) here() int { return len(s.code) }

func (s *funcScope) newTemp() int {
	idx := s.numLocals
	s.numLocals++
	return idx
}

func (s *funcScope) defineLocal(name string) int {
	if idx, ok := s.locals[name]; ok {
		return idx
	}
	idx := s.numLocals
	s.numLocals++
	s.locals[name] = idx
	return idx
}

func (c *compiler) strConst(s string) int {
	if idx, ok := c.strConsts[s]; ok {
		return idx
	}
	idx := c.prog.AddConst(program.Const{Kind: program.ConstStr, Str: s})
	c.strConsts[s] = idx
	return idx
}

func (c *compiler) errAt(line int, format string, a ...interface{}) error {
	return &lexer.SyntaxError{
		File:    c.file,
		Line:    line,
		Column:  1,
		Message: fmt.Sprintf(format, a...),
	}
}

func (c *compiler) compileModule(mod *ast.Module) (int, bool, error) {
	s := c.newScope(nil, "<module>", true)
	lastWasExpr := false
	for i, stmt := range mod.Body {
		last := i == len(mod.Body)-1
		if es, ok := stmt.(*ast.ExprStmt); ok && last {
			if err := c.compileExpr(s, es.Value); err != nil {
				return 0, false, err
			}
			s.emit(opcodes.OpReturn, 0, 0, 0, es.NodeLine())
			lastWasExpr = true
			break
		}
		if err := c.compileStmt(s, stmt); err != nil {
			return 0, false, err
		}
	}
	return c.finishCode(s, nil), lastWasExpr, nil
}

// finishCode seals a scope into a CodeObject and appends it to the Program.
func (c *compiler) finishCode(s *funcScope, params []program.Param) int {
	code := program.CodeObject{
		Name:      s.name,
		Params:    params,
		NumLocals: s.numLocals,
		Code:      s.code,
		Lines:     buildLineTable(s.code),
	}
	for _, name := range s.freeNames {
		code.FreeVars = append(code.FreeVars, program.FreeVar{Name: name, FromOuter: true})
	}
	return c.prog.AddCode(code)
}

func buildLineTable(code []opcodes.Instruction) []program.LineEntry {
	var out []program.LineEntry
	prev := int32(-1)
	for pc, ins := range code {
		if ins.Line != prev {
			out = append(out, program.LineEntry{StartPC: pc, Line: int(ins.Line)})
			prev = ins.Line
		}
	}
	return out
}

func (c *compiler) compileBody(s *funcScope, body []ast.Stmt) error {
	for _, stmt := range body {
		if err := c.compileStmt(s, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) compileStmt(s *funcScope, stmt ast.Stmt) error {
	switch n := stmt.(type) {
	case *ast.ExprStmt:
		if err := c.compileExpr(s, n.Value); err != nil {
			return err
		}
		s.emit(opcodes.OpPop, 0, 0, 0, n.NodeLine())
		return nil
	case *ast.Assign:
		return c.compileAssign(s, n)
	case *ast.AugAssign:
		return c.compileAugAssign(s, n)
	case *ast.AnnAssign:
		if n.Value == nil {
			return nil // bare annotation: declaration only
		}
		if err := c.compileExpr(s, n.Value); err != nil {
			return err
		}
		return c.storeTarget(s, n.Target)
	case *ast.Return:
		if n.Value != nil {
			if err := c.compileExpr(s, n.Value); err != nil {
				return err
			}
		} else {
			s.emit(opcodes.OpLoadNone, 0, 0, 0, n.NodeLine())
		}
		s.emit(opcodes.OpReturn, 0, 0, 0, n.NodeLine())
		return nil
	case *ast.Pass:
		return nil
	case *ast.Break:
		if len(s.loops) == 0 {
			return c.errAt(n.NodeLine(), "'break' outside loop")
		}
		loop := s.loops[len(s.loops)-1]
		loop.breaks = append(loop.breaks, s.emit(opcodes.OpJump, 0, 0, 0, n.NodeLine()))
		return nil
	case *ast.Continue:
		if len(s.loops) == 0 {
			return c.errAt(n.NodeLine(), "'continue' not properly in loop")
		}
		loop := s.loops[len(s.loops)-1]
		s.emit(opcodes.OpJump, loop.continuePC, 0, 0, n.NodeLine())
		return nil
	case *ast.Raise:
		return c.compileRaise(s, n)
	case *ast.Assert:
		return c.compileAssert(s, n)
	case *ast.Global:
		for _, name := range n.Names {
			s.globalDecl[name] = true
			s.emit(opcodes.OpBindGlobal, c.strConst(name), 0, 0, n.NodeLine())
		}
		return nil
	case *ast.Import:
		root := rootModule(n.Name)
		s.emit(opcodes.OpImport, c.strConst(root), 0, 0, n.NodeLine())
		return nil
	case *ast.FromImport:
		return c.compileFromImport(s, n)
	case *ast.If:
		return c.compileIf(s, n)
	case *ast.While:
		return c.compileWhile(s, n)
	case *ast.For:
		return c.compileFor(s, n)
	case *ast.Try:
		return c.compileTry(s, n)
	case *ast.FuncDef:
		return c.compileFuncDef(s, n)
	case *ast.ClassDef:
		return c.compileClassDef(s, n)
	}
	return c.errAt(stmt.NodeLine(), "unsupported statement")
}

func rootModule(dotted string) string {
	for i := 0; i < len(dotted); i++ {
		if dotted[i] == '.' {
			return dotted[:i]
		}
	}
	return dotted
}

func (c *compiler) compileAssign(s *funcScope, n *ast.Assign) error {
	if err := c.compileExpr(s, n.Value); err != nil {
		return err
	}
	for i, target := range n.Targets {
		if i < len(n.Targets)-1 {
			s.emit(opcodes.OpDup, 0, 0, 0, n.NodeLine())
		}
		if err := c.storeTarget(s, target); err != nil {
			return err
		}
	}
	return nil
}

// storeTarget stores the value on top of the stack into target, consuming
// it. Attribute/index targets stash the value in a temp slot to get the
// operand order ATTR_SET/INDEX_SET expect.
func (c *compiler) storeTarget(s *funcScope, target ast.Expr) error {
	line := target.NodeLine()
	switch t := target.(type) {
	case *ast.Name:
		c.storeName(s, t.Ident, line)
		return nil
	case *ast.Attribute:
		tmp := s.newTemp()
		s.emit(opcodes.OpStoreLocal, tmp, 0, 0, line)
		if err := c.compileExpr(s, t.Value); err != nil {
			return err
		}
		s.emit(opcodes.OpLoadLocal, tmp, 0, 0, line)
		s.emit(opcodes.OpAttrSet, c.strConst(t.Attr), 0, 0, line)
		return nil
	case *ast.Index:
		tmp := s.newTemp()
		s.emit(opcodes.OpStoreLocal, tmp, 0, 0, line)
		if err := c.compileExpr(s, t.Value); err != nil {
			return err
		}
		if err := c.compileIndexKey(s, t.Key); err != nil {
			return err
		}
		s.emit(opcodes.OpLoadLocal, tmp, 0, 0, line)
		s.emit(opcodes.OpIndexSet, 0, 0, 0, line)
		return nil
	case *ast.TupleLit:
		return c.storeUnpacked(s, t.Elems, line)
	case *ast.ListLit:
		return c.storeUnpacked(s, t.Elems, line)
	}
	return c.errAt(line, "cannot assign to expression")
}

// storeUnpacked lowers tuple-target assignment to a temp plus per-element
// indexing, since the instruction set has no dedicated unpack opcode.
func (c *compiler) storeUnpacked(s *funcScope, elems []ast.Expr, line int) error {
	tmp := s.newTemp()
	s.emit(opcodes.OpStoreLocal, tmp, 0, 0, line)
	for i, el := range elems {
		s.emit(opcodes.OpLoadLocal, tmp, 0, 0, line)
		c.emitIntConst(s, int64(i), line)
		s.emit(opcodes.OpIndexGet, 0, 0, 0, line)
		if err := c.storeTarget(s, el); err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) storeName(s *funcScope, name string, line int) {
	if !s.isModule && !s.globalDecl[name] {
		s.emit(opcodes.OpStoreLocal, s.defineLocal(name), 0, 0, line)
		return
	}
	s.emit(opcodes.OpStoreGlobal, c.strConst(name), 0, 0, line)
}

func (c *compiler) loadName(s *funcScope, name string, line int) {
	if !s.isModule && !s.globalDecl[name] {
		if idx, ok := s.locals[name]; ok {
			s.emit(opcodes.OpLoadLocal, idx, 0, 0, line)
			return
		}
		if idx, ok := s.resolveFree(name); ok {
			s.emit(opcodes.OpLoadFree, idx, 0, 0, line)
			return
		}
	}
	s.emit(opcodes.OpLoadGlobal, c.strConst(name), 0, 0, line)
}

// resolveFree registers name as a free variable of s if any enclosing
// function scope holds it, registering it transitively through intermediate
// scopes so each MAKE_CLOSURE site can forward the captured value.
func (s *funcScope) resolveFree(name string) (int, bool) {
	if idx, ok := s.freeIdx[name]; ok {
		return idx, true
	}
	p := s.parent
	if p == nil || p.isModule {
		return 0, false
	}
	_, isLocal := p.locals[name]
	if !isLocal {
		if _, ok := p.resolveFree(name); !ok {
			return 0, false
		}
	}
	idx := len(s.freeNames)
	s.freeIdx[name] = idx
	s.freeNames = append(s.freeNames, name)
	return idx, true
}

var augOps = map[string]opcodes.Opcode{
	"+": opcodes.OpBinaryAdd, "-": opcodes.OpBinarySub, "*": opcodes.OpBinaryMul,
	"/": opcodes.OpBinaryTrueDiv, "//": opcodes.OpBinaryFloorDiv, "%": opcodes.OpBinaryMod,
	"**": opcodes.OpBinaryPow, "&": opcodes.OpBinaryBitAnd, "|": opcodes.OpBinaryBitOr,
	"^": opcodes.OpBinaryBitXor, "<<": opcodes.OpBinaryShl, ">>": opcodes.OpBinaryShr,
}

func (c *compiler) compileAugAssign(s *funcScope, n *ast.AugAssign) error {
	op, ok := augOps[n.Op]
	if !ok {
		return c.errAt(n.NodeLine(), "unsupported augmented assignment operator %s", n.Op)
	}
	line := n.NodeLine()
	switch t := n.Target.(type) {
	case *ast.Name:
		c.loadName(s, t.Ident, line)
		if err := c.compileExpr(s, n.Value); err != nil {
			return err
		}
		s.emit(op, 0, 0, 0, line)
		c.storeName(s, t.Ident, line)
		return nil
	case *ast.Attribute:
		if err := c.compileExpr(s, t.Value); err != nil {
			return err
		}
		s.emit(opcodes.OpDup, 0, 0, 0, line)
		s.emit(opcodes.OpAttrGet, c.strConst(t.Attr), 0, 0, line)
		if err := c.compileExpr(s, n.Value); err != nil {
			return err
		}
		s.emit(op, 0, 0, 0, line)
		s.emit(opcodes.OpAttrSet, c.strConst(t.Attr), 0, 0, line)
		return nil
	case *ast.Index:
		recvTmp, keyTmp, valTmp := s.newTemp(), s.newTemp(), s.newTemp()
		if err := c.compileExpr(s, t.Value); err != nil {
			return err
		}
		s.emit(opcodes.OpStoreLocal, recvTmp, 0, 0, line)
		if err := c.compileIndexKey(s, t.Key); err != nil {
			return err
		}
		s.emit(opcodes.OpStoreLocal, keyTmp, 0, 0, line)
		s.emit(opcodes.OpLoadLocal, recvTmp, 0, 0, line)
		s.emit(opcodes.OpLoadLocal, keyTmp, 0, 0, line)
		s.emit(opcodes.OpIndexGet, 0, 0, 0, line)
		if err := c.compileExpr(s, n.Value); err != nil {
			return err
		}
		s.emit(op, 0, 0, 0, line)
		s.emit(opcodes.OpStoreLocal, valTmp, 0, 0, line)
		s.emit(opcodes.OpLoadLocal, recvTmp, 0, 0, line)
		s.emit(opcodes.OpLoadLocal, keyTmp, 0, 0, line)
		s.emit(opcodes.OpLoadLocal, valTmp, 0, 0, line)
		s.emit(opcodes.OpIndexSet, 0, 0, 0, line)
		return nil
	}
	return c.errAt(line, "illegal target for augmented assignment")
}

func (c *compiler) compileRaise(s *funcScope, n *ast.Raise) error {
	line := n.NodeLine()
	if n.Exc == nil {
		if len(s.excTmps) == 0 {
			return c.errAt(line, "no active exception to re-raise")
		}
		s.emit(opcodes.OpLoadLocal, s.excTmps[len(s.excTmps)-1], 0, 0, line)
		s.emit(opcodes.OpReraise, 0, 0, 0, line)
		return nil
	}
	exc := n.Exc
	// `raise ValueError` sugar: a bare exception name raises a fresh
	// instance with no message.
	if name, ok := exc.(*ast.Name); ok {
		exc = &ast.Call{ExprBase: ast.AtExpr(line), Func: name}
	}
	if err := c.compileExpr(s, exc); err != nil {
		return err
	}
	s.emit(opcodes.OpRaise, 0, 0, 0, line)
	return nil
}

func (c *compiler) compileAssert(s *funcScope, n *ast.Assert) error {
	line := n.NodeLine()
	if err := c.compileExpr(s, n.Test); err != nil {
		return err
	}
	pass := s.emit(opcodes.OpJumpIfTrue, 0, 0, 0, line)
	c.loadName(s, "AssertionError", line)
	nArgs := 0
	if n.Msg != nil {
		if err := c.compileExpr(s, n.Msg); err != nil {
			return err
		}
		nArgs = 1
	}
	s.emit(opcodes.OpCall, nArgs, 0, 0, line)
	s.emit(opcodes.OpRaise, 0, 0, 0, line)
	s.patchJump(pass)
	return nil
}

func (c *compiler) compileFromImport(s *funcScope, n *ast.FromImport) error {
	line := n.NodeLine()
	if n.Module == "__future__" {
		return nil
	}
	root := rootModule(n.Module)
	s.emit(opcodes.OpImport, c.strConst(root), 0, 0, line)
	segments := splitDotted(n.Module)
	for i, name := range n.Names {
		s.emit(opcodes.OpLoadGlobal, c.strConst(root), 0, 0, line)
		for _, seg := range segments[1:] {
			s.emit(opcodes.OpAttrGet, c.strConst(seg), 0, 0, line)
		}
		s.emit(opcodes.OpAttrGet, c.strConst(name), 0, 0, line)
		bind := name
		if n.Aliases[i] != "" {
			bind = n.Aliases[i]
		}
		c.storeName(s, bind, line)
	}
	return nil
}

func splitDotted(dotted string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(dotted); i++ {
		if i == len(dotted) || dotted[i] == '.' {
			out = append(out, dotted[start:i])
			start = i + 1
		}
	}
	return out
}

func (c *compiler) compileIf(s *funcScope, n *ast.If) error {
	if err := c.compileExpr(s, n.Test); err != nil {
		return err
	}
	elseJump := s.emit(opcodes.OpJumpIfFalse, 0, 0, 0, n.NodeLine())
	if err := c.compileBody(s, n.Body); err != nil {
		return err
	}
	if len(n.Else) == 0 {
		s.patchJump(elseJump)
		return nil
	}
	endJump := s.emit(opcodes.OpJump, 0, 0, 0, n.NodeLine())
	s.patchJump(elseJump)
	if err := c.compileBody(s, n.Else); err != nil {
		return err
	}
	s.patchJump(endJump)
	return nil
}

func (c *compiler) compileWhile(s *funcScope, n *ast.While) error {
	line := n.NodeLine()
	top := s.here()
	if err := c.compileExpr(s, n.Test); err != nil {
		return err
	}
	exitJump := s.emit(opcodes.OpJumpIfFalse, 0, 0, 0, line)
	loop := &loopCtx{continuePC: top}
	s.loops = append(s.loops, loop)
	err := c.compileBody(s, n.Body)
	s.loops = s.loops[:len(s.loops)-1]
	if err != nil {
		return err
	}
	s.emit(opcodes.OpJump, top, 0, 0, line)
	s.patchJump(exitJump)
	for _, b := range loop.breaks {
		s.patchJump(b)
	}
	return nil
}

func (c *compiler) compileFor(s *funcScope, n *ast.For) error {
	line := n.NodeLine()
	if err := c.compileExpr(s, n.Iter); err != nil {
		return err
	}
	s.emit(opcodes.OpGetIter, 0, 0, 0, line)
	next := s.here()
	s.emit(opcodes.OpIterNext, 0, 0, 0, line)
	exhaust := s.emit(opcodes.OpJumpIfFalse, 0, 0, 0, line)
	if err := c.storeTarget(s, n.Target); err != nil {
		return err
	}
	loop := &loopCtx{continuePC: next, hasIter: true}
	s.loops = append(s.loops, loop)
	err := c.compileBody(s, n.Body)
	s.loops = s.loops[:len(s.loops)-1]
	if err != nil {
		return err
	}
	s.emit(opcodes.OpJump, next, 0, 0, line)
	s.patchJump(exhaust)
	s.emit(opcodes.OpPop, 0, 0, 0, line) // the sentinel None ITER_NEXT pushed
	cleanup := s.here()
	s.emit(opcodes.OpPop, 0, 0, 0, line) // the iterator
	s.emit(opcodes.OpIterStop, 0, 0, 0, line)
	for _, b := range loop.breaks {
		s.code[b].A = int32(cleanup)
	}
	return nil
}

func (c *compiler) compileTry(s *funcScope, n *ast.Try) error {
	if len(n.Finally) > 0 {
		return c.compileTryFinally(s, n)
	}
	return c.compileTryExcept(s, n)
}

func (c *compiler) compileTryExcept(s *funcScope, n *ast.Try) error {
	line := n.NodeLine()
	setup := s.emit(opcodes.OpSetupTry, 0, -1, 0, line)
	if err := c.compileBody(s, n.Body); err != nil {
		return err
	}
	s.emit(opcodes.OpPopTry, 0, 0, 0, line)
	endJump := s.emit(opcodes.OpJump, 0, 0, 0, line)

	s.patchJump(setup) // handler entry: the raised exception is on the stack
	excTmp := s.newTemp()
	var endJumps []int
	for _, clause := range n.Excepts {
		var skip int
		if clause.Kind != "" {
			s.emit(opcodes.OpExcMatch, c.strConst(clause.Kind), 0, 0, clause.Line)
			skip = s.emit(opcodes.OpJumpIfFalse, 0, 0, 0, clause.Line)
		}
		s.emit(opcodes.OpStoreLocal, excTmp, 0, 0, clause.Line)
		if clause.Name != "" {
			s.emit(opcodes.OpLoadLocal, excTmp, 0, 0, clause.Line)
			c.storeName(s, clause.Name, clause.Line)
		}
		s.excTmps = append(s.excTmps, excTmp)
		err := c.compileBody(s, clause.Body)
		s.excTmps = s.excTmps[:len(s.excTmps)-1]
		if err != nil {
			return err
		}
		endJumps = append(endJumps, s.emit(opcodes.OpJump, 0, 0, 0, clause.Line))
		if clause.Kind != "" {
			s.patchJump(skip)
		} else {
			break // a bare except is terminal: nothing after it can match
		}
	}
	// No clause matched: propagate to the next handler out.
	s.emit(opcodes.OpReraise, 0, 0, 0, line)

	s.patchJump(endJump)
	for _, j := range endJumps {
		s.patchJump(j)
	}
	return nil
}

// compileTryFinally wraps the try/except core in an outer handler that runs
// the finally body on both the normal and the exceptional path. A `return`
// out of the protected body bypasses the finally body; the subset accepts
// that simplification.
func (c *compiler) compileTryFinally(s *funcScope, n *ast.Try) error {
	line := n.NodeLine()
	setup := s.emit(opcodes.OpSetupTry, 0, -1, 0, line)
	inner := &ast.Try{StmtBase: ast.AtStmt(line), Body: n.Body, Excepts: n.Excepts}
	if len(n.Excepts) > 0 {
		if err := c.compileTryExcept(s, inner); err != nil {
			return err
		}
	} else {
		if err := c.compileBody(s, n.Body); err != nil {
			return err
		}
	}
	s.emit(opcodes.OpPopTry, 0, 0, 0, line)
	if err := c.compileBody(s, n.Finally); err != nil {
		return err
	}
	endJump := s.emit(opcodes.OpJump, 0, 0, 0, line)

	s.patchJump(setup) // exception path: [exc] on the stack
	excTmp := s.newTemp()
	s.emit(opcodes.OpStoreLocal, excTmp, 0, 0, line)
	if err := c.compileBody(s, n.Finally); err != nil {
		return err
	}
	s.emit(opcodes.OpLoadLocal, excTmp, 0, 0, line)
	s.emit(opcodes.OpReraise, 0, 0, 0, line)
	s.emit(opcodes.OpEndFinally, 0, 0, 0, line)

	s.patchJump(endJump)
	return nil
}

// collectAssigned pre-scans a function body and returns every name bound by
// assignment, loop target, def/class statement, from-import or except
// clause, which all become local slots unless declared global.
func collectAssigned(body []ast.Stmt, names map[string]bool, globals map[string]bool) {
	var walkTarget func(ast.Expr)
	walkTarget = func(e ast.Expr) {
		switch t := e.(type) {
		case *ast.Name:
			names[t.Ident] = true
		case *ast.TupleLit:
			for _, el := range t.Elems {
				walkTarget(el)
			}
		case *ast.ListLit:
			for _, el := range t.Elems {
				walkTarget(el)
			}
		}
	}
	var walk func([]ast.Stmt)
	walk = func(stmts []ast.Stmt) {
		for _, stmt := range stmts {
			switch n := stmt.(type) {
			case *ast.Assign:
				for _, t := range n.Targets {
					walkTarget(t)
				}
			case *ast.AugAssign:
				walkTarget(n.Target)
			case *ast.AnnAssign:
				walkTarget(n.Target)
			case *ast.For:
				walkTarget(n.Target)
				walk(n.Body)
			case *ast.While:
				walk(n.Body)
			case *ast.If:
				walk(n.Body)
				walk(n.Else)
			case *ast.Try:
				walk(n.Body)
				for _, cl := range n.Excepts {
					if cl.Name != "" {
						names[cl.Name] = true
					}
					walk(cl.Body)
				}
				walk(n.Finally)
			case *ast.FuncDef:
				names[n.Name] = true
			case *ast.ClassDef:
				names[n.Name] = true
			case *ast.FromImport:
				for i, imported := range n.Names {
					if n.Aliases[i] != "" {
						names[n.Aliases[i]] = true
					} else {
						names[imported] = true
					}
				}
			case *ast.Global:
				for _, g := range n.Names {
					globals[g] = true
				}
			}
		}
	}
	walk(body)
}

func (c *compiler) compileFuncDef(s *funcScope, n *ast.FuncDef) error {
	line := n.NodeLine()
	codeIdx, freeNames, err := c.compileFunctionBody(s, n.Name, n.Params, n.Body, nil)
	if err != nil {
		return err
	}
	if err := c.emitClosure(s, codeIdx, freeNames, line); err != nil {
		return err
	}
	for i := len(n.Decorators) - 1; i >= 0; i-- {
		tmp := s.newTemp()
		s.emit(opcodes.OpStoreLocal, tmp, 0, 0, line)
		if err := c.compileExpr(s, n.Decorators[i]); err != nil {
			return err
		}
		s.emit(opcodes.OpLoadLocal, tmp, 0, 0, line)
		s.emit(opcodes.OpCall, 1, 0, 0, line)
	}
	c.storeName(s, n.Name, line)
	return nil
}

// compileFunctionBody compiles a def/lambda body into its own code object
// and returns the new code index plus the names it captures from enclosing
// scopes, in free-slot order. exprBody is set for lambdas (a single
// expression returned implicitly).
func (c *compiler) compileFunctionBody(parent *funcScope, name string, params []ast.Param, body []ast.Stmt, exprBody ast.Expr) (int, []string, error) {
	fs := c.newScope(parent, name, false)

	assigned := make(map[string]bool)
	collectAssigned(body, assigned, fs.globalDecl)

	var progParams []program.Param
	for _, p := range params {
		fs.defineLocal(p.Name)
		pp := program.Param{Name: p.Name}
		if p.Default != nil {
			constIdx, err := c.literalConst(p.Default)
			if err != nil {
				return 0, nil, err
			}
			pp.HasDef = true
			pp.DefConst = constIdx
		}
		progParams = append(progParams, pp)
	}
	for name := range assigned {
		if !fs.globalDecl[name] {
			fs.defineLocal(name)
		}
	}

	if exprBody != nil {
		if err := c.compileExpr(fs, exprBody); err != nil {
			return 0, nil, err
		}
		fs.emit(opcodes.OpReturn, 0, 0, 0, exprBody.NodeLine())
	} else {
		if err := c.compileBody(fs, body); err != nil {
			return 0, nil, err
		}
		last := 0
		if len(body) > 0 {
			last = body[len(body)-1].NodeLine()
		}
		fs.emit(opcodes.OpLoadNone, 0, 0, 0, last)
		fs.emit(opcodes.OpReturn, 0, 0, 0, last)
	}
	return c.finishCode(fs, progParams), fs.freeNames, nil
}

// emitClosure pushes the captured free-variable values in slot order, then
// MAKE_CLOSURE.
func (c *compiler) emitClosure(s *funcScope, codeIdx int, freeNames []string, line int) error {
	for _, name := range freeNames {
		if idx, ok := s.locals[name]; ok && !s.isModule {
			s.emit(opcodes.OpLoadLocal, idx, 0, 0, line)
			continue
		}
		if idx, ok := s.resolveFree(name); ok && !s.isModule {
			s.emit(opcodes.OpLoadFree, idx, 0, 0, line)
			continue
		}
		s.emit(opcodes.OpLoadGlobal, c.strConst(name), 0, 0, line)
	}
	s.emit(opcodes.OpMakeClosure, codeIdx, len(freeNames), 0, line)
	return nil
}

// literalConst resolves a parameter default to a constant-pool entry; the
// subset restricts defaults to literals so a Program stays free of
// definition-time captured state.
func (c *compiler) literalConst(e ast.Expr) (int, error) {
	switch lit := e.(type) {
	case *ast.NoneLit:
		return c.prog.AddConst(program.Const{Kind: program.ConstNone}), nil
	case *ast.BoolLit:
		return c.prog.AddConst(program.Const{Kind: program.ConstBool, Bool: lit.Value}), nil
	case *ast.IntLit:
		v, err := strconv.ParseInt(lit.Text, 0, 64)
		if err != nil {
			return 0, c.errAt(lit.NodeLine(), "integer default out of range")
		}
		return c.prog.AddConst(program.Const{Kind: program.ConstInt, Int: v}), nil
	case *ast.FloatLit:
		return c.prog.AddConst(program.Const{Kind: program.ConstFloat, Float: lit.Value}), nil
	case *ast.StrLit:
		return c.strConst(lit.Value), nil
	case *ast.BytesLit:
		return c.prog.AddConst(program.Const{Kind: program.ConstBytes, Bytes: lit.Value}), nil
	case *ast.UnaryExpr:
		if lit.Op == "-" {
			if inner, ok := lit.Operand.(*ast.IntLit); ok {
				v, err := strconv.ParseInt("-"+inner.Text, 0, 64)
				if err != nil {
					return 0, c.errAt(lit.NodeLine(), "integer default out of range")
				}
				return c.prog.AddConst(program.Const{Kind: program.ConstInt, Int: v}), nil
			}
			if inner, ok := lit.Operand.(*ast.FloatLit); ok {
				return c.prog.AddConst(program.Const{Kind: program.ConstFloat, Float: -inner.Value}), nil
			}
		}
	}
	return 0, c.errAt(e.NodeLine(), "parameter default must be a literal")
}

// classDecoration captures what a class's decorator list asked for.
type classDecoration struct {
	isDataclass bool
	frozen      bool
}

func (c *compiler) classDecoration(decorators []ast.Expr) (classDecoration, error) {
	var out classDecoration
	for _, dec := range decorators {
		target := dec
		var kwNames []string
		var kwValues []ast.Expr
		if call, ok := dec.(*ast.Call); ok {
			target = call.Func
			kwNames = call.KwNames
			kwValues = call.KwValues
		}
		if !isDataclassRef(target) {
			return out, c.errAt(dec.NodeLine(), "unsupported class decorator")
		}
		out.isDataclass = true
		for i, kw := range kwNames {
			if kw != "frozen" {
				return out, c.errAt(dec.NodeLine(), "unsupported dataclass option '%s'", kw)
			}
			if b, ok := kwValues[i].(*ast.BoolLit); ok {
				out.frozen = b.Value
			} else {
				return out, c.errAt(dec.NodeLine(), "frozen= must be a literal True or False")
			}
		}
	}
	return out, nil
}

func isDataclassRef(e ast.Expr) bool {
	if name, ok := e.(*ast.Name); ok {
		return name.Ident == "dataclass"
	}
	if attr, ok := e.(*ast.Attribute); ok {
		if mod, ok := attr.Value.(*ast.Name); ok {
			return mod.Ident == "dataclasses" && attr.Attr == "dataclass"
		}
	}
	return false
}

func (c *compiler) compileClassDef(s *funcScope, n *ast.ClassDef) error {
	line := n.NodeLine()
	dec, err := c.classDecoration(n.Decorators)
	if err != nil {
		return err
	}

	for _, base := range n.Bases {
		if err := c.compileExpr(s, base); err != nil {
			return err
		}
	}
	s.emit(opcodes.OpBuildTuple, len(n.Bases), 0, 0, line)

	s.emit(opcodes.OpBuildMap, 0, 0, 0, line)
	var fields []string
	for _, stmt := range n.Body {
		switch member := stmt.(type) {
		case *ast.Pass:
		case *ast.ExprStmt:
			if _, ok := member.Value.(*ast.StrLit); ok {
				continue // docstring
			}
			return c.errAt(member.NodeLine(), "unsupported statement in class body")
		case *ast.AnnAssign:
			name, ok := member.Target.(*ast.Name)
			if !ok {
				return c.errAt(member.NodeLine(), "unsupported field declaration")
			}
			if member.Value != nil {
				return c.errAt(member.NodeLine(), "field defaults are not supported")
			}
			fields = append(fields, name.Ident)
		case *ast.FuncDef:
			if len(member.Decorators) > 0 {
				return c.errAt(member.NodeLine(), "method decorators are not supported")
			}
			codeIdx, freeNames, err := c.compileFunctionBody(s, member.Name, member.Params, member.Body, nil)
			if err != nil {
				return err
			}
			s.emit(opcodes.OpLoadConst, c.strConst(member.Name), 0, 0, member.NodeLine())
			if err := c.emitClosure(s, codeIdx, freeNames, member.NodeLine()); err != nil {
				return err
			}
			s.emit(opcodes.OpMapPut, 0, 0, 0, member.NodeLine())
		default:
			return c.errAt(stmt.NodeLine(), "unsupported statement in class body")
		}
	}

	if dec.isDataclass {
		for _, f := range fields {
			s.emit(opcodes.OpLoadConst, c.strConst(f), 0, 0, line)
		}
		s.emit(opcodes.OpBuildTuple, len(fields), 0, 0, line)
		frozen := 0
		if dec.frozen {
			frozen = 1
		}
		s.emit(opcodes.OpMakeDataclass, c.strConst(n.Name), frozen, 0, line)
	} else {
		if len(fields) > 0 {
			return c.errAt(line, "annotated fields require the dataclass decorator")
		}
		s.emit(opcodes.OpBuildClass, c.strConst(n.Name), 0, 0, line)
	}
	c.storeName(s, n.Name, line)
	return nil
}
