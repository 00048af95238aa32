package codegen_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scostello/monty-go/compiler/codegen"
	"github.com/scostello/monty-go/compiler/lexer"
	"github.com/scostello/monty-go/opcodes"
	"github.com/scostello/monty-go/program"
)

func compile(t *testing.T, src string) *program.Program {
	t.Helper()
	prog, err := codegen.Compile(src, codegen.Options{ScriptName: "t.py"})
	require.NoError(t, err)
	return prog
}

func ops(code []opcodes.Instruction) []opcodes.Opcode {
	out := make([]opcodes.Opcode, len(code))
	for i, ins := range code {
		out[i] = ins.Op
	}
	return out
}

func TestFinalExpressionReturns(t *testing.T) {
	prog := compile(t, "1 + 2")
	top := prog.Codes[prog.TopLevel]
	got := ops(top.Code)
	assert.Equal(t, []opcodes.Opcode{
		opcodes.OpLoadConst, opcodes.OpLoadConst, opcodes.OpBinaryAdd, opcodes.OpReturn,
	}, got)
}

func TestStatementModuleHasNoTrailingReturn(t *testing.T) {
	prog := compile(t, "x = 1")
	top := prog.Codes[prog.TopLevel]
	got := ops(top.Code)
	assert.Equal(t, []opcodes.Opcode{opcodes.OpLoadConst, opcodes.OpStoreGlobal}, got)
}

func TestModuleScopeUsesGlobals(t *testing.T) {
	prog := compile(t, "x = 1\ny = x")
	top := prog.Codes[prog.TopLevel]
	for _, ins := range top.Code {
		assert.NotEqual(t, opcodes.OpStoreLocal, ins.Op)
		assert.NotEqual(t, opcodes.OpLoadLocal, ins.Op)
	}
}

func TestFunctionScopeUsesLocals(t *testing.T) {
	prog := compile(t, "def f(a):\n    b = a + 1\n    return b")
	require.Len(t, prog.Codes, 2)
	fn := prog.Codes[0] // nested code objects are appended before the module body finishes
	if fn.Name == "<module>" {
		fn = prog.Codes[1]
	}
	assert.Equal(t, "f", fn.Name)
	assert.Equal(t, 2, fn.NumLocals) // a and b
	require.Len(t, fn.Params, 1)
	assert.Equal(t, "a", fn.Params[0].Name)

	sawStoreLocal := false
	for _, ins := range fn.Code {
		if ins.Op == opcodes.OpStoreLocal {
			sawStoreLocal = true
		}
		assert.NotEqual(t, opcodes.OpStoreGlobal, ins.Op)
	}
	assert.True(t, sawStoreLocal)
}

func TestClosureCapturesFreeVariable(t *testing.T) {
	prog := compile(t, `
def outer(n):
    def inner(x):
        return x + n
    return inner
`)
	var inner *program.CodeObject
	for i := range prog.Codes {
		if prog.Codes[i].Name == "inner" {
			inner = &prog.Codes[i]
		}
	}
	require.NotNil(t, inner)
	require.Len(t, inner.FreeVars, 1)
	assert.Equal(t, "n", inner.FreeVars[0].Name)

	sawLoadFree := false
	for _, ins := range inner.Code {
		if ins.Op == opcodes.OpLoadFree {
			sawLoadFree = true
		}
	}
	assert.True(t, sawLoadFree)
}

func TestGatherLowersToFutureJoin(t *testing.T) {
	prog := compile(t, "import asyncio\nawait asyncio.gather(a(), b())")
	top := prog.Codes[prog.TopLevel]
	found := false
	for _, ins := range top.Code {
		if ins.Op == opcodes.OpYieldFutureJoin {
			found = true
			assert.Equal(t, int32(2), ins.A)
		}
	}
	assert.True(t, found)
}

func TestDataclassLowersToMakeDataclass(t *testing.T) {
	prog := compile(t, `
from dataclasses import dataclass

@dataclass(frozen=True)
class P:
    x: int
`)
	top := prog.Codes[prog.TopLevel]
	found := false
	for _, ins := range top.Code {
		if ins.Op == opcodes.OpMakeDataclass {
			found = true
			assert.Equal(t, int32(1), ins.B) // frozen flag
		}
	}
	assert.True(t, found)
}

func TestLineTable(t *testing.T) {
	prog := compile(t, "x = 1\ny = 2")
	top := prog.Codes[prog.TopLevel]
	require.NotEmpty(t, top.Lines)
	assert.Equal(t, 0, top.Lines[0].StartPC)
	assert.Equal(t, 1, top.Lines[0].Line)
	last := top.Lines[len(top.Lines)-1]
	assert.Equal(t, 2, last.Line)
}

func TestCompileIntoAppendsCode(t *testing.T) {
	prog := compile(t, "x = 1")
	before := len(prog.Codes)
	top, lastWasExpr, err := codegen.CompileInto(prog, "x + 1")
	require.NoError(t, err)
	assert.True(t, lastWasExpr)
	assert.GreaterOrEqual(t, top, before)
	assert.Greater(t, len(prog.Codes), before)
}

func TestBreakOutsideLoopRejected(t *testing.T) {
	_, err := codegen.Compile("break", codegen.Options{})
	require.Error(t, err)
	var syn *lexer.SyntaxError
	require.ErrorAs(t, err, &syn)
	assert.Contains(t, syn.Message, "'break' outside loop")
}

func TestNonLiteralDefaultRejected(t *testing.T) {
	_, err := codegen.Compile("def f(a=[1]):\n    pass", codegen.Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default must be a literal")
}

func TestUnknownDecoratorOnClassRejected(t *testing.T) {
	_, err := codegen.Compile("@mystery\nclass C:\n    pass", codegen.Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported class decorator")
}
