package parser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scostello/monty-go/compiler/ast"
	"github.com/scostello/monty-go/compiler/lexer"
	"github.com/scostello/monty-go/compiler/parser"
)

func parse(t *testing.T, src string) *ast.Module {
	t.Helper()
	mod, err := parser.Parse(src, "test.py")
	require.NoError(t, err)
	return mod
}

func TestPrecedence(t *testing.T) {
	mod := parse(t, "1 + 2 * 3")
	stmt := mod.Body[0].(*ast.ExprStmt)
	add := stmt.Value.(*ast.BinaryExpr)
	assert.Equal(t, "+", add.Op)
	mul := add.Right.(*ast.BinaryExpr)
	assert.Equal(t, "*", mul.Op)
}

func TestPowerIsRightAssociative(t *testing.T) {
	mod := parse(t, "2 ** 3 ** 2")
	outer := mod.Body[0].(*ast.ExprStmt).Value.(*ast.BinaryExpr)
	assert.Equal(t, "**", outer.Op)
	inner := outer.Right.(*ast.BinaryExpr)
	assert.Equal(t, "**", inner.Op)
}

func TestAssignmentForms(t *testing.T) {
	mod := parse(t, "a = b = 1\nc += 2\nxs[0] = 3\no.attr = 4\nx, y = 1, 2")
	require.Len(t, mod.Body, 5)

	chain := mod.Body[0].(*ast.Assign)
	assert.Len(t, chain.Targets, 2)

	aug := mod.Body[1].(*ast.AugAssign)
	assert.Equal(t, "+", aug.Op)

	_, isIndex := mod.Body[2].(*ast.Assign).Targets[0].(*ast.Index)
	assert.True(t, isIndex)

	_, isAttr := mod.Body[3].(*ast.Assign).Targets[0].(*ast.Attribute)
	assert.True(t, isAttr)

	tup := mod.Body[4].(*ast.Assign)
	_, isTuple := tup.Targets[0].(*ast.TupleLit)
	assert.True(t, isTuple)
	_, isTupleVal := tup.Value.(*ast.TupleLit)
	assert.True(t, isTupleVal)
}

func TestCompoundStatements(t *testing.T) {
	src := `
if a:
    x = 1
elif b:
    x = 2
else:
    x = 3

while x < 10:
    x += 1

for i in range(3):
    pass
`
	mod := parse(t, src)
	require.Len(t, mod.Body, 3)

	ifStmt := mod.Body[0].(*ast.If)
	require.Len(t, ifStmt.Else, 1)
	elif, ok := ifStmt.Else[0].(*ast.If)
	require.True(t, ok)
	assert.Len(t, elif.Else, 1)

	_, ok = mod.Body[1].(*ast.While)
	assert.True(t, ok)
	forStmt := mod.Body[2].(*ast.For)
	_, ok = forStmt.Iter.(*ast.Call)
	assert.True(t, ok)
}

func TestFunctionDef(t *testing.T) {
	src := `
def f(a, b=2, c="x"):
    return a + b
`
	mod := parse(t, src)
	fn := mod.Body[0].(*ast.FuncDef)
	assert.Equal(t, "f", fn.Name)
	require.Len(t, fn.Params, 3)
	assert.Nil(t, fn.Params[0].Default)
	assert.NotNil(t, fn.Params[1].Default)
	assert.NotNil(t, fn.Params[2].Default)
	_, ok := fn.Body[0].(*ast.Return)
	assert.True(t, ok)
}

func TestAsyncDefAndAwait(t *testing.T) {
	src := `
async def main():
    r = await fetch(1)
    return r
`
	mod := parse(t, src)
	fn := mod.Body[0].(*ast.FuncDef)
	assert.True(t, fn.IsAsync)
	assign := fn.Body[0].(*ast.Assign)
	aw, ok := assign.Value.(*ast.Await)
	require.True(t, ok)
	_, ok = aw.Value.(*ast.Call)
	assert.True(t, ok)
}

func TestTryExceptFinally(t *testing.T) {
	src := `
try:
    risky()
except ValueError as e:
    handle(e)
except KeyError:
    pass
except:
    fallback()
finally:
    cleanup()
`
	mod := parse(t, src)
	tr := mod.Body[0].(*ast.Try)
	require.Len(t, tr.Excepts, 3)
	assert.Equal(t, "ValueError", tr.Excepts[0].Kind)
	assert.Equal(t, "e", tr.Excepts[0].Name)
	assert.Equal(t, "KeyError", tr.Excepts[1].Kind)
	assert.Empty(t, tr.Excepts[2].Kind)
	require.Len(t, tr.Finally, 1)
}

func TestDecoratedClass(t *testing.T) {
	src := `
@dataclass(frozen=True)
class Point:
    x: int
    y: int
`
	mod := parse(t, src)
	cls := mod.Body[0].(*ast.ClassDef)
	require.Len(t, cls.Decorators, 1)
	call := cls.Decorators[0].(*ast.Call)
	assert.Equal(t, []string{"frozen"}, call.KwNames)
	require.Len(t, cls.Body, 2)
	_, ok := cls.Body[0].(*ast.AnnAssign)
	assert.True(t, ok)
}

func TestCallArguments(t *testing.T) {
	mod := parse(t, `f(1, "two", key=3, other=x)`)
	call := mod.Body[0].(*ast.ExprStmt).Value.(*ast.Call)
	assert.Len(t, call.Args, 2)
	assert.Equal(t, []string{"key", "other"}, call.KwNames)
}

func TestPositionalAfterKeywordRejected(t *testing.T) {
	_, err := parser.Parse("f(a=1, 2)", "t.py")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "positional argument follows keyword")
}

func TestLiteralsAndComprehensions(t *testing.T) {
	src := `
xs = [1, 2]
t = (1,)
d = {"k": 1}
s = {1, 2}
lc = [x * x for x in xs if x > 1]
dc = {k: v for k, v in pairs}
`
	mod := parse(t, src)
	_, ok := mod.Body[0].(*ast.Assign).Value.(*ast.ListLit)
	assert.True(t, ok)
	tup := mod.Body[1].(*ast.Assign).Value.(*ast.TupleLit)
	assert.Len(t, tup.Elems, 1)
	_, ok = mod.Body[2].(*ast.Assign).Value.(*ast.DictLit)
	assert.True(t, ok)
	_, ok = mod.Body[3].(*ast.Assign).Value.(*ast.SetLit)
	assert.True(t, ok)
	lc := mod.Body[4].(*ast.Assign).Value.(*ast.Comprehension)
	assert.Equal(t, ast.CompList, lc.Kind)
	assert.Len(t, lc.Conditions, 1)
	dc := mod.Body[5].(*ast.Assign).Value.(*ast.Comprehension)
	assert.Equal(t, ast.CompDict, dc.Kind)
	assert.NotNil(t, dc.Value)
}

func TestSlices(t *testing.T) {
	mod := parse(t, "a[1:2]\nb[::2]\nc[3]")
	sl := mod.Body[0].(*ast.ExprStmt).Value.(*ast.Index).Key.(*ast.SliceExpr)
	assert.NotNil(t, sl.Start)
	assert.NotNil(t, sl.Stop)
	assert.Nil(t, sl.Step)

	sl2 := mod.Body[1].(*ast.ExprStmt).Value.(*ast.Index).Key.(*ast.SliceExpr)
	assert.Nil(t, sl2.Start)
	assert.NotNil(t, sl2.Step)

	_, plain := mod.Body[2].(*ast.ExprStmt).Value.(*ast.Index).Key.(*ast.IntLit)
	assert.True(t, plain)
}

func TestFStringSplitting(t *testing.T) {
	mod := parse(t, `f"a {x + 1} b {y}"`)
	fs := mod.Body[0].(*ast.ExprStmt).Value.(*ast.FString)
	require.Len(t, fs.Parts, 4)
	assert.Equal(t, "a ", fs.Parts[0].Text)
	assert.NotNil(t, fs.Parts[1].Expr)
	assert.Equal(t, " b ", fs.Parts[2].Text)
	assert.NotNil(t, fs.Parts[3].Expr)
}

func TestChainedComparison(t *testing.T) {
	mod := parse(t, "1 < x <= 10")
	cmp := mod.Body[0].(*ast.ExprStmt).Value.(*ast.Compare)
	assert.Equal(t, []string{"<", "<="}, cmp.Ops)
	assert.Len(t, cmp.Rights, 2)
}

func TestFromImport(t *testing.T) {
	mod := parse(t, "from dataclasses import dataclass, field as fld")
	fi := mod.Body[0].(*ast.FromImport)
	assert.Equal(t, "dataclasses", fi.Module)
	assert.Equal(t, []string{"dataclass", "field"}, fi.Names)
	assert.Equal(t, []string{"", "fld"}, fi.Aliases)
}

func TestSyntaxErrorHasPosition(t *testing.T) {
	_, err := parser.Parse("def f(:\n    pass", "bad.py")
	require.Error(t, err)
	var syn *lexer.SyntaxError
	require.ErrorAs(t, err, &syn)
	assert.Equal(t, "bad.py", syn.File)
	assert.Equal(t, 1, syn.Line)
	assert.Positive(t, syn.Column)
	assert.NotEmpty(t, syn.Snippet)
}

func TestTernaryAndLambda(t *testing.T) {
	mod := parse(t, "v = a if c else b\nf = lambda x, y=1: x + y")
	_, ok := mod.Body[0].(*ast.Assign).Value.(*ast.Ternary)
	assert.True(t, ok)
	lam := mod.Body[1].(*ast.Assign).Value.(*ast.Lambda)
	require.Len(t, lam.Params, 2)
	assert.NotNil(t, lam.Params[1].Default)
}
