package lexer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scostello/monty-go/compiler/lexer"
)

func kinds(t *testing.T, src string) []lexer.TokenType {
	t.Helper()
	toks, err := lexer.New(src, "test.py").Tokens()
	require.NoError(t, err)
	out := make([]lexer.TokenType, len(toks))
	for i, tok := range toks {
		out[i] = tok.Type
	}
	return out
}

func TestSimpleExpression(t *testing.T) {
	toks, err := lexer.New("x = 1 + 2", "t.py").Tokens()
	require.NoError(t, err)
	require.Len(t, toks, 7) // x = 1 + 2 NEWLINE EOF
	assert.Equal(t, lexer.TokName, toks[0].Type)
	assert.Equal(t, "x", toks[0].Value)
	assert.Equal(t, lexer.TokAssign, toks[1].Type)
	assert.Equal(t, lexer.TokInt, toks[2].Type)
	assert.Equal(t, lexer.TokPlus, toks[3].Type)
	assert.Equal(t, lexer.TokInt, toks[4].Type)
	assert.Equal(t, lexer.TokNewline, toks[5].Type)
	assert.Equal(t, lexer.TokEOF, toks[6].Type)
}

func TestIndentDedent(t *testing.T) {
	src := "if x:\n    y = 1\n    z = 2\nw = 3\n"
	got := kinds(t, src)
	want := []lexer.TokenType{
		lexer.TokIf, lexer.TokName, lexer.TokColon, lexer.TokNewline,
		lexer.TokIndent,
		lexer.TokName, lexer.TokAssign, lexer.TokInt, lexer.TokNewline,
		lexer.TokName, lexer.TokAssign, lexer.TokInt, lexer.TokNewline,
		lexer.TokDedent,
		lexer.TokName, lexer.TokAssign, lexer.TokInt, lexer.TokNewline,
		lexer.TokEOF,
	}
	assert.Equal(t, want, got)
}

func TestNestedDedents(t *testing.T) {
	src := "if a:\n    if b:\n        x = 1\ny = 2\n"
	got := kinds(t, src)
	dedents := 0
	for _, k := range got {
		if k == lexer.TokDedent {
			dedents++
		}
	}
	assert.Equal(t, 2, dedents)
}

func TestBlankAndCommentLinesSkipped(t *testing.T) {
	src := "a = 1\n\n# comment only\n   \nb = 2\n"
	got := kinds(t, src)
	want := []lexer.TokenType{
		lexer.TokName, lexer.TokAssign, lexer.TokInt, lexer.TokNewline,
		lexer.TokName, lexer.TokAssign, lexer.TokInt, lexer.TokNewline,
		lexer.TokEOF,
	}
	assert.Equal(t, want, got)
}

func TestImplicitLineJoining(t *testing.T) {
	src := "xs = [1,\n      2,\n      3]\n"
	got := kinds(t, src)
	for _, k := range got {
		assert.NotEqual(t, lexer.TokIndent, k)
	}
	// exactly one logical line
	newlines := 0
	for _, k := range got {
		if k == lexer.TokNewline {
			newlines++
		}
	}
	assert.Equal(t, 1, newlines)
}

func TestStringLiterals(t *testing.T) {
	toks, err := lexer.New(`s = 'a\n"b"' + "c\td"`, "t.py").Tokens()
	require.NoError(t, err)
	assert.Equal(t, "a\n\"b\"", toks[2].Value)
	assert.Equal(t, "c\td", toks[4].Value)
}

func TestTripleQuotedString(t *testing.T) {
	toks, err := lexer.New("doc = \"\"\"line one\nline two\"\"\"", "t.py").Tokens()
	require.NoError(t, err)
	assert.Equal(t, lexer.TokString, toks[2].Type)
	assert.Equal(t, "line one\nline two", toks[2].Value)
}

func TestPrefixedStrings(t *testing.T) {
	toks, err := lexer.New(`x = f"n={n}" + b"\x01" + r"raw\n"`, "t.py").Tokens()
	require.NoError(t, err)
	assert.Equal(t, lexer.TokFString, toks[2].Type)
	assert.Equal(t, "n={n}", toks[2].Value)
	assert.Equal(t, lexer.TokBytes, toks[4].Type)
	assert.Equal(t, "\x01", toks[4].Value)
	assert.Equal(t, lexer.TokString, toks[6].Type)
	assert.Equal(t, `raw\n`, toks[6].Value)
}

func TestNumbers(t *testing.T) {
	toks, err := lexer.New("a = 10 + 0xff + 0b101 + 1_000 + 2.5 + 1e3", "t.py").Tokens()
	require.NoError(t, err)
	assert.Equal(t, "10", toks[2].Value)
	assert.Equal(t, "0xff", toks[4].Value)
	assert.Equal(t, "0b101", toks[6].Value)
	assert.Equal(t, "1000", toks[8].Value)
	assert.Equal(t, lexer.TokFloat, toks[10].Type)
	assert.Equal(t, "2.5", toks[10].Value)
	assert.Equal(t, lexer.TokFloat, toks[12].Type)
}

func TestOperators(t *testing.T) {
	toks, err := lexer.New("a // b ** c != d <= e << f //= g", "t.py").Tokens()
	require.NoError(t, err)
	types := []lexer.TokenType{
		lexer.TokName, lexer.TokDoubleSlash, lexer.TokName, lexer.TokDoubleStar,
		lexer.TokName, lexer.TokNe, lexer.TokName, lexer.TokLe, lexer.TokName,
		lexer.TokShl, lexer.TokName, lexer.TokDoubleSlashAssign, lexer.TokName,
	}
	for i, want := range types {
		assert.Equal(t, want, toks[i].Type, "token %d", i)
	}
}

func TestPositions(t *testing.T) {
	toks, err := lexer.New("a = 1\nbb = 2", "t.py").Tokens()
	require.NoError(t, err)
	assert.Equal(t, 1, toks[0].Position.Line)
	assert.Equal(t, 1, toks[0].Position.Column)
	assert.Equal(t, 2, toks[4].Position.Line) // bb
	assert.Equal(t, 1, toks[4].Position.Column)
}

func TestBadIndentation(t *testing.T) {
	_, err := lexer.New("if a:\n        x = 1\n    y = 2\n", "t.py").Tokens()
	require.Error(t, err)
	var syn *lexer.SyntaxError
	require.ErrorAs(t, err, &syn)
	assert.Contains(t, syn.Message, "unindent")
	assert.Equal(t, 3, syn.Line)
}

func TestUnterminatedString(t *testing.T) {
	_, err := lexer.New(`s = "never closed`, "t.py").Tokens()
	require.Error(t, err)
	var syn *lexer.SyntaxError
	require.ErrorAs(t, err, &syn)
	assert.Contains(t, syn.Message, "unterminated")
}
