package program_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scostello/monty-go/program"
)

func TestNewStampsBuildID(t *testing.T) {
	a := program.New("a.py")
	b := program.New("b.py")
	assert.NotEmpty(t, a.BuildID)
	assert.NotEqual(t, a.BuildID, b.BuildID)
	assert.Equal(t, "a.py", a.ScriptName)
}

func TestConstAndCodeIndices(t *testing.T) {
	p := program.New("t.py")
	i0 := p.AddConst(program.Const{Kind: program.ConstInt, Int: 1})
	i1 := p.AddConst(program.Const{Kind: program.ConstStr, Str: "x"})
	require.Equal(t, 0, i0)
	require.Equal(t, 1, i1)

	c0 := p.AddCode(program.CodeObject{Name: "f"})
	c1 := p.AddCode(program.CodeObject{Name: "<module>"})
	assert.Equal(t, 0, c0)
	assert.Equal(t, 1, c1)
	assert.Equal(t, "f", p.Codes[0].Name)
}

func TestTypingErrorPresentation(t *testing.T) {
	e := program.TypingError{
		File:    "script.py",
		Line:    3,
		Col:     7,
		Message: `argument "x" has incompatible type`,
		Rule:    "arg-type",
	}
	assert.Equal(t, `script.py:3: argument "x" has incompatible type`, e.Concise())
	assert.Equal(t, `script.py:3:7: [arg-type] argument "x" has incompatible type`, e.Full())
}
