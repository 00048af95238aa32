// Package program defines Program, the immutable, serialisable bytecode
// container produced by the compiler front end and consumed by interp.
// It carries no live heap state: constants are materialised into an
// interpreter's heap each time a LOAD_CONST executes.
package program

import (
	"strconv"

	"github.com/google/uuid"
	"github.com/scostello/monty-go/opcodes"
)

// ConstKind tags an entry in a Program's constant pool.
type ConstKind byte

const (
	ConstNone ConstKind = iota
	ConstBool
	ConstInt
	ConstFloat
	ConstStr
	ConstBytes
)

// Const is one constant-pool entry. Only the field matching Kind is valid.
type Const struct {
	Kind  ConstKind
	Bool  bool
	Int   int64
	Float float64
	Str   string
	Bytes []byte
}

// Param describes one declared parameter of a CodeObject.
type Param struct {
	Name    string
	HasDef  bool
	DefConst int // index into Program.Consts, valid when HasDef
}

// FreeVar describes one closure variable a CodeObject either captures from
// an enclosing scope or exposes to nested closures.
type FreeVar struct {
	Name      string
	FromOuter bool // true: captured from the enclosing frame's cell at MAKE_CLOSURE time
}

// LineEntry maps a half-open instruction range to a source line, used to
// build tracebacks without storing a line number per instruction.
type LineEntry struct {
	StartPC int
	Line    int
}

// CodeObject is one compiled function/module body: its instructions, local
// slot layout and closure-variable descriptors.
type CodeObject struct {
	Name       string
	Params     []Param
	NumLocals  int
	FreeVars   []FreeVar
	Code       []opcodes.Instruction
	Lines      []LineEntry
	IsGenerator bool
}

// Program is the complete, immutable unit monty.New compiles a script into. It
// has no mutable state: every run of the same Program starts from the same
// constant pool and code objects.
type Program struct {
	BuildID         string // random per-compilation identifier, for diagnostics
	ScriptName      string
	Consts          []Const
	Codes           []CodeObject
	TopLevel        int // index into Codes for the module body
	InputNames      []string // declared external "input" parameters (spec.md §2)
	ExternalFuncs   []string // declared external function names the host must resolve
	TypeCheckerStub string   // verbatim type-checker annotation blob, opaque to the engine
}

// New builds an empty Program shell with a fresh BuildID, ready for a
// compiler backend to append constants and code objects to.
func New(scriptName string) *Program {
	return &Program{
		BuildID:    uuid.NewString(),
		ScriptName: scriptName,
	}
}

// AddConst interns nothing (constants are not deduplicated); it appends c
// and returns its index.
func (p *Program) AddConst(c Const) int {
	p.Consts = append(p.Consts, c)
	return len(p.Consts) - 1
}

// AddCode appends a CodeObject and returns its index.
func (p *Program) AddCode(c CodeObject) int {
	p.Codes = append(p.Codes, c)
	return len(p.Codes) - 1
}

// TypingError is a structured, non-fatal typing diagnostic with two
// presentation forms. No code in this repository produces one, and Program
// has no field that stores them.
type TypingError struct {
	File    string
	Line    int
	Col     int
	Message string
	Rule    string
}

// Concise renders a one-line diagnostic: "file:line: message".
func (e TypingError) Concise() string {
	return e.File + ":" + strconv.Itoa(e.Line) + ": " + e.Message
}

// Full renders a one-line diagnostic that adds the column and the rule
// name: "file:line:col: [rule] message".
func (e TypingError) Full() string {
	return e.File + ":" + strconv.Itoa(e.Line) + ":" + strconv.Itoa(e.Col) + ": [" + e.Rule + "] " + e.Message
}
