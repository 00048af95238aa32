// Package opcodes defines the bytecode instruction set executed by the
// Monty interpreter.
package opcodes

import "fmt"

// Opcode identifies a single bytecode instruction.
type Opcode byte

// Stack & constants (0-9)
const (
	OpNop Opcode = iota
	OpPop
	OpDup
	OpLoadConst
	OpLoadNone
	OpLoadTrue
	OpLoadFalse
)

// Variable access (10-29)
const (
	OpLoadLocal Opcode = iota + 10
	OpStoreLocal
	OpDeleteLocal
	OpLoadGlobal
	OpStoreGlobal
	OpLoadFree
	OpStoreFree
	OpBindGlobal
)

// Arithmetic & bitwise binary operators (30-49)
const (
	OpBinaryAdd Opcode = iota + 30
	OpBinarySub
	OpBinaryMul
	OpBinaryTrueDiv
	OpBinaryFloorDiv
	OpBinaryMod
	OpBinaryPow
	OpBinaryBitAnd
	OpBinaryBitOr
	OpBinaryBitXor
	OpBinaryShl
	OpBinaryShr
)

// Unary operators (50-59)
const (
	OpUnaryNeg Opcode = iota + 50
	OpUnaryPos
	OpUnaryNot
	OpUnaryInvert
)

// Comparisons (60-79)
const (
	OpCompareEq Opcode = iota + 60
	OpCompareNe
	OpCompareLt
	OpCompareLe
	OpCompareGt
	OpCompareGe
	OpCompareIs
	OpCompareIsNot
	OpCompareIn
	OpCompareNotIn
)

// Control flow (80-99)
const (
	OpJump Opcode = iota + 80
	OpJumpIfFalse
	OpJumpIfTrue
	OpJumpIfFalseOrPop
	OpJumpIfTrueOrPop
	OpReturn
)

// Exception handling (100-109)
const (
	OpSetupTry Opcode = iota + 100
	OpPopTry
	OpRaise
	OpReraise
	OpEndFinally
	OpExcMatch // A = const index of exception kind name; peeks TOS, pushes bool
	OpExcPop   // pops and discards the exception value left on TOS by a handler
)

// Containers & collection building (110-129)
const (
	OpBuildTuple Opcode = iota + 110
	OpBuildList
	OpBuildSet
	OpBuildFrozenSet
	OpBuildMap
	OpBuildSlice
	OpBuildRange
	OpListAppend
	OpSetAdd
	OpMapPut
)

// Indexing & attributes (130-139)
const (
	OpIndexGet Opcode = iota + 130
	OpIndexSet
	OpAttrGet
	OpAttrSet
)

// Calls & closures (140-159)
const (
	OpCall Opcode = iota + 140
	OpCallKw
	OpMakeClosure
	OpBindCellVar
	OpMakeBoundMethod
)

// Classes & dataclasses (160-169)
const (
	OpBuildClass Opcode = iota + 160
	OpMakeDataclass
)

// Iteration (170-179)
const (
	OpGetIter Opcode = iota + 170
	OpIterNext
	OpIterStop
)

// Suspension: the engine's defining feature (180-189)
const (
	OpYieldExternal Opcode = iota + 180 // declared external or OS call: suspend with a Snapshot
	OpYieldFutureJoin                   // asyncio.gather/wait join: suspend with a FutureSnapshot
	OpAwait                             // await a single future handle already produced by a call
)

// Modules & misc (190-199)
const (
	OpImport Opcode = iota + 190
	OpPrint
)

// OperandKind describes how to interpret an instruction's A/B/C fields.
type OperandKind byte

const (
	OperandUnused OperandKind = iota
	OperandConstIndex
	OperandLocalSlot
	OperandFreeSlot
	OperandNameIndex // index into a names table (globals, attrs, imports)
	OperandJumpTarget
	OperandCount // a small inline count (e.g. number of args)
	OperandLiteral
)

// Instruction is a single fixed-width bytecode instruction. The meaning of
// A, B and C is opcode-specific and is set by codegen and read by the
// interpreter's dispatch loop; only a few opcodes above document it.
type Instruction struct {
	Op   Opcode
	A, B, C int32
	Line int32 // source line, for tracebacks
}

var names = map[Opcode]string{
	OpNop: "NOP", OpPop: "POP", OpDup: "DUP", OpLoadConst: "LOAD_CONST",
	OpLoadNone: "LOAD_NONE", OpLoadTrue: "LOAD_TRUE", OpLoadFalse: "LOAD_FALSE",

	OpLoadLocal: "LOAD_LOCAL", OpStoreLocal: "STORE_LOCAL", OpDeleteLocal: "DELETE_LOCAL",
	OpLoadGlobal: "LOAD_GLOBAL", OpStoreGlobal: "STORE_GLOBAL",
	OpLoadFree: "LOAD_FREE", OpStoreFree: "STORE_FREE", OpBindGlobal: "BIND_GLOBAL",

	OpBinaryAdd: "BINARY_ADD", OpBinarySub: "BINARY_SUB", OpBinaryMul: "BINARY_MUL",
	OpBinaryTrueDiv: "BINARY_TRUE_DIV", OpBinaryFloorDiv: "BINARY_FLOOR_DIV", OpBinaryMod: "BINARY_MOD",
	OpBinaryPow: "BINARY_POW", OpBinaryBitAnd: "BINARY_BIT_AND", OpBinaryBitOr: "BINARY_BIT_OR",
	OpBinaryBitXor: "BINARY_BIT_XOR", OpBinaryShl: "BINARY_SHL", OpBinaryShr: "BINARY_SHR",

	OpUnaryNeg: "UNARY_NEG", OpUnaryPos: "UNARY_POS", OpUnaryNot: "UNARY_NOT", OpUnaryInvert: "UNARY_INVERT",

	OpCompareEq: "COMPARE_EQ", OpCompareNe: "COMPARE_NE", OpCompareLt: "COMPARE_LT",
	OpCompareLe: "COMPARE_LE", OpCompareGt: "COMPARE_GT", OpCompareGe: "COMPARE_GE",
	OpCompareIs: "COMPARE_IS", OpCompareIsNot: "COMPARE_IS_NOT",
	OpCompareIn: "COMPARE_IN", OpCompareNotIn: "COMPARE_NOT_IN",

	OpJump: "JUMP", OpJumpIfFalse: "JUMP_IF_FALSE", OpJumpIfTrue: "JUMP_IF_TRUE",
	OpJumpIfFalseOrPop: "JUMP_IF_FALSE_OR_POP", OpJumpIfTrueOrPop: "JUMP_IF_TRUE_OR_POP",
	OpReturn: "RETURN",

	OpSetupTry: "SETUP_TRY", OpPopTry: "POP_TRY", OpRaise: "RAISE",
	OpReraise: "RERAISE", OpEndFinally: "END_FINALLY",
	OpExcMatch: "EXC_MATCH", OpExcPop: "EXC_POP",

	OpBuildTuple: "BUILD_TUPLE", OpBuildList: "BUILD_LIST", OpBuildSet: "BUILD_SET",
	OpBuildFrozenSet: "BUILD_FROZENSET", OpBuildMap: "BUILD_MAP", OpBuildSlice: "BUILD_SLICE",
	OpBuildRange: "BUILD_RANGE", OpListAppend: "LIST_APPEND", OpSetAdd: "SET_ADD", OpMapPut: "MAP_PUT",

	OpIndexGet: "INDEX_GET", OpIndexSet: "INDEX_SET", OpAttrGet: "ATTR_GET", OpAttrSet: "ATTR_SET",

	OpCall: "CALL", OpCallKw: "CALL_KW", OpMakeClosure: "MAKE_CLOSURE",
	OpBindCellVar: "BIND_CELL_VAR", OpMakeBoundMethod: "MAKE_BOUND_METHOD",

	OpBuildClass: "BUILD_CLASS", OpMakeDataclass: "MAKE_DATACLASS",

	OpGetIter: "GET_ITER", OpIterNext: "ITER_NEXT", OpIterStop: "ITER_STOP",

	OpYieldExternal: "YIELD_EXTERNAL", OpYieldFutureJoin: "YIELD_FUTURE_JOIN", OpAwait: "AWAIT",

	OpImport: "IMPORT", OpPrint: "PRINT",
}

func (op Opcode) String() string {
	if n, ok := names[op]; ok {
		return n
	}
	return fmt.Sprintf("OP(%d)", byte(op))
}

func (i *Instruction) String() string {
	return fmt.Sprintf("%-20s A=%d B=%d C=%d line=%d", i.Op, i.A, i.B, i.C, i.Line)
}
