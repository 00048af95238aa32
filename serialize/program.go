package serialize

import (
	"fmt"
	"io"

	"github.com/scostello/monty-go/opcodes"
	"github.com/scostello/monty-go/program"
)

// DumpProgram writes a full envelope (header + body) for p to w. Unlike
// Snapshot/FutureSnapshot, a Program carries no live heap state and no
// single-use consumption flag, so this needs no interp-side wrapper.
func DumpProgram(w io.Writer, p *program.Program) error {
	wr := NewWriter(w)
	wr.WriteHeader(TagProgram)
	WriteProgram(wr, p)
	return wr.Err()
}

// LoadProgram reads an envelope written by DumpProgram, failing if the tag
// isn't TagProgram.
func LoadProgram(r io.Reader) (*program.Program, error) {
	rd := NewReader(r)
	tag := rd.ReadHeader()
	if rd.Err() != nil {
		return nil, rd.Err()
	}
	if tag != TagProgram {
		return nil, fmt.Errorf("monty: expected a Program envelope, got tag %d", tag)
	}
	p := ReadProgram(rd)
	if rd.Err() != nil {
		return nil, rd.Err()
	}
	return p, nil
}

// WriteProgram encodes a compiled Program: constants, code objects and the
// declared input/external-function surface. Program carries no live heap
// state (program/program.go's own doc comment), so unlike Snapshot/
// FutureSnapshot this never touches a heap.Heap. It writes no envelope
// header: DumpProgram and Repl.Dump write their own before calling it.
func WriteProgram(wr *Writer, p *program.Program) {
	wr.WriteString(p.BuildID)
	wr.WriteString(p.ScriptName)
	wr.WriteString(p.TypeCheckerStub)
	wr.WriteInt(p.TopLevel)
	wr.WriteStrings(p.InputNames)
	wr.WriteStrings(p.ExternalFuncs)

	wr.WriteInt(len(p.Consts))
	for _, c := range p.Consts {
		wr.WriteByte(byte(c.Kind))
		switch c.Kind {
		case program.ConstBool:
			wr.WriteBool(c.Bool)
		case program.ConstInt:
			wr.WriteInt64(c.Int)
		case program.ConstFloat:
			wr.WriteFloat64(c.Float)
		case program.ConstStr:
			wr.WriteString(c.Str)
		case program.ConstBytes:
			wr.WriteBytes(c.Bytes)
		}
	}

	wr.WriteInt(len(p.Codes))
	for _, code := range p.Codes {
		writeCodeObject(wr, code)
	}
}

func writeCodeObject(wr *Writer, code program.CodeObject) {
	wr.WriteString(code.Name)
	wr.WriteInt(code.NumLocals)
	wr.WriteBool(code.IsGenerator)

	wr.WriteInt(len(code.Params))
	for _, p := range code.Params {
		wr.WriteString(p.Name)
		wr.WriteBool(p.HasDef)
		wr.WriteInt(p.DefConst)
	}

	wr.WriteInt(len(code.FreeVars))
	for _, fv := range code.FreeVars {
		wr.WriteString(fv.Name)
		wr.WriteBool(fv.FromOuter)
	}

	wr.WriteInt(len(code.Code))
	for _, ins := range code.Code {
		wr.WriteByte(byte(ins.Op))
		wr.WriteInt64(int64(ins.A))
		wr.WriteInt64(int64(ins.B))
		wr.WriteInt64(int64(ins.C))
		wr.WriteInt64(int64(ins.Line))
	}

	wr.WriteInt(len(code.Lines))
	for _, le := range code.Lines {
		wr.WriteInt(le.StartPC)
		wr.WriteInt(le.Line)
	}
}

// ReadProgram decodes a Program previously written by WriteProgram. The
// caller must have already consumed the envelope header and confirmed its
// tag is TagProgram.
func ReadProgram(rd *Reader) *program.Program {
	p := &program.Program{}
	p.BuildID = rd.ReadString()
	p.ScriptName = rd.ReadString()
	p.TypeCheckerStub = rd.ReadString()
	p.TopLevel = rd.ReadInt()
	p.InputNames = rd.ReadStrings()
	p.ExternalFuncs = rd.ReadStrings()

	n := rd.ReadInt()
	p.Consts = make([]program.Const, n)
	for i := range p.Consts {
		kind := program.ConstKind(rd.ReadByte())
		c := program.Const{Kind: kind}
		switch kind {
		case program.ConstBool:
			c.Bool = rd.ReadBool()
		case program.ConstInt:
			c.Int = rd.ReadInt64()
		case program.ConstFloat:
			c.Float = rd.ReadFloat64()
		case program.ConstStr:
			c.Str = rd.ReadString()
		case program.ConstBytes:
			c.Bytes = rd.ReadBytes()
		}
		p.Consts[i] = c
	}

	n = rd.ReadInt()
	p.Codes = make([]program.CodeObject, n)
	for i := range p.Codes {
		p.Codes[i] = readCodeObject(rd)
	}
	return p
}

func readCodeObject(rd *Reader) program.CodeObject {
	var code program.CodeObject
	code.Name = rd.ReadString()
	code.NumLocals = rd.ReadInt()
	code.IsGenerator = rd.ReadBool()

	n := rd.ReadInt()
	code.Params = make([]program.Param, n)
	for i := range code.Params {
		code.Params[i] = program.Param{
			Name:     rd.ReadString(),
			HasDef:   rd.ReadBool(),
			DefConst: rd.ReadInt(),
		}
	}

	n = rd.ReadInt()
	code.FreeVars = make([]program.FreeVar, n)
	for i := range code.FreeVars {
		code.FreeVars[i] = program.FreeVar{Name: rd.ReadString(), FromOuter: rd.ReadBool()}
	}

	n = rd.ReadInt()
	code.Code = make([]opcodes.Instruction, n)
	for i := range code.Code {
		code.Code[i] = opcodes.Instruction{
			Op:   opcodes.Opcode(rd.ReadByte()),
			A:    int32(rd.ReadInt64()),
			B:    int32(rd.ReadInt64()),
			C:    int32(rd.ReadInt64()),
			Line: int32(rd.ReadInt64()),
		}
	}

	n = rd.ReadInt()
	code.Lines = make([]program.LineEntry, n)
	for i := range code.Lines {
		code.Lines[i] = program.LineEntry{StartPC: rd.ReadInt(), Line: rd.ReadInt()}
	}
	return code
}
