package serialize

import (
	"github.com/scostello/monty-go/heap"
	"github.com/scostello/monty-go/values"
)

// valueTag is the wire tag for a values.Value record; it mirrors
// values.Tag but is declared independently so the wire format never shifts
// just because an internal tag constant gets reordered.
type valueTag byte

const (
	vtNone valueTag = iota
	vtBool
	vtInt
	vtFloat
	vtStr
	vtBytes
	vtHandle
)

// WriteValue emits one Value: immediates inline, TagHandle as a bare handle
// id resolved against the accompanying heap table on read.
func WriteValue(wr *Writer, v values.Value) {
	switch v.Tag {
	case values.TagNone:
		wr.WriteByte(byte(vtNone))
	case values.TagBool:
		wr.WriteByte(byte(vtBool))
		wr.WriteBool(v.Bool())
	case values.TagInt:
		wr.WriteByte(byte(vtInt))
		wr.WriteInt64(v.Int())
	case values.TagFloat:
		wr.WriteByte(byte(vtFloat))
		wr.WriteFloat64(v.Float())
	case values.TagStr:
		wr.WriteByte(byte(vtStr))
		wr.WriteString(v.Text())
	case values.TagBytes:
		wr.WriteByte(byte(vtBytes))
		wr.WriteBytes([]byte(v.Text()))
	case values.TagHandle:
		wr.WriteByte(byte(vtHandle))
		wr.WriteUint32(uint32(v.Handle()))
	default:
		wr.WriteByte(byte(vtNone))
	}
}

// ReadValue consumes one Value written by WriteValue. A TagHandle value's
// handle is only meaningful once the accompanying heap table has been
// restored; callers read the whole heap table before dereferencing any
// handle-valued Value, never before.
func ReadValue(rd *Reader) values.Value {
	switch valueTag(rd.ReadByte()) {
	case vtNone:
		return values.None()
	case vtBool:
		return values.Bool(rd.ReadBool())
	case vtInt:
		return values.Int(rd.ReadInt64())
	case vtFloat:
		return values.Float(rd.ReadFloat64())
	case vtStr:
		return values.ImmediateStr(rd.ReadString())
	case vtBytes:
		return values.ImmediateBytes(rd.ReadBytes())
	case vtHandle:
		return values.FromHandle(heap.Handle(rd.ReadUint32()))
	default:
		return values.None()
	}
}

// WriteValues emits a count followed by each Value.
func WriteValues(wr *Writer, vs []values.Value) {
	wr.WriteInt(len(vs))
	for _, v := range vs {
		WriteValue(wr, v)
	}
}

func ReadValues(rd *Reader) []values.Value {
	n := rd.ReadInt()
	if n == 0 {
		return nil
	}
	out := make([]values.Value, n)
	for i := range out {
		out[i] = ReadValue(rd)
	}
	return out
}
