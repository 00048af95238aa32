// Package serialize implements the shared binary envelope spec.md §6
// describes: a 4-byte magic, a 1-byte version, then type-tagged records.
// Program, Snapshot, FutureSnapshot and Repl all dump/load through the same
// Writer/Reader primitives here, one fixed-header-plus-content shape for
// every record kind rather than a bespoke format per kind.
package serialize

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// magic identifies a Monty envelope; version allows the format to evolve
// without silently misreading an older/newer file.
var magic = [4]byte{'M', 'N', 'T', 'Y'}

const version = 1

// Tag identifies which top-level record an envelope carries, so Load can
// reject a Program file handed to LoadSnapshot and vice versa.
type Tag byte

const (
	TagProgram Tag = iota
	TagSnapshot
	TagFutureSnapshot
	TagRepl
)

// errTruncated is returned (wrapped with context) whenever a read runs out
// of bytes mid-record, matching spec.md §6's required message text.
var errTruncated = fmt.Errorf("Hit the end of buffer, expected more data")

// Writer accumulates an envelope's body. Callers write the header once via
// WriteHeader, then whatever fields the record needs.
type Writer struct {
	w   io.Writer
	err error
}

func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

// Err returns the first error encountered by any Write* call, so callers
// can check once at the end instead of after every field.
func (wr *Writer) Err() error { return wr.err }

// Fail records err as the Writer's sticky error if none is set yet, for
// callers that detect a record-level problem (an unrepresentable heap kind)
// rather than a short write.
func (wr *Writer) Fail(err error) {
	if wr.err == nil {
		wr.err = err
	}
}

func (wr *Writer) write(p []byte) {
	if wr.err != nil {
		return
	}
	_, wr.err = wr.w.Write(p)
}

// WriteHeader emits magic+version+tag; must be the first call on a fresh
// Writer.
func (wr *Writer) WriteHeader(tag Tag) {
	wr.write(magic[:])
	wr.write([]byte{version, byte(tag)})
}

func (wr *Writer) WriteByte(b byte) { wr.write([]byte{b}) }

func (wr *Writer) WriteBool(b bool) {
	if b {
		wr.WriteByte(1)
	} else {
		wr.WriteByte(0)
	}
}

func (wr *Writer) WriteUint64(v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	wr.write(buf[:])
}

func (wr *Writer) WriteInt64(v int64)     { wr.WriteUint64(uint64(v)) }
func (wr *Writer) WriteInt(v int)         { wr.WriteInt64(int64(v)) }
func (wr *Writer) WriteUint32(v uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	wr.write(buf[:])
}
func (wr *Writer) WriteFloat64(v float64) { wr.WriteUint64(math.Float64bits(v)) }

// WriteBytes emits a uint32 length prefix followed by the raw bytes.
func (wr *Writer) WriteBytes(b []byte) {
	wr.WriteUint32(uint32(len(b)))
	wr.write(b)
}

func (wr *Writer) WriteString(s string) { wr.WriteBytes([]byte(s)) }

// WriteStrings emits an int64 count followed by each string.
func (wr *Writer) WriteStrings(ss []string) {
	wr.WriteInt(len(ss))
	for _, s := range ss {
		wr.WriteString(s)
	}
}

// Reader consumes an envelope body written by Writer, failing with
// errTruncated (spec.md §6 wording) on any short read.
type Reader struct {
	r   io.Reader
	err error
}

func NewReader(r io.Reader) *Reader { return &Reader{r: r} }

func (rd *Reader) Err() error { return rd.err }

// Fail records err as the Reader's sticky error if none is set yet.
func (rd *Reader) Fail(err error) {
	if rd.err == nil {
		rd.err = err
	}
}

func (rd *Reader) read(n int) []byte {
	if rd.err != nil {
		return nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(rd.r, buf); err != nil {
		rd.err = errTruncated
		return nil
	}
	return buf
}

// ReadHeader validates magic+version and returns the record tag.
func (rd *Reader) ReadHeader() Tag {
	got := rd.read(4)
	if rd.err != nil {
		return 0
	}
	if got[0] != magic[0] || got[1] != magic[1] || got[2] != magic[2] || got[3] != magic[3] {
		rd.err = fmt.Errorf("monty: not a Monty envelope (bad magic)")
		return 0
	}
	rest := rd.read(2)
	if rd.err != nil {
		return 0
	}
	if rest[0] != version {
		rd.err = fmt.Errorf("monty: unsupported envelope version %d", rest[0])
		return 0
	}
	return Tag(rest[1])
}

func (rd *Reader) ReadByte() byte {
	b := rd.read(1)
	if rd.err != nil {
		return 0
	}
	return b[0]
}

func (rd *Reader) ReadBool() bool { return rd.ReadByte() != 0 }

func (rd *Reader) ReadUint64() uint64 {
	b := rd.read(8)
	if rd.err != nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (rd *Reader) ReadInt64() int64 { return int64(rd.ReadUint64()) }
func (rd *Reader) ReadInt() int     { return int(rd.ReadInt64()) }

func (rd *Reader) ReadUint32() uint32 {
	b := rd.read(4)
	if rd.err != nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (rd *Reader) ReadFloat64() float64 { return math.Float64frombits(rd.ReadUint64()) }

func (rd *Reader) ReadBytes() []byte {
	n := rd.ReadUint32()
	if rd.err != nil {
		return nil
	}
	return rd.read(int(n))
}

func (rd *Reader) ReadString() string { return string(rd.ReadBytes()) }

func (rd *Reader) ReadStrings() []string {
	n := rd.ReadInt()
	if rd.err != nil || n == 0 {
		return nil
	}
	out := make([]string, n)
	for i := range out {
		out[i] = rd.ReadString()
	}
	return out
}
