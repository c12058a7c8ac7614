// Package parcel implements the primitive wire format carried by power hub
// transactions: a little-endian value stream in which every value starts on
// a four-byte boundary.
//
// The format has no self-description. Readers and writers must agree on the
// field sequence; structured values use a size prefix (WriteSized/ReadSized)
// so that older and newer peers can exchange them safely.
package parcel

import (
	"encoding/binary"
	"errors"
	"math"
	"unicode/utf16"
)

var (
	// ErrTruncated reports a read past the end of the parcel data.
	ErrTruncated = errors.New("parcel: unexpected end of data")
	// ErrMalformed reports structurally invalid data, such as negative
	// lengths or a missing string terminator.
	ErrMalformed = errors.New("parcel: malformed data")
)

// Writer assembles a parcel. The zero value is ready to use.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// Bytes returns the encoded parcel. The slice is valid until the next write.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

func (w *Writer) WriteInt32(v int32)   { w.WriteUint32(uint32(v)) }
func (w *Writer) WriteInt64(v int64)   { w.WriteUint64(uint64(v)) }
func (w *Writer) WriteFloat64(v float64) { w.WriteUint64(math.Float64bits(v)) }

func (w *Writer) WriteUint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *Writer) WriteUint64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// WriteBool writes a bool as an int32 0/1.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteInt32(1)
		return
	}
	w.WriteInt32(0)
}

// WriteString16 writes the UTF-16 string encoding: code-unit count, the
// units, a NUL terminator, zero padding to the next four-byte boundary.
func (w *Writer) WriteString16(s string) {
	units := utf16.Encode([]rune(s))
	w.WriteInt32(int32(len(units)))
	for _, u := range units {
		w.buf = binary.LittleEndian.AppendUint16(w.buf, u)
	}
	w.buf = binary.LittleEndian.AppendUint16(w.buf, 0)
	w.pad()
}

// WriteString8 writes the byte-string encoding: byte count, the bytes, a
// NUL terminator, zero padding to the next four-byte boundary.
func (w *Writer) WriteString8(s string) {
	w.WriteInt32(int32(len(s)))
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
	w.pad()
}

// WriteInt32Vector writes an int32 count followed by the elements.
// A nil slice is written as the null vector (count -1).
func (w *Writer) WriteInt32Vector(v []int32) {
	if v == nil {
		w.WriteInt32(-1)
		return
	}
	w.WriteInt32(int32(len(v)))
	for _, e := range v {
		w.WriteInt32(e)
	}
}

// WriteInt64Vector writes an int32 count followed by the elements.
// A nil slice is written as the null vector (count -1).
func (w *Writer) WriteInt64Vector(v []int64) {
	if v == nil {
		w.WriteInt32(-1)
		return
	}
	w.WriteInt32(int32(len(v)))
	for _, e := range v {
		w.WriteInt64(e)
	}
}

// WriteString16Vector writes an int32 count followed by string16 elements.
// A nil slice is written as the null vector (count -1).
func (w *Writer) WriteString16Vector(v []string) {
	if v == nil {
		w.WriteInt32(-1)
		return
	}
	w.WriteInt32(int32(len(v)))
	for _, e := range v {
		w.WriteString16(e)
	}
}

// WriteSized writes a structured value: an int32 size covering the size
// field itself plus everything fn writes. Readers use the size to skip
// fields appended by newer writers.
func (w *Writer) WriteSized(fn func(*Writer)) {
	start := len(w.buf)
	w.WriteInt32(0)
	fn(w)
	binary.LittleEndian.PutUint32(w.buf[start:], uint32(len(w.buf)-start))
}

// WriteLengthPrefixed writes an int32 byte length, not counting the length
// field itself, followed by everything fn writes.
func (w *Writer) WriteLengthPrefixed(fn func(*Writer)) {
	start := len(w.buf)
	w.WriteInt32(0)
	fn(w)
	binary.LittleEndian.PutUint32(w.buf[start:], uint32(len(w.buf)-start-4))
}

// WriteObjectHandle writes a non-null object reference.
func (w *Writer) WriteObjectHandle(h uint64) {
	w.WriteInt32(1)
	w.WriteUint64(h)
}

// WriteNullObject writes a null object reference.
func (w *Writer) WriteNullObject() {
	w.WriteInt32(0)
}

func (w *Writer) pad() {
	for len(w.buf)%4 != 0 {
		w.buf = append(w.buf, 0)
	}
}
