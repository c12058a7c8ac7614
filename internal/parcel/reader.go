package parcel

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf16"
)

// Reader decodes a parcel. Reads never panic on malformed input; they
// return errors wrapping ErrTruncated or ErrMalformed.
type Reader struct {
	buf []byte
	pos int

	// Sub-readers created by ReadSized are lenient: reads past the end of
	// the object's extent yield zero values instead of ErrTruncated, so
	// fields missing from older writers read as their zero value.
	lenient bool
}

// NewReader returns a Reader over data. The reader does not copy data.
func NewReader(data []byte) *Reader { return &Reader{buf: data} }

// Pos returns the current read offset in bytes.
func (r *Reader) Pos() int { return r.pos }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

// take consumes n bytes. In lenient mode an exhausted reader returns
// (nil, nil) and the caller substitutes zero values.
func (r *Reader) take(n int) ([]byte, error) {
	if len(r.buf)-r.pos < n {
		if r.lenient {
			r.pos = len(r.buf)
			return nil, nil
		}
		return nil, fmt.Errorf("parcel: need %d bytes at offset %d of %d: %w", n, r.pos, len(r.buf), ErrTruncated)
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Skip discards n bytes.
func (r *Reader) Skip(n int) error {
	if n < 0 {
		return fmt.Errorf("parcel: skip %d bytes: %w", n, ErrMalformed)
	}
	_, err := r.take(n)
	return err
}

func (r *Reader) Int32() (int32, error) {
	v, err := r.Uint32()
	return int32(v), err
}

func (r *Reader) Uint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil || b == nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) Int64() (int64, error) {
	v, err := r.Uint64()
	return int64(v), err
}

func (r *Reader) Uint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil || b == nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *Reader) Float64() (float64, error) {
	v, err := r.Uint64()
	return math.Float64frombits(v), err
}

// Bool reads an int32 and reports whether it is nonzero.
func (r *Reader) Bool() (bool, error) {
	v, err := r.Int32()
	return v != 0, err
}

// String16 reads a UTF-16 string. The null string (count -1) reads as "".
func (r *Reader) String16() (string, error) {
	n, err := r.Int32()
	if err != nil {
		return "", err
	}
	if n < 0 {
		if n == -1 {
			return "", nil
		}
		return "", fmt.Errorf("parcel: string16 length %d: %w", n, ErrMalformed)
	}
	b, err := r.take(2 * (int(n) + 1))
	if err != nil || b == nil {
		return "", err
	}
	units := make([]uint16, int(n)+1)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[2*i:])
	}
	if units[n] != 0 {
		return "", fmt.Errorf("parcel: string16 missing NUL terminator: %w", ErrMalformed)
	}
	units = units[:n]
	if err := checkUTF16(units); err != nil {
		return "", err
	}
	if err := r.align(); err != nil {
		return "", err
	}
	return string(utf16.Decode(units)), nil
}

// String8 reads a byte string. The null string (count -1) reads as "".
func (r *Reader) String8() (string, error) {
	n, err := r.Int32()
	if err != nil {
		return "", err
	}
	if n < 0 {
		if n == -1 {
			return "", nil
		}
		return "", fmt.Errorf("parcel: string8 length %d: %w", n, ErrMalformed)
	}
	b, err := r.take(int(n) + 1)
	if err != nil || b == nil {
		return "", err
	}
	if b[n] != 0 {
		return "", fmt.Errorf("parcel: string8 missing NUL terminator: %w", ErrMalformed)
	}
	s := string(b[:n])
	if err := r.align(); err != nil {
		return "", err
	}
	return s, nil
}

// Int32Vector reads an int32 count followed by the elements. The null
// vector (count -1) reads as nil.
func (r *Reader) Int32Vector() ([]int32, error) {
	n, err := r.vectorCount(4)
	if err != nil || n < 0 {
		return nil, err
	}
	out := make([]int32, n)
	for i := range out {
		if out[i], err = r.Int32(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Int64Vector reads an int32 count followed by the elements. The null
// vector (count -1) reads as nil.
func (r *Reader) Int64Vector() ([]int64, error) {
	n, err := r.vectorCount(8)
	if err != nil || n < 0 {
		return nil, err
	}
	out := make([]int64, n)
	for i := range out {
		if out[i], err = r.Int64(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// String16Vector reads an int32 count followed by string16 elements. The
// null vector (count -1) reads as nil.
func (r *Reader) String16Vector() ([]string, error) {
	n, err := r.vectorCount(4)
	if err != nil || n < 0 {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		if out[i], err = r.String16(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// vectorCount reads and validates a vector count. elemSize is the minimum
// encoded size of one element, used to reject counts that cannot fit in
// the remaining data before any allocation happens.
func (r *Reader) vectorCount(elemSize int) (int, error) {
	n, err := r.Int32()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		if n == -1 {
			return -1, nil
		}
		return 0, fmt.Errorf("parcel: vector count %d: %w", n, ErrMalformed)
	}
	if int64(n)*int64(elemSize) > int64(r.Remaining()) {
		if r.lenient && r.Remaining() == 0 {
			return 0, nil
		}
		return 0, fmt.Errorf("parcel: vector of %d elements exceeds %d remaining bytes: %w", n, r.Remaining(), ErrTruncated)
	}
	return int(n), nil
}

// ReadSized reads a structured value written by WriteSized. fn receives a
// lenient sub-reader covering exactly the object's extent: trailing fields
// a newer writer appended are skipped, and fields an older writer omitted
// read as zero values.
func (r *Reader) ReadSized(fn func(*Reader) error) error {
	if r.lenient && r.Remaining() == 0 {
		return fn(&Reader{lenient: true})
	}
	size, err := r.Int32()
	if err != nil {
		return err
	}
	if size < 4 {
		return fmt.Errorf("parcel: parcelable size %d: %w", size, ErrMalformed)
	}
	n := int(size) - 4
	if n > r.Remaining() {
		return fmt.Errorf("parcel: parcelable size %d exceeds %d remaining bytes: %w", size, r.Remaining()+4, ErrTruncated)
	}
	sub := &Reader{buf: r.buf[r.pos : r.pos+n], lenient: true}
	r.pos += n
	return fn(sub)
}

// ReadObjectHandle reads an object reference. ok is false for the null
// reference.
func (r *Reader) ReadObjectHandle() (handle uint64, ok bool, err error) {
	flag, err := r.Int32()
	if err != nil || flag == 0 {
		return 0, false, err
	}
	h, err := r.Uint64()
	if err != nil {
		return 0, false, err
	}
	return h, true, nil
}

func (r *Reader) align() error {
	rem := r.pos % 4
	if rem == 0 {
		return nil
	}
	_, err := r.take(4 - rem)
	return err
}

func checkUTF16(units []uint16) error {
	for i := 0; i < len(units); i++ {
		u := units[i]
		switch {
		case u >= 0xD800 && u < 0xDC00:
			if i+1 >= len(units) || units[i+1] < 0xDC00 || units[i+1] >= 0xE000 {
				return fmt.Errorf("parcel: unpaired UTF-16 surrogate at unit %d: %w", i, ErrMalformed)
			}
			i++
		case u >= 0xDC00 && u < 0xE000:
			return fmt.Errorf("parcel: unpaired UTF-16 surrogate at unit %d: %w", i, ErrMalformed)
		}
	}
	return nil
}
