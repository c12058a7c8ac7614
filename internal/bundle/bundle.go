// Package bundle implements the string-keyed typed value container carried
// by power monitor callbacks. Bundles travel inside parcels: a presence
// flag, a payload length, a magic word, and key/value pairs whose values
// are tagged with a type.
//
// Only the value types the power monitor protocol uses are decoded (long
// arrays, boolean arrays, parcelable arrays). Other length-prefixed value
// types are skipped and surface as KindUnknown; unknown types without a
// length prefix cannot be skipped safely and abort decoding.
package bundle

import (
	"errors"
	"fmt"

	"github.com/railmon/powerstats/internal/parcel"
)

const (
	magicJava   = 0x4C444E42 // "BNDL", java-written bundles
	magicNative = 0x4C444E44 // "BNDN", native-written bundles
)

// Value type tags, matching the platform parcel constants.
const (
	tagNull            int32 = -1
	tagMap             int32 = 2
	tagParcelable      int32 = 4
	tagList            int32 = 11
	tagSparseArray     int32 = 12
	tagParcelableArray int32 = 16
	tagObjectArray     int32 = 17
	tagLongArray       int32 = 19
	tagSerializable    int32 = 21
	tagBooleanArray    int32 = 23
)

// lengthPrefixed reports whether values of tag carry an int32 byte length,
// which makes them skippable without understanding their payload.
func lengthPrefixed(tag int32) bool {
	switch tag {
	case tagMap, tagParcelable, tagList, tagSparseArray,
		tagParcelableArray, tagObjectArray, tagSerializable:
		return true
	}
	return false
}

var (
	// ErrBadMagic reports an unrecognized bundle magic word.
	ErrBadMagic = errors.New("bundle: bad magic")
	// ErrMalformed reports a structurally invalid bundle payload.
	ErrMalformed = errors.New("bundle: malformed data")
)

// Kind identifies the decoded type of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindLongs
	KindBools
	KindParcelables
	// KindUnknown marks a length-prefixed value of a type this package
	// does not decode. Its payload was skipped; Tag holds the wire tag.
	KindUnknown
)

// Value is one typed bundle entry.
type Value struct {
	Kind        Kind
	Tag         int32
	Longs       []int64
	Bools       []bool
	Parcelables []any
}

// Bundle maps string keys to typed values. Encoding preserves insertion
// order.
type Bundle struct {
	keys   []string
	values map[string]Value
}

// New returns an empty Bundle.
func New() *Bundle {
	return &Bundle{values: make(map[string]Value)}
}

// Len returns the number of entries.
func (b *Bundle) Len() int {
	if b == nil {
		return 0
	}
	return len(b.keys)
}

// Get returns the value stored under key.
func (b *Bundle) Get(key string) (Value, bool) {
	if b == nil {
		return Value{}, false
	}
	v, ok := b.values[key]
	return v, ok
}

// Longs returns the long array stored under key.
func (b *Bundle) Longs(key string) ([]int64, bool) {
	v, ok := b.Get(key)
	if !ok || v.Kind != KindLongs {
		return nil, false
	}
	return v.Longs, true
}

// Bools returns the boolean array stored under key.
func (b *Bundle) Bools(key string) ([]bool, bool) {
	v, ok := b.Get(key)
	if !ok || v.Kind != KindBools {
		return nil, false
	}
	return v.Bools, true
}

// Parcelables returns the parcelable array stored under key. Elements are
// whatever the registered creator produced.
func (b *Bundle) Parcelables(key string) ([]any, bool) {
	v, ok := b.Get(key)
	if !ok || v.Kind != KindParcelables {
		return nil, false
	}
	return v.Parcelables, true
}

func (b *Bundle) put(key string, v Value) *Bundle {
	if _, exists := b.values[key]; !exists {
		b.keys = append(b.keys, key)
	}
	b.values[key] = v
	return b
}

// PutLongs stores a long array under key.
func (b *Bundle) PutLongs(key string, v []int64) *Bundle {
	return b.put(key, Value{Kind: KindLongs, Tag: tagLongArray, Longs: v})
}

// PutBools stores a boolean array under key.
func (b *Bundle) PutBools(key string, v []bool) *Bundle {
	return b.put(key, Value{Kind: KindBools, Tag: tagBooleanArray, Bools: v})
}

// PutParcelables stores a parcelable array under key.
func (b *Bundle) PutParcelables(key string, items []Parcelable) *Bundle {
	elems := make([]any, len(items))
	for i, it := range items {
		elems[i] = it
	}
	return b.put(key, Value{Kind: KindParcelables, Tag: tagParcelableArray, Parcelables: elems})
}

// PutNull stores an explicit null under key.
func (b *Bundle) PutNull(key string) *Bundle {
	return b.put(key, Value{Kind: KindNull, Tag: tagNull})
}

// Read decodes a bundle from r. A null or empty bundle decodes as an empty
// Bundle.
func Read(r *parcel.Reader) (*Bundle, error) {
	present, err := r.Int32()
	if err != nil {
		return nil, err
	}
	b := New()
	if present == 0 {
		return b, nil
	}
	length, err := r.Int32()
	if err != nil {
		return nil, err
	}
	if length == 0 {
		return b, nil
	}
	if length < 0 {
		return nil, fmt.Errorf("bundle: payload length %d: %w", length, ErrMalformed)
	}
	start := r.Pos()
	magic, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	if magic != magicJava && magic != magicNative {
		return nil, fmt.Errorf("%w %#08x", ErrBadMagic, magic)
	}
	count, err := r.Int32()
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, fmt.Errorf("bundle: entry count %d: %w", count, ErrMalformed)
	}
	for i := int32(0); i < count; i++ {
		key, err := r.String16()
		if err != nil {
			return nil, err
		}
		v, err := readValue(r)
		if err != nil {
			return nil, fmt.Errorf("bundle: key %q: %w", key, err)
		}
		b.put(key, v)
	}
	if got := r.Pos() - start; got != int(length) {
		return nil, fmt.Errorf("bundle: decoded %d bytes, payload declares %d: %w", got, length, ErrMalformed)
	}
	return b, nil
}

func readValue(r *parcel.Reader) (Value, error) {
	tag, err := r.Int32()
	if err != nil {
		return Value{}, err
	}
	if tag == tagNull {
		return Value{Kind: KindNull, Tag: tag}, nil
	}
	if lengthPrefixed(tag) {
		length, err := r.Int32()
		if err != nil {
			return Value{}, err
		}
		if length < 0 {
			return Value{}, fmt.Errorf("value length %d: %w", length, ErrMalformed)
		}
		start := r.Pos()
		if tag != tagParcelableArray {
			if err := r.Skip(int(length)); err != nil {
				return Value{}, err
			}
			return Value{Kind: KindUnknown, Tag: tag}, nil
		}
		v, err := readParcelableArray(r)
		if err != nil {
			return Value{}, err
		}
		if got := r.Pos() - start; got != int(length) {
			return Value{}, fmt.Errorf("parcelable array decoded %d bytes, value declares %d: %w", got, length, ErrMalformed)
		}
		return v, nil
	}
	switch tag {
	case tagLongArray:
		longs, err := r.Int64Vector()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindLongs, Tag: tag, Longs: longs}, nil
	case tagBooleanArray:
		return readBooleanArray(r)
	default:
		return Value{}, fmt.Errorf("bundle: value tag %d has no length prefix and cannot be skipped: %w", tag, ErrMalformed)
	}
}

// readBooleanArray guards against counts that cannot fit in the remaining
// bytes: such values decode as null rather than erroring, matching the
// platform's lenient array handling.
func readBooleanArray(r *parcel.Reader) (Value, error) {
	count, err := r.Int32()
	if err != nil {
		return Value{}, err
	}
	if count < 0 || int(count) > r.Remaining()/4 {
		return Value{Kind: KindNull, Tag: tagBooleanArray}, nil
	}
	out := make([]bool, count)
	for i := range out {
		v, err := r.Int32()
		if err != nil {
			return Value{}, err
		}
		out[i] = v != 0
	}
	return Value{Kind: KindBools, Tag: tagBooleanArray, Bools: out}, nil
}

func readParcelableArray(r *parcel.Reader) (Value, error) {
	count, err := r.Int32()
	if err != nil {
		return Value{}, err
	}
	if count < 0 {
		return Value{Kind: KindParcelables, Tag: tagParcelableArray}, nil
	}
	out := make([]any, 0, count)
	for i := int32(0); i < count; i++ {
		desc, err := r.String16()
		if err != nil {
			return Value{}, err
		}
		create, err := creator(desc)
		if err != nil {
			return Value{}, err
		}
		elem, err := create(r)
		if err != nil {
			return Value{}, fmt.Errorf("element %d (%s): %w", i, desc, err)
		}
		out = append(out, elem)
	}
	return Value{Kind: KindParcelables, Tag: tagParcelableArray, Parcelables: out}, nil
}

// Write encodes the bundle into w. A nil or empty bundle encodes as the
// empty bundle.
func (b *Bundle) Write(w *parcel.Writer) error {
	w.WriteInt32(1)
	if b.Len() == 0 {
		w.WriteInt32(0)
		return nil
	}
	var encodeErr error
	w.WriteLengthPrefixed(func(w *parcel.Writer) {
		w.WriteUint32(magicJava)
		w.WriteInt32(int32(len(b.keys)))
		for _, key := range b.keys {
			w.WriteString16(key)
			if err := writeValue(w, b.values[key]); err != nil && encodeErr == nil {
				encodeErr = fmt.Errorf("bundle: key %q: %w", key, err)
			}
		}
	})
	return encodeErr
}

func writeValue(w *parcel.Writer, v Value) error {
	switch v.Kind {
	case KindNull:
		w.WriteInt32(tagNull)
	case KindLongs:
		w.WriteInt32(tagLongArray)
		w.WriteInt64Vector(v.Longs)
	case KindBools:
		w.WriteInt32(tagBooleanArray)
		w.WriteInt32(int32(len(v.Bools)))
		for _, e := range v.Bools {
			w.WriteBool(e)
		}
	case KindParcelables:
		w.WriteInt32(tagParcelableArray)
		var elemErr error
		w.WriteLengthPrefixed(func(w *parcel.Writer) {
			w.WriteInt32(int32(len(v.Parcelables)))
			for i, e := range v.Parcelables {
				p, ok := e.(Parcelable)
				if !ok {
					if elemErr == nil {
						elemErr = fmt.Errorf("element %d (%T) does not implement Parcelable", i, e)
					}
					continue
				}
				w.WriteString16(p.ParcelDescriptor())
				p.WriteToParcel(w)
			}
		})
		return elemErr
	default:
		return fmt.Errorf("cannot encode value of kind %d (tag %d)", v.Kind, v.Tag)
	}
	return nil
}
