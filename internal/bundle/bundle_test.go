package bundle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/railmon/powerstats/internal/parcel"
)

const testMonitorDescriptor = "test.Monitor"

type testMonitor struct {
	Index int32
	Name  string
}

func (m testMonitor) ParcelDescriptor() string { return testMonitorDescriptor }

func (m testMonitor) WriteToParcel(w *parcel.Writer) {
	w.WriteInt32(m.Index)
	w.WriteString8(m.Name)
}

func init() {
	Register(testMonitorDescriptor, func(r *parcel.Reader) (any, error) {
		var m testMonitor
		var err error
		if m.Index, err = r.Int32(); err != nil {
			return nil, err
		}
		m.Name, err = r.String8()
		return m, err
	})
}

func TestRoundTrip(t *testing.T) {
	in := New().
		PutLongs("timestamps", []int64{100, 200, 300}).
		PutBools("supported", []bool{true, false, true}).
		PutParcelables("monitors", []Parcelable{
			testMonitor{Index: 0, Name: "rail-a"},
			testMonitor{Index: 1, Name: "rail-b"},
		})

	w := parcel.NewWriter()
	require.NoError(t, in.Write(w))

	out, err := Read(parcel.NewReader(w.Bytes()))
	require.NoError(t, err)
	require.Equal(t, 3, out.Len())

	longs, ok := out.Longs("timestamps")
	require.True(t, ok)
	require.Equal(t, []int64{100, 200, 300}, longs)

	bools, ok := out.Bools("supported")
	require.True(t, ok)
	require.Equal(t, []bool{true, false, true}, bools)

	elems, ok := out.Parcelables("monitors")
	require.True(t, ok)
	require.Len(t, elems, 2)
	require.Equal(t, testMonitor{Index: 1, Name: "rail-b"}, elems[1])
}

func TestReadNullAndEmpty(t *testing.T) {
	// Null bundle: presence flag 0, nothing follows.
	w := parcel.NewWriter()
	w.WriteInt32(0)
	b, err := Read(parcel.NewReader(w.Bytes()))
	require.NoError(t, err)
	require.Equal(t, 0, b.Len())

	// Empty bundle: present, zero payload length.
	w = parcel.NewWriter()
	w.WriteInt32(1)
	w.WriteInt32(0)
	b, err = Read(parcel.NewReader(w.Bytes()))
	require.NoError(t, err)
	require.Equal(t, 0, b.Len())
}

func TestWriteEmpty(t *testing.T) {
	w := parcel.NewWriter()
	require.NoError(t, New().Write(w))

	r := parcel.NewReader(w.Bytes())
	present, err := r.Int32()
	require.NoError(t, err)
	require.EqualValues(t, 1, present)
	length, err := r.Int32()
	require.NoError(t, err)
	require.EqualValues(t, 0, length)
}

func TestNativeMagicAccepted(t *testing.T) {
	w := parcel.NewWriter()
	w.WriteInt32(1)
	w.WriteLengthPrefixed(func(w *parcel.Writer) {
		w.WriteUint32(magicNative)
		w.WriteInt32(1)
		w.WriteString16("energy")
		w.WriteInt32(tagLongArray)
		w.WriteInt64Vector([]int64{42})
	})

	b, err := Read(parcel.NewReader(w.Bytes()))
	require.NoError(t, err)
	longs, ok := b.Longs("energy")
	require.True(t, ok)
	require.Equal(t, []int64{42}, longs)
}

func TestBadMagic(t *testing.T) {
	w := parcel.NewWriter()
	w.WriteInt32(1)
	w.WriteLengthPrefixed(func(w *parcel.Writer) {
		w.WriteUint32(0xDEADBEEF)
		w.WriteInt32(0)
	})
	_, err := Read(parcel.NewReader(w.Bytes()))
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestUnknownLengthPrefixedTagSkipped(t *testing.T) {
	w := parcel.NewWriter()
	w.WriteInt32(1)
	w.WriteLengthPrefixed(func(w *parcel.Writer) {
		w.WriteUint32(magicJava)
		w.WriteInt32(2)
		// A map value this package does not decode.
		w.WriteString16("extras")
		w.WriteInt32(tagMap)
		w.WriteLengthPrefixed(func(w *parcel.Writer) {
			w.WriteInt32(123)
			w.WriteInt32(456)
		})
		// The entry after it must still decode.
		w.WriteString16("energy")
		w.WriteInt32(tagLongArray)
		w.WriteInt64Vector([]int64{7})
	})

	b, err := Read(parcel.NewReader(w.Bytes()))
	require.NoError(t, err)

	v, ok := b.Get("extras")
	require.True(t, ok)
	require.Equal(t, KindUnknown, v.Kind)
	require.Equal(t, tagMap, v.Tag)

	longs, ok := b.Longs("energy")
	require.True(t, ok)
	require.Equal(t, []int64{7}, longs)
}

func TestUnknownUnprefixedTagAborts(t *testing.T) {
	w := parcel.NewWriter()
	w.WriteInt32(1)
	w.WriteLengthPrefixed(func(w *parcel.Writer) {
		w.WriteUint32(magicJava)
		w.WriteInt32(1)
		w.WriteString16("label")
		w.WriteInt32(0) // VAL_STRING: no length prefix, cannot skip
		w.WriteString16("oops")
	})
	_, err := Read(parcel.NewReader(w.Bytes()))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestBooleanArrayByteGuard(t *testing.T) {
	w := parcel.NewWriter()
	w.WriteInt32(1)
	w.WriteLengthPrefixed(func(w *parcel.Writer) {
		w.WriteUint32(magicJava)
		w.WriteInt32(1)
		w.WriteString16("flags")
		w.WriteInt32(tagBooleanArray)
		w.WriteInt32(1 << 20) // claims far more elements than bytes remain
	})

	b, err := Read(parcel.NewReader(w.Bytes()))
	require.NoError(t, err)
	v, ok := b.Get("flags")
	require.True(t, ok)
	require.Equal(t, KindNull, v.Kind)
}

func TestUnregisteredCreator(t *testing.T) {
	w := parcel.NewWriter()
	w.WriteInt32(1)
	w.WriteLengthPrefixed(func(w *parcel.Writer) {
		w.WriteUint32(magicJava)
		w.WriteInt32(1)
		w.WriteString16("monitors")
		w.WriteInt32(tagParcelableArray)
		w.WriteLengthPrefixed(func(w *parcel.Writer) {
			w.WriteInt32(1)
			w.WriteString16("test.Unregistered")
			w.WriteInt32(5)
		})
	})
	_, err := Read(parcel.NewReader(w.Bytes()))
	require.ErrorIs(t, err, ErrNoCreator)
	require.Contains(t, err.Error(), "test.Unregistered")
}

func TestValueLengthMismatch(t *testing.T) {
	w := parcel.NewWriter()
	w.WriteInt32(1)
	w.WriteLengthPrefixed(func(w *parcel.Writer) {
		w.WriteUint32(magicJava)
		w.WriteInt32(1)
		w.WriteString16("monitors")
		w.WriteInt32(tagParcelableArray)
		// Declared length is larger than what the array decodes to.
		w.WriteInt32(16)
		w.WriteInt32(0) // empty array, 4 bytes
		w.WriteInt32(0)
		w.WriteInt32(0)
		w.WriteInt32(0)
	})
	_, err := Read(parcel.NewReader(w.Bytes()))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestRegisterDuplicatePanics(t *testing.T) {
	fn := func(r *parcel.Reader) (any, error) { return nil, nil }
	Register("test.Duplicate", fn)
	defer func() {
		if recover() == nil {
			t.Fatal("second Register did not panic")
		}
	}()
	Register("test.Duplicate", fn)
}

func TestEncodeUnknownKindFails(t *testing.T) {
	b := New()
	b.put("weird", Value{Kind: KindUnknown, Tag: tagMap})
	err := b.Write(parcel.NewWriter())
	require.Error(t, err)
}

func TestPutOverwritesKeepingOrder(t *testing.T) {
	b := New().
		PutLongs("a", []int64{1}).
		PutLongs("b", []int64{2}).
		PutLongs("a", []int64{3})
	require.Equal(t, 2, b.Len())

	w := parcel.NewWriter()
	require.NoError(t, b.Write(w))
	out, err := Read(parcel.NewReader(w.Bytes()))
	require.NoError(t, err)
	longs, ok := out.Longs("a")
	require.True(t, ok)
	require.Equal(t, []int64{3}, longs)
}

func TestNullValue(t *testing.T) {
	b := New().PutNull("absent")
	w := parcel.NewWriter()
	require.NoError(t, b.Write(w))

	out, err := Read(parcel.NewReader(w.Bytes()))
	require.NoError(t, err)
	v, ok := out.Get("absent")
	require.True(t, ok)
	require.Equal(t, KindNull, v.Kind)
	_, isLongs := out.Longs("absent")
	require.False(t, isLongs)
}

func TestTruncatedBundle(t *testing.T) {
	in := New().PutLongs("timestamps", []int64{1, 2, 3})
	w := parcel.NewWriter()
	require.NoError(t, in.Write(w))
	full := w.Bytes()

	for n := 0; n < len(full); n++ {
		_, err := Read(parcel.NewReader(full[:n]))
		if err == nil {
			// Prefixes that happen to parse as null/empty bundles are fine.
			continue
		}
		if !errors.Is(err, parcel.ErrTruncated) && !errors.Is(err, parcel.ErrMalformed) &&
			!errors.Is(err, ErrMalformed) && !errors.Is(err, ErrBadMagic) {
			t.Fatalf("truncated at %d: unexpected error %v", n, err)
		}
	}
}
