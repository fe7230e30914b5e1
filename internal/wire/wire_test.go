package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestVarintRoundTrip covers spec.md §8 invariant 8: for every integer in
// [0, MaxLength], decode(encode(n)) == n.
func TestVarintRoundTrip(t *testing.T) {
	samples := []uint32{0, 1, 63, 64, 127, 128, 16383, 16384, MaxLength - 1, MaxLength}
	for _, n := range samples {
		buf := EncodeVarint(nil, n)
		got, consumed, err := DecodeVarint(buf, 0)
		require.NoError(t, err)
		require.Equal(t, len(buf), consumed)
		require.Equal(t, n, got)
	}
}

func TestVarintRoundTripExhaustiveSmallRange(t *testing.T) {
	for n := uint32(0); n < 20000; n++ {
		buf := EncodeVarint(nil, n)
		got, consumed, err := DecodeVarint(buf, 0)
		require.NoError(t, err)
		require.Equal(t, len(buf), consumed)
		require.Equal(t, n, got)
	}
}

func TestDecodeVarintTruncated(t *testing.T) {
	_, _, err := DecodeVarint([]byte{0x80}, 0)
	require.Error(t, err)
}

func TestDecodeVarintTooLong(t *testing.T) {
	_, _, err := DecodeVarint([]byte{0x80, 0x80, 0x80, 0x80, 0x80}, 0)
	require.Error(t, err)
}

func TestBufReaderRoundTrip(t *testing.T) {
	w := NewBuf()
	w.WriteUByte(0x42)
	w.WriteUShort(0xBEEF)
	w.WriteUint32(0xDEADBEEF)
	w.WriteUint64(0x0123456789ABCDEF)
	w.WriteVarint(300)
	w.WriteString("hello")
	w.WriteBytes([]byte{1, 2, 3})
	w.WriteNibblePair(7, 9)

	r := NewReader(w.Bytes())

	ub, err := r.ReadUByte()
	require.NoError(t, err)
	require.Equal(t, byte(0x42), ub)

	us, err := r.ReadUShort()
	require.NoError(t, err)
	require.Equal(t, uint16(0xBEEF), us)

	u32, err := r.ReadUint32()
	require.NoError(t, err)
	require.Equal(t, uint32(0xDEADBEEF), u32)

	u64, err := r.ReadUint64()
	require.NoError(t, err)
	require.Equal(t, uint64(0x0123456789ABCDEF), u64)

	vi, err := r.ReadVarint()
	require.NoError(t, err)
	require.Equal(t, uint32(300), vi)

	s, err := r.ReadString()
	require.NoError(t, err)
	require.Equal(t, "hello", s)

	bs, err := r.ReadBytes(3)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, bs)

	x, y, err := r.ReadNibblePair()
	require.NoError(t, err)
	require.Equal(t, uint8(7), x)
	require.Equal(t, uint8(9), y)

	require.Zero(t, r.Remaining())
}

func TestPayloadSizeBackpatch(t *testing.T) {
	w := NewBuf()
	w.WriteUByte(0xAA)
	off := w.PayloadSizePlaceholder()
	w.WriteBytes([]byte{1, 2, 3, 4, 5})
	require.NoError(t, w.BackpatchPayloadSize(off))

	r := NewReader(w.Bytes())
	_, err := r.ReadUByte()
	require.NoError(t, err)
	size, err := r.ReadPayloadSize()
	require.NoError(t, err)
	require.Equal(t, uint16(5), size)
	payload, err := r.ReadBytes(int(size))
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4, 5}, payload)
}

func TestReaderShortReadErrors(t *testing.T) {
	r := NewReader([]byte{0x01})
	_, err := r.ReadUShort()
	require.Error(t, err)

	r2 := NewReader(nil)
	_, err = r2.ReadUByte()
	require.Error(t, err)

	r3 := NewReader([]byte{1, 2})
	err = r3.Skip(5)
	require.Error(t, err)
}
