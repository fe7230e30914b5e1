package wire

import "fmt"

// Buf is an append-only byte-buffer codec used to encode outbound
// messages. It is intentionally a thin wrapper over []byte: sessions and
// encoders hold one per outbound connection and flush its bytes into the
// connection's queue every tick.
type Buf struct {
	b []byte
}

// NewBuf creates an empty encoding buffer.
func NewBuf() *Buf { return &Buf{} }

// Bytes returns the buffer's current contents without copying.
func (w *Buf) Bytes() []byte { return w.b }

// Len reports the number of bytes written so far.
func (w *Buf) Len() int { return len(w.b) }

// Reset clears the buffer for reuse.
func (w *Buf) Reset() { w.b = w.b[:0] }

// WriteUByte appends a single byte.
func (w *Buf) WriteUByte(v byte) { w.b = append(w.b, v) }

// WriteUShort appends a little-endian uint16.
func (w *Buf) WriteUShort(v uint16) {
	w.b = append(w.b, byte(v), byte(v>>8))
}

// WriteUint32 appends a little-endian uint32.
func (w *Buf) WriteUint32(v uint32) {
	w.b = append(w.b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

// WriteUint64 appends a little-endian uint64.
func (w *Buf) WriteUint64(v uint64) {
	for i := 0; i < 8; i++ {
		w.b = append(w.b, byte(v>>(8*i)))
	}
}

// WriteVarint appends n as a continuation-encoded varint.
func (w *Buf) WriteVarint(n uint32) {
	w.b = EncodeVarint(w.b, n)
}

// WriteString appends a varint length prefix followed by the raw UTF-8
// bytes of s.
func (w *Buf) WriteString(s string) {
	w.WriteVarint(uint32(len(s)))
	w.b = append(w.b, s...)
}

// WriteBytes appends raw bytes with no length prefix.
func (w *Buf) WriteBytes(p []byte) {
	w.b = append(w.b, p...)
}

// WriteNibblePair packs two 4-bit unsigned values into one byte. Used for
// room coordinates, which are constrained to 0..15 on each axis.
func (w *Buf) WriteNibblePair(x, y uint8) {
	w.b = append(w.b, (x&0xf)|((y&0xf)<<4))
}

// PayloadSizePlaceholder reserves two bytes for a ushort payload-size
// field and returns its offset, to be filled in later by
// BackpatchPayloadSize once the payload has been written. This is how
// extended messages remain forward-compatible: unknown codes are skipped
// by clients using exactly this many bytes.
func (w *Buf) PayloadSizePlaceholder() int {
	off := len(w.b)
	w.b = append(w.b, 0, 0)
	return off
}

// BackpatchPayloadSize fills in the ushort placeholder at off with the
// number of bytes written since the placeholder was reserved (i.e. the
// payload's length, not counting the placeholder itself).
func (w *Buf) BackpatchPayloadSize(off int) error {
	size := len(w.b) - off - 2
	if size < 0 || size > 0xffff {
		return fmt.Errorf("wire: payload size %d out of range", size)
	}
	w.b[off] = byte(size)
	w.b[off+1] = byte(size >> 8)
	return nil
}
