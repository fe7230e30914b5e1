package wire

import (
	"encoding/binary"
	"fmt"
)

// Reader decodes primitives from a byte slice in the same layout Buf
// writes them in. It never mutates the underlying slice and tracks a
// read cursor; all methods return an error on short input rather than
// panicking, since the input originates from an untrusted peer.
type Reader struct {
	b   []byte
	pos int
}

// NewReader wraps b for sequential decoding starting at offset 0.
func NewReader(b []byte) *Reader {
	return &Reader{b: b}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.b) - r.pos }

// Pos returns the current read offset.
func (r *Reader) Pos() int { return r.pos }

func (r *Reader) need(n int) error {
	if r.Remaining() < n {
		return fmt.Errorf("wire: short read, need %d have %d", n, r.Remaining())
	}
	return nil
}

// ReadUByte reads a single byte.
func (r *Reader) ReadUByte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.b[r.pos]
	r.pos++
	return v, nil
}

// ReadUShort reads a little-endian uint16.
func (r *Reader) ReadUShort() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.b[r.pos:])
	r.pos += 2
	return v, nil
}

// ReadUint32 reads a little-endian uint32.
func (r *Reader) ReadUint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.b[r.pos:])
	r.pos += 4
	return v, nil
}

// ReadUint64 reads a little-endian uint64.
func (r *Reader) ReadUint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.b[r.pos:])
	r.pos += 8
	return v, nil
}

// ReadVarint reads a continuation-encoded varint.
func (r *Reader) ReadVarint() (uint32, error) {
	v, n, err := DecodeVarint(r.b, r.pos)
	if err != nil {
		return 0, err
	}
	r.pos += n
	return v, nil
}

// ReadString reads a varint length prefix followed by that many raw
// bytes, returned as a string (not validated as UTF-8; callers crossing
// a trust boundary into localisable text should use protocol's
// placeholder substitution instead of trusting this directly).
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadVarint()
	if err != nil {
		return "", err
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	s := string(r.b[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

// ReadBytes reads exactly n raw bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.b[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}

// ReadNibblePair unpacks one byte into two 4-bit unsigned values.
func (r *Reader) ReadNibblePair() (x, y uint8, err error) {
	b, err := r.ReadUByte()
	if err != nil {
		return 0, 0, err
	}
	return b & 0xf, (b >> 4) & 0xf, nil
}

// ReadPayloadSize reads the ushort payload-size placeholder field.
func (r *Reader) ReadPayloadSize() (uint16, error) {
	return r.ReadUShort()
}

// Skip advances the cursor by n bytes without interpreting them, used to
// discard an extended message's payload when its code is unrecognised.
// Per spec.md §9's resolved open question, a payload length that would
// run past the end of the buffer is rejected rather than truncated.
func (r *Reader) Skip(n int) error {
	if err := r.need(n); err != nil {
		return err
	}
	r.pos += n
	return nil
}
