package migration

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// BlockGroupEncoder deflate-compresses memory blocks in groups of up to
// MaxGroupBlocks, using one persistent flate stream flushed at each
// group boundary (the Go stdlib/klauspost equivalent of zlib's
// Z_SYNC_FLUSH: Writer.Flush ends the current deflate block without
// resetting the dictionary). Reusing the stream across groups lets
// later, similar groups compress against earlier ones (spec.md §4.6
// "Memory-block compression").
type BlockGroupEncoder struct {
	buf *bytes.Buffer
	zw  *flate.Writer
}

// NewBlockGroupEncoder starts a fresh compression stream.
func NewBlockGroupEncoder() (*BlockGroupEncoder, error) {
	buf := &bytes.Buffer{}
	zw, err := flate.NewWriter(buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	return &BlockGroupEncoder{buf: buf, zw: zw}, nil
}

// EncodeGroup compresses 1..MaxGroupBlocks blocks together and returns
// the wire representation: MaxGroupBlocks little-endian uint32 base
// addresses (zero-padded past len(blocks)), then a little-endian uint32
// compressed length, then the compressed bytes.
func (e *BlockGroupEncoder) EncodeGroup(blocks []MemoryBlock) ([]byte, error) {
	if len(blocks) == 0 || len(blocks) > MaxGroupBlocks {
		return nil, fmt.Errorf("migration: group must have 1-%d blocks, got %d", MaxGroupBlocks, len(blocks))
	}

	header := make([]byte, MaxGroupBlocks*4)
	for i, b := range blocks {
		if b.BaseAddress == 0 {
			return nil, fmt.Errorf("migration: base address 0 is reserved as the zero-pad sentinel")
		}
		binary.LittleEndian.PutUint32(header[i*4:], b.BaseAddress)
	}

	e.buf.Reset()
	for _, b := range blocks {
		if len(b.Data) != BlockSize {
			return nil, fmt.Errorf("migration: block size %d != %d", len(b.Data), BlockSize)
		}
		if _, err := e.zw.Write(b.Data); err != nil {
			return nil, err
		}
	}
	if err := e.zw.Flush(); err != nil {
		return nil, err
	}
	compressed := append([]byte(nil), e.buf.Bytes()...)

	out := make([]byte, 0, len(header)+4+len(compressed))
	out = append(out, header...)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(compressed)))
	out = append(out, lenBuf[:]...)
	out = append(out, compressed...)
	return out, nil
}

// groupFeeder hands a persistent flate.Reader new compressed bytes one
// group at a time, without signalling end-of-stream between groups.
type groupFeeder struct {
	pending []byte
}

func (f *groupFeeder) push(b []byte) { f.pending = append(f.pending, b...) }

func (f *groupFeeder) Read(p []byte) (int, error) {
	if len(f.pending) == 0 {
		return 0, io.EOF
	}
	n := copy(p, f.pending)
	f.pending = f.pending[n:]
	return n, nil
}

// BlockGroupDecoder reverses BlockGroupEncoder. Groups must be decoded
// in the same order they were encoded, since the two sides share one
// flate dictionary across the whole sync.
type BlockGroupDecoder struct {
	feeder *groupFeeder
	zr     io.ReadCloser
}

// NewBlockGroupDecoder starts a decompression stream matching a fresh
// BlockGroupEncoder.
func NewBlockGroupDecoder() *BlockGroupDecoder {
	f := &groupFeeder{}
	return &BlockGroupDecoder{feeder: f, zr: flate.NewReader(f)}
}

// DecodeGroup parses one group from the front of data and returns the
// reconstructed blocks plus the number of bytes consumed.
func (d *BlockGroupDecoder) DecodeGroup(data []byte) ([]MemoryBlock, int, error) {
	if len(data) < MaxGroupBlocks*4+4 {
		return nil, 0, fmt.Errorf("migration: group header truncated")
	}

	var addrs []uint32
	for i := 0; i < MaxGroupBlocks; i++ {
		a := binary.LittleEndian.Uint32(data[i*4:])
		if a == 0 {
			break
		}
		addrs = append(addrs, a)
	}
	n := len(addrs)

	off := MaxGroupBlocks * 4
	compressedLen := int(binary.LittleEndian.Uint32(data[off:]))
	off += 4
	if compressedLen < 0 || len(data) < off+compressedLen {
		return nil, 0, fmt.Errorf("migration: group payload truncated")
	}
	compressed := data[off : off+compressedLen]
	consumed := off + compressedLen

	d.feeder.push(compressed)
	out := make([]byte, n*BlockSize)
	if n > 0 {
		if _, err := io.ReadFull(d.zr, out); err != nil {
			return nil, 0, fmt.Errorf("migration: inflate group: %w", err)
		}
	}

	blocks := make([]MemoryBlock, n)
	for i := 0; i < n; i++ {
		blocks[i] = NewMemoryBlock(addrs[i], out[i*BlockSize:(i+1)*BlockSize])
	}
	return blocks, consumed, nil
}
