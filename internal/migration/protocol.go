package migration

import (
	"fmt"

	"github.com/sdthompson1/knights-go/internal/wire"
)

// Code identifies one host-migration wire message (spec.md §6 "Host-
// migration protocol"). Each is sent as one framed wire.Connection
// message, code byte first.
type Code uint8

const (
	CLeaderSendTickData Code = iota
	CLeaderSendChecksum
	CLeaderSendVMConfig
	CLeaderSendMemoryBlock
	CLeaderSendCatchupTicks
	CLeaderSyncDone
	CFollowerSendClientCommands
	CFollowerSendHashes
	CFollowerAckMemoryBlocks
	CFollowerAckCatchupTicks
)

// EncodeTickData writes LeaderSendTickData(len, bytes).
func EncodeTickData(b *wire.Buf, tickBytes []byte) {
	b.WriteUByte(byte(CLeaderSendTickData))
	b.WriteVarint(uint32(len(tickBytes)))
	b.WriteBytes(tickBytes)
}

// EncodeChecksum writes LeaderSendChecksum(timer_ms, checksum).
func EncodeChecksum(b *wire.Buf, timerMS uint32, checksum uint64) {
	b.WriteUByte(byte(CLeaderSendChecksum))
	b.WriteUint32(timerMS)
	b.WriteUint64(checksum)
}

// EncodeVMConfig writes LeaderSendVMConfig(config_bytes).
func EncodeVMConfig(b *wire.Buf, cfg []byte) {
	b.WriteUByte(byte(CLeaderSendVMConfig))
	b.WriteVarint(uint32(len(cfg)))
	b.WriteBytes(cfg)
}

// EncodeMemoryBlock writes LeaderSendMemoryBlock(block) as one
// already-EncodeGroup'd wire blob.
func EncodeMemoryBlock(b *wire.Buf, group []byte) {
	b.WriteUByte(byte(CLeaderSendMemoryBlock))
	b.WriteVarint(uint32(len(group)))
	b.WriteBytes(group)
}

// EncodeCatchupTicks writes LeaderSendCatchupTicks(len, bytes) for one
// ~4KB segment of queued tick data (spec.md §4.6 "segmented into ~4KB
// chunks").
func EncodeCatchupTicks(b *wire.Buf, segment []byte) {
	b.WriteUByte(byte(CLeaderSendCatchupTicks))
	b.WriteVarint(uint32(len(segment)))
	b.WriteBytes(segment)
}

// EncodeSyncDone writes LeaderSyncDone.
func EncodeSyncDone(b *wire.Buf) {
	b.WriteUByte(byte(CLeaderSyncDone))
}

// EncodeClientCommands writes FollowerSendClientCommands(len, bytes).
func EncodeClientCommands(b *wire.Buf, data []byte) {
	b.WriteUByte(byte(CFollowerSendClientCommands))
	b.WriteVarint(uint32(len(data)))
	b.WriteBytes(data)
}

// EncodeHashes writes FollowerSendHashes(hashes).
func EncodeHashes(b *wire.Buf, hashes []MemoryHash) {
	b.WriteUByte(byte(CFollowerSendHashes))
	b.WriteVarint(uint32(len(hashes)))
	for _, h := range hashes {
		b.WriteUint64(h)
	}
}

// EncodeAckMemoryBlocks writes FollowerAckMemoryBlocks(n).
func EncodeAckMemoryBlocks(b *wire.Buf, n uint32) {
	b.WriteUByte(byte(CFollowerAckMemoryBlocks))
	b.WriteVarint(n)
}

// EncodeAckCatchupTicks writes FollowerAckCatchupTicks(n).
func EncodeAckCatchupTicks(b *wire.Buf, n uint32) {
	b.WriteUByte(byte(CFollowerAckCatchupTicks))
	b.WriteVarint(n)
}

// Message is a decoded host-migration frame. Exactly one of its fields
// is meaningful, selected by Code.
type Message struct {
	Code     Code
	Bytes    []byte // tick data / VM config / catch-up segment / client commands
	TimerMS  uint32
	Checksum uint64
	Hashes   []MemoryHash
	AckN     uint32
}

// Decode parses one framed migration message.
func Decode(frame []byte) (Message, error) {
	r := wire.NewReader(frame)
	codeByte, err := r.ReadUByte()
	if err != nil {
		return Message{}, err
	}
	code := Code(codeByte)

	switch code {
	case CLeaderSendTickData, CLeaderSendVMConfig, CLeaderSendMemoryBlock,
		CLeaderSendCatchupTicks, CFollowerSendClientCommands:
		n, err := r.ReadVarint()
		if err != nil {
			return Message{}, err
		}
		data, err := r.ReadBytes(int(n))
		if err != nil {
			return Message{}, err
		}
		return Message{Code: code, Bytes: data}, nil

	case CLeaderSendChecksum:
		timerMS, err := r.ReadUint32()
		if err != nil {
			return Message{}, err
		}
		sum, err := r.ReadUint64()
		if err != nil {
			return Message{}, err
		}
		return Message{Code: code, TimerMS: timerMS, Checksum: sum}, nil

	case CLeaderSyncDone:
		return Message{Code: code}, nil

	case CFollowerSendHashes:
		n, err := r.ReadVarint()
		if err != nil {
			return Message{}, err
		}
		hashes := make([]MemoryHash, n)
		for i := range hashes {
			h, err := r.ReadUint64()
			if err != nil {
				return Message{}, err
			}
			hashes[i] = h
		}
		return Message{Code: code, Hashes: hashes}, nil

	case CFollowerAckMemoryBlocks, CFollowerAckCatchupTicks:
		n, err := r.ReadVarint()
		if err != nil {
			return Message{}, err
		}
		return Message{Code: code, AckN: n}, nil

	default:
		return Message{}, fmt.Errorf("migration: unknown message code %d", codeByte)
	}
}
