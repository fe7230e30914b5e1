// Package migration implements the leader/follower host-migration layer
// (spec.md §4.6, C7): late-joiner VM memory sync, incremental
// memory-block diffing, catch-up tick delivery, desync detection, and
// leader promotion/demotion. It sits on top of internal/vm (the
// deterministic simulation being replicated) and internal/wire (framed
// transport + primitive codecs).
//
// Grounded in the original implementation's src/virtual_server/
// knights_vm.cpp (MemoryBlock, hash-diff sync) and
// src/virtual_server/knights_virtual_server.cpp (leader/follower loop
// structure) — see DESIGN.md.
package migration

import "github.com/cespare/xxhash/v2"

// BlockSize is the memory-block granularity spec.md §3 calls "tunable,
// power-of-two"; 512 matches the original's DEFAULT_BLOCK_SIZE.
const BlockSize = 512

// MaxGroupBlocks is the largest number of blocks compressed together in
// one wire group (spec.md §4.6 "Groups of up to 8 non-empty blocks").
const MaxGroupBlocks = 8

// MemoryHash is a 64-bit content hash of one memory block.
type MemoryHash = uint64

// MemoryBlock is one aligned region of replicated VM memory plus its
// hash, as spec.md §3 defines VMMemoryBlock.
type MemoryBlock struct {
	BaseAddress uint32
	Data        []byte
	Hash        MemoryHash
}

// HashBlock computes the 64-bit content hash used to decide whether a
// block needs retransmission.
func HashBlock(data []byte) MemoryHash {
	return xxhash.Sum64(data)
}

// NewMemoryBlock copies data and computes its hash.
func NewMemoryBlock(base uint32, data []byte) MemoryBlock {
	cp := append([]byte(nil), data...)
	return MemoryBlock{BaseAddress: base, Data: cp, Hash: HashBlock(cp)}
}

// Snapshotter is the VM-memory boundary the sync layer needs: enumerate
// the current memory as aligned blocks, and apply a block the peer sent.
// A concrete implementation wraps whatever memory representation the
// replicated GameEngine/Machine pair uses; this package never assumes
// anything about that representation beyond "addressable, block-aligned
// bytes with a serialisable register-file header".
type Snapshotter interface {
	// VMConfig returns the opaque register-file + memory-map header sent
	// once per sync as LeaderSendVMConfig's payload.
	VMConfig() []byte
	// ApplyVMConfig restores a follower's local VM from a leader's
	// VMConfig payload, returning the block layout (base addresses and
	// count) the leader will subsequently hash/diff against.
	ApplyVMConfig(cfg []byte) ([]uint32, error)
	// Blocks enumerates every memory block at its current content.
	Blocks() []MemoryBlock
	// BlockAt returns the current bytes at a given base address.
	BlockAt(base uint32) []byte
	// WriteBlock installs blk's bytes at blk.BaseAddress.
	WriteBlock(blk MemoryBlock)
}
