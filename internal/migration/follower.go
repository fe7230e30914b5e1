package migration

import (
	"fmt"
	"log/slog"

	"github.com/sdthompson1/knights-go/internal/protocol"
	"github.com/sdthompson1/knights-go/internal/vm"
	"github.com/sdthompson1/knights-go/internal/wire"
)

// Follower runs the replica side of a host-migrated session: it applies
// leader ticks and memory-block sync traffic to a local VM, filters
// output down to its own client, and treats a checksum mismatch as fatal
// (spec.md §4.6 "Follower loop").
type Follower struct {
	conn        wire.Connection
	machine     *vm.Machine
	snapshotter Snapshotter
	log         *slog.Logger

	clientNum uint8
	synced    bool

	decoder   *BlockGroupDecoder
	checksums ChecksumTracker

	// sendQueue holds locally-originated client packets until sync
	// completes (spec.md §4.6 "Outgoing local-player packets are held in
	// a delayed-send queue until sync completes, then flushed").
	sendQueue [][]byte
}

// NewFollower wraps an already-connected transport link to a leader.
func NewFollower(conn wire.Connection, machine *vm.Machine, snap Snapshotter, log *slog.Logger) *Follower {
	return &Follower{conn: conn, machine: machine, snapshotter: snap, log: log, decoder: NewBlockGroupDecoder()}
}

// Handshake reads the leader-assigned client number, which is always
// the very first byte on the wire (spec.md §4.6 "The very first byte
// received is the follower's assigned client number").
func (f *Follower) Handshake() error {
	b, err := f.conn.Recv()
	if err != nil {
		return err
	}
	if len(b) != 1 {
		return fmt.Errorf("migration: expected 1-byte client-number handshake, got %d bytes", len(b))
	}
	f.clientNum = b[0]
	return nil
}

// SendClientCommand queues a local client's raw message for delivery
// upstream, either immediately or (if sync is still in progress) after
// SyncDone.
func (f *Follower) SendClientCommand(data []byte) error {
	b := wire.NewBuf()
	EncodeClientCommands(b, data)
	if !f.synced {
		f.sendQueue = append(f.sendQueue, b.Bytes())
		return nil
	}
	return f.conn.Send(b.Bytes())
}

// BeginSync sends this follower's current block hashes so the leader
// can compute a diff (spec.md §4.6 "awaits SendHashes from the
// follower").
func (f *Follower) BeginSync() error {
	hashes := make([]MemoryHash, 0)
	for _, blk := range f.snapshotter.Blocks() {
		hashes = append(hashes, blk.Hash)
	}
	b := wire.NewBuf()
	EncodeHashes(b, hashes)
	return f.conn.Send(b.Bytes())
}

// Step reads and processes exactly one frame from the leader. It
// returns a fatal *protocol.Error on desync, and any transport error
// verbatim.
func (f *Follower) Step() error {
	frame, err := f.conn.Recv()
	if err != nil {
		return err
	}
	msg, err := Decode(frame)
	if err != nil {
		return protocol.NewFatalError(protocol.ErrSyncUnknownCommand)
	}

	switch msg.Code {
	case CLeaderSendVMConfig:
		if _, err := f.snapshotter.ApplyVMConfig(msg.Bytes); err != nil {
			return protocol.NewFatalError(protocol.ErrSyncDuplicateConfig)
		}
		return f.BeginSync()

	case CLeaderSendMemoryBlock:
		blocks, _, err := f.decoder.DecodeGroup(msg.Bytes)
		if err != nil {
			return err
		}
		for _, blk := range blocks {
			f.snapshotter.WriteBlock(blk)
		}
		ack := wire.NewBuf()
		EncodeAckMemoryBlocks(ack, uint32(len(blocks)))
		return f.conn.Send(ack.Bytes())

	case CLeaderSendCatchupTicks:
		if err := f.runLocalTicks(msg.Bytes); err != nil {
			return err
		}
		ack := wire.NewBuf()
		EncodeAckCatchupTicks(ack, 1)
		return f.conn.Send(ack.Bytes())

	case CLeaderSendTickData:
		return f.runLocalTicks(msg.Bytes)

	case CLeaderSendChecksum:
		f.checksums.PushRemote(ChecksumEntry{TimerMS: msg.TimerMS, Checksum: msg.Checksum})
		if desync, ok := f.checksums.Compare(); ok {
			return desync
		}
		return nil

	case CLeaderSyncDone:
		f.synced = true
		return f.flushSendQueue()

	default:
		return protocol.NewFatalError(protocol.ErrSyncUnknownCommand)
	}
}

// runLocalTicks advances the local VM and discards any output not
// addressed to this follower's own client number (spec.md §4.6
// "outputs are filtered to keep only those addressed to the local
// client number"). Machine.Dispatcher.DrainOutput is keyed per client,
// so filtering happens by simply not relaying anyone else's bytes
// anywhere further — this follower has no downstream clients of its own
// beyond the local player, which the embedding KnightsClient reads
// directly from the dispatcher.
func (f *Follower) runLocalTicks(tickBytes []byte) error {
	_, _, err := f.machine.RunTicks(tickBytes)
	return err
}

func (f *Follower) flushSendQueue() error {
	for _, b := range f.sendQueue {
		if err := f.conn.Send(b); err != nil {
			return err
		}
	}
	f.sendQueue = nil
	return nil
}

// PushLocalChecksum records a checksum computed by the local VM at a
// deterministic point, to be compared against the leader's relayed
// value (spec.md §4.6 "whenever local checksums are available,
// corresponding entries are compared").
func (f *Follower) PushLocalChecksum(e ChecksumEntry) {
	f.checksums.PushLocal(e)
}
