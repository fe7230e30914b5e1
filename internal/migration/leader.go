package migration

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sdthompson1/knights-go/internal/vm"
	"github.com/sdthompson1/knights-go/internal/wire"
	"golang.org/x/sync/errgroup"
)

// Flush cadence constants named directly in spec.md §4.6.
const (
	ShortFlushDelay = 30 * time.Millisecond
	LongFlushDelay  = 500 * time.Millisecond
	PingInterval    = 3 * time.Second
	MaxFollowers    = 15 // "hard cap" (spec.md §4.6 step 1); local player holds slot 0
	LocalClientNum  = 0
)

// followerPeer is the leader's view of one connected follower.
type followerPeer struct {
	clientNum uint8
	conn      wire.Connection
	sync      *LeaderSync // non-nil only while a late-joiner sync is in progress
	lastPing  time.Duration
}

// Leader runs the authoritative side of a replicated session: it
// fans leader-tick bytes out to every follower, absorbs their inputs
// and acks, and drives new followers through late-joiner sync (spec.md
// §4.6 "Leader loop").
type Leader struct {
	transport   wire.Transport
	machine     *vm.Machine
	snapshotter Snapshotter
	log         *slog.Logger

	mu            sync.Mutex
	peers         map[uint8]*followerPeer
	nextClientNum uint8

	pendingTickBytes []byte // accumulates ServerSendData/etc for the next flush
	lastFlush        time.Time
	lastPingRound    time.Time

	inbound chan inboundMsg
}

type inboundMsg struct {
	client uint8
	msg    Message
}

// NewLeader wires a Leader around an already-listening transport and the
// VM it replicates.
func NewLeader(transport wire.Transport, machine *vm.Machine, snap Snapshotter, log *slog.Logger) *Leader {
	return &Leader{
		transport:     transport,
		machine:       machine,
		snapshotter:   snap,
		log:           log,
		peers:         make(map[uint8]*followerPeer),
		nextClientNum: LocalClientNum + 1,
		inbound:       make(chan inboundMsg, 256),
	}
}

// Run drives the leader loop until ctx is cancelled or an unrecoverable
// transport error occurs.
func (l *Leader) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return l.acceptLoop(ctx) })
	g.Go(func() error { return l.mainLoop(ctx) })

	return g.Wait()
}

func (l *Leader) acceptLoop(ctx context.Context) error {
	for {
		conn, err := l.transport.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		if err := l.admit(ctx, conn); err != nil {
			l.log.Warn("follower rejected", "error", err)
			conn.Close()
		}
	}
}

func (l *Leader) admit(ctx context.Context, conn wire.Connection) error {
	l.mu.Lock()
	if len(l.peers) >= MaxFollowers {
		l.mu.Unlock()
		return errTooManyFollowers
	}
	client := l.nextClientNum
	l.nextClientNum++
	peer := &followerPeer{clientNum: client, conn: conn}
	l.peers[client] = peer
	l.mu.Unlock()

	if err := conn.Send([]byte{client}); err != nil {
		return err
	}

	l.mu.Lock()
	w := vm.NewTickWriter(0)
	_ = w.WriteNewConnection(client, "")
	frame, _ := w.Finalize()
	l.pendingTickBytes = append(l.pendingTickBytes, frame...)
	l.mu.Unlock()

	go l.readLoop(ctx, peer)
	return nil
}

func (l *Leader) readLoop(ctx context.Context, peer *followerPeer) {
	for {
		frame, err := peer.conn.Recv()
		if err != nil {
			l.removePeer(peer.clientNum)
			return
		}
		msg, err := Decode(frame)
		if err != nil {
			l.log.Warn("malformed migration frame", "client", peer.clientNum, "error", err)
			l.removePeer(peer.clientNum)
			return
		}
		select {
		case l.inbound <- inboundMsg{client: peer.clientNum, msg: msg}:
		case <-ctx.Done():
			return
		}
	}
}

func (l *Leader) removePeer(client uint8) {
	l.mu.Lock()
	peer, ok := l.peers[client]
	if ok {
		delete(l.peers, client)
	}
	l.mu.Unlock()
	if !ok {
		return
	}
	peer.conn.Close()

	l.mu.Lock()
	w := vm.NewTickWriter(0)
	_ = w.WriteCloseConnection(client)
	frame, _ := w.Finalize()
	l.pendingTickBytes = append(l.pendingTickBytes, frame...)
	l.mu.Unlock()
}

func (l *Leader) mainLoop(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	l.lastFlush = time.Now()
	l.lastPingRound = time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case in := <-l.inbound:
			l.handleInbound(in)
		case <-ticker.C:
			l.tick()
		}
	}
}

func (l *Leader) handleInbound(in inboundMsg) {
	l.mu.Lock()
	defer l.mu.Unlock()

	peer := l.peers[in.client]
	if peer == nil {
		return
	}

	switch in.msg.Code {
	case CFollowerSendClientCommands:
		w := vm.NewTickWriter(0)
		_ = w.WriteClientSendData(in.client, in.msg.Bytes)
		frame, _ := w.Finalize()
		l.pendingTickBytes = append(l.pendingTickBytes, frame...)

	case CFollowerSendHashes:
		snapshot := l.snapshotter.Blocks()
		sync, err := NewLeaderSync(snapshot, in.msg.Hashes)
		if err != nil {
			l.log.Warn("sync setup failed", "client", in.client, "error", err)
			return
		}
		peer.sync = sync

	case CFollowerAckMemoryBlocks:
		if peer.sync != nil {
			peer.sync.AckMemoryBlocks(int(in.msg.AckN))
		}

	case CFollowerAckCatchupTicks:
		if peer.sync != nil {
			peer.sync.AckCatchupSegments(int(in.msg.AckN))
		}
	}
}

// tick runs the periodic leader duties: ping sampling and the flush
// timer (spec.md §4.6 steps 3-4), plus driving every in-progress
// follower sync.
func (l *Leader) tick() {
	l.mu.Lock()
	now := time.Now()

	if now.Sub(l.lastPingRound) >= PingInterval {
		l.lastPingRound = now
		for client, peer := range l.peers {
			w := vm.NewTickWriter(0)
			_ = w.WriteClientPingReport(client, uint16(peer.lastPing.Milliseconds()))
			frame, _ := w.Finalize()
			l.pendingTickBytes = append(l.pendingTickBytes, frame...)
		}
	}

	delay := LongFlushDelay
	if len(l.pendingTickBytes) > 0 {
		delay = ShortFlushDelay
	}
	var outBytes []byte
	if len(l.pendingTickBytes) > 0 && now.Sub(l.lastFlush) >= delay {
		l.lastFlush = now
		var sleepMS int
		var err error
		outBytes, sleepMS, err = l.machine.RunTicks(l.pendingTickBytes)
		_ = sleepMS
		if err != nil {
			l.log.Error("local VM step failed", "error", err)
		}
		l.pendingTickBytes = nil
	}
	peers := make([]*followerPeer, 0, len(l.peers))
	for _, p := range l.peers {
		peers = append(peers, p)
		if outBytes != nil && p.sync != nil {
			p.sync.AddTicks(outBytes)
		}
	}
	l.mu.Unlock()

	if outBytes == nil {
		return
	}
	for _, peer := range peers {
		l.deliverTicks(peer, outBytes)
	}
}

func (l *Leader) deliverTicks(peer *followerPeer, tickBytes []byte) {
	b := wire.NewBuf()
	if peer.sync != nil && !peer.sync.Done() {
		// While syncing, outgoing ticks are queued as catch-up segments
		// rather than sent as steady-state tick data (spec.md §4.6
		// "these are interleaved with the memory blocks").
		l.driveSync(peer)
		return
	}
	EncodeTickData(b, tickBytes)
	if err := peer.conn.Send(b.Bytes()); err != nil {
		l.log.Debug("send to follower failed", "client", peer.clientNum, "error", err)
	}
}

// driveSync pushes one round of memory-block/catch-up traffic for a
// syncing follower, respecting the outstanding window, and emits
// SyncDone once finished.
func (l *Leader) driveSync(peer *followerPeer) {
	s := peer.sync
	if s == nil {
		return
	}

	for {
		group, _, ok, err := s.NextMemoryBlockGroup()
		if err != nil {
			l.log.Warn("encode memory block group failed", "error", err)
			break
		}
		if !ok {
			break
		}
		b := wire.NewBuf()
		EncodeMemoryBlock(b, group)
		if err := peer.conn.Send(b.Bytes()); err != nil {
			return
		}
	}
	for {
		seg, ok := s.NextCatchupSegment()
		if !ok {
			break
		}
		b := wire.NewBuf()
		EncodeCatchupTicks(b, seg)
		if err := peer.conn.Send(b.Bytes()); err != nil {
			return
		}
	}

	if s.Done() {
		b := wire.NewBuf()
		EncodeSyncDone(b)
		if err := peer.conn.Send(b.Bytes()); err == nil {
			l.mu.Lock()
			peer.sync = nil
			l.mu.Unlock()
		}
	}
}

var errTooManyFollowers = errors.New("migration: too many followers")
