package migration

import (
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/sdthompson1/knights-go/internal/engine"
	"github.com/sdthompson1/knights-go/internal/protocol"
	"github.com/sdthompson1/knights-go/internal/vm"
	"github.com/sdthompson1/knights-go/internal/wire"
	"github.com/stretchr/testify/require"
)

// noopEngine is the smallest possible engine.GameEngine double for
// exercising Machine.RunTicks without any real simulation behaviour.
type noopEngine struct{}

func (noopEngine) Start(engine.StartConfig) error                      { return nil }
func (noopEngine) Update(time.Duration, map[int]*engine.ViewSink)      {}
func (noopEngine) TimeToNextUpdate() time.Duration                     { return time.Millisecond }
func (noopEngine) SetControl(int, uint8, protocol.ControlRef, bool)    {}
func (noopEngine) CatchUp(int, *engine.ViewSink)                       {}
func (noopEngine) PlayerOutcome(int) engine.Outcome                    { return engine.OutcomeStillPlaying }
func (noopEngine) EliminatePlayer(int)                                 {}
func (noopEngine) SetDisconnected(int)                                 {}
func (noopEngine) MenuSelection(string, string) (engine.MenuConstraintResult, error) {
	return engine.MenuConstraintResult{}, nil
}
func (noopEngine) RandomQuest() (engine.MenuConstraintResult, error) {
	return engine.MenuConstraintResult{}, nil
}

type noopDispatcher struct{}

func (noopDispatcher) OnConnect(uint8, string)              {}
func (noopDispatcher) OnDisconnect(uint8)                   {}
func (noopDispatcher) OnDisconnectAll()                     {}
func (noopDispatcher) OnClientData(uint8, []byte)           {}
func (noopDispatcher) OnPingReport(uint8, uint16)            {}
func (noopDispatcher) Sinks() map[int]*engine.ViewSink      { return nil }
func (noopDispatcher) DrainOutput() map[uint8][]byte        { return nil }

type fakeSnapshotter struct {
	blocks map[uint32][]byte
	cfg    []byte
}

func newFakeSnapshotter(n int) *fakeSnapshotter {
	s := &fakeSnapshotter{blocks: map[uint32][]byte{}}
	for i := 0; i < n; i++ {
		s.blocks[uint32((i+1)*BlockSize)] = make([]byte, BlockSize)
	}
	return s
}

func (s *fakeSnapshotter) VMConfig() []byte { return []byte("config") }
func (s *fakeSnapshotter) ApplyVMConfig(cfg []byte) ([]uint32, error) {
	s.cfg = cfg
	return nil, nil
}
func (s *fakeSnapshotter) Blocks() []MemoryBlock {
	out := make([]MemoryBlock, 0, len(s.blocks))
	for base, data := range s.blocks {
		out = append(out, NewMemoryBlock(base, data))
	}
	return out
}
func (s *fakeSnapshotter) BlockAt(base uint32) []byte { return s.blocks[base] }
func (s *fakeSnapshotter) WriteBlock(blk MemoryBlock) { s.blocks[blk.BaseAddress] = blk.Data }

func testLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

// TestFollowerSyncHandshake drives a Follower through Handshake, a
// VMConfig exchange, one memory-block group, and SyncDone, using a real
// net.Pipe so Follower only ever sees the wire.Connection interface
// (spec.md §8 scenario S7's sync leg, minus the full leader loop).
func TestFollowerSyncHandshake(t *testing.T) {
	leaderSide, followerSide := net.Pipe()
	defer leaderSide.Close()
	defer followerSide.Close()

	lc := wire.NewTCPConnection(leaderSide)
	fc := wire.NewTCPConnection(followerSide)

	snap := newFakeSnapshotter(2)
	m := vm.NewMachine(noopEngine{}, noopDispatcher{})
	f := NewFollower(fc, m, snap, testLogger())

	errCh := make(chan error, 1)
	go func() { errCh <- lc.Send([]byte{7}) }()
	require.NoError(t, f.Handshake())
	require.NoError(t, <-errCh)
	require.Equal(t, uint8(7), f.clientNum)

	go func() {
		b := wire.NewBuf()
		EncodeVMConfig(b, []byte("cfg-bytes"))
		errCh <- lc.Send(b.Bytes())
	}()
	require.NoError(t, f.Step())
	require.NoError(t, <-errCh)
	require.Equal(t, []byte("cfg-bytes"), snap.cfg)

	hashFrame, err := lc.Recv()
	require.NoError(t, err)
	hashMsg, err := Decode(hashFrame)
	require.NoError(t, err)
	require.Equal(t, CFollowerSendHashes, hashMsg.Code)
	require.Len(t, hashMsg.Hashes, 2)

	enc, err := NewBlockGroupEncoder()
	require.NoError(t, err)
	group, err := enc.EncodeGroup(sampleBlocks(2, 1))
	require.NoError(t, err)
	go func() {
		b := wire.NewBuf()
		EncodeMemoryBlock(b, group)
		errCh <- lc.Send(b.Bytes())
	}()
	require.NoError(t, f.Step())
	require.NoError(t, <-errCh)

	ackFrame, err := lc.Recv()
	require.NoError(t, err)
	ackMsg, err := Decode(ackFrame)
	require.NoError(t, err)
	require.Equal(t, CFollowerAckMemoryBlocks, ackMsg.Code)
	require.Equal(t, uint32(2), ackMsg.AckN)

	require.NoError(t, f.SendClientCommand([]byte{9}))
	require.False(t, f.synced)

	go func() {
		b := wire.NewBuf()
		EncodeSyncDone(b)
		errCh <- lc.Send(b.Bytes())
	}()
	require.NoError(t, f.Step())
	require.NoError(t, <-errCh)
	require.True(t, f.synced)

	flushed, err := lc.Recv()
	require.NoError(t, err)
	flushedMsg, err := Decode(flushed)
	require.NoError(t, err)
	require.Equal(t, CFollowerSendClientCommands, flushedMsg.Code)
	require.Equal(t, []byte{9}, flushedMsg.Bytes)
}

func TestChecksumTrackerDetectsDesync(t *testing.T) {
	var tr ChecksumTracker
	tr.PushRemote(ChecksumEntry{TimerMS: 100, Checksum: 1})
	tr.PushLocal(ChecksumEntry{TimerMS: 100, Checksum: 2})
	mismatch, bad := tr.Compare()
	require.True(t, bad)
	require.Equal(t, protocol.ErrDesync, mismatch.Key)
}

func TestChecksumTrackerMatches(t *testing.T) {
	var tr ChecksumTracker
	tr.PushRemote(ChecksumEntry{TimerMS: 100, Checksum: 42})
	tr.PushLocal(ChecksumEntry{TimerMS: 100, Checksum: 42})
	_, bad := tr.Compare()
	require.False(t, bad)
}
