package vm

import (
	"testing"
	"time"

	"github.com/sdthompson1/knights-go/internal/engine"
	"github.com/sdthompson1/knights-go/internal/protocol"
	"github.com/sdthompson1/knights-go/internal/wire"
	"github.com/stretchr/testify/require"
)

// fakeEngine is a minimal deterministic engine.GameEngine double: it
// accumulates elapsed time and writes that total, as text, into every
// sink every Update call, so two Machines fed the same tick stream can
// be compared byte-for-byte (spec.md §8 invariant 10).
type fakeEngine struct {
	total time.Duration
}

func (e *fakeEngine) Start(engine.StartConfig) error { return nil }
func (e *fakeEngine) Update(delta time.Duration, sinks map[int]*engine.ViewSink) {
	e.total += delta
	for _, s := range sinks {
		s.Out.WriteUint32(uint32(e.total.Milliseconds()))
	}
}
func (e *fakeEngine) TimeToNextUpdate() time.Duration                  { return 20 * time.Millisecond }
func (e *fakeEngine) SetControl(int, uint8, protocol.ControlRef, bool) {}
func (e *fakeEngine) CatchUp(int, *engine.ViewSink)                    {}
func (e *fakeEngine) PlayerOutcome(int) engine.Outcome                 { return engine.OutcomeStillPlaying }
func (e *fakeEngine) EliminatePlayer(int)                              {}
func (e *fakeEngine) SetDisconnected(int)                              {}
func (e *fakeEngine) MenuSelection(string, string) (engine.MenuConstraintResult, error) {
	return engine.MenuConstraintResult{}, nil
}
func (e *fakeEngine) RandomQuest() (engine.MenuConstraintResult, error) {
	return engine.MenuConstraintResult{}, nil
}

// fakeDispatcher keeps a single connected client mapped to player 0.
type fakeDispatcher struct {
	connected bool
	lastBuf   *wire.Buf
}

func newFakeDispatcher() *fakeDispatcher { return &fakeDispatcher{} }

func (d *fakeDispatcher) OnConnect(client uint8, id string) { d.connected = true }
func (d *fakeDispatcher) OnDisconnect(uint8)                { d.connected = false }
func (d *fakeDispatcher) OnDisconnectAll()                  { d.connected = false }
func (d *fakeDispatcher) OnClientData(uint8, []byte)        {}
func (d *fakeDispatcher) OnPingReport(uint8, uint16)        {}
func (d *fakeDispatcher) Sinks() map[int]*engine.ViewSink {
	if !d.connected {
		return nil
	}
	buf := wire.NewBuf()
	d.lastBuf = buf
	return map[int]*engine.ViewSink{0: {Out: buf}}
}
func (d *fakeDispatcher) DrainOutput() map[uint8][]byte {
	if d.lastBuf == nil || d.lastBuf.Len() == 0 {
		return map[uint8][]byte{}
	}
	out := append([]byte(nil), d.lastBuf.Bytes()...)
	return map[uint8][]byte{0: out}
}

func TestMachineDeterministicAcrossTwoInstances(t *testing.T) {
	frames := buildSampleTicks(t)

	out1 := runMachine(t, frames)
	out2 := runMachine(t, frames)

	require.Equal(t, out1, out2)
	require.NotEmpty(t, out1)
}

func buildSampleTicks(t *testing.T) []byte {
	t.Helper()
	var all []byte

	w1 := NewTickWriter(16)
	require.NoError(t, w1.WriteNewConnection(0, "player-a"))
	f1, err := w1.Finalize()
	require.NoError(t, err)
	all = append(all, f1...)

	w2 := NewTickWriter(16)
	require.NoError(t, w2.WriteClientSendData(0, []byte{1}))
	f2, err := w2.Finalize()
	require.NoError(t, err)
	all = append(all, f2...)

	w3 := NewTickWriter(16)
	f3, err := w3.Finalize()
	require.NoError(t, err)
	all = append(all, f3...)

	return all
}

func runMachine(t *testing.T, frames []byte) []byte {
	t.Helper()
	m := NewMachine(&fakeEngine{}, newFakeDispatcher())
	out, sleepMS, err := m.RunTicks(frames)
	require.NoError(t, err)
	require.GreaterOrEqual(t, sleepMS, 0)
	return out
}
