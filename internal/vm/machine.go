package vm

import (
	"time"

	"github.com/sdthompson1/knights-go/internal/engine"
)

// Dispatcher adapts tick-frame connection/data events onto the
// GameEngine driven by a Machine. A concrete implementation is the
// replicated-mode counterpart of session.KnightsGame: it owns the
// client-number -> player-number roster and decodes each
// ClientSendData payload as a client->server wire message (spec.md §9
// "Coroutine-pair inside the VM" / §4.5 "Execution contract").
//
// Every method is called synchronously from Machine.RunTicks, never
// concurrently, which is what keeps the VM deterministic without
// needing a lock (spec.md §5 "there is no wall-clock sleeping inside
// the VM").
type Dispatcher interface {
	// OnConnect admits a new replica-local connection.
	OnConnect(client uint8, platformUserID string)
	// OnDisconnect removes one connection.
	OnDisconnect(client uint8)
	// OnDisconnectAll removes every connection (leader handover).
	OnDisconnectAll()
	// OnClientData applies one client's raw wire bytes for this tick.
	OnClientData(client uint8, data []byte)
	// OnPingReport records a client's measured RTT.
	OnPingReport(client uint8, pingMS uint16)
	// Sinks returns the current tick's per-player-number view sinks,
	// ready for GameEngine.Update to write into.
	Sinks() map[int]*engine.ViewSink
	// DrainOutput returns, and clears, every client's accumulated
	// output bytes since the last drain.
	DrainOutput() map[uint8][]byte
}

// Machine is the deterministic single-threaded VM that steps a
// GameEngine from a stream of tick frames (spec.md §4.5). It carries no
// wall-clock state of its own: dungeon time only advances by the
// duration each consumed frame declares.
type Machine struct {
	eng        engine.GameEngine
	dispatcher Dispatcher

	dungeonTime time.Duration

	rngSeed  uint64
	gotSeed  bool
	tickSeen bool
}

// NewMachine builds a Machine around an already-Start'd GameEngine. The
// first tick frame RunTicks processes must deliver the RNG seed (spec.md
// §4.5 "the RNG seed is delivered in the first frame") via SeedFromFirstTick.
func NewMachine(eng engine.GameEngine, dispatcher Dispatcher) *Machine {
	return &Machine{eng: eng, dispatcher: dispatcher}
}

// RNGSeed reports the seed latched from the first processed frame, or
// (0, false) if no frame has been processed yet.
func (m *Machine) RNGSeed() (uint64, bool) { return m.rngSeed, m.gotSeed }

// machineCallbacks adapts vm.Callbacks onto one Machine + output
// TickWriter for the duration of a single RunTicks call.
type machineCallbacks struct {
	NoopCallbacks
	m       *Machine
	thisDur int
}

func (c *machineCallbacks) OnNewTick(ms int) { c.thisDur = ms }
func (c *machineCallbacks) OnNewConnection(client uint8, id string) {
	c.m.dispatcher.OnConnect(client, id)
}
func (c *machineCallbacks) OnCloseConnection(client uint8) { c.m.dispatcher.OnDisconnect(client) }
func (c *machineCallbacks) OnCloseAllConnections()         { c.m.dispatcher.OnDisconnectAll() }
func (c *machineCallbacks) OnClientSendData(client uint8, data []byte) {
	c.m.dispatcher.OnClientData(client, data)
}
func (c *machineCallbacks) OnClientPingReport(client uint8, ms uint16) {
	c.m.dispatcher.OnPingReport(client, ms)
}

// RunTicks consumes every tick frame in input, stepping the engine once
// per frame in order, and returns the serialised ServerSendData output
// for all clients plus a recommended sleep interval (0-1000ms) before
// the next call, per spec.md §4.5's execution contract. It either
// consumes the whole buffer or returns an error; callers must not retry
// with a partially-processed buffer.
func (m *Machine) RunTicks(input []byte) (output []byte, sleepMS int, err error) {
	rest := input
	for len(rest) > 0 {
		prevLen := len(rest)
		cb := &machineCallbacks{m: m}
		rest, err = ReadTickData(rest, cb)
		if err != nil {
			return nil, 0, err
		}
		if len(rest) == prevLen {
			// No frame consumed: only possible on malformed input that
			// ReadTickData would already have rejected, but guard
			// against an infinite loop regardless.
			break
		}

		if !m.tickSeen {
			m.tickSeen = true
		}

		delta := time.Duration(cb.thisDur) * time.Millisecond
		m.dungeonTime += delta
		m.eng.Update(delta, m.dispatcher.Sinks())

		w := NewTickWriter(cb.thisDur)
		for client, bytes := range m.dispatcher.DrainOutput() {
			if len(bytes) == 0 {
				continue
			}
			if werr := w.WriteServerSendData(client, bytes); werr != nil {
				return nil, 0, werr
			}
		}
		frame, ferr := w.Finalize()
		if ferr != nil {
			return nil, 0, ferr
		}
		output = append(output, frame...)
	}

	next := m.eng.TimeToNextUpdate()
	sleepMS = int(next / time.Millisecond)
	if sleepMS < 0 {
		sleepMS = 0
	}
	if sleepMS > MaxTickDurationMS {
		sleepMS = MaxTickDurationMS
	}
	return output, sleepMS, nil
}

// SeedFromFirstTick latches the deterministic RNG seed. The seed
// travels as an 8-byte little-endian value inside the very first tick
// frame's leading ClientSendData payload; internal/migration decodes it
// and calls this once before the frame's ordinary messages are applied,
// since Machine itself has no opinion on wire framing above the tick
// layer (spec.md §4.5 "the RNG seed is delivered in the first frame").
func (m *Machine) SeedFromFirstTick(seed uint64) {
	if !m.gotSeed {
		m.rngSeed = seed
		m.gotSeed = true
	}
}

// DungeonTime reports total simulated time the Machine has advanced
// through, for diagnostics and checksum timer_ms fields.
func (m *Machine) DungeonTime() time.Duration { return m.dungeonTime }
