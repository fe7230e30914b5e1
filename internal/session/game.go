package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sdthompson1/knights-go/internal/engine"
	"github.com/sdthompson1/knights-go/internal/protocol"
)

// State is one of the four KnightsGame lifecycle states (spec.md §4.1).
type State int

const (
	WaitingForPlayers State = iota
	SelectingQuest
	Running
	GameOver
)

func (s State) GameStatus() protocol.GameStatus {
	switch s {
	case WaitingForPlayers:
		return protocol.GSWaitingForPlayers
	case SelectingQuest:
		return protocol.GSSelectingQuest
	case Running:
		return protocol.GSRunning
	default:
		return protocol.GSGameOver
	}
}

// forceQuitTimeout is the GameOver->SelectingQuest timeout (spec.md §4.1,
// §5 "60-second force-quit on the winner screen").
const forceQuitTimeout = 60 * time.Second

// colourHistoryCap bounds the recent (PlayerID, colour) ring buffer used
// to restore a reconnecting player's previous house colour (spec.md §3).
const colourHistoryCap = 64

// Broadcaster lets a KnightsGame notify its owning KnightsServer of
// roster/status changes that must fan out as UpdateGame/DropGame
// broadcasts to every server connection (spec.md §4.3 "every transition
// that alters a session's counts triggers an UpdateGame broadcast").
type Broadcaster interface {
	UpdateGame(info protocol.GameInfo)
	DropGame(name string)
}

// EngineFactory builds a fresh GameEngine instance for one quest/run,
// keeping KnightsGame decoupled from any concrete engine implementation
// (spec.md §1 "GameEngine" black box).
type EngineFactory func() engine.GameEngine

// colourRecord is one entry of the reconnect colour-history ring buffer.
type colourRecord struct {
	id     protocol.PlayerID
	colour uint8
}

// KnightsGame is one multiplayer game instance: connection roster,
// ready/quest-selection state machine, and (while Running) a simulation
// worker goroutine driving a GameEngine. Adapted from the teacher's
// internal/server.Server: a mutex-guarded struct plus a dedicated
// goroutine started by Start/stopped by Stop, communicating via a
// buffered "wake" channel rather than a raw condition variable.
type KnightsGame struct {
	Name string

	mu         sync.Mutex
	state      State
	connections []*GameConnection
	pendingJoin []*GameConnection
	colourHistory []colourRecord
	numHouseColours uint8

	splitScreenTutorial bool // true lets Running start with a single participant

	eng       engine.GameEngine
	newEngine EngineFactory
	cfgHandle any

	wallTime     time.Duration
	dungeonTime  time.Duration
	gameOverAt   time.Time
	paused       bool

	// awaitingLoad gates the very first ticks of a run: set by
	// enterRunningLocked, cleared once every non-observer connection has
	// set finished-loading (spec.md §4.2 "finished-loading"). Grounded
	// in knights_game.cpp's post-start busy-wait, which blocks
	// mainGameLoop() until every connection's finished_loading flag is
	// set and never re-checks it afterwards.
	awaitingLoad bool

	wake chan struct{}
	quit chan struct{}
	done chan struct{}

	broadcast Broadcaster
	log       *slog.Logger

	lastPlayerListRefresh time.Time
	dirty                 bool

	fatal *protocol.Error
}

// NewGame constructs a game in WaitingForPlayers, named name, whose
// Running phase will build engines via newEngine.
func NewGame(name string, newEngine EngineFactory, broadcast Broadcaster, log *slog.Logger) *KnightsGame {
	return &KnightsGame{
		Name:            name,
		state:           WaitingForPlayers,
		newEngine:       newEngine,
		broadcast:       broadcast,
		log:             log.With("game", name),
		numHouseColours: 8,
		wake:            make(chan struct{}, 1),
		quit:            make(chan struct{}),
		done:            make(chan struct{}),
	}
}

// Start launches the simulation-worker goroutine. Safe to call once; the
// worker idles (long sleeps) until the game enters Running.
func (g *KnightsGame) Start() {
	go g.runWorker()
}

// Stop signals the worker to exit and waits for it to drain, per spec.md
// §9's graceful-shutdown guidance ("no destructor is allowed to block
// indefinitely" — the worker exits after its current update).
func (g *KnightsGame) Stop() {
	close(g.quit)
	<-g.done
}

func (g *KnightsGame) notifyWake() {
	select {
	case g.wake <- struct{}{}:
	default:
	}
}

// Info snapshots the GameInfo row this game contributes to UpdateGame
// broadcasts.
func (g *KnightsGame) Info() protocol.GameInfo {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.infoLocked()
}

// DrainOutput removes and returns whatever bytes have accumulated in
// connID's outbound buffer since the last drain (spec.md "the
// per-connection output buffer"), or nil if the connection is unknown
// or has nothing pending. internal/gameserver polls this on a short
// cadence per connection to flush session output onto the wire.
func (g *KnightsGame) DrainOutput(connID uint64) []byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	c := g.findConn(connID)
	if c == nil || c.out.Len() == 0 {
		return nil
	}
	out := make([]byte, c.out.Len())
	copy(out, c.out.Bytes())
	c.out.Reset()
	return out
}

func (g *KnightsGame) infoLocked() protocol.GameInfo {
	players, observers := 0, 0
	for _, c := range g.connections {
		if c.Observer {
			observers++
		} else {
			players++
		}
	}
	return protocol.GameInfo{Name: g.Name, NumPlayers: players, NumObservers: observers, Status: g.state.GameStatus()}
}

func (g *KnightsGame) broadcastUpdateLocked() {
	if g.broadcast != nil {
		info := g.infoLocked()
		go g.broadcast.UpdateGame(info)
	}
}

// Join enqueues a newly-connected client to join this game as a player
// or observer; actual roster admission happens in the worker's
// pre-update step (spec.md §4.1 step 3) so it always happens under the
// same lock ordering as the rest of the tick.
func (g *KnightsGame) Join(conn *GameConnection, asObserver bool) {
	conn.Observer = asObserver
	if !asObserver {
		conn.Colour = g.lookupColourHistory(conn.PrimaryID())
	}
	g.mu.Lock()
	g.pendingJoin = append(g.pendingJoin, conn)
	g.mu.Unlock()
	g.notifyWake()
}

func (g *KnightsGame) lookupColourHistory(id protocol.PlayerID) uint8 {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := len(g.colourHistory) - 1; i >= 0; i-- {
		if g.colourHistory[i].id.Equal(id) {
			return g.colourHistory[i].colour
		}
	}
	return 0
}

func (g *KnightsGame) rememberColour(id protocol.PlayerID, colour uint8) {
	if colour == 0 {
		return
	}
	g.colourHistory = append(g.colourHistory, colourRecord{id, colour})
	if len(g.colourHistory) > colourHistoryCap {
		g.colourHistory = g.colourHistory[len(g.colourHistory)-colourHistoryCap:]
	}
}

// lowestUnusedColour returns the smallest colour index in [1,
// numHouseColours) not currently held by a non-observer connection
// (spec.md §4.2 set-obs-flag "pick the lowest-unused colour").
func (g *KnightsGame) lowestUnusedColour() uint8 {
	used := make(map[uint8]bool)
	for _, c := range g.connections {
		if !c.Observer {
			used[c.Colour] = true
		}
	}
	for i := uint8(1); i < g.numHouseColours; i++ {
		if !used[i] {
			return i
		}
	}
	return 0
}

// questStartable reports whether enough non-observer connections are
// ready to enter Running (spec.md §4.1 "entered when every participating
// player is ready and the quest rules pass the strict player-count
// check"). The strict per-quest player-count check itself belongs to the
// GameEngine/config-script boundary; this package only enforces the
// structural minimum.
func (g *KnightsGame) questStartable() bool {
	allReady := true
	for _, c := range g.connections {
		if c.Observer {
			continue
		}
		if !c.Ready {
			allReady = false
		}
	}
	return g.nonObserverCountLocked() >= g.minPlayersLocked() && allReady
}

// minPlayersLocked is the least number of participating (non-observer)
// connections required to leave WaitingForPlayers or start a quest
// (spec.md §4.1 "entered when ≥ 2 players (or ≥ 1 in split-screen/
// tutorial)").
func (g *KnightsGame) minPlayersLocked() int {
	if g.splitScreenTutorial {
		return 1
	}
	return 2
}

func (g *KnightsGame) nonObserverCountLocked() int {
	n := 0
	for _, c := range g.connections {
		if !c.Observer {
			n++
		}
	}
	return n
}

// allLoadedLocked reports whether every current non-observer connection
// has set finished-loading.
func (g *KnightsGame) allLoadedLocked() bool {
	for _, c := range g.connections {
		if c.Observer {
			continue
		}
		if !c.Loaded {
			return false
		}
	}
	return true
}

func (g *KnightsGame) runWorker() {
	defer close(g.done)
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	last := time.Now()
	for {
		select {
		case <-g.quit:
			return
		case <-g.wake:
		case <-timer.C:
		}

		now := time.Now()
		delta := now.Sub(last)
		last = now
		if delta > time.Second {
			delta = time.Second
		}

		g.mu.Lock()
		g.wallTime += delta
		g.preUpdateLocked()
		if g.state == GameOver && !g.gameOverAt.IsZero() && time.Since(g.gameOverAt) > forceQuitTimeout {
			g.returnToSelectingQuestLocked()
		}
		if g.state == Running && !g.paused {
			if g.awaitingLoad && g.allLoadedLocked() {
				g.awaitingLoad = false
			}
			if !g.awaitingLoad {
				g.dungeonTime += delta
				g.engineStepLocked(delta)
				g.drainControlsLocked()
			}
			g.catchUpAndRefreshLocked()
		}
		next := g.nextSleepLocked()
		if g.state == GameOver && !g.gameOverAt.IsZero() {
			if left := forceQuitTimeout - time.Since(g.gameOverAt) + time.Millisecond; left < next {
				next = left
			}
		}
		g.mu.Unlock()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(next)
	}
}

func (g *KnightsGame) nextSleepLocked() time.Duration {
	if g.state != Running || g.eng == nil {
		return time.Hour
	}
	d := g.eng.TimeToNextUpdate()
	if d <= 0 {
		d = time.Millisecond
	}
	return d
}

// preUpdateLocked admits pending joiners, drops deleted observer slots,
// and reflects disconnect/elimination state into the engine (spec.md
// §4.1 step 3).
func (g *KnightsGame) preUpdateLocked() {
	for _, conn := range g.pendingJoin {
		if g.state == Running || g.state == GameOver {
			if pn, ok := g.reattachRunningPlayer(conn.PrimaryID()); ok {
				conn.PlayerNumber = pn
				conn.Observer = false
			} else {
				conn.Observer = true
			}
		}
		g.connections = append(g.connections, conn)
		g.dirty = true
	}
	g.pendingJoin = g.pendingJoin[:0]

	if g.state == SelectingQuest && !g.questStartable() {
		return
	}
	if g.state == SelectingQuest && g.questStartable() {
		g.enterRunningLocked()
	}
	if g.state == WaitingForPlayers && g.nonObserverCountLocked() >= g.minPlayersLocked() {
		g.state = SelectingQuest
		g.broadcastUpdateLocked()
	}
}

// reattachRunningPlayer reports the player number a reconnecting id
// previously held, if that knight is still participating (spec.md §4.1
// step 3 "reattach to that player number").
func (g *KnightsGame) reattachRunningPlayer(id protocol.PlayerID) (int, bool) {
	for _, c := range g.connections {
		if !c.Observer && c.Disconnected && c.PrimaryID().Equal(id) {
			return c.PlayerNumber, true
		}
	}
	return 0, false
}

func (g *KnightsGame) enterRunningLocked() {
	n := 0
	anySplit := false
	houseColours := make([]uint8, 0, len(g.connections))
	for _, c := range g.connections {
		if c.Observer {
			continue
		}
		c.PlayerNumber = n
		houseColours = append(houseColours, c.Colour)
		n++
		if c.SplitScreen {
			anySplit = true
			c.PlayerNumber2 = n
			houseColours = append(houseColours, c.Colour)
			n++
		} else {
			c.PlayerNumber2 = unassignedPlayerNumber
		}
		c.Loaded = false
		c.ReadyToEnd = false
		g.rememberColour(c.PrimaryID(), c.Colour)
	}
	g.awaitingLoad = true

	g.eng = g.newEngine()
	if err := g.eng.Start(engine.StartConfig{
		ConfigHandle: g.cfgHandle,
		NumPlayers:   n,
		HouseColours: houseColours,
		SplitScreen:  anySplit,
		RNGSeed:      1,
	}); err != nil {
		g.log.Warn("engine start failed", "error", err)
		g.eng = nil
		for _, c := range g.connections {
			protocol.EncodeServerError(c.out, protocol.ErrEngineStartFailed, nil)
		}
		return
	}

	g.state = Running
	for _, c := range g.connections {
		c.RequiresCatchup = true
		if c.Observer {
			protocol.EncodeStartGame(c.out, true, 1, false, false)
		} else {
			protocol.EncodeStartGame(c.out, false, 1, false, false)
		}
	}
	g.broadcastUpdateLocked()
}

func (g *KnightsGame) engineStepLocked(delta time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error("engine panic", "recover", r)
			g.fatal = protocol.NewFatalError(protocol.ErrEnginePanic)
			for _, c := range g.connections {
				protocol.EncodeServerError(c.out, protocol.ErrEnginePanic, nil)
			}
			g.state = GameOver
		}
	}()

	sinks := make(map[int]*engine.ViewSink, len(g.connections))
	for _, c := range g.connections {
		if c.Observer {
			continue
		}
		sinks[c.PlayerNumber] = c.sink()
		if c.SplitScreen && c.PlayerNumber2 >= 0 {
			sinks[c.PlayerNumber2] = c.sink2()
		}
	}
	g.eng.Update(delta, sinks)
	g.flushSplitScreenOutputLocked()

	if g.checkGameOverLocked() {
		return
	}
}

// flushSplitScreenOutputLocked interleaves each split-screen connection's
// second knight's per-tick view output into its single outbound stream,
// bracketed by SwitchPlayer so the client's stateful view-command
// context names the right knight either side of the splice (spec.md §4.1
// "split-screen consumes two consecutive numbers").
func (g *KnightsGame) flushSplitScreenOutputLocked() {
	for _, c := range g.connections {
		if !c.SplitScreen || c.PlayerNumber2 < 0 || c.out2.Len() == 0 {
			continue
		}
		protocol.EncodeSwitchPlayer(c.out, c.PlayerNumber2)
		c.out.WriteBytes(c.out2.Bytes())
		c.out2.Reset()
		protocol.EncodeSwitchPlayer(c.out, c.PlayerNumber)
	}
}

func (g *KnightsGame) checkGameOverLocked() bool {
	allDone := true
	anyWon := false
	note := func(outcome engine.Outcome) {
		switch outcome {
		case engine.OutcomeStillPlaying:
			allDone = false
		case engine.OutcomeWon:
			anyWon = true
		}
	}
	for _, c := range g.connections {
		if c.Observer {
			continue
		}
		note(g.eng.PlayerOutcome(c.PlayerNumber))
		if c.SplitScreen && c.PlayerNumber2 >= 0 {
			note(g.eng.PlayerOutcome(c.PlayerNumber2))
		}
	}
	if allDone {
		g.state = GameOver
		g.gameOverAt = time.Now()
		for _, c := range g.connections {
			if anyWon {
				protocol.EncodeWinGame(c.out)
			} else {
				protocol.EncodeLoseGame(c.out)
			}
		}
		return true
	}
	if !g.gameOverAt.IsZero() && time.Since(g.gameOverAt) > forceQuitTimeout {
		g.returnToSelectingQuestLocked()
		return true
	}
	return false
}

func (g *KnightsGame) returnToSelectingQuestLocked() {
	g.state = SelectingQuest
	g.eng = nil
	g.gameOverAt = time.Time{}
	g.awaitingLoad = false
	for _, c := range g.connections {
		c.Ready = false
		c.ReadyToEnd = false
		c.PlayerNumber = unassignedPlayerNumber
		c.PlayerNumber2 = unassignedPlayerNumber
		c.Disconnected = false
		protocol.EncodeGotoMenu(c.out)
	}
	g.broadcastUpdateLocked()
}

// drainControlsLocked feeds every connection's queued control inputs into
// the engine for the next tick and clears one-shot per-tick request
// flags. Skipped entirely while the worker is awaitingLoad (spec.md §4.2
// "finished-loading").
func (g *KnightsGame) drainControlsLocked() {
	for _, c := range g.connections {
		if c.Observer || c.PlayerNumber < 0 {
			continue
		}
		for _, qc := range c.controls.Drain() {
			pn := c.PlayerNumber
			if qc.ref.Slot == 1 && c.SplitScreen && c.PlayerNumber2 >= 0 {
				pn = c.PlayerNumber2
			}
			g.eng.SetControl(pn, qc.ref.Slot, qc.ref, qc.pressed)
		}
		if c.speechBubbleRequested {
			c.speechBubbleRequested = false
		}
	}
}

// catchUpAndRefreshLocked flushes every connection's pending catch-up
// snapshot and refreshes the player list every 3s or when dirtied
// (spec.md §4.1 step 5). Runs every tick regardless of awaitingLoad: a
// freshly-loaded connection's first snapshot must not wait on its
// stragglers.
func (g *KnightsGame) catchUpAndRefreshLocked() {
	for _, c := range g.connections {
		if c.RequiresCatchup && c.Loaded {
			if c.Observer {
				for _, other := range g.connections {
					if other.Observer || other.PlayerNumber < 0 {
						continue
					}
					protocol.EncodeSwitchPlayer(c.out, other.PlayerNumber)
					g.eng.CatchUp(other.PlayerNumber, c.sink())
					if other.SplitScreen && other.PlayerNumber2 >= 0 {
						protocol.EncodeSwitchPlayer(c.out, other.PlayerNumber2)
						g.eng.CatchUp(other.PlayerNumber2, c.sink())
					}
				}
			} else {
				g.eng.CatchUp(c.PlayerNumber, c.sink())
				if c.SplitScreen && c.PlayerNumber2 >= 0 {
					protocol.EncodeSwitchPlayer(c.out, c.PlayerNumber2)
					g.eng.CatchUp(c.PlayerNumber2, c.sink())
					protocol.EncodeSwitchPlayer(c.out, c.PlayerNumber)
				}
			}
			c.RequiresCatchup = false
		}
	}

	now := time.Now()
	if g.dirty || now.Sub(g.lastPlayerListRefresh) > 3*time.Second {
		g.lastPlayerListRefresh = now
		g.dirty = false
		g.broadcastPlayerListLocked()
	}
}

// broadcastPlayerListLocked sends every connection's latest roster row
// to every connection (spec.md §4.1 step 5's 3-second refresh).
func (g *KnightsGame) broadcastPlayerListLocked() {
	for _, c := range g.connections {
		state := protocol.PlayerNormal
		switch {
		case c.Observer:
			state = protocol.PlayerObserver
		case c.Disconnected:
			state = protocol.PlayerDisconnected
		case g.eng != nil && !c.Observer && g.eng.PlayerOutcome(c.PlayerNumber) == engine.OutcomeLost:
			state = protocol.PlayerEliminated
		}
		entry := protocol.PlayerListEntry{
			ID:     c.PrimaryID(),
			RGB:    uint32(c.Colour),
			PingMS: c.lastPingMS,
			State:  state,
		}
		for _, other := range g.connections {
			protocol.EncodeUpdatePlayer(other.out, entry)
		}
	}
}
