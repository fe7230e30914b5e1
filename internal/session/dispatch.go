package session

import (
	"strings"

	"github.com/sdthompson1/knights-go/internal/protocol"
)

// findConn looks up a joined connection by its ServerConnection id.
// Must be called with g.mu held.
func (g *KnightsGame) findConn(id uint64) *GameConnection {
	for _, c := range g.connections {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// Chat handles send-chat (valid in any state, spec.md §4.2). A `/t `
// prefix (after left-trim) restricts delivery to team mates (same house
// colour, not observer); lobby chat (from connections not joined to any
// game) is handled by the caller before reaching here.
func (g *KnightsGame) Chat(connID uint64, text string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	sender := g.findConn(connID)
	if sender == nil {
		return
	}

	trimmed := strings.TrimLeft(text, " ")
	teamOnly := strings.HasPrefix(trimmed, "/t ")
	body := text
	code := protocol.ChatNormal
	if sender.Observer {
		code = protocol.ChatObserver
	}
	if teamOnly {
		body = trimmed[len("/t "):]
	}

	for _, c := range g.connections {
		if teamOnly {
			if c.Observer || c.Colour != sender.Colour {
				continue
			}
		}
		protocol.EncodeChat(c.out, sender.PrimaryID(), code, body)
	}
}

// SetReady handles set-ready (valid in SelectingQuest, spec.md §4.2).
func (g *KnightsGame) SetReady(connID uint64, ready bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != SelectingQuest {
		return
	}
	c := g.findConn(connID)
	if c == nil || c.Observer {
		return
	}
	c.Ready = ready
	for _, other := range g.connections {
		protocol.EncodeSetReady(other.out, c.PrimaryID(), ready)
	}
	g.notifyWake()
}

// SetHouseColour handles set-house-colour (SelectingQuest only).
func (g *KnightsGame) SetHouseColour(connID uint64, colour uint8) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != SelectingQuest {
		return
	}
	c := g.findConn(connID)
	if c == nil || c.Observer {
		return
	}
	c.Colour = colour
	for _, other := range g.connections {
		protocol.EncodeSetHouseColour(other.out, c.PrimaryID(), colour)
	}
}

// SetObsFlag handles set-obs-flag (SelectingQuest only): toggling to
// player picks the lowest-unused colour (spec.md §4.2).
func (g *KnightsGame) SetObsFlag(connID uint64, obs bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != SelectingQuest {
		return
	}
	c := g.findConn(connID)
	if c == nil {
		return
	}
	c.Observer = obs
	if !obs {
		c.Colour = g.lowestUnusedColour()
	} else {
		c.Colour = 0
		c.Ready = false
	}
	for _, other := range g.connections {
		protocol.EncodeSetObsFlag(other.out, c.PrimaryID(), obs)
	}
}

// SetMenuSelection handles set-menu-selection (SelectingQuest, by
// players only): delegates to the engine's quest-rule logic and, if
// anything changed, broadcasts the change and clears every ready flag
// (spec.md §4.2).
func (g *KnightsGame) SetMenuSelection(connID uint64, key, value string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != SelectingQuest {
		return nil
	}
	c := g.findConn(connID)
	if c == nil || c.Observer {
		return nil
	}
	if g.newEngine == nil {
		return nil
	}
	probe := g.newEngine()
	result, err := probe.MenuSelection(key, value)
	if err != nil {
		return err
	}
	if !result.Changed {
		return nil
	}
	for _, other := range g.connections {
		protocol.EncodeSetMenuSelection(other.out, key, value)
		other.Ready = false
		protocol.EncodeDeactivateReadyFlags(other.out)
	}
	return nil
}

// RandomQuest handles the random-quest request analogously to
// SetMenuSelection but with no explicit key/value.
func (g *KnightsGame) RandomQuest(connID uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != SelectingQuest || g.newEngine == nil {
		return nil
	}
	c := g.findConn(connID)
	if c == nil || c.Observer {
		return nil
	}
	probe := g.newEngine()
	result, err := probe.RandomQuest()
	if err != nil {
		return err
	}
	if !result.Changed {
		return nil
	}
	for _, other := range g.connections {
		other.Ready = false
		protocol.EncodeDeactivateReadyFlags(other.out)
	}
	return nil
}

// FinishedLoading handles finished-loading (Running, pre-start): the
// worker waits for every participant's flag before feeding it ticks.
func (g *KnightsGame) FinishedLoading(connID uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != Running {
		return
	}
	c := g.findConn(connID)
	if c == nil {
		return
	}
	c.Loaded = true
	g.notifyWake()
}

// SendControl handles send-control (Running only): enqueues the input
// for the named player slot and wakes the worker.
func (g *KnightsGame) SendControl(connID uint64, ref protocol.ControlRef, pressed bool) {
	g.mu.Lock()
	if g.state != Running {
		g.mu.Unlock()
		return
	}
	c := g.findConn(connID)
	if c == nil || c.Observer {
		g.mu.Unlock()
		return
	}
	c.controls.Enqueue(ref, pressed)
	g.mu.Unlock()
	g.notifyWake()
}

// ReadyToEnd handles ready-to-end (GameOver only): if every participant
// is now ready-to-end, the session returns to SelectingQuest (spec.md §8
// scenario S5).
func (g *KnightsGame) ReadyToEnd(connID uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != GameOver {
		return
	}
	c := g.findConn(connID)
	if c == nil {
		return
	}
	c.ReadyToEnd = true
	all := true
	for _, other := range g.connections {
		if other.Observer {
			continue
		}
		if !other.ReadyToEnd {
			all = false
		}
	}
	if all {
		g.returnToSelectingQuestLocked()
		return
	}
	for _, other := range g.connections {
		protocol.EncodeReadyToEnd(other.out, c.PrimaryID())
	}
}

// SetPauseMode handles set-pause-mode (split-screen only): suspends Δ
// consumption without stopping the wall clock. The reference simulation
// worker honours this by skipping the engine step while still advancing
// wallTime, which keeps dungeonTime frozen.
func (g *KnightsGame) SetPauseMode(connID uint64, paused bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c := g.findConn(connID)
	if c == nil || !c.SplitScreen {
		return
	}
	g.paused = paused
}

// RequestSpeechBubble handles request-speech-bubble: flagged for the
// next post-update pass to emit.
func (g *KnightsGame) RequestSpeechBubble(connID uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c := g.findConn(connID)
	if c == nil {
		return
	}
	c.speechBubbleRequested = true
}

// SetApproachBasedControls/SetActionBarControls toggle per-connection
// control-scheme flags, consulted by the engine's own input mapping.
func (g *KnightsGame) SetApproachBasedControls(connID uint64, v bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c := g.findConn(connID); c != nil {
		c.ApproachBased = v
	}
}

func (g *KnightsGame) SetActionBarControls(connID uint64, v bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c := g.findConn(connID); c != nil {
		c.ActionBar = v
	}
}

// LeaveGame removes a connection from the roster, notifying remaining
// members.
func (g *KnightsGame) LeaveGame(connID uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, c := range g.connections {
		if c.ID == connID {
			g.connections = append(g.connections[:i], g.connections[i+1:]...)
			for _, other := range g.connections {
				protocol.EncodePlayerLeftThisGame(other.out, c.PrimaryID())
			}
			g.dirty = true
			g.broadcastUpdateLocked()
			return
		}
	}
}

// SetDisconnected marks a joined connection's knight disconnected
// without removing it from the roster, keeping its score visible
// (spec.md §4.1 step 3).
func (g *KnightsGame) SetDisconnected(connID uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c := g.findConn(connID)
	if c == nil {
		return
	}
	c.Disconnected = true
	if g.eng != nil && !c.Observer && c.PlayerNumber >= 0 {
		g.eng.SetDisconnected(c.PlayerNumber)
		if c.SplitScreen && c.PlayerNumber2 >= 0 {
			g.eng.SetDisconnected(c.PlayerNumber2)
		}
	}
}
