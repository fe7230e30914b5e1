package session

import (
	"time"

	"github.com/sdthompson1/knights-go/internal/engine"
	"github.com/sdthompson1/knights-go/internal/protocol"
	"github.com/sdthompson1/knights-go/internal/view"
	"github.com/sdthompson1/knights-go/internal/wire"
)

// unassignedPlayerNumber is the sentinel for a GameConnection that has
// not (yet) been assigned a dense player number (spec.md §3 invariant
// "player_number ≥ 0 ⇔ participates in the running simulation").
const unassignedPlayerNumber = -1

// GameConnection is one client's membership in a KnightsGame (spec.md
// §3). A split-screen connection carries a second PlayerID and consumes
// two consecutive player numbers at start.
type GameConnection struct {
	ID  uint64 // matches the owning ServerConnection's id
	Ids [2]protocol.PlayerID
	SplitScreen bool

	Observer      bool
	Ready         bool
	Loaded        bool
	ReadyToEnd    bool
	Colour        uint8 // 0 = unassigned/observer
	PlayerNumber  int   // unassignedPlayerNumber until the game starts
	PlayerNumber2 int   // second knight's number, split-screen only

	RequiresCatchup bool
	Disconnected    bool

	ApproachBased bool
	ActionBar     bool

	controls *controlQueue

	speechBubbleRequested bool

	lastPingMS uint16

	out *wire.Buf

	dungeon *view.Encoder
	mini    *view.MiniMap
	status  *view.StatusDisplay

	// out2/dungeon2/mini2/status2 serve the second knight of a
	// split-screen connection: the engine writes each knight's view
	// independently (spec.md §4.1 "split-screen consumes two
	// consecutive numbers"), and the two streams are interleaved into
	// out with an explicit SwitchPlayer bracket rather than sharing one
	// diff-cache across both simultaneously-visible knights.
	out2 *wire.Buf

	dungeon2 *view.Encoder
	mini2    *view.MiniMap
	status2  *view.StatusDisplay
}

// newGameConnection constructs a fresh, unassigned connection for id
// joining as a non-split-screen player (Observer defaults false; callers
// flip it for observer joins).
func newGameConnection(id uint64, player protocol.PlayerID) *GameConnection {
	return &GameConnection{
		ID:            id,
		Ids:           [2]protocol.PlayerID{player},
		PlayerNumber:  unassignedPlayerNumber,
		PlayerNumber2: unassignedPlayerNumber,
		controls:      newControlQueue(),
		out:           wire.NewBuf(),
		dungeon:       view.NewEncoder(player.String()),
		mini:          view.NewMiniMap(),
		status:        view.NewStatusDisplay(),
	}
}

// NewGameConnection is the exported constructor internal/gameserver
// uses to build the GameConnection it hands to KnightsGame.Join once a
// ServerConnection's join-game request names an existing session. The
// wire protocol carries only one PlayerID per connection, so a
// split-screen connection's second knight shares its primary's identity
// (Ids[1] == Ids[0]) but gets its own view-encoder set.
func NewGameConnection(id uint64, player protocol.PlayerID, splitScreen bool) *GameConnection {
	c := newGameConnection(id, player)
	c.SplitScreen = splitScreen
	if splitScreen {
		c.Ids[1] = player
		c.out2 = wire.NewBuf()
		c.dungeon2 = view.NewEncoder(player.String() + "#2")
		c.mini2 = view.NewMiniMap()
		c.status2 = view.NewStatusDisplay()
	}
	return c
}

// PrimaryID is the connection's first (non-split-screen) player id.
func (c *GameConnection) PrimaryID() protocol.PlayerID { return c.Ids[0] }

// sink builds the engine.ViewSink this connection's encoders feed into
// for the current tick.
func (c *GameConnection) sink() *engine.ViewSink {
	return &engine.ViewSink{Dungeon: c.dungeon, MiniMap: c.mini, Status: c.status, Out: c.out}
}

// sink2 builds the ViewSink for a split-screen connection's second
// knight, writing into its own scratch buffer so the two knights' view
// commands never interleave mid-command on the wire (see out2's doc
// comment).
func (c *GameConnection) sink2() *engine.ViewSink {
	return &engine.ViewSink{Dungeon: c.dungeon2, MiniMap: c.mini2, Status: c.status2, Out: c.out2}
}

// recordPing stores a freshly-measured round-trip time, used by the
// player-list broadcast (spec.md §4.1 step 5's 3-second refresh).
func (c *GameConnection) recordPing(d time.Duration) {
	ms := d.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	if ms > 0xffff {
		ms = 0xffff
	}
	c.lastPingMS = uint16(ms)
}
