// Package engine defines the GameEngine boundary: the deterministic,
// per-game simulation black box that the session (internal/session)
// drives every tick. Its concrete rule logic — quest/menu behaviour,
// monster AI, combat resolution — is explicitly out of scope per
// spec.md §1; this package only fixes the contract a real engine must
// satisfy, plus the ViewSink grouping spec.md §9 calls for ("the engine
// takes a mutable reference to a grouped view sink rather than three
// separately-referenced objects").
package engine

import (
	"time"

	"github.com/sdthompson1/knights-go/internal/protocol"
	"github.com/sdthompson1/knights-go/internal/view"
	"github.com/sdthompson1/knights-go/internal/wire"
)

// ViewSink groups the three per-observer encoders an engine writes view
// updates into during Update/Catchup, replacing the original's three
// separately-referenced DungeonView/MiniMap/StatusDisplay callback
// objects with one mutable reference (spec.md §9).
type ViewSink struct {
	Dungeon *view.Encoder
	MiniMap *view.MiniMap
	Status  *view.StatusDisplay
	Out     *wire.Buf
}

// StartConfig carries the per-session parameters needed to boot a
// GameEngine instance: the quest/config handle (opaque to the session),
// the dense player-number assignment, and each player's snapshotted
// house colour. ConfigHandle and ResourceOpener are resolved entirely
// outside this package's scope (spec.md §1's config-script interpreter
// and file-resource layer), and are carried as opaque values.
type StartConfig struct {
	ConfigHandle   any
	NumPlayers     int
	HouseColours   []uint8 // indexed by player number
	SplitScreen    bool
	RNGSeed        uint64
}

// GameEngine is the deterministic simulation contract a session drives.
// A concrete engine is free to run scripted quest rules, AI, physics —
// anything — so long as Update/Catchup calls are deterministic given an
// identical sequence of (Δ, control) inputs, which is what the
// replicated mode (internal/vm) depends on.
type GameEngine interface {
	// Start boots the engine for one quest/game. Returns
	// protocol.ErrEngineStartFailed wrapped in *protocol.Error on a
	// recoverable configuration problem (spec.md §4.1 "Failure
	// semantics").
	Start(cfg StartConfig) error

	// Update advances the simulation by delta, writing any resulting
	// view/mini-map/status/sound/win-lose output through sinks (one per
	// observer, including players viewing their own perspective).
	// Panics from Update are the caller's responsibility to recover —
	// see spec.md §4.1, an engine panic escalates to a fatal session
	// teardown.
	Update(delta time.Duration, sinks map[int]*ViewSink)

	// TimeToNextUpdate reports how long the simulation worker may sleep
	// before the next Update call is meaningful (spec.md §4.1 step 6).
	TimeToNextUpdate() time.Duration

	// SetControl enqueues one control input for a given player slot;
	// called once per player-slot per tick by the session's post-update
	// step. pressed distinguishes edge-triggered controls (attack) from
	// the continuous state controls carry between ticks.
	SetControl(playerNum int, slot uint8, ref protocol.ControlRef, pressed bool)

	// CatchUp re-emits every currently-visible tile, mini-map cell, and
	// status field for the given player/observer through sink, without
	// mutating simulation state. Used for newly-attached observers and
	// reconnecting players (spec.md §4.1 "Catch-up").
	CatchUp(playerNum int, sink *ViewSink)

	// PlayerOutcome reports the win/lose/still-playing state of a
	// participating player, used by the session to decide when to enter
	// GameOver (spec.md §4.1).
	PlayerOutcome(playerNum int) Outcome

	// EliminatePlayer marks a player defeated; subsequent PlayerOutcome
	// calls for that player must report OutcomeLost.
	EliminatePlayer(playerNum int)

	// SetDisconnected marks a player's knight disconnected without
	// removing it from the simulation, keeping their score visible
	// (spec.md §4.1 step 3).
	SetDisconnected(playerNum int)

	// MenuSelection delegates a SetMenuSelection request to the
	// engine's quest-rule logic. Returns whether anything changed and
	// whether the quest remains startable for the current roster
	// (SPEC_FULL.md "Quest-selection menu listeners").
	MenuSelection(key, value string) (MenuConstraintResult, error)

	// RandomQuest asks the engine to pick a new random quest/map,
	// analogous to MenuSelection but with no explicit key/value.
	RandomQuest() (MenuConstraintResult, error)
}

// Outcome is a player's simulation result.
type Outcome int

const (
	OutcomeStillPlaying Outcome = iota
	OutcomeWon
	OutcomeLost
)

// MenuConstraintResult is the outcome of a quest-rule menu mutation
// (SPEC_FULL.md's supplemented "Quest-selection menu listeners"
// feature, grounded in original_source/src/server/impl/
// my_menu_listeners.cpp): a required-item change that becomes invalid
// for the current player count downgrades CanStart without discarding
// other players' selections.
type MenuConstraintResult struct {
	Changed  bool
	CanStart bool
}
