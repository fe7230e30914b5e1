package refengine

import (
	"testing"
	"time"

	"github.com/sdthompson1/knights-go/internal/engine"
	"github.com/sdthompson1/knights-go/internal/protocol"
	"github.com/sdthompson1/knights-go/internal/view"
	"github.com/sdthompson1/knights-go/internal/wire"
)

func newSinks(numPlayers int) map[int]*engine.ViewSink {
	sinks := make(map[int]*engine.ViewSink)
	for n := 0; n < numPlayers; n++ {
		sinks[n] = &engine.ViewSink{
			Dungeon: view.NewEncoder("p"),
			MiniMap: view.NewMiniMap(),
			Status:  view.NewStatusDisplay(),
			Out:     wire.NewBuf(),
		}
	}
	return sinks
}

func TestStartSpawnsOnePlayerPerKnight(t *testing.T) {
	e := NewEngine()
	if err := e.Start(engine.StartConfig{NumPlayers: 2, HouseColours: []uint8{1, 2}}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(e.entityByPlayer) != 2 {
		t.Fatalf("expected 2 player entities, got %d", len(e.entityByPlayer))
	}
}

func TestStartRejectsZeroPlayers(t *testing.T) {
	e := NewEngine()
	err := e.Start(engine.StartConfig{NumPlayers: 0})
	if err == nil {
		t.Fatal("expected error starting with zero players")
	}
	perr, ok := err.(*protocol.Error)
	if !ok || !perr.Fatal {
		t.Fatalf("expected a fatal protocol.Error, got %v", err)
	}
}

func TestMoveControlAdvancesPosition(t *testing.T) {
	e := NewEngine()
	if err := e.Start(engine.StartConfig{NumPlayers: 1, HouseColours: []uint8{0}}); err != nil {
		t.Fatal(err)
	}
	ent := e.entityByPlayer[0]
	before := *e.posMap.Get(ent)

	e.SetControl(0, 1, protocol.ControlRef{Slot: 1, Ordinal: controlRight}, true)
	sinks := newSinks(1)
	for i := 0; i < 5; i++ {
		e.Update(50*time.Millisecond, sinks)
	}

	after := *e.posMap.Get(ent)
	if after.X <= before.X {
		t.Fatalf("expected knight to move right: before=%.2f after=%.2f", before.X, after.X)
	}
}

func TestReleasingControlStopsMovement(t *testing.T) {
	e := NewEngine()
	if err := e.Start(engine.StartConfig{NumPlayers: 1}); err != nil {
		t.Fatal(err)
	}
	ent := e.entityByPlayer[0]
	sinks := newSinks(1)

	e.SetControl(0, 1, protocol.ControlRef{Slot: 1, Ordinal: controlRight}, true)
	e.Update(50*time.Millisecond, sinks)
	e.SetControl(0, 1, protocol.ControlRef{Slot: 1, Ordinal: controlRight}, false)
	e.Update(50*time.Millisecond, sinks)

	if e.velMap.Get(ent).X != 0 {
		t.Fatalf("expected velocity to drop to zero after release, got %.2f", e.velMap.Get(ent).X)
	}
}

func TestAttackDefeatsMonsterAndWinsGame(t *testing.T) {
	e := NewEngine()
	if err := e.Start(engine.StartConfig{NumPlayers: 1}); err != nil {
		t.Fatal(err)
	}
	ent := e.entityByPlayer[0]
	monster := e.monsters[0]
	// Move the knight next to the monster so the attack connects.
	mpos := e.posMap.Get(monster)
	e.posMap.Get(ent).X = mpos.X
	e.posMap.Get(ent).Y = mpos.Y

	sinks := newSinks(1)
	for hp := e.healthMap.Get(monster).Current; hp > 0; hp = e.healthMap.Get(monster).Current {
		e.SetControl(0, 2, protocol.ControlRef{Slot: 2, Ordinal: controlAttack}, true)
		e.Update(50*time.Millisecond, sinks)
		e.SetControl(0, 2, protocol.ControlRef{Slot: 2, Ordinal: controlAttack}, false)
		for i := 0; i < AttackDuration; i++ {
			e.Update(50*time.Millisecond, sinks)
		}
	}

	if got := e.PlayerOutcome(0); got != engine.OutcomeWon {
		t.Fatalf("expected OutcomeWon once all monsters are dead, got %v", got)
	}
}

func TestEliminatePlayerReportsLost(t *testing.T) {
	e := NewEngine()
	if err := e.Start(engine.StartConfig{NumPlayers: 1}); err != nil {
		t.Fatal(err)
	}
	e.EliminatePlayer(0)
	if got := e.PlayerOutcome(0); got != engine.OutcomeLost {
		t.Fatalf("expected OutcomeLost, got %v", got)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	e := NewEngine()
	if err := e.Start(engine.StartConfig{NumPlayers: 1}); err != nil {
		t.Fatal(err)
	}
	sinks := newSinks(1)
	e.SetControl(0, 1, protocol.ControlRef{Slot: 1, Ordinal: controlRight}, true)
	e.Update(50*time.Millisecond, sinks)

	snap := e.Snapshot()

	e.Update(50*time.Millisecond, sinks)
	e.Update(50*time.Millisecond, sinks)

	e.Restore(snap)
	after := e.Snapshot()

	if !StatesMatch(&snap, &after, 0.0001) {
		t.Fatalf("restored state should match snapshot: checksum %d vs %d", snap.Checksum, after.Checksum)
	}
}

func TestCatchUpDoesNotMutateState(t *testing.T) {
	e := NewEngine()
	if err := e.Start(engine.StartConfig{NumPlayers: 1}); err != nil {
		t.Fatal(err)
	}
	before := e.Snapshot()

	sink := &engine.ViewSink{
		Dungeon: view.NewEncoder("observer"),
		MiniMap: view.NewMiniMap(),
		Status:  view.NewStatusDisplay(),
		Out:     wire.NewBuf(),
	}
	e.CatchUp(0, sink)

	after := e.Snapshot()
	if !StatesMatch(&before, &after, 0.0001) {
		t.Fatal("CatchUp must not mutate simulation state")
	}
	if sink.Out.Len() == 0 {
		t.Fatal("expected CatchUp to write some view output")
	}
}
