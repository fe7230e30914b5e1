package session

import (
	"log/slog"
	"testing"
	"time"

	"github.com/sdthompson1/knights-go/internal/engine"
	"github.com/sdthompson1/knights-go/internal/engine/refengine"
	"github.com/sdthompson1/knights-go/internal/protocol"
)

func newRefEngine() engine.GameEngine { return refengine.NewEngine() }

type recordingBroadcaster struct {
	updates []protocol.GameInfo
}

func (r *recordingBroadcaster) UpdateGame(info protocol.GameInfo) {
	r.updates = append(r.updates, info)
}
func (r *recordingBroadcaster) DropGame(name string) {}

func newTestGame() (*KnightsGame, *recordingBroadcaster) {
	b := &recordingBroadcaster{}
	g := NewGame("G", newRefEngine, b, slog.Default())
	g.splitScreenTutorial = false
	return g, b
}

func joinPlayer(g *KnightsGame, name string) *GameConnection {
	id := protocol.PlayerID{Name: name}
	conn := newGameConnection(uint64(len(g.connections)+len(g.pendingJoin)+1), id)
	g.Join(conn, false)
	return conn
}

func waitForPending(g *KnightsGame) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		g.mu.Lock()
		done := len(g.pendingJoin) == 0
		g.mu.Unlock()
		if done {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

func TestTwoPlayersReadyStartsGame(t *testing.T) {
	g, b := newTestGame()
	g.Start()
	defer g.Stop()

	a := joinPlayer(g, "alice")
	waitForPending(g)
	joinPlayer(g, "bob")
	waitForPending(g)

	g.mu.Lock()
	if g.state != SelectingQuest {
		t.Fatalf("expected SelectingQuest after two joins, got %v", g.state)
	}
	g.mu.Unlock()

	g.SetReady(a.ID, true)
	g.SetReady(2, true)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		g.mu.Lock()
		state := g.state
		g.mu.Unlock()
		if state == Running {
			break
		}
		time.Sleep(time.Millisecond)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != Running {
		t.Fatalf("expected Running after both players ready, got %v", g.state)
	}
	if len(b.updates) == 0 {
		t.Fatal("expected at least one UpdateGame broadcast")
	}
}

func TestChatTeamOnlyRestrictsDelivery(t *testing.T) {
	g, _ := newTestGame()
	a := newGameConnection(1, protocol.PlayerID{Name: "alice"})
	bConn := newGameConnection(2, protocol.PlayerID{Name: "bob"})
	a.Colour, bConn.Colour = 1, 2
	g.connections = []*GameConnection{a, bConn}

	g.Chat(1, "/t secret")

	if a.out.Len() == 0 {
		t.Fatal("sender should see their own team chat")
	}
	if bConn.out.Len() != 0 {
		t.Fatal("different-coloured connection should not see team-only chat")
	}
}

// TestSplitScreenConsumesTwoPlayerNumbers covers spec.md §4.1
// "split-screen consumes two consecutive numbers": a lone split-screen
// connection in a tutorial/split-screen game gets both player numbers 0
// and 1, rather than a single connection only ever advancing the
// counter by one.
func TestSplitScreenConsumesTwoPlayerNumbers(t *testing.T) {
	g, _ := newTestGame()
	g.splitScreenTutorial = true
	g.Start()
	defer g.Stop()

	conn := NewGameConnection(1, protocol.PlayerID{Name: "alice"}, true)
	g.Join(conn, false)
	waitForPending(g)

	g.SetReady(1, true)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		g.mu.Lock()
		state := g.state
		g.mu.Unlock()
		if state == Running {
			break
		}
		time.Sleep(time.Millisecond)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != Running {
		t.Fatalf("expected Running, got %v", g.state)
	}
	if conn.PlayerNumber != 0 || conn.PlayerNumber2 != 1 {
		t.Fatalf("expected split-screen numbers (0, 1), got (%d, %d)", conn.PlayerNumber, conn.PlayerNumber2)
	}
}

// TestWorkerWaitsForFinishedLoading covers spec.md §4.2 "finished-loading":
// the worker must not feed ticks to the engine until every non-observer
// connection has reported finished-loading.
func TestWorkerWaitsForFinishedLoading(t *testing.T) {
	g, _ := newTestGame()
	g.Start()
	defer g.Stop()

	a := joinPlayer(g, "alice")
	waitForPending(g)
	b := joinPlayer(g, "bob")
	waitForPending(g)

	g.SetReady(a.ID, true)
	g.SetReady(b.ID, true)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		g.mu.Lock()
		state := g.state
		g.mu.Unlock()
		if state == Running {
			break
		}
		time.Sleep(time.Millisecond)
	}

	time.Sleep(50 * time.Millisecond)
	g.mu.Lock()
	if !g.awaitingLoad {
		g.mu.Unlock()
		t.Fatal("expected worker to still be awaiting finished-loading before any connection reports it")
	}
	if g.dungeonTime != 0 {
		g.mu.Unlock()
		t.Fatalf("engine should not have ticked yet, dungeonTime = %v", g.dungeonTime)
	}
	g.mu.Unlock()

	g.FinishedLoading(a.ID)
	g.FinishedLoading(b.ID)

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		g.mu.Lock()
		done := !g.awaitingLoad
		g.mu.Unlock()
		if done {
			break
		}
		time.Sleep(time.Millisecond)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.awaitingLoad {
		t.Fatal("expected awaitingLoad to clear once both connections finished loading")
	}
}

func TestReadyToEndUnanimityReturnsToSelectingQuest(t *testing.T) {
	g, _ := newTestGame()
	g.state = GameOver
	g.gameOverAt = time.Now()
	a := newGameConnection(1, protocol.PlayerID{Name: "alice"})
	bConn := newGameConnection(2, protocol.PlayerID{Name: "bob"})
	g.connections = []*GameConnection{a, bConn}

	g.ReadyToEnd(1)
	if g.state != GameOver {
		t.Fatal("should remain in GameOver until every participant is ready")
	}

	g.ReadyToEnd(2)
	if g.state != SelectingQuest {
		t.Fatalf("expected SelectingQuest once all ready-to-end, got %v", g.state)
	}
}
