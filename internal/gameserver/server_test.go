package gameserver

import (
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/sdthompson1/knights-go/internal/engine"
	"github.com/sdthompson1/knights-go/internal/engine/refengine"
	"github.com/sdthompson1/knights-go/internal/protocol"
	"github.com/sdthompson1/knights-go/internal/wire"
)

func newRefEngine() engine.GameEngine { return refengine.NewEngine() }

// testClient drives one end of an in-memory net.Pipe as a Knights
// client, using the same length-prefixed framing the real TCP
// transport uses (spec.md §8 S1/S3 exercise the framing end to end,
// not just the decoder). A background goroutine continuously drains
// incoming frames into codes, the same way a real client's read loop
// never stops pumping the socket — a test that only read synchronously
// between sends would otherwise deadlock the server the moment it
// broadcasts to a peer the test has stopped reading from (ServerConnection's
// per-game drainLoop and KnightsServer.UpdateGame both write
// straight onto the pipe under a lock).
type testClient struct {
	t     *testing.T
	conn  wire.Connection
	codes chan protocol.ServerCode
}

func newTestServer(t *testing.T, cfg Config) *KnightsServer {
	t.Helper()
	srv := NewServer(cfg, newRefEngine, slog.New(slog.DiscardHandler))
	srv.loader.start()
	t.Cleanup(srv.loader.stop)
	srv.mu.Lock()
	srv.ensureInitialGameLocked()
	srv.mu.Unlock()
	return srv
}

func connectClient(t *testing.T, srv *KnightsServer) *testClient {
	t.Helper()
	serverNet, clientNet := net.Pipe()
	sc := srv.addConnection(wire.NewTCPConnection(serverNet))
	go sc.run()

	c := &testClient{t: t, conn: wire.NewTCPConnection(clientNet), codes: make(chan protocol.ServerCode, 256)}
	go c.drain()
	t.Cleanup(func() { clientNet.Close() })
	return c
}

// drain reads every frame this client's pipe receives. A frame may
// bundle several messages back to back (KnightsGame's output buffer
// batches a tick's worth of updates into one flush), so only the
// leading code of each frame is recorded — good enough for the
// scenarios these tests check, which all assert on a message that is
// the first (often only) thing written in its flush.
func (c *testClient) drain() {
	for {
		frame, err := c.conn.Recv()
		if err != nil {
			close(c.codes)
			return
		}
		if len(frame) == 0 {
			continue
		}
		c.codes <- protocol.ServerCode(frame[0])
	}
}

func (c *testClient) sendRaw(b []byte) {
	c.t.Helper()
	if err := c.conn.Send(b); err != nil {
		c.t.Fatalf("send: %v", err)
	}
}

func (c *testClient) sendHandshake(version string) {
	c.sendRaw([]byte(version))
}

func (c *testClient) sendSetPlayerID(name string) {
	b := wire.NewBuf()
	b.WriteUByte(byte(protocol.CSetPlayerId))
	b.WriteString("") // platform
	b.WriteString(name)
	c.sendRaw(b.Bytes())
}

func (c *testClient) sendJoinGame(name string, splitScreen bool) {
	b := wire.NewBuf()
	if splitScreen {
		b.WriteUByte(byte(protocol.CJoinGameSplitScreen))
	} else {
		b.WriteUByte(byte(protocol.CJoinGame))
	}
	b.WriteString(name)
	c.sendRaw(b.Bytes())
}

func (c *testClient) sendReady(ready bool) {
	b := wire.NewBuf()
	b.WriteUByte(byte(protocol.CSetReady))
	if ready {
		b.WriteUByte(1)
	} else {
		b.WriteUByte(0)
	}
	c.sendRaw(b.Bytes())
}

// recvUntil blocks on the drained-code channel until want appears or
// timeout elapses, returning whether it was found along with every
// code observed meanwhile.
func (c *testClient) recvUntil(want protocol.ServerCode, timeout time.Duration) (bool, []protocol.ServerCode) {
	c.t.Helper()
	deadline := time.After(timeout)
	var seen []protocol.ServerCode
	for {
		select {
		case code, ok := <-c.codes:
			if !ok {
				return false, seen
			}
			seen = append(seen, code)
			if code == want {
				return true, seen
			}
		case <-deadline:
			return false, seen
		}
	}
}

// S1 — Handshake and accept (spec.md §8): a fresh client sends the
// version string then set-player-id and receives the post-acceptance
// burst, ending in ConnectionAccepted.
func TestHandshakeAndAccept(t *testing.T) {
	srv := newTestServer(t, Config{})
	client := connectClient(t, srv)

	client.sendHandshake("Knights/018")
	client.sendSetPlayerID("alice")

	found, seen := client.recvUntil(protocol.SConnectionAccepted, time.Second)
	if !found {
		t.Fatalf("never saw ConnectionAccepted, got %v", seen)
	}
}

// S1 variant: an incompatible version is rejected with a protocol
// error and the connection is closed before any roster burst.
func TestHandshakeRejectsIncompatibleVersion(t *testing.T) {
	srv := newTestServer(t, Config{})
	client := connectClient(t, srv)

	client.sendHandshake("Knights/999")

	found, seen := client.recvUntil(protocol.SServerError, time.Second)
	if !found {
		t.Fatalf("expected ServerError for bad version, got %v", seen)
	}
}

func firstGameName(t *testing.T, srv *KnightsServer) string {
	t.Helper()
	srv.mu.Lock()
	defer srv.mu.Unlock()
	for name := range srv.games {
		return name
	}
	t.Fatal("no game in directory")
	return ""
}

// S2 — Join + start two-player game (spec.md §8): two clients join the
// same game and ready up; the quest constraint passes for two players,
// so the session transitions straight to Running.
func TestJoinAndStartTwoPlayerGame(t *testing.T) {
	srv := newTestServer(t, Config{})

	a := connectClient(t, srv)
	a.sendHandshake("Knights/018")
	a.sendSetPlayerID("alice")
	a.recvUntil(protocol.SConnectionAccepted, time.Second)

	b := connectClient(t, srv)
	b.sendHandshake("Knights/018")
	b.sendSetPlayerID("bob")
	b.recvUntil(protocol.SConnectionAccepted, time.Second)

	gameName := firstGameName(t, srv)

	a.sendJoinGame(gameName, false)
	b.sendJoinGame(gameName, false)

	time.Sleep(50 * time.Millisecond)

	a.sendReady(true)
	b.sendReady(true)

	deadline := time.Now().Add(2 * time.Second)
	for {
		srv.mu.Lock()
		g := srv.games[gameName]
		srv.mu.Unlock()
		if g != nil && g.Info().Status == protocol.GSRunning {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("game never reached Running, last status %v", g.Info().Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// S3 — Split-screen reject (spec.md §8): with split-screen disabled,
// a join-game-split-screen is denied outright with no roster-change
// messages.
func TestSplitScreenDeniedWhenDisallowed(t *testing.T) {
	srv := newTestServer(t, Config{AllowSplitScreen: false})
	client := connectClient(t, srv)

	client.sendHandshake("Knights/018")
	client.sendSetPlayerID("alice")
	client.recvUntil(protocol.SConnectionAccepted, time.Second)

	gameName := firstGameName(t, srv)
	client.sendJoinGame(gameName, true)

	found, seen := client.recvUntil(protocol.SJoinGameDenied, time.Second)
	if !found {
		t.Fatalf("expected JoinGameDenied, got %v", seen)
	}
}
