// Package gameserver implements the top-level multi-game server
// (spec.md §4.3): per-connection handshake, password gating, routing
// decoded messages into the right KnightsGame, and the server-wide
// player list and game directory. Adapted from the teacher's
// internal/server.Server (mutex-guarded struct, one goroutine per
// long-running duty) generalised from a single authoritative world to a
// registry of independent KnightsGame sessions.
package gameserver

import (
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/sdthompson1/knights-go/internal/protocol"
	"github.com/sdthompson1/knights-go/internal/session"
	"github.com/sdthompson1/knights-go/internal/wire"
)

// maxPasswordFailures is N in spec.md §4.3 "after N=5 failures the
// connection is frozen".
const maxPasswordFailures = 5

// passwordBackoff is the back-off window between failed password
// attempts (spec.md §5 "2-second password-retry back-off").
const passwordBackoff = 2 * time.Second

// ServerConnection is one client's connection to the multi-game server,
// independent of whether it has joined a KnightsGame yet (spec.md §4.3).
type ServerConnection struct {
	id     uint64
	conn   wire.Connection
	server *KnightsServer
	log    *slog.Logger

	// sendMu serialises every write onto conn: lobby-level pushes (via
	// send) and the per-game drainLoop both write to the same
	// underlying stream concurrently, and wire.Connection.Send is not
	// itself safe for concurrent callers (it writes the length prefix
	// and payload as separate net.Conn writes).
	sendMu sync.Mutex

	mu              sync.Mutex
	playerIdent     protocol.PlayerID
	versionAccepted bool
	passwordOK      bool
	passwordFails   int
	frozen          bool
	backoffUntil    time.Time

	approachBased bool
	actionBar     bool

	game      *session.KnightsGame
	gameConn  *session.GameConnection
	observer  bool

	closed bool
}

func newServerConnection(id uint64, conn wire.Connection, srv *KnightsServer, log *slog.Logger) *ServerConnection {
	return &ServerConnection{
		id:     id,
		conn:   conn,
		server: srv,
		log:    log.With("conn", id, "remote", conn.RemoteAddr()),
	}
}

// send writes one fully-encoded message frame, logging (not panicking)
// on failure: the read loop will observe the resulting connection error
// and tear the connection down.
func (c *ServerConnection) send(b *wire.Buf) {
	if err := c.rawSend(b.Bytes()); err != nil {
		c.log.Debug("send failed", "error", err)
	}
}

// rawSend writes one already-framed-payload's worth of bytes, holding
// sendMu for the duration so it never interleaves with another
// concurrent sender (see sendMu's doc comment).
func (c *ServerConnection) rawSend(data []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.conn.Send(data)
}

func (c *ServerConnection) sendError(key string, params ...string) {
	b := wire.NewBuf()
	protocol.EncodeServerError(b, key, params)
	c.send(b)
}

// sendJoinGameDenied replies to a rejected join-game with the denial
// key, rather than a generic ServerError (spec.md §8 S3: no roster-
// change messages accompany the denial).
func (c *ServerConnection) sendJoinGameDenied(key string) {
	b := wire.NewBuf()
	protocol.EncodeJoinGameDenied(b, key)
	c.send(b)
}

// run drives the connection's entire lifetime: handshake, password gate,
// then the steady-state message loop, until the peer disconnects or a
// fatal protocol error is raised.
func (c *ServerConnection) run() {
	defer c.server.removeConnection(c)

	if !c.handshake() {
		return
	}

	for {
		frame, err := c.conn.Recv()
		if err != nil {
			return
		}
		if c.frozen {
			continue
		}
		if !c.passwordOK && c.server.cfg.Password != "" {
			c.handlePasswordFrame(frame)
			continue
		}
		c.handleFrame(frame)
	}
}

// handshake consumes the first frame (the literal "Knights/NNN" version
// string), gates on password if configured, then admits the connection
// (spec.md §4.3).
func (c *ServerConnection) handshake() bool {
	frame, err := c.conn.Recv()
	if err != nil {
		return false
	}
	version, perr := protocol.ParseHandshake(string(frame))
	if perr != nil {
		pe := perr.(*protocol.Error)
		c.sendError(pe.Key, pe.Params...)
		return false
	}
	c.versionAccepted = true

	if c.server.atCapacity() {
		c.sendError(protocol.ErrServerFull)
		return false
	}

	if c.server.cfg.MOTD != "" {
		ann := &protocol.AnnouncementLoc{Key: c.server.cfg.MOTD}
		b := wire.NewBuf()
		ann.Encode(b)
		c.send(b)
	}

	if c.server.cfg.Password == "" {
		c.passwordOK = true
	}
	_ = version
	return true
}

// handlePasswordFrame processes frames received before a configured
// password has been accepted; only a send-password message (and the
// initial set-player-id) are meaningful here.
func (c *ServerConnection) handlePasswordFrame(frame []byte) {
	r := wire.NewReader(frame)
	code, err := r.ReadUByte()
	if err != nil {
		return
	}
	cc := protocol.ClientCode(code)
	if cc == protocol.CSetPlayerId {
		msg, err := protocol.DecodeClientMessage(cc, r)
		if err != nil {
			return
		}
		c.mu.Lock()
		c.playerIdent = msg.PlayerID
		c.mu.Unlock()
		return
	}
	if cc != protocol.CSendPassword {
		c.sendError(protocol.ErrWrongPassword)
		return
	}
	msg, err := protocol.DecodeClientMessage(cc, r)
	if err != nil {
		return
	}

	c.mu.Lock()
	if time.Now().Before(c.backoffUntil) {
		c.mu.Unlock()
		return
	}
	if msg.Password == c.server.cfg.Password {
		c.passwordOK = true
		c.mu.Unlock()
		c.completeHandshake()
		return
	}
	c.passwordFails++
	if c.passwordFails >= maxPasswordFailures {
		c.frozen = true
		c.mu.Unlock()
		c.sendError(protocol.ErrConnectionFrozen)
		return
	}
	c.backoffUntil = time.Now().Add(passwordBackoff)
	c.mu.Unlock()
	c.sendError(protocol.ErrWrongPassword)
}

// completeHandshake sends the post-acceptance burst described in
// spec.md §4.3: the full player list, the full game directory, then
// connection-accepted; existing connections get a player-connected
// notification.
func (c *ServerConnection) completeHandshake() {
	c.server.completeHandshake(c)
}

// handleFrame dispatches one steady-state client message, either
// lobby-scoped (set-player-id/join-game/leave-game, handled here) or
// forwarded into the joined session via session.Route.
func (c *ServerConnection) handleFrame(frame []byte) {
	r := wire.NewReader(frame)
	code, err := r.ReadUByte()
	if err != nil {
		return
	}
	cc := protocol.ClientCode(code)

	switch cc {
	case protocol.CSetPlayerId:
		msg, err := protocol.DecodeClientMessage(cc, r)
		if err != nil {
			return
		}
		c.mu.Lock()
		first := c.playerIdent.Empty()
		c.playerIdent = msg.PlayerID
		c.mu.Unlock()
		if first {
			// No password was configured, so handshake() never routed
			// through handlePasswordFrame()'s own completeHandshake call
			// (spec.md §4.3 S1: the post-acceptance burst still fires as
			// soon as the client identifies itself).
			c.completeHandshake()
		}
		return
	case protocol.CJoinGame, protocol.CJoinGameSplitScreen:
		msg, err := protocol.DecodeClientMessage(cc, r)
		if err != nil {
			return
		}
		c.server.joinGame(c, msg.GameName, cc == protocol.CJoinGameSplitScreen)
		return
	case protocol.CLeaveGame:
		c.server.leaveGame(c)
		return
	case protocol.CSetApproachBasedControls:
		msg, err := protocol.DecodeClientMessage(cc, r)
		if err != nil {
			return
		}
		c.mu.Lock()
		c.approachBased = msg.ApproachBased
		g, id := c.game, c.id
		c.mu.Unlock()
		if g != nil {
			g.SetApproachBasedControls(id, msg.ApproachBased)
		}
		return
	case protocol.CSetActionBarControls:
		msg, err := protocol.DecodeClientMessage(cc, r)
		if err != nil {
			return
		}
		c.mu.Lock()
		c.actionBar = msg.ActionBar
		g, id := c.game, c.id
		c.mu.Unlock()
		if g != nil {
			g.SetActionBarControls(id, msg.ActionBar)
		}
		return
	}

	msg, err := protocol.DecodeClientMessage(cc, r)
	if err != nil {
		if pe, ok := err.(*protocol.Error); ok {
			c.sendError(pe.Key, pe.Params...)
		}
		return
	}

	c.mu.Lock()
	g := c.game
	c.mu.Unlock()
	if g == nil {
		c.sendError(protocol.ErrNotInGame)
		return
	}
	if rerr := session.Route(g, c.id, msg); rerr != nil {
		pe, ok := rerr.(*protocol.Error)
		if !ok {
			return
		}
		c.sendError(pe.Key, pe.Params...)
	}
}

// drainOutputInterval is how often a joined connection's session output
// buffer is polled and flushed onto the wire.
const drainOutputInterval = 20 * time.Millisecond

// drainLoop flushes g's accumulated output for this connection onto the
// wire until the connection leaves g or disconnects (spec.md "the
// per-connection output buffer" queue between the session worker and
// network I/O).
func (c *ServerConnection) drainLoop(g *session.KnightsGame) {
	ticker := time.NewTicker(drainOutputInterval)
	defer ticker.Stop()
	for range ticker.C {
		c.mu.Lock()
		current := c.game
		id := c.id
		c.mu.Unlock()
		if current != g {
			return
		}
		if data := g.DrainOutput(id); len(data) > 0 {
			if err := c.rawSend(data); err != nil {
				return
			}
		}
	}
}

func (c *ServerConnection) playerID() protocol.PlayerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerIdent
}

// acceptLoop is the top-level network-I/O worker (spec.md §5 "one
// worker on the server top-level for network I/O"): it accepts
// connections and spawns one goroutine per ServerConnection.
func acceptLoop(ln net.Listener, srv *KnightsServer) {
	for {
		nc, err := ln.Accept()
		if err != nil {
			return
		}
		conn := wire.NewTCPConnection(nc)
		sc := srv.addConnection(conn)
		go sc.run()
	}
}
