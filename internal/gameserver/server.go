package gameserver

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sdthompson1/knights-go/internal/protocol"
	"github.com/sdthompson1/knights-go/internal/session"
	"github.com/sdthompson1/knights-go/internal/wire"
)

// maintenanceInterval is the cadence lifecycle maintenance runs on
// (spec.md §4.3 "run on a fixed cadence").
const maintenanceInterval = 5 * time.Second

// Config configures a KnightsServer (spec.md §4.3, §1 C5).
type Config struct {
	Addr     string
	Password string
	MOTD     string
	MaxGames int

	// MaxPlayers caps the number of simultaneously-connected clients
	// server-wide (spec.md §6 "MaxPlayers≥2" config key); zero means
	// unlimited.
	MaxPlayers int

	// AllowSplitScreen gates join-game-split-screen (spec.md §8 S3):
	// when false, a split-screen join is denied outright rather than
	// admitted as two player slots.
	AllowSplitScreen bool
}

// KnightsServer is the top-level multi-game server: it owns the game
// directory, the full ServerConnection collection, and admits new
// connections via a handshake/password gate before routing their
// messages into the right KnightsGame (spec.md §4.3). Adapted from the
// teacher's server.Server, generalised from one authoritative world to
// a registry of independently-clocked KnightsGame sessions.
type KnightsServer struct {
	cfg       Config
	newEngine session.EngineFactory
	log       *slog.Logger

	mu          sync.Mutex
	games       map[string]*session.KnightsGame
	connections map[uint64]*ServerConnection
	nextConnID  atomic.Uint64

	loader *configLoader

	ln       net.Listener
	quit     chan struct{}
	done     chan struct{}
}

// NewServer constructs a server in its initial state (no listener yet —
// call Run to bind and serve).
func NewServer(cfg Config, newEngine session.EngineFactory, log *slog.Logger) *KnightsServer {
	if cfg.MaxGames <= 0 {
		cfg.MaxGames = 8
	}
	s := &KnightsServer{
		cfg:         cfg,
		newEngine:   newEngine,
		log:         log,
		games:       make(map[string]*session.KnightsGame),
		connections: make(map[uint64]*ServerConnection),
		loader:      newConfigLoader(newEngine),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	return s
}

// Run binds the listener, starts the maintenance loop and warm-config
// loader, and serves connections until Stop is called.
func (s *KnightsServer) Run() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln

	s.loader.start()
	s.mu.Lock()
	s.ensureInitialGameLocked()
	s.mu.Unlock()

	go s.maintenanceLoop()
	acceptLoop(ln, s)
	return nil
}

// Stop closes the listener and every game's worker.
func (s *KnightsServer) Stop() {
	close(s.quit)
	if s.ln != nil {
		s.ln.Close()
	}
	s.loader.stop()

	s.mu.Lock()
	games := make([]*session.KnightsGame, 0, len(s.games))
	for _, g := range s.games {
		games = append(games, g)
	}
	s.mu.Unlock()
	for _, g := range games {
		g.Stop()
	}
	<-s.done
}

func (s *KnightsServer) maintenanceLoop() {
	defer close(s.done)
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			s.runMaintenance()
		}
	}
}

// runMaintenance closes empty games beyond the first and tops the
// directory back up to one spare empty game, subject to MaxGames
// (spec.md §4.3).
func (s *KnightsServer) runMaintenance() {
	s.mu.Lock()
	defer s.mu.Unlock()

	empty := make([]*session.KnightsGame, 0)
	for _, g := range s.games {
		if g.Info().NumPlayers == 0 && g.Info().NumObservers == 0 {
			empty = append(empty, g)
		}
	}
	for len(empty) > 1 {
		g := empty[len(empty)-1]
		empty = empty[:len(empty)-1]
		delete(s.games, g.Name)
		g.Stop()
		s.broadcastDropGameLocked(g.Name)
	}

	s.ensureInitialGameLocked()
}

func (s *KnightsServer) ensureInitialGameLocked() {
	if len(s.games) >= s.cfg.MaxGames {
		return
	}
	for _, g := range s.games {
		info := g.Info()
		if info.NumPlayers == 0 && info.NumObservers == 0 {
			return
		}
	}
	s.addGameLocked(s.loader.take())
}

func (s *KnightsServer) addGameLocked(name string) *session.KnightsGame {
	if name == "" {
		name = fmt.Sprintf("Game %d", len(s.games)+1)
	}
	g := session.NewGame(name, s.newEngine, s, s.log)
	s.games[name] = g
	g.Start()
	return g
}

// UpdateGame implements session.Broadcaster: fans an UpdateGame message
// out to every connected client.
func (s *KnightsServer) UpdateGame(info protocol.GameInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := wire.NewBuf()
	protocol.EncodeUpdateGame(b, info)
	for _, c := range s.connections {
		c.send(b)
	}
}

// DropGame implements session.Broadcaster.
func (s *KnightsServer) DropGame(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcastDropGameLocked(name)
}

func (s *KnightsServer) broadcastDropGameLocked(name string) {
	b := wire.NewBuf()
	protocol.EncodeDropGame(b, name)
	for _, c := range s.connections {
		c.send(b)
	}
}

// Stats reports the current connection and game counts, e.g. for a
// room-directory registration heartbeat (internal/lobby.Client).
func (s *KnightsServer) Stats() (players, games int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connections), len(s.games)
}

// atCapacity reports whether the server is already at its configured
// MaxPlayers ceiling (spec.md §6); MaxPlayers<=0 means unlimited.
func (s *KnightsServer) atCapacity() bool {
	if s.cfg.MaxPlayers <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connections) > s.cfg.MaxPlayers
}

func (s *KnightsServer) addConnection(conn wire.Connection) *ServerConnection {
	id := s.nextConnID.Add(1)
	sc := newServerConnection(id, conn, s, s.log)
	s.mu.Lock()
	s.connections[id] = sc
	s.mu.Unlock()
	return sc
}

func (s *KnightsServer) removeConnection(c *ServerConnection) {
	s.mu.Lock()
	delete(s.connections, c.id)
	g := c.game
	s.mu.Unlock()
	if g != nil {
		g.SetDisconnected(c.id)
	}
	c.conn.Close()
}

// completeHandshake sends the post-acceptance burst (spec.md §4.3): the
// full player list, full game directory, then connection-accepted;
// existing connections get a player-connected notification.
func (s *KnightsServer) completeHandshake(c *ServerConnection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, other := range s.connections {
		if other == c || other.playerID().Empty() {
			continue
		}
		entry := protocol.PlayerListEntry{ID: other.playerID(), State: protocol.PlayerNormal}
		b := wire.NewBuf()
		protocol.EncodeUpdatePlayer(b, entry)
		c.send(b)
	}
	for _, g := range s.games {
		b := wire.NewBuf()
		protocol.EncodeUpdateGame(b, g.Info())
		c.send(b)
	}

	b := wire.NewBuf()
	protocol.EncodeConnectionAccepted(b, protocol.Current)
	c.send(b)

	id := c.playerID()
	if id.Empty() {
		return
	}
	for _, other := range s.connections {
		if other == c {
			continue
		}
		ob := wire.NewBuf()
		protocol.EncodePlayerConnected(ob, id)
		other.send(ob)
	}
}

// joinGame looks the named game up (or rejects with ErrGameNotFound)
// and admits c as a player or observer.
func (s *KnightsServer) joinGame(c *ServerConnection, name string, splitScreen bool) {
	if splitScreen && !s.cfg.AllowSplitScreen {
		c.sendJoinGameDenied(protocol.ErrSplitScreenNotAllow)
		return
	}

	s.mu.Lock()
	if c.game != nil {
		s.mu.Unlock()
		c.sendError(protocol.ErrAlreadyInGame)
		return
	}
	g, ok := s.games[name]
	s.mu.Unlock()
	if !ok {
		c.sendError(protocol.ErrGameNotFound)
		return
	}

	gc := session.NewGameConnection(c.id, c.playerID(), splitScreen)
	c.mu.Lock()
	c.game = g
	c.gameConn = gc
	c.observer = false
	c.mu.Unlock()

	g.Join(gc, false)
	go c.drainLoop(g)
}

// leaveGame detaches c from its current game, if any.
func (s *KnightsServer) leaveGame(c *ServerConnection) {
	c.mu.Lock()
	g, gc := c.game, c.gameConn
	c.game, c.gameConn = nil, nil
	c.mu.Unlock()
	if g == nil {
		return
	}
	g.LeaveGame(gc.ID)
}
