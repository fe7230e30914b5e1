// Command knightsserver is the dedicated Knights multiplayer
// dungeon-crawl server: it runs the game registry/accept loop
// (internal/gameserver), optionally advertises itself on the LAN
// (internal/discovery), and serves a room-directory HTTP surface
// (internal/lobby), mirroring the teacher repo's single "dedicated game
// server" binary shape.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/sdthompson1/knights-go/internal/discovery"
	"github.com/sdthompson1/knights-go/internal/engine"
	"github.com/sdthompson1/knights-go/internal/engine/refengine"
	"github.com/sdthompson1/knights-go/internal/gameserver"
	"github.com/sdthompson1/knights-go/internal/knlog"
	"github.com/sdthompson1/knights-go/internal/lobby"
	"github.com/sdthompson1/knights-go/internal/protocol"
	"github.com/sdthompson1/knights-go/internal/session"
)

func main() {
	cfg := &cliConfig{}
	if err := newCmd(cfg).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "knightsserver:", err)
		os.Exit(1)
	}
}

func run(_ context.Context, cfg *cliConfig) error {
	if err := loadFileConfig(cfg); err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.verbose {
		level = slog.LevelDebug
	}
	logWriter := io.Writer(os.Stderr)
	if cfg.logFile != "" {
		lf, err := os.OpenFile(cfg.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("opening --log-file %s: %w", cfg.logFile, err)
		}
		defer lf.Close()
		logWriter = lf
	}
	log := knlog.New(logWriter, level)
	if cfg.dataDir != "" {
		log.Debug("knights data directory configured", "dir", cfg.dataDir)
	}

	var newEngine session.EngineFactory = func() engine.GameEngine { return refengine.NewEngine() }

	srv := gameserver.NewServer(gameserver.Config{
		Addr:             cfg.addr,
		Password:         cfg.password,
		MOTD:             cfg.motd,
		MaxGames:         cfg.maxGames,
		MaxPlayers:       cfg.maxPlayers,
		AllowSplitScreen: cfg.splitScreen,
	}, newEngine, log)

	if cfg.discoverable {
		if adv, err := advertise(cfg, log); err != nil {
			log.Warn("LAN discovery disabled", "error", err)
		} else {
			defer adv.Close()
		}
	}

	dir := lobby.NewDirectory(log)
	go serveLobby(dir, log)

	if cfg.roomLookupAddr != "" {
		go registerWithRoomLookup(srv, cfg, log)
	}

	log.Info("knightsserver starting", "addr", cfg.addr)
	return srv.Run()
}

func advertise(cfg *cliConfig, log *slog.Logger) (*discovery.Advertiser, error) {
	host, portStr, err := net.SplitHostPort(cfg.addr)
	if err != nil {
		return nil, fmt.Errorf("parsing --addr for advertisement: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("parsing port from --addr: %w", err)
	}
	if host == "" {
		host = hostname()
	}
	name := cfg.description
	if name == "" {
		name = "Knights Server"
	}
	// players/quest are left at their just-started defaults: zeroconf
	// offers no live TXT-record refresh (see discovery.Advertise), so a
	// server that wants these fresh per-join must be queried over the
	// game protocol port itself rather than through its LAN TXT record.
	txt := []string{
		"version=" + strconv.Itoa(protocol.Current),
		"players=0",
		"quest=",
		"host=" + host,
	}
	adv, err := discovery.Advertise(name, port, txt)
	if err != nil {
		return nil, err
	}
	log.Info("advertising on LAN", "port", port)
	return adv, nil
}

// roomLookupInterval is how often a configured server re-registers
// itself with a central cmd/roomlookup directory, refreshing its
// player count each time.
const roomLookupInterval = 10 * time.Second

// registerWithRoomLookup periodically pushes this server's room entry
// to cfg.roomLookupAddr until the process exits (spec.md §6 LAN+WAN
// room lookup: self-registration rather than the directory polling
// each server back).
func registerWithRoomLookup(srv *gameserver.KnightsServer, cfg *cliConfig, log *slog.Logger) {
	code := cfg.roomCode
	if code == "" {
		code = cfg.description
	}
	if code == "" {
		code = cfg.addr
	}
	client := lobby.NewClient(cfg.roomLookupAddr)

	ticker := time.NewTicker(roomLookupInterval)
	defer ticker.Stop()
	for {
		players, _ := srv.Stats()
		room := lobby.Room{
			Code:       code,
			Name:       cfg.description,
			Addr:       cfg.addr,
			Players:    players,
			MaxPlayers: cfg.maxPlayers,
		}
		if err := client.Register(room); err != nil {
			log.Warn("room-lookup registration failed", "error", err)
		}
		<-ticker.C
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return h
}

// serveLobby runs the room-directory HTTP surface on a fixed companion
// port; failures here are logged but do not bring down the game server.
func serveLobby(dir *lobby.Directory, log *slog.Logger) {
	const lobbyAddr = ":16400"
	log.Info("lobby HTTP surface starting", "addr", lobbyAddr)
	if err := http.ListenAndServe(lobbyAddr, lobby.Handler(dir)); err != nil {
		log.Error("lobby HTTP surface stopped", "error", err)
	}
}
