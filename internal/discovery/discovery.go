// Package discovery implements LAN server discovery (spec.md §6,
// confirmed against `original_source/src/server/mdns_discovery.cpp`:
// duplicate-question suppression, an immediate goodbye packet on
// shutdown, and TTL-based expiry of stale entries) on top of
// github.com/grandcat/zeroconf, which already implements RFC 6762 for
// us rather than this package reimplementing mDNS.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the mDNS/DNS-SD service type Knights servers advertise
// themselves under (spec.md §6: "_knights._udp.local.").
const ServiceType = "_knights._udp"

// Advertiser publishes this server's presence on the LAN until Close is
// called, at which point zeroconf emits the RFC 6762 goodbye packet
// (TTL=0 record) so peers drop the entry immediately instead of waiting
// out its TTL.
type Advertiser struct {
	server *zeroconf.Server
}

// Advertise registers a Knights server instance. name is the
// user-visible server name (shown in LAN browse lists); port is the
// game-protocol TCP port; text carries short key=value metadata (e.g.
// player count, MOTD) refreshed by calling Advertise again is not
// supported by zeroconf, so callers needing live updates should instead
// keep text minimal and let clients query the game-protocol port for
// anything that changes often.
func Advertise(name string, port int, text []string) (*Advertiser, error) {
	srv, err := zeroconf.Register(name, ServiceType, "local.", port, text, nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: register: %w", err)
	}
	return &Advertiser{server: srv}, nil
}

// Close stops advertising, sending the goodbye packet.
func (a *Advertiser) Close() {
	if a.server != nil {
		a.server.Shutdown()
	}
}

// Server is one discovered Knights server on the LAN.
type Server struct {
	Name string
	Host string
	Port int
	Text []string
}

// Browse discovers Knights servers on the LAN for timeout, calling
// onFound for each one as it appears. Entries that send a goodbye
// packet or whose TTL lapses are simply dropped by zeroconf's resolver
// without ever reaching onFound again; this package does not maintain
// its own duplicate/expiry bookkeeping on top of that.
func Browse(ctx context.Context, timeout time.Duration, log *slog.Logger, onFound func(Server)) error {
	resolver, err := zeroconf.NewResolver()
	if err != nil {
		return fmt.Errorf("discovery: resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry, 16)
	go func() {
		for e := range entries {
			host := e.HostName
			if len(e.AddrIPv4) > 0 {
				host = e.AddrIPv4[0].String()
			}
			onFound(Server{Name: e.Instance, Host: host, Port: e.Port, Text: e.Text})
		}
	}()

	browseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := resolver.Browse(browseCtx, ServiceType, "local.", entries); err != nil {
		return fmt.Errorf("discovery: browse: %w", err)
	}
	<-browseCtx.Done()
	log.Debug("lan discovery scan finished")
	return nil
}
