// Package lobby implements the room-directory HTTP surface: a short
// room-code maps to a joinable game's address, listable over plain
// HTTP and pushed live to subscribers over a websocket, the same shape
// as the teacher's room-code lookup service generalized from a single
// static page to a registry with live add/remove events (spec.md §6
// "resource path format" / LAN+WAN room lookup).
package lobby

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

// Room is one advertised, joinable game.
type Room struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Addr      string    `json:"addr"`
	Players   int       `json:"players"`
	MaxPlayers int      `json:"max_players"`
	CreatedAt time.Time `json:"created_at"`
}

// Directory is the in-memory room-code registry; entries are lost on
// process restart (matches spec.md's "no persistence beyond process
// lifetime" Non-goal).
type Directory struct {
	log *slog.Logger

	mu    sync.Mutex
	rooms map[string]Room
	subs  map[chan Event]struct{}
}

// Event is pushed to every websocket subscriber whenever the directory
// changes.
type Event struct {
	Type string `json:"type"` // "add", "update", or "remove"
	Room Room   `json:"room"`
}

// NewDirectory builds an empty room directory.
func NewDirectory(log *slog.Logger) *Directory {
	return &Directory{
		log:   log,
		rooms: make(map[string]Room),
		subs:  make(map[chan Event]struct{}),
	}
}

// Put inserts or replaces a room entry, publishing the corresponding
// event to every live subscriber.
func (d *Directory) Put(r Room) {
	d.mu.Lock()
	_, existed := d.rooms[r.Code]
	d.rooms[r.Code] = r
	d.mu.Unlock()

	evType := "add"
	if existed {
		evType = "update"
	}
	d.publish(Event{Type: evType, Room: r})
}

// Remove drops a room entry, publishing a "remove" event.
func (d *Directory) Remove(code string) {
	d.mu.Lock()
	r, ok := d.rooms[code]
	delete(d.rooms, code)
	d.mu.Unlock()
	if !ok {
		return
	}
	d.publish(Event{Type: "remove", Room: r})
}

// List returns a snapshot of every currently advertised room.
func (d *Directory) List() []Room {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Room, 0, len(d.rooms))
	for _, r := range d.rooms {
		out = append(out, r)
	}
	return out
}

func (d *Directory) publish(ev Event) {
	d.mu.Lock()
	subs := make([]chan Event, 0, len(d.subs))
	for ch := range d.subs {
		subs = append(subs, ch)
	}
	d.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber: drop rather than block the publisher.
		}
	}
}

func (d *Directory) subscribe() chan Event {
	ch := make(chan Event, 32)
	d.mu.Lock()
	d.subs[ch] = struct{}{}
	d.mu.Unlock()
	return ch
}

func (d *Directory) unsubscribe(ch chan Event) {
	d.mu.Lock()
	delete(d.subs, ch)
	d.mu.Unlock()
	close(ch)
}

// Client pushes this process's own room entry to a directory served
// elsewhere (spec.md §6 LAN+WAN room lookup: a dedicated game server
// registers itself with a centrally-run cmd/roomlookup instance rather
// than serving its own directory).
type Client struct {
	baseAddr string
	http     *http.Client
}

// NewClient targets the directory HTTP surface listening at addr
// (host:port, no scheme).
func NewClient(addr string) *Client {
	return &Client{baseAddr: addr, http: &http.Client{Timeout: 5 * time.Second}}
}

// Register upserts room in the remote directory.
func (c *Client) Register(room Room) error {
	body, err := json.Marshal(room)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("http://%s/rooms/%s", c.baseAddr, room.Code)
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("lobby: register %s: %s", room.Code, resp.Status)
	}
	return nil
}

// Unregister removes this process's room entry, e.g. on clean shutdown.
func (c *Client) Unregister(code string) error {
	url := fmt.Sprintf("http://%s/rooms/%s", c.baseAddr, code)
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("lobby: unregister %s: %s", code, resp.Status)
	}
	return nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler builds the httprouter-backed HTTP handler exposing the
// directory: GET /rooms lists the current snapshot as JSON, GET /watch
// upgrades to a websocket that streams Events as they happen.
func Handler(d *Directory) http.Handler {
	mux := httprouter.New()

	mux.GET("/rooms", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(d.List())
	})

	mux.PUT("/rooms/:code", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		var room Room
		if err := json.NewDecoder(r.Body).Decode(&room); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		room.Code = p.ByName("code")
		d.Put(room)
		w.WriteHeader(http.StatusNoContent)
	})

	mux.DELETE("/rooms/:code", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		d.Remove(p.ByName("code"))
		w.WriteHeader(http.StatusNoContent)
	})

	mux.GET("/watch", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			d.log.Warn("lobby websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		ch := d.subscribe()
		defer d.unsubscribe(ch)

		for ev := range ch {
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	})

	return mux
}
