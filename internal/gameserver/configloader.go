package gameserver

import (
	"strconv"

	"github.com/sdthompson1/knights-go/internal/session"
)

// configLoader keeps exactly one warm, ready-to-hand-off game name
// prepared on a dedicated goroutine, since configuration loading is
// expensive and must not block the top-level accept/maintenance loop
// (spec.md §4.3 "Configuration loading is expensive and is therefore
// performed on a dedicated loader that keeps exactly one warm
// configuration ready for immediate handoff"). The real per-quest
// config parse/compile step belongs to the GameEngine/config-script
// boundary (out of this package's scope); what this loader guarantees
// is the single-producer/single-slot handoff discipline around it.
type configLoader struct {
	newEngine session.EngineFactory
	ready     chan string
	seq       uint64 // touched only by run's goroutine
	quit      chan struct{}
}

func newConfigLoader(newEngine session.EngineFactory) *configLoader {
	return &configLoader{
		newEngine: newEngine,
		ready:     make(chan string, 1),
		quit:      make(chan struct{}),
	}
}

func (l *configLoader) start() {
	go l.run()
}

func (l *configLoader) stop() {
	close(l.quit)
}

func (l *configLoader) run() {
	for {
		l.seq++
		name := "Game " + strconv.FormatUint(l.seq, 10)
		select {
		case l.ready <- name:
		case <-l.quit:
			return
		}
	}
}

// take hands off the currently-warm name, blocking until the loader has
// one ready.
func (l *configLoader) take() string {
	select {
	case name := <-l.ready:
		return name
	case <-l.quit:
		return ""
	}
}
