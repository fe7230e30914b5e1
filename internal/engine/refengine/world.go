package refengine

import (
	"time"

	"github.com/mlange-42/ark/ecs"

	"github.com/sdthompson1/knights-go/internal/engine"
	"github.com/sdthompson1/knights-go/internal/engine/refengine/collision"
	"github.com/sdthompson1/knights-go/internal/protocol"
)

// gfxKnight/gfxMonster are the only graphics the reference engine ever
// emits; real quest rules would draw these from the config-script's
// registries (spec.md §1, out of scope here).
const (
	gfxKnight  uint32 = 100
	gfxMonster uint32 = 200
)

// Engine is the reference GameEngine implementation: a single-room ark
// ECS world with one knight entity per player and one monster,
// advanced deterministically by Update. Filter field names mirror the
// teacher's internal/game/deterministic.go (physicsFilter/playerFilter/
// attackFilter) so the snapshot/restore logic there ports over almost
// unchanged.
type Engine struct {
	world ecs.World

	posMap     ecs.Map1[Position]
	velMap     ecs.Map1[Velocity]
	colMap     ecs.Map1[Collider]
	groundMap  ecs.Map1[Grounded]
	playerMap  ecs.Map1[Player]
	healthMap  ecs.Map1[Health]
	attackMap  ecs.Map1[AttackState]
	monsterMap ecs.Map1[Monster]

	physicsFilter *ecs.Filter4[Position, Velocity, Collider, Grounded]
	playerFilter  *ecs.Filter2[Position, Player]
	attackFilter  *ecs.Filter1[AttackState]

	tiles *collision.TileMap

	entityByPlayer map[int]ecs.Entity
	monsters       []ecs.Entity
	controls       map[int]map[uint8]protocol.ControlRef
	eliminated     map[int]bool
	disconnected   map[int]bool
	won            map[int]bool

	tick uint64
}

var _ engine.GameEngine = (*Engine)(nil)

// NewEngine constructs an empty reference engine; Start populates it.
func NewEngine() *Engine {
	w := ecs.NewWorld()
	e := &Engine{
		world:          w,
		posMap:         ecs.NewMap1[Position](&w),
		velMap:         ecs.NewMap1[Velocity](&w),
		colMap:         ecs.NewMap1[Collider](&w),
		groundMap:      ecs.NewMap1[Grounded](&w),
		playerMap:      ecs.NewMap1[Player](&w),
		healthMap:      ecs.NewMap1[Health](&w),
		attackMap:      ecs.NewMap1[AttackState](&w),
		monsterMap:     ecs.NewMap1[Monster](&w),
		entityByPlayer: make(map[int]ecs.Entity),
		controls:       make(map[int]map[uint8]protocol.ControlRef),
		eliminated:     make(map[int]bool),
		disconnected:   make(map[int]bool),
		won:            make(map[int]bool),
	}
	e.physicsFilter = ecs.NewFilter4[Position, Velocity, Collider, Grounded](&e.world)
	e.playerFilter = ecs.NewFilter2[Position, Player](&e.world)
	e.attackFilter = ecs.NewFilter1[AttackState](&e.world)
	return e
}

// Start spawns one knight per player at a fixed spawn row and one
// monster, snapshotting each player's house colour as required by
// spec.md §4.1 ("on entry the coordinator snapshots house colours").
func (e *Engine) Start(cfg engine.StartConfig) error {
	if cfg.NumPlayers <= 0 {
		return protocol.NewFatalError(protocol.ErrEngineStartFailed)
	}
	e.tiles = DemoLevel()

	spawnX := 2.0
	for n := 0; n < cfg.NumPlayers; n++ {
		ent := e.world.NewEntity()
		colour := uint8(0)
		if n < len(cfg.HouseColours) {
			colour = cfg.HouseColours[n]
		}
		e.posMap.Add(ent, &Position{X: spawnX + float64(n)*2, Y: 1})
		e.velMap.Add(ent, &Velocity{})
		e.colMap.Add(ent, &Collider{Width: 1, Height: 1})
		e.groundMap.Add(ent, &Grounded{})
		e.playerMap.Add(ent, &Player{Num: n, Colour: colour})
		e.healthMap.Add(ent, &Health{Current: 100, Max: 100})
		e.attackMap.Add(ent, &AttackState{})
		e.entityByPlayer[n] = ent
	}

	monster := e.world.NewEntity()
	e.posMap.Add(monster, &Position{X: float64(RoomWidth - 3), Y: 1})
	e.velMap.Add(monster, &Velocity{})
	e.colMap.Add(monster, &Collider{Width: 1, Height: 1})
	e.groundMap.Add(monster, &Grounded{})
	e.healthMap.Add(monster, &Health{Current: 20, Max: 20})
	e.monsterMap.Add(monster, &Monster{Kind: "ogre"})
	e.monsters = append(e.monsters, monster)

	return nil
}

// SetControl records the latest control for a player slot; continuous
// controls persist until overwritten (spec.md §4.1 step 5, "for
// continuous controls, re-inject the last value for the next tick"),
// which falls out naturally since the map simply holds the last value
// seen for that slot until cleared by a release.
func (e *Engine) SetControl(playerNum int, slot uint8, ref protocol.ControlRef, pressed bool) {
	slots, ok := e.controls[playerNum]
	if !ok {
		slots = make(map[uint8]protocol.ControlRef)
		e.controls[playerNum] = slots
	}
	if !pressed {
		delete(slots, slot)
		return
	}
	slots[slot] = ref
}

const (
	gravity  = 9.8
	moveVel  = 3.0
	groundY  = float64(RoomHeight - 2)
)

// Update advances the simulation by delta: applies queued controls as
// velocity, integrates position, clamps each entity to the fixed room
// walls and floor row (the tile map is not consulted), decrements attack
// timers, and
// emits the resulting dungeon-view/mini-map/status output into sinks.
func (e *Engine) Update(delta time.Duration, sinks map[int]*engine.ViewSink) {
	e.tick++
	dt := delta.Seconds()

	query := e.physicsFilter.Query()
	for query.Next() {
		ent := query.Entity()
		pos, vel, col, grounded := query.Get()

		vel.Y += gravity * dt
		pos.X += vel.X * dt
		pos.Y += vel.Y * dt

		e.resolveCollision(ent, pos, vel, col, grounded)
	}
	query.Close()

	controlQuery := e.playerFilter.Query()
	for controlQuery.Next() {
		ent := controlQuery.Entity()
		_, player := controlQuery.Get()
		if e.eliminated[player.Num] {
			continue
		}
		if !e.velMap.Has(ent) {
			continue
		}
		vel := e.velMap.Get(ent)
		vel.X = 0
		for _, ref := range e.controls[player.Num] {
			switch ref.Ordinal {
			case controlLeft:
				vel.X = -moveVel
			case controlRight:
				vel.X = moveVel
			case controlAttack:
				if e.attackMap.Has(ent) {
					atk := e.attackMap.Get(ent)
					if !atk.Attacking {
						atk.Attacking = true
						atk.TicksLeft = AttackDuration
					}
				}
			}
		}
	}
	controlQuery.Close()

	attackQuery := e.attackFilter.Query()
	for attackQuery.Next() {
		_, atk := attackQuery.Get()
		if atk.Attacking {
			atk.TicksLeft--
			if atk.TicksLeft <= 0 {
				atk.Attacking = false
			}
		}
	}
	attackQuery.Close()

	e.resolveCombat()
	e.emitViews(sinks)
}

const (
	controlLeft   uint8 = 1
	controlRight  uint8 = 2
	controlAttack uint8 = 3
)

func (e *Engine) resolveCollision(ent ecs.Entity, pos *Position, vel *Velocity, col *Collider, grounded *Grounded) {
	box := collision.NewAABB(pos.X+col.OffsetX, pos.Y+col.OffsetY, col.Width, col.Height)
	grounded.OnGround = false

	minX, maxX := 1.0, float64(RoomWidth-1)
	if box.X < minX {
		pos.X = minX
		vel.X = 0
	}
	if box.X+box.Width > maxX {
		pos.X = maxX - box.Width
		vel.X = 0
	}

	if pos.Y >= groundY {
		pos.Y = groundY
		vel.Y = 0
		grounded.OnGround = true
	}
}

// resolveCombat applies damage from an attacking knight to any monster
// within one square, and eliminates the monster at zero health. This is
// a deliberately simplistic placeholder for the real config-script
// combat rules (spec.md §1, explicitly out of scope).
func (e *Engine) resolveCombat() {
	attackQuery := e.attackFilter.Query()
	attackers := make(map[ecs.Entity]bool)
	for attackQuery.Next() {
		ent := attackQuery.Entity()
		_, atk := attackQuery.Get()
		if atk.Attacking && atk.TicksLeft == AttackDuration-1 {
			attackers[ent] = true
		}
	}
	attackQuery.Close()
	if len(attackers) == 0 {
		return
	}
	for attacker := range attackers {
		if !e.posMap.Has(attacker) {
			continue
		}
		apos := e.posMap.Get(attacker)
		for _, m := range e.monsters {
			if !e.world.Alive(m) {
				continue
			}
			mpos := e.posMap.Get(m)
			if abs64(apos.X-mpos.X) < 1.5 && abs64(apos.Y-mpos.Y) < 1.5 {
				hp := e.healthMap.Get(m)
				hp.Current -= 10
				if hp.Current <= 0 {
					e.world.RemoveEntity(m)
				}
			}
		}
	}
}

func abs64(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// emitViews writes every room tile once per player per tick (force=false
// lets the dungeon-view diff cache suppress repeats) and each knight's
// position into both the dungeon view and the mini-map.
func (e *Engine) emitViews(sinks map[int]*engine.ViewSink) {
	query := e.playerFilter.Query()
	for query.Next() {
		ent := query.Entity()
		pos, player := query.Get()
		sink, ok := sinks[player.Num]
		if !ok {
			continue
		}
		e.writeRoom(sink)
		x, y := clampCoord(pos.X), clampCoord(pos.Y)
		sink.Dungeon.MoveEntity(sink.Out, uint32(ent.ID()), x, y)
		sink.MiniMap.SetKnightLocation(uint32(ent.ID()), int32(x), int32(y))
		if e.healthMap.Has(ent) {
			hp := e.healthMap.Get(ent)
			sink.Status.Health(sink.Out, hp.Current, hp.Max)
		}
		sink.Dungeon.Flush(sink.Out)
		sink.MiniMap.Flush(sink.Out)
	}
	query.Close()
}

func (e *Engine) writeRoom(sink *engine.ViewSink) {
	sink.Dungeon.SwitchRoom(0)
	for y := 0; y < e.tiles.Height; y++ {
		for x := 0; x < e.tiles.Width; x++ {
			if !e.tiles.IsSolid(x, y) {
				continue
			}
			i := y*e.tiles.Width + x
			sink.Dungeon.SetTile(uint8(x), uint8(y), e.tiles.Depth[i], e.tiles.Gfx[i], 0, false, false)
			sink.MiniMap.SetColour(x, y, 1)
		}
	}
}

func clampCoord(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 15 {
		return 15
	}
	return uint8(v)
}

// TimeToNextUpdate reports a fixed simulation rate (spec.md §4.1 step
// 6); a real engine might vary this with quest-configured tick rates.
func (e *Engine) TimeToNextUpdate() time.Duration {
	return 50 * time.Millisecond
}

// CatchUp re-emits every currently-visible tile and knight position for
// playerNum through sink without mutating simulation state (spec.md
// §4.1 "Catch-up"). Tiles are forced (force=true) since the observer may
// never have seen this room, bypassing the diff cache entirely.
func (e *Engine) CatchUp(playerNum int, sink *engine.ViewSink) {
	sink.Dungeon.SwitchRoom(0)
	for y := 0; y < e.tiles.Height; y++ {
		for x := 0; x < e.tiles.Width; x++ {
			if !e.tiles.IsSolid(x, y) {
				continue
			}
			i := y*e.tiles.Width + x
			sink.Dungeon.SetTile(uint8(x), uint8(y), e.tiles.Depth[i], e.tiles.Gfx[i], 0, false, true)
			sink.MiniMap.SetColour(x, y, 1)
		}
	}
	query := e.playerFilter.Query()
	for query.Next() {
		ent := query.Entity()
		pos, _ := query.Get()
		x, y := clampCoord(pos.X), clampCoord(pos.Y)
		sink.Dungeon.AddEntity(sink.Out, uint32(ent.ID()), gfxKnight, x, y)
		sink.MiniMap.SetKnightLocation(uint32(ent.ID()), int32(x), int32(y))
	}
	query.Close()
	sink.Dungeon.Flush(sink.Out)
	sink.MiniMap.Flush(sink.Out)
}

// PlayerOutcome reports win/lose/still-playing for playerNum.
func (e *Engine) PlayerOutcome(playerNum int) engine.Outcome {
	if e.eliminated[playerNum] {
		return engine.OutcomeLost
	}
	if e.won[playerNum] {
		return engine.OutcomeWon
	}
	if len(e.monsters) > 0 {
		allDead := true
		for _, m := range e.monsters {
			if e.world.Alive(m) {
				allDead = false
				break
			}
		}
		if allDead {
			e.won[playerNum] = true
			return engine.OutcomeWon
		}
	}
	return engine.OutcomeStillPlaying
}

// EliminatePlayer marks playerNum defeated.
func (e *Engine) EliminatePlayer(playerNum int) {
	e.eliminated[playerNum] = true
}

// SetDisconnected marks playerNum's knight disconnected without removing
// it from the simulation, keeping its score visible (spec.md §4.1 step
// 3). The reference engine has nothing extra to track for this beyond
// bookkeeping, since control input for a disconnected player simply
// stops arriving.
func (e *Engine) SetDisconnected(playerNum int) {
	e.disconnected[playerNum] = true
}

// MenuSelection is a no-op stub: the reference engine has no quest-rule
// menu tree, so every selection is accepted and always leaves the quest
// startable. Real config-script-backed engines implement the
// CanStart/Changed semantics in SPEC_FULL.md's "Quest-selection menu
// listeners" supplement.
func (e *Engine) MenuSelection(key, value string) (engine.MenuConstraintResult, error) {
	return engine.MenuConstraintResult{Changed: true, CanStart: true}, nil
}

// RandomQuest is likewise a no-op stub for the reference engine.
func (e *Engine) RandomQuest() (engine.MenuConstraintResult, error) {
	return engine.MenuConstraintResult{Changed: true, CanStart: true}, nil
}
