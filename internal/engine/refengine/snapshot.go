package refengine

import (
	"github.com/cespare/xxhash/v2"
	"github.com/mlange-42/ark/ecs"
)

// EntityState captures one entity's full component set for
// snapshot/restore, adapted from the teacher's internal/game/
// deterministic.go EntityState.
type EntityState struct {
	Entity    ecs.Entity
	Position  Position
	Velocity  Velocity
	Grounded  Grounded
	HasPlayer bool
	Player    Player
	HasHealth bool
	Health    Health
	HasAttack bool
	Attack    AttackState
}

// WorldState is a complete snapshot of the reference engine's world,
// used by internal/migration's leader/follower replication (spec.md
// §4.6, §6 VMMemoryBlock) to compare and resync state across hosts.
// Checksum uses xxhash instead of the teacher's fnv32a, matching
// spec.md's 64-bit hash requirement for VMMemoryBlock entries.
type WorldState struct {
	Tick     uint64
	Entities []EntityState
	Checksum uint64
}

// Snapshot captures the current world state.
func (e *Engine) Snapshot() WorldState {
	state := WorldState{
		Tick:     e.tick,
		Entities: make([]EntityState, 0),
	}

	query := e.physicsFilter.Query()
	for query.Next() {
		entity := query.Entity()
		pos, vel, _, grounded := query.Get()

		es := EntityState{
			Entity:   entity,
			Position: *pos,
			Velocity: *vel,
			Grounded: *grounded,
		}
		if e.playerMap.Has(entity) {
			es.HasPlayer = true
			es.Player = *e.playerMap.Get(entity)
		}
		if e.healthMap.Has(entity) {
			es.HasHealth = true
			es.Health = *e.healthMap.Get(entity)
		}
		if e.attackMap.Has(entity) {
			es.HasAttack = true
			es.Attack = *e.attackMap.Get(entity)
		}

		state.Entities = append(state.Entities, es)
	}
	query.Close()

	state.Checksum = state.computeChecksum()
	return state
}

// Restore applies a saved world state, rolling the engine back to that
// point in time. Used by the replicated mode's desync-recovery path
// (spec.md §4.6) and by deterministic replay tests.
func (e *Engine) Restore(state WorldState) {
	e.tick = state.Tick

	for _, es := range state.Entities {
		if !e.world.Alive(es.Entity) {
			continue
		}
		if e.posMap.Has(es.Entity) {
			*e.posMap.Get(es.Entity) = es.Position
		}
		if e.velMap.Has(es.Entity) {
			*e.velMap.Get(es.Entity) = es.Velocity
		}
		if e.groundMap.Has(es.Entity) {
			*e.groundMap.Get(es.Entity) = es.Grounded
		}
		if es.HasHealth && e.healthMap.Has(es.Entity) {
			*e.healthMap.Get(es.Entity) = es.Health
		}
		if es.HasAttack && e.attackMap.Has(es.Entity) {
			*e.attackMap.Get(es.Entity) = es.Attack
		}
	}
}

// computeChecksum hashes the tick counter and every entity's position,
// grounded flag, and health into a single 64-bit value cheap enough to
// compare every tick (spec.md §6's "per-tick checksum" desync check).
func (state *WorldState) computeChecksum() uint64 {
	h := xxhash.New()

	var tickBuf [8]byte
	putUint64LE(tickBuf[:], state.Tick)
	h.Write(tickBuf[:])

	for _, es := range state.Entities {
		var buf [18]byte
		putUint64LE(buf[0:8], uint64(int64(es.Position.X*1000)))
		putUint64LE(buf[8:16], uint64(int64(es.Position.Y*1000)))
		if es.Grounded.OnGround {
			buf[16] = 1
		}
		if es.HasHealth {
			buf[17] = byte(es.Health.Current)
		}
		h.Write(buf[:])
	}

	return h.Sum64()
}

func putUint64LE(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// StatesMatch compares two world states for equivalence within a
// floating-point tolerance, falling back to a full per-entity compare
// only when the cheap checksum disagrees.
func StatesMatch(a, b *WorldState, tolerance float64) bool {
	if a.Checksum == b.Checksum {
		return true
	}
	if len(a.Entities) != len(b.Entities) {
		return false
	}
	for i := range a.Entities {
		ea, eb := &a.Entities[i], &b.Entities[i]
		if absDiff(ea.Position.X, eb.Position.X) > tolerance {
			return false
		}
		if absDiff(ea.Position.Y, eb.Position.Y) > tolerance {
			return false
		}
		if ea.Grounded.OnGround != eb.Grounded.OnGround {
			return false
		}
	}
	return true
}

func absDiff(a, b float64) float64 {
	d := a - b
	if d < 0 {
		return -d
	}
	return d
}
