package refengine

import "github.com/sdthompson1/knights-go/internal/engine/refengine/collision"

// DemoLevel builds a simple fixed test room: floor, walls, a couple of
// platforms and one obstacle, matching the teacher's
// internal/game/level.go DemoLevel generator, adapted to RoomWidth x
// RoomHeight instead of an arbitrary terminal viewport (dungeon-view
// squares are bounded to a 0..15 nibble per axis).
func DemoLevel() *collision.TileMap {
	tm := collision.NewTileMap(RoomWidth, RoomHeight)

	for x := 0; x < RoomWidth; x++ {
		tm.Set(x, RoomHeight-1, collision.TileSolid, 0, floorGfx)
	}
	for y := 0; y < RoomHeight; y++ {
		tm.Set(0, y, collision.TileSolid, 0, wallGfx)
		tm.Set(RoomWidth-1, y, collision.TileSolid, 0, wallGfx)
	}
	for x := 5; x < 10; x++ {
		tm.Set(x, RoomHeight-5, collision.TileSolid, 1, platformGfx)
	}
	tm.Set(8, RoomHeight-2, collision.TileSolid, 0, obstacleGfx)

	return tm
}

const (
	floorGfx    uint32 = 1
	wallGfx     uint32 = 2
	platformGfx uint32 = 3
	obstacleGfx uint32 = 4
)
