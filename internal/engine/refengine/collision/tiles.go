// Package collision implements the reference engine's tile/AABB
// collision detection, adapted from the teacher's internal/collision
// package (aabb.go, tiles.go) unchanged in approach: tile-based world
// geometry, AABB for entity-entity interactions.
package collision

// TileFlag represents collision properties of a tile.
type TileFlag uint8

const (
	TileEmpty    TileFlag = 0
	TileSolid    TileFlag = 1 << iota // Blocks movement from all directions
	TilePlatform                      // Blocks from below only (pass-through)
	TileHazard                        // Damages on contact
	TileLadder                        // Allows climbing
	TileWater                         // Slows movement, allows swimming
)

// TileMap holds collision data for one room of the reference dungeon.
type TileMap struct {
	Width  int
	Height int
	Tiles  []TileFlag
	// Depth and Gfx give the reference engine something concrete to
	// feed into the dungeon-view encoder's SetTile calls.
	Depth []int8
	Gfx   []uint32
}

// NewTileMap creates a tile map with given dimensions, bounded to the
// dungeon-view wire format's 0..15 nibble coordinate range per room.
func NewTileMap(width, height int) *TileMap {
	if width > 16 {
		width = 16
	}
	if height > 16 {
		height = 16
	}
	return &TileMap{
		Width:  width,
		Height: height,
		Tiles:  make([]TileFlag, width*height),
		Depth:  make([]int8, width*height),
		Gfx:    make([]uint32, width*height),
	}
}

func (m *TileMap) idx(x, y int) int { return y*m.Width + x }

// Get returns the tile flag at the given position.
func (m *TileMap) Get(x, y int) TileFlag {
	if x < 0 || x >= m.Width || y < 0 || y >= m.Height {
		return TileSolid // Out of bounds = solid
	}
	return m.Tiles[m.idx(x, y)]
}

// Set sets the tile flag, depth, and graphic id at the given position.
func (m *TileMap) Set(x, y int, flag TileFlag, depth int8, gfx uint32) {
	if x < 0 || x >= m.Width || y < 0 || y >= m.Height {
		return
	}
	i := m.idx(x, y)
	m.Tiles[i] = flag
	m.Depth[i] = depth
	m.Gfx[i] = gfx
}

// IsSolid checks if the tile blocks movement.
func (m *TileMap) IsSolid(x, y int) bool {
	return m.Get(x, y)&TileSolid != 0
}

// IsPlatform checks if the tile is a pass-through platform.
func (m *TileMap) IsPlatform(x, y int) bool {
	return m.Get(x, y)&TilePlatform != 0
}
