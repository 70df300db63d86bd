package world

import (
	"fmt"

	"github.com/annel0/mc-server/internal/protocol/codec"
)

const (
	ChunkSize        = 16
	SectionHeight    = 16
	SectionsPerChunk = 16
	WorldHeight      = SectionHeight * SectionsPerChunk
	SectionVolume    = ChunkSize * ChunkSize * SectionHeight
)

// ChunkCoord координаты колонки чанка
type ChunkCoord struct {
	X, Z int32
}

func (c ChunkCoord) String() string { return fmt.Sprintf("[%d,%d]", c.X, c.Z) }

// Distance возвращает расстояние Чебышёва между чанками
func (c ChunkCoord) Distance(o ChunkCoord) int32 {
	dx, dz := abs32(c.X-o.X), abs32(c.Z-o.Z)
	if dx > dz {
		return dx
	}
	return dz
}

// Origin блок с минимальными координатами в чанке на высоте y
func (c ChunkCoord) Origin(y int32) BlockPos {
	return BlockPos{X: c.X * ChunkSize, Y: y, Z: c.Z * ChunkSize}
}

// BlockPos мировые координаты блока. Y в [0, WorldHeight).
type BlockPos struct {
	X, Y, Z int32
}

func (p BlockPos) String() string { return fmt.Sprintf("(%d,%d,%d)", p.X, p.Y, p.Z) }

// Chunk возвращает координаты чанка, содержащего блок (деление с округлением вниз).
func (p BlockPos) Chunk() ChunkCoord {
	return ChunkCoord{X: p.X >> 4, Z: p.Z >> 4}
}

// Local возвращает координаты блока внутри чанка
func (p BlockPos) Local() (x, y, z int) {
	return int(p.X & 15), int(p.Y), int(p.Z & 15)
}

// InBounds проверяет высоту
func (p BlockPos) InBounds() bool { return p.Y >= 0 && p.Y < WorldHeight }

// Offset сдвигает позицию на грань face (0..5: -Y, +Y, -Z, +Z, -X, +X)
func (p BlockPos) Offset(face int8) BlockPos {
	switch face {
	case 0:
		p.Y--
	case 1:
		p.Y++
	case 2:
		p.Z--
	case 3:
		p.Z++
	case 4:
		p.X--
	case 5:
		p.X++
	}
	return p
}

// Wire переводит позицию в упакованный формат протокола
func (p BlockPos) Wire() codec.Position { return codec.Position{X: p.X, Y: p.Y, Z: p.Z} }

// PosFromWire обратное к Wire
func PosFromWire(p codec.Position) BlockPos { return BlockPos{X: p.X, Y: p.Y, Z: p.Z} }

// ChunkOfPoint возвращает чанк для вещественной точки мира
func ChunkOfPoint(x, z float64) ChunkCoord {
	return ChunkCoord{X: floorDiv16(x), Z: floorDiv16(z)}
}

func floorDiv16(v float64) int32 {
	i := int32(v)
	if float64(i) > v {
		i--
	}
	return i >> 4
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
