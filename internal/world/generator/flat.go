// Package generator содержит провайдеры чанков: плоский мир и ландшафт
// на шуме Перлина. Оба детерминированы по сиду.
package generator

import (
	"context"

	"github.com/annel0/mc-server/internal/world"
)

// Flat генерирует плоский мир из одинаковых слоёв
type Flat struct {
	Layers []world.BlockState // снизу вверх, начиная с y=0
	Biome  byte
}

// NewFlat создаёт классический плоский мир: бедрок, два слоя земли, трава
func NewFlat() *Flat {
	return &Flat{
		Layers: []world.BlockState{world.Bedrock, world.Dirt, world.Dirt, world.Grass},
		Biome:  world.BiomePlains,
	}
}

// SurfaceY возвращает высоту, на которой стоит игрок
func (f *Flat) SurfaceY() int { return len(f.Layers) }

// Provide реализует world.ChunkProvider
func (f *Flat) Provide(_ context.Context, coord world.ChunkCoord) (*world.Chunk, error) {
	c := world.NewChunk(coord)
	for x := 0; x < world.ChunkSize; x++ {
		for z := 0; z < world.ChunkSize; z++ {
			for y, st := range f.Layers {
				if y >= world.WorldHeight {
					break
				}
				c.Set(x, y, z, st)
			}
			c.SetBiome(x, z, f.Biome)
		}
	}
	return c, nil
}
