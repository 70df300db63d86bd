package generator

import (
	"context"
	"math/rand"

	"github.com/annel0/mc-server/internal/world"
	"github.com/annel0/mc-server/internal/world/block"
	"github.com/aquilax/go-perlin"
)

// Биомы протокола 1.8
const (
	BiomeOcean     byte = 0
	BiomePlains    byte = 1
	BiomeDesert    byte = 2
	BiomeMountains byte = 3
	BiomeForest    byte = 4
)

// Perlin генерирует холмистый ландшафт по карте высот из шума Перлина
type Perlin struct {
	Seed          int64
	NoiseScale    float64 // масштаб шума высот
	BiomeScale    float64 // масштаб шума биомов
	BaseHeight    int
	Amplitude     float64
	SeaLevel      int
	ForestDensity float64 // шанс дерева на столбец в лесу

	height *perlin.Perlin
	biome  *perlin.Perlin
}

// NewPerlin создаёт генератор с настройками по умолчанию
func NewPerlin(seed int64) *Perlin {
	const (
		alpha   = 2.0 // сглаживание
		beta    = 2.0 // частота
		octaves = 3
	)
	return &Perlin{
		Seed:          seed,
		NoiseScale:    0.01,
		BiomeScale:    0.004,
		BaseHeight:    64,
		Amplitude:     24,
		SeaLevel:      62,
		ForestDensity: 0.02,
		height:        perlin.NewPerlin(alpha, beta, octaves, seed),
		biome:         perlin.NewPerlin(alpha, beta, octaves, seed+42),
	}
}

// HeightAt возвращает высоту поверхности в мировых координатах столбца
func (p *Perlin) HeightAt(x, z int32) int {
	n := p.height.Noise2D(float64(x)*p.NoiseScale, float64(z)*p.NoiseScale)
	h := p.BaseHeight + int(n*2*p.Amplitude)
	if h < 1 {
		h = 1
	}
	if h > world.WorldHeight-8 {
		h = world.WorldHeight - 8
	}
	return h
}

// BiomeAt определяет биом по высоте и шуму биомов
func (p *Perlin) BiomeAt(x, z int32, height int) byte {
	if height < p.SeaLevel {
		return BiomeOcean
	}
	if height > p.BaseHeight+int(p.Amplitude*0.6) {
		return BiomeMountains
	}
	v := p.biome.Noise2D(float64(x)*p.BiomeScale, float64(z)*p.BiomeScale)
	switch {
	case v < -0.15:
		return BiomeDesert
	case v > 0.15:
		return BiomeForest
	}
	return BiomePlains
}

// Provide реализует world.ChunkProvider
func (p *Perlin) Provide(_ context.Context, coord world.ChunkCoord) (*world.Chunk, error) {
	c := world.NewChunk(coord)

	// Отдельный ГСЧ на чанк, чтобы результат не зависел от порядка генерации
	rng := rand.New(rand.NewSource(p.Seed + int64(coord.X)*341873128712 + int64(coord.Z)*132897987541))

	origin := coord.Origin(0)
	for x := 0; x < world.ChunkSize; x++ {
		for z := 0; z < world.ChunkSize; z++ {
			wx, wz := origin.X+int32(x), origin.Z+int32(z)
			h := p.HeightAt(wx, wz)
			biome := p.BiomeAt(wx, wz, h)
			c.SetBiome(x, z, biome)

			top, filler := surfaceFor(biome)
			c.Set(x, 0, z, world.Bedrock)
			for y := 1; y < h-3; y++ {
				c.Set(x, y, z, world.Stone)
			}
			for y := max(1, h-3); y < h; y++ {
				c.Set(x, y, z, filler)
			}
			c.Set(x, h, z, top)
			for y := h + 1; y <= p.SeaLevel; y++ {
				c.Set(x, y, z, world.Water)
			}

			if biome == BiomeForest && x >= 2 && x <= 13 && z >= 2 && z <= 13 && rng.Float64() < p.ForestDensity {
				placeTree(c, x, h+1, z, 4+rng.Intn(2))
			}
		}
	}
	return c, nil
}

func surfaceFor(biome byte) (top, filler world.BlockState) {
	switch biome {
	case BiomeDesert:
		return world.Sand, world.Sand
	case BiomeOcean:
		return world.NewBlockState(block.Gravel, 0), world.Dirt
	case BiomeMountains:
		return world.Stone, world.Stone
	}
	return world.Grass, world.Dirt
}

// placeTree ставит ствол и крону. Дерево целиком помещается в чанк.
func placeTree(c *world.Chunk, x, y, z, height int) {
	if y+height+1 >= world.WorldHeight {
		return
	}
	leaves := world.NewBlockState(block.Leaves, 0)
	for dy := height - 2; dy <= height+1; dy++ {
		r := 2
		if dy >= height {
			r = 1
		}
		for dx := -r; dx <= r; dx++ {
			for dz := -r; dz <= r; dz++ {
				if c.Block(x+dx, y+dy, z+dz).IsAir() {
					c.Set(x+dx, y+dy, z+dz, leaves)
				}
			}
		}
	}
	log := world.NewBlockState(block.Log, 0)
	for dy := 0; dy < height; dy++ {
		c.Set(x, y+dy, z, log)
	}
}
