package world

import (
	"sync"
	"time"
)

// BiomePlains биом по умолчанию
const BiomePlains = 1

type section struct {
	blocks     [SectionVolume]uint16 // wire-форма: id<<4 | meta
	nonAir     int
	blockLight [SectionVolume / 2]byte
	skyLight   [SectionVolume / 2]byte
}

func newSection() *section {
	s := &section{}
	for i := range s.skyLight {
		s.skyLight[i] = 0xFF
	}
	return s
}

// порядок протокола 1.8: y, затем z, затем x
func blockIndex(x, y, z int) int { return (y&15)<<8 | z<<4 | x }

func (s *section) get(i int) BlockState { return StateFromWire(int32(s.blocks[i])) }

func (s *section) set(i int, st BlockState) BlockState {
	old := s.get(i)
	s.blocks[i] = uint16(st.Wire())
	switch {
	case old.IsAir() && !st.IsAir():
		s.nonAir++
	case !old.IsAir() && st.IsAir():
		s.nonAir--
	}
	light := uint8(0)
	if info, ok := st.Info(); ok {
		light = info.Light
	}
	setNibble(s.blockLight[:], i, light)
	return old
}

func setNibble(arr []byte, i int, v uint8) {
	if i&1 == 0 {
		arr[i>>1] = arr[i>>1]&0xF0 | v&0x0F
	} else {
		arr[i>>1] = arr[i>>1]&0x0F | v<<4
	}
}

func nibble(arr []byte, i int) uint8 {
	if i&1 == 0 {
		return arr[i>>1] & 0x0F
	}
	return arr[i>>1] >> 4
}

// Chunk колонка 16×256×16 блоков: 16 секций (nil значит секция из воздуха),
// освещение, биомы и журнал изменений. Все поля защищены mu; запись блоков
// идёт только через Store.SetBlock.
type Chunk struct {
	Coord ChunkCoord

	mu          sync.Mutex
	sections    [SectionsPerChunk]*section
	biomes      [ChunkSize * ChunkSize]byte
	log         changeLog
	subscribers int
	lastTouch   time.Time
	savedSeq    uint64
	evicted     bool
}

// NewChunk создаёт пустой чанк с указанными координатами
func NewChunk(coord ChunkCoord) *Chunk {
	c := &Chunk{Coord: coord, log: newChangeLog(DefaultChangeLogSize)}
	for i := range c.biomes {
		c.biomes[i] = BiomePlains
	}
	return c
}

// Block возвращает блок по локальным координатам
func (c *Chunk) Block(x, y, z int) BlockState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blockLocked(x, y, z)
}

func (c *Chunk) blockLocked(x, y, z int) BlockState {
	s := c.sections[y>>4]
	if s == nil {
		return Air
	}
	return s.get(blockIndex(x, y, z))
}

// Set заполняет блок без записи в журнал. Предназначен для провайдеров,
// пока чанк ещё не попал в хранилище.
func (c *Chunk) Set(x, y, z int, st BlockState) {
	c.mu.Lock()
	c.putLocked(x, y, z, st)
	c.mu.Unlock()
}

func (c *Chunk) putLocked(x, y, z int, st BlockState) BlockState {
	s := c.sections[y>>4]
	if s == nil {
		if st.IsAir() {
			return Air
		}
		s = newSection()
		c.sections[y>>4] = s
	}
	return s.set(blockIndex(x, y, z), st)
}

// setLocked единственный путь изменения опубликованного чанка.
// Запись в выгруженный чанк означает нарушение инварианта хранилища.
func (c *Chunk) setLocked(pos BlockPos, st BlockState, now time.Time) BlockState {
	if c.evicted {
		panic("world: write to evicted chunk " + c.Coord.String())
	}
	x, y, z := pos.Local()
	old := c.putLocked(x, y, z, st)
	c.log.append(pos, st)
	c.lastTouch = now
	return old
}

// BlockLight возвращает уровень света от блоков
func (c *Chunk) BlockLight(x, y, z int) uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.sections[y>>4]
	if s == nil {
		return 0
	}
	return nibble(s.blockLight[:], blockIndex(x, y, z))
}

// SkyLight возвращает уровень небесного света
func (c *Chunk) SkyLight(x, y, z int) uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.sections[y>>4]
	if s == nil {
		return 15
	}
	return nibble(s.skyLight[:], blockIndex(x, y, z))
}

// SetBiome задаёт биом столбца
func (c *Chunk) SetBiome(x, z int, biome byte) {
	c.mu.Lock()
	c.biomes[z<<4|x] = biome
	c.mu.Unlock()
}

// Biome возвращает биом столбца
func (c *Chunk) Biome(x, z int) byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.biomes[z<<4|x]
}

// Subscribers возвращает число подписанных сессий
func (c *Chunk) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribers
}

// LastSeq возвращает номер последнего изменения
func (c *Chunk) LastSeq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.log.seq
}

// Changes возвращает изменения после курсора и новый курсор
func (c *Chunk) Changes(cursor uint64) ([]Change, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.log.since(cursor)
}

// HighestBlock возвращает Y самого верхнего непустого блока столбца или -1
func (c *Chunk) HighestBlock(x, z int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	for y := WorldHeight - 1; y >= 0; y-- {
		if !c.blockLocked(x, y, z).IsAir() {
			return y
		}
	}
	return -1
}

// unsavedLocked сообщает, есть ли изменения после последнего сохранения
func (c *Chunk) unsavedLocked() bool { return c.log.seq != c.savedSeq }

func (c *Chunk) markSaved(seq uint64) {
	c.mu.Lock()
	if seq > c.savedSeq {
		c.savedSeq = seq
	}
	c.mu.Unlock()
}
