package world

import (
	"encoding/binary"
	"fmt"

	"github.com/willf/bitset"
)

const chunkFormatVersion = 1

// sectionMaskLocked строит маску непустых секций
func (c *Chunk) sectionMaskLocked() *bitset.BitSet {
	mask := bitset.New(SectionsPerChunk)
	for i, s := range c.sections {
		if s != nil && s.nonAir > 0 {
			mask.Set(uint(i))
		}
	}
	return mask
}

func maskBits(b *bitset.BitSet) uint16 {
	var m uint16
	for i, ok := b.NextSet(0); ok; i, ok = b.NextSet(i + 1) {
		m |= 1 << i
	}
	return m
}

// maskSet обратное к maskBits
func maskSet(m uint16) *bitset.BitSet {
	b := bitset.New(SectionsPerChunk)
	for i := uint(0); i < SectionsPerChunk; i++ {
		if m&(1<<i) != 0 {
			b.Set(i)
		}
	}
	return b
}

// SectionMask возвращает битовую маску непустых секций
func (c *Chunk) SectionMask() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maskBits(c.sectionMaskLocked())
}

// MarshalSections кодирует чанк в тело ChunkData протокола 1.8 (ground-up,
// с небесным светом): блоки всех секций маски в little-endian, затем свет
// блоков, затем небесный свет, затем 256 байт биомов. Возвращает маску,
// данные и номер последнего изменения на момент снимка.
func (c *Chunk) MarshalSections() (uint16, []byte, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bits := c.sectionMaskLocked()
	n := int(bits.Count())
	data := make([]byte, 0, n*(SectionVolume*2+SectionVolume)+len(c.biomes))

	var present []*section
	for i, ok := bits.NextSet(0); ok; i, ok = bits.NextSet(i + 1) {
		present = append(present, c.sections[i])
	}
	for _, s := range present {
		for _, v := range s.blocks {
			data = binary.LittleEndian.AppendUint16(data, v)
		}
	}
	for _, s := range present {
		data = append(data, s.blockLight[:]...)
	}
	for _, s := range present {
		data = append(data, s.skyLight[:]...)
	}
	data = append(data, c.biomes[:]...)
	return maskBits(bits), data, c.log.seq
}

// Encode сериализует чанк для хранения и возвращает номер последнего изменения
// на момент снимка.
func (c *Chunk) Encode() ([]byte, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bits := c.sectionMaskLocked()
	mask := maskBits(bits)
	data := make([]byte, 0, 3+int(bits.Count())*(SectionVolume*3)+len(c.biomes))
	data = append(data, chunkFormatVersion)
	data = binary.BigEndian.AppendUint16(data, mask)
	for i, ok := bits.NextSet(0); ok; i, ok = bits.NextSet(i + 1) {
		s := c.sections[i]
		for _, v := range s.blocks {
			data = binary.BigEndian.AppendUint16(data, v)
		}
		data = append(data, s.blockLight[:]...)
		data = append(data, s.skyLight[:]...)
	}
	data = append(data, c.biomes[:]...)
	return data, c.log.seq
}

// DecodeChunk восстанавливает чанк из формата Encode
func DecodeChunk(coord ChunkCoord, data []byte) (*Chunk, error) {
	if len(data) < 3 {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadChunkData, len(data))
	}
	if data[0] != chunkFormatVersion {
		return nil, fmt.Errorf("%w: version %d", ErrBadChunkData, data[0])
	}
	bits := maskSet(binary.BigEndian.Uint16(data[1:3]))
	data = data[3:]

	c := NewChunk(coord)
	const sectionBytes = SectionVolume*2 + SectionVolume
	if want := int(bits.Count())*sectionBytes + len(c.biomes); len(data) != want {
		return nil, fmt.Errorf("%w: %d bytes for %d sections, want %d",
			ErrBadChunkData, len(data), bits.Count(), want)
	}
	for i, ok := bits.NextSet(0); ok; i, ok = bits.NextSet(i + 1) {
		s := &section{}
		for j := range s.blocks {
			v := binary.BigEndian.Uint16(data[j*2:])
			s.blocks[j] = v
			if v>>4 != 0 {
				s.nonAir++
			}
		}
		data = data[SectionVolume*2:]
		copy(s.blockLight[:], data)
		copy(s.skyLight[:], data[SectionVolume/2:])
		data = data[SectionVolume:]
		c.sections[i] = s
	}
	copy(c.biomes[:], data)
	return c, nil
}
