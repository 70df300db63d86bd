package world

import (
	"fmt"

	"github.com/annel0/mc-server/internal/world/block"
)

// BlockState тип блока и его вариант (ориентация, цвет). Значение неизменяемо,
// запись блока заменяет его целиком.
type BlockState struct {
	ID   block.ID
	Meta uint8
}

var (
	Air         = BlockState{}
	Stone       = BlockState{ID: block.Stone}
	Grass       = BlockState{ID: block.Grass}
	Dirt        = BlockState{ID: block.Dirt}
	Bedrock     = BlockState{ID: block.Bedrock}
	Water       = BlockState{ID: block.Water}
	Sand        = BlockState{ID: block.Sand}
	Cobblestone = BlockState{ID: block.Cobblestone}
)

// NewBlockState собирает состояние блока
func NewBlockState(id block.ID, meta uint8) BlockState {
	return BlockState{ID: id, Meta: meta & 0x0F}
}

// Wire возвращает форму для протокола: id<<4 | meta
func (s BlockState) Wire() int32 { return int32(s.ID)<<4 | int32(s.Meta&0x0F) }

// StateFromWire обратное к Wire
func StateFromWire(v int32) BlockState {
	return BlockState{ID: block.ID(uint32(v) >> 4), Meta: uint8(v & 0x0F)}
}

// IsAir сообщает, что блок пуст
func (s BlockState) IsAir() bool { return s.ID == block.Air }

// Info возвращает описание типа из таблицы блоков
func (s BlockState) Info() (block.Info, bool) { return block.Get(s.ID) }

func (s BlockState) String() string {
	if info, ok := s.Info(); ok {
		if s.Meta != 0 {
			return fmt.Sprintf("%s:%d", info.Name, s.Meta)
		}
		return info.Name
	}
	return fmt.Sprintf("#%d:%d", s.ID, s.Meta)
}
