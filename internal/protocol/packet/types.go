package packet

import (
	"fmt"

	"github.com/annel0/mc-server/internal/protocol/codec"
	"github.com/annel0/mc-server/internal/protocol/nbt"
)

// Slot предмет в слоте. ID == -1 означает пустой слот.
type Slot struct {
	ID     int16
	Count  int8
	Damage int16
	Tag    nbt.Compound
}

// EmptySlot пустой слот.
var EmptySlot = Slot{ID: -1}

func (s Slot) IsEmpty() bool { return s.ID < 0 }

func writeSlot(w *codec.Writer, s Slot) {
	w.Short(s.ID)
	if s.IsEmpty() {
		return
	}
	w.Byte(s.Count)
	w.Short(s.Damage)
	if s.Tag == nil {
		nbt.Write(w, "", nil)
		return
	}
	nbt.Write(w, "", s.Tag)
}

func readSlot(r *codec.Reader) (Slot, error) {
	var s Slot
	var err error
	if s.ID, err = r.Short(); err != nil {
		return s, err
	}
	if s.IsEmpty() {
		return Slot{ID: s.ID}, nil
	}
	if s.Count, err = r.Byte(); err != nil {
		return s, err
	}
	if s.Damage, err = r.Short(); err != nil {
		return s, err
	}
	_, tag, err := nbt.Read(r)
	if err != nil {
		return s, err
	}
	if tag != nil {
		c, ok := tag.(nbt.Compound)
		if !ok {
			return s, fmt.Errorf("slot nbt: %w", nbt.ErrRootNotCompound)
		}
		s.Tag = c
	}
	return s, nil
}

// Типы значений метаданных сущности (1.8).
const (
	MetaByte   = 0
	MetaShort  = 1
	MetaInt    = 2
	MetaFloat  = 3
	MetaString = 4
)

// MetadataEntry одна запись метаданных сущности. Value имеет тип,
// соответствующий Type: int8, int16, int32, float32 или string.
type MetadataEntry struct {
	Index uint8
	Type  uint8
	Value interface{}
}

const metadataEnd = 0x7F

func writeMetadata(w *codec.Writer, entries []MetadataEntry) {
	for _, e := range entries {
		w.UByte(e.Type<<5 | e.Index&0x1F)
		switch v := e.Value.(type) {
		case int8:
			w.Byte(v)
		case int16:
			w.Short(v)
		case int32:
			w.Int(v)
		case float32:
			w.Float(v)
		case string:
			w.String(v)
		}
	}
	w.UByte(metadataEnd)
}

func readMetadata(r *codec.Reader) ([]MetadataEntry, error) {
	var out []MetadataEntry
	for {
		key, err := r.UByte()
		if err != nil {
			return nil, err
		}
		if key == metadataEnd {
			return out, nil
		}
		e := MetadataEntry{Index: key & 0x1F, Type: key >> 5}
		switch e.Type {
		case MetaByte:
			e.Value, err = r.Byte()
		case MetaShort:
			e.Value, err = r.Short()
		case MetaInt:
			e.Value, err = r.Int()
		case MetaFloat:
			e.Value, err = r.Float()
		case MetaString:
			e.Value, err = r.String()
		default:
			return nil, fmt.Errorf("%w: metadata type %d", ErrUnsupportedValue, e.Type)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
}
