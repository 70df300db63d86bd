// Package nbt кодирует бинарное дерево именованных типизированных тегов (Named Binary Tag),
// используется для метаданных сущностей и данных предметов.
package nbt

import (
	"errors"
	"fmt"
)

// TagType идентификатор типа тега в потоке.
type TagType byte

const (
	TagEnd TagType = iota
	TagByte
	TagShort
	TagInt
	TagLong
	TagFloat
	TagDouble
	TagByteArray
	TagString
	TagList
	TagCompound
	TagIntArray
	TagLongArray
)

var tagNames = [...]string{
	"TAG_End", "TAG_Byte", "TAG_Short", "TAG_Int", "TAG_Long", "TAG_Float", "TAG_Double",
	"TAG_Byte_Array", "TAG_String", "TAG_List", "TAG_Compound", "TAG_Int_Array", "TAG_Long_Array",
}

func (t TagType) String() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return fmt.Sprintf("TAG_Unknown(%d)", byte(t))
}

// MaxDepth ограничивает вложенность при чтении.
const MaxDepth = 512

var (
	ErrUnknownTag      = errors.New("nbt: unknown tag type")
	ErrTooDeep         = errors.New("nbt: nesting too deep")
	ErrListElemType    = errors.New("nbt: list element type mismatch")
	ErrRootNotCompound = errors.New("nbt: root tag is not a compound")
)

// Tag значение любого типа, кроме End.
type Tag interface {
	Type() TagType
}

type (
	Byte      int8
	Short     int16
	Int       int32
	Long      int64
	Float     float32
	Double    float64
	ByteArray []byte
	String    string
	IntArray  []int32
	LongArray []int64
	Compound  map[string]Tag
)

// List однородный список; Elem задаёт тип пустого списка.
type List struct {
	Elem  TagType
	Items []Tag
}

func (Byte) Type() TagType      { return TagByte }
func (Short) Type() TagType     { return TagShort }
func (Int) Type() TagType       { return TagInt }
func (Long) Type() TagType      { return TagLong }
func (Float) Type() TagType     { return TagFloat }
func (Double) Type() TagType    { return TagDouble }
func (ByteArray) Type() TagType { return TagByteArray }
func (String) Type() TagType    { return TagString }
func (IntArray) Type() TagType  { return TagIntArray }
func (LongArray) Type() TagType { return TagLongArray }
func (Compound) Type() TagType  { return TagCompound }
func (List) Type() TagType      { return TagList }

// NewList собирает список и проверяет однородность.
func NewList(items ...Tag) (List, error) {
	if len(items) == 0 {
		return List{Elem: TagEnd}, nil
	}
	elem := items[0].Type()
	for _, it := range items[1:] {
		if it.Type() != elem {
			return List{}, fmt.Errorf("%w: %s vs %s", ErrListElemType, elem, it.Type())
		}
	}
	return List{Elem: elem, Items: items}, nil
}

// Удобные геттеры для чтения метаданных.

func (c Compound) GetString(key string) (string, bool) {
	v, ok := c[key].(String)
	return string(v), ok
}

func (c Compound) GetInt(key string) (int32, bool) {
	v, ok := c[key].(Int)
	return int32(v), ok
}

func (c Compound) GetCompound(key string) (Compound, bool) {
	v, ok := c[key].(Compound)
	return v, ok
}
