package nbt

import (
	"bytes"
	"testing"

	"github.com/annel0/mc-server/internal/protocol/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree(t *testing.T) Compound {
	pos, err := NewList(Double(1.5), Double(64), Double(-3.25))
	require.NoError(t, err)
	names, err := NewList(String("a"), String("b"))
	require.NoError(t, err)

	return Compound{
		"id":       String("minecraft:zombie"),
		"Health":   Float(20),
		"Age":      Short(-1),
		"OnGround": Byte(1),
		"UUIDMost": Long(1 << 60),
		"Score":    Int(42),
		"Speed":    Double(0.23),
		"Pos":      pos,
		"Tags":     names,
		"Empty":    List{Elem: TagEnd},
		"Blob":     ByteArray{1, 2, 3},
		"Ints":     IntArray{-1, 0, 1},
		"Longs":    LongArray{7, 8},
		"Equipment": Compound{
			"Hand": Compound{"id": Short(276), "Count": Byte(1)},
		},
	}
}

func TestRoundTrip(t *testing.T) {
	root := sampleTree(t)
	data := Encode("Entity", root)

	name, got, n, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "Entity", name)
	assert.Equal(t, len(data), n)
	assert.Equal(t, root, got)
}

func TestEncodingIsDeterministic(t *testing.T) {
	root := sampleTree(t)
	first := Encode("", root)
	for i := 0; i < 20; i++ {
		assert.True(t, bytes.Equal(first, Encode("", root)), "порядок ключей должен быть стабильным")
	}
}

func TestKnownLayout(t *testing.T) {
	// {"hello world": {"name": "Bananrama"}} из описания формата
	data := Encode("hello world", Compound{"name": String("Bananrama")})
	want := []byte{
		0x0a, 0x00, 0x0b, 'h', 'e', 'l', 'l', 'o', ' ', 'w', 'o', 'r', 'l', 'd',
		0x08, 0x00, 0x04, 'n', 'a', 'm', 'e',
		0x00, 0x09, 'B', 'a', 'n', 'a', 'n', 'r', 'a', 'm', 'a',
		0x00,
	}
	assert.Equal(t, want, data)
}

func TestDecodeErrors(t *testing.T) {
	data := Encode("x", Compound{"v": Int(1)})

	for cut := 1; cut < len(data); cut++ {
		_, _, _, err := Decode(data[:cut])
		assert.ErrorIs(t, err, codec.ErrTruncatedInput, "обрезано до %d", cut)
	}

	bad := []byte{0x0a, 0x00, 0x00, 0x42, 0x00, 0x00}
	_, _, _, err := Decode(bad)
	assert.ErrorIs(t, err, ErrUnknownTag)

	notCompound := []byte{0x01, 0x00, 0x00, 0x05}
	_, _, _, err = Decode(notCompound)
	assert.ErrorIs(t, err, ErrRootNotCompound)
}

func TestDepthLimit(t *testing.T) {
	var buf []byte
	buf = append(buf, byte(TagCompound), 0, 0)
	for i := 0; i < MaxDepth+10; i++ {
		buf = append(buf, byte(TagCompound), 0, 1, 'c')
	}
	_, _, _, err := Decode(buf)
	assert.ErrorIs(t, err, ErrTooDeep)
}

func TestNilMeansEmptySlot(t *testing.T) {
	w := codec.NewWriter(4)
	Write(w, "", nil)
	assert.Equal(t, []byte{0x00}, w.Bytes())

	name, tag, err := Read(codec.NewReader(w.Bytes()))
	require.NoError(t, err)
	assert.Empty(t, name)
	assert.Nil(t, tag)
}

func TestNewListRejectsMixedTypes(t *testing.T) {
	_, err := NewList(Int(1), String("x"))
	assert.ErrorIs(t, err, ErrListElemType)
}

func TestCompoundGetters(t *testing.T) {
	c := sampleTree(t)
	id, ok := c.GetString("id")
	assert.True(t, ok)
	assert.Equal(t, "minecraft:zombie", id)
	score, ok := c.GetInt("Score")
	assert.True(t, ok)
	assert.Equal(t, int32(42), score)
	_, ok = c.GetCompound("Equipment")
	assert.True(t, ok)
	_, ok = c.GetInt("id")
	assert.False(t, ok)
}
