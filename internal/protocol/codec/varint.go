package codec

import (
	"errors"
	"io"
)

const (
	// MaxVarIntLen максимальная длина VarInt (32 бита).
	MaxVarIntLen = 5
	// MaxVarLongLen максимальная длина VarLong (64 бита).
	MaxVarLongLen = 10
)

// AppendVarInt дописывает v в dst. Отрицательные значения кодируются
// битовым шаблоном uint32 и всегда занимают 5 байт.
func AppendVarInt(dst []byte, v int32) []byte {
	u := uint32(v)
	for u >= 0x80 {
		dst = append(dst, byte(u)|0x80)
		u >>= 7
	}
	return append(dst, byte(u))
}

// VarIntSize возвращает длину кодировки v в байтах.
func VarIntSize(v int32) int {
	u := uint32(v)
	n := 1
	for u >= 0x80 {
		u >>= 7
		n++
	}
	return n
}

// DecodeVarInt читает VarInt из начала b и возвращает значение и число прочитанных байт.
func DecodeVarInt(b []byte) (int32, int, error) {
	var u uint32
	for i := 0; i < MaxVarIntLen; i++ {
		if i >= len(b) {
			return 0, 0, ErrTruncatedInput
		}
		c := b[i]
		u |= uint32(c&0x7f) << (7 * uint(i))
		if c&0x80 == 0 {
			return int32(u), i + 1, nil
		}
	}
	return 0, 0, ErrMalformedVarint
}

// ReadVarInt читает VarInt из потока. io.EOF до первого байта возвращается как есть,
// обрыв посреди числа даёт ErrTruncatedInput.
func ReadVarInt(r io.ByteReader) (int32, error) {
	var u uint32
	for i := 0; i < MaxVarIntLen; i++ {
		c, err := r.ReadByte()
		if err != nil {
			if i == 0 && errors.Is(err, io.EOF) {
				return 0, io.EOF
			}
			if errors.Is(err, io.EOF) {
				return 0, ErrTruncatedInput
			}
			return 0, err
		}
		u |= uint32(c&0x7f) << (7 * uint(i))
		if c&0x80 == 0 {
			return int32(u), nil
		}
	}
	return 0, ErrMalformedVarint
}

// AppendVarLong дописывает 64-битное значение в dst.
func AppendVarLong(dst []byte, v int64) []byte {
	u := uint64(v)
	for u >= 0x80 {
		dst = append(dst, byte(u)|0x80)
		u >>= 7
	}
	return append(dst, byte(u))
}

// DecodeVarLong читает VarLong из начала b.
func DecodeVarLong(b []byte) (int64, int, error) {
	var u uint64
	for i := 0; i < MaxVarLongLen; i++ {
		if i >= len(b) {
			return 0, 0, ErrTruncatedInput
		}
		c := b[i]
		u |= uint64(c&0x7f) << (7 * uint(i))
		if c&0x80 == 0 {
			return int64(u), i + 1, nil
		}
	}
	return 0, 0, ErrMalformedVarint
}
