// Package codec реализует примитивы проводного формата: VarInt/VarLong,
// big-endian целые, строки с префиксом длины, UUID и упакованные координаты блока.
package codec

import "errors"

var (
	// ErrTruncatedInput во входе меньше байт, чем требует объявленная длина.
	ErrTruncatedInput = errors.New("codec: truncated input")
	// ErrMalformedVarint VarInt не завершился за допустимое число байт.
	ErrMalformedVarint = errors.New("codec: malformed varint")
	// ErrStringTooLong длина строки превышает лимит поля.
	ErrStringTooLong = errors.New("codec: string too long")
	// ErrInvalidUTF8 строка не является корректным UTF-8.
	ErrInvalidUTF8 = errors.New("codec: invalid utf-8")
	// ErrNegativeLength отрицательный префикс длины.
	ErrNegativeLength = errors.New("codec: negative length prefix")
	// ErrPositionOutOfRange координата не помещается в упакованный формат.
	ErrPositionOutOfRange = errors.New("codec: position out of range")
)
