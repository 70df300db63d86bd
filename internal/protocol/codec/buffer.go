package codec

import (
	"encoding/binary"
	"math"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxStringLen лимит длины строки по умолчанию (в символах).
const MaxStringLen = 32767

// Writer накапливает закодированные поля. Запись в память не может завершиться ошибкой.
type Writer struct {
	buf []byte
}

// NewWriter создаёт Writer с заданной начальной ёмкостью.
func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

func (w *Writer) Bytes() []byte { return w.buf }
func (w *Writer) Len() int      { return len(w.buf) }
func (w *Writer) Reset()        { w.buf = w.buf[:0] }

func (w *Writer) Bool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

func (w *Writer) Byte(v int8)     { w.buf = append(w.buf, byte(v)) }
func (w *Writer) UByte(v uint8)   { w.buf = append(w.buf, v) }
func (w *Writer) Short(v int16)   { w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(v)) }
func (w *Writer) UShort(v uint16) { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }
func (w *Writer) Int(v int32)     { w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v)) }
func (w *Writer) Long(v int64)    { w.buf = binary.BigEndian.AppendUint64(w.buf, uint64(v)) }
func (w *Writer) Float(v float32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, math.Float32bits(v))
}
func (w *Writer) Double(v float64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, math.Float64bits(v))
}
func (w *Writer) VarInt(v int32)  { w.buf = AppendVarInt(w.buf, v) }
func (w *Writer) VarLong(v int64) { w.buf = AppendVarLong(w.buf, v) }

// String пишет VarInt-длину в байтах и UTF-8 содержимое.
func (w *Writer) String(s string) {
	w.VarInt(int32(len(s)))
	w.buf = append(w.buf, s...)
}

// ByteArray пишет массив с VarInt-префиксом длины.
func (w *Writer) ByteArray(b []byte) {
	w.VarInt(int32(len(b)))
	w.buf = append(w.buf, b...)
}

// Raw пишет байты без префикса.
func (w *Writer) Raw(b []byte) { w.buf = append(w.buf, b...) }

func (w *Writer) UUID(id uuid.UUID) { w.buf = append(w.buf, id[:]...) }

// Position пишет упакованные координаты блока. Вызывающий отвечает за диапазон,
// лишние старшие биты отбрасываются.
func (w *Writer) Position(p Position) { w.Long(int64(p.pack())) }

// Angle пишет угол в градусах как 1/256 оборота.
func (w *Writer) Angle(deg float32) {
	w.buf = append(w.buf, byte(int32(deg*256/360)))
}

// Reader читает поля из среза, продвигая курсор.
type Reader struct {
	buf []byte
	off int
}

func NewReader(b []byte) *Reader { return &Reader{buf: b} }

// Len возвращает число непрочитанных байт.
func (r *Reader) Len() int    { return len(r.buf) - r.off }
func (r *Reader) Offset() int { return r.off }

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrNegativeLength
	}
	if r.Len() < n {
		return nil, ErrTruncatedInput
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *Reader) Bool() (bool, error) {
	b, err := r.take(1)
	if err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

func (r *Reader) Byte() (int8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return int8(b[0]), nil
}

func (r *Reader) UByte() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) Short() (int16, error) {
	v, err := r.UShort()
	return int16(v), err
}

func (r *Reader) UShort() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *Reader) Int() (int32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

func (r *Reader) Long() (int64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

func (r *Reader) Float() (float32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.BigEndian.Uint32(b)), nil
}

func (r *Reader) Double() (float64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

func (r *Reader) VarInt() (int32, error) {
	v, n, err := DecodeVarInt(r.buf[r.off:])
	if err != nil {
		return 0, err
	}
	r.off += n
	return v, nil
}

func (r *Reader) VarLong() (int64, error) {
	v, n, err := DecodeVarLong(r.buf[r.off:])
	if err != nil {
		return 0, err
	}
	r.off += n
	return v, nil
}

// String читает строку с лимитом MaxStringLen символов.
func (r *Reader) String() (string, error) { return r.StringMax(MaxStringLen) }

// StringMax читает строку не длиннее max символов.
func (r *Reader) StringMax(max int) (string, error) {
	n, err := r.VarInt()
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", ErrNegativeLength
	}
	// UTF-8 символ занимает не больше 4 байт
	if int(n) > max*4 {
		return "", ErrStringTooLong
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", ErrInvalidUTF8
	}
	if utf8.RuneCount(b) > max {
		return "", ErrStringTooLong
	}
	return string(b), nil
}

// ByteArray читает массив с VarInt-префиксом длины (копия).
func (r *Reader) ByteArray() ([]byte, error) {
	n, err := r.VarInt()
	if err != nil {
		return nil, err
	}
	b, err := r.take(int(n))
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

// Raw читает ровно n байт (копия).
func (r *Reader) Raw(n int) ([]byte, error) {
	b, err := r.take(n)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

// Rest возвращает все оставшиеся байты (копия).
func (r *Reader) Rest() []byte {
	b := append([]byte{}, r.buf[r.off:]...)
	r.off = len(r.buf)
	return b
}

func (r *Reader) UUID() (uuid.UUID, error) {
	b, err := r.take(16)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.FromBytes(b)
}

func (r *Reader) Position() (Position, error) {
	v, err := r.Long()
	if err != nil {
		return Position{}, err
	}
	return unpackPosition(uint64(v)), nil
}

func (r *Reader) Angle() (float32, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return float32(int8(b[0])) * 360 / 256, nil
}
