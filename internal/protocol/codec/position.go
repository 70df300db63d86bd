package codec

import "fmt"

// Position координаты блока в упакованном формате 1.8:
// x 26 бит | y 12 бит | z 26 бит, все со знаком.
type Position struct {
	X, Y, Z int32
}

const (
	posXZMin = -(1 << 25)
	posXZMax = 1<<25 - 1
	posYMin  = -(1 << 11)
	posYMax  = 1<<11 - 1
)

// Validate проверяет, что координаты помещаются в упакованный формат.
func (p Position) Validate() error {
	if p.X < posXZMin || p.X > posXZMax || p.Z < posXZMin || p.Z > posXZMax ||
		p.Y < posYMin || p.Y > posYMax {
		return fmt.Errorf("%w: (%d, %d, %d)", ErrPositionOutOfRange, p.X, p.Y, p.Z)
	}
	return nil
}

func (p Position) pack() uint64 {
	return (uint64(p.X)&0x3FFFFFF)<<38 | (uint64(p.Y)&0xFFF)<<26 | uint64(p.Z)&0x3FFFFFF
}

// PackPosition упаковывает координаты с проверкой диапазона.
func PackPosition(p Position) (uint64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	return p.pack(), nil
}

func unpackPosition(v uint64) Position {
	s := int64(v)
	return Position{
		X: int32(s >> 38),
		Y: int32(s << 26 >> 52),
		Z: int32(s << 38 >> 38),
	}
}

// UnpackPosition обратная к PackPosition.
func UnpackPosition(v uint64) Position { return unpackPosition(v) }
