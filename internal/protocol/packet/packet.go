// Package packet описывает каталог пакетов протокола 47 (Minecraft 1.8):
// типизированные сообщения по состояниям и направлениям, кадрирование и сжатие.
package packet

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/annel0/mc-server/internal/protocol/codec"
)

// ProtocolVersion номер версии протокола, который обслуживает сервер.
const ProtocolVersion = 47

// VersionName человекочитаемая версия для server list ping.
const VersionName = "1.8.9"

// State состояние соединения, задающее пространство идентификаторов пакетов.
type State int8

const (
	Handshake State = iota
	Status
	Login
	Play
)

func (s State) String() string {
	switch s {
	case Handshake:
		return "Handshake"
	case Status:
		return "Status"
	case Login:
		return "Login"
	case Play:
		return "Play"
	}
	return fmt.Sprintf("State(%d)", int8(s))
}

// Direction направление пакета.
type Direction int8

const (
	Serverbound Direction = iota
	Clientbound
)

func (d Direction) String() string {
	if d == Serverbound {
		return "serverbound"
	}
	return "clientbound"
}

// Packet типизированное сообщение. Тело кодируется без id.
type Packet interface {
	ID() int32
	Encode(w *codec.Writer)
	Decode(r *codec.Reader) error
}

var (
	ErrUnknownPacketId     = errors.New("packet: unknown packet id")
	ErrFrameLengthMismatch = errors.New("packet: frame length mismatch")
	ErrFrameTooLarge       = errors.New("packet: frame too large")
	ErrBadCompression      = errors.New("packet: bad compressed frame")
	ErrUnsupportedValue    = errors.New("packet: unsupported field value")
)

// UnknownPacketError сообщает, какой тройки нет в каталоге.
type UnknownPacketError struct {
	State     State
	Direction Direction
	ID        int32
}

func (e *UnknownPacketError) Error() string {
	return fmt.Sprintf("packet: unknown id 0x%02X for %s/%s", e.ID, e.State, e.Direction)
}

func (e *UnknownPacketError) Unwrap() error { return ErrUnknownPacketId }

// ChatText оборачивает строку в JSON chat-компонент.
func ChatText(s string) string {
	b, _ := json.Marshal(struct {
		Text string `json:"text"`
	}{s})
	return string(b)
}

// ToFixed переводит координату в формат 27.5 с фиксированной точкой (×32).
func ToFixed(v float64) int32 { return int32(v * 32) }

// FromFixed обратное к ToFixed.
func FromFixed(v int32) float64 { return float64(v) / 32 }
