package session

import (
	"errors"
	"fmt"

	"github.com/annel0/mc-server/internal/protocol/packet"
)

// ErrProtocolViolation клиент нарушил протокол; сессия подлежит закрытию.
var ErrProtocolViolation = errors.New("session: protocol violation")

// ErrClosed возвращается при работе с закрытой машиной.
var ErrClosed = errors.New("session: closed")

// ViolationError описывает нарушение: состояние, id пакета и причину.
// Err хранит исходную ошибку (кодека, каталога), если она есть.
type ViolationError struct {
	State  packet.State
	ID     int32
	Reason string
	Err    error
}

func (e *ViolationError) Error() string {
	msg := fmt.Sprintf("protocol violation in %s (packet 0x%02X): %s", e.State, e.ID, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap позволяет errors.Is сопоставить и ErrProtocolViolation, и причину.
func (e *ViolationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrProtocolViolation}
	}
	return []error{ErrProtocolViolation, e.Err}
}

// Violation создаёт ошибку нарушения протокола.
func Violation(state packet.State, id int32, format string, args ...interface{}) error {
	return &ViolationError{State: state, ID: id, Reason: fmt.Sprintf(format, args...)}
}
