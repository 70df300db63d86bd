package eventbus

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrClosed возвращается при публикации в закрытую шину
var ErrClosed = errors.New("eventbus: closed")

// Типы событий мира
const (
	TypeBlockChanged = "BlockChanged"
	TypePlayerJoined = "PlayerJoined"
	TypePlayerLeft   = "PlayerLeft"
	TypeChatMessage  = "ChatMessage"
)

// PayloadVersion текущая версия схемы полезной нагрузки
const PayloadVersion = 1

// Source имя источника по умолчанию
var Source = "mc-server"

// NewEnvelope упаковывает поля в protobuf Struct. Поддерживаются значения,
// допустимые для structpb.NewValue.
func NewEnvelope(eventType string, priority int, fields map[string]interface{}) (*Envelope, error) {
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("payload %s: %w", eventType, err)
	}
	data, err := proto.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("payload %s: %w", eventType, err)
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    Source,
		EventType: eventType,
		Version:   PayloadVersion,
		Priority:  priority,
		Payload:   data,
	}, nil
}

// DecodePayload разбирает полезную нагрузку обратно в map
func DecodePayload(ev *Envelope) (map[string]interface{}, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(ev.Payload, &st); err != nil {
		return nil, err
	}
	return st.AsMap(), nil
}

// BlockChanged блок изменён игроком или через админку (entityID 0)
func BlockChanged(x, y, z int32, id uint16, meta uint8, entityID int32) (*Envelope, error) {
	return NewEnvelope(TypeBlockChanged, 3, map[string]interface{}{
		"x":      x,
		"y":      y,
		"z":      z,
		"id":     int32(id),
		"meta":   int32(meta),
		"entity": entityID,
	})
}

// PlayerJoined игрок вошёл в Play
func PlayerJoined(name, playerUUID string, entityID int32) (*Envelope, error) {
	return NewEnvelope(TypePlayerJoined, 6, map[string]interface{}{
		"name":   name,
		"uuid":   playerUUID,
		"entity": entityID,
	})
}

// PlayerLeft игрок вышел
func PlayerLeft(name, playerUUID string, entityID int32) (*Envelope, error) {
	return NewEnvelope(TypePlayerLeft, 6, map[string]interface{}{
		"name":   name,
		"uuid":   playerUUID,
		"entity": entityID,
	})
}

// Chat сообщение чата
func Chat(name, text string) (*Envelope, error) {
	return NewEnvelope(TypeChatMessage, 2, map[string]interface{}{
		"name": name,
		"text": text,
	})
}
