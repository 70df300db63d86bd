package packet

import "github.com/annel0/mc-server/internal/protocol/codec"

// Статусы PlayerDigging.
const (
	DigStarted   = 0
	DigCancelled = 1
	DigFinished  = 2
	DropStack    = 3
	DropItem     = 4
	ShootArrow   = 5
)

// KeepAlive 0x00: в обоих направлениях одинаковый формат.
type KeepAlive struct {
	KeepAliveID int32
}

func (*KeepAlive) ID() int32                { return 0x00 }
func (p *KeepAlive) Encode(w *codec.Writer) { w.VarInt(p.KeepAliveID) }
func (p *KeepAlive) Decode(r *codec.Reader) (err error) {
	p.KeepAliveID, err = r.VarInt()
	return err
}

// ChatMessage 0x01 — сообщение чата от клиента.
type ChatMessage struct {
	Message string
}

func (*ChatMessage) ID() int32                { return 0x01 }
func (p *ChatMessage) Encode(w *codec.Writer) { w.String(p.Message) }
func (p *ChatMessage) Decode(r *codec.Reader) (err error) {
	p.Message, err = r.StringMax(100)
	return err
}

// PlayerGround 0x03: только признак OnGround.
type PlayerGround struct {
	OnGround bool
}

func (*PlayerGround) ID() int32                { return 0x03 }
func (p *PlayerGround) Encode(w *codec.Writer) { w.Bool(p.OnGround) }
func (p *PlayerGround) Decode(r *codec.Reader) (err error) {
	p.OnGround, err = r.Bool()
	return err
}

// PlayerPosition 0x04: Y указывает на ступни.
type PlayerPosition struct {
	X, Y, Z  float64
	OnGround bool
}

func (*PlayerPosition) ID() int32 { return 0x04 }

func (p *PlayerPosition) Encode(w *codec.Writer) {
	w.Double(p.X)
	w.Double(p.Y)
	w.Double(p.Z)
	w.Bool(p.OnGround)
}

func (p *PlayerPosition) Decode(r *codec.Reader) (err error) {
	if p.X, err = r.Double(); err != nil {
		return err
	}
	if p.Y, err = r.Double(); err != nil {
		return err
	}
	if p.Z, err = r.Double(); err != nil {
		return err
	}
	p.OnGround, err = r.Bool()
	return err
}

// PlayerLook 0x05.
type PlayerLook struct {
	Yaw, Pitch float32
	OnGround   bool
}

func (*PlayerLook) ID() int32 { return 0x05 }

func (p *PlayerLook) Encode(w *codec.Writer) {
	w.Float(p.Yaw)
	w.Float(p.Pitch)
	w.Bool(p.OnGround)
}

func (p *PlayerLook) Decode(r *codec.Reader) (err error) {
	if p.Yaw, err = r.Float(); err != nil {
		return err
	}
	if p.Pitch, err = r.Float(); err != nil {
		return err
	}
	p.OnGround, err = r.Bool()
	return err
}

// PlayerPositionLook 0x06.
type PlayerPositionLook struct {
	X, Y, Z    float64
	Yaw, Pitch float32
	OnGround   bool
}

func (*PlayerPositionLook) ID() int32 { return 0x06 }

func (p *PlayerPositionLook) Encode(w *codec.Writer) {
	w.Double(p.X)
	w.Double(p.Y)
	w.Double(p.Z)
	w.Float(p.Yaw)
	w.Float(p.Pitch)
	w.Bool(p.OnGround)
}

func (p *PlayerPositionLook) Decode(r *codec.Reader) (err error) {
	if p.X, err = r.Double(); err != nil {
		return err
	}
	if p.Y, err = r.Double(); err != nil {
		return err
	}
	if p.Z, err = r.Double(); err != nil {
		return err
	}
	if p.Yaw, err = r.Float(); err != nil {
		return err
	}
	if p.Pitch, err = r.Float(); err != nil {
		return err
	}
	p.OnGround, err = r.Bool()
	return err
}

// PlayerDigging 0x07.
type PlayerDigging struct {
	Status   int8
	Location codec.Position
	Face     int8
}

func (*PlayerDigging) ID() int32 { return 0x07 }

func (p *PlayerDigging) Encode(w *codec.Writer) {
	w.Byte(p.Status)
	w.Position(p.Location)
	w.Byte(p.Face)
}

func (p *PlayerDigging) Decode(r *codec.Reader) (err error) {
	if p.Status, err = r.Byte(); err != nil {
		return err
	}
	if p.Location, err = r.Position(); err != nil {
		return err
	}
	p.Face, err = r.Byte()
	return err
}

// FaceNone Face в PlayerBlockPlacement при использовании предмета без блока.
const FaceNone = -1

// PlayerBlockPlacement 0x08: несёт предмет в руке вместе с NBT.
type PlayerBlockPlacement struct {
	Location                  codec.Position
	Face                      int8
	HeldItem                  Slot
	CursorX, CursorY, CursorZ int8
}

func (*PlayerBlockPlacement) ID() int32 { return 0x08 }

func (p *PlayerBlockPlacement) Encode(w *codec.Writer) {
	w.Position(p.Location)
	w.Byte(p.Face)
	writeSlot(w, p.HeldItem)
	w.Byte(p.CursorX)
	w.Byte(p.CursorY)
	w.Byte(p.CursorZ)
}

func (p *PlayerBlockPlacement) Decode(r *codec.Reader) (err error) {
	if p.Location, err = r.Position(); err != nil {
		return err
	}
	if p.Face, err = r.Byte(); err != nil {
		return err
	}
	if p.HeldItem, err = readSlot(r); err != nil {
		return err
	}
	if p.CursorX, err = r.Byte(); err != nil {
		return err
	}
	if p.CursorY, err = r.Byte(); err != nil {
		return err
	}
	p.CursorZ, err = r.Byte()
	return err
}

// HeldItemChange 0x09: номер выбранного слота хотбара.
type HeldItemChange struct {
	Slot int16
}

func (*HeldItemChange) ID() int32                { return 0x09 }
func (p *HeldItemChange) Encode(w *codec.Writer) { w.Short(p.Slot) }
func (p *HeldItemChange) Decode(r *codec.Reader) (err error) {
	p.Slot, err = r.Short()
	return err
}

// Animation 0x0A: взмах рукой, тела нет.
type Animation struct{}

func (*Animation) ID() int32                  { return 0x0A }
func (*Animation) Encode(*codec.Writer) {}
func (*Animation) Decode(*codec.Reader) error { return nil }

// EntityAction 0x0B.
type EntityAction struct {
	EntityID  int32
	ActionID  int32
	JumpBoost int32
}

func (*EntityAction) ID() int32 { return 0x0B }

func (p *EntityAction) Encode(w *codec.Writer) {
	w.VarInt(p.EntityID)
	w.VarInt(p.ActionID)
	w.VarInt(p.JumpBoost)
}

func (p *EntityAction) Decode(r *codec.Reader) (err error) {
	if p.EntityID, err = r.VarInt(); err != nil {
		return err
	}
	if p.ActionID, err = r.VarInt(); err != nil {
		return err
	}
	p.JumpBoost, err = r.VarInt()
	return err
}

// ClientSettings 0x15.
type ClientSettings struct {
	Locale       string
	ViewDistance int8
	ChatMode     int8
	ChatColors   bool
	SkinParts    uint8
}

func (*ClientSettings) ID() int32 { return 0x15 }

func (p *ClientSettings) Encode(w *codec.Writer) {
	w.String(p.Locale)
	w.Byte(p.ViewDistance)
	w.Byte(p.ChatMode)
	w.Bool(p.ChatColors)
	w.UByte(p.SkinParts)
}

func (p *ClientSettings) Decode(r *codec.Reader) (err error) {
	if p.Locale, err = r.StringMax(16); err != nil {
		return err
	}
	if p.ViewDistance, err = r.Byte(); err != nil {
		return err
	}
	if p.ChatMode, err = r.Byte(); err != nil {
		return err
	}
	if p.ChatColors, err = r.Bool(); err != nil {
		return err
	}
	p.SkinParts, err = r.UByte()
	return err
}

// ClientStatus 0x16. Action: 0 респаун, 1 запрос статистики, 2 достижение инвентаря.
type ClientStatus struct {
	ActionID int32
}

func (*ClientStatus) ID() int32                { return 0x16 }
func (p *ClientStatus) Encode(w *codec.Writer) { w.VarInt(p.ActionID) }
func (p *ClientStatus) Decode(r *codec.Reader) (err error) {
	p.ActionID, err = r.VarInt()
	return err
}

// ClientPluginMessage 0x17: данные занимают остаток кадра.
type ClientPluginMessage struct {
	Channel string
	Data    []byte
}

func (*ClientPluginMessage) ID() int32 { return 0x17 }

func (p *ClientPluginMessage) Encode(w *codec.Writer) {
	w.String(p.Channel)
	w.Raw(p.Data)
}

func (p *ClientPluginMessage) Decode(r *codec.Reader) (err error) {
	if p.Channel, err = r.StringMax(20); err != nil {
		return err
	}
	p.Data = r.Rest()
	return nil
}
