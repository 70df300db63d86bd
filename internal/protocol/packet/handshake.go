package packet

import "github.com/annel0/mc-server/internal/protocol/codec"

// Значения NextState в Handshake.
const (
	NextStateStatus = 1
	NextStateLogin  = 2
)

// HandshakePacket 0x00 — первый пакет соединения, задаёт следующее состояние.
type HandshakePacket struct {
	ProtocolVersion int32
	ServerAddress   string
	ServerPort      uint16
	NextState       int32
}

func (*HandshakePacket) ID() int32 { return 0x00 }

func (p *HandshakePacket) Encode(w *codec.Writer) {
	w.VarInt(p.ProtocolVersion)
	w.String(p.ServerAddress)
	w.UShort(p.ServerPort)
	w.VarInt(p.NextState)
}

func (p *HandshakePacket) Decode(r *codec.Reader) (err error) {
	if p.ProtocolVersion, err = r.VarInt(); err != nil {
		return err
	}
	if p.ServerAddress, err = r.StringMax(255); err != nil {
		return err
	}
	if p.ServerPort, err = r.UShort(); err != nil {
		return err
	}
	p.NextState, err = r.VarInt()
	return err
}

// StatusRequest 0x00: запрос состояния сервера (пустое тело).
type StatusRequest struct{}

func (*StatusRequest) ID() int32                  { return 0x00 }
func (*StatusRequest) Encode(*codec.Writer) {}
func (*StatusRequest) Decode(*codec.Reader) error { return nil }

// StatusPing 0x01: клиентский пинг, эхо приходит в StatusPong.
type StatusPing struct {
	Payload int64
}

func (*StatusPing) ID() int32                { return 0x01 }
func (p *StatusPing) Encode(w *codec.Writer) { w.Long(p.Payload) }
func (p *StatusPing) Decode(r *codec.Reader) (err error) {
	p.Payload, err = r.Long()
	return err
}

// StatusResponse 0x00: JSON описания сервера.
type StatusResponse struct {
	JSON string
}

func (*StatusResponse) ID() int32                { return 0x00 }
func (p *StatusResponse) Encode(w *codec.Writer) { w.String(p.JSON) }
func (p *StatusResponse) Decode(r *codec.Reader) (err error) {
	p.JSON, err = r.String()
	return err
}

// StatusPong 0x01.
type StatusPong struct {
	Payload int64
}

func (*StatusPong) ID() int32                { return 0x01 }
func (p *StatusPong) Encode(w *codec.Writer) { w.Long(p.Payload) }
func (p *StatusPong) Decode(r *codec.Reader) (err error) {
	p.Payload, err = r.Long()
	return err
}

// MaxNameLen максимальная длина имени игрока.
const MaxNameLen = 16

// LoginStart 0x00: имя игрока.
type LoginStart struct {
	Name string
}

func (*LoginStart) ID() int32                { return 0x00 }
func (p *LoginStart) Encode(w *codec.Writer) { w.String(p.Name) }
func (p *LoginStart) Decode(r *codec.Reader) (err error) {
	p.Name, err = r.StringMax(MaxNameLen)
	return err
}

// LoginDisconnect 0x00: отказ во входе с JSON-причиной.
type LoginDisconnect struct {
	Reason string
}

func (*LoginDisconnect) ID() int32                { return 0x00 }
func (p *LoginDisconnect) Encode(w *codec.Writer) { w.String(p.Reason) }
func (p *LoginDisconnect) Decode(r *codec.Reader) (err error) {
	p.Reason, err = r.String()
	return err
}

// LoginSuccess 0x02: UUID в текстовом виде с дефисами и имя.
type LoginSuccess struct {
	UUID     string
	Username string
}

func (*LoginSuccess) ID() int32 { return 0x02 }

func (p *LoginSuccess) Encode(w *codec.Writer) {
	w.String(p.UUID)
	w.String(p.Username)
}

func (p *LoginSuccess) Decode(r *codec.Reader) (err error) {
	if p.UUID, err = r.StringMax(36); err != nil {
		return err
	}
	p.Username, err = r.StringMax(MaxNameLen)
	return err
}

// SetCompression 0x03 (Login): порог сжатия, -1 отключает.
type SetCompression struct {
	Threshold int32
}

func (*SetCompression) ID() int32                { return 0x03 }
func (p *SetCompression) Encode(w *codec.Writer) { w.VarInt(p.Threshold) }
func (p *SetCompression) Decode(r *codec.Reader) (err error) {
	p.Threshold, err = r.VarInt()
	return err
}
