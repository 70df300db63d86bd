package packet

import (
	"fmt"

	"github.com/annel0/mc-server/internal/protocol/codec"
	"github.com/annel0/mc-server/internal/protocol/nbt"
	"github.com/google/uuid"
)

// JoinGame 0x01.
type JoinGame struct {
	EntityID         int32
	Gamemode         uint8
	Dimension        int8
	Difficulty       uint8
	MaxPlayers       uint8
	LevelType        string
	ReducedDebugInfo bool
}

func (*JoinGame) ID() int32 { return 0x01 }

func (p *JoinGame) Encode(w *codec.Writer) {
	w.Int(p.EntityID)
	w.UByte(p.Gamemode)
	w.Byte(p.Dimension)
	w.UByte(p.Difficulty)
	w.UByte(p.MaxPlayers)
	w.String(p.LevelType)
	w.Bool(p.ReducedDebugInfo)
}

func (p *JoinGame) Decode(r *codec.Reader) (err error) {
	if p.EntityID, err = r.Int(); err != nil {
		return err
	}
	if p.Gamemode, err = r.UByte(); err != nil {
		return err
	}
	if p.Dimension, err = r.Byte(); err != nil {
		return err
	}
	if p.Difficulty, err = r.UByte(); err != nil {
		return err
	}
	if p.MaxPlayers, err = r.UByte(); err != nil {
		return err
	}
	if p.LevelType, err = r.StringMax(16); err != nil {
		return err
	}
	p.ReducedDebugInfo, err = r.Bool()
	return err
}

// Позиции сообщения чата.
const (
	ChatPositionChat   = 0
	ChatPositionSystem = 1
	ChatPositionHotbar = 2
)

// ServerChatMessage 0x02: JSON chat-компонент.
type ServerChatMessage struct {
	JSON     string
	Position int8
}

func (*ServerChatMessage) ID() int32 { return 0x02 }

func (p *ServerChatMessage) Encode(w *codec.Writer) {
	w.String(p.JSON)
	w.Byte(p.Position)
}

func (p *ServerChatMessage) Decode(r *codec.Reader) (err error) {
	if p.JSON, err = r.String(); err != nil {
		return err
	}
	p.Position, err = r.Byte()
	return err
}

// TimeUpdate 0x03. Отрицательное TimeOfDay останавливает цикл дня.
type TimeUpdate struct {
	WorldAge  int64
	TimeOfDay int64
}

func (*TimeUpdate) ID() int32 { return 0x03 }

func (p *TimeUpdate) Encode(w *codec.Writer) {
	w.Long(p.WorldAge)
	w.Long(p.TimeOfDay)
}

func (p *TimeUpdate) Decode(r *codec.Reader) (err error) {
	if p.WorldAge, err = r.Long(); err != nil {
		return err
	}
	p.TimeOfDay, err = r.Long()
	return err
}

// SpawnPosition 0x05: точка компаса.
type SpawnPosition struct {
	Location codec.Position
}

func (*SpawnPosition) ID() int32                { return 0x05 }
func (p *SpawnPosition) Encode(w *codec.Writer) { w.Position(p.Location) }
func (p *SpawnPosition) Decode(r *codec.Reader) (err error) {
	p.Location, err = r.Position()
	return err
}

// PlayerTeleport 0x08: серверная установка позиции и взгляда.
// Биты Flags делают соответствующие поля относительными.
type PlayerTeleport struct {
	X, Y, Z    float64
	Yaw, Pitch float32
	Flags      int8
}

func (*PlayerTeleport) ID() int32 { return 0x08 }

func (p *PlayerTeleport) Encode(w *codec.Writer) {
	w.Double(p.X)
	w.Double(p.Y)
	w.Double(p.Z)
	w.Float(p.Yaw)
	w.Float(p.Pitch)
	w.Byte(p.Flags)
}

func (p *PlayerTeleport) Decode(r *codec.Reader) (err error) {
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
	p.Flags, err = r.Byte()
	return err
}

// SpawnPlayer 0x0C. Координаты в фиксированной точке (×32), углы в 1/256 оборота.
type SpawnPlayer struct {
	EntityID    int32
	PlayerUUID  uuid.UUID
	X, Y, Z     int32
	Yaw, Pitch  float32
	CurrentItem int16
	Metadata    []MetadataEntry
}

func (*SpawnPlayer) ID() int32 { return 0x0C }

func (p *SpawnPlayer) Encode(w *codec.Writer) {
	w.VarInt(p.EntityID)
	w.UUID(p.PlayerUUID)
	w.Int(p.X)
	w.Int(p.Y)
	w.Int(p.Z)
	w.Angle(p.Yaw)
	w.Angle(p.Pitch)
	w.Short(p.CurrentItem)
	writeMetadata(w, p.Metadata)
}

func (p *SpawnPlayer) Decode(r *codec.Reader) (err error) {
	if p.EntityID, err = r.VarInt(); err != nil {
		return err
	}
	if p.PlayerUUID, err = r.UUID(); err != nil {
		return err
	}
	if p.X, err = r.Int(); err != nil {
		return err
	}
	if p.Y, err = r.Int(); err != nil {
		return err
	}
	if p.Z, err = r.Int(); err != nil {
		return err
	}
	if p.Yaw, err = r.Angle(); err != nil {
		return err
	}
	if p.Pitch, err = r.Angle(); err != nil {
		return err
	}
	if p.CurrentItem, err = r.Short(); err != nil {
		return err
	}
	p.Metadata, err = readMetadata(r)
	return err
}

// DestroyEntities 0x13.
type DestroyEntities struct {
	EntityIDs []int32
}

func (*DestroyEntities) ID() int32 { return 0x13 }

func (p *DestroyEntities) Encode(w *codec.Writer) {
	w.VarInt(int32(len(p.EntityIDs)))
	for _, id := range p.EntityIDs {
		w.VarInt(id)
	}
}

func (p *DestroyEntities) Decode(r *codec.Reader) error {
	n, err := r.VarInt()
	if err != nil {
		return err
	}
	if n < 0 || int(n) > r.Len() {
		return codec.ErrTruncatedInput
	}
	p.EntityIDs = make([]int32, n)
	for i := range p.EntityIDs {
		if p.EntityIDs[i], err = r.VarInt(); err != nil {
			return err
		}
	}
	return nil
}

// EntityTeleport 0x18.
type EntityTeleport struct {
	EntityID   int32
	X, Y, Z    int32
	Yaw, Pitch float32
	OnGround   bool
}

func (*EntityTeleport) ID() int32 { return 0x18 }

func (p *EntityTeleport) Encode(w *codec.Writer) {
	w.VarInt(p.EntityID)
	w.Int(p.X)
	w.Int(p.Y)
	w.Int(p.Z)
	w.Angle(p.Yaw)
	w.Angle(p.Pitch)
	w.Bool(p.OnGround)
}

func (p *EntityTeleport) Decode(r *codec.Reader) (err error) {
	if p.EntityID, err = r.VarInt(); err != nil {
		return err
	}
	if p.X, err = r.Int(); err != nil {
		return err
	}
	if p.Y, err = r.Int(); err != nil {
		return err
	}
	if p.Z, err = r.Int(); err != nil {
		return err
	}
	if p.Yaw, err = r.Angle(); err != nil {
		return err
	}
	if p.Pitch, err = r.Angle(); err != nil {
		return err
	}
	p.OnGround, err = r.Bool()
	return err
}

// ChunkData 0x21. GroundUp + пустая маска выгружают колонку на клиенте.
type ChunkData struct {
	X, Z           int32
	GroundUp       bool
	PrimaryBitMask uint16
	Data           []byte
}

func (*ChunkData) ID() int32 { return 0x21 }

func (p *ChunkData) Encode(w *codec.Writer) {
	w.Int(p.X)
	w.Int(p.Z)
	w.Bool(p.GroundUp)
	w.UShort(p.PrimaryBitMask)
	w.ByteArray(p.Data)
}

func (p *ChunkData) Decode(r *codec.Reader) (err error) {
	if p.X, err = r.Int(); err != nil {
		return err
	}
	if p.Z, err = r.Int(); err != nil {
		return err
	}
	if p.GroundUp, err = r.Bool(); err != nil {
		return err
	}
	if p.PrimaryBitMask, err = r.UShort(); err != nil {
		return err
	}
	p.Data, err = r.ByteArray()
	return err
}

// UnloadChunk собирает ChunkData, выгружающий колонку.
func UnloadChunk(x, z int32) *ChunkData {
	return &ChunkData{X: x, Z: z, GroundUp: true, Data: []byte{}}
}

// BlockRecord запись MultiBlockChange: X/Z внутри чанка, Y и состояние блока.
type BlockRecord struct {
	X, Z    uint8
	Y       uint8
	BlockID int32
}

// MultiBlockChange 0x22.
type MultiBlockChange struct {
	ChunkX, ChunkZ int32
	Records        []BlockRecord
}

func (*MultiBlockChange) ID() int32 { return 0x22 }

func (p *MultiBlockChange) Encode(w *codec.Writer) {
	w.Int(p.ChunkX)
	w.Int(p.ChunkZ)
	w.VarInt(int32(len(p.Records)))
	for _, rec := range p.Records {
		w.UByte(rec.X<<4 | rec.Z&0x0F)
		w.UByte(rec.Y)
		w.VarInt(rec.BlockID)
	}
}

func (p *MultiBlockChange) Decode(r *codec.Reader) (err error) {
	if p.ChunkX, err = r.Int(); err != nil {
		return err
	}
	if p.ChunkZ, err = r.Int(); err != nil {
		return err
	}
	n, err := r.VarInt()
	if err != nil {
		return err
	}
	if n < 0 || int(n)*3 > r.Len() {
		return codec.ErrTruncatedInput
	}
	p.Records = make([]BlockRecord, n)
	for i := range p.Records {
		xz, err := r.UByte()
		if err != nil {
			return err
		}
		y, err := r.UByte()
		if err != nil {
			return err
		}
		id, err := r.VarInt()
		if err != nil {
			return err
		}
		p.Records[i] = BlockRecord{X: xz >> 4, Z: xz & 0x0F, Y: y, BlockID: id}
	}
	return nil
}

// BlockChange 0x23.
type BlockChange struct {
	Location codec.Position
	BlockID  int32
}

func (*BlockChange) ID() int32 { return 0x23 }

func (p *BlockChange) Encode(w *codec.Writer) {
	w.Position(p.Location)
	w.VarInt(p.BlockID)
}

func (p *BlockChange) Decode(r *codec.Reader) (err error) {
	if p.Location, err = r.Position(); err != nil {
		return err
	}
	p.BlockID, err = r.VarInt()
	return err
}

// Причины ChangeGameState.
const (
	GameStateBeginRain      = 1
	GameStateEndRain        = 2
	GameStateChangeGamemode = 3
)

// ChangeGameState 0x2B.
type ChangeGameState struct {
	Reason uint8
	Value  float32
}

func (*ChangeGameState) ID() int32 { return 0x2B }

func (p *ChangeGameState) Encode(w *codec.Writer) {
	w.UByte(p.Reason)
	w.Float(p.Value)
}

func (p *ChangeGameState) Decode(r *codec.Reader) (err error) {
	if p.Reason, err = r.UByte(); err != nil {
		return err
	}
	p.Value, err = r.Float()
	return err
}

// Действия PlayerListItem.
const (
	PlayerListAdd         = 0
	PlayerListGamemode    = 1
	PlayerListLatency     = 2
	PlayerListDisplayName = 3
	PlayerListRemove      = 4
)

// PlayerProperty свойство профиля (например, textures).
type PlayerProperty struct {
	Name      string
	Value     string
	Signature string // пусто — без подписи
}

// PlayerListEntry запись таба. Набор заполненных полей зависит от Action.
type PlayerListEntry struct {
	UUID        uuid.UUID
	Name        string
	Properties  []PlayerProperty
	Gamemode    int32
	Ping        int32
	DisplayName string // пусто: без отображаемого имени
}

// PlayerListItem 0x38.
type PlayerListItem struct {
	Action  int32
	Players []PlayerListEntry
}

func (*PlayerListItem) ID() int32 { return 0x38 }

func (p *PlayerListItem) Encode(w *codec.Writer) {
	w.VarInt(p.Action)
	w.VarInt(int32(len(p.Players)))
	for _, e := range p.Players {
		w.UUID(e.UUID)
		switch p.Action {
		case PlayerListAdd:
			w.String(e.Name)
			w.VarInt(int32(len(e.Properties)))
			for _, prop := range e.Properties {
				w.String(prop.Name)
				w.String(prop.Value)
				writeOptString(w, prop.Signature)
			}
			w.VarInt(e.Gamemode)
			w.VarInt(e.Ping)
			writeOptString(w, e.DisplayName)
		case PlayerListGamemode:
			w.VarInt(e.Gamemode)
		case PlayerListLatency:
			w.VarInt(e.Ping)
		case PlayerListDisplayName:
			writeOptString(w, e.DisplayName)
		}
	}
}

func (p *PlayerListItem) Decode(r *codec.Reader) (err error) {
	if p.Action, err = r.VarInt(); err != nil {
		return err
	}
	if p.Action < PlayerListAdd || p.Action > PlayerListRemove {
		return fmt.Errorf("%w: player list action %d", ErrUnsupportedValue, p.Action)
	}
	n, err := r.VarInt()
	if err != nil {
		return err
	}
	if n < 0 || int(n)*16 > r.Len() {
		return codec.ErrTruncatedInput
	}
	p.Players = make([]PlayerListEntry, n)
	for i := range p.Players {
		e := &p.Players[i]
		if e.UUID, err = r.UUID(); err != nil {
			return err
		}
		switch p.Action {
		case PlayerListAdd:
			if e.Name, err = r.StringMax(MaxNameLen); err != nil {
				return err
			}
			props, err := r.VarInt()
			if err != nil {
				return err
			}
			if props < 0 || int(props) > r.Len() {
				return codec.ErrTruncatedInput
			}
			for j := int32(0); j < props; j++ {
				var prop PlayerProperty
				if prop.Name, err = r.String(); err != nil {
					return err
				}
				if prop.Value, err = r.String(); err != nil {
					return err
				}
				if prop.Signature, err = readOptString(r); err != nil {
					return err
				}
				e.Properties = append(e.Properties, prop)
			}
			if e.Gamemode, err = r.VarInt(); err != nil {
				return err
			}
			if e.Ping, err = r.VarInt(); err != nil {
				return err
			}
			if e.DisplayName, err = readOptString(r); err != nil {
				return err
			}
		case PlayerListGamemode:
			if e.Gamemode, err = r.VarInt(); err != nil {
				return err
			}
		case PlayerListLatency:
			if e.Ping, err = r.VarInt(); err != nil {
				return err
			}
		case PlayerListDisplayName:
			if e.DisplayName, err = readOptString(r); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeOptString(w *codec.Writer, s string) {
	w.Bool(s != "")
	if s != "" {
		w.String(s)
	}
}

func readOptString(r *codec.Reader) (string, error) {
	has, err := r.Bool()
	if err != nil || !has {
		return "", err
	}
	return r.String()
}

// Флаги PlayerAbilities.
const (
	AbilityInvulnerable = 0x01
	AbilityFlying       = 0x02
	AbilityAllowFlying  = 0x04
	AbilityCreative     = 0x08
)

// PlayerAbilities 0x39.
type PlayerAbilities struct {
	Flags        int8
	FlyingSpeed  float32
	WalkingSpeed float32
}

func (*PlayerAbilities) ID() int32 { return 0x39 }

func (p *PlayerAbilities) Encode(w *codec.Writer) {
	w.Byte(p.Flags)
	w.Float(p.FlyingSpeed)
	w.Float(p.WalkingSpeed)
}

func (p *PlayerAbilities) Decode(r *codec.Reader) (err error) {
	if p.Flags, err = r.Byte(); err != nil {
		return err
	}
	if p.FlyingSpeed, err = r.Float(); err != nil {
		return err
	}
	p.WalkingSpeed, err = r.Float()
	return err
}

// PluginMessage 0x3F: серверное сообщение канала (например MC|Brand).
type PluginMessage struct {
	Channel string
	Data    []byte
}

func (*PluginMessage) ID() int32 { return 0x3F }

func (p *PluginMessage) Encode(w *codec.Writer) {
	w.String(p.Channel)
	w.Raw(p.Data)
}

func (p *PluginMessage) Decode(r *codec.Reader) (err error) {
	if p.Channel, err = r.StringMax(20); err != nil {
		return err
	}
	p.Data = r.Rest()
	return nil
}

// BrandMessage собирает MC|Brand с именем сервера.
func BrandMessage(brand string) *PluginMessage {
	w := codec.NewWriter(len(brand) + 1)
	w.String(brand)
	return &PluginMessage{Channel: "MC|Brand", Data: w.Bytes()}
}

// Disconnect 0x40: отключение в Play с JSON-причиной.
type Disconnect struct {
	Reason string
}

func (*Disconnect) ID() int32                { return 0x40 }
func (p *Disconnect) Encode(w *codec.Writer) { w.String(p.Reason) }
func (p *Disconnect) Decode(r *codec.Reader) (err error) {
	p.Reason, err = r.String()
	return err
}

// PlaySetCompression 0x46: то же, что SetCompression, но в Play.
type PlaySetCompression struct {
	Threshold int32
}

func (*PlaySetCompression) ID() int32                { return 0x46 }
func (p *PlaySetCompression) Encode(w *codec.Writer) { w.VarInt(p.Threshold) }
func (p *PlaySetCompression) Decode(r *codec.Reader) (err error) {
	p.Threshold, err = r.VarInt()
	return err
}

// UpdateEntityNBT 0x49: NBT-метаданные сущности.
type UpdateEntityNBT struct {
	EntityID int32
	Tag      nbt.Compound
}

func (*UpdateEntityNBT) ID() int32 { return 0x49 }

func (p *UpdateEntityNBT) Encode(w *codec.Writer) {
	w.VarInt(p.EntityID)
	if p.Tag == nil {
		nbt.Write(w, "", nil)
		return
	}
	nbt.Write(w, "", p.Tag)
}

func (p *UpdateEntityNBT) Decode(r *codec.Reader) (err error) {
	if p.EntityID, err = r.VarInt(); err != nil {
		return err
	}
	_, tag, err := nbt.Read(r)
	if err != nil {
		return err
	}
	if tag == nil {
		p.Tag = nil
		return nil
	}
	c, ok := tag.(nbt.Compound)
	if !ok {
		return nbt.ErrRootNotCompound
	}
	p.Tag = c
	return nil
}
