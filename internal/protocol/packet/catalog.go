package packet

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/annel0/mc-server/internal/protocol/codec"
)

type catalogKey struct {
	state State
	dir   Direction
	id    int32
}

// Catalog неизменяемая таблица (состояние, направление, id) → конструктор пакета.
// Строится один раз и передаётся по ссылке.
type Catalog struct {
	ctors map[catalogKey]func() Packet
}

type entry struct {
	state State
	dir   Direction
	ctor  func() Packet
}

func newCatalog(entries []entry) *Catalog {
	c := &Catalog{ctors: make(map[catalogKey]func() Packet, len(entries))}
	for _, e := range entries {
		k := catalogKey{e.state, e.dir, e.ctor().ID()}
		if _, dup := c.ctors[k]; dup {
			panic(fmt.Sprintf("packet: duplicate id 0x%02X in %s/%s", k.id, k.state, k.dir))
		}
		c.ctors[k] = e.ctor
	}
	return c
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default возвращает каталог протокола 47.
func Default() *Catalog {
	defaultOnce.Do(func() {
		defaultCatalog = newCatalog(protocol47())
	})
	return defaultCatalog
}

func protocol47() []entry {
	sb := func(s State, f func() Packet) entry { return entry{s, Serverbound, f} }
	cb := func(s State, f func() Packet) entry { return entry{s, Clientbound, f} }
	return []entry{
		sb(Handshake, func() Packet { return &HandshakePacket{} }),

		sb(Status, func() Packet { return &StatusRequest{} }),
		sb(Status, func() Packet { return &StatusPing{} }),
		cb(Status, func() Packet { return &StatusResponse{} }),
		cb(Status, func() Packet { return &StatusPong{} }),

		sb(Login, func() Packet { return &LoginStart{} }),
		cb(Login, func() Packet { return &LoginDisconnect{} }),
		cb(Login, func() Packet { return &LoginSuccess{} }),
		cb(Login, func() Packet { return &SetCompression{} }),

		sb(Play, func() Packet { return &KeepAlive{} }),
		sb(Play, func() Packet { return &ChatMessage{} }),
		sb(Play, func() Packet { return &PlayerGround{} }),
		sb(Play, func() Packet { return &PlayerPosition{} }),
		sb(Play, func() Packet { return &PlayerLook{} }),
		sb(Play, func() Packet { return &PlayerPositionLook{} }),
		sb(Play, func() Packet { return &PlayerDigging{} }),
		sb(Play, func() Packet { return &PlayerBlockPlacement{} }),
		sb(Play, func() Packet { return &HeldItemChange{} }),
		sb(Play, func() Packet { return &Animation{} }),
		sb(Play, func() Packet { return &EntityAction{} }),
		sb(Play, func() Packet { return &ClientSettings{} }),
		sb(Play, func() Packet { return &ClientStatus{} }),
		sb(Play, func() Packet { return &ClientPluginMessage{} }),

		cb(Play, func() Packet { return &KeepAlive{} }),
		cb(Play, func() Packet { return &JoinGame{} }),
		cb(Play, func() Packet { return &ServerChatMessage{} }),
		cb(Play, func() Packet { return &TimeUpdate{} }),
		cb(Play, func() Packet { return &SpawnPosition{} }),
		cb(Play, func() Packet { return &PlayerTeleport{} }),
		cb(Play, func() Packet { return &SpawnPlayer{} }),
		cb(Play, func() Packet { return &DestroyEntities{} }),
		cb(Play, func() Packet { return &EntityTeleport{} }),
		cb(Play, func() Packet { return &ChunkData{} }),
		cb(Play, func() Packet { return &MultiBlockChange{} }),
		cb(Play, func() Packet { return &BlockChange{} }),
		cb(Play, func() Packet { return &ChangeGameState{} }),
		cb(Play, func() Packet { return &PlayerListItem{} }),
		cb(Play, func() Packet { return &PlayerAbilities{} }),
		cb(Play, func() Packet { return &PluginMessage{} }),
		cb(Play, func() Packet { return &Disconnect{} }),
		cb(Play, func() Packet { return &PlaySetCompression{} }),
		cb(Play, func() Packet { return &UpdateEntityNBT{} }),
	}
}

// Resolve возвращает новый пустой пакет для тройки или *UnknownPacketError.
func (c *Catalog) Resolve(state State, dir Direction, id int32) (Packet, error) {
	ctor, ok := c.ctors[catalogKey{state, dir, id}]
	if !ok {
		return nil, &UnknownPacketError{State: state, Direction: dir, ID: id}
	}
	return ctor(), nil
}

// Lookup сообщает, известна ли тройка каталогу.
func (c *Catalog) Lookup(state State, dir Direction, id int32) bool {
	_, ok := c.ctors[catalogKey{state, dir, id}]
	return ok
}

// IDs возвращает отсортированные id пакетов состояния и направления.
func (c *Catalog) IDs(state State, dir Direction) []int32 {
	var ids []int32
	for k := range c.ctors {
		if k.state == state && k.dir == dir {
			ids = append(ids, k.id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// EncodePacket кодирует id и тело пакета (без префикса длины кадра).
func EncodePacket(p Packet) []byte {
	w := codec.NewWriter(32)
	w.VarInt(p.ID())
	p.Encode(w)
	return w.Bytes()
}

// DecodePacket разбирает полезную нагрузку кадра (id + тело). Тело должно
// занять ровно весь остаток, иначе ErrFrameLengthMismatch.
func DecodePacket(c *Catalog, state State, dir Direction, payload []byte) (Packet, error) {
	r := codec.NewReader(payload)
	id, err := r.VarInt()
	if err != nil {
		return nil, fmt.Errorf("packet id: %w", err)
	}
	return decodeBody(c, state, dir, id, r)
}

// DecodeBody разбирает тело пакета с уже прочитанным id.
func DecodeBody(c *Catalog, state State, dir Direction, id int32, body []byte) (Packet, error) {
	return decodeBody(c, state, dir, id, codec.NewReader(body))
}

func decodeBody(c *Catalog, state State, dir Direction, id int32, r *codec.Reader) (Packet, error) {
	p, err := c.Resolve(state, dir, id)
	if err != nil {
		return nil, err
	}
	if err := p.Decode(r); err != nil {
		if errors.Is(err, codec.ErrTruncatedInput) {
			return nil, fmt.Errorf("%w: 0x%02X body exceeds frame: %w", ErrFrameLengthMismatch, id, err)
		}
		return nil, fmt.Errorf("decode 0x%02X in %s: %w", id, state, err)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: 0x%02X left %d unread bytes", ErrFrameLengthMismatch, id, r.Len())
	}
	return p, nil
}
