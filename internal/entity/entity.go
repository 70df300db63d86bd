// Package entity описывает сущности мира (игроки, мобы, объекты) и таблицу,
// которой владеет горутина тика.
package entity

import (
	"fmt"

	"github.com/annel0/mc-server/internal/protocol/nbt"
	"github.com/annel0/mc-server/internal/world"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

// Kind вид сущности
type Kind uint8

const (
	KindPlayer Kind = iota
	KindMob
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindPlayer:
		return "player"
	case KindMob:
		return "mob"
	case KindObject:
		return "object"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Payload данные, зависящие от вида сущности
type Payload interface {
	kind() Kind
}

// PlayerData данные игрока
type PlayerData struct {
	Name string
	UUID uuid.UUID
}

// MobData тип моба в нумерации протокола
type MobData struct {
	Type uint8
}

// ObjectData тип объекта (вагонетка, упавший блок и т.п.)
type ObjectData struct {
	Type uint8
}

func (*PlayerData) kind() Kind { return KindPlayer }
func (*MobData) kind() Kind    { return KindMob }
func (*ObjectData) kind() Kind { return KindObject }

// Entity представляет сущность в мире. Позиция: ступни, в блоках.
type Entity struct {
	ID       int32
	Kind     Kind
	Position mgl64.Vec3
	Velocity mgl64.Vec3
	Yaw      float32
	Pitch    float32
	OnGround bool
	Data     Payload
	Metadata nbt.Compound

	// Behavior вызывается каждый тик, если задан
	Behavior Ticker
}

// NewPlayer создаёт сущность игрока. ID назначает Table.Spawn.
func NewPlayer(name string, id uuid.UUID, pos mgl64.Vec3) *Entity {
	return &Entity{
		Kind:     KindPlayer,
		Position: pos,
		OnGround: true,
		Data:     &PlayerData{Name: name, UUID: id},
		Metadata: nbt.Compound{},
	}
}

// NewMob создаёт моба с гравитацией по умолчанию
func NewMob(mobType uint8, pos mgl64.Vec3) *Entity {
	return &Entity{
		Kind:     KindMob,
		Position: pos,
		Data:     &MobData{Type: mobType},
		Metadata: nbt.Compound{},
		Behavior: DefaultGravity,
	}
}

// NewObject создаёт объект с гравитацией по умолчанию
func NewObject(objType uint8, pos mgl64.Vec3) *Entity {
	return &Entity{
		Kind:     KindObject,
		Position: pos,
		Data:     &ObjectData{Type: objType},
		Metadata: nbt.Compound{},
		Behavior: DefaultGravity,
	}
}

// Player возвращает данные игрока, если сущность: игрок
func (e *Entity) Player() (*PlayerData, bool) {
	p, ok := e.Data.(*PlayerData)
	return p, ok
}

// Name возвращает имя игрока или вид сущности с id
func (e *Entity) Name() string {
	if p, ok := e.Player(); ok {
		return p.Name
	}
	return fmt.Sprintf("%s#%d", e.Kind, e.ID)
}

// Chunk возвращает чанк, в котором стоит сущность
func (e *Entity) Chunk() world.ChunkCoord {
	return world.ChunkOfPoint(e.Position.X(), e.Position.Z())
}

// BlockPos возвращает блок, в котором находятся ступни
func (e *Entity) BlockPos() world.BlockPos {
	return BlockAt(e.Position)
}

// BlockAt округляет точку вниз до блока
func BlockAt(p mgl64.Vec3) world.BlockPos {
	return world.BlockPos{X: floor(p.X()), Y: floor(p.Y()), Z: floor(p.Z())}
}

func floor(v float64) int32 {
	i := int32(v)
	if v < 0 && float64(i) != v {
		i--
	}
	return i
}

// Clone возвращает копию без поведения. Metadata копируется поверхностно.
func (e *Entity) Clone() *Entity {
	cp := *e
	cp.Behavior = nil
	switch d := e.Data.(type) {
	case *PlayerData:
		v := *d
		cp.Data = &v
	case *MobData:
		v := *d
		cp.Data = &v
	case *ObjectData:
		v := *d
		cp.Data = &v
	}
	if e.Metadata != nil {
		cp.Metadata = make(nbt.Compound, len(e.Metadata))
		for k, v := range e.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
