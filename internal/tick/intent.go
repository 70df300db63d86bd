package tick

import (
	"github.com/annel0/mc-server/internal/world"
	"github.com/go-gl/mathgl/mgl64"
)

// Intent запрос клиента на изменение мира. Сессия только складывает
// намерения в почтовый ящик, применяет их тик.
type Intent interface {
	intent()
}

// MoveIntent новая позиция игрока
type MoveIntent struct {
	Position mgl64.Vec3
	OnGround bool
}

// LookIntent поворот головы
type LookIntent struct {
	Yaw, Pitch float32
	OnGround   bool
}

// DigIntent копание блока. Status берётся из PlayerDigging.
type DigIntent struct {
	Status int8
	Pos    world.BlockPos
	Face   int8
}

// PlaceIntent установка блока рядом с гранью Face блока Target
type PlaceIntent struct {
	Target world.BlockPos
	Face   int8
	ItemID int16
	Meta   int16 // damage предмета в руке, для блоков 0..15
}

// ChatIntent сообщение в чат
type ChatIntent struct {
	Message string
}

// SettingsIntent настройки клиента, влияющие на сервер
type SettingsIntent struct {
	ViewDistance int8
	Locale       string
}

func (MoveIntent) intent()     {}
func (LookIntent) intent()     {}
func (DigIntent) intent()      {}
func (PlaceIntent) intent()    {}
func (ChatIntent) intent()     {}
func (SettingsIntent) intent() {}
