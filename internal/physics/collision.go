// Package physics считает ограничивающие параллелепипеды сущностей и блоков.
package physics

import (
	"github.com/annel0/mc-server/internal/world"
	"github.com/go-gl/mathgl/mgl64"
)

// Размеры хитбокса игрока в блоках
const (
	PlayerWidth  = 0.6
	PlayerHeight = 1.8
)

// BoxCollider размеры хитбокса сущности, позиция сущности в центре
// нижней грани
type BoxCollider struct {
	Width  float64
	Height float64
}

// PlayerCollider хитбокс игрока
var PlayerCollider = BoxCollider{Width: PlayerWidth, Height: PlayerHeight}

// AABB параллелепипед, выровненный по осям
type AABB struct {
	Min, Max mgl64.Vec3
}

// At возвращает хитбокс коллайдера для сущности в pos
func (bc BoxCollider) At(pos mgl64.Vec3) AABB {
	half := bc.Width / 2
	return AABB{
		Min: mgl64.Vec3{pos.X() - half, pos.Y(), pos.Z() - half},
		Max: mgl64.Vec3{pos.X() + half, pos.Y() + bc.Height, pos.Z() + half},
	}
}

// BlockBox полный куб блока
func BlockBox(pos world.BlockPos) AABB {
	min := mgl64.Vec3{float64(pos.X), float64(pos.Y), float64(pos.Z)}
	return AABB{Min: min, Max: min.Add(mgl64.Vec3{1, 1, 1})}
}

// Intersects проверяет пересечение с ненулевым объёмом. Касание гранью
// столкновением не считается.
func (a AABB) Intersects(b AABB) bool {
	return a.Min.X() < b.Max.X() && a.Max.X() > b.Min.X() &&
		a.Min.Y() < b.Max.Y() && a.Max.Y() > b.Min.Y() &&
		a.Min.Z() < b.Max.Z() && a.Max.Z() > b.Min.Z()
}
