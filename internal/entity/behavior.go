package entity

import (
	"math"

	"github.com/annel0/mc-server/internal/world"
	"github.com/go-gl/mathgl/mgl64"
)

// Surroundings даёт поведению доступ к миру на время тика
type Surroundings interface {
	// IsSolid сообщает, занят ли блок твёрдым блоком. Незагруженный чанк
	// считается твёрдым, чтобы сущности не проваливались сквозь него.
	IsSolid(pos world.BlockPos) bool
}

// Ticker пассивный хук, вызываемый для сущности раз в тик. Возвращает
// true, если сущность сдвинулась.
type Ticker interface {
	Tick(e *Entity, w Surroundings) bool
}

// TickerFunc адаптирует функцию к Ticker
type TickerFunc func(e *Entity, w Surroundings) bool

func (f TickerFunc) Tick(e *Entity, w Surroundings) bool { return f(e, w) }

// Gravity роняет сущность, пока под ней нет твёрдого блока
type Gravity struct {
	Accel    float64 // блоков/тик²
	Drag     float64 // множитель скорости за тик
	Terminal float64 // максимальная скорость падения
}

// DefaultGravity константы ванильного клиента для мобов
var DefaultGravity = &Gravity{Accel: 0.08, Drag: 0.98, Terminal: 3.92}

// Tick применяет гравитацию и скорость. Столкновения проверяются только по
// вертикали.
func (g *Gravity) Tick(e *Entity, w Surroundings) bool {
	before := e.Position

	below := BlockAt(e.Position.Sub(mgl64.Vec3{0, 0.001, 0}))
	if e.Velocity.Y() <= 0 && below.Y >= 0 && w.IsSolid(below) && e.Position.Y()-float64(below.Y+1) < 0.001 {
		e.OnGround = true
		e.Velocity = mgl64.Vec3{e.Velocity.X() * g.Drag, 0, e.Velocity.Z() * g.Drag}
	} else {
		e.OnGround = false
		vy := math.Max((e.Velocity.Y()-g.Accel)*g.Drag, -g.Terminal)
		e.Velocity = mgl64.Vec3{e.Velocity.X(), vy, e.Velocity.Z()}
	}

	next := e.Position.Add(e.Velocity)
	if e.Velocity.Y() < 0 {
		// ищем первый твёрдый блок на пути вниз
		for y := floor(e.Position.Y()) - 1; y >= floor(next.Y()); y-- {
			if y < 0 {
				break
			}
			pos := world.BlockPos{X: floor(next.X()), Y: y, Z: floor(next.Z())}
			if w.IsSolid(pos) {
				next = mgl64.Vec3{next.X(), float64(y + 1), next.Z()}
				e.Velocity = mgl64.Vec3{e.Velocity.X(), 0, e.Velocity.Z()}
				e.OnGround = true
				break
			}
		}
	}
	// упали за пределы мира
	if next.Y() < -64 {
		next = mgl64.Vec3{next.X(), -64, next.Z()}
		e.Velocity = mgl64.Vec3{}
	}
	e.Position = next
	return !e.Position.ApproxEqual(before)
}
