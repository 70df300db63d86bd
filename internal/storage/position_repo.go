// Package storage хранит состояние сервера вне памяти: чанки в badger и
// последние позиции игроков (память, Redis, MariaDB).
package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// ErrPositionNotFound позиции для игрока нет
var ErrPositionNotFound = errors.New("storage: position not found")

// Position последняя позиция игрока между сессиями
type Position struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Yaw   float32 `json:"yaw"`
	Pitch float32 `json:"pitch"`
}

// Validate проверяет, что координаты конечны и высота разумна
func (p Position) Validate() error {
	for _, v := range []float64{p.X, p.Y, p.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("недействительная координата: %v", p)
		}
	}
	if p.Y < -64 || p.Y > 512 {
		return fmt.Errorf("недействительная высота %.2f", p.Y)
	}
	return nil
}

// PositionRepo определяет интерфейс для сохранения и загрузки позиций игроков.
// Позиции привязаны к UUID игрока, а не к id сущности, поэтому переживают
// переподключение.
type PositionRepo interface {
	// Save сохраняет позицию игрока
	Save(ctx context.Context, playerID string, pos Position) error

	// Load возвращает позицию и false, если игрок входит впервые
	Load(ctx context.Context, playerID string) (Position, bool, error)

	// Delete удаляет позицию. ErrPositionNotFound, если её не было.
	Delete(ctx context.Context, playerID string) error

	// BatchSave сохраняет позиции нескольких игроков (автосохранение)
	BatchSave(ctx context.Context, positions map[string]Position) error

	Close() error
}

func validateBatch(positions map[string]Position) error {
	for id, pos := range positions {
		if id == "" {
			return errors.New("пустой playerID в batch")
		}
		if err := pos.Validate(); err != nil {
			return fmt.Errorf("игрок %s: %w", id, err)
		}
	}
	return nil
}
