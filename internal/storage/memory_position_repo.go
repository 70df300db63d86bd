package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// MemoryPositionRepo реализует PositionRepo в памяти.
// Используется, когда внешнее хранилище не настроено, и в тестах.
// Данные теряются при перезапуске сервера.
type MemoryPositionRepo struct {
	mu   sync.RWMutex
	data map[string]Position
}

// NewMemoryPositionRepo создает новый репозиторий позиций в памяти.
func NewMemoryPositionRepo() *MemoryPositionRepo {
	return &MemoryPositionRepo{
		data: make(map[string]Position),
	}
}

// Save сохраняет позицию игрока в памяти.
func (r *MemoryPositionRepo) Save(ctx context.Context, playerID string, pos Position) error {
	if playerID == "" {
		return errors.New("пустой playerID")
	}
	if err := pos.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[playerID] = pos
	return nil
}

// Load загружает позицию игрока из памяти.
func (r *MemoryPositionRepo) Load(ctx context.Context, playerID string) (Position, bool, error) {
	if playerID == "" {
		return Position{}, false, errors.New("пустой playerID")
	}
	if err := ctx.Err(); err != nil {
		return Position{}, false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	pos, exists := r.data[playerID]
	return pos, exists, nil
}

// Delete удаляет сохраненную позицию игрока из памяти.
func (r *MemoryPositionRepo) Delete(ctx context.Context, playerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[playerID]; !exists {
		return fmt.Errorf("%w: %s", ErrPositionNotFound, playerID)
	}
	delete(r.data, playerID)
	return nil
}

// BatchSave сохраняет позиции нескольких игроков. Батч применяется целиком
// или не применяется вовсе.
func (r *MemoryPositionRepo) BatchSave(ctx context.Context, positions map[string]Position) error {
	if len(positions) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateBatch(positions); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, pos := range positions {
		r.data[id] = pos
	}
	return nil
}

// Count возвращает количество сохраненных позиций.
func (r *MemoryPositionRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

func (r *MemoryPositionRepo) Close() error { return nil }
