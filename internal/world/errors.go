package world

import "errors"

var (
	// ErrChunkProviderFailure провайдер не смог выдать чанк даже после повтора.
	// Для вызывающего это временная недоступность чанка.
	ErrChunkProviderFailure = errors.New("world: chunk provider failure")
	// ErrCursorExpired журнал изменений уже не хранит записи после курсора,
	// нужно переслать чанк целиком.
	ErrCursorExpired = errors.New("world: change cursor expired")
	// ErrOutOfBounds высота вне [0, 256).
	ErrOutOfBounds = errors.New("world: position out of bounds")
	// ErrChunkNotLoaded чанка нет в хранилище.
	ErrChunkNotLoaded = errors.New("world: chunk not loaded")
	// ErrBadChunkData повреждённое сохранение чанка.
	ErrBadChunkData = errors.New("world: bad chunk data")
)
