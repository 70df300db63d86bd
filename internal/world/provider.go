package world

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ChunkProvider выдаёт чанк для координат, которых ещё нет в хранилище:
// генератор мира или загрузка из постоянного хранилища.
type ChunkProvider interface {
	Provide(ctx context.Context, coord ChunkCoord) (*Chunk, error)
}

// ProviderFunc позволяет использовать функцию как ChunkProvider
type ProviderFunc func(ctx context.Context, coord ChunkCoord) (*Chunk, error)

func (f ProviderFunc) Provide(ctx context.Context, coord ChunkCoord) (*Chunk, error) {
	return f(ctx, coord)
}

// EmptyProvider создаёт пустые чанки
var EmptyProvider = ProviderFunc(func(_ context.Context, coord ChunkCoord) (*Chunk, error) {
	return NewChunk(coord), nil
})

var errNilChunk = errors.New("provider returned nil chunk")

// provideWithRetry вызывает провайдер и один раз повторяет попытку после паузы.
func provideWithRetry(ctx context.Context, p ChunkProvider, coord ChunkCoord, wait time.Duration) (*Chunk, error) {
	var chunk *Chunk
	op := func() error {
		c, err := p.Provide(ctx, coord)
		if err != nil {
			return err
		}
		if c == nil {
			return errNilChunk
		}
		chunk = c
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = wait
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, 1), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrChunkProviderFailure, coord, err)
	}
	chunk.Coord = coord
	return chunk, nil
}
