package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/annel0/mc-server/internal/logging"
	"github.com/annel0/mc-server/internal/world"
	"github.com/dgraph-io/badger/v3"
	"github.com/klauspost/compress/zstd"
)

// ErrStoreClosed хранилище уже закрыто
var ErrStoreClosed = errors.New("storage: store closed")

// ChunkStore хранит закодированные чанки в BadgerDB. Значения сжаты zstd.
// Реализует world.Saver.
type ChunkStore struct {
	db      *badger.DB
	enc     *zstd.Encoder
	dec     *zstd.Decoder
	mu      sync.RWMutex
	isReady bool
	logger  *logging.Logger
}

// OpenChunkStore открывает хранилище в каталоге dataPath/world
func OpenChunkStore(dataPath string) (*ChunkStore, error) {
	opts := badger.DefaultOptions(filepath.Join(dataPath, "world"))
	opts.Logger = nil
	return openChunkStore(opts)
}

// NewMemoryChunkStore создаёт хранилище в памяти (тесты, одноразовые миры)
func NewMemoryChunkStore() (*ChunkStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return openChunkStore(opts)
}

func openChunkStore(opts badger.Options) (*ChunkStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, err
	}
	return &ChunkStore{
		db:      db,
		enc:     enc,
		dec:     dec,
		isReady: true,
		logger:  logging.GetStorageLogger(),
	}, nil
}

func chunkKey(coord world.ChunkCoord) []byte {
	return []byte(fmt.Sprintf("chunk:%d:%d", coord.X, coord.Z))
}

func metaKey(name string) []byte { return []byte("meta:" + name) }

// SaveChunk сохраняет закодированный чанк (формат world.Chunk.Encode)
func (s *ChunkStore) SaveChunk(ctx context.Context, coord world.ChunkCoord, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isReady {
		return ErrStoreClosed
	}

	value := s.enc.EncodeAll(data, make([]byte, 0, len(data)/4))
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(chunkKey(coord), value)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}
	s.logger.Debug("💾 Чанк %s сохранён (%d → %d байт)", coord, len(data), len(value))
	return nil
}

// LoadChunk читает чанк. Второе значение false, если чанк не сохранялся.
func (s *ChunkStore) LoadChunk(ctx context.Context, coord world.ChunkCoord) (*world.Chunk, bool, error) {
	data, ok, err := s.get(ctx, chunkKey(coord))
	if err != nil || !ok {
		return nil, ok, err
	}
	raw, err := s.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, false, fmt.Errorf("чанк %s: %w", coord, err)
	}
	c, err := world.DecodeChunk(coord, raw)
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

// DeleteChunk удаляет сохранённый чанк
func (s *ChunkStore) DeleteChunk(coord world.ChunkCoord) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isReady {
		return ErrStoreClosed
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(chunkKey(coord))
	})
}

// CountChunks возвращает число сохранённых чанков
func (s *ChunkStore) CountChunks() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isReady {
		return 0, ErrStoreClosed
	}
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte("chunk:")
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// PutMeta сохраняет служебное значение мира (сид, возраст)
func (s *ChunkStore) PutMeta(name string, value []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isReady {
		return ErrStoreClosed
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(metaKey(name), value)
	})
}

// Meta читает служебное значение
func (s *ChunkStore) Meta(name string) ([]byte, bool, error) {
	return s.get(context.Background(), metaKey(name))
}

func (s *ChunkStore) get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isReady {
		return nil, false, ErrStoreClosed
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}
	return data, true, nil
}

// Close закрывает хранилище. Повторный вызов безопасен.
func (s *ChunkStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isReady {
		return nil
	}
	s.isReady = false
	s.enc.Close()
	s.dec.Close()
	return s.db.Close()
}

// PersistentProvider отдаёт сохранённые чанки, остальные запрашивает у
// Fallback (генератора).
type PersistentProvider struct {
	Store    *ChunkStore
	Fallback world.ChunkProvider
}

// Provide реализует world.ChunkProvider
func (p *PersistentProvider) Provide(ctx context.Context, coord world.ChunkCoord) (*world.Chunk, error) {
	c, ok, err := p.Store.LoadChunk(ctx, coord)
	if err != nil {
		return nil, err
	}
	if ok {
		return c, nil
	}
	if p.Fallback == nil {
		return world.NewChunk(coord), nil
	}
	return p.Fallback.Provide(ctx, coord)
}
