// Package world хранит воксельный мир, разбитый на чанки: чтение и запись
// блоков с сериализацией по чанку, журнал изменений для рассылки дельт,
// загрузку через провайдер и выгрузку неиспользуемых чанков.
package world

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/annel0/mc-server/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultGracePeriod   = 30 * time.Second
	DefaultEvictInterval = 10 * time.Second
	DefaultRetryWait     = 50 * time.Millisecond
)

// Saver сохраняет изменённые чанки перед выгрузкой
type Saver interface {
	SaveChunk(ctx context.Context, coord ChunkCoord, data []byte) error
}

// Options настраивает Store
type Options struct {
	Provider      ChunkProvider
	Saver         Saver
	GracePeriod   time.Duration
	EvictInterval time.Duration
	ChangeLogSize int
	RetryWait     time.Duration
	Now           func() time.Time
}

// Store авторитетное хранилище чанков.
//
// Порядок блокировок: Store.mu, затем Chunk.mu. Запись держит Store.mu на
// чтение, выгрузка: на запись, поэтому выгрузка не пересекается с SetBlock
// того же чанка. Чтения видят состояние не старше последнего тика, но не
// упорядочены с намерениями, ещё ждущими в очередях тика.
type Store struct {
	provider      ChunkProvider
	saver         Saver
	grace         time.Duration
	evictInterval time.Duration
	logSize       int
	retryWait     time.Duration
	now           func() time.Time

	mu     sync.RWMutex
	chunks map[ChunkCoord]*Chunk

	dirtyMu sync.Mutex
	dirty   map[ChunkCoord]struct{}

	loads  singleflight.Group
	logger *logging.Logger
	tracer trace.Tracer
}

// NewStore создаёт хранилище. Без провайдера чанки создаются пустыми.
func NewStore(opts Options) *Store {
	if opts.Provider == nil {
		opts.Provider = EmptyProvider
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.EvictInterval <= 0 {
		opts.EvictInterval = DefaultEvictInterval
	}
	if opts.ChangeLogSize <= 0 {
		opts.ChangeLogSize = DefaultChangeLogSize
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = DefaultRetryWait
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		provider:      opts.Provider,
		saver:         opts.Saver,
		grace:         opts.GracePeriod,
		evictInterval: opts.EvictInterval,
		logSize:       opts.ChangeLogSize,
		retryWait:     opts.RetryWait,
		now:           opts.Now,
		chunks:        make(map[ChunkCoord]*Chunk),
		dirty:         make(map[ChunkCoord]struct{}),
		logger:        logging.GetWorldLogger(),
		tracer:        otel.Tracer("mc-server/world"),
	}
}

// Chunk возвращает загруженный чанк без обращения к провайдеру
func (s *Store) Chunk(coord ChunkCoord) (*Chunk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chunks[coord]
	return c, ok
}

// Loaded возвращает число загруженных чанков
func (s *Store) Loaded() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// LoadedCoords возвращает координаты загруженных чанков
func (s *Store) LoadedCoords() []ChunkCoord {
	s.mu.RLock()
	out := make([]ChunkCoord, 0, len(s.chunks))
	for coord := range s.chunks {
		out = append(out, coord)
	}
	s.mu.RUnlock()
	sortCoords(out)
	return out
}

// LoadOrCreateChunk возвращает чанк из кэша или запрашивает его у провайдера.
// Одновременные загрузки одних координат сводятся к одному вызову провайдера.
func (s *Store) LoadOrCreateChunk(ctx context.Context, coord ChunkCoord) (*Chunk, error) {
	if c, ok := s.Chunk(coord); ok {
		return c, nil
	}

	// общая загрузка не зависит от отмены контекста первого вызвавшего:
	// остальные ожидающие получат чанк, даже если он ушёл
	ch := s.loads.DoChan(coord.String(), func() (interface{}, error) {
		if c, ok := s.Chunk(coord); ok {
			return c, nil
		}

		ctx, span := s.tracer.Start(context.WithoutCancel(ctx), "world.LoadChunk", trace.WithAttributes(
			attribute.Int("chunk.x", int(coord.X)),
			attribute.Int("chunk.z", int(coord.Z)),
		))
		defer span.End()

		c, err := provideWithRetry(ctx, s.provider, coord, s.retryWait)
		if err != nil {
			span.RecordError(err)
			s.logger.Warn("⚠️ Чанк %s недоступен: %v", coord, err)
			return nil, err
		}

		c.mu.Lock()
		if len(c.log.buf) != s.logSize {
			c.log = newChangeLog(s.logSize)
		}
		c.lastTouch = s.now()
		c.mu.Unlock()

		s.mu.Lock()
		if existing, ok := s.chunks[coord]; ok {
			s.mu.Unlock()
			return existing, nil
		}
		s.chunks[coord] = c
		s.mu.Unlock()

		s.logger.Debug("Чанк %s загружен", coord)
		return c, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Chunk), nil
	}
}

// withChunk выполняет fn под блокировкой опубликованного чанка. Если чанк
// выгрузили между загрузкой и захватом блокировки, он загружается заново.
func (s *Store) withChunk(ctx context.Context, coord ChunkCoord, fn func(c *Chunk)) error {
	for {
		c, err := s.LoadOrCreateChunk(ctx, coord)
		if err != nil {
			return err
		}
		s.mu.RLock()
		if s.chunks[coord] != c {
			s.mu.RUnlock()
			if err := ctx.Err(); err != nil {
				return err
			}
			continue
		}
		c.mu.Lock()
		fn(c)
		c.mu.Unlock()
		s.mu.RUnlock()
		return nil
	}
}

// GetBlock возвращает блок, при необходимости загружая чанк
func (s *Store) GetBlock(ctx context.Context, pos BlockPos) (BlockState, error) {
	if !pos.InBounds() {
		return Air, fmt.Errorf("%w: %s", ErrOutOfBounds, pos)
	}
	c, err := s.LoadOrCreateChunk(ctx, pos.Chunk())
	if err != nil {
		return Air, err
	}
	x, y, z := pos.Local()
	c.mu.Lock()
	st := c.blockLocked(x, y, z)
	c.lastTouch = s.now()
	c.mu.Unlock()
	return st, nil
}

// SetBlock единственный путь изменения мира. Запись сериализуется по чанку,
// попадает в журнал изменений и помечает чанк для рассылки. Возвращает
// прежнее состояние.
func (s *Store) SetBlock(ctx context.Context, pos BlockPos, st BlockState) (BlockState, error) {
	if !pos.InBounds() {
		return Air, fmt.Errorf("%w: %s", ErrOutOfBounds, pos)
	}
	coord := pos.Chunk()
	var old BlockState
	err := s.withChunk(ctx, coord, func(c *Chunk) {
		old = c.setLocked(pos, st, s.now())
	})
	if err != nil {
		return Air, err
	}

	s.dirtyMu.Lock()
	s.dirty[coord] = struct{}{}
	s.dirtyMu.Unlock()
	return old, nil
}

// BlocksChangedSince возвращает изменения чанка после курсора и новый курсор.
// ErrCursorExpired журнал уже не покрывает курсор.
func (s *Store) BlocksChangedSince(coord ChunkCoord, cursor uint64) ([]Change, uint64, error) {
	c, ok := s.Chunk(coord)
	if !ok {
		return nil, cursor, fmt.Errorf("%w: %s", ErrChunkNotLoaded, coord)
	}
	return c.Changes(cursor)
}

// Subscribe загружает чанк и увеличивает счётчик подписчиков
func (s *Store) Subscribe(ctx context.Context, coord ChunkCoord) (*Chunk, error) {
	var chunk *Chunk
	err := s.withChunk(ctx, coord, func(c *Chunk) {
		c.subscribers++
		c.lastTouch = s.now()
		chunk = c
	})
	return chunk, err
}

// Unsubscribe уменьшает счётчик подписчиков
func (s *Store) Unsubscribe(coord ChunkCoord) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chunks[coord]
	if !ok {
		return
	}
	c.mu.Lock()
	if c.subscribers > 0 {
		c.subscribers--
	}
	c.lastTouch = s.now()
	c.mu.Unlock()
}

// DrainDirty возвращает чанки, изменённые после предыдущего вызова
func (s *Store) DrainDirty() []ChunkCoord {
	s.dirtyMu.Lock()
	out := make([]ChunkCoord, 0, len(s.dirty))
	for coord := range s.dirty {
		out = append(out, coord)
	}
	s.dirty = make(map[ChunkCoord]struct{})
	s.dirtyMu.Unlock()
	sortCoords(out)
	return out
}

// UnloadChunk выгружает чанк, если на него никто не подписан. Несохранённые
// изменения предварительно отдаются Saver. Возвращает true, если чанк выгружен.
func (s *Store) UnloadChunk(ctx context.Context, coord ChunkCoord) bool {
	c, ok := s.Chunk(coord)
	if !ok {
		return false
	}
	return s.evict(ctx, c, time.Time{}, false)
}

// Evict выгружает чанки без подписчиков, не тронутые дольше grace-периода.
func (s *Store) Evict(ctx context.Context, now time.Time) int {
	var candidates []*Chunk
	s.mu.RLock()
	for _, c := range s.chunks {
		c.mu.Lock()
		if c.subscribers == 0 && now.Sub(c.lastTouch) >= s.grace {
			candidates = append(candidates, c)
		}
		c.mu.Unlock()
	}
	s.mu.RUnlock()

	evicted := 0
	for _, c := range candidates {
		if s.evict(ctx, c, now, true) {
			evicted++
		}
	}
	if evicted > 0 {
		s.logger.Debug("🧹 Выгружено чанков: %d, осталось: %d", evicted, s.Loaded())
	}
	return evicted
}

func (s *Store) evict(ctx context.Context, c *Chunk, now time.Time, requireIdle bool) bool {
	if s.saver != nil {
		if err := s.saveChunk(ctx, c); err != nil {
			s.logger.Error("Не удалось сохранить чанк %s: %v", c.Coord, err)
			return false
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chunks[c.Coord] != c {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribers > 0 {
		return false
	}
	if requireIdle && now.Sub(c.lastTouch) < s.grace {
		return false
	}
	// запись могла прийти после сохранения
	if s.saver != nil && c.unsavedLocked() {
		return false
	}
	c.evicted = true
	delete(s.chunks, c.Coord)

	s.dirtyMu.Lock()
	delete(s.dirty, c.Coord)
	s.dirtyMu.Unlock()
	return true
}

func (s *Store) saveChunk(ctx context.Context, c *Chunk) error {
	c.mu.Lock()
	unsaved := c.unsavedLocked()
	c.mu.Unlock()
	if !unsaved {
		return nil
	}
	data, seq := c.Encode()
	if err := s.saver.SaveChunk(ctx, c.Coord, data); err != nil {
		return err
	}
	c.markSaved(seq)
	return nil
}

// Flush сохраняет все изменённые чанки
func (s *Store) Flush(ctx context.Context) error {
	if s.saver == nil {
		return nil
	}
	s.mu.RLock()
	chunks := make([]*Chunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		chunks = append(chunks, c)
	}
	s.mu.RUnlock()

	var errs []error
	for _, c := range chunks {
		if err := s.saveChunk(ctx, c); err != nil {
			errs = append(errs, fmt.Errorf("chunk %s: %w", c.Coord, err))
		}
	}
	return errors.Join(errs...)
}

// Run периодически выгружает простаивающие чанки до отмены контекста
func (s *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(s.evictInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Evict(ctx, s.now())
		}
	}
}

func sortCoords(cs []ChunkCoord) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].X != cs[j].X {
			return cs[i].X < cs[j].X
		}
		return cs[i].Z < cs[j].Z
	})
}
