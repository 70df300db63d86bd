// Package tick реализует игровой цикл. Одна горутина тика владеет таблицей сущностей
// и маршрутизацией сессий: применяет намерения из почтовых ящиков, двигает
// сущности, собирает изменения мира и рассылает их подписанным сессиям.
package tick

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/mc-server/internal/entity"
	"github.com/annel0/mc-server/internal/eventbus"
	"github.com/annel0/mc-server/internal/logging"
	"github.com/annel0/mc-server/internal/observability"
	"github.com/annel0/mc-server/internal/protocol/packet"
	"github.com/annel0/mc-server/internal/storage"
	"github.com/annel0/mc-server/internal/world"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

const (
	DefaultTickRate          = 20
	DefaultMaxMovePerTick    = 10.0
	DefaultChunkLoadsPerTick = 16
	DefaultViewDistance      = 8
	MinViewDistance          = 2
	DefaultAutosaveInterval  = time.Minute

	// MaxReach дальность копания и установки блоков от глаз игрока
	MaxReach = 6.0
	// eyeHeight высота глаз над ногами
	eyeHeight = 1.62

	eventQueueSize = 1024
	publishTimeout = 2 * time.Second
	saveTimeout    = 10 * time.Second
)

// Режимы игры
const (
	GamemodeSurvival  uint8 = 0
	GamemodeCreative  uint8 = 1
	GamemodeAdventure uint8 = 2
	GamemodeSpectator uint8 = 3
)

var ErrNoStore = errors.New("tick: world store is required")

// Conn сессия, как её видит планировщик. Реализация обязана быть
// неблокирующей: все методы вызываются из горутины тика.
type Conn interface {
	// Send ставит пакет в очередь отправки. false — очередь переполнена или
	// соединение закрыто, сессия в этом случае отключается сама.
	Send(p packet.Packet) bool
	// Joined вызывается при создании сущности игрока: сессия отправляет
	// LoginSuccess, переходит в Play и запоминает id. Ошибка отменяет вход.
	Joined(entityID int32) error
	// Kick отключает клиента с причиной
	Kick(reason string)
}

// JoinRequest запрос на вход игрока после успешного Login
type JoinRequest struct {
	Conn Conn
	Name string
	UUID uuid.UUID
	// Position последняя сохранённая позиция, nil: точка спавна
	Position *storage.Position
}

// Options настраивает планировщик
type Options struct {
	Store             *world.Store
	TickRate          int
	MaxMovePerTick    float64
	ChunkLoadsPerTick int
	ViewDistance      int // верхняя граница дальности прорисовки
	MailboxSize       int

	Spawn      mgl64.Vec3
	Gamemode   uint8
	Difficulty uint8
	MaxPlayers int
	LevelType  string
	Brand      string

	Bus              eventbus.EventBus
	Metrics          *observability.Metrics
	Positions        storage.PositionRepo
	AutosaveInterval time.Duration

	Now func() time.Time
}

func (o *Options) setDefaults() {
	if o.TickRate <= 0 {
		o.TickRate = DefaultTickRate
	}
	if o.MaxMovePerTick <= 0 {
		o.MaxMovePerTick = DefaultMaxMovePerTick
	}
	if o.ChunkLoadsPerTick <= 0 {
		o.ChunkLoadsPerTick = DefaultChunkLoadsPerTick
	}
	if o.ViewDistance <= 0 {
		o.ViewDistance = DefaultViewDistance
	}
	o.ViewDistance = max(o.ViewDistance, MinViewDistance)
	if o.MailboxSize <= 0 {
		o.MailboxSize = DefaultMailboxSize
	}
	if o.Spawn == (mgl64.Vec3{}) {
		o.Spawn = mgl64.Vec3{0.5, 4, 0.5}
	}
	if o.MaxPlayers <= 0 {
		o.MaxPlayers = 20
	}
	if o.LevelType == "" {
		o.LevelType = "flat"
	}
	if o.Brand == "" {
		o.Brand = "mc-server"
	}
	if o.AutosaveInterval == 0 {
		o.AutosaveInterval = DefaultAutosaveInterval
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// PlayerInfo копия состояния игрока для чтения вне тика
type PlayerInfo struct {
	EntityID     int32
	Name         string
	UUID         uuid.UUID
	Position     mgl64.Vec3
	Yaw, Pitch   float32
	OnGround     bool
	ViewDistance int
	Chunks       int
}

// Snapshot неизменяемый снимок состояния, публикуемый раз в тик
type Snapshot struct {
	Tick         uint64
	WorldAge     int64
	TimeOfDay    int64
	TPS          float64
	Duration     time.Duration
	Entities     int
	LoadedChunks int
	Players      []PlayerInfo
}

// membership элемент очереди входа и выхода
type membership struct {
	join  *JoinRequest
	leave Conn
}

// Scheduler игровой цикл
type Scheduler struct {
	opts  Options
	store *world.Store
	table *entity.Table

	// принадлежат горутине тика
	views   map[int32]*view
	conns   map[Conn]int32
	scratch []Intent

	queueMu sync.Mutex
	queue   []membership

	mailMu    sync.RWMutex
	mailboxes map[int32]*Mailbox

	events  chan *eventbus.Envelope
	pubDone chan struct{}
	saves   sync.WaitGroup
	closed  bool

	ticks     uint64
	age       int64
	timeOfDay int64
	starts    []time.Time

	snapshot atomic.Pointer[Snapshot]
	logger   *logging.Logger
}

// NewScheduler создаёт планировщик. Публикация событий в шину идёт из
// отдельной горутины, которая завершается в Shutdown.
func NewScheduler(opts Options) (*Scheduler, error) {
	if opts.Store == nil {
		return nil, ErrNoStore
	}
	opts.setDefaults()
	s := &Scheduler{
		opts:      opts,
		store:     opts.Store,
		table:     entity.NewTable(),
		views:     make(map[int32]*view),
		conns:     make(map[Conn]int32),
		mailboxes: make(map[int32]*Mailbox),
		events:    make(chan *eventbus.Envelope, eventQueueSize),
		pubDone:   make(chan struct{}),
		logger:    logging.GetTickLogger(),
	}
	s.snapshot.Store(&Snapshot{})
	go s.publishLoop()
	return s, nil
}

// Interval возвращает бюджет одного тика
func (s *Scheduler) Interval() time.Duration {
	return time.Second / time.Duration(s.opts.TickRate)
}

// Join ставит вход игрока в очередь. Сущность появится в начале следующего тика.
func (s *Scheduler) Join(req JoinRequest) {
	s.queueMu.Lock()
	s.queue = append(s.queue, membership{join: &req})
	s.queueMu.Unlock()
}

// Leave ставит выход сессии в очередь. Повторный вызов безопасен.
func (s *Scheduler) Leave(c Conn) {
	s.queueMu.Lock()
	s.queue = append(s.queue, membership{leave: c})
	s.queueMu.Unlock()
}

// Submit кладёт намерение в почтовый ящик сущности. false: сущности нет
// или ящик переполнен (намерение отброшено).
func (s *Scheduler) Submit(entityID int32, it Intent) bool {
	s.mailMu.RLock()
	mb, ok := s.mailboxes[entityID]
	s.mailMu.RUnlock()
	if !ok {
		return false
	}
	if !mb.Push(it) {
		s.opts.Metrics.IntentDropped()
		s.logger.Debug("📪 Ящик сущности %d переполнен, намерение %T отброшено", entityID, it)
		return false
	}
	return true
}

// Snapshot возвращает последний опубликованный снимок
func (s *Scheduler) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

// Run крутит тики до отмены ctx, затем вызывает Shutdown. Пропущенные тики не
// догоняются: time.Ticker хранит не больше одного ожидающего срабатывания.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.Interval())
	defer ticker.Stop()
	s.logger.Info("⏱️ Игровой цикл запущен: %d тиков/с", s.opts.TickRate)

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), saveTimeout)
			defer cancel()
			s.Shutdown(shutdownCtx)
			return nil
		case <-ticker.C:
			s.Step(ctx)
		}
	}
}

// Step выполняет один тик
func (s *Scheduler) Step(ctx context.Context) {
	start := s.opts.Now()

	s.processMembership()
	s.applyIntents(ctx)
	s.table.TickAll(storeSurroundings{store: s.store})

	dirty := s.store.DrainDirty()
	changes := s.table.Drain()
	s.updateViews(ctx, dirty, changes)

	s.advanceTime()
	s.ticks++
	s.maybeAutosave()

	elapsed := s.opts.Now().Sub(start)
	overrun := elapsed > s.Interval()
	if overrun {
		s.logger.Warn("🐢 Тик %d занял %v при бюджете %v", s.ticks, elapsed, s.Interval())
	}
	s.opts.Metrics.ObserveTick(elapsed.Seconds(), overrun)
	loaded := s.store.Loaded()
	s.opts.Metrics.SetLoadedChunks(loaded)
	s.publishSnapshot(start, elapsed, loaded)
}

// Shutdown отключает всех игроков, сохраняет их позиции и останавливает
// публикацию событий. Вызывается из горутины тика.
func (s *Scheduler) Shutdown(ctx context.Context) {
	if s.closed {
		return
	}
	s.closed = true

	batch := make(map[string]storage.Position)
	for _, id := range s.viewIDs() {
		v := s.views[id]
		if e, ok := s.table.Get(id); ok {
			if pd, ok := e.Player(); ok {
				batch[pd.UUID.String()] = positionOf(e)
			}
		}
		v.conn.Kick("Server closed")
		for coord := range v.chunks {
			s.store.Unsubscribe(coord)
		}
		s.dropMailbox(id)
		s.table.Remove(id)
		delete(s.conns, v.conn)
		delete(s.views, id)
	}
	if s.opts.Positions != nil && len(batch) > 0 {
		if err := s.opts.Positions.BatchSave(ctx, batch); err != nil {
			s.logger.Error("❌ Не удалось сохранить позиции %d игроков: %v", len(batch), err)
		} else {
			s.logger.Info("💾 Сохранены позиции %d игроков", len(batch))
		}
	}
	s.saves.Wait()

	close(s.events)
	<-s.pubDone
	s.logger.Info("🛑 Игровой цикл остановлен на тике %d", s.ticks)
}

func (s *Scheduler) advanceTime() {
	s.age++
	s.timeOfDay = (s.timeOfDay + 1) % 24000
	if s.age%int64(s.opts.TickRate) == 0 {
		s.broadcast(&packet.TimeUpdate{WorldAge: s.age, TimeOfDay: s.timeOfDay})
	}
}

func (s *Scheduler) publishSnapshot(start time.Time, elapsed time.Duration, loaded int) {
	s.starts = append(s.starts, start)
	if len(s.starts) > s.opts.TickRate+1 {
		s.starts = s.starts[1:]
	}
	tps := float64(s.opts.TickRate)
	if n := len(s.starts); n > 1 {
		if span := s.starts[n-1].Sub(s.starts[0]); span > 0 {
			tps = float64(n-1) / span.Seconds()
		}
	}

	snap := &Snapshot{
		Tick:         s.ticks,
		WorldAge:     s.age,
		TimeOfDay:    s.timeOfDay,
		TPS:          tps,
		Duration:     elapsed,
		Entities:     s.table.Len(),
		LoadedChunks: loaded,
	}
	for _, e := range s.table.Players() {
		pd, _ := e.Player()
		info := PlayerInfo{
			EntityID: e.ID,
			Name:     pd.Name,
			UUID:     pd.UUID,
			Position: e.Position,
			Yaw:      e.Yaw,
			Pitch:    e.Pitch,
			OnGround: e.OnGround,
		}
		if v, ok := s.views[e.ID]; ok {
			info.ViewDistance = v.viewDistance
			info.Chunks = len(v.chunks)
		}
		snap.Players = append(snap.Players, info)
	}
	s.snapshot.Store(snap)
}

func (s *Scheduler) maybeAutosave() {
	if s.opts.Positions == nil || s.opts.AutosaveInterval <= 0 {
		return
	}
	every := uint64(s.opts.AutosaveInterval / s.Interval())
	if every == 0 || s.ticks%every != 0 {
		return
	}
	batch := make(map[string]storage.Position)
	for _, e := range s.table.Players() {
		pd, _ := e.Player()
		batch[pd.UUID.String()] = positionOf(e)
	}
	if len(batch) == 0 {
		return
	}
	repo := s.opts.Positions
	s.saves.Add(1)
	go func() {
		defer s.saves.Done()
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if err := repo.BatchSave(ctx, batch); err != nil {
			s.logger.Warn("⚠️ Автосохранение позиций не удалось: %v", err)
			return
		}
		s.logger.Debug("💾 Автосохранение: %d позиций", len(batch))
	}()
}

func (s *Scheduler) savePosition(e *entity.Entity) {
	pd, ok := e.Player()
	if !ok || s.opts.Positions == nil {
		return
	}
	repo := s.opts.Positions
	key, pos := pd.UUID.String(), positionOf(e)
	s.saves.Add(1)
	go func() {
		defer s.saves.Done()
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if err := repo.Save(ctx, key, pos); err != nil {
			s.logger.Warn("⚠️ Не удалось сохранить позицию %s: %v", pd.Name, err)
		}
	}()
}

// publish ставит событие в очередь публикации. Очередь не блокирует тик:
// при переполнении событие теряется.
func (s *Scheduler) publish(ev *eventbus.Envelope, err error) {
	if err != nil {
		s.logger.Warn("⚠️ Не удалось собрать событие: %v", err)
		return
	}
	if s.opts.Bus == nil || s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.logger.Debug("📭 Очередь событий переполнена, %s отброшено", ev.EventType)
	}
}

func (s *Scheduler) publishLoop() {
	defer close(s.pubDone)
	for ev := range s.events {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := s.opts.Bus.Publish(ctx, ev); err != nil {
			s.logger.Warn("⚠️ Публикация %s не удалась: %v", ev.EventType, err)
		}
		cancel()
	}
}

func (s *Scheduler) mailbox(id int32) *Mailbox {
	s.mailMu.RLock()
	defer s.mailMu.RUnlock()
	return s.mailboxes[id]
}

func (s *Scheduler) dropMailbox(id int32) {
	s.mailMu.Lock()
	delete(s.mailboxes, id)
	s.mailMu.Unlock()
}

// viewIDs возвращает id игроков с сессиями по возрастанию
func (s *Scheduler) viewIDs() []int32 {
	ids := make([]int32, 0, len(s.views))
	for id := range s.views {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// broadcast отправляет пакет всем игрокам
func (s *Scheduler) broadcast(p packet.Packet) {
	for _, id := range s.viewIDs() {
		s.views[id].conn.Send(p)
	}
}

func positionOf(e *entity.Entity) storage.Position {
	return storage.Position{
		X:     e.Position.X(),
		Y:     e.Position.Y(),
		Z:     e.Position.Z(),
		Yaw:   e.Yaw,
		Pitch: e.Pitch,
	}
}

// storeSurroundings отвечает на вопросы поведения по загруженным чанкам.
// Чанки ради мобов не загружаются.
type storeSurroundings struct {
	store *world.Store
}

func (w storeSurroundings) IsSolid(pos world.BlockPos) bool {
	if !pos.InBounds() {
		return false
	}
	c, ok := w.store.Chunk(pos.Chunk())
	if !ok {
		return true
	}
	x, y, z := pos.Local()
	info, ok := c.Block(x, y, z).Info()
	return ok && info.Solid
}
