// Package network принимает клиентские соединения протокола 47 и связывает
// их с игровым циклом: каждое соединение — Session с читающей и пишущей
// горутинами, вход в мир и намерения игрока идут через планировщик.
package network

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/mc-server/internal/auth"
	"github.com/annel0/mc-server/internal/logging"
	"github.com/annel0/mc-server/internal/observability"
	"github.com/annel0/mc-server/internal/protocol/packet"
	"github.com/annel0/mc-server/internal/storage"
	"github.com/annel0/mc-server/internal/tick"
	"github.com/annel0/mc-server/internal/world"
)

const (
	DefaultMaxPlayers           = 20
	DefaultMOTD                 = "A Minecraft Server"
	DefaultCompressionThreshold = 256
	DefaultKeepAliveInterval    = 20 * time.Second
	DefaultReadTimeout          = 30 * time.Second
	DefaultWriteTimeout         = 10 * time.Second
	DefaultRateLimit            = 250
	DefaultRateBurst            = 500
	DefaultSendQueue            = 1024
)

var (
	ErrNoScheduler = errors.New("network: scheduler is required")
	ErrNoStore     = errors.New("network: world store is required")
)

// Scheduler сторона игрового цикла, с которой работают сессии
type Scheduler interface {
	Join(req tick.JoinRequest)
	Leave(c tick.Conn)
	Submit(entityID int32, it tick.Intent) bool
	Snapshot() *tick.Snapshot
}

// Options настраивает менеджер соединений
type Options struct {
	Scheduler Scheduler
	Store     *world.Store
	Catalog   *packet.Catalog
	Bans      auth.BanList
	Positions storage.PositionRepo
	Metrics   *observability.Metrics

	MaxPlayers int
	MOTD       string
	// Favicon data URI, см. LoadFavicon
	Favicon string
	// CompressionThreshold 0 значит значение по умолчанию, отрицательное
	// значение выключает сжатие
	CompressionThreshold int

	KeepAliveInterval time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	RateLimit         float64 // пакетов в секунду на соединение
	RateBurst         int
	SendQueue         int
}

func (o *Options) setDefaults() {
	if o.Catalog == nil {
		o.Catalog = packet.Default()
	}
	if o.MaxPlayers <= 0 {
		o.MaxPlayers = DefaultMaxPlayers
	}
	if o.MOTD == "" {
		o.MOTD = DefaultMOTD
	}
	if o.CompressionThreshold == 0 {
		o.CompressionThreshold = DefaultCompressionThreshold
	}
	if o.CompressionThreshold < 0 {
		o.CompressionThreshold = packet.CompressionDisabled
	}
	if o.KeepAliveInterval <= 0 {
		o.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.RateLimit <= 0 {
		o.RateLimit = DefaultRateLimit
	}
	if o.RateBurst <= 0 {
		o.RateBurst = DefaultRateBurst
	}
	if o.SendQueue <= 0 {
		o.SendQueue = DefaultSendQueue
	}
}

// Manager принимает соединения и ведёт таблицу сессий
type Manager struct {
	opts   Options
	logger *logging.Logger
	nextID atomic.Uint64

	mu       sync.RWMutex
	sessions map[*Session]struct{}
	bound    map[int32]*Session
	closed   bool
}

// NewManager создаёт менеджер
func NewManager(opts Options) (*Manager, error) {
	if opts.Scheduler == nil {
		return nil, ErrNoScheduler
	}
	if opts.Store == nil {
		return nil, ErrNoStore
	}
	opts.setDefaults()
	return &Manager{
		opts:     opts,
		logger:   logging.GetNetworkLogger(),
		sessions: make(map[*Session]struct{}),
		bound:    make(map[int32]*Session),
	}, nil
}

// Serve принимает соединения с ln до отмены ctx. Слушатель закрывается при
// выходе, открытые сессии остаются до Close.
func (m *Manager) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	go m.keepAliveLoop(ctx)
	m.logger.Info("🌐 Приём соединений на %s", ln.Addr())

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			// временная ошибка: пауза растёт до секунды
			delay = min(max(delay*2, 5*time.Millisecond), time.Second)
			m.logger.Warn("Ошибка принятия соединения: %v, повтор через %v", err, delay)
			time.Sleep(delay)
			continue
		}
		delay = 0
		m.Accept(conn)
	}
}

// Accept запускает сессию для уже установленного соединения
func (m *Manager) Accept(conn net.Conn) *Session {
	s := newSession(m, m.nextID.Add(1), conn)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		conn.Close()
		return s
	}
	m.sessions[s] = struct{}{}
	m.mu.Unlock()

	m.opts.Metrics.SessionOpened()
	m.logger.Debug("🔗 Новое соединение #%d от %s", s.id, conn.RemoteAddr())
	go s.readLoop()
	go s.writeLoop()
	return s
}

// keepAliveLoop шлёт KeepAlive игрокам и отключает молчащих клиентов
func (m *Manager) keepAliveLoop(ctx context.Context) {
	ticker := time.NewTicker(m.opts.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			ka := &packet.KeepAlive{KeepAliveID: rand.Int31()}
			for _, s := range m.all() {
				if s.idle(now) > m.opts.ReadTimeout {
					m.logger.Info("⏰ Соединение #%d молчит %v, отключаем", s.id, s.idle(now).Round(time.Second))
					s.Kick("Timed out")
					continue
				}
				if s.State() == packet.Play {
					s.Send(ka)
				}
			}
		}
	}
}

// Bind связывает id сущности с сессией
func (m *Manager) Bind(entityID int32, s *Session) {
	m.mu.Lock()
	m.bound[entityID] = s
	m.mu.Unlock()
}

// Unbind снимает связь, если она всё ещё указывает на s
func (m *Manager) Unbind(entityID int32, s *Session) {
	m.mu.Lock()
	if m.bound[entityID] == s {
		delete(m.bound, entityID)
	}
	m.mu.Unlock()
}

// SessionFor возвращает сессию игрока по id сущности
func (m *Manager) SessionFor(entityID int32) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.bound[entityID]
	return s, ok
}

// SessionByName ищет сессию игрока без учёта регистра имени, включая
// игроков, ещё не вошедших в мир
func (m *Manager) SessionByName(name string) (*Session, bool) {
	for _, s := range m.all() {
		if strings.EqualFold(s.Name(), name) {
			return s, true
		}
	}
	return nil, false
}

// Online возвращает число игроков в Play
func (m *Manager) Online() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bound)
}

// Connections возвращает число открытых соединений
func (m *Manager) Connections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Players возвращает игроков из последнего снимка тика
func (m *Manager) Players() []tick.PlayerInfo {
	return m.opts.Scheduler.Snapshot().Players
}

// Broadcast отправляет пакет всем сессиям в Play и возвращает число адресатов
func (m *Manager) Broadcast(p packet.Packet) int {
	m.mu.RLock()
	targets := make([]*Session, 0, len(m.bound))
	for _, s := range m.bound {
		targets = append(targets, s)
	}
	m.mu.RUnlock()

	n := 0
	for _, s := range targets {
		if s.Send(p) {
			n++
		}
	}
	return n
}

// BroadcastMessage рассылает системное сообщение в чат
func (m *Manager) BroadcastMessage(text string) int {
	m.logger.Info("📢 [Server] %s", text)
	return m.Broadcast(&packet.ServerChatMessage{
		JSON:     packet.ChatText("[Server] " + text),
		Position: packet.ChatPositionSystem,
	})
}

// QueryBlock читает блок из мира, загружая чанк при необходимости
func (m *Manager) QueryBlock(ctx context.Context, pos world.BlockPos) (world.BlockState, error) {
	return m.opts.Store.GetBlock(ctx, pos)
}

// Kick отключает игрока по имени
func (m *Manager) Kick(name, reason string) bool {
	s, ok := m.SessionByName(name)
	if !ok {
		return false
	}
	s.Kick(reason)
	return true
}

// Close закрывает все сессии. Новые соединения после этого отклоняются.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	for _, s := range m.all() {
		s.Close(ErrServerClosed)
	}
	m.logger.Info("🛑 Менеджер соединений остановлен")
}

func (m *Manager) all() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for s := range m.sessions {
		out = append(out, s)
	}
	return out
}

func (m *Manager) forget(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s)
	m.mu.Unlock()
}
