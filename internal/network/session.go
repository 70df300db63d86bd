package network

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/mc-server/internal/logging"
	"github.com/annel0/mc-server/internal/protocol/packet"
	"github.com/annel0/mc-server/internal/session"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

var (
	// ErrSessionClosed сессия уже закрыта
	ErrSessionClosed = errors.New("network: session closed")
	// ErrSendQueueFull клиент не успевает читать, очередь отправки переполнена
	ErrSendQueueFull = errors.New("network: send queue full")
	// ErrTimedOut клиент молчит дольше ReadTimeout
	ErrTimedOut = errors.New("network: timed out")
	// ErrServerClosed менеджер остановлен
	ErrServerClosed = errors.New("network: server closed")
)

// outbound элемент очереди отправки
type outbound struct {
	p packet.Packet
	// closeAfter закрывает соединение после записи пакета
	closeAfter bool
}

// Session одно клиентское соединение. Читающая горутина декодирует кадры и
// вызывает обработчики автомата, пишущая горутина кодирует пакеты из очереди.
type Session struct {
	id      uint64
	conn    net.Conn
	mgr     *Manager
	machine *session.Machine
	logger  *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	reader *bufio.Reader
	// принадлежат читающей горутине
	readThreshold int
	limiter       *rate.Limiter
	protocol      int32

	// принадлежит пишущей горутине
	writeThreshold int

	out      chan outbound
	lastSeen atomic.Int64

	mu       sync.Mutex
	closed   bool
	joined   bool
	entityID int32
	name     string
	uuid     uuid.UUID

	done      chan struct{}
	closeOnce sync.Once
}

func newSession(m *Manager, id uint64, conn net.Conn) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:             id,
		conn:           conn,
		mgr:            m,
		machine:        session.New(m.opts.Catalog),
		logger:         m.logger.With("conn", id, "remote", conn.RemoteAddr().String()),
		ctx:            ctx,
		cancel:         cancel,
		reader:         bufio.NewReader(conn),
		readThreshold:  packet.CompressionDisabled,
		writeThreshold: packet.CompressionDisabled,
		limiter:        rate.NewLimiter(rate.Limit(m.opts.RateLimit), m.opts.RateBurst),
		out:            make(chan outbound, m.opts.SendQueue),
		done:           make(chan struct{}),
	}
	s.touch()
	s.routes()
	return s
}

// ID возвращает номер соединения
func (s *Session) ID() uint64 { return s.id }

// State возвращает текущее состояние протокола
func (s *Session) State() packet.State { return s.machine.State() }

// EntityID возвращает id сущности игрока. 0: игрок ещё не в мире.
func (s *Session) EntityID() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entityID
}

// Name возвращает имя из LoginStart
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// Done закрывается вместе с сессией
func (s *Session) Done() <-chan struct{} { return s.done }

// Send ставит пакет в очередь отправки не блокируясь. Переполненная очередь
// отключает клиента.
func (s *Session) Send(p packet.Packet) bool {
	return s.enqueue(outbound{p: p})
}

func (s *Session) enqueue(o outbound) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- o:
		return true
	case <-s.done:
		return false
	default:
		s.logger.Warn("🐢 Очередь отправки переполнена (%d), клиент отключается", cap(s.out))
		s.Close(ErrSendQueueFull)
		return false
	}
}

// Joined вызывается планировщиком, когда сущность игрока создана: сессия
// переходит в Play и отправляет LoginSuccess первым пакетом этого состояния.
func (s *Session) Joined(entityID int32) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if err := s.machine.Transition(packet.Play); err != nil {
		s.mu.Unlock()
		return err
	}
	s.joined = true
	s.entityID = entityID
	name, id := s.name, s.uuid
	s.mgr.Bind(entityID, s)
	s.mu.Unlock()

	if !s.Send(&packet.LoginSuccess{UUID: id.String(), Username: name}) {
		return ErrSessionClosed
	}
	return nil
}

// Kick отправляет причину отключения и закрывает соединение после её записи.
// В Handshake и Status причину передать некуда, соединение просто закрывается.
func (s *Session) Kick(reason string) {
	var p packet.Packet
	switch s.machine.State() {
	case packet.Login:
		p = &packet.LoginDisconnect{Reason: packet.ChatText(reason)}
	case packet.Play:
		p = &packet.Disconnect{Reason: packet.ChatText(reason)}
	default:
		s.Close(nil)
		return
	}
	s.logger.Info("👢 Отключение %q: %s", s.Name(), reason)
	if !s.enqueue(outbound{p: p, closeAfter: true}) {
		s.Close(nil)
	}
}

// Close закрывает соединение. Повторный вызов безопасен. Игрок, уже
// вошедший в мир, уходит из него на границе следующего тика.
func (s *Session) Close(cause error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		joined, entityID, name := s.joined, s.entityID, s.name
		s.mu.Unlock()

		s.cancel()
		s.machine.Close()
		_ = s.conn.Close()

		if joined {
			s.mgr.Unbind(entityID, s)
			s.mgr.opts.Scheduler.Leave(s)
		}
		s.mgr.forget(s)
		s.mgr.opts.Metrics.SessionClosed()
		close(s.done)

		switch {
		case cause == nil, errors.Is(cause, io.EOF), errors.Is(cause, net.ErrClosed), errors.Is(cause, session.ErrClosed):
			s.logger.Debug("🔌 Соединение %s закрыто", displayName(name))
		default:
			s.logger.Info("🔌 Соединение %s закрыто: %v", displayName(name), cause)
		}
	})
}

func (s *Session) touch() { s.lastSeen.Store(time.Now().UnixNano()) }

// idle возвращает время с последнего входящего кадра
func (s *Session) idle(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastSeen.Load()))
}

// readLoop читает кадры до ошибки. Любая ошибка разбора завершает сессию.
func (s *Session) readLoop() {
	var cause error
	defer func() { s.Close(cause) }()

	for {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.mgr.opts.ReadTimeout)); err != nil {
			cause = err
			return
		}
		frame, err := packet.ReadFrame(s.reader, s.readThreshold)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				err = ErrTimedOut
			}
			cause = err
			return
		}
		s.touch()

		state := s.machine.State()
		if !s.limiter.Allow() {
			cause = session.Violation(state, -1, "rate limit exceeded")
			return
		}
		s.mgr.opts.Metrics.Packet("in", state.String())

		if err := s.machine.DispatchFrame(frame); err != nil {
			var ve *session.ViolationError
			if errors.As(err, &ve) {
				logging.LogProtocolError(fmt.Sprintf("conn-%d", s.id), err, frame)
			}
			cause = err
			return
		}
	}
}

// writeLoop пишет пакеты из очереди, сбрасывая буфер, когда очередь пуста
func (s *Session) writeLoop() {
	w := bufio.NewWriter(s.conn)
	for {
		select {
		case <-s.done:
			return
		case o := <-s.out:
			if err := s.conn.SetWriteDeadline(time.Now().Add(s.mgr.opts.WriteTimeout)); err != nil {
				s.Close(err)
				return
			}
			for {
				if err := s.writePacket(w, o.p); err != nil {
					s.Close(err)
					return
				}
				if o.closeAfter || len(s.out) == 0 {
					break
				}
				o = <-s.out
			}
			if err := w.Flush(); err != nil {
				s.Close(err)
				return
			}
			if o.closeAfter {
				s.Close(nil)
				return
			}
		}
	}
}

func (s *Session) writePacket(w *bufio.Writer, p packet.Packet) error {
	if err := packet.WriteFrame(w, p, s.writeThreshold); err != nil {
		return fmt.Errorf("запись пакета %T: %w", p, err)
	}
	s.mgr.opts.Metrics.Packet("out", s.machine.State().String())
	// сжатие включается со следующего кадра
	if sc, ok := p.(*packet.SetCompression); ok {
		s.writeThreshold = int(sc.Threshold)
	}
	return nil
}

func displayName(name string) string {
	if name == "" {
		return "(без имени)"
	}
	return name
}
