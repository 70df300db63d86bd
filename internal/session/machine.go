// Package session реализует конечный автомат состояний соединения
// (Handshake → Status | Login → Play) и маршрутизацию входящих пакетов.
package session

import (
	"fmt"
	"sync"

	"github.com/annel0/mc-server/internal/logging"
	"github.com/annel0/mc-server/internal/protocol/codec"
	"github.com/annel0/mc-server/internal/protocol/packet"
)

// HandlerFunc обрабатывает декодированный входящий пакет.
type HandlerFunc func(p packet.Packet) error

type routeKey struct {
	state packet.State
	id    int32
}

// Допустимые переходы. Возврата в предыдущее состояние нет.
var transitions = map[packet.State][]packet.State{
	packet.Handshake: {packet.Status, packet.Login},
	packet.Login:     {packet.Play},
}

// CanTransition сообщает, есть ли ребро from → to в таблице переходов.
func CanTransition(from, to packet.State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Machine автомат состояний одного соединения. Множество разрешённых id
// в каждом состоянии задаётся зарегистрированными маршрутами.
type Machine struct {
	catalog *packet.Catalog
	routes  map[routeKey]HandlerFunc
	logger  *logging.Logger

	mu       sync.RWMutex
	state    packet.State
	closed   bool
	onChange func(from, to packet.State)
}

// New создаёт машину в состоянии Handshake.
func New(catalog *packet.Catalog) *Machine {
	if catalog == nil {
		catalog = packet.Default()
	}
	return &Machine{
		catalog: catalog,
		routes:  make(map[routeKey]HandlerFunc),
		logger:  logging.GetComponentLogger("session"),
		state:   packet.Handshake,
	}
}

// Handle регистрирует обработчик входящего пакета id в состоянии state.
// Регистрация id, которого нет в каталоге,: ошибка программиста.
func (m *Machine) Handle(state packet.State, id int32, h HandlerFunc) {
	if !m.catalog.Lookup(state, packet.Serverbound, id) {
		panic(fmt.Sprintf("session: packet 0x%02X is not serverbound in %s", id, state))
	}
	m.mu.Lock()
	m.routes[routeKey{state, id}] = h
	m.mu.Unlock()
}

// OnTransition задаёт колбэк, вызываемый после каждого успешного перехода.
func (m *Machine) OnTransition(fn func(from, to packet.State)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// State возвращает текущее состояние.
func (m *Machine) State() packet.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Closed сообщает, закрыта ли машина.
func (m *Machine) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// Permitted сообщает, есть ли маршрут для id в текущем состоянии.
func (m *Machine) Permitted(id int32) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.routes[routeKey{m.state, id}]
	return ok
}

// Transition переводит машину в состояние to. Переход вне таблицы —
// нарушение протокола.
func (m *Machine) Transition(to packet.State) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	from := m.state
	if !CanTransition(from, to) {
		m.mu.Unlock()
		return &ViolationError{State: from, ID: -1, Reason: fmt.Sprintf("illegal transition %s → %s", from, to)}
	}
	m.state = to
	cb := m.onChange
	m.mu.Unlock()

	m.logger.Debug("🔀 %s → %s", from, to)
	if cb != nil {
		cb(from, to)
	}
	return nil
}

// AcceptHandshake выполняет переход, заданный полем NextState рукопожатия.
func (m *Machine) AcceptHandshake(hs *packet.HandshakePacket) (packet.State, error) {
	var next packet.State
	switch hs.NextState {
	case packet.NextStateStatus:
		next = packet.Status
	case packet.NextStateLogin:
		next = packet.Login
	default:
		return m.State(), Violation(packet.Handshake, hs.ID(), "unknown next state %d", hs.NextState)
	}
	return next, m.Transition(next)
}

// Close закрывает машину. Повторный вызов безопасен.
func (m *Machine) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

// DispatchFrame разбирает id из полезной нагрузки кадра и вызывает Dispatch.
func (m *Machine) DispatchFrame(payload []byte) error {
	id, n, err := codec.DecodeVarInt(payload)
	if err != nil {
		return &ViolationError{State: m.State(), ID: -1, Reason: "bad packet id", Err: err}
	}
	return m.Dispatch(id, payload[n:])
}

// Dispatch декодирует тело пакета id в текущем состоянии и передаёт его
// обработчику. Неизвестный id, id без маршрута и ошибка разбора возвращаются
// как *ViolationError.
func (m *Machine) Dispatch(id int32, body []byte) error {
	m.mu.RLock()
	state, closed := m.state, m.closed
	h, ok := m.routes[routeKey{state, id}]
	m.mu.RUnlock()

	if closed {
		return ErrClosed
	}
	if !ok {
		if _, err := m.catalog.Resolve(state, packet.Serverbound, id); err != nil {
			return &ViolationError{State: state, ID: id, Reason: "unknown packet", Err: err}
		}
		return Violation(state, id, "packet not permitted")
	}

	p, err := packet.DecodeBody(m.catalog, state, packet.Serverbound, id, body)
	if err != nil {
		return &ViolationError{State: state, ID: id, Reason: "malformed packet", Err: err}
	}
	return h(p)
}
