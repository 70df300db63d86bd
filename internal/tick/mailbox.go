package tick

import "sync"

// DefaultMailboxSize ёмкость почтового ящика сессии
const DefaultMailboxSize = 256

// Mailbox ограниченная очередь намерений одной сессии. Пишет горутина
// чтения сессии, забирает горутина тика.
type Mailbox struct {
	mu      sync.Mutex
	buf     []Intent
	head    int
	n       int
	dropped uint64
}

// NewMailbox создаёт ящик на size намерений
func NewMailbox(size int) *Mailbox {
	if size <= 0 {
		size = DefaultMailboxSize
	}
	return &Mailbox{buf: make([]Intent, size)}
}

// Push добавляет намерение. При заполненном ящике намерение отбрасывается
// и возвращается false.
func (m *Mailbox) Push(it Intent) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.n == len(m.buf) {
		m.dropped++
		return false
	}
	m.buf[(m.head+m.n)%len(m.buf)] = it
	m.n++
	return true
}

// Drain дописывает все намерения в dst в порядке поступления и очищает ящик
func (m *Mailbox) Drain(dst []Intent) []Intent {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < m.n; i++ {
		idx := (m.head + i) % len(m.buf)
		dst = append(dst, m.buf[idx])
		m.buf[idx] = nil
	}
	m.head = 0
	m.n = 0
	return dst
}

// Len возвращает число ожидающих намерений
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.n
}

// Dropped возвращает число отброшенных намерений
func (m *Mailbox) Dropped() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}
