package auth

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrNotBanned снятие бана с игрока, которого нет в списке
var ErrNotBanned = errors.New("auth: player is not banned")

// Ban запись бан-листа. Нулевой Expires: бессрочный бан.
type Ban struct {
	Name      string    `json:"name" bson:"name"`
	Reason    string    `json:"reason" bson:"reason"`
	Source    string    `json:"source" bson:"source"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	Expires   time.Time `json:"expires,omitempty" bson:"expires,omitempty"`
}

// Active сообщает, действует ли бан в момент now
func (b Ban) Active(now time.Time) bool {
	return b.Expires.IsZero() || now.Before(b.Expires)
}

// BanList список забаненных имён. Имена сравниваются без учёта регистра.
type BanList interface {
	// IsBanned возвращает действующий бан игрока
	IsBanned(ctx context.Context, name string) (Ban, bool, error)
	Ban(ctx context.Context, ban Ban) error
	Unban(ctx context.Context, name string) error
	List(ctx context.Context) ([]Ban, error)
}

// MemoryBanList хранит баны в памяти процесса
type MemoryBanList struct {
	mu   sync.RWMutex
	bans map[string]Ban
	now  func() time.Time
}

// NewMemoryBanList создаёт пустой бан-лист
func NewMemoryBanList() *MemoryBanList {
	return &MemoryBanList{bans: make(map[string]Ban), now: time.Now}
}

func (l *MemoryBanList) IsBanned(ctx context.Context, name string) (Ban, bool, error) {
	if err := ctx.Err(); err != nil {
		return Ban{}, false, err
	}
	l.mu.RLock()
	b, ok := l.bans[normalize(name)]
	l.mu.RUnlock()
	if !ok || !b.Active(l.now()) {
		return Ban{}, false, nil
	}
	return b, true, nil
}

func (l *MemoryBanList) Ban(ctx context.Context, ban Ban) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateName(ban.Name); err != nil {
		return err
	}
	if ban.CreatedAt.IsZero() {
		ban.CreatedAt = l.now()
	}
	l.mu.Lock()
	l.bans[normalize(ban.Name)] = ban
	l.mu.Unlock()
	return nil
}

func (l *MemoryBanList) Unban(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := normalize(name)
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.bans[key]; !ok {
		return ErrNotBanned
	}
	delete(l.bans, key)
	return nil
}

// List возвращает действующие баны по алфавиту
func (l *MemoryBanList) List(ctx context.Context) ([]Ban, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := l.now()
	l.mu.RLock()
	out := make([]Ban, 0, len(l.bans))
	for _, b := range l.bans {
		if b.Active(now) {
			out = append(out, b)
		}
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return normalize(out[i].Name) < normalize(out[j].Name) })
	return out, nil
}

func normalize(name string) string {
	return strings.ToLower(name)
}
