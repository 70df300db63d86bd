package auth

import (
	"context"
	"sync"
	"time"
)

// MemoryUserRepo потокобезопасное хранилище пользователей в памяти для
// тестов и одиночного сервера
type MemoryUserRepo struct {
	mu    sync.RWMutex
	users map[string]*User // ключ: имя в нижнем регистре
}

// NewMemoryUserRepo создаёт пустое хранилище
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{users: make(map[string]*User)}
}

func (r *MemoryUserRepo) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[normalize(username)]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}

func (r *MemoryUserRepo) CreateUser(ctx context.Context, username, passwordHash string, isAdmin bool) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := normalize(username)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.users[key]; exists {
		return nil, ErrUserExists
	}
	user := &User{
		Username:     username,
		PasswordHash: passwordHash,
		IsAdmin:      isAdmin,
		CreatedAt:    time.Now(),
	}
	r.users[key] = user
	cp := *user
	return &cp, nil
}

func (r *MemoryUserRepo) ValidateCredentials(ctx context.Context, username, password string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[normalize(username)]
	if !ok || !CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	user.LastLogin = time.Now()
	cp := *user
	return &cp, nil
}
