package auth

import (
	"context"
	"errors"
)

// UserRepository хранит учётные записи панели управления
type UserRepository interface {
	// GetUserByUsername возвращает пользователя или ErrUserNotFound
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	// CreateUser сохраняет пользователя с уже захэшированным паролем.
	// Занятое имя — ErrUserExists.
	CreateUser(ctx context.Context, username, passwordHash string, isAdmin bool) (*User, error)
	// ValidateCredentials проверяет пароль и обновляет LastLogin
	ValidateCredentials(ctx context.Context, username, password string) (*User, error)
}

var (
	ErrUserNotFound       = errors.New("auth: user not found")
	ErrUserExists         = errors.New("auth: user already exists")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)

// EnsureAdmin создаёт администратора, если пользователя с таким именем ещё нет
func EnsureAdmin(ctx context.Context, repo UserRepository, username, password string) error {
	if _, err := repo.GetUserByUsername(ctx, username); err == nil {
		return nil
	} else if !errors.Is(err, ErrUserNotFound) {
		return err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	_, err = repo.CreateUser(ctx, username, hash, true)
	if errors.Is(err, ErrUserExists) {
		return nil
	}
	return err
}
