package auth

import (
	"crypto/md5"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// MaxNameLength предел длины имени игрока в протоколе
const MaxNameLength = 16

// ErrInvalidName имя пустое, длиннее 16 символов или содержит символы
// кроме латиницы, цифр и подчёркивания
var ErrInvalidName = errors.New("auth: invalid player name")

// ValidateName проверяет имя из LoginStart
func ValidateName(name string) error {
	if len(name) == 0 || len(name) > MaxNameLength {
		return fmt.Errorf("%w: length %d", ErrInvalidName, len(name))
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
		default:
			return fmt.Errorf("%w: character %q", ErrInvalidName, c)
		}
	}
	return nil
}

// OfflineUUID возвращает UUID игрока без авторизации Mojang: MD5 строки
// "OfflinePlayer:<name>" с версией 3, как у ванильного сервера
func OfflineUUID(name string) uuid.UUID {
	sum := md5.Sum([]byte("OfflinePlayer:" + name))
	sum[6] = sum[6]&0x0f | 0x30
	sum[8] = sum[8]&0x3f | 0x80
	return uuid.UUID(sum)
}
