package auth

import "time"

// User учётная запись администратора панели управления. Игроки входят без
// пароля (offline-режим) и учётных записей не имеют.
type User struct {
	Username     string // уникально без учёта регистра
	PasswordHash string // bcrypt, 60 символов
	IsAdmin      bool   // доступ к изменяющим запросам
	CreatedAt    time.Time
	LastLogin    time.Time
}
