package auth

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"
)

func newIssuer(t *testing.T) *TokenIssuer {
	t.Helper()
	ti, err := NewTokenIssuer(GenerateSecret(), time.Hour)
	if err != nil {
		t.Fatalf("Ошибка создания выпускающего: %v", err)
	}
	return ti
}

// TestIssueAndValidate проверяет полный цикл токена
func TestIssueAndValidate(t *testing.T) {
	ti := newIssuer(t)
	user := &User{Username: "admin", IsAdmin: true}

	token, err := ti.Issue(user)
	if err != nil {
		t.Fatalf("Ошибка генерации JWT: %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Errorf("Неверный формат JWT токена: %s", token)
	}

	claims, err := ti.Validate(token)
	if err != nil {
		t.Fatalf("Валидный токен отклонён: %v", err)
	}
	if claims.Username != "admin" || !claims.IsAdmin {
		t.Errorf("Неверные claims: %+v", claims)
	}
	if claims.Issuer != tokenIssuer {
		t.Errorf("Неверный издатель: %s", claims.Issuer)
	}
}

// TestValidateInvalidTokens проверяет отказ для мусора и чужих подписей
func TestValidateInvalidTokens(t *testing.T) {
	ti := newIssuer(t)
	other := newIssuer(t)
	foreign, err := other.Issue(&User{Username: "mallory", IsAdmin: true})
	if err != nil {
		t.Fatal(err)
	}

	for _, token := range []string{
		"",
		"invalid.token.here",
		"not.a.jwt",
		"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.invalid.signature",
		foreign,
	} {
		claims, err := ti.Validate(token)
		if !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Токен %q: ожидалась ErrInvalidToken, получено %v", token, err)
		}
		if claims != nil {
			t.Errorf("Токен %q: claims должны быть nil", token)
		}
	}
}

// TestExpiredToken проверяет срок действия
func TestExpiredToken(t *testing.T) {
	ti := newIssuer(t)
	now := time.Now()
	ti.now = func() time.Time { return now }
	token, err := ti.Issue(&User{Username: "admin"})
	if err != nil {
		t.Fatal(err)
	}

	ti.now = func() time.Time { return now.Add(2 * time.Hour) }
	if _, err := ti.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Просроченный токен принят: %v", err)
	}
}

// TestSecrets проверяет требования к секрету
func TestSecrets(t *testing.T) {
	if GenerateSecret() == GenerateSecret() {
		t.Error("Два вызова GenerateSecret вернули одинаковый результат")
	}
	if _, err := NewTokenIssuer("", 0); err != nil {
		t.Errorf("Пустой секрет должен заменяться случайным: %v", err)
	}
	short := base64.StdEncoding.EncodeToString([]byte("too-short"))
	if _, err := NewTokenIssuer(short, 0); !errors.Is(err, ErrWeakSecret) {
		t.Errorf("Короткий секрет принят: %v", err)
	}
	if _, err := NewTokenIssuer("invalid-base64-@#$%", 0); err == nil {
		t.Error("Секрет не в base64 принят")
	}
}
