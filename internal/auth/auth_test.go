package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateName(t *testing.T) {
	for _, name := range []string{"Alice", "a", "Player_123", strings.Repeat("x", 16)} {
		assert.NoError(t, ValidateName(name), name)
	}
	for _, name := range []string{"", strings.Repeat("x", 17), "with space", "тест", "bad-dash", "dot.name"} {
		assert.ErrorIs(t, ValidateName(name), ErrInvalidName, name)
	}
}

func TestOfflineUUID(t *testing.T) {
	a := OfflineUUID("Alice")
	assert.Equal(t, a, OfflineUUID("Alice"))
	assert.NotEqual(t, a, OfflineUUID("alice"), "регистр имени значим")
	assert.Equal(t, uuid.Version(3), a.Version())
	assert.Equal(t, uuid.RFC4122, a.Variant())
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("secret")
	require.NoError(t, err)
	assert.Len(t, hash, 60)
	assert.True(t, CheckPassword(hash, "secret"))
	assert.False(t, CheckPassword(hash, "Secret"))

	_, err = HashPassword("")
	assert.ErrorIs(t, err, ErrEmptyPassword)
}

func TestMemoryUserRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepo()

	require.NoError(t, EnsureAdmin(ctx, repo, "Admin", "hunter2"))
	// повторный вызов не трогает существующего пользователя
	require.NoError(t, EnsureAdmin(ctx, repo, "admin", "other"))

	u, err := repo.GetUserByUsername(ctx, "ADMIN")
	require.NoError(t, err)
	assert.True(t, u.IsAdmin)

	_, err = repo.CreateUser(ctx, "admin", "x", false)
	assert.ErrorIs(t, err, ErrUserExists)

	u, err = repo.ValidateCredentials(ctx, "admin", "hunter2")
	require.NoError(t, err)
	assert.False(t, u.LastLogin.IsZero())

	_, err = repo.ValidateCredentials(ctx, "admin", "other")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = repo.ValidateCredentials(ctx, "nobody", "x")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = repo.GetUserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestMemoryBanList(t *testing.T) {
	ctx := context.Background()
	bans := NewMemoryBanList()
	now := time.Unix(1700000000, 0)
	bans.now = func() time.Time { return now }

	require.NoError(t, bans.Ban(ctx, Ban{Name: "Griefer", Reason: "tnt"}))
	require.NoError(t, bans.Ban(ctx, Ban{Name: "temp", Expires: now.Add(time.Hour)}))
	assert.ErrorIs(t, bans.Ban(ctx, Ban{Name: "bad name"}), ErrInvalidName)

	b, ok, err := bans.IsBanned(ctx, "griefer")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "tnt", b.Reason)
	assert.Equal(t, now, b.CreatedAt)

	list, err := bans.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Griefer", list[0].Name)

	// временный бан истёк
	now = now.Add(2 * time.Hour)
	_, ok, _ = bans.IsBanned(ctx, "temp")
	assert.False(t, ok)
	list, _ = bans.List(ctx)
	assert.Len(t, list, 1)

	require.NoError(t, bans.Unban(ctx, "GRIEFER"))
	assert.ErrorIs(t, bans.Unban(ctx, "griefer"), ErrNotBanned)
	_, ok, _ = bans.IsBanned(ctx, "griefer")
	assert.False(t, ok)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := NewMemoryBanList().IsBanned(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = NewMemoryUserRepo().GetUserByUsername(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}
