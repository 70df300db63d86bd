package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/annel0/mc-server/internal/auth"
	"github.com/annel0/mc-server/internal/tick"
	"github.com/annel0/mc-server/internal/world"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConsole записывает вызовы вместо работы с сессиями
type fakeConsole struct {
	mu       sync.Mutex
	messages []string
	kicked   map[string]string
	online   map[string]bool
	blocks   map[world.BlockPos]world.BlockState
	players  []tick.PlayerInfo
}

func newFakeConsole() *fakeConsole {
	return &fakeConsole{
		kicked: make(map[string]string),
		online: map[string]bool{"griefer": true},
		blocks: map[world.BlockPos]world.BlockState{{X: 5, Y: 64, Z: 5}: world.Stone},
		players: []tick.PlayerInfo{{
			EntityID: 1,
			Name:     "Alice",
			UUID:     auth.OfflineUUID("Alice"),
			Position: mgl64.Vec3{0.5, 4, 0.5},
		}},
	}
}

func (f *fakeConsole) BroadcastMessage(text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, text)
	return len(f.players)
}

func (f *fakeConsole) QueryBlock(_ context.Context, pos world.BlockPos) (world.BlockState, error) {
	if !pos.InBounds() {
		return world.Air, fmt.Errorf("%w: %s", world.ErrOutOfBounds, pos)
	}
	return f.blocks[pos], nil
}

func (f *fakeConsole) Players() []tick.PlayerInfo { return f.players }

func (f *fakeConsole) Kick(name, reason string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.ToLower(name)
	if !f.online[key] {
		return false
	}
	f.kicked[key] = reason
	return true
}

func (f *fakeConsole) Online() int { return len(f.players) }

type fakeTicks struct{ snap tick.Snapshot }

func (f fakeTicks) Snapshot() *tick.Snapshot { return &f.snap }

type testEnv struct {
	t       *testing.T
	server  *RestServer
	console *fakeConsole
	bans    *auth.MemoryBanList
	tokens  *auth.TokenIssuer
	admin   string
	viewer  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	users := auth.NewMemoryUserRepo()
	require.NoError(t, auth.EnsureAdmin(ctx, users, "admin", "admin-pass"))
	hash, err := auth.HashPassword("viewer-pass")
	require.NoError(t, err)
	viewer, err := users.CreateUser(ctx, "viewer", hash, false)
	require.NoError(t, err)

	tokens, err := auth.NewTokenIssuer("", time.Hour)
	require.NoError(t, err)
	adminUser, err := users.GetUserByUsername(ctx, "admin")
	require.NoError(t, err)

	env := &testEnv{t: t, console: newFakeConsole(), bans: auth.NewMemoryBanList(), tokens: tokens}
	env.admin, err = tokens.Issue(adminUser)
	require.NoError(t, err)
	env.viewer, err = tokens.Issue(viewer)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	env.server, err = NewRestServer(Config{
		Console:    env.console,
		Ticks:      fakeTicks{tick.Snapshot{Tick: 400, TPS: 19.9, Entities: 1, LoadedChunks: 289, WorldAge: 400, TimeOfDay: 6400, Duration: 3 * time.Millisecond}},
		Users:      users,
		Bans:       env.bans,
		Tokens:     tokens,
		MaxPlayers: 20,
		Registerer: reg,
		Gatherer:   reg,
	})
	require.NoError(t, err)
	return env
}

func (e *testEnv) do(method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestNewRestServerRequiresDeps(t *testing.T) {
	_, err := NewRestServer(Config{})
	assert.ErrorIs(t, err, ErrMissingDependency)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, w)["status"])
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/auth/login", LoginRequest{Username: "admin", Password: "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodPost, "/api/auth/login", LoginRequest{Username: "nobody", Password: "x"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodPost, "/api/auth/login", map[string]string{"username": "admin"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/auth/login", LoginRequest{Username: "admin", Password: "admin-pass"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[LoginResponse](t, w)
	assert.True(t, resp.Success)
	assert.True(t, resp.IsAdmin)

	claims, err := env.tokens.Validate(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		header string
	}{
		{"без заголовка", ""},
		{"не Bearer", "Token abc"},
		{"пустой токен", "Bearer "},
		{"мусор", "Bearer not.a.jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			env.server.Handler().ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.False(t, decode[GenericResponse](t, w).Success)
		})
	}
}

func TestStatusAndPlayers(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/status", nil, env.viewer)
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[StatusResponse](t, w)
	assert.Equal(t, 1, st.Online)
	assert.Equal(t, 20, st.MaxPlayers)
	assert.Equal(t, uint64(400), st.Tick)
	assert.InDelta(t, 19.9, st.TPS, 1e-9)
	assert.InDelta(t, 3.0, st.TickMillis, 1e-9)
	assert.Equal(t, 289, st.LoadedChunks)
	assert.NotEmpty(t, st.Process.Uptime)
	assert.Positive(t, st.Process.Goroutines)

	w = env.do(http.MethodGet, "/api/players", nil, env.viewer)
	require.Equal(t, http.StatusOK, w.Code)
	players := decode[[]PlayerView](t, w)
	require.Len(t, players, 1)
	assert.Equal(t, "Alice", players[0].Name)
	assert.Equal(t, auth.OfflineUUID("Alice").String(), players[0].UUID)
	assert.Equal(t, [3]float64{0.5, 4, 0.5}, players[0].Position)
}

func TestBlockQuery(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/blocks/5/64/5", nil, env.viewer)
	require.Equal(t, http.StatusOK, w.Code)
	b := decode[BlockView](t, w)
	assert.Equal(t, BlockView{X: 5, Y: 64, Z: 5, ID: 1, Meta: 0, Name: "stone"}, b)

	w = env.do(http.MethodGet, "/api/blocks/-3/10/7", nil, env.viewer)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "air", decode[BlockView](t, w).Name)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/blocks/1/300/1", nil, env.viewer).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/blocks/a/1/1", nil, env.viewer).Code)
}

func TestAdminRoutesRejectViewer(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodPost, "/api/broadcast", BroadcastRequest{Message: "hi"}, env.viewer)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, env.console.messages)
}

func TestBroadcast(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/broadcast", BroadcastRequest{Message: "  restart soon "}, env.admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"restart soon"}, env.console.messages)
	data := decode[GenericResponse](t, w).Data.(map[string]interface{})
	assert.Equal(t, 1.0, data["delivered"])

	w = env.do(http.MethodPost, "/api/broadcast", BroadcastRequest{Message: "   "}, env.admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBanLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	w := env.do(http.MethodPost, "/api/bans", BanRequest{Name: "Griefer", Reason: "grief", Duration: "24h"}, env.admin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	data := decode[GenericResponse](t, w).Data.(map[string]interface{})
	assert.Equal(t, true, data["kicked"])
	assert.Equal(t, "You are banned from this server.\nReason: grief", env.console.kicked["griefer"])

	ban, banned, err := env.bans.IsBanned(ctx, "griefer")
	require.NoError(t, err)
	require.True(t, banned)
	assert.Equal(t, "admin", ban.Source)
	assert.False(t, ban.Expires.IsZero())

	w = env.do(http.MethodGet, "/api/bans", nil, env.admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]auth.Ban](t, w), 1)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/bans", BanRequest{Name: "no spaces"}, env.admin).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/bans", BanRequest{Name: "Bob", Duration: "forever"}, env.admin).Code)

	assert.Equal(t, http.StatusOK, env.do(http.MethodDelete, "/api/bans/GRIEFER", nil, env.admin).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodDelete, "/api/bans/griefer", nil, env.admin).Code)
}

func TestKick(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodPost, "/api/kick", KickRequest{Name: "Nobody"}, env.admin).Code)

	w := env.do(http.MethodPost, "/api/kick", KickRequest{Name: "Griefer"}, env.admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Kicked by an operator", env.console.kicked["griefer"])
}

func TestRegisterUser(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/users", RegisterRequest{Username: "moderator", Password: "secret1"}, env.admin)
	require.Equal(t, http.StatusCreated, w.Code)

	assert.Equal(t, http.StatusConflict, env.do(http.MethodPost, "/api/users", RegisterRequest{Username: "moderator", Password: "secret1"}, env.admin).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/users", RegisterRequest{Username: "mo", Password: "secret1"}, env.admin).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/users", RegisterRequest{Username: "moderator2", Password: "123"}, env.admin).Code)

	w = env.do(http.MethodPost, "/api/auth/login", LoginRequest{Username: "moderator", Password: "secret1"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[LoginResponse](t, w).IsAdmin)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(http.MethodGet, "/health", nil, "")

	w := env.do(http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "admin_api_http_request_duration_seconds")
}

func TestBearerToken(t *testing.T) {
	tok, ok := bearerToken("bearer abc.def")
	assert.True(t, ok)
	assert.Equal(t, "abc.def", tok)

	for _, h := range []string{"", "Bearer", "Basic abc", "Bearer "} {
		_, ok := bearerToken(h)
		assert.False(t, ok, h)
	}
}
