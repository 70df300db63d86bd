package tick

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/annel0/mc-server/internal/eventbus"
	"github.com/annel0/mc-server/internal/observability"
	"github.com/annel0/mc-server/internal/protocol/packet"
	"github.com/annel0/mc-server/internal/storage"
	"github.com/annel0/mc-server/internal/world"
	"github.com/annel0/mc-server/internal/world/generator"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn записывает всё, что планировщик отправил сессии
type fakeConn struct {
	mu       sync.Mutex
	packets  []packet.Packet
	entityID int32
	joinErr  error
	kicked   string
}

func (c *fakeConn) Send(p packet.Packet) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packets = append(c.packets, p)
	return true
}

func (c *fakeConn) Joined(id int32) error {
	if c.joinErr != nil {
		return c.joinErr
	}
	c.entityID = id
	return nil
}

func (c *fakeConn) Kick(reason string) { c.kicked = reason }

// take возвращает накопленные пакеты и очищает буфер
func (c *fakeConn) take() []packet.Packet {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.packets
	c.packets = nil
	return out
}

func packetsOf[T packet.Packet](ps []packet.Packet) []T {
	var out []T
	for _, p := range ps {
		if v, ok := p.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func newTestScheduler(t *testing.T, mutate func(o *Options)) (*Scheduler, *world.Store) {
	t.Helper()
	store := world.NewStore(world.Options{Provider: generator.NewFlat()})
	opts := Options{Store: store, ViewDistance: 2, ChunkLoadsPerTick: 25}
	if mutate != nil {
		mutate(&opts)
	}
	s, err := NewScheduler(opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s, store
}

func joinPlayer(t *testing.T, s *Scheduler, name string) *fakeConn {
	t.Helper()
	c := &fakeConn{}
	s.Join(JoinRequest{Conn: c, Name: name, UUID: uuid.NewMD5(uuid.NameSpaceOID, []byte(name))})
	return c
}

func TestNewSchedulerRequiresStore(t *testing.T) {
	_, err := NewScheduler(Options{})
	assert.ErrorIs(t, err, ErrNoStore)
}

func TestJoinSequence(t *testing.T) {
	s, _ := newTestScheduler(t, nil)
	alice := joinPlayer(t, s, "Alice")
	s.Step(context.Background())

	require.Equal(t, int32(1), alice.entityID)
	ps := alice.take()
	require.GreaterOrEqual(t, len(ps), 9)

	wantTypes := []string{
		"*packet.JoinGame", "*packet.PlayerAbilities", "*packet.PluginMessage",
		"*packet.SpawnPosition", "*packet.TimeUpdate", "*packet.ChangeGameState",
		"*packet.PlayerTeleport", "*packet.PlayerListItem", "*packet.ServerChatMessage",
	}
	for i, want := range wantTypes {
		assert.Equal(t, want, fmt.Sprintf("%T", ps[i]), "пакет %d", i)
	}
	jg := ps[0].(*packet.JoinGame)
	assert.Equal(t, int32(1), jg.EntityID)
	assert.Equal(t, "flat", jg.LevelType)
	assert.Equal(t, "MC|Brand", ps[2].(*packet.PluginMessage).Channel)

	tp := ps[6].(*packet.PlayerTeleport)
	assert.Equal(t, 4.0, tp.Y)

	list := ps[7].(*packet.PlayerListItem)
	assert.Equal(t, int32(packet.PlayerListAdd), list.Action)
	require.Len(t, list.Players, 1)
	assert.Equal(t, "Alice", list.Players[0].Name)

	// дальность 2: квадрат 5×5 чанков
	chunks := packetsOf[*packet.ChunkData](ps)
	assert.Len(t, chunks, 25)
	assert.Equal(t, int32(0), chunks[0].X, "первым идёт чанк игрока")
	assert.Equal(t, int32(0), chunks[0].Z)

	snap := s.Snapshot()
	require.Len(t, snap.Players, 1)
	assert.Equal(t, "Alice", snap.Players[0].Name)
	assert.Equal(t, 25, snap.Players[0].Chunks)
	assert.Equal(t, uint64(1), snap.Tick)
}

func TestChunkLoadsAreBudgeted(t *testing.T) {
	s, _ := newTestScheduler(t, func(o *Options) { o.ChunkLoadsPerTick = 10 })
	alice := joinPlayer(t, s, "alice")

	s.Step(context.Background())
	assert.Len(t, packetsOf[*packet.ChunkData](alice.take()), 10)
	s.Step(context.Background())
	assert.Len(t, packetsOf[*packet.ChunkData](alice.take()), 10)
	s.Step(context.Background())
	assert.Len(t, packetsOf[*packet.ChunkData](alice.take()), 5)
	s.Step(context.Background())
	assert.Empty(t, packetsOf[*packet.ChunkData](alice.take()))
}

func TestJoinFailureRollsBack(t *testing.T) {
	s, _ := newTestScheduler(t, nil)
	c := &fakeConn{joinErr: errors.New("closed")}
	s.Join(JoinRequest{Conn: c, Name: "ghost", UUID: uuid.New()})
	s.Step(context.Background())

	assert.Empty(t, c.take())
	assert.Empty(t, s.Snapshot().Players)
	assert.Zero(t, s.Snapshot().Entities)
}

func TestDuplicateNameKicked(t *testing.T) {
	s, _ := newTestScheduler(t, nil)
	joinPlayer(t, s, "alice")
	s.Step(context.Background())

	dup := joinPlayer(t, s, "ALICE")
	s.Step(context.Background())
	assert.NotEmpty(t, dup.kicked)
	assert.Len(t, s.Snapshot().Players, 1)
}

func TestBlockChangeVisibleNextTick(t *testing.T) {
	ctx := context.Background()
	s, store := newTestScheduler(t, nil)
	alice := joinPlayer(t, s, "alice")
	s.Step(ctx)
	alice.take()

	pos := world.BlockPos{X: 5, Y: 64, Z: 5}
	old, err := store.SetBlock(ctx, pos, world.Stone)
	require.NoError(t, err)
	assert.Equal(t, world.Air, old)
	got, err := store.GetBlock(ctx, pos)
	require.NoError(t, err)
	assert.Equal(t, world.Stone, got)

	s.Step(ctx)
	changes := packetsOf[*packet.BlockChange](alice.take())
	require.Len(t, changes, 1)
	assert.Equal(t, pos.Wire(), changes[0].Location)
	assert.Equal(t, world.Stone.Wire(), changes[0].BlockID)

	// без новых изменений дельт нет
	s.Step(ctx)
	assert.Empty(t, packetsOf[*packet.BlockChange](alice.take()))
}

func TestMultiBlockChangeKeepsLastState(t *testing.T) {
	ctx := context.Background()
	s, store := newTestScheduler(t, nil)
	alice := joinPlayer(t, s, "alice")
	s.Step(ctx)
	alice.take()

	_, _ = store.SetBlock(ctx, world.BlockPos{X: 17, Y: 10, Z: 1}, world.Stone)
	_, _ = store.SetBlock(ctx, world.BlockPos{X: 18, Y: 10, Z: 2}, world.Stone)
	_, _ = store.SetBlock(ctx, world.BlockPos{X: 17, Y: 10, Z: 1}, world.Sand)

	s.Step(ctx)
	multi := packetsOf[*packet.MultiBlockChange](alice.take())
	require.Len(t, multi, 1)
	assert.Equal(t, int32(1), multi[0].ChunkX)
	assert.Equal(t, int32(0), multi[0].ChunkZ)
	assert.Equal(t, []packet.BlockRecord{
		{X: 1, Z: 1, Y: 10, BlockID: world.Sand.Wire()},
		{X: 2, Z: 2, Y: 10, BlockID: world.Stone.Wire()},
	}, multi[0].Records)
}

func TestExpiredCursorResendsChunk(t *testing.T) {
	ctx := context.Background()
	store := world.NewStore(world.Options{Provider: generator.NewFlat(), ChangeLogSize: 4})
	s, err := NewScheduler(Options{Store: store, ViewDistance: 2, ChunkLoadsPerTick: 25})
	require.NoError(t, err)
	defer s.Shutdown(ctx)

	alice := joinPlayer(t, s, "alice")
	s.Step(ctx)
	alice.take()

	for i := int32(0); i < 6; i++ {
		_, err := store.SetBlock(ctx, world.BlockPos{X: i, Y: 20, Z: 0}, world.Stone)
		require.NoError(t, err)
	}
	s.Step(ctx)
	ps := alice.take()
	assert.Empty(t, packetsOf[*packet.MultiBlockChange](ps))
	chunks := packetsOf[*packet.ChunkData](ps)
	require.Len(t, chunks, 1)
	assert.Equal(t, int32(0), chunks[0].X)
	assert.NotZero(t, chunks[0].PrimaryBitMask&(1<<1), "секция с y=20 присутствует")

	// курсор переставлен: следующее изменение снова идёт дельтой
	_, _ = store.SetBlock(ctx, world.BlockPos{X: 9, Y: 20, Z: 9}, world.Stone)
	s.Step(ctx)
	assert.Len(t, packetsOf[*packet.BlockChange](alice.take()), 1)
}

func TestMoveRejectedWhenTooFar(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t, nil)
	alice := joinPlayer(t, s, "alice")
	s.Step(ctx)
	alice.take()

	require.True(t, s.Submit(alice.entityID, MoveIntent{Position: mgl64.Vec3{100.5, 4, 0.5}}))
	s.Step(ctx)
	tps := packetsOf[*packet.PlayerTeleport](alice.take())
	require.Len(t, tps, 1)
	assert.Equal(t, 0.5, tps[0].X)
	assert.Equal(t, mgl64.Vec3{0.5, 4, 0.5}, s.Snapshot().Players[0].Position)

	// несколько мелких шагов за тик не обходят ограничение
	for i := 1; i <= 4; i++ {
		s.Submit(alice.entityID, MoveIntent{Position: mgl64.Vec3{0.5 + float64(i)*4, 4, 0.5}})
	}
	s.Step(ctx)
	assert.Len(t, packetsOf[*packet.PlayerTeleport](alice.take()), 2)
	assert.Equal(t, mgl64.Vec3{8.5, 4, 0.5}, s.Snapshot().Players[0].Position)
}

func TestMoveOutsideWorldRejected(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t, nil)
	alice := joinPlayer(t, s, "alice")
	s.Step(ctx)
	alice.take()

	s.Submit(alice.entityID, MoveIntent{Position: mgl64.Vec3{0.5, -70, 0.5}})
	s.Step(ctx)
	assert.Len(t, packetsOf[*packet.PlayerTeleport](alice.take()), 1)
}

func TestPlayersSeeEachOther(t *testing.T) {
	ctx := context.Background()
	s, store := newTestScheduler(t, nil)
	alice := joinPlayer(t, s, "alice")
	bob := joinPlayer(t, s, "bob")
	s.Step(ctx)

	aps := alice.take()
	spawns := packetsOf[*packet.SpawnPlayer](aps)
	require.Len(t, spawns, 1)
	assert.Equal(t, bob.entityID, spawns[0].EntityID)
	assert.Equal(t, packet.ToFixed(4), spawns[0].Y)
	assert.Len(t, packetsOf[*packet.SpawnPlayer](bob.take()), 1)

	s.Submit(bob.entityID, MoveIntent{Position: mgl64.Vec3{2.5, 4, 0.5}, OnGround: true})
	s.Step(ctx)
	tel := packetsOf[*packet.EntityTeleport](alice.take())
	require.Len(t, tel, 1)
	assert.Equal(t, packet.ToFixed(2.5), tel[0].X)
	assert.True(t, tel[0].OnGround)
	assert.Empty(t, packetsOf[*packet.EntityTeleport](bob.take()), "себя игрок не видит")

	s.Leave(bob)
	s.Step(ctx)
	aps = alice.take()
	destroy := packetsOf[*packet.DestroyEntities](aps)
	require.Len(t, destroy, 1)
	assert.Equal(t, []int32{bob.entityID}, destroy[0].EntityIDs)
	lists := packetsOf[*packet.PlayerListItem](aps)
	require.Len(t, lists, 1)
	assert.Equal(t, int32(packet.PlayerListRemove), lists[0].Action)

	// подписки ушедшего игрока сняты, остались только подписки alice
	c, ok := store.Chunk(world.ChunkCoord{})
	require.True(t, ok)
	assert.Equal(t, 1, c.Subscribers())

	// повторный выход безопасен
	s.Leave(bob)
	s.Step(ctx)
	assert.Len(t, s.Snapshot().Players, 1)
}

func TestDigAndPlace(t *testing.T) {
	ctx := context.Background()
	s, store := newTestScheduler(t, nil)
	alice := joinPlayer(t, s, "alice")
	s.Step(ctx)
	alice.take()

	grass := world.BlockPos{X: 1, Y: 3, Z: 0}

	// в режиме выживания начало копания ничего не меняет
	s.Submit(alice.entityID, DigIntent{Status: packet.DigStarted, Pos: grass, Face: 1})
	s.Step(ctx)
	st, _ := store.GetBlock(ctx, grass)
	assert.Equal(t, world.Grass, st)

	s.Submit(alice.entityID, DigIntent{Status: packet.DigFinished, Pos: grass, Face: 1})
	s.Step(ctx)
	st, _ = store.GetBlock(ctx, grass)
	assert.Equal(t, world.Air, st)
	changes := packetsOf[*packet.BlockChange](alice.take())
	require.Len(t, changes, 1)
	assert.Equal(t, world.Air.Wire(), changes[0].BlockID)

	// ставим камень на землю под выкопанной травой
	s.Submit(alice.entityID, PlaceIntent{Target: world.BlockPos{X: 1, Y: 2, Z: 0}, Face: 1, ItemID: 1})
	s.Step(ctx)
	st, _ = store.GetBlock(ctx, grass)
	assert.Equal(t, world.Stone, st)
}

func TestRejectedActionsResync(t *testing.T) {
	ctx := context.Background()
	s, store := newTestScheduler(t, nil)
	alice := joinPlayer(t, s, "alice")
	s.Step(ctx)
	alice.take()

	bedrock := world.BlockPos{X: 0, Y: 0, Z: 1}
	s.Submit(alice.entityID, DigIntent{Status: packet.DigFinished, Pos: bedrock})
	// цель занята травой
	s.Submit(alice.entityID, PlaceIntent{Target: world.BlockPos{X: 2, Y: 2, Z: 0}, Face: 1, ItemID: 1})
	// неизвестный блок
	s.Submit(alice.entityID, PlaceIntent{Target: world.BlockPos{X: 2, Y: 3, Z: 0}, Face: 1, ItemID: 999})
	// вне досягаемости
	s.Submit(alice.entityID, DigIntent{Status: packet.DigFinished, Pos: world.BlockPos{X: 20, Y: 3, Z: 0}})
	s.Step(ctx)

	st, _ := store.GetBlock(ctx, bedrock)
	assert.Equal(t, world.Bedrock, st)
	st, _ = store.GetBlock(ctx, world.BlockPos{X: 20, Y: 3, Z: 0})
	assert.Equal(t, world.Grass, st)

	resync := packetsOf[*packet.BlockChange](alice.take())
	require.Len(t, resync, 4)
	assert.Equal(t, world.Bedrock.Wire(), resync[0].BlockID)
	assert.Equal(t, world.Grass.Wire(), resync[1].BlockID)
	assert.Equal(t, world.Air.Wire(), resync[2].BlockID)
	assert.Equal(t, world.Grass.Wire(), resync[3].BlockID)
}

func TestFarActionsDoNotLoadChunks(t *testing.T) {
	ctx := context.Background()
	s, store := newTestScheduler(t, nil)
	alice := joinPlayer(t, s, "alice")
	s.Step(ctx)
	alice.take()
	loaded := store.Loaded()

	for i := int32(0); i < 100; i++ {
		far := world.BlockPos{X: 1_000_000 + i*16, Y: 3, Z: 0}
		require.True(t, s.Submit(alice.entityID, DigIntent{Status: packet.DigFinished, Pos: far}))
		require.True(t, s.Submit(alice.entityID, PlaceIntent{Target: far, Face: 1, ItemID: 1}))
	}
	s.Step(ctx)

	assert.Equal(t, loaded, store.Loaded(), "действия вне подписки не должны загружать чанки")
	assert.Empty(t, packetsOf[*packet.BlockChange](alice.take()))
}

func TestPlaceWithOversizedDamageRejected(t *testing.T) {
	ctx := context.Background()
	s, store := newTestScheduler(t, nil)
	alice := joinPlayer(t, s, "alice")
	s.Step(ctx)
	alice.take()

	// 257 в uint8 превратился бы в meta 1
	s.Submit(alice.entityID, PlaceIntent{Target: world.BlockPos{X: 2, Y: 3, Z: 0}, Face: 1, ItemID: 1, Meta: 257})
	s.Submit(alice.entityID, PlaceIntent{Target: world.BlockPos{X: 2, Y: 3, Z: 1}, Face: 1, ItemID: 1, Meta: -1})
	s.Step(ctx)

	for _, pos := range []world.BlockPos{{X: 2, Y: 4, Z: 0}, {X: 2, Y: 4, Z: 1}} {
		st, _ := store.GetBlock(ctx, pos)
		assert.Equal(t, world.Air, st, pos)
	}
	resync := packetsOf[*packet.BlockChange](alice.take())
	require.Len(t, resync, 2)
	assert.Equal(t, world.Air.Wire(), resync[0].BlockID)
}

func TestPlaceIntoPlayerRejected(t *testing.T) {
	ctx := context.Background()
	s, store := newTestScheduler(t, nil)
	alice := joinPlayer(t, s, "alice")
	s.Step(ctx)

	// ноги alice в (0,4,0)
	s.Submit(alice.entityID, PlaceIntent{Target: world.BlockPos{X: 0, Y: 3, Z: 0}, Face: 1, ItemID: 1})
	s.Step(ctx)
	st, _ := store.GetBlock(ctx, world.BlockPos{X: 0, Y: 4, Z: 0})
	assert.Equal(t, world.Air, st)
}

func TestPlaceIntoPlayerHitboxEdgeRejected(t *testing.T) {
	ctx := context.Background()
	s, store := newTestScheduler(t, nil)
	alice := joinPlayer(t, s, "alice")
	s.Step(ctx)

	// хитбокс шириной 0.6 заходит в соседний столбец x=1
	s.Submit(alice.entityID, MoveIntent{Position: mgl64.Vec3{0.9, 4, 0.5}, OnGround: true})
	s.Step(ctx)
	s.Submit(alice.entityID, PlaceIntent{Target: world.BlockPos{X: 1, Y: 3, Z: 0}, Face: 1, ItemID: 1})
	s.Step(ctx)
	st, _ := store.GetBlock(ctx, world.BlockPos{X: 1, Y: 4, Z: 0})
	assert.Equal(t, world.Air, st)

	s.Submit(alice.entityID, PlaceIntent{Target: world.BlockPos{X: 2, Y: 3, Z: 0}, Face: 1, ItemID: 1})
	s.Step(ctx)
	st, _ = store.GetBlock(ctx, world.BlockPos{X: 2, Y: 4, Z: 0})
	assert.Equal(t, world.Stone, st)
}

func TestCreativeDigStartBreaks(t *testing.T) {
	ctx := context.Background()
	s, store := newTestScheduler(t, func(o *Options) { o.Gamemode = GamemodeCreative })
	alice := joinPlayer(t, s, "alice")
	s.Step(ctx)

	abilities := packetsOf[*packet.PlayerAbilities](alice.take())
	require.Len(t, abilities, 1)
	assert.NotZero(t, abilities[0].Flags&packet.AbilityCreative)

	bedrock := world.BlockPos{X: 1, Y: 0, Z: 0}
	s.Submit(alice.entityID, DigIntent{Status: packet.DigStarted, Pos: bedrock})
	s.Step(ctx)
	st, _ := store.GetBlock(ctx, bedrock)
	assert.Equal(t, world.Air, st)
}

func TestChatBroadcast(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t, nil)
	alice := joinPlayer(t, s, "alice")
	bob := joinPlayer(t, s, "bob")
	s.Step(ctx)
	alice.take()
	bob.take()

	s.Submit(alice.entityID, ChatIntent{Message: "  hi there "})
	s.Submit(alice.entityID, ChatIntent{Message: "   "})
	s.Step(ctx)

	for _, c := range []*fakeConn{alice, bob} {
		msgs := packetsOf[*packet.ServerChatMessage](c.take())
		require.Len(t, msgs, 1)
		assert.Equal(t, packet.ChatText("<alice> hi there"), msgs[0].JSON)
		assert.Equal(t, int8(packet.ChatPositionChat), msgs[0].Position)
	}
}

func TestSettingsChangeViewDistance(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t, func(o *Options) { o.ViewDistance = 3; o.ChunkLoadsPerTick = 100 })
	alice := joinPlayer(t, s, "alice")
	s.Step(ctx)
	assert.Len(t, packetsOf[*packet.ChunkData](alice.take()), 49)

	s.Submit(alice.entityID, SettingsIntent{ViewDistance: 32, Locale: "ru_RU"})
	s.Step(ctx)
	assert.Equal(t, 3, s.Snapshot().Players[0].ViewDistance, "ограничено конфигурацией")

	s.Submit(alice.entityID, SettingsIntent{ViewDistance: 1})
	s.Step(ctx)
	unloads := packetsOf[*packet.ChunkData](alice.take())
	assert.Len(t, unloads, 49-25)
	for _, u := range unloads {
		assert.Zero(t, u.PrimaryBitMask)
		assert.Empty(t, u.Data)
	}
	assert.Equal(t, 2, s.Snapshot().Players[0].ViewDistance)
	assert.Equal(t, 25, s.Snapshot().Players[0].Chunks)
}

func TestSubscriptionsFollowPlayer(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t, func(o *Options) { o.MaxMovePerTick = 20 })
	alice := joinPlayer(t, s, "alice")
	s.Step(ctx)
	alice.take()

	// переход в чанк (1,0): справа добавляется столбец, слева уходит столбец
	s.Submit(alice.entityID, MoveIntent{Position: mgl64.Vec3{16.5, 4, 0.5}})
	s.Step(ctx)
	ps := packetsOf[*packet.ChunkData](alice.take())
	var loaded, unloaded int
	for _, p := range ps {
		if len(p.Data) == 0 {
			unloaded++
			assert.Equal(t, int32(-2), p.X)
		} else {
			loaded++
			assert.Equal(t, int32(3), p.X)
		}
	}
	assert.Equal(t, 5, loaded)
	assert.Equal(t, 5, unloaded)
}

func TestTimeUpdateEverySecond(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t, nil)
	alice := joinPlayer(t, s, "alice")
	for i := 0; i < 20; i++ {
		s.Step(ctx)
	}
	updates := packetsOf[*packet.TimeUpdate](alice.take())
	require.Len(t, updates, 2, "при входе и через секунду")
	assert.Equal(t, int64(20), updates[1].WorldAge)
	assert.Equal(t, int64(20), s.Snapshot().WorldAge)
}

func TestPositionRestoredAndSaved(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryPositionRepo()
	s, _ := newTestScheduler(t, func(o *Options) { o.Positions = repo })

	id := uuid.New()
	alice := &fakeConn{}
	s.Join(JoinRequest{Conn: alice, Name: "alice", UUID: id, Position: &storage.Position{X: 10.5, Y: 4, Z: -3.5, Yaw: 90}})
	s.Step(ctx)
	tps := packetsOf[*packet.PlayerTeleport](alice.take())
	require.Len(t, tps, 1)
	assert.Equal(t, 10.5, tps[0].X)
	assert.Equal(t, float32(90), tps[0].Yaw)

	s.Submit(alice.entityID, MoveIntent{Position: mgl64.Vec3{12.5, 4, -3.5}})
	s.Step(ctx)
	s.Leave(alice)
	s.Step(ctx)
	s.Shutdown(ctx)

	pos, ok, err := repo.Load(ctx, id.String())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 12.5, pos.X)
	assert.Equal(t, float32(90), pos.Yaw)
}

func TestShutdownKicksAndSavesPlayers(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryPositionRepo()
	s, store := newTestScheduler(t, func(o *Options) { o.Positions = repo })
	alice := joinPlayer(t, s, "alice")
	s.Step(ctx)

	s.Shutdown(ctx)
	assert.Equal(t, "Server closed", alice.kicked)
	assert.Equal(t, 1, repo.Count())
	c, ok := store.Chunk(world.ChunkCoord{})
	require.True(t, ok)
	assert.Zero(t, c.Subscribers())
}

func TestEventsPublished(t *testing.T) {
	ctx := context.Background()
	bus := eventbus.NewMemoryBus(64)
	defer bus.Close()

	var mu sync.Mutex
	var types []string
	_, err := bus.Subscribe(ctx, eventbus.Filter{}, func(_ context.Context, ev *eventbus.Envelope) {
		mu.Lock()
		types = append(types, ev.EventType)
		mu.Unlock()
	})
	require.NoError(t, err)

	s, _ := newTestScheduler(t, func(o *Options) { o.Bus = bus })
	alice := joinPlayer(t, s, "alice")
	s.Step(ctx)
	s.Submit(alice.entityID, DigIntent{Status: packet.DigFinished, Pos: world.BlockPos{X: 1, Y: 3, Z: 1}})
	s.Submit(alice.entityID, ChatIntent{Message: "hello"})
	s.Step(ctx)
	s.Leave(alice)
	s.Step(ctx)
	s.Shutdown(ctx)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(types) == 4
	}, time.Second, 10*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		eventbus.TypePlayerJoined, eventbus.TypeBlockChanged, eventbus.TypeChatMessage, eventbus.TypePlayerLeft,
	}, types)
}

func TestSubmitUnknownOrFull(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	s, _ := newTestScheduler(t, func(o *Options) { o.MailboxSize = 2; o.Metrics = metrics })
	assert.False(t, s.Submit(42, ChatIntent{"x"}))

	alice := joinPlayer(t, s, "alice")
	s.Step(context.Background())
	assert.True(t, s.Submit(alice.entityID, ChatIntent{"1"}))
	assert.True(t, s.Submit(alice.entityID, ChatIntent{"2"}))
	assert.False(t, s.Submit(alice.entityID, ChatIntent{"3"}))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.IntentsDropped))
}

func TestOverrunCounted(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	var mu sync.Mutex
	now := time.Unix(1700000000, 0)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(60 * time.Millisecond)
		return now
	}
	s, _ := newTestScheduler(t, func(o *Options) { o.Metrics = metrics; o.Now = clock })
	s.Step(context.Background())

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TickOverruns))
	assert.Equal(t, 60*time.Millisecond, s.Snapshot().Duration)
}

func TestRunStopsOnCancel(t *testing.T) {
	s, _ := newTestScheduler(t, func(o *Options) { o.TickRate = 200 })
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return s.Snapshot().Tick >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run не завершился")
	}
}

func TestStoreSurroundings(t *testing.T) {
	ctx := context.Background()
	store := world.NewStore(world.Options{Provider: generator.NewFlat()})
	_, err := store.LoadOrCreateChunk(ctx, world.ChunkCoord{})
	require.NoError(t, err)

	w := storeSurroundings{store: store}
	assert.True(t, w.IsSolid(world.BlockPos{X: 3, Y: 3, Z: 3}))
	assert.False(t, w.IsSolid(world.BlockPos{X: 3, Y: 4, Z: 3}))
	assert.True(t, w.IsSolid(world.BlockPos{X: 40, Y: 100, Z: 40}), "незагруженный чанк твёрдый")
	assert.False(t, w.IsSolid(world.BlockPos{X: 3, Y: 300, Z: 3}))
}
