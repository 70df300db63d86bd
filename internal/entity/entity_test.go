package entity

import (
	"testing"

	"github.com/annel0/mc-server/internal/world"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// floorAt мир со сплошным полом на высоте y (верх пола = y+1)
type floorAt int32

func (f floorAt) IsSolid(pos world.BlockPos) bool { return pos.Y <= int32(f) }

func TestTableMonotonicIDs(t *testing.T) {
	tbl := NewTable()
	a := tbl.Spawn(NewPlayer("alice", uuid.New(), mgl64.Vec3{0, 4, 0}))
	b := tbl.Spawn(NewMob(90, mgl64.Vec3{1, 4, 1}))
	assert.Equal(t, int32(1), a)
	assert.Equal(t, int32(2), b)

	_, ok := tbl.Remove(a)
	require.True(t, ok)
	c := tbl.Spawn(NewObject(70, mgl64.Vec3{}))
	assert.Equal(t, int32(3), c, "id не переиспользуются")

	_, ok = tbl.Remove(a)
	assert.False(t, ok)
	assert.Equal(t, 2, tbl.Len())
}

func TestTableDrain(t *testing.T) {
	tbl := NewTable()
	p := tbl.Spawn(NewPlayer("bob", uuid.New(), mgl64.Vec3{}))
	ch := tbl.Drain()
	assert.Equal(t, []int32{p}, ch.Spawned)
	assert.Empty(t, ch.Moved)

	tbl.MarkMoved(p)
	tbl.MarkMoved(42)
	ch = tbl.Drain()
	assert.Equal(t, []int32{p}, ch.Moved)
	assert.Empty(t, ch.Spawned)

	tbl.Remove(p)
	ch = tbl.Drain()
	assert.Equal(t, []int32{p}, ch.Despawned)
	assert.True(t, tbl.Drain().Empty())
}

func TestTableSpawnAndRemoveSameTick(t *testing.T) {
	tbl := NewTable()
	id := tbl.Spawn(NewMob(90, mgl64.Vec3{}))
	tbl.MarkMoved(id)
	tbl.Remove(id)
	assert.True(t, tbl.Drain().Empty())
}

func TestGravityLandsOnFloor(t *testing.T) {
	tbl := NewTable()
	id := tbl.Spawn(NewMob(90, mgl64.Vec3{0.5, 10, 0.5}))
	player := tbl.Spawn(NewPlayer("carol", uuid.New(), mgl64.Vec3{3.5, 10, 3.5}))
	tbl.Drain()

	floor := floorAt(3)
	for i := 0; i < 100; i++ {
		tbl.TickAll(floor)
	}
	mob, _ := tbl.Get(id)
	assert.InDelta(t, 4.0, mob.Position.Y(), 1e-9)
	assert.True(t, mob.OnGround)
	assert.Zero(t, mob.Velocity.Y())

	p, _ := tbl.Get(player)
	assert.Equal(t, 10.0, p.Position.Y(), "к игрокам гравитация не применяется")

	ch := tbl.Drain()
	assert.Equal(t, []int32{id}, ch.Moved)

	// стоящий моб больше не двигается
	tbl.TickAll(floor)
	assert.True(t, tbl.Drain().Empty())
}

func TestGravityTerminalVelocity(t *testing.T) {
	e := NewMob(90, mgl64.Vec3{0, 250, 0})
	for i := 0; i < 200; i++ {
		DefaultGravity.Tick(e, floorAt(-1))
	}
	assert.GreaterOrEqual(t, e.Velocity.Y(), -DefaultGravity.Terminal)
	assert.GreaterOrEqual(t, e.Position.Y(), -64.0)
}

func TestEntityHelpers(t *testing.T) {
	id := uuid.New()
	e := NewPlayer("dave", id, mgl64.Vec3{-0.5, 64.2, 17.9})
	e.ID = 7

	pd, ok := e.Player()
	require.True(t, ok)
	assert.Equal(t, id, pd.UUID)
	assert.Equal(t, "dave", e.Name())
	assert.Equal(t, world.ChunkCoord{X: -1, Z: 1}, e.Chunk())
	assert.Equal(t, world.BlockPos{X: -1, Y: 64, Z: 17}, e.BlockPos())

	mob := NewMob(54, mgl64.Vec3{})
	mob.ID = 3
	assert.Equal(t, "mob#3", mob.Name())
	_, ok = mob.Player()
	assert.False(t, ok)

	cp := e.Clone()
	cp.Data.(*PlayerData).Name = "eve"
	assert.Equal(t, "dave", e.Name())
	assert.Nil(t, cp.Behavior)
}
