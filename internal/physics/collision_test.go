package physics

import (
	"testing"

	"github.com/annel0/mc-server/internal/world"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
)

func TestPlayerBoxIntersectsBlocks(t *testing.T) {
	box := PlayerCollider.At(mgl64.Vec3{3.9, 4, 0.5})

	tests := []struct {
		pos  world.BlockPos
		want bool
	}{
		{world.BlockPos{X: 3, Y: 4, Z: 0}, true},
		{world.BlockPos{X: 4, Y: 4, Z: 0}, true}, // край хитбокса на x=4.2
		{world.BlockPos{X: 4, Y: 5, Z: 0}, true},
		{world.BlockPos{X: 3, Y: 6, Z: 0}, false}, // голова заканчивается на 5.8
		{world.BlockPos{X: 3, Y: 3, Z: 0}, false}, // касание гранью
		{world.BlockPos{X: 5, Y: 4, Z: 0}, false},
		{world.BlockPos{X: 3, Y: 4, Z: 1}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, box.Intersects(BlockBox(tt.pos)), tt.pos.String())
	}
}

func TestColliderAt(t *testing.T) {
	box := BoxCollider{Width: 1, Height: 2}.At(mgl64.Vec3{0, 10, 0})
	assert.Equal(t, mgl64.Vec3{-0.5, 10, -0.5}, box.Min)
	assert.Equal(t, mgl64.Vec3{0.5, 12, 0.5}, box.Max)
}
