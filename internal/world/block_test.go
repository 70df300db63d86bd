package world

import (
	"testing"

	"github.com/annel0/mc-server/internal/world/block"
)

func TestBlockStateWire(t *testing.T) {
	cases := []struct {
		state BlockState
		wire  int32
	}{
		{Air, 0},
		{Stone, 16},
		{NewBlockState(block.Wool, 14), 35<<4 | 14},
		{NewBlockState(block.Log, 0xFF), 17<<4 | 15},
	}
	for _, c := range cases {
		if got := c.state.Wire(); got != c.wire {
			t.Errorf("%s.Wire() = %d, ожидалось %d", c.state, got, c.wire)
		}
		if got := StateFromWire(c.wire); got != c.state {
			t.Errorf("StateFromWire(%d) = %s, ожидалось %s", c.wire, got, c.state)
		}
	}
}

func TestBlockStateString(t *testing.T) {
	if Stone.String() != "stone" {
		t.Errorf("Stone.String() = %q", Stone.String())
	}
	if s := NewBlockState(block.Wool, 3).String(); s != "wool:3" {
		t.Errorf("шерсть: %q", s)
	}
	if s := (BlockState{ID: 999}).String(); s != "#999:0" {
		t.Errorf("неизвестный блок: %q", s)
	}
	if !Air.IsAir() || Stone.IsAir() {
		t.Error("IsAir работает неверно")
	}
}
