package block

import "testing"

func TestDefaultRegistry(t *testing.T) {
	r := Default()
	if r != Default() {
		t.Fatal("Default должен возвращать одну и ту же таблицу")
	}

	stone, ok := r.Lookup(Stone)
	if !ok || stone.Name != "stone" || !stone.Solid {
		t.Errorf("неожиданное описание камня: %+v", stone)
	}

	glow, ok := r.ByName("glowstone")
	if !ok || glow.ID != Glowstone || glow.Light != 15 {
		t.Errorf("неожиданное описание светокамня: %+v", glow)
	}

	if _, ok := r.Lookup(ID(4000)); ok {
		t.Error("неизвестный ID не должен находиться")
	}
	if IsValidBlockID(ID(4000)) {
		t.Error("IsValidBlockID(4000) должен быть false")
	}
}

func TestValidMeta(t *testing.T) {
	r := Default()
	cases := []struct {
		id   ID
		meta uint8
		want bool
	}{
		{Air, 0, true},
		{Air, 1, false},
		{Wool, 14, true},
		{Wool, 16, false},
		{Stone, 6, true},
		{Stone, 7, false},
		{ID(255), 0, false},
	}
	for _, c := range cases {
		if got := r.Valid(c.id, c.meta); got != c.want {
			t.Errorf("Valid(%d, %d) = %v, ожидалось %v", c.id, c.meta, got, c.want)
		}
	}
}

func TestAllSorted(t *testing.T) {
	all := Default().All()
	for i := 1; i < len(all); i++ {
		if all[i-1].ID >= all[i].ID {
			t.Fatalf("таблица не отсортирована: %d >= %d", all[i-1].ID, all[i].ID)
		}
	}
}

func TestDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("ожидалась паника при повторе ID")
		}
	}()
	NewRegistry(Info{ID: Stone, Name: "a"}, Info{ID: Stone, Name: "b"})
}
