package entity

import (
	"sort"

	"github.com/annel0/mc-server/internal/logging"
)

// Changes что произошло с таблицей с момента прошлого Drain
type Changes struct {
	Spawned   []int32
	Moved     []int32
	Despawned []int32
}

// Empty сообщает, что изменений не было
func (c Changes) Empty() bool {
	return len(c.Spawned) == 0 && len(c.Moved) == 0 && len(c.Despawned) == 0
}

// Table авторитетная таблица сущностей. Принадлежит горутине тика и не
// синхронизирована: другие горутины видят только снимки.
type Table struct {
	entities map[int32]*Entity
	nextID   int32

	spawned   map[int32]struct{}
	moved     map[int32]struct{}
	despawned []int32

	logger *logging.Logger
}

// NewTable создаёт пустую таблицу. Идентификаторы выдаются с 1.
func NewTable() *Table {
	return &Table{
		entities: make(map[int32]*Entity),
		nextID:   1,
		spawned:  make(map[int32]struct{}),
		moved:    make(map[int32]struct{}),
		logger:   logging.GetComponentLogger("entity"),
	}
}

// Spawn назначает сущности новый id и добавляет её в таблицу
func (t *Table) Spawn(e *Entity) int32 {
	e.ID = t.nextID
	t.nextID++
	t.entities[e.ID] = e
	t.spawned[e.ID] = struct{}{}
	t.logger.Debug("✨ Сущность %s (%s) создана в %v", e.Name(), e.Kind, e.Position)
	return e.ID
}

// Remove удаляет сущность. Id больше не выдаётся повторно.
func (t *Table) Remove(id int32) (*Entity, bool) {
	e, ok := t.entities[id]
	if !ok {
		return nil, false
	}
	delete(t.entities, id)
	delete(t.moved, id)
	if _, fresh := t.spawned[id]; fresh {
		// появилась и исчезла за один тик: наблюдателям сообщать нечего
		delete(t.spawned, id)
	} else {
		t.despawned = append(t.despawned, id)
	}
	t.logger.Debug("💨 Сущность %s удалена", e.Name())
	return e, true
}

// Get возвращает сущность по id
func (t *Table) Get(id int32) (*Entity, bool) {
	e, ok := t.entities[id]
	return e, ok
}

// Len возвращает число сущностей
func (t *Table) Len() int { return len(t.entities) }

// All возвращает сущности, упорядоченные по id
func (t *Table) All() []*Entity {
	out := make([]*Entity, 0, len(t.entities))
	for _, e := range t.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Players возвращает только игроков, упорядоченных по id
func (t *Table) Players() []*Entity {
	var out []*Entity
	for _, e := range t.All() {
		if e.Kind == KindPlayer {
			out = append(out, e)
		}
	}
	return out
}

// MarkMoved отмечает сдвиг сущности для рассылки наблюдателям
func (t *Table) MarkMoved(id int32) {
	if _, ok := t.entities[id]; ok {
		t.moved[id] = struct{}{}
	}
}

// TickAll вызывает Behavior всех сущностей кроме игроков
func (t *Table) TickAll(w Surroundings) {
	for _, e := range t.All() {
		if e.Kind == KindPlayer || e.Behavior == nil {
			continue
		}
		if e.Behavior.Tick(e, w) {
			t.moved[e.ID] = struct{}{}
		}
	}
}

// Drain возвращает накопленные изменения и сбрасывает их
func (t *Table) Drain() Changes {
	var ch Changes
	for id := range t.spawned {
		ch.Spawned = append(ch.Spawned, id)
	}
	for id := range t.moved {
		if _, fresh := t.spawned[id]; !fresh {
			ch.Moved = append(ch.Moved, id)
		}
	}
	ch.Despawned = t.despawned

	sortIDs(ch.Spawned)
	sortIDs(ch.Moved)
	sortIDs(ch.Despawned)

	t.spawned = make(map[int32]struct{})
	t.moved = make(map[int32]struct{})
	t.despawned = nil
	return ch
}

func sortIDs(ids []int32) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
