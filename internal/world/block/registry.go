package block

import (
	"sort"
	"sync"
)

// ID представляет идентификатор типа блока (номер из протокола 1.8)
type ID uint16

// Константы ID блоков
const (
	Air         ID = 0
	Stone       ID = 1
	Grass       ID = 2
	Dirt        ID = 3
	Cobblestone ID = 4
	Planks      ID = 5
	Bedrock     ID = 7
	Water       ID = 9 // стоячая вода
	Sand        ID = 12
	Gravel      ID = 13
	Log         ID = 17
	Leaves      ID = 18
	Glass       ID = 20
	Wool        ID = 35
	Glowstone   ID = 89
)

// Info описывает свойства типа блока
type Info struct {
	ID      ID
	Name    string
	Solid   bool  // занимает объём, на него можно встать
	Opaque  bool  // не пропускает свет
	Light   uint8 // собственная яркость 0..15
	MaxMeta uint8 // допустимые значения meta: 0..MaxMeta
}

// Registry неизменяемая таблица блоков. Строится один раз и передаётся по ссылке.
type Registry struct {
	byID   map[ID]Info
	byName map[string]Info
}

// NewRegistry собирает таблицу из описаний. Повтор ID или имени вызывает панику.
func NewRegistry(infos ...Info) *Registry {
	r := &Registry{
		byID:   make(map[ID]Info, len(infos)),
		byName: make(map[string]Info, len(infos)),
	}
	for _, info := range infos {
		if _, dup := r.byID[info.ID]; dup {
			panic("block: duplicate id " + info.Name)
		}
		if _, dup := r.byName[info.Name]; dup {
			panic("block: duplicate name " + info.Name)
		}
		r.byID[info.ID] = info
		r.byName[info.Name] = info
	}
	return r
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default возвращает минимальный набор блоков сервера.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry(
			Info{ID: Air, Name: "air"},
			Info{ID: Stone, Name: "stone", Solid: true, Opaque: true, MaxMeta: 6},
			Info{ID: Grass, Name: "grass", Solid: true, Opaque: true},
			Info{ID: Dirt, Name: "dirt", Solid: true, Opaque: true, MaxMeta: 2},
			Info{ID: Cobblestone, Name: "cobblestone", Solid: true, Opaque: true},
			Info{ID: Planks, Name: "planks", Solid: true, Opaque: true, MaxMeta: 5},
			Info{ID: Bedrock, Name: "bedrock", Solid: true, Opaque: true},
			Info{ID: Water, Name: "water", MaxMeta: 15},
			Info{ID: Sand, Name: "sand", Solid: true, Opaque: true, MaxMeta: 1},
			Info{ID: Gravel, Name: "gravel", Solid: true, Opaque: true},
			Info{ID: Log, Name: "log", Solid: true, Opaque: true, MaxMeta: 15},
			Info{ID: Leaves, Name: "leaves", Solid: true, MaxMeta: 15},
			Info{ID: Glass, Name: "glass", Solid: true},
			Info{ID: Wool, Name: "wool", Solid: true, Opaque: true, MaxMeta: 15},
			Info{ID: Glowstone, Name: "glowstone", Solid: true, Opaque: true, Light: 15},
		)
	})
	return defaultRegistry
}

// Lookup возвращает описание блока по ID
func (r *Registry) Lookup(id ID) (Info, bool) {
	info, ok := r.byID[id]
	return info, ok
}

// ByName возвращает описание блока по имени
func (r *Registry) ByName(name string) (Info, bool) {
	info, ok := r.byName[name]
	return info, ok
}

// Valid проверяет, что тип известен и meta в допустимом диапазоне
func (r *Registry) Valid(id ID, meta uint8) bool {
	info, ok := r.byID[id]
	return ok && meta <= info.MaxMeta
}

// All возвращает все блоки по возрастанию ID
func (r *Registry) All() []Info {
	out := make([]Info, 0, len(r.byID))
	for _, info := range r.byID {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get возвращает описание блока из таблицы по умолчанию
func Get(id ID) (Info, bool) {
	return Default().Lookup(id)
}

// IsValidBlockID проверяет, является ли ID допустимым идентификатором блока
func IsValidBlockID(id ID) bool {
	_, ok := Default().Lookup(id)
	return ok
}
