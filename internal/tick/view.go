package tick

import (
	"context"
	"errors"
	"sort"

	"github.com/annel0/mc-server/internal/entity"
	"github.com/annel0/mc-server/internal/protocol/packet"
	"github.com/annel0/mc-server/internal/world"
)

// view то, что видит одна сессия: подписанные чанки с курсорами журнала
// изменений и показанные ей сущности
type view struct {
	conn         Conn
	entityID     int32
	viewDistance int
	locale       string
	chunks       map[world.ChunkCoord]uint64
	seen         map[int32]struct{}
}

func newView(c Conn, entityID int32, viewDistance int) *view {
	return &view{
		conn:         c,
		entityID:     entityID,
		viewDistance: viewDistance,
		chunks:       make(map[world.ChunkCoord]uint64),
		seen:         make(map[int32]struct{}),
	}
}

// subscribed сообщает, что чанк позиции подписан сессией
func (v *view) subscribed(pos world.BlockPos) bool {
	_, ok := v.chunks[pos.Chunk()]
	return ok
}

// updateViews рассылает сессиям итоги тика
func (s *Scheduler) updateViews(ctx context.Context, dirty []world.ChunkCoord, changes entity.Changes) {
	moved := make(map[int32]bool, len(changes.Moved))
	for _, id := range changes.Moved {
		moved[id] = true
	}
	for _, id := range s.viewIDs() {
		v := s.views[id]
		e, ok := s.table.Get(id)
		if !ok {
			continue
		}
		center := e.Chunk()
		s.unloadFar(v, center)
		s.sendDeltas(v, dirty)
		s.loadNear(ctx, v, center)
		s.updateEntities(v, moved)
	}
}

// unloadFar отписывает сессию от чанков за пределами дальности прорисовки
func (s *Scheduler) unloadFar(v *view, center world.ChunkCoord) {
	var far []world.ChunkCoord
	for coord := range v.chunks {
		if coord.Distance(center) > int32(v.viewDistance) {
			far = append(far, coord)
		}
	}
	sortCoords(far)
	for _, coord := range far {
		delete(v.chunks, coord)
		s.store.Unsubscribe(coord)
		v.conn.Send(packet.UnloadChunk(coord.X, coord.Z))
	}
}

// sendDeltas отправляет изменения подписанных чанков после курсора сессии
func (s *Scheduler) sendDeltas(v *view, dirty []world.ChunkCoord) {
	for _, coord := range dirty {
		cursor, ok := v.chunks[coord]
		if !ok {
			continue
		}
		changes, next, err := s.store.BlocksChangedSince(coord, cursor)
		if errors.Is(err, world.ErrCursorExpired) {
			if c, ok := s.store.Chunk(coord); ok {
				s.logger.Debug("🔁 Курсор %s устарел, чанк отправлен целиком", coord)
				s.sendChunk(v, c)
			}
			continue
		}
		if err != nil {
			s.logger.Warn("⚠️ Изменения чанка %s недоступны: %v", coord, err)
			continue
		}
		v.chunks[coord] = next
		if len(changes) > 0 {
			v.conn.Send(deltaPacket(coord, changes))
		}
	}
}

// loadNear подписывает сессию на ближайшие недостающие чанки, не больше
// ChunkLoadsPerTick за тик. Недоступный чанк откладывает загрузку до
// следующего тика.
func (s *Scheduler) loadNear(ctx context.Context, v *view, center world.ChunkCoord) {
	vd := int32(v.viewDistance)
	var want []world.ChunkCoord
	for dx := -vd; dx <= vd; dx++ {
		for dz := -vd; dz <= vd; dz++ {
			coord := world.ChunkCoord{X: center.X + dx, Z: center.Z + dz}
			if _, ok := v.chunks[coord]; !ok {
				want = append(want, coord)
			}
		}
	}
	sort.Slice(want, func(i, j int) bool {
		di, dj := want[i].Distance(center), want[j].Distance(center)
		if di != dj {
			return di < dj
		}
		if want[i].X != want[j].X {
			return want[i].X < want[j].X
		}
		return want[i].Z < want[j].Z
	})

	budget := s.opts.ChunkLoadsPerTick
	for _, coord := range want {
		if budget == 0 {
			return
		}
		c, err := s.store.Subscribe(ctx, coord)
		if err != nil {
			s.logger.Warn("⚠️ Чанк %s пока недоступен: %v", coord, err)
			return
		}
		s.sendChunk(v, c)
		budget--
	}
}

// sendChunk отправляет чанк целиком и переставляет курсор на его версию
func (s *Scheduler) sendChunk(v *view, c *world.Chunk) {
	mask, data, seq := c.MarshalSections()
	v.conn.Send(&packet.ChunkData{
		X:              c.Coord.X,
		Z:              c.Coord.Z,
		GroundUp:       true,
		PrimaryBitMask: mask,
		Data:           data,
	})
	v.chunks[c.Coord] = seq
}

// updateEntities показывает игроков в подписанных чанках и убирает ушедших
func (s *Scheduler) updateEntities(v *view, moved map[int32]bool) {
	var destroy []int32
	for id := range v.seen {
		o, ok := s.table.Get(id)
		if !ok || !v.sees(o) {
			destroy = append(destroy, id)
			delete(v.seen, id)
		}
	}
	if len(destroy) > 0 {
		sortIDs(destroy)
		v.conn.Send(&packet.DestroyEntities{EntityIDs: destroy})
	}

	for _, o := range s.table.Players() {
		if o.ID == v.entityID || !v.sees(o) {
			continue
		}
		if _, ok := v.seen[o.ID]; !ok {
			v.seen[o.ID] = struct{}{}
			v.conn.Send(spawnPlayerPacket(o))
			continue
		}
		if moved[o.ID] {
			v.conn.Send(&packet.EntityTeleport{
				EntityID: o.ID,
				X:        packet.ToFixed(o.Position.X()),
				Y:        packet.ToFixed(o.Position.Y()),
				Z:        packet.ToFixed(o.Position.Z()),
				Yaw:      o.Yaw,
				Pitch:    o.Pitch,
				OnGround: o.OnGround,
			})
		}
	}
}

func (v *view) sees(e *entity.Entity) bool {
	_, ok := v.chunks[e.Chunk()]
	return ok
}

func spawnPlayerPacket(e *entity.Entity) *packet.SpawnPlayer {
	pd, _ := e.Player()
	return &packet.SpawnPlayer{
		EntityID:   e.ID,
		PlayerUUID: pd.UUID,
		X:          packet.ToFixed(e.Position.X()),
		Y:          packet.ToFixed(e.Position.Y()),
		Z:          packet.ToFixed(e.Position.Z()),
		Yaw:        e.Yaw,
		Pitch:      e.Pitch,
	}
}

// deltaPacket сворачивает изменения чанка в BlockChange или MultiBlockChange.
// Для каждой позиции остаётся последнее состояние.
func deltaPacket(coord world.ChunkCoord, changes []world.Change) packet.Packet {
	latest := make(map[world.BlockPos]world.BlockState, len(changes))
	var order []world.BlockPos
	for _, ch := range changes {
		if _, ok := latest[ch.Pos]; !ok {
			order = append(order, ch.Pos)
		}
		latest[ch.Pos] = ch.State
	}
	if len(order) == 1 {
		pos := order[0]
		return &packet.BlockChange{Location: pos.Wire(), BlockID: latest[pos].Wire()}
	}
	records := make([]packet.BlockRecord, 0, len(order))
	for _, pos := range order {
		x, y, z := pos.Local()
		records = append(records, packet.BlockRecord{
			X:       uint8(x),
			Z:       uint8(z),
			Y:       uint8(y),
			BlockID: latest[pos].Wire(),
		})
	}
	return &packet.MultiBlockChange{ChunkX: coord.X, ChunkZ: coord.Z, Records: records}
}

func sortCoords(cs []world.ChunkCoord) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].X != cs[j].X {
			return cs[i].X < cs[j].X
		}
		return cs[i].Z < cs[j].Z
	})
}

func sortIDs(ids []int32) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
