package tick

import (
	"context"
	"fmt"
	"strings"

	"github.com/annel0/mc-server/internal/entity"
	"github.com/annel0/mc-server/internal/eventbus"
	"github.com/annel0/mc-server/internal/physics"
	"github.com/annel0/mc-server/internal/protocol/packet"
	"github.com/annel0/mc-server/internal/storage"
	"github.com/annel0/mc-server/internal/world"
	"github.com/annel0/mc-server/internal/world/block"
	"github.com/go-gl/mathgl/mgl64"
)

// applyIntents применяет намерения каждой сущности в порядке поступления
func (s *Scheduler) applyIntents(ctx context.Context) {
	for _, id := range s.viewIDs() {
		mb := s.mailbox(id)
		if mb == nil {
			continue
		}
		s.scratch = mb.Drain(s.scratch[:0])
		if len(s.scratch) == 0 {
			continue
		}
		e, ok := s.table.Get(id)
		if !ok {
			continue
		}
		v := s.views[id]
		origin := e.Position

		for _, it := range s.scratch {
			switch it := it.(type) {
			case MoveIntent:
				s.applyMove(v, e, origin, it)
			case LookIntent:
				e.Yaw, e.Pitch, e.OnGround = it.Yaw, it.Pitch, it.OnGround
				s.table.MarkMoved(e.ID)
			case DigIntent:
				s.applyDig(ctx, v, e, it)
			case PlaceIntent:
				s.applyPlace(ctx, v, e, it)
			case ChatIntent:
				s.applyChat(e, it)
			case SettingsIntent:
				v.viewDistance = clampView(int(it.ViewDistance), s.opts.ViewDistance)
				v.locale = it.Locale
			}
		}
		clear(s.scratch)
	}
}

// applyMove принимает новую позицию, если за тик игрок сместился не дальше
// MaxMovePerTick от позиции начала тика. Иначе клиент возвращается назад.
func (s *Scheduler) applyMove(v *view, e *entity.Entity, origin mgl64.Vec3, it MoveIntent) {
	p := it.Position
	candidate := storage.Position{X: p.X(), Y: p.Y(), Z: p.Z()}
	if err := candidate.Validate(); err != nil || p.Sub(origin).Len() > s.opts.MaxMovePerTick {
		s.logger.Debug("🚫 %s: перемещение %v → %v отклонено", e.Name(), origin, p)
		v.conn.Send(teleportPacket(e))
		return
	}
	if p == e.Position && it.OnGround == e.OnGround {
		return
	}
	e.Position = p
	e.OnGround = it.OnGround
	s.table.MarkMoved(e.ID)
}

func (s *Scheduler) applyDig(ctx context.Context, v *view, e *entity.Entity, it DigIntent) {
	switch it.Status {
	case packet.DigStarted:
		// в творческом режиме блок ломается с первого удара
		if s.opts.Gamemode != GamemodeCreative {
			return
		}
	case packet.DigFinished:
	default:
		return
	}
	// чанк вне подписки не загружается ради чужой позиции
	if !it.Pos.InBounds() || !v.subscribed(it.Pos) {
		return
	}
	if !inReach(e, it.Pos) {
		s.resync(v, it.Pos)
		return
	}
	cur, err := s.store.GetBlock(ctx, it.Pos)
	if err != nil {
		s.logger.Warn("⚠️ %s: блок %s недоступен: %v", e.Name(), it.Pos, err)
		return
	}
	if cur.IsAir() {
		return
	}
	if cur.ID == block.Bedrock && s.opts.Gamemode != GamemodeCreative {
		s.resync(v, it.Pos)
		return
	}
	if _, err := s.store.SetBlock(ctx, it.Pos, world.Air); err != nil {
		s.logger.Warn("⚠️ %s: не удалось сломать %s: %v", e.Name(), it.Pos, err)
		s.resync(v, it.Pos)
		return
	}
	s.logger.Debug("⛏️ %s сломал %s в %s", e.Name(), cur, it.Pos)
	s.publish(eventbus.BlockChanged(it.Pos.X, it.Pos.Y, it.Pos.Z, uint16(block.Air), 0, e.ID))
}

func (s *Scheduler) applyPlace(ctx context.Context, v *view, e *entity.Entity, it PlaceIntent) {
	if it.Face == packet.FaceNone || it.ItemID <= 0 {
		return
	}
	target := it.Target.Offset(it.Face)
	if !target.InBounds() || !v.subscribed(target) {
		return
	}
	id := block.ID(it.ItemID)
	if id == block.Air || it.Meta < 0 || it.Meta > 15 ||
		!block.Default().Valid(id, uint8(it.Meta)) || !inReach(e, target) {
		s.resync(v, target)
		return
	}
	cur, err := s.store.GetBlock(ctx, target)
	if err != nil {
		s.logger.Warn("⚠️ %s: блок %s недоступен: %v", e.Name(), target, err)
		return
	}
	st := world.NewBlockState(id, uint8(it.Meta))
	if !cur.IsAir() || s.occupied(target, st) {
		s.resync(v, target)
		return
	}
	if _, err := s.store.SetBlock(ctx, target, st); err != nil {
		s.logger.Warn("⚠️ %s: не удалось поставить %s: %v", e.Name(), st, err)
		s.resync(v, target)
		return
	}
	s.logger.Debug("🧱 %s поставил %s в %s", e.Name(), st, target)
	s.publish(eventbus.BlockChanged(target.X, target.Y, target.Z, uint16(st.ID), st.Meta, e.ID))
}

func (s *Scheduler) applyChat(e *entity.Entity, it ChatIntent) {
	msg := strings.TrimSpace(it.Message)
	if msg == "" {
		return
	}
	text := fmt.Sprintf("<%s> %s", e.Name(), msg)
	s.broadcast(&packet.ServerChatMessage{JSON: packet.ChatText(text), Position: packet.ChatPositionChat})
	s.logger.Info("💬 %s", text)
	s.publish(eventbus.Chat(e.Name(), msg))
}

// resync отправляет клиенту настоящее состояние блока после отклонённого
// действия. Читает только уже загруженный подписанный чанк.
func (s *Scheduler) resync(v *view, pos world.BlockPos) {
	if !pos.InBounds() || !v.subscribed(pos) {
		return
	}
	c, ok := s.store.Chunk(pos.Chunk())
	if !ok {
		return
	}
	x, y, z := pos.Local()
	v.conn.Send(&packet.BlockChange{Location: pos.Wire(), BlockID: c.Block(x, y, z).Wire()})
}

// occupied сообщает, что твёрдый блок попал бы в тело игрока
func (s *Scheduler) occupied(pos world.BlockPos, st world.BlockState) bool {
	if info, ok := st.Info(); !ok || !info.Solid {
		return false
	}
	box := physics.BlockBox(pos)
	for _, p := range s.table.Players() {
		if physics.PlayerCollider.At(p.Position).Intersects(box) {
			return true
		}
	}
	return false
}

func inReach(e *entity.Entity, pos world.BlockPos) bool {
	eye := e.Position.Add(mgl64.Vec3{0, eyeHeight, 0})
	center := mgl64.Vec3{float64(pos.X) + 0.5, float64(pos.Y) + 0.5, float64(pos.Z) + 0.5}
	return eye.Sub(center).Len() <= MaxReach
}

func clampView(requested, limit int) int {
	return min(max(requested, MinViewDistance), limit)
}
