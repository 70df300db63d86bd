package tick

import (
	"strings"

	"github.com/annel0/mc-server/internal/entity"
	"github.com/annel0/mc-server/internal/eventbus"
	"github.com/annel0/mc-server/internal/protocol/packet"
	"github.com/go-gl/mathgl/mgl64"
)

// processMembership применяет накопленные входы и выходы в порядке поступления
func (s *Scheduler) processMembership() {
	s.queueMu.Lock()
	queue := s.queue
	s.queue = nil
	s.queueMu.Unlock()

	for _, m := range queue {
		if m.join != nil {
			s.join(m.join)
		} else {
			s.leave(m.leave)
		}
	}
}

func (s *Scheduler) join(req *JoinRequest) {
	if _, dup := s.conns[req.Conn]; dup {
		return
	}
	for _, p := range s.table.Players() {
		if strings.EqualFold(p.Name(), req.Name) {
			s.logger.Warn("👥 Игрок %s уже в игре, повторный вход отклонён", req.Name)
			req.Conn.Kick("A player with that name is already online")
			return
		}
	}

	pos := s.opts.Spawn
	var yaw, pitch float32
	if req.Position != nil && req.Position.Validate() == nil {
		pos = mgl64.Vec3{req.Position.X, req.Position.Y, req.Position.Z}
		yaw, pitch = req.Position.Yaw, req.Position.Pitch
	}
	e := entity.NewPlayer(req.Name, req.UUID, pos)
	e.Yaw, e.Pitch = yaw, pitch
	id := s.table.Spawn(e)

	s.mailMu.Lock()
	s.mailboxes[id] = NewMailbox(s.opts.MailboxSize)
	s.mailMu.Unlock()

	if err := req.Conn.Joined(id); err != nil {
		s.logger.Warn("⚠️ Вход %s отменён: %v", req.Name, err)
		s.dropMailbox(id)
		s.table.Remove(id)
		return
	}

	v := newView(req.Conn, id, s.opts.ViewDistance)
	s.views[id] = v
	s.conns[req.Conn] = id

	s.sendJoinSequence(v, e)

	// таб-лист: новичку весь список, остальным только новичок
	var entries []packet.PlayerListEntry
	for _, p := range s.table.Players() {
		entries = append(entries, s.listEntry(p))
	}
	v.conn.Send(&packet.PlayerListItem{Action: packet.PlayerListAdd, Players: entries})

	add := &packet.PlayerListItem{Action: packet.PlayerListAdd, Players: []packet.PlayerListEntry{s.listEntry(e)}}
	for _, other := range s.viewIDs() {
		if other != id {
			s.views[other].conn.Send(add)
		}
	}
	s.broadcast(systemMessage(req.Name + " joined the game"))

	s.publish(eventbus.PlayerJoined(req.Name, req.UUID.String(), id))
	s.logger.Info("👋 Игрок %s вошёл: сущность %d, позиция %v", req.Name, id, pos)
}

func (s *Scheduler) leave(c Conn) {
	id, ok := s.conns[c]
	if !ok {
		return
	}
	v := s.views[id]
	for coord := range v.chunks {
		s.store.Unsubscribe(coord)
	}
	delete(s.views, id)
	delete(s.conns, c)
	s.dropMailbox(id)

	e, ok := s.table.Remove(id)
	if !ok {
		return
	}
	pd, _ := e.Player()
	s.broadcast(&packet.PlayerListItem{
		Action:  packet.PlayerListRemove,
		Players: []packet.PlayerListEntry{{UUID: pd.UUID}},
	})
	s.broadcast(systemMessage(pd.Name + " left the game"))

	s.savePosition(e)
	s.publish(eventbus.PlayerLeft(pd.Name, pd.UUID.String(), id))
	s.logger.Info("🚪 Игрок %s вышел", pd.Name)
}

// sendJoinSequence отправляет пакеты, после которых клиент входит в мир
func (s *Scheduler) sendJoinSequence(v *view, e *entity.Entity) {
	abilities := &packet.PlayerAbilities{FlyingSpeed: 0.05, WalkingSpeed: 0.1}
	if s.opts.Gamemode == GamemodeCreative {
		abilities.Flags = packet.AbilityInvulnerable | packet.AbilityAllowFlying | packet.AbilityCreative
	}
	spawn := entity.BlockAt(s.opts.Spawn)

	for _, p := range []packet.Packet{
		&packet.JoinGame{
			EntityID:   e.ID,
			Gamemode:   s.opts.Gamemode,
			Dimension:  0,
			Difficulty: s.opts.Difficulty,
			MaxPlayers: uint8(min(s.opts.MaxPlayers, 255)),
			LevelType:  s.opts.LevelType,
		},
		abilities,
		packet.BrandMessage(s.opts.Brand),
		&packet.SpawnPosition{Location: spawn.Wire()},
		&packet.TimeUpdate{WorldAge: s.age, TimeOfDay: s.timeOfDay},
		&packet.ChangeGameState{Reason: packet.GameStateChangeGamemode, Value: float32(s.opts.Gamemode)},
		teleportPacket(e),
	} {
		v.conn.Send(p)
	}
}

func (s *Scheduler) listEntry(e *entity.Entity) packet.PlayerListEntry {
	pd, _ := e.Player()
	return packet.PlayerListEntry{
		UUID:     pd.UUID,
		Name:     pd.Name,
		Gamemode: int32(s.opts.Gamemode),
	}
}

func systemMessage(text string) *packet.ServerChatMessage {
	return &packet.ServerChatMessage{JSON: packet.ChatText(text), Position: packet.ChatPositionSystem}
}

func teleportPacket(e *entity.Entity) *packet.PlayerTeleport {
	return &packet.PlayerTeleport{
		X:     e.Position.X(),
		Y:     e.Position.Y(),
		Z:     e.Position.Z(),
		Yaw:   e.Yaw,
		Pitch: e.Pitch,
	}
}
