package network

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/annel0/mc-server/internal/auth"
	"github.com/annel0/mc-server/internal/observability"
	"github.com/annel0/mc-server/internal/protocol/packet"
	"github.com/annel0/mc-server/internal/session"
	"github.com/annel0/mc-server/internal/storage"
	"github.com/annel0/mc-server/internal/tick"
	"github.com/annel0/mc-server/internal/world"
	"github.com/go-gl/mathgl/mgl64"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Причины отключения, которые видит клиент
const (
	ReasonOutdatedClient = "Outdated client! I'm still on " + packet.VersionName
	ReasonOutdatedServer = "Outdated server! I'm still on " + packet.VersionName
	ReasonInvalidName    = "Invalid username"
	ReasonServerFull     = "The server is full!"
	ReasonDuplicateLogin = "A player with that name is already online"
	ReasonInternal       = "Internal server error"
)

const loginTimeout = 5 * time.Second

// routes регистрирует обработчики всех пакетов, которые сессия принимает.
// Пакет без маршрута в текущем состоянии: нарушение протокола.
func (s *Session) routes() {
	m := s.machine
	m.Handle(packet.Handshake, (&packet.HandshakePacket{}).ID(), s.handleHandshake)

	m.Handle(packet.Status, (&packet.StatusRequest{}).ID(), s.handleStatusRequest)
	m.Handle(packet.Status, (&packet.StatusPing{}).ID(), s.handleStatusPing)

	m.Handle(packet.Login, (&packet.LoginStart{}).ID(), s.handleLoginStart)

	m.Handle(packet.Play, (&packet.KeepAlive{}).ID(), ignore)
	m.Handle(packet.Play, (&packet.ChatMessage{}).ID(), s.handleChat)
	m.Handle(packet.Play, (&packet.PlayerGround{}).ID(), ignore)
	m.Handle(packet.Play, (&packet.PlayerPosition{}).ID(), s.handlePosition)
	m.Handle(packet.Play, (&packet.PlayerLook{}).ID(), s.handleLook)
	m.Handle(packet.Play, (&packet.PlayerPositionLook{}).ID(), s.handlePositionLook)
	m.Handle(packet.Play, (&packet.PlayerDigging{}).ID(), s.handleDigging)
	m.Handle(packet.Play, (&packet.PlayerBlockPlacement{}).ID(), s.handlePlacement)
	m.Handle(packet.Play, (&packet.HeldItemChange{}).ID(), ignore)
	m.Handle(packet.Play, (&packet.Animation{}).ID(), ignore)
	m.Handle(packet.Play, (&packet.EntityAction{}).ID(), ignore)
	m.Handle(packet.Play, (&packet.ClientSettings{}).ID(), s.handleSettings)
	m.Handle(packet.Play, (&packet.ClientStatus{}).ID(), ignore)
	m.Handle(packet.Play, (&packet.ClientPluginMessage{}).ID(), ignore)
}

func ignore(packet.Packet) error { return nil }

func (s *Session) handleHandshake(p packet.Packet) error {
	hs := p.(*packet.HandshakePacket)
	s.protocol = hs.ProtocolVersion
	next, err := s.machine.AcceptHandshake(hs)
	if err != nil {
		return err
	}
	s.logger.Debug("🤝 Рукопожатие: протокол %d, %s:%d → %s", hs.ProtocolVersion, hs.ServerAddress, hs.ServerPort, next)
	return nil
}

func (s *Session) handleStatusRequest(packet.Packet) error {
	body, err := s.mgr.statusJSON()
	if err != nil {
		return fmt.Errorf("status json: %w", err)
	}
	s.Send(&packet.StatusResponse{JSON: body})
	return nil
}

func (s *Session) handleStatusPing(p packet.Packet) error {
	ping := p.(*packet.StatusPing)
	s.enqueue(outbound{p: &packet.StatusPong{Payload: ping.Payload}, closeAfter: true})
	return nil
}

// handleLoginStart проверяет версию, имя, бан и свободные места, после чего
// передаёт вход планировщику. LoginSuccess отправит Joined.
func (s *Session) handleLoginStart(p packet.Packet) error {
	ls := p.(*packet.LoginStart)
	if s.Name() != "" {
		return session.Violation(packet.Login, ls.ID(), "duplicate LoginStart")
	}

	ctx, cancel := context.WithTimeout(s.ctx, loginTimeout)
	defer cancel()
	ctx, span := observability.Tracer().Start(ctx, "network.Login", trace.WithAttributes(
		attribute.String("player.name", ls.Name),
		attribute.Int("protocol.version", int(s.protocol)),
	))
	defer span.End()

	reject := func(reason string) error {
		span.SetStatus(codes.Error, reason)
		s.logger.Info("⛔ Вход %q отклонён: %s", ls.Name, reason)
		s.Kick(reason)
		return nil
	}

	switch {
	case s.protocol < packet.ProtocolVersion:
		return reject(ReasonOutdatedClient)
	case s.protocol > packet.ProtocolVersion:
		return reject(ReasonOutdatedServer)
	}
	if err := auth.ValidateName(ls.Name); err != nil {
		return reject(ReasonInvalidName)
	}

	if bans := s.mgr.opts.Bans; bans != nil {
		ban, banned, err := bans.IsBanned(ctx, ls.Name)
		if err != nil {
			span.RecordError(err)
			s.logger.Error("❌ Проверка бана %s: %v", ls.Name, err)
			return reject(ReasonInternal)
		}
		if banned {
			return reject(banReason(ban))
		}
	}
	if s.mgr.Online() >= s.mgr.opts.MaxPlayers {
		return reject(ReasonServerFull)
	}
	if _, online := s.mgr.SessionByName(ls.Name); online {
		return reject(ReasonDuplicateLogin)
	}

	id := auth.OfflineUUID(ls.Name)
	span.SetAttributes(attribute.String("player.uuid", id.String()))

	var last *storage.Position
	if repo := s.mgr.opts.Positions; repo != nil {
		pos, ok, err := repo.Load(ctx, id.String())
		switch {
		case err != nil:
			span.RecordError(err)
			s.logger.Warn("⚠️ Позиция %s не загружена, вход на спавне: %v", ls.Name, err)
		case ok:
			last = &pos
		}
	}

	s.mu.Lock()
	s.name, s.uuid = ls.Name, id
	s.mu.Unlock()

	if thr := s.mgr.opts.CompressionThreshold; thr >= 0 {
		if !s.Send(&packet.SetCompression{Threshold: int32(thr)}) {
			return ErrSessionClosed
		}
		// клиент сжимает всё, что пришлёт после SetCompression
		s.readThreshold = thr
	}

	s.mgr.opts.Scheduler.Join(tick.JoinRequest{Conn: s, Name: ls.Name, UUID: id, Position: last})
	s.logger.Info("🔑 %s (%s) прошёл проверки входа", ls.Name, id)
	return nil
}

func banReason(b auth.Ban) string {
	reason := "You are banned from this server."
	if b.Reason != "" {
		reason += "\nReason: " + b.Reason
	}
	if !b.Expires.IsZero() {
		reason += "\nUntil: " + b.Expires.UTC().Format(time.RFC1123)
	}
	return reason
}

func (s *Session) submit(it tick.Intent) {
	s.mgr.opts.Scheduler.Submit(s.EntityID(), it)
}

func (s *Session) handleChat(p packet.Packet) error {
	msg := strings.TrimSpace(p.(*packet.ChatMessage).Message)
	if msg == "" {
		return nil
	}
	s.submit(tick.ChatIntent{Message: msg})
	return nil
}

func (s *Session) handlePosition(p packet.Packet) error {
	pp := p.(*packet.PlayerPosition)
	s.submit(tick.MoveIntent{Position: mgl64.Vec3{pp.X, pp.Y, pp.Z}, OnGround: pp.OnGround})
	return nil
}

func (s *Session) handleLook(p packet.Packet) error {
	pl := p.(*packet.PlayerLook)
	s.submit(tick.LookIntent{Yaw: pl.Yaw, Pitch: pl.Pitch, OnGround: pl.OnGround})
	return nil
}

func (s *Session) handlePositionLook(p packet.Packet) error {
	pl := p.(*packet.PlayerPositionLook)
	s.submit(tick.MoveIntent{Position: mgl64.Vec3{pl.X, pl.Y, pl.Z}, OnGround: pl.OnGround})
	s.submit(tick.LookIntent{Yaw: pl.Yaw, Pitch: pl.Pitch, OnGround: pl.OnGround})
	return nil
}

func (s *Session) handleDigging(p packet.Packet) error {
	d := p.(*packet.PlayerDigging)
	s.submit(tick.DigIntent{Status: d.Status, Pos: world.PosFromWire(d.Location), Face: d.Face})
	return nil
}

func (s *Session) handlePlacement(p packet.Packet) error {
	bp := p.(*packet.PlayerBlockPlacement)
	if bp.Face == packet.FaceNone || bp.HeldItem.IsEmpty() {
		return nil
	}
	s.submit(tick.PlaceIntent{
		Target: world.PosFromWire(bp.Location),
		Face:   bp.Face,
		ItemID: bp.HeldItem.ID,
		Meta:   bp.HeldItem.Damage,
	})
	return nil
}

func (s *Session) handleSettings(p packet.Packet) error {
	cs := p.(*packet.ClientSettings)
	s.submit(tick.SettingsIntent{ViewDistance: cs.ViewDistance, Locale: cs.Locale})
	return nil
}
