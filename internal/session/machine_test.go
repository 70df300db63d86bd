package session

import (
	"errors"
	"testing"

	"github.com/annel0/mc-server/internal/protocol/codec"
	"github.com/annel0/mc-server/internal/protocol/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// routeAll регистрирует считающий обработчик для всех serverbound id состояний.
func routeAll(m *Machine, hits map[int32]int) {
	cat := packet.Default()
	for _, st := range []packet.State{packet.Handshake, packet.Status, packet.Login, packet.Play} {
		for _, id := range cat.IDs(st, packet.Serverbound) {
			id := id
			m.Handle(st, id, func(packet.Packet) error {
				hits[id]++
				return nil
			})
		}
	}
}

func body(t *testing.T, p packet.Packet) []byte {
	t.Helper()
	w := codec.NewWriter(16)
	p.Encode(w)
	return w.Bytes()
}

func TestTransitionsTable(t *testing.T) {
	assert.True(t, CanTransition(packet.Handshake, packet.Status))
	assert.True(t, CanTransition(packet.Handshake, packet.Login))
	assert.True(t, CanTransition(packet.Login, packet.Play))
	assert.False(t, CanTransition(packet.Status, packet.Login))
	assert.False(t, CanTransition(packet.Play, packet.Login))
	assert.False(t, CanTransition(packet.Handshake, packet.Play))
	assert.False(t, CanTransition(packet.Play, packet.Handshake))
}

func TestIllegalTransitionIsViolation(t *testing.T) {
	m := New(nil)
	err := m.Transition(packet.Play)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProtocolViolation)
	assert.Equal(t, packet.Handshake, m.State())

	require.NoError(t, m.Transition(packet.Status))
	assert.ErrorIs(t, m.Transition(packet.Login), ErrProtocolViolation)
	assert.Equal(t, packet.Status, m.State())
}

func TestAcceptHandshake(t *testing.T) {
	m := New(nil)
	next, err := m.AcceptHandshake(&packet.HandshakePacket{ProtocolVersion: 47, NextState: packet.NextStateLogin})
	require.NoError(t, err)
	assert.Equal(t, packet.Login, next)
	assert.Equal(t, packet.Login, m.State())

	m = New(nil)
	_, err = m.AcceptHandshake(&packet.HandshakePacket{NextState: 3})
	assert.ErrorIs(t, err, ErrProtocolViolation)
	assert.Equal(t, packet.Handshake, m.State())
}

func TestStateMachineSafety(t *testing.T) {
	cat := packet.Default()
	for _, st := range []packet.State{packet.Handshake, packet.Status, packet.Login, packet.Play} {
		t.Run(st.String(), func(t *testing.T) {
			hits := make(map[int32]int)
			m := New(cat)
			routeAll(m, hits)
			m.state = st

			for id := int32(0); id <= 0x7F; id++ {
				if m.Permitted(id) {
					p, err := cat.Resolve(st, packet.Serverbound, id)
					require.NoError(t, err)
					require.NoError(t, m.Dispatch(id, body(t, p)), "id 0x%02X", id)
					assert.Equal(t, 1, hits[id])
					continue
				}
				err := m.Dispatch(id, nil)
				require.Error(t, err, "id 0x%02X", id)
				assert.ErrorIs(t, err, ErrProtocolViolation)

				var v *ViolationError
				require.True(t, errors.As(err, &v))
				assert.Equal(t, st, v.State)
				assert.Equal(t, id, v.ID)
			}
		})
	}
}

func TestPermittedButUnroutedIsViolation(t *testing.T) {
	m := New(nil)
	require.NoError(t, m.Transition(packet.Login))
	require.NoError(t, m.Transition(packet.Play))

	err := m.Dispatch(0x00, body(t, &packet.KeepAlive{KeepAliveID: 1}))
	assert.ErrorIs(t, err, ErrProtocolViolation)
	assert.NotErrorIs(t, err, packet.ErrUnknownPacketId)

	err = m.Dispatch(0x50, nil)
	assert.ErrorIs(t, err, ErrProtocolViolation)
	assert.ErrorIs(t, err, packet.ErrUnknownPacketId)
}

func TestMalformedBodyKeepsCause(t *testing.T) {
	hits := make(map[int32]int)
	m := New(nil)
	routeAll(m, hits)
	m.state = packet.Play

	full := body(t, &packet.PlayerPosition{X: 1, Y: 2, Z: 3})
	err := m.Dispatch(0x04, full[:5])
	assert.ErrorIs(t, err, ErrProtocolViolation)
	assert.ErrorIs(t, err, codec.ErrTruncatedInput)
	assert.ErrorIs(t, err, packet.ErrFrameLengthMismatch)
	assert.Zero(t, hits[0x04])
}

func TestAliceLoginScenario(t *testing.T) {
	m := New(nil)
	var entityID int32
	var sent []packet.Packet

	m.Handle(packet.Handshake, 0x00, func(p packet.Packet) error {
		_, err := m.AcceptHandshake(p.(*packet.HandshakePacket))
		return err
	})
	m.Handle(packet.Login, 0x00, func(p packet.Packet) error {
		ls := p.(*packet.LoginStart)
		require.NoError(t, m.Transition(packet.Play))
		entityID = 1
		sent = append(sent, &packet.LoginSuccess{Username: ls.Name})
		return nil
	})
	keepAlives := 0
	m.Handle(packet.Play, 0x00, func(packet.Packet) error { keepAlives++; return nil })
	m.Handle(packet.Play, 0x04, func(packet.Packet) error { return nil })

	changes := 0
	m.OnTransition(func(from, to packet.State) { changes++ })

	require.NoError(t, m.DispatchFrame(packet.EncodePacket(&packet.HandshakePacket{
		ProtocolVersion: packet.ProtocolVersion, ServerAddress: "localhost", ServerPort: 25565, NextState: packet.NextStateLogin,
	})))
	assert.Equal(t, packet.Login, m.State())

	require.NoError(t, m.DispatchFrame(packet.EncodePacket(&packet.LoginStart{Name: "Alice"})))
	assert.Equal(t, packet.Play, m.State())
	assert.Equal(t, int32(1), entityID)
	require.Len(t, sent, 1)
	assert.Equal(t, "Alice", sent[0].(*packet.LoginSuccess).Username)
	assert.Equal(t, 2, changes)

	require.NoError(t, m.DispatchFrame(packet.EncodePacket(&packet.KeepAlive{KeepAliveID: 5})))
	require.NoError(t, m.DispatchFrame(packet.EncodePacket(&packet.PlayerPosition{X: 0.5, Y: 65, Z: 0.5, OnGround: true})))
	assert.Equal(t, 1, keepAlives)

	// Id, которого нет среди разрешённых в Play, после входа: нарушение
	err := m.Dispatch(0x1A, nil)
	assert.ErrorIs(t, err, ErrProtocolViolation)

	// Второе рукопожатие невозможно: пути назад нет
	assert.ErrorIs(t, m.Transition(packet.Login), ErrProtocolViolation)
}

func TestStatusRejectsPlayIDs(t *testing.T) {
	hits := make(map[int32]int)
	m := New(nil)
	routeAll(m, hits)
	require.NoError(t, m.Transition(packet.Status))

	err := m.Dispatch(0x04, body(t, &packet.PlayerPosition{}))
	assert.ErrorIs(t, err, ErrProtocolViolation)

	m = New(nil)
	routeAll(m, hits)
	err = m.Dispatch(0x01, body(t, &packet.StatusPing{Payload: 1}))
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestClosedMachine(t *testing.T) {
	hits := make(map[int32]int)
	m := New(nil)
	routeAll(m, hits)
	m.Close()
	m.Close()
	assert.True(t, m.Closed())
	assert.ErrorIs(t, m.Dispatch(0x00, body(t, &packet.HandshakePacket{NextState: 1})), ErrClosed)
	assert.ErrorIs(t, m.Transition(packet.Status), ErrClosed)
}

func TestHandleUnknownPanics(t *testing.T) {
	m := New(nil)
	assert.Panics(t, func() { m.Handle(packet.Login, 0x05, func(packet.Packet) error { return nil }) })
}
