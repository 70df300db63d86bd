package network

import (
	"fmt"
	"net"

	"github.com/xtaci/kcp-go/v5"
)

// Транспорты слушателя
const (
	TransportTCP = "tcp"
	TransportKCP = "kcp"
)

// Listen открывает слушатель для транспорта. KCP работает в потоковом режиме,
// так что поверх него идут те же кадры, что и поверх TCP.
func Listen(transport, addr string) (net.Listener, error) {
	switch transport {
	case "", TransportTCP:
		return net.Listen("tcp", addr)
	case TransportKCP:
		l, err := kcp.ListenWithOptions(addr, nil, 0, 0)
		if err != nil {
			return nil, fmt.Errorf("kcp listen %s: %w", addr, err)
		}
		return &kcpListener{l}, nil
	default:
		return nil, fmt.Errorf("неизвестный транспорт %q", transport)
	}
}

// kcpListener настраивает каждую принятую KCP-сессию
type kcpListener struct {
	*kcp.Listener
}

func (l *kcpListener) Accept() (net.Conn, error) {
	sess, err := l.AcceptKCP()
	if err != nil {
		return nil, err
	}
	tuneKCP(sess)
	return sess, nil
}

// tuneKCP включает быстрый режим: без задержки записи, интервал 20 мс,
// быстрый ретрансмит после двух дубликатов ACK
func tuneKCP(sess *kcp.UDPSession) {
	sess.SetStreamMode(true)
	sess.SetWriteDelay(false)
	sess.SetNoDelay(1, 20, 2, 1)
	sess.SetWindowSize(512, 512)
	sess.SetMtu(1400)
	sess.SetACKNoDelay(true)
}
