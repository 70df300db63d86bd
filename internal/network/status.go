package network

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/annel0/mc-server/internal/protocol/packet"
)

// maxSample сколько игроков показывать в списке серверов
const maxSample = 12

type statusVersion struct {
	Name     string `json:"name"`
	Protocol int32  `json:"protocol"`
}

type statusSample struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type statusPlayers struct {
	Max    int            `json:"max"`
	Online int            `json:"online"`
	Sample []statusSample `json:"sample,omitempty"`
}

type statusDescription struct {
	Text string `json:"text"`
}

// StatusResponse тело ответа server list ping
type StatusResponse struct {
	Version     statusVersion     `json:"version"`
	Players     statusPlayers     `json:"players"`
	Description statusDescription `json:"description"`
	Favicon     string            `json:"favicon,omitempty"`
}

// Status собирает ответ на server list ping из последнего снимка тика
func (m *Manager) Status() StatusResponse {
	resp := StatusResponse{
		Version:     statusVersion{Name: packet.VersionName, Protocol: packet.ProtocolVersion},
		Players:     statusPlayers{Max: m.opts.MaxPlayers},
		Description: statusDescription{Text: m.opts.MOTD},
		Favicon:     m.opts.Favicon,
	}
	players := m.opts.Scheduler.Snapshot().Players
	resp.Players.Online = len(players)
	for _, p := range players[:min(len(players), maxSample)] {
		resp.Players.Sample = append(resp.Players.Sample, statusSample{Name: p.Name, ID: p.UUID.String()})
	}
	return resp
}

func (m *Manager) statusJSON() (string, error) {
	b, err := json.Marshal(m.Status())
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// LoadFavicon читает PNG 64×64 и возвращает его в виде data URI
func LoadFavicon(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("чтение иконки: %w", err)
	}
	if ct := http.DetectContentType(data); ct != "image/png" {
		return "", fmt.Errorf("иконка %s должна быть PNG, получено %s", path, ct)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}
