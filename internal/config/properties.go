package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"
)

// Ключи server.properties, которые понимает сервер
const (
	PropServerPort   = "server-port"
	PropServerIP     = "server-ip"
	PropMaxPlayers   = "max-players"
	PropMOTD         = "motd"
	PropViewDistance = "view-distance"
	PropCompression  = "network-compression-threshold"
	PropLevelSeed    = "level-seed"
	PropLevelType    = "level-type"
	PropOnlineMode   = "online-mode"
	PropDifficulty   = "difficulty"
	PropGamemode     = "gamemode"
)

// LoadProperties накладывает server.properties на cfg. Если файла нет, он
// создаётся из текущих значений cfg и created == true.
func LoadProperties(path string, cfg *Config) (created bool, err error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		out, err := os.Create(path)
		if err != nil {
			return false, err
		}
		if err := WriteProperties(out, cfg); err != nil {
			out.Close()
			return false, err
		}
		return true, out.Close()
	}
	if err != nil {
		return false, err
	}
	defer f.Close()

	props, err := ReadProperties(f)
	if err != nil {
		return false, fmt.Errorf("%s: %w", path, err)
	}
	if err := ApplyProperties(props, cfg); err != nil {
		return false, fmt.Errorf("%s: %w", path, err)
	}
	return false, cfg.Validate()
}

// ReadProperties разбирает файл в формате java.util.Properties: строки
// key=value или key:value, комментарии # и !, экранирование через \.
func ReadProperties(r io.Reader) (map[string]string, error) {
	props := make(map[string]string)
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimLeft(sc.Text(), " \t\f")
		if text == "" || text[0] == '#' || text[0] == '!' {
			continue
		}
		key, value := splitProperty(text)
		k, err := unescape(key)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		v, err := unescape(value)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		props[k] = v
	}
	return props, sc.Err()
}

// splitProperty делит строку по первому неэкранированному '=', ':' или
// пробелу
func splitProperty(text string) (key, value string) {
	i := 0
	for ; i < len(text); i++ {
		if text[i] == '\\' {
			i++
			continue
		}
		if strings.IndexByte("=: \t\f", text[i]) >= 0 {
			break
		}
	}
	if i >= len(text) {
		return text, ""
	}
	key, rest := text[:i], strings.TrimLeft(text[i:], " \t\f")
	if rest != "" && (rest[0] == '=' || rest[0] == ':') {
		rest = strings.TrimLeft(rest[1:], " \t\f")
	}
	return key, rest
}

func unescape(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case 'f':
			b.WriteByte('\f')
		case 'u':
			if i+4 >= len(s) {
				return "", fmt.Errorf("short \\u escape in %q", s)
			}
			n, err := strconv.ParseUint(s[i+1:i+5], 16, 16)
			if err != nil {
				return "", fmt.Errorf("bad \\u escape in %q", s)
			}
			b.WriteRune(rune(n))
			i += 4
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String(), nil
}

// ApplyProperties переносит известные ключи в cfg. Неизвестные ключи
// игнорируются.
func ApplyProperties(props map[string]string, cfg *Config) error {
	intProp := func(key string, dst *int) error {
		v, ok := props[key]
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalid, key, v)
		}
		*dst = n
		return nil
	}
	uint8Prop := func(key string, dst *uint8) error {
		n := int(*dst)
		if err := intProp(key, &n); err != nil {
			return err
		}
		if n < 0 || n > 3 {
			return fmt.Errorf("%w: %s=%d", ErrInvalid, key, n)
		}
		*dst = uint8(n)
		return nil
	}

	if err := intProp(PropServerPort, &cfg.Server.Port); err != nil {
		return err
	}
	if v, ok := props[PropServerIP]; ok {
		cfg.Server.Host = v
	}
	if err := intProp(PropMaxPlayers, &cfg.Server.MaxPlayers); err != nil {
		return err
	}
	if v, ok := props[PropMOTD]; ok {
		cfg.Server.MOTD = v
	}
	if err := intProp(PropViewDistance, &cfg.World.ViewDistance); err != nil {
		return err
	}
	if err := intProp(PropCompression, &cfg.Server.CompressionThreshold); err != nil {
		return err
	}
	// в server.properties 0 сжимает всё, а 0 в конфиге означает значение по умолчанию
	if v, ok := props[PropCompression]; ok && strings.TrimSpace(v) == "0" {
		cfg.Server.CompressionThreshold = 1
	}
	if v, ok := props[PropLevelSeed]; ok && v != "" {
		cfg.World.Seed = ParseSeed(v)
	}
	if v, ok := props[PropLevelType]; ok && v != "" {
		switch strings.ToUpper(v) {
		case "FLAT":
			cfg.World.LevelType = "flat"
		case "DEFAULT":
			cfg.World.LevelType = "default"
		default:
			return fmt.Errorf("%w: %s=%q", ErrInvalid, PropLevelType, v)
		}
	}
	if v, ok := props[PropOnlineMode]; ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalid, PropOnlineMode, v)
		}
		cfg.Server.OnlineMode = b
	}
	if err := uint8Prop(PropDifficulty, &cfg.World.Difficulty); err != nil {
		return err
	}
	return uint8Prop(PropGamemode, &cfg.World.Gamemode)
}

// ParseSeed превращает level-seed в число так же, как ванильный сервер:
// число берётся как есть, строка хэшируется String.hashCode.
func ParseSeed(s string) int64 {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n != 0 {
		return n
	}
	var h int32
	for _, u := range utf16.Encode([]rune(s)) {
		h = 31*h + int32(u)
	}
	return int64(h)
}

// WriteProperties сохраняет ключи, которые понимает сервер
func WriteProperties(w io.Writer, cfg *Config) error {
	levelType := "FLAT"
	if cfg.World.LevelType == "default" {
		levelType = "DEFAULT"
	}
	threshold := cfg.Server.CompressionThreshold
	if threshold < 0 {
		threshold = -1
	}
	props := map[string]string{
		PropServerPort:   strconv.Itoa(cfg.Server.GetPort()),
		PropServerIP:     cfg.Server.Host,
		PropMaxPlayers:   strconv.Itoa(cfg.Server.MaxPlayers),
		PropMOTD:         cfg.Server.MOTD,
		PropViewDistance: strconv.Itoa(cfg.World.ViewDistance),
		PropCompression:  strconv.Itoa(threshold),
		PropLevelSeed:    "",
		PropLevelType:    levelType,
		PropOnlineMode:   strconv.FormatBool(cfg.Server.OnlineMode),
		PropDifficulty:   strconv.Itoa(int(cfg.World.Difficulty)),
		PropGamemode:     strconv.Itoa(int(cfg.World.Gamemode)),
	}
	if cfg.World.Seed != 0 {
		props[PropLevelSeed] = strconv.FormatInt(cfg.World.Seed, 10)
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "#Minecraft server properties\n#%s\n", time.Now().Format(time.UnixDate))
	for _, k := range keys {
		fmt.Fprintf(bw, "%s=%s\n", k, escape(props[k]))
	}
	return bw.Flush()
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\t", `\t`, "=", `\=`, ":", `\:`)
	return r.Replace(s)
}
