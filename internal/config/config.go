// Package config загружает настройки сервера: YAML-файл, переменные
// окружения и ванильный server.properties поверх них.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации приложения.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	World     WorldConfig     `yaml:"world"`
	Tick      TickConfig      `yaml:"tick"`
	Storage   StorageConfig   `yaml:"storage"`
	Auth      AuthConfig      `yaml:"auth"`
	API       APIConfig       `yaml:"api"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Transport string `yaml:"transport"` // tcp или kcp

	MaxPlayers           int    `yaml:"max_players"`
	MOTD                 string `yaml:"motd"`
	Favicon              string `yaml:"favicon"` // путь к PNG 64x64
	CompressionThreshold int    `yaml:"compression_threshold"`
	OnlineMode           bool   `yaml:"online_mode"`

	KeepAlive    time.Duration `yaml:"keep_alive"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	RateLimit    float64       `yaml:"rate_limit"`
	RateBurst    int           `yaml:"rate_burst"`
	SendQueue    int           `yaml:"send_queue"`
}

type WorldConfig struct {
	DataDir      string        `yaml:"data_dir"` // пусто: мир в памяти
	Seed         int64         `yaml:"seed"`
	LevelType    string        `yaml:"level_type"` // flat или default
	ViewDistance int           `yaml:"view_distance"`
	Gamemode     uint8         `yaml:"gamemode"`
	Difficulty   uint8         `yaml:"difficulty"`
	GracePeriod  time.Duration `yaml:"grace_period"`
}

type TickConfig struct {
	Rate              int           `yaml:"rate"`
	ChunkLoadsPerTick int           `yaml:"chunk_loads_per_tick"`
	MaxMovePerTick    float64       `yaml:"max_move_per_tick"`
	MailboxSize       int           `yaml:"mailbox_size"`
	Autosave          time.Duration `yaml:"autosave"`
}

// StorageConfig выбирает хранилище позиций игроков
type StorageConfig struct {
	Positions     string `yaml:"positions"` // memory, redis или mariadb
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	MariaDSN      string `yaml:"maria_dsn"`
}

type AuthConfig struct {
	MongoURI      string        `yaml:"mongo_uri"` // пусто: учётки и баны в памяти
	MongoDatabase string        `yaml:"mongo_database"`
	AdminUser     string        `yaml:"admin_user"`
	AdminPassword string        `yaml:"admin_password"`
	JWTSecret     string        `yaml:"jwt_secret"` // base64, пусто: случайный
	TokenTTL      time.Duration `yaml:"token_ttl"`
}

type APIConfig struct {
	RESTPort int `yaml:"rest_port"`
	GRPCPort int `yaml:"grpc_port"`
}

type EventBusConfig struct {
	URL       string `yaml:"url"` // пусто: шина в памяти
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
	Capacity  int    `yaml:"capacity"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Default возвращает полностью заполненную конфигурацию
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:                 25565,
			Transport:            "tcp",
			MaxPlayers:           20,
			MOTD:                 "A Minecraft Server",
			CompressionThreshold: 256,
			KeepAlive:            20 * time.Second,
			ReadTimeout:          30 * time.Second,
			WriteTimeout:         10 * time.Second,
			RateLimit:            250,
			RateBurst:            500,
			SendQueue:            1024,
		},
		World: WorldConfig{
			DataDir:      "data",
			LevelType:    "flat",
			ViewDistance: 10,
			Gamemode:     1,
			Difficulty:   1,
			GracePeriod:  30 * time.Second,
		},
		Tick: TickConfig{
			Rate:              20,
			ChunkLoadsPerTick: 16,
			MaxMovePerTick:    10,
			MailboxSize:       256,
			Autosave:          time.Minute,
		},
		Storage: StorageConfig{
			Positions: "memory",
			RedisAddr: "localhost:6379",
		},
		Auth: AuthConfig{
			MongoDatabase: "mc",
			AdminUser:     "admin",
			TokenTTL:      24 * time.Hour,
		},
		API: APIConfig{
			RESTPort: 8088,
			GRPCPort: 8089,
		},
		EventBus: EventBusConfig{
			Stream:    "MC_EVENTS",
			Retention: 24,
			Capacity:  1024,
		},
		Logging: LoggingConfig{Level: "INFO"},
	}
}

// GetPort возвращает игровой порт с поддержкой fallback значений
func (s *ServerConfig) GetPort() int {
	return getPortWithEnvFallback(s.Port, "MC_PORT", 25565)
}

// Addr адрес игрового listener'а
func (s *ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.GetPort()))
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (a *APIConfig) GetRESTPort() int {
	return getPortWithEnvFallback(a.RESTPort, "MC_REST_PORT", 8088)
}

// GetGRPCPort возвращает порт gRPC консоли с поддержкой fallback значений
func (a *APIConfig) GetGRPCPort() int {
	return getPortWithEnvFallback(a.GRPCPort, "MC_GRPC_PORT", 8089)
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}
	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}
	return defaultPort
}

// getStringWithEnvFallback то же для строк
func getStringWithEnvFallback(configValue, envVar, defaultValue string) string {
	if configValue != "" {
		return configValue
	}
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return defaultValue
}

// applyEnv подставляет секреты и адреса из окружения, если в файле их нет
func (c *Config) applyEnv() {
	c.Auth.JWTSecret = getStringWithEnvFallback(c.Auth.JWTSecret, "MC_JWT_SECRET", "")
	c.Auth.AdminPassword = getStringWithEnvFallback(c.Auth.AdminPassword, "MC_ADMIN_PASSWORD", "")
	c.Auth.MongoURI = getStringWithEnvFallback(c.Auth.MongoURI, "MC_MONGO_URI", "")
	c.Storage.MariaDSN = getStringWithEnvFallback(c.Storage.MariaDSN, "MC_MARIA_DSN", "")
	c.Storage.RedisPassword = getStringWithEnvFallback(c.Storage.RedisPassword, "MC_REDIS_PASSWORD", "")
	c.EventBus.URL = getStringWithEnvFallback(c.EventBus.URL, "MC_NATS_URL", "")
	c.Telemetry.Endpoint = getStringWithEnvFallback(c.Telemetry.Endpoint, "MC_OTLP_ENDPOINT", "")
}

// Load читает YAML файл конфигурации поверх Default().
// Если path == "", берёт путь из ENV MC_CONFIG; без файла возвращает Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("MC_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ErrInvalid оборачивает все ошибки проверки конфигурации
var ErrInvalid = errors.New("config: invalid value")

// Validate проверяет значения, которые сервер не может исправить сам
func (c *Config) Validate() error {
	switch c.Server.Transport {
	case "", "tcp", "kcp":
	default:
		return fmt.Errorf("%w: server.transport %q", ErrInvalid, c.Server.Transport)
	}
	for name, port := range map[string]int{
		"server.port":   c.Server.Port,
		"api.rest_port": c.API.RESTPort,
		"api.grpc_port": c.API.GRPCPort,
	} {
		if port < 0 || port > 65535 {
			return fmt.Errorf("%w: %s %d", ErrInvalid, name, port)
		}
	}
	switch c.Storage.Positions {
	case "", "memory", "redis":
	case "mariadb":
		if c.Storage.MariaDSN == "" {
			return fmt.Errorf("%w: storage.maria_dsn is required for mariadb", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: storage.positions %q", ErrInvalid, c.Storage.Positions)
	}
	switch c.World.LevelType {
	case "", "flat", "default":
	default:
		return fmt.Errorf("%w: world.level_type %q", ErrInvalid, c.World.LevelType)
	}
	if c.World.Gamemode > 3 {
		return fmt.Errorf("%w: world.gamemode %d", ErrInvalid, c.World.Gamemode)
	}
	if c.World.Difficulty > 3 {
		return fmt.Errorf("%w: world.difficulty %d", ErrInvalid, c.World.Difficulty)
	}
	if c.Tick.Rate < 0 || c.Tick.Rate > 1000 {
		return fmt.Errorf("%w: tick.rate %d", ErrInvalid, c.Tick.Rate)
	}
	return nil
}
