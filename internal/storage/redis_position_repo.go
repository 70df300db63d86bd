package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/annel0/mc-server/internal/logging"
	"github.com/go-redis/redis/v8"
)

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Addr      string        // адрес Redis сервера
	Password  string        // пароль (пустой, если не требуется)
	DB        int           // номер базы данных
	KeyPrefix string        // префикс ключей
	TTL       time.Duration // время жизни записей, 0 — без истечения
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "mc:pos:",
		TTL:       30 * 24 * time.Hour,
	}
}

// RedisPositionRepo хранит позиции игроков в Redis в виде JSON
type RedisPositionRepo struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *logging.Logger
}

// NewRedisPositionRepo подключается к Redis и проверяет соединение
func NewRedisPositionRepo(ctx context.Context, config *RedisConfig) (*RedisPositionRepo, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	r := &RedisPositionRepo{
		client:    client,
		keyPrefix: config.KeyPrefix,
		ttl:       config.TTL,
		logger:    logging.GetStorageLogger(),
	}
	r.logger.Info("🔴 Подключено к Redis %s", config.Addr)
	return r, nil
}

func (r *RedisPositionRepo) key(playerID string) string { return r.keyPrefix + playerID }

// Save сохраняет позицию игрока
func (r *RedisPositionRepo) Save(ctx context.Context, playerID string, pos Position) error {
	if err := pos.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(pos)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(playerID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}
	return nil
}

// Load получает позицию игрока
func (r *RedisPositionRepo) Load(ctx context.Context, playerID string) (Position, bool, error) {
	data, err := r.client.Get(ctx, r.key(playerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Position{}, false, nil
	}
	if err != nil {
		return Position{}, false, fmt.Errorf("failed to get position: %w", err)
	}

	var pos Position
	if err := json.Unmarshal(data, &pos); err != nil {
		return Position{}, false, fmt.Errorf("failed to unmarshal position: %w", err)
	}
	return pos, true, nil
}

// Delete удаляет позицию игрока
func (r *RedisPositionRepo) Delete(ctx context.Context, playerID string) error {
	n, err := r.client.Del(ctx, r.key(playerID)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrPositionNotFound, playerID)
	}
	return nil
}

// BatchSave записывает позиции одним пайплайном
func (r *RedisPositionRepo) BatchSave(ctx context.Context, positions map[string]Position) error {
	if len(positions) == 0 {
		return nil
	}
	if err := validateBatch(positions); err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	for id, pos := range positions {
		data, err := json.Marshal(pos)
		if err != nil {
			return err
		}
		pipe.Set(ctx, r.key(id), data, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func (r *RedisPositionRepo) Close() error {
	return r.client.Close()
}
