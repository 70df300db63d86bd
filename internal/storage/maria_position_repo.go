package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// MariaPositionRepo реализует PositionRepo для MariaDB/MySQL.
// Позиции хранятся в таблице player_positions.
type MariaPositionRepo struct {
	db *sql.DB
}

const upsertPosition = `
	INSERT INTO player_positions (player_id, x, y, z, yaw, pitch)
	VALUES (?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
		x = VALUES(x),
		y = VALUES(y),
		z = VALUES(z),
		yaw = VALUES(yaw),
		pitch = VALUES(pitch),
		updated_at = CURRENT_TIMESTAMP
`

// NewMariaPositionRepo подключается к базе и создаёт таблицу при необходимости.
// dsn: user:pass@tcp(host:port)/dbname
func NewMariaPositionRepo(ctx context.Context, dsn string) (*MariaPositionRepo, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось проверить соединение с MariaDB: %w", err)
	}

	repo := &MariaPositionRepo{db: db}
	if err := repo.createTable(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *MariaPositionRepo) createTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS player_positions (
			player_id  CHAR(36)    PRIMARY KEY,
			x          DOUBLE      NOT NULL,
			y          DOUBLE      NOT NULL,
			z          DOUBLE      NOT NULL,
			yaw        FLOAT       NOT NULL DEFAULT 0,
			pitch      FLOAT       NOT NULL DEFAULT 0,
			updated_at TIMESTAMP   DEFAULT CURRENT_TIMESTAMP
			           ON UPDATE   CURRENT_TIMESTAMP,
			INDEX idx_updated_at (updated_at)
		) ENGINE=InnoDB
	`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ошибка создания таблицы player_positions: %w", err)
	}
	return nil
}

// Save сохраняет позицию игрока
func (r *MariaPositionRepo) Save(ctx context.Context, playerID string, pos Position) error {
	if err := pos.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, upsertPosition, playerID, pos.X, pos.Y, pos.Z, pos.Yaw, pos.Pitch)
	if err != nil {
		return fmt.Errorf("ошибка сохранения позиции игрока %s: %w", playerID, err)
	}
	return nil
}

// Load загружает позицию игрока
func (r *MariaPositionRepo) Load(ctx context.Context, playerID string) (Position, bool, error) {
	query := `SELECT x, y, z, yaw, pitch FROM player_positions WHERE player_id = ?`

	var pos Position
	err := r.db.QueryRowContext(ctx, query, playerID).Scan(&pos.X, &pos.Y, &pos.Z, &pos.Yaw, &pos.Pitch)
	if errors.Is(err, sql.ErrNoRows) {
		return Position{}, false, nil
	}
	if err != nil {
		return Position{}, false, fmt.Errorf("ошибка загрузки позиции игрока %s: %w", playerID, err)
	}
	return pos, true, nil
}

// Delete удаляет сохраненную позицию игрока
func (r *MariaPositionRepo) Delete(ctx context.Context, playerID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM player_positions WHERE player_id = ?`, playerID)
	if err != nil {
		return fmt.Errorf("ошибка удаления позиции игрока %s: %w", playerID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("ошибка получения количества затронутых строк: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrPositionNotFound, playerID)
	}
	return nil
}

// BatchSave сохраняет позиции в одной транзакции
func (r *MariaPositionRepo) BatchSave(ctx context.Context, positions map[string]Position) error {
	if len(positions) == 0 {
		return nil
	}
	if err := validateBatch(positions); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertPosition)
	if err != nil {
		return fmt.Errorf("ошибка подготовки запроса: %w", err)
	}
	defer stmt.Close()

	for id, pos := range positions {
		if _, err := stmt.ExecContext(ctx, id, pos.X, pos.Y, pos.Z, pos.Yaw, pos.Pitch); err != nil {
			return fmt.Errorf("ошибка сохранения позиции игрока %s в batch: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

// Close закрывает соединение с базой данных
func (r *MariaPositionRepo) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}
