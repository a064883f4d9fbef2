package database

import (
	"context"
	"fmt"
	"time"
)

// MarkerStore хранит маркеры обработанных сообщений в sqlite. Используется
// как резервный ярус, когда Redis недоступен: маркеры переживают рестарт.
type MarkerStore struct {
	db *DB
}

func NewMarkerStore(db *DB) *MarkerStore {
	return &MarkerStore{db: db}
}

// Register returns true when the marker was not seen before. INSERT OR IGNORE
// on the composite primary key gives the atomic check-and-set.
func (m *MarkerStore) Register(ctx context.Context, accountID, chatID int64, messageID int) (bool, error) {
	query := `INSERT OR IGNORE INTO processed_messages (account_id, chat_id, message_id, created_at)
              VALUES (?, ?, ?, ?)`
	result, err := m.db.db.ExecContext(ctx, query, accountID, chatID, messageID, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to register marker: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// Cleanup удаляет маркеры старше maxAge.
func (m *MarkerStore) Cleanup(ctx context.Context, maxAge time.Duration) error {
	query := `DELETE FROM processed_messages WHERE created_at < ?`
	result, err := m.db.db.ExecContext(ctx, query, time.Now().Add(-maxAge))
	if err != nil {
		return fmt.Errorf("failed to clean up markers: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows > 0 {
		m.db.log.Info().Int64("removed", rows).Msg("Старые маркеры удалены")
	}
	return nil
}
