package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/eddielth/edge-nodes/logger"
)

// SQLiteStorage stores readings in a local SQLite file, for collectors
// running on the same small board as the broker.
type SQLiteStorage struct {
	sqlStore
	path string
}

// NewSQLiteStorage opens (creating if needed) the database file at path.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: empty path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("sqlite: create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// One writer; also keeps ":memory:" on a single shared connection.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	ss := &SQLiteStorage{
		sqlStore: sqlStore{
			db:     db,
			name:   "sqlite",
			insert: `INSERT INTO readings (id, topic, temperature, humidity, pressure, received_at) VALUES (?, ?, ?, ?, ?, ?)`,
		},
		path: path,
	}

	if err := ss.exec(ctx,
		`CREATE TABLE IF NOT EXISTS readings (
			id TEXT PRIMARY KEY,
			topic TEXT NOT NULL,
			temperature REAL NOT NULL,
			humidity REAL NOT NULL,
			pressure REAL NOT NULL,
			received_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_readings_topic_received ON readings(topic, received_at)`,
	); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite storage ready: %s", path)
	return ss, nil
}

// Count returns the number of stored readings for topic.
func (s *SQLiteStorage) Count(ctx context.Context, topic string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM readings WHERE topic = ?`, topic).Scan(&n)
	return n, err
}
