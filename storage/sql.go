package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/eddielth/edge-nodes/logger"
)

// sqlStore is the part shared by the SQL backends: one readings table and a
// dialect-specific insert statement.
type sqlStore struct {
	db     *sql.DB
	name   string
	insert string
}

// 设置连接池参数
func configurePool(db *sql.DB) {
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
}

func (s *sqlStore) exec(ctx context.Context, statements ...string) error {
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: init schema: %w", s.name, err)
		}
	}
	return nil
}

// Store inserts rec. The record id is the primary key, so a redelivered
// record fails instead of being stored twice.
func (s *sqlStore) Store(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, s.insert,
		rec.ID.String(),
		rec.Topic,
		rec.Reading.Temperature,
		rec.Reading.Humidity,
		rec.Reading.Pressure,
		rec.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("%s: insert reading: %w", s.name, err)
	}
	logger.Debug("stored record %s to %s", rec.ID, s.name)
	return nil
}

// Close closes the connection pool.
func (s *sqlStore) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%s: close: %w", s.name, err)
	}
	s.db = nil
	logger.Info("%s connection closed", s.name)
	return nil
}
