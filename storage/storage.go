package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eddielth/edge-nodes/config"
	"github.com/eddielth/edge-nodes/logger"
	"github.com/eddielth/edge-nodes/sensor"
)

// ErrUnsupportedBackend is returned for an unknown database type.
var ErrUnsupportedBackend = errors.New("storage: unsupported backend")

// Record is one reading as received by the collector.
type Record struct {
	ID         uuid.UUID      `json:"id"`
	Topic      string         `json:"topic"`
	Reading    sensor.Reading `json:"reading"`
	ReceivedAt time.Time      `json:"received_at"`
}

// NewRecord stamps r with a fresh id and the current time.
func NewRecord(topic string, r sensor.Reading) Record {
	return Record{
		ID:         uuid.New(),
		Topic:      topic,
		Reading:    r,
		ReceivedAt: time.Now().UTC(),
	}
}

// Backend persists records.
type Backend interface {
	Store(ctx context.Context, rec Record) error
	Close() error
}

// Manager fans every record out to all backends.
type Manager struct {
	backends []Backend
	mutex    sync.RWMutex
}

// NewManager returns a manager over backends.
func NewManager(backends ...Backend) *Manager {
	return &Manager{backends: backends}
}

// NewFromConfig opens every enabled backend. Backends opened before a
// failure are closed again.
func NewFromConfig(cfg config.StorageConfig) (*Manager, error) {
	m := NewManager()

	if cfg.File.Enabled {
		fs, err := NewFileStorage(cfg.File.Path)
		if err != nil {
			return nil, err
		}
		m.AddBackend(fs)
	}

	if cfg.Database.Enabled {
		db, err := NewDatabaseStorage(cfg.Database.Type, cfg.Database.DSN)
		if err != nil {
			m.Close()
			return nil, err
		}
		m.AddBackend(db)
	}

	if cfg.InfluxDB.Enabled {
		ix, err := NewInfluxDBStorage(cfg.InfluxDB)
		if err != nil {
			m.Close()
			return nil, err
		}
		m.AddBackend(ix)
	}

	if m.Len() == 0 {
		logger.Warn("no storage backend enabled, readings will only be logged")
	}
	return m, nil
}

// Store writes rec to every backend. A failing backend does not stop the
// others; all failures are returned joined.
func (m *Manager) Store(ctx context.Context, rec Record) error {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var errs []error
	for _, backend := range m.backends {
		if err := backend.Store(ctx, rec); err != nil {
			logger.Error("store record %s failed: %v", rec.ID, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every backend.
func (m *Manager) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var errs []error
	for _, backend := range m.backends {
		if err := backend.Close(); err != nil {
			logger.Error("close storage backend failed: %v", err)
			errs = append(errs, err)
		}
	}
	m.backends = nil
	return errors.Join(errs...)
}

// AddBackend appends backend.
func (m *Manager) AddBackend(backend Backend) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.backends = append(m.backends, backend)
}

// Len reports the number of backends.
func (m *Manager) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.backends)
}

// initTimeout bounds schema setup and the first ping of a backend.
const initTimeout = 10 * time.Second

// DatabaseType names a SQL backend.
type DatabaseType string

const (
	MySQL      DatabaseType = "mysql"
	PostgreSQL DatabaseType = "postgresql"
	SQLite     DatabaseType = "sqlite"
)

// NewDatabaseStorage opens the SQL backend for dbType.
func NewDatabaseStorage(dbType string, dsn string) (Backend, error) {
	switch DatabaseType(dbType) {
	case MySQL:
		return NewMySQLStorage(dsn)
	case PostgreSQL:
		return NewPostgreSQLStorage(dsn)
	case SQLite:
		return NewSQLiteStorage(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, dbType)
	}
}
