package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/eddielth/edge-nodes/logger"
)

// MySQLStorage stores readings in MySQL.
type MySQLStorage struct {
	sqlStore
	database string
}

// NewMySQLStorage creates the database named in dsn if missing, then the
// readings table.
func NewMySQLStorage(dsn string) (*MySQLStorage, error) {
	database, serverDSN, err := parseMySQLDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse MySQL DSN: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	// 先连接到MySQL服务器（不指定数据库）
	serverDB, err := sql.Open("mysql", serverDSN)
	if err != nil {
		return nil, fmt.Errorf("connect MySQL server: %w", err)
	}
	defer serverDB.Close()

	_, err = serverDB.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s` CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci", database))
	if err != nil {
		return nil, fmt.Errorf("create MySQL database %s: %w", database, err)
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open MySQL database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping MySQL database: %w", err)
	}
	configurePool(db)

	ms := &MySQLStorage{
		sqlStore: sqlStore{
			db:     db,
			name:   "mysql",
			insert: `INSERT INTO readings (id, topic, temperature, humidity, pressure, received_at) VALUES (?, ?, ?, ?, ?, ?)`,
		},
		database: database,
	}

	if err := ms.exec(ctx, `
	CREATE TABLE IF NOT EXISTS readings (
		id CHAR(36) PRIMARY KEY,
		topic VARCHAR(255) NOT NULL,
		temperature DOUBLE NOT NULL,
		humidity DOUBLE NOT NULL,
		pressure DOUBLE NOT NULL,
		received_at DATETIME(3) NOT NULL,
		INDEX idx_topic_received (topic, received_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
	`); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("MySQL storage ready: database=%s", database)
	return ms, nil
}

// parseMySQLDSN returns the database name and a DSN for the same server
// without a database selected.
func parseMySQLDSN(dsn string) (database string, serverDSN string, err error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", "", err
	}
	if cfg.DBName == "" {
		return "", "", fmt.Errorf("no database name in DSN")
	}
	database = cfg.DBName
	cfg.DBName = ""
	return database, cfg.FormatDSN(), nil
}
