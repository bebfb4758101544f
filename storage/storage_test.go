package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/eddielth/edge-nodes/config"
	"github.com/eddielth/edge-nodes/sensor"
)

type fakeBackend struct {
	stored   []Record
	storeErr error
	closed   int
}

func (b *fakeBackend) Store(ctx context.Context, rec Record) error {
	if b.storeErr != nil {
		return b.storeErr
	}
	b.stored = append(b.stored, rec)
	return nil
}

func (b *fakeBackend) Close() error {
	b.closed++
	return nil
}

func sampleRecord() Record {
	rec := NewRecord("BME", sensor.Reading{Temperature: 23.5, Humidity: 40.2, Pressure: 1013.2})
	rec.ReceivedAt = time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	return rec
}

func TestManagerStoreContinuesPastFailingBackend(t *testing.T) {
	broken := &fakeBackend{storeErr: errors.New("disk full")}
	ok := &fakeBackend{}
	m := NewManager(broken, ok)

	err := m.Store(context.Background(), sampleRecord())
	if !errors.Is(err, broken.storeErr) {
		t.Fatalf("Store() error = %v, want %v", err, broken.storeErr)
	}
	if len(ok.stored) != 1 {
		t.Errorf("healthy backend stored %d records, want 1", len(ok.stored))
	}
}

func TestManagerClose(t *testing.T) {
	a, b := &fakeBackend{}, &fakeBackend{}
	m := NewManager(a)
	m.AddBackend(b)

	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", m.Len())
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if a.closed != 1 || b.closed != 1 {
		t.Errorf("closed = %d, %d, want 1, 1", a.closed, b.closed)
	}
	if m.Len() != 0 {
		t.Errorf("Len() after Close = %d", m.Len())
	}
}

func TestNewRecordIDsAreUnique(t *testing.T) {
	a := NewRecord("BME", sensor.Reading{})
	b := NewRecord("BME", sensor.Reading{})
	if a.ID == b.ID {
		t.Errorf("two records share id %s", a.ID)
	}
}

func TestFileStorageAppendsJSONLines(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStorage(dir)
	if err != nil {
		t.Fatalf("NewFileStorage() error = %v", err)
	}

	rec := sampleRecord()
	for i := 0; i < 2; i++ {
		if err := fs.Store(context.Background(), rec); err != nil {
			t.Fatalf("Store() error = %v", err)
		}
	}

	path := filepath.Join(dir, "BME", "20240309.jsonl")
	if fs.Path(rec) != path {
		t.Errorf("Path() = %s, want %s", fs.Path(rec), path)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var lines int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines++
		var got Record
		if err := json.Unmarshal(scanner.Bytes(), &got); err != nil {
			t.Fatalf("line %d: %v", lines, err)
		}
		if got.ID != rec.ID || got.Reading != rec.Reading || !got.ReceivedAt.Equal(rec.ReceivedAt) {
			t.Errorf("line %d = %+v, want %+v", lines, got, rec)
		}
	}
	if lines != 2 {
		t.Errorf("got %d lines, want 2", lines)
	}
}

func TestFileStorageCanceledContext(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := fs.Store(ctx, sampleRecord()); !errors.Is(err, context.Canceled) {
		t.Errorf("Store() error = %v, want context.Canceled", err)
	}
}

func TestSQLiteStorage(t *testing.T) {
	ss, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "data", "readings.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStorage() error = %v", err)
	}
	defer ss.Close()

	ctx := context.Background()
	rec := sampleRecord()
	if err := ss.Store(ctx, rec); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if err := ss.Store(ctx, rec); err == nil {
		t.Error("storing the same record twice succeeded")
	}
	if err := ss.Store(ctx, NewRecord("BME", rec.Reading)); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	n, err := ss.Count(ctx, "BME")
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}
}

func TestNewDatabaseStorageUnsupported(t *testing.T) {
	_, err := NewDatabaseStorage("oracle", "x")
	if !errors.Is(err, ErrUnsupportedBackend) {
		t.Errorf("error = %v, want ErrUnsupportedBackend", err)
	}
}

func TestNewFromConfig(t *testing.T) {
	dir := t.TempDir()
	m, err := NewFromConfig(config.StorageConfig{
		File:     config.FileStorageConfig{Enabled: true, Path: filepath.Join(dir, "files")},
		Database: config.DatabaseStorageConfig{Enabled: true, Type: "sqlite", DSN: filepath.Join(dir, "edge.db")},
	})
	if err != nil {
		t.Fatalf("NewFromConfig() error = %v", err)
	}
	defer m.Close()

	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}
	if err := m.Store(context.Background(), sampleRecord()); err != nil {
		t.Errorf("Store() error = %v", err)
	}
}

func TestNewFromConfigRejectsUnknownDatabase(t *testing.T) {
	_, err := NewFromConfig(config.StorageConfig{
		Database: config.DatabaseStorageConfig{Enabled: true, Type: "mongo"},
	})
	if !errors.Is(err, ErrUnsupportedBackend) {
		t.Errorf("error = %v, want ErrUnsupportedBackend", err)
	}
}

func TestParseMySQLDSN(t *testing.T) {
	database, server, err := parseMySQLDSN("edge:secret@tcp(db.local:3306)/telemetry?parseTime=true")
	if err != nil {
		t.Fatalf("parseMySQLDSN() error = %v", err)
	}
	if database != "telemetry" {
		t.Errorf("database = %q, want telemetry", database)
	}
	if !strings.HasPrefix(server, "edge:secret@tcp(db.local:3306)/") || strings.Contains(server, "telemetry") {
		t.Errorf("server DSN = %q", server)
	}

	if _, _, err := parseMySQLDSN("edge:secret@tcp(db.local:3306)/"); err == nil {
		t.Error("expected error for DSN without database")
	}
}

func TestParsePostgreSQLDSN(t *testing.T) {
	tests := []struct {
		name       string
		dsn        string
		wantDB     string
		wantServer string
		wantErr    bool
	}{
		{
			name:       "url",
			dsn:        "postgres://edge:secret@db:5432/telemetry?sslmode=disable",
			wantDB:     "telemetry",
			wantServer: "postgres://edge:secret@db:5432/postgres?sslmode=disable",
		},
		{
			name:       "key value",
			dsn:        "host=db port=5432 user=edge dbname=telemetry sslmode=disable",
			wantDB:     "telemetry",
			wantServer: "host=db port=5432 user=edge sslmode=disable dbname=postgres",
		},
		{name: "url without database", dsn: "postgresql://edge@db:5432/", wantErr: true},
		{name: "key value without database", dsn: "host=db user=edge", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, server, err := parsePostgreSQLDSN(tt.dsn)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if db != tt.wantDB || server != tt.wantServer {
				t.Errorf("got (%q, %q), want (%q, %q)", db, server, tt.wantDB, tt.wantServer)
			}
		})
	}
}

func TestInfluxDBPoint(t *testing.T) {
	s := &InfluxDBStorage{measurement: "environment"}
	line := write.PointToLineProtocol(s.Point(sampleRecord()), time.Second)

	for _, want := range []string{"environment,topic=BME ", "temperature=23.5", "humidity=40.2", "pressure=1013.2"} {
		if !strings.Contains(line, want) {
			t.Errorf("line protocol %q missing %q", line, want)
		}
	}
}
