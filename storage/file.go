package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/eddielth/edge-nodes/logger"
)

// FileStorage appends records as JSON lines, one file per topic and UTC day:
// <base>/<topic>/<yyyymmdd>.jsonl.
type FileStorage struct {
	basePath string
	mu       sync.Mutex
}

// NewFileStorage creates basePath if needed.
func NewFileStorage(basePath string) (*FileStorage, error) {
	if basePath == "" {
		return nil, fmt.Errorf("file storage: empty path")
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create dir %s failed: %w", basePath, err)
	}

	logger.Info("init file storage: %s", basePath)
	return &FileStorage{basePath: basePath}, nil
}

// Path returns the file rec is appended to.
func (fs *FileStorage) Path(rec Record) string {
	return filepath.Join(fs.basePath, rec.Topic, rec.ReceivedAt.UTC().Format("20060102")+".jsonl")
}

// Store appends rec.
func (fs *FileStorage) Store(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("serialize record failed: %w", err)
	}
	line = append(line, '\n')

	fs.mu.Lock()
	defer fs.mu.Unlock()

	path := fs.Path(rec)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create dir %s failed: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open %s failed: %w", path, err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("write %s failed: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s failed: %w", path, err)
	}

	logger.Debug("stored record %s to %s", rec.ID, path)
	return nil
}

// Close implements Backend.
func (fs *FileStorage) Close() error {
	return nil
}
