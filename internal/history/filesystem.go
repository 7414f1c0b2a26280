package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"promptpix/internal/domain"
)

// FileBackend persists records as JSON files under a base directory. It is
// the default backend for local single-user deployments.
type FileBackend struct {
	basePath string
}

// NewFileBackend initializes a FileBackend rooted at basePath.
func NewFileBackend(basePath string) (*FileBackend, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("history: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("history: ensure base path: %w", err)
	}
	return &FileBackend{basePath: basePath}, nil
}

// Load reads the record for key, or domain.ErrNotFound if absent.
func (b *FileBackend) Load(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := b.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("history: read record: %w", err)
	}
	return data, nil
}

// Save writes the record atomically via a temp file rename.
func (b *FileBackend) Save(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := b.path(key)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("history: write record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("history: commit record: %w", err)
	}
	return nil
}

func (b *FileBackend) path(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || strings.ContainsAny(key, "/\\") {
		return "", fmt.Errorf("%w: invalid record key %q", domain.ErrInvalidInput, key)
	}
	return filepath.Join(b.basePath, key+".json"), nil
}

var _ Backend = (*FileBackend)(nil)
