package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"MarketCore/internal/domain/models"
	"MarketCore/internal/domain/repository"
)

// FileSessionStore writes one pretty-printed JSON document per symbol.
// Writes go to a temp file in the same directory which is then renamed over
// the target, so readers never observe a partial document.
type FileSessionStore struct {
	dir string
}

var _ repository.SessionStore = (*FileSessionStore)(nil)

// NewFileSessionStore creates dir if needed.
func NewFileSessionStore(dir string) (*FileSessionStore, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &FileSessionStore{dir: dir}, nil
}

// Path returns the state file of symbol.
func (s *FileSessionStore) Path(symbol string) string {
	return filepath.Join(s.dir, "session_state_"+storeKey(symbol)+".json")
}

func (s *FileSessionStore) Load(ctx context.Context, symbol string) (models.SessionState, error) {
	if err := ctx.Err(); err != nil {
		return models.SessionState{}, err
	}
	data, err := os.ReadFile(s.Path(symbol))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.SessionState{}, models.ErrStateNotFound
		}
		return models.SessionState{}, fmt.Errorf("read session state: %w", err)
	}
	return decodeState(data)
}

func (s *FileSessionStore) Save(ctx context.Context, symbol string, st models.SessionState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeState(st)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".session_state_*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path(symbol)); err != nil {
		return fmt.Errorf("replace session state: %w", err)
	}
	return nil
}
