package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"crypto-paper-trader/internal/portfolio"
)

// FileStore keeps portfolio state in a single JSON file. Writes go through
// a temp file and rename so a crash mid-write never corrupts the state.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) LoadPortfolio(_ context.Context) (*portfolio.Portfolio, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var pf portfolio.Portfolio
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse state file %s: %w", s.path, err)
	}
	return &pf, nil
}

func (s *FileStore) SavePortfolio(_ context.Context, pf *portfolio.Portfolio) error {
	data, err := json.MarshalIndent(pf, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
