// Package metafile stores sync metadata as a JSON document on disk.
//
// Writes go to a temp file in the same directory which is then renamed over
// the target, so a crash never leaves a half-written file behind.
package metafile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/dukerupert/calsync/internal/model"
)

// Store is a file-backed sync metadata store.
type Store struct {
	mu   sync.Mutex
	path string
}

// New returns a store persisting to path. The file is created on first Save.
func New(path string) *Store {
	return &Store{path: path}
}

// Load reads the state from disk. A missing file yields an empty state.
func (s *Store) Load(_ context.Context) (*model.SyncState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Save atomically replaces the file with state.
func (s *Store) Save(_ context.Context, state *model.SyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(state)
}

// ClearToken removes the sync token of one calendar.
func (s *Store) ClearToken(_ context.Context, calendarID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return err
	}
	md, ok := state.Calendars[calendarID]
	if !ok {
		return nil
	}
	md.SyncToken = ""
	state.Calendars[calendarID] = md
	return s.save(state)
}

func (s *Store) load() (*model.SyncState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return model.NewSyncState(), nil
		}
		return nil, fmt.Errorf("read sync metadata: %w", err)
	}

	state := model.NewSyncState()
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("decode sync metadata: %w", err)
	}
	if state.Calendars == nil {
		state.Calendars = make(map[string]model.SyncMetadata)
	}
	return state, nil
}

func (s *Store) save(state *model.SyncState) error {
	if state == nil {
		return errors.New("sync state is nil")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create metadata dir: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sync metadata: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".calsync-meta-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace metadata file: %w", err)
	}
	return nil
}
