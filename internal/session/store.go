package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when no checkpoint exists for an id.
var ErrSessionNotFound = errors.New("session not found")

const checkpointSuffix = "_checkpoint.json"

// Store handles checkpoint persistence under a base directory. Each
// session gets its own subdirectory.
type Store struct {
	baseDir  string
	retained int
}

// NewStore creates a Store rooted at baseDir keeping the last retained
// events of each session.
func NewStore(baseDir string, retained int) *Store {
	return &Store{baseDir: baseDir, retained: max(retained, 1)}
}

// BaseDir returns the directory checkpoints are written to.
func (st *Store) BaseDir() string {
	return st.baseDir
}

// NewID returns a fresh session id.
func (st *Store) NewID() string {
	return uuid.New().String()
}

// Path returns the checkpoint location for id.
func (st *Store) Path(id string) string {
	return filepath.Join(st.baseDir, id, id+checkpointSuffix)
}

// Save writes the checkpoint for s, replacing any previous one. Only the
// last retained events are kept. The file is written to a temporary name
// and renamed so readers never see a partial checkpoint.
func (st *Store) Save(s Session) (string, error) {
	if s.ID == "" {
		return "", fmt.Errorf("session has no id")
	}
	s = s.clone()
	s.Events = s.LastEvents(st.retained)

	dir := filepath.Join(st.baseDir, s.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create session directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".checkpoint-*")
	if err != nil {
		return "", fmt.Errorf("failed to create checkpoint: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write checkpoint: %w", err)
	}

	path := st.Path(s.ID)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to commit checkpoint: %w", err)
	}
	return path, nil
}

// Load reads the checkpoint for id.
func (st *Store) Load(id string) (Session, error) {
	if id == "" || filepath.Base(id) != id {
		return Session{}, ErrSessionNotFound
	}
	data, err := os.ReadFile(st.Path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("failed to parse checkpoint: %w", err)
	}
	return s, nil
}

// List reads every checkpoint, newest first. Unreadable checkpoints are
// skipped.
func (st *Store) List() ([]Session, error) {
	entries, err := os.ReadDir(st.baseDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Session{}, nil
		}
		return nil, fmt.Errorf("failed to read session directory: %w", err)
	}

	sessions := []Session{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		s, err := st.Load(entry.Name())
		if err != nil {
			continue
		}
		sessions = append(sessions, s)
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}
