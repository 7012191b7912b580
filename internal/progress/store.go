package progress

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/project-tktt/avature-crawler/internal/domain"
)

// Store is the resumable per-site ledger. Every submitted site gets
// exactly one row at crawl termination; rows are append-only and never
// overwritten. A site recorded as completed is skipped on the next run.
type Store interface {
	AlreadyCompleted(siteRoot string) bool
	Record(p domain.SiteProgress) error
	Snapshot() []domain.SiteProgress
}

// MemoryStore keeps the ledger in memory, for tests and embedded use.
type MemoryStore struct {
	mu   sync.Mutex
	rows []domain.SiteProgress
	done map[string]bool
}

// NewMemoryStore creates an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{done: make(map[string]bool)}
}

func (s *MemoryStore) AlreadyCompleted(siteRoot string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done[siteRoot]
}

func (s *MemoryStore) Record(p domain.SiteProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows = append(s.rows, p)
	if p.Status == domain.SiteCompleted {
		s.done[p.SiteRoot] = true
	}
	return nil
}

func (s *MemoryStore) Snapshot() []domain.SiteProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SiteProgress, len(s.rows))
	copy(out, s.rows)
	return out
}

// fileState is the on-disk shape of the ledger.
type fileState struct {
	Completed []string              `json:"completed"`
	Failed    []domain.SiteProgress `json:"failed"`
	Rows      []domain.SiteProgress `json:"rows"`
}

// FileStore persists the ledger to a JSON file so an interrupted run can
// resume. Each Record checkpoints to disk; concurrent writers serialize on
// the store lock.
type FileStore struct {
	mu   sync.Mutex
	path string
	rows []domain.SiteProgress
	done map[string]bool
}

// OpenFileStore loads the ledger at path, creating an empty one when the
// file does not exist yet.
func OpenFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, done: make(map[string]bool)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read progress file: %w", err)
	}

	var state fileState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse progress file: %w", err)
	}

	for _, root := range state.Completed {
		s.done[root] = true
	}
	s.rows = state.Rows
	return s, nil
}

func (s *FileStore) AlreadyCompleted(siteRoot string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done[siteRoot]
}

func (s *FileStore) Record(p domain.SiteProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows = append(s.rows, p)
	if p.Status == domain.SiteCompleted {
		s.done[p.SiteRoot] = true
	}
	return s.flushLocked()
}

func (s *FileStore) Snapshot() []domain.SiteProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SiteProgress, len(s.rows))
	copy(out, s.rows)
	return out
}

func (s *FileStore) flushLocked() error {
	state := fileState{Completed: []string{}, Failed: []domain.SiteProgress{}, Rows: s.rows}
	for root := range s.done {
		state.Completed = append(state.Completed, root)
	}
	for _, row := range s.rows {
		if row.Status == domain.SiteFailed {
			state.Failed = append(state.Failed, row)
		}
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create progress dir: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write progress file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename progress file: %w", err)
	}
	return nil
}
