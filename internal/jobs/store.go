package jobs

import (
	"errors"
	"sort"
	"sync"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobRunning  = errors.New("job is still running")
)

// Store holds the latest snapshot per job. Implementations must allow
// concurrent readers alongside one writer per job.
type Store interface {
	// Put replaces the snapshot for s.ID unless the stored one is terminal.
	Put(s Snapshot)
	Get(id string) (Snapshot, error)
	// Delete evicts a terminal job.
	Delete(id string) error
	List() []Snapshot
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]Snapshot)}
}

func (m *MemoryStore) Put(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.jobs[s.ID]; ok && cur.Status.Terminal() {
		return
	}
	m.jobs[s.ID] = s
}

func (m *MemoryStore) Get(id string) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.jobs[id]
	if !ok {
		return Snapshot{}, ErrJobNotFound
	}
	return s, nil
}

func (m *MemoryStore) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if !s.Status.Terminal() {
		return ErrJobRunning
	}
	delete(m.jobs, id)
	return nil
}

// List returns all snapshots, oldest first.
func (m *MemoryStore) List() []Snapshot {
	m.mu.RLock()
	out := make([]Snapshot, 0, len(m.jobs))
	for _, s := range m.jobs {
		out = append(out, s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
