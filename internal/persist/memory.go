package persist

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fruitsalade/explorer/pkg/models"
)

// MemoryStore keeps snapshots in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string]*models.Snapshot
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]*models.Snapshot)}
}

func (m *MemoryStore) Load(_ context.Context, workspace string) (*models.Snapshot, error) {
	if err := ValidateWorkspaceName(workspace); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.snaps[workspace]
	if !ok {
		return emptySnapshot(workspace), nil
	}
	return cloneSnapshot(s), nil
}

func (m *MemoryStore) Save(_ context.Context, snap *models.Snapshot) error {
	if err := ValidateWorkspaceName(snap.Workspace); err != nil {
		return err
	}
	s := cloneSnapshot(snap)
	if s.SavedAt.IsZero() {
		s.SavedAt = time.Now().UTC()
	}
	m.mu.Lock()
	m.snaps[snap.Workspace] = s
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, workspace string) error {
	m.mu.Lock()
	delete(m.snaps, workspace)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	names := make([]string, 0, len(m.snaps))
	for name := range m.snaps {
		names = append(names, name)
	}
	m.mu.RUnlock()
	sort.Strings(names)
	return names, nil
}

func (m *MemoryStore) Type() string { return "memory" }

func (m *MemoryStore) Close() error { return nil }
