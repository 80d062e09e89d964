package store

import (
	"context"
	"sort"
	"sync"

	"github.com/engageautomations/ghl-oauth-bridge/internal/models"
)

// MemoryStore keeps installations in a mutex-guarded map. Not durable: a
// process restart loses everything. Used standalone in tests and as the
// fallback tier behind the durable store.
type MemoryStore struct {
	mu            sync.RWMutex
	installations map[string]models.Installation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{installations: make(map[string]models.Installation)}
}

func (s *MemoryStore) Save(ctx context.Context, installation *models.Installation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.installations[installation.ID] = *installation
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Installation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	installation, ok := s.installations[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &installation, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]models.Installation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	installations := make([]models.Installation, 0, len(s.installations))
	for _, installation := range s.installations {
		installations = append(installations, installation)
	}
	sort.Slice(installations, func(a, b int) bool {
		return installations[a].CreatedAt.Before(installations[b].CreatedAt)
	})
	return installations, nil
}
