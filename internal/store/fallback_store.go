package store

import (
	"context"
	"errors"

	"github.com/engageautomations/ghl-oauth-bridge/internal/models"
	log "github.com/sirupsen/logrus"
)

// FallbackStore decorates a durable store with an in-memory mirror. Writes go
// to both; if the durable tier errors the write still succeeds against memory
// so token refresh keeps working through a database outage. That trades
// durability for availability: records written during an outage are lost on
// restart, and the tenant reinstalls.
type FallbackStore struct {
	durable InstallationStore
	memory  InstallationStore
}

func NewFallbackStore(durable, memory InstallationStore) *FallbackStore {
	return &FallbackStore{durable: durable, memory: memory}
}

func (s *FallbackStore) Save(ctx context.Context, installation *models.Installation) error {
	// Memory first: it cannot fail and keeps reads consistent either way
	if err := s.memory.Save(ctx, installation); err != nil {
		return err
	}
	if err := s.durable.Save(ctx, installation); err != nil {
		log.WithError(err).WithField("installation_id", installation.ID).
			Warn("Durable store write failed, record held in memory only")
	}
	return nil
}

func (s *FallbackStore) Get(ctx context.Context, id string) (*models.Installation, error) {
	installation, err := s.durable.Get(ctx, id)
	if err == nil {
		return installation, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		log.WithError(err).Warn("Durable store read failed, falling back to memory")
	}
	return s.memory.Get(ctx, id)
}

func (s *FallbackStore) List(ctx context.Context) ([]models.Installation, error) {
	fromMemory, err := s.memory.List(ctx)
	if err != nil {
		return nil, err
	}
	fromDurable, err := s.durable.List(ctx)
	if err != nil {
		log.WithError(err).Warn("Durable store list failed, serving memory records only")
		return fromMemory, nil
	}

	// Durable records win; memory contributes anything the database missed
	// during an outage
	seen := make(map[string]struct{}, len(fromDurable))
	for _, installation := range fromDurable {
		seen[installation.ID] = struct{}{}
	}
	merged := fromDurable
	for _, installation := range fromMemory {
		if _, ok := seen[installation.ID]; !ok {
			merged = append(merged, installation)
		}
	}
	return merged, nil
}
