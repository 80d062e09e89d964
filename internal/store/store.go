package store

import (
	"context"

	"github.com/engageautomations/ghl-oauth-bridge/internal/models"
	"gorm.io/gorm"
)

// InstallationStore is the single gateway to installation state. All token
// mutation goes through Save; only the authenticated API client reads raw
// tokens from records returned here.
type InstallationStore interface {
	// Save upserts an installation by id
	Save(ctx context.Context, installation *models.Installation) error
	// Get returns an installation or models.ErrNotFound
	Get(ctx context.Context, id string) (*models.Installation, error)
	// List returns all installations
	List(ctx context.Context) ([]models.Installation, error)
}

// NewStore builds the production store: a durable gorm store wrapped in the
// in-memory fallback so the service keeps answering across database outages.
// A nil db yields a memory-only store.
func NewStore(db *gorm.DB) InstallationStore {
	if db == nil {
		return NewMemoryStore()
	}
	return NewFallbackStore(NewGormStore(db), NewMemoryStore())
}
