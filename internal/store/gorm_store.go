package store

import (
	"context"
	"errors"

	"github.com/engageautomations/ghl-oauth-bridge/internal/models"
	"gorm.io/gorm"
)

// GormStore persists installations through gorm (postgres in production,
// sqlite for local runs and tests)
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Save(ctx context.Context, installation *models.Installation) error {
	return s.db.WithContext(ctx).Save(installation).Error
}

func (s *GormStore) Get(ctx context.Context, id string) (*models.Installation, error) {
	var installation models.Installation
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&installation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &installation, nil
}

func (s *GormStore) List(ctx context.Context) ([]models.Installation, error) {
	var installations []models.Installation
	if err := s.db.WithContext(ctx).Order("created_at").Find(&installations).Error; err != nil {
		return nil, err
	}
	return installations, nil
}
