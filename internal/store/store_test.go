package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/engageautomations/ghl-oauth-bridge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.Installation{})
	require.NoError(t, err)

	return db
}

func testInstallation(id string) *models.Installation {
	installation := &models.Installation{
		ID:           id,
		AccessToken:  "access-" + id,
		RefreshToken: "refresh-" + id,
		TokenType:    models.TokenClassLocation,
		ExpiresAt:    time.Now().Add(time.Hour),
		LocationID:   "loc_123",
		Status:       models.StatusValid,
	}
	installation.SetScopes([]string{"products.write", "medias.write"})
	return installation
}

func TestMemoryStoreCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)

	installation := testInstallation("inst-1")
	require.NoError(t, s.Save(ctx, installation))

	got, err := s.Get(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, "access-inst-1", got.AccessToken)
	assert.Equal(t, []string{"products.write", "medias.write"}, got.ScopeList())

	// Save is an upsert: mutating the same id replaces the record
	installation.AccessToken = "rotated"
	require.NoError(t, s.Save(ctx, installation))
	got, err = s.Get(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, "rotated", got.AccessToken)

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Save(ctx, testInstallation("inst-1")))

	got, err := s.Get(ctx, "inst-1")
	require.NoError(t, err)
	got.AccessToken = "mutated-by-caller"

	again, err := s.Get(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, "access-inst-1", again.AccessToken)
}

func TestGormStoreCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewGormStore(setupTestDB(t))

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)

	installation := testInstallation("inst-db")
	require.NoError(t, s.Save(ctx, installation))

	got, err := s.Get(ctx, "inst-db")
	require.NoError(t, err)
	assert.Equal(t, "access-inst-db", got.AccessToken)
	assert.Equal(t, models.TokenClassLocation, got.TokenType)

	installation.Status = models.StatusRefreshFailed
	require.NoError(t, s.Save(ctx, installation))
	got, err = s.Get(ctx, "inst-db")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRefreshFailed, got.Status)

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

// failingStore simulates a database outage
type failingStore struct{}

var errDatabaseDown = errors.New("database down")

func (f *failingStore) Save(ctx context.Context, installation *models.Installation) error {
	return errDatabaseDown
}

func (f *failingStore) Get(ctx context.Context, id string) (*models.Installation, error) {
	return nil, errDatabaseDown
}

func (f *failingStore) List(ctx context.Context) ([]models.Installation, error) {
	return nil, errDatabaseDown
}

func TestFallbackStoreSurvivesDurableOutage(t *testing.T) {
	ctx := context.Background()
	s := NewFallbackStore(&failingStore{}, NewMemoryStore())

	// A dead database must not fail the write
	installation := testInstallation("inst-outage")
	require.NoError(t, s.Save(ctx, installation))

	// And the record stays readable from the memory tier
	got, err := s.Get(ctx, "inst-outage")
	require.NoError(t, err)
	assert.Equal(t, "access-inst-outage", got.AccessToken)

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestFallbackStorePrefersDurableRecords(t *testing.T) {
	ctx := context.Background()
	durable := NewGormStore(setupTestDB(t))
	memory := NewMemoryStore()
	s := NewFallbackStore(durable, memory)

	require.NoError(t, s.Save(ctx, testInstallation("inst-1")))

	// The durable tier has a newer version of the record (e.g. written by a
	// sibling process); reads must prefer it
	updated := testInstallation("inst-1")
	updated.AccessToken = "durable-wins"
	require.NoError(t, durable.Save(ctx, updated))

	got, err := s.Get(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, "durable-wins", got.AccessToken)
}

func TestFallbackStoreListMergesMemoryOnlyRecords(t *testing.T) {
	ctx := context.Background()
	durable := NewGormStore(setupTestDB(t))
	memory := NewMemoryStore()
	s := NewFallbackStore(durable, memory)

	require.NoError(t, durable.Save(ctx, testInstallation("inst-durable")))
	require.NoError(t, memory.Save(ctx, testInstallation("inst-memory")))

	list, err := s.List(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(list))
	for _, installation := range list {
		ids = append(ids, installation.ID)
	}
	assert.ElementsMatch(t, []string{"inst-durable", "inst-memory"}, ids)
}

func TestNewStoreWithoutDatabase(t *testing.T) {
	s := NewStore(nil)
	require.NotNil(t, s)

	ctx := context.Background()
	require.NoError(t, s.Save(ctx, testInstallation("inst-1")))
	got, err := s.Get(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, "inst-1", got.ID)
}
