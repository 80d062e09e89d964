package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/engageautomations/ghl-oauth-bridge/internal/models"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Store is the read surface the scheduler needs
type Store interface {
	List(ctx context.Context) ([]models.Installation, error)
}

// Refresher performs one per-installation token refresh. Implemented by the
// API client so scheduler and request-time refreshes share the same per-id
// in-flight deduplication.
type Refresher interface {
	RefreshInstallation(ctx context.Context, installationID string) (*models.Installation, error)
}

// RefreshScheduler proactively refreshes tokens nearing expiry so requests
// rarely pay the refresh cost themselves. It runs on a fixed interval
// independent of inbound traffic, owned by the process lifecycle.
type RefreshScheduler struct {
	store     Store
	refresher Refresher
	interval  time.Duration
	padding   time.Duration
	cron      *cron.Cron
	now       func() time.Time
}

func New(store Store, refresher Refresher, interval, padding time.Duration) *RefreshScheduler {
	return &RefreshScheduler{
		store:     store,
		refresher: refresher,
		interval:  interval,
		padding:   padding,
		cron:      cron.New(),
		now:       time.Now,
	}
}

// Start registers the periodic tick and launches the cron runner
func (s *RefreshScheduler) Start() error {
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return err
	}
	s.cron.Start()
	log.WithField("interval", s.interval.String()).Info("Token refresh scheduler started")
	return nil
}

// Stop halts the cron runner; an in-flight tick finishes on its own
func (s *RefreshScheduler) Stop() {
	s.cron.Stop()
	log.Info("Token refresh scheduler stopped")
}

func (s *RefreshScheduler) tick() {
	// A failed cycle must never take the process down with it
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Refresh tick panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()
	s.RunOnce(ctx)
}

// RunOnce scans all installations and refreshes those inside the padding
// window. Different installations refresh concurrently; failures are recorded
// and retried naturally on the next tick.
func (s *RefreshScheduler) RunOnce(ctx context.Context) {
	installations, err := s.store.List(ctx)
	if err != nil {
		log.WithError(err).Error("Refresh scan could not list installations")
		return
	}

	now := s.now()
	var wg sync.WaitGroup
	for _, installation := range installations {
		if installation.Status == models.StatusRefreshFailed {
			// Terminal until a fresh install replaces it
			continue
		}
		if !installation.NeedsRefresh(s.padding, now) {
			continue
		}

		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := s.refresher.RefreshInstallation(ctx, id); err != nil {
				log.WithError(err).WithField("installation_id", id).Warn("Scheduled token refresh failed")
			}
		}(installation.ID)
	}
	wg.Wait()
}
