package worker

import (
	"context"
	"time"

	"triage_server/core/service/watch"
	"triage_server/pkg/logger"
)

// =============================================================================
// WatchRenewScheduler
// =============================================================================
//
// Gmail watches expire after seven days. This scheduler renews them well
// before the deadline so push notifications never lapse.

type WatchRenewScheduler struct {
	renewer       *watch.Renewer
	checkInterval time.Duration
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWatchRenewScheduler creates a new watch renew scheduler.
func NewWatchRenewScheduler(renewer *watch.Renewer, checkInterval time.Duration) *WatchRenewScheduler {
	if checkInterval <= 0 {
		checkInterval = 1 * time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WatchRenewScheduler{
		renewer:       renewer,
		checkInterval: checkInterval,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start starts the watch renew scheduler.
func (s *WatchRenewScheduler) Start() {
	logger.Info("[WatchRenewScheduler] Starting with interval %v", s.checkInterval)
	go s.run()
}

// Stop stops the watch renew scheduler.
func (s *WatchRenewScheduler) Stop() {
	logger.Info("[WatchRenewScheduler] Stopping...")
	s.cancel()
}

// run is the main loop that checks for expiring watches.
func (s *WatchRenewScheduler) run() {
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	// Immediate sweep on startup
	s.renewExpiringWatches()

	for {
		select {
		case <-s.ctx.Done():
			logger.Info("[WatchRenewScheduler] Stopped")
			return
		case <-ticker.C:
			s.renewExpiringWatches()
		}
	}
}

// renewExpiringWatches renews watches that are about to expire.
func (s *WatchRenewScheduler) renewExpiringWatches() {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	if _, err := s.renewer.RenewExpiring(ctx); err != nil {
		logger.Error("[WatchRenewScheduler] Failed to renew watches: %v", err)
	}
}
