// Package in defines inbound ports (driving ports) for the application.
package in

import (
	"context"

	"triage_server/core/domain"
)

// ImportService runs the per-account import pipeline.
type ImportService interface {
	// Run executes one import run. Per-message failures are aggregated
	// into the result. An unknown account or a listing failure returns a
	// coded error and no result; an empty category set returns the coded
	// error together with a result carrying success=false and exactly one
	// descriptive message.
	Run(ctx context.Context, opts domain.ImportOptions) (*domain.ImportResult, error)
}

// BulkService executes user-issued batch mutations.
type BulkService interface {
	// Delete removes the owned messages among ids transactionally,
	// keeping category counters consistent. All-or-nothing.
	Delete(ctx context.Context, userID string, messageIDs []string) (int64, error)

	// Unsubscribe attempts each message's unsubscribe link independently
	// and returns a per-message result slice in input order.
	Unsubscribe(ctx context.Context, userID string, messageIDs []string) ([]*domain.UnsubscribeResult, error)
}

// NotificationService is the core of the watch/notification bridge.
type NotificationService interface {
	// HandleNotification applies the staleness check against the stored
	// cursor and, for fresh notifications, advances the cursor and
	// triggers an import. It reports what happened; HTTP acknowledgement
	// policy is the caller's concern.
	HandleNotification(ctx context.Context, n *domain.ChangeNotification) (domain.BridgeOutcome, error)
}
