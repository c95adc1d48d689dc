package out

import (
	"context"

	"triage_server/core/domain"
)

// =============================================================================
// Message Producer Port (Redis Streams)
// =============================================================================

// MessageProducerPort enqueues background jobs for the worker pool.
type MessageProducerPort interface {
	PublishImport(ctx context.Context, opts domain.ImportOptions) error
	PublishBulkDelete(ctx context.Context, userID string, messageIDs []string) error
	PublishBulkUnsubscribe(ctx context.Context, userID string, messageIDs []string) error
	PublishWatchRenew(ctx context.Context, accountID string) error
}

// =============================================================================
// Job Payloads
// =============================================================================

// ImportJob triggers an inbox import run for one account.
type ImportJob struct {
	AccountID   string `json:"account_id"`
	Query       string `json:"query,omitempty"`
	MaxResults  int    `json:"max_results,omitempty"`
	AutoArchive bool   `json:"auto_archive"`
}

// BulkDeleteJob removes a batch of stored messages for a user.
type BulkDeleteJob struct {
	UserID     string   `json:"user_id"`
	MessageIDs []string `json:"message_ids"`
}

// BulkUnsubscribeJob attempts unsubscribe actions for a batch of messages.
type BulkUnsubscribeJob struct {
	UserID     string   `json:"user_id"`
	MessageIDs []string `json:"message_ids"`
}

// WatchRenewJob renews the push subscription for one account.
type WatchRenewJob struct {
	AccountID string `json:"account_id"`
}
