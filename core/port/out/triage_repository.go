package out

import (
	"context"
	"errors"
	"time"

	"triage_server/core/domain"
)

// ErrNotFound is returned by repositories when a row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned by MessageRepository.Create when the
// (account_id, provider_message_id) uniqueness constraint is violated.
// Callers treat it as "already imported", not as a failure.
var ErrDuplicate = errors.New("duplicate message")

// =============================================================================
// Account Repository
// =============================================================================

type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)

	// UpdateCursor advances the change cursor. The bridge only calls this
	// after the staleness check, keeping the cursor non-decreasing.
	UpdateCursor(ctx context.Context, id, cursor string) error

	// UpdateWatch records a renewed push subscription.
	UpdateWatch(ctx context.Context, id, cursor string, expiration time.Time) error

	// ListWatchExpiring returns accounts whose watch subscription expires
	// before the deadline, or was never established.
	ListWatchExpiring(ctx context.Context, deadline time.Time) ([]*domain.Account, error)
}

// =============================================================================
// Category Repository
// =============================================================================

type CategoryRepository interface {
	ListByUser(ctx context.Context, userID string) ([]*domain.Category, error)

	// IncrementCount applies a single atomic delta to email_count. Never
	// implemented as read-modify-write.
	IncrementCount(ctx context.Context, categoryID string, delta int64) error
}

// =============================================================================
// Message Repository (dedup & persistence gateway)
// =============================================================================

type MessageRepository interface {
	Exists(ctx context.Context, accountID, providerMessageID string) (bool, error)

	// Create inserts a fully-populated message row. The store's uniqueness
	// constraint is the sole arbiter of "already imported": a constraint
	// violation surfaces as ErrDuplicate.
	Create(ctx context.Context, msg *domain.Message) error

	MarkArchived(ctx context.Context, accountID, providerMessageID string) error

	// ListByIDs returns the caller-owned subset of the given ids.
	ListByIDs(ctx context.Context, ids []string, userID string) ([]*domain.Message, error)

	// BulkDelete removes the caller-owned rows among ids and, in the same
	// transaction, decrements each touched category's email_count by the
	// number of rows actually deleted from it. Rows without a category do
	// not produce decrements. Returns the number of rows deleted.
	BulkDelete(ctx context.Context, ids []string, userID string) (int64, error)
}

// =============================================================================
// Body Store (MongoDB)
// =============================================================================

// BodyStorePort keeps full message bodies out of the relational store.
// Saves and deletes are best-effort from the importer's point of view.
type BodyStorePort interface {
	Save(ctx context.Context, body *domain.MessageBody) error
	Get(ctx context.Context, messageID string) (*domain.MessageBody, error)
	DeleteMany(ctx context.Context, messageIDs []string) error
}
