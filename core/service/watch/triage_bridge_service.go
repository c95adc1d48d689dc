// Package watch connects provider push notifications to import runs and
// keeps push subscriptions alive.
package watch

import (
	"context"
	"errors"
	"strconv"

	"triage_server/config"
	"triage_server/core/domain"
	"triage_server/core/port/in"
	"triage_server/core/port/out"
	"triage_server/pkg/logger"
)

// Bridge turns a change notification into an enqueued import job. It
// never fetches mail itself; all pipeline work happens in the worker.
type Bridge struct {
	accountRepo out.AccountRepository
	producer    out.MessageProducerPort

	cursorCompareMode string
	autoArchive       bool
}

// NewBridge creates a new notification Bridge.
func NewBridge(accountRepo out.AccountRepository, producer out.MessageProducerPort, cursorCompareMode string, autoArchive bool) *Bridge {
	if cursorCompareMode == "" {
		cursorCompareMode = config.CursorCompareNumeric
	}
	return &Bridge{
		accountRepo:       accountRepo,
		producer:          producer,
		cursorCompareMode: cursorCompareMode,
		autoArchive:       autoArchive,
	}
}

// HandleNotification processes one change notification. Unknown accounts
// and stale cursors are quiet outcomes, not errors; the webhook layer
// acknowledges them all the same.
func (b *Bridge) HandleNotification(ctx context.Context, n *domain.ChangeNotification) (domain.BridgeOutcome, error) {
	account, err := b.accountRepo.GetByEmail(ctx, n.EmailAddress)
	if err != nil {
		if errors.Is(err, out.ErrNotFound) {
			logger.Warn("[Bridge] Notification for unconnected mailbox %s", n.EmailAddress)
			return domain.BridgeUnknownAccount, nil
		}
		return domain.BridgeFailed, err
	}

	if !b.cursorAdvanced(n.HistoryID, account.HistoryCursor) {
		logger.WithAccount(account.ID).Debug("[Bridge] Stale cursor %s (stored %s), ignoring",
			n.HistoryID, account.HistoryCursor)
		return domain.BridgeStaleCursor, nil
	}

	if err := b.accountRepo.UpdateCursor(ctx, account.ID, n.HistoryID); err != nil {
		return domain.BridgeFailed, err
	}

	opts := domain.ImportOptions{
		AccountID:   account.ID,
		AutoArchive: b.autoArchive,
	}
	if err := b.producer.PublishImport(ctx, opts); err != nil {
		return domain.BridgeFailed, err
	}

	logger.WithAccount(account.ID).Info("[Bridge] Import triggered at cursor %s", n.HistoryID)
	return domain.BridgeTriggered, nil
}

// cursorAdvanced reports whether incoming is strictly newer than stored.
// Gmail history ids are decimal uint64 strings, so numeric mode is the
// default; string mode exists for providers with opaque cursors. A
// cursor that fails to parse in numeric mode falls back to the string
// comparison rather than dropping the notification.
func (b *Bridge) cursorAdvanced(incoming, stored string) bool {
	if stored == "" {
		return true
	}
	if incoming == "" {
		return false
	}

	if b.cursorCompareMode == config.CursorCompareNumeric {
		in, inErr := strconv.ParseUint(incoming, 10, 64)
		st, stErr := strconv.ParseUint(stored, 10, 64)
		if inErr == nil && stErr == nil {
			return in > st
		}
	}

	return incoming > stored
}

// Ensure Bridge implements in.NotificationService
var _ in.NotificationService = (*Bridge)(nil)
