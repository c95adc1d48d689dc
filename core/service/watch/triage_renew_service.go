package watch

import (
	"context"
	"time"

	"triage_server/core/port/out"
	"triage_server/pkg/logger"
)

// Renewer refreshes push subscriptions before they lapse. Gmail watches
// expire after seven days; without renewal the webhook goes silent and
// imports stop arriving.
type Renewer struct {
	accountRepo out.AccountRepository
	mailSource  out.MailSourcePort
	leadTime    time.Duration
}

// NewRenewer creates a new watch Renewer.
func NewRenewer(accountRepo out.AccountRepository, mailSource out.MailSourcePort, leadTime time.Duration) *Renewer {
	if leadTime <= 0 {
		leadTime = 24 * time.Hour
	}
	return &Renewer{
		accountRepo: accountRepo,
		mailSource:  mailSource,
		leadTime:    leadTime,
	}
}

// RenewExpiring re-establishes the watch for every account whose
// subscription expires within the lead time or was never set up.
// Failures are per-account; one revoked token never blocks the rest.
func (r *Renewer) RenewExpiring(ctx context.Context) (int, error) {
	deadline := time.Now().Add(r.leadTime)
	accounts, err := r.accountRepo.ListWatchExpiring(ctx, deadline)
	if err != nil {
		return 0, err
	}

	renewed := 0
	for _, account := range accounts {
		if err := r.RenewAccount(ctx, account.ID); err != nil {
			logger.WithAccount(account.ID).Error("[Renewer] Watch renewal failed: %v", err)
			continue
		}
		renewed++
	}

	if len(accounts) > 0 {
		logger.Info("[Renewer] Renewed %d/%d expiring watches", renewed, len(accounts))
	}
	return renewed, nil
}

// RenewAccount renews the watch for one account and records the new
// cursor and expiration.
func (r *Renewer) RenewAccount(ctx context.Context, accountID string) error {
	account, err := r.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return err
	}

	info, err := r.mailSource.RenewWatch(ctx, account)
	if err != nil {
		return err
	}

	return r.accountRepo.UpdateWatch(ctx, account.ID, info.Cursor, info.Expiration)
}
