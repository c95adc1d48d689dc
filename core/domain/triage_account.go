package domain

import "time"

type Provider string

const (
	MailProviderGmail Provider = "google"
)

// Account represents one connected mailbox.
//
// HistoryCursor is the last processed point in the provider's change
// stream. It is monotonically non-decreasing: a notification carrying a
// cursor at or below the stored value is a duplicate and is ignored.
type Account struct {
	ID       string   `json:"id"`
	UserID   string   `json:"user_id"`
	Provider Provider `json:"provider"`
	Email    string   `json:"email"`

	// Credentials (stored encrypted at rest)
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenExpiry  time.Time `json:"token_expiry"`

	HistoryCursor   string     `json:"history_cursor"`
	WatchExpiration *time.Time `json:"watch_expiration,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WatchInfo is the result of establishing or renewing a push subscription.
type WatchInfo struct {
	Cursor     string    `json:"cursor"`
	Expiration time.Time `json:"expiration"`
}

// NeedsWatchRenewal reports whether the watch subscription expires before
// the given deadline (or was never established).
func (a *Account) NeedsWatchRenewal(deadline time.Time) bool {
	return a.WatchExpiration == nil || a.WatchExpiration.Before(deadline)
}
