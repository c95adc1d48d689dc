// Package persistence provides database adapters implementing outbound ports.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/crypto"
	"triage_server/pkg/logger"

	"github.com/jmoiron/sqlx"
)

// =============================================================================
// Account Adapter (PostgreSQL)
// =============================================================================

// AccountAdapter implements out.AccountRepository using PostgreSQL.
type AccountAdapter struct {
	db                *sqlx.DB
	encryptionEnabled bool
}

// NewAccountAdapter creates a new AccountAdapter.
func NewAccountAdapter(db *sqlx.DB) *AccountAdapter {
	err := crypto.Init()
	encryptionEnabled := err == nil
	if !encryptionEnabled {
		logger.Warn("Token encryption disabled: %v", err)
	} else {
		logger.Info("Token encryption enabled")
	}

	return &AccountAdapter{
		db:                db,
		encryptionEnabled: encryptionEnabled,
	}
}

const accountSelectColumns = `
	id, user_id, provider, email, access_token, refresh_token,
	token_expiry, history_cursor, watch_expiration, created_at, updated_at`

// accountRow represents the database row for accounts.
type accountRow struct {
	ID              string       `db:"id"`
	UserID          string       `db:"user_id"`
	Provider        string       `db:"provider"`
	Email           string       `db:"email"`
	AccessToken     string       `db:"access_token"`
	RefreshToken    string       `db:"refresh_token"`
	TokenExpiry     time.Time    `db:"token_expiry"`
	HistoryCursor   string       `db:"history_cursor"`
	WatchExpiration sql.NullTime `db:"watch_expiration"`
	CreatedAt       time.Time    `db:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at"`
}

func (r *accountRow) toEntity() *domain.Account {
	acct := &domain.Account{
		ID:            r.ID,
		UserID:        r.UserID,
		Provider:      domain.Provider(r.Provider),
		Email:         r.Email,
		AccessToken:   r.AccessToken,
		RefreshToken:  r.RefreshToken,
		TokenExpiry:   r.TokenExpiry,
		HistoryCursor: r.HistoryCursor,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.WatchExpiration.Valid {
		t := r.WatchExpiration.Time
		acct.WatchExpiration = &t
	}
	return acct
}

// decryptTokens decrypts stored tokens; plaintext legacy values pass
// through untouched.
func (a *AccountAdapter) decryptTokens(acct *domain.Account) {
	acct.AccessToken = a.decryptToken(acct.AccessToken)
	acct.RefreshToken = a.decryptToken(acct.RefreshToken)
}

func (a *AccountAdapter) decryptToken(token string) string {
	if token == "" || !crypto.IsEncrypted(token) {
		return token
	}
	decrypted, err := crypto.DecryptToken(token)
	if err != nil {
		return token
	}
	return decrypted
}

// GetByID returns an account by ID.
func (a *AccountAdapter) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	var row accountRow
	query := `SELECT ` + accountSelectColumns + ` FROM accounts WHERE id = $1`

	if err := a.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, out.ErrNotFound
		}
		return nil, err
	}

	acct := row.toEntity()
	a.decryptTokens(acct)
	return acct, nil
}

// GetByEmail returns the account connected for a mailbox address.
func (a *AccountAdapter) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	var row accountRow
	query := `SELECT ` + accountSelectColumns + ` FROM accounts WHERE email = $1 LIMIT 1`

	if err := a.db.GetContext(ctx, &row, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, out.ErrNotFound
		}
		return nil, err
	}

	acct := row.toEntity()
	a.decryptTokens(acct)
	return acct, nil
}

// UpdateCursor advances the change cursor.
func (a *AccountAdapter) UpdateCursor(ctx context.Context, id, cursor string) error {
	query := `
		UPDATE accounts
		SET history_cursor = $1, updated_at = $2
		WHERE id = $3`

	_, err := a.db.ExecContext(ctx, query, cursor, time.Now(), id)
	return err
}

// UpdateWatch records a renewed push subscription.
func (a *AccountAdapter) UpdateWatch(ctx context.Context, id, cursor string, expiration time.Time) error {
	query := `
		UPDATE accounts
		SET history_cursor = $1, watch_expiration = $2, updated_at = $3
		WHERE id = $4`

	_, err := a.db.ExecContext(ctx, query, cursor, expiration, time.Now(), id)
	return err
}

// ListWatchExpiring returns accounts whose watch expires before the
// deadline or was never established.
func (a *AccountAdapter) ListWatchExpiring(ctx context.Context, deadline time.Time) ([]*domain.Account, error) {
	var rows []accountRow
	query := `
		SELECT ` + accountSelectColumns + `
		FROM accounts
		WHERE watch_expiration IS NULL OR watch_expiration < $1
		ORDER BY watch_expiration ASC NULLS FIRST`

	if err := a.db.SelectContext(ctx, &rows, query, deadline); err != nil {
		return nil, err
	}

	accounts := make([]*domain.Account, len(rows))
	for i := range rows {
		accounts[i] = rows[i].toEntity()
		a.decryptTokens(accounts[i])
	}
	return accounts, nil
}

// Ensure AccountAdapter implements out.AccountRepository
var _ out.AccountRepository = (*AccountAdapter)(nil)
