package persistence

import (
	"context"
	"database/sql"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/apperr"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// =============================================================================
// Message Adapter (PostgreSQL)
// =============================================================================

// MessageAdapter implements out.MessageRepository using PostgreSQL. The
// unique index on (account_id, provider_message_id) is the sole arbiter
// of "already imported".
type MessageAdapter struct {
	db *sqlx.DB
}

// NewMessageAdapter creates a new MessageAdapter.
func NewMessageAdapter(db *sqlx.DB) *MessageAdapter {
	return &MessageAdapter{db: db}
}

// messageRow represents the database row for messages.
type messageRow struct {
	ID                string         `db:"id"`
	AccountID         string         `db:"account_id"`
	ProviderMessageID string         `db:"provider_message_id"`
	ThreadID          string         `db:"thread_id"`
	CategoryID        sql.NullString `db:"category_id"`
	Subject           string         `db:"subject"`
	FromEmail         string         `db:"from_email"`
	FromName          sql.NullString `db:"from_name"`
	ToEmails          pq.StringArray `db:"to_emails"`
	Date              time.Time      `db:"date"`
	Snippet           string         `db:"snippet"`
	Labels            pq.StringArray `db:"labels"`
	Summary           string         `db:"summary"`
	Reasoning         string         `db:"reasoning"`
	Confidence        float64        `db:"confidence"`
	HasAttachment     bool           `db:"has_attachment"`
	UnsubscribeLink   sql.NullString `db:"unsubscribe_link"`
	Archived          bool           `db:"archived"`
	Status            string         `db:"status"`
	CreatedAt         time.Time      `db:"created_at"`
}

func (r *messageRow) toEntity() *domain.Message {
	msg := &domain.Message{
		ID:                r.ID,
		AccountID:         r.AccountID,
		ProviderMessageID: r.ProviderMessageID,
		ThreadID:          r.ThreadID,
		Subject:           r.Subject,
		FromEmail:         r.FromEmail,
		ToEmails:          r.ToEmails,
		Date:              r.Date,
		Snippet:           r.Snippet,
		Labels:            r.Labels,
		Summary:           r.Summary,
		Reasoning:         r.Reasoning,
		Confidence:        r.Confidence,
		HasAttachment:     r.HasAttachment,
		Archived:          r.Archived,
		Status:            domain.MessageStatus(r.Status),
		CreatedAt:         r.CreatedAt,
	}
	if r.CategoryID.Valid {
		s := r.CategoryID.String
		msg.CategoryID = &s
	}
	if r.FromName.Valid {
		s := r.FromName.String
		msg.FromName = &s
	}
	if r.UnsubscribeLink.Valid {
		s := r.UnsubscribeLink.String
		msg.UnsubscribeLink = &s
	}
	return msg
}

// Exists checks the dedup key.
func (a *MessageAdapter) Exists(ctx context.Context, accountID, providerMessageID string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM messages
			WHERE account_id = $1 AND provider_message_id = $2
		)`

	if err := a.db.GetContext(ctx, &exists, query, accountID, providerMessageID); err != nil {
		return false, err
	}
	return exists, nil
}

// Create inserts a fully-populated message row. ON CONFLICT DO NOTHING
// plus the affected-row count turns a lost dedup race into ErrDuplicate
// without ever producing a second row.
func (a *MessageAdapter) Create(ctx context.Context, msg *domain.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO messages (
			id, account_id, provider_message_id, thread_id, category_id,
			subject, from_email, from_name, to_emails, date, snippet, labels,
			summary, reasoning, confidence, has_attachment, unsubscribe_link,
			archived, status, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20
		)
		ON CONFLICT (account_id, provider_message_id) DO NOTHING`

	res, err := a.db.ExecContext(ctx, query,
		msg.ID, msg.AccountID, msg.ProviderMessageID, msg.ThreadID, msg.CategoryID,
		msg.Subject, msg.FromEmail, msg.FromName, pq.Array(msg.ToEmails), msg.Date, msg.Snippet, pq.Array(msg.Labels),
		msg.Summary, msg.Reasoning, msg.Confidence, msg.HasAttachment, msg.UnsubscribeLink,
		msg.Archived, string(msg.Status), msg.CreatedAt,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return out.ErrDuplicate
	}
	return nil
}

// MarkArchived flips the archived flag, the only mutation a stored
// message ever receives.
func (a *MessageAdapter) MarkArchived(ctx context.Context, accountID, providerMessageID string) error {
	query := `
		UPDATE messages
		SET archived = true
		WHERE account_id = $1 AND provider_message_id = $2`

	_, err := a.db.ExecContext(ctx, query, accountID, providerMessageID)
	return err
}

// ListByIDs returns the caller-owned subset of the given ids.
func (a *MessageAdapter) ListByIDs(ctx context.Context, ids []string, userID string) ([]*domain.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var rows []messageRow
	query := `
		SELECT
			m.id, m.account_id, m.provider_message_id, m.thread_id, m.category_id,
			m.subject, m.from_email, m.from_name, m.to_emails, m.date, m.snippet, m.labels,
			m.summary, m.reasoning, m.confidence, m.has_attachment, m.unsubscribe_link,
			m.archived, m.status, m.created_at
		FROM messages m
		JOIN accounts a ON a.id = m.account_id
		WHERE m.id = ANY($1) AND a.user_id = $2`

	if err := a.db.SelectContext(ctx, &rows, query, pq.Array(ids), userID); err != nil {
		return nil, err
	}

	messages := make([]*domain.Message, len(rows))
	for i := range rows {
		messages[i] = rows[i].toEntity()
	}
	return messages, nil
}

// BulkDelete removes the caller-owned rows among ids and decrements each
// touched category's counter in the same transaction. The decrements are
// computed from the rows actually deleted, never from caller input, so
// invalid or already-gone ids cannot skew the counts.
func (a *MessageAdapter) BulkDelete(ctx context.Context, ids []string, userID string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, apperr.TransactionFailure("bulk delete", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryxContext(ctx, `
		DELETE FROM messages m
		USING accounts a
		WHERE m.account_id = a.id
		  AND a.user_id = $1
		  AND m.id = ANY($2)
		RETURNING m.category_id`,
		userID, pq.Array(ids),
	)
	if err != nil {
		return 0, apperr.TransactionFailure("bulk delete", err)
	}

	var deleted int64
	categoryIDs := make([]sql.NullString, 0, len(ids))
	for rows.Next() {
		var categoryID sql.NullString
		if err := rows.Scan(&categoryID); err != nil {
			rows.Close()
			return 0, apperr.TransactionFailure("bulk delete", err)
		}
		deleted++
		categoryIDs = append(categoryIDs, categoryID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, apperr.TransactionFailure("bulk delete", err)
	}

	for categoryID, count := range GroupDeletedByCategory(categoryIDs) {
		_, err := tx.ExecContext(ctx, `
			UPDATE categories
			SET email_count = email_count - $1, updated_at = $2
			WHERE id = $3`,
			count, time.Now(), categoryID,
		)
		if err != nil {
			return 0, apperr.TransactionFailure("bulk delete counter update", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, apperr.TransactionFailure("bulk delete", err)
	}
	return deleted, nil
}

// GroupDeletedByCategory counts deleted rows per category, excluding rows
// without one.
func GroupDeletedByCategory(categoryIDs []sql.NullString) map[string]int64 {
	groups := make(map[string]int64)
	for _, id := range categoryIDs {
		if id.Valid && id.String != "" {
			groups[id.String]++
		}
	}
	return groups
}

// Ensure MessageAdapter implements out.MessageRepository
var _ out.MessageRepository = (*MessageAdapter)(nil)
