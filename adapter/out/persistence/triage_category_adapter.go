package persistence

import (
	"context"
	"database/sql"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"

	"github.com/jmoiron/sqlx"
)

// =============================================================================
// Category Adapter (PostgreSQL)
// =============================================================================

// CategoryAdapter implements out.CategoryRepository using PostgreSQL.
type CategoryAdapter struct {
	db *sqlx.DB
}

// NewCategoryAdapter creates a new CategoryAdapter.
func NewCategoryAdapter(db *sqlx.DB) *CategoryAdapter {
	return &CategoryAdapter{db: db}
}

// categoryRow represents the database row for categories.
type categoryRow struct {
	ID          string         `db:"id"`
	UserID      string         `db:"user_id"`
	Name        string         `db:"name"`
	Description sql.NullString `db:"description"`
	Color       sql.NullString `db:"color"`
	Icon        sql.NullString `db:"icon"`
	EmailCount  int64          `db:"email_count"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (r *categoryRow) toEntity() *domain.Category {
	return &domain.Category{
		ID:          r.ID,
		UserID:      r.UserID,
		Name:        r.Name,
		Description: r.Description.String,
		Color:       r.Color.String,
		Icon:        r.Icon.String,
		EmailCount:  r.EmailCount,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// ListByUser returns all categories for a user.
func (a *CategoryAdapter) ListByUser(ctx context.Context, userID string) ([]*domain.Category, error) {
	var rows []categoryRow
	query := `
		SELECT id, user_id, name, description, color, icon, email_count, created_at, updated_at
		FROM categories
		WHERE user_id = $1
		ORDER BY created_at ASC`

	if err := a.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, err
	}

	categories := make([]*domain.Category, len(rows))
	for i := range rows {
		categories[i] = rows[i].toEntity()
	}
	return categories, nil
}

// IncrementCount applies a single atomic delta to email_count. The
// database does the arithmetic; no read-modify-write on the client.
func (a *CategoryAdapter) IncrementCount(ctx context.Context, categoryID string, delta int64) error {
	query := `
		UPDATE categories
		SET email_count = email_count + $1, updated_at = $2
		WHERE id = $3`

	_, err := a.db.ExecContext(ctx, query, delta, time.Now(), categoryID)
	return err
}

// Ensure CategoryAdapter implements out.CategoryRepository
var _ out.CategoryRepository = (*CategoryAdapter)(nil)
