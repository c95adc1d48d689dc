package domain

import "time"

// Category is a user-defined classification bucket.
//
// EmailCount is a cached aggregate equal to the number of stored messages
// referencing this category. The triage core only ever mutates it through
// atomic increments; it never rewrites the column from an application-side
// read.
type Category struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Color       string    `json:"color,omitempty"`
	Icon        string    `json:"icon,omitempty"`
	EmailCount  int64     `json:"email_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
