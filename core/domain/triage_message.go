package domain

import "time"

type MessageStatus string

const (
	// StatusCompleted is the only terminal status the importer writes.
	// A message that fails mid-pipeline is never persisted at all.
	StatusCompleted MessageStatus = "completed"
)

// Message is one imported email. Uniqueness holds on
// (AccountID, ProviderMessageID); rows are immutable once written except
// for the Archived flag.
type Message struct {
	ID                string `json:"id"`
	AccountID         string `json:"account_id"`
	ProviderMessageID string `json:"provider_message_id"`
	ThreadID          string `json:"thread_id"`
	CategoryID        *string `json:"category_id,omitempty"`

	// Headers
	Subject   string    `json:"subject"`
	FromEmail string    `json:"from_email"`
	FromName  *string   `json:"from_name,omitempty"`
	ToEmails  []string  `json:"to_emails"`
	Date      time.Time `json:"date"`
	Snippet   string    `json:"snippet"`
	Labels    []string  `json:"labels,omitempty"`

	// AI results
	Summary    string  `json:"summary"`
	Reasoning  string  `json:"reasoning"`
	Confidence float64 `json:"confidence"`

	// Optional extracted fields
	HasAttachment   bool    `json:"has_attachment"`
	UnsubscribeLink *string `json:"unsubscribe_link,omitempty"`

	Archived bool          `json:"archived"`
	Status   MessageStatus `json:"status"`

	CreatedAt time.Time `json:"created_at"`
}

// MessageBody holds the full text and HTML bodies, stored out of band
// from the relational row.
type MessageBody struct {
	MessageID string `json:"message_id"`
	TextBody  string `json:"text_body"`
	HTMLBody  string `json:"html_body"`
}

// ImportResult is the transient summary of one import run. It is returned
// to the caller, never stored.
type ImportResult struct {
	Success  bool     `json:"success"`
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// AddError records a per-message failure.
func (r *ImportResult) AddError(msg string) {
	r.Failed++
	r.Errors = append(r.Errors, msg)
}

// Finalize sets the success flag: true iff at least one message was imported.
func (r *ImportResult) Finalize() *ImportResult {
	r.Success = r.Imported > 0
	return r
}

// ImportOptions parameterize one import run for one account.
type ImportOptions struct {
	AccountID   string `json:"account_id"`
	Query       string `json:"query,omitempty"`
	MaxResults  int    `json:"max_results,omitempty"`
	AutoArchive bool   `json:"auto_archive,omitempty"`
}

// Classification is the classifier's verdict for one message.
type Classification struct {
	CategoryID   string  `json:"category_id"`
	CategoryName string  `json:"category_name"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning"`
}

// UnsubscribeResult is the per-message outcome of a bulk unsubscribe run.
// Success is nil while the attempt is pending, then true or false with a
// human-readable message.
type UnsubscribeResult struct {
	MessageID string `json:"message_id"`
	Success   *bool  `json:"success"`
	Message   string `json:"message,omitempty"`
}
