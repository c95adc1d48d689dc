// Package out defines outbound ports (driven ports) for the application.
package out

import (
	"context"
	"time"

	"triage_server/core/domain"
)

// =============================================================================
// Mail Source Port (Gmail)
// =============================================================================

// MailSourcePort wraps the mailbox provider for the import pipeline.
type MailSourcePort interface {
	// ListCandidates queries the provider with an opaque search string and
	// returns up to maxResults candidate refs in listing order. Each call
	// re-queries the provider; the sequence is not restartable.
	ListCandidates(ctx context.Context, account *domain.Account, query string, maxResults int) ([]CandidateRef, error)

	// FetchFull retrieves one message with parsed headers, bodies and
	// extracted optional fields.
	FetchFull(ctx context.Context, account *domain.Account, messageID string) (*SourceMessage, error)

	// Archive removes the message from the provider's inbox view.
	// Idempotent: archiving an already-archived message succeeds.
	Archive(ctx context.Context, account *domain.Account, messageID string) error

	// RenewWatch establishes or refreshes the push subscription.
	RenewWatch(ctx context.Context, account *domain.Account) (*domain.WatchInfo, error)
}

// CandidateRef identifies one candidate message in a provider listing.
type CandidateRef struct {
	ID       string
	ThreadID string
}

// SourceMessage is the tagged extraction of a raw provider payload:
// required fields plus an explicit optional set.
type SourceMessage struct {
	ID       string
	ThreadID string

	Subject   string
	FromEmail string
	FromName  string
	ToEmails  []string
	Date      time.Time
	Snippet   string
	BodyText  string
	BodyHTML  string
	Labels    []string

	HasAttachment   bool
	UnsubscribeLink string
}

// =============================================================================
// Unsubscribe Action Port
// =============================================================================

// UnsubscribePort performs the unsubscribe action behind a message's
// List-Unsubscribe link.
type UnsubscribePort interface {
	// Unsubscribe attempts the action. A nil error means the upstream
	// endpoint accepted the request.
	Unsubscribe(ctx context.Context, link string) error
}

// =============================================================================
// Provider Error
// =============================================================================

// ProviderErrorCode represents error codes.
type ProviderErrorCode string

const (
	ProviderErrAuth         ProviderErrorCode = "auth_error"
	ProviderErrTokenExpired ProviderErrorCode = "token_expired"
	ProviderErrRateLimit    ProviderErrorCode = "rate_limit"
	ProviderErrNotFound     ProviderErrorCode = "not_found"
	ProviderErrNetwork      ProviderErrorCode = "network_error"
	ProviderErrServer       ProviderErrorCode = "server_error"
	ProviderErrInvalidInput ProviderErrorCode = "invalid_input"
)

// ProviderError represents a provider error.
type ProviderError struct {
	Provider  string
	Code      ProviderErrorCode
	Message   string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a new provider error.
func NewProviderError(provider string, code ProviderErrorCode, message string, err error, retryable bool) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Err:       err,
		Retryable: retryable,
	}
}
