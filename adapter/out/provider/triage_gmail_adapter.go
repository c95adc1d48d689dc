// Package provider implements mail provider adapters.
package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/logger"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// =============================================================================
// Gmail Adapter
// =============================================================================

// GmailAdapter implements out.MailSourcePort for Gmail.
type GmailAdapter struct {
	config    *oauth2.Config
	projectID string
	topicName string
	endpoint  string
	cb        *gobreaker.CircuitBreaker
}

// GmailConfig holds Gmail configuration.
type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	ProjectID    string

	// Endpoint overrides the Gmail API base URL. Empty means the real
	// service; set for proxies and test backends.
	Endpoint string
}

// NewGmailAdapter creates a new Gmail adapter.
func NewGmailAdapter(cfg *GmailConfig) *GmailAdapter {
	config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes: []string{
			gmail.GmailReadonlyScope,
			gmail.GmailModifyScope,
		},
		Endpoint: google.Endpoint,
	}

	cbSettings := gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// 5 consecutive failures, or >=60% failure ratio over 10+ requests
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("[CircuitBreaker] %s: state changed from %s to %s", name, from.String(), to.String())
		},
	}

	return &GmailAdapter{
		config:    config,
		projectID: cfg.ProjectID,
		topicName: fmt.Sprintf("projects/%s/topics/gmail-push", cfg.ProjectID),
		endpoint:  cfg.Endpoint,
		cb:        gobreaker.NewCircuitBreaker(cbSettings),
	}
}

// token builds an oauth2 token from the account's stored credentials. The
// token source refreshes it transparently when expired.
func (a *GmailAdapter) token(account *domain.Account) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  account.AccessToken,
		RefreshToken: account.RefreshToken,
		Expiry:       account.TokenExpiry,
		TokenType:    "Bearer",
	}
}

func (a *GmailAdapter) getService(ctx context.Context, account *domain.Account) (*gmail.Service, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}

	opts := []option.ClientOption{
		option.WithTokenSource(a.config.TokenSource(ctx, a.token(account))),
	}
	if a.endpoint != "" {
		opts = append(opts, option.WithEndpoint(a.endpoint))
	}

	return gmail.NewService(ctx, opts...)
}

// =============================================================================
// MailSourcePort
// =============================================================================

// ListCandidates lists message refs matching the query, newest first per
// Gmail's default ordering.
func (a *GmailAdapter) ListCandidates(ctx context.Context, account *domain.Account, query string, maxResults int) ([]out.CandidateRef, error) {
	svc, err := a.getService(ctx, account)
	if err != nil {
		return nil, a.wrapError(err, "failed to create gmail service")
	}

	if maxResults <= 0 {
		maxResults = 20
	}

	req := svc.Users.Messages.List("me").MaxResults(int64(maxResults))
	if query != "" {
		req = req.Q(query)
	}

	var resp *gmail.ListMessagesResponse
	cbErr := a.executeWithCircuitBreaker("ListCandidates", func() error {
		var apiErr error
		resp, apiErr = req.Context(ctx).Do()
		return apiErr
	})
	if cbErr != nil {
		return nil, a.wrapError(cbErr, "failed to list messages")
	}

	refs := make([]out.CandidateRef, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		refs = append(refs, out.CandidateRef{ID: m.Id, ThreadID: m.ThreadId})
	}
	return refs, nil
}

// FetchFull retrieves one message in full format and extracts the fields
// the pipeline needs.
func (a *GmailAdapter) FetchFull(ctx context.Context, account *domain.Account, messageID string) (*out.SourceMessage, error) {
	svc, err := a.getService(ctx, account)
	if err != nil {
		return nil, a.wrapError(err, "failed to create gmail service")
	}

	var msg *gmail.Message
	cbErr := a.executeWithCircuitBreaker("FetchFull", func() error {
		var apiErr error
		msg, apiErr = svc.Users.Messages.Get("me", messageID).Format("full").Context(ctx).Do()
		return apiErr
	})
	if cbErr != nil {
		return nil, a.wrapError(cbErr, "failed to get message")
	}

	result := convertMessage(msg)
	return result, nil
}

// Archive removes the INBOX label. Gmail's modify call succeeds when the
// label is already absent, which gives the required idempotency for free.
func (a *GmailAdapter) Archive(ctx context.Context, account *domain.Account, messageID string) error {
	svc, err := a.getService(ctx, account)
	if err != nil {
		return a.wrapError(err, "failed to create gmail service")
	}

	req := &gmail.ModifyMessageRequest{
		RemoveLabelIds: []string{"INBOX"},
	}

	cbErr := a.executeWithCircuitBreaker("Archive", func() error {
		_, apiErr := svc.Users.Messages.Modify("me", messageID, req).Context(ctx).Do()
		return apiErr
	})
	if cbErr != nil {
		return a.wrapError(cbErr, "failed to archive message")
	}
	return nil
}

// RenewWatch establishes or refreshes the Pub/Sub push subscription.
func (a *GmailAdapter) RenewWatch(ctx context.Context, account *domain.Account) (*domain.WatchInfo, error) {
	svc, err := a.getService(ctx, account)
	if err != nil {
		return nil, a.wrapError(err, "failed to create gmail service")
	}

	req := &gmail.WatchRequest{
		TopicName: a.topicName,
		LabelIds:  []string{"INBOX"},
	}

	var resp *gmail.WatchResponse
	cbErr := a.executeWithCircuitBreaker("RenewWatch", func() error {
		var apiErr error
		resp, apiErr = svc.Users.Watch("me", req).Context(ctx).Do()
		return apiErr
	})
	if cbErr != nil {
		return nil, a.wrapError(cbErr, "failed to setup watch")
	}

	return &domain.WatchInfo{
		Cursor:     fmt.Sprintf("%d", resp.HistoryId),
		Expiration: time.Unix(0, resp.Expiration*int64(time.Millisecond)),
	}, nil
}

// =============================================================================
// Circuit Breaker
// =============================================================================

// executeWithCircuitBreaker wraps an API call with circuit breaker
// protection so a degraded Gmail API fails fast instead of cascading.
func (a *GmailAdapter) executeWithCircuitBreaker(operation string, fn func() error) error {
	_, err := a.cb.Execute(func() (interface{}, error) {
		if err := fn(); err != nil {
			if apiErr, ok := err.(*googleapi.Error); ok {
				switch apiErr.Code {
				case 500, 502, 503, 429:
					// Server-side issues trip the breaker
					return nil, err
				case 400, 401, 403, 404:
					// Client errors must not open the circuit
					return nil, &nonCircuitError{err: err}
				}
			}
			return nil, err
		}
		return nil, nil
	})

	if nce, ok := err.(*nonCircuitError); ok {
		return nce.err
	}

	if err != nil {
		logger.Warn("[GmailAdapter] %s failed: state=%s, err=%v", operation, a.cb.State().String(), err)
	}

	return err
}

// nonCircuitError wraps errors that should not trip the circuit breaker.
type nonCircuitError struct {
	err error
}

func (e *nonCircuitError) Error() string {
	return e.err.Error()
}

// IsCircuitOpen returns true if API calls will fail fast.
func (a *GmailAdapter) IsCircuitOpen() bool {
	return a.cb.State() == gobreaker.StateOpen
}

// =============================================================================
// Message Conversion
// =============================================================================

// convertMessage extracts the pipeline's fields from a full-format Gmail
// message.
func convertMessage(msg *gmail.Message) *out.SourceMessage {
	result := &out.SourceMessage{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Labels:   msg.LabelIds,
		Snippet:  msg.Snippet,
	}

	var listUnsubscribe string
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch h.Name {
			case "Subject":
				result.Subject = h.Value
			case "From":
				name, email := parseEmailAddress(h.Value)
				result.FromEmail = email
				result.FromName = name
			case "To":
				result.ToEmails = parseEmailAddresses(h.Value)
			case "Date":
				if t, err := mail.ParseDate(h.Value); err == nil {
					result.Date = t
				}
			case "List-Unsubscribe":
				listUnsubscribe = h.Value
			}
		}
	}

	if result.Date.IsZero() && msg.InternalDate > 0 {
		result.Date = time.Unix(0, msg.InternalDate*int64(time.Millisecond))
	}

	extractBody(msg.Payload, result)
	result.HasAttachment = hasAttachment(msg.Payload)

	// List-Unsubscribe header first, body heuristics second. Absence is
	// fine; the field stays empty.
	result.UnsubscribeLink = ParseListUnsubscribe(listUnsubscribe)
	if result.UnsubscribeLink == "" {
		result.UnsubscribeLink = FindUnsubscribeLink(result.BodyHTML)
	}

	return result
}

func extractBody(part *gmail.MessagePart, result *out.SourceMessage) {
	if part == nil {
		return
	}

	if part.Body != nil && part.Body.Data != "" {
		switch part.MimeType {
		case "text/plain":
			if data, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil && result.BodyText == "" {
				result.BodyText = string(data)
			}
		case "text/html":
			if data, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil && result.BodyHTML == "" {
				result.BodyHTML = string(data)
			}
		}
	}

	for _, p := range part.Parts {
		extractBody(p, result)
	}
}

func hasAttachment(part *gmail.MessagePart) bool {
	if part == nil {
		return false
	}
	if part.Filename != "" {
		return true
	}
	for _, p := range part.Parts {
		if hasAttachment(p) {
			return true
		}
	}
	return false
}

// ParseListUnsubscribe extracts an actionable link from a List-Unsubscribe
// header value such as `<https://x/unsub>, <mailto:unsub@x>`. HTTP links
// are preferred; a mailto link is returned only when nothing else exists.
func ParseListUnsubscribe(header string) string {
	if header == "" {
		return ""
	}

	var mailtoLink string
	for _, part := range strings.Split(header, ",") {
		link := strings.TrimSpace(part)
		link = strings.TrimPrefix(link, "<")
		link = strings.TrimSuffix(link, ">")
		if strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
			return link
		}
		if strings.HasPrefix(link, "mailto:") && mailtoLink == "" {
			mailtoLink = link
		}
	}
	return mailtoLink
}

// FindUnsubscribeLink scans HTML for an anchor whose href mentions
// unsubscribe. A loose heuristic is enough here: the result is only ever
// an optional enhancement.
func FindUnsubscribeLink(html string) string {
	lower := strings.ToLower(html)
	idx := 0
	for {
		hrefIdx := strings.Index(lower[idx:], `href="`)
		if hrefIdx < 0 {
			return ""
		}
		start := idx + hrefIdx + len(`href="`)
		end := strings.Index(lower[start:], `"`)
		if end < 0 {
			return ""
		}
		link := html[start : start+end]
		if strings.Contains(strings.ToLower(link), "unsubscribe") {
			return link
		}
		idx = start + end
	}
}

func parseEmailAddress(s string) (name, email string) {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return "", s
	}
	return addr.Name, addr.Address
}

func parseEmailAddresses(s string) []string {
	list, err := mail.ParseAddressList(s)
	if err != nil {
		if s != "" {
			return []string{s}
		}
		return nil
	}

	result := make([]string, len(list))
	for i, addr := range list {
		result[i] = addr.Address
	}
	return result
}

// =============================================================================
// Error Wrapping
// =============================================================================

func (a *GmailAdapter) wrapError(err error, defaultMsg string) error {
	if err == nil {
		return nil
	}

	if apiErr, ok := err.(*googleapi.Error); ok {
		switch apiErr.Code {
		case 401:
			return out.NewProviderError("gmail", out.ProviderErrTokenExpired, "Token expired", err, false)
		case 403:
			if strings.Contains(apiErr.Message, "Rate Limit") {
				return out.NewProviderError("gmail", out.ProviderErrRateLimit, "Rate limit exceeded", err, true)
			}
			return out.NewProviderError("gmail", out.ProviderErrAuth, "Access denied", err, false)
		case 404:
			return out.NewProviderError("gmail", out.ProviderErrNotFound, "Not found", err, false)
		case 429:
			return out.NewProviderError("gmail", out.ProviderErrRateLimit, "Too many requests", err, true)
		case 500, 502, 503:
			return out.NewProviderError("gmail", out.ProviderErrServer, "Server error", err, true)
		}
	}

	return out.NewProviderError("gmail", out.ProviderErrServer, defaultMsg, err, true)
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ out.MailSourcePort = (*GmailAdapter)(nil)
