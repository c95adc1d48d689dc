package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"triage_server/core/port/out"
)

// UnsubscribeAdapter performs one-click unsubscribe actions over HTTP.
type UnsubscribeAdapter struct {
	client *http.Client
}

func NewUnsubscribeAdapter(timeout time.Duration) *UnsubscribeAdapter {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &UnsubscribeAdapter{
		client: &http.Client{Timeout: timeout},
	}
}

// Unsubscribe hits the link from the List-Unsubscribe header. RFC 8058
// one-click endpoints want a POST with the fixed form body; senders that
// only publish a plain link accept a GET. mailto links cannot be actioned
// here and are reported as such.
func (a *UnsubscribeAdapter) Unsubscribe(ctx context.Context, link string) error {
	if link == "" {
		return out.NewProviderError("unsubscribe", out.ProviderErrInvalidInput, "no unsubscribe link", nil, false)
	}
	if strings.HasPrefix(link, "mailto:") {
		return out.NewProviderError("unsubscribe", out.ProviderErrInvalidInput, "mailto unsubscribe links are not actionable", nil, false)
	}
	if !strings.HasPrefix(link, "http://") && !strings.HasPrefix(link, "https://") {
		return out.NewProviderError("unsubscribe", out.ProviderErrInvalidInput, "unsupported unsubscribe link scheme", nil, false)
	}

	// One-click POST first
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, link, strings.NewReader("List-Unsubscribe=One-Click"))
	if err != nil {
		return out.NewProviderError("unsubscribe", out.ProviderErrInvalidInput, "invalid unsubscribe link", err, false)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode < 400 {
			return nil
		}
	}

	// Fall back to GET for senders without one-click support
	getReq, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return out.NewProviderError("unsubscribe", out.ProviderErrInvalidInput, "invalid unsubscribe link", err, false)
	}

	getResp, err := a.client.Do(getReq)
	if err != nil {
		return out.NewProviderError("unsubscribe", out.ProviderErrNetwork, "unsubscribe request failed", err, true)
	}
	defer getResp.Body.Close()

	if getResp.StatusCode >= 400 {
		return out.NewProviderError("unsubscribe", out.ProviderErrServer,
			fmt.Sprintf("unsubscribe endpoint returned %d", getResp.StatusCode), nil, false)
	}
	return nil
}

var _ out.UnsubscribePort = (*UnsubscribeAdapter)(nil)
