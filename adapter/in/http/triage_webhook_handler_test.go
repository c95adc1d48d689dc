package http

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"

	"triage_server/core/domain"
)

type fakeNotificationService struct {
	received []*domain.ChangeNotification
	outcome  domain.BridgeOutcome
	err      error
}

func (f *fakeNotificationService) HandleNotification(ctx context.Context, n *domain.ChangeNotification) (domain.BridgeOutcome, error) {
	f.received = append(f.received, n)
	if f.err != nil {
		return domain.BridgeFailed, f.err
	}
	return f.outcome, nil
}

func newWebhookApp(svc *fakeNotificationService) *fiber.App {
	app := fiber.New()
	NewWebhookHandler(svc, nil).Register(app)
	return app
}

func pushEnvelope(t *testing.T, rawData string) *bytes.Buffer {
	t.Helper()
	envelope := map[string]any{
		"message": map[string]any{
			"data":      base64.StdEncoding.EncodeToString([]byte(rawData)),
			"messageId": "pubsub-1",
		},
		"subscription": "projects/p/subscriptions/s",
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("failed to build envelope: %v", err)
	}
	return bytes.NewBuffer(body)
}

func postWebhook(t *testing.T, app *fiber.App, body *bytes.Buffer) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest("POST", "/webhook/gmail", body)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var decoded map[string]any
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &decoded)
	}
	return resp.StatusCode, decoded
}

func TestGmailWebhook_HistoryIDEncodings(t *testing.T) {
	tests := []struct {
		name    string
		rawData string
	}{
		{
			name:    "string historyId",
			rawData: `{"emailAddress":"me@example.com","historyId":"123456"}`,
		},
		{
			name:    "numeric historyId",
			rawData: `{"emailAddress":"me@example.com","historyId":123456}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeNotificationService{outcome: domain.BridgeTriggered}
			app := newWebhookApp(svc)

			status, body := postWebhook(t, app, pushEnvelope(t, tt.rawData))
			if status != fiber.StatusOK {
				t.Fatalf("expected 200, got %d", status)
			}
			if len(svc.received) != 1 {
				t.Fatalf("expected 1 bridge call, got %d", len(svc.received))
			}
			n := svc.received[0]
			if n.EmailAddress != "me@example.com" || n.HistoryID != "123456" {
				t.Errorf("unexpected notification: %+v", n)
			}
			if body["success"] != true || body["outcome"] != string(domain.BridgeTriggered) {
				t.Errorf("unexpected response body: %v", body)
			}
		})
	}
}

func TestGmailWebhook_UndecodablePayloadStillAcked(t *testing.T) {
	svc := &fakeNotificationService{outcome: domain.BridgeTriggered}
	app := newWebhookApp(svc)

	status, _ := postWebhook(t, app, pushEnvelope(t, "not json at all"))
	if status != fiber.StatusOK {
		t.Fatalf("expected 200 for undecodable payload, got %d", status)
	}
	if len(svc.received) != 0 {
		t.Errorf("bridge should not run on decode failure, got %d calls", len(svc.received))
	}
}

func TestGmailWebhook_BridgeFailureAckedWithSuccessFalse(t *testing.T) {
	svc := &fakeNotificationService{err: errors.New("db down")}
	app := newWebhookApp(svc)

	status, body := postWebhook(t, app, pushEnvelope(t, `{"emailAddress":"me@example.com","historyId":"7"}`))
	if status != fiber.StatusOK {
		t.Fatalf("expected 200 despite bridge failure, got %d", status)
	}
	if body["success"] != false || body["outcome"] != string(domain.BridgeFailed) {
		t.Errorf("unexpected response body: %v", body)
	}
}
