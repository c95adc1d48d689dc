// Package http implements the inbound HTTP adapters.
package http

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"triage_server/core/domain"
	"triage_server/core/port/in"
	"triage_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

const IdempotencyTTL = 5 * time.Minute

type WebhookMetrics struct {
	Processed  int64
	Duplicates int64
	Stale      int64
	Unknown    int64
	Errors     int64
}

// WebhookHandler receives Gmail Pub/Sub push notifications. Every request
// is answered 200 no matter what happened inside; a non-2xx would make
// Pub/Sub redeliver forever against a permanently broken payload.
type WebhookHandler struct {
	notificationService in.NotificationService
	redis               *redis.Client
	metrics             WebhookMetrics
}

func NewWebhookHandler(notificationService in.NotificationService, redisClient *redis.Client) *WebhookHandler {
	return &WebhookHandler{
		notificationService: notificationService,
		redis:               redisClient,
	}
}

func (h *WebhookHandler) GetMetrics() WebhookMetrics {
	return WebhookMetrics{
		Processed:  atomic.LoadInt64(&h.metrics.Processed),
		Duplicates: atomic.LoadInt64(&h.metrics.Duplicates),
		Stale:      atomic.LoadInt64(&h.metrics.Stale),
		Unknown:    atomic.LoadInt64(&h.metrics.Unknown),
		Errors:     atomic.LoadInt64(&h.metrics.Errors),
	}
}

func (h *WebhookHandler) Register(app *fiber.App) {
	app.Post("/webhook/gmail", h.GmailWebhook)
	app.Post("/webhooks/gmail", h.GmailWebhook)
	app.Post("/api/v1/webhook/gmail", h.GmailWebhook)
	app.Post("/api/v1/webhooks/gmail", h.GmailWebhook)
}

// GmailPushNotification represents the Pub/Sub push envelope.
type GmailPushNotification struct {
	Message struct {
		Data        string `json:"data"`
		MessageID   string `json:"messageId"`
		PublishTime string `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// gmailNotificationData is the base64-decoded payload inside the envelope.
type gmailNotificationData struct {
	EmailAddress string    `json:"emailAddress"`
	HistoryID    historyID `json:"historyId"`
}

// historyID tolerates both encodings seen in the wild: the documented
// string form and the raw JSON number Gmail also sends.
type historyID string

func (h *historyID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		s = ""
	}
	*h = historyID(s)
	return nil
}

func (h *WebhookHandler) idempotencyKey(email string, historyID string) string {
	return fmt.Sprintf("webhook:idempotent:gmail:%s:%s", email, historyID)
}

// checkIdempotency reports whether this exact notification was already
// seen recently. Redis being down degrades to processing everything; the
// stale-cursor check downstream still keeps duplicates harmless.
func (h *WebhookHandler) checkIdempotency(ctx context.Context, email, historyID string) bool {
	if h.redis == nil {
		return false
	}
	key := h.idempotencyKey(email, historyID)
	ok, err := h.redis.SetNX(ctx, key, "1", IdempotencyTTL).Result()
	if err != nil {
		return false
	}
	if !ok {
		atomic.AddInt64(&h.metrics.Duplicates, 1)
		return true
	}
	return false
}

func (h *WebhookHandler) GmailWebhook(c *fiber.Ctx) error {
	var notification GmailPushNotification
	if err := c.BodyParser(&notification); err != nil {
		logger.WithError(err).Warn("[GmailWebhook] Failed to parse notification")
		return c.SendStatus(fiber.StatusOK)
	}

	data, err := base64.StdEncoding.DecodeString(notification.Message.Data)
	if err != nil {
		logger.WithError(err).Warn("[GmailWebhook] Failed to decode data")
		return c.SendStatus(fiber.StatusOK)
	}

	var payload gmailNotificationData
	if err := json.Unmarshal(data, &payload); err != nil {
		logger.WithError(err).Warn("[GmailWebhook] Failed to unmarshal data")
		return c.SendStatus(fiber.StatusOK)
	}

	historyID := string(payload.HistoryID)
	logger.Info("[GmailWebhook] Received: email=%s, historyId=%s", payload.EmailAddress, historyID)

	ctx := c.Context()

	if h.checkIdempotency(ctx, payload.EmailAddress, historyID) {
		logger.Debug("[GmailWebhook] Duplicate skipped: email=%s, historyId=%s",
			payload.EmailAddress, historyID)
		return c.JSON(fiber.Map{"success": true, "outcome": string(domain.BridgeDuplicate)})
	}

	outcome, err := h.notificationService.HandleNotification(ctx, &domain.ChangeNotification{
		EmailAddress: payload.EmailAddress,
		HistoryID:    historyID,
	})
	if err != nil {
		// Still a 200: the failure is ours, not the publisher's
		logger.WithError(err).Error("[GmailWebhook] Bridge failed: email=%s", payload.EmailAddress)
		atomic.AddInt64(&h.metrics.Errors, 1)
		return c.JSON(fiber.Map{"success": false, "outcome": string(domain.BridgeFailed)})
	}

	switch outcome {
	case domain.BridgeTriggered:
		atomic.AddInt64(&h.metrics.Processed, 1)
	case domain.BridgeStaleCursor:
		atomic.AddInt64(&h.metrics.Stale, 1)
	case domain.BridgeUnknownAccount:
		atomic.AddInt64(&h.metrics.Unknown, 1)
	}

	return c.JSON(fiber.Map{"success": true, "outcome": string(outcome)})
}
