package http

import (
	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

// TriageHandler exposes the job-enqueueing API. Requests are validated
// and queued; the worker pool does the actual work.
type TriageHandler struct {
	producer          out.MessageProducerPort
	defaultQuery      string
	defaultMaxResults int
}

func NewTriageHandler(producer out.MessageProducerPort, defaultQuery string, defaultMaxResults int) *TriageHandler {
	return &TriageHandler{
		producer:          producer,
		defaultQuery:      defaultQuery,
		defaultMaxResults: defaultMaxResults,
	}
}

func (h *TriageHandler) Register(router fiber.Router) {
	router.Post("/import", h.TriggerImport)

	messages := router.Group("/messages")
	messages.Post("/bulk-delete", h.BulkDelete)
	messages.Post("/bulk-unsubscribe", h.BulkUnsubscribe)
}

type importRequest struct {
	AccountID   string `json:"account_id"`
	Query       string `json:"query,omitempty"`
	MaxResults  int    `json:"max_results,omitempty"`
	AutoArchive bool   `json:"auto_archive"`
}

// TriggerImport enqueues an import run for one account.
func (h *TriageHandler) TriggerImport(c *fiber.Ctx) error {
	var req importRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.AccountID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "account_id is required")
	}

	opts := domain.ImportOptions{
		AccountID:   req.AccountID,
		Query:       req.Query,
		MaxResults:  req.MaxResults,
		AutoArchive: req.AutoArchive,
	}
	if opts.Query == "" {
		opts.Query = h.defaultQuery
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = h.defaultMaxResults
	}
	if err := h.producer.PublishImport(c.Context(), opts); err != nil {
		logger.WithError(err).Error("[TriageHandler] Failed to enqueue import")
		return fiber.NewError(fiber.StatusInternalServerError, "failed to enqueue import")
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success":    true,
		"account_id": req.AccountID,
	})
}

type bulkRequest struct {
	UserID     string   `json:"user_id"`
	MessageIDs []string `json:"message_ids"`
}

func (r *bulkRequest) validate() error {
	if r.UserID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "user_id is required")
	}
	if len(r.MessageIDs) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "message_ids is required")
	}
	return nil
}

// BulkDelete enqueues a bulk delete job.
func (h *TriageHandler) BulkDelete(c *fiber.Ctx) error {
	var req bulkRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := req.validate(); err != nil {
		return err
	}

	if err := h.producer.PublishBulkDelete(c.Context(), req.UserID, req.MessageIDs); err != nil {
		logger.WithError(err).Error("[TriageHandler] Failed to enqueue bulk delete")
		return fiber.NewError(fiber.StatusInternalServerError, "failed to enqueue bulk delete")
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success":   true,
		"requested": len(req.MessageIDs),
	})
}

// BulkUnsubscribe enqueues a bulk unsubscribe job.
func (h *TriageHandler) BulkUnsubscribe(c *fiber.Ctx) error {
	var req bulkRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := req.validate(); err != nil {
		return err
	}

	if err := h.producer.PublishBulkUnsubscribe(c.Context(), req.UserID, req.MessageIDs); err != nil {
		logger.WithError(err).Error("[TriageHandler] Failed to enqueue bulk unsubscribe")
		return fiber.NewError(fiber.StatusInternalServerError, "failed to enqueue bulk unsubscribe")
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success":   true,
		"requested": len(req.MessageIDs),
	})
}
