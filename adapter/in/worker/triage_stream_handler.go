package worker

import (
	"context"
	"fmt"

	"triage_server/adapter/out/messaging"
	"triage_server/pkg/logger"

	"github.com/goccy/go-json"
)

// streamJobTypes maps Redis stream names to pool job types.
var streamJobTypes = map[string]JobType{
	messaging.StreamImport:          JobImport,
	messaging.StreamBulkDelete:      JobBulkDelete,
	messaging.StreamBulkUnsubscribe: JobBulkUnsubscribe,
	messaging.StreamWatchRenew:      JobWatchRenew,
}

// StreamHandler feeds stream messages into the worker pool. The consumer
// acks on a nil return, so a full pool is reported as an error and the
// message stays pending for a later claim.
type StreamHandler struct {
	pool *Pool
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(pool *Pool) *StreamHandler {
	return &StreamHandler{pool: pool}
}

// Handle implements messaging.JobHandler.
func (h *StreamHandler) Handle(ctx context.Context, stream string, data []byte) error {
	jobType, ok := streamJobTypes[stream]
	if !ok {
		logger.Warn("[StreamHandler] Unknown stream %s, dropping message", stream)
		return nil
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		logger.Error("[StreamHandler] Undecodable payload on %s: %v", stream, err)
		return nil
	}

	msg := NewMessage(jobType, payload)
	// Imports come from webhook pushes and jump the queue
	if jobType == JobImport {
		msg.Priority = PriorityHigh
	}

	var submitted bool
	if msg.IsPriority() {
		submitted = h.pool.SubmitPriority(msg)
	} else {
		submitted = h.pool.Submit(msg)
	}
	if !submitted {
		return fmt.Errorf("worker pool rejected job %s from %s", msg.ID, stream)
	}
	return nil
}

// Ensure StreamHandler implements messaging.JobHandler
var _ messaging.JobHandler = (*StreamHandler)(nil)
