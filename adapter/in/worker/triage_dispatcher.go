package worker

import (
	"context"

	"triage_server/pkg/logger"

	"github.com/goccy/go-json"
)

type Handler struct {
	importProcessor *ImportProcessor
	bulkProcessor   *BulkProcessor
	watchProcessor  *WatchProcessor
}

func NewHandler(
	importProcessor *ImportProcessor,
	bulkProcessor *BulkProcessor,
	watchProcessor *WatchProcessor,
) *Handler {
	return &Handler{
		importProcessor: importProcessor,
		bulkProcessor:   bulkProcessor,
		watchProcessor:  watchProcessor,
	}
}

func (h *Handler) Process(ctx context.Context, msg *Message) error {
	logger.Debug("Processing message: %s", msg.Type)

	switch msg.Type {
	case JobImport:
		return h.importProcessor.ProcessImport(ctx, msg)

	case JobBulkDelete:
		return h.bulkProcessor.ProcessDelete(ctx, msg)
	case JobBulkUnsubscribe:
		return h.bulkProcessor.ProcessUnsubscribe(ctx, msg)

	case JobWatchRenew:
		return h.watchProcessor.ProcessRenew(ctx, msg)

	default:
		logger.Warn("Unknown job type: %s", msg.Type)
		return nil
	}
}

func ParsePayload[T any](msg *Message) (*T, error) {
	var payload T
	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
