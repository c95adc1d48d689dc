package worker

import (
	"context"

	"triage_server/core/port/in"
	"triage_server/core/port/out"
	"triage_server/pkg/logger"
)

// BulkProcessor runs bulk delete and unsubscribe jobs from the queue.
type BulkProcessor struct {
	bulkService in.BulkService
}

// NewBulkProcessor creates a new BulkProcessor.
func NewBulkProcessor(bulkService in.BulkService) *BulkProcessor {
	return &BulkProcessor{bulkService: bulkService}
}

// ProcessDelete handles a triage.bulk_delete job.
func (p *BulkProcessor) ProcessDelete(ctx context.Context, msg *Message) error {
	job, err := ParsePayload[out.BulkDeleteJob](msg)
	if err != nil {
		logger.Error("[BulkProcessor] Invalid delete payload: %v", err)
		return nil
	}

	deleted, err := p.bulkService.Delete(ctx, job.UserID, job.MessageIDs)
	if err != nil {
		return err
	}

	logger.Info("[BulkProcessor] Deleted %d of %d messages for user %s",
		deleted, len(job.MessageIDs), job.UserID)
	return nil
}

// ProcessUnsubscribe handles a triage.bulk_unsubscribe job.
func (p *BulkProcessor) ProcessUnsubscribe(ctx context.Context, msg *Message) error {
	job, err := ParsePayload[out.BulkUnsubscribeJob](msg)
	if err != nil {
		logger.Error("[BulkProcessor] Invalid unsubscribe payload: %v", err)
		return nil
	}

	results, err := p.bulkService.Unsubscribe(ctx, job.UserID, job.MessageIDs)
	if err != nil {
		return err
	}

	succeeded := 0
	for _, r := range results {
		if r.Success != nil && *r.Success {
			succeeded++
		}
	}
	logger.Info("[BulkProcessor] Unsubscribe finished: %d/%d succeeded for user %s",
		succeeded, len(results), job.UserID)
	return nil
}
