package worker

import (
	"context"

	"triage_server/core/port/out"
	"triage_server/core/service/watch"
	"triage_server/pkg/logger"
)

// WatchProcessor runs watch renewal jobs from the queue.
type WatchProcessor struct {
	renewer *watch.Renewer
}

// NewWatchProcessor creates a new WatchProcessor.
func NewWatchProcessor(renewer *watch.Renewer) *WatchProcessor {
	return &WatchProcessor{renewer: renewer}
}

// ProcessRenew handles a triage.watch_renew job. An empty account id
// means "sweep everything expiring", the form the scheduler enqueues.
func (p *WatchProcessor) ProcessRenew(ctx context.Context, msg *Message) error {
	job, err := ParsePayload[out.WatchRenewJob](msg)
	if err != nil {
		logger.Error("[WatchProcessor] Invalid payload: %v", err)
		return nil
	}

	if job.AccountID == "" {
		_, err := p.renewer.RenewExpiring(ctx)
		return err
	}
	return p.renewer.RenewAccount(ctx, job.AccountID)
}
