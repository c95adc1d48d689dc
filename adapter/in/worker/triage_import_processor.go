package worker

import (
	"context"

	"triage_server/core/domain"
	"triage_server/core/port/in"
	"triage_server/core/port/out"
	"triage_server/pkg/apperr"
	"triage_server/pkg/logger"
)

// ImportProcessor runs import jobs from the queue.
type ImportProcessor struct {
	importService in.ImportService
}

// NewImportProcessor creates a new ImportProcessor.
func NewImportProcessor(importService in.ImportService) *ImportProcessor {
	return &ImportProcessor{importService: importService}
}

// ProcessImport handles a triage.import job.
func (p *ImportProcessor) ProcessImport(ctx context.Context, msg *Message) error {
	job, err := ParsePayload[out.ImportJob](msg)
	if err != nil {
		logger.Error("[ImportProcessor] Invalid payload: %v", err)
		return nil // malformed payloads never become retryable
	}

	result, err := p.importService.Run(ctx, domain.ImportOptions{
		AccountID:   job.AccountID,
		Query:       job.Query,
		MaxResults:  job.MaxResults,
		AutoArchive: job.AutoArchive,
	})
	if err != nil {
		// Precondition failures are permanent; retrying the same job
		// cannot make the account appear or categories exist
		if apperr.IsCode(err, apperr.CodeAccountNotFound) || apperr.IsCode(err, apperr.CodeNoCategories) {
			logger.WithAccount(job.AccountID).Warn("[ImportProcessor] Import rejected: %v", err)
			return nil
		}
		return err
	}

	logger.WithAccount(job.AccountID).Info("[ImportProcessor] Import done: %d imported, %d skipped, %d failed",
		result.Imported, result.Skipped, result.Failed)
	return nil
}
