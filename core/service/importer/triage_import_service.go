// Package importer orchestrates inbox import runs.
package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/in"
	"triage_server/core/port/out"
	"triage_server/pkg/apperr"
	"triage_server/pkg/logger"
)

const (
	DefaultQuery      = "in:inbox"
	DefaultMaxResults = 20
)

// Service runs the fetch, classify, summarize, persist pipeline for one
// account. Precondition failures abort the whole run before any provider
// call; per-message failures are recorded and never stop the batch.
type Service struct {
	accountRepo  out.AccountRepository
	categoryRepo out.CategoryRepository
	messageRepo  out.MessageRepository
	bodyStore    out.BodyStorePort
	mailSource   out.MailSourcePort
	classifier   out.ClassifierPort
}

// NewService creates a new import Service.
func NewService(
	accountRepo out.AccountRepository,
	categoryRepo out.CategoryRepository,
	messageRepo out.MessageRepository,
	bodyStore out.BodyStorePort,
	mailSource out.MailSourcePort,
	classifier out.ClassifierPort,
) *Service {
	return &Service{
		accountRepo:  accountRepo,
		categoryRepo: categoryRepo,
		messageRepo:  messageRepo,
		bodyStore:    bodyStore,
		mailSource:   mailSource,
		classifier:   classifier,
	}
}

// Run executes an import for the given options.
func (s *Service) Run(ctx context.Context, opts domain.ImportOptions) (*domain.ImportResult, error) {
	startTime := time.Now()
	logger.WithAccount(opts.AccountID).Info("[ImportService.Run] Starting import")

	// Preconditions, checked before any provider traffic
	account, err := s.accountRepo.GetByID(ctx, opts.AccountID)
	if err != nil {
		if errors.Is(err, out.ErrNotFound) {
			return nil, apperr.AccountNotFound(opts.AccountID)
		}
		return nil, apperr.DatabaseError("get account", err)
	}

	categories, err := s.categoryRepo.ListByUser(ctx, account.UserID)
	if err != nil {
		return nil, apperr.DatabaseError("list categories", err)
	}
	if len(categories) == 0 {
		// A describable result, not just an error: callers report
		// success=false with exactly one message for this case
		result := &domain.ImportResult{
			Success: false,
			Errors:  []string{"no categories configured for user " + account.UserID},
		}
		return result, apperr.NoCategories(account.UserID)
	}

	query := opts.Query
	if query == "" {
		query = DefaultQuery
	}
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	// Candidate listing failure fails the whole run; there is nothing to
	// iterate over.
	refs, err := s.mailSource.ListCandidates(ctx, account, query, maxResults)
	if err != nil {
		return nil, apperr.ProviderUnavailable("list messages", err)
	}

	result := &domain.ImportResult{}
	for _, ref := range refs {
		s.processCandidate(ctx, account, categories, ref, opts.AutoArchive, result)
	}

	result.Finalize()
	logger.WithAccount(opts.AccountID).WithDuration(time.Since(startTime)).
		Info("[ImportService.Run] Import finished: %d imported, %d skipped, %d failed",
			result.Imported, result.Skipped, result.Failed)
	return result, nil
}

// processCandidate runs one message through the pipeline. Every failure
// path records the message and returns; the caller moves on to the next
// candidate regardless.
func (s *Service) processCandidate(
	ctx context.Context,
	account *domain.Account,
	categories []*domain.Category,
	ref out.CandidateRef,
	autoArchive bool,
	result *domain.ImportResult,
) {
	// Cheap dedup probe before any fetch or LLM spend
	exists, err := s.messageRepo.Exists(ctx, account.ID, ref.ID)
	if err != nil {
		result.AddError(fmt.Sprintf("%s: dedup check failed: %v", ref.ID, err))
		return
	}
	if exists {
		result.Skipped++
		return
	}

	full, err := s.mailSource.FetchFull(ctx, account, ref.ID)
	if err != nil {
		result.AddError(fmt.Sprintf("%s: fetch failed: %v", ref.ID, err))
		return
	}

	classification, err := s.classifier.Categorize(ctx, classifyInput(full), categories)
	if err != nil {
		result.AddError(fmt.Sprintf("%s: classification failed: %v", ref.ID, err))
		return
	}

	summary, err := s.classifier.Summarize(ctx, classifyInput(full))
	if err != nil {
		result.AddError(fmt.Sprintf("%s: summarization failed: %v", ref.ID, err))
		return
	}

	msg := buildMessage(account.ID, full, classification, summary)

	// Only fully processed messages are persisted. A lost dedup race
	// surfaces as ErrDuplicate and counts as a skip, same as the probe.
	if err := s.messageRepo.Create(ctx, msg); err != nil {
		if errors.Is(err, out.ErrDuplicate) {
			result.Skipped++
			return
		}
		result.AddError(fmt.Sprintf("%s: persist failed: %v", ref.ID, err))
		return
	}

	// Body storage is best effort; the row is already the source of truth
	if s.bodyStore != nil && (full.BodyText != "" || full.BodyHTML != "") {
		body := &domain.MessageBody{
			MessageID: msg.ID,
			TextBody:  full.BodyText,
			HTMLBody:  full.BodyHTML,
		}
		if err := s.bodyStore.Save(ctx, body); err != nil {
			logger.WithAccount(account.ID).Warn("[ImportService] Body save failed for %s: %v", msg.ID, err)
		}
	}

	if autoArchive {
		s.archiveBestEffort(ctx, account, ref.ID)
	}

	// The counter delta always matches the row that just landed
	if msg.CategoryID != nil {
		if err := s.categoryRepo.IncrementCount(ctx, *msg.CategoryID, 1); err != nil {
			logger.WithAccount(account.ID).Error("[ImportService] Counter increment failed for category %s: %v",
				*msg.CategoryID, err)
		}
	}

	result.Imported++
}

// archiveBestEffort archives at the provider and mirrors the flag
// locally. Neither failure affects the import outcome; the message is
// already persisted.
func (s *Service) archiveBestEffort(ctx context.Context, account *domain.Account, providerMessageID string) {
	if err := s.mailSource.Archive(ctx, account, providerMessageID); err != nil {
		logger.WithAccount(account.ID).Warn("[ImportService] Archive failed for %s: %v", providerMessageID, err)
		return
	}
	if err := s.messageRepo.MarkArchived(ctx, account.ID, providerMessageID); err != nil {
		logger.WithAccount(account.ID).Warn("[ImportService] Archived flag update failed for %s: %v",
			providerMessageID, err)
	}
}

func classifyInput(m *out.SourceMessage) out.ClassifyInput {
	return out.ClassifyInput{
		Subject:  m.Subject,
		From:     m.FromEmail,
		Snippet:  m.Snippet,
		BodyText: m.BodyText,
	}
}

func buildMessage(accountID string, full *out.SourceMessage, c *domain.Classification, summary string) *domain.Message {
	msg := &domain.Message{
		AccountID:         accountID,
		ProviderMessageID: full.ID,
		ThreadID:          full.ThreadID,
		Subject:           full.Subject,
		FromEmail:         full.FromEmail,
		ToEmails:          full.ToEmails,
		Date:              full.Date,
		Snippet:           full.Snippet,
		Labels:            full.Labels,
		Summary:           summary,
		Reasoning:         c.Reasoning,
		Confidence:        c.Confidence,
		HasAttachment:     full.HasAttachment,
		Status:            domain.StatusCompleted,
	}
	if full.FromName != "" {
		name := full.FromName
		msg.FromName = &name
	}
	if full.UnsubscribeLink != "" {
		link := full.UnsubscribeLink
		msg.UnsubscribeLink = &link
	}
	if c.CategoryID != "" {
		id := c.CategoryID
		msg.CategoryID = &id
	}
	return msg
}

// Ensure Service implements in.ImportService
var _ in.ImportService = (*Service)(nil)
