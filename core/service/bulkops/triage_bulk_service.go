// Package bulkops implements batch mutations over stored messages.
package bulkops

import (
	"context"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/in"
	"triage_server/core/port/out"
	"triage_server/pkg/logger"
)

// Service executes bulk delete and bulk unsubscribe jobs. Delete is
// all-or-nothing at the database; unsubscribe is strictly per-message.
type Service struct {
	messageRepo  out.MessageRepository
	bodyStore    out.BodyStorePort
	unsubscriber out.UnsubscribePort
}

// NewService creates a new bulk operations Service.
func NewService(
	messageRepo out.MessageRepository,
	bodyStore out.BodyStorePort,
	unsubscriber out.UnsubscribePort,
) *Service {
	return &Service{
		messageRepo:  messageRepo,
		bodyStore:    bodyStore,
		unsubscriber: unsubscriber,
	}
}

// Delete removes the caller-owned messages among ids. Row deletion and
// the category counter decrements commit together; ids the user does not
// own are silently ignored. Body cleanup happens after the commit and
// never fails the operation.
func (s *Service) Delete(ctx context.Context, userID string, messageIDs []string) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}

	// Resolve the owned subset up front; body documents are keyed by row
	// id and must only be touched for rows this user actually holds.
	owned, err := s.messageRepo.ListByIDs(ctx, messageIDs, userID)
	if err != nil {
		return 0, err
	}
	ownedIDs := make([]string, len(owned))
	for i, msg := range owned {
		ownedIDs[i] = msg.ID
	}

	deleted, err := s.messageRepo.BulkDelete(ctx, messageIDs, userID)
	if err != nil {
		return 0, err
	}

	if s.bodyStore != nil && len(ownedIDs) > 0 {
		if err := s.bodyStore.DeleteMany(ctx, ownedIDs); err != nil {
			logger.Warn("[BulkService.Delete] Body cleanup failed for %d messages: %v", len(ownedIDs), err)
		}
	}

	logger.Info("[BulkService.Delete] Deleted %d of %d requested messages", deleted, len(messageIDs))
	return deleted, nil
}

// Unsubscribe attempts the unsubscribe action for each owned message
// independently. One sender's broken endpoint never blocks the rest;
// every requested id gets an entry in the result.
func (s *Service) Unsubscribe(ctx context.Context, userID string, messageIDs []string) ([]*domain.UnsubscribeResult, error) {
	startTime := time.Now()

	owned, err := s.messageRepo.ListByIDs(ctx, messageIDs, userID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*domain.Message, len(owned))
	for _, msg := range owned {
		byID[msg.ID] = msg
	}

	results := make([]*domain.UnsubscribeResult, 0, len(messageIDs))
	succeeded := 0
	for _, id := range messageIDs {
		results = append(results, s.unsubscribeOne(ctx, id, byID[id], &succeeded))
	}

	logger.WithDuration(time.Since(startTime)).
		Info("[BulkService.Unsubscribe] %d/%d succeeded", succeeded, len(messageIDs))
	return results, nil
}

func (s *Service) unsubscribeOne(ctx context.Context, id string, msg *domain.Message, succeeded *int) *domain.UnsubscribeResult {
	result := &domain.UnsubscribeResult{MessageID: id}

	if msg == nil {
		result.Success = boolPtr(false)
		result.Message = "message not found"
		return result
	}
	if msg.UnsubscribeLink == nil || *msg.UnsubscribeLink == "" {
		result.Success = boolPtr(false)
		result.Message = "no unsubscribe link"
		return result
	}

	if err := s.unsubscriber.Unsubscribe(ctx, *msg.UnsubscribeLink); err != nil {
		result.Success = boolPtr(false)
		result.Message = err.Error()
		return result
	}

	result.Success = boolPtr(true)
	result.Message = "unsubscribe request accepted"
	*succeeded++
	return result
}

func boolPtr(b bool) *bool { return &b }

// Ensure Service implements in.BulkService
var _ in.BulkService = (*Service)(nil)
