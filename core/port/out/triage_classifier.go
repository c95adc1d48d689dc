package out

import (
	"context"

	"triage_server/core/domain"
)

// =============================================================================
// Classifier Port (LLM)
// =============================================================================

// ClassifyInput carries the textual fields of one message.
type ClassifyInput struct {
	Subject  string
	From     string
	Snippet  string
	BodyText string
}

// ClassifierPort calls the external AI service.
//
// Categorize must pick exactly one category from the supplied set; callers
// guarantee the set is non-empty. Both operations fail with a
// classification-unavailable error on provider or timeout failures, which
// the importer treats as per-message, never fatal to a run.
type ClassifierPort interface {
	Categorize(ctx context.Context, in ClassifyInput, categories []*domain.Category) (*domain.Classification, error)
	Summarize(ctx context.Context, in ClassifyInput) (string, error)
}
