package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/apperr"
)

// categorizeResponse is the JSON shape the model is instructed to return.
type categorizeResponse struct {
	CategoryID   string  `json:"category_id"`
	CategoryName string  `json:"category_name"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning"`
}

// Categorize picks the best-fit category from the user's set. The caller
// guarantees the set is non-empty.
func (c *Client) Categorize(ctx context.Context, in out.ClassifyInput, categories []*domain.Category) (*domain.Classification, error) {
	var catList strings.Builder
	for _, cat := range categories {
		if cat.Description != "" {
			fmt.Fprintf(&catList, "- id=%s name=%q: %s\n", cat.ID, cat.Name, cat.Description)
		} else {
			fmt.Fprintf(&catList, "- id=%s name=%q\n", cat.ID, cat.Name)
		}
	}

	systemPrompt := fmt.Sprintf(`You are an email triage AI. Classify the email into exactly ONE of the user's categories. Respond with JSON only.

Categories:
%s
Respond with this exact JSON format:
{
  "category_id": "id of the chosen category",
  "category_name": "name of the chosen category",
  "confidence": 0.0-1.0,
  "reasoning": "one sentence explaining the choice"
}`, catList.String())

	userPrompt := fmt.Sprintf("From: %s\nSubject: %s\nSnippet: %s\n\nBody:\n%s",
		in.From, in.Subject, in.Snippet, truncateBody(in.BodyText, 2000))

	resp, err := c.CompleteJSON(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, apperr.ClassificationUnavailable(err)
	}

	resp = strings.TrimPrefix(resp, "```json")
	resp = strings.TrimSuffix(resp, "```")
	resp = strings.TrimSpace(resp)

	var result categorizeResponse
	if err := json.Unmarshal([]byte(resp), &result); err != nil {
		return nil, apperr.ClassificationUnavailable(fmt.Errorf("failed to parse classification response: %w", err))
	}

	chosen := matchCategory(categories, result.CategoryID, result.CategoryName)
	if chosen == nil {
		return nil, apperr.ClassificationUnavailable(fmt.Errorf("model chose unknown category %q/%q", result.CategoryID, result.CategoryName))
	}

	return &domain.Classification{
		CategoryID:   chosen.ID,
		CategoryName: chosen.Name,
		Confidence:   clampConfidence(result.Confidence),
		Reasoning:    result.Reasoning,
	}, nil
}

// matchCategory resolves the model's answer against the supplied set,
// by id first and then by case-insensitive name.
func matchCategory(categories []*domain.Category, id, name string) *domain.Category {
	for _, cat := range categories {
		if cat.ID == id {
			return cat
		}
	}
	for _, cat := range categories {
		if strings.EqualFold(cat.Name, name) {
			return cat
		}
	}
	return nil
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func truncateBody(body string, maxLen int) string {
	if len(body) <= maxLen {
		return body
	}
	return body[:maxLen] + "..."
}

// Ensure Client implements out.ClassifierPort
var _ out.ClassifierPort = (*Client)(nil)
