package llm

import (
	"context"
	"fmt"

	"triage_server/core/port/out"
	"triage_server/pkg/apperr"
)

// Summarize produces a short summary of one email.
func (c *Client) Summarize(ctx context.Context, in out.ClassifyInput) (string, error) {
	systemPrompt := `You are an email summarization AI. Create a brief, clear summary of the email.
Keep the summary to 1-3 sentences. Focus on the main point and any action items.
Only output the summary, nothing else.`

	userPrompt := fmt.Sprintf("From: %s\nSubject: %s\n\nBody:\n%s",
		in.From, in.Subject, truncateBody(in.BodyText, 3000))

	summary, err := c.CompleteWithSystem(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", apperr.ClassificationUnavailable(err)
	}
	return summary, nil
}
