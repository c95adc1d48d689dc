package llm

import (
	"testing"

	"triage_server/core/domain"
)

func TestTruncateBody(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		maxLen   int
		expected string
	}{
		{
			name:     "short body",
			body:     "Hello world",
			maxLen:   100,
			expected: "Hello world",
		},
		{
			name:     "exact length",
			body:     "Hello",
			maxLen:   5,
			expected: "Hello",
		},
		{
			name:     "truncated",
			body:     "Hello world, this is a long message",
			maxLen:   10,
			expected: "Hello worl...",
		},
		{
			name:     "empty body",
			body:     "",
			maxLen:   100,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := truncateBody(tt.body, tt.maxLen)
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestMatchCategory(t *testing.T) {
	categories := []*domain.Category{
		{ID: "cat-1", Name: "Work"},
		{ID: "cat-2", Name: "Newsletters"},
		{ID: "cat-3", Name: "Receipts"},
	}

	tests := []struct {
		name       string
		id         string
		categoryNm string
		expectedID string
	}{
		{
			name:       "match by id",
			id:         "cat-2",
			categoryNm: "",
			expectedID: "cat-2",
		},
		{
			name:       "id wins over name",
			id:         "cat-1",
			categoryNm: "Receipts",
			expectedID: "cat-1",
		},
		{
			name:       "fall back to name",
			id:         "made-up",
			categoryNm: "Receipts",
			expectedID: "cat-3",
		},
		{
			name:       "name match is case insensitive",
			id:         "",
			categoryNm: "newsletters",
			expectedID: "cat-2",
		},
		{
			name:       "no match",
			id:         "nope",
			categoryNm: "Nope",
			expectedID: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matchCategory(categories, tt.id, tt.categoryNm)
			if tt.expectedID == "" {
				if got != nil {
					t.Errorf("expected no match, got %q", got.ID)
				}
				return
			}
			if got == nil {
				t.Fatalf("expected category %q, got nil", tt.expectedID)
			}
			if got.ID != tt.expectedID {
				t.Errorf("expected category %q, got %q", tt.expectedID, got.ID)
			}
		})
	}
}

func TestClampConfidence(t *testing.T) {
	tests := []struct {
		name     string
		in       float64
		expected float64
	}{
		{name: "in range", in: 0.7, expected: 0.7},
		{name: "below zero", in: -0.5, expected: 0},
		{name: "above one", in: 1.3, expected: 1},
		{name: "zero", in: 0, expected: 0},
		{name: "one", in: 1, expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clampConfidence(tt.in); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}
