package persistence

import (
	"database/sql"
	"testing"
)

func TestGroupDeletedByCategory(t *testing.T) {
	valid := func(s string) sql.NullString {
		return sql.NullString{String: s, Valid: true}
	}
	null := sql.NullString{}

	tests := []struct {
		name     string
		input    []sql.NullString
		expected map[string]int64
	}{
		{
			name:     "empty input",
			input:    nil,
			expected: map[string]int64{},
		},
		{
			name:     "single category",
			input:    []sql.NullString{valid("cat-1"), valid("cat-1"), valid("cat-1")},
			expected: map[string]int64{"cat-1": 3},
		},
		{
			name:     "mixed categories",
			input:    []sql.NullString{valid("cat-1"), valid("cat-2"), valid("cat-1")},
			expected: map[string]int64{"cat-1": 2, "cat-2": 1},
		},
		{
			name:     "null categories excluded",
			input:    []sql.NullString{valid("cat-1"), null, null},
			expected: map[string]int64{"cat-1": 1},
		},
		{
			name:     "all null",
			input:    []sql.NullString{null, null},
			expected: map[string]int64{},
		},
		{
			name:     "empty string treated as uncategorized",
			input:    []sql.NullString{valid(""), valid("cat-1")},
			expected: map[string]int64{"cat-1": 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GroupDeletedByCategory(tt.input)
			if len(got) != len(tt.expected) {
				t.Fatalf("expected %d groups, got %d: %v", len(tt.expected), len(got), got)
			}
			for id, count := range tt.expected {
				if got[id] != count {
					t.Errorf("category %s: expected %d, got %d", id, count, got[id])
				}
			}
		})
	}
}
