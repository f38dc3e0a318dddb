package strings

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{"nil slice", nil, nil},
		{"empty slice", []string{}, []string{}},
		{"trims whitespace", []string{"  deal ", "checklist_item  "}, []string{"deal", "checklist_item"}},
		{"removes duplicates preserving order", []string{"deal", "milestone", "deal"}, []string{"deal", "milestone"}},
		{"removes empty strings", []string{"deal", "", "  "}, []string{"deal"}},
		{"preserves case", []string{"Deal", "deal"}, []string{"Deal", "deal"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}

func TestDedupeAndTrimLower(t *testing.T) {
	assert.Equal(t, []string{"deal", "milestone"}, DedupeAndTrimLower([]string{" DEAL", "Milestone ", "deal"}))
	assert.Nil(t, DedupeAndTrimLower(nil))
}

func TestTruncate(t *testing.T) {
	t.Run("short strings are unchanged", func(t *testing.T) {
		assert.Equal(t, "Finding confirmed", Truncate("Finding confirmed", 500))
	})

	t.Run("cuts on rune boundaries", func(t *testing.T) {
		got := Truncate("déjà vu", 3)
		assert.Equal(t, "déj", got)
		assert.True(t, utf8.ValidString(got))
	})

	t.Run("non-positive max yields empty", func(t *testing.T) {
		assert.Equal(t, "", Truncate("abc", 0))
	})
}
