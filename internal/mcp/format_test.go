package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/docrag/internal/answer"
	"github.com/Aman-CERP/docrag/internal/chunk"
	"github.com/Aman-CERP/docrag/internal/search"
)

func TestFormatRetrieval(t *testing.T) {
	t.Run("lists results with provenance", func(t *testing.T) {
		// Given
		result := &search.Result{
			Question: "How do I undo a commit?",
			Intent:   search.IntentProcedural,
			Items: []search.Item{
				{Rank: 1, Score: 0.91, Chunk: &chunk.Chunk{
					DocPath:  "git-revert.txt",
					Title:    "DESCRIPTION",
					Text:     "Revert commits.",
					Metadata: map[string]string{chunk.MetaDocTitle: "git-revert"},
				}},
				{Rank: 2, Score: 0.5, Chunk: &chunk.Chunk{DocPath: "git-reset.txt", Text: "Lead-in."}},
			},
		}

		// When
		got := FormatRetrieval(result)

		// Then
		assert.Contains(t, got, `## Documentation for "How do I undo a commit?"`)
		assert.Contains(t, got, "Intent: `procedural`. Found 2 results")
		assert.Contains(t, got, "### 1. git-revert: git-revert.txt § DESCRIPTION (score: 0.91)")
		assert.Contains(t, got, "### 2. git-reset.txt (score: 0.50)")
		assert.Contains(t, got, "```\nRevert commits.\n```")
	})

	t.Run("empty", func(t *testing.T) {
		got := FormatRetrieval(&search.Result{Question: "q", Items: []search.Item{{Rank: 1}}})

		assert.Equal(t, `No documentation found for "q"`, got)
	})
}

func TestFormatAnswer(t *testing.T) {
	resp := &answer.Response{
		Answer:  "Use git revert.",
		Sources: []answer.Source{
			{File: "git-revert.txt", Command: "git-revert", Section: "NAME", Score: 0.8},
			{File: "notes.md", Score: 0.4},
		},
	}

	got := FormatAnswer(resp)

	assert.Equal(t, "Use git revert.\n\n**Sources**\n\n1. git-revert: git-revert.txt § NAME (score: 0.80)\n2. notes.md (score: 0.40)\n", got)
	assert.Equal(t, "I do not know.\n", FormatAnswer(&answer.Response{Answer: "I do not know."}))
}

func TestClampTopK(t *testing.T) {
	assert.Equal(t, 0, clampTopK(0, 20))
	assert.Equal(t, 0, clampTopK(-3, 20))
	assert.Equal(t, 5, clampTopK(5, 20))
	assert.Equal(t, 20, clampTopK(99, 20))
}
