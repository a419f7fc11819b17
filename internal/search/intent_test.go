package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		question string
		want     Intent
	}{
		{"How do I undo a commit?", IntentProcedural},
		{"how to create a new branch", IntentProcedural},
		{"Undo the last commit", IntentProcedural},
		{"List all remote branches", IntentProcedural},
		{"How does git checkout-index work?", IntentProcedural},
		{"Why should I use git branch before pushing changes?", IntentReasoning},
		{"What is the purpose of git stash?", IntentReasoning},
		{"What is the difference between git merge and git rebase?", IntentComparison},
		{"merge vs rebase", IntentComparison},
		{"How does fetch compare to pull?", IntentComparison},
		{"What is Git?", IntentDefinition},
		{"What does git fetch do?", IntentDefinition},
		{"Explain git rebase", IntentDefinition},
		{"What's git rebase?", IntentDefinition},
		{"What’s git rebase?", IntentDefinition},
		{"WHATʼS A REFLOG?", IntentDefinition},
		{"git stash", IntentGeneral},
		{"reflog expiry", IntentGeneral},
		{"", IntentGeneral},
		{"???", IntentGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyIntent(tt.question))
		})
	}
}

func TestClassifyIntent_IsTotal(t *testing.T) {
	// Given inputs that match no rule or mix several
	inputs := []string{
		"x", "12345", "ÉCHEC", "why vs how", "definitely not a question",
		"\t\n", "what's up", "git", "🙂", "because because",
	}

	for _, in := range inputs {
		// Then every input maps to a defined label
		assert.True(t, ClassifyIntent(in).Valid(), "input %q", in)
	}
}

func TestIntentClassifier_TopK(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c := NewIntentClassifier(nil, 0)
		assert.Equal(t, 4, c.TopK(IntentProcedural))
		assert.Equal(t, 4, c.TopK(IntentReasoning))
		assert.Equal(t, 6, c.TopK(IntentComparison))
		assert.Equal(t, 4, c.TopK(IntentDefinition))
		assert.Equal(t, 4, c.TopK(IntentGeneral))
		assert.Equal(t, 4, c.TopK(Intent("unknown")))
	})

	t.Run("overrides ignore non-positive values", func(t *testing.T) {
		c := NewIntentClassifier(map[Intent]int{IntentProcedural: 8, IntentComparison: 0}, 10)
		assert.Equal(t, 8, c.TopK(IntentProcedural))
		assert.Equal(t, 6, c.TopK(IntentComparison))
	})
}

func TestIntentClassifier_CachesByNormalizedQuestion(t *testing.T) {
	c := NewIntentClassifier(nil, 2)

	assert.Equal(t, IntentProcedural, c.Classify("How do I undo a commit?"))
	assert.Equal(t, IntentProcedural, c.Classify("  how DO i undo a commit "))
	assert.Equal(t, 1, c.cache.Len())
}

func TestIntent_InstructionAndHints(t *testing.T) {
	for _, intent := range Intents() {
		assert.NotEmpty(t, intent.Instruction(), intent)
		assert.NotEmpty(t, intent.SectionHints(), intent)
	}
	assert.Equal(t, []string{"NAME"}, IntentDefinition.SectionHints())
	assert.Contains(t, IntentComparison.Instruction(), "differences")
	assert.False(t, Intent("other").Valid())
}
