package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/docrag/internal/store"
)

func selections(cands ...store.Candidate) []Selection {
	out := make([]Selection, len(cands))
	for i, c := range cands {
		out[i] = Selection{Candidate: c}
	}
	return out
}

func TestDeduplicator_SameSourceAndTitle(t *testing.T) {
	// Given two sub-chunks of one section followed by other sections
	ordered := selections(
		candidate("git-commit.txt", 2, "DESCRIPTION", 0.9),
		candidate("git-commit.txt", 3, "DESCRIPTION", 0.9),
		candidate("git-commit.txt", 4, "OPTIONS", 0.8),
		candidate("git-reset.txt", 2, "DESCRIPTION", 0.7),
	)

	// When keeping two
	got := NewDeduplicator(0).Select(ordered, 2)

	// Then the repeated section is dropped and the next one fills the slot
	assert.Equal(t, []string{"git-commit.txt#2", "git-commit.txt#4"}, ids(got))
}

func TestDeduplicator_NearDuplicateText(t *testing.T) {
	a := candidate("a.txt", 0, "NAME", 0.9)
	a.Chunk.Text = "git-revert - Revert some existing commits"
	b := candidate("b.txt", 0, "NAME", 0.8)
	b.Chunk.Text = "git-revert: revert some existing commits!"
	c := candidate("c.txt", 0, "NAME", 0.7)
	c.Chunk.Text = "git-reset - Reset current HEAD to the specified state"

	got := NewDeduplicator(0.9).Select(selections(a, b, c), 3)

	assert.Equal(t, []string{"a.txt#0", "c.txt#0"}, ids(got))
}

func TestDeduplicator_ThresholdIsStrict(t *testing.T) {
	// Jaccard of {a b c d} and {a b c e} is 3/5.
	a := candidate("a.txt", 0, "X", 0.9)
	a.Chunk.Text = "a b c d"
	b := candidate("b.txt", 0, "X", 0.8)
	b.Chunk.Text = "a b c e"

	assert.Len(t, NewDeduplicator(0.6).Select(selections(a, b), 2), 2)
	assert.Len(t, NewDeduplicator(0.5).Select(selections(a, b), 2), 1)
}

func TestDeduplicator_ShortResultWhenExhausted(t *testing.T) {
	ordered := selections(
		candidate("a.txt", 0, "NAME", 0.9),
		candidate("a.txt", 1, "NAME", 0.8),
	)

	got := NewDeduplicator(0).Select(ordered, 4)

	assert.Len(t, got, 1)
}

func TestJaccard(t *testing.T) {
	assert.InDelta(t, 1.0, jaccard(wordSet(""), wordSet("")), 1e-9)
	assert.InDelta(t, 1.0, jaccard(wordSet("Git Commit"), wordSet("git, commit.")), 1e-9)
	assert.InDelta(t, 0.0, jaccard(wordSet("alpha"), wordSet("beta")), 1e-9)
}
