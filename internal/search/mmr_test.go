package search

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docrag/internal/chunk"
	"github.com/Aman-CERP/docrag/internal/store"
)

func candidate(path string, ordinal int, title string, score float32, vec ...float32) store.Candidate {
	return store.Candidate{
		Chunk: &chunk.Chunk{
			ID:      chunk.ChunkID(path, ordinal),
			DocPath: path,
			Ordinal: ordinal,
			Title:   title,
			Text:    fmt.Sprintf("%s %s body %d", path, title, ordinal),
		},
		Score:  score,
		Vector: vec,
	}
}

func ids(sel []Selection) []string {
	out := make([]string, len(sel))
	for i, s := range sel {
		out[i] = s.Chunk.ID
	}
	return out
}

func TestMMR_NonRepetitionAndBound(t *testing.T) {
	pool := []store.Candidate{
		candidate("a.txt", 0, "A", 0.9, 1, 0, 0),
		candidate("b.txt", 0, "B", 0.8, 0.9, 0.1, 0),
		candidate("c.txt", 0, "C", 0.7, 0, 1, 0),
		candidate("d.txt", 0, "D", 0.6, 0, 0, 1),
		candidate("e.txt", 0, "E", 0.5, 0.5, 0.5, 0.5),
	}

	for _, k := range []int{1, 3, 5, 10} {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			got := MMR(pool, k, DefaultLambda)

			assert.Len(t, got, min(k, len(pool)))
			seen := make(map[string]bool)
			for _, id := range ids(got) {
				assert.False(t, seen[id], "selected %s twice", id)
				seen[id] = true
			}
		})
	}
}

func TestMMR_DiversificationEffect(t *testing.T) {
	// Given three near-identical high-similarity candidates and one distinct,
	// less similar candidate
	pool := []store.Candidate{
		candidate("git-commit.txt", 2, "DESCRIPTION", 0.95, 1, 0),
		candidate("git-commit.txt", 3, "DESCRIPTION", 0.94, 0.99, 0.14),
		candidate("git-commit.txt", 4, "DESCRIPTION", 0.93, 0.98, 0.2),
		candidate("git-revert.txt", 1, "DESCRIPTION", 0.80, 0, 1),
	}

	// When selecting two with λ < 1
	got := MMR(pool, 2, DefaultLambda)

	// Then the distinct candidate is picked, unlike naive top-k
	assert.Equal(t, []string{"git-commit.txt#2", "git-revert.txt#1"}, ids(got))
	assert.InDelta(t, 0.95, got[0].MMRScore, 1e-6)
	assert.InDelta(t, 0.7*0.80, got[1].MMRScore, 1e-6)
}

func TestMMR_LambdaOneIsRelevanceOrder(t *testing.T) {
	pool := []store.Candidate{
		candidate("a.txt", 0, "", 0.5, 1, 0),
		candidate("b.txt", 0, "", 0.9, 1, 0),
		candidate("c.txt", 0, "", 0.7, 0, 1),
	}

	got := MMR(pool, 0, 1)

	assert.Equal(t, []string{"b.txt#0", "c.txt#0", "a.txt#0"}, ids(got))
}

func TestMMR_TiesPreferSimilarityThenFirstSeen(t *testing.T) {
	t.Run("first pick tie goes to first seen", func(t *testing.T) {
		pool := []store.Candidate{
			candidate("a.txt", 0, "", 0.8, 1, 0),
			candidate("b.txt", 0, "", 0.8, 0, 1),
		}
		got := MMR(pool, 1, DefaultLambda)
		assert.Equal(t, []string{"a.txt#0"}, ids(got))
	})

	t.Run("equal marginal score goes to higher similarity", func(t *testing.T) {
		// With λ = 0.5: b scores 0.5·0.75 − 0.5·0.5 = 0.125 and c scores
		// 0.5·0.25 − 0 = 0.125.
		pool := []store.Candidate{
			candidate("a.txt", 0, "", 1.0, 1, 0, 0, 0),
			candidate("c.txt", 0, "", 0.25, 0, 0, 0, 1),
			candidate("b.txt", 0, "", 0.75, 1, 1, 1, 1),
		}
		got := MMR(pool, 2, 0.5)
		require.Len(t, got, 2)
		assert.Equal(t, "b.txt#0", got[1].Chunk.ID)
	})
}

func TestMMR_EmptyPool(t *testing.T) {
	got := MMR(nil, 4, DefaultLambda)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
