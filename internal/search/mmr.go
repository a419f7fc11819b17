package search

import (
	"math"

	"github.com/Aman-CERP/docrag/internal/store"
)

// DefaultLambda weights relevance over novelty in MMR.
const DefaultLambda = 0.7

// Selection is a candidate picked by MMR together with the marginal score it
// was picked with.
type Selection struct {
	store.Candidate
	MMRScore float64
	// RerankScore is set by a Reranker; zero when reranking is off.
	RerankScore int
}

// MMR orders pool by maximal marginal relevance and returns at most k
// selections:
//
//	score(d) = λ·sim(d,q) − (1−λ)·max_{s∈S} sim(d,s)
//
// The first pick is the most query-similar candidate. Ties go to the higher
// query similarity, then to the earlier pool position. No candidate is
// returned twice. k <= 0 orders the whole pool.
func MMR(pool []store.Candidate, k int, lambda float64) []Selection {
	if k <= 0 || k > len(pool) {
		k = len(pool)
	}
	if k == 0 {
		return []Selection{}
	}

	// maxSim[i] is max sim(pool[i], s) over the selected set so far.
	maxSim := make([]float64, len(pool))
	for i := range maxSim {
		maxSim[i] = math.Inf(-1)
	}
	taken := make([]bool, len(pool))
	selected := make([]Selection, 0, k)

	for len(selected) < k {
		best := -1
		var bestScore float64
		for i, c := range pool {
			if taken[i] {
				continue
			}
			score := float64(c.Score)
			if len(selected) > 0 {
				score = lambda*float64(c.Score) - (1-lambda)*maxSim[i]
			}
			if best < 0 || score > bestScore ||
				(score == bestScore && c.Score > pool[best].Score) {
				best, bestScore = i, score
			}
		}

		taken[best] = true
		selected = append(selected, Selection{Candidate: pool[best], MMRScore: bestScore})

		for i, c := range pool {
			if taken[i] {
				continue
			}
			if sim := cosine(c.Vector, pool[best].Vector); sim > maxSim[i] {
				maxSim[i] = sim
			}
		}
	}

	return selected
}

// cosine returns the cosine similarity of a and b, 0 when either is zero or
// the lengths differ.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
