package search

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Aman-CERP/docrag/internal/chunk"
)

// Heuristic rerank weights.
const (
	rerankPositionBase   = 20
	rerankSectionBonus   = 15
	rerankCommandBonus   = 10
	rerankLongChunkChars = 1500
	rerankLongPenalty    = 5
)

// Reranker reorders deduplicated selections for a question. Implementations
// return every input selection exactly once with RerankScore set.
type Reranker interface {
	Rerank(question string, intent Intent, selections []Selection) []Selection
}

// HeuristicReranker scores each selection by its incoming position, then
// adds points when the section is one the intent prefers, when the page is
// the command the question names and for every question word found in the
// text. Chunks longer than rerankLongChunkChars lose points.
type HeuristicReranker struct {
	subject string
}

// NewHeuristicReranker creates a reranker for command pages named
// "<subject>-<command>". An empty subject uses DefaultSubject.
func NewHeuristicReranker(subject string) *HeuristicReranker {
	subject = strings.ToLower(strings.TrimSpace(subject))
	if subject == "" {
		subject = DefaultSubject
	}
	return &HeuristicReranker{subject: subject}
}

// Rerank implements Reranker. Equal scores keep the incoming order.
func (r *HeuristicReranker) Rerank(question string, intent Intent, selections []Selection) []Selection {
	words := wordSet(question)
	hints := make(map[string]bool)
	for _, h := range intent.SectionHints() {
		hints[h] = true
	}

	out := make([]Selection, len(selections))
	for i, s := range selections {
		s.RerankScore = r.score(s.Chunk, i, words, hints)
		out[i] = s
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].RerankScore > out[b].RerankScore
	})
	return out
}

func (r *HeuristicReranker) score(c *chunk.Chunk, pos int, words map[string]struct{}, hints map[string]bool) int {
	score := max(0, rerankPositionBase-pos)
	if hints[strings.ToUpper(c.Title)] {
		score += rerankSectionBonus
	}
	if r.namesCommand(c, words) {
		score += rerankCommandBonus
	}
	text := wordSet(c.Text)
	for w := range words {
		if _, ok := text[w]; ok {
			score++
		}
	}
	if utf8.RuneCountInString(c.Text) > rerankLongChunkChars {
		score -= rerankLongPenalty
	}
	return score
}

// namesCommand reports whether the chunk's page is a command the question
// mentions: "git-revert" matches a question containing "revert".
func (r *HeuristicReranker) namesCommand(c *chunk.Chunk, words map[string]struct{}) bool {
	name := strings.ToLower(c.Metadata[chunk.MetaDocTitle])
	if name == "" {
		return false
	}
	_, ok := words[strings.TrimPrefix(name, r.subject+"-")]
	return ok
}

var _ Reranker = (*HeuristicReranker)(nil)
