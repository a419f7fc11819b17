package search

import (
	"strings"
	"unicode"
)

// DefaultDedupThreshold is the word-Jaccard similarity above which two chunk
// texts count as near duplicates.
const DefaultDedupThreshold = 0.9

// Deduplicator drops selections that repeat an already kept (source path,
// section title) pair or whose text nearly duplicates a kept chunk.
type Deduplicator struct {
	Threshold float64
}

// NewDeduplicator returns a deduplicator; threshold <= 0 uses the default.
func NewDeduplicator(threshold float64) *Deduplicator {
	if threshold <= 0 {
		threshold = DefaultDedupThreshold
	}
	return &Deduplicator{Threshold: threshold}
}

type sectionKey struct {
	path  string
	title string
}

// Select walks ordered and keeps up to k selections. A dropped slot is filled
// by the next selection in order; a short result means ordered ran out.
func (d *Deduplicator) Select(ordered []Selection, k int) []Selection {
	kept := make([]Selection, 0, min(k, len(ordered)))
	keys := make(map[sectionKey]struct{}, k)
	var words []map[string]struct{}

	for _, s := range ordered {
		if len(kept) >= k {
			break
		}
		key := sectionKey{path: s.Chunk.DocPath, title: s.Chunk.Title}
		if _, dup := keys[key]; dup {
			continue
		}

		w := wordSet(s.Chunk.Text)
		if d.nearDuplicate(w, words) {
			continue
		}

		keys[key] = struct{}{}
		words = append(words, w)
		kept = append(kept, s)
	}

	return kept
}

func (d *Deduplicator) nearDuplicate(w map[string]struct{}, kept []map[string]struct{}) bool {
	for _, other := range kept {
		if jaccard(w, other) > d.Threshold {
			return true
		}
	}
	return false
}

func wordSet(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// jaccard is |a∩b| / |a∪b|; two empty sets are identical.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}
