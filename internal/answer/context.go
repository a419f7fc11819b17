// Package answer turns retrieved chunks into a grounded natural-language
// answer: it builds the numbered context block and the intent-specific
// prompt, then hands both to a Generator.
package answer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Aman-CERP/docrag/internal/search"
)

// DefaultMaxContextChars caps the context handed to the generator.
const DefaultMaxContextChars = 5000

// SnippetLines is the number of leading chunk lines returned as a source snippet.
const SnippetLines = 6

// BuildContext joins the items' texts as "[Source i]" blocks in rank order.
// Source numbers follow item positions, so skipped empty chunks leave gaps.
// Blocks are added until the next one would push the total past maxChars.
func BuildContext(items []search.Item, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxContextChars
	}

	var blocks []string
	total := 0
	for i, item := range items {
		if item.Chunk == nil {
			continue
		}
		text := strings.TrimSpace(item.Chunk.Content())
		if text == "" {
			continue
		}
		block := fmt.Sprintf("[Source %d]\n%s", i+1, text)
		n := utf8.RuneCountInString(block)
		if total+n > maxChars {
			break
		}
		blocks = append(blocks, block)
		total += n
	}
	return strings.Join(blocks, "\n\n")
}

// Snippet returns the first SnippetLines lines of text.
func Snippet(text string) string {
	lines := strings.Split(text, "\n")
	if len(lines) > SnippetLines {
		lines = lines[:SnippetLines]
	}
	return strings.Join(lines, "\n")
}
