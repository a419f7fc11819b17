package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/docrag/internal/answer"
	"github.com/Aman-CERP/docrag/internal/search"
)

// FormatRetrieval formats ranked chunks as markdown.
func FormatRetrieval(result *search.Result) string {
	items := validItems(result.Items)
	if len(items) == 0 {
		return fmt.Sprintf("No documentation found for \"%s\"", result.Question)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Documentation for \"%s\"\n\n", result.Question)
	fmt.Fprintf(&sb, "Intent: `%s`. Found %d result", result.Intent, len(items))
	if len(items) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for _, it := range items {
		fmt.Fprintf(&sb, "### %d. %s (score: %.2f)\n\n", it.Rank, heading(it.Source(), it.Section(), it.Command()), it.Score)
		fmt.Fprintf(&sb, "```\n%s\n```\n\n", it.Chunk.Content())
	}
	return sb.String()
}

// FormatAnswer formats an answer and its sources as markdown.
func FormatAnswer(resp *answer.Response) string {
	var sb strings.Builder
	sb.WriteString(resp.Answer)
	sb.WriteString("\n")
	if len(resp.Sources) == 0 {
		return sb.String()
	}

	sb.WriteString("\n**Sources**\n\n")
	for i, src := range resp.Sources {
		fmt.Fprintf(&sb, "%d. %s (score: %.2f)\n", i+1, heading(src.File, src.Section, src.Command), src.Score)
	}
	return sb.String()
}

// heading renders "command: file § section", leaving out empty parts.
func heading(file, section, command string) string {
	h := file
	if section != "" {
		h += " § " + section
	}
	if command != "" {
		h = command + ": " + h
	}
	return h
}

func validItems(items []search.Item) []search.Item {
	valid := make([]search.Item, 0, len(items))
	for _, it := range items {
		if it.Chunk != nil {
			valid = append(valid, it)
		}
	}
	return valid
}

// clampTopK bounds a requested k; zero keeps the intent default.
func clampTopK(k, limit int) int {
	switch {
	case k <= 0:
		return 0
	case k > limit:
		return limit
	default:
		return k
	}
}
