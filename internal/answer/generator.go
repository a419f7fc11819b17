package answer

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Aman-CERP/docrag/internal/config"
	"github.com/Aman-CERP/docrag/internal/search"
)

// NoAnswer is returned when retrieval found nothing to ground an answer in.
const NoAnswer = "I do not know. The indexed documentation does not cover this question."

// Provider names.
const (
	ProviderExtractive = "extractive"
	ProviderOpenAI     = "openai"
)

// Request is everything a generator may use to answer one question.
type Request struct {
	Question string
	Intent   search.Intent
	Items    []search.Item
	Prompt   Prompt
}

// Generator produces an answer for a grounded request.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	// Name identifies the provider in responses and metrics.
	Name() string
}

// New builds the generator selected by cfg. The OpenAI generator falls back
// to extractive answers when the model is unreachable.
func New(cfg config.AnswerConfig) (Generator, error) {
	switch cfg.Provider {
	case "", ProviderExtractive:
		return NewExtractiveGenerator(), nil
	case ProviderOpenAI:
		return NewOpenAIGenerator(OpenAIConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Timeout:     config.Duration(cfg.Timeout, DefaultGenerationTimeout),
		}, NewExtractiveGenerator())
	default:
		return nil, fmt.Errorf("unknown answer provider %q", cfg.Provider)
	}
}

// maxExcerptChars bounds each excerpt in an extractive answer.
const maxExcerptChars = 400

// maxExcerpts bounds the number of excerpts in an extractive answer.
const maxExcerpts = 3

// ExtractiveGenerator answers offline by quoting the leading paragraph of
// the best-ranked chunks. Output is deterministic.
type ExtractiveGenerator struct{}

// NewExtractiveGenerator creates an extractive generator.
func NewExtractiveGenerator() *ExtractiveGenerator {
	return &ExtractiveGenerator{}
}

// Name implements Generator.
func (g *ExtractiveGenerator) Name() string { return ProviderExtractive }

// Generate implements Generator.
func (g *ExtractiveGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var lines []string
	for i, item := range req.Items {
		if len(lines) == maxExcerpts {
			break
		}
		if item.Chunk == nil {
			continue
		}
		excerpt := leadParagraph(item.Chunk.Text, item.Chunk.Title)
		if excerpt == "" {
			continue
		}
		label := item.Source()
		if s := item.Section(); s != "" {
			label += " (" + s + ")"
		}
		lines = append(lines, fmt.Sprintf("[Source %d] %s: %s", i+1, label, excerpt))
	}
	if len(lines) == 0 {
		return NoAnswer, nil
	}
	return "From the documentation:\n\n" + strings.Join(lines, "\n\n"), nil
}

// leadParagraph returns the first body paragraph of text, skipping the
// heading line and underline rules, collapsed to one line.
func leadParagraph(text, title string) string {
	var para []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			if len(para) > 0 {
				return truncate(strings.Join(para, " "), maxExcerptChars)
			}
		case len(para) == 0 && (isHeadingLine(trimmed, title) || isRule(trimmed)):
		default:
			para = append(para, strings.Join(strings.Fields(trimmed), " "))
		}
	}
	return truncate(strings.Join(para, " "), maxExcerptChars)
}

func isHeadingLine(line, title string) bool {
	if title != "" && strings.TrimLeft(line, "#= ") == title {
		return true
	}
	return strings.HasPrefix(line, "#") || strings.HasPrefix(line, "= ") || strings.HasPrefix(line, "== ")
}

// isRule reports an underline such as "-----" or "=====".
func isRule(line string) bool {
	if len(line) < 2 {
		return false
	}
	c := line[0]
	if !strings.ContainsRune("-=~^+*", rune(c)) {
		return false
	}
	return strings.Trim(line, string(c)) == ""
}

// truncate cuts s to at most n runes at a word boundary, adding "...".
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)[:n]
	cut := string(r)
	if i := strings.LastIndexByte(cut, ' '); i > n/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,;:") + "..."
}

var _ Generator = (*ExtractiveGenerator)(nil)
