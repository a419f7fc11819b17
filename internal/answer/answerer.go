package answer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aman-CERP/docrag/internal/search"
)

// Retriever is the retrieval dependency of an Answerer.
type Retriever interface {
	Retrieve(ctx context.Context, question string, topK int) (*search.Result, error)
}

// Options tunes an Answerer.
type Options struct {
	// MaxContextChars caps the context block. Zero means DefaultMaxContextChars.
	MaxContextChars int
	// Subject names the documented tool in the prompt.
	Subject string
}

// Source is the provenance of one retrieved chunk in a response.
type Source struct {
	File    string  `json:"file"`
	Command string  `json:"command,omitempty"`
	Snippet string  `json:"snippet"`
	Section string  `json:"section,omitempty"`
	Score   float32 `json:"score"`
}

// Response is an answer with its intent and sources in rank order.
type Response struct {
	Answer    string        `json:"answer"`
	Intent    search.Intent `json:"intent"`
	Sources   []Source      `json:"sources"`
	Generator string        `json:"generator"`
	Latency   time.Duration `json:"-"`
}

// Answerer runs retrieval followed by generation. It is safe for
// concurrent use when its retriever and generator are.
type Answerer struct {
	retriever Retriever
	generator Generator
	opts      Options
}

// NewAnswerer creates an Answerer.
func NewAnswerer(retriever Retriever, generator Generator, opts Options) (*Answerer, error) {
	if retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if opts.MaxContextChars <= 0 {
		opts.MaxContextChars = DefaultMaxContextChars
	}
	if opts.Subject == "" {
		opts.Subject = search.DefaultSubject
	}
	return &Answerer{retriever: retriever, generator: generator, opts: opts}, nil
}

// Ask answers question from the top topK chunks. topK <= 0 uses the
// intent's default. An empty retrieval yields NoAnswer without calling
// the generator.
func (a *Answerer) Ask(ctx context.Context, question string, topK int) (*Response, error) {
	start := time.Now()

	result, err := a.retriever.Retrieve(ctx, question, topK)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Intent:    result.Intent,
		Sources:   Sources(result.Items),
		Generator: a.generator.Name(),
	}
	if len(result.Items) == 0 {
		resp.Answer = NoAnswer
		resp.Latency = time.Since(start)
		return resp, nil
	}

	block := BuildContext(result.Items, a.opts.MaxContextChars)
	answer, err := a.generator.Generate(ctx, Request{
		Question: question,
		Intent:   result.Intent,
		Items:    result.Items,
		Prompt:   BuildPrompt(a.opts.Subject, result.Intent, block, question),
	})
	if err != nil {
		return nil, err
	}
	resp.Answer = answer
	resp.Latency = time.Since(start)

	slog.Debug("answer_generated",
		slog.String("intent", string(result.Intent)),
		slog.String("generator", resp.Generator),
		slog.Int("sources", len(resp.Sources)),
		slog.Duration("latency", resp.Latency))
	return resp, nil
}

// Sources converts ranked items into response sources.
func Sources(items []search.Item) []Source {
	out := make([]Source, 0, len(items))
	for _, item := range items {
		if item.Chunk == nil {
			continue
		}
		out = append(out, Source{
			File:    item.Source(),
			Command: item.Command(),
			Snippet: Snippet(item.Chunk.Text),
			Section: item.Section(),
			Score:   item.Score,
		})
	}
	return out
}
