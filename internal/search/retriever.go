// Package search turns a question into a diversified, deduplicated list of
// documentation chunks.
//
// Pipeline: classify intent (→ k), expand into query variants, over-fetch
// oversample×k candidates per variant concurrently, merge by chunk id keeping
// the best score, order the pool by MMR, then deduplicate down to k. With
// reranking on, the whole pool is deduplicated and reranked before the cut.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/docrag/internal/chunk"
	docerrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/store"
	"github.com/Aman-CERP/docrag/internal/telemetry"
)

// Retrieval defaults.
const (
	DefaultOversample     = 3
	DefaultVariantTimeout = 10 * time.Second
	DefaultMaxParallel    = 4
)

// QueryEmbedder embeds one query variant.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// IndexSource supplies the index to search. store.Manager implements it; a
// (nil, nil) return means nothing has been published.
type IndexSource interface {
	Index() (*store.VectorIndex, error)
}

// StaticIndex serves one fixed index.
type StaticIndex struct {
	Idx *store.VectorIndex
}

// Index implements IndexSource.
func (s StaticIndex) Index() (*store.VectorIndex, error) {
	return s.Idx, nil
}

// Config tunes retrieval.
type Config struct {
	Oversample      int
	Lambda          float64
	MaxVariants     int
	DedupThreshold  float64
	VariantTimeout  time.Duration
	MaxParallel     int
	Subject         string
	TopK            map[Intent]int
	IntentCacheSize int
	Rerank          bool
}

// DefaultConfig returns the retrieval defaults.
func DefaultConfig() Config {
	return Config{
		Oversample:      DefaultOversample,
		Lambda:          DefaultLambda,
		MaxVariants:     DefaultMaxVariants,
		DedupThreshold:  DefaultDedupThreshold,
		VariantTimeout:  DefaultVariantTimeout,
		MaxParallel:     DefaultMaxParallel,
		Subject:         DefaultSubject,
		TopK:            DefaultTopK(),
		IntentCacheSize: DefaultIntentCacheSize,
	}
}

// Item is one ranked result.
type Item struct {
	Rank     int
	Chunk    *chunk.Chunk
	Score    float32
	MMRScore float64
	// RerankScore is the heuristic rerank score, zero when reranking is off.
	RerankScore int
	// Variant is the first query variant that surfaced the chunk.
	Variant string
}

// Source is the provenance path of the item's chunk.
func (i Item) Source() string {
	return i.Chunk.DocPath
}

// Section is the section title of the item's chunk, "" for lead-in text.
func (i Item) Section() string {
	return i.Chunk.Title
}

// Command is the title of the page the chunk belongs to, such as
// "git-revert" for a man page.
func (i Item) Command() string {
	return i.Chunk.Metadata[chunk.MetaDocTitle]
}

// Result is the outcome of one retrieval.
type Result struct {
	Question       string
	Intent         Intent
	TopK           int
	Variants       []string
	FailedVariants int
	Items          []Item
	Latency        time.Duration
}

// Retriever runs the retrieval pipeline. It is read-only and safe for
// concurrent use.
type Retriever struct {
	source     IndexSource
	embedder   QueryEmbedder
	classifier *IntentClassifier
	expander   *QueryExpander
	dedup      *Deduplicator
	reranker   Reranker
	cfg        Config
}

// NewRetriever validates cfg and builds a retriever.
func NewRetriever(source IndexSource, embedder QueryEmbedder, cfg Config) (*Retriever, error) {
	if cfg.Oversample < 2 {
		return nil, docerrors.ConfigError(fmt.Sprintf("oversample must be >= 2, got %d", cfg.Oversample), nil)
	}
	if cfg.Lambda < 0 || cfg.Lambda > 1 {
		return nil, docerrors.ConfigError(fmt.Sprintf("lambda must be in [0,1], got %v", cfg.Lambda), nil)
	}
	if cfg.DedupThreshold <= 0 || cfg.DedupThreshold > 1 {
		return nil, docerrors.ConfigError(fmt.Sprintf("dedup threshold must be in (0,1], got %v", cfg.DedupThreshold), nil)
	}
	if cfg.VariantTimeout <= 0 {
		cfg.VariantTimeout = DefaultVariantTimeout
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = DefaultMaxParallel
	}

	expander, err := NewQueryExpander(WithMaxVariants(cfg.MaxVariants), WithSubject(cfg.Subject))
	if err != nil {
		return nil, docerrors.ConfigError("invalid query expansion settings", err)
	}

	r := &Retriever{
		source:     source,
		embedder:   embedder,
		classifier: NewIntentClassifier(cfg.TopK, cfg.IntentCacheSize),
		expander:   expander,
		dedup:      NewDeduplicator(cfg.DedupThreshold),
		cfg:        cfg,
	}
	if cfg.Rerank {
		r.reranker = NewHeuristicReranker(cfg.Subject)
	}
	return r, nil
}

// Classifier exposes the intent classifier.
func (r *Retriever) Classifier() *IntentClassifier {
	return r.classifier
}

// Expander exposes the query expander.
func (r *Retriever) Expander() *QueryExpander {
	return r.expander
}

// Retrieve answers question with at most topK chunks; topK <= 0 uses the
// intent default. An unpublished or empty index yields an empty result.
func (r *Retriever) Retrieve(ctx context.Context, question string, topK int) (*Result, error) {
	start := time.Now()

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, docerrors.New(docerrors.ErrCodeQueryEmpty, "question is empty", nil)
	}

	intent := r.classifier.Classify(question)
	if topK <= 0 {
		topK = r.classifier.TopK(intent)
	}

	result := &Result{
		Question: question,
		Intent:   intent,
		TopK:     topK,
		Items:    []Item{},
	}
	defer func() {
		result.Latency = time.Since(start)
		telemetry.RecordQuery(telemetry.QueryEvent{
			Intent:         string(intent),
			ResultCount:    len(result.Items),
			FailedVariants: result.FailedVariants,
			Latency:        result.Latency,
		})
	}()

	idx, err := r.source.Index()
	if err != nil {
		return nil, err
	}
	if idx.Len() == 0 {
		slog.Debug("retrieve_empty_index", slog.String("intent", string(intent)))
		return result, nil
	}

	result.Variants = r.expander.Expand(question, intent)

	pool, failed, err := r.overFetch(ctx, idx, result.Variants, r.cfg.Oversample*topK)
	result.FailedVariants = failed
	if err != nil {
		return nil, err
	}

	candidates := make([]store.Candidate, len(pool))
	for i, p := range pool {
		candidates[i] = p.Candidate
	}
	ordered := MMR(candidates, 0, r.cfg.Lambda)
	var kept []Selection
	if r.reranker != nil {
		kept = r.reranker.Rerank(question, intent, r.dedup.Select(ordered, len(ordered)))
		kept = kept[:min(topK, len(kept))]
	} else {
		kept = r.dedup.Select(ordered, topK)
	}

	variantOf := make(map[string]string, len(pool))
	for _, p := range pool {
		variantOf[p.Chunk.ID] = p.variant
	}
	for i, s := range kept {
		result.Items = append(result.Items, Item{
			Rank:        i + 1,
			Chunk:       s.Chunk,
			Score:       s.Score,
			MMRScore:    s.MMRScore,
			RerankScore: s.RerankScore,
			Variant:     variantOf[s.Chunk.ID],
		})
	}

	slog.Debug("retrieve_complete",
		slog.String("intent", string(intent)),
		slog.Int("variants", len(result.Variants)),
		slog.Int("failed_variants", failed),
		slog.Int("pool", len(pool)),
		slog.Int("results", len(result.Items)),
		slog.Bool("reranked", r.reranker != nil),
		slog.Duration("duration", time.Since(start)))

	return result, nil
}

type pooled struct {
	store.Candidate
	variant string
}

// overFetch embeds and searches each variant concurrently. A failing variant
// is dropped; only the failure of every variant is an error. The merged pool
// keeps first-seen order (variant order, then rank) and the best score per
// chunk id.
func (r *Retriever) overFetch(ctx context.Context, idx *store.VectorIndex, variants []string, n int) ([]pooled, int, error) {
	perVariant := make([][]store.Candidate, len(variants))
	errs := make([]error, len(variants))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.MaxParallel)

	for i, variant := range variants {
		g.Go(func() error {
			vctx, cancel := context.WithTimeout(gctx, r.cfg.VariantTimeout)
			defer cancel()

			vec, err := r.embedder.Embed(vctx, variant)
			if err != nil {
				errs[i] = err
				return nil
			}
			hits, err := idx.Search(vctx, vec, n)
			if err != nil {
				errs[i] = err
				return nil
			}
			perVariant[i] = hits
			return nil
		})
	}
	// Variant failures are recorded in errs, never returned.
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	failed := 0
	var lastErr error
	for i, err := range errs {
		if err == nil {
			continue
		}
		failed++
		lastErr = err
		slog.Warn("retrieve_variant_failed",
			slog.Int("variant", i),
			slog.String("query", variants[i]),
			slog.String("error", err.Error()))
	}
	if failed == len(variants) {
		if docerrors.IsCode(lastErr, docerrors.ErrCodeDimensionMismatch) {
			return nil, failed, lastErr
		}
		return nil, failed, docerrors.EmbeddingFailure(
			fmt.Sprintf("all %d query variants failed", failed), lastErr)
	}

	var pool []pooled
	pos := make(map[string]int)
	for i, hits := range perVariant {
		for _, h := range hits {
			if at, ok := pos[h.Chunk.ID]; ok {
				if h.Score > pool[at].Score {
					pool[at].Score = h.Score
				}
				continue
			}
			pos[h.Chunk.ID] = len(pool)
			pool = append(pool, pooled{Candidate: h, variant: variants[i]})
		}
	}

	return pool, failed, nil
}
