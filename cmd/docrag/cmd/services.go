package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Aman-CERP/docrag/internal/answer"
	"github.com/Aman-CERP/docrag/internal/config"
	"github.com/Aman-CERP/docrag/internal/embed"
	"github.com/Aman-CERP/docrag/internal/search"
	"github.com/Aman-CERP/docrag/internal/store"
)

// loadConfig loads configuration for the --dir project.
func loadConfig() (*config.Config, error) {
	return config.Load(projectDir)
}

// searchConfig maps the retrieval section onto the retriever's options.
func searchConfig(cfg config.RetrievalConfig) search.Config {
	sc := search.DefaultConfig()
	sc.Oversample = cfg.Oversample
	sc.Lambda = cfg.Lambda
	sc.MaxVariants = cfg.MaxVariants
	sc.DedupThreshold = cfg.DedupThreshold
	sc.VariantTimeout = config.Duration(cfg.VariantTimeout, search.DefaultVariantTimeout)
	sc.MaxParallel = cfg.MaxParallel
	sc.Subject = cfg.Subject
	sc.IntentCacheSize = cfg.IntentCache
	sc.Rerank = cfg.Rerank

	topK := map[search.Intent]int{
		search.IntentProcedural: cfg.TopK.Procedural,
		search.IntentReasoning:  cfg.TopK.Reasoning,
		search.IntentComparison: cfg.TopK.Comparison,
		search.IntentDefinition: cfg.TopK.Definition,
		search.IntentGeneral:    cfg.TopK.General,
	}
	for intent, k := range topK {
		if k > 0 {
			sc.TopK[intent] = k
		}
	}
	return sc
}

// services is the query-side stack shared by query, serve and mcp.
type services struct {
	cfg       *config.Config
	manager   *store.Manager
	embedder  embed.Embedder
	retriever *search.Retriever
	answerer  *answer.Answerer
}

// newServices opens the published index and builds the retrieval and
// answering pipeline on top of it. An index that is missing or corrupt is
// not fatal here; queries report it.
func newServices(ctx context.Context, cfg *config.Config) (*services, error) {
	manager := store.NewManager(cfg.Index.DataDir, cfg.Index.KeepGenerations)
	manager.SetSearchOptions(cfg.Index.EfSearch, cfg.Index.ExactSearchMax)
	if err := manager.Open(); err != nil {
		slog.Warn("index_open_failed",
			slog.String("data_dir", cfg.Index.DataDir),
			slog.String("error", err.Error()))
	}

	embedder, err := embed.New(ctx, cfg.Embeddings)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	retriever, err := search.NewRetriever(manager, embedder, searchConfig(cfg.Retrieval))
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}

	generator, err := answer.New(cfg.Answer)
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}

	answerer, err := answer.NewAnswerer(retriever, generator, answer.Options{
		MaxContextChars: cfg.Answer.MaxContextChars,
		Subject:         cfg.Retrieval.Subject,
	})
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}

	return &services{
		cfg:       cfg,
		manager:   manager,
		embedder:  embedder,
		retriever: retriever,
		answerer:  answerer,
	}, nil
}

// Close releases the embedder.
func (s *services) Close() error {
	return s.embedder.Close()
}
