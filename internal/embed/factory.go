package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Aman-CERP/docrag/internal/config"
)

// ProviderType names an embedding provider.
type ProviderType string

const (
	// ProviderStatic uses offline hash embeddings.
	ProviderStatic ProviderType = "static"
	// ProviderOllama uses a local Ollama server.
	ProviderOllama ProviderType = "ollama"
	// ProviderOpenAI uses any OpenAI-compatible embeddings endpoint.
	ProviderOpenAI ProviderType = "openai"
)

// ValidProviders returns all provider names.
func ValidProviders() []string {
	return []string{string(ProviderStatic), string(ProviderOllama), string(ProviderOpenAI)}
}

// ParseProvider converts a name to a ProviderType.
func ParseProvider(s string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "static":
		return ProviderStatic, nil
	case "ollama":
		return ProviderOllama, nil
	case "openai", "openai-compatible":
		return ProviderOpenAI, nil
	default:
		return "", fmt.Errorf("unknown embedding provider %q (valid: %s)", s, strings.Join(ValidProviders(), ", "))
	}
}

// New builds the embedder described by cfg: the provider, wrapped in the
// shared Redis cache when configured, wrapped in the in-process LRU cache.
//
// Dimensions applies to the static embedder and is sent to OpenAI-compatible
// endpoints; Ollama models report their own size.
func New(ctx context.Context, cfg config.EmbeddingsConfig) (Embedder, error) {
	provider, err := ParseProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}
	timeout := config.Duration(cfg.Timeout, DefaultTimeout)
	model := cfg.Model
	if strings.HasPrefix(model, "static") {
		model = ""
	}

	var e Embedder
	switch provider {
	case ProviderOllama:
		e, err = NewOllamaEmbedder(ctx, OllamaConfig{
			Host:      cfg.OllamaHost,
			Model:     model,
			BatchSize: cfg.BatchSize,
			Timeout:   timeout,
		})
	case ProviderOpenAI:
		e, err = NewOpenAIEmbedder(ctx, OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			Timeout:    timeout,
			SkipProbe:  cfg.Dimensions > 0,
		})
	default:
		e = NewStaticEmbedder(cfg.Dimensions)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RedisAddr != "" && provider != ProviderStatic {
		store, err := NewRedisStore(cfg.RedisAddr)
		if err != nil {
			_ = e.Close()
			return nil, err
		}
		e = NewSharedCacheEmbedder(e, store, 0)
	}
	if cfg.CacheSize >= 0 {
		e = NewCachedEmbedder(e, cfg.CacheSize)
	}

	slog.Debug("embedder_created",
		slog.String("provider", string(provider)),
		slog.String("model", e.ModelName()),
		slog.Int("dimensions", e.Dimensions()))
	return e, nil
}

// Info describes an embedder for status output.
type Info struct {
	Provider   ProviderType `json:"provider"`
	Model      string       `json:"model"`
	Dimensions int          `json:"dimensions"`
	Available  bool         `json:"available"`
}

// GetInfo reports the provider behind any cache decorators.
func GetInfo(ctx context.Context, e Embedder) Info {
	info := Info{Model: e.ModelName(), Dimensions: e.Dimensions()}
	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	info.Available = e.Available(checkCtx)

	inner := e
	for {
		switch d := inner.(type) {
		case *CachedEmbedder:
			inner = d.inner
			continue
		case *SharedCacheEmbedder:
			inner = d.inner
			continue
		}
		break
	}
	switch inner.(type) {
	case *OllamaEmbedder:
		info.Provider = ProviderOllama
	case *OpenAIEmbedder:
		info.Provider = ProviderOpenAI
	default:
		info.Provider = ProviderStatic
	}
	return info
}
