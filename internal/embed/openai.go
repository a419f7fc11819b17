package embed

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/telemetry"
)

// DefaultOpenAIModel is the default OpenAI embedding model.
const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAIConfig configures an OpenAI-compatible embedder.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string // empty uses the OpenAI endpoint
	Model      string
	Dimensions int // 0 keeps the model's native size, detected with a probe
	BatchSize  int
	Timeout    time.Duration
	Retry      errors.RetryConfig
	SkipProbe  bool
}

// OpenAIEmbedder calls the /embeddings endpoint of any OpenAI-compatible API.
type OpenAIEmbedder struct {
	client *openai.Client
	config OpenAIConfig
	dims   int

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an OpenAI-compatible embedder.
func NewOpenAIEmbedder(ctx context.Context, cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.InitialDelay == 0 {
		cfg.Retry = errors.DefaultRetryConfig()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	e := &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientCfg),
		config: cfg,
		dims:   cfg.Dimensions,
	}

	if !cfg.SkipProbe && e.dims == 0 {
		vecs, err := e.embed(ctx, []string{"dimension probe"})
		if err != nil {
			return nil, fmt.Errorf("failed to reach embedding model %s: %w", cfg.Model, err)
		}
		e.dims = len(vecs[0])
		slog.Debug("openai_dimensions_detected", slog.String("model", cfg.Model), slog.Int("dimensions", e.dims))
	}
	return e, nil
}

// Embed generates the embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in requests of at most BatchSize inputs.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := min(start+e.config.BatchSize, len(texts))
		vecs, err := e.embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *OpenAIEmbedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("embedder is closed")
	}

	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          openai.EmbeddingModel(e.config.Model),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.config.Dimensions > 0 {
		req.Dimensions = e.config.Dimensions
	}

	start := time.Now()
	resp, err := errors.RetryWithResult(ctx, e.config.Retry, func() (openai.EmbeddingResponse, error) {
		reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
		r, err := e.client.CreateEmbeddings(reqCtx, req)
		if err != nil {
			return r, classifyOpenAIError(err)
		}
		return r, nil
	})
	telemetry.RecordEmbedding("openai", e.config.Model, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, errors.EmbeddingFailure(
			fmt.Sprintf("embedding API returned %d embeddings for %d inputs", len(resp.Data), len(texts)), nil)
	}

	// the API may return items out of order; Index is authoritative
	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = normalizeVector(d.Embedding)
	}
	return out, nil
}

// classifyOpenAIError maps client errors onto retryable and permanent codes.
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if stderrors.As(err, &apiErr) {
		return statusError("openai", apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if stderrors.As(err, &reqErr) {
		return statusError("openai", reqErr.HTTPStatusCode, string(reqErr.Body))
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.New(errors.ErrCodeNetworkTimeout, "embedding request timed out", err)
	}
	if stderrors.Is(err, context.Canceled) {
		return err
	}
	return errors.NetworkError("embedding request failed", err)
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int { return e.dims }

// ModelName returns the configured model.
func (e *OpenAIEmbedder) ModelName() string { return e.config.Model }

// Available lists models as a cheap reachability check.
func (e *OpenAIEmbedder) Available(ctx context.Context) bool {
	_, err := e.client.ListModels(ctx)
	if err != nil {
		var apiErr *openai.APIError
		// some compatible servers do not implement /models
		return stderrors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusNotFound
	}
	return true
}

// Close marks the embedder closed.
func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
