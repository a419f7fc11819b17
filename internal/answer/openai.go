package answer

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/telemetry"
)

// DefaultGenerationTimeout bounds one chat completion request.
const DefaultGenerationTimeout = 60 * time.Second

// OpenAIConfig configures the chat completion generator.
type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
	Retry       errors.RetryConfig

	// MaxFailures opens the circuit after that many consecutive failures.
	MaxFailures  int
	ResetTimeout time.Duration
}

// OpenAIGenerator answers with an OpenAI-compatible chat completion model.
// Failures are retried; once the breaker opens, or when retries run out,
// requests go to the fallback generator if one is set.
type OpenAIGenerator struct {
	client   *openai.Client
	config   OpenAIConfig
	breaker  *errors.CircuitBreaker
	fallback Generator
}

// NewOpenAIGenerator creates a chat generator. fallback may be nil.
func NewOpenAIGenerator(cfg OpenAIConfig, fallback Generator) (*OpenAIGenerator, error) {
	if cfg.Model == "" {
		return nil, errors.ConfigError("answer model is required", nil)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultGenerationTimeout
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.InitialDelay == 0 {
		cfg.Retry = errors.DefaultRetryConfig()
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(clientCfg),
		config: cfg,
		breaker: errors.NewCircuitBreaker("answer-"+cfg.Model,
			errors.WithMaxFailures(cfg.MaxFailures),
			errors.WithResetTimeout(cfg.ResetTimeout)),
		fallback: fallback,
	}, nil
}

// Name implements Generator.
func (g *OpenAIGenerator) Name() string { return ProviderOpenAI }

// Generate implements Generator.
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	fellBack := false
	fallback := func() (string, error) {
		if g.fallback == nil {
			return "", errors.New(errors.ErrCodeGenerationFailed, "answer model unavailable", nil)
		}
		fellBack = true
		return g.fallback.Generate(ctx, req)
	}

	answer, err := errors.CircuitExecuteWithResult(g.breaker, func() (string, error) {
		return errors.RetryWithResult(ctx, g.config.Retry, func() (string, error) {
			return g.complete(ctx, req.Prompt)
		})
	}, fallback)

	if err != nil && g.fallback != nil && !fellBack && ctx.Err() == nil {
		slog.Warn("generation_fallback",
			slog.String("model", g.config.Model),
			slog.String("error", err.Error()))
		answer, err = fallback()
	}

	switch {
	case err != nil:
		telemetry.RecordGeneration(ProviderOpenAI, "error", time.Since(start))
	case fellBack:
		telemetry.RecordGeneration(ProviderOpenAI, "fallback", time.Since(start))
	default:
		telemetry.RecordGeneration(ProviderOpenAI, "success", time.Since(start))
	}
	return answer, err
}

func (g *OpenAIGenerator) complete(ctx context.Context, p Prompt) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	resp, err := g.client.CreateChatCompletion(reqCtx, openai.ChatCompletionRequest{
		Model: g.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.System},
			{Role: openai.ChatMessageRoleUser, Content: p.User},
		},
		MaxTokens:   g.config.MaxTokens,
		Temperature: g.config.Temperature,
	})
	if err != nil {
		return "", classifyChatError(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New(errors.ErrCodeGenerationFailed, "chat completion returned no choices", nil)
	}
	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", errors.New(errors.ErrCodeGenerationFailed, "chat completion returned an empty answer", nil)
	}
	return answer, nil
}

// classifyChatError maps client errors onto retryable and permanent codes.
func classifyChatError(err error) error {
	var apiErr *openai.APIError
	if stderrors.As(err, &apiErr) {
		return chatStatusError(apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if stderrors.As(err, &reqErr) {
		return chatStatusError(reqErr.HTTPStatusCode, string(reqErr.Body))
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.New(errors.ErrCodeNetworkTimeout, "chat completion timed out", err)
	}
	if stderrors.Is(err, context.Canceled) {
		return err
	}
	return errors.NetworkError("chat completion failed", err)
}

func chatStatusError(status int, body string) error {
	msg := fmt.Sprintf("chat completion failed with status %d: %s", status, body)
	switch {
	case status == http.StatusTooManyRequests:
		return errors.New(errors.ErrCodeRateLimited, msg, nil)
	case status >= 500:
		return errors.NetworkError(msg, nil)
	default:
		return errors.New(errors.ErrCodeGenerationFailed, msg, nil)
	}
}

var _ Generator = (*OpenAIGenerator)(nil)
