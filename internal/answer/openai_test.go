package answer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/search"
)

var fastRetry = errors.RetryConfig{
	MaxRetries:   1,
	InitialDelay: time.Millisecond,
	MaxDelay:     time.Millisecond,
	Multiplier:   1,
	RetryIf:      errors.IsRetryable,
}

func chatServer(t *testing.T, calls *atomic.Int64, status int, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"message": "nope", "type": "server_error"},
			})
			return
		}

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "chat-model", req.Model)
		if assert.Len(t, req.Messages, 2) {
			assert.Equal(t, "system", req.Messages[0].Role)
			assert.Equal(t, "user", req.Messages[1].Role)
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "1",
			"object": "chat.completion",
			"model":  req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func chatRequest() Request {
	items := []search.Item{item(1, "git-revert.txt", "", "Revert some existing commits.")}
	return Request{
		Question: "How do I undo a commit?",
		Intent:   search.IntentProcedural,
		Items:    items,
		Prompt:   BuildPrompt("git", search.IntentProcedural, BuildContext(items, 0), "How do I undo a commit?"),
	}
}

func TestOpenAIGenerator_Generate(t *testing.T) {
	// Given
	var calls atomic.Int64
	srv := chatServer(t, &calls, http.StatusOK, "  Use git revert.  ")
	g, err := NewOpenAIGenerator(OpenAIConfig{BaseURL: srv.URL + "/v1", APIKey: "k", Model: "chat-model", Retry: fastRetry}, nil)
	require.NoError(t, err)

	// When
	got, err := g.Generate(context.Background(), chatRequest())

	// Then
	require.NoError(t, err)
	assert.Equal(t, "Use git revert.", got)
	assert.Equal(t, ProviderOpenAI, g.Name())
	assert.Equal(t, int64(1), calls.Load())
}

func TestOpenAIGenerator_EmptyAnswerIsAnError(t *testing.T) {
	var calls atomic.Int64
	srv := chatServer(t, &calls, http.StatusOK, "   ")
	g, err := NewOpenAIGenerator(OpenAIConfig{BaseURL: srv.URL + "/v1", Model: "chat-model", Retry: fastRetry}, nil)
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), chatRequest())

	assert.True(t, errors.IsCode(err, errors.ErrCodeGenerationFailed))
}

func TestOpenAIGenerator_ErrorHandling(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCalls int64
	}{
		{"server errors are retried", http.StatusInternalServerError, 2},
		{"rate limits are retried", http.StatusTooManyRequests, 2},
		{"bad requests are permanent", http.StatusBadRequest, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int64
			srv := chatServer(t, &calls, tt.status, "")
			g, err := NewOpenAIGenerator(OpenAIConfig{BaseURL: srv.URL + "/v1", Model: "chat-model", Retry: fastRetry}, nil)
			require.NoError(t, err)

			_, err = g.Generate(context.Background(), chatRequest())

			require.Error(t, err)
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestOpenAIGenerator_FallsBackToExtractive(t *testing.T) {
	// Given a model that always fails
	var calls atomic.Int64
	srv := chatServer(t, &calls, http.StatusBadGateway, "")
	g, err := NewOpenAIGenerator(OpenAIConfig{
		BaseURL:      srv.URL + "/v1",
		Model:        "chat-model",
		Retry:        fastRetry,
		MaxFailures:  1,
		ResetTimeout: time.Hour,
	}, NewExtractiveGenerator())
	require.NoError(t, err)

	// When
	first, err := g.Generate(context.Background(), chatRequest())

	// Then the extractive answer is returned
	require.NoError(t, err)
	assert.Contains(t, first, "[Source 1] git-revert.txt: Revert some existing commits.")
	callsAfterFirst := calls.Load()
	assert.Equal(t, int64(2), callsAfterFirst)

	// When the breaker is open
	second, err := g.Generate(context.Background(), chatRequest())

	// Then the model is not called again
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, callsAfterFirst, calls.Load())
}

func TestNewOpenAIGenerator_RequiresModel(t *testing.T) {
	_, err := NewOpenAIGenerator(OpenAIConfig{}, nil)

	assert.True(t, errors.IsCode(err, errors.ErrCodeConfigInvalid))
}
