// Package api serves the question-answering HTTP interface.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Aman-CERP/docrag/internal/answer"
	"github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/search"
	"github.com/Aman-CERP/docrag/internal/store"
	"github.com/Aman-CERP/docrag/internal/telemetry"
	"github.com/Aman-CERP/docrag/pkg/version"
)

// Request limits.
const (
	MaxQuestionChars = 2000
	MaxTopK          = 50
	maxBodyBytes     = 64 << 10
)

// Asker answers questions.
type Asker interface {
	Ask(ctx context.Context, question string, topK int) (*answer.Response, error)
}

// Retriever returns ranked chunks without generating an answer.
type Retriever interface {
	Retrieve(ctx context.Context, question string, topK int) (*search.Result, error)
}

// Dependencies are the services behind the HTTP handlers.
type Dependencies struct {
	Asker     Asker
	Retriever Retriever
	// Index reports the served index for /healthz.
	Index search.IndexSource
	// Generation names the served generation, when known.
	Generation func() string
}

// Server holds the HTTP handlers.
type Server struct {
	deps Dependencies
}

// NewServer creates a server. Asker, Retriever and Index are required.
func NewServer(deps Dependencies) (*Server, error) {
	if deps.Asker == nil {
		return nil, fmt.Errorf("asker is required")
	}
	if deps.Retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if deps.Index == nil {
		return nil, fmt.Errorf("index source is required")
	}
	return &Server{deps: deps}, nil
}

// Routes returns the router with middleware installed.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(requestLogger)
	r.Use(telemetry.Middleware)

	r.Get("/", s.handleRoot)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/chat", s.handleChat)
	r.Post("/retrieve", s.handleRetrieve)
	return r
}

// QuestionRequest is the body of /chat and /retrieve.
type QuestionRequest struct {
	Question string `json:"question"`
	TopK     *int   `json:"top_k,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// RetrieveItem is one ranked chunk in a /retrieve response.
type RetrieveItem struct {
	Rank        int     `json:"rank"`
	ID          string  `json:"id"`
	File        string  `json:"file"`
	Command     string  `json:"command,omitempty"`
	Section     string  `json:"section,omitempty"`
	Score       float32 `json:"score"`
	MMRScore    float64 `json:"mmr_score"`
	RerankScore int     `json:"rerank_score,omitempty"`
	Variant     string  `json:"variant"`
	Text        string  `json:"text"`
}

// RetrieveResponse is the body of a /retrieve response.
type RetrieveResponse struct {
	Question       string         `json:"question"`
	Intent         search.Intent  `json:"intent"`
	TopK           int            `json:"top_k"`
	Variants       []string       `json:"variants"`
	FailedVariants int            `json:"failed_variants"`
	Items          []RetrieveItem `json:"items"`
	LatencyMS      int64          `json:"latency_ms"`
}

// HealthResponse is the body of /healthz.
type HealthResponse struct {
	Status     string `json:"status"`
	Generation string `json:"generation,omitempty"`
	Revision   string `json:"revision,omitempty"`
	Model      string `json:"model,omitempty"`
	Chunks     int    `json:"chunks"`
	Error      string `json:"error,omitempty"`
}

// Health statuses.
const (
	StatusOK      = "ok"
	StatusEmpty   = "empty"
	StatusCorrupt = "corrupt"
)

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Welcome to the docrag API",
		"version":   version.Short(),
		"endpoints": []string{"POST /chat", "POST /retrieve", "GET /healthz", "GET /metrics"},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	idx, err := s.deps.Index.Index()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: StatusCorrupt, Error: err.Error()})
		return
	}
	if idx == nil {
		writeJSON(w, http.StatusOK, HealthResponse{Status: StatusEmpty})
		return
	}

	info := idx.Info()
	resp := HealthResponse{
		Status:   StatusOK,
		Revision: info.Revision,
		Model:    info.Model,
		Chunks:   idx.Len(),
	}
	if resp.Chunks == 0 {
		resp.Status = StatusEmpty
	}
	if s.deps.Generation != nil {
		resp.Generation = s.deps.Generation()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQuestion(w, r)
	if !ok {
		return
	}

	resp, err := s.deps.Asker.Ask(r.Context(), req.Question, topK(req))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if resp.Sources == nil {
		resp.Sources = []answer.Source{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQuestion(w, r)
	if !ok {
		return
	}

	result, err := s.deps.Retriever.Retrieve(r.Context(), req.Question, topK(req))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ToRetrieveResponse(result))
}

// decodeQuestion reads and validates a QuestionRequest, writing a 400 on
// failure.
func decodeQuestion(w http.ResponseWriter, r *http.Request) (QuestionRequest, bool) {
	var req QuestionRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{
			Code:    errors.ErrCodeInvalidInput,
			Message: "invalid request body: " + err.Error(),
		})
		return req, false
	}

	req.Question = strings.TrimSpace(req.Question)
	switch {
	case req.Question == "":
		writeError(w, http.StatusBadRequest, ErrorResponse{
			Code:    errors.ErrCodeQueryEmpty,
			Message: "question is required",
		})
		return req, false
	case utf8.RuneCountInString(req.Question) > MaxQuestionChars:
		writeError(w, http.StatusBadRequest, ErrorResponse{
			Code:    errors.ErrCodeQueryTooLong,
			Message: fmt.Sprintf("question exceeds %d characters", MaxQuestionChars),
		})
		return req, false
	case req.TopK != nil && (*req.TopK < 1 || *req.TopK > MaxTopK):
		writeError(w, http.StatusBadRequest, ErrorResponse{
			Code:    errors.ErrCodeInvalidInput,
			Message: fmt.Sprintf("top_k must be between 1 and %d", MaxTopK),
		})
		return req, false
	}
	return req, true
}

// topK returns the requested k, or 0 for the intent default.
func topK(req QuestionRequest) int {
	if req.TopK == nil {
		return 0
	}
	return *req.TopK
}

// ToRetrieveResponse converts a retrieval result to its wire form.
func ToRetrieveResponse(result *search.Result) RetrieveResponse {
	items := make([]RetrieveItem, 0, len(result.Items))
	for _, it := range result.Items {
		items = append(items, RetrieveItem{
			Rank:        it.Rank,
			ID:          it.Chunk.ID,
			File:        it.Source(),
			Command:     it.Command(),
			Section:     it.Section(),
			Score:       it.Score,
			MMRScore:    it.MMRScore,
			RerankScore: it.RerankScore,
			Variant:     it.Variant,
			Text:        it.Chunk.Content(),
		})
	}
	variants := result.Variants
	if variants == nil {
		variants = []string{}
	}
	return RetrieveResponse{
		Question:       result.Question,
		Intent:         result.Intent,
		TopK:           result.TopK,
		Variants:       variants,
		FailedVariants: result.FailedVariants,
		Items:          items,
		LatencyMS:      result.Latency.Milliseconds(),
	}
}

// GenerationName adapts a store manager for Dependencies.Generation.
func GenerationName(m *store.Manager) func() string {
	return func() string {
		if gen := m.Current(); gen != nil {
			return gen.Name
		}
		return ""
	}
}

// NewHTTPServer wraps handler with the configured timeouts.
func NewHTTPServer(addr string, handler http.Handler, readTimeout, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
	}
}
