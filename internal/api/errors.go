package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Aman-CERP/docrag/internal/errors"
)

// statusForCode maps error codes to HTTP statuses. Unlisted codes are 500.
var statusForCode = map[string]int{
	errors.ErrCodeQueryEmpty:         http.StatusBadRequest,
	errors.ErrCodeQueryTooLong:       http.StatusBadRequest,
	errors.ErrCodeInvalidInput:       http.StatusBadRequest,
	errors.ErrCodeInvalidEncoding:    http.StatusBadRequest,
	errors.ErrCodeCorruptIndex:       http.StatusServiceUnavailable,
	errors.ErrCodeRebuildInProgress:  http.StatusServiceUnavailable,
	errors.ErrCodeDimensionMismatch:  http.StatusServiceUnavailable,
	errors.ErrCodeEmbeddingFailed:    http.StatusBadGateway,
	errors.ErrCodeGenerationFailed:   http.StatusBadGateway,
	errors.ErrCodeNetworkUnavailable: http.StatusBadGateway,
	errors.ErrCodeNetworkTimeout:     http.StatusGatewayTimeout,
	errors.ErrCodeRateLimited:        http.StatusTooManyRequests,
}

// writeDomainError writes a coded error. Internal errors are logged and
// their message is not exposed.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.GetCode(err)
	status, known := statusForCode[code]
	reqID := chimiddleware.GetReqID(r.Context())

	if !known {
		slog.Error("request_failed",
			slog.String("request_id", reqID),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, ErrorResponse{
			Code:    errors.ErrCodeInternal,
			Message: "internal error",
		})
		return
	}

	slog.Warn("request_failed",
		slog.String("request_id", reqID),
		slog.String("path", r.URL.Path),
		slog.String("code", code),
		slog.String("error", err.Error()))

	resp := ErrorResponse{Code: code, Message: err.Error()}
	if de, ok := errors.As(err); ok {
		resp.Message = de.Message
		resp.Suggestion = de.Suggestion
	}
	writeError(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, resp ErrorResponse) {
	writeJSON(w, status, resp)
}
