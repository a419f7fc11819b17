// Package mcp exposes retrieval and answering as Model Context Protocol tools.
package mcp

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/Aman-CERP/docrag/internal/errors"
)

// MCP error codes.
const (
	// ErrCodeIndexUnavailable means nothing is served or the index is corrupt.
	ErrCodeIndexUnavailable = -32001

	// ErrCodeEmbeddingFailed means the question could not be embedded.
	ErrCodeEmbeddingFailed = -32002

	// ErrCodeTimeout means the request timed out or was canceled.
	ErrCodeTimeout = -32003

	// ErrCodeGenerationFailed means the answer model failed.
	ErrCodeGenerationFailed = -32004

	// Standard JSON-RPC error codes.
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError is a protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors. Messages of coded errors
// carry their suggestion; anything else becomes a generic internal error.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}
	var mcpErr *MCPError
	if stderrors.As(err, &mcpErr) {
		return mcpErr
	}
	if de, ok := errors.As(err); ok {
		return mapDocragError(de)
	}

	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case stderrors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Tool '%s' not found.", name)}
}

// NewResourceNotFoundError creates an error for unknown resources.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Resource '%s' not found.", uri)}
}

func mapDocragError(de *errors.DocragError) *MCPError {
	message := de.Message
	if de.Suggestion != "" {
		message = de.Message + " " + de.Suggestion
	}

	switch de.Code {
	case errors.ErrCodeCorruptIndex, errors.ErrCodeEmptyIndex, errors.ErrCodeDimensionMismatch:
		return &MCPError{Code: ErrCodeIndexUnavailable, Message: message}
	case errors.ErrCodeEmbeddingFailed:
		return &MCPError{Code: ErrCodeEmbeddingFailed, Message: message}
	case errors.ErrCodeGenerationFailed:
		return &MCPError{Code: ErrCodeGenerationFailed, Message: message}
	}

	switch de.Category {
	case errors.CategoryNetwork:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	case errors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
