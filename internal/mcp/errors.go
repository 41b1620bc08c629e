// Package mcp exposes the retrieval engine over the Model Context
// Protocol, so AI clients can search the corpus as a tool.
package mcp

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/loreleaf/loreleaf/internal/errors"
)

// JSON-RPC error codes used by this server.
const (
	ErrCodeInvalidParams = -32602
	ErrCodeInternalError = -32603

	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout = -32001

	// ErrCodeRetrievalDown indicates every retrieval path failed.
	ErrCodeRetrievalDown = -32002
)

// ProtocolError is an MCP protocol error with code and message.
type ProtocolError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError creates an invalid-params error with detail.
func NewInvalidParamsError(detail string) *ProtocolError {
	return &ProtocolError{Code: ErrCodeInvalidParams, Message: detail}
}

// MapError converts pipeline errors to protocol errors. Validation
// failures map to invalid params; a total retrieval outage gets its
// own code so clients can distinguish it from a server bug.
func MapError(err error) *ProtocolError {
	if err == nil {
		return nil
	}

	var perr *ProtocolError
	if errors.As(err, &perr) {
		return perr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &ProtocolError{Code: ErrCodeTimeout, Message: "request timed out"}
	}
	if errors.Is(err, context.Canceled) {
		return &ProtocolError{Code: ErrCodeTimeout, Message: "request was canceled"}
	}

	switch {
	case apperrors.GetCategory(err) == apperrors.CategoryValidation:
		return &ProtocolError{Code: ErrCodeInvalidParams, Message: err.Error()}
	case apperrors.GetCode(err) == apperrors.ErrCodeAllPathsFailed:
		return &ProtocolError{Code: ErrCodeRetrievalDown,
			Message: "all retrieval paths failed; check the index and collaborator services"}
	default:
		return &ProtocolError{Code: ErrCodeInternalError, Message: err.Error()}
	}
}
