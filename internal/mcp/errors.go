// Package mcp exposes knowledge indexing and search as Model Context
// Protocol tools.
package mcp

import (
	"context"
	"errors"
	"fmt"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
)

// Custom MCP error codes.
const (
	// ErrCodeIndexNotFound indicates the directory has no index.
	ErrCodeIndexNotFound = -32001

	// ErrCodeEmbeddingFailed indicates embedding generation failed.
	ErrCodeEmbeddingFailed = -32002

	// ErrCodeTimeout indicates the request timed out or the network failed.
	ErrCodeTimeout = -32003

	// ErrCodeFileNotFound indicates a directory or file does not exist.
	ErrCodeFileNotFound = -32004

	// ErrCodeBusy indicates another pass holds the directory.
	ErrCodeBusy = -32005

	// Standard JSON-RPC error codes.
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError is a tool failure with a JSON-RPC style code.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	var kbErr *kberrors.KBError
	if errors.As(err, &kbErr) {
		return mapKBError(kbErr)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: err.Error()}
	}
}

// NewInvalidParamsError creates an error for invalid parameters.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewResourceNotFoundError creates an error for unknown resources.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Resource '%s' not found.", uri)}
}

func mapKBError(ke *kberrors.KBError) *MCPError {
	message := ke.Message
	if ke.Suggestion != "" {
		message = fmt.Sprintf("%s. %s", ke.Message, ke.Suggestion)
	}

	switch ke.Code {
	case kberrors.ErrCodeNotIndexed:
		return &MCPError{Code: ErrCodeIndexNotFound, Message: message}
	case kberrors.ErrCodeEmbeddingFailed:
		return &MCPError{Code: ErrCodeEmbeddingFailed, Message: message}
	case kberrors.ErrCodeFileNotFound:
		return &MCPError{Code: ErrCodeFileNotFound, Message: message}
	case kberrors.ErrCodeLocked:
		return &MCPError{Code: ErrCodeBusy, Message: message}
	}

	switch ke.Category {
	case kberrors.CategoryNetwork:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	case kberrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case kberrors.CategoryIO:
		if ke.Code == kberrors.ErrCodePathDenied {
			return &MCPError{Code: ErrCodeInvalidParams, Message: message}
		}
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
