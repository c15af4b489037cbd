package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
)

func TestMapError_NilError(t *testing.T) {
	// Given: nil error
	var err error

	// When: mapping the error
	result := MapError(err)

	// Then: returns nil
	assert.Nil(t, result)
}

func TestMapError_KBErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		contains string
	}{
		{"not indexed", kberrors.NotIndexed("/kb/notes"), ErrCodeIndexNotFound, "amankb index /kb/notes"},
		{"embedding failed", kberrors.New(kberrors.ErrCodeEmbeddingFailed, "failed to embed query", nil), ErrCodeEmbeddingFailed, "embed"},
		{"network", kberrors.New(kberrors.ErrCodeNetworkUnavailable, "ollama unreachable", nil), ErrCodeTimeout, "ollama"},
		{"path denied", kberrors.PathDenied("/etc"), ErrCodeInvalidParams, "/etc"},
		{"malformed filter", kberrors.MalformedFilter("filter \"sharpe\" has no value"), ErrCodeInvalidParams, "sharpe"},
		{"empty query", kberrors.New(kberrors.ErrCodeQueryEmpty, "query is empty", nil), ErrCodeInvalidParams, "query is empty"},
		{"locked", kberrors.New(kberrors.ErrCodeLocked, "directory is being indexed", nil), ErrCodeBusy, "being indexed"},
		{"store failure", kberrors.New(kberrors.ErrCodeStoreFailed, "store failed", nil), ErrCodeInternalError, "store failed"},
		{"wrapped", fmt.Errorf("search: %w", kberrors.NotIndexed("/kb")), ErrCodeIndexNotFound, "not indexed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// When: mapping the error
			result := MapError(tt.err)

			// Then: the code and message follow the error
			require.NotNil(t, result)
			assert.Equal(t, tt.wantCode, result.Code)
			assert.Contains(t, result.Message, tt.contains)
			assert.NotContains(t, result.Message, "ERR_")
		})
	}
}

func TestMapError_ContextErrors(t *testing.T) {
	// Given: context errors
	deadline := MapError(context.DeadlineExceeded)
	canceled := MapError(fmt.Errorf("embed: %w", context.Canceled))

	// Then: both are reported as timeouts
	assert.Equal(t, ErrCodeTimeout, deadline.Code)
	assert.Contains(t, deadline.Message, "timed out")
	assert.Equal(t, ErrCodeTimeout, canceled.Code)
	assert.Contains(t, canceled.Message, "canceled")
}

func TestMapError_PassesThroughMCPError(t *testing.T) {
	// Given: an error that is already an MCP error
	orig := NewInvalidParamsError("directory is required")

	// When: mapping it
	result := MapError(orig)

	// Then: it is returned unchanged
	assert.Same(t, orig, result)
}

func TestMapError_UnknownError(t *testing.T) {
	// Given: a plain error
	err := errors.New("boom")

	// When: mapping it
	result := MapError(err)

	// Then: it becomes an internal error
	assert.Equal(t, ErrCodeInternalError, result.Code)
	assert.Equal(t, "boom", result.Message)
}

func TestMCPError_Error(t *testing.T) {
	err := &MCPError{Code: ErrCodeIndexNotFound, Message: "Directory not indexed"}
	assert.Equal(t, "MCP error -32001: Directory not indexed", err.Error())
	assert.Contains(t, NewResourceNotFoundError("kb://nope").Message, "kb://nope")
}
