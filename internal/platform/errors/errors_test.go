package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name   string
		err    *Error
		typ    ErrorType
		status int
		cause  error
	}{
		{"validation", ValidationError("bad body"), TypeValidation, http.StatusBadRequest, nil},
		{"not found", NotFoundError("no route"), TypeNotFound, http.StatusNotFound, nil},
		{"rate limited", RateLimitedError("slow down"), TypeRateLimited, http.StatusTooManyRequests, nil},
		{"unavailable", UnavailableError("at capacity", cause), TypeUnavailable, http.StatusServiceUnavailable, cause},
		{"internal", InternalError("oops", cause), TypeInternal, http.StatusInternalServerError, cause},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.typ, tt.err.Type)
			assert.Equal(t, tt.status, tt.err.HTTPStatus())
			assert.Equal(t, tt.cause, tt.err.Cause)
			assert.NotNil(t, tt.err.Context)
		})
	}
}

func TestHTTPStatus_UnknownTypeIsInternal(t *testing.T) {
	err := &Error{Type: "mystery"}
	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus())
}

func TestWithFieldChaining(t *testing.T) {
	err := ValidationError("bad").WithField("entity", "cat").WithField("bytes", 12)

	assert.Equal(t, "cat", err.Context["entity"])
	assert.Equal(t, 12, err.Context["bytes"])
}

func TestWithFieldNilMap(t *testing.T) {
	err := &Error{Type: TypeValidation, Message: "bad"}
	err.WithField("k", "v")
	assert.Equal(t, "v", err.Context["k"])
}

func TestWithCause(t *testing.T) {
	cause := errors.New("limit reached")
	err := RateLimitedError("too many").WithCause(cause)
	assert.ErrorIs(t, err, cause)
}

func TestToResponse(t *testing.T) {
	resp := NotFoundError("no such route").WithField("path", "/nope").ToResponse()

	assert.Equal(t, "no such route", resp.Error)
	assert.Equal(t, TypeNotFound, resp.Type)
	assert.Equal(t, map[string]any{"path": "/nope"}, resp.Context)
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "validation: bad body", ValidationError("bad body").Error())
	assert.Equal(t, "internal: failed: boom", InternalError("failed", errors.New("boom")).Error())
}

func TestAsStructuredError(t *testing.T) {
	assert.Nil(t, AsStructuredError(nil))

	original := ValidationError("bad")
	assert.Same(t, original, AsStructuredError(original))

	wrapped := fmt.Errorf("handler: %w", original)
	assert.Same(t, original, AsStructuredError(wrapped))

	plain := errors.New("plain")
	converted := AsStructuredError(plain)
	require.NotNil(t, converted)
	assert.Equal(t, TypeInternal, converted.Type)
	assert.Equal(t, "internal server error", converted.Message)
	assert.ErrorIs(t, converted, plain)
}
