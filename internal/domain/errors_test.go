package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorConstants(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"ErrInvalidArgument", ErrInvalidArgument, "invalid argument"},
		{"ErrNotFound", ErrNotFound, "not found"},
		{"ErrConflict", ErrConflict, "conflict"},
		{"ErrRateLimited", ErrRateLimited, "rate limited"},
		{"ErrUpstreamTimeout", ErrUpstreamTimeout, "upstream timeout"},
		{"ErrUpstreamRateLimit", ErrUpstreamRateLimit, "upstream rate limit"},
		{"ErrUpstreamPaymentRequired", ErrUpstreamPaymentRequired, "upstream payment required"},
		{"ErrSchemaInvalid", ErrSchemaInvalid, "schema invalid"},
		{"ErrPersistence", ErrPersistence, "persistence error"},
		{"ErrInternal", ErrInternal, "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.expected {
				t.Errorf("Expected %s to be %q, got %q", tt.name, tt.expected, tt.err.Error())
			}
		})
	}
}

func TestUpstreamError_UnwrapByStatus(t *testing.T) {
	tests := []struct {
		status    int
		target    error
		retryable bool
	}{
		{429, ErrUpstreamRateLimit, false},
		{402, ErrUpstreamPaymentRequired, false},
		{400, ErrUpstream, false},
		{500, ErrUpstream, true},
		{503, ErrUpstream, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			err := fmt.Errorf("op=model.generate: %w", &UpstreamError{Provider: "openai", Status: tt.status, Body: "x"})
			assert.True(t, errors.Is(err, tt.target))
			var ue *UpstreamError
			require.True(t, errors.As(err, &ue))
			assert.Equal(t, tt.retryable, ue.Retryable())
		})
	}
}

func TestParseError_KeepsRawAndUnwraps(t *testing.T) {
	err := fmt.Errorf("decode: %w", &ParseError{Raw: "I cannot score this", Reason: "no JSON object found"})
	assert.True(t, errors.Is(err, ErrSchemaInvalid))
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "I cannot score this", pe.Raw)
	assert.Contains(t, err.Error(), "no JSON object found")
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{fmt.Errorf("%w: id", ErrInvalidArgument), "INVALID_ARGUMENT"},
		{fmt.Errorf("op=submission.get: %w", ErrNotFound), "NOT_FOUND"},
		{ErrConflict, "CONFLICT"},
		{&UpstreamError{Status: 429}, "UPSTREAM_RATE_LIMIT"},
		{&UpstreamError{Status: 402}, "UPSTREAM_PAYMENT_REQUIRED"},
		{&UpstreamError{Status: 502}, "UPSTREAM_ERROR"},
		{ErrTransport, "UPSTREAM_ERROR"},
		{ErrUpstreamTimeout, "UPSTREAM_TIMEOUT"},
		{&ParseError{Reason: "x"}, "SCHEMA_INVALID"},
		{ErrPersistence, "PERSISTENCE_ERROR"},
		{errors.New("boom"), "INTERNAL"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, ErrorCode(tt.err), tt.err.Error())
	}
	assert.Equal(t, "", ErrorCode(nil))
}
