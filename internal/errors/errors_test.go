package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpstreamErrorMatchesSentinel(t *testing.T) {
	err := NewUpstreamError("yahoo", "AAPL", 3, ErrRateLimited)

	assert.True(t, Is(err, ErrUpstreamUnavailable))
	assert.True(t, Is(err, ErrRateLimited))
	assert.Contains(t, err.Error(), "3 attempt(s)")

	wrapped := Wrap(err, "fetching profile")
	assert.True(t, Is(wrapped, ErrUpstreamUnavailable))

	var upstream *UpstreamError
	assert.True(t, As(wrapped, &upstream))
	assert.Equal(t, "yahoo", upstream.Source)
}

func TestValuationErrorUnwrapsTaxonomy(t *testing.T) {
	err := NewValuationError("dcf", "non-positive free cash flow", ErrNumericDegenerate)

	assert.True(t, Is(err, ErrNumericDegenerate))
	assert.False(t, Is(err, ErrInsufficientData))
	assert.Equal(t, "valuation [dcf]: non-positive free cash flow", err.Error())
}

func TestValidationErrorUnwrapsToInputValidation(t *testing.T) {
	err := fmt.Errorf("config: %w", NewValidationError("ttl", -1, "must be positive"))
	assert.True(t, Is(err, ErrInputValidation))
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "context"))
	assert.NoError(t, Wrapf(nil, "context %d", 1))
}
