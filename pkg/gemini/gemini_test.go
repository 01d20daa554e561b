package gemini

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/harrisonrobin/taskdeck/pkg/apperr"
)

func TestNewRequiresKey(t *testing.T) {
	_, err := New(context.Background(), "", "")
	var aerr *apperr.AIResponseError
	require.ErrorAs(t, err, &aerr)
	assert.False(t, aerr.Retryable)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"throttled", genai.APIError{Code: 429}, true},
		{"server", fmt.Errorf("wrapped: %w", genai.APIError{Code: 503}), true},
		{"bad key", genai.APIError{Code: 403}, false},
		{"bad request", &genai.APIError{Code: 400}, false},
		{"transport", errors.New("connection reset"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(context.Background(), tt.err)
			var aerr *apperr.AIResponseError
			require.ErrorAs(t, err, &aerr)
			assert.Equal(t, tt.retryable, aerr.Retryable)
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var aerr *apperr.AIResponseError
	require.ErrorAs(t, classify(ctx, errors.New("x")), &aerr)
	assert.True(t, aerr.Retryable)
}
