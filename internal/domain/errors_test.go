package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aelexs/websocket-gateway/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"ErrBacklogFull", domain.ErrBacklogFull, true},
		{"ErrRateLimited", domain.ErrRateLimited, true},
		{"ErrNoSubprotocol", domain.ErrNoSubprotocol, false},
		{"ErrSessionClosed", domain.ErrSessionClosed, false},
		{"wrapped ErrBacklogFull", fmt.Errorf("adopt: %w", domain.ErrBacklogFull), true},
		{"random error", errors.New("something else"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.IsRetryable(tt.err))
		})
	}
}

func TestIsClientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"ErrInvalidInput", domain.ErrInvalidInput, true},
		{"ErrNoSubprotocol", domain.ErrNoSubprotocol, true},
		{"ErrEmptyID", domain.ErrEmptyID, true},
		{"ErrBacklogFull", domain.ErrBacklogFull, false},
		{"wrapped ErrNoSubprotocol", fmt.Errorf("upgrade: %w", domain.ErrNoSubprotocol), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.IsClientError(tt.err))
		})
	}
}

func TestIsSessionGone(t *testing.T) {
	assert.True(t, domain.IsSessionGone(domain.ErrSessionClosed))
	assert.True(t, domain.IsSessionGone(fmt.Errorf("write: %w", domain.ErrShuttingDown)))
	assert.False(t, domain.IsSessionGone(domain.ErrWriteInFlight))
	assert.False(t, domain.IsSessionGone(nil))
}
