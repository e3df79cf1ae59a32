package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error wins", New(ErrInternal, http.StatusInsufficientStorage, "full"), http.StatusInsufficientStorage},
		{"wrapped conflict", fmt.Errorf("registering: %w", ErrIdempotencyConflict), http.StatusConflict},
		{"invalid input", ErrInvalidInput, http.StatusBadRequest},
		{"unauthorized", fmt.Errorf("expired api key: %w", ErrUnauthorized), http.StatusUnauthorized},
		{"timeout", fmt.Errorf("shard: %w: %w", ErrTimeout, context.DeadlineExceeded), http.StatusServiceUnavailable},
		{"protocol", Protocolf("bad tag %q", 'x'), http.StatusBadGateway},
		{"remote", Remote("storage failed"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestRemote(t *testing.T) {
	err := fmt.Errorf("call: %w", Remote("unknown scheme"))
	assert.True(t, IsRemote(err))
	assert.False(t, IsRemote(ErrProtocol))
	assert.Equal(t, "call: unknown scheme", err.Error())
}

func TestAppError_Message(t *testing.T) {
	assert.Equal(t, "invalid input", New(ErrInvalidInput, 400, "").Error())
	assert.Equal(t, "invalid input: docno", New(ErrInvalidInput, 400, "docno").Error())
}
