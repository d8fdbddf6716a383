package errors

import (
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
		{"app error wins", Newf(ErrIntegrity, http.StatusConflict, "term %q", "cat"), http.StatusConflict},
		{"wrapped unknown model", fmt.Errorf("parsing: %w", ErrUnknownModel), http.StatusBadRequest},
		{"malformed run", ErrMalformedRun, http.StatusBadRequest},
		{"not found", ErrNotFound, http.StatusNotFound},
		{"timeout", ErrTimeout, http.StatusServiceUnavailable},
		{"integrity", ErrIntegrity, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := New(ErrInvalidInput, http.StatusBadRequest, "k must be positive")
	assert.True(t, Is(err, ErrInvalidInput))
	assert.Equal(t, "invalid input: k must be positive", err.Error())
}
