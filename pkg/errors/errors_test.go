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
		{"wrapped store failure", fmt.Errorf("postings: %w", ErrStoreUnavailable), http.StatusServiceUnavailable},
		{"rebuild conflict", ErrRebuildInProgress, http.StatusConflict},
		{"bad cursor", fmt.Errorf("parse: %w", ErrInvalidCursor), http.StatusBadRequest},
		{"invalid document", ErrInvalidDocument, http.StatusUnprocessableEntity},
		{"app error wins", New(ErrInternal, http.StatusTeapot, "short and stout"), http.StatusTeapot},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(fmt.Errorf("hgetall: %w", ErrStoreUnavailable)))
	assert.True(t, IsTransient(ErrTimeout))
	assert.False(t, IsTransient(ErrInvalidDocument))
	assert.False(t, IsTransient(nil))
}
