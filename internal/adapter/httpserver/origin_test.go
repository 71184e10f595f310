package httpserver

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCheckOrigin(t *testing.T) {
	allowed := []string{"https://pipeline.example.com", " https://status.example.com/ "}

	tests := []struct {
		name          string
		origin        string
		isDevelopment bool
		want          bool
	}{
		// Always allowed
		{"empty origin", "", false, true},
		{"same host", "http://notifier.internal:8080", false, true},
		{"configured origin", "https://pipeline.example.com", false, true},
		{"configured origin trimmed", "https://status.example.com", false, true},
		{"configured origin case", "HTTPS://Pipeline.Example.com", false, true},

		// Rejected in production
		{"different host", "https://evil.com", false, false},
		{"different port", "https://pipeline.example.com:9090", false, false},
		{"http instead of https", "http://pipeline.example.com", false, false},
		{"localhost prod rejected", "http://localhost:3000", false, false},

		// Development accepts anything
		{"localhost dev", "http://localhost:3000", true, true},
		{"any host dev", "https://evil.com", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewCheckOrigin(allowed, tt.isDevelopment)
			r, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "http://notifier.internal:8080/", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, checker(r))
		})
	}
}
