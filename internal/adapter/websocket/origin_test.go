package websocket

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCheckOrigin(t *testing.T) {
	appURL := "https://world.example.com/static/index.html"

	tests := []struct {
		name          string
		origin        string
		isDevelopment bool
		want          bool
	}{
		// Always allowed
		{"empty origin", "", false, true},
		{"app origin", "https://world.example.com", false, true},

		// Rejected in production
		{"different host", "https://evil.com", false, false},
		{"different port", "https://world.example.com:9090", false, false},
		{"http instead of https", "http://world.example.com", false, false},
		{"subdomain", "https://sub.world.example.com", false, false},

		// Localhost: allowed in dev, rejected in prod
		{"localhost dev", "http://localhost:8080", true, true},
		{"localhost no port dev", "http://localhost", true, true},
		{"127.0.0.1 dev", "http://127.0.0.1:3000", true, true},
		{"ipv6 loopback dev", "http://[::1]:3000", true, true},
		{"localhost prod rejected", "http://localhost:8080", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewCheckOrigin(appURL, tt.isDevelopment, nil)
			r, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "/subscribe", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, checker(r))
		})
	}
}

func TestNewCheckOrigin_ReportsRejections(t *testing.T) {
	var rejected []string
	checker := NewCheckOrigin("https://world.example.com", false, func(origin string) {
		rejected = append(rejected, origin)
	})

	for _, origin := range []string{"https://world.example.com", "https://evil.com"} {
		r, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "/subscribe", nil)
		r.Header.Set("Origin", origin)
		checker(r)
	}

	assert.Equal(t, []string{"https://evil.com"}, rejected)
}

func TestExtractOrigin_InvalidURL(t *testing.T) {
	assert.Empty(t, extractOrigin("not a url"))
	assert.Equal(t, "http://localhost:8080", extractOrigin("http://localhost:8080/some/path"))
}
