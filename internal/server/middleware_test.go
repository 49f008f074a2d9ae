package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/raaihank/piiwatch/internal/config"
	"github.com/stretchr/testify/assert"
)

func fromPeer(t *testing.T, srv *Server, peer, forwarded string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.RemoteAddr = peer
	if forwarded != "" {
		req.Header.Set("X-Forwarded-For", forwarded)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimitIgnoresForwardedHeaders(t *testing.T) {
	srv, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMin: 60, Burst: 2}
	})

	for i := 0; i < 5; i++ {
		code := fromPeer(t, srv, "203.0.113.7:5000", fmt.Sprintf("10.0.0.%d", i))
		if i < 2 {
			assert.Equal(t, http.StatusOK, code, "request %d", i)
		} else {
			assert.Equal(t, http.StatusTooManyRequests, code, "request %d", i)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.RemoteAddr = "203.0.113.7:6000"
	req.Header.Set("X-Real-IP", "10.9.9.9")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRateLimitTrustedProxy(t *testing.T) {
	srv, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMin: 60, Burst: 1}
		cfg.Server.TrustedProxies = []string{"203.0.113.0/24", "2001:db8::1"}
	})

	assert.Equal(t, http.StatusOK, fromPeer(t, srv, "203.0.113.7:5000", "10.0.0.1"))
	assert.Equal(t, http.StatusOK, fromPeer(t, srv, "203.0.113.8:5000", "10.0.0.2, 203.0.113.7"))
	assert.Equal(t, http.StatusTooManyRequests, fromPeer(t, srv, "203.0.113.9:5000", "10.0.0.1"))
	assert.Equal(t, http.StatusOK, fromPeer(t, srv, "[2001:db8::1]:443", "10.0.0.3"))

	// untrusted peers are keyed by address even when they send the header
	assert.Equal(t, http.StatusOK, fromPeer(t, srv, "198.51.100.4:5000", "10.0.0.4"))
	assert.Equal(t, http.StatusTooManyRequests, fromPeer(t, srv, "198.51.100.4:5001", "10.0.0.5"))
}

func TestParseTrustedProxies(t *testing.T) {
	nets := parseTrustedProxies([]string{"10.0.0.0/8", " 127.0.0.1 ", "::1", "bogus"})
	assert.Len(t, nets, 3)
	assert.Equal(t, "127.0.0.1/32", nets[1].String())
	assert.Equal(t, "::1/128", nets[2].String())
}
