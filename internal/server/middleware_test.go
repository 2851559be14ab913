package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_CORSMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		corsOrigin     string
		method         string
		shouldCallNext bool
	}{
		{"GET request with CORS headers", "*", http.MethodGet, true},
		{"POST request with specific origin", "https://example.com", http.MethodPost, true},
		{"OPTIONS request (preflight)", "*", http.MethodOptions, false},
		{"empty CORS origin", "", http.MethodGet, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := &Server{corsOrigin: tt.corsOrigin}

			nextCalled := false
			next := func(w http.ResponseWriter, r *http.Request) {
				nextCalled = true
				w.WriteHeader(http.StatusOK)
			}

			w := httptest.NewRecorder()
			server.corsMiddleware(next)(w, httptest.NewRequest(tt.method, "/test", nil))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.corsOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "GET, POST, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
			assert.Equal(t, "Content-Type, Authorization", w.Header().Get("Access-Control-Allow-Headers"))
			assert.Equal(t, tt.shouldCallNext, nextCalled)
		})
	}
}

func TestServer_CORSMiddleware_RecordsStatus(t *testing.T) {
	server := &Server{corsOrigin: "*"}
	counter := httpRequestsTotal.WithLabelValues(http.MethodPost, "/cors-status", "500")
	before := promtest.ToFloat64(counter)

	w := httptest.NewRecorder()
	server.corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})(w, httptest.NewRequest(http.MethodPost, "/cors-status", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.InDelta(t, before+1, promtest.ToFloat64(counter), 1e-9)
}

func TestServer_RateLimitMiddleware(t *testing.T) {
	server := &Server{rateLimiter: NewRateLimiter(1, 0, 0, 0)}
	calls := 0
	handler := server.rateLimitMiddleware(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})
	hits := rateLimitHits.WithLabelValues("minute")
	before := promtest.ToFloat64(hits)

	newReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/v1/reconstruct", nil)
		req.RemoteAddr = "192.0.2.7:5555"
		return req
	}

	w := httptest.NewRecorder()
	handler(w, newReq())
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	handler(w, newReq())
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "minute", w.Header().Get("X-RateLimit-Type"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "rate_limit_exceeded", body["error"])

	assert.Equal(t, 1, calls)
	assert.InDelta(t, before+1, promtest.ToFloat64(hits), 1e-9)

	// another client is unaffected
	req := newReq()
	req.RemoteAddr = "192.0.2.8:5555"
	w = httptest.NewRecorder()
	handler(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_RateLimitMiddleware_DataQuota(t *testing.T) {
	server := &Server{rateLimiter: NewRateLimiter(0, 0, 0, 100)}
	handler := server.rateLimitMiddleware(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/reconstruct", nil)
	req.ContentLength = 200
	w := httptest.NewRecorder()
	handler(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "data", w.Header().Get("X-Quota-Type"))
	assert.Equal(t, "100", w.Header().Get("X-Quota-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-Quota-Used"))
}

func TestServer_RateLimitMiddleware_Disabled(t *testing.T) {
	server := &Server{}
	called := false
	w := httptest.NewRecorder()
	server.rateLimitMiddleware(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})(w, httptest.NewRequest(http.MethodPost, "/v1/reconstruct", nil))
	assert.True(t, called)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{"remote addr", nil, "10.0.0.1:1234", "10.0.0.1"},
		{"remote addr without port", nil, "10.0.0.1", "10.0.0.1"},
		{"forwarded for", map[string]string{"X-Forwarded-For": "203.0.113.5"}, "10.0.0.1:1234", "203.0.113.5"},
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.2"}, "10.0.0.1:1234", "203.0.113.5"},
		{"real ip", map[string]string{"X-Real-IP": " 198.51.100.9 "}, "10.0.0.1:1234", "198.51.100.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(req))
		})
	}
}

func BenchmarkServer_CORSMiddleware(b *testing.B) {
	server := &Server{corsOrigin: "*"}
	handler := server.corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/test", nil)

	b.ResetTimer()
	for range b.N {
		handler(httptest.NewRecorder(), req)
	}
}
