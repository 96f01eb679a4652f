package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/telcosme/smecache/pkg/httpcache"
)

func TestMiddleware_RejectsWith429(t *testing.T) {
	l, _, _ := newTestLimiter(t, 10, Config{Rate: 0.5, Burst: 2})

	calls := 0
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/plans", nil)
		req.RemoteAddr = "192.0.2.10:51234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		codes = append(codes, w.Code)

		if w.Code == http.StatusTooManyRequests {
			if got := w.Header().Get("Retry-After"); got != "2" {
				t.Errorf("Retry-After = %q, want 2", got)
			}
		}
	}

	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("request %d status = %d, want %d", i+1, codes[i], want[i])
		}
	}
	if calls != 2 {
		t.Errorf("downstream called %d times, want 2", calls)
	}
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(r *http.Request) *http.Request
		wantKey string
	}{
		{
			name: "authenticated principal",
			setup: func(r *http.Request) *http.Request {
				r.Header.Set("X-Forwarded-For", "203.0.113.5")
				return r.WithContext(httpcache.WithPrincipal(r.Context(), httpcache.Principal{ID: "alice"}))
			},
			wantKey: "user:alice",
		},
		{
			name: "principal without id falls back to ip",
			setup: func(r *http.Request) *http.Request {
				return r.WithContext(httpcache.WithPrincipal(r.Context(), httpcache.Principal{}))
			},
			wantKey: "ip:192.0.2.1",
		},
		{
			name: "first forwarded address",
			setup: func(r *http.Request) *http.Request {
				r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
				return r
			},
			wantKey: "ip:203.0.113.5",
		},
		{
			name: "real ip header",
			setup: func(r *http.Request) *http.Request {
				r.Header.Set("X-Real-IP", "198.51.100.7")
				return r
			},
			wantKey: "ip:198.51.100.7",
		},
		{
			name:    "remote address",
			setup:   func(r *http.Request) *http.Request { return r },
			wantKey: "ip:192.0.2.1",
		},
		{
			name: "remote address without port",
			setup: func(r *http.Request) *http.Request {
				r.RemoteAddr = "unix-socket"
				return r
			},
			wantKey: "ip:unix-socket",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// httptest sets RemoteAddr to 192.0.2.1:1234
			req := tt.setup(httptest.NewRequest(http.MethodGet, "/", nil))
			if got := ClientKey(req); got != tt.wantKey {
				t.Errorf("ClientKey() = %q, want %q", got, tt.wantKey)
			}
		})
	}
}
