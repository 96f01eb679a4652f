package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/telcosme/smecache/pkg/httpcache"
)

// Middleware rejects requests from clients that exceeded their rate with
// 429 Too Many Requests and a Retry-After header.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(l.cfg.RetryAfter().Seconds()))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(ClientKey(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", retryAfter)
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientKey identifies the caller of r: the authenticated principal when
// there is one, otherwise the client IP.
func ClientKey(r *http.Request) string {
	if p, ok := httpcache.PrincipalFrom(r.Context()); ok && p.ID != "" {
		return "user:" + p.ID
	}
	return "ip:" + ClientIP(r)
}

// ClientIP returns the originating client address, honouring
// X-Forwarded-For and X-Real-IP set by a reverse proxy.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
