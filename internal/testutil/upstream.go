// Package testutil provides test doubles for the cache's downstream collaborators.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock upstream response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// Upstream is a configurable handler that counts the requests it serves.
// It stands in for the business handlers or the AI provider behind a cache.
type Upstream struct {
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	counts   map[string]int
	total    int

	server *httptest.Server
}

// NewUpstream creates an upstream whose unconfigured paths answer 200 with
// a small JSON body.
func NewUpstream() *Upstream {
	return &Upstream{
		handlers: make(map[string]http.HandlerFunc),
		counts:   make(map[string]int),
	}
}

// ServeHTTP implements http.Handler.
func (u *Upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	u.total++
	u.counts[r.Method+" "+r.URL.Path]++
	handler, exists := u.handlers[r.URL.Path]
	u.mu.Unlock()

	if exists {
		handler(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "ok"}`))
}

// Start serves the upstream over HTTP and returns its base URL.
func (u *Upstream) Start() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.server == nil {
		u.server = httptest.NewServer(u)
	}
	return u.server.URL
}

// Close shuts down the server started by Start.
func (u *Upstream) Close() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.server != nil {
		u.server.Close()
		u.server = nil
	}
}

// SetHandler sets a custom handler for a specific path.
func (u *Upstream) SetHandler(path string, handler http.HandlerFunc) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (u *Upstream) SetResponse(path string, resp MockResponse) {
	u.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetSequence answers successive requests to path with the given responses,
// repeating the last one once the sequence is exhausted.
func (u *Upstream) SetSequence(path string, responses ...MockResponse) {
	var mu sync.Mutex
	next := 0
	u.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := responses[next]
		if next < len(responses)-1 {
			next++
		}
		mu.Unlock()

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		w.Write([]byte(resp.Body))
	})
}

// Count returns how many requests reached method+path.
func (u *Upstream) Count(method, path string) int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.counts[method+" "+path]
}

// Total returns the number of requests served.
func (u *Upstream) Total() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.total
}

// Reset clears all tracking counters.
func (u *Upstream) Reset() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.total = 0
	u.counts = make(map[string]int)
}

// NewJSONResponse creates a standard 200 OK JSON response.
func NewJSONResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewBadRequestResponse creates a 400 Bad Request response.
func NewBadRequestResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusBadRequest,
		Body:       `{"error": "Bad request"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}
