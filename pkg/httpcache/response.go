package httpcache

import (
	"bytes"
	"net/http"
	"strconv"
	"time"
)

// HeaderCache reports whether a response was served from cache ("HIT") or
// produced by the downstream handler ("MISS").
const HeaderCache = "X-Cache"

// DefaultMaxBodyBytes bounds the size of a response body that will be cached.
const DefaultMaxBodyBytes = 1 << 20

// headers that are never stored with a cached response
var skippedHeaders = map[string]bool{
	"Set-Cookie":     true,
	"Date":           true,
	"Content-Length": true,
	"Connection":     true,
	HeaderCache:      true,
}

// Response is a captured downstream response.
type Response struct {
	// StatusCode is the HTTP status code of the cached response
	StatusCode int `json:"status_code"`

	// Header are the response headers worth replaying
	Header http.Header `json:"header"`

	// Body is the response body
	Body []byte `json:"body"`

	// CachedAt is when we captured this response
	CachedAt time.Time `json:"cached_at"`
}

// Replay writes the cached response to w, marking it as a cache hit.
func (r *Response) Replay(w http.ResponseWriter) {
	for key, values := range r.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.Header().Set(HeaderCache, "HIT")
	w.Header().Set("Content-Length", strconv.Itoa(len(r.Body)))
	if !r.CachedAt.IsZero() {
		age := int(time.Since(r.CachedAt).Seconds())
		if age < 0 {
			age = 0
		}
		w.Header().Set("Age", strconv.Itoa(age))
	}

	w.WriteHeader(r.StatusCode)
	w.Write(r.Body)
}

// isSuccess reports whether status is 2xx.
func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// recorder wraps a ResponseWriter, passing everything through while
// remembering the status and, when capturing, a copy of the body.
type recorder struct {
	http.ResponseWriter

	status      int
	wroteHeader bool

	capture  bool
	maxBody  int
	body     bytes.Buffer
	overflow bool
}

func newRecorder(w http.ResponseWriter, capture bool, maxBody int) *recorder {
	return &recorder{
		ResponseWriter: w,
		capture:        capture,
		maxBody:        maxBody,
	}
}

func (r *recorder) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.status = code
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	if r.capture && !r.overflow {
		if r.body.Len()+len(b) > r.maxBody {
			r.overflow = true
			r.body.Reset()
		} else {
			r.body.Write(b)
		}
	}
	return r.ResponseWriter.Write(b)
}

// Flush lets streaming handlers keep working behind the middleware.
func (r *recorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (r *recorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Status returns the response status, 200 if the handler never set one.
func (r *recorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// response converts the captured output to a cacheable Response.
// Returns nil if the response must not be cached.
func (r *recorder) response() *Response {
	if !r.capture || r.overflow || !isSuccess(r.Status()) {
		return nil
	}

	header := make(http.Header)
	for key, values := range r.ResponseWriter.Header() {
		if skippedHeaders[http.CanonicalHeaderKey(key)] {
			continue
		}
		header[key] = append([]string(nil), values...)
	}

	return &Response{
		StatusCode: r.Status(),
		Header:     header,
		Body:       bytes.Clone(r.body.Bytes()),
		CachedAt:   time.Now(),
	}
}
