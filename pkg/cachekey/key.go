// Package cachekey builds deterministic cache keys from HTTP request shapes
// and from arbitrary payloads such as AI prompts.
package cachekey

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// AnonymousPrincipal is used in request keys when no user is authenticated.
const AnonymousPrincipal = "anonymous"

// ErrUnencodable indicates a payload could not be serialized for hashing.
var ErrUnencodable = errors.New("payload cannot be encoded")

// Request is the part of an HTTP request that discriminates cached responses.
type Request struct {
	// Method is the HTTP method (case-insensitive)
	Method string

	// Path is the request path (e.g., "/api/v1/plans/42")
	Path string

	// Principal is the authenticated user ID ("" for anonymous)
	Principal string

	// Query are the query parameters
	Query url.Values

	// Body is the raw request body; only used for non-GET/HEAD methods
	Body []byte
}

// String generates a deterministic cache key string.
// Format: METHOD:path:principal:query:body=<md5>
//
// The query is URL-encoded with keys and values sorted, and ":" and "%" are
// escaped in path and principal, so component separators are unambiguous.
//
// Example:
//
//	GET:/api/v1/plans:anonymous:page=2&sort=price
func (r Request) String() string {
	method := strings.ToUpper(r.Method)
	if method == "" {
		method = http.MethodGet
	}

	principal := r.Principal
	if principal == "" {
		principal = AnonymousPrincipal
	}

	parts := []string{method, EscapeComponent(NormalizePath(r.Path)), EscapeComponent(principal)}

	if len(r.Query) > 0 {
		sorted := make(url.Values, len(r.Query))
		for key, values := range r.Query {
			values = append([]string(nil), values...)
			sort.Strings(values)
			sorted[key] = values
		}
		parts = append(parts, sorted.Encode())
	}

	// Reads are identified by URL alone; writes also by content
	if method != http.MethodGet && method != http.MethodHead && len(r.Body) > 0 {
		parts = append(parts, "body="+hashBody(r.Body))
	}

	return strings.Join(parts, ":")
}

var componentEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// EscapeComponent escapes the key separator in a path or principal.
// Slashes are kept so path prefixes stay matchable.
func EscapeComponent(s string) string {
	return componentEscaper.Replace(s)
}

// ForRequest returns the key for r under prefix.
func ForRequest(prefix string, r Request) string {
	return join(prefix, r.String())
}

// ForPayload returns prefix joined with the content hash of payload.
// Payloads that differ only in field order or whitespace share a key.
func ForPayload(prefix string, payload any) (string, error) {
	sum, err := Hash(payload)
	if err != nil {
		return "", err
	}
	return join(prefix, sum), nil
}

// Hash returns the hex-encoded 128-bit MD5 of payload's canonical form.
func Hash(payload any) (string, error) {
	canonical, err := Canonicalize(payload)
	if err != nil {
		return "", err
	}
	sum := md5.Sum(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Canonicalize returns a stable byte form of payload: strings are trimmed
// and internal whitespace runs collapsed, and objects are re-encoded with
// sorted keys.
func Canonicalize(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case string:
		return []byte(normalizeSpace(p)), nil
	case []byte:
		return []byte(normalizeSpace(string(p))), nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnencodable, err)
	}
	return canonicalJSON(raw)
}

// canonicalJSON decodes raw into generic values and re-encodes it.
// encoding/json writes map keys in sorted order.
func canonicalJSON(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnencodable, err)
	}

	out, err := json.Marshal(normalizeValue(generic))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnencodable, err)
	}
	return out, nil
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case string:
		return normalizeSpace(val)
	case map[string]any:
		for k, inner := range val {
			val[k] = normalizeValue(inner)
		}
		return val
	case []any:
		for i, inner := range val {
			val[i] = normalizeValue(inner)
		}
		return val
	default:
		return val
	}
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizePath strips trailing slashes; the empty path and "/" become "/".
func NormalizePath(path string) string {
	if path == "" {
		return "/"
	}
	trimmed := strings.TrimRight(path, "/")
	if trimmed == "" {
		return "/"
	}
	return trimmed
}

// hashBody hashes a request body, canonicalizing it first when it is JSON.
func hashBody(body []byte) string {
	canonical, err := canonicalJSON(body)
	if err != nil {
		canonical = body
	}
	sum := md5.Sum(canonical)
	return hex.EncodeToString(sum[:])
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + ":" + key
}
