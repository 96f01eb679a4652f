// Package api exposes the SME plan service over HTTP: the plan catalogue,
// cached recommendations and cache administration.
package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/telcosme/smecache/internal/catalog"
	"github.com/telcosme/smecache/internal/recommend"
	"github.com/telcosme/smecache/pkg/cache"
	"github.com/telcosme/smecache/pkg/httpcache"
	"github.com/telcosme/smecache/pkg/logging"
	"github.com/telcosme/smecache/pkg/metrics"
	"github.com/telcosme/smecache/pkg/ratelimit"
)

// Headers carrying the caller identity set by the upstream gateway.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// Deps are the collaborators the router wires together.
type Deps struct {
	Catalog     *catalog.Catalog
	Recommender *recommend.Service

	// Responses caches API reads with the default HTTP TTL. Reference
	// caches slow-changing reference data (the plan catalogue) and must
	// share Responses' engine and prefix so write invalidation reaches both.
	Responses *httpcache.Cache
	Reference *httpcache.Cache

	// Limiter is optional; nil disables rate limiting.
	Limiter *ratelimit.Limiter

	// Engines are reported by the stats endpoint and emptied by the clear
	// endpoint.
	Engines []*cache.Engine

	Logger zerolog.Logger
}

// Handler serves the API endpoints.
type Handler struct {
	catalog     *catalog.Catalog
	recommender *recommend.Service
	responses   *httpcache.Cache
	engines     []*cache.Engine
	logger      zerolog.Logger
}

// NewHandler creates a Handler from deps.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		catalog:     deps.Catalog,
		recommender: deps.Recommender,
		responses:   deps.Responses,
		engines:     deps.Engines,
		logger:      deps.Logger,
	}
}

// NewRouter builds the full route table with its middleware chain:
// logging, principal extraction, rate limiting, write invalidation and the
// response cache, in that order.
func NewRouter(deps Deps) *mux.Router {
	h := NewHandler(deps)

	router := mux.NewRouter()
	router.Use(logging.Middleware(deps.Logger))

	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(PrincipalMiddleware)
	if deps.Limiter != nil {
		api.Use(deps.Limiter.Middleware)
	}

	SetupRoutes(api, h, deps.Responses, deps.Reference)

	return router
}

// SetupRoutes registers the /api/v1 routes on router.
func SetupRoutes(router *mux.Router, h *Handler, responses, reference *httpcache.Cache) {
	invalidatePlans := responses.InvalidateOnWrite(func(r *http.Request) []string {
		return responses.ResourcePatterns("/api/v1/plans")
	})

	// Plans
	router.Handle("/plans", reference.Middleware(http.HandlerFunc(h.ListPlans))).Methods(http.MethodGet)
	router.Handle("/plans/{id}", reference.Middleware(http.HandlerFunc(h.GetPlan))).Methods(http.MethodGet)
	router.Handle("/plans/{id}", invalidatePlans(http.HandlerFunc(h.PutPlan))).Methods(http.MethodPut)

	// Recommendations are memoized by the service, not the response cache
	router.HandleFunc("/customers/{id}/recommendations", h.GetRecommendation).Methods(http.MethodGet)

	// Cache administration
	router.HandleFunc("/cache/stats", h.CacheStats).Methods(http.MethodGet)
	router.HandleFunc("/cache", h.ClearCache).Methods(http.MethodDelete)
}

// PrincipalMiddleware attaches the caller named by the gateway headers to
// the request context. Requests without a user ID stay anonymous.
func PrincipalMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if id != "" {
			p := httpcache.Principal{
				ID:   id,
				Role: strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderUserRole))),
			}
			r = r.WithContext(httpcache.WithPrincipal(r.Context(), p))
		}
		next.ServeHTTP(w, r)
	})
}
