package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/telcosme/smecache/internal/catalog"
	"github.com/telcosme/smecache/internal/recommend"
	"github.com/telcosme/smecache/pkg/cache"
	"github.com/telcosme/smecache/pkg/httpcache"
)

// retryAfterSeconds is suggested to callers when the model is unavailable.
const retryAfterSeconds = "30"

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListPlans handles GET /api/v1/plans
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.catalog.List())
}

// GetPlan handles GET /api/v1/plans/{id}
func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	plan, err := h.catalog.Get(id)
	if err != nil {
		if errors.Is(err, catalog.ErrPlanNotFound) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, plan)
}

// PutPlan handles PUT /api/v1/plans/{id}. Only admins may change the
// catalogue. Cached plan reads are invalidated by the route's middleware;
// memoized recommendations are dropped here since they were scored against
// the old catalogue.
func (h *Handler) PutPlan(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(r) {
		respondError(w, http.StatusForbidden, "admin role required")
		return
	}

	id := mux.Vars(r)["id"]

	var plan catalog.Plan
	if err := json.NewDecoder(r.Body).Decode(&plan); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if plan.ID != "" && plan.ID != id {
		respondError(w, http.StatusBadRequest, "plan id does not match path")
		return
	}
	plan.ID = id

	saved, created, err := h.catalog.Upsert(plan)
	if err != nil {
		if errors.Is(err, catalog.ErrInvalidPlan) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.recommender.InvalidateAll()
	h.logger.Info().Str("plan_id", id).Bool("created", created).Msg("Plan saved")

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(w, status, saved)
}

// GetRecommendation handles GET /api/v1/customers/{id}/recommendations.
// Usage comes from the query: plan, data_gb, minutes, employees.
func (h *Handler) GetRecommendation(w http.ResponseWriter, r *http.Request) {
	profile, err := profileFromRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.recommender.Recommend(r.Context(), profile)
	if err != nil {
		switch {
		case errors.Is(err, recommend.ErrInvalidProfile):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, recommend.ErrNoPlans), recommend.IsRetryable(err):
			w.Header().Set("Retry-After", retryAfterSeconds)
			respondError(w, http.StatusServiceUnavailable, "recommendation temporarily unavailable")
		default:
			respondError(w, http.StatusBadGateway, "recommendation failed")
		}
		return
	}

	respondJSON(w, http.StatusOK, rec)
}

func profileFromRequest(r *http.Request) (recommend.Profile, error) {
	q := r.URL.Query()
	p := recommend.Profile{
		CustomerID:  mux.Vars(r)["id"],
		CurrentPlan: q.Get("plan"),
	}

	var err error
	if v := q.Get("data_gb"); v != "" {
		if p.DataGB, err = strconv.ParseFloat(v, 64); err != nil {
			return p, errors.New("data_gb must be a number")
		}
	}
	if v := q.Get("minutes"); v != "" {
		if p.Minutes, err = strconv.Atoi(v); err != nil {
			return p, errors.New("minutes must be an integer")
		}
	}
	if v := q.Get("employees"); v != "" {
		if p.Employees, err = strconv.Atoi(v); err != nil {
			return p, errors.New("employees must be an integer")
		}
	}
	return p, nil
}

// CacheStats handles GET /api/v1/cache/stats
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	stats := make([]cache.Stats, 0, len(h.engines))
	for _, e := range h.engines {
		stats = append(stats, e.Stats())
	}
	respondJSON(w, http.StatusOK, map[string]any{"caches": stats})
}

// ClearCache handles DELETE /api/v1/cache. Admin only.
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(r) {
		respondError(w, http.StatusForbidden, "admin role required")
		return
	}

	// Drop the shared tier first; local engines are emptied below
	if h.responses != nil {
		h.responses.InvalidateAll(r.Context())
	}

	cleared := make([]string, 0, len(h.engines))
	for _, e := range h.engines {
		e.Clear()
		cleared = append(cleared, e.Name())
	}

	principal, _ := httpcache.PrincipalFrom(r.Context())
	h.logger.Warn().Str("user_id", principal.ID).Strs("caches", cleared).Msg("Caches cleared")

	respondJSON(w, http.StatusOK, map[string]any{"cleared": cleared})
}

func isAdmin(r *http.Request) bool {
	p, ok := httpcache.PrincipalFrom(r.Context())
	return ok && p.IsAdmin()
}
