// Package catalog holds the tariff plans offered to SME customers.
// Plans change rarely, which makes their read endpoints the main consumer
// of the long-lived reference cache.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	// ErrPlanNotFound is returned when no plan has the requested ID
	ErrPlanNotFound = errors.New("plan not found")

	// ErrInvalidPlan is returned when a plan fails validation
	ErrInvalidPlan = errors.New("invalid plan")
)

// Plan is a tariff plan.
type Plan struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MonthlyPrice float64   `json:"monthly_price"`
	DataGB       float64   `json:"data_gb"`   // ignored when UnlimitedData
	Minutes      int       `json:"minutes"`   // voice minutes per month
	MaxUsers     int       `json:"max_users"` // seats included
	Unlimited    bool      `json:"unlimited_data"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Validate checks the plan's fields.
func (p Plan) Validate() error {
	switch {
	case strings.TrimSpace(p.ID) == "":
		return fmt.Errorf("%w: id is required", ErrInvalidPlan)
	case strings.TrimSpace(p.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidPlan)
	case p.MonthlyPrice < 0:
		return fmt.Errorf("%w: negative price %.2f", ErrInvalidPlan, p.MonthlyPrice)
	case p.DataGB < 0 || p.Minutes < 0 || p.MaxUsers < 0:
		return fmt.Errorf("%w: allowances must not be negative", ErrInvalidPlan)
	}
	return nil
}

// Covers reports whether the plan's allowances fit the given monthly usage.
func (p Plan) Covers(dataGB float64, minutes, users int) bool {
	if !p.Unlimited && p.DataGB < dataGB {
		return false
	}
	return p.Minutes >= minutes && p.MaxUsers >= users
}

// Catalog is an in-memory, concurrency-safe plan store.
type Catalog struct {
	mu    sync.RWMutex
	plans map[string]Plan
	now   func() time.Time
}

// New creates a catalog seeded with plans.
func New(plans ...Plan) *Catalog {
	c := &Catalog{
		plans: make(map[string]Plan, len(plans)),
		now:   time.Now,
	}
	for _, p := range plans {
		if p.UpdatedAt.IsZero() {
			p.UpdatedAt = c.now()
		}
		c.plans[p.ID] = p
	}
	return c
}

// List returns every plan ordered by price, then ID.
func (c *Catalog) List() []Plan {
	c.mu.RLock()
	defer c.mu.RUnlock()

	plans := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		plans = append(plans, p)
	}
	sort.Slice(plans, func(i, j int) bool {
		if plans[i].MonthlyPrice != plans[j].MonthlyPrice {
			return plans[i].MonthlyPrice < plans[j].MonthlyPrice
		}
		return plans[i].ID < plans[j].ID
	})
	return plans
}

// Get returns the plan with the given ID.
func (c *Catalog) Get(id string) (Plan, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.plans[id]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %s", ErrPlanNotFound, id)
	}
	return p, nil
}

// Upsert validates and stores p, reporting whether it was newly created.
func (c *Catalog) Upsert(p Plan) (Plan, bool, error) {
	if err := p.Validate(); err != nil {
		return Plan{}, false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, exists := c.plans[p.ID]
	p.UpdatedAt = c.now()
	c.plans[p.ID] = p
	return p, !exists, nil
}

// DefaultPlans is the starter catalogue.
func DefaultPlans() []Plan {
	return []Plan{
		{ID: "starter", Name: "SME Starter", MonthlyPrice: 29, DataGB: 10, Minutes: 500, MaxUsers: 3},
		{ID: "business", Name: "SME Business", MonthlyPrice: 59, DataGB: 50, Minutes: 2000, MaxUsers: 10},
		{ID: "business-plus", Name: "SME Business Plus", MonthlyPrice: 99, DataGB: 150, Minutes: 5000, MaxUsers: 25},
		{ID: "enterprise", Name: "SME Enterprise", MonthlyPrice: 199, Unlimited: true, Minutes: 20000, MaxUsers: 100},
	}
}
