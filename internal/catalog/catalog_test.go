package catalog

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_ListOrderedByPrice(t *testing.T) {
	c := New(DefaultPlans()...)

	plans := c.List()
	require.Len(t, plans, 4)

	ids := make([]string, len(plans))
	for i, p := range plans {
		ids[i] = p.ID
		assert.False(t, p.UpdatedAt.IsZero(), "seeded plans get a timestamp")
	}
	assert.Equal(t, []string{"starter", "business", "business-plus", "enterprise"}, ids)
}

func TestCatalog_Get(t *testing.T) {
	c := New(DefaultPlans()...)

	p, err := c.Get("business")
	require.NoError(t, err)
	assert.Equal(t, "SME Business", p.Name)

	_, err = c.Get("nope")
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestCatalog_Upsert(t *testing.T) {
	c := New(DefaultPlans()...)

	updated, created, err := c.Upsert(Plan{ID: "starter", Name: "SME Starter", MonthlyPrice: 25, DataGB: 12, Minutes: 500, MaxUsers: 3})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 25.0, updated.MonthlyPrice)

	got, err := c.Get("starter")
	require.NoError(t, err)
	assert.Equal(t, 12.0, got.DataGB)

	_, created, err = c.Upsert(Plan{ID: "iot", Name: "IoT Pool", MonthlyPrice: 9, DataGB: 1})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Len(t, c.List(), 5)
}

func TestPlan_Validate(t *testing.T) {
	tests := []struct {
		name string
		plan Plan
		ok   bool
	}{
		{name: "valid", plan: Plan{ID: "a", Name: "A", MonthlyPrice: 1}, ok: true},
		{name: "missing id", plan: Plan{Name: "A"}},
		{name: "blank name", plan: Plan{ID: "a", Name: "  "}},
		{name: "negative price", plan: Plan{ID: "a", Name: "A", MonthlyPrice: -1}},
		{name: "negative data", plan: Plan{ID: "a", Name: "A", DataGB: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.plan.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, ErrInvalidPlan), "got %v", err)
		})
	}
}

func TestPlan_Covers(t *testing.T) {
	limited := Plan{DataGB: 10, Minutes: 500, MaxUsers: 3}
	unlimited := Plan{Unlimited: true, Minutes: 500, MaxUsers: 3}

	assert.True(t, limited.Covers(10, 500, 3))
	assert.False(t, limited.Covers(10.5, 100, 1))
	assert.False(t, limited.Covers(1, 501, 1))
	assert.False(t, limited.Covers(1, 1, 4))
	assert.True(t, unlimited.Covers(1000, 10, 1))
}

func TestCatalog_ConcurrentAccess(t *testing.T) {
	c := New(DefaultPlans()...)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.Upsert(Plan{ID: "business", Name: "SME Business", MonthlyPrice: float64(50 + j)})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.List()
				c.Get("business")
			}
		}()
	}
	wg.Wait()

	assert.Len(t, c.List(), 4)
}
