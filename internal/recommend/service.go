// Package recommend produces plan recommendations for SME customers from a
// generative model and memoizes them, so equivalent requests within the
// recommendation TTL never reach the model twice.
package recommend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/telcosme/smecache/pkg/memo"
)

// MemoPrefix namespaces memoized recommendations.
const MemoPrefix = "recommendation"

// DefaultTTL is how long a recommendation is reused.
const DefaultTTL = time.Hour

// Profile is a customer's monthly usage.
type Profile struct {
	CustomerID  string  `json:"customer_id"`
	CurrentPlan string  `json:"current_plan"`
	DataGB      float64 `json:"data_gb"`
	Minutes     int     `json:"minutes"`
	Employees   int     `json:"employees"`
}

// Validate checks that the profile can be scored.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.CustomerID) == "" {
		return fmt.Errorf("%w: customer id is required", ErrInvalidProfile)
	}
	if p.DataGB < 0 || p.Minutes < 0 || p.Employees < 0 {
		return fmt.Errorf("%w: usage must not be negative", ErrInvalidProfile)
	}
	return nil
}

// Recommendation is a generated plan recommendation.
type Recommendation struct {
	CustomerID  string    `json:"customer_id"`
	Text        string    `json:"text"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Service memoizes recommendations produced by a Generator.
type Service struct {
	generator Generator
	memo      *memo.Memoizer
	ttl       time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

// NewService creates a recommendation service. A ttl of 0 uses DefaultTTL.
func NewService(generator Generator, m *memo.Memoizer, ttl time.Duration, logger zerolog.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		generator: generator,
		memo:      m,
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
	}
}

// BuildPrompt renders the model prompt for a profile.
func BuildPrompt(p Profile) string {
	current := p.CurrentPlan
	if current == "" {
		current = "none"
	}
	return fmt.Sprintf(`You advise small businesses on mobile tariffs.
Customer %s is on plan %q with %d employees.
Monthly usage: %.1f GB data, %d voice minutes.
Recommend the best-fitting plan and give one concrete cost-saving tip.`,
		p.CustomerID, current, p.Employees, p.DataGB, p.Minutes)
}

// memoInput identifies a recommendation. The prompt rounds usage for
// readability, so the exact profile is part of the key as well.
type memoInput struct {
	Prompt  string  `json:"prompt"`
	Profile Profile `json:"profile"`
}

// Recommend returns a recommendation for p, generating it on a miss.
// Generator failures are returned as is and not memoized.
func (s *Service) Recommend(ctx context.Context, p Profile) (Recommendation, error) {
	if err := p.Validate(); err != nil {
		return Recommendation{}, err
	}

	prompt := BuildPrompt(p)
	input := memoInput{Prompt: prompt, Profile: p}
	return memo.GetOrCompute(ctx, s.memo, MemoPrefix, input, s.ttl, func(ctx context.Context) (Recommendation, error) {
		s.logger.Debug().Str("customer_id", p.CustomerID).Msg("Generating recommendation")

		text, err := s.generator.Generate(ctx, Request{Prompt: prompt, Profile: p})
		if err != nil {
			s.logger.Error().Err(err).Str("customer_id", p.CustomerID).Msg("Recommendation generation failed")
			return Recommendation{}, err
		}
		return Recommendation{
			CustomerID:  p.CustomerID,
			Text:        text,
			GeneratedAt: s.now(),
		}, nil
	})
}

// Forget drops the memoized recommendation for p.
func (s *Service) Forget(p Profile) bool {
	return s.memo.Forget(MemoPrefix, memoInput{Prompt: BuildPrompt(p), Profile: p})
}

// InvalidateAll drops every memoized recommendation, e.g. after the plan
// catalogue changed.
func (s *Service) InvalidateAll() int {
	n := s.memo.ForgetPrefix(MemoPrefix)
	if n > 0 {
		s.logger.Info().Int("removed", n).Msg("Invalidated memoized recommendations")
	}
	return n
}
