package recommend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/telcosme/smecache/internal/catalog"
)

// Prometheus metrics for model calls.
var (
	aiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smecache_ai_requests_total",
		Help: "Total recommendation model calls by status",
	}, []string{"status"})

	aiRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "smecache_ai_request_duration_seconds",
		Help:    "Recommendation model call duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})
)

// maxErrorBody bounds how much of an error response is kept as the message.
const maxErrorBody = 4 << 10

// Request is one recommendation to generate.
type Request struct {
	Prompt  string
	Profile Profile
}

// Generator produces recommendation text.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// HTTPConfig holds the model endpoint configuration.
type HTTPConfig struct {
	// Endpoint receives POST {"prompt": ..., "model": ...} and answers {"text": ...}
	Endpoint string

	// Model is passed through to the endpoint when set
	Model string

	// UserAgent identifies this service to the provider
	UserAgent string

	// Timeout bounds each attempt
	Timeout time.Duration

	// Retry controls retries of server, rate limit and network failures
	Retry RetryConfig
}

// DefaultHTTPConfig returns a configuration for endpoint with safe defaults.
func DefaultHTTPConfig(endpoint string) HTTPConfig {
	return HTTPConfig{
		Endpoint:  endpoint,
		UserAgent: "smecache-recommend/1.0",
		Timeout:   30 * time.Second,
		Retry:     DefaultRetryConfig(),
	}
}

// HTTPGenerator calls a generative model over HTTP.
type HTTPGenerator struct {
	httpClient *http.Client
	config     HTTPConfig
	logger     zerolog.Logger
}

type generateRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model,omitempty"`
}

type generateResponse struct {
	Text string `json:"text"`
}

// NewHTTPGenerator creates a generator for the configured endpoint.
func NewHTTPGenerator(cfg HTTPConfig) (*HTTPGenerator, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("endpoint must be an absolute http(s) URL, got %q", cfg.Endpoint)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "smecache-recommend/1.0"
	}

	return &HTTPGenerator{
		httpClient: &http.Client{},
		config:     cfg,
		logger:     log.With().Str("component", "recommend-generator").Logger(),
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (g *HTTPGenerator) SetHTTPClient(client *http.Client) {
	g.httpClient = client
}

// Generate sends the prompt to the model, retrying transient failures.
func (g *HTTPGenerator) Generate(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(generateRequest{Prompt: req.Prompt, Model: g.config.Model})
	if err != nil {
		return "", fmt.Errorf("encode prompt: %w", err)
	}

	var text string
	err = retryWithBackoff(ctx, g.config.Retry, g.logger, func() error {
		t, err := g.attempt(ctx, body)
		if err != nil {
			return err
		}
		text = t
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

func (g *HTTPGenerator) attempt(ctx context.Context, body []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		aiRequestDuration.Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", g.config.UserAgent)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		aiRequestsTotal.WithLabelValues("network_error").Inc()
		g.logger.Warn().Err(err).Str("endpoint", g.config.Endpoint).Msg("Model request failed")
		return "", &GeneratorError{Class: ErrorClassNetwork, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	aiRequestsTotal.WithLabelValues(fmt.Sprintf("%d", resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		errClass := classifyStatus(resp.StatusCode)

		g.logger.Warn().
			Int("status_code", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Model returned an error")

		return "", &GeneratorError{
			StatusCode: resp.StatusCode,
			Class:      errClass,
			Message:    strings.TrimSpace(string(msg)),
		}
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &GeneratorError{StatusCode: resp.StatusCode, Class: ErrorClassServer, Message: "invalid response body", Err: err}
	}
	text := strings.TrimSpace(out.Text)
	if text == "" {
		return "", &GeneratorError{StatusCode: resp.StatusCode, Class: ErrorClassServer, Message: "empty completion"}
	}

	g.logger.Debug().Int("status_code", resp.StatusCode).Dur("duration", time.Since(start)).Msg("Model call succeeded")
	return text, nil
}

// RuleGenerator recommends the cheapest catalogue plan that covers the
// customer's usage. It is used when no model endpoint is configured.
type RuleGenerator struct {
	Plans func() []catalog.Plan
}

// Generate implements Generator.
func (g RuleGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	plans := g.Plans()
	if len(plans) == 0 {
		return "", ErrNoPlans
	}

	p := req.Profile
	best, fits := cheapestCovering(plans, p)

	var b strings.Builder
	fmt.Fprintf(&b, "Recommended plan: %s (%s) at %.2f per month.", best.Name, best.ID, best.MonthlyPrice)

	current, hasCurrent := findPlan(plans, p.CurrentPlan)
	switch {
	case !fits:
		b.WriteString(" No plan fully covers your usage; this is the largest available.")
	case hasCurrent && current.ID == best.ID:
		b.WriteString(" Your current plan already fits your usage.")
	case hasCurrent && current.MonthlyPrice > best.MonthlyPrice:
		fmt.Fprintf(&b, " Switching saves %.2f per month.", current.MonthlyPrice-best.MonthlyPrice)
	case hasCurrent && !current.Covers(p.DataGB, p.Minutes, p.Employees):
		b.WriteString(" Your usage exceeds your current plan's allowance.")
	}
	return b.String(), nil
}

// cheapestCovering returns the cheapest plan covering p, or the most
// expensive plan and false when none does. plans must be ordered by price.
func cheapestCovering(plans []catalog.Plan, p Profile) (catalog.Plan, bool) {
	for _, plan := range plans {
		if plan.Covers(p.DataGB, p.Minutes, p.Employees) {
			return plan, true
		}
	}
	return plans[len(plans)-1], false
}

func findPlan(plans []catalog.Plan, id string) (catalog.Plan, bool) {
	for _, plan := range plans {
		if plan.ID == id {
			return plan, true
		}
	}
	return catalog.Plan{}, false
}

// compile-time interface checks
var (
	_ Generator = (*HTTPGenerator)(nil)
	_ Generator = RuleGenerator{}
)

// IsRetryable reports whether err is a generator failure worth retrying later.
func IsRetryable(err error) bool {
	var ge *GeneratorError
	return errors.As(err, &ge) && shouldRetry(ge.Class)
}
