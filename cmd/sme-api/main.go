package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/telcosme/smecache/internal/api"
	"github.com/telcosme/smecache/internal/catalog"
	"github.com/telcosme/smecache/internal/config"
	"github.com/telcosme/smecache/internal/recommend"
	"github.com/telcosme/smecache/pkg/cache"
	"github.com/telcosme/smecache/pkg/httpcache"
	"github.com/telcosme/smecache/pkg/logging"
	"github.com/telcosme/smecache/pkg/memo"
	"github.com/telcosme/smecache/pkg/ratelimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

// app holds the wired service and what must be released on shutdown.
type app struct {
	handler http.Handler
	engines []*cache.Engine
	redis   *redis.Client
}

func (a *app) Close() {
	for _, e := range a.engines {
		e.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
}

// newApp constructs the engines and facades and wires them into the router.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	newEngine := func(name string, ttl time.Duration) *cache.Engine {
		engineLogger := logging.Component(logger, "cache").With().Str("cache", name).Logger()
		return cache.New(cache.Config{
			Name:          name,
			MaxSize:       cfg.CacheMaxSize,
			DefaultTTL:    ttl,
			SweepInterval: cfg.SweepInterval(),
			Logger:        &engineLogger,
		})
	}

	a := &app{}
	responses := newEngine("responses", cfg.HTTPCacheTTL())
	recommendations := newEngine("recommendations", cfg.RecommendationTTL())
	limits := newEngine("ratelimit", ratelimit.DefaultIdleTTL)
	a.engines = []*cache.Engine{responses, recommendations, limits}

	cacheOpts := []httpcache.Option{
		httpcache.WithLogger(logging.Component(logger, "httpcache")),
	}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		a.redis = redis.NewClient(opts)

		// The shared tier is optional: start without it rather than fail
		if err := a.redis.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", opts.Addr).Msg("Redis unreachable, shared response tier degrades to misses")
		} else {
			logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
		}
		cacheOpts = append(cacheOpts, httpcache.WithRemote(httpcache.NewRedisRemote(a.redis)))
	}

	plans := catalog.New(catalog.DefaultPlans()...)
	generator, err := newGenerator(cfg, plans)
	if err != nil {
		a.Close()
		return nil, err
	}

	memoizer := memo.New(recommendations,
		memo.WithDefaultTTL(cfg.RecommendationTTL()),
		memo.WithLogger(logging.Component(logger, "memo")),
	)

	// Both facades share the responses engine and prefix so plan writes
	// invalidate reads cached by either.
	responseCache := httpcache.New(responses, append(slices.Clip(cacheOpts), httpcache.WithTTL(cfg.HTTPCacheTTL()))...)
	referenceCache := httpcache.New(responses, append(slices.Clip(cacheOpts), httpcache.WithTTL(cfg.ReferenceTTL()))...)

	a.handler = api.NewRouter(api.Deps{
		Catalog:     plans,
		Recommender: recommend.NewService(generator, memoizer, cfg.RecommendationTTL(), logging.Component(logger, "recommend")),
		Responses:   responseCache,
		Reference:   referenceCache,
		Limiter: ratelimit.New(limits, ratelimit.Config{
			Rate:  cfg.RateLimitPerSec,
			Burst: cfg.RateLimitBurst,
		}, logging.Component(logger, "ratelimit")),
		Engines: a.engines,
		Logger:  logging.Component(logger, "api"),
	})

	return a, nil
}

// newGenerator returns the model client, or the rule-based fallback when no
// endpoint is configured.
func newGenerator(cfg *config.Config, plans *catalog.Catalog) (recommend.Generator, error) {
	if cfg.AIEndpoint == "" {
		return recommend.RuleGenerator{Plans: plans.List}, nil
	}

	genCfg := recommend.DefaultHTTPConfig(cfg.AIEndpoint)
	genCfg.Timeout = cfg.AITimeout()
	gen, err := recommend.NewHTTPGenerator(genCfg)
	if err != nil {
		return nil, fmt.Errorf("create recommendation generator: %w", err)
	}
	return gen, nil
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Int("cache_max_size", cfg.CacheMaxSize).
			Bool("shared_tier", cfg.RedisURL != "").
			Bool("ai_endpoint", cfg.AIEndpoint != "").
			Msg("Starting SME API server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Dur("timeout", cfg.ShutdownTimeout()).Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
