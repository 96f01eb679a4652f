//go:build integration

package httpcache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/telcosme/smecache/internal/testutil"
	"github.com/telcosme/smecache/pkg/cache"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

func newIntegrationEngine(t *testing.T) *cache.Engine {
	t.Helper()
	logger := zerolog.Nop()
	engine := cache.New(cache.Config{Name: t.Name(), SweepInterval: -1, Logger: &logger})
	t.Cleanup(func() { engine.Close() })
	return engine
}

// TestSharedTier_TwoReplicas runs two caches with separate engines against
// one Redis: a response captured by the first replica is served by the
// second without reaching its downstream, and a write on either replica
// invalidates both tiers.
func TestSharedTier_TwoReplicas(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	remote := NewRedisRemote(redisClient)
	logger := zerolog.Nop()

	a := New(newIntegrationEngine(t), WithRemote(remote), WithLogger(logger))
	b := New(newIntegrationEngine(t), WithRemote(remote), WithLogger(logger))

	upstreamA := testutil.NewUpstream()
	upstreamB := testutil.NewUpstream()
	patterns := func(r *http.Request) []string { return a.ResourcePatterns("/api/v1/plans") }

	handlerA := a.InvalidateOnWrite(patterns)(a.Middleware(upstreamA))
	handlerB := b.InvalidateOnWrite(patterns)(b.Middleware(upstreamB))

	serve(handlerA, httptest.NewRequest(http.MethodGet, "/api/v1/plans", nil))

	w := serve(handlerB, httptest.NewRequest(http.MethodGet, "/api/v1/plans", nil))
	if w.Header().Get(HeaderCache) != "HIT" {
		t.Fatalf("replica B %s = %q, want HIT from shared tier", HeaderCache, w.Header().Get(HeaderCache))
	}
	if upstreamB.Total() != 0 {
		t.Errorf("replica B downstream called %d times, want 0", upstreamB.Total())
	}

	serve(handlerB, httptest.NewRequest(http.MethodPut, "/api/v1/plans", nil))

	keys, err := redisClient.Keys(context.Background(), DefaultRemoteNamespace+"*").Result()
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("remote keys after invalidation = %v, want none", keys)
	}

	// Replica A still has its own local copy until its TTL; the shared tier is clean.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := remote.Get(ctx, a.Key(httptest.NewRequest(http.MethodGet, "/api/v1/plans", nil))); err != ErrRemoteMiss {
		t.Errorf("remote Get() error = %v, want ErrRemoteMiss", err)
	}
}
