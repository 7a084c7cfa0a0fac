package redis

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	redislib "github.com/redis/go-redis/v9"

	redisinfra "github.com/iho/goescrow/internal/infrastructure/redis"
)

// newTestRedisClient connects the way the server does, against miniredis.
// Callers close both.
func newTestRedisClient(t *testing.T) (*redislib.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := redisinfra.NewClient(context.Background(), redisinfra.Options{
		URL:      "redis://" + mr.Addr(),
		PoolSize: 4,
	})
	if err != nil {
		t.Fatalf("failed to connect to miniredis: %v", err)
	}

	return client, mr
}
