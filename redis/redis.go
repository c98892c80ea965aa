package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Connect returns a client for addr, or nil when redis is not reachable.
// The application keeps running without a cache in that case.
func Connect(ctx context.Context, addr string, log *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("Redis not available. Running without Redis.", zap.String("addr", addr), zap.Error(err))
		_ = client.Close()
		return nil
	}

	log.Info("Redis connected successfully.", zap.String("addr", addr))
	return client
}
