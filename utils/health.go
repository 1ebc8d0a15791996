package utils

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo"
)

// HealthStatus represents current status of external services.
type HealthStatus struct {
	Mongo     bool            `json:"mongo"`
	Redis     bool            `json:"redis"`
	Channels  map[string]bool `json:"channels"`
	CheckedAt time.Time       `json:"checkedAt"`
}

// ReadinessFunc reports per-channel transport readiness.
type ReadinessFunc func(ctx context.Context) map[string]bool

var (
	currentHealth HealthStatus
	mu            sync.RWMutex
)

// GetHealthStatus returns latest stored health snapshot.
func GetHealthStatus() HealthStatus {
	mu.RLock()
	defer mu.RUnlock()
	return currentHealth
}

// StartHealthMonitor performs periodic health checks until ctx is cancelled.
func StartHealthMonitor(ctx context.Context, redisClient *redis.Client, mongoClient *mongo.Client, channels ReadinessFunc, every time.Duration) {
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			checkHealth(ctx, redisClient, mongoClient, channels)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func checkHealth(ctx context.Context, redisClient *redis.Client, mongoClient *mongo.Client, channels ReadinessFunc) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	status := HealthStatus{CheckedAt: time.Now()}
	if redisClient != nil {
		status.Redis = redisClient.Ping(pingCtx).Err() == nil
	}
	if mongoClient != nil {
		status.Mongo = mongoClient.Ping(pingCtx, nil) == nil
	}
	if channels != nil {
		status.Channels = channels(pingCtx)
	}

	mu.Lock()
	currentHealth = status
	mu.Unlock()
}
