package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"ankaa/config"
	"ankaa/models"
	"ankaa/services/notification/dispatch"
	"ankaa/services/tasks"
)

// RedisConnOpt returns the asynq connection for the redelivery queue.
func RedisConnOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisQueueDB,
	}
}

// AsynqScheduler persists retries in Redis so they survive restarts.
type AsynqScheduler struct {
	client *asynq.Client
	logger *zap.Logger
}

func NewAsynqScheduler(client *asynq.Client, logger *zap.Logger) *AsynqScheduler {
	return &AsynqScheduler{client: client, logger: logger.Named("asynq")}
}

func (s *AsynqScheduler) Schedule(ctx context.Context, job models.DeliveryJob, delay time.Duration) error {
	task, opts, err := tasks.NewRedeliveryTask(job, delay)
	if err != nil {
		return err
	}
	info, err := s.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		s.logger.Debug("Retry already queued", zap.String("task_id", tasks.TaskID(job)))
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue redelivery: %w", err)
	}
	s.logger.Debug("Retry queued",
		zap.String("task_id", info.ID),
		zap.String("queue", info.Queue),
		zap.Time("process_at", info.NextProcessAt),
	)
	return nil
}

// InitRedeliveryWorker runs the asynq server that hands due retries back to
// the dispatcher. It returns the server so the caller can shut it down.
func InitRedeliveryWorker(redeliver dispatch.RedeliverFunc, logger *zap.Logger) *asynq.Server {
	logger = logger.Named("redelivery_worker")
	srv := asynq.NewServer(
		RedisConnOpt(),
		asynq.Config{
			Concurrency: 10,
			Queues:      tasks.QueueWeights,
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeRedeliver, handleRedeliveryTask(redeliver, logger))

	go monitorRedisConnection(logger)

	go func() {
		logger.Info("Starting redelivery worker")
		const maxAttempts = 5

		for attempts := 1; attempts <= maxAttempts; attempts++ {
			if err := srv.Run(mux); err != nil {
				logger.Error("Redelivery worker failed to start",
					zap.Int("attempt", attempts),
					zap.Int("max_attempts", maxAttempts),
					zap.Error(err),
				)
				if attempts == maxAttempts {
					logger.Fatal("Max retry attempts reached for redelivery worker")
				}
				time.Sleep(time.Duration(attempts*2) * time.Second)
			} else {
				break
			}
		}
	}()
	return srv
}

func handleRedeliveryTask(redeliver dispatch.RedeliverFunc, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		job, err := tasks.ParseRedeliveryTask(task)
		if err != nil {
			logger.Error("Dropping invalid redelivery task", zap.Error(err))
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}

		logger.Debug("Redelivering",
			zap.String("notification_id", job.NotificationID),
			zap.String("channel", string(job.Channel)),
			zap.Int("attempts", job.Attempts),
		)
		return redeliver(ctx, job)
	}
}

// monitorRedisConnection pings Redis periodically to detect failures at runtime.
func monitorRedisConnection(logger *zap.Logger) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisQueueDB,
	})

	ctx := context.Background()
	for {
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis connection lost", zap.Error(err))
		}
		time.Sleep(10 * time.Second)
	}
}
