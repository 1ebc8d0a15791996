package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"ankaa/models"
)

// Scheduler runs a job again after a delay.
type Scheduler interface {
	Schedule(ctx context.Context, job models.DeliveryJob, delay time.Duration) error
}

// RedeliverFunc resubmits a job to its channel pool.
type RedeliverFunc func(ctx context.Context, job models.DeliveryJob) error

// binder is implemented by schedulers that call back into the dispatcher.
type binder interface {
	Bind(fn RedeliverFunc)
}

var errSchedulerUnbound = errors.New("scheduler has no redelivery target")

// TimerScheduler keeps pending retries in process timers. Pending retries are
// lost on restart; use the queue-backed scheduler when that matters.
type TimerScheduler struct {
	mu        sync.Mutex
	timers    map[*time.Timer]struct{}
	redeliver RedeliverFunc
	stopped   bool
	logger    *zap.Logger
}

func NewTimerScheduler(logger *zap.Logger) *TimerScheduler {
	return &TimerScheduler{
		timers: make(map[*time.Timer]struct{}),
		logger: logger.Named("scheduler"),
	}
}

// Bind sets the function called when a timer fires.
func (s *TimerScheduler) Bind(fn RedeliverFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redeliver = fn
}

func (s *TimerScheduler) Schedule(_ context.Context, job models.DeliveryJob, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrPoolClosed
	}
	if s.redeliver == nil {
		return errSchedulerUnbound
	}
	fn := s.redeliver

	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, t)
		s.mu.Unlock()

		if err := fn(context.Background(), job); err != nil {
			s.logger.Error("Failed to resubmit delivery",
				zap.String("notification_id", job.NotificationID),
				zap.String("channel", string(job.Channel)),
				zap.Error(err),
			)
		}
	})
	s.timers[t] = struct{}{}
	return nil
}

// Pending returns the number of armed timers.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every armed timer and refuses new ones.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for t := range s.timers {
		t.Stop()
	}
	if n := len(s.timers); n > 0 {
		s.logger.Warn("Dropped pending retries on shutdown", zap.Int("count", n))
	}
	s.timers = make(map[*time.Timer]struct{})
}
