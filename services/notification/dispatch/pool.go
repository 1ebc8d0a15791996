package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"ankaa/models"
)

const (
	defaultWorkers    = 1
	defaultBufferSize = 256
	drainTimeout      = 30 * time.Second
)

// ErrPoolClosed is returned by Submit once the pool has stopped accepting work.
var ErrPoolClosed = errors.New("worker pool closed")

// Task is one unit of work run by a pool worker.
type Task func(ctx context.Context)

// Pool is a fixed set of workers serving one channel. Jobs of different
// channels never share workers.
type Pool struct {
	channel models.Channel
	workers int
	queue   chan Task
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	logger  *zap.Logger
}

// NewPool creates a pool. Call Start to launch workers.
func NewPool(ch models.Channel, workers, buffer int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if buffer <= 0 {
		buffer = defaultBufferSize
	}
	return &Pool{
		channel: ch,
		workers: workers,
		queue:   make(chan Task, buffer),
		done:    make(chan struct{}),
		logger:  logger.With(zap.String("channel", string(ch))),
	}
}

// Start launches the workers. They stop when ctx is cancelled, after
// running whatever is still buffered.
func (p *Pool) Start(ctx context.Context) {
	for range p.workers {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	go func() {
		<-ctx.Done()
		p.once.Do(func() { close(p.done) })
	}()
}

// Close waits for all workers to exit. Cancel the Start context first.
func (p *Pool) Close() {
	p.wg.Wait()
}

// Workers returns the pool size.
func (p *Pool) Workers() int {
	return p.workers
}

// Pending returns the number of buffered tasks.
func (p *Pool) Pending() int {
	return len(p.queue)
}

// Submit enqueues a task, blocking while the buffer is full.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	select {
	case <-p.done:
		return ErrPoolClosed
	default:
	}

	select {
	case p.queue <- task:
		queueDepth.WithLabelValues(string(p.channel)).Set(float64(len(p.queue)))
		return nil
	case <-p.done:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case task := <-p.queue:
			p.run(ctx, task)
		case <-ctx.Done():
			p.drain()
			return
		}
	}
}

// drain runs buffered tasks with a fresh context so in-flight jobs can finish
// recording their outcome.
func (p *Pool) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case task := <-p.queue:
			p.run(ctx, task)
		default:
			return
		}
	}
}

func (p *Pool) run(ctx context.Context, task Task) {
	queueDepth.WithLabelValues(string(p.channel)).Set(float64(len(p.queue)))
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Delivery task panicked", zap.Any("panic", r))
		}
	}()
	task(ctx)
}
