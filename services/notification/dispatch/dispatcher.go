// Package dispatch fans notifications out to per-channel worker pools and
// runs each delivery attempt through preference resolution, formatting,
// rate limiting, the transport and the retry controller.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ankaa/models"
	"ankaa/services/notification/delivery"
	"ankaa/services/notification/formatter"
	"ankaa/services/notification/links"
	"ankaa/services/notification/phone"
	"ankaa/services/notification/preference"
	"ankaa/services/notification/ratelimit"
	"ankaa/services/notification/transport"
)

// Observer is told about every attempt outcome. Observers run on the worker
// goroutine and must not block.
type Observer func(models.DeliveryEvent)

// Deps are the collaborators a Dispatcher drives.
type Deps struct {
	Preferences *preference.Resolver
	Formatter   *formatter.Formatter
	Links       *links.Resolver
	Limiter     ratelimit.Limiter
	Transports  transport.Set
	Tracker     *delivery.Tracker
	Controller  *delivery.Controller
	Scheduler   Scheduler
	PhonePlan   phone.Plan
}

// Options size the worker pools.
type Options struct {
	Concurrency map[models.Channel]int
	QueueBuffer int
}

// Dispatcher owns one worker pool per channel.
type Dispatcher struct {
	deps      Deps
	// fallback takes over retries the configured Scheduler refuses.
	fallback  *TimerScheduler
	pools     map[models.Channel]*Pool
	observers []Observer
	now       func() time.Time
	logger    *zap.Logger
}

func NewDispatcher(deps Deps, opts Options, logger *zap.Logger) *Dispatcher {
	logger = logger.Named("dispatch")
	if deps.Links == nil {
		deps.Links = links.NewResolver("")
	}
	if deps.Scheduler == nil {
		deps.Scheduler = NewTimerScheduler(logger)
	}

	d := &Dispatcher{
		deps:   deps,
		pools:  make(map[models.Channel]*Pool, len(models.AllChannels)),
		now:    time.Now,
		logger: logger,
	}
	for _, ch := range models.AllChannels {
		d.pools[ch] = NewPool(ch, opts.Concurrency[ch], opts.QueueBuffer, logger)
	}
	if b, ok := deps.Scheduler.(binder); ok {
		b.Bind(d.Redeliver)
	}
	if _, ok := deps.Scheduler.(*TimerScheduler); !ok {
		d.fallback = NewTimerScheduler(logger.Named("fallback"))
		d.fallback.Bind(d.Redeliver)
	}
	return d
}

// Observe registers an observer. Register observers before Start.
func (d *Dispatcher) Observe(o Observer) {
	d.observers = append(d.observers, o)
}

// Start launches every pool. Cancelling ctx stops them after their buffers drain.
func (d *Dispatcher) Start(ctx context.Context) {
	for _, ch := range models.AllChannels {
		d.pools[ch].Start(ctx)
	}
	d.logger.Info("Dispatcher started", zap.Any("workers", d.Workers()))
}

// Close waits for every pool to stop.
func (d *Dispatcher) Close() {
	if d.fallback != nil {
		d.fallback.Stop()
	}
	for _, p := range d.pools {
		p.Close()
	}
}

// Workers returns the pool size per channel.
func (d *Dispatcher) Workers() map[models.Channel]int {
	out := make(map[models.Channel]int, len(d.pools))
	for ch, p := range d.pools {
		out[ch] = p.Workers()
	}
	return out
}

// Dispatch resolves the channels for n and submits one job per channel.
// It returns once the jobs are queued; delivery happens asynchronously.
func (d *Dispatcher) Dispatch(ctx context.Context, n models.Notification, recipient models.Recipient) ([]models.Channel, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	res, err := d.deps.Preferences.Resolve(ctx, recipient.ID, n.Type, n.ExplicitChannels)
	if err != nil {
		return nil, fmt.Errorf("resolve channels: %w", err)
	}
	if len(res.Channels) == 0 {
		d.logger.Info("No channels resolved, nothing to deliver",
			zap.String("notification_id", n.ID),
			zap.String("type", n.Type),
			zap.String("source", string(res.Source)),
		)
		return nil, nil
	}

	var errs []error
	var queued []models.Channel
	for _, ch := range res.Channels {
		if err := d.submit(ctx, d.jobFor(n, recipient, ch)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch, err))
			continue
		}
		queued = append(queued, ch)
	}
	return queued, errors.Join(errs...)
}

// Redeliver resubmits a job scheduled for retry.
func (d *Dispatcher) Redeliver(ctx context.Context, job models.DeliveryJob) error {
	return d.submit(ctx, job)
}

func (d *Dispatcher) jobFor(n models.Notification, r models.Recipient, ch models.Channel) models.DeliveryJob {
	return models.DeliveryJob{
		NotificationID:   n.ID,
		Type:             n.Type,
		Channel:          ch,
		RecipientID:      r.ID,
		RecipientName:    r.Name,
		RecipientAddress: r.Address(ch),
		Title:            n.Title,
		Body:             n.Body,
		ActionLink:       d.deps.Links.Resolve(ch, n.Metadata),
		Metadata:         n.Metadata,
		Priority:         n.Importance,
	}
}

func (d *Dispatcher) submit(ctx context.Context, job models.DeliveryJob) error {
	pool, ok := d.pools[job.Channel]
	if !ok {
		return fmt.Errorf("unknown channel %q", job.Channel)
	}
	return pool.Submit(ctx, func(ctx context.Context) {
		d.run(ctx, job)
	})
}

// run performs one attempt. The per-pair lock serializes attempts of the
// same (notification, channel) so status transitions never interleave.
func (d *Dispatcher) run(ctx context.Context, job models.DeliveryJob) {
	release := d.deps.Tracker.Acquire(job.NotificationID, job.Channel)
	defer release()

	log := d.logger.With(
		zap.String("notification_id", job.NotificationID),
		zap.String("channel", string(job.Channel)),
	)

	rec, err := d.deps.Tracker.Begin(ctx, job)
	switch {
	case errors.Is(err, delivery.ErrAlreadyFinal), errors.Is(err, delivery.ErrInFlight):
		log.Debug("Skipping delivery", zap.Error(err))
		return
	case err != nil:
		log.Error("Failed to start delivery", zap.Error(err))
		return
	}
	// The stored counter is authoritative across redeliveries.
	job.Attempts = rec.Attempts

	messageID, sendErr := d.attempt(ctx, job)
	out, err := d.deps.Controller.Handle(ctx, job, messageID, sendErr)
	if err != nil {
		log.Error("Failed to record delivery outcome", zap.Error(err), zap.NamedError("send_error", sendErr))
		if errors.Is(err, delivery.ErrAlreadyFinal) || errors.Is(err, delivery.ErrInvalidTransition) {
			return
		}
		// The record is still PROCESSING. Run the job again once Begin may reclaim it.
		if err := d.schedule(ctx, log, job, d.deps.Tracker.StaleAfter()); err != nil {
			log.Error("Failed to schedule recovery", zap.Error(err))
		}
		return
	}

	event := models.DeliveryEvent{
		NotificationID: job.NotificationID,
		Type:           job.Type,
		Channel:        job.Channel,
		RecipientID:    job.RecipientID,
		Attempts:       job.Attempts,
		Class:          string(out.Class),
		MessageID:      messageID,
		OccurredAt:     d.now(),
	}
	switch out.Action {
	case delivery.ActionDeliver:
		event.Status = models.DeliveryDelivered
		log.Info("Notification delivered", zap.String("message_id", messageID))
	case delivery.ActionRetry:
		event.Status = models.DeliveryRetrying
		event.Attempts = out.Next.Attempts
		event.Error = out.Reason
		event.RetryIn = out.Delay
		retriesScheduled.WithLabelValues(string(job.Channel), string(out.Class)).Inc()
		log.Warn("Delivery failed, retry scheduled",
			zap.String("class", string(out.Class)),
			zap.Duration("delay", out.Delay),
			zap.Int("attempts", out.Next.Attempts),
			zap.Error(sendErr),
		)
		if err := d.schedule(ctx, log, *out.Next, out.Delay); err != nil {
			log.Error("Failed to schedule retry", zap.Error(err))
		}
	case delivery.ActionFail:
		event.Status = models.DeliveryFailed
		event.Error = out.Reason
		log.Warn("Delivery failed permanently",
			zap.String("class", string(out.Class)),
			zap.String("reason", out.Reason),
		)
	}
	deliveriesTotal.WithLabelValues(string(job.Channel), string(event.Status)).Inc()
	d.notify(event)
}

// attempt runs the pre-send checks and the send itself.
func (d *Dispatcher) attempt(ctx context.Context, job models.DeliveryJob) (string, error) {
	t, ok := d.deps.Transports.Get(job.Channel)
	if !ok {
		return "", fmt.Errorf("no transport for %s: %w", job.Channel, delivery.ErrChannelNotConfigured)
	}

	address := job.RecipientAddress
	if address == "" {
		return "", fmt.Errorf("recipient %s has no %s address: %w", job.RecipientID, job.Channel, delivery.ErrRecipientInvalid)
	}
	if job.Channel.NeedsPhone() {
		normalized, err := d.deps.PhonePlan.Normalize(address)
		if err != nil {
			return "", err
		}
		address = normalized
	}

	if !t.IsReady(ctx) {
		return "", fmt.Errorf("%s transport not ready: %w", job.Channel, delivery.ErrTransportUnavailable)
	}
	if rc, ok := t.(transport.RegistrationChecker); ok {
		registered, err := rc.IsRegistered(ctx, address)
		if err != nil {
			return "", err
		}
		if !registered {
			return "", fmt.Errorf("%s is not registered on %s: %w", address, job.Channel, delivery.ErrRecipientInvalid)
		}
	}

	payload := d.deps.Formatter.Format(job.Channel, job)

	if d.deps.Limiter != nil {
		decision, err := d.deps.Limiter.Admit(ctx, job.Channel)
		if err != nil {
			// Fail open.
			d.logger.Warn("Rate limiter unavailable, sending without admission",
				zap.String("channel", string(job.Channel)), zap.Error(err))
		} else if !decision.Allowed {
			rateLimited.WithLabelValues(string(job.Channel)).Inc()
			return "", &delivery.RateLimitedError{Wait: decision.Wait}
		}
	}

	start := time.Now()
	messageID, err := t.Send(ctx, address, payload)
	sendDuration.WithLabelValues(string(job.Channel)).Observe(time.Since(start).Seconds())
	return messageID, err
}

// schedule hands job to the Scheduler and, if it refuses, to the in-process
// timer so a RETRYING record is never left without a pending run.
func (d *Dispatcher) schedule(ctx context.Context, log *zap.Logger, job models.DeliveryJob, delay time.Duration) error {
	err := d.deps.Scheduler.Schedule(ctx, job, delay)
	if err == nil || d.fallback == nil {
		return err
	}
	log.Warn("Retry scheduler unavailable, using in-process timer", zap.Error(err), zap.Duration("delay", delay))
	return d.fallback.Schedule(ctx, job, delay)
}

func (d *Dispatcher) notify(event models.DeliveryEvent) {
	for _, o := range d.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					d.logger.Error("Delivery observer panicked", zap.Any("panic", r))
				}
			}()
			o(event)
		}()
	}
}
