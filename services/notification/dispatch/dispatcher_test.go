package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	deliveryRepo "ankaa/database/repository/delivery"
	notificationRepo "ankaa/database/repository/notification"
	preferenceRepo "ankaa/database/repository/preference"
	"ankaa/models"
	"ankaa/services/notification/delivery"
	"ankaa/services/notification/formatter"
	"ankaa/services/notification/links"
	"ankaa/services/notification/phone"
	"ankaa/services/notification/preference"
	"ankaa/services/notification/ratelimit"
	"ankaa/services/notification/transport"
)

// recordingScheduler captures retry delays and redelivers immediately.
type recordingScheduler struct {
	mu        sync.Mutex
	delays    []time.Duration
	redeliver RedeliverFunc
}

func (s *recordingScheduler) Bind(fn RedeliverFunc) {
	s.redeliver = fn
}

func (s *recordingScheduler) Schedule(ctx context.Context, job models.DeliveryJob, delay time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, delay)
	s.mu.Unlock()
	go func() { _ = s.redeliver(context.Background(), job) }()
	return nil
}

func (s *recordingScheduler) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

// failingScheduler refuses every retry, like an enqueue against a Redis that is down.
type failingScheduler struct {
	calls atomic.Int32
}

func (s *failingScheduler) Schedule(context.Context, models.DeliveryJob, time.Duration) error {
	s.calls.Add(1)
	return errors.New("redis down")
}

// flakyRecords fails the first write of one status.
type flakyRecords struct {
	*deliveryRepo.MemoryDeliveryRepo
	status models.DeliveryStatus
	failed atomic.Bool
}

func (f *flakyRecords) Upsert(ctx context.Context, id string, ch models.Channel, upd deliveryRepo.StatusUpdate) (*models.DeliveryRecord, error) {
	if upd.Status == f.status && f.failed.CompareAndSwap(false, true) {
		return nil, errors.New("write conflict")
	}
	return f.MemoryDeliveryRepo.Upsert(ctx, id, ch, upd)
}

type harnessConfig struct {
	scheduler  Scheduler
	records    deliveryRepo.DeliveryRecordRepository
	policy     delivery.RetryPolicy
	staleAfter time.Duration
	without    []models.Channel
}

type harnessOption func(*harnessConfig)

func withScheduler(s Scheduler) harnessOption {
	return func(c *harnessConfig) { c.scheduler = s }
}

func withRecords(r deliveryRepo.DeliveryRecordRepository) harnessOption {
	return func(c *harnessConfig) { c.records = r }
}

func withPolicy(p delivery.RetryPolicy) harnessOption {
	return func(c *harnessConfig) { c.policy = p }
}

func withStaleAfter(d time.Duration) harnessOption {
	return func(c *harnessConfig) { c.staleAfter = d }
}

func withoutTransport(ch models.Channel) harnessOption {
	return func(c *harnessConfig) { c.without = append(c.without, ch) }
}

type harness struct {
	d             *Dispatcher
	records       *deliveryRepo.MemoryDeliveryRepo
	notifications *notificationRepo.MemoryNotificationRepo
	prefs         *preferenceRepo.MemoryPreferenceRepo
	sched         *recordingScheduler
	transports    map[models.Channel]*transport.MemoryTransport

	mu     sync.Mutex
	events []models.DeliveryEvent
	hook   func(models.DeliveryEvent)
}

func newHarness(t *testing.T, limiter ratelimit.Limiter, chat transport.Transport, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		records:       deliveryRepo.NewMemoryDeliveryRepo(),
		notifications: notificationRepo.NewMemoryNotificationRepo(),
		prefs:         preferenceRepo.NewMemoryPreferenceRepo(),
		sched:         &recordingScheduler{},
		transports:    make(map[models.Channel]*transport.MemoryTransport),
	}
	set := transport.Set{}
	for _, ch := range models.AllChannels {
		mt := transport.NewMemoryTransport(ch)
		h.transports[ch] = mt
		set[ch] = mt
	}
	if chat != nil {
		set[models.ChannelWhatsApp] = chat
	}

	cfg := harnessConfig{scheduler: h.sched, records: h.records, policy: delivery.DefaultRetryPolicy}
	for _, opt := range opts {
		opt(&cfg)
	}
	if f, ok := cfg.records.(*flakyRecords); ok {
		h.records = f.MemoryDeliveryRepo
	}
	for _, ch := range cfg.without {
		delete(set, ch)
	}

	logger := zap.NewNop()
	linkResolver := links.NewResolver("https://app.ankaa.local")
	tracker := delivery.NewTracker(cfg.records, h.notifications, logger).WithStaleAfter(cfg.staleAfter)
	policy := cfg.policy
	h.d = NewDispatcher(Deps{
		Preferences: preference.NewResolver(h.prefs, preference.Policy{Fallback: []models.Channel{models.ChannelInApp}}, logger),
		Formatter:   formatter.New(linkResolver, logger),
		Links:       linkResolver,
		Limiter:     limiter,
		Transports:  set,
		Tracker:     tracker,
		Controller:  delivery.NewController(policy, tracker, logger),
		Scheduler:   cfg.scheduler,
		PhonePlan:   phone.Brazil,
	}, Options{}, logger)
	h.d.Observe(func(e models.DeliveryEvent) {
		h.mu.Lock()
		h.events = append(h.events, e)
		hook := h.hook
		h.mu.Unlock()
		if hook != nil {
			hook(e)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	h.d.Start(ctx)
	t.Cleanup(func() {
		cancel()
		h.d.Close()
	})
	return h
}

func (h *harness) notify(t *testing.T, n models.Notification) {
	t.Helper()
	require.NoError(t, h.notifications.Save(context.Background(), &n))
}

func (h *harness) waitStatus(t *testing.T, id string, ch models.Channel, want models.DeliveryStatus) *models.DeliveryRecord {
	t.Helper()
	var rec *models.DeliveryRecord
	require.Eventually(t, func() bool {
		r, err := h.records.Find(context.Background(), id, ch)
		if err != nil {
			return false
		}
		rec = r
		return r.Status == want
	}, 2*time.Second, 5*time.Millisecond, "%s/%s never reached %s", id, ch, want)
	return rec
}

func (h *harness) eventCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

var worker = models.Recipient{ID: "u1", Name: "Ana", Email: "ana@example.com", Phone: "(11) 98765-4321", PushToken: "tok"}

func TestDispatch_HappyPath(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	require.NoError(t, h.prefs.SaveUserPreference(ctx, models.ChannelPreference{
		RecipientID: "u1", NotificationType: "task.created", Enabled: true,
		Channels: []models.Channel{models.ChannelEmail, models.ChannelInApp},
	}))
	n := models.Notification{ID: "n1", Type: "task.created", Title: "X", Body: "Y"}
	h.notify(t, n)

	queued, err := h.d.Dispatch(ctx, n, worker)
	require.NoError(t, err)
	assert.Equal(t, []models.Channel{models.ChannelEmail, models.ChannelInApp}, queued)

	email := h.waitStatus(t, "n1", models.ChannelEmail, models.DeliveryDelivered)
	h.waitStatus(t, "n1", models.ChannelInApp, models.DeliveryDelivered)

	assert.Equal(t, 0, email.Attempts)
	assert.NotNil(t, email.DeliveredAt)
	assert.Equal(t, "EMAIL-1", email.MessageID)
	assert.Equal(t, 1, h.notifications.SentWrites("n1"))

	recs, err := h.records.ListByNotification(ctx, "n1")
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.Equal(t, 0, h.transports[models.ChannelSMS].Calls())
	assert.Equal(t, "ana@example.com", h.transports[models.ChannelEmail].Sent()[0].Address)
	assert.Equal(t,
		[]models.DeliveryStatus{models.DeliveryPending, models.DeliveryProcessing, models.DeliveryDelivered},
		h.records.History("n1", models.ChannelEmail))
	require.Eventually(t, func() bool { return h.eventCount() == 2 }, time.Second, 5*time.Millisecond)
}

func TestDispatch_ChatRecipientNotRegistered(t *testing.T) {
	chat := transport.NewMemoryTransport(models.ChannelWhatsApp).WithRegistry("5511900000000")
	h := newHarness(t, nil, chat)
	n := models.Notification{ID: "n2", Type: "task.created", Title: "X", Body: "Y",
		ExplicitChannels: []models.Channel{models.ChannelWhatsApp}}
	h.notify(t, n)

	_, err := h.d.Dispatch(context.Background(), n, worker)
	require.NoError(t, err)

	rec := h.waitStatus(t, "n2", models.ChannelWhatsApp, models.DeliveryFailed)
	assert.Equal(t, 0, rec.Attempts)
	assert.Contains(t, rec.ErrorMessage, "not registered")
	assert.Empty(t, h.sched.Delays())
	assert.Equal(t, 0, chat.Calls())
}

func TestDispatch_TransientFailuresExhaustRetries(t *testing.T) {
	h := newHarness(t, nil, nil)
	sms := h.transports[models.ChannelSMS]
	timeout := errors.New("gateway timeout")
	sms.FailWith(timeout, timeout, timeout, timeout)

	n := models.Notification{ID: "n3", Type: "stock.low", Title: "Low", Body: "Gloves",
		ExplicitChannels: []models.Channel{models.ChannelSMS}}
	h.notify(t, n)
	_, err := h.d.Dispatch(context.Background(), n, worker)
	require.NoError(t, err)

	rec := h.waitStatus(t, "n3", models.ChannelSMS, models.DeliveryFailed)
	assert.Equal(t, 3, rec.Attempts)
	assert.Contains(t, rec.ErrorMessage, "max retries exceeded")
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}, h.sched.Delays())
	assert.Equal(t, 4, sms.Calls())
	assert.Equal(t, 0, h.notifications.SentWrites("n3"))
}

func TestDispatch_RecoversAfterTransientFailure(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.transports[models.ChannelPush].FailWith(delivery.ErrTransportUnavailable)

	n := models.Notification{ID: "n4", Type: "order.received", Title: "Order", Body: "Arrived",
		ExplicitChannels: []models.Channel{models.ChannelPush}}
	h.notify(t, n)
	_, err := h.d.Dispatch(context.Background(), n, worker)
	require.NoError(t, err)

	rec := h.waitStatus(t, "n4", models.ChannelPush, models.DeliveryDelivered)
	assert.Equal(t, 1, rec.Attempts)
	assert.Equal(t,
		[]models.DeliveryStatus{models.DeliveryPending, models.DeliveryProcessing, models.DeliveryRetrying, models.DeliveryProcessing, models.DeliveryDelivered},
		h.records.History("n4", models.ChannelPush))
}

func TestDispatch_InvalidPhoneFailsWithoutSend(t *testing.T) {
	h := newHarness(t, nil, nil)
	n := models.Notification{ID: "n5", Type: "task.created", ExplicitChannels: []models.Channel{models.ChannelSMS}}
	h.notify(t, n)

	bad := worker
	bad.Phone = "123"
	_, err := h.d.Dispatch(context.Background(), n, bad)
	require.NoError(t, err)

	rec := h.waitStatus(t, "n5", models.ChannelSMS, models.DeliveryFailed)
	assert.Equal(t, 0, rec.Attempts)
	assert.Equal(t, 0, h.transports[models.ChannelSMS].Calls())
}

func TestDispatch_NormalizesPhoneBeforeSend(t *testing.T) {
	h := newHarness(t, nil, nil)
	n := models.Notification{ID: "n6", Type: "task.created", ExplicitChannels: []models.Channel{models.ChannelSMS}}
	h.notify(t, n)
	_, err := h.d.Dispatch(context.Background(), n, worker)
	require.NoError(t, err)

	h.waitStatus(t, "n6", models.ChannelSMS, models.DeliveryDelivered)
	assert.Equal(t, "5511987654321", h.transports[models.ChannelSMS].Sent()[0].Address)
}

func TestDispatch_RateLimitDefersWithoutConsumingAttempts(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	limiter := ratelimit.NewSlidingWindow(map[models.Channel]int{models.ChannelSMS: 1}, time.Minute).WithClock(clock)
	h := newHarness(t, limiter, nil)

	first := models.Notification{ID: "n7", Type: "task.created", ExplicitChannels: []models.Channel{models.ChannelSMS}}
	h.notify(t, first)
	_, err := h.d.Dispatch(context.Background(), first, worker)
	require.NoError(t, err)
	h.waitStatus(t, "n7", models.ChannelSMS, models.DeliveryDelivered)

	// Advance past the window so the redelivered job is admitted.
	second := models.Notification{ID: "n8", Type: "task.created", ExplicitChannels: []models.Channel{models.ChannelSMS}}
	h.notify(t, second)
	var release sync.Once
	h.mu.Lock()
	h.hook = func(e models.DeliveryEvent) {
		if e.Status == models.DeliveryRetrying {
			release.Do(func() {
				mu.Lock()
				now = now.Add(2 * time.Minute)
				mu.Unlock()
			})
		}
	}
	h.mu.Unlock()
	_, err = h.d.Dispatch(context.Background(), second, worker)
	require.NoError(t, err)

	rec := h.waitStatus(t, "n8", models.ChannelSMS, models.DeliveryDelivered)
	assert.Equal(t, 0, rec.Attempts)
	require.NotEmpty(t, h.sched.Delays())
	assert.Equal(t, time.Minute, h.sched.Delays()[0])
}

func TestDispatch_NoChannels(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	require.NoError(t, h.prefs.SaveUserPreference(ctx, models.ChannelPreference{
		RecipientID: "u1", NotificationType: "payroll.ready", Enabled: false,
	}))

	queued, err := h.d.Dispatch(ctx, models.Notification{ID: "n9", Type: "payroll.ready"}, worker)
	require.NoError(t, err)
	assert.Empty(t, queued)

	_, err = h.records.Find(ctx, "n9", models.ChannelInApp)
	assert.ErrorIs(t, err, deliveryRepo.ErrNotFound)
}

func TestDispatch_RedeliverAfterFinalIsNoop(t *testing.T) {
	h := newHarness(t, nil, nil)
	n := models.Notification{ID: "n10", Type: "task.created", ExplicitChannels: []models.Channel{models.ChannelEmail}}
	h.notify(t, n)
	_, err := h.d.Dispatch(context.Background(), n, worker)
	require.NoError(t, err)
	h.waitStatus(t, "n10", models.ChannelEmail, models.DeliveryDelivered)

	job := h.d.jobFor(n, worker, models.ChannelEmail)
	require.NoError(t, h.d.Redeliver(context.Background(), job))
	require.NoError(t, h.d.Redeliver(context.Background(), job))

	// Wait for a later job on the same pool so both redeliveries have run.
	marker := models.Notification{ID: "n11", Type: "task.created", ExplicitChannels: []models.Channel{models.ChannelEmail}}
	h.notify(t, marker)
	_, err = h.d.Dispatch(context.Background(), marker, worker)
	require.NoError(t, err)
	h.waitStatus(t, "n11", models.ChannelEmail, models.DeliveryDelivered)

	assert.Equal(t, 2, h.transports[models.ChannelEmail].Calls())
	assert.Equal(t, 1, h.notifications.SentWrites("n10"))
}

func TestDispatch_SchedulerFailureFallsBackToTimer(t *testing.T) {
	sched := &failingScheduler{}
	policy := delivery.RetryPolicy{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond, BackoffFactor: 2, MaxDeferrals: 10}
	h := newHarness(t, nil, nil, withScheduler(sched), withPolicy(policy))
	sms := h.transports[models.ChannelSMS]
	sms.FailWith(errors.New("gateway timeout"))

	n := models.Notification{ID: "n12", Type: "task.created", ExplicitChannels: []models.Channel{models.ChannelSMS}}
	h.notify(t, n)
	_, err := h.d.Dispatch(context.Background(), n, worker)
	require.NoError(t, err)

	rec := h.waitStatus(t, "n12", models.ChannelSMS, models.DeliveryDelivered)
	assert.Equal(t, 1, rec.Attempts)
	assert.Equal(t, int32(1), sched.calls.Load())
	assert.Equal(t, 2, sms.Calls())
	assert.Equal(t,
		[]models.DeliveryStatus{models.DeliveryPending, models.DeliveryProcessing, models.DeliveryRetrying, models.DeliveryProcessing, models.DeliveryDelivered},
		h.records.History("n12", models.ChannelSMS))
}

func TestDispatch_UnrecordedOutcomeIsReclaimed(t *testing.T) {
	flaky := &flakyRecords{MemoryDeliveryRepo: deliveryRepo.NewMemoryDeliveryRepo(), status: models.DeliveryDelivered}
	h := newHarness(t, nil, nil, withRecords(flaky), withStaleAfter(time.Nanosecond))

	n := models.Notification{ID: "n13", Type: "task.created", ExplicitChannels: []models.Channel{models.ChannelEmail}}
	h.notify(t, n)
	_, err := h.d.Dispatch(context.Background(), n, worker)
	require.NoError(t, err)

	h.waitStatus(t, "n13", models.ChannelEmail, models.DeliveryDelivered)
	assert.Equal(t, []time.Duration{time.Nanosecond}, h.sched.Delays())
	assert.Equal(t, 2, h.transports[models.ChannelEmail].Calls())
	assert.Equal(t, 1, h.notifications.SentWrites("n13"))
	assert.Equal(t,
		[]models.DeliveryStatus{models.DeliveryPending, models.DeliveryProcessing, models.DeliveryProcessing, models.DeliveryDelivered},
		h.records.History("n13", models.ChannelEmail))
}

func TestDispatch_MissingTransportIsTerminal(t *testing.T) {
	h := newHarness(t, nil, nil, withoutTransport(models.ChannelSMS))

	n := models.Notification{ID: "n14", Type: "task.created", ExplicitChannels: []models.Channel{models.ChannelSMS}}
	h.notify(t, n)
	_, err := h.d.Dispatch(context.Background(), n, worker)
	require.NoError(t, err)

	rec := h.waitStatus(t, "n14", models.ChannelSMS, models.DeliveryFailed)
	assert.Equal(t, 0, rec.Attempts)
	assert.Contains(t, rec.ErrorMessage, "no transport for SMS")
	assert.Empty(t, h.sched.Delays())
	assert.Equal(t, 0, h.transports[models.ChannelSMS].Calls())
}
