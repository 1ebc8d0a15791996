package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ankaa/models"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestSlidingWindow_RejectsAtCeilingWithWait(t *testing.T) {
	clock := newFakeClock()
	l := NewSlidingWindow(map[models.Channel]int{models.ChannelWhatsApp: 3}, time.Minute).WithClock(clock.Now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := l.Admit(ctx, models.ChannelWhatsApp)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		clock.Advance(10 * time.Second)
	}

	d, err := l.Admit(ctx, models.ChannelWhatsApp)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	// first send was 30s ago
	assert.Equal(t, 30*time.Second, d.Wait)

	clock.Advance(30 * time.Second)
	d, _ = l.Admit(ctx, models.ChannelWhatsApp)
	assert.True(t, d.Allowed, "oldest send left the window")

	u, err := l.Usage(ctx, models.ChannelWhatsApp)
	require.NoError(t, err)
	assert.Equal(t, 3, u.Used)
	assert.Equal(t, 3, u.Limit)
}

func TestSlidingWindow_UnlimitedChannels(t *testing.T) {
	l := NewSlidingWindow(map[models.Channel]int{models.ChannelSMS: 1, models.ChannelEmail: 0}, time.Minute)
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		d, _ := l.Admit(ctx, models.ChannelEmail)
		require.True(t, d.Allowed)
		d, _ = l.Admit(ctx, models.ChannelPush)
		require.True(t, d.Allowed)
	}
	u, _ := l.Usage(ctx, models.ChannelEmail)
	assert.Zero(t, u.Limit)
}

func TestSlidingWindow_ChannelsAreIndependent(t *testing.T) {
	l := NewSlidingWindow(map[models.Channel]int{models.ChannelSMS: 1, models.ChannelWhatsApp: 1}, time.Minute)
	ctx := context.Background()

	d, _ := l.Admit(ctx, models.ChannelSMS)
	assert.True(t, d.Allowed)
	d, _ = l.Admit(ctx, models.ChannelSMS)
	assert.False(t, d.Allowed)
	d, _ = l.Admit(ctx, models.ChannelWhatsApp)
	assert.True(t, d.Allowed)
}

func TestSlidingWindow_ConcurrentCallersNeverExceedCeiling(t *testing.T) {
	const limit = 20
	clock := newFakeClock()
	l := NewSlidingWindow(map[models.Channel]int{models.ChannelWhatsApp: limit}, time.Minute).WithClock(clock.Now)

	var admitted int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.Admit(context.Background(), models.ChannelWhatsApp)
			if err == nil && d.Allowed {
				atomic.AddInt64(&admitted, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(limit), admitted)
}

func TestSlidingWindow_BoundHoldsAcrossWindows(t *testing.T) {
	const limit = 5
	clock := newFakeClock()
	l := NewSlidingWindow(map[models.Channel]int{models.ChannelSMS: limit}, time.Minute).WithClock(clock.Now)

	var granted []time.Time
	for i := 0; i < 600; i++ {
		if d, _ := l.Admit(context.Background(), models.ChannelSMS); d.Allowed {
			granted = append(granted, clock.Now())
		}
		clock.Advance(time.Second)
	}

	for i, start := range granted {
		n := 0
		for _, g := range granted[i:] {
			if g.Sub(start) < time.Minute {
				n++
			}
		}
		require.LessOrEqual(t, n, limit, "window starting at %s", start)
	}
}

func newRedisLimiter(t *testing.T, limits map[models.Channel]int) (*RedisLimiter, *fakeClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	clock := newFakeClock()
	return NewRedisLimiter(client, limits, time.Minute).WithClock(clock.Now), clock
}

func TestRedisLimiter_SlidingWindow(t *testing.T) {
	l, clock := newRedisLimiter(t, map[models.Channel]int{models.ChannelWhatsApp: 2})
	ctx := context.Background()

	d, err := l.Admit(ctx, models.ChannelWhatsApp)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	clock.Advance(20 * time.Second)
	d, err = l.Admit(ctx, models.ChannelWhatsApp)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = l.Admit(ctx, models.ChannelWhatsApp)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 40*time.Second, d.Wait)

	u, err := l.Usage(ctx, models.ChannelWhatsApp)
	require.NoError(t, err)
	assert.Equal(t, 2, u.Used)

	clock.Advance(41 * time.Second)
	d, err = l.Admit(ctx, models.ChannelWhatsApp)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRedisLimiter_SharedAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	limits := map[models.Channel]int{models.ChannelSMS: 3}
	clock := newFakeClock()

	var limiters []*RedisLimiter
	for i := 0; i < 3; i++ {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		limiters = append(limiters, NewRedisLimiter(client, limits, time.Minute).WithClock(clock.Now))
	}

	admitted := 0
	for i := 0; i < 9; i++ {
		d, err := limiters[i%3].Admit(context.Background(), models.ChannelSMS)
		require.NoError(t, err)
		if d.Allowed {
			admitted++
		}
	}
	assert.Equal(t, 3, admitted)
}

func TestRedisLimiter_UnlimitedChannelSkipsRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()
	l := NewRedisLimiter(client, map[models.Channel]int{}, time.Minute)

	d, err := l.Admit(context.Background(), models.ChannelEmail)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}
