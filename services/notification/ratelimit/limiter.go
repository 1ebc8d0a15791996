// Package ratelimit bounds outbound throughput per channel with a sliding
// time window.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"ankaa/models"
)

// Decision is the outcome of an admission request.
type Decision struct {
	Allowed bool
	// Wait is how long until the oldest send leaves the window. Zero when allowed.
	Wait time.Duration
}

// Limiter admits or defers sends for a channel.
type Limiter interface {
	Admit(ctx context.Context, ch models.Channel) (Decision, error)
	Usage(ctx context.Context, ch models.Channel) (Usage, error)
}

// Usage reports the current window occupancy of a channel.
type Usage struct {
	Channel models.Channel `json:"channel"`
	Used    int            `json:"used"`
	Limit   int            `json:"limit"`
	Window  time.Duration  `json:"window"`
}

// SlidingWindow is an in-process Limiter. Every channel has its own lock so
// a saturated channel never stalls admission on another.
type SlidingWindow struct {
	window  time.Duration
	windows map[models.Channel]*channelWindow
	now     func() time.Time
}

type channelWindow struct {
	mu    sync.Mutex
	limit int
	sent  []time.Time
}

// NewSlidingWindow returns a limiter enforcing limits per window. Channels
// missing from limits, or with a limit <= 0, are never throttled.
func NewSlidingWindow(limits map[models.Channel]int, window time.Duration) *SlidingWindow {
	s := &SlidingWindow{
		window:  window,
		windows: make(map[models.Channel]*channelWindow, len(limits)),
		now:     time.Now,
	}
	for ch, n := range limits {
		if n > 0 {
			s.windows[ch] = &channelWindow{limit: n, sent: make([]time.Time, 0, n)}
		}
	}
	return s
}

// WithClock replaces the time source; used by tests.
func (s *SlidingWindow) WithClock(now func() time.Time) *SlidingWindow {
	s.now = now
	return s
}

// Admit records a send and allows it, or rejects it with the wait until a slot frees.
func (s *SlidingWindow) Admit(_ context.Context, ch models.Channel) (Decision, error) {
	w, ok := s.windows[ch]
	if !ok {
		return Decision{Allowed: true}, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := s.now()
	w.prune(now.Add(-s.window))
	if len(w.sent) >= w.limit {
		wait := w.sent[0].Add(s.window).Sub(now)
		if wait < time.Millisecond {
			wait = time.Millisecond
		}
		return Decision{Allowed: false, Wait: wait}, nil
	}
	w.sent = append(w.sent, now)
	return Decision{Allowed: true}, nil
}

// Usage returns how many sends the current window holds for ch.
func (s *SlidingWindow) Usage(_ context.Context, ch models.Channel) (Usage, error) {
	u := Usage{Channel: ch, Window: s.window}
	w, ok := s.windows[ch]
	if !ok {
		return u, nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(s.now().Add(-s.window))
	u.Used = len(w.sent)
	u.Limit = w.limit
	return u, nil
}

// prune drops timestamps at or before cutoff. Timestamps are appended in
// order so the expired ones form a prefix.
func (w *channelWindow) prune(cutoff time.Time) {
	i := 0
	for i < len(w.sent) && !w.sent[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.sent = append(w.sent[:0], w.sent[i:]...)
	}
}
