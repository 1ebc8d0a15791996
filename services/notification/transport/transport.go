// Package transport holds the channel transports the dispatcher sends through.
//
// The dispatcher depends only on Transport and, where a channel can check an
// address before sending, RegistrationChecker. It never inspects transport internals.
package transport

import (
	"context"
	"sort"

	"ankaa/models"
)

// Transport delivers rendered payloads on one channel.
type Transport interface {
	Channel() models.Channel
	// IsReady reports whether the transport can send right now.
	IsReady(ctx context.Context) bool
	// Send delivers payload to address and returns the provider's message id.
	Send(ctx context.Context, address string, payload models.ChannelPayload) (string, error)
}

// RegistrationChecker is implemented by transports that can tell whether an
// address exists on their network before a send.
type RegistrationChecker interface {
	IsRegistered(ctx context.Context, address string) (bool, error)
}

// Set indexes transports by channel.
type Set map[models.Channel]Transport

// NewSet builds a Set; a later transport replaces an earlier one for the same channel.
func NewSet(transports ...Transport) Set {
	s := make(Set, len(transports))
	for _, t := range transports {
		if t != nil {
			s[t.Channel()] = t
		}
	}
	return s
}

// Get returns the transport for ch.
func (s Set) Get(ch models.Channel) (Transport, bool) {
	t, ok := s[ch]
	return t, ok
}

// Channels lists the configured channels in AllChannels order.
func (s Set) Channels() []models.Channel {
	out := make([]models.Channel, 0, len(s))
	for _, ch := range models.AllChannels {
		if _, ok := s[ch]; ok {
			out = append(out, ch)
		}
	}
	return out
}

// Readiness probes every transport.
func (s Set) Readiness(ctx context.Context) map[string]bool {
	out := make(map[string]bool, len(s))
	keys := make([]string, 0, len(s))
	for ch := range s {
		keys = append(keys, string(ch))
	}
	sort.Strings(keys)
	for _, k := range keys {
		out[k] = s[models.Channel(k)].IsReady(ctx)
	}
	return out
}
