// Package delivery owns the per-(notification, channel) delivery record, the
// failure taxonomy and the retry policy.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"ankaa/services/notification/phone"
)

var (
	// ErrChannelNotConfigured means no transport exists for the channel in this process.
	ErrChannelNotConfigured = errors.New("channel not configured")
	// ErrTransportUnavailable means the channel's session or client is not usable right now.
	ErrTransportUnavailable = errors.New("transport unavailable")
	// ErrRecipientInvalid means the address can never receive on this channel.
	ErrRecipientInvalid = errors.New("recipient invalid")
	// ErrOptedOut means the recipient refused the channel.
	ErrOptedOut = errors.New("recipient opted out")
	// ErrConfirmationNoise wraps a post-send acknowledgement failure for a
	// message that was actually transmitted.
	ErrConfirmationNoise = errors.New("delivery confirmation failed after send")
)

// RateLimitedError is returned when the limiter defers a send.
type RateLimitedError struct {
	Wait time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry in %s", e.Wait)
}

// Class is the retry-relevant category of a failure.
type Class string

const (
	ClassNotConfigured        Class = "not_configured"
	ClassTransportUnavailable Class = "transport_unavailable"
	ClassRecipientInvalid     Class = "recipient_invalid"
	ClassConfirmationNoise    Class = "confirmation_noise"
	ClassRateLimited          Class = "rate_limited"
	ClassOptedOut             Class = "opted_out"
	ClassNetwork              Class = "network"
	ClassUnclassified         Class = "unclassified"
)

// Retryable reports whether failures of this class are retried with backoff.
func (c Class) Retryable() bool {
	switch c {
	case ClassTransportUnavailable, ClassNetwork, ClassRateLimited, ClassUnclassified:
		return true
	}
	return false
}

var messagePatterns = []struct {
	class    Class
	patterns []string
}{
	{ClassRecipientInvalid, []string{"not registered", "not on whatsapp", "invalid recipient", "invalid number", "unregistered"}},
	{ClassOptedOut, []string{"opted out", "unsubscribed", "blocked by recipient"}},
	{ClassTransportUnavailable, []string{"not ready", "disconnected", "session", "not connected", "unavailable"}},
	{ClassNetwork, []string{"timeout", "timed out", "connection refused", "connection reset", "no such host", "eof"}},
}

// Classify maps an error to its Class. Typed errors win; transports that only
// return text are matched on well-known phrases.
func Classify(err error) Class {
	if err == nil {
		return ""
	}

	var rl *RateLimitedError
	var netErr net.Error
	switch {
	case errors.As(err, &rl):
		return ClassRateLimited
	case errors.Is(err, ErrConfirmationNoise):
		return ClassConfirmationNoise
	case errors.Is(err, ErrRecipientInvalid), errors.Is(err, phone.ErrInvalidPhone):
		return ClassRecipientInvalid
	case errors.Is(err, ErrOptedOut):
		return ClassOptedOut
	case errors.Is(err, ErrChannelNotConfigured):
		return ClassNotConfigured
	case errors.Is(err, ErrTransportUnavailable):
		return ClassTransportUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return ClassNetwork
	case errors.As(err, &netErr):
		return ClassNetwork
	}

	msg := strings.ToLower(err.Error())
	for _, group := range messagePatterns {
		for _, p := range group.patterns {
			if strings.Contains(msg, p) {
				return group.class
			}
		}
	}
	return ClassUnclassified
}
