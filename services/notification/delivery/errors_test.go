package delivery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ankaa/services/notification/phone"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o deadline" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	_, phoneErr := phone.Brazil.Normalize("123")

	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"rate limited", &RateLimitedError{Wait: time.Second}, ClassRateLimited},
		{"wrapped rate limited", fmt.Errorf("admit: %w", &RateLimitedError{}), ClassRateLimited},
		{"confirmation noise", fmt.Errorf("ack: %w", ErrConfirmationNoise), ClassConfirmationNoise},
		{"recipient invalid", ErrRecipientInvalid, ClassRecipientInvalid},
		{"invalid phone", phoneErr, ClassRecipientInvalid},
		{"opted out", ErrOptedOut, ClassOptedOut},
		{"not configured", fmt.Errorf("no transport for SMS: %w", ErrChannelNotConfigured), ClassNotConfigured},
		{"transport unavailable", fmt.Errorf("chat: %w", ErrTransportUnavailable), ClassTransportUnavailable},
		{"deadline", context.DeadlineExceeded, ClassNetwork},
		{"net error", &net.OpError{Op: "dial", Err: timeoutErr{}}, ClassNetwork},
		{"text not registered", errors.New("number is not registered"), ClassRecipientInvalid},
		{"text not ready", errors.New("client not ready"), ClassTransportUnavailable},
		{"text disconnected", errors.New("Socket Disconnected"), ClassTransportUnavailable},
		{"text session", errors.New("session closed"), ClassTransportUnavailable},
		{"text timeout", errors.New("timeout"), ClassNetwork},
		{"text refused", errors.New("dial tcp: connection refused"), ClassNetwork},
		{"text unsubscribed", errors.New("user unsubscribed"), ClassOptedOut},
		{"anything else", errors.New("quota exploded"), ClassUnclassified},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
	assert.Equal(t, Class(""), Classify(nil))
}

func TestClassRetryable(t *testing.T) {
	assert.True(t, ClassNetwork.Retryable())
	assert.True(t, ClassTransportUnavailable.Retryable())
	assert.True(t, ClassRateLimited.Retryable())
	assert.True(t, ClassUnclassified.Retryable())
	assert.False(t, ClassRecipientInvalid.Retryable())
	assert.False(t, ClassOptedOut.Retryable())
	assert.False(t, ClassNotConfigured.Retryable())
	assert.False(t, ClassConfirmationNoise.Retryable())
}
