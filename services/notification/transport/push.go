package transport

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"

	"ankaa/models"
	"ankaa/services/notification/delivery"
)

// fcmSender is the part of *messaging.Client the push transport uses.
type fcmSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// PushTransport sends FCM pushes to device tokens.
type PushTransport struct {
	client fcmSender
	logger *zap.Logger
}

// NewPushTransport wraps an FCM client; a nil client leaves the transport not ready.
func NewPushTransport(client *messaging.Client, logger *zap.Logger) *PushTransport {
	t := &PushTransport{logger: logger.Named("push_transport")}
	if client != nil {
		t.client = client
	}
	return t
}

func (t *PushTransport) Channel() models.Channel {
	return models.ChannelPush
}

func (t *PushTransport) IsReady(context.Context) bool {
	return t.client != nil
}

func (t *PushTransport) Send(ctx context.Context, token string, payload models.ChannelPayload) (string, error) {
	if t.client == nil {
		return "", fmt.Errorf("%w: firebase messaging is not configured", delivery.ErrTransportUnavailable)
	}
	if token == "" {
		return "", fmt.Errorf("%w: recipient has no push token", delivery.ErrRecipientInvalid)
	}

	id, err := t.client.Send(ctx, buildPushMessage(token, payload))
	switch {
	case err == nil:
		return id, nil
	case messaging.IsUnregistered(err), messaging.IsInvalidArgument(err), messaging.IsSenderIDMismatch(err):
		return "", fmt.Errorf("%w: %v", delivery.ErrRecipientInvalid, err)
	case messaging.IsQuotaExceeded(err), messaging.IsUnavailable(err), messaging.IsInternal(err):
		return "", fmt.Errorf("%w: %v", delivery.ErrTransportUnavailable, err)
	}
	return "", fmt.Errorf("failed to send FCM message: %w", err)
}

func buildPushMessage(token string, payload models.ChannelPayload) *messaging.Message {
	data := make(map[string]string, len(payload.Data))
	for k, v := range payload.Data {
		data[k] = v
	}
	priority := "normal"
	apnsPriority := "5"
	if imp := data["importance"]; imp == string(models.ImportanceHigh) || imp == string(models.ImportanceUrgent) {
		priority = "high"
		apnsPriority = "10"
	}

	return &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: payload.Title,
			Body:  payload.Body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: priority,
			Notification: &messaging.AndroidNotification{
				ChannelID: "notifications",
				Sound:     "default",
			},
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-priority":  apnsPriority,
				"apns-push-type": "alert",
			},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: "default",
				},
			},
		},
	}
}
