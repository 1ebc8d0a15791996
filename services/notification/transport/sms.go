package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"ankaa/models"
	"ankaa/services/notification/delivery"
)

// SMSTransport posts text messages to an HTTP SMS gateway.
type SMSTransport struct {
	client *gatewayClient
	logger *zap.Logger
}

func NewSMSTransport(baseURL, token string, timeout time.Duration, logger *zap.Logger) *SMSTransport {
	return &SMSTransport{
		client: newGatewayClient(baseURL, token, timeout),
		logger: logger.Named("sms_transport"),
	}
}

func (t *SMSTransport) Channel() models.Channel {
	return models.ChannelSMS
}

// IsReady only checks configuration; the gateway has no session to lose.
func (t *SMSTransport) IsReady(context.Context) bool {
	return t.client.baseURL != ""
}

func (t *SMSTransport) Send(ctx context.Context, address string, payload models.ChannelPayload) (string, error) {
	req := struct {
		To      string `json:"to"`
		Message string `json:"message"`
	}{To: address, Message: payload.Body}

	var reply struct {
		ID string `json:"id"`
	}
	err := t.client.do(ctx, http.MethodPost, "/sms", req, &reply)

	var gwErr *gatewayError
	switch {
	case err == nil:
		return reply.ID, nil
	case !errors.As(err, &gwErr):
		return "", err
	case gwErr.Status == http.StatusBadRequest || gwErr.Status == http.StatusUnprocessableEntity:
		return "", fmt.Errorf("%w: %s", delivery.ErrRecipientInvalid, gwErr.Error())
	case gwErr.Status == http.StatusTooManyRequests:
		return "", &delivery.RateLimitedError{Wait: 30 * time.Second}
	case gwErr.Status >= 500:
		return "", fmt.Errorf("%w: %s", delivery.ErrTransportUnavailable, gwErr.Error())
	}
	return "", err
}
