package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"ankaa/models"
	"ankaa/services/notification/delivery"
)

// ChatTransport sends WhatsApp messages through an HTTP session gateway.
//
// The gateway sometimes reports a send as done and then fails to confirm it
// ({"sent": true, "error": "..."}). The message did go out, so Send reports
// it as delivery.ErrConfirmationNoise. This quirk belongs to this gateway only.
type ChatTransport struct {
	client *gatewayClient
	logger *zap.Logger
}

func NewChatTransport(baseURL, token string, timeout time.Duration, logger *zap.Logger) *ChatTransport {
	return &ChatTransport{
		client: newGatewayClient(baseURL, token, timeout),
		logger: logger.Named("chat_transport"),
	}
}

func (t *ChatTransport) Channel() models.Channel {
	return models.ChannelWhatsApp
}

func (t *ChatTransport) IsReady(ctx context.Context) bool {
	if t.client.baseURL == "" {
		return false
	}
	var status struct {
		Ready bool   `json:"ready"`
		State string `json:"state"`
	}
	if err := t.client.do(ctx, http.MethodGet, "/status", nil, &status); err != nil {
		t.logger.Debug("Chat gateway status check failed", zap.Error(err))
		return false
	}
	return status.Ready
}

func (t *ChatTransport) IsRegistered(ctx context.Context, address string) (bool, error) {
	var reply struct {
		Registered bool `json:"registered"`
	}
	if err := t.client.do(ctx, http.MethodGet, "/contacts/"+url.PathEscape(address)+"/registered", nil, &reply); err != nil {
		return false, t.mapError(err)
	}
	return reply.Registered, nil
}

func (t *ChatTransport) Send(ctx context.Context, address string, payload models.ChannelPayload) (string, error) {
	req := struct {
		To   string `json:"to"`
		Text string `json:"text"`
	}{To: address, Text: payload.Body}

	var reply struct {
		Sent  bool   `json:"sent"`
		ID    string `json:"id"`
		Error string `json:"error"`
	}
	if err := t.client.do(ctx, http.MethodPost, "/messages", req, &reply); err != nil {
		return "", t.mapError(err)
	}

	switch {
	case reply.Sent && reply.Error != "":
		return reply.ID, fmt.Errorf("%w: %s", delivery.ErrConfirmationNoise, reply.Error)
	case !reply.Sent && reply.Error != "":
		return "", errors.New(reply.Error)
	case !reply.Sent:
		return "", errors.New("chat gateway did not send the message")
	}
	return reply.ID, nil
}

func (t *ChatTransport) mapError(err error) error {
	var gwErr *gatewayError
	if !errors.As(err, &gwErr) {
		return err
	}
	switch gwErr.Status {
	case http.StatusServiceUnavailable, http.StatusConflict:
		return fmt.Errorf("%w: %s", delivery.ErrTransportUnavailable, gwErr.Error())
	case http.StatusNotFound, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", delivery.ErrRecipientInvalid, gwErr.Error())
	case http.StatusTooManyRequests:
		return &delivery.RateLimitedError{Wait: 30 * time.Second}
	}
	return err
}
