package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	inboxRepo "ankaa/database/repository/inbox"
	"ankaa/models"
)

// InboxChannelPrefix is the Redis pub/sub channel prefix for live inbox updates.
const InboxChannelPrefix = "ankaa:inbox:"

// InAppTransport stores messages in the recipient's inbox and announces them
// on Redis so connected clients update without polling.
type InAppTransport struct {
	inbox  inboxRepo.InboxRepository
	pubsub *redis.Client
	logger *zap.Logger
}

// NewInAppTransport returns an in-app transport; pubsub may be nil.
func NewInAppTransport(inbox inboxRepo.InboxRepository, pubsub *redis.Client, logger *zap.Logger) *InAppTransport {
	return &InAppTransport{inbox: inbox, pubsub: pubsub, logger: logger.Named("inapp_transport")}
}

func (t *InAppTransport) Channel() models.Channel {
	return models.ChannelInApp
}

func (t *InAppTransport) IsReady(context.Context) bool {
	return t.inbox != nil
}

func (t *InAppTransport) Send(ctx context.Context, recipientID string, payload models.ChannelPayload) (string, error) {
	msg := &models.InboxMessage{
		NotificationID: payload.Data["notificationId"],
		RecipientID:    recipientID,
		Title:          payload.Title,
		Body:           payload.Body,
		Data:           payload.Data,
	}
	if err := t.inbox.Insert(ctx, msg); err != nil {
		return "", fmt.Errorf("store inbox message: %w", err)
	}

	if t.pubsub != nil {
		raw, err := json.Marshal(msg)
		if err == nil {
			err = t.pubsub.Publish(ctx, InboxChannelPrefix+recipientID, raw).Err()
		}
		if err != nil {
			// the message is stored; clients will see it on their next fetch
			t.logger.Warn("Inbox live update failed",
				zap.String("recipient_id", recipientID),
				zap.String("notification_id", msg.NotificationID),
				zap.Error(err),
			)
		}
	}
	return msg.ID, nil
}
