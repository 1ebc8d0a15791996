// Package events publishes delivery outcomes to a message broker so other
// services can follow notification progress without polling.
package events

import (
	"context"
	"time"

	"go.uber.org/zap"

	"ankaa/models"
)

// Sink publishes delivery events.
type Sink interface {
	Publish(ctx context.Context, e models.DeliveryEvent) error
	Close() error
}

// Observer adapts a sink to a dispatcher observer. Publish failures are
// logged and never affect the delivery.
func Observer(sink Sink, timeout time.Duration, logger *zap.Logger) func(models.DeliveryEvent) {
	logger = logger.Named("events")
	return func(e models.DeliveryEvent) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := sink.Publish(ctx, e); err != nil {
			logger.Warn("Failed to publish delivery event",
				zap.String("notification_id", e.NotificationID),
				zap.String("channel", string(e.Channel)),
				zap.String("status", string(e.Status)),
				zap.Error(err),
			)
		}
	}
}
