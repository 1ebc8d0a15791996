package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	deliveryRepo "ankaa/database/repository/delivery"
	notificationRepo "ankaa/database/repository/notification"
	recipientRepo "ankaa/database/repository/recipient"
	"ankaa/models"
	"ankaa/services/notification/ratelimit"
	"ankaa/services/notification/transport"
)

// ErrNotificationNotFound is returned when inspecting an unknown notification.
var ErrNotificationNotFound = errors.New("notification not found")

// NotificationService is the entry point business modules use to notify people.
type NotificationService interface {
	Notify(ctx context.Context, n models.Notification, recipient models.Recipient) (*Receipt, error)
	NotifyUser(ctx context.Context, n models.Notification, recipientID string) (*Receipt, error)
	Deliveries(ctx context.Context, notificationID string) ([]models.DeliveryRecord, error)
	ChannelStatus(ctx context.Context) []ChannelStatus
}

// Receipt tells the caller which channels were queued.
type Receipt struct {
	NotificationID string           `json:"notificationId"`
	Channels       []models.Channel `json:"channels"`
}

// ChannelStatus is the ops view of one channel.
type ChannelStatus struct {
	Channel    models.Channel   `json:"channel"`
	Configured bool             `json:"configured"`
	Ready      bool             `json:"ready"`
	Workers    int              `json:"workers"`
	RateLimit  *ratelimit.Usage `json:"rateLimit,omitempty"`
}

// Dispatcher is the part of dispatch.Dispatcher the service needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, n models.Notification, recipient models.Recipient) ([]models.Channel, error)
	Workers() map[models.Channel]int
}

// DefaultNotificationService is the production implementation.
type DefaultNotificationService struct {
	notifications notificationRepo.NotificationRepository
	recipients    recipientRepo.RecipientRepository
	records       deliveryRepo.DeliveryRecordRepository
	dispatcher    Dispatcher
	transports    transport.Set
	limiter       ratelimit.Limiter
	logger        *zap.Logger
}

func NewDefaultNotificationService(
	notifications notificationRepo.NotificationRepository,
	recipients recipientRepo.RecipientRepository,
	records deliveryRepo.DeliveryRecordRepository,
	dispatcher Dispatcher,
	transports transport.Set,
	limiter ratelimit.Limiter,
	logger *zap.Logger,
) (*DefaultNotificationService, error) {
	if notifications == nil || records == nil || dispatcher == nil {
		return nil, fmt.Errorf("notification service initialization error: store or dispatcher is nil")
	}
	return &DefaultNotificationService{
		notifications: notifications,
		recipients:    recipients,
		records:       records,
		dispatcher:    dispatcher,
		transports:    transports,
		limiter:       limiter,
		logger:        logger.Named("notification"),
	}, nil
}

// Notify persists n and fans it out to the resolved channels.
func (s *DefaultNotificationService) Notify(ctx context.Context, n models.Notification, recipient models.Recipient) (*Receipt, error) {
	if n.Type == "" {
		return nil, fmt.Errorf("Notify: notification type is required")
	}
	if recipient.ID == "" {
		return nil, fmt.Errorf("Notify: recipient id is required")
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Importance == "" {
		n.Importance = models.ImportanceMedium
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	n.SentAt = nil

	if err := s.notifications.Save(ctx, &n); err != nil {
		return nil, fmt.Errorf("Notify: could not save notification: %w", err)
	}

	channels, err := s.dispatcher.Dispatch(ctx, n, recipient)
	receipt := &Receipt{NotificationID: n.ID, Channels: channels}
	if err != nil {
		return receipt, fmt.Errorf("Notify: %w", err)
	}
	s.logger.Debug("Notification queued",
		zap.String("notification_id", n.ID),
		zap.String("type", n.Type),
		zap.Any("channels", channels),
	)
	return receipt, nil
}

// NotifyUser looks the recipient up in the directory, then calls Notify.
func (s *DefaultNotificationService) NotifyUser(ctx context.Context, n models.Notification, recipientID string) (*Receipt, error) {
	if s.recipients == nil {
		return nil, fmt.Errorf("NotifyUser: no recipient directory configured")
	}
	r, err := s.recipients.GetByID(ctx, recipientID)
	if err != nil {
		return nil, fmt.Errorf("NotifyUser: could not find recipient %s: %w", recipientID, err)
	}
	return s.Notify(ctx, n, *r)
}

// Deliveries returns every channel record of a notification.
func (s *DefaultNotificationService) Deliveries(ctx context.Context, notificationID string) ([]models.DeliveryRecord, error) {
	if _, err := s.notifications.GetByID(ctx, notificationID); err != nil {
		if errors.Is(err, notificationRepo.ErrNotFound) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	return s.records.ListByNotification(ctx, notificationID)
}

// ChannelStatus reports transport readiness, pool size and rate-limit usage
// for every known channel.
func (s *DefaultNotificationService) ChannelStatus(ctx context.Context) []ChannelStatus {
	workers := s.dispatcher.Workers()
	out := make([]ChannelStatus, 0, len(models.AllChannels))
	for _, ch := range models.AllChannels {
		st := ChannelStatus{Channel: ch, Workers: workers[ch]}
		if t, ok := s.transports.Get(ch); ok {
			st.Configured = true
			st.Ready = t.IsReady(ctx)
		}
		if s.limiter != nil {
			if usage, err := s.limiter.Usage(ctx, ch); err == nil {
				if usage.Limit > 0 {
					st.RateLimit = &usage
				}
			} else {
				s.logger.Warn("Failed to read rate limit usage", zap.String("channel", string(ch)), zap.Error(err))
			}
		}
		out = append(out, st)
	}
	return out
}
