package models

import "time"

// DeliveryStatus is the state of one (notification, channel) delivery.
type DeliveryStatus string

const (
	DeliveryPending    DeliveryStatus = "PENDING"
	DeliveryProcessing DeliveryStatus = "PROCESSING"
	DeliveryDelivered  DeliveryStatus = "DELIVERED"
	DeliveryFailed     DeliveryStatus = "FAILED"
	DeliveryRetrying   DeliveryStatus = "RETRYING"
)

// IsTerminal reports whether no further transition may leave this status.
func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliveryDelivered || s == DeliveryFailed
}

// DeliveryRecord tracks one (notificationId, channel) pair. Records are never deleted.
type DeliveryRecord struct {
	NotificationID string         `bson:"notificationId" json:"notificationId"`
	Channel        Channel        `bson:"channel" json:"channel"`
	RecipientID    string         `bson:"recipientId,omitempty" json:"recipientId,omitempty"`
	Status         DeliveryStatus `bson:"status" json:"status"`
	Attempts       int            `bson:"attempts" json:"attempts"`
	ErrorMessage   string         `bson:"errorMessage,omitempty" json:"errorMessage,omitempty"`
	MessageID      string         `bson:"messageId,omitempty" json:"messageId,omitempty"`
	SentAt         *time.Time     `bson:"sentAt,omitempty" json:"sentAt,omitempty"`
	DeliveredAt    *time.Time     `bson:"deliveredAt,omitempty" json:"deliveredAt,omitempty"`
	FailedAt       *time.Time     `bson:"failedAt,omitempty" json:"failedAt,omitempty"`
	CreatedAt      time.Time      `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time      `bson:"updatedAt" json:"updatedAt"`
}

// ChannelPreference is a recipient's channel choice for a notification type.
type ChannelPreference struct {
	RecipientID      string    `bson:"recipientId" json:"recipientId"`
	NotificationType string    `bson:"notificationType" json:"notificationType"`
	Enabled          bool      `bson:"enabled" json:"enabled"`
	Channels         []Channel `bson:"channels" json:"channels"`
	UpdatedAt        time.Time `bson:"updatedAt" json:"updatedAt"`
}

// GlobalChannelDefault is the system-wide channel choice for a notification type.
type GlobalChannelDefault struct {
	NotificationType string    `bson:"notificationType" json:"notificationType"`
	Enabled          bool      `bson:"enabled" json:"enabled"`
	Channels         []Channel `bson:"channels" json:"channels"`
	UpdatedAt        time.Time `bson:"updatedAt" json:"updatedAt"`
}
