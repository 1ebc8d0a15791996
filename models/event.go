package models

import "time"

// DeliveryEvent is emitted after every delivery attempt.
type DeliveryEvent struct {
	NotificationID string         `json:"notificationId"`
	Type           string         `json:"type"`
	Channel        Channel        `json:"channel"`
	RecipientID    string         `json:"recipientId"`
	Status         DeliveryStatus `json:"status"`
	Attempts       int            `json:"attempts"`
	Class          string         `json:"class,omitempty"`
	Error          string         `json:"error,omitempty"`
	MessageID      string         `json:"messageId,omitempty"`
	RetryIn        time.Duration  `json:"retryIn,omitempty"`
	OccurredAt     time.Time      `json:"occurredAt"`
}
