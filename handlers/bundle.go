package handlers

import (
	"github.com/gin-gonic/gin"

	inboxRepo "ankaa/database/repository/inbox"
	"ankaa/services/notification"
)

// HandlerBundle groups all endpoint handlers into one struct.
type HandlerBundle struct {
	// Delivery inspection
	GetDeliveriesHandler    gin.HandlerFunc
	GetChannelStatusHandler gin.HandlerFunc

	// In-app inbox
	ListInboxHandler     gin.HandlerFunc
	MarkInboxReadHandler gin.HandlerFunc

	HealthHandler gin.HandlerFunc
}

// NewHandlerBundle wires the handlers to their services.
func NewHandlerBundle(svc notification.NotificationService, inbox inboxRepo.InboxRepository) *HandlerBundle {
	nh := &NotificationHandler{Svc: svc}
	ih := &InboxHandler{Inbox: inbox}
	return &HandlerBundle{
		GetDeliveriesHandler:    nh.GetDeliveries,
		GetChannelStatusHandler: nh.GetChannelStatus,
		ListInboxHandler:        ih.ListInbox,
		MarkInboxReadHandler:    ih.MarkRead,
		HealthHandler:           Health,
	}
}
