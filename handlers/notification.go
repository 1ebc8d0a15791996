package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ankaa/services/notification"
)

type NotificationHandler struct {
	Svc notification.NotificationService
}

// GetDeliveries handles GET /api/notifications/:id/deliveries.
func (h *NotificationHandler) GetDeliveries(c *gin.Context) {
	id := c.Param("id")
	records, err := h.Svc.Deliveries(c.Request.Context(), id)
	if errors.Is(err, notification.ErrNotificationNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "notification not found",
			"message": "no notification with id " + id,
		})
		return
	}
	if err != nil {
		getLogger(c).Error("GetDeliveries: failed to list deliveries", zap.String("notification_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to list deliveries",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"notificationId": id, "deliveries": records})
}

// GetChannelStatus handles GET /api/channels/status.
func (h *NotificationHandler) GetChannelStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"channels": h.Svc.ChannelStatus(c.Request.Context())})
}
