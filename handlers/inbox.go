package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	inboxRepo "ankaa/database/repository/inbox"
)

const (
	defaultInboxLimit = 50
	maxInboxLimit     = 200
)

type InboxHandler struct {
	Inbox inboxRepo.InboxRepository
}

// ListInbox handles GET /api/inbox/:recipientId.
func (h *InboxHandler) ListInbox(c *gin.Context) {
	recipientID := c.Param("recipientId")

	limit := defaultInboxLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid limit",
				"message": "limit must be a positive integer",
			})
			return
		}
		limit = min(n, maxInboxLimit)
	}

	msgs, err := h.Inbox.ListByRecipient(c.Request.Context(), recipientID, int64(limit))
	if err != nil {
		getLogger(c).Error("ListInbox: failed to list messages", zap.String("recipient_id", recipientID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to list inbox",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"recipientId": recipientID, "messages": msgs})
}

// MarkRead handles PATCH /api/inbox/:recipientId/:messageId/read.
func (h *InboxHandler) MarkRead(c *gin.Context) {
	recipientID, messageID := c.Param("recipientId"), c.Param("messageId")
	err := h.Inbox.MarkRead(c.Request.Context(), recipientID, messageID)
	if errors.Is(err, inboxRepo.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "message not found",
			"message": "no inbox message " + messageID + " for recipient " + recipientID,
		})
		return
	}
	if err != nil {
		getLogger(c).Error("MarkRead: failed to update message", zap.String("message_id", messageID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to mark message read",
			"message": err.Error(),
		})
		return
	}
	c.Status(http.StatusNoContent)
}
