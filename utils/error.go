package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse is the body of every ops API error.
type ErrorResponse struct {
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// RequestIDHeader carries the id assigned by middleware.RequestLogger.
const RequestIDHeader = "X-Request-ID"

// ErrorHandler is a middleware to catch panics and return structured errors
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				requestID := c.Writer.Header().Get(RequestIDHeader)
				GetLogger().Error("Unhandled panic",
					zap.Any("error", err),
					zap.String("path", c.FullPath()),
					zap.String("request_id", requestID),
				)

				c.JSON(http.StatusInternalServerError, ErrorResponse{
					Message:   "Internal Server Error",
					Details:   "An unexpected error occurred. Please try again later.",
					RequestID: requestID,
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}

// JSONError sends a standardized JSON error response
func JSONError(c *gin.Context, status int, message string, details string) {
	requestID := c.Writer.Header().Get(RequestIDHeader)
	GetLogger().Warn(message,
		zap.Int("status", status),
		zap.String("details", details),
		zap.String("path", c.FullPath()),
		zap.String("request_id", requestID),
	)
	c.JSON(status, ErrorResponse{Message: message, Details: details, RequestID: requestID})
}
