package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ankaa/utils"
)

// Health handles GET /health. It reports 503 until the last check saw both
// Mongo and Redis up.
func Health(c *gin.Context) {
	status := utils.GetHealthStatus()
	code := http.StatusOK
	state := "ok"
	if !status.Mongo || !status.Redis {
		code = http.StatusServiceUnavailable
		state = "degraded"
	}
	c.JSON(code, gin.H{"status": state, "message": "Hi, I'm Ankaa", "checks": status})
}
