package routes

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ankaa/config"
	"ankaa/handlers"
	"ankaa/middleware"
)

// RegisterNotificationRoutes registers delivery inspection endpoints.
func RegisterNotificationRoutes(api *gin.RouterGroup, hb *handlers.HandlerBundle) {
	api.GET("/notifications/:id/deliveries", hb.GetDeliveriesHandler)
	api.GET("/channels/status", hb.GetChannelStatusHandler)
}

// RegisterInboxRoutes registers the in-app inbox endpoints.
func RegisterInboxRoutes(api *gin.RouterGroup, hb *handlers.HandlerBundle) {
	inbox := api.Group("/inbox")
	{
		inbox.GET("/:recipientId", hb.ListInboxHandler)
		inbox.PATCH("/:recipientId/:messageId/read", hb.MarkInboxReadHandler)
	}
}

// RegisterHealthRoute registers the health and metrics endpoints.
func RegisterHealthRoute(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.GET("/health", hb.HealthHandler)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// RegisterRoutes centralizes registration of all endpoints and middleware.
func RegisterRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	RegisterHealthRoute(r, hb)

	api := r.Group("/api")
	api.Use(
		middleware.RateLimitMiddleware(config.AppConfig.MaxRequestsPerMin),
		middleware.OpsTokenMiddleware(config.AppConfig.OpsAPIToken),
	)
	RegisterNotificationRoutes(api, hb)
	RegisterInboxRoutes(api, hb)
}
