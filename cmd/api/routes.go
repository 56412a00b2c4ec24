package main

import (
	"log/slog"

	"voicemail-recorder/internal/metrics"
	"voicemail-recorder/internal/telephony"
	"voicemail-recorder/pkg/logger"

	"github.com/gin-gonic/gin"
)

var publicEndpoints = []string{
	"/health",
	"/metrics",
	"/webhooks/answer",
	"/webhooks/recording",
	"/webhooks/event",
	"/recordings",
	"/recordings/:call_uuid",
}

// newRouter wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
func newRouter(log *slog.Logger, h telephony.WebhookHandler) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(logger.Middleware(log))
	r.Use(metrics.Middleware())
	r.Use(gin.CustomRecovery(telephony.Recovery))

	r.NoRoute(telephony.NotFound)
	r.NoMethod(telephony.MethodNotAllowed)

	r.GET("/health", telephony.Health)
	r.GET("/metrics", metrics.Handler())

	// Platform webhooks (public).
	// NOTE: inbound webhook signatures are not verified.
	hooks := r.Group("/webhooks")
	{
		hooks.GET("/answer", h.HandleAnswer)
		hooks.POST("/recording", h.HandleRecording)
		hooks.GET("/event", h.HandleEvent)
		hooks.POST("/event", h.HandleEvent)
	}

	recs := r.Group("/recordings")
	{
		recs.GET("", h.ListRecordings)
		recs.GET("/:call_uuid", h.GetRecording)
	}

	return r
}
