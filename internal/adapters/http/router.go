// Package http exposes the local operator control surface. It is a thin
// consumer of the session controller's public contract.
package http

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/lumacart/broadcast/internal/config"
)

func controlTokenMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token != "" && c.GetHeader("X-Control-Token") != token {
			c.AbortWithStatusJSON(401, gin.H{"error": "bad control token"})
			return
		}
		c.Next()
	}
}

func SetupRouter(cfg *config.Config, h *Handlers) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(controlTokenMiddleware(cfg.ControlToken))

	log.Info().Str("module", "adapters.http").Msg("router setup")

	api := r.Group("/api")

	api.GET("/status", h.GetStatus)
	api.GET("/devices", h.GetDevices)
	api.POST("/devices/select", h.SelectDevices)
	api.POST("/live/start", h.StartLive)
	api.POST("/live/stop", h.StopLive)
	api.POST("/intent/video", h.SetVideoIntent)
	api.POST("/intent/audio", h.SetAudioIntent)

	return r
}
