package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/webrtc-broadcast/config"
	"github.com/mossy-p/webrtc-broadcast/internal/middleware"
	"github.com/mossy-p/webrtc-broadcast/internal/relay"
)

// NewRouter wires the relay's HTTP surface.
func NewRouter(cfg *config.Config, hub *relay.Hub) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger())

	// Global CORS middleware (runs before routing)
	router.Use(OriginFilter(cfg.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Signaling websocket
	router.GET("/ws", HandleSignaling(hub))

	apiGroup := router.Group("/api")
	{
		// Login endpoint (public)
		apiGroup.POST("/auth/login", Login(cfg.JWTSecret))

		// Room presence (public)
		apiGroup.GET("/rooms/:roomId", GetRoom(hub))

		// Close room (requires JWT)
		apiGroup.DELETE("/rooms/:roomId", middleware.JWTAuth(cfg.JWTSecret), CloseRoom(hub))
	}

	return router
}
