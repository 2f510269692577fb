package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/webrtc-broadcast/internal/middleware"
	"github.com/mossy-p/webrtc-broadcast/internal/models"
	"github.com/mossy-p/webrtc-broadcast/internal/relay"
	"github.com/rs/zerolog/log"
)

// GetRoom reports who is in a room (public)
func GetRoom(hub *relay.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID := c.Param("roomId")

		info, err := hub.Room(c.Request.Context(), roomID)
		if errors.Is(err, relay.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
			return
		}
		if err != nil {
			log.Error().Err(err).Str("room", roomID).Msg("Failed to read room directory")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read room"})
			return
		}

		c.JSON(http.StatusOK, info)
	}
}

// CloseRoom disconnects every member of a room (requires authentication)
func CloseRoom(hub *relay.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID := c.Param("roomId")

		n, err := hub.CloseRoom(c.Request.Context(), roomID)
		if errors.Is(err, relay.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
			return
		}
		if err != nil {
			// members are already disconnected, only the directory lags
			log.Error().Err(err).Str("room", roomID).Msg("Failed to clear room directory")
		}

		log.Info().
			Str("room", roomID).
			Str("user_id", c.GetString(middleware.UserIDKey)).
			Int("disconnected", n).
			Msg("Room closed by operator")

		c.JSON(http.StatusOK, models.CloseRoomResponse{
			Room:         roomID,
			Disconnected: n,
		})
	}
}
