package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/webrtc-broadcast/internal/middleware"
	"github.com/mossy-p/webrtc-broadcast/internal/models"
	"github.com/rs/zerolog/log"
)

const tokenTTL = 24 * time.Hour

// Login issues an operator token.
// For demo purposes, accepts any username/password combination
func Login(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request body",
			})
			return
		}

		userID := req.Username
		token, err := middleware.IssueToken(jwtSecret, userID, tokenTTL)
		if err != nil {
			log.Error().Err(err).Msg("Failed to sign operator token")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to generate token",
			})
			return
		}

		log.Info().Str("user_id", userID).Msg("Operator logged in")
		c.JSON(http.StatusOK, models.LoginResponse{
			Token:  token,
			UserID: userID,
		})
	}
}
