package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LightningMCquen/Fullstack-chat-VC-app/internal/models"
	"github.com/LightningMCquen/Fullstack-chat-VC-app/internal/redis"
)

// GetUser returns a user's directory record (public). Unknown users get a
// bare record so the UI can still render the identity.
func GetUser(c *gin.Context) {
	userID := c.Param("userId")

	profile, err := redis.GetProfile(userID)
	if err != nil {
		log.Printf("Failed to load profile for %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load profile"})
		return
	}
	if profile == nil {
		c.JSON(http.StatusOK, models.UserProfile{ID: userID, DisplayName: userID})
		return
	}

	c.JSON(http.StatusOK, profile)
}

// UpdateProfile upserts the authenticated user's directory record.
func UpdateProfile(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req models.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	profile := models.UserProfile{
		ID:          userID.(string),
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
		UpdatedAt:   time.Now(),
	}
	if err := redis.SaveProfile(profile); err != nil {
		log.Printf("Failed to store profile for %s: %v", profile.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store profile"})
		return
	}

	log.Printf("Profile updated: %s (%s)", profile.ID, profile.DisplayName)

	c.JSON(http.StatusOK, profile)
}
