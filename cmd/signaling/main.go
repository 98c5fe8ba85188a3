package main

import (
	"log"

	"github.com/LightningMCquen/Fullstack-chat-VC-app/config"
	"github.com/LightningMCquen/Fullstack-chat-VC-app/internal/handlers"
	"github.com/LightningMCquen/Fullstack-chat-VC-app/internal/middleware"
	"github.com/LightningMCquen/Fullstack-chat-VC-app/internal/presence"
	"github.com/LightningMCquen/Fullstack-chat-VC-app/internal/redis"
	"github.com/LightningMCquen/Fullstack-chat-VC-app/internal/relay"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Connect to Redis (user directory + presence mirror)
	if err := redis.Connect(cfg.Redis); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redis.Close()

	log.Println("Redis connection established")

	// Presence registry and relay; the registry is the only mutable
	// server state and is owned by the relay's event lock.
	registry := presence.NewRegistry()
	signalRelay := relay.New(registry)

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// Global CORS middleware (runs before routing)
	router.Use(handlers.OriginFilter(cfg.AllowedOrigins))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Auth + user directory API
	apiGroup := router.Group("/api")
	{
		// Login endpoint (public)
		apiGroup.POST("/auth/login", handlers.Login(cfg.JWTSecret))

		// Directory lookup (public)
		apiGroup.GET("/users/:userId", handlers.GetUser)

		// Own profile upsert (requires JWT)
		apiGroup.PUT("/users/me", middleware.JWTAuth(cfg.JWTSecret), handlers.UpdateProfile)
	}

	// WebSocket signaling channel, one per authenticated user
	wsGroup := router.Group("/ws")
	{
		wsGroup.GET("/signal", middleware.WSAuth(cfg.JWTSecret), handlers.HandleSignaling(signalRelay))
	}

	// Start server
	log.Printf("Starting call signaling server on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
