package main

import (
	"log"

	"grousion/config"
	"grousion/handlers"
	"grousion/middleware"
	"grousion/models"
	"grousion/routes"
	"grousion/services"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database models
	err = db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.Statement{},
		&models.Participant{},
		&models.Round{},
		&models.Answer{},
		&models.Group{},
	)
	if err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize Redis
	redisClient := config.InitRedis(cfg)

	// Initialize services
	authService := services.NewAuthService(db, cfg.JWTSecret)
	sessionService := services.NewSessionService(db, redisClient)
	sessionService.StateTTL = cfg.SessionStateTTL
	statementService := services.NewStatementService(db, sessionService)
	participantService := services.NewParticipantService(db, sessionService)
	roundService := services.NewRoundService(db, sessionService)
	answerService := services.NewAnswerService(db)
	groupService := services.NewGroupService(db, sessionService, nil)

	// Initialize WebSocket hub
	hub := services.NewHub(sessionService)
	go hub.Run()

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	sessionHandler := handlers.NewSessionHandler(sessionService, participantService, hub)
	statementHandler := handlers.NewStatementHandler(statementService, hub)
	roundHandler := handlers.NewRoundHandler(roundService, answerService, groupService, hub)

	// Setup Gin router
	router := gin.Default()

	// Add CORS middleware
	router.Use(middleware.CORS())

	// Setup routes
	routes.SetupRoutes(router, authHandler, sessionHandler, statementHandler, roundHandler, hub, sessionService, participantService, cfg.JWTSecret)

	// Start server
	log.Printf("Server starting on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
