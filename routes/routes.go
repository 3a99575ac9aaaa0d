package routes

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"grousion/handlers"
	"grousion/middleware"
	"grousion/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

func SetupRoutes(
	router *gin.Engine,
	authHandler *handlers.AuthHandler,
	sessionHandler *handlers.SessionHandler,
	statementHandler *handlers.StatementHandler,
	roundHandler *handlers.RoundHandler,
	hub *services.Hub,
	sessionService *services.SessionService,
	participantService *services.ParticipantService,
	jwtSecret string,
) {
	api := router.Group("/api")
	{
		// Auth routes (public)
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
		}

		// Protected admin routes
		protected := api.Group("/")
		protected.Use(middleware.AuthMiddleware(jwtSecret))
		{
			protected.GET("/auth/profile", authHandler.GetProfile)

			sessions := protected.Group("/sessions")
			{
				sessions.GET("", sessionHandler.GetUserSessions)
				sessions.POST("", sessionHandler.CreateSession)
				sessions.DELETE("/:code", sessionHandler.DeleteSession)
				sessions.POST("/:code/publish", sessionHandler.PublishSession)
				sessions.POST("/:code/start", sessionHandler.StartSession)
				sessions.POST("/:code/end", sessionHandler.EndSession)
				sessions.POST("/:code/joins", sessionHandler.SetAllowJoins)
				sessions.POST("/:code/test-mode", sessionHandler.SetTestMode)
				sessions.POST("/:code/statements", statementHandler.CreateStatement)
			}

			statements := protected.Group("/statements")
			{
				statements.GET("/:id", statementHandler.GetStatement)
				statements.PUT("/:id", statementHandler.UpdateStatement)
				statements.DELETE("/:id", statementHandler.DeleteStatement)
				statements.POST("/:id/rounds", roundHandler.StartRound)
				statements.POST("/:id/timer/start", statementHandler.StartTimer)
				statements.POST("/:id/timer/stop", statementHandler.StopTimer)
			}

			rounds := protected.Group("/rounds")
			{
				rounds.GET("/:id", roundHandler.GetRound)
				rounds.GET("/:id/answers", roundHandler.ListAnswers)
				rounds.POST("/:id/end", roundHandler.EndRound)
				rounds.POST("/:id/groups", roundHandler.PrepareGroups)
				rounds.GET("/:id/groups/preview", roundHandler.PreviewGroups)
			}
		}

		// Public participant routes
		publicSessions := api.Group("/sessions")
		{
			publicSessions.GET("/:code", sessionHandler.GetSessionByCode)
			publicSessions.GET("/:code/state", sessionHandler.GetSessionState)
			publicSessions.POST("/:code/join", sessionHandler.JoinSession)
		}

		publicRounds := api.Group("/rounds")
		{
			publicRounds.POST("/:id/answers", roundHandler.SubmitAnswer)
			publicRounds.GET("/:id/results", roundHandler.GetRoundResults)
			publicRounds.GET("/:id/groups", roundHandler.ListGroups)
		}
	}

	// WebSocket endpoint for realtime session updates
	router.GET("/ws/:code/:viewerID", func(c *gin.Context) {
		sessionCode := strings.ToLower(c.Param("code"))
		viewerIDStr := c.Param("viewerID")
		viewerName := c.Query("viewerName")

		var viewerID uint
		if _, err := fmt.Sscanf(viewerIDStr, "%d", &viewerID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid viewer ID"})
			return
		}

		if err := validateViewerAccess(sessionService, participantService, sessionCode, viewerID); err != nil {
			log.Printf("Viewer access validation failed for session %s, viewer %d: %v", sessionCode, viewerID, err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Viewer not found in session"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed for session %s, viewer %s: %v", sessionCode, viewerIDStr, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upgrade connection"})
			return
		}

		if viewerName == "" && viewerID != 0 {
			if participant, err := participantService.GetParticipantByID(viewerID); err == nil {
				viewerName = participant.Name
			} else {
				viewerName = "Unknown viewer"
			}
		}

		hub.RegisterClient(conn, sessionCode, viewerID, viewerName)
	})

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// validateViewerAccess checks that the viewer is a participant of the
// session, or its owner when viewerID matches the creator.
func validateViewerAccess(sessionService *services.SessionService, participantService *services.ParticipantService, sessionCode string, viewerID uint) error {
	session, err := sessionService.GetSessionByCode(sessionCode)
	if err != nil {
		return fmt.Errorf("session not found: %w", err)
	}

	if viewerID == 0 || viewerID == session.CreatedBy {
		return nil
	}

	participant, err := participantService.GetParticipantByID(viewerID)
	if err == nil && participant.SessionID == session.ID {
		return nil
	}

	return fmt.Errorf("viewer %d not found in session %s", viewerID, sessionCode)
}
