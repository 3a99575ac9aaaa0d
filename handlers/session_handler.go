package handlers

import (
	"net/http"

	"grousion/services"

	"github.com/gin-gonic/gin"
)

type SessionHandler struct {
	sessionService     *services.SessionService
	participantService *services.ParticipantService
	hub                *services.Hub
}

func NewSessionHandler(sessionService *services.SessionService, participantService *services.ParticipantService, hub *services.Hub) *SessionHandler {
	return &SessionHandler{
		sessionService:     sessionService,
		participantService: participantService,
		hub:                hub,
	}
}

func (h *SessionHandler) CreateSession(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.sessionService.CreateSession(userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

func (h *SessionHandler) GetUserSessions(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	sessions, err := h.sessionService.GetUserSessions(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, sessions)
}

func (h *SessionHandler) GetSessionByCode(c *gin.Context) {
	session, err := h.sessionService.GetSessionByCode(c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) DeleteSession(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.sessionService.DeleteSession(c.Param("code"), userID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Session deleted"})
}

func (h *SessionHandler) PublishSession(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	session, err := h.sessionService.PublishSession(c.Param("code"), userID, h.hub)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) StartSession(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	session, err := h.sessionService.StartSession(c.Param("code"), userID, h.hub)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) EndSession(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	session, err := h.sessionService.EndSession(c.Param("code"), userID, h.hub)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

type allowJoinsRequest struct {
	Allow bool `json:"allow"`
}

func (h *SessionHandler) SetAllowJoins(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req allowJoinsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.sessionService.SetAllowJoins(c.Param("code"), userID, req.Allow, h.hub)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) SetTestMode(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.TestModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.sessionService.SetTestMode(c.Param("code"), userID, &req, h.hub)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) JoinSession(c *gin.Context) {
	var req services.JoinSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	participant, err := h.participantService.JoinSession(c.Param("code"), &req, h.hub)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, participant)
}

func (h *SessionHandler) GetSessionState(c *gin.Context) {
	state, err := h.sessionService.GetSessionState(c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, state)
}
