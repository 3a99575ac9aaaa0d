package handlers

import (
	"net/http"
	"strconv"

	"grousion/services"

	"github.com/gin-gonic/gin"
)

type StatementHandler struct {
	statementService *services.StatementService
	hub              *services.Hub
}

func NewStatementHandler(statementService *services.StatementService, hub *services.Hub) *StatementHandler {
	return &StatementHandler{
		statementService: statementService,
		hub:              hub,
	}
}

func (h *StatementHandler) CreateStatement(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.CreateStatementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	statement, err := h.statementService.CreateStatement(c.Param("code"), userID, &req, h.hub)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, statement)
}

func (h *StatementHandler) GetStatement(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	statementID, ok := idParam(c, "id")
	if !ok {
		return
	}

	statement, err := h.statementService.GetStatement(statementID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, statement)
}

func (h *StatementHandler) UpdateStatement(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	statementID, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req services.UpdateStatementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	statement, err := h.statementService.UpdateStatement(statementID, userID, &req, h.hub)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, statement)
}

func (h *StatementHandler) DeleteStatement(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	statementID, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.statementService.DeleteStatement(statementID, userID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Statement deleted"})
}

type startTimerRequest struct {
	DurationSeconds int `json:"duration_seconds"`
}

func (h *StatementHandler) StartTimer(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	statementID, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req startTimerRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	statement, err := h.statementService.StartTimer(statementID, userID, req.DurationSeconds, h.hub)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, statement)
}

func (h *StatementHandler) StopTimer(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	statementID, ok := idParam(c, "id")
	if !ok {
		return
	}

	statement, err := h.statementService.StopTimer(statementID, userID, h.hub)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, statement)
}

func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return uint(id), true
}
