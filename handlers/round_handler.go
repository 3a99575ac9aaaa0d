package handlers

import (
	"net/http"

	"grousion/services"

	"github.com/gin-gonic/gin"
)

type RoundHandler struct {
	roundService  *services.RoundService
	answerService *services.AnswerService
	groupService  *services.GroupService
	hub           *services.Hub
}

func NewRoundHandler(roundService *services.RoundService, answerService *services.AnswerService, groupService *services.GroupService, hub *services.Hub) *RoundHandler {
	return &RoundHandler{
		roundService:  roundService,
		answerService: answerService,
		groupService:  groupService,
		hub:           hub,
	}
}

func (h *RoundHandler) StartRound(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	statementID, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req services.StartRoundRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	round, err := h.roundService.StartRound(statementID, userID, &req, h.hub)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, round)
}

func (h *RoundHandler) GetRound(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	roundID, ok := idParam(c, "id")
	if !ok {
		return
	}

	round, err := h.roundService.GetRound(roundID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, round)
}

// ListAnswers exposes raw answers to the admin; participants only ever
// see aggregates through the results endpoint.
func (h *RoundHandler) ListAnswers(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	roundID, ok := idParam(c, "id")
	if !ok {
		return
	}

	answers, err := h.answerService.ListAnswers(roundID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, answers)
}

func (h *RoundHandler) EndRound(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	roundID, ok := idParam(c, "id")
	if !ok {
		return
	}

	round, err := h.roundService.EndRound(roundID, userID, h.hub)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, round)
}

func (h *RoundHandler) SubmitAnswer(c *gin.Context) {
	roundID, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req services.SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	answer, err := h.answerService.SubmitAnswer(roundID, &req, h.hub)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, answer)
}

func (h *RoundHandler) GetRoundResults(c *gin.Context) {
	roundID, ok := idParam(c, "id")
	if !ok {
		return
	}

	results, err := h.roundService.GetRoundResults(roundID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, results)
}

func (h *RoundHandler) PrepareGroups(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	roundID, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req services.PrepareGroupsRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	groups, err := h.groupService.PrepareGroups(roundID, userID, &req, h.hub)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, groups)
}

func (h *RoundHandler) PreviewGroups(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	roundID, ok := idParam(c, "id")
	if !ok {
		return
	}

	plans, err := h.groupService.PreviewGroups(roundID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, plans)
}

func (h *RoundHandler) ListGroups(c *gin.Context) {
	roundID, ok := idParam(c, "id")
	if !ok {
		return
	}

	groups, err := h.groupService.ListGroups(roundID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, groups)
}
