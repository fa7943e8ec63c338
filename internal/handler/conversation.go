package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/Bruno2K/team-scrapbook-sub000/internal/errors"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/middleware"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/service"
	"github.com/Bruno2K/team-scrapbook-sub000/pkg/response"
)

type ConversationHandler struct {
	conversations *service.ConversationService
}

func NewConversationHandler(conversations *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversations: conversations}
}

type CreateConversationRequest struct {
	OtherUserID int64 `json:"otherUserId,string" binding:"required"`
}

// List returns the caller's conversations, most recent first.
// GET /api/v1/conversations
func (h *ConversationHandler) List(c *gin.Context) {
	list, err := h.conversations.List(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, list)
}

// Create opens, or returns, the conversation with another user.
// POST /api/v1/conversations
func (h *ConversationHandler) Create(c *gin.Context) {
	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.InvalidParams(c, "otherUserId is required")
		return
	}

	summary, err := h.conversations.GetOrCreate(c.Request.Context(), middleware.GetUserID(c), req.OtherUserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, summary)
}

// Messages pages through history, newest page first.
// GET /api/v1/conversations/:id/messages?limit=&before=
func (h *ConversationHandler) Messages(c *gin.Context) {
	conversationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || conversationID <= 0 {
		response.InvalidParams(c, "invalid conversation id")
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			response.InvalidParams(c, "invalid limit")
			return
		}
	}
	var before int64
	if raw := c.Query("before"); raw != "" {
		if before, err = strconv.ParseInt(raw, 10, 64); err != nil {
			response.InvalidParams(c, "invalid before cursor")
			return
		}
	}

	page, err := h.conversations.ListMessages(c.Request.Context(), conversationID, middleware.GetUserID(c), limit, before)
	if err != nil {
		// outsiders cannot tell a foreign conversation from a missing one
		if apperrors.Is(err, apperrors.ErrNotParticipant) {
			response.ErrorWithStatus(c, http.StatusNotFound, apperrors.ErrConversationNotFound)
			return
		}
		response.Error(c, err)
		return
	}
	response.Success(c, page)
}
