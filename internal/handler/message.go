package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/Bruno2K/team-scrapbook-sub000/internal/middleware"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/service"
	"github.com/Bruno2K/team-scrapbook-sub000/pkg/response"
)

type MessageHandler struct {
	dispatcher *service.DispatcherService
}

func NewMessageHandler(dispatcher *service.DispatcherService) *MessageHandler {
	return &MessageHandler{dispatcher: dispatcher}
}

// Send stores a message and fans it out.
// POST /api/v1/messages
func (h *MessageHandler) Send(c *gin.Context) {
	var req service.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.InvalidParams(c, "invalid message payload")
		return
	}

	view, err := h.dispatcher.Send(c.Request.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, view)
}
