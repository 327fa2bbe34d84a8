package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/steveyiyo/fluvio-host/internal/core/chat"
	"github.com/steveyiyo/fluvio-host/internal/core/widget"
	"github.com/steveyiyo/fluvio-host/pkg/types"
)

type ChatHandler struct {
	Svc *widget.Service
}

func NewChatHandler(svc *widget.Service) *ChatHandler {
	return &ChatHandler{Svc: svc}
}

func (h *ChatHandler) controller(c *gin.Context) (*chat.Controller, bool) {
	w, ok := lookup(c, h.Svc)
	if !ok {
		return nil, false
	}
	cc, err := w.Chat()
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "chat_not_offered"})
		return nil, false
	}
	return cc, true
}

func (h *ChatHandler) Send(c *gin.Context) {
	cc, ok := h.controller(c)
	if !ok {
		return
	}
	var req types.ChatSendReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	msgs, err := cc.Send(c.Request.Context(), req.Text)
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty_message"})
	case errors.Is(err, chat.ErrSendInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": "send_in_flight"})
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": "webhook_failed", "messages": msgs})
	default:
		c.JSON(http.StatusOK, types.ChatSendHostResp{Messages: msgs})
	}
}

func (h *ChatHandler) History(c *gin.Context) {
	cc, ok := h.controller(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, types.ChatSendHostResp{Messages: cc.History()})
}
