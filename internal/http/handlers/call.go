package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/steveyiyo/fluvio-host/internal/core/call"
	"github.com/steveyiyo/fluvio-host/internal/core/widget"
)

// CallHandler forwards start/stop intents. An intent the current phase does
// not accept is answered with accepted=false rather than an error.
type CallHandler struct {
	Svc *widget.Service
}

func NewCallHandler(svc *widget.Service) *CallHandler {
	return &CallHandler{Svc: svc}
}

func (h *CallHandler) controller(c *gin.Context) (*call.Controller, bool) {
	w, ok := lookup(c, h.Svc)
	if !ok {
		return nil, false
	}
	cc, err := w.Call()
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "voice_not_offered"})
		return nil, false
	}
	return cc, true
}

func (h *CallHandler) Start(c *gin.Context) {
	cc, ok := h.controller(c)
	if !ok {
		return
	}
	accepted := cc.Start()
	c.JSON(http.StatusAccepted, gin.H{"accepted": accepted, "state": cc.Snapshot()})
}

func (h *CallHandler) Stop(c *gin.Context) {
	cc, ok := h.controller(c)
	if !ok {
		return
	}
	accepted := cc.Stop()
	c.JSON(http.StatusAccepted, gin.H{"accepted": accepted, "state": cc.Snapshot()})
}

func (h *CallHandler) ToggleTranscript(c *gin.Context) {
	cc, ok := h.controller(c)
	if !ok {
		return
	}
	enabled := cc.ToggleTranscript()
	c.JSON(http.StatusOK, gin.H{"transcript_enabled": enabled})
}
