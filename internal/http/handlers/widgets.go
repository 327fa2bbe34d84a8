package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/steveyiyo/fluvio-host/internal/core/sessioncfg"
	"github.com/steveyiyo/fluvio-host/internal/core/widget"
	"github.com/steveyiyo/fluvio-host/pkg/types"
	"github.com/steveyiyo/fluvio-host/pkg/ws"
)

type WidgetsHandler struct {
	Svc    *widget.Service
	Hub    *ws.Hub
	Scheme string
	Host   string
}

func NewWidgetsHandler(svc *widget.Service, hub *ws.Hub, scheme, host string) *WidgetsHandler {
	return &WidgetsHandler{Svc: svc, Hub: hub, Scheme: scheme, Host: host}
}

func (h *WidgetsHandler) Open(c *gin.Context) {
	var req types.OpenWidgetReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	w, created, err := h.Svc.Open(c.Request.Context(), req.PageID, req.Attributes)
	if err != nil {
		var ce *sessioncfg.ConfigurationError
		if errors.As(err, &ce) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid_configuration"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, types.OpenWidgetResp{
		WidgetID: w.ID,
		Created:  created,
		WSURL:    h.Scheme + "://" + h.Host + "/v1/stream?widget=" + w.ID,
		State:    w.Snapshot(),
	})
}

func (h *WidgetsHandler) Get(c *gin.Context) {
	w, ok := lookup(c, h.Svc)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, w.Snapshot())
}

func (h *WidgetsHandler) Close(c *gin.Context) {
	id := c.Param("id")
	if err := h.Svc.Close(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	h.Hub.RemoveAll(id)
	c.Status(http.StatusNoContent)
}

func (h *WidgetsHandler) SwitchMode(c *gin.Context) {
	w, ok := lookup(c, h.Svc)
	if !ok {
		return
	}
	var req types.SwitchModeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	if err := w.SwitchModality(req.Mode); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "mode_not_offered"})
		return
	}
	c.JSON(http.StatusOK, w.Snapshot())
}

func lookup(c *gin.Context, svc *widget.Service) (*widget.Widget, bool) {
	w, err := svc.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return nil, false
	}
	return w, true
}
