package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/steveyiyo/fluvio-host/internal/core/widget"
	"github.com/steveyiyo/fluvio-host/pkg/types"
	"github.com/steveyiyo/fluvio-host/pkg/ws"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// StreamHandler pushes widget state frames to the page script. Intents travel
// over HTTP; anything the page sends on the socket is read and dropped.
type StreamHandler struct {
	Hub      *ws.Hub
	Svc      *widget.Service
	Log      *slog.Logger
	Upgrader websocket.Upgrader
}

func NewStreamHandler(h *ws.Hub, s *widget.Service, log *slog.Logger) *StreamHandler {
	if log == nil {
		log = slog.Default()
	}
	return &StreamHandler{
		Hub: h,
		Svc: s,
		Log: log,
		Upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *StreamHandler) WS(c *gin.Context) {
	id := c.Query("widget")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	w, err := h.Svc.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	conn, err := h.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	cl := ws.NewClient(conn)
	h.Hub.Add(id, cl)
	go cl.WritePump(pingPeriod)
	// Subscribed before the snapshot is taken, so no transition falls in the
	// gap. Resync then orders the latest state after hello.
	h.Hub.Send(id, cl, types.Frame{Type: "hello", TS: time.Now().UnixMilli(), Data: w.Snapshot()})
	w.Resync()
	h.Log.Debug("stream subscribed", "widget_id", id, "subscribers", h.Hub.Count(id))
	defer h.Hub.Remove(id, cl)

	conn.SetReadLimit(64 << 10)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
