package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/steveyiyo/fluvio-host/pkg/types"
)

const (
	sendBuffer = 64
	writeWait  = 5 * time.Second
)

// Client is one stream subscriber. Frames are queued on Send and written by
// WritePump.
type Client struct {
	Conn *websocket.Conn
	Send chan types.Frame
	once sync.Once
}

func NewClient(c *websocket.Conn) *Client {
	return &Client{Conn: c, Send: make(chan types.Frame, sendBuffer)}
}

func (c *Client) close() {
	c.once.Do(func() { close(c.Send) })
}

// WritePump drains Send until it is closed or a write fails.
func (c *Client) WritePump(ping time.Duration) {
	t := time.NewTicker(ping)
	defer func() {
		t.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case f, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(f); err != nil {
				return
			}
		case <-t.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type Hub struct {
	mu    sync.RWMutex
	conns map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{conns: map[string]map[*Client]struct{}{}}
}

func (h *Hub) Add(id string, c *Client) {
	h.mu.Lock()
	set, ok := h.conns[id]
	if !ok {
		set = map[*Client]struct{}{}
		h.conns[id] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) Count(id string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[id])
}

func (h *Hub) Remove(id string, c *Client) {
	h.mu.Lock()
	if set, ok := h.conns[id]; ok {
		if _, ok := set[c]; ok {
			delete(set, c)
			c.close()
		}
		if len(set) == 0 {
			delete(h.conns, id)
		}
	}
	h.mu.Unlock()
}

// RemoveAll disconnects every subscriber of id.
func (h *Hub) RemoveAll(id string) {
	h.mu.Lock()
	for c := range h.conns[id] {
		c.close()
	}
	delete(h.conns, id)
	h.mu.Unlock()
}

// Send queues f for one subscriber. It reports false when c is no longer
// subscribed or its queue is full.
func (h *Hub) Send(id string, c *Client, f types.Frame) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.conns[id][c]; !ok {
		return false
	}
	select {
	case c.Send <- f:
		return true
	default:
		return false
	}
}

// Publish never blocks. A subscriber whose queue is full misses the frame.
func (h *Hub) Publish(id string, f types.Frame) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns[id] {
		select {
		case c.Send <- f:
		default:
		}
	}
}
