package adapter

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/steveyiyo/fluvio-host/pkg/types"
)

// Frames exchanged with a realtime relay speaking the widget's event names.

type wsStart struct {
	Type             string            `json:"type"`
	SampleRate       int               `json:"sample_rate"`
	DynamicVariables map[string]string `json:"dynamic_variables,omitempty"`
}

type wsControl struct {
	Type string `json:"type"`
}

type wsEvent struct {
	Type       string            `json:"type"`
	Transcript []types.Utterance `json:"transcript,omitempty"`
	Message    string            `json:"message,omitempty"`
}

const writeWait = 5 * time.Second

// WebSocket drives a call through a realtime relay reachable over a plain
// WebSocket. The credential is presented as a bearer token on the upgrade.
type WebSocket struct {
	url    string
	dialer *websocket.Dialer
	log    *slog.Logger

	s       *stream
	closing atomic.Bool
	reading atomic.Bool
	writeMu sync.Mutex
	mu      sync.Mutex
	conn    *websocket.Conn
}

func NewWebSocket(url string, dialer *websocket.Dialer, log *slog.Logger) *WebSocket {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	if log == nil {
		log = slog.Default()
	}
	return &WebSocket{url: url, dialer: dialer, log: log, s: newStream()}
}

func (w *WebSocket) Name() string { return "websocket" }

func (w *WebSocket) Events() <-chan Event { return w.s.events() }

func (w *WebSocket) StartSession(ctx context.Context, req StartRequest) error {
	headers := http.Header{}
	headers.Add("Authorization", "Bearer "+req.Token)
	conn, _, err := w.dialer.DialContext(ctx, w.url, headers)
	if err != nil {
		w.s.finish(Failed{Reason: err.Error()})
		return &Error{Reason: err.Error()}
	}
	conn.SetReadLimit(1 << 20)

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	rate := req.SampleRate
	if rate == 0 {
		rate = DefaultSampleRate
	}
	if err := w.write(wsStart{Type: "start", SampleRate: rate, DynamicVariables: req.Variables}); err != nil {
		conn.Close()
		w.s.finish(Failed{Reason: err.Error()})
		return &Error{Reason: err.Error()}
	}
	w.reading.Store(true)
	go w.readMessages(conn)
	if w.closing.Load() {
		w.shutdown(conn)
	}
	return nil
}

func (w *WebSocket) readMessages(conn *websocket.Conn) {
	for {
		var ev wsEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if w.closing.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				w.s.finish(Ended{Reason: "closed"})
				return
			}
			w.log.Warn("realtime relay read", "err", err)
			w.s.finish(Failed{Reason: err.Error()})
			return
		}

		switch ev.Type {
		case "call_started":
			w.s.emit(Started{})
		case "call_ended":
			w.s.finish(Ended{Reason: "remote"})
			conn.Close()
			return
		case "agent_start_talking":
			w.s.emit(AgentSpeaking{Speaking: true})
		case "agent_stop_talking":
			w.s.emit(AgentSpeaking{Speaking: false})
		case "update":
			if len(ev.Transcript) > 0 {
				w.s.emit(TranscriptUpdate{Transcript: ev.Transcript})
			}
		case "error":
			reason := ev.Message
			if reason == "" {
				reason = "relay error"
			}
			w.s.finish(Failed{Reason: reason})
			conn.Close()
			return
		default:
			w.log.Debug("realtime relay: unknown frame", "type", ev.Type)
		}
	}
}

func (w *WebSocket) write(v any) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

func (w *WebSocket) shutdown(conn *websocket.Conn) {
	_ = w.write(wsControl{Type: "stop"})
	w.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	w.writeMu.Unlock()
	conn.Close()
}

func (w *WebSocket) StopSession() error {
	if w.closing.Swap(true) {
		return nil
	}
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		w.s.finish(Ended{Reason: "stopped"})
		return nil
	}
	w.shutdown(conn)
	// Without a reader nothing else will close the stream.
	if !w.reading.Load() {
		w.s.finish(Ended{Reason: "stopped"})
	}
	return nil
}
