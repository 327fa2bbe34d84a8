package adapter

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/steveyiyo/fluvio-host/pkg/types"
)

func next(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e, ok := <-ch:
		require.True(t, ok, "event stream closed")
		return e
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
		return nil
	}
}

func requireClosed(t *testing.T, ch <-chan Event) {
	t.Helper()
	select {
	case _, ok := <-ch:
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatalf("stream not closed")
	}
}

func TestSimulated_Sequence(t *testing.T) {
	a := NewSimulated(5 * time.Millisecond)
	require.NoError(t, a.StartSession(context.Background(), StartRequest{Token: "demo"}))

	require.Equal(t, KindStarted, next(t, a.Events()).Kind())
	up, ok := next(t, a.Events()).(TranscriptUpdate)
	require.True(t, ok)
	require.Equal(t, types.RoleAgent, up.Transcript[0].Role)

	select {
	case e := <-a.Events():
		t.Fatalf("unexpected event before stop: %v", e)
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, a.StopSession())
	require.Equal(t, KindEnded, next(t, a.Events()).Kind())
	requireClosed(t, a.Events())
	require.NoError(t, a.StopSession())
}

func TestSimulated_StopBeforeStart(t *testing.T) {
	a := NewSimulated(50 * time.Millisecond)
	require.NoError(t, a.StartSession(context.Background(), StartRequest{}))
	require.NoError(t, a.StopSession())

	require.Equal(t, KindEnded, next(t, a.Events()).Kind())
	requireClosed(t, a.Events())
}

func TestAppendUtterance(t *testing.T) {
	var ts []types.Utterance
	ts = appendUtterance(ts, types.RoleUser, "Hel")
	ts = appendUtterance(ts, types.RoleUser, "lo")
	ts = appendUtterance(ts, types.RoleAgent, "Hi")
	ts = appendUtterance(ts, types.RoleAgent, "")
	require.Equal(t, []types.Utterance{
		{Role: types.RoleUser, Content: "Hello"},
		{Role: types.RoleAgent, Content: "Hi"},
	}, ts)
}

func TestInstruction_SortedVariables(t *testing.T) {
	got := instruction(map[string]string{"greeting": "Hi", "company_name": "Acme"})
	require.True(t, strings.HasSuffix(got, "\ncompany_name: Acme\ngreeting: Hi"))
	require.Equal(t, geminiInstruction, instruction(nil))
}

type stubProvider struct {
	name string
	err  error
}

func (p stubProvider) Name() string { return p.name }

func (p stubProvider) Lookup(context.Context) (Factory, error) {
	if p.err != nil {
		return nil, p.err
	}
	return SimulatedFactory(0), nil
}

func TestResolver_RankedOrder(t *testing.T) {
	r := &Resolver{Providers: []Provider{
		stubProvider{name: "a", err: errors.New("missing")},
		stubProvider{name: "b"},
		stubProvider{name: "c"},
	}}
	name, f, err := r.Resolve(context.Background())
	require.NoError(t, err)
	require.Equal(t, "b", name)
	require.NotNil(t, f)
}

func TestResolver_AggregatedFailure(t *testing.T) {
	r := &Resolver{Providers: []Provider{
		GeminiProvider{},
		WebSocketProvider{URL: "https://not-a-socket.example"},
	}}
	_, _, err := r.Resolve(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
	require.Contains(t, err.Error(), "gemini:")
	require.Contains(t, err.Error(), "websocket:")

	b := r.Bind(context.Background(), time.Millisecond)
	require.True(t, b.Simulated)
	require.Equal(t, "simulated", b.Factory().Name())
}

func TestResolver_Providers(t *testing.T) {
	r := &Resolver{Providers: []Provider{
		GeminiProvider{},
		WebSocketProvider{URL: "wss://relay.example/live"},
	}}
	b := r.Bind(context.Background(), time.Millisecond)
	require.False(t, b.Simulated)
	require.Equal(t, "websocket", b.Provider)
	require.Equal(t, "websocket", b.Factory().Name())

	r = &Resolver{Providers: []Provider{GeminiProvider{Model: "gemini-live-2.5-flash-preview"}}}
	b = r.Bind(context.Background(), time.Millisecond)
	require.Equal(t, "gemini-live", b.Factory().Name())
}

// relay is a minimal realtime relay for exercising the WebSocket adapter.
func relay(t *testing.T, script func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var start wsStart
		if err := conn.ReadJSON(&start); err != nil || start.Type != "start" {
			return
		}
		script(conn)
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocket_RemoteLifecycle(t *testing.T) {
	srv := relay(t, func(conn *websocket.Conn) {
		_ = conn.WriteJSON(wsEvent{Type: "call_started"})
		_ = conn.WriteJSON(wsEvent{Type: "agent_start_talking"})
		_ = conn.WriteJSON(wsEvent{Type: "update", Transcript: []types.Utterance{{Role: "agent", Content: "Hi"}}})
		_ = conn.WriteJSON(wsEvent{Type: "call_ended"})
		time.Sleep(50 * time.Millisecond)
	})
	defer srv.Close()

	a := NewWebSocket(wsURL(srv), nil, nil)
	require.NoError(t, a.StartSession(context.Background(), StartRequest{Token: "tok"}))

	require.Equal(t, KindStarted, next(t, a.Events()).Kind())
	require.Equal(t, AgentSpeaking{Speaking: true}, next(t, a.Events()))
	up := next(t, a.Events()).(TranscriptUpdate)
	require.Equal(t, "Hi", up.Transcript[0].Content)
	require.Equal(t, Ended{Reason: "remote"}, next(t, a.Events()))
	requireClosed(t, a.Events())
}

func TestWebSocket_RelayError(t *testing.T) {
	srv := relay(t, func(conn *websocket.Conn) {
		_ = conn.WriteJSON(wsEvent{Type: "error", Message: "agent offline"})
		time.Sleep(50 * time.Millisecond)
	})
	defer srv.Close()

	a := NewWebSocket(wsURL(srv), nil, nil)
	require.NoError(t, a.StartSession(context.Background(), StartRequest{Token: "tok"}))
	require.Equal(t, Failed{Reason: "agent offline"}, next(t, a.Events()))
	requireClosed(t, a.Events())
}

func TestWebSocket_LocalStop(t *testing.T) {
	srv := relay(t, func(conn *websocket.Conn) {
		_ = conn.WriteJSON(wsEvent{Type: "call_started"})
		for {
			var c wsControl
			if err := conn.ReadJSON(&c); err != nil {
				return
			}
		}
	})
	defer srv.Close()

	a := NewWebSocket(wsURL(srv), nil, nil)
	require.NoError(t, a.StartSession(context.Background(), StartRequest{Token: "tok"}))
	require.Equal(t, KindStarted, next(t, a.Events()).Kind())

	require.NoError(t, a.StopSession())
	require.Equal(t, KindEnded, next(t, a.Events()).Kind())
	requireClosed(t, a.Events())
}

func TestWebSocket_DialFailure(t *testing.T) {
	srv := relay(t, func(*websocket.Conn) {})
	defer srv.Close()

	a := NewWebSocket(wsURL(srv), nil, nil)
	err := a.StartSession(context.Background(), StartRequest{Token: "wrong"})
	var ae *Error
	require.ErrorAs(t, err, &ae)
}

// brokenWriteConn accepts the upgrade handshake and then refuses all writes.
type brokenWriteConn struct {
	net.Conn
	handshook atomic.Bool
}

func (c *brokenWriteConn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	if n > 0 {
		c.handshook.Store(true)
	}
	return n, err
}

func (c *brokenWriteConn) Write(b []byte) (int, error) {
	if c.handshook.Load() {
		return 0, errors.New("connection reset")
	}
	return c.Conn.Write(b)
}

func TestWebSocket_StartWriteFailureClosesStream(t *testing.T) {
	srv := relay(t, func(*websocket.Conn) {})
	defer srv.Close()

	dialer := &websocket.Dialer{
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			var d net.Dialer
			c, err := d.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return &brokenWriteConn{Conn: c}, nil
		},
	}
	a := NewWebSocket(wsURL(srv), dialer, nil)
	err := a.StartSession(context.Background(), StartRequest{Token: "tok"})
	var ae *Error
	require.ErrorAs(t, err, &ae)

	require.NoError(t, a.StopSession())
	require.Equal(t, KindError, next(t, a.Events()).Kind())
	requireClosed(t, a.Events())
}

func TestWebSocket_StopWithoutReaderClosesStream(t *testing.T) {
	srv := relay(t, func(*websocket.Conn) {})
	defer srv.Close()

	a := NewWebSocket(wsURL(srv), nil, nil)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), http.Header{"Authorization": {"Bearer tok"}})
	require.NoError(t, err)
	// Connection bound but the start handshake never completed.
	a.conn = conn

	require.NoError(t, a.StopSession())
	require.Equal(t, Ended{Reason: "stopped"}, next(t, a.Events()))
	requireClosed(t, a.Events())
}

func audioTurn() *genai.Content {
	return &genai.Content{Parts: []*genai.Part{{InlineData: &genai.Blob{MIMEType: "audio/pcm;rate=24000", Data: []byte{0, 1}}}}}
}

func TestGeminiLive_Translate(t *testing.T) {
	g := NewGeminiLive("models/live", nil, nil)

	tests := []struct {
		name string
		msg  *genai.LiveServerMessage
		want []Event
	}{
		{
			name: "setup",
			msg:  &genai.LiveServerMessage{SetupComplete: &genai.LiveServerSetupComplete{}},
			want: []Event{Started{}},
		},
		{
			name: "userSpeech",
			msg: &genai.LiveServerMessage{ServerContent: &genai.LiveServerContent{
				InputTranscription: &genai.Transcription{Text: "Hello"},
			}},
			want: []Event{TranscriptUpdate{Transcript: []types.Utterance{{Role: types.RoleUser, Content: "Hello"}}}},
		},
		{
			name: "agentAudio",
			msg: &genai.LiveServerMessage{ServerContent: &genai.LiveServerContent{
				ModelTurn:           audioTurn(),
				OutputTranscription: &genai.Transcription{Text: "Hi "},
			}},
			want: []Event{
				AgentSpeaking{Speaking: true},
				TranscriptUpdate{Transcript: []types.Utterance{
					{Role: types.RoleUser, Content: "Hello"},
					{Role: types.RoleAgent, Content: "Hi "},
				}},
			},
		},
		{
			name: "agentAudioContinues",
			msg: &genai.LiveServerMessage{ServerContent: &genai.LiveServerContent{
				ModelTurn:           audioTurn(),
				OutputTranscription: &genai.Transcription{Text: "there"},
			}},
			want: []Event{
				TranscriptUpdate{Transcript: []types.Utterance{
					{Role: types.RoleUser, Content: "Hello"},
					{Role: types.RoleAgent, Content: "Hi there"},
				}},
			},
		},
		{
			name: "turnComplete",
			msg:  &genai.LiveServerMessage{ServerContent: &genai.LiveServerContent{TurnComplete: true}},
			want: []Event{AgentSpeaking{Speaking: false}},
		},
		{
			name: "interruptedWhileSilent",
			msg:  &genai.LiveServerMessage{ServerContent: &genai.LiveServerContent{Interrupted: true}},
		},
		{
			name: "textOnlyTurn",
			msg: &genai.LiveServerMessage{ServerContent: &genai.LiveServerContent{
				ModelTurn: &genai.Content{Parts: []*genai.Part{{Text: "thinking"}}},
			}},
		},
	}

	// Cases share one adapter: the transcript accumulates across messages.
	for _, tt := range tests {
		require.Equal(t, tt.want, g.translate(tt.msg), tt.name)
	}
}
