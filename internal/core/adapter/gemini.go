package adapter

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/steveyiyo/fluvio-host/pkg/types"
)

const geminiInstruction = "You are the voice assistant embedded on this company's website. Keep answers short and conversational. Use the following context about the business when relevant."

// GeminiLive runs the call over the Gemini Live API. The webhook credential
// is an ephemeral Live token and is used in place of an API key.
type GeminiLive struct {
	model string
	hc    *http.Client
	log   *slog.Logger

	s        *stream
	closing  atomic.Bool
	mu       sync.Mutex
	session  *genai.Session
	speaking bool
	lines    []types.Utterance
}

func NewGeminiLive(model string, hc *http.Client, log *slog.Logger) *GeminiLive {
	if hc == nil {
		hc = defaultHTTPClient()
	}
	if log == nil {
		log = slog.Default()
	}
	return &GeminiLive{model: model, hc: hc, log: log, s: newStream()}
}

func defaultHTTPClient() *http.Client {
	tr := &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		TLSClientConfig:   &tls.Config{MinVersion: tls.VersionTLS12},
		ForceAttemptHTTP2: false,
		MaxIdleConns:      100,
		IdleConnTimeout:   90 * time.Second,
	}
	return &http.Client{Transport: tr, Timeout: 30 * time.Second}
}

func (g *GeminiLive) Name() string { return "gemini-live" }

func (g *GeminiLive) Events() <-chan Event { return g.s.events() }

func (g *GeminiLive) StartSession(ctx context.Context, req StartRequest) error {
	cl, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     req.Token,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: g.hc,
		HTTPOptions: genai.HTTPOptions{
			APIVersion: "v1alpha",
		},
	})
	if err != nil {
		g.s.finish(Failed{Reason: err.Error()})
		return &Error{Reason: err.Error()}
	}
	sess, err := cl.Live.Connect(ctx, g.model, &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: instruction(req.Variables)}},
		},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	})
	if err != nil {
		g.s.finish(Failed{Reason: err.Error()})
		return &Error{Reason: err.Error()}
	}

	g.mu.Lock()
	g.session = sess
	g.mu.Unlock()
	if g.closing.Load() {
		_ = sess.Close()
	}
	go g.readMessages(sess)
	return nil
}

func (g *GeminiLive) readMessages(sess *genai.Session) {
	for {
		msg, err := sess.Receive()
		if err != nil {
			if g.closing.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.s.finish(Ended{Reason: "closed"})
				return
			}
			g.log.Warn("gemini live receive", "err", err)
			g.s.finish(Failed{Reason: err.Error()})
			return
		}
		for _, e := range g.translate(msg) {
			g.s.emit(e)
		}
	}
}

func (g *GeminiLive) translate(msg *genai.LiveServerMessage) []Event {
	var out []Event
	if msg.SetupComplete != nil {
		out = append(out, Started{})
	}
	sc := msg.ServerContent
	if sc == nil {
		return out
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if sc.ModelTurn != nil && hasAudio(sc.ModelTurn) && !g.speaking {
		g.speaking = true
		out = append(out, AgentSpeaking{Speaking: true})
	}
	changed := false
	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		g.lines = appendUtterance(g.lines, types.RoleUser, sc.InputTranscription.Text)
		changed = true
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		g.lines = appendUtterance(g.lines, types.RoleAgent, sc.OutputTranscription.Text)
		changed = true
	}
	if changed {
		out = append(out, TranscriptUpdate{Transcript: append([]types.Utterance(nil), g.lines...)})
	}
	if (sc.TurnComplete || sc.Interrupted) && g.speaking {
		g.speaking = false
		out = append(out, AgentSpeaking{Speaking: false})
	}
	return out
}

func hasAudio(c *genai.Content) bool {
	for _, p := range c.Parts {
		if p != nil && p.InlineData != nil && strings.HasPrefix(p.InlineData.MIMEType, "audio/") {
			return true
		}
	}
	return false
}

func (g *GeminiLive) StopSession() error {
	g.closing.Store(true)
	g.mu.Lock()
	sess := g.session
	g.mu.Unlock()
	if sess == nil {
		g.s.finish(Ended{Reason: "stopped"})
		return nil
	}
	return sess.Close()
}

func instruction(vars map[string]string) string {
	if len(vars) == 0 {
		return geminiInstruction
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(geminiInstruction)
	for _, k := range keys {
		b.WriteString("\n")
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(vars[k])
	}
	return b.String()
}
