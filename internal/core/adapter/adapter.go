// Package adapter wraps third-party realtime voice clients behind one small
// contract: start a session with a credential, stop it, and read a typed
// stream of lifecycle events.
package adapter

import (
	"context"
	"errors"
	"sync"

	"github.com/steveyiyo/fluvio-host/pkg/types"
)

// DefaultSampleRate is the PCM rate requested from realtime backends.
const DefaultSampleRate = 24000

// ErrUnavailable means no realtime client could be bound.
var ErrUnavailable = errors.New("realtime client unavailable")

// Error is a runtime failure reported by the realtime client.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return "realtime client: " + e.Reason }

type Kind string

const (
	KindStarted       Kind = "started"
	KindEnded         Kind = "ended"
	KindError         Kind = "error"
	KindAgentSpeaking Kind = "agent_speaking"
	KindTranscript    Kind = "transcript_update"
)

// Event is one lifecycle notification from a realtime client.
type Event interface {
	Kind() Kind
}

type Started struct{}

func (Started) Kind() Kind { return KindStarted }

type Ended struct {
	Reason string
}

func (Ended) Kind() Kind { return KindEnded }

type Failed struct {
	Reason string
}

func (Failed) Kind() Kind { return KindError }

type AgentSpeaking struct {
	Speaking bool
}

func (AgentSpeaking) Kind() Kind { return KindAgentSpeaking }

// TranscriptUpdate carries the cumulative transcript, not a delta.
type TranscriptUpdate struct {
	Transcript []types.Utterance
}

func (TranscriptUpdate) Kind() Kind { return KindTranscript }

type StartRequest struct {
	Token      string
	SampleRate int
	Variables  map[string]string
}

// Adapter is one realtime session. Implementations close Events after the
// final Ended or Failed event; StopSession must be safe to call at any time.
type Adapter interface {
	Name() string
	StartSession(ctx context.Context, req StartRequest) error
	StopSession() error
	Events() <-chan Event
}

// Factory builds a fresh adapter for each call attempt.
type Factory func() Adapter

// stream is the event channel shared by the implementations. Sends block
// until the consumer reads; consumers drain until the channel is closed.
type stream struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

func newStream() *stream {
	return &stream{ch: make(chan Event, 16)}
}

func (s *stream) emit(e Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.ch <- e
	return true
}

// finish emits a terminal event and closes the stream. Later calls are no-ops.
func (s *stream) finish(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.ch <- e
	s.closed = true
	close(s.ch)
}

func (s *stream) events() <-chan Event { return s.ch }

// appendUtterance folds a transcription fragment into the running transcript.
func appendUtterance(ts []types.Utterance, role, text string) []types.Utterance {
	if text == "" {
		return ts
	}
	if n := len(ts); n > 0 && ts[n-1].Role == role {
		ts[n-1].Content += text
		return ts
	}
	return append(ts, types.Utterance{Role: role, Content: text})
}
