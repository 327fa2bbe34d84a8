package adapter

import (
	"context"
	"sync"
	"time"

	"github.com/steveyiyo/fluvio-host/pkg/types"
)

const DemoNotice = "Demo Mode: voice call simulation. In production this panel shows the live transcript between the caller and the AI agent."

// Simulated reproduces the realtime event sequence without a connection:
// Started after StartDelay, Ended only after StopSession.
type Simulated struct {
	StartDelay time.Duration
	Notice     string

	s *stream

	mu    sync.Mutex
	timer *time.Timer
}

func NewSimulated(delay time.Duration) *Simulated {
	return &Simulated{StartDelay: delay, Notice: DemoNotice, s: newStream()}
}

// SimulatedFactory returns a Factory producing fresh simulated adapters.
func SimulatedFactory(delay time.Duration) Factory {
	return func() Adapter { return NewSimulated(delay) }
}

func (a *Simulated) Name() string { return "simulated" }

func (a *Simulated) Events() <-chan Event { return a.s.events() }

func (a *Simulated) StartSession(_ context.Context, _ StartRequest) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		return nil
	}
	a.timer = time.AfterFunc(a.StartDelay, func() {
		if !a.s.emit(Started{}) {
			return
		}
		if a.Notice != "" {
			a.s.emit(TranscriptUpdate{Transcript: []types.Utterance{{Role: types.RoleAgent, Content: a.Notice}}})
		}
	})
	return nil
}

func (a *Simulated) StopSession() error {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
	}
	a.mu.Unlock()
	a.s.finish(Ended{Reason: "stopped"})
	return nil
}
