package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// Provider is one strategy for locating a realtime client.
type Provider interface {
	Name() string
	Lookup(ctx context.Context) (Factory, error)
}

type GeminiProvider struct {
	Model      string
	HTTPClient *http.Client
	Log        *slog.Logger
}

func (p GeminiProvider) Name() string { return "gemini" }

func (p GeminiProvider) Lookup(_ context.Context) (Factory, error) {
	if p.Model == "" {
		return nil, errors.New("no live model configured")
	}
	return func() Adapter { return NewGeminiLive(p.Model, p.HTTPClient, p.Log) }, nil
}

type WebSocketProvider struct {
	URL    string
	Dialer *websocket.Dialer
	Log    *slog.Logger
}

func (p WebSocketProvider) Name() string { return "websocket" }

func (p WebSocketProvider) Lookup(_ context.Context) (Factory, error) {
	if p.URL == "" {
		return nil, errors.New("no relay url configured")
	}
	u, err := url.Parse(p.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return nil, fmt.Errorf("relay url %q is not ws(s)", p.URL)
	}
	return func() Adapter { return NewWebSocket(p.URL, p.Dialer, p.Log) }, nil
}

// Binding is the outcome of resolution.
type Binding struct {
	Provider string
	Factory  Factory
	// Simulated is true when no real client was found.
	Simulated bool
}

// Resolver tries providers in rank order and keeps the first that binds.
type Resolver struct {
	Providers []Provider
	Log       *slog.Logger
}

// Resolve returns the first successful factory, or ErrUnavailable joined
// with every provider's failure.
func (r *Resolver) Resolve(ctx context.Context) (string, Factory, error) {
	var errs []error
	for _, p := range r.Providers {
		f, err := p.Lookup(ctx)
		if err == nil {
			return p.Name(), f, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
	}
	return "", nil, errors.Join(append([]error{ErrUnavailable}, errs...)...)
}

// Bind resolves a client, substituting a Simulated adapter when none is
// available. The substitution is logged, never surfaced as an error.
func (r *Resolver) Bind(ctx context.Context, demoDelay time.Duration) Binding {
	name, f, err := r.Resolve(ctx)
	if err == nil {
		return Binding{Provider: name, Factory: f}
	}
	log := r.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("realtime client unavailable, using simulated adapter", "err", err)
	return Binding{Provider: "simulated", Factory: SimulatedFactory(demoDelay), Simulated: true}
}
