// Package call drives one widget's voice call through
// Idle → Connecting → Active → Ending → Idle, with Error as the failure
// detour back to Idle.
//
// All state is guarded by a single mutex. Network and adapter work runs on
// background goroutines whose results are tagged with the generation that
// started them; results for an older generation are dropped.
package call

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/steveyiyo/fluvio-host/internal/core/adapter"
	"github.com/steveyiyo/fluvio-host/internal/core/broker"
	"github.com/steveyiyo/fluvio-host/internal/core/sessioncfg"
	"github.com/steveyiyo/fluvio-host/pkg/types"
)

type Phase string

const (
	Idle       Phase = "idle"
	Connecting Phase = "connecting"
	Active     Phase = "active"
	Ending     Phase = "ending"
	Error      Phase = "error"
)

const (
	FrameState      = "call.state"
	FrameTranscript = "call.transcript"
)

// ErrTimeout is reported when the realtime client neither confirms nor
// fails within the configured timeout.
var ErrTimeout = errors.New("timed out waiting for the realtime session")

// Broker is the credential source.
type Broker interface {
	Acquire(ctx context.Context, cfg sessioncfg.Config, mode types.Mode, vars map[string]string) (broker.Credential, error)
}

type Options struct {
	Config  sessioncfg.Config
	Broker  Broker
	Binding adapter.Binding
	// DemoDelay is how long a placeholder-endpoint call takes to connect.
	DemoDelay time.Duration
	// Timeout bounds credential acquisition, start confirmation and stop
	// confirmation. Zero disables it.
	Timeout time.Duration
	// Emit receives UI frames. It is called with the controller locked and
	// must not call back into the controller.
	Emit func(typ string, data any)
	Log  *slog.Logger
}

type Controller struct {
	cfg       sessioncfg.Config
	broker    Broker
	binding   adapter.Binding
	demoDelay time.Duration
	timeout   time.Duration
	emit      func(string, any)
	log       *slog.Logger
	// handlers report whether the adapter must be stopped after a failure.
	handlers map[adapter.Kind]func(adapter.Event) bool

	mu                sync.Mutex
	phase             Phase
	gen               uint64
	adapter           adapter.Adapter
	demo              bool
	status            string
	speaking          bool
	transcriptEnabled bool
	transcript        []types.Utterance
	lastErr           error
}

func New(opts Options) *Controller {
	c := &Controller{
		cfg:               opts.Config,
		broker:            opts.Broker,
		binding:           opts.Binding,
		demoDelay:         opts.DemoDelay,
		timeout:           opts.Timeout,
		emit:              opts.Emit,
		log:               opts.Log,
		phase:             Idle,
		transcriptEnabled: opts.Config.ShowTranscript,
	}
	if c.binding.Factory == nil {
		c.binding = adapter.Binding{Provider: "simulated", Factory: adapter.SimulatedFactory(c.demoDelay), Simulated: true}
	}
	if c.emit == nil {
		c.emit = func(string, any) {}
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	c.status = c.idleStatus()
	c.handlers = map[adapter.Kind]func(adapter.Event) bool{
		adapter.KindStarted:       c.onStarted,
		adapter.KindEnded:         c.onEnded,
		adapter.KindError:         c.onError,
		adapter.KindAgentSpeaking: c.onAgentSpeaking,
		adapter.KindTranscript:    c.onTranscript,
	}
	return c
}

// Start begins a call. It reports false, doing nothing, unless the call is Idle.
func (c *Controller) Start() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != Idle {
		return false
	}
	c.gen++
	c.transcript = nil
	c.speaking = false
	c.lastErr = nil
	c.transition(Connecting, "Connecting...")
	go c.connect(c.gen)
	return true
}

func (c *Controller) connect(gen uint64) {
	ctx, cancel := c.opContext()
	defer cancel()

	factory := c.binding.Factory
	simulated := c.binding.Simulated
	var cred broker.Credential
	if c.cfg.DemoEndpoint {
		c.log.Info("placeholder webhook, simulating call")
		cred = broker.Credential{Token: "demo"}
		factory = adapter.SimulatedFactory(c.demoDelay)
		simulated = true
	} else {
		var err error
		cred, err = c.broker.Acquire(ctx, c.cfg, types.ModeVoice, c.cfg.TemplateVariables())
		if err != nil {
			c.fail(gen, err)
			return
		}
	}

	a := factory()
	if !c.bind(gen, a, simulated) {
		return
	}
	go c.pump(gen, a)

	err := a.StartSession(ctx, adapter.StartRequest{
		Token:      cred.Token,
		SampleRate: adapter.DefaultSampleRate,
		Variables:  broker.Merge(c.cfg.TemplateVariables(), cred.ServerVariables),
	})
	if err != nil {
		c.fail(gen, err)
		return
	}
	if c.timeout > 0 {
		time.AfterFunc(c.timeout, func() { c.expire(gen, Connecting) })
	}
}

func (c *Controller) opContext() (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(context.Background(), c.timeout)
	}
	return context.WithCancel(context.Background())
}

// bind attaches a to the call if gen is still the live attempt.
func (c *Controller) bind(gen uint64, a adapter.Adapter, simulated bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.phase != Connecting {
		c.log.Debug("dropping stale credential", "gen", gen)
		return false
	}
	c.adapter = a
	c.demo = simulated
	c.log.Info("binding realtime client", "adapter", a.Name(), "simulated", simulated)
	return true
}

func (c *Controller) pump(gen uint64, a adapter.Adapter) {
	for ev := range a.Events() {
		c.dispatch(gen, a, ev)
	}
	// Stream closed without a terminal event we acted on.
	c.dispatch(gen, a, adapter.Ended{Reason: "stream closed"})
}

func (c *Controller) dispatch(gen uint64, a adapter.Adapter, ev adapter.Event) {
	c.mu.Lock()
	if gen != c.gen || c.adapter != a {
		c.mu.Unlock()
		return
	}
	release := false
	if h, ok := c.handlers[ev.Kind()]; ok {
		release = h(ev)
	}
	c.mu.Unlock()
	if release {
		_ = a.StopSession()
	}
}

func (c *Controller) onStarted(adapter.Event) bool {
	if c.phase != Connecting {
		return false
	}
	status := "Connected"
	if c.demo {
		status = "Connected (Demo)"
	}
	c.transition(Active, status)
	return false
}

// onEnded handles both confirmed stops and remote hangups.
func (c *Controller) onEnded(ev adapter.Event) bool {
	switch c.phase {
	case Connecting, Active, Ending:
	default:
		return false
	}
	c.log.Info("call ended", "reason", ev.(adapter.Ended).Reason, "phase", c.phase)
	c.detach()
	c.transition(Idle, c.idleStatus())
	return false
}

func (c *Controller) onError(ev adapter.Event) bool {
	switch c.phase {
	case Ending:
		return c.onEnded(adapter.Ended{Reason: "error while ending"})
	case Connecting, Active:
		c.failLocked(&adapter.Error{Reason: ev.(adapter.Failed).Reason})
		return true
	}
	return false
}

func (c *Controller) onAgentSpeaking(ev adapter.Event) bool {
	if c.phase != Active {
		return false
	}
	c.speaking = ev.(adapter.AgentSpeaking).Speaking
	status := "Listening..."
	if c.speaking {
		status = "Agent speaking..."
	}
	c.status = status
	c.emit(FrameState, c.snapshotLocked())
	return false
}

// onTranscript re-renders from the cumulative snapshot; nothing is diffed.
func (c *Controller) onTranscript(ev adapter.Event) bool {
	if c.phase != Active || !c.transcriptEnabled {
		return false
	}
	up := ev.(adapter.TranscriptUpdate)
	c.transcript = append([]types.Utterance(nil), up.Transcript...)
	c.emit(FrameTranscript, append([]types.Utterance(nil), c.transcript...))
	return false
}

// Stop ends the call. It reports false, doing nothing, when there is nothing
// to stop.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	var a adapter.Adapter
	switch c.phase {
	case Active:
		a = c.adapter
		c.transition(Ending, "Ending...")
	case Connecting:
		if c.adapter != nil {
			a = c.adapter
			c.transition(Ending, "Ending...")
			break
		}
		// Credential still in flight: abandon it.
		c.gen++
		c.transition(Idle, c.idleStatus())
	default:
		c.mu.Unlock()
		return false
	}
	gen := c.gen
	c.mu.Unlock()

	if a != nil {
		if err := a.StopSession(); err != nil {
			c.log.Warn("stop session", "err", err)
		}
		if c.timeout > 0 {
			time.AfterFunc(c.timeout, func() { c.expire(gen, Ending) })
		}
	}
	return true
}

// expire forces a stuck phase forward.
func (c *Controller) expire(gen uint64, stuck Phase) {
	c.mu.Lock()
	if gen != c.gen || c.phase != stuck {
		c.mu.Unlock()
		return
	}
	c.log.Warn("realtime client did not confirm", "phase", stuck)
	a := c.adapter
	if stuck == Ending {
		c.detach()
		c.transition(Idle, c.idleStatus())
		c.mu.Unlock()
		return
	}
	c.failLocked(ErrTimeout)
	c.mu.Unlock()
	if a != nil {
		_ = a.StopSession()
	}
}

func (c *Controller) fail(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen || (c.phase != Connecting && c.phase != Active) {
		c.mu.Unlock()
		c.log.Debug("dropping stale failure", "gen", gen, "err", err)
		return
	}
	a := c.adapter
	c.failLocked(err)
	c.mu.Unlock()
	if a != nil {
		_ = a.StopSession()
	}
}

// failLocked enters Error and reverts to Idle. Any transcript is discarded.
func (c *Controller) failLocked(err error) {
	c.lastErr = err
	c.log.Warn("call failed", "phase", c.phase, "err", err)
	c.transcript = nil
	c.detach()
	status := StatusText(err)
	c.transition(Error, status)
	c.transition(Idle, status)
}

func (c *Controller) detach() {
	c.adapter = nil
	c.speaking = false
	c.gen++
}

// ToggleTranscript flips transcript rendering and returns the new setting.
func (c *Controller) ToggleTranscript() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transcriptEnabled = !c.transcriptEnabled
	c.emit(FrameState, c.snapshotLocked())
	return c.transcriptEnabled
}

// Close tears the call down without waiting for confirmation.
func (c *Controller) Close() {
	c.mu.Lock()
	a := c.adapter
	if c.phase != Idle {
		c.detach()
		c.transition(Idle, c.idleStatus())
	}
	c.mu.Unlock()
	if a != nil {
		_ = a.StopSession()
	}
}

// Resync re-emits the current state frame in order with transitions.
func (c *Controller) Resync() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emit(FrameState, c.snapshotLocked())
}

func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// LastError is the error behind the most recent failed attempt.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Controller) Snapshot() types.CallSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() types.CallSnapshot {
	s := types.CallSnapshot{
		Phase:             string(c.phase),
		Status:            c.status,
		Demo:              c.demo || c.binding.Simulated || c.cfg.DemoEndpoint,
		StartEnabled:      c.phase == Idle,
		StopEnabled:       c.phase == Active,
		ButtonText:        "Call",
		AgentSpeaking:     c.speaking,
		TranscriptEnabled: c.transcriptEnabled,
		TranscriptVisible: c.phase == Active && c.transcriptEnabled,
	}
	if c.phase == Active || c.phase == Ending {
		s.ButtonText = "End Call"
	}
	if len(c.transcript) > 0 {
		s.Transcript = append([]types.Utterance(nil), c.transcript...)
	}
	return s
}

func (c *Controller) transition(to Phase, status string) {
	from := c.phase
	c.phase = to
	c.status = status
	c.log.Info("call phase", "from", from, "to", to, "status", status)
	c.emit(FrameState, c.snapshotLocked())
}

func (c *Controller) idleStatus() string {
	if c.binding.Simulated || c.cfg.DemoEndpoint {
		return "Demo Mode"
	}
	return "Offline"
}
