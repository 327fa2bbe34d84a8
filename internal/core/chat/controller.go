// Package chat runs the text conversation for a widget: one server-assigned
// chat id, an append-only history, and at most one send in flight.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/steveyiyo/fluvio-host/internal/core/sessioncfg"
	"github.com/steveyiyo/fluvio-host/pkg/types"
)

const (
	FrameMessage = "chat.message"
	FramePending = "chat.pending"

	apology = "Sorry, I encountered an error. Please try again."
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrSendInFlight = errors.New("a message is already being sent")
)

var demoReplies = []string{
	"Thank you for your message! I understand you said: %q. How can I help you further?",
	"I received your message about %q. This is a demo response; in production your chat agent answers here.",
	"Great question! Regarding %q, I'm currently in demo mode. Your configured agent would provide a real response.",
	"I see you mentioned %q. In live mode this would be handled by your configured chat agent.",
}

// Broker is the webhook client used for chat.
type Broker interface {
	CreateChat(ctx context.Context, cfg sessioncfg.Config, vars map[string]string) (string, error)
	SendMessage(ctx context.Context, cfg sessioncfg.Config, chatID, text string) ([]types.ChatMessage, error)
}

type Options struct {
	Config sessioncfg.Config
	Broker Broker
	// DemoMinDelay and DemoMaxDelay bound the simulated reply latency.
	DemoMinDelay time.Duration
	DemoMaxDelay time.Duration
	// Timeout bounds each webhook round trip. Zero disables it.
	Timeout time.Duration
	Emit    func(typ string, data any)
	Log     *slog.Logger
}

type Controller struct {
	cfg      sessioncfg.Config
	broker   Broker
	minDelay time.Duration
	maxDelay time.Duration
	timeout  time.Duration
	emit     func(string, any)
	log      *slog.Logger

	mu      sync.Mutex
	chatID  string
	history []types.HistoryEntry
	pending bool
	greeted bool
}

func New(opts Options) *Controller {
	c := &Controller{
		cfg:      opts.Config,
		broker:   opts.Broker,
		minDelay: opts.DemoMinDelay,
		maxDelay: opts.DemoMaxDelay,
		timeout:  opts.Timeout,
		emit:     opts.Emit,
		log:      opts.Log,
	}
	if c.maxDelay < c.minDelay {
		c.maxDelay = c.minDelay
	}
	if c.emit == nil {
		c.emit = func(string, any) {}
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c
}

// Demo reports whether replies are simulated instead of fetched.
func (c *Controller) Demo() bool {
	return c.cfg.DemoEndpoint || c.cfg.DemoProject()
}

// Send records the user's message and returns the agent replies appended
// for it. On webhook failure an apology is appended and the error returned.
func (c *Controller) Send(ctx context.Context, text string) ([]types.HistoryEntry, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	c.mu.Lock()
	if c.pending {
		c.mu.Unlock()
		return nil, ErrSendInFlight
	}
	c.pending = true
	c.emit(FramePending, true)
	c.appendLocked(types.RoleUser, text)
	chatID := c.chatID
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.pending = false
		c.emit(FramePending, false)
		c.mu.Unlock()
	}()

	if c.Demo() {
		return c.simulate(ctx, text)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if chatID == "" {
		id, err := c.broker.CreateChat(ctx, c.cfg, c.cfg.TemplateVariables())
		if err != nil {
			return c.failed(err)
		}
		c.mu.Lock()
		if c.chatID == "" {
			c.chatID = id
			c.log.Info("chat session created", "chat_id", id)
		}
		chatID = c.chatID
		c.mu.Unlock()
	}

	msgs, err := c.broker.SendMessage(ctx, c.cfg, chatID, text)
	if err != nil {
		return c.failed(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		role := types.RoleAgent
		if m.Role == types.RoleUser {
			role = types.RoleUser
		}
		out = append(out, c.appendLocked(role, m.Content))
	}
	return out, nil
}

func (c *Controller) simulate(ctx context.Context, text string) ([]types.HistoryEntry, error) {
	delay := c.minDelay
	if span := c.maxDelay - c.minDelay; span > 0 {
		delay += rand.N(span)
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	reply := fmt.Sprintf(demoReplies[rand.IntN(len(demoReplies))], text)
	c.mu.Lock()
	defer c.mu.Unlock()
	return []types.HistoryEntry{c.appendLocked(types.RoleAgent, reply)}, nil
}

func (c *Controller) failed(err error) ([]types.HistoryEntry, error) {
	c.log.Warn("chat send failed", "err", err)
	c.mu.Lock()
	defer c.mu.Unlock()
	return []types.HistoryEntry{c.appendLocked(types.RoleAgent, apology)}, err
}

// InjectGreeting adds the opening agent line the first time chat is shown.
// It reports whether anything was added.
func (c *Controller) InjectGreeting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.greeted {
		return false
	}
	c.greeted = true
	c.appendLocked(types.RoleAgent, c.cfg.Greeting())
	return true
}

func (c *Controller) appendLocked(role, text string) types.HistoryEntry {
	e := types.HistoryEntry{
		ID:        "msg_" + uuid.NewString(),
		Role:      role,
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
	}
	c.history = append(c.history, e)
	c.emit(FrameMessage, e)
	return e
}

// Resync re-emits the pending flag.
func (c *Controller) Resync() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emit(FramePending, c.pending)
}

func (c *Controller) ChatID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chatID
}

func (c *Controller) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

func (c *Controller) History() []types.HistoryEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.HistoryEntry{}, c.history...)
}

func (c *Controller) Snapshot() types.ChatSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return types.ChatSnapshot{
		ChatID:  c.chatID,
		Pending: c.pending,
		History: append([]types.HistoryEntry{}, c.history...),
	}
}
