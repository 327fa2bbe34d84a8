package widget

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/steveyiyo/fluvio-host/internal/core/adapter"
	"github.com/steveyiyo/fluvio-host/internal/core/call"
	"github.com/steveyiyo/fluvio-host/internal/core/chat"
	"github.com/steveyiyo/fluvio-host/internal/core/sessioncfg"
	"github.com/steveyiyo/fluvio-host/internal/repo/memory"
	"github.com/steveyiyo/fluvio-host/pkg/types"
)

// Publisher delivers frames to whoever renders a widget.
type Publisher interface {
	Publish(widgetID string, f types.Frame)
}

// Broker is the webhook client shared by a widget's call and chat.
type Broker interface {
	call.Broker
	chat.Broker
}

type Settings struct {
	DemoDelay    time.Duration
	ChatMinDelay time.Duration
	ChatMaxDelay time.Duration
	Timeout      time.Duration
	Placeholders []string
}

type Service struct {
	Repo      *memory.Registry[*Widget]
	Broker    Broker
	Resolver  *adapter.Resolver
	Publisher Publisher
	Settings  Settings
	Log       *slog.Logger
}

func NewService(repo *memory.Registry[*Widget], b Broker, r *adapter.Resolver, pub Publisher, st Settings, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{Repo: repo, Broker: b, Resolver: r, Publisher: pub, Settings: st, Log: log}
}

// Open returns the widget registered for pageID, creating it on first use.
// created is false when an existing handle is returned. An empty pageID
// always creates a fresh widget.
func (s *Service) Open(ctx context.Context, pageID string, attrs map[string]string) (*Widget, bool, error) {
	if pageID != "" {
		if w, ok := s.Repo.ByPage(pageID); ok {
			return w, false, nil
		}
	}

	cfg, err := sessioncfg.Parse(attrs, sessioncfg.Options{Placeholders: s.Settings.Placeholders, Log: s.Log})
	if err != nil {
		var ce *sessioncfg.ConfigurationError
		if errors.As(err, &ce) {
			s.Log.Error("widget not activated", "page_id", pageID, "field", ce.Field, "reason", ce.Reason)
		}
		return nil, false, err
	}

	id := "wgt_" + uuid.NewString()
	if pageID == "" {
		pageID = id
	}
	w := s.build(ctx, id, pageID, cfg)

	got, loaded := s.Repo.Claim(pageID, id, w)
	if loaded {
		w.Close()
		return got, false, nil
	}
	s.Log.Info("widget opened", "widget_id", id, "page_id", pageID, "offered", cfg.Offered,
		"demo_endpoint", cfg.DemoEndpoint)
	if w.active == types.ModeChat {
		w.chat.InjectGreeting()
	}
	return w, true, nil
}

func (s *Service) build(ctx context.Context, id, pageID string, cfg sessioncfg.Config) *Widget {
	log := s.Log.With("widget_id", id)
	emit := func(typ string, data any) {
		if s.Publisher == nil {
			return
		}
		s.Publisher.Publish(id, types.Frame{Type: typ, TS: time.Now().UnixMilli(), Data: data})
	}
	w := &Widget{ID: id, PageID: pageID, Config: cfg, emit: emit, active: cfg.DefaultMode}

	if cfg.Offers(types.ModeVoice) {
		var binding adapter.Binding
		if s.Resolver != nil {
			binding = s.Resolver.Bind(ctx, s.Settings.DemoDelay)
		}
		w.call = call.New(call.Options{
			Config:    cfg,
			Broker:    s.Broker,
			Binding:   binding,
			DemoDelay: s.Settings.DemoDelay,
			Timeout:   s.Settings.Timeout,
			Emit:      emit,
			Log:       log.With("component", "call"),
		})
	}
	if cfg.Offers(types.ModeChat) {
		w.chat = chat.New(chat.Options{
			Config:       cfg,
			Broker:       s.Broker,
			DemoMinDelay: s.Settings.ChatMinDelay,
			DemoMaxDelay: s.Settings.ChatMaxDelay,
			Timeout:      s.Settings.Timeout,
			Emit:         emit,
			Log:          log.With("component", "chat"),
		})
	}
	return w
}

func (s *Service) Get(id string) (*Widget, error) {
	w, ok := s.Repo.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return w, nil
}

// Close tears the widget down and forgets it.
func (s *Service) Close(id string) error {
	w, ok := s.Repo.Remove(id)
	if !ok {
		return ErrNotFound
	}
	w.Close()
	s.Log.Info("widget closed", "widget_id", id)
	return nil
}
