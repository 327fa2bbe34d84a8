package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/steveyiyo/fluvio-host/internal/config"
	"github.com/steveyiyo/fluvio-host/internal/core/adapter"
	"github.com/steveyiyo/fluvio-host/internal/core/broker"
	"github.com/steveyiyo/fluvio-host/internal/core/widget"
	"github.com/steveyiyo/fluvio-host/internal/http/handlers"
	"github.com/steveyiyo/fluvio-host/internal/repo/memory"
	"github.com/steveyiyo/fluvio-host/pkg/ws"
)

func NewRouter(cfg config.Config, log *slog.Logger) *gin.Engine {
	if log == nil {
		log = slog.Default()
	}
	repo := memory.NewRegistry[*widget.Widget]()
	hub := ws.NewHub()
	resolver := &adapter.Resolver{Providers: providers(cfg, log), Log: log}
	svc := widget.NewService(repo, broker.New(cfg.WebhookTimeout, log), resolver, hub, widget.Settings{
		DemoDelay:    cfg.DemoDelay,
		ChatMinDelay: cfg.ChatDemoMinDelay,
		ChatMaxDelay: cfg.ChatDemoMaxDelay,
		Timeout:      cfg.WebhookTimeout,
		Placeholders: cfg.Placeholders,
	}, log)
	return Routes(svc, hub, cfg.WSScheme(), cfg.Host(), log)
}

// Routes mounts the widget API over an existing service.
func Routes(svc *widget.Service, hub *ws.Hub, scheme, host string, log *slog.Logger) *gin.Engine {
	r := gin.Default()
	wh := handlers.NewWidgetsHandler(svc, hub, scheme, host)
	ch := handlers.NewCallHandler(svc)
	mh := handlers.NewChatHandler(svc)
	sh := handlers.NewStreamHandler(hub, svc, log)

	api := r.Group("/v1")
	api.POST("/widgets", wh.Open)
	api.GET("/widgets/:id", wh.Get)
	api.DELETE("/widgets/:id", wh.Close)
	api.POST("/widgets/:id/mode", wh.SwitchMode)
	api.POST("/widgets/:id/call/start", ch.Start)
	api.POST("/widgets/:id/call/stop", ch.Stop)
	api.POST("/widgets/:id/transcript/toggle", ch.ToggleTranscript)
	api.POST("/widgets/:id/chat/messages", mh.Send)
	api.GET("/widgets/:id/chat/messages", mh.History)
	r.GET("/v1/stream", sh.WS)
	return r
}

func providers(cfg config.Config, log *slog.Logger) []adapter.Provider {
	var out []adapter.Provider
	for _, name := range cfg.Providers {
		switch name {
		case "gemini":
			out = append(out, adapter.GeminiProvider{Model: cfg.GeminiLiveModel, Log: log})
		case "websocket":
			out = append(out, adapter.WebSocketProvider{URL: cfg.RealtimeWSURL, Log: log})
		default:
			log.Warn("unknown realtime provider ignored", "provider", name)
		}
	}
	return out
}
