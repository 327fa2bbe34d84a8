package config

import (
	"os"
	"strings"
	"time"
)

type Config struct {
	Port       string
	PublicHost string
	TLS        bool
	LogLevel   string
	LogFile    string

	WebhookTimeout   time.Duration
	DemoDelay        time.Duration
	ChatDemoMinDelay time.Duration
	ChatDemoMaxDelay time.Duration

	// Providers lists realtime client strategies in rank order.
	Providers       []string
	GeminiLiveModel string
	RealtimeWSURL   string
	Placeholders    []string
}

func Load() Config {
	return Config{
		Port:             getenv("PORT", "8080"),
		PublicHost:       getenv("PUBLIC_HOST", ""),
		TLS:              getenv("TLS", "") == "1",
		LogLevel:         getenv("LOG_LEVEL", "info"),
		LogFile:          getenv("LOG_FILE", ""),
		WebhookTimeout:   getduration("WEBHOOK_TIMEOUT", 30*time.Second),
		DemoDelay:        getduration("DEMO_DELAY", 1500*time.Millisecond),
		ChatDemoMinDelay: getduration("CHAT_DEMO_MIN_DELAY", time.Second),
		ChatDemoMaxDelay: getduration("CHAT_DEMO_MAX_DELAY", 3*time.Second),
		Providers:        getlist("ADAPTER_PROVIDERS", "gemini,websocket"),
		GeminiLiveModel:  getenv("GEMINI_LIVE_MODEL", ""),
		RealtimeWSURL:    getenv("REALTIME_WS_URL", ""),
		Placeholders:     getlist("PLACEHOLDER_ENDPOINTS", ""),
	}
}

// Host is the public host:port the page script connects back to.
func (c Config) Host() string {
	if c.PublicHost != "" {
		return c.PublicHost
	}
	return "localhost:" + c.Port
}

func (c Config) WSScheme() string {
	if c.TLS {
		return "wss"
	}
	return "ws"
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

// getduration accepts Go durations and bare "0".
func getduration(k string, d time.Duration) time.Duration {
	v := getenv(k, "")
	if v == "" {
		return d
	}
	if v == "0" {
		return 0
	}
	if p, err := time.ParseDuration(v); err == nil && p >= 0 {
		return p
	}
	return d
}

func getlist(k, d string) []string {
	var out []string
	for _, s := range strings.Split(getenv(k, d), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
