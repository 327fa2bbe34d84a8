// Package sessioncfg builds the immutable per-widget configuration from the
// data-* attributes declared on the host page.
package sessioncfg

import (
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"strings"

	"github.com/steveyiyo/fluvio-host/pkg/types"
)

// Offered lists which capabilities a widget exposes.
type Offered string

const (
	OfferVoice Offered = "voice"
	OfferChat  Offered = "chat"
	OfferDual  Offered = "dual"
)

// Template variable keys forwarded to the agent. Anything else is ignored.
const (
	VarCompanyName    = "company_name"
	VarCompanyNumber  = "company_number"
	VarCompanyHours   = "company_hours"
	VarAgentName      = "AI_agent"
	VarAgentTitle     = "AI_agent_title"
	VarCompanyAddress = "company_address"
	VarGreeting       = "greeting"
)

var attrToVar = map[string]string{
	"company-name":    VarCompanyName,
	"company-number":  VarCompanyNumber,
	"company-hours":   VarCompanyHours,
	"agent-name":      VarAgentName,
	"agent-title":     VarAgentTitle,
	"company-address": VarCompanyAddress,
	"greeting":        VarGreeting,
}

// Deprecated identifiers, checked in order when project-id is absent.
var legacyProjectAttrs = []string{"agent-id", "voice-agent-id", "chat-agent-id"}

var presentationAttrs = []string{"title", "subtitle", "color", "position"}

// DefaultPlaceholders is the allow-list of endpoint fragments that mark a
// webhook as a demo value. Matching is a case-insensitive substring test
// against the full endpoint URL.
var DefaultPlaceholders = []string{
	"your-webhook",
	"httpbin.org",
}

// ConfigurationError means the widget must not activate.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("widget configuration: %s: %s", e.Field, e.Reason)
}

// Config is one widget instance's operating parameters. Values are fixed
// after Parse; map accessors return copies.
type Config struct {
	Endpoint       string
	ProjectID      string
	Offered        Offered
	DefaultMode    types.Mode
	ShowTranscript bool
	ChatGreeting   string
	DemoEndpoint   bool

	vars         map[string]string
	presentation map[string]string
}

// Options tunes parsing.
type Options struct {
	// Placeholders extends DefaultPlaceholders.
	Placeholders []string
	// Log receives warnings about attributes that were ignored.
	Log *slog.Logger
}

// Parse reads host-page attributes. Keys may carry the "data-" prefix or not.
func Parse(attrs map[string]string, opts Options) (Config, error) {
	a := normalize(attrs)

	endpoint := a["webhook"]
	if endpoint == "" {
		return Config{}, &ConfigurationError{Field: "data-webhook", Reason: "missing"}
	}
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Config{}, &ConfigurationError{Field: "data-webhook", Reason: "not an http(s) url"}
	}

	offered := OfferDual
	if m := strings.ToLower(a["mode"]); m != "" {
		switch Offered(m) {
		case OfferVoice, OfferChat, OfferDual:
			offered = Offered(m)
		default:
			if opts.Log != nil {
				opts.Log.Warn("unknown data-mode, offering both", "mode", m)
			}
		}
	}

	projectID := a["project-id"]
	if projectID == "" {
		for _, k := range legacyProjectAttrs {
			if v := a[k]; v != "" {
				projectID = v
				break
			}
		}
	}
	if projectID == "" {
		return Config{}, &ConfigurationError{Field: "data-project-id", Reason: "missing"}
	}

	cfg := Config{
		Endpoint:       endpoint,
		ProjectID:      projectID,
		Offered:        offered,
		DefaultMode:    defaultMode(offered, a["default-mode"]),
		ShowTranscript: strings.EqualFold(a["show-transcript"], "true"),
		ChatGreeting:   a["chat-greeting"],
		DemoEndpoint:   IsPlaceholder(endpoint, opts.Placeholders),
		vars:           map[string]string{},
		presentation:   map[string]string{},
	}
	for attr, key := range attrToVar {
		if v := a[attr]; v != "" {
			cfg.vars[key] = v
		}
	}
	for _, k := range presentationAttrs {
		if v := a[k]; v != "" {
			cfg.presentation[k] = v
		}
	}
	return cfg, nil
}

func normalize(attrs map[string]string) map[string]string {
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		k = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(k)), "data-")
		out[k] = strings.TrimSpace(v)
	}
	return out
}

func defaultMode(offered Offered, declared string) types.Mode {
	switch offered {
	case OfferVoice:
		return types.ModeVoice
	case OfferChat:
		return types.ModeChat
	}
	if types.Mode(strings.ToLower(declared)) == types.ModeChat {
		return types.ModeChat
	}
	return types.ModeVoice
}

// IsPlaceholder reports whether endpoint matches the placeholder allow-list.
func IsPlaceholder(endpoint string, extra []string) bool {
	e := strings.ToLower(endpoint)
	for _, list := range [][]string{DefaultPlaceholders, extra} {
		for _, p := range list {
			p = strings.ToLower(strings.TrimSpace(p))
			if p != "" && strings.Contains(e, p) {
				return true
			}
		}
	}
	return false
}

// TemplateVariables returns the non-empty template variables.
func (c Config) TemplateVariables() map[string]string {
	return maps.Clone(c.vars)
}

// Presentation returns the display hints the page script renders with.
func (c Config) Presentation() map[string]string {
	return maps.Clone(c.presentation)
}

// Offers reports whether m is available on this widget.
func (c Config) Offers(m types.Mode) bool {
	switch c.Offered {
	case OfferDual:
		return m == types.ModeVoice || m == types.ModeChat
	default:
		return string(c.Offered) == string(m)
	}
}

// DemoProject reports whether the project identifier asks for simulated chat.
func (c Config) DemoProject() bool {
	return strings.Contains(strings.ToLower(c.ProjectID), "demo")
}

// Greeting is the first agent line shown in chat.
func (c Config) Greeting() string {
	if c.ChatGreeting != "" {
		return c.ChatGreeting
	}
	if g := c.vars[VarGreeting]; g != "" {
		return g
	}
	return "Hello! How can I help you today?"
}
