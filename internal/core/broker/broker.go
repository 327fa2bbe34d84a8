// Package broker exchanges a widget configuration for short-lived session
// credentials and chat replies at the customer's webhook.
package broker

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/steveyiyo/fluvio-host/internal/core/sessioncfg"
	"github.com/steveyiyo/fluvio-host/pkg/types"
)

const (
	ActionCreateSession = "create_session"
	ActionSendMessage   = "send_message"

	maxBody = 1 << 20
)

// Credential authorizes one realtime session.
type Credential struct {
	Token           string
	ServerVariables map[string]string
}

type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return "webhook unreachable: " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

type HTTPError struct {
	Status int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("webhook returned HTTP %d %s", e.Status, http.StatusText(e.Status))
}

type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "webhook response: " + e.Reason }

type Broker struct {
	hc  *http.Client
	log *slog.Logger
}

// New builds a broker with its own transport. A zero timeout leaves requests
// bounded only by the caller's context.
func New(timeout time.Duration, log *slog.Logger) *Broker {
	tr := &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		TLSClientConfig:   &tls.Config{MinVersion: tls.VersionTLS12},
		ForceAttemptHTTP2: true,
		MaxIdleConns:      100,
		IdleConnTimeout:   90 * time.Second,
	}
	return NewWithClient(&http.Client{Transport: tr, Timeout: timeout}, log)
}

func NewWithClient(hc *http.Client, log *slog.Logger) *Broker {
	if log == nil {
		log = slog.Default()
	}
	return &Broker{hc: hc, log: log}
}

// Acquire requests a credential for one call attempt. vars are sent as
// dynamic_variables; the field is dropped when there are none.
func (b *Broker) Acquire(ctx context.Context, cfg sessioncfg.Config, mode types.Mode, vars map[string]string) (Credential, error) {
	body, err := b.post(ctx, cfg.Endpoint, types.WebhookReq{
		ProjectID:        cfg.ProjectID,
		Mode:             mode,
		DynamicVariables: nonEmpty(vars),
	})
	if err != nil {
		return Credential{}, err
	}
	cred, err := ParseCredential(body)
	if err != nil {
		return Credential{}, err
	}
	b.log.Debug("credential acquired", "mode", mode, "server_vars", len(cred.ServerVariables))
	return cred, nil
}

// CreateChat opens a chat conversation and returns its server-assigned id.
func (b *Broker) CreateChat(ctx context.Context, cfg sessioncfg.Config, vars map[string]string) (string, error) {
	body, err := b.post(ctx, cfg.Endpoint, types.WebhookReq{
		ProjectID:        cfg.ProjectID,
		Mode:             types.ModeChat,
		Action:           ActionCreateSession,
		DynamicVariables: nonEmpty(vars),
	})
	if err != nil {
		return "", err
	}
	var resp types.ChatCreateResp
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &ProtocolError{Reason: "chat session body is not JSON"}
	}
	if resp.ChatID == "" {
		return "", &ProtocolError{Reason: "no chat id received"}
	}
	return resp.ChatID, nil
}

// SendMessage posts one user message and returns the agent's replies.
func (b *Broker) SendMessage(ctx context.Context, cfg sessioncfg.Config, chatID, text string) ([]types.ChatMessage, error) {
	body, err := b.post(ctx, cfg.Endpoint, types.WebhookReq{
		ProjectID: cfg.ProjectID,
		Mode:      types.ModeChat,
		Action:    ActionSendMessage,
		ChatID:    chatID,
		Message:   text,
	})
	if err != nil {
		return nil, err
	}
	var resp types.ChatSendResp
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &ProtocolError{Reason: "chat reply body is not JSON"}
	}
	return resp.Messages, nil
}

func (b *Broker) post(ctx context.Context, endpoint string, payload types.WebhookReq) ([]byte, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := b.hc.Do(req)
	if err != nil {
		b.log.Warn("webhook request failed", "mode", payload.Mode, "action", payload.Action, "err", err)
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	b.log.Debug("webhook response", "mode", payload.Mode, "action", payload.Action,
		"status", resp.StatusCode, "elapsed_ms", time.Since(start).Milliseconds())
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{Status: resp.StatusCode}
	}
	return body, nil
}

// ParseCredential accepts either {"access_token": ...} or the bare token as
// the whole body, optionally quote-wrapped.
func ParseCredential(body []byte) (Credential, error) {
	text := strings.TrimSpace(string(body))
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		tok := strings.Trim(text, `"'`)
		if tok == "" {
			return Credential{}, &ProtocolError{Reason: "no access token received"}
		}
		return Credential{Token: tok}, nil
	}

	switch t := v.(type) {
	case string:
		tok := strings.TrimSpace(t)
		if tok == "" {
			return Credential{}, &ProtocolError{Reason: "no access token received"}
		}
		return Credential{Token: tok}, nil
	case map[string]any:
		var resp types.CredentialResp
		if err := json.Unmarshal([]byte(text), &resp); err != nil {
			return Credential{}, &ProtocolError{Reason: "malformed credential object"}
		}
		if strings.TrimSpace(resp.AccessToken) == "" {
			return Credential{}, &ProtocolError{Reason: "no access token received"}
		}
		cred := Credential{Token: strings.TrimSpace(resp.AccessToken)}
		if resp.CallInbound != nil {
			cred.ServerVariables = stringify(resp.CallInbound.DynamicVariables)
		}
		return cred, nil
	case float64:
		// Purely numeric tokens decode as JSON numbers.
		return Credential{Token: text}, nil
	default:
		return Credential{}, &ProtocolError{Reason: "unexpected credential shape"}
	}
}

// Merge overlays server on client; server wins on collision.
func Merge(client, server map[string]string) map[string]string {
	out := make(map[string]string, len(client)+len(server))
	for k, v := range client {
		out[k] = v
	}
	for k, v := range server {
		out[k] = v
	}
	return out
}

func nonEmpty(vars map[string]string) map[string]string {
	var out map[string]string
	for k, v := range vars {
		if v == "" {
			continue
		}
		if out == nil {
			out = make(map[string]string, len(vars))
		}
		out[k] = v
	}
	return out
}

func stringify(in map[string]any) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch s := v.(type) {
		case nil:
		case string:
			out[k] = s
		default:
			if b, err := json.Marshal(s); err == nil {
				out[k] = string(b)
			}
		}
	}
	return out
}
