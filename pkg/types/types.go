package types

// Mode is the interaction mode sent to the webhook and shown on the page.
type Mode string

const (
	ModeVoice Mode = "voice"
	ModeChat  Mode = "chat"
)

const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// Webhook wire format.

type WebhookReq struct {
	ProjectID        string            `json:"project_id"`
	Mode             Mode              `json:"mode"`
	Action           string            `json:"action,omitempty"`
	ChatID           string            `json:"chat_id,omitempty"`
	Message          string            `json:"message,omitempty"`
	DynamicVariables map[string]string `json:"dynamic_variables,omitempty"`
}

type CredentialResp struct {
	AccessToken string       `json:"access_token"`
	CallInbound *CallInbound `json:"call_inbound,omitempty"`
}

type CallInbound struct {
	DynamicVariables map[string]any `json:"dynamic_variables,omitempty"`
}

type ChatCreateResp struct {
	ChatID string `json:"chat_id"`
}

type ChatSendResp struct {
	Messages []ChatMessage `json:"messages"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Utterance is one line of a live call transcript.
type Utterance struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Host API.

type OpenWidgetReq struct {
	PageID     string            `json:"page_id"`
	Attributes map[string]string `json:"attributes"`
}

type OpenWidgetResp struct {
	WidgetID string         `json:"widget_id"`
	Created  bool           `json:"created"`
	WSURL    string         `json:"ws_url"`
	State    WidgetSnapshot `json:"state"`
}

type SwitchModeReq struct {
	Mode Mode `json:"mode"`
}

type ChatSendReq struct {
	Text string `json:"text"`
}

type ChatSendHostResp struct {
	Messages []HistoryEntry `json:"messages"`
}

type HistoryEntry struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp int64  `json:"ts"`
}

type CallSnapshot struct {
	Phase             string      `json:"phase"`
	Status            string      `json:"status"`
	Demo              bool        `json:"demo"`
	StartEnabled      bool        `json:"start_enabled"`
	StopEnabled       bool        `json:"stop_enabled"`
	ButtonText        string      `json:"button_text"`
	AgentSpeaking     bool        `json:"agent_speaking"`
	TranscriptEnabled bool        `json:"transcript_enabled"`
	TranscriptVisible bool        `json:"transcript_visible"`
	Transcript        []Utterance `json:"transcript,omitempty"`
}

type ChatSnapshot struct {
	ChatID  string         `json:"chat_id,omitempty"`
	Pending bool           `json:"pending"`
	History []HistoryEntry `json:"history"`
}

type WidgetSnapshot struct {
	ID           string            `json:"id"`
	PageID       string            `json:"page_id"`
	Offered      string            `json:"offered"`
	Active       Mode              `json:"active"`
	Presentation map[string]string `json:"presentation,omitempty"`
	Call         *CallSnapshot     `json:"call,omitempty"`
	Chat         *ChatSnapshot     `json:"chat,omitempty"`
}

// Frame is pushed to the page over the stream socket.
type Frame struct {
	Type string `json:"type"`
	TS   int64  `json:"ts"`
	Data any    `json:"data,omitempty"`
}
