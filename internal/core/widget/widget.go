// Package widget ties one host page's call and chat controllers together and
// tracks which of the two surfaces is visible.
package widget

import (
	"errors"
	"sync"

	"github.com/steveyiyo/fluvio-host/internal/core/call"
	"github.com/steveyiyo/fluvio-host/internal/core/chat"
	"github.com/steveyiyo/fluvio-host/internal/core/sessioncfg"
	"github.com/steveyiyo/fluvio-host/pkg/types"
)

const FrameMode = "mode"

var (
	ErrNotOffered = errors.New("mode not offered by this widget")
	ErrNotFound   = errors.New("widget not found")
)

type Widget struct {
	ID     string
	PageID string
	Config sessioncfg.Config

	call *call.Controller
	chat *chat.Controller
	emit func(string, any)

	mu     sync.Mutex
	active types.Mode
}

// Call returns the voice controller, or ErrNotOffered.
func (w *Widget) Call() (*call.Controller, error) {
	if w.call == nil {
		return nil, ErrNotOffered
	}
	return w.call, nil
}

// Chat returns the chat controller, or ErrNotOffered.
func (w *Widget) Chat() (*chat.Controller, error) {
	if w.chat == nil {
		return nil, ErrNotOffered
	}
	return w.chat, nil
}

func (w *Widget) Active() types.Mode {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// SwitchModality changes the visible surface. A running call keeps running
// while hidden; showing chat injects the greeting the first time only.
func (w *Widget) SwitchModality(m types.Mode) error {
	if !w.Config.Offers(m) {
		return ErrNotOffered
	}
	w.mu.Lock()
	changed := w.active != m
	w.active = m
	if changed {
		w.emit(FrameMode, m)
	}
	w.mu.Unlock()

	if m == types.ModeChat {
		w.chat.InjectGreeting()
	}
	return nil
}

func (w *Widget) Snapshot() types.WidgetSnapshot {
	s := types.WidgetSnapshot{
		ID:           w.ID,
		PageID:       w.PageID,
		Offered:      string(w.Config.Offered),
		Active:       w.Active(),
		Presentation: w.Config.Presentation(),
	}
	if w.call != nil {
		cs := w.call.Snapshot()
		s.Call = &cs
	}
	if w.chat != nil {
		cs := w.chat.Snapshot()
		s.Chat = &cs
	}
	return s
}

// Resync pushes the current call state, chat pending flag and visible mode
// through the same path as live transitions. A subscriber that joined
// mid-transition ends up with the latest state.
func (w *Widget) Resync() {
	if w.call != nil {
		w.call.Resync()
	}
	if w.chat != nil {
		w.chat.Resync()
	}
	w.mu.Lock()
	w.emit(FrameMode, w.active)
	w.mu.Unlock()
}

// Close ends any running call.
func (w *Widget) Close() {
	if w.call != nil {
		w.call.Close()
	}
}
