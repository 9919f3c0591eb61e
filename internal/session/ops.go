package session

import (
	"context"

	"github.com/wagate/backend/internal/engine"
)

// SendResult reports the outcome of a text send. A missing, unauthenticated
// or dropped session is an expected outcome, not an error: callers use
// IsAuthenticated=false as the signal to reconnect.
type SendResult struct {
	IsAuthenticated bool                `json:"isAuthenticated"`
	Sent            bool                `json:"sent"`
	Receipt         *engine.SendReceipt `json:"receipt,omitempty"`
	Detail          string              `json:"detail,omitempty"`
}

// ChatsResult reports a chat listing attempt.
type ChatsResult struct {
	IsAuthenticated bool          `json:"isAuthenticated"`
	Chats           []engine.Chat `json:"chats,omitempty"`
	Detail          string        `json:"detail,omitempty"`
}

// StateResult reports the connection state of a session.
type StateResult struct {
	Found     bool   `json:"found"`
	Connected bool   `json:"connected"`
	State     string `json:"state,omitempty"`
}

// AuthResult reports the authentication state of a session.
type AuthResult struct {
	Found           bool `json:"found"`
	IsAuthenticated bool `json:"isAuthenticated"`
}

// WIDResult reports the WhatsApp ID of a session.
type WIDResult struct {
	IsAuthenticated bool   `json:"isAuthenticated"`
	WID             string `json:"wid,omitempty"`
	Detail          string `json:"detail,omitempty"`
}

// authedClient fetches the session's client when it exists and reports
// authenticated. The bool result distinguishes "usable" from anything else.
func (m *Manager) authedClient(name string) (engine.Client, string, bool) {
	client, ok := m.registry.Get(name)
	if !ok {
		return nil, "no active session", false
	}
	if !client.IsAuthenticated() {
		return nil, "session is not authenticated", false
	}
	return client, "", true
}

// SendText delivers a text message through the session. Post-authentication
// engine failures are reported as a dropped session rather than a raw engine
// error, since session drop is the dominant cause.
func (m *Manager) SendText(ctx context.Context, name, to, message string) SendResult {
	client, detail, ok := m.authedClient(name)
	if !ok {
		return SendResult{IsAuthenticated: false, Detail: detail}
	}

	receipt, err := client.SendText(ctx, to, message)
	if err != nil {
		m.log.Warn().Err(err).Str("session", name).Msg("send failed, treating session as dropped")
		return SendResult{IsAuthenticated: false, Detail: "session dropped: " + err.Error()}
	}
	return SendResult{IsAuthenticated: true, Sent: true, Receipt: &receipt}
}

// ListChats returns the session's chats, optionally filtered.
func (m *Manager) ListChats(ctx context.Context, name string, filter engine.ChatFilter) ChatsResult {
	client, detail, ok := m.authedClient(name)
	if !ok {
		return ChatsResult{IsAuthenticated: false, Detail: detail}
	}

	chats, err := client.ListChats(ctx, filter)
	if err != nil {
		m.log.Warn().Err(err).Str("session", name).Msg("chat listing failed, treating session as dropped")
		return ChatsResult{IsAuthenticated: false, Detail: "session dropped: " + err.Error()}
	}
	return ChatsResult{IsAuthenticated: true, Chats: chats}
}

// ConnectionState reports the session's transport state.
func (m *Manager) ConnectionState(ctx context.Context, name string) StateResult {
	client, ok := m.registry.Get(name)
	if !ok {
		return StateResult{Found: false}
	}
	state, err := client.ConnectionState(ctx)
	if err != nil {
		return StateResult{Found: true, Connected: false, State: "disconnected"}
	}
	return StateResult{Found: true, Connected: client.IsConnected(), State: state}
}

// AuthState reports whether the session is authenticated.
func (m *Manager) AuthState(name string) AuthResult {
	client, ok := m.registry.Get(name)
	if !ok {
		return AuthResult{Found: false}
	}
	return AuthResult{Found: true, IsAuthenticated: client.IsAuthenticated()}
}

// WID returns the session's WhatsApp ID.
func (m *Manager) WID(ctx context.Context, name string) WIDResult {
	client, detail, ok := m.authedClient(name)
	if !ok {
		return WIDResult{IsAuthenticated: false, Detail: detail}
	}
	wid, err := client.WID(ctx)
	if err != nil {
		return WIDResult{IsAuthenticated: false, Detail: "session dropped: " + err.Error()}
	}
	return WIDResult{IsAuthenticated: true, WID: wid}
}

// List returns the currently registered sessions.
func (m *Manager) List() []Info {
	return m.registry.List()
}
