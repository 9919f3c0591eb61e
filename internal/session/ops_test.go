package session

import (
	"context"
	"errors"
	"testing"

	"github.com/wagate/backend/internal/engine"
)

func newOpsManager(t *testing.T) (*Manager, *Registry) {
	t.Helper()
	eng := &mockEngine{createFn: func(engine.CreateConfig) (engine.Client, error) {
		t.Error("pass-through operation triggered a session creation")
		return nil, nil
	}}
	m, registry, _ := newTestManager(t, eng)
	return m, registry
}

func TestSendTextMissingSession(t *testing.T) {
	m, _ := newOpsManager(t)

	result := m.SendText(context.Background(), "alpha", "491701234567", "hi")
	if result.IsAuthenticated {
		t.Error("IsAuthenticated = true for a missing session")
	}
	if result.Sent {
		t.Error("Sent = true for a missing session")
	}
}

func TestSendTextUnauthenticated(t *testing.T) {
	m, registry := newOpsManager(t)
	client := &mockClient{connected: true, authenticated: false}
	registry.Put("alpha", client)

	result := m.SendText(context.Background(), "alpha", "491701234567", "hi")
	if result.IsAuthenticated {
		t.Error("IsAuthenticated = true for an unauthenticated session")
	}
	_, _, _, sends := client.counts()
	if sends != 0 {
		t.Errorf("send invoked %d times on an unauthenticated session, want 0", sends)
	}
}

func TestSendTextEngineFailureReportsDrop(t *testing.T) {
	m, registry := newOpsManager(t)
	client := &mockClient{connected: true, authenticated: true, sendErr: errors.New("socket reset")}
	registry.Put("alpha", client)

	result := m.SendText(context.Background(), "alpha", "491701234567", "hi")
	if result.IsAuthenticated {
		t.Error("IsAuthenticated = true after a send failure (session should be treated as dropped)")
	}
	if result.Detail == "" {
		t.Error("drop result carries no detail")
	}
}

func TestSendTextSuccess(t *testing.T) {
	m, registry := newOpsManager(t)
	registry.Put("alpha", &mockClient{connected: true, authenticated: true})

	result := m.SendText(context.Background(), "alpha", "491701234567", "hi")
	if !result.IsAuthenticated || !result.Sent {
		t.Errorf("result = %+v, want authenticated send", result)
	}
	if result.Receipt == nil || result.Receipt.MessageID == "" {
		t.Error("successful send carries no receipt")
	}
}

func TestListChatsUnauthenticated(t *testing.T) {
	m, registry := newOpsManager(t)
	registry.Put("alpha", &mockClient{connected: true, authenticated: false})

	result := m.ListChats(context.Background(), "alpha", engine.ChatFilter{})
	if result.IsAuthenticated {
		t.Error("IsAuthenticated = true for an unauthenticated session")
	}
}

func TestListChatsSuccess(t *testing.T) {
	m, registry := newOpsManager(t)
	registry.Put("alpha", &mockClient{
		connected:     true,
		authenticated: true,
		chats: []engine.Chat{
			{JID: "1@g.us", Name: "team", IsGroup: true},
			{JID: "2@s.whatsapp.net", Name: "bob"},
		},
	})

	result := m.ListChats(context.Background(), "alpha", engine.ChatFilter{})
	if !result.IsAuthenticated {
		t.Fatal("IsAuthenticated = false for an authenticated session")
	}
	if len(result.Chats) != 2 {
		t.Errorf("chats = %d, want 2", len(result.Chats))
	}
}

func TestConnectionStateMissing(t *testing.T) {
	m, _ := newOpsManager(t)

	result := m.ConnectionState(context.Background(), "alpha")
	if result.Found {
		t.Error("Found = true for a missing session")
	}
}

func TestConnectionStateLive(t *testing.T) {
	m, registry := newOpsManager(t)
	registry.Put("alpha", &mockClient{connected: true, authenticated: true})

	result := m.ConnectionState(context.Background(), "alpha")
	if !result.Found || !result.Connected || result.State != "CONNECTED" {
		t.Errorf("result = %+v, want found connected CONNECTED", result)
	}
}

func TestAuthState(t *testing.T) {
	m, registry := newOpsManager(t)
	registry.Put("alpha", &mockClient{authenticated: true})

	if got := m.AuthState("alpha"); !got.Found || !got.IsAuthenticated {
		t.Errorf("AuthState = %+v, want found authenticated", got)
	}
	if got := m.AuthState("missing"); got.Found {
		t.Errorf("AuthState = %+v for missing session, want not found", got)
	}
}

func TestWID(t *testing.T) {
	m, registry := newOpsManager(t)
	registry.Put("alpha", &mockClient{authenticated: true, wid: "49170@s.whatsapp.net"})

	result := m.WID(context.Background(), "alpha")
	if !result.IsAuthenticated || result.WID != "49170@s.whatsapp.net" {
		t.Errorf("WID result = %+v", result)
	}

	if got := m.WID(context.Background(), "missing"); got.IsAuthenticated {
		t.Errorf("WID = %+v for missing session, want unauthenticated", got)
	}
}
