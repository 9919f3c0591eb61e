// Package engine defines the boundary to the WhatsApp automation engine.
// The session core talks exclusively to these interfaces; the concrete
// implementation lives in the wameow subpackage.
package engine

import (
	"context"
	"errors"
	"time"
)

// ErrProfileLocked is returned by CreateSession when the session's profile
// directory carries a stale lock marker left by a previous process. The
// lifecycle manager remediates this with exactly one retry.
var ErrProfileLocked = errors.New("profile directory is locked (SingletonLock present)")

// ErrNotAuthenticated is returned by client operations that require a
// logged-in session.
var ErrNotAuthenticated = errors.New("session is not authenticated")

// Status kinds reported through the status callback. Consumed by the event
// relay and forwarded verbatim to push-channel subscribers.
const (
	StatusNotLogged     = "not-logged"
	StatusQRReadSuccess = "qr-read-success"
	StatusQRReadError   = "qr-read-error"
	StatusAuthenticated = "authenticated"
	StatusReady         = "ready"
	StatusInChat        = "in-chat"
	StatusInitError     = "initialization-error"
	StatusError         = "error"
)

// Interface modes reported through OnInterfaceChange.
const (
	ModeSyncing = "SYNCING"
	ModeMain    = "MAIN"
)

// QREvent is one QR pairing code offered by the engine before a session is
// authenticated. Emitted zero or more times per initialization.
type QREvent struct {
	Image       []byte // PNG bytes
	ASCII       string // terminal-renderable rendering of the same code
	Attempt     int
	Code        string // raw pairing code
	SessionName string
}

// InterfaceEvent reports an application-interface transition, delivered via
// the secondary subscription established after creation succeeds.
type InterfaceEvent struct {
	Mode        string
	DisplayInfo string
}

// CreateConfig carries everything CreateSession needs. Both callbacks must
// be non-nil and wired before the call: the engine may invoke them while
// creation is still in flight.
type CreateConfig struct {
	SessionName string
	ProfileDir  string
	Headless    bool
	OnQR        func(QREvent)
	OnStatus    func(status string)
}

// Engine creates browser-backed automation sessions.
type Engine interface {
	CreateSession(ctx context.Context, cfg CreateConfig) (Client, error)
}

// Chat is one entry returned by ListChats.
type Chat struct {
	JID     string `json:"jid"`
	Name    string `json:"name"`
	IsGroup bool   `json:"isGroup"`
}

// ChatFilter narrows ListChats results.
type ChatFilter struct {
	OnlyGroups bool
}

// SendReceipt describes an accepted outbound message.
type SendReceipt struct {
	MessageID string    `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
}

// Client is one live automation-engine connection for a session.
//
// ConnectionState doubles as the liveness probe: a cheap idempotent call
// that fails when the underlying session has died.
type Client interface {
	IsConnected() bool
	IsAuthenticated() bool
	ConnectionState(ctx context.Context) (string, error)
	WID(ctx context.Context) (string, error)
	SendText(ctx context.Context, to, message string) (SendReceipt, error)
	ListChats(ctx context.Context, filter ChatFilter) ([]Chat, error)
	Logout(ctx context.Context) error
	Close() error
	OnInterfaceChange(fn func(InterfaceEvent))
}
