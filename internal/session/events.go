package session

import (
	"time"

	"github.com/wagate/backend/internal/engine"
)

// StatusEvent is one session status transition, forwarded to push-channel
// subscribers in emission order. Ephemeral, never persisted.
type StatusEvent struct {
	Kind        string    `json:"status"`
	SessionName string    `json:"sessionName"`
	Timestamp   time.Time `json:"timestamp"`
	Message     string    `json:"message,omitempty"`
}

// CompleteEvent is the one-shot "session complete" notification emitted when
// a session reaches both transport and interface readiness.
type CompleteEvent struct {
	SessionName string    `json:"sessionName"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
}

// Notifier is the push channel the relay publishes into. Implemented by the
// websocket hub; tests substitute a recording fake.
type Notifier interface {
	PublishQR(sessionName string, evt engine.QREvent)
	PublishStatus(sessionName string, evt StatusEvent)
	PublishComplete(sessionName string, evt CompleteEvent)
	// DisconnectSession terminates every subscriber currently joined to the
	// session's room.
	DisconnectSession(sessionName string)
}

// statusMessages maps status kinds to the human-readable message attached to
// the corresponding push event.
var statusMessages = map[string]string{
	engine.StatusNotLogged:     "session is not logged in",
	engine.StatusQRReadSuccess: "QR code scanned",
	engine.StatusQRReadError:   "QR code scan failed",
	engine.StatusAuthenticated: "session authenticated",
	engine.StatusReady:         "session ready",
	engine.StatusInChat:        "session connected to chat transport",
	engine.StatusInitError:     "session initialization failed",
	engine.StatusError:         "session error",
}

func statusMessage(kind string) string {
	if msg, ok := statusMessages[kind]; ok {
		return msg
	}
	return kind
}
