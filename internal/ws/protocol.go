package ws

import (
	"time"
)

// Outbound event names, scoped to a session room.
const (
	EventQRCode          = "qr-code"
	EventStatusUpdate    = "status-update"
	EventSessionComplete = "session-complete"
)

// Inbound control events.
const (
	ctrlJoinSession  = "join-session"
	ctrlLeaveSession = "leave-session"
)

// Envelope is the frame sent to subscribers.
type Envelope struct {
	Event   string      `json:"event"`
	Session string      `json:"session"`
	Payload interface{} `json:"payload"`
}

// controlMessage is the frame read from subscribers.
type controlMessage struct {
	Event   string `json:"event"`
	Session string `json:"session"`
}

// QRPayload carries one QR pairing code. Image is PNG bytes, base64-encoded
// in JSON.
type QRPayload struct {
	Image       []byte `json:"image"`
	ASCII       string `json:"asciiQR"`
	Attempt     int    `json:"attempts"`
	Code        string `json:"urlCode"`
	SessionName string `json:"sessionName"`
}

// StatusPayload mirrors session.StatusEvent on the wire.
type StatusPayload struct {
	Status      string    `json:"status"`
	SessionName string    `json:"sessionName"`
	Timestamp   time.Time `json:"timestamp"`
	Message     string    `json:"message,omitempty"`
}

// CompletePayload mirrors session.CompleteEvent on the wire.
type CompletePayload struct {
	SessionName string    `json:"sessionName"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
}
