package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wagate/backend/internal/engine"
	"github.com/wagate/backend/internal/logging"
)

// readiness tracks one in-flight initialization attempt. A session is usable
// only once the chat transport is up AND the application interface has
// finished loading; either signal alone is not enough.
type readiness struct {
	inChat    bool
	mainUI    bool
	completed bool
	failed    bool
}

// Relay bridges engine QR/status/interface callbacks into the push channel.
// All status and QR events are re-broadcast to subscribers unconditionally;
// the readiness conjunction and the failure path only control the one-shot
// completion signal and subscriber termination layered on top.
type Relay struct {
	notifier        Notifier
	completionGrace time.Duration
	failureGrace    time.Duration

	mu       sync.Mutex
	attempts map[string]*readiness
	cleanup  func(sessionName string)

	log zerolog.Logger
}

func NewRelay(notifier Notifier, completionGrace, failureGrace time.Duration) *Relay {
	return &Relay{
		notifier:        notifier,
		completionGrace: completionGrace,
		failureGrace:    failureGrace,
		attempts:        make(map[string]*readiness),
		log:             logging.WithComponent("relay"),
	}
}

// SetCleanupHook installs the function invoked (after the failure grace
// delay) when a session reports initialization-error. Wired to the recovery
// supervisor by the composition root; kept as a hook to avoid a construction
// cycle between relay and supervisor.
func (r *Relay) SetCleanupHook(fn func(sessionName string)) {
	r.mu.Lock()
	r.cleanup = fn
	r.mu.Unlock()
}

// Begin opens a fresh readiness tracker for an initialization attempt,
// discarding any leftover state from a previous attempt.
func (r *Relay) Begin(sessionName string) {
	r.mu.Lock()
	r.attempts[sessionName] = &readiness{}
	r.mu.Unlock()
}

// End discards the readiness tracker for a session. Called by the lifecycle
// manager when creation fails outright.
func (r *Relay) End(sessionName string) {
	r.mu.Lock()
	delete(r.attempts, sessionName)
	r.mu.Unlock()
}

// HandleQR returns the QR callback for a session, suitable for wiring into
// engine.CreateConfig before creation starts.
func (r *Relay) HandleQR(sessionName string) func(engine.QREvent) {
	return func(evt engine.QREvent) {
		evt.SessionName = sessionName
		r.log.Debug().Str("session", sessionName).Int("attempt", evt.Attempt).Msg("qr code received")
		r.notifier.PublishQR(sessionName, evt)
	}
}

// HandleStatus returns the status callback for a session.
func (r *Relay) HandleStatus(sessionName string) func(status string) {
	return func(status string) {
		evt := StatusEvent{
			Kind:        status,
			SessionName: sessionName,
			Timestamp:   time.Now(),
			Message:     statusMessage(status),
		}
		r.notifier.PublishStatus(sessionName, evt)

		switch status {
		case engine.StatusInChat:
			r.markTransportReady(sessionName)
		case engine.StatusInitError:
			r.markFailed(sessionName)
		}
	}
}

// HandleInterface returns the interface-change callback for a session. This
// subscription is only established after creation succeeds.
func (r *Relay) HandleInterface(sessionName string) func(engine.InterfaceEvent) {
	return func(evt engine.InterfaceEvent) {
		r.log.Debug().Str("session", sessionName).Str("mode", evt.Mode).Msg("interface change")
		if evt.Mode == engine.ModeMain {
			r.markInterfaceReady(sessionName)
		}
	}
}

func (r *Relay) markTransportReady(sessionName string) {
	r.mu.Lock()
	if a, ok := r.attempts[sessionName]; ok {
		a.inChat = true
	}
	r.mu.Unlock()
	r.maybeComplete(sessionName)
}

func (r *Relay) markInterfaceReady(sessionName string) {
	r.mu.Lock()
	if a, ok := r.attempts[sessionName]; ok {
		a.mainUI = true
	}
	r.mu.Unlock()
	r.maybeComplete(sessionName)
}

// maybeComplete fires the one-shot session-complete notification once both
// readiness flags are set, then terminates the session's subscribers after a
// short grace period so the notification can be delivered first.
func (r *Relay) maybeComplete(sessionName string) {
	r.mu.Lock()
	a, ok := r.attempts[sessionName]
	if !ok || !a.inChat || !a.mainUI || a.completed || a.failed {
		r.mu.Unlock()
		return
	}
	a.completed = true
	delete(r.attempts, sessionName)
	r.mu.Unlock()

	r.log.Info().Str("session", sessionName).Msg("session complete")
	r.notifier.PublishComplete(sessionName, CompleteEvent{
		SessionName: sessionName,
		Status:      "connected",
		Message:     "session is ready for use",
		Timestamp:   time.Now(),
	})

	time.AfterFunc(r.completionGrace, func() {
		r.notifier.DisconnectSession(sessionName)
	})
}

// markFailed schedules cleanup of the failed session after the failure grace
// delay, which exists to let the error status reach subscribers before their
// channel is torn down. The cleanup hook and disconnect fire at most once
// per attempt.
func (r *Relay) markFailed(sessionName string) {
	r.mu.Lock()
	a, ok := r.attempts[sessionName]
	if !ok || a.failed {
		r.mu.Unlock()
		return
	}
	a.failed = true
	delete(r.attempts, sessionName)
	cleanup := r.cleanup
	r.mu.Unlock()

	r.log.Warn().Str("session", sessionName).Msg("initialization failed, scheduling cleanup")
	time.AfterFunc(r.failureGrace, func() {
		if cleanup != nil {
			cleanup(sessionName)
		}
		r.notifier.DisconnectSession(sessionName)
	})
}
