package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wagate/backend/internal/config"
	"github.com/wagate/backend/internal/engine"
	"github.com/wagate/backend/internal/logging"
	"github.com/wagate/backend/internal/profile"
)

// Machine-readable failure kinds surfaced by Acquire.
const (
	KindEngineUnavailable   = "engine-unavailable"
	KindResourceLocked      = "resource-locked"
	KindProfileInaccessible = "profile-inaccessible"
	KindInvalidName         = "invalid-session-name"
)

// OpError is a failed lifecycle operation: a machine-readable kind plus the
// underlying cause. Expected conditions never panic or crash the process.
type OpError struct {
	Kind string
	Err  error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// createPhase is the explicit state of one creation attempt. Having the
// single-retry guarantee encoded in a state machine keeps it structurally
// obvious instead of buried in nested error handling.
type createPhase int

const (
	phaseCreating createPhase = iota
	phaseLockRetryPending
	phaseSucceeded
	phaseFailed
)

// inflight is a pending creation shared by concurrent Acquire calls for the
// same session name.
type inflight struct {
	done   chan struct{}
	client engine.Client
	err    error
}

// Manager orchestrates session acquisition: probe-and-reuse of cached
// clients, creation with relay-wired callbacks, and one-shot remediation of
// stale profile locks. It is the sole writer of the registry.
type Manager struct {
	cfg      *config.Config
	engine   engine.Engine
	registry *Registry
	relay    *Relay

	mu      sync.Mutex
	pending map[string]*inflight

	log zerolog.Logger
}

func NewManager(cfg *config.Config, eng engine.Engine, registry *Registry, relay *Relay) *Manager {
	return &Manager{
		cfg:      cfg,
		engine:   eng,
		registry: registry,
		relay:    relay,
		pending:  make(map[string]*inflight),
		log:      logging.WithComponent("lifecycle"),
	}
}

// Acquire returns a live client for the session, reusing the cached one when
// its liveness probe passes and creating a fresh one otherwise. Creation for
// a given name is serialized: concurrent Acquire calls share one attempt.
func (m *Manager) Acquire(ctx context.Context, name string) (engine.Client, error) {
	if err := profile.ValidateName(name); err != nil {
		return nil, &OpError{Kind: KindInvalidName, Err: err}
	}

	if client, ok := m.registry.Get(name); ok {
		if m.probe(ctx, name, client) {
			return client, nil
		}
		// Stale handle: evict before recreating.
		m.registry.Remove(name)
		if err := client.Close(); err != nil {
			m.log.Debug().Err(err).Str("session", name).Msg("closing stale client")
		}
	}

	m.mu.Lock()
	if f, ok := m.pending[name]; ok {
		m.mu.Unlock()
		select {
		case <-f.done:
			return f.client, f.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f := &inflight{done: make(chan struct{})}
	m.pending[name] = f
	m.mu.Unlock()

	client, err := m.create(ctx, name)
	f.client, f.err = client, err

	m.mu.Lock()
	delete(m.pending, name)
	m.mu.Unlock()
	close(f.done)

	return client, err
}

// probe issues a cheap idempotent engine call to verify the cached client is
// still alive. A handle is never returned to a caller without passing this.
func (m *Manager) probe(ctx context.Context, name string, client engine.Client) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.Timing.ProbeTimeout)
	defer cancel()

	state, err := client.ConnectionState(probeCtx)
	if err != nil {
		m.log.Info().Err(err).Str("session", name).Msg("cached client failed liveness probe")
		return false
	}
	m.log.Debug().Str("session", name).Str("state", state).Msg("reusing cached client")
	return true
}

func (m *Manager) create(ctx context.Context, name string) (engine.Client, error) {
	m.relay.Begin(name)

	// Callbacks must be wired before creation is awaited: the engine may
	// invoke them while creation is still in flight.
	createCfg := engine.CreateConfig{
		SessionName: name,
		ProfileDir:  profile.Dir(m.cfg.Sessions.RootDir, name),
		Headless:    m.cfg.Sessions.Headless,
		OnQR:        m.relay.HandleQR(name),
		OnStatus:    m.relay.HandleStatus(name),
	}

	phase := phaseCreating
	for {
		client, err := m.engine.CreateSession(ctx, createCfg)
		if err == nil {
			phase = phaseSucceeded
			client.OnInterfaceChange(m.relay.HandleInterface(name))
			m.registry.Put(name, client)
			m.log.Info().Str("session", name).Msg("session created")
			return client, nil
		}

		if phase == phaseCreating && isLockError(err) {
			// Stale lock markers from a crashed attempt: remediate once and
			// retry exactly once. A second lock failure is surfaced.
			phase = phaseLockRetryPending
			m.log.Warn().Err(err).Str("session", name).Msg("profile locked, removing stale lock markers")
			if _, rmErr := profile.RemoveLockMarkers(m.cfg.Sessions.RootDir, name); rmErr != nil {
				m.log.Error().Err(rmErr).Str("session", name).Msg("lock marker removal failed")
			}
			if !sleepCtx(ctx, m.cfg.Timing.LockRetryDelay) {
				phase = phaseFailed
				m.relay.End(name)
				return nil, &OpError{Kind: KindEngineUnavailable, Err: ctx.Err()}
			}
			continue
		}

		phase = phaseFailed
		m.relay.End(name)
		m.log.Error().Err(err).Str("session", name).Msg("session creation failed")
		return nil, &OpError{Kind: failureKind(err), Err: err}
	}
}

func isLockError(err error) bool {
	if errors.Is(err, engine.ErrProfileLocked) {
		return true
	}
	return strings.Contains(err.Error(), "SingletonLock")
}

func failureKind(err error) string {
	switch {
	case isLockError(err):
		return KindResourceLocked
	case errors.Is(err, os.ErrPermission):
		return KindProfileInaccessible
	default:
		return KindEngineUnavailable
	}
}

// sleepCtx waits for d or until ctx is cancelled; reports whether the full
// delay elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
