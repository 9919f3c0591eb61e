package session

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/wagate/backend/internal/config"
	"github.com/wagate/backend/internal/engine"
	"github.com/wagate/backend/internal/logging"
	"github.com/wagate/backend/internal/profile"
)

// DeleteResult summarizes a session deletion.
type DeleteResult struct {
	HandleRemoved bool `json:"handleRemoved"`
	DataRemoved   bool `json:"dataRemoved"`
}

// Supervisor owns session teardown: user-requested deletion and cleanup of
// sessions that never finished initializing. Deletion is best-effort
// throughout — a failing logout is logged, never allowed to block removal of
// the persisted profile data.
type Supervisor struct {
	cfg      *config.Config
	manager  *Manager
	registry *Registry
	log      zerolog.Logger
}

func NewSupervisor(cfg *config.Config, manager *Manager, registry *Registry) *Supervisor {
	return &Supervisor{
		cfg:      cfg,
		manager:  manager,
		registry: registry,
		log:      logging.WithComponent("supervisor"),
	}
}

// DeleteSession tears a session down: graceful logout when possible, handle
// close, unconditional registry removal, then recursive deletion of the
// persisted profile directory. Idempotent — deleting an absent session
// reports nothing removed and no error.
func (s *Supervisor) DeleteSession(ctx context.Context, name string) (DeleteResult, error) {
	if err := profile.ValidateName(name); err != nil {
		return DeleteResult{}, &OpError{Kind: KindInvalidName, Err: err}
	}

	var result DeleteResult

	client, ok := s.registry.Get(name)
	switch {
	case ok:
		s.logoutAndClose(ctx, name, client)
		result.HandleRemoved = true
	case profile.Exists(s.cfg.Sessions.RootDir, name):
		// No live handle, but persisted data exists: reconnect briefly so the
		// session can be logged out cleanly before its data is destroyed. A
		// timeout or failure here is tolerated; deletion proceeds regardless.
		if client := s.reacquireForLogout(ctx, name); client != nil {
			s.logoutAndClose(ctx, name, client)
		}
	}

	s.registry.Remove(name)

	// Brief pause so filesystem handles release after process teardown.
	sleepCtx(ctx, s.cfg.Timing.DeleteReleaseDelay)

	removed, err := profile.Remove(s.cfg.Sessions.RootDir, name)
	if err != nil {
		s.log.Error().Err(err).Str("session", name).Msg("profile removal failed")
		return result, err
	}
	result.DataRemoved = removed

	s.log.Info().
		Str("session", name).
		Bool("handleRemoved", result.HandleRemoved).
		Bool("dataRemoved", result.DataRemoved).
		Msg("session deleted")
	return result, nil
}

// CleanupFailedSession removes a session that never finished initializing.
// No logout: the session never authenticated, and a logout against a
// half-initialized browser process can hang indefinitely.
func (s *Supervisor) CleanupFailedSession(ctx context.Context, name string) (DeleteResult, error) {
	if err := profile.ValidateName(name); err != nil {
		return DeleteResult{}, &OpError{Kind: KindInvalidName, Err: err}
	}

	var result DeleteResult

	if client, ok := s.registry.Get(name); ok {
		if err := client.Close(); err != nil {
			s.log.Warn().Err(err).Str("session", name).Msg("closing failed session client")
		}
		result.HandleRemoved = true
	}
	s.registry.Remove(name)

	sleepCtx(ctx, s.cfg.Timing.DeleteReleaseDelay)

	removed, err := profile.Remove(s.cfg.Sessions.RootDir, name)
	if err != nil {
		s.log.Error().Err(err).Str("session", name).Msg("profile removal failed")
		return result, err
	}
	result.DataRemoved = removed

	s.log.Info().Str("session", name).Msg("failed session cleaned up")
	return result, nil
}

func (s *Supervisor) logoutAndClose(ctx context.Context, name string, client engine.Client) {
	if err := client.Logout(ctx); err != nil {
		s.log.Warn().Err(err).Str("session", name).Msg("logout failed, continuing teardown")
	}
	if err := client.Close(); err != nil {
		s.log.Warn().Err(err).Str("session", name).Msg("client close failed")
	}
}

// reacquireForLogout attempts a bounded reconnect solely so the session can
// be logged out before its data is deleted. The acquiring goroutine always
// delivers its outcome (nil on failure); on timeout a detached receiver takes
// over, closing and evicting a late-arriving client so a stale handle never
// outlives deletion.
func (s *Supervisor) reacquireForLogout(ctx context.Context, name string) engine.Client {
	resultCh := make(chan engine.Client, 1)

	go func() {
		// Deliberately not bound to the caller's deadline: the engine call
		// itself cannot be force-cancelled, only its result ignored.
		client, err := s.manager.Acquire(context.WithoutCancel(ctx), name)
		if err != nil {
			s.log.Debug().Err(err).Str("session", name).Msg("reacquire for logout failed")
			resultCh <- nil
			return
		}
		resultCh <- client
	}()

	timeoutCtx, cancel := context.WithTimeout(ctx, s.cfg.Timing.ReconnectTimeout)
	defer cancel()

	select {
	case client := <-resultCh:
		return client
	case <-timeoutCtx.Done():
		go func() {
			if client := <-resultCh; client != nil {
				_ = client.Close()
				s.registry.Remove(name)
			}
		}()
		s.log.Warn().Str("session", name).Msg("reacquire for logout timed out, deleting data anyway")
		return nil
	}
}
