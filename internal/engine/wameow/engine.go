// Package wameow implements the automation-engine boundary on top of
// whatsmeow. Each session keeps its whole persisted state (device store and
// lock marker) inside its own profile directory, so the session core can
// treat that directory as opaque per-session data.
package wameow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"

	"github.com/wagate/backend/internal/engine"
	"github.com/wagate/backend/internal/logging"
)

const lockMarker = "SingletonLock"

type Engine struct {
	log zerolog.Logger
}

var _ engine.Engine = (*Engine)(nil)

func New() *Engine {
	return &Engine{
		log: logging.WithComponent("wameow"),
	}
}

// CreateSession opens (or initializes) the session's device store inside its
// profile directory, connects the whatsmeow client, and starts streaming QR
// and status callbacks. Status and QR callbacks can fire before this call
// returns.
func (e *Engine) CreateSession(ctx context.Context, cfg engine.CreateConfig) (engine.Client, error) {
	if cfg.OnQR == nil || cfg.OnStatus == nil {
		return nil, fmt.Errorf("session %s: QR and status callbacks are required", cfg.SessionName)
	}

	if err := os.MkdirAll(cfg.ProfileDir, 0o755); err != nil {
		return nil, fmt.Errorf("preparing profile dir: %w", err)
	}

	lockPath := filepath.Join(cfg.ProfileDir, lockMarker)
	if _, err := os.Stat(lockPath); err == nil {
		return nil, fmt.Errorf("%w: %s", engine.ErrProfileLocked, lockPath)
	}
	if err := os.WriteFile(lockPath, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return nil, fmt.Errorf("writing lock marker: %w", err)
	}

	client, err := e.connect(ctx, cfg, lockPath)
	if err != nil {
		_ = os.Remove(lockPath)
		cfg.OnStatus(engine.StatusInitError)
		return nil, err
	}
	return client, nil
}

func (e *Engine) connect(ctx context.Context, cfg engine.CreateConfig, lockPath string) (*Client, error) {
	dsn := "file:" + filepath.Join(cfg.ProfileDir, "session.db") + "?_foreign_keys=on"
	container, err := sqlstore.New(ctx, "sqlite3", dsn, nil)
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("loading device: %w", err)
	}

	wc := whatsmeow.NewClient(device, nil)
	wc.EnableAutoReconnect = true
	wc.AutoTrustIdentity = true

	c := &Client{
		wc:          wc,
		container:   container,
		sessionName: cfg.SessionName,
		lockPath:    lockPath,
		onQR:        cfg.OnQR,
		onStatus:    cfg.OnStatus,
		log:         e.log.With().Str("session", cfg.SessionName).Logger(),
	}
	wc.AddEventHandler(c.handleEvent)

	if wc.Store.ID == nil {
		// Fresh pairing: the QR channel must be requested before Connect.
		qrChan, err := wc.GetQRChannel(context.WithoutCancel(ctx))
		if err != nil {
			_ = container.Close()
			return nil, fmt.Errorf("opening QR channel: %w", err)
		}
		if err := wc.Connect(); err != nil {
			_ = container.Close()
			return nil, fmt.Errorf("connecting: %w", err)
		}
		cfg.OnStatus(engine.StatusNotLogged)
		go c.consumeQR(qrChan)
		return c, nil
	}

	if err := wc.Connect(); err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("reconnecting: %w", err)
	}
	return c, nil
}
