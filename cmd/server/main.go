package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wagate/backend/internal/api"
	"github.com/wagate/backend/internal/config"
	"github.com/wagate/backend/internal/engine/wameow"
	"github.com/wagate/backend/internal/health"
	"github.com/wagate/backend/internal/logging"
	"github.com/wagate/backend/internal/session"
	"github.com/wagate/backend/internal/ws"
)

const defaultConfigPath = "config.yaml"

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// A missing default config file is fine; anything else is fatal.
		if !os.IsNotExist(err) || *configPath != defaultConfigPath {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = config.Default()
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	logging.Configure(logging.Config{Level: cfg.Log.Level})
	log := logging.WithComponent("server")

	registry := session.NewRegistry()
	hub := ws.NewHub(cfg.WS.SendBuffer)
	relay := session.NewRelay(hub, cfg.Timing.CompletionGrace, cfg.Timing.FailureCleanupGrace)
	eng := wameow.New()
	manager := session.NewManager(cfg, eng, registry, relay)
	supervisor := session.NewSupervisor(cfg, manager, registry)
	relay.SetCleanupHook(func(name string) {
		if _, err := supervisor.CleanupFailedSession(context.Background(), name); err != nil {
			log.Error().Err(err).Str("session", name).Msg("failed-session cleanup error")
		}
	})

	reporter := health.NewReporter(registry, hub)
	wsHandler := ws.NewHandler(hub, cfg.Server.AllowedOrigins)
	server := api.NewServer(manager, supervisor, reporter, wsHandler, cfg.Server.AuthToken)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("shutdown error")
		}
		// Close live engine handles so browser-side resources release.
		for _, info := range registry.List() {
			if client, ok := registry.Get(info.Name); ok {
				_ = client.Close()
			}
		}
	}()

	log.Info().Str("addr", addr).Msg("server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server error")
	}
}
