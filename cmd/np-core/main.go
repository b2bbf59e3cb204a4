package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"NetPulse/internal/alert"
	"NetPulse/internal/api"
	"NetPulse/internal/config"
	"NetPulse/internal/dispatch"
	"NetPulse/internal/metrics"
	"NetPulse/internal/model"
	"NetPulse/internal/session"
	"NetPulse/internal/state"
	"NetPulse/internal/stream"
	"NetPulse/internal/timeseries"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the YAML configuration file.")
	flag.Parse()

	// 1. Load configuration and build the logger
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	// 2. Restore the session from the token file, if one exists
	store := session.NewStore(cfg.Session.TokenFile, logger)
	if err := store.Load(); err != nil {
		logger.Fatal("failed to load session", zap.Error(err))
	}
	if !store.Active() {
		logger.Fatal("no active session; sign in with np-ctl login first")
	}
	if exp := store.ExpiresAt(); exp.IsZero() {
		logger.Info("session restored", zap.String("token_file", cfg.Session.TokenFile))
	} else if time.Now().After(exp) {
		logger.Warn("stored access token has expired, refreshing on first request",
			zap.Time("expired_at", exp))
	} else {
		logger.Info("session restored", zap.Time("access_token_expires", exp))
	}

	// 3. REST client; a terminal refresh failure ends the process since
	// the realtime feed cannot survive the session
	expired := make(chan struct{}, 1)
	onExpired := func() {
		select {
		case expired <- struct{}{}:
		default:
		}
	}
	client, err := api.NewClient(cfg.Backend, store, logger, m, onExpired)
	if err != nil {
		logger.Fatal("failed to create backend client", zap.Error(err))
	}

	// Warm up against the REST API: confirms the token works (refreshing
	// it if stale) and logs what the backend is configured to evaluate.
	warmCtx, warmCancel := context.WithTimeout(context.Background(), 15*time.Second)
	if rules, err := client.Thresholds(warmCtx); err != nil {
		logger.Warn("could not fetch threshold rules", zap.Error(err))
	} else {
		logger.Info("backend threshold rules loaded", zap.Int("count", len(rules)))
	}
	if clients, err := client.Clients(warmCtx); err != nil {
		logger.Warn("could not fetch monitored clients", zap.Error(err))
	} else {
		logger.Info("monitored clients loaded", zap.Int("count", len(clients)))
	}
	warmCancel()

	// 4. Realtime core: dispatcher, buffers, coalescer, connection manager
	disp := dispatch.New(logger, m)
	buffer := timeseries.NewBuffer(cfg.Window, m)

	coal, err := alert.NewCoalescer(cfg.Alert, logger)
	if err != nil {
		logger.Fatal("failed to create alert coalescer", zap.Error(err))
	}
	coal.Start()

	dialer := stream.NewNATSDialer(cfg.Stream, logger)
	manager, err := stream.NewManager(cfg.Stream, dialer, store, disp, logger, m)
	if err != nil {
		logger.Fatal("failed to create connection manager", zap.Error(err))
	}

	dash := state.NewDashboard(buffer, coal, manager, cfg.Health, logger)
	manager.OnDegraded(dash.SetDegraded)
	if err := dash.Register(disp); err != nil {
		logger.Fatal("failed to register event handlers", zap.Error(err))
	}

	if err := manager.Connect(context.Background()); err != nil {
		if model.Terminal(err) {
			logger.Fatal("stream authentication failed; sign in again with np-ctl login", zap.Error(err))
		}
		logger.Fatal("failed to connect to event stream", zap.Error(err))
	}

	// 5. Read-only state API
	server := &http.Server{
		Addr:    cfg.API.ListenAddr,
		Handler: state.NewRouter(dash, reg, logger),
	}
	go func() {
		logger.Info("state API listening", zap.String("addr", cfg.API.ListenAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("state API server failed", zap.Error(err))
		}
	}()

	// 6. Run until a signal arrives or the session expires
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case <-expired:
		logger.Warn("session expired, shutting down; sign in again with np-ctl login")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("state API shutdown incomplete", zap.Error(err))
	}
	manager.Disconnect()
	coal.Stop()
	logger.Info("shutdown complete")
}
