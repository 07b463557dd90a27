package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"transitions-api-go/config"
	"transitions-api-go/logcolors"
	"transitions-api-go/services/notifier"
	"transitions-api-go/services/providers"
	"transitions-api-go/stats"

	log "github.com/sirupsen/logrus"
)

const (
	shutdownTimeout  = 30 * time.Second
	statsSaveEvery   = 5 * time.Minute
	readHeaderLimit  = 10 * time.Second
	startupAlertWait = 2 * time.Second
)

func init() {
	log.SetFormatter(&log.JSONFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)
}

func main() {
	cfg := config.Get()
	applyLogLevel(cfg.Configuration.LogLevel)
	startAlerts(cfg)

	if err := cfg.Validate(); err != nil {
		fatalStartup("config", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		fatalStartup("storage", err)
	}

	tracker, closeTracker, err := openTracker(context.Background(), cfg)
	if err != nil {
		fatalStartup("status", err)
	}

	registry := providers.NewRegistry()
	registerProviders(registry, cfg)

	srv := newServer(config.Get, store, tracker, registry)

	statsStore, err := stats.NewStore(cfg.Configuration.StatsDBPath, srv.stats)
	if err != nil {
		log.Warnf("%s Stats persistence disabled: %v", logcolors.LogStats, err)
	} else {
		if err := statsStore.Load(); err != nil {
			log.Warnf("%s Starting with fresh stats: %v", logcolors.LogStats, err)
		}
		statsStore.StartAutoSave(statsSaveEvery)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go srv.runStatusCleanup(ctx)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Configuration.Port,
		Handler:           srv.handler(),
		ReadHeaderTimeout: readHeaderLimit,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatalStartup("http", err)
		}
	}()

	sel := cfg.Selection()
	log.Infof("%s Listening on port %s (provider: %s, fallbacks: %v)",
		logcolors.LogServer, cfg.Configuration.Port, sel.Primary, sel.Fallbacks)
	notifier.PublishServerStarted(cfg.Configuration.Port, sel.Primary, sel.Fallbacks)

	waitForShutdown(srv)

	log.Infof("%s Shutting down", logcolors.LogServer)
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Errorf("%s Graceful shutdown failed: %v", logcolors.LogServer, err)
	}

	if statsStore != nil {
		if err := statsStore.Close(); err != nil {
			log.Warnf("%s Failed to close stats store: %v", logcolors.LogStats, err)
		}
	}
	if err := closeTracker(); err != nil {
		log.Warnf("%s Failed to close status backend: %v", logcolors.LogStatus, err)
	}
	log.Infof("%s Stopped", logcolors.LogServer)
}

// waitForShutdown blocks until SIGINT or SIGTERM, reloading configuration on every SIGHUP
func waitForShutdown(srv *server) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(signals)

	for sig := range signals {
		if sig == syscall.SIGHUP {
			log.Infof("%s SIGHUP received, reloading configuration", logcolors.LogConfig)
			srv.reload()
			continue
		}
		return
	}
}

// fatalStartup alerts and exits. Alerts are delivered asynchronously, so give them a moment.
func fatalStartup(component string, err error) {
	log.Errorf("%s Startup failed in %s: %v", logcolors.LogServer, component, err)
	notifier.PublishServerStartupFailed(component, err)
	time.Sleep(startupAlertWait)
	os.Exit(1)
}
