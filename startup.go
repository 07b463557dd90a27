package main

import (
	"context"
	"fmt"
	"time"

	"transitions-api-go/cache"
	"transitions-api-go/config"
	"transitions-api-go/logcolors"
	"transitions-api-go/middleware"
	"transitions-api-go/services/notifier"
	"transitions-api-go/services/providers"
	"transitions-api-go/services/providers/fal"
	"transitions-api-go/services/providers/huggingface"
	"transitions-api-go/services/providers/local"
	"transitions-api-go/services/transitions"
	"transitions-api-go/stats"
	"transitions-api-go/status"
	"transitions-api-go/storage"

	log "github.com/sirupsen/logrus"
)

// server holds everything the HTTP handlers need
type server struct {
	conf      func() config.Config
	service   *transitions.Service
	router    *providers.Router
	registry  *providers.Registry
	stats     *stats.Stats
	limiter   *middleware.IPRateLimiter
	notifiers func() []notifier.Notifier
	startedAt time.Time
}

// newServer wires the pipeline over an already opened store and tracker.
// The provider selection and request defaults are read from conf on every request.
func newServer(conf func() config.Config, store storage.Store, tracker status.Tracker, registry *providers.Registry) *server {
	cfg := conf()
	st := stats.New()

	router := providers.NewRouter(providers.RouterOptions{
		Registry: registry,
		Selection: func() providers.Selection {
			return providers.Selection(conf().Selection())
		},
		BreakerThreshold: cfg.Configuration.CircuitBreakerThreshold,
		BreakerCooldown:  cfg.BreakerCooldown(),
		OnFallback: func(from, to string, _ transitions.Kind) {
			st.RecordFallback(from, to)
		},
	})

	service := transitions.NewService(transitions.Options{
		Cache:     cache.NewResultCache(cfg.Configuration.ResultCacheCapacity, cfg.ResultCacheTTL()),
		Store:     store,
		Status:    tracker,
		Generator: router,
		Defaults:  func() transitions.Defaults { return conf().Defaults() },
		Observer:  statsObserver{stats: st},
		Dedupe:    cfg.FeatureFlags.DedupeInFlight,
	})

	apiLimit := cfg.Configuration.APIRateLimitPerWindow
	generateLimit := cfg.Configuration.GenerateRateLimitPerWindow
	limiter := middleware.NewIPRateLimiter(
		middleware.PerWindow(apiLimit, cfg.APIRateWindow()), apiLimit,
		middleware.PerWindow(generateLimit, cfg.GenerateRateWindow()), generateLimit,
	)

	return &server{
		conf:      conf,
		service:   service,
		router:    router,
		registry:  registry,
		stats:     st,
		limiter:   limiter,
		notifiers: func() []notifier.Notifier { return setupNotifiers(conf()) },
		startedAt: time.Now(),
	}
}

// statsObserver feeds pipeline outcomes into the stats counters and the alert bus
type statsObserver struct {
	stats *stats.Stats
}

func (o statsObserver) CacheHit()                           { o.stats.RecordCacheHit() }
func (o statsObserver) CacheMiss()                          { o.stats.RecordCacheMiss() }
func (o statsObserver) CacheStale()                         { o.stats.RecordCacheStale() }
func (o statsObserver) GenerationStarted()                  { o.stats.RecordGenerationStarted() }
func (o statsObserver) GenerationSucceeded(d time.Duration) { o.stats.RecordGenerationSucceeded(d) }

func (o statsObserver) GenerationFailed(id string, err *transitions.Error, _ time.Duration) {
	o.stats.RecordGenerationFailed(string(err.Kind))
	notifier.PublishGenerationFailed(id, string(err.Kind), err.Provider)
}

// registerProviders (re)builds every backend from cfg. Registering an existing
// name replaces it, so this also applies reloaded credentials.
func registerProviders(registry *providers.Registry, cfg config.Config) {
	hf := huggingface.Config{
		APIKey:              cfg.Providers.HuggingFaceAPIKey,
		MusicGenModel:       cfg.Providers.MusicGenModelID,
		MusicGenEndpoint:    cfg.Providers.MusicGenEndpoint,
		MusicGenTimeout:     cfg.MusicGenTimeout(),
		StableAudioModel:    cfg.Providers.StableAudioModelID,
		StableAudioEndpoint: cfg.Providers.StableAudioEndpoint,
		StableAudioTimeout:  cfg.StableAudioTimeout(),
	}

	registry.Register(huggingface.NewMusicGen(hf))
	registry.Register(huggingface.NewStableAudio(hf))
	registry.Register(local.New(cfg.Providers.LocalMusicGenURL, cfg.MusicGenTimeout()))
	registry.Register(fal.New(fal.Config{
		Key:     cfg.Providers.FalKey,
		Model:   cfg.Providers.FalStableAudioModel,
		BaseURL: cfg.Providers.FalBaseURL,
		Timeout: cfg.StableAudioTimeout(),
	}))

	sel := cfg.Selection()
	log.Infof("%s Registered providers %v (primary: %s, fallbacks: %v)",
		logcolors.LogServer, registry.List(), sel.Primary, sel.Fallbacks)
}

// openStore creates the artifact store selected by STORAGE_BACKEND
func openStore(cfg config.Config) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "minio":
		store, err := storage.NewMinioStore(storage.MinioConfig{
			Endpoint:  cfg.Storage.MinioEndpoint,
			AccessKey: cfg.Storage.MinioAccessKey,
			SecretKey: cfg.Storage.MinioSecretKey,
			Bucket:    cfg.Storage.MinioBucket,
			UseSSL:    cfg.Storage.MinioUseSSL,
		})
		if err != nil {
			return nil, err
		}
		log.Infof("%s Storing transitions in bucket %s at %s",
			logcolors.LogStorage, cfg.Storage.MinioBucket, cfg.Storage.MinioEndpoint)
		return store, nil
	case "fs", "":
		log.Infof("%s Storing transitions in %s", logcolors.LogStorage, cfg.Storage.TransitionsDir)
		return storage.NewFileStore(cfg.Storage.TransitionsDir), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// openTracker creates the status tracker selected by STATUS_BACKEND.
// The returned close func releases any connection it holds.
func openTracker(ctx context.Context, cfg config.Config) (status.Tracker, func() error, error) {
	switch cfg.Status.Backend {
	case "redis":
		client, err := status.ConnectRedis(ctx, cfg.Status.RedisAddr, cfg.Status.RedisPassword, cfg.Status.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		log.Infof("%s Tracking status in Redis at %s", logcolors.LogStatus, cfg.Status.RedisAddr)
		return status.NewRedisTracker(client, cfg.StatusMaxAge()), client.Close, nil
	case "memory", "":
		log.Infof("%s Tracking status in memory", logcolors.LogStatus)
		return status.NewMemoryTracker(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown status backend %q", cfg.Status.Backend)
	}
}

func setupNotifiers(cfg config.Config) []notifier.Notifier {
	var notifiers []notifier.Notifier
	nc := cfg.Notifier

	if nc.SMTPHost != "" {
		notifiers = append(notifiers, &notifier.EmailNotifier{
			SMTPHost:     nc.SMTPHost,
			SMTPPort:     nc.SMTPPort,
			SMTPUsername: nc.SMTPUsername,
			SMTPPassword: nc.SMTPPassword,
			FromEmail:    nc.FromEmail,
			ToEmail:      nc.ToEmail,
		})
	}

	if nc.TelegramBotToken != "" {
		notifiers = append(notifiers, &notifier.TelegramNotifier{
			BotToken: nc.TelegramBotToken,
			ChatID:   nc.TelegramChatID,
		})
	}

	if nc.NtfyTopic != "" {
		notifiers = append(notifiers, &notifier.NtfyNotifier{
			Topic:  nc.NtfyTopic,
			Server: nc.NtfyServer,
		})
	}

	return notifiers
}

// startAlerts subscribes an alert handler to the event bus when any notifier is configured
func startAlerts(cfg config.Config) {
	notifiers := setupNotifiers(cfg)
	if len(notifiers) == 0 {
		log.Infof("%s No notifiers configured, alerts disabled", logcolors.LogNotifier)
		log.Infof("%s To enable alerts, configure at least one notifier (Email, Telegram, or Ntfy.sh)", logcolors.LogNotifier)
		return
	}

	for _, n := range notifiers {
		log.Infof("%s %s notifier enabled", logcolors.LogNotifier, n.Name())
	}

	notifier.NewAlertHandler(notifier.AlertConfig{
		Notifiers:        notifiers,
		CooldownDuration: time.Duration(cfg.Notifier.CooldownMins) * time.Minute,
	}).Start()
}

// runStatusCleanup garbage-collects old status records and idle rate limiters until ctx ends
func (s *server) runStatusCleanup(ctx context.Context) {
	interval := s.conf().StatusCleanupInterval()
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Infof("%s Cleaning up status records every %v", logcolors.LogStatusGC, interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanupOnce(ctx)
		}
	}
}

func (s *server) cleanupOnce(ctx context.Context) {
	maxAge := s.conf().StatusMaxAge()
	removed, err := s.service.CleanupStatuses(ctx, maxAge)
	if err != nil {
		log.Warnf("%s Cleanup failed: %v", logcolors.LogStatusGC, err)
	} else if removed > 0 {
		log.Infof("%s Removed %d status records older than %v", logcolors.LogStatusGC, removed, maxAge)
	}

	if pruned := s.limiter.Prune(); pruned > 0 {
		log.Debugf("%s Forgot %d idle clients", logcolors.LogRateLimit, pruned)
	}
}

// reload re-reads the configuration and rebuilds the providers from it.
// An invalid configuration is rejected and the previous one stays active.
func (s *server) reload() {
	cfg, err := config.Reload()
	if err != nil {
		log.Errorf("%s Reload rejected, keeping previous configuration: %v", logcolors.LogConfig, err)
		return
	}
	applyLogLevel(cfg.Configuration.LogLevel)
	registerProviders(s.registry, cfg)
	log.Infof("%s Configuration reloaded", logcolors.LogConfig)
}

func applyLogLevel(level string) {
	parsed, err := log.ParseLevel(level)
	if err != nil {
		log.Warnf("%s Unknown LOG_LEVEL %q, using info", logcolors.LogConfig, level)
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)
}
