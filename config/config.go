package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"transitions-api-go/services/transitions"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
)

var (
	conf   = mustLoad()
	confMu sync.RWMutex
)

// KnownProviders lists every provider name the server can register, plus "none"
var KnownProviders = []string{"musicgen", "stable-audio", "musicgen-local", "fal", "none"}

type Config struct {
	Configuration struct {
		Port               string `envconfig:"PORT" default:"4000"`
		LogLevel           string `envconfig:"LOG_LEVEL" default:"info"`
		APIKey             string `envconfig:"API_KEY" default:""`
		CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

		APIRateLimitPerWindow       int `envconfig:"API_RATE_LIMIT_PER_WINDOW" default:"100"`
		APIRateLimitWindowSecs      int `envconfig:"API_RATE_LIMIT_WINDOW_SECS" default:"900"`
		GenerateRateLimitPerWindow  int `envconfig:"GENERATE_RATE_LIMIT_PER_WINDOW" default:"10"`
		GenerateRateLimitWindowSecs int `envconfig:"GENERATE_RATE_LIMIT_WINDOW_SECS" default:"3600"`

		DefaultTransitionSeconds int    `envconfig:"DEFAULT_TRANSITION_SECONDS" default:"5"`
		DefaultTransitionStyle   string `envconfig:"DEFAULT_TRANSITION_STYLE" default:"ambient"`

		ResultCacheCapacity int `envconfig:"RESULT_CACHE_CAPACITY" default:"100"`
		ResultCacheTTLSecs  int `envconfig:"RESULT_CACHE_TTL_SECS" default:"86400"`

		CircuitBreakerThreshold    int `envconfig:"CIRCUIT_BREAKER_THRESHOLD" default:"5"`       // Consecutive failures before a provider is skipped
		CircuitBreakerCooldownSecs int `envconfig:"CIRCUIT_BREAKER_COOLDOWN_SECS" default:"300"` // Seconds to wait before retrying it

		StatsDBPath string `envconfig:"STATS_DB_PATH" default:"./data/stats.db"`
	}

	Providers struct {
		Primary   string `envconfig:"GENERATION_PROVIDER" default:"musicgen"`
		Fallbacks string `envconfig:"GENERATION_FALLBACK_PROVIDERS" default:"musicgen-local"` // Comma separated

		HuggingFaceAPIKey   string `envconfig:"HUGGINGFACE_API_KEY" default:""`
		MusicGenModelID     string `envconfig:"MUSICGEN_MODEL_ID" default:"facebook/musicgen-small"`
		MusicGenEndpoint    string `envconfig:"MUSICGEN_ENDPOINT" default:""`
		MusicGenTimeoutSecs int    `envconfig:"MUSICGEN_TIMEOUT_SECS" default:"120"`

		StableAudioModelID     string `envconfig:"STABLE_AUDIO_MODEL_ID" default:"stabilityai/stable-audio-open-1.0"`
		StableAudioEndpoint    string `envconfig:"STABLE_AUDIO_ENDPOINT" default:""`
		StableAudioTimeoutSecs int    `envconfig:"STABLE_AUDIO_TIMEOUT_SECS" default:"300"`

		LocalMusicGenURL string `envconfig:"LOCAL_MUSICGEN_URL" default:"http://localhost:5000"`

		FalKey              string `envconfig:"FAL_KEY" default:""`
		FalStableAudioModel string `envconfig:"FAL_STABLE_AUDIO_MODEL" default:"fal-ai/stable-audio"`
		FalBaseURL          string `envconfig:"FAL_BASE_URL" default:"https://fal.run"`
	}

	Storage struct {
		Backend        string `envconfig:"STORAGE_BACKEND" default:"fs"` // fs or minio
		TransitionsDir string `envconfig:"TRANSITIONS_DIR" default:"./tmp/transitions"`
		MinioEndpoint  string `envconfig:"MINIO_ENDPOINT" default:""`
		MinioAccessKey string `envconfig:"MINIO_ACCESS_KEY" default:""`
		MinioSecretKey string `envconfig:"MINIO_SECRET_KEY" default:""`
		MinioBucket    string `envconfig:"MINIO_BUCKET" default:"transitions"`
		MinioUseSSL    bool   `envconfig:"MINIO_USE_SSL" default:"false"`
	}

	Status struct {
		Backend             string `envconfig:"STATUS_BACKEND" default:"memory"` // memory or redis
		MaxAgeSecs          int    `envconfig:"STATUS_MAX_AGE_SECS" default:"86400"`
		CleanupIntervalSecs int    `envconfig:"STATUS_CLEANUP_INTERVAL_SECS" default:"3600"`
		RedisAddr           string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
		RedisPassword       string `envconfig:"REDIS_PASSWORD" default:""`
		RedisDB             int    `envconfig:"REDIS_DB" default:"0"`
	}

	Notifier struct {
		TelegramBotToken string `envconfig:"NOTIFIER_TELEGRAM_BOT_TOKEN" default:""`
		TelegramChatID   string `envconfig:"NOTIFIER_TELEGRAM_CHAT_ID" default:""`
		NtfyTopic        string `envconfig:"NOTIFIER_NTFY_TOPIC" default:""`
		NtfyServer       string `envconfig:"NOTIFIER_NTFY_SERVER" default:"https://ntfy.sh"`
		SMTPHost         string `envconfig:"NOTIFIER_SMTP_HOST" default:""`
		SMTPPort         string `envconfig:"NOTIFIER_SMTP_PORT" default:"587"`
		SMTPUsername     string `envconfig:"NOTIFIER_SMTP_USERNAME" default:""`
		SMTPPassword     string `envconfig:"NOTIFIER_SMTP_PASSWORD" default:""`
		FromEmail        string `envconfig:"NOTIFIER_FROM_EMAIL" default:""`
		ToEmail          string `envconfig:"NOTIFIER_TO_EMAIL" default:""`
		CooldownMins     int    `envconfig:"NOTIFIER_COOLDOWN_MINS" default:"15"`
	}

	FeatureFlags struct {
		DedupeInFlight bool `envconfig:"FF_DEDUPE_IN_FLIGHT" default:"false"`
	}
}

// load loads the configuration from the environment.
func load() (Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Warnf("Error loading env config: %v", err)
	}

	cfg := Config{}
	err = envconfig.Process("", &cfg)
	return cfg, err
}

func mustLoad() Config {
	c, err := load()
	if err != nil {
		log.WithError(err).Warnf("Unable to load configuration")
	}

	return c
}

// Get returns the current configuration snapshot
func Get() Config {
	confMu.RLock()
	defer confMu.RUnlock()
	return conf
}

// Reload re-reads .env (overriding earlier values from it) and the environment.
// An invalid result is rejected and the previous snapshot stays active.
func Reload() (Config, error) {
	if err := godotenv.Overload(); err != nil {
		log.Debugf("No .env to reload: %v", err)
	}

	cfg := Config{}
	if err := envconfig.Process("", &cfg); err != nil {
		return Get(), err
	}
	if err := cfg.Validate(); err != nil {
		return Get(), err
	}

	confMu.Lock()
	conf = cfg
	confMu.Unlock()
	return cfg, nil
}

// Validate reports every setting that would make the server misbehave
func (c Config) Validate() error {
	var problems []string

	if err := c.Defaults().Validate(); err != nil {
		problems = append(problems, err.Error())
	}

	switch c.Storage.Backend {
	case "fs":
		if c.Storage.TransitionsDir == "" {
			problems = append(problems, "TRANSITIONS_DIR must be set for the fs backend")
		}
	case "minio":
		if c.Storage.MinioEndpoint == "" || c.Storage.MinioBucket == "" {
			problems = append(problems, "MINIO_ENDPOINT and MINIO_BUCKET must be set for the minio backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("STORAGE_BACKEND %q must be fs or minio", c.Storage.Backend))
	}

	switch c.Status.Backend {
	case "memory":
	case "redis":
		if c.Status.RedisAddr == "" {
			problems = append(problems, "REDIS_ADDR must be set for the redis backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("STATUS_BACKEND %q must be memory or redis", c.Status.Backend))
	}

	sel := c.Selection()
	for _, name := range append([]string{sel.Primary}, sel.Fallbacks...) {
		if !knownProvider(name) {
			problems = append(problems, fmt.Sprintf("unknown provider %q (known: %s)", name, strings.Join(KnownProviders, ", ")))
		}
	}

	if c.Configuration.ResultCacheCapacity <= 0 {
		problems = append(problems, "RESULT_CACHE_CAPACITY must be positive")
	}
	if c.Configuration.APIRateLimitPerWindow <= 0 || c.Configuration.GenerateRateLimitPerWindow <= 0 {
		problems = append(problems, "rate limits must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func knownProvider(name string) bool {
	for _, known := range KnownProviders {
		if name == known {
			return true
		}
	}
	return false
}

// ProviderSelection is the parsed primary and fallback order
type ProviderSelection struct {
	Primary   string
	Fallbacks []string
}

// Selection parses GENERATION_PROVIDER and GENERATION_FALLBACK_PROVIDERS
func (c Config) Selection() ProviderSelection {
	sel := ProviderSelection{Primary: strings.ToLower(strings.TrimSpace(c.Providers.Primary))}
	for _, name := range strings.Split(c.Providers.Fallbacks, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" && name != sel.Primary {
			sel.Fallbacks = append(sel.Fallbacks, name)
		}
	}
	return sel
}

// Defaults returns the values applied to omitted request fields
func (c Config) Defaults() transitions.Defaults {
	return transitions.Defaults{
		Seconds: c.Configuration.DefaultTransitionSeconds,
		Style:   transitions.Style(strings.ToLower(c.Configuration.DefaultTransitionStyle)),
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func (c Config) ResultCacheTTL() time.Duration        { return seconds(c.Configuration.ResultCacheTTLSecs) }
func (c Config) StatusMaxAge() time.Duration          { return seconds(c.Status.MaxAgeSecs) }
func (c Config) StatusCleanupInterval() time.Duration { return seconds(c.Status.CleanupIntervalSecs) }
func (c Config) BreakerCooldown() time.Duration       { return seconds(c.Configuration.CircuitBreakerCooldownSecs) }
func (c Config) MusicGenTimeout() time.Duration       { return seconds(c.Providers.MusicGenTimeoutSecs) }
func (c Config) StableAudioTimeout() time.Duration    { return seconds(c.Providers.StableAudioTimeoutSecs) }
func (c Config) APIRateWindow() time.Duration         { return seconds(c.Configuration.APIRateLimitWindowSecs) }
func (c Config) GenerateRateWindow() time.Duration    { return seconds(c.Configuration.GenerateRateLimitWindowSecs) }
