package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig
	Cache       CacheConfig
	Database    DatabaseConfig
	Logging     LoggingConfig
	Sources     SourcesConfig
	Enrichment  EnrichmentConfig
	Translation TranslationConfig
	Events      EventsConfig
}

// ServerConfig holds HTTP server and scheduling configuration
type ServerConfig struct {
	HTTPAddr        string
	RunOnce         bool
	CleanupOnce     bool
	CycleInterval   time.Duration
	CleanupInterval time.Duration

	// ManualTriggerInterval is the minimum spacing between HTTP-triggered cycles.
	ManualTriggerInterval time.Duration
	// TriggerJWTSecret enables bearer auth on POST routes when set.
	TriggerJWTSecret string
}

// CacheConfig holds cache configuration
type CacheConfig struct {
	Backend   string // "memory" or "redis"
	TTL       time.Duration
	RedisAddr string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string
}

// SourcesConfig points at the source list and holds fetch settings.
type SourcesConfig struct {
	ConfigPath     string
	SearchAPIKey   string
	SearchAPIDelay time.Duration
	RateLimitDur   time.Duration
	FetchTimeout   time.Duration
	MaxItems       int
}

type EnrichmentConfig struct {
	Enabled   bool
	Provider  string // "gemini" or "openai"
	APIKey    string
	Model     string
	Endpoint  string
	BatchSize int
	Pacing    time.Duration
	Timeout   time.Duration
}

type TranslationConfig struct {
	DeepLKey   string
	Endpoint   string
	TargetLang string
	BatchSize  int
	Pause      time.Duration
}

// EventsConfig enables the Kafka publisher when Brokers is non-empty.
// Brokers is a comma separated host:port list.
type EventsConfig struct {
	Brokers string
	Topic   string
}

// Load parses flags and environment variables to build configuration
func Load() *Config {
	cfg := &Config{}

	// Define flags with defaults
	flag.StringVar(&cfg.Server.HTTPAddr, "http", ":8080", "HTTP server address")
	flag.BoolVar(&cfg.Server.RunOnce, "once", false, "Run a single ingestion cycle and exit")
	flag.BoolVar(&cfg.Server.CleanupOnce, "cleanup-once", false, "Delete expired articles and exit")
	flag.DurationVar(&cfg.Server.CycleInterval, "cycle-interval", 2*time.Minute, "Interval between scheduled cycles")
	flag.DurationVar(&cfg.Server.CleanupInterval, "cleanup-interval", 24*time.Hour, "Interval between expiry sweeps")
	flag.DurationVar(&cfg.Server.ManualTriggerInterval, "manual-trigger-interval", 30*time.Second, "Minimum delay between manually triggered cycles")
	flag.DurationVar(&cfg.Cache.TTL, "cache-ttl", 5*time.Minute, "Default cache TTL")
	flag.StringVar(&cfg.Cache.Backend, "cache-backend", "memory", "Cache backend: memory or redis")
	flag.StringVar(&cfg.Cache.RedisAddr, "redis-addr", "localhost:6379", "Redis server address")
	flag.DurationVar(&cfg.Sources.RateLimitDur, "rate-limit", time.Second, "Minimum delay between requests to same host")
	flag.StringVar(&cfg.Sources.ConfigPath, "sources", "", "Path to sources YAML/JSON file")
	flag.StringVar(&cfg.Logging.Level, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.Database.Host, "db-host", "localhost", "PostgreSQL host")
	flag.IntVar(&cfg.Database.Port, "db-port", 5432, "PostgreSQL port")
	flag.StringVar(&cfg.Database.User, "db-user", "postgres", "PostgreSQL user")
	flag.StringVar(&cfg.Database.Password, "db-password", "postgres", "PostgreSQL password")
	flag.StringVar(&cfg.Database.Database, "db-name", "nordicwire", "PostgreSQL database name")
	flag.StringVar(&cfg.Database.SSLMode, "db-sslmode", "disable", "PostgreSQL SSL mode")

	flag.Parse()

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	cfg.Sources.SearchAPIKey = os.Getenv("WORLD_NEWS_API_KEY")
	cfg.Sources.SearchAPIDelay = envDuration("SEARCH_API_DELAY", 100*time.Millisecond)
	cfg.Sources.FetchTimeout = envDuration("FETCH_TIMEOUT", 15*time.Second)
	cfg.Sources.MaxItems = envInt("FETCH_MAX_ITEMS", 10)

	cfg.Server.TriggerJWTSecret = os.Getenv("TRIGGER_JWT_SECRET")

	cfg.Enrichment = loadEnrichmentConfig()
	cfg.Translation = loadTranslationConfig()
	cfg.Events = loadEventsConfig()

	return cfg
}

func loadEnrichmentConfig() EnrichmentConfig {
	provider := strings.ToLower(getEnvOrDefault("ENRICHMENT_PROVIDER", "gemini"))

	apiKey := os.Getenv("GOOGLE_AI_STUDIO_KEY")
	if provider == "openai" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	enabled := apiKey != ""
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("ENRICHMENT_ENABLED"))); v == "false" || v == "0" {
		enabled = false
	}

	return EnrichmentConfig{
		Enabled:   enabled,
		Provider:  provider,
		APIKey:    apiKey,
		Model:     os.Getenv("ENRICHMENT_MODEL"),
		Endpoint:  os.Getenv("ENRICHMENT_ENDPOINT"),
		BatchSize: envInt("ENRICHMENT_BATCH_SIZE", 5),
		Pacing:    envDuration("ENRICHMENT_PACING", 3*time.Second),
		Timeout:   envDuration("ENRICHMENT_TIMEOUT", 30*time.Second),
	}
}

func loadTranslationConfig() TranslationConfig {
	return TranslationConfig{
		DeepLKey:   os.Getenv("DEEPL_API_KEY"),
		Endpoint:   os.Getenv("DEEPL_ENDPOINT"),
		TargetLang: getEnvOrDefault("TRANSLATION_TARGET_LANG", "EN"),
		BatchSize:  envInt("TRANSLATION_BATCH_SIZE", 5),
		Pause:      envDuration("TRANSLATION_PAUSE", time.Second),
	}
}

func loadEventsConfig() EventsConfig {
	return EventsConfig{
		Brokers: strings.TrimSpace(os.Getenv("KAFKA_BROKERS")),
		Topic:   getEnvOrDefault("KAFKA_TOPIC", "articles.upserted"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func envDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			return d
		}
	}
	return defaultValue
}

func envInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func envTrue(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "true" || v == "1"
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.Server.HTTPAddr = v
	}
	if envTrue("RUN_ONCE") {
		cfg.Server.RunOnce = true
	}
	if envTrue("CLEANUP_ONCE") {
		cfg.Server.CleanupOnce = true
	}
	cfg.Server.CycleInterval = envDuration("CYCLE_INTERVAL", cfg.Server.CycleInterval)
	cfg.Server.CleanupInterval = envDuration("CLEANUP_INTERVAL", cfg.Server.CleanupInterval)
	cfg.Server.ManualTriggerInterval = envDuration("MANUAL_TRIGGER_INTERVAL", cfg.Server.ManualTriggerInterval)
	cfg.Cache.TTL = envDuration("CACHE_TTL", cfg.Cache.TTL)
	if v := os.Getenv("CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	cfg.Sources.RateLimitDur = envDuration("RATE_LIMIT", cfg.Sources.RateLimitDur)
	if v := os.Getenv("SOURCES_CONFIG_PATH"); v != "" {
		cfg.Sources.ConfigPath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = p
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Database.Database = v
	}
	if v := os.Getenv("DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
}
