package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/johnrirwin/nordicwire/internal/aggregator"
	"github.com/johnrirwin/nordicwire/internal/auth"
	"github.com/johnrirwin/nordicwire/internal/cache"
	"github.com/johnrirwin/nordicwire/internal/config"
	"github.com/johnrirwin/nordicwire/internal/database"
	"github.com/johnrirwin/nordicwire/internal/enrich"
	"github.com/johnrirwin/nordicwire/internal/events"
	"github.com/johnrirwin/nordicwire/internal/httpapi"
	"github.com/johnrirwin/nordicwire/internal/logging"
	"github.com/johnrirwin/nordicwire/internal/ratelimit"
	"github.com/johnrirwin/nordicwire/internal/scheduler"
	"github.com/johnrirwin/nordicwire/internal/sources"
	"github.com/johnrirwin/nordicwire/internal/translate"
)

// App holds all application dependencies
type App struct {
	Config     *config.Config
	Logger     *logging.Logger
	Cache      cache.Cache
	Store      database.ArticleStore
	Aggregator *aggregator.Aggregator
	Dispatcher *enrich.Dispatcher
	Scheduler  *scheduler.Scheduler
	HTTPServer *httpapi.Server

	db             *database.DB
	publisher      events.Publisher
	triggerLimiter ratelimit.RateLimiter
}

// New creates and initializes a new App instance
func New(cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}

	// Initialize logger
	app.Logger = logging.New(logging.ParseLevel(cfg.Logging.Level))

	// Initialize cache and the manual trigger limiter
	app.Cache = app.initCache()

	// Initialize persistence
	app.Store = app.initStore()

	// Initialize feed fetchers
	limiter := ratelimit.New(cfg.Sources.RateLimitDur)
	fetchers, err := app.initFetchers(limiter)
	if err != nil {
		return nil, err
	}

	opts := []aggregator.Option{}

	if t := app.initTranslator(); t != nil {
		opts = append(opts, aggregator.WithTranslator(t))
	}

	app.publisher = app.initPublisher()
	opts = append(opts, aggregator.WithPublisher(app.publisher))

	app.Dispatcher = app.initEnrichment()
	if app.Dispatcher != nil {
		opts = append(opts, aggregator.WithEnrichment(app.Dispatcher))
	}

	// Initialize aggregator
	app.Aggregator = aggregator.New(fetchers, app.Store, app.Cache, app.Logger, opts...)

	app.Scheduler = scheduler.New(app.Aggregator, scheduler.Config{
		CycleInterval:   cfg.Server.CycleInterval,
		CleanupInterval: cfg.Server.CleanupInterval,
	}, app.Logger)

	// Initialize servers
	app.initServers()

	return app, nil
}

// Run starts the application in the mode selected by configuration.
func (a *App) Run(ctx context.Context) error {
	switch {
	case a.Config.Server.CleanupOnce:
		return a.runCleanupOnce(ctx)
	case a.Config.Server.RunOnce:
		return a.runOnce(ctx)
	default:
		return a.runHTTPMode(ctx)
	}
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown(ctx context.Context) error {
	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error("HTTP server shutdown error", logging.WithField("error", err.Error()))
		}
	}

	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}

	if a.Dispatcher != nil {
		a.Dispatcher.Stop()
	}

	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.Logger.Error("Event publisher close error", logging.WithField("error", err.Error()))
		}
	}

	switch c := a.Cache.(type) {
	case *cache.MemoryCache:
		c.Stop()
	case *cache.RedisCache:
		if err := c.Close(); err != nil {
			a.Logger.Error("Redis cache close error", logging.WithField("error", err.Error()))
		}
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.Logger.Error("Database close error", logging.WithField("error", err.Error()))
		}
	}

	return nil
}

func (a *App) initCache() cache.Cache {
	interval := a.Config.Server.ManualTriggerInterval

	switch a.Config.Cache.Backend {
	case "redis":
		a.Logger.Info("Using Redis cache backend", logging.WithField("addr", a.Config.Cache.RedisAddr))
		redisCache, err := cache.NewRedis(cache.RedisConfig{
			Addr:   a.Config.Cache.RedisAddr,
			Prefix: "nordicwire:",
		}, a.Config.Cache.TTL)
		if err != nil {
			a.Logger.Error("Failed to connect to Redis, falling back to memory cache", logging.WithField("error", err.Error()))
			a.triggerLimiter = ratelimit.New(interval)
			return cache.NewMemory(a.Config.Cache.TTL)
		}
		// Use Redis for distributed rate limiting when available
		a.triggerLimiter = ratelimit.NewRedis(redisCache.Client(), "nordicwire:ratelimit:trigger:", interval)
		a.Logger.Info("Using Redis for distributed rate limiting")
		return redisCache
	default:
		a.Logger.Info("Using in-memory cache backend")
		a.triggerLimiter = ratelimit.New(interval)
		return cache.NewMemory(a.Config.Cache.TTL)
	}
}

func (a *App) initStore() database.ArticleStore {
	dbConfig := database.DefaultConfig()
	dbConfig.Host = a.Config.Database.Host
	dbConfig.Port = a.Config.Database.Port
	dbConfig.User = a.Config.Database.User
	dbConfig.Password = a.Config.Database.Password
	dbConfig.Database = a.Config.Database.Database
	dbConfig.SSLMode = a.Config.Database.SSLMode

	db, err := database.New(dbConfig)
	if err != nil {
		a.Logger.Warn("Failed to connect to PostgreSQL, using in-memory article store", logging.WithField("error", err.Error()))
		return database.NewMemoryArticleStore()
	}

	a.Logger.Info("Connected to PostgreSQL")
	if err := db.Migrate(context.Background()); err != nil {
		a.Logger.Warn("Failed to run migrations, using in-memory article store", logging.WithField("error", err.Error()))
		db.Close()
		return database.NewMemoryArticleStore()
	}

	a.db = db
	return database.NewArticleStore(db)
}

func (a *App) initFetchers(limiter *ratelimit.Limiter) ([]sources.Fetcher, error) {
	fetcherConfig := sources.DefaultConfig()
	fetcherConfig.Timeout = a.Config.Sources.FetchTimeout
	fetcherConfig.MaxItems = a.Config.Sources.MaxItems
	fetcherConfig.SearchDelay = a.Config.Sources.SearchAPIDelay

	sourcesConfig := sources.DefaultSourcesConfig()

	// An explicit path must load; a discovered file falls back to defaults.
	configPath := a.Config.Sources.ConfigPath
	explicit := configPath != ""
	if !explicit {
		configPath = sources.FindSourcesConfig()
	}

	if configPath != "" {
		loaded, err := sources.LoadSourcesConfig(configPath)
		switch {
		case err != nil && explicit:
			return nil, fmt.Errorf("load sources config %s: %w", configPath, err)
		case err != nil:
			a.Logger.Warn("Failed to load sources config, using defaults", logging.WithFields(map[string]interface{}{
				"path":  configPath,
				"error": err.Error(),
			}))
		default:
			a.Logger.Info("Loaded sources configuration", logging.WithFields(map[string]interface{}{
				"path":    configPath,
				"sources": len(loaded.Sources),
			}))
			sourcesConfig = loaded
		}
	} else {
		a.Logger.Info("No sources config found, using default sources")
	}

	fetchers := sources.CreateFetchersFromConfig(sourcesConfig, limiter, fetcherConfig, a.Config.Sources.SearchAPIKey, a.Logger)
	a.Logger.Info("Registered source adapters", logging.WithField("count", len(fetchers)))
	return fetchers, nil
}

func (a *App) initTranslator() *translate.BatchTranslator {
	tc := a.Config.Translation
	if tc.DeepLKey == "" {
		a.Logger.Info("Translation disabled, DEEPL_API_KEY not set")
		return nil
	}

	deepl := translate.NewDeepL(translate.DeepLConfig{
		Endpoint:   tc.Endpoint,
		APIKey:     tc.DeepLKey,
		TargetLang: tc.TargetLang,
	}, a.Logger)

	a.Logger.Info("Translation enabled", logging.WithField("target", tc.TargetLang))
	return translate.NewBatchTranslator(deepl, tc.BatchSize, tc.Pause)
}

func (a *App) initPublisher() events.Publisher {
	brokers := events.ParseBrokers(a.Config.Events.Brokers)
	if len(brokers) == 0 {
		return events.NoopPublisher{}
	}

	a.Logger.Info("Publishing article events to Kafka", logging.WithFields(map[string]interface{}{
		"brokers": strings.Join(brokers, ","),
		"topic":   a.Config.Events.Topic,
	}))
	return events.NewKafkaPublisher(events.KafkaConfig{
		Brokers: brokers,
		Topic:   a.Config.Events.Topic,
	})
}

func (a *App) initEnrichment() *enrich.Dispatcher {
	ec := a.Config.Enrichment
	if !ec.Enabled {
		a.Logger.Info("Enrichment disabled")
		return nil
	}

	var gen enrich.Generator
	switch ec.Provider {
	case "openai":
		gen = enrich.NewChatClient(enrich.ChatConfig{Endpoint: ec.Endpoint, Model: ec.Model, APIKey: ec.APIKey})
	case "gemini", "":
		gen = enrich.NewGeminiClient(enrich.GeminiConfig{Endpoint: ec.Endpoint, Model: ec.Model, APIKey: ec.APIKey})
	default:
		a.Logger.Warn("Unknown enrichment provider, enrichment disabled", logging.WithField("provider", ec.Provider))
		return nil
	}

	enricher := enrich.NewEnricher(a.Store, gen, ec.Timeout, a.Logger)
	a.Logger.Info("Enrichment enabled", logging.WithFields(map[string]interface{}{
		"provider":   ec.Provider,
		"batch_size": ec.BatchSize,
		"pacing":     ec.Pacing.String(),
	}))
	return enrich.NewDispatcher(enricher, a.Store, enrich.DispatcherConfig{
		BatchSize: ec.BatchSize,
		Pacing:    ec.Pacing,
	}, a.Logger)
}

func (a *App) initServers() {
	verifier := auth.NewVerifier(a.Config.Server.TriggerJWTSecret, auth.DefaultIssuer)
	if !verifier.Enabled() {
		a.Logger.Warn("TRIGGER_JWT_SECRET not set, trigger routes are unauthenticated")
	}

	// A nil *Dispatcher must not become a non-nil interface.
	var status httpapi.EnrichmentStatus
	if a.Dispatcher != nil {
		status = a.Dispatcher
	}

	a.HTTPServer = httpapi.New(a.Aggregator, status, a.triggerLimiter, auth.NewMiddleware(verifier), a.Logger)
}

func (a *App) startWorkers(ctx context.Context) {
	if a.Dispatcher != nil {
		a.Dispatcher.Start(ctx)
	}
}

func (a *App) runOnce(ctx context.Context) error {
	report, err := a.Aggregator.RunCycle(ctx)
	if err != nil {
		return fmt.Errorf("cycle failed: %w", err)
	}
	a.Logger.Info("Single cycle complete", logging.WithField("summary", report.Summary()))

	// No worker runs in this mode; drain the queued batch inline.
	if a.Dispatcher != nil && report.EnrichmentQueued {
		a.Dispatcher.RunBatch(ctx)
	}
	return nil
}

func (a *App) runCleanupOnce(ctx context.Context) error {
	report, err := a.Aggregator.Cleanup(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	a.Logger.Info("Cleanup complete", logging.WithField("deleted", report.Deleted))
	return nil
}

func (a *App) runHTTPMode(ctx context.Context) error {
	a.Logger.Info("Starting HTTP server", logging.WithField("addr", a.Config.Server.HTTPAddr))

	a.startWorkers(ctx)
	a.Scheduler.Start(ctx)

	return a.HTTPServer.Start(a.Config.Server.HTTPAddr)
}
