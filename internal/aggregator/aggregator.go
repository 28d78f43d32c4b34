package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/johnrirwin/nordicwire/internal/cache"
	"github.com/johnrirwin/nordicwire/internal/events"
	"github.com/johnrirwin/nordicwire/internal/logging"
	"github.com/johnrirwin/nordicwire/internal/metrics"
	"github.com/johnrirwin/nordicwire/internal/models"
	"github.com/johnrirwin/nordicwire/internal/normalize"
	"github.com/johnrirwin/nordicwire/internal/sources"
)

const (
	lastReportCacheKey = "last_cycle_report"
	lastReportCacheTTL = 7 * 24 * time.Hour
)

var (
	// ErrPersistenceFailure wraps a store error that aborted the cycle.
	ErrPersistenceFailure = errors.New("persistence failure")
	// ErrCycleInProgress is returned when a trigger arrives during a running cycle.
	ErrCycleInProgress = errors.New("cycle already in progress")
)

// Store is the slice of the article store a cycle writes to.
type Store interface {
	UpsertArticles(ctx context.Context, drafts []models.ArticleDraft) (int, error)
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

type Translator interface {
	TranslateBatch(ctx context.Context, drafts []models.ArticleDraft) ([]models.ArticleDraft, int)
}

// EnrichmentQueue accepts fire-and-forget enrichment requests.
type EnrichmentQueue interface {
	Submit() bool
}

type Option func(*Aggregator)

func WithTranslator(t Translator) Option {
	return func(a *Aggregator) { a.translator = t }
}

func WithPublisher(p events.Publisher) Option {
	return func(a *Aggregator) { a.publisher = p }
}

func WithEnrichment(q EnrichmentQueue) Option {
	return func(a *Aggregator) { a.enrichment = q }
}

// WithFetchConcurrency caps parallel source fetches; zero means no cap.
func WithFetchConcurrency(n int) Option {
	return func(a *Aggregator) { a.fetchConcurrency = n }
}

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

type Aggregator struct {
	fetchers         []sources.Fetcher
	store            Store
	cache            cache.Cache
	translator       Translator
	publisher        events.Publisher
	enrichment       EnrichmentQueue
	logger           *logging.Logger
	fetchConcurrency int
	now              func() time.Time

	running sync.Mutex

	mu         sync.RWMutex
	lastReport *models.CycleReport
}

func New(fetchers []sources.Fetcher, store Store, c cache.Cache, logger *logging.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		fetchers:  fetchers,
		store:     store,
		cache:     c,
		publisher: events.NoopPublisher{},
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RunCycle fetches every source, normalizes, dedupes, optionally translates
// and persists the batch. Source failures are reported, not returned; only a
// store failure fails the cycle.
func (a *Aggregator) RunCycle(ctx context.Context) (models.CycleReport, error) {
	if !a.running.TryLock() {
		return models.CycleReport{}, ErrCycleInProgress
	}
	defer a.running.Unlock()

	report := models.CycleReport{
		StartedAt: a.now().UTC(),
		Errors:    []models.SourceFailure{},
	}

	drafts := a.fetchAll(ctx, &report)
	report.Fetched = len(drafts)

	normalized, dropped := normalize.Batch(drafts, report.StartedAt)
	report.Dropped = dropped

	unique := Deduplicate(normalized)

	if a.translator != nil && len(unique) > 0 {
		translated, n := a.translator.TranslateBatch(ctx, unique)
		report.Translated = n
		// Translated text goes through the normalizer again so caps still hold.
		renormalized, droppedAfter := normalize.Batch(translated, report.StartedAt)
		unique = Deduplicate(renormalized)
		report.Dropped += droppedAfter
	}
	report.Deduped = len(unique)

	written, err := a.store.UpsertArticles(ctx, unique)
	if err != nil {
		report.FinishedAt = a.now().UTC()
		a.finish(report, "persistence_failure")
		a.logger.Error("Failed to persist articles", logging.WithFields(map[string]interface{}{
			"count": len(unique),
			"error": err.Error(),
		}))
		return report, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	report.Written = written

	if err := a.publisher.PublishUpserted(ctx, unique); err != nil {
		a.logger.Warn("Failed to publish article events", logging.WithField("error", err.Error()))
	}

	if a.enrichment != nil && written > 0 {
		report.EnrichmentQueued = a.enrichment.Submit()
	}

	report.FinishedAt = a.now().UTC()
	a.finish(report, "ok")

	a.logger.Info("Cycle complete", logging.WithFields(map[string]interface{}{
		"fetched":         report.Fetched,
		"dropped":         report.Dropped,
		"unique":          report.Deduped,
		"translated":      report.Translated,
		"written":         report.Written,
		"failed_sources":  len(report.Errors),
		"enrichment":      report.EnrichmentQueued,
		"duration_millis": report.Duration().Milliseconds(),
	}))

	return report, nil
}

// fetchAll fans out to every fetcher and returns drafts in configured
// source order. Partial results from a failing source are kept.
func (a *Aggregator) fetchAll(ctx context.Context, report *models.CycleReport) []models.ArticleDraft {
	results := make([]sources.FetchResult, len(a.fetchers))

	var g errgroup.Group
	if a.fetchConcurrency > 0 {
		g.SetLimit(a.fetchConcurrency)
	}
	for i, f := range a.fetchers {
		i, f := i, f
		g.Go(func() error {
			drafts, err := f.Fetch(ctx)
			results[i] = sources.FetchResult{Drafts: drafts, Source: f.SourceInfo(), Error: err}
			return nil
		})
	}
	_ = g.Wait()

	var all []models.ArticleDraft
	for _, result := range results {
		metrics.RecordSourceFetch(result.Source.Name, result.Error)

		if result.Error != nil {
			a.logger.Warn("Failed to fetch from source", logging.WithFields(map[string]interface{}{
				"source": result.Source.Name,
				"error":  result.Error.Error(),
			}))
			report.Errors = append(report.Errors, models.SourceFailure{
				Source:  result.Source.Name,
				Message: result.Error.Error(),
			})
		} else {
			a.logger.Debug("Fetched drafts from source", logging.WithFields(map[string]interface{}{
				"source": result.Source.Name,
				"count":  len(result.Drafts),
			}))
		}

		all = append(all, result.Drafts...)
	}
	return all
}

func (a *Aggregator) finish(report models.CycleReport, status string) {
	metrics.RecordCycle(status, report.Duration().Seconds(), report.Fetched, report.Dropped, report.Deduped, report.Written)

	a.mu.Lock()
	a.lastReport = &report
	a.mu.Unlock()

	if a.cache != nil {
		a.cache.SetWithTTL(lastReportCacheKey, report, lastReportCacheTTL)
	}
}

// Cleanup deletes every article whose expiry is at or before now.
func (a *Aggregator) Cleanup(ctx context.Context, now time.Time) (models.CleanupReport, error) {
	cutoff := now.UTC()
	report := models.CleanupReport{Cutoff: cutoff}

	deleted, err := a.store.DeleteExpired(ctx, cutoff)
	if err != nil {
		a.logger.Error("Failed to delete expired articles", logging.WithField("error", err.Error()))
		return report, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
	report.Deleted = deleted
	metrics.ExpiredDeletedTotal.Add(float64(deleted))

	a.logger.Info("Expired articles removed", logging.WithFields(map[string]interface{}{
		"deleted": deleted,
		"cutoff":  cutoff.Format(time.RFC3339),
	}))
	return report, nil
}

// LastReport returns the most recent cycle report, falling back to the
// shared cache when this process has not run a cycle yet.
func (a *Aggregator) LastReport() (models.CycleReport, bool) {
	a.mu.RLock()
	last := a.lastReport
	a.mu.RUnlock()

	if last != nil {
		return *last, true
	}

	var cached models.CycleReport
	if cache.GetInto(a.cache, lastReportCacheKey, &cached) {
		return cached, true
	}
	return models.CycleReport{}, false
}

func (a *Aggregator) Sources() []models.SourceInfo {
	infos := make([]models.SourceInfo, 0, len(a.fetchers))
	for _, f := range a.fetchers {
		infos = append(infos, f.SourceInfo())
	}
	return infos
}
