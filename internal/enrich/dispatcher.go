package enrich

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/johnrirwin/nordicwire/internal/logging"
	"github.com/johnrirwin/nordicwire/internal/metrics"
)

const (
	DefaultBatchSize = 5
	DefaultPacing    = 3 * time.Second
)

type DispatcherConfig struct {
	BatchSize int
	Pacing    time.Duration
}

// Status is a snapshot of the background enrichment worker.
type Status struct {
	Running     bool      `json:"running"`
	Pending     bool      `json:"pending"`
	LastStarted time.Time `json:"lastStarted,omitempty"`
	LastDone    time.Time `json:"lastDone,omitempty"`
	Batches     int       `json:"batches"`
	Succeeded   int       `json:"succeeded"`
	Skipped     int       `json:"skipped"`
	Degraded    int       `json:"degraded"`
	Failed      int       `json:"failed"`
	RateLimited int       `json:"rateLimited"`
	LastError   string    `json:"lastError,omitempty"`
}

// Dispatcher runs enrichment batches off the cycle's path. Submissions made
// while a batch is pending collapse into that batch.
type Dispatcher struct {
	enricher *Enricher
	store    Store
	cfg      DispatcherConfig
	logger   *logging.Logger

	jobs   chan struct{}
	pacer  *rate.Limiter
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	status Status
	closed bool
}

func NewDispatcher(enricher *Enricher, store Store, cfg DispatcherConfig, logger *logging.Logger) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Pacing < 0 {
		cfg.Pacing = 0
	}
	limit := rate.Inf
	if cfg.Pacing > 0 {
		limit = rate.Every(cfg.Pacing)
	}
	return &Dispatcher{
		enricher: enricher,
		store:    store,
		cfg:      cfg,
		logger:   logger,
		jobs:     make(chan struct{}, 1),
		pacer:    rate.NewLimiter(limit, 1),
	}
}

// Start launches the worker. It exits when ctx is done or Stop is called.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-d.jobs:
				d.setPending(false)
				d.RunBatch(ctx)
			}
		}
	}()
}

// Stop cancels the in-flight batch and waits for the worker to exit.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
}

// Submit schedules a batch without blocking. It returns false once the
// dispatcher has been stopped.
func (d *Dispatcher) Submit() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}
	select {
	case d.jobs <- struct{}{}:
		d.status.Pending = true
	default:
	}
	return true
}

// RunBatch enriches up to BatchSize unenriched articles one at a time.
// A quota or auth error ends the batch early.
func (d *Dispatcher) RunBatch(ctx context.Context) {
	d.mu.Lock()
	d.status.Running = true
	d.status.LastStarted = time.Now().UTC()
	d.status.Batches++
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.status.Running = false
		d.status.LastDone = time.Now().UTC()
		d.mu.Unlock()
	}()

	ids, err := d.store.ListUnenriched(ctx, d.cfg.BatchSize)
	if err != nil {
		d.logger.Error("Failed to list unenriched articles", logging.WithField("error", err.Error()))
		d.recordError(err)
		return
	}
	if len(ids) == 0 {
		d.logger.Debug("No articles to enrich")
		return
	}

	d.logger.Info("Starting enrichment batch", logging.WithField("count", len(ids)))

	for _, id := range ids {
		if err := d.pacer.Wait(ctx); err != nil {
			return
		}

		result, err := d.enricher.Enrich(ctx, id)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			d.recordFailure(id, err)
			if IsQuotaError(err) {
				d.logger.Warn("Generator quota or credentials problem, ending batch", logging.WithField("error", err.Error()))
				return
			}
			continue
		}
		d.recordResult(result)
	}

	d.logger.Info("Enrichment batch complete", logging.WithField("count", len(ids)))
}

func (d *Dispatcher) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

func (d *Dispatcher) setPending(p bool) {
	d.mu.Lock()
	d.status.Pending = p
	d.mu.Unlock()
}

func (d *Dispatcher) recordResult(r Result) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case r.Skipped:
		d.status.Skipped++
		metrics.RecordEnrichment("skipped")
	case r.Degraded:
		d.status.Degraded++
		metrics.RecordEnrichment("degraded")
		d.logger.Warn("Stored degraded enrichment", logging.WithField("article_id", r.ArticleID))
	default:
		d.status.Succeeded++
		metrics.RecordEnrichment("succeeded")
		d.logger.Debug("Enriched article", logging.WithField("article_id", r.ArticleID))
	}
}

func (d *Dispatcher) recordFailure(id string, err error) {
	d.logger.Error("Failed to enrich article", logging.WithFields(map[string]interface{}{
		"article_id": id,
		"error":      err.Error(),
	}))

	d.mu.Lock()
	defer d.mu.Unlock()

	d.status.LastError = err.Error()
	if errors.Is(err, ErrRateLimited) {
		d.status.RateLimited++
		metrics.RecordEnrichment("rate_limited")
		return
	}
	d.status.Failed++
	metrics.RecordEnrichment("failed")
}

func (d *Dispatcher) recordError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status.LastError = err.Error()
}
