// Package translate renders fetched drafts into English before they are stored.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/johnrirwin/nordicwire/internal/logging"
	"github.com/johnrirwin/nordicwire/internal/metrics"
	"github.com/johnrirwin/nordicwire/internal/models"
)

const (
	DefaultEndpoint   = "https://api-free.deepl.com/v2/translate"
	DefaultTarget     = "EN"
	DefaultBatchSize  = 5
	DefaultBatchPause = time.Second
)

// Translator rewrites a single text. Implementations return the input
// unchanged when translation fails.
type Translator interface {
	Translate(ctx context.Context, text string) string
}

type DeepLConfig struct {
	Endpoint   string
	APIKey     string
	TargetLang string
	Timeout    time.Duration
}

type DeepL struct {
	cfg        DeepLConfig
	httpClient *http.Client
	logger     *logging.Logger
}

func NewDeepL(cfg DeepLConfig, logger *logging.Logger) *DeepL {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.TargetLang == "" {
		cfg.TargetLang = DefaultTarget
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &DeepL{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

type deeplResponse struct {
	Translations []struct {
		Text string `json:"text"`
	} `json:"translations"`
}

// Translate returns the English rendering of text, or text itself on any error.
func (d *DeepL) Translate(ctx context.Context, text string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}

	out, err := d.translate(ctx, text)
	if err != nil {
		metrics.TranslationsTotal.WithLabelValues("error").Inc()
		d.logger.Warn("Translation failed, keeping original text", logging.WithField("error", err.Error()))
		return text
	}
	metrics.TranslationsTotal.WithLabelValues("ok").Inc()
	return out
}

func (d *DeepL) translate(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"text":        []string{text},
		"target_lang": d.cfg.TargetLang,
	})
	if err != nil {
		return "", fmt.Errorf("marshal deepl request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "DeepL-Auth-Key "+d.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("deepl request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("deepl status %d", resp.StatusCode)
	}

	var out deeplResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode deepl response: %w", err)
	}
	if len(out.Translations) == 0 {
		return "", fmt.Errorf("deepl returned no translations")
	}
	translated := strings.TrimSpace(out.Translations[0].Text)
	if translated == "" {
		return "", fmt.Errorf("deepl returned empty text")
	}
	return translated, nil
}

var _ Translator = (*DeepL)(nil)

// BatchTranslator translates drafts in fixed-size batches with a pause
// between batches. Drafts inside a batch run concurrently.
type BatchTranslator struct {
	translator Translator
	batchSize  int
	pacer      *rate.Limiter
}

func NewBatchTranslator(t Translator, batchSize int, pause time.Duration) *BatchTranslator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	limit := rate.Inf
	if pause > 0 {
		limit = rate.Every(pause)
	}
	return &BatchTranslator{translator: t, batchSize: batchSize, pacer: rate.NewLimiter(limit, 1)}
}

// TranslateBatch returns translated copies of drafts in the same order and
// the number of drafts whose text actually changed. Drafts left on their
// original text by a failed call are not counted. It stops early only when
// ctx is done.
func (b *BatchTranslator) TranslateBatch(ctx context.Context, drafts []models.ArticleDraft) ([]models.ArticleDraft, int) {
	out := make([]models.ArticleDraft, len(drafts))
	copy(out, drafts)

	translated := 0
	for start := 0; start < len(out); start += b.batchSize {
		if err := b.pacer.Wait(ctx); err != nil {
			return out, translated
		}

		end := min(start+b.batchSize, len(out))
		var g errgroup.Group
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				out[i] = b.translateDraft(ctx, out[i])
				return nil
			})
		}
		_ = g.Wait()

		for i := start; i < end; i++ {
			if out[i] != drafts[i] {
				translated++
			}
		}
	}
	return out, translated
}

func (b *BatchTranslator) translateDraft(ctx context.Context, d models.ArticleDraft) models.ArticleDraft {
	var g errgroup.Group
	g.Go(func() error { d.Title = b.translator.Translate(ctx, d.Title); return nil })
	g.Go(func() error { d.Summary = b.translator.Translate(ctx, d.Summary); return nil })
	g.Go(func() error { d.Content = b.translator.Translate(ctx, d.Content); return nil })
	_ = g.Wait()
	return d
}
