package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/johnrirwin/nordicwire/internal/logging"
	"github.com/johnrirwin/nordicwire/internal/models"
)

// degradedSummaryLen caps the raw generator text kept when parsing fails.
const degradedSummaryLen = 500

const systemPrompt = `You are a professional news analyst. Given a news article, provide:
1. A unique summary in your own words (2-3 sentences)
2. Context explaining background and significance (2-3 sentences)
3. Timeline of key events (bullet points)
4. Analysis of implications and impact (2-3 sentences)
5. "What We Know Now" - key facts distilled (bullet points)

Format your response as JSON with keys: summary, context, timeline, analysis, whatWeKnow`

// Store is the part of the article store the enricher needs.
type Store interface {
	GetArticle(ctx context.Context, id string) (*models.Article, error)
	SaveEnrichment(ctx context.Context, id string, e models.Enrichment) (bool, error)
	ListUnenriched(ctx context.Context, limit int) ([]string, error)
}

// Result describes one Enrich call. Skipped is set when the article already
// had an enrichment and the generator was not called.
type Result struct {
	ArticleID  string            `json:"articleId"`
	Enrichment models.Enrichment `json:"enrichment"`
	Skipped    bool              `json:"skipped"`
	Degraded   bool              `json:"degraded"`
}

// Err reports ErrParseDegraded for results built from unparseable output.
func (r Result) Err() error {
	if r.Degraded {
		return fmt.Errorf("article %s: %w", r.ArticleID, ErrParseDegraded)
	}
	return nil
}

type Enricher struct {
	store       Store
	generator   Generator
	logger      *logging.Logger
	callTimeout time.Duration
	now         func() time.Time
}

func NewEnricher(store Store, generator Generator, callTimeout time.Duration, logger *logging.Logger) *Enricher {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &Enricher{
		store:       store,
		generator:   generator,
		logger:      logger,
		callTimeout: callTimeout,
		now:         time.Now,
	}
}

// Enrich generates and stores commentary for one article. An article that
// is already enriched is returned unchanged.
func (e *Enricher) Enrich(ctx context.Context, articleID string) (Result, error) {
	result := Result{ArticleID: articleID}

	article, err := e.store.GetArticle(ctx, articleID)
	if err != nil {
		return result, fmt.Errorf("load article %s: %w", articleID, err)
	}
	if article.IsEnriched() {
		result.Enrichment = article.Enrichment
		result.Skipped = true
		return result, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	text, err := e.generator.Generate(callCtx, BuildPrompt(article))
	cancel()
	if err != nil {
		return result, fmt.Errorf("generate enrichment for %s: %w", articleID, err)
	}

	enrichment, parseErr := ParseEnrichment(text)
	if parseErr != nil {
		e.logger.Warn("Enrichment response not parseable, storing raw text", logging.WithFields(map[string]interface{}{
			"article_id": articleID,
			"error":      parseErr.Error(),
		}))
		enrichment = degradedEnrichment(text)
		result.Degraded = true
	}

	now := e.now().UTC()
	enrichment.EnrichedAt = &now

	saved, err := e.store.SaveEnrichment(ctx, articleID, enrichment)
	if err != nil {
		return result, fmt.Errorf("save enrichment for %s: %w", articleID, err)
	}
	if !saved {
		// Another writer got there first; theirs stands.
		current, err := e.store.GetArticle(ctx, articleID)
		if err != nil {
			return result, fmt.Errorf("reload article %s: %w", articleID, err)
		}
		return Result{ArticleID: articleID, Enrichment: current.Enrichment, Skipped: true}, nil
	}

	result.Enrichment = enrichment
	return result, nil
}

// BuildPrompt renders the analyst prompt for an article.
func BuildPrompt(a *models.Article) string {
	category := a.Category
	if category == "" {
		category = models.DefaultCategory
	}

	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\nArticle Title: ")
	b.WriteString(a.Title)
	b.WriteString("\n\nSource: ")
	b.WriteString(a.SourceName)
	b.WriteString("\nPublished: ")
	b.WriteString(a.PublishedAt.UTC().Format(time.RFC3339))
	b.WriteString("\nCategory: ")
	b.WriteString(category)
	b.WriteString("\n\n")
	if a.Summary != "" {
		b.WriteString("Summary: ")
		b.WriteString(a.Summary)
		b.WriteString("\n")
	}
	if a.Content != "" {
		b.WriteString("Content: ")
		b.WriteString(a.Content)
		b.WriteString("\n")
	}
	b.WriteString("\nProvide unique analysis and insights for this article.")
	return b.String()
}

var (
	fencedJSON = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
	fencedAny  = regexp.MustCompile("(?s)```\\s*(.*?)\\s*```")
)

type enrichmentPayload struct {
	Summary    json.RawMessage `json:"summary"`
	Context    json.RawMessage `json:"context"`
	Timeline   json.RawMessage `json:"timeline"`
	Analysis   json.RawMessage `json:"analysis"`
	WhatWeKnow json.RawMessage `json:"whatWeKnow"`
}

// ParseEnrichment reads the generator's JSON object, optionally wrapped in a
// markdown code fence. List-valued sections are joined with newlines.
func ParseEnrichment(text string) (models.Enrichment, error) {
	candidate := strings.TrimSpace(text)
	if m := fencedJSON.FindStringSubmatch(candidate); m != nil {
		candidate = m[1]
	} else if m := fencedAny.FindStringSubmatch(candidate); m != nil {
		candidate = m[1]
	}

	var p enrichmentPayload
	if err := json.Unmarshal([]byte(candidate), &p); err != nil {
		return models.Enrichment{}, err
	}

	return models.Enrichment{
		Summary:    flatten(p.Summary),
		Context:    flatten(p.Context),
		Timeline:   flatten(p.Timeline),
		Analysis:   flatten(p.Analysis),
		WhatWeKnow: flatten(p.WhatWeKnow),
	}, nil
}

func flatten(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var list []interface{}
	if err := json.Unmarshal(raw, &list); err == nil {
		lines := make([]string, 0, len(list))
		for _, item := range list {
			switch v := item.(type) {
			case string:
				lines = append(lines, strings.TrimSpace(v))
			default:
				b, _ := json.Marshal(v)
				lines = append(lines, string(b))
			}
		}
		return strings.Join(lines, "\n")
	}

	return strings.TrimSpace(string(raw))
}

func degradedEnrichment(text string) models.Enrichment {
	runes := []rune(text)
	if len(runes) > degradedSummaryLen {
		runes = runes[:degradedSummaryLen]
	}
	return models.Enrichment{Summary: string(runes)}
}

// IsQuotaError reports errors that should pause further generator calls.
func IsQuotaError(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrAuthInvalid)
}
