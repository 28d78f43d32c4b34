package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/johnrirwin/nordicwire/internal/logging"
	"github.com/johnrirwin/nordicwire/internal/models"
	"github.com/johnrirwin/nordicwire/internal/normalize"
	"github.com/johnrirwin/nordicwire/internal/ratelimit"
)

const defaultQueryNumber = 10

// SearchFetcher queries a World News API style search endpoint once per
// configured query. Requests to the API host are spaced by the limiter.
type SearchFetcher struct {
	source  models.SourceConfig
	apiKey  string
	client  *http.Client
	limiter *ratelimit.Limiter
	config  FetcherConfig
	logger  *logging.Logger
	now     func() time.Time
}

func NewSearchFetcher(source models.SourceConfig, apiKey string, limiter *ratelimit.Limiter, config FetcherConfig, logger *logging.Logger) *SearchFetcher {
	return &SearchFetcher{
		source:  source,
		apiKey:  apiKey,
		client:  &http.Client{},
		limiter: limiter,
		config:  config,
		logger:  logger,
		now:     time.Now,
	}
}

func (f *SearchFetcher) Name() string {
	return f.source.Name
}

func (f *SearchFetcher) SourceInfo() models.SourceInfo {
	return models.SourceInfo{
		ID:          sourceID(f.source.Name),
		Name:        f.source.Name,
		URL:         f.source.Endpoint,
		Category:    f.source.Category,
		Description: fmt.Sprintf("Search API with %d queries", len(f.source.Queries)),
		FeedType:    models.SourceKindSearch,
		Enabled:     true,
	}
}

// Fetch runs every query in order. Drafts from successful queries are
// returned alongside a *SourceError naming the queries that failed.
func (f *SearchFetcher) Fetch(ctx context.Context) ([]models.ArticleDraft, error) {
	var (
		drafts []models.ArticleDraft
		failed []string
		causes []error
	)

	for _, q := range f.source.Queries {
		if err := ctx.Err(); err != nil {
			failed = append(failed, q.Label())
			causes = append(causes, err)
			continue
		}

		items, err := f.query(ctx, q)
		if err != nil {
			f.logger.Warn("Search query failed", logging.WithFields(map[string]interface{}{
				"source": f.source.Name,
				"query":  q.Label(),
				"error":  err.Error(),
			}))
			failed = append(failed, q.Label())
			causes = append(causes, err)
			continue
		}
		drafts = append(drafts, items...)
	}

	if len(failed) == 0 {
		return drafts, nil
	}

	srcErr := &SourceError{Source: f.source.Name, Failed: failed, Err: errors.Join(causes...)}
	return drafts, srcErr
}

type searchResponse struct {
	News []searchArticle `json:"news"`
}

type searchArticle struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Text        string `json:"text"`
	Summary     string `json:"summary"`
	Image       string `json:"image"`
	PublishDate string `json:"publish_date"`
	Category    string `json:"category"`
}

func (f *SearchFetcher) query(ctx context.Context, q models.SearchQuery) ([]models.ArticleDraft, error) {
	if f.limiter != nil {
		if err := f.limiter.WaitContext(ctx, hostOf(f.source.Endpoint)); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	endpoint, err := f.queryURL(q)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("x-api-key", f.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", f.config.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: status %d", ErrSourceUnavailable, resp.StatusCode)
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	fetchedAt := f.now()
	drafts := make([]models.ArticleDraft, 0, len(payload.News))
	for _, a := range payload.News {
		if strings.TrimSpace(a.Title) == "" || strings.TrimSpace(a.URL) == "" {
			continue
		}
		drafts = append(drafts, f.toDraft(a, fetchedAt))
	}
	return drafts, nil
}

func (f *SearchFetcher) queryURL(q models.SearchQuery) (string, error) {
	u, err := url.Parse(f.source.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint %q: %w", f.source.Endpoint, err)
	}

	params := u.Query()
	if q.Text != "" {
		params.Set("text", q.Text)
	}
	if q.SourceIDs != "" {
		params.Set("source-ids", q.SourceIDs)
	}
	if f.source.SourceCountries != "" {
		params.Set("source-countries", f.source.SourceCountries)
	}
	if f.source.Language != "" {
		params.Set("language", f.source.Language)
	}
	number := q.Number
	if number <= 0 {
		number = defaultQueryNumber
	}
	params.Set("number", strconv.Itoa(number))
	if f.source.SortBy != "" {
		params.Set("sort-by", f.source.SortBy)
	}
	if f.source.SortDirection != "" {
		params.Set("sort-direction", f.source.SortDirection)
	}

	u.RawQuery = params.Encode()
	return u.String(), nil
}

func (f *SearchFetcher) toDraft(a searchArticle, fetchedAt time.Time) models.ArticleDraft {
	publishedAt, ok := parseFeedDate(a.PublishDate)
	if !ok {
		publishedAt = fetchedAt
	}

	summary := a.Summary
	if summary == "" && a.Text != "" {
		summary = normalize.Truncate(a.Text, normalize.SummaryMaxLen)
	}
	content := a.Text
	if content == "" {
		content = a.Summary
	}
	category := a.Category
	if category == "" {
		category = f.source.Category
	}

	return models.ArticleDraft{
		Title:       a.Title,
		SourceURL:   strings.TrimSpace(a.URL),
		PublishedAt: publishedAt,
		SourceName:  f.source.Name,
		ImageURL:    a.Image,
		Summary:     summary,
		Content:     content,
		Category:    category,
	}
}
