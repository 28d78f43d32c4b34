package sources

import (
	"context"
	"strings"
	"time"

	"github.com/johnrirwin/nordicwire/internal/models"
)

// Fetcher pulls the latest drafts from one configured source.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context) ([]models.ArticleDraft, error)
	SourceInfo() models.SourceInfo
}

type FetchResult struct {
	Drafts []models.ArticleDraft
	Source models.SourceInfo
	Error  error
}

type FetcherConfig struct {
	Timeout   time.Duration
	MaxItems  int
	UserAgent string

	// SearchDelay spaces search API requests. Zero shares the RSS limiter.
	SearchDelay time.Duration
}

func DefaultConfig() FetcherConfig {
	return FetcherConfig{
		Timeout:     15 * time.Second,
		MaxItems:    10,
		UserAgent:   "NewsAggregator/1.0",
		SearchDelay: 100 * time.Millisecond,
	}
}

func sourceID(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "-"))
}
