package sources

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/johnrirwin/nordicwire/internal/logging"
	"github.com/johnrirwin/nordicwire/internal/models"
	"github.com/johnrirwin/nordicwire/internal/ratelimit"
)

// SourcesConfig holds the configured sources in fetch order.
type SourcesConfig struct {
	Sources []models.SourceConfig `json:"sources" yaml:"sources"`
}

// LoadSourcesConfig reads a YAML or JSON sources file. JSON is parsed by the
// YAML decoder since it is a subset.
func LoadSourcesConfig(configPath string) (*SourcesConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources config: %w", err)
	}

	var config SourcesConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse sources config: %w", err)
	}

	for i := range config.Sources {
		if config.Sources[i].Kind == "" {
			config.Sources[i].Kind = models.SourceKindRSS
		}
	}

	return &config, nil
}

// FindSourcesConfig searches for a sources file in common locations.
func FindSourcesConfig() string {
	locations := []string{
		"sources.yaml",
		"sources.yml",
		"sources.json",
		"../sources.yaml",
		"/app/sources.yaml",
		"config/sources.yaml",
		"config/sources.json",
	}

	if envPath := os.Getenv("SOURCES_CONFIG_PATH"); envPath != "" {
		locations = append([]string{envPath}, locations...)
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			absPath, _ := filepath.Abs(loc)
			return absPath
		}
	}

	return ""
}

// CreateFetchersFromConfig builds fetchers for the enabled sources, keeping
// config order. Search sources are skipped when no API key is set.
func CreateFetchersFromConfig(config *SourcesConfig, limiter *ratelimit.Limiter, fetcherConfig FetcherConfig, searchAPIKey string, logger *logging.Logger) []Fetcher {
	fetchers := make([]Fetcher, 0, len(config.Sources))

	searchLimiter := limiter
	if fetcherConfig.SearchDelay > 0 {
		searchLimiter = ratelimit.New(fetcherConfig.SearchDelay)
	}

	for _, source := range config.Sources {
		if !source.Enabled {
			continue
		}

		var fetcher Fetcher
		switch strings.ToLower(source.Kind) {
		case models.SourceKindRSS, "":
			fetcher = NewRSSFetcher(source, limiter, fetcherConfig)
		case models.SourceKindSearch:
			if searchAPIKey == "" {
				logger.Warn("Search API key not configured, skipping source", logging.WithField("source", source.Name))
				continue
			}
			fetcher = NewSearchFetcher(source, searchAPIKey, searchLimiter, fetcherConfig, logger)
		default:
			logger.Warn("Unknown source kind, skipping", logging.WithFields(map[string]interface{}{
				"source": source.Name,
				"kind":   source.Kind,
			}))
			continue
		}

		fetchers = append(fetchers, fetcher)
	}

	return fetchers
}

// DefaultSourcesConfig is used when no sources file is found.
func DefaultSourcesConfig() *SourcesConfig {
	return &SourcesConfig{
		Sources: []models.SourceConfig{
			{Name: "SVT Nyheter", Endpoint: "https://www.svt.se/nyheter/rss.xml", Category: "general", Kind: models.SourceKindRSS, Enabled: true},
			{Name: "Dagens Nyheter", Endpoint: "https://www.dn.se/rss/", Category: "general", Kind: models.SourceKindRSS, Enabled: true},
			{Name: "Aftonbladet", Endpoint: "https://rss.aftonbladet.se/rss2/small/pages/sections/senastenytt/", Category: "general", Kind: models.SourceKindRSS, Enabled: true},
			{Name: "Expressen", Endpoint: "https://feeds.expressen.se/nyheter/", Category: "general", Kind: models.SourceKindRSS, Enabled: true},
			{Name: "Svenska Dagbladet", Endpoint: "https://www.svd.se/feed/articles.rss", Category: "general", Kind: models.SourceKindRSS, Enabled: true},
			{Name: "SVT Sport", Endpoint: "https://www.svt.se/sport/rss.xml", Category: "sports", Kind: models.SourceKindRSS, Enabled: true},
			{Name: "DN Ekonomi", Endpoint: "https://www.dn.se/ekonomi/rss/", Category: "business", Kind: models.SourceKindRSS, Enabled: true},
			{
				Name:            "World News API",
				Endpoint:        "https://api.worldnewsapi.com/search-news",
				Category:        "general",
				Kind:            models.SourceKindSearch,
				Enabled:         true,
				Language:        "sv",
				SourceCountries: "se",
				SortBy:          "publish-time",
				SortDirection:   "DESC",
				Queries: []models.SearchQuery{
					{SourceIDs: "aftonbladet.se", Number: 15},
					{SourceIDs: "expressen.se", Number: 15},
					{SourceIDs: "dn.se", Number: 15},
					{SourceIDs: "svd.se", Number: 15},
					{SourceIDs: "gp.se", Number: 10},
					{SourceIDs: "svt.se", Number: 10},
				},
			},
		},
	}
}
