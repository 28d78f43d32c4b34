package sources

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/johnrirwin/nordicwire/internal/models"
	"github.com/johnrirwin/nordicwire/internal/ratelimit"
	"github.com/johnrirwin/nordicwire/internal/testutil"
)

func TestLoadSourcesConfig_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	data := `sources:
  - name: SVT Nyheter
    endpoint: https://www.svt.se/nyheter/rss.xml
    category: general
    enabled: true
  - name: World News API
    endpoint: https://api.worldnewsapi.com/search-news
    kind: search
    enabled: true
    language: sv
    queries:
      - sourceIds: dn.se
        number: 15
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadSourcesConfig(path)
	if err != nil {
		t.Fatalf("LoadSourcesConfig() error = %v", err)
	}
	if len(cfg.Sources) != 2 {
		t.Fatalf("got %d sources, want 2", len(cfg.Sources))
	}
	if cfg.Sources[0].Kind != models.SourceKindRSS {
		t.Errorf("kind should default to rss, got %q", cfg.Sources[0].Kind)
	}
	search := cfg.Sources[1]
	if search.Kind != models.SourceKindSearch || search.Language != "sv" {
		t.Errorf("search source = %+v", search)
	}
	if len(search.Queries) != 1 || search.Queries[0].SourceIDs != "dn.se" || search.Queries[0].Number != 15 {
		t.Errorf("queries = %+v", search.Queries)
	}
}

func TestLoadSourcesConfig_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.json")
	data := `{"sources":[{"name":"DN","endpoint":"https://www.dn.se/rss/","kind":"rss","category":"general","enabled":true}]}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadSourcesConfig(path)
	if err != nil {
		t.Fatalf("LoadSourcesConfig() error = %v", err)
	}
	if len(cfg.Sources) != 1 || cfg.Sources[0].Endpoint != "https://www.dn.se/rss/" {
		t.Errorf("sources = %+v", cfg.Sources)
	}
}

func TestLoadSourcesConfig_Missing(t *testing.T) {
	if _, err := LoadSourcesConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("LoadSourcesConfig() should fail for a missing file")
	}
}

func TestFindSourcesConfig_Env(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	if err := os.WriteFile(path, []byte("sources: []\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SOURCES_CONFIG_PATH", path)

	if got := FindSourcesConfig(); got != path {
		t.Errorf("FindSourcesConfig() = %q, want %q", got, path)
	}
}

func TestCreateFetchersFromConfig(t *testing.T) {
	cfg := DefaultSourcesConfig()
	cfg.Sources = append(cfg.Sources,
		models.SourceConfig{Name: "Avstängd", Endpoint: "https://x.se/rss", Kind: models.SourceKindRSS, Enabled: false},
		models.SourceConfig{Name: "Okänd", Endpoint: "https://x.se/api", Kind: "graphql", Enabled: true},
	)
	limiter := ratelimit.New(time.Millisecond)

	withKey := CreateFetchersFromConfig(cfg, limiter, DefaultConfig(), "key", testutil.NullLogger())
	if len(withKey) != 8 {
		t.Fatalf("got %d fetchers, want 8", len(withKey))
	}
	if withKey[0].Name() != "SVT Nyheter" || withKey[7].Name() != "World News API" {
		t.Errorf("fetchers should keep config order, got %q ... %q", withKey[0].Name(), withKey[7].Name())
	}
	if _, ok := withKey[7].(*SearchFetcher); !ok {
		t.Errorf("last fetcher should be a search fetcher, got %T", withKey[7])
	}

	withoutKey := CreateFetchersFromConfig(cfg, limiter, DefaultConfig(), "", testutil.NullLogger())
	if len(withoutKey) != 7 {
		t.Errorf("search source should be skipped without an API key, got %d fetchers", len(withoutKey))
	}
}
