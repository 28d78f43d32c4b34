package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/johnrirwin/nordicwire/internal/models"
	"github.com/johnrirwin/nordicwire/internal/ratelimit"
)

const cdataFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>SVT Nyheter</title>
  <link>https://www.svt.se</link>
  <description>Nyheter</description>
  <item>
    <title><![CDATA[Regeringen möter press]]></title>
    <link>https://www.svt.se/nyheter/1</link>
    <pubDate>Mon, 01 Jan 2024 10:00:00 +0000</pubDate>
    <description><![CDATA[<p>Första stycket <img src="https://img.svt.se/1.jpg"/></p>]]></description>
  </item>
  <item>
    <title>Vanlig rubrik</title>
    <link>https://www.svt.se/nyheter/2</link>
    <description>Enkel text</description>
    <enclosure url="https://img.svt.se/2.jpg" type="image/jpeg" length="0"/>
  </item>
  <item>
    <title>Saknar länk</title>
    <description>Ska hoppas över</description>
  </item>
</channel>
</rss>`

func newTestFetcher(t *testing.T, body string, status int) (*RSSFetcher, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "TestAgent/1.0" {
			t.Errorf("User-Agent = %q, want %q", ua, "TestAgent/1.0")
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	source := models.SourceConfig{Name: "SVT Nyheter", Endpoint: srv.URL, Category: "general", Kind: models.SourceKindRSS, Enabled: true}
	config := FetcherConfig{Timeout: 5 * time.Second, MaxItems: 10, UserAgent: "TestAgent/1.0"}
	fetcher := NewRSSFetcher(source, ratelimit.New(0), config)
	fetcher.now = func() time.Time { return time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC) }
	return fetcher, srv
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Timeout != 15*time.Second {
		t.Errorf("DefaultConfig().Timeout = %v, want %v", config.Timeout, 15*time.Second)
	}
	if config.MaxItems != 10 {
		t.Errorf("DefaultConfig().MaxItems = %d, want %d", config.MaxItems, 10)
	}
	if config.UserAgent != "NewsAggregator/1.0" {
		t.Errorf("DefaultConfig().UserAgent = %q, want %q", config.UserAgent, "NewsAggregator/1.0")
	}
}

func TestRSSFetcher_SourceInfo(t *testing.T) {
	source := models.SourceConfig{Name: "DN Ekonomi", Endpoint: "https://www.dn.se/ekonomi/rss/", Category: "business"}
	fetcher := NewRSSFetcher(source, ratelimit.New(time.Second), DefaultConfig())

	if got := fetcher.Name(); got != "DN Ekonomi" {
		t.Errorf("Name() = %q, want %q", got, "DN Ekonomi")
	}

	info := fetcher.SourceInfo()
	if info.ID != "dn-ekonomi" {
		t.Errorf("SourceInfo().ID = %q, want %q", info.ID, "dn-ekonomi")
	}
	if info.Category != "business" {
		t.Errorf("SourceInfo().Category = %q, want %q", info.Category, "business")
	}
	if info.FeedType != models.SourceKindRSS {
		t.Errorf("SourceInfo().FeedType = %q, want %q", info.FeedType, models.SourceKindRSS)
	}
	if !info.Enabled {
		t.Error("SourceInfo().Enabled should be true")
	}
}

func TestRSSFetcher_Fetch(t *testing.T) {
	fetcher, _ := newTestFetcher(t, cdataFeed, http.StatusOK)

	drafts, err := fetcher.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(drafts) != 2 {
		t.Fatalf("Fetch() returned %d drafts, want 2", len(drafts))
	}

	first := drafts[0]
	if first.Title != "Regeringen möter press" {
		t.Errorf("Title = %q", first.Title)
	}
	if first.SourceURL != "https://www.svt.se/nyheter/1" {
		t.Errorf("SourceURL = %q", first.SourceURL)
	}
	if !first.PublishedAt.Equal(time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("PublishedAt = %v", first.PublishedAt)
	}
	if first.ImageURL != "https://img.svt.se/1.jpg" {
		t.Errorf("ImageURL from description = %q", first.ImageURL)
	}
	if first.SourceName != "SVT Nyheter" || first.Category != "general" {
		t.Errorf("source fields = %q/%q", first.SourceName, first.Category)
	}

	second := drafts[1]
	if second.ImageURL != "https://img.svt.se/2.jpg" {
		t.Errorf("ImageURL from enclosure = %q", second.ImageURL)
	}
	if !second.PublishedAt.Equal(fetcher.now()) {
		t.Errorf("missing pubDate should default to fetch time, got %v", second.PublishedAt)
	}
}

func TestRSSFetcher_MaxItems(t *testing.T) {
	fetcher, _ := newTestFetcher(t, cdataFeed, http.StatusOK)
	fetcher.config.MaxItems = 1

	drafts, err := fetcher.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(drafts) != 1 {
		t.Errorf("Fetch() returned %d drafts, want 1", len(drafts))
	}
}

func TestRSSFetcher_Unavailable(t *testing.T) {
	fetcher, _ := newTestFetcher(t, "down", http.StatusServiceUnavailable)

	_, err := fetcher.Fetch(context.Background())
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("Fetch() error = %v, want ErrSourceUnavailable", err)
	}

	var srcErr *SourceError
	if !errors.As(err, &srcErr) {
		t.Fatalf("Fetch() error should be a *SourceError, got %T", err)
	}
	if srcErr.Status != http.StatusServiceUnavailable || srcErr.Source != "SVT Nyheter" {
		t.Errorf("SourceError = %+v", srcErr)
	}
}

func TestRSSFetcher_NotAFeed(t *testing.T) {
	fetcher, _ := newTestFetcher(t, "<html><body>hello</body></html>", http.StatusOK)

	_, err := fetcher.Fetch(context.Background())
	var srcErr *SourceError
	if !errors.As(err, &srcErr) {
		t.Fatalf("Fetch() error = %v, want *SourceError", err)
	}
}

func TestExtractItems(t *testing.T) {
	broken := `<rss><channel>
<item><title><![CDATA[Rubrik & mer]]></title><link>https://gp.se/a?x=1&amp;y=2</link>
<pubDate>Tue, 2 Jan 2024 08:30:00 +0100</pubDate>
<description>Text utan CDATA</description>
<enclosure length="1" url="https://gp.se/a.jpg" /></item>
<item><title>Andra</title><link> https://gp.se/b </link></item>
<item><title>Trasig`

	items := extractItems([]byte(broken))
	if len(items) != 2 {
		t.Fatalf("extractItems() returned %d items, want 2", len(items))
	}

	if items[0].Title != "Rubrik & mer" {
		t.Errorf("Title = %q", items[0].Title)
	}
	if items[0].Link != "https://gp.se/a?x=1&y=2" {
		t.Errorf("Link = %q", items[0].Link)
	}
	if items[0].Description != "Text utan CDATA" {
		t.Errorf("Description = %q", items[0].Description)
	}
	if items[0].Enclosure != "https://gp.se/a.jpg" {
		t.Errorf("Enclosure = %q", items[0].Enclosure)
	}
	if items[1].Link != "https://gp.se/b" {
		t.Errorf("Link should be trimmed, got %q", items[1].Link)
	}
}

func TestRSSFetcher_FallbackExtractor(t *testing.T) {
	// Unclosed channel makes the document invalid XML.
	body := `<rss version="2.0"><channel>
<item><title>Rubrik</title><link>https://gp.se/1</link><pubDate>Tue, 02 Jan 2024 08:30:00 +0100</pubDate><description><![CDATA[<b>Fet</b>]]></description></item>
<item><title>Andra & tredje</title><link>https://gp.se/2</link></item>`
	fetcher, _ := newTestFetcher(t, body, http.StatusOK)

	drafts, err := fetcher.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(drafts) != 2 {
		t.Fatalf("Fetch() returned %d drafts, want 2", len(drafts))
	}
	want := time.Date(2024, time.January, 2, 7, 30, 0, 0, time.UTC)
	if !drafts[0].PublishedAt.Equal(want) {
		t.Errorf("PublishedAt = %v, want %v", drafts[0].PublishedAt, want)
	}
	if drafts[0].Summary != "<b>Fet</b>" {
		t.Errorf("Summary = %q", drafts[0].Summary)
	}
}

func TestParseFeedDate(t *testing.T) {
	tests := []struct {
		in   string
		ok   bool
		want time.Time
	}{
		{"Mon, 01 Jan 2024 10:00:00 +0000", true, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)},
		{"Mon, 1 Jan 2024 10:00:00 +0100", true, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)},
		{"2024-01-05T10:00:00Z", true, time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)},
		{"2024-01-05 10:00:00", true, time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)},
		{"igår", false, time.Time{}},
		{"", false, time.Time{}},
	}

	for _, tt := range tests {
		got, ok := parseFeedDate(tt.in)
		if ok != tt.ok {
			t.Errorf("parseFeedDate(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if ok && !got.Equal(tt.want) {
			t.Errorf("parseFeedDate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestImageFromHTML(t *testing.T) {
	if got := imageFromHTML(`<p>Text</p><img alt="x" src="https://a.se/1.png"><img src="https://a.se/2.png">`); got != "https://a.se/1.png" {
		t.Errorf("imageFromHTML() = %q", got)
	}
	if got := imageFromHTML("ingen bild"); got != "" {
		t.Errorf("imageFromHTML() = %q, want empty", got)
	}
}
