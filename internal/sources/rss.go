package sources

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/johnrirwin/nordicwire/internal/models"
	"github.com/johnrirwin/nordicwire/internal/ratelimit"
)

const maxFeedBytes = 8 << 20

// RSSFetcher reads an RSS 2.0 feed. Documents gofeed rejects are retried
// with a lenient <item> extractor.
type RSSFetcher struct {
	source  models.SourceConfig
	client  *http.Client
	parser  *gofeed.Parser
	limiter *ratelimit.Limiter
	config  FetcherConfig
	now     func() time.Time
}

func NewRSSFetcher(source models.SourceConfig, limiter *ratelimit.Limiter, config FetcherConfig) *RSSFetcher {
	return &RSSFetcher{
		source:  source,
		client:  &http.Client{},
		parser:  gofeed.NewParser(),
		limiter: limiter,
		config:  config,
		now:     time.Now,
	}
}

func (f *RSSFetcher) Name() string {
	return f.source.Name
}

func (f *RSSFetcher) SourceInfo() models.SourceInfo {
	return models.SourceInfo{
		ID:          sourceID(f.source.Name),
		Name:        f.source.Name,
		URL:         f.source.Endpoint,
		Category:    f.source.Category,
		Description: "RSS feed from " + f.source.Name,
		FeedType:    models.SourceKindRSS,
		Enabled:     true,
	}
}

func (f *RSSFetcher) Fetch(ctx context.Context) ([]models.ArticleDraft, error) {
	if f.limiter != nil {
		if err := f.limiter.WaitContext(ctx, hostOf(f.source.Endpoint)); err != nil {
			return nil, unavailable(f.source.Name, 0, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	body, err := f.download(ctx)
	if err != nil {
		return nil, err
	}

	fetchedAt := f.now()

	var drafts []models.ArticleDraft
	feed, parseErr := f.parser.Parse(bytes.NewReader(body))
	if parseErr == nil {
		drafts = f.fromFeed(feed, fetchedAt)
	} else {
		drafts = f.fromRaw(extractItems(body), fetchedAt)
		if len(drafts) == 0 && !bytes.Contains(bytes.ToLower(body), []byte("<item")) {
			return nil, &SourceError{Source: f.source.Name, Err: fmt.Errorf("parse feed %s: %w", f.source.Endpoint, parseErr)}
		}
	}

	return drafts, nil
}

func (f *RSSFetcher) download(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.source.Endpoint, nil)
	if err != nil {
		return nil, &SourceError{Source: f.source.Name, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("User-Agent", f.config.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, unavailable(f.source.Name, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, unavailable(f.source.Name, resp.StatusCode, nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, unavailable(f.source.Name, resp.StatusCode, err)
	}
	return body, nil
}

func (f *RSSFetcher) fromFeed(feed *gofeed.Feed, fetchedAt time.Time) []models.ArticleDraft {
	drafts := make([]models.ArticleDraft, 0, min(len(feed.Items), f.config.MaxItems))
	for i, item := range feed.Items {
		if i >= f.config.MaxItems {
			break
		}
		if strings.TrimSpace(item.Title) == "" || strings.TrimSpace(item.Link) == "" {
			continue
		}

		publishedAt := fetchedAt
		if item.PublishedParsed != nil {
			publishedAt = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			publishedAt = *item.UpdatedParsed
		}

		image := ""
		for _, enc := range item.Enclosures {
			if enc != nil && enc.URL != "" {
				image = enc.URL
				break
			}
		}
		if image == "" && item.Image != nil {
			image = item.Image.URL
		}
		if image == "" {
			image = imageFromHTML(item.Description)
		}

		content := item.Content
		if content == "" {
			content = item.Description
		}

		drafts = append(drafts, models.ArticleDraft{
			Title:       item.Title,
			SourceURL:   strings.TrimSpace(item.Link),
			PublishedAt: publishedAt,
			SourceName:  f.source.Name,
			ImageURL:    image,
			Summary:     item.Description,
			Content:     content,
			Category:    f.source.Category,
		})
	}
	return drafts
}

func (f *RSSFetcher) fromRaw(items []rawItem, fetchedAt time.Time) []models.ArticleDraft {
	drafts := make([]models.ArticleDraft, 0, len(items))
	for i, item := range items {
		if i >= f.config.MaxItems {
			break
		}
		if item.Title == "" || item.Link == "" {
			continue
		}

		publishedAt, ok := parseFeedDate(item.PubDate)
		if !ok {
			publishedAt = fetchedAt
		}

		image := item.Enclosure
		if image == "" {
			image = imageFromHTML(item.Description)
		}

		drafts = append(drafts, models.ArticleDraft{
			Title:       item.Title,
			SourceURL:   item.Link,
			PublishedAt: publishedAt,
			SourceName:  f.source.Name,
			ImageURL:    image,
			Summary:     item.Description,
			Content:     item.Description,
			Category:    f.source.Category,
		})
	}
	return drafts
}

type rawItem struct {
	Title       string
	Link        string
	PubDate     string
	Description string
	Enclosure   string
}

var (
	itemPattern        = regexp.MustCompile(`(?is)<item[^>]*>.*?</item>`)
	titlePattern       = elementPattern("title")
	linkPattern        = elementPattern("link")
	pubDatePattern     = elementPattern("pubDate")
	descriptionPattern = elementPattern("description")
	enclosurePattern   = regexp.MustCompile(`(?i)<enclosure[^>]*\surl="([^"]*)"`)
)

// elementPattern matches <name>value</name> with the value optionally CDATA-wrapped.
func elementPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?is)<` + name + `(?:\s[^>]*)?>\s*(?:<!\[CDATA\[(.*?)\]\]>|(.*?))\s*</` + name + `>`)
}

func extractItems(body []byte) []rawItem {
	blocks := itemPattern.FindAll(body, -1)
	items := make([]rawItem, 0, len(blocks))
	for _, block := range blocks {
		s := string(block)
		item := rawItem{
			Title:       elementText(titlePattern, s),
			Link:        html.UnescapeString(elementText(linkPattern, s)),
			PubDate:     elementText(pubDatePattern, s),
			Description: elementText(descriptionPattern, s),
		}
		if m := enclosurePattern.FindStringSubmatch(s); m != nil {
			item.Enclosure = html.UnescapeString(strings.TrimSpace(m[1]))
		}
		items = append(items, item)
	}
	return items
}

func elementText(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(m[2])
}

var feedDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
	"2006-01-02 15:04:05",
}

func parseFeedDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range feedDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// imageFromHTML returns the src of the first <img> in an HTML fragment.
func imageFromHTML(fragment string) string {
	if !strings.Contains(strings.ToLower(fragment), "<img") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("img[src]").First().Attr("src")
	return strings.TrimSpace(src)
}

func hostOf(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}
	return u.Host
}
