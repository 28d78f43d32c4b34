// Package normalize turns raw source drafts into the canonical article shape.
// Everything here is pure: no I/O and no clock reads beyond the time passed in.
package normalize

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/johnrirwin/nordicwire/internal/models"
)

const (
	// SummaryMaxLen caps summaries in runes, ellipsis included.
	SummaryMaxLen = 300
	ellipsis      = "..."

	// CategoryMaxLen caps category labels in runes.
	CategoryMaxLen = 64

	// ExpiryWindow is how long an article stays in the store after publication.
	ExpiryWindow = 30 * 24 * time.Hour
)

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// Only these entities are decoded; anything else (e.g. &ouml;) is left as-is.
var entityReplacer = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
)

// StripHTML removes markup and decodes the supported entity table.
// Decoding and stripping repeat until nothing changes, so the output is a fixed point.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	s = norm.NFC.String(s)
	for {
		next := tagPattern.ReplaceAllString(entityReplacer.Replace(s), "")
		if next == s {
			break
		}
		s = next
	}
	return strings.Join(strings.Fields(s), " ")
}

// Truncate shortens s to at most max runes, marking the cut with "...".
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	if max <= len(ellipsis) {
		return string([]rune(s)[:max])
	}
	cut := strings.TrimSpace(string([]rune(s)[:max-len(ellipsis)]))
	return cut + ellipsis
}

// Normalize cleans the text fields of d and fills the derived ones.
// now stands in for a missing publish time.
func Normalize(d models.ArticleDraft, now time.Time) models.ArticleDraft {
	d.Title = StripHTML(d.Title)
	d.Summary = StripHTML(d.Summary)
	d.Content = StripHTML(d.Content)

	if d.Summary == "" {
		d.Summary = d.Content
	}
	d.Summary = Truncate(d.Summary, SummaryMaxLen)

	d.SourceURL = strings.TrimSpace(d.SourceURL)
	d.SourceName = strings.TrimSpace(d.SourceName)
	d.ImageURL = strings.TrimSpace(d.ImageURL)

	if d.PublishedAt.IsZero() {
		d.PublishedAt = now
	}
	d.PublishedAt = d.PublishedAt.UTC()
	d.ExpiryAt = ExpiryFor(d.PublishedAt)

	d.Category = strings.ToLower(strings.TrimSpace(d.Category))
	if utf8.RuneCountInString(d.Category) > CategoryMaxLen {
		d.Category = strings.TrimSpace(string([]rune(d.Category)[:CategoryMaxLen]))
	}
	if d.Category == "" {
		d.Category = models.DefaultCategory
	}

	return d
}

// ExpiryFor returns the UTC instant an article published at t expires.
func ExpiryFor(t time.Time) time.Time {
	return t.UTC().Add(ExpiryWindow)
}

// Batch drops drafts missing a title or URL and normalizes the rest.
// A draft whose title is pure markup is dropped as well.
func Batch(drafts []models.ArticleDraft, now time.Time) ([]models.ArticleDraft, int) {
	kept := make([]models.ArticleDraft, 0, len(drafts))
	dropped := 0
	for _, d := range drafts {
		if !d.Valid() {
			dropped++
			continue
		}
		n := Normalize(d, now)
		if !n.Valid() {
			dropped++
			continue
		}
		kept = append(kept, n)
	}
	return kept, dropped
}
