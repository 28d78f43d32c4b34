package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/johnrirwin/nordicwire/internal/models"
)

var (
	ErrArticleNotFound = errors.New("article not found")
	ErrInvalidDraft    = errors.New("invalid article draft")
)

// ArticleStore is the keyed article table shared with the presentation and
// reaction subsystems. Rows are keyed by source URL.
type ArticleStore interface {
	// UpsertArticles inserts or updates every draft in one atomic batch and
	// returns the number of rows written. Engagement counters and enrichment
	// fields of existing rows are left untouched.
	UpsertArticles(ctx context.Context, drafts []models.ArticleDraft) (int, error)
	// DeleteExpired removes rows whose expiry is at or before cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
	// ListUnenriched returns up to limit IDs of rows without enrichment, newest first.
	ListUnenriched(ctx context.Context, limit int) ([]string, error)
	GetArticle(ctx context.Context, id string) (*models.Article, error)
	// SaveEnrichment stores e only if the row has none yet and reports whether it did.
	SaveEnrichment(ctx context.Context, id string, e models.Enrichment) (bool, error)
}

func validateBatch(drafts []models.ArticleDraft) error {
	for i, d := range drafts {
		if !d.Valid() {
			return fmt.Errorf("%w: draft %d missing title or source url", ErrInvalidDraft, i)
		}
		if d.ExpiryAt.IsZero() || d.PublishedAt.IsZero() {
			return fmt.Errorf("%w: draft %s missing timestamps", ErrInvalidDraft, d.SourceURL)
		}
	}
	return nil
}
