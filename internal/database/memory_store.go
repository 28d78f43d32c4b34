package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/johnrirwin/nordicwire/internal/models"
)

// MemoryArticleStore keeps articles in process memory. It backs the pipeline
// when Postgres is not configured and has the same upsert semantics.
type MemoryArticleStore struct {
	mu       sync.RWMutex
	byURL    map[string]*models.Article
	byID     map[string]*models.Article
	now      func() time.Time
	failNext error
}

func NewMemoryArticleStore() *MemoryArticleStore {
	return &MemoryArticleStore{
		byURL: make(map[string]*models.Article),
		byID:  make(map[string]*models.Article),
		now:   time.Now,
	}
}

func (s *MemoryArticleStore) UpsertArticles(ctx context.Context, drafts []models.ArticleDraft) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := validateBatch(drafts); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failNext; err != nil {
		s.failNext = nil
		return 0, err
	}

	now := s.now().UTC()
	for _, d := range drafts {
		d.PublishedAt = d.PublishedAt.UTC()
		d.ExpiryAt = d.ExpiryAt.UTC()

		if existing, ok := s.byURL[d.SourceURL]; ok {
			existing.ArticleDraft = d
			existing.UpdatedAt = now
			continue
		}

		a := &models.Article{
			ID:           uuid.NewString(),
			ArticleDraft: d,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		s.byURL[d.SourceURL] = a
		s.byID[a.ID] = a
	}

	return len(drafts), nil
}

func (s *MemoryArticleStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for url, a := range s.byURL {
		if a.Expired(cutoff) {
			delete(s.byURL, url)
			delete(s.byID, a.ID)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryArticleStore) ListUnenriched(ctx context.Context, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	// Sort keys are copied under the lock; upserts rewrite the stored structs.
	type candidate struct {
		id        string
		published time.Time
	}

	s.mu.RLock()
	pending := make([]candidate, 0)
	for _, a := range s.byID {
		if !a.IsEnriched() {
			pending = append(pending, candidate{id: a.ID, published: a.PublishedAt})
		}
	}
	s.mu.RUnlock()

	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].published.Equal(pending[j].published) {
			return pending[i].published.After(pending[j].published)
		}
		return pending[i].id < pending[j].id
	})

	if len(pending) > limit {
		pending = pending[:limit]
	}
	ids := make([]string, len(pending))
	for i, c := range pending {
		ids[i] = c.id
	}
	return ids, nil
}

func (s *MemoryArticleStore) GetArticle(ctx context.Context, id string) (*models.Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[id]
	if !ok {
		return nil, ErrArticleNotFound
	}
	return copyArticle(a), nil
}

func (s *MemoryArticleStore) SaveEnrichment(ctx context.Context, id string, e models.Enrichment) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return false, ErrArticleNotFound
	}
	if a.IsEnriched() {
		return false, nil
	}

	enrichedAt := s.now().UTC()
	if e.EnrichedAt != nil {
		enrichedAt = e.EnrichedAt.UTC()
	}
	e.EnrichedAt = &enrichedAt
	a.Enrichment = e
	a.UpdatedAt = s.now().UTC()
	return true, nil
}

// SetEngagement writes reaction counters the way the reaction subsystem would.
func (s *MemoryArticleStore) SetEngagement(sourceURL string, likes, dislikes, comments int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byURL[sourceURL]
	if !ok {
		return false
	}
	a.LikesCount = likes
	a.DislikesCount = dislikes
	a.CommentsCount = comments
	return true
}

// FindBySourceURL returns a copy of the row keyed by sourceURL.
func (s *MemoryArticleStore) FindBySourceURL(sourceURL string) (*models.Article, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byURL[sourceURL]
	if !ok {
		return nil, false
	}
	return copyArticle(a), true
}

func (s *MemoryArticleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byURL)
}

// FailNextUpsert makes the next UpsertArticles call return err without writing.
func (s *MemoryArticleStore) FailNextUpsert(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func copyArticle(a *models.Article) *models.Article {
	c := *a
	if a.Enrichment.EnrichedAt != nil {
		t := *a.Enrichment.EnrichedAt
		c.Enrichment.EnrichedAt = &t
	}
	return &c
}

var _ ArticleStore = (*MemoryArticleStore)(nil)
