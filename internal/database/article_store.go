package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/johnrirwin/nordicwire/internal/models"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresArticleStore persists articles in Postgres.
type PostgresArticleStore struct {
	db *DB
}

func NewArticleStore(db *DB) *PostgresArticleStore {
	return &PostgresArticleStore{db: db}
}

func (s *PostgresArticleStore) UpsertArticles(ctx context.Context, drafts []models.ArticleDraft) (int, error) {
	if len(drafts) == 0 {
		return 0, nil
	}
	if err := validateBatch(drafts); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// id is only used for new rows; conflicts keep the existing id.
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO articles (
			id, title, source_url, published_at, expiry_at,
			source_name, image_url, summary, content, category,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			NOW(), NOW()
		)
		ON CONFLICT (source_url) DO UPDATE SET
			title = EXCLUDED.title,
			published_at = EXCLUDED.published_at,
			expiry_at = EXCLUDED.expiry_at,
			source_name = EXCLUDED.source_name,
			image_url = EXCLUDED.image_url,
			summary = EXCLUDED.summary,
			content = EXCLUDED.content,
			category = EXCLUDED.category,
			updated_at = NOW()
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, d := range drafts {
		if _, err := stmt.ExecContext(ctx,
			uuid.NewString(),
			d.Title,
			d.SourceURL,
			d.PublishedAt.UTC(),
			d.ExpiryAt.UTC(),
			nullString(d.SourceName),
			nullString(d.ImageURL),
			nullString(d.Summary),
			nullString(d.Content),
			d.Category,
		); err != nil {
			return 0, fmt.Errorf("upsert article %s: %w", d.SourceURL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return len(drafts), nil
}

func (s *PostgresArticleStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args, err := psql.Delete("articles").
		Where(sq.LtOrEq{"expiry_at": cutoff.UTC()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete expired: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete expired articles: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired rows affected: %w", err)
	}
	return rows, nil
}

func (s *PostgresArticleStore) ListUnenriched(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}

	query, args, err := psql.Select("id").
		From("articles").
		Where(sq.Eq{"ai_enriched_at": nil}).
		OrderBy("published_at DESC", "created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list unenriched: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list unenriched articles: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan article id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresArticleStore) GetArticle(ctx context.Context, id string) (*models.Article, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrArticleNotFound
	}

	query, args, err := psql.Select(
		"id", "title", "source_url", "published_at", "expiry_at",
		"source_name", "image_url", "summary", "content", "category",
		"ai_summary", "ai_context", "ai_timeline", "ai_analysis", "ai_what_we_know", "ai_enriched_at",
		"likes_count", "dislikes_count", "comments_count",
		"created_at", "updated_at",
	).From("articles").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get article: %w", err)
	}

	var a models.Article
	var sourceName, imageURL, summary, content sql.NullString
	var aiSummary, aiContext, aiTimeline, aiAnalysis, aiWhatWeKnow sql.NullString
	var enrichedAt sql.NullTime
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&a.ID, &a.Title, &a.SourceURL, &a.PublishedAt, &a.ExpiryAt,
		&sourceName, &imageURL, &summary, &content, &a.Category,
		&aiSummary, &aiContext, &aiTimeline, &aiAnalysis, &aiWhatWeKnow, &enrichedAt,
		&a.LikesCount, &a.DislikesCount, &a.CommentsCount,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrArticleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get article %s: %w", id, err)
	}

	a.SourceName = sourceName.String
	a.ImageURL = imageURL.String
	a.Summary = summary.String
	a.Content = content.String
	a.Enrichment = models.Enrichment{
		Summary:    aiSummary.String,
		Context:    aiContext.String,
		Timeline:   aiTimeline.String,
		Analysis:   aiAnalysis.String,
		WhatWeKnow: aiWhatWeKnow.String,
	}
	if enrichedAt.Valid {
		t := enrichedAt.Time.UTC()
		a.Enrichment.EnrichedAt = &t
	}

	return &a, nil
}

func (s *PostgresArticleStore) SaveEnrichment(ctx context.Context, id string, e models.Enrichment) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, ErrArticleNotFound
	}

	enrichedAt := time.Now().UTC()
	if e.EnrichedAt != nil {
		enrichedAt = e.EnrichedAt.UTC()
	}

	query, args, err := psql.Update("articles").
		Set("ai_summary", nullString(e.Summary)).
		Set("ai_context", nullString(e.Context)).
		Set("ai_timeline", nullString(e.Timeline)).
		Set("ai_analysis", nullString(e.Analysis)).
		Set("ai_what_we_know", nullString(e.WhatWeKnow)).
		Set("ai_enriched_at", enrichedAt).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id, "ai_enriched_at": nil}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build save enrichment: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("save enrichment %s: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("save enrichment %s rows affected: %w", id, err)
	}
	if rows == 1 {
		return true, nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM articles WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check article %s: %w", id, err)
	}
	if !exists {
		return false, ErrArticleNotFound
	}
	return false, nil
}

var _ ArticleStore = (*PostgresArticleStore)(nil)
