package models

import (
	"strings"
	"time"
)

// DefaultCategory is applied to drafts that arrive without a category.
const DefaultCategory = "general"

// ArticleDraft is the transient shape produced by a source adapter.
// Empty strings stand for absent optional values.
type ArticleDraft struct {
	Title       string    `json:"title"`
	SourceURL   string    `json:"sourceUrl"`
	PublishedAt time.Time `json:"publishedAt"`
	ExpiryAt    time.Time `json:"expiryAt"`
	SourceName  string    `json:"sourceName"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	Content     string    `json:"content,omitempty"`
	Category    string    `json:"category"`
}

// Valid reports whether the draft carries both required fields.
func (d ArticleDraft) Valid() bool {
	return strings.TrimSpace(d.Title) != "" && strings.TrimSpace(d.SourceURL) != ""
}

// Enrichment holds the generated commentary sections of an article.
type Enrichment struct {
	Summary    string     `json:"summary"`
	Context    string     `json:"context"`
	Timeline   string     `json:"timeline"`
	Analysis   string     `json:"analysis"`
	WhatWeKnow string     `json:"whatWeKnow"`
	EnrichedAt *time.Time `json:"enrichedAt,omitempty"`
}

// Article is the persisted entity keyed by SourceURL.
type Article struct {
	ID string `json:"id"`
	ArticleDraft

	Enrichment Enrichment `json:"enrichment"`

	// Engagement counters belong to the reaction subsystem.
	LikesCount    int `json:"likesCount"`
	DislikesCount int `json:"dislikesCount"`
	CommentsCount int `json:"commentsCount"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (a Article) Expired(now time.Time) bool {
	return !now.Before(a.ExpiryAt)
}

func (a Article) IsEnriched() bool {
	return a.Enrichment.EnrichedAt != nil
}
