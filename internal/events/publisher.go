// Package events announces upserted articles to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/johnrirwin/nordicwire/internal/metrics"
	"github.com/johnrirwin/nordicwire/internal/models"
)

const EventArticleUpserted = "article.upserted"

// ArticleEvent is the message body written for each upserted article.
type ArticleEvent struct {
	Type        string    `json:"type"`
	SourceURL   string    `json:"sourceUrl"`
	Title       string    `json:"title"`
	SourceName  string    `json:"sourceName,omitempty"`
	Category    string    `json:"category"`
	PublishedAt time.Time `json:"publishedAt"`
	ExpiryAt    time.Time `json:"expiryAt"`
	OccurredAt  time.Time `json:"occurredAt"`
}

type Publisher interface {
	PublishUpserted(ctx context.Context, drafts []models.ArticleDraft) error
	Close() error
}

// NoopPublisher is used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishUpserted(context.Context, []models.ArticleDraft) error {
	return nil
}

func (NoopPublisher) Close() error {
	return nil
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// KafkaPublisher writes one message per article keyed by source URL, so
// updates to the same article land on the same partition.
type KafkaPublisher struct {
	writer messageWriter
	now    func() time.Time
}

func NewKafkaPublisher(cfg KafkaConfig) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaPublisher{writer: writer, now: time.Now}
}

func (p *KafkaPublisher) PublishUpserted(ctx context.Context, drafts []models.ArticleDraft) error {
	if len(drafts) == 0 {
		return nil
	}

	now := p.now().UTC()
	msgs := make([]kafka.Message, 0, len(drafts))
	for _, d := range drafts {
		body, err := json.Marshal(ArticleEvent{
			Type:        EventArticleUpserted,
			SourceURL:   d.SourceURL,
			Title:       d.Title,
			SourceName:  d.SourceName,
			Category:    d.Category,
			PublishedAt: d.PublishedAt.UTC(),
			ExpiryAt:    d.ExpiryAt.UTC(),
			OccurredAt:  now,
		})
		if err != nil {
			return fmt.Errorf("marshal article event: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(d.SourceURL),
			Value: body,
			Time:  now,
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		metrics.EventsPublishedTotal.WithLabelValues("error").Add(float64(len(msgs)))
		return fmt.Errorf("write %d article events: %w", len(msgs), err)
	}
	metrics.EventsPublishedTotal.WithLabelValues("ok").Add(float64(len(msgs)))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// ParseBrokers splits a comma separated broker list.
func ParseBrokers(value string) []string {
	var brokers []string
	for _, b := range strings.Split(value, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

var (
	_ Publisher = NoopPublisher{}
	_ Publisher = (*KafkaPublisher)(nil)
)
