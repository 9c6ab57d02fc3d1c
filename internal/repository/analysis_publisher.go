package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"MarketCore/internal/domain/models"
	"MarketCore/internal/domain/repository"
	pkgkafka "MarketCore/pkg/kafka"
)

type producer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaAnalysisPublisher implements AnalysisPublisher for Kafka. Events are
// keyed by symbol so one symbol's events stay ordered within a partition.
type KafkaAnalysisPublisher struct {
	producer producer
	topic    string
}

var _ repository.AnalysisPublisher = (*KafkaAnalysisPublisher)(nil)

// NewKafkaAnalysisPublisher creates a Kafka publisher.
func NewKafkaAnalysisPublisher(p *pkgkafka.Producer, topic string) *KafkaAnalysisPublisher {
	return &KafkaAnalysisPublisher{producer: p, topic: topic}
}

// Publish assigns an id and emission time when missing, then writes ev as JSON.
func (p *KafkaAnalysisPublisher) Publish(ctx context.Context, ev *models.AnalysisEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Emitted.IsZero() {
		ev.Emitted = time.Now().UTC()
	}
	return p.producer.Publish(ctx, p.topic, []byte(ev.Snapshot.Symbol), ev)
}

func (p *KafkaAnalysisPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NopAnalysisPublisher drops events. Used by the replay command and when Kafka is disabled.
type NopAnalysisPublisher struct{}

func (NopAnalysisPublisher) Publish(context.Context, *models.AnalysisEvent) error { return nil }
func (NopAnalysisPublisher) Close() error                                         { return nil }
