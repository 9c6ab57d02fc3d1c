package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketCore/internal/domain/models"
)

type recordingProducer struct {
	topic string
	key   []byte
	value interface{}
}

func (r *recordingProducer) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	r.topic, r.key, r.value = topic, key, value
	return nil
}

func (r *recordingProducer) Close() error { return nil }

func TestKafkaAnalysisPublisherKeysBySymbol(t *testing.T) {
	rec := &recordingProducer{}
	p := &KafkaAnalysisPublisher{producer: rec, topic: "analysis"}

	ev := &models.AnalysisEvent{Snapshot: models.AnalysisSnapshot{Symbol: "BTCUSDT"}}
	require.NoError(t, p.Publish(context.Background(), ev))

	assert.Equal(t, "analysis", rec.topic)
	assert.Equal(t, []byte("BTCUSDT"), rec.key)
	assert.Same(t, ev, rec.value)
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.Emitted.IsZero())

	id := ev.ID
	require.NoError(t, p.Publish(context.Background(), ev))
	assert.Equal(t, id, ev.ID)
}
