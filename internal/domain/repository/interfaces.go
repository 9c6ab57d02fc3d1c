package repository

import (
	"context"

	"MarketCore/internal/domain/models"
)

// SessionStore persists one SessionState per symbol with atomic replace-on-write.
// Load returns models.ErrStateNotFound when nothing is stored and
// models.ErrCorruptState when the stored record cannot be decoded.
type SessionStore interface {
	Load(ctx context.Context, symbol string) (models.SessionState, error)
	Save(ctx context.Context, symbol string, st models.SessionState) error
}

// AnalysisPublisher fans analysis events out to downstream consumers.
type AnalysisPublisher interface {
	Publish(ctx context.Context, ev *models.AnalysisEvent) error
	Close() error
}

type Metrics interface {
	RecordBar(symbol, path string)
	RecordRejected(symbol, reason string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordActiveZones(symbol string, n int)
	RecordScore(symbol string, score int)
}
