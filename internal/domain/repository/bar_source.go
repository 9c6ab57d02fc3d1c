package repository

import (
	"context"
	"time"

	"MarketCore/internal/domain/models"
)

// BarSource provides read-only access to historical bars.
type BarSource interface {
	GetBars(ctx context.Context, symbol string, from, to time.Time, iv Interval) ([]models.Bar, error)
	GetLatestNBars(ctx context.Context, symbol string, n int, iv Interval) ([]models.Bar, error)
}
