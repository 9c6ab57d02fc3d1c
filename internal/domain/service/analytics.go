package service

import (
	"context"
	"time"

	"MarketCore/internal/domain/models"
	"MarketCore/internal/domain/repository"
)

// RegimeClassifier labels every bar of a window with its market phase.
type RegimeClassifier interface {
	Classify(bars []models.Bar) []models.RegimePoint
}

// StructureEngine derives support/resistance levels and the active zone catalog.
type StructureEngine interface {
	Levels(bars []models.Bar, iv repository.Interval) models.LevelCatalog
	Zones(bars []models.Bar) models.ZoneCatalog
}

// SessionTracker owns one symbol's session state. Callers serialize access per symbol.
type SessionTracker interface {
	Update(ctx context.Context, bar models.Bar, closed bool) (models.SessionSnapshot, error)
	Bootstrap(ctx context.Context, history []models.Bar, now time.Time) error
	Snapshot(now time.Time) models.SessionSnapshot
	State() models.SessionState
}

// ConfluenceScorer grades a candidate against the current market context.
type ConfluenceScorer interface {
	Score(in models.ConfluenceInput) models.ConfluenceResult
}

// DirectionalProjector fetches an external directional forecast.
type DirectionalProjector interface {
	Project(ctx context.Context, symbol string, bars []models.Bar) (*models.Projection, error)
}
