package analytics

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sony/gobreaker"

	"MarketCore/internal/domain/models"
	domsvc "MarketCore/internal/domain/service"
	"MarketCore/internal/services/features"
	"MarketCore/pkg/config"
	applogger "MarketCore/pkg/logger"
)

// HTTPProjector asks an external model service for a directional forecast.
type HTTPProjector struct {
	base *HTTPServiceBase
	path string
	bars int
}

var _ domsvc.DirectionalProjector = (*HTTPProjector)(nil)

func NewHTTPProjector(cfg config.ProjectionConfig, log *applogger.Logger) *HTTPProjector {
	path := cfg.Path
	if path == "" {
		path = "/projection/predict"
	}
	n := cfg.Bars
	if n <= 0 {
		n = 200
	}
	return &HTTPProjector{base: NewHTTPServiceBase(cfg, log), path: path, bars: n}
}

type projectionRequest struct {
	Symbol     string    `json:"symbol"`
	Closes     []float64 `json:"closes"`
	Volumes    []float64 `json:"volumes"`
	LogReturns []float64 `json:"log_returns"`
	LastTime   int64     `json:"last_time"`
}

type projectionResponse struct {
	Direction   string  `json:"direction"`
	Probability float64 `json:"probability"`
}

// Project returns nil without error when the service is not configured or its
// breaker is open, so scoring proceeds without the projection factor.
func (p *HTTPProjector) Project(ctx context.Context, symbol string, bars []models.Bar) (*models.Projection, error) {
	if !p.base.Enabled() || len(bars) == 0 {
		return nil, nil
	}
	if len(bars) > p.bars {
		bars = bars[len(bars)-p.bars:]
	}
	req := projectionRequest{
		Symbol:     symbol,
		Closes:     features.Closes(bars),
		Volumes:    features.Volumes(bars),
		LogReturns: features.ComputeLogReturns(bars),
		LastTime:   bars[len(bars)-1].Time.Unix(),
	}
	var resp projectionResponse
	if err := p.base.PostJSONWithRetry(ctx, p.path, req, &resp); err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, nil
		}
		return nil, fmt.Errorf("post projection: %w", err)
	}
	if resp.Probability < 0 || resp.Probability > 100 {
		return nil, fmt.Errorf("projection probability out of range: %v", resp.Probability)
	}
	return &models.Projection{
		Direction:   strings.ToUpper(strings.TrimSpace(resp.Direction)),
		Probability: resp.Probability,
	}, nil
}
