package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"MarketCore/internal/domain/models"
	domrepo "MarketCore/internal/domain/repository"
)

const (
	DefaultBarsLimit = 1000
	MaxBarsLimit     = 10000
)

// BarsUseCase serves historical bars from the bar store.
type BarsUseCase struct {
	store domrepo.BarSource
}

func NewBarsUseCase(store domrepo.BarSource) *BarsUseCase {
	return &BarsUseCase{store: store}
}

type GetBarsParams struct {
	Symbol   string
	From     time.Time
	To       time.Time
	Interval domrepo.Interval
	Limit    int
}

type GetBarsResult struct {
	Symbol   string       `json:"symbol"`
	Interval string       `json:"interval"`
	From     time.Time    `json:"from"`
	To       time.Time    `json:"to"`
	Count    int          `json:"count"`
	Bars     []models.Bar `json:"bars"`
}

// GetBars returns bars in [From, To], or the latest Limit bars when From is zero.
func (uc *BarsUseCase) GetBars(ctx context.Context, p GetBarsParams) (*GetBarsResult, error) {
	p.Symbol = strings.ToUpper(strings.TrimSpace(p.Symbol))
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if !domrepo.IsValidInterval(p.Interval) {
		return nil, fmt.Errorf("unsupported interval %q", p.Interval)
	}
	if p.Limit <= 0 {
		p.Limit = DefaultBarsLimit
	}
	if p.Limit > MaxBarsLimit {
		p.Limit = MaxBarsLimit
	}

	var (
		bars []models.Bar
		err  error
	)
	if p.From.IsZero() {
		bars, err = uc.store.GetLatestNBars(ctx, p.Symbol, p.Limit, p.Interval)
	} else {
		if p.To.IsZero() {
			p.To = time.Now().UTC()
		}
		if p.From.After(p.To) {
			return nil, fmt.Errorf("from must be <= to")
		}
		bars, err = uc.store.GetBars(ctx, p.Symbol, p.From, p.To, p.Interval)
		if len(bars) > p.Limit {
			bars = bars[:p.Limit]
		}
	}
	if err != nil {
		return nil, fmt.Errorf("get bars: %w", err)
	}

	res := &GetBarsResult{
		Symbol:   p.Symbol,
		Interval: p.Interval.String(),
		From:     p.From,
		To:       p.To,
		Count:    len(bars),
		Bars:     bars,
	}
	if len(bars) > 0 {
		res.From, res.To = bars[0].Time, bars[len(bars)-1].Time
	}
	return res, nil
}
