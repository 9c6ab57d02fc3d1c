package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketCore/internal/domain/models"
	domrepo "MarketCore/internal/domain/repository"
	"MarketCore/internal/testutil"
)

type stubBarSource struct {
	bars    []models.Bar
	err     error
	latestN int
	ranged  bool
}

func (s *stubBarSource) GetBars(_ context.Context, _ string, _, _ time.Time, _ domrepo.Interval) ([]models.Bar, error) {
	s.ranged = true
	return s.bars, s.err
}

func (s *stubBarSource) GetLatestNBars(_ context.Context, _ string, n int, _ domrepo.Interval) ([]models.Bar, error) {
	s.latestN = n
	if n < len(s.bars) {
		return s.bars[len(s.bars)-n:], s.err
	}
	return s.bars, s.err
}

func TestBarsUseCaseLatest(t *testing.T) {
	src := &stubBarSource{bars: testutil.Flat(testutil.Epoch, 15*time.Minute, 30, 100, 1)}
	uc := NewBarsUseCase(src)

	res, err := uc.GetBars(context.Background(), GetBarsParams{Symbol: "btcusdt", Interval: domrepo.TF15m, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 10, src.latestN)
	assert.Equal(t, "BTCUSDT", res.Symbol)
	assert.Equal(t, 10, res.Count)
	assert.Equal(t, src.bars[20].Time, res.From)
	assert.Equal(t, src.bars[29].Time, res.To)
}

func TestBarsUseCaseRangeAndLimits(t *testing.T) {
	src := &stubBarSource{bars: testutil.Flat(testutil.Epoch, time.Hour, 50, 100, 1)}
	uc := NewBarsUseCase(src)
	ctx := context.Background()

	res, err := uc.GetBars(ctx, GetBarsParams{Symbol: "ETHUSDT", Interval: domrepo.TF1h, From: testutil.Epoch, To: testutil.Epoch.Add(72 * time.Hour), Limit: 5})
	require.NoError(t, err)
	assert.True(t, src.ranged)
	assert.Equal(t, 5, res.Count)
	assert.Equal(t, testutil.Epoch, res.From)

	_, err = uc.GetBars(ctx, GetBarsParams{Symbol: "ETHUSDT", Interval: domrepo.TF1h, From: testutil.Epoch.Add(time.Hour), To: testutil.Epoch})
	assert.Error(t, err)
	_, err = uc.GetBars(ctx, GetBarsParams{Interval: domrepo.TF1h})
	assert.Error(t, err)
	_, err = uc.GetBars(ctx, GetBarsParams{Symbol: "ETHUSDT", Interval: "7m"})
	assert.Error(t, err)

	_, err = uc.GetBars(ctx, GetBarsParams{Symbol: "ETHUSDT", Interval: domrepo.TF1h, Limit: 1 << 20})
	require.NoError(t, err)
	assert.Equal(t, MaxBarsLimit, src.latestN)

	src.err = errors.New("clickhouse down")
	_, err = uc.GetBars(ctx, GetBarsParams{Symbol: "ETHUSDT", Interval: domrepo.TF1h})
	assert.ErrorContains(t, err, "clickhouse down")
}
