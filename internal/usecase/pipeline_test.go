package usecase

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketCore/internal/domain/models"
	domrepo "MarketCore/internal/domain/repository"
	"MarketCore/internal/repository"
	"MarketCore/internal/services/confluence"
	"MarketCore/internal/services/regime"
	"MarketCore/internal/services/session"
	"MarketCore/internal/services/structure"
	"MarketCore/internal/testutil"
	"MarketCore/pkg/cache"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.AnalysisEvent
}

func (r *recordingPublisher) Publish(_ context.Context, ev *models.AnalysisEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *ev)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func (r *recordingPublisher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type fixedProjector struct {
	proj  *models.Projection
	err   error
	calls int
}

func (f *fixedProjector) Project(context.Context, string, []models.Bar) (*models.Projection, error) {
	f.calls++
	return f.proj, f.err
}

// trendWithBlock is 250 15m bars: a steady advance, a bearish candle followed by
// a bullish expansion that breaks structure, a continuation and a pullback whose
// last bar wicks exactly to the block top (1109.7). That bar closes at
// 2024-01-10 14:15 UTC inside the NY killzone.
func trendWithBlock() []models.Bar {
	step := 15 * time.Minute
	bars := testutil.FromCloses(testutil.Epoch, step, testutil.Linear(220, 1000, 0.5), 0.2)
	bars = append(bars,
		models.Bar{Open: 1109.5, High: 1109.7, Low: 1108.8, Close: 1109.0, Volume: 100},
		models.Bar{Open: 1109.0, High: 1112.2, Low: 1108.9, Close: 1112.0, Volume: 100},
	)
	tail := testutil.Concat(
		[]float64{1112.0},
		testutil.Linear(18, 1112.5, 0.5),
		testutil.Linear(10, 1119.9, -1.1),
	)
	bars = append(bars, testutil.FromCloses(testutil.Epoch, step, tail, 0.2)[1:]...)
	bars = testutil.Retime(bars, testutil.Epoch, step)
	bars[len(bars)-1].Low = 1109.7
	return bars
}

type fixture struct {
	pipeline  *Pipeline
	publisher *recordingPublisher
	cache     *cache.MemoryCache
	projector *fixedProjector
}

func newFixture(t *testing.T, cfg PipelineConfig) *fixture {
	t.Helper()
	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })
	pub := &recordingPublisher{}
	proj := &fixedProjector{proj: &models.Projection{Direction: "bullish", Probability: 72}}
	p := NewPipeline(cfg, PipelineDeps{
		Regime:    regime.New(regime.DefaultConfig()),
		Structure: structure.New(structure.DefaultConfig()),
		Scorer:    confluence.New(confluence.DefaultConfig()),
		Projector: proj,
		Sessions:  session.NewRegistry(repository.NewMemorySessionStore(), session.MustClock("America/Santiago"), nil, nil),
		Cache:     mc,
		Publisher: pub,
	})
	return &fixture{pipeline: p, publisher: pub, cache: mc, projector: proj}
}

func TestTrendWithBlockSeries(t *testing.T) {
	bars := trendWithBlock()
	require.Len(t, bars, 250)
	assert.Equal(t, time.Date(2024, 1, 10, 14, 15, 0, 0, time.UTC), bars[249].Time)
	assert.InDelta(t, 1110.0, bars[249].Close, 1e-9)
	assert.InDelta(t, 1109.7, bars[249].Low, 1e-9)
	assert.InDelta(t, 1121.0, bars[239].Close, 1e-9)
	assert.Equal(t, bars[220].Close, bars[221].Open)
}

func TestPipelineEndToEnd(t *testing.T) {
	f := newFixture(t, DefaultPipelineConfig())
	ctx := context.Background()
	bars := trendWithBlock()

	require.NoError(t, f.pipeline.Bootstrap(ctx, "btcusdt", bars[:249]))
	assert.Zero(t, f.publisher.count(), "bootstrap does not publish")

	snap, err := f.pipeline.OnBar(ctx, "BTCUSDT", bars[249], true)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 1, f.publisher.count())

	assert.Equal(t, "BTCUSDT", snap.Symbol)
	assert.Equal(t, 250, snap.BarsInUse)
	assert.Equal(t, models.RegimeMarkup, snap.Regime.Label)
	require.NotEmpty(t, snap.Zones.BullishOB)
	ob := snap.Zones.BullishOB[0]
	assert.InDelta(t, 1109.7, ob.Top, 1e-9)
	assert.InDelta(t, 1108.8, ob.Bottom, 1e-9)
	require.NotNil(t, snap.Session)
	assert.Equal(t, models.ActiveNYKillzone, snap.Session.CurrentSession)

	res, err := f.pipeline.Evaluate(ctx, "BTCUSDT", models.Candidate{
		Direction: models.DirectionLong,
		Trigger:   "FVG retest",
	}, nil, false)
	require.NoError(t, err)

	byFactor := map[string]models.ChecklistItem{}
	for _, it := range res.Checklist {
		byFactor[it.Factor] = it
	}
	assert.Equal(t, confluence.WeightRegime, byFactor["Regime"].Points)
	assert.Equal(t, confluence.WeightStructure, byFactor["Structure"].Points)
	assert.Equal(t, 45, byFactor["Regime"].Points+byFactor["Structure"].Points)
	assert.GreaterOrEqual(t, byFactor["Session/liquidity"].Points, 7, "NY killzone")
	assert.GreaterOrEqual(t, res.Score, 50)
	assert.Contains(t, []models.Conviction{models.ConvictionSolid, models.ConvictionHigh}, res.Conviction)
	assert.Zero(t, f.projector.calls)
}

func TestPipelineEvaluateAsksProjector(t *testing.T) {
	f := newFixture(t, DefaultPipelineConfig())
	ctx := context.Background()
	require.NoError(t, f.pipeline.Bootstrap(ctx, "BTCUSDT", trendWithBlock()))

	res, err := f.pipeline.Evaluate(ctx, "BTCUSDT", models.Candidate{Direction: models.DirectionLong}, nil, true)
	require.NoError(t, err)
	assert.Equal(t, 1, f.projector.calls)
	assert.Equal(t, confluence.WeightProjection, res.Checklist[len(res.Checklist)-1].Points)

	f.projector.err = errors.New("upstream down")
	res, err = f.pipeline.Evaluate(ctx, "BTCUSDT", models.Candidate{Direction: models.DirectionLong}, nil, true)
	require.NoError(t, err, "projection failures degrade to no projection")
	assert.Zero(t, res.Checklist[len(res.Checklist)-1].Points)

	supplied := &models.Projection{Direction: "LONG", Probability: 60}
	_, err = f.pipeline.Evaluate(ctx, "BTCUSDT", models.Candidate{Direction: models.DirectionLong}, supplied, true)
	require.NoError(t, err)
	assert.Equal(t, 2, f.projector.calls, "a supplied projection is not re-fetched")
}

func TestPipelineUnknownSymbol(t *testing.T) {
	f := newFixture(t, DefaultPipelineConfig())
	ctx := context.Background()

	_, err := f.pipeline.Evaluate(ctx, "NOPE", models.Candidate{Direction: models.DirectionLong}, nil, false)
	assert.ErrorIs(t, err, models.ErrUnknownSymbol)
	_, err = f.pipeline.Snapshot(ctx, "NOPE")
	assert.ErrorIs(t, err, models.ErrUnknownSymbol)
	_, err = f.pipeline.Regime(ctx, "NOPE", 10)
	assert.ErrorIs(t, err, models.ErrUnknownSymbol)
	_, err = f.pipeline.OnBar(ctx, "  ", models.Bar{}, true)
	assert.ErrorIs(t, err, models.ErrUnknownSymbol)
}

func TestPipelineRejectsOutOfOrderAndMalformedBars(t *testing.T) {
	f := newFixture(t, DefaultPipelineConfig())
	ctx := context.Background()
	bars := trendWithBlock()
	require.NoError(t, f.pipeline.Bootstrap(ctx, "BTCUSDT", bars))

	_, err := f.pipeline.OnBar(ctx, "BTCUSDT", bars[100], true)
	assert.ErrorIs(t, err, models.ErrOutOfOrderBar)

	bad := bars[249]
	bad.Time = bad.Time.Add(15 * time.Minute)
	bad.Close = math.NaN()
	_, err = f.pipeline.OnBar(ctx, "BTCUSDT", bad, true)
	assert.ErrorIs(t, err, models.ErrMalformedBar)

	snap, err := f.pipeline.Snapshot(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 250, snap.BarsInUse)
	assert.Zero(t, f.publisher.count())
}

func TestPipelineFastPathThrottlesAndKeepsAnalysis(t *testing.T) {
	cfg := DefaultPipelineConfig()
	cfg.FastPathRate = 0.001
	cfg.FastPathBurst = 1
	f := newFixture(t, cfg)
	ctx := context.Background()
	bars := trendWithBlock()
	require.NoError(t, f.pipeline.Bootstrap(ctx, "BTCUSDT", bars))

	tick := bars[249]
	tick.Time = tick.Time.Add(15 * time.Minute)
	tick.Open, tick.Close = tick.Close, tick.Close+0.5
	tick.High, tick.Low = tick.Close+0.1, tick.Open-0.1

	first, err := f.pipeline.OnBar(ctx, "BTCUSDT", tick, false)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, bars[249].Time, first.LastBar.Time, "forming ticks leave the slow analysis untouched")
	assert.Equal(t, 250, first.BarsInUse)

	tick.Close += 0.1
	second, err := f.pipeline.OnBar(ctx, "BTCUSDT", tick, false)
	require.NoError(t, err)
	assert.Equal(t, first.Session, second.Session, "throttled ticks return the current snapshot")
	assert.Zero(t, f.publisher.count())
}

func TestPipelineWindowIsBounded(t *testing.T) {
	cfg := DefaultPipelineConfig()
	cfg.History = 240
	cfg.MTFDisabled = true
	f := newFixture(t, cfg)
	ctx := context.Background()
	bars := trendWithBlock()

	require.NoError(t, f.pipeline.Bootstrap(ctx, "BTCUSDT", bars[:245]))
	for _, b := range bars[245:] {
		_, err := f.pipeline.OnBar(ctx, "BTCUSDT", b, true)
		require.NoError(t, err)
	}
	snap, err := f.pipeline.Snapshot(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 240, snap.BarsInUse)
	assert.Equal(t, 5, f.publisher.count())

	points, err := f.pipeline.Regime(ctx, "BTCUSDT", 20)
	require.NoError(t, err)
	require.Len(t, points, 20)
	assert.Equal(t, bars[249].Time, points[19].Time)
}

func TestPipelineSnapshotFallsBackToCache(t *testing.T) {
	f := newFixture(t, DefaultPipelineConfig())
	ctx := context.Background()
	require.NoError(t, f.pipeline.Bootstrap(ctx, "ETHUSDT", trendWithBlock()))

	other := NewPipeline(DefaultPipelineConfig(), PipelineDeps{
		Regime:    regime.New(regime.DefaultConfig()),
		Structure: structure.New(structure.DefaultConfig()),
		Scorer:    confluence.New(confluence.DefaultConfig()),
		Sessions:  session.NewRegistry(repository.NewMemorySessionStore(), session.MustClock("America/Santiago"), nil, nil),
		Cache:     f.cache,
	})
	snap, err := other.Snapshot(ctx, "ethusdt")
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", snap.Symbol)
	assert.Equal(t, models.RegimeMarkup, snap.Regime.Label)
	assert.Empty(t, other.Symbols())
	assert.Equal(t, []string{"ETHUSDT"}, f.pipeline.Symbols())
}

func TestPipelineMultiTimeframeLevels(t *testing.T) {
	bars := trendWithBlock()
	on := newFixture(t, DefaultPipelineConfig())
	cfg := DefaultPipelineConfig()
	cfg.MTFDisabled = true
	off := newFixture(t, cfg)
	ctx := context.Background()

	require.NoError(t, on.pipeline.Bootstrap(ctx, "BTCUSDT", bars))
	require.NoError(t, off.pipeline.Bootstrap(ctx, "BTCUSDT", bars))
	a, err := on.pipeline.Snapshot(ctx, "BTCUSDT")
	require.NoError(t, err)
	b, err := off.pipeline.Snapshot(ctx, "BTCUSDT")
	require.NoError(t, err)

	assert.Equal(t, b.Zones, a.Zones)
	assert.Equal(t, b.Levels.ATR, a.Levels.ATR)
	assert.GreaterOrEqual(t, len(a.Levels.Supports)+len(a.Levels.Resistances), len(b.Levels.Supports)+len(b.Levels.Resistances))
}

func TestPipelineIntervalDefaults(t *testing.T) {
	p := NewPipeline(PipelineConfig{}, PipelineDeps{})
	assert.Equal(t, domrepo.TF15m, p.Interval())
	assert.Equal(t, 1000, p.cfg.History)
}
