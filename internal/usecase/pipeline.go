package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"MarketCore/internal/domain/models"
	domrepo "MarketCore/internal/domain/repository"
	domsvc "MarketCore/internal/domain/service"
	"MarketCore/internal/services/features"
	"MarketCore/internal/services/session"
	"MarketCore/internal/services/structure"
	"MarketCore/pkg/cache"
	applogger "MarketCore/pkg/logger"
)

// Bar processing paths.
const (
	PathSlow = "slow"
	PathFast = "fast"
)

// PipelineConfig tunes the per-symbol analysis loop.
type PipelineConfig struct {
	Interval      domrepo.Interval
	History       int
	FastPathRate  float64
	FastPathBurst int
	CacheTTL      time.Duration
	MTFDisabled   bool
	MTFIntervals  []domrepo.Interval
	MacroWeight   int
	BaseWeight    int
}

// DefaultPipelineConfig returns 15m bars, a 1000-bar window, one fast update per
// second and 1h/4h confluence.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Interval:      domrepo.TF15m,
		History:       1000,
		FastPathRate:  1,
		FastPathBurst: 1,
		CacheTTL:      10 * time.Minute,
		MTFIntervals:  []domrepo.Interval{domrepo.TF1h, domrepo.TF4h},
		MacroWeight:   3,
		BaseWeight:    2,
	}
}

// symbolState is the bar window and latest snapshot of one symbol.
type symbolState struct {
	mu       sync.RWMutex
	bars     []models.Bar
	snapshot *models.AnalysisSnapshot
	limiter  *rate.Limiter
}

// Pipeline runs the analysis components over each symbol's bar stream.
// Work for one symbol is serialized through the session registry lock.
type Pipeline struct {
	cfg       PipelineConfig
	regime    domsvc.RegimeClassifier
	structure *structure.Engine
	scorer    domsvc.ConfluenceScorer
	projector domsvc.DirectionalProjector
	sessions  *session.Registry
	cache     cache.Service
	publisher domrepo.AnalysisPublisher
	metrics   domrepo.Metrics
	log       *applogger.Logger
	now       func() time.Time

	mu      sync.Mutex
	symbols map[string]*symbolState
}

// PipelineDeps are the collaborators of a Pipeline. Projector, Cache, Publisher
// and Metrics are optional.
type PipelineDeps struct {
	Regime    domsvc.RegimeClassifier
	Structure *structure.Engine
	Scorer    domsvc.ConfluenceScorer
	Projector domsvc.DirectionalProjector
	Sessions  *session.Registry
	Cache     cache.Service
	Publisher domrepo.AnalysisPublisher
	Metrics   domrepo.Metrics
	Log       *applogger.Logger
}

func NewPipeline(cfg PipelineConfig, deps PipelineDeps) *Pipeline {
	def := DefaultPipelineConfig()
	if !domrepo.IsValidInterval(cfg.Interval) {
		cfg.Interval = def.Interval
	}
	if cfg.History <= 0 {
		cfg.History = def.History
	}
	if cfg.FastPathRate <= 0 {
		cfg.FastPathRate = def.FastPathRate
	}
	if cfg.FastPathBurst <= 0 {
		cfg.FastPathBurst = def.FastPathBurst
	}
	p := &Pipeline{
		cfg:       cfg,
		regime:    deps.Regime,
		structure: deps.Structure,
		scorer:    deps.Scorer,
		projector: deps.Projector,
		sessions:  deps.Sessions,
		cache:     deps.Cache,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		log:       deps.Log,
		now:       time.Now,
		symbols:   make(map[string]*symbolState),
	}
	if p.metrics == nil {
		p.metrics = nopMetrics{}
	}
	if p.log == nil {
		p.log = applogger.Nop()
	}
	return p
}

// Interval is the base bar interval.
func (p *Pipeline) Interval() domrepo.Interval { return p.cfg.Interval }

// OnBar routes a closed bar to the slow path and a forming bar to the fast path.
func (p *Pipeline) OnBar(ctx context.Context, symbol string, bar models.Bar, closed bool) (*models.AnalysisSnapshot, error) {
	symbol = normalize(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("on bar: %w", models.ErrUnknownSymbol)
	}
	var out *models.AnalysisSnapshot
	err := p.sessions.With(ctx, symbol, func(tr *session.Tracker) error {
		var err error
		if closed {
			out, err = p.slowPath(ctx, tr, symbol, bar)
		} else {
			out, err = p.fastPath(ctx, tr, symbol, bar)
		}
		return err
	})
	return out, err
}

func (p *Pipeline) slowPath(ctx context.Context, tr *session.Tracker, symbol string, bar models.Bar) (*models.AnalysisSnapshot, error) {
	start := time.Now()
	sess, err := tr.Update(ctx, bar, true)
	if err != nil {
		return nil, err
	}

	st := p.state(symbol)
	st.mu.Lock()
	st.bars = append(st.bars, bar)
	if over := len(st.bars) - p.cfg.History; over > 0 {
		st.bars = append(st.bars[:0:0], st.bars[over:]...)
	}
	window := append([]models.Bar(nil), st.bars...)
	st.mu.Unlock()

	snap := p.analyze(symbol, window)
	snap.Session = &sess

	st.mu.Lock()
	st.snapshot = snap
	st.mu.Unlock()

	p.metrics.RecordBar(symbol, PathSlow)
	p.metrics.RecordLastPrice(symbol, bar.Close)
	p.metrics.RecordActiveZones(symbol, snap.Zones.Count())
	p.metrics.RecordLatency("pipeline_slow_path", time.Since(start).Seconds())

	p.store(ctx, snap)
	if p.publisher != nil {
		ev := &models.AnalysisEvent{Emitted: p.now().UTC(), Snapshot: *snap}
		if err := p.publisher.Publish(ctx, ev); err != nil {
			p.metrics.RecordError("analysis_publish")
			p.log.Warn("analysis publish failed", applogger.String("symbol", symbol), applogger.Error(err))
		}
	}
	return snap, nil
}

// fastPath refreshes only the session view of the cached snapshot. Ticks above
// the per-symbol rate are dropped.
func (p *Pipeline) fastPath(ctx context.Context, tr *session.Tracker, symbol string, bar models.Bar) (*models.AnalysisSnapshot, error) {
	st := p.state(symbol)
	if !st.limiter.Allow() {
		p.metrics.RecordRejected(symbol, "throttled")
		return p.current(st), nil
	}
	sess, err := tr.Update(ctx, bar, false)
	if err != nil {
		return nil, err
	}
	p.metrics.RecordBar(symbol, PathFast)
	p.metrics.RecordLastPrice(symbol, bar.Close)

	st.mu.Lock()
	if st.snapshot == nil {
		st.mu.Unlock()
		return nil, nil
	}
	next := *st.snapshot
	next.Session = &sess
	st.snapshot = &next
	st.mu.Unlock()

	p.store(ctx, &next)
	return &next, nil
}

// analyze runs the pure components over window (closed bars, oldest first).
func (p *Pipeline) analyze(symbol string, window []models.Bar) *models.AnalysisSnapshot {
	last := window[len(window)-1]
	points := p.regime.Classify(window)
	a := p.structure.Analyze(window, p.cfg.Interval)

	return &models.AnalysisSnapshot{
		Symbol:    symbol,
		Interval:  p.cfg.Interval.String(),
		Time:      last.Time,
		LastBar:   last,
		Regime:    points[len(points)-1],
		Levels:    p.consolidate(window, a.Levels),
		Zones:     a.Zones,
		Momentum:  features.Momentum(window),
		BarsInUse: len(window),
	}
}

// consolidate merges higher-timeframe levels built from the resampled window:
// the intervals are first merged with each other, then into the base levels.
func (p *Pipeline) consolidate(window []models.Bar, base models.LevelCatalog) models.LevelCatalog {
	if p.cfg.MTFDisabled {
		return base
	}
	var macro []models.LevelCatalog
	for _, iv := range p.cfg.MTFIntervals {
		if iv.Duration() <= p.cfg.Interval.Duration() {
			continue
		}
		bars := features.Resample(window, iv.Duration(), false)
		macro = append(macro, p.structure.Levels(bars, iv))
	}
	switch len(macro) {
	case 0:
		return base
	case 1:
		return structure.ConsolidateMTF(base, macro[0], p.cfg.BaseWeight)
	default:
		m := structure.ConsolidateMTF(macro[0], macro[1], p.cfg.MacroWeight)
		return structure.ConsolidateMTF(base, m, p.cfg.BaseWeight)
	}
}

// Bootstrap seeds symbol's window and session state from history without
// replaying it bar by bar. Nothing is published.
func (p *Pipeline) Bootstrap(ctx context.Context, symbol string, history []models.Bar) error {
	symbol = normalize(symbol)
	bars := models.CleanBars(history)
	if len(bars) == 0 {
		return fmt.Errorf("bootstrap %s: %w", symbol, models.ErrInsufficientHistory)
	}
	if len(bars) > p.cfg.History {
		bars = bars[len(bars)-p.cfg.History:]
	}
	return p.sessions.With(ctx, symbol, func(tr *session.Tracker) error {
		now := bars[len(bars)-1].Time
		if err := tr.Bootstrap(ctx, bars, now); err != nil {
			return err
		}
		snap := p.analyze(symbol, bars)
		sess := tr.Snapshot(now)
		snap.Session = &sess

		st := p.state(symbol)
		st.mu.Lock()
		st.bars = bars
		st.snapshot = snap
		st.mu.Unlock()

		p.store(ctx, snap)
		p.log.Info("pipeline bootstrap complete",
			applogger.String("symbol", symbol),
			applogger.Int("bars", len(bars)),
			applogger.String("regime", string(snap.Regime.Label)),
		)
		return nil
	})
}

// BootstrapFrom loads the latest history bars from src and bootstraps symbol.
func (p *Pipeline) BootstrapFrom(ctx context.Context, src domrepo.BarSource, symbol string, n int) error {
	bars, err := src.GetLatestNBars(ctx, normalize(symbol), n, p.cfg.Interval)
	if err != nil {
		return fmt.Errorf("load history %s: %w", symbol, err)
	}
	return p.Bootstrap(ctx, symbol, bars)
}

// Snapshot returns the latest analysis of symbol, falling back to the shared cache.
func (p *Pipeline) Snapshot(ctx context.Context, symbol string) (*models.AnalysisSnapshot, error) {
	symbol = normalize(symbol)
	if st := p.lookup(symbol); st != nil {
		if snap := p.current(st); snap != nil {
			return snap, nil
		}
	}
	if p.cache != nil {
		var snap models.AnalysisSnapshot
		if err := p.cache.Get(ctx, cacheKey(symbol), &snap); err == nil {
			return &snap, nil
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			p.log.Warn("analysis cache read failed", applogger.String("symbol", symbol), applogger.Error(err))
		}
	}
	return nil, fmt.Errorf("snapshot %s: %w", symbol, models.ErrUnknownSymbol)
}

// Regime returns the last limit regime points of symbol's window.
func (p *Pipeline) Regime(_ context.Context, symbol string, limit int) ([]models.RegimePoint, error) {
	st := p.lookup(normalize(symbol))
	if st == nil {
		return nil, fmt.Errorf("regime %s: %w", symbol, models.ErrUnknownSymbol)
	}
	st.mu.RLock()
	window := append([]models.Bar(nil), st.bars...)
	st.mu.RUnlock()
	if len(window) == 0 {
		return nil, fmt.Errorf("regime %s: %w", symbol, models.ErrInsufficientHistory)
	}
	points := p.regime.Classify(window)
	if limit > 0 && len(points) > limit {
		points = points[len(points)-limit:]
	}
	return points, nil
}

// Session renders symbol's live session state at the current wall-clock time.
func (p *Pipeline) Session(ctx context.Context, symbol string) (models.SessionSnapshot, error) {
	var snap models.SessionSnapshot
	err := p.sessions.With(ctx, normalize(symbol), func(tr *session.Tracker) error {
		snap = tr.Snapshot(p.now())
		return nil
	})
	return snap, err
}

// Evaluate scores a candidate against symbol's latest analysis. When the
// candidate carries no projection and project is set, the projector is asked for one.
func (p *Pipeline) Evaluate(ctx context.Context, symbol string, c models.Candidate, proj *models.Projection, project bool) (models.ConfluenceResult, error) {
	symbol = normalize(symbol)
	st := p.lookup(symbol)
	if st == nil {
		return models.ConfluenceResult{}, fmt.Errorf("evaluate %s: %w", symbol, models.ErrUnknownSymbol)
	}
	st.mu.RLock()
	snap := st.snapshot
	window := append([]models.Bar(nil), st.bars...)
	st.mu.RUnlock()
	if snap == nil {
		return models.ConfluenceResult{}, fmt.Errorf("evaluate %s: %w", symbol, models.ErrInsufficientHistory)
	}

	if proj == nil && project && p.projector != nil {
		var err error
		proj, err = p.projector.Project(ctx, symbol, window)
		if err != nil {
			p.metrics.RecordError("projection")
			p.log.Warn("projection unavailable", applogger.String("symbol", symbol), applogger.Error(err))
			proj = nil
		}
	}

	in := models.ConfluenceInput{
		Bars:       window,
		Regime:     snap.Regime.Label,
		Momentum:   snap.Momentum,
		Zones:      snap.Zones,
		ATR:        snap.Levels.ATR,
		Candidate:  c,
		Projection: proj,
		Session:    snap.Session,
	}
	res := p.scorer.Score(in)
	p.metrics.RecordScore(symbol, res.Score)
	return res, nil
}

// Symbols lists the symbols with an analysis window, sorted.
func (p *Pipeline) Symbols() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.symbols))
	for s := range p.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (p *Pipeline) state(symbol string) *symbolState {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.symbols[symbol]
	if !ok {
		st = &symbolState{limiter: rate.NewLimiter(rate.Limit(p.cfg.FastPathRate), p.cfg.FastPathBurst)}
		p.symbols[symbol] = st
	}
	return st
}

func (p *Pipeline) lookup(symbol string) *symbolState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.symbols[symbol]
}

func (p *Pipeline) current(st *symbolState) *models.AnalysisSnapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.snapshot == nil {
		return nil
	}
	snap := *st.snapshot
	return &snap
}

func (p *Pipeline) store(ctx context.Context, snap *models.AnalysisSnapshot) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Set(ctx, cacheKey(snap.Symbol), snap, p.cfg.CacheTTL); err != nil {
		p.metrics.RecordError("analysis_cache")
		p.log.Warn("analysis cache write failed", applogger.String("symbol", snap.Symbol), applogger.Error(err))
	}
}

func cacheKey(symbol string) string {
	return cache.GenerateKey("analysis", symbol)
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

type nopMetrics struct{}

func (nopMetrics) RecordBar(string, string)        {}
func (nopMetrics) RecordRejected(string, string)   {}
func (nopMetrics) RecordError(string)              {}
func (nopMetrics) RecordLastPrice(string, float64) {}
func (nopMetrics) RecordLatency(string, float64)   {}
func (nopMetrics) RecordActiveZones(string, int)   {}
func (nopMetrics) RecordScore(string, int)         {}
