package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"MarketCore/internal/domain/models"
	"MarketCore/internal/domain/repository"
	domsvc "MarketCore/internal/domain/service"
	"MarketCore/pkg/logger"
)

// Tracker is the session state machine for one symbol. It is not safe for
// concurrent use; the Registry serializes access per symbol.
//
// committed reflects every closed bar applied so far and is what gets persisted.
// live is committed plus the forming bar, if any.
type Tracker struct {
	symbol    string
	store     repository.SessionStore
	clock     *Clock
	log       *logger.Logger
	metrics   repository.Metrics
	committed models.SessionState
	live      models.SessionState
	lastClose time.Time
	lastTick  time.Time
	pending   bool
}

var _ domsvc.SessionTracker = (*Tracker)(nil)

// NewTracker loads the persisted state for symbol. Missing or corrupt state
// starts the tracker cold; any other load failure is returned so the caller
// can retry without overwriting the durable record.
func NewTracker(ctx context.Context, symbol string, store repository.SessionStore, clock *Clock, log *logger.Logger, metrics repository.Metrics) (*Tracker, error) {
	if log == nil {
		log = logger.Nop()
	}
	t := &Tracker{
		symbol:  strings.ToUpper(symbol),
		store:   store,
		clock:   clock,
		log:     log,
		metrics: metrics,
	}
	st, err := store.Load(ctx, t.symbol)
	switch {
	case err == nil:
		t.log.Info("session state loaded", logger.String("symbol", t.symbol), logger.String("trading_day", st.TradingDay))
	case errors.Is(err, models.ErrStateNotFound):
		st = models.NewSessionState("")
	case errors.Is(err, models.ErrCorruptState):
		t.log.Warn("session state corrupt, starting cold", logger.String("symbol", t.symbol), logger.Error(err))
		t.recordError("session_corrupt")
		st = models.NewSessionState("")
	default:
		t.recordError("session_load")
		return nil, fmt.Errorf("load session state %s: %w", t.symbol, err)
	}
	t.committed = st
	t.live = st.Clone()
	t.lastClose = st.LastBar
	t.lastTick = st.LastBar
	return t, nil
}

// Symbol returns the tracked symbol.
func (t *Tracker) Symbol() string { return t.symbol }

// Update applies a bar. Closed bars advance the committed state and are
// persisted; forming bars only refresh the live view. Sweeps compare the bar
// with the committed state as of the previous closed bar.
func (t *Tracker) Update(ctx context.Context, bar models.Bar, closed bool) (models.SessionSnapshot, error) {
	if !bar.Finite() || bar.Time.IsZero() {
		t.reject(bar, "malformed")
		return models.SessionSnapshot{}, fmt.Errorf("session update %s: %w", t.symbol, models.ErrMalformedBar)
	}
	if (!t.lastClose.IsZero() && !bar.Time.After(t.lastClose)) || Day(bar.Time) < t.committed.TradingDay {
		t.reject(bar, "out_of_order")
		return models.SessionSnapshot{}, fmt.Errorf("session update %s at %s: %w", t.symbol, bar.Time.UTC().Format(time.RFC3339), models.ErrOutOfOrderBar)
	}

	next := apply(t.committed, bar, t.clock)
	if !closed {
		t.live = next
		t.lastTick = bar.Time
		return t.Snapshot(bar.Time), nil
	}

	t.committed = next
	t.live = next.Clone()
	t.lastClose = bar.Time
	t.lastTick = bar.Time
	t.persist(ctx)
	return t.Snapshot(bar.Time), nil
}

// apply returns the state after bar, leaving prior untouched.
func apply(prior models.SessionState, bar models.Bar, clock *Clock) models.SessionState {
	st := prior.Clone()
	if day := Day(bar.Time); day != st.TradingDay {
		st = rotate(st, day)
	}
	st.LastBar = bar.Time.UTC()
	before := st.Clone()
	extend(&st, bar, clock)

	prev := before.Sessions()
	for i, s := range st.Sessions() {
		s.SweptHigh = prev[i].High != nil && bar.High > *prev[i].High
		s.SweptLow = prev[i].Low != nil && bar.Low < *prev[i].Low
	}
	st.PDHSwept = before.PDH != nil && bar.High > *before.PDH
	st.PDLSwept = before.PDL != nil && bar.Low < *before.PDL
	return st
}

// rotate turns the finished day's session extremes into PDH/PDL and resets the sessions.
func rotate(old models.SessionState, day string) models.SessionState {
	st := models.NewSessionState(day)
	var hi, lo *float64
	for _, s := range old.Sessions() {
		if s.High != nil && (hi == nil || *s.High > *hi) {
			hi = models.Float(*s.High)
		}
		if s.Low != nil && (lo == nil || *s.Low < *lo) {
			lo = models.Float(*s.Low)
		}
	}
	st.PDH, st.PDL = hi, lo
	return st
}

// Bootstrap rebuilds today's sessions and yesterday's PDH/PDL from history in
// one pass. Yesterday is folded through the same session windows and rotation
// as the live path, so both agree on PDH/PDL.
func (t *Tracker) Bootstrap(ctx context.Context, history []models.Bar, now time.Time) error {
	bars := models.CleanBars(history)
	if len(bars) == 0 {
		return nil
	}
	today := Day(now)
	yesterday := Day(now.UTC().AddDate(0, 0, -1))

	prev := models.NewSessionState(yesterday)
	var current []models.Bar
	for _, b := range bars {
		switch Day(b.Time) {
		case yesterday:
			extend(&prev, b, t.clock)
		case today:
			current = append(current, b)
		}
	}
	st := rotate(prev, today)
	for _, b := range current {
		extend(&st, b, t.clock)
	}
	st.LastBar = bars[len(bars)-1].Time.UTC()

	t.committed = st
	t.live = st.Clone()
	t.lastClose = st.LastBar
	t.lastTick = t.lastClose
	t.persist(ctx)
	t.log.Info("session bootstrap complete",
		logger.String("symbol", t.symbol),
		logger.String("trading_day", today),
		logger.Int("bars", len(bars)),
	)
	return nil
}

// extend folds b into every session window it falls in.
func extend(st *models.SessionState, b models.Bar, clock *Clock) {
	if clock.InAsia(b.Time) {
		st.Asia.Extend(b.High, b.Low)
	}
	if clock.InLondon(b.Time) {
		st.London.Extend(b.High, b.Low)
	}
	if clock.InNewYork(b.Time) {
		st.NY.Extend(b.High, b.Low)
	}
}

// State returns a copy of the live state.
func (t *Tracker) State() models.SessionState { return t.live.Clone() }

// Pending reports whether the last closed-bar write failed and awaits retry.
func (t *Tracker) Pending() bool { return t.pending }

// persist writes the committed state. Failures keep serving from memory and are
// retried with the next closed bar.
func (t *Tracker) persist(ctx context.Context) {
	if err := t.store.Save(ctx, t.symbol, t.committed); err != nil {
		t.pending = true
		t.log.Warn("session state persist failed",
			logger.String("symbol", t.symbol),
			logger.String("trading_day", t.committed.TradingDay),
			logger.Error(err),
		)
		t.recordError("session_persist")
		return
	}
	t.pending = false
}

func (t *Tracker) reject(bar models.Bar, reason string) {
	t.log.Warn("session bar rejected",
		logger.String("symbol", t.symbol),
		logger.Time("bar_time", bar.Time),
		logger.String("reason", reason),
	)
	if t.metrics != nil {
		t.metrics.RecordRejected(t.symbol, reason)
	}
}

func (t *Tracker) recordError(kind string) {
	if t.metrics != nil {
		t.metrics.RecordError(kind)
	}
}
