package server

import (
	"context"
	"errors"
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
	"MarketCore/internal/usecase"
)

type stubBars struct {
	mu    sync.Mutex
	calls map[string]int
	fail  string
}

func (s *stubBars) GetBars(context.Context, string, time.Time, time.Time, domrepo.Interval) ([]models.Bar, error) {
	return nil, errors.New("not used")
}

func (s *stubBars) GetLatestNBars(_ context.Context, symbol string, n int, _ domrepo.Interval) ([]models.Bar, error) {
	s.mu.Lock()
	s.calls[symbol]++
	s.mu.Unlock()
	if symbol == s.fail {
		return nil, errors.New("store unavailable")
	}
	bars := testutil.FromCloses(testutil.Epoch, 15*time.Minute, testutil.Linear(260, 1000, 0.5), 0.2)
	if n < len(bars) {
		bars = bars[len(bars)-n:]
	}
	return bars, nil
}

func newPipeline() *usecase.Pipeline {
	return usecase.NewPipeline(usecase.DefaultPipelineConfig(), usecase.PipelineDeps{
		Regime:    regime.New(regime.DefaultConfig()),
		Structure: structure.New(structure.DefaultConfig()),
		Scorer:    confluence.New(confluence.DefaultConfig()),
		Sessions:  session.NewRegistry(repository.NewMemorySessionStore(), session.MustClock("America/Santiago"), nil, nil),
	})
}

func TestAppBootstrapsSymbolsBeforeServing(t *testing.T) {
	src := &stubBars{calls: map[string]int{}, fail: "XRPUSDT"}
	p := newPipeline()
	app := New(Options{
		Symbols:   []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "ADAUSDT", "BNBUSDT", "XRPUSDT"},
		Bootstrap: 300,
		Pipeline:  p,
		Bars:      src,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	require.Eventually(t, func() bool { return len(p.Symbols()) == 5 }, 10*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	src.mu.Lock()
	assert.Len(t, src.calls, 6)
	src.mu.Unlock()
	assert.Equal(t, []string{"ADAUSDT", "BNBUSDT", "BTCUSDT", "ETHUSDT", "SOLUSDT"}, p.Symbols())

	snap, err := p.Snapshot(context.Background(), "ethusdt")
	require.NoError(t, err)
	assert.Equal(t, 260, snap.BarsInUse)
}

func TestAppWithoutBarSourceSkipsBootstrap(t *testing.T) {
	p := newPipeline()
	app := New(Options{Symbols: []string{"BTCUSDT"}, Bootstrap: 100, Pipeline: p})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.NoError(t, app.Run(ctx))
	assert.Empty(t, p.Symbols())
}
