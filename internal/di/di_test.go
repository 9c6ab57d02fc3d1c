package di

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	repo "MarketCore/internal/repository"
	"MarketCore/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Environment = "test"
	cfg.Log.Level = "error"
	cfg.Session.Store = "memory"
	cfg.Server.Port = 0
	return cfg
}

func TestInitializeAppWithoutExternalServices(t *testing.T) {
	app, cleanup, err := InitializeApp(testConfig(t))
	require.NoError(t, err)
	require.NotNil(t, app)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, app.Run(ctx))
}

func TestProvidePipelineConfig(t *testing.T) {
	cfg := testConfig(t)
	pc, err := ProvidePipelineConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "15m", pc.Interval.String())
	require.Len(t, pc.MTFIntervals, 2)
	assert.Equal(t, "4h", pc.MTFIntervals[1].String())

	cfg.Analysis.Interval = "7m"
	_, err = ProvidePipelineConfig(cfg)
	assert.Error(t, err)

	cfg.Analysis.Interval = "15m"
	cfg.Analysis.MTF.Intervals = []string{"1h", "2d"}
	_, err = ProvidePipelineConfig(cfg)
	assert.Error(t, err)
}

func TestProvideSessionStoreBackends(t *testing.T) {
	cfg := testConfig(t)
	store, cleanup, err := ProvideSessionStore(cfg, nil)
	require.NoError(t, err)
	cleanup()
	assert.IsType(t, &repo.MemorySessionStore{}, store)

	cfg.Session.Store = "file"
	cfg.Session.Dir = t.TempDir()
	store, cleanup, err = ProvideSessionStore(cfg, nil)
	require.NoError(t, err)
	cleanup()
	assert.IsType(t, &repo.FileSessionStore{}, store)
}

func TestOptionalProvidersStayOff(t *testing.T) {
	cfg := testConfig(t)
	reg := ProvideRegistry()

	rdb, _, err := ProvideRedisClient(cfg)
	require.NoError(t, err)
	assert.Nil(t, rdb)

	producer, _, err := ProvideKafkaProducer(cfg, reg)
	require.NoError(t, err)
	assert.Nil(t, producer)
	assert.IsType(t, repo.NopAnalysisPublisher{}, ProvidePublisher(cfg, producer))

	ch, _, err := ProvideClickHouse(cfg)
	require.NoError(t, err)
	assert.Nil(t, ch)
	assert.Nil(t, ProvideBarSource(cfg, ch, nil))
	assert.Nil(t, ProvideBarsUseCase(nil))
}
