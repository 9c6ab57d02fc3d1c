package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketCore/internal/testutil"
	"MarketCore/pkg/config"
	xhttp "MarketCore/pkg/http"
)

func projectionConfig(url string) config.ProjectionConfig {
	var cfg config.ProjectionConfig
	cfg.URL = url
	cfg.Path = "/projection/predict"
	cfg.Timeout = time.Second
	cfg.Retries = 2
	cfg.MaxElapsed = time.Second
	cfg.Bars = 50
	cfg.Breaker.MaxFailures = 2
	cfg.Breaker.OpenTimeout = time.Minute
	return cfg
}

func TestProjectorDecodesResponse(t *testing.T) {
	var got projectionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/projection/predict", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"direction":"bullish","probability":62.5}`))
	}))
	defer srv.Close()

	bars := testutil.FromCloses(testutil.Epoch, 15*time.Minute, testutil.Linear(80, 100, 1), 0.5)
	p := NewHTTPProjector(projectionConfig(srv.URL), nil)
	proj, err := p.Project(context.Background(), "BTCUSDT", bars)
	require.NoError(t, err)
	require.NotNil(t, proj)
	assert.Equal(t, "BULLISH", proj.Direction)
	assert.Equal(t, 62.5, proj.Probability)

	assert.Equal(t, "BTCUSDT", got.Symbol)
	assert.Len(t, got.Closes, 50)
	assert.Equal(t, 179.0, got.Closes[49])
}

func TestProjectorRetriesTransientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"direction":"BEARISH","probability":70}`))
	}))
	defer srv.Close()

	bars := testutil.Flat(testutil.Epoch, time.Minute, 10, 100, 1)
	proj, err := NewHTTPProjector(projectionConfig(srv.URL), nil).Project(context.Background(), "ETHUSDT", bars)
	require.NoError(t, err)
	assert.Equal(t, "BEARISH", proj.Direction)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestProjectorBreakerOpensAfterFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := projectionConfig(srv.URL)
	cfg.Retries = 0
	p := NewHTTPProjector(cfg, nil)
	bars := testutil.Flat(testutil.Epoch, time.Minute, 10, 100, 1)

	for i := 0; i < 2; i++ {
		_, err := p.Project(context.Background(), "BTCUSDT", bars)
		assert.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, p.base.State())

	proj, err := p.Project(context.Background(), "BTCUSDT", bars)
	assert.NoError(t, err)
	assert.Nil(t, proj)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestProjectorDisabledWithoutURL(t *testing.T) {
	p := NewHTTPProjector(config.ProjectionConfig{}, nil)
	proj, err := p.Project(context.Background(), "BTCUSDT", testutil.Flat(testutil.Epoch, time.Minute, 3, 1, 0))
	assert.NoError(t, err)
	assert.Nil(t, proj)
}

func TestProjectorRejectsOutOfRangeProbability(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"direction":"BULLISH","probability":140}`))
	}))
	defer srv.Close()

	_, err := NewHTTPProjector(projectionConfig(srv.URL), nil).Project(context.Background(), "BTCUSDT",
		testutil.Flat(testutil.Epoch, time.Minute, 3, 1, 0))
	assert.Error(t, err)
}

func TestProjectorDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad payload", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := NewHTTPProjector(projectionConfig(srv.URL), nil).Project(context.Background(), "BTCUSDT",
		testutil.Flat(testutil.Epoch, time.Minute, 3, 1, 0))
	var se *xhttp.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnprocessableEntity, se.Code)
	assert.Equal(t, "bad payload", se.Body)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
