package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	r := NewWithRegistry(prometheus.NewRegistry())

	r.RecordBar("BTCUSDT", "slow")
	r.RecordBar("BTCUSDT", "slow")
	r.RecordRejected("BTCUSDT", "out_of_order")
	r.RecordActiveZones("BTCUSDT", 3)
	r.RecordScore("BTCUSDT", 72)
	r.RecordLastPrice("BTCUSDT", 101.5)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.barsTotal.WithLabelValues("BTCUSDT", "slow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.rejectedTotal.WithLabelValues("BTCUSDT", "out_of_order")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.activeZones.WithLabelValues("BTCUSDT")))
	assert.Equal(t, 72.0, testutil.ToFloat64(r.lastScore.WithLabelValues("BTCUSDT")))
	assert.Equal(t, 101.5, testutil.ToFloat64(r.lastPrice.WithLabelValues("BTCUSDT")))
}
