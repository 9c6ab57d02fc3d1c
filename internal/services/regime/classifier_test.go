package regime

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketCore/internal/domain/models"
	"MarketCore/internal/testutil"
)

const step = 15 * time.Minute

func series(closes []float64) []models.Bar {
	return testutil.FromCloses(testutil.Epoch, step, closes, 0.2)
}

func TestClassifyFinalLabel(t *testing.T) {
	tests := []struct {
		name   string
		closes []float64
		want   models.RegimeLabel
	}{
		{"steady rise", testutil.Linear(260, 1000, 0.5), models.RegimeMarkup},
		{"steady fall", testutil.Linear(260, 1000, -0.5), models.RegimeMarkdown},
		{"compressed near mean", testutil.Concat(testutil.Wave(260, 100, 3, 20), testutil.Wave(40, 100, 0.2, 20)), models.RegimeRanging},
		{"compressed below mean", testutil.Concat(testutil.Wave(250, 100, 3, 20), testutil.Wave(30, 90, 0.1, 20)), models.RegimeAccumulation},
		{"compressed above mean", testutil.Concat(testutil.Wave(250, 100, 3, 20), testutil.Wave(30, 110, 0.1, 20)), models.RegimeDistribution},
		{"short history", testutil.Linear(150, 1000, 0.5), models.RegimeUnknown},
	}
	c := New(DefaultConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Latest(series(tt.closes))
			assert.Equal(t, tt.want, got.Label)
		})
	}
}

func TestClassifyIsDeterministicAndCausal(t *testing.T) {
	c := New(Config{})
	bars := series(testutil.Concat(testutil.Linear(220, 1000, 0.5), testutil.Wave(60, 1110, 4, 13)))
	first := c.Classify(bars)
	second := c.Classify(bars)
	require.Equal(t, labels(first), labels(second))

	for _, k := range []int{205, 230, 260} {
		prefix := c.Classify(bars[:k])
		assert.Equal(t, labels(first[:k]), labels(prefix), "prefix %d", k)
	}
}

func TestClassifyUnknownUntilSlowWindow(t *testing.T) {
	pts := New(DefaultConfig()).Classify(series(testutil.Linear(260, 1000, 0.5)))
	for i := 0; i < 209; i++ {
		require.Equal(t, models.RegimeUnknown, pts[i].Label, "bar %d", i)
	}
	assert.Equal(t, models.RegimeMarkup, pts[209].Label)
	assert.True(t, math.IsNaN(pts[0].Drivers.SlowMA))
	assert.False(t, math.IsNaN(pts[259].Drivers.Distance))
}

func TestClassifySkipsMalformedBars(t *testing.T) {
	bars := series(testutil.Linear(260, 1000, 0.5))
	bad := append([]models.Bar(nil), bars[:130]...)
	nanBar := bars[130]
	nanBar.Close = math.NaN()
	bad = append(bad, nanBar)
	bad = append(bad, bars[130:]...)

	pts := New(DefaultConfig()).Classify(bad)
	require.Len(t, pts, len(bad))
	assert.Equal(t, models.RegimeUnknown, pts[130].Label)
	assert.Equal(t, models.RegimeMarkup, pts[len(pts)-1].Label)
}

func TestClassifyEmpty(t *testing.T) {
	c := New(DefaultConfig())
	assert.Empty(t, c.Classify(nil))
	assert.Equal(t, models.RegimeUnknown, c.Latest(nil).Label)
}

func labels(pts []models.RegimePoint) []models.RegimeLabel {
	out := make([]models.RegimeLabel, len(pts))
	for i, p := range pts {
		out[i] = p.Label
	}
	return out
}
