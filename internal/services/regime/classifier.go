package regime

import (
	"math"

	"MarketCore/internal/domain/models"
	domsvc "MarketCore/internal/domain/service"
	"MarketCore/internal/services/features"
)

// Config holds the Wyckoff phase thresholds.
type Config struct {
	FastWindow  int     `yaml:"fast_window" default:"50" validate:"gte=2"`
	SlowWindow  int     `yaml:"slow_window" default:"200" validate:"gtefield=FastWindow"`
	SlopeLag    int     `yaml:"slope_lag" default:"10" validate:"gte=1"`
	BandPeriod  int     `yaml:"band_period" default:"20" validate:"gte=2"`
	BandDevs    float64 `yaml:"band_devs" default:"2" validate:"gt=0"`
	LowVolRatio float64 `yaml:"low_vol_ratio" default:"0.8" validate:"gt=0"`
	Extension   float64 `yaml:"extension" default:"0.03" validate:"gt=0"`
}

// DefaultConfig returns the standard 50/200 setup.
func DefaultConfig() Config {
	return Config{
		FastWindow:  50,
		SlowWindow:  200,
		SlopeLag:    10,
		BandPeriod:  20,
		BandDevs:    2,
		LowVolRatio: 0.8,
		Extension:   0.03,
	}
}

// Classifier labels bars using moving-average trend and band-width compression.
type Classifier struct {
	cfg Config
}

var _ domsvc.RegimeClassifier = (*Classifier)(nil)

// New creates a classifier; zero config fields fall back to defaults.
func New(cfg Config) *Classifier {
	def := DefaultConfig()
	if cfg.FastWindow <= 0 {
		cfg.FastWindow = def.FastWindow
	}
	if cfg.SlowWindow <= 0 {
		cfg.SlowWindow = def.SlowWindow
	}
	if cfg.SlopeLag <= 0 {
		cfg.SlopeLag = def.SlopeLag
	}
	if cfg.BandPeriod <= 0 {
		cfg.BandPeriod = def.BandPeriod
	}
	if cfg.BandDevs <= 0 {
		cfg.BandDevs = def.BandDevs
	}
	if cfg.LowVolRatio <= 0 {
		cfg.LowVolRatio = def.LowVolRatio
	}
	if cfg.Extension <= 0 {
		cfg.Extension = def.Extension
	}
	return &Classifier{cfg: cfg}
}

// Classify returns one point per input bar. Malformed bars are labelled UNKNOWN
// and excluded from the averages of the bars around them.
func (c *Classifier) Classify(bars []models.Bar) []models.RegimePoint {
	out := make([]models.RegimePoint, len(bars))
	mask := models.ValidMask(bars)
	clean := make([]models.Bar, 0, len(bars))
	idx := make([]int, 0, len(bars))
	for i, b := range bars {
		out[i] = models.RegimePoint{Time: b.Time, Label: models.RegimeUnknown, Drivers: undefinedDrivers()}
		if mask[i] {
			clean = append(clean, b)
			idx = append(idx, i)
		}
	}

	for j, p := range c.classifyClean(clean) {
		out[idx[j]] = p
	}
	return out
}

// Latest returns the point for the final bar, or UNKNOWN for an empty window.
func (c *Classifier) Latest(bars []models.Bar) models.RegimePoint {
	pts := c.Classify(bars)
	if len(pts) == 0 {
		return models.RegimePoint{Label: models.RegimeUnknown, Drivers: undefinedDrivers()}
	}
	return pts[len(pts)-1]
}

func (c *Classifier) classifyClean(bars []models.Bar) []models.RegimePoint {
	closes := features.Closes(bars)
	fast := features.SMA(closes, c.cfg.FastWindow)
	slow := features.SMA(closes, c.cfg.SlowWindow)
	slope := features.Diff(slow, c.cfg.SlopeLag)
	width := features.BandWidth(closes, c.cfg.BandPeriod, c.cfg.BandDevs)
	widthMean := features.SMA(width, c.cfg.SlowWindow)

	out := make([]models.RegimePoint, len(bars))
	for i, b := range bars {
		d := models.RegimeDrivers{
			FastMA:    fast[i],
			SlowMA:    slow[i],
			Slope:     slope[i],
			BandWidth: width[i],
			WidthMean: widthMean[i],
			Distance:  math.NaN(),
		}
		if !math.IsNaN(slow[i]) && slow[i] != 0 {
			d.Distance = (b.Close - slow[i]) / slow[i]
		}
		out[i] = models.RegimePoint{Time: b.Time, Label: c.label(d), Drivers: d}
	}
	return out
}

// label applies the cascade with explicit masks. NaN comparisons are false,
// so undefined drivers fall through to UNKNOWN.
func (c *Classifier) label(d models.RegimeDrivers) models.RegimeLabel {
	uptrend := d.FastMA > d.SlowMA && d.Slope > 0
	downtrend := d.FastMA < d.SlowMA && d.Slope < 0
	lowVol := d.BandWidth < d.WidthMean*c.cfg.LowVolRatio
	low := d.Distance < -c.cfg.Extension
	high := d.Distance > c.cfg.Extension

	markup := uptrend && !lowVol
	markdown := downtrend && !lowVol
	accumulation := lowVol && low && !markup && !markdown
	distribution := lowVol && high && !markup && !markdown && !accumulation
	ranging := lowVol && !markup && !markdown && !accumulation && !distribution

	switch {
	case markup:
		return models.RegimeMarkup
	case markdown:
		return models.RegimeMarkdown
	case accumulation:
		return models.RegimeAccumulation
	case distribution:
		return models.RegimeDistribution
	case ranging:
		return models.RegimeRanging
	default:
		return models.RegimeUnknown
	}
}

func undefinedDrivers() models.RegimeDrivers {
	nan := math.NaN()
	return models.RegimeDrivers{FastMA: nan, SlowMA: nan, Slope: nan, BandWidth: nan, WidthMean: nan, Distance: nan}
}
