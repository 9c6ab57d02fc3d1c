package models

import (
	"encoding/json"
	"math"
	"time"
)

// RegimeLabel is the Wyckoff market phase assigned to a bar.
type RegimeLabel string

const (
	RegimeAccumulation RegimeLabel = "ACCUMULATION"
	RegimeMarkup       RegimeLabel = "MARKUP"
	RegimeDistribution RegimeLabel = "DISTRIBUTION"
	RegimeMarkdown     RegimeLabel = "MARKDOWN"
	RegimeRanging      RegimeLabel = "RANGING"
	RegimeUnknown      RegimeLabel = "UNKNOWN"
)

// ParseRegime maps free text to a label; unrecognized input is UNKNOWN.
func ParseRegime(s string) RegimeLabel {
	switch l := RegimeLabel(s); l {
	case RegimeAccumulation, RegimeMarkup, RegimeDistribution, RegimeMarkdown, RegimeRanging:
		return l
	default:
		return RegimeUnknown
	}
}

// RegimeDrivers are the numeric inputs behind a label. NaN means not yet defined.
type RegimeDrivers struct {
	FastMA    float64 `json:"fast_ma"`
	SlowMA    float64 `json:"slow_ma"`
	Slope     float64 `json:"slope"`
	BandWidth float64 `json:"band_width"`
	WidthMean float64 `json:"width_mean"`
	Distance  float64 `json:"distance"`
}

// RegimePoint is one labelled bar.
type RegimePoint struct {
	Time    time.Time     `json:"time"`
	Label   RegimeLabel   `json:"label"`
	Drivers RegimeDrivers `json:"drivers"`
}

// MarshalJSON writes undefined drivers as null.
func (d RegimeDrivers) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		FastMA    *float64 `json:"fast_ma"`
		SlowMA    *float64 `json:"slow_ma"`
		Slope     *float64 `json:"slope"`
		BandWidth *float64 `json:"band_width"`
		WidthMean *float64 `json:"width_mean"`
		Distance  *float64 `json:"distance"`
	}{
		FastMA:    finiteOrNil(d.FastMA),
		SlowMA:    finiteOrNil(d.SlowMA),
		Slope:     finiteOrNil(d.Slope),
		BandWidth: finiteOrNil(d.BandWidth),
		WidthMean: finiteOrNil(d.WidthMean),
		Distance:  finiteOrNil(d.Distance),
	})
}

func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// UnmarshalJSON reads null drivers back as NaN.
func (d *RegimeDrivers) UnmarshalJSON(data []byte) error {
	var raw struct {
		FastMA    *float64 `json:"fast_ma"`
		SlowMA    *float64 `json:"slow_ma"`
		Slope     *float64 `json:"slope"`
		BandWidth *float64 `json:"band_width"`
		WidthMean *float64 `json:"width_mean"`
		Distance  *float64 `json:"distance"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.FastMA = nanIfNil(raw.FastMA)
	d.SlowMA = nanIfNil(raw.SlowMA)
	d.Slope = nanIfNil(raw.Slope)
	d.BandWidth = nanIfNil(raw.BandWidth)
	d.WidthMean = nanIfNil(raw.WidthMean)
	d.Distance = nanIfNil(raw.Distance)
	return nil
}

func nanIfNil(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}
