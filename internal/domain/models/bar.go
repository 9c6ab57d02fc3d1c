package models

import (
	"math"
	"time"
)

// Bar is one OHLCV record. Timestamps are UTC instants.
type Bar struct {
	Time   time.Time `json:"t"`
	Open   float64   `json:"o"`
	High   float64   `json:"h"`
	Low    float64   `json:"l"`
	Close  float64   `json:"c"`
	Volume float64   `json:"v"`
}

// BarFromUnix builds a bar from a UTC seconds timestamp.
func BarFromUnix(ts int64, o, h, l, c, v float64) Bar {
	return Bar{Time: time.Unix(ts, 0).UTC(), Open: o, High: h, Low: l, Close: c, Volume: v}
}

// Finite reports whether every numeric field is a finite number.
func (b Bar) Finite() bool {
	for _, v := range [...]float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Bullish reports close above open.
func (b Bar) Bullish() bool { return b.Close > b.Open }

// Bearish reports close below open.
func (b Bar) Bearish() bool { return b.Close < b.Open }

// ValidMask marks bars that are finite and strictly later than the last accepted bar.
func ValidMask(bars []Bar) []bool {
	mask := make([]bool, len(bars))
	var last time.Time
	seen := false
	for i, b := range bars {
		if !b.Finite() || b.Time.IsZero() {
			continue
		}
		if seen && !b.Time.After(last) {
			continue
		}
		mask[i] = true
		last = b.Time
		seen = true
	}
	return mask
}

// CleanBars returns only the bars accepted by ValidMask, preserving order.
func CleanBars(bars []Bar) []Bar {
	mask := ValidMask(bars)
	out := make([]Bar, 0, len(bars))
	for i, ok := range mask {
		if ok {
			out = append(out, bars[i])
		}
	}
	return out
}
