// Package testutil builds deterministic synthetic bar series for tests.
package testutil

import (
	"math"
	"time"

	"MarketCore/internal/domain/models"
)

// Epoch is a Monday 00:00 UTC used as the default series start.
var Epoch = time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)

// FromCloses builds bars whose open is the previous close and whose wick extends
// by wick beyond the body on both sides.
func FromCloses(start time.Time, step time.Duration, closes []float64, wick float64) []models.Bar {
	out := make([]models.Bar, len(closes))
	prev := closes[0]
	for i, c := range closes {
		o := prev
		out[i] = models.Bar{
			Time:   start.Add(time.Duration(i) * step),
			Open:   o,
			High:   math.Max(o, c) + wick,
			Low:    math.Min(o, c) - wick,
			Close:  c,
			Volume: 100,
		}
		prev = c
	}
	return out
}

// Linear returns n closes starting at base and moving by step each bar.
func Linear(n int, base, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = base + step*float64(i)
	}
	return out
}

// Wave returns n closes oscillating around base with the given amplitude.
func Wave(n int, base, amp, period float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = base + amp*math.Sin(2*math.Pi*float64(i)/period)
	}
	return out
}

// Concat joins close series.
func Concat(parts ...[]float64) []float64 {
	var out []float64
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Flat returns n identical bars at price p with the given range.
func Flat(start time.Time, step time.Duration, n int, p, halfRange float64) []models.Bar {
	out := make([]models.Bar, n)
	for i := range out {
		out[i] = models.Bar{
			Time:   start.Add(time.Duration(i) * step),
			Open:   p,
			High:   p + halfRange,
			Low:    p - halfRange,
			Close:  p,
			Volume: 100,
		}
	}
	return out
}

// Retime rewrites timestamps to start + i*step.
func Retime(bars []models.Bar, start time.Time, step time.Duration) []models.Bar {
	out := make([]models.Bar, len(bars))
	for i, b := range bars {
		b.Time = start.Add(time.Duration(i) * step)
		out[i] = b
	}
	return out
}
