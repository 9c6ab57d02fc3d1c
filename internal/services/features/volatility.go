package features

import (
	"math"

	"MarketCore/internal/domain/models"
)

// ATRPeriod is the true-range averaging window used across the engine.
const ATRPeriod = 14

// TrueRange returns max(h-l, |h-prevC|, |l-prevC|); the first bar uses h-l.
func TrueRange(bars []models.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		if i == 0 {
			out[i] = b.High - b.Low
			continue
		}
		pc := bars[i-1].Close
		out[i] = math.Max(b.High-b.Low, math.Max(math.Abs(b.High-pc), math.Abs(b.Low-pc)))
	}
	return out
}

// ATR is the rolling mean of true range, defined from the first bar on a partial window.
func ATR(bars []models.Bar, period int) []float64 {
	tr := TrueRange(bars)
	out := make([]float64, len(tr))
	sum := 0.0
	for i, v := range tr {
		sum += v
		if i >= period {
			sum -= tr[i-period]
		}
		n := i + 1
		if n > period {
			n = period
		}
		out[i] = sum / float64(n)
	}
	return out
}

// ComputeLogReturns computes log returns r_t = ln(C_t / C_{t-1}).
// It returns a slice of length len(bars)-1, or nil if insufficient data.
func ComputeLogReturns(bars []models.Bar) []float64 {
	if len(bars) < 2 {
		return nil
	}
	out := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		cur := bars[i].Close
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}
