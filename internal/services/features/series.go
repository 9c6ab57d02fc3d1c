package features

import (
	"math"

	"MarketCore/internal/domain/models"
)

// Closes extracts close prices.
func Closes(bars []models.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Highs extracts high prices.
func Highs(bars []models.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.High
	}
	return out
}

// Lows extracts low prices.
func Lows(bars []models.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Low
	}
	return out
}

// Volumes extracts volumes.
func Volumes(bars []models.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Volume
	}
	return out
}

// NaNs returns a slice of n NaN values.
func NaNs(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMA is the simple moving average over n values. A window containing NaN yields NaN.
func SMA(xs []float64, n int) []float64 {
	out := NaNs(len(xs))
	if n <= 0 {
		return out
	}
	sum := 0.0
	nan := 0
	for i, x := range xs {
		if math.IsNaN(x) {
			nan++
		} else {
			sum += x
		}
		if i >= n {
			old := xs[i-n]
			if math.IsNaN(old) {
				nan--
			} else {
				sum -= old
			}
		}
		if i >= n-1 && nan == 0 {
			out[i] = sum / float64(n)
		}
	}
	return out
}

// EMA is the recursive exponential average with alpha = 2/(span+1), seeded with the first value.
func EMA(xs []float64, span int) []float64 {
	out := NaNs(len(xs))
	if len(xs) == 0 || span <= 0 {
		return out
	}
	alpha := 2.0 / (float64(span) + 1)
	prev := math.NaN()
	for i, x := range xs {
		switch {
		case math.IsNaN(x):
			out[i] = prev
			continue
		case math.IsNaN(prev):
			prev = x
		default:
			prev = alpha*x + (1-alpha)*prev
		}
		out[i] = prev
	}
	return out
}

// RollingStd is the sample standard deviation (n-1 denominator) over n values.
func RollingStd(xs []float64, n int) []float64 {
	out := NaNs(len(xs))
	if n < 2 {
		return out
	}
	for i := n - 1; i < len(xs); i++ {
		w := xs[i-n+1 : i+1]
		mean := 0.0
		ok := true
		for _, x := range w {
			if math.IsNaN(x) {
				ok = false
				break
			}
			mean += x
		}
		if !ok {
			continue
		}
		mean /= float64(n)
		ss := 0.0
		for _, x := range w {
			d := x - mean
			ss += d * d
		}
		out[i] = math.Sqrt(ss / float64(n-1))
	}
	return out
}

// Diff returns xs[i] - xs[i-k].
func Diff(xs []float64, k int) []float64 {
	out := NaNs(len(xs))
	for i := k; i < len(xs); i++ {
		out[i] = xs[i] - xs[i-k]
	}
	return out
}

// Shift moves values k positions later, padding with NaN.
func Shift(xs []float64, k int) []float64 {
	out := NaNs(len(xs))
	for i := k; i < len(xs); i++ {
		out[i] = xs[i-k]
	}
	return out
}

// RollingMax is the maximum over n values; NaN until the window is full of numbers.
func RollingMax(xs []float64, n int) []float64 {
	return rollingExtreme(xs, n, func(a, b float64) bool { return a > b })
}

// RollingMin is the minimum over n values; NaN until the window is full of numbers.
func RollingMin(xs []float64, n int) []float64 {
	return rollingExtreme(xs, n, func(a, b float64) bool { return a < b })
}

func rollingExtreme(xs []float64, n int, better func(a, b float64) bool) []float64 {
	out := NaNs(len(xs))
	if n <= 0 {
		return out
	}
	for i := n - 1; i < len(xs); i++ {
		best := math.NaN()
		for _, x := range xs[i-n+1 : i+1] {
			if math.IsNaN(x) {
				best = math.NaN()
				break
			}
			if math.IsNaN(best) || better(x, best) {
				best = x
			}
		}
		out[i] = best
	}
	return out
}

// Mean of the finite values, NaN when there are none.
func Mean(xs []float64) float64 {
	sum, n := 0.0, 0
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			continue
		}
		sum += x
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// Last returns the final element or NaN for an empty slice.
func Last(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return xs[len(xs)-1]
}
