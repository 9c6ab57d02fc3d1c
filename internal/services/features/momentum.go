package features

import (
	"math"

	"MarketCore/internal/domain/models"
)

const (
	RSIPeriod      = 14
	RSIOversold    = 30.0
	RSIOverbought  = 70.0
	MACDFast       = 12
	MACDSlow       = 26
	MACDSignal     = 9
	BBWPBasis      = 20
	BBWPPeriod     = 192
	SqueezeBelow   = 20.0
	RVOLLookback   = 20
	BandDeviations = 2.0
)

// RSI uses simple rolling means of gains and losses.
func RSI(closes []float64, period int) []float64 {
	gains := NaNs(len(closes))
	losses := NaNs(len(closes))
	for i := 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		gains[i] = math.Max(d, 0)
		losses[i] = math.Max(-d, 0)
	}
	ag := SMA(gains, period)
	al := SMA(losses, period)
	out := NaNs(len(closes))
	for i := range closes {
		switch {
		case math.IsNaN(ag[i]) || math.IsNaN(al[i]):
		case al[i] == 0 && ag[i] == 0:
		case al[i] == 0:
			out[i] = 100
		default:
			out[i] = 100 - 100/(1+ag[i]/al[i])
		}
	}
	return out
}

// MACD returns the MACD line and its signal line.
func MACD(closes []float64, fast, slow, signal int) (line, sig []float64) {
	ef := EMA(closes, fast)
	es := EMA(closes, slow)
	line = make([]float64, len(closes))
	for i := range closes {
		line[i] = ef[i] - es[i]
	}
	return line, EMA(line, signal)
}

// BandWidth is (upper-lower)/basis of a Bollinger band with the given deviations.
func BandWidth(closes []float64, period int, devs float64) []float64 {
	basis := SMA(closes, period)
	std := RollingStd(closes, period)
	out := NaNs(len(closes))
	for i := range closes {
		if math.IsNaN(basis[i]) || math.IsNaN(std[i]) || basis[i] == 0 {
			continue
		}
		out[i] = 2 * devs * std[i] / basis[i]
	}
	return out
}

// BBWP is the percentile rank (0-100) of the current band width within the trailing period.
func BBWP(closes []float64, basis, period int) []float64 {
	bbw := BandWidth(closes, basis, BandDeviations)
	out := NaNs(len(closes))
	for i := period - 1; i < len(bbw); i++ {
		w := bbw[i-period+1 : i+1]
		cur := bbw[i]
		less, equal := 0, 0
		ok := true
		for _, x := range w {
			if math.IsNaN(x) {
				ok = false
				break
			}
			switch {
			case x < cur:
				less++
			case x == cur:
				equal++
			}
		}
		if !ok {
			continue
		}
		rank := float64(less) + float64(equal+1)/2
		out[i] = rank / float64(period) * 100
	}
	return out
}

// RVOL divides the last bar's volume by the mean of up to lookback preceding bars.
// It falls back to 1.0 when there is no usable baseline.
func RVOL(bars []models.Bar, lookback int) float64 {
	n := len(bars)
	if n < 2 {
		return 1.0
	}
	start := n - 1 - lookback
	if start < 0 {
		start = 0
	}
	mean := Mean(Volumes(bars[start : n-1]))
	if math.IsNaN(mean) || mean <= 0 {
		return 1.0
	}
	return bars[n-1].Volume / mean
}

// Momentum computes the oscillator context of the last bar.
func Momentum(bars []models.Bar) models.MomentumContext {
	var mc models.MomentumContext
	n := len(bars)
	if n == 0 {
		return mc
	}
	closes := Closes(bars)

	rsi := RSI(closes, RSIPeriod)
	mc.RSI = finiteOr(rsi[n-1], 0)
	mc.RSIOversold = rsi[n-1] < RSIOversold
	mc.RSIOverbought = rsi[n-1] > RSIOverbought

	if n >= 2 {
		line, sig := MACD(closes, MACDFast, MACDSlow, MACDSignal)
		mc.MACDBullishCross = line[n-1] > sig[n-1] && line[n-2] <= sig[n-2]
		mc.MACDBearishCross = line[n-1] < sig[n-1] && line[n-2] >= sig[n-2]
	}

	bbwp := BBWP(closes, BBWPBasis, BBWPPeriod)
	mc.BBWP = finiteOr(bbwp[n-1], 0)
	mc.Squeeze = bbwp[n-1] < SqueezeBelow
	return mc
}

func finiteOr(v, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}
