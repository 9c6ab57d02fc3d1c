package structure

import (
	"math"
	"sort"

	"MarketCore/internal/domain/models"
	"MarketCore/internal/domain/repository"
	"MarketCore/internal/services/features"
)

// cluster is a group of same-kind pivots within tolerance of their running mean.
type cluster struct {
	prices  []float64
	indices []int
}

func (c *cluster) mean() float64 {
	sum := 0.0
	for _, p := range c.prices {
		sum += p
	}
	return sum / float64(len(c.prices))
}

func (c *cluster) first() int {
	first := c.indices[0]
	for _, i := range c.indices[1:] {
		if i < first {
			first = i
		}
	}
	return first
}

func (e *Engine) levels(bars []models.Bar, iv repository.Interval) models.LevelCatalog {
	cat := models.LevelCatalog{Resistances: []models.StructuralLevel{}, Supports: []models.StructuralLevel{}}
	if len(bars) == 0 {
		return cat
	}
	atr := features.Last(features.ATR(bars, features.ATRPeriod))
	price := bars[len(bars)-1].Close
	cat.ATR = atr
	cat.LastClose = price

	window := iv.PivotWindow()
	if len(bars) < 2*window || price <= 0 {
		return cat
	}

	tol := math.Max(e.cfg.MinTolerance, math.Min(e.cfg.MaxTolerance, e.cfg.ToleranceATR*atr/price))

	highs := features.Highs(bars)
	lows := features.Lows(bars)
	closes := features.Closes(bars)
	volumes := features.Volumes(bars)
	avgVol := features.Mean(volumes)
	if math.IsNaN(avgVol) || avgVol <= 0 {
		avgVol = 1.0
	}

	peaks := FindPeaks(highs, window)
	valleys := FindValleys(lows, window)

	var all []models.StructuralLevel
	for _, c := range clusterPivots(highs, peaks, tol) {
		all = append(all, e.buildLevel(c, models.LevelResistance, closes, volumes, avgVol, atr))
	}
	for _, c := range clusterPivots(lows, valleys, tol) {
		all = append(all, e.buildLevel(c, models.LevelSupport, closes, volumes, avgVol, atr))
	}

	for _, l := range all {
		switch {
		case l.Kind == models.LevelResistance && l.Price > price:
			cat.Resistances = append(cat.Resistances, l)
		case l.Kind == models.LevelSupport && l.Price < price:
			cat.Supports = append(cat.Supports, l)
		}
	}
	sort.SliceStable(cat.Resistances, func(i, j int) bool { return cat.Resistances[i].Price < cat.Resistances[j].Price })
	sort.SliceStable(cat.Supports, func(i, j int) bool { return cat.Supports[i].Price > cat.Supports[j].Price })
	if len(cat.Resistances) > e.cfg.NumLevels {
		cat.Resistances = cat.Resistances[:e.cfg.NumLevels]
	}
	if len(cat.Supports) > e.cfg.NumLevels {
		cat.Supports = cat.Supports[:e.cfg.NumLevels]
	}
	cat.SetNearest()
	return cat
}

// clusterPivots sorts pivots by price and greedily groups them while each new
// price stays within tol (relative) of the current group's mean.
func clusterPivots(series []float64, idx []int, tol float64) []*cluster {
	if len(idx) == 0 {
		return nil
	}
	sorted := append([]int(nil), idx...)
	sort.SliceStable(sorted, func(a, b int) bool { return series[sorted[a]] < series[sorted[b]] })

	var out []*cluster
	cur := &cluster{prices: []float64{series[sorted[0]]}, indices: []int{sorted[0]}}
	for _, i := range sorted[1:] {
		p := series[i]
		m := cur.mean()
		if math.Abs(p-m)/m <= tol {
			cur.prices = append(cur.prices, p)
			cur.indices = append(cur.indices, i)
			continue
		}
		out = append(out, cur)
		cur = &cluster{prices: []float64{p}, indices: []int{i}}
	}
	return append(out, cur)
}

func (e *Engine) buildLevel(c *cluster, kind models.LevelKind, closes, volumes []float64, avgVol, atr float64) models.StructuralLevel {
	price := c.mean()
	top, bottom := c.prices[0], c.prices[0]
	pivotVol := make([]float64, 0, len(c.indices))
	for k, p := range c.prices {
		top = math.Max(top, p)
		bottom = math.Min(bottom, p)
		pivotVol = append(pivotVol, volumes[c.indices[k]])
	}

	lvl := models.StructuralLevel{
		Price:       price,
		Touches:     len(c.prices),
		ZoneTop:     top,
		ZoneBottom:  bottom,
		Kind:        kind,
		Origin:      models.OriginPivot,
		Strength:    models.StrengthForTouches(len(c.prices)),
		VolumeScore: round2(median(pivotVol) / avgVol),
	}
	if e.broken(price, kind, closes[c.first()+1:], atr) {
		lvl.Kind = kind.Opposite()
		lvl.Origin = models.OriginRoleReversal
	}
	return lvl
}

// broken reports a decisive close through the level; wicks alone never break it.
func (e *Engine) broken(price float64, kind models.LevelKind, laterCloses []float64, atr float64) bool {
	margin := e.cfg.BreakATR * atr
	for _, c := range laterCloses {
		if kind == models.LevelResistance && c > price+margin {
			return true
		}
		if kind == models.LevelSupport && c < price-margin {
			return true
		}
	}
	return false
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
