package structure

import (
	"math"

	"MarketCore/internal/domain/models"
	"MarketCore/internal/services/features"
)

// Detections flags the zones a single bar confirms.
type Detections struct {
	BullishOB  bool
	BearishOB  bool
	BullishFVG bool
	BearishFVG bool
}

// Detect evaluates the order block and gap rules for every bar.
// The sweep gate compares the block candle's wick, the break gate the expansion close.
func (e *Engine) Detect(bars []models.Bar) []Detections {
	n := len(bars)
	out := make([]Detections, n)
	if n == 0 {
		return out
	}
	body := make([]float64, n)
	total := make([]float64, n)
	for i, b := range bars {
		body[i] = math.Abs(b.Close - b.Open)
		total[i] = b.High - b.Low
	}
	avgBody := features.SMA(body, e.cfg.AverageWindow)
	avgTotal := features.SMA(total, e.cfg.AverageWindow)
	highs := features.Highs(bars)
	lows := features.Lows(bars)
	structHigh := features.RollingMax(features.Shift(highs, 1), e.cfg.StructLookback)
	structLow := features.RollingMin(features.Shift(lows, 1), e.cfg.StructLookback)

	imbBull := make([]bool, n)
	imbBear := make([]bool, n)
	for i, b := range bars {
		imb := body[i] > avgBody[i]*e.cfg.ImbalanceFactor && total[i] > avgTotal[i]
		imbBull[i] = imb && b.Bullish()
		imbBear[i] = imb && b.Bearish()
	}

	for i := 1; i < n; i++ {
		cur, prev := bars[i], bars[i-1]
		sweepLow := prev.Low <= structLow[i-1]
		sweepHigh := prev.High >= structHigh[i-1]
		out[i].BullishOB = imbBull[i] && prev.Bearish() && (sweepLow || cur.Close > structHigh[i])
		out[i].BearishOB = imbBear[i] && prev.Bullish() && (sweepHigh || cur.Close < structLow[i])
		if i >= 2 {
			out[i].BullishFVG = cur.Low > bars[i-2].High && imbBull[i-1]
			out[i].BearishFVG = cur.High < bars[i-2].Low && imbBear[i-1]
		}
	}
	return out
}

// Registry is the live zone set folded bar by bar. Each bar first evicts
// mitigated zones, then appends the zones it confirms.
type Registry struct {
	mitigation float64
	bullOB     []models.InstitutionalZone
	bearOB     []models.InstitutionalZone
	bullFVG    []models.InstitutionalZone
	bearFVG    []models.InstitutionalZone
}

// NewRegistry creates an empty registry with the given mitigation fraction.
func NewRegistry(mitigation float64) *Registry {
	return &Registry{mitigation: mitigation}
}

// Step advances the fold by one bar. window holds the bars up to and including
// bars[i]; d are the detections for bars[i].
func (r *Registry) Step(window []models.Bar, i int, d Detections) {
	cur := window[i]
	r.bullOB = keep(r.bullOB, func(z models.InstitutionalZone) bool { return cur.Low > r.threshold(z) })
	r.bullFVG = keep(r.bullFVG, func(z models.InstitutionalZone) bool { return cur.Low > r.threshold(z) })
	r.bearOB = keep(r.bearOB, func(z models.InstitutionalZone) bool { return cur.High < r.threshold(z) })
	r.bearFVG = keep(r.bearFVG, func(z models.InstitutionalZone) bool { return cur.High < r.threshold(z) })

	if d.BullishOB && i >= 1 {
		r.bullOB = append(r.bullOB, blockZone(window[i-1], cur, models.ZoneBullish))
	}
	if d.BearishOB && i >= 1 {
		r.bearOB = append(r.bearOB, blockZone(window[i-1], cur, models.ZoneBearish))
	}
	if d.BullishFVG && i >= 2 {
		c1 := window[i-2]
		if cur.Low > c1.High {
			r.bullFVG = append(r.bullFVG, gapZone(c1, cur, cur.Low, c1.High, models.ZoneBullish))
		}
	}
	if d.BearishFVG && i >= 2 {
		c1 := window[i-2]
		if c1.Low > cur.High {
			r.bearFVG = append(r.bearFVG, gapZone(c1, cur, c1.Low, cur.High, models.ZoneBearish))
		}
	}
}

// Snapshot returns copies of the active zone lists.
func (r *Registry) Snapshot() models.ZoneCatalog {
	return models.ZoneCatalog{
		BullishOB:  append([]models.InstitutionalZone{}, r.bullOB...),
		BearishOB:  append([]models.InstitutionalZone{}, r.bearOB...),
		BullishFVG: append([]models.InstitutionalZone{}, r.bullFVG...),
		BearishFVG: append([]models.InstitutionalZone{}, r.bearFVG...),
	}
}

func (r *Registry) threshold(z models.InstitutionalZone) float64 {
	return z.Bottom + (z.Top-z.Bottom)*r.mitigation
}

func (e *Engine) zones(bars []models.Bar) models.ZoneCatalog {
	reg := NewRegistry(e.cfg.Mitigation)
	for i, d := range e.Detect(bars) {
		reg.Step(bars, i, d)
	}
	return reg.Snapshot()
}

func keep(zs []models.InstitutionalZone, alive func(models.InstitutionalZone) bool) []models.InstitutionalZone {
	out := zs[:0]
	for _, z := range zs {
		if alive(z) {
			out = append(out, z)
		}
	}
	return out
}

func blockZone(block, confirm models.Bar, dir models.ZoneDirection) models.InstitutionalZone {
	return models.InstitutionalZone{
		Kind:             models.ZoneOrderBlock,
		Top:              block.High,
		Bottom:           block.Low,
		CreationTime:     block.Time,
		ConfirmationTime: confirm.Time,
		Direction:        dir,
		Status:           models.ZoneActive,
	}
}

func gapZone(first, confirm models.Bar, top, bottom float64, dir models.ZoneDirection) models.InstitutionalZone {
	return models.InstitutionalZone{
		Kind:             models.ZoneFVG,
		Top:              top,
		Bottom:           bottom,
		CreationTime:     first.Time,
		ConfirmationTime: confirm.Time,
		Direction:        dir,
		Status:           models.ZoneActive,
	}
}
