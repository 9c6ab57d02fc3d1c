package structure

import (
	"math"

	"MarketCore/internal/domain/models"
)

// ConsolidateMTF annotates base levels that have a same-side higher-timeframe
// level within one base ATR. Neither input is modified.
func ConsolidateMTF(base, macro models.LevelCatalog, weight int) models.LevelCatalog {
	out := base.Clone()
	if base.ATR <= 0 || math.IsNaN(base.ATR) {
		return out
	}
	merge(out.Resistances, macro.Resistances, base.ATR, weight)
	merge(out.Supports, macro.Supports, base.ATR, weight)
	return out
}

func merge(base, macro []models.StructuralLevel, atr float64, weight int) {
	for i := range base {
		for _, m := range macro {
			if math.Abs(base[i].Price-m.Price) >= atr {
				continue
			}
			base[i].MTFConfluence = true
			base[i].MTFScore += weight + m.Touches
			if m.Touches >= 3 {
				base[i].Strength = models.StrengthStrong
			}
		}
	}
}

// TagConfluence marks supports inside a padded bullish zone and resistances
// inside a padded bearish zone. The pad is atrMult times the catalog ATR.
func TagConfluence(levels models.LevelCatalog, zones models.ZoneCatalog, atrMult float64) models.LevelCatalog {
	out := levels.Clone()
	pad := atrMult * levels.ATR
	if math.IsNaN(pad) {
		pad = 0
	}
	bull, bear := zones.Bullish(), zones.Bearish()
	for i := range out.Supports {
		out.Supports[i].OBConfluence = anyOverlap(bull, out.Supports[i].Price, pad)
	}
	for i := range out.Resistances {
		out.Resistances[i].OBConfluence = anyOverlap(bear, out.Resistances[i].Price, pad)
	}
	return out
}

func anyOverlap(zs []models.InstitutionalZone, price, pad float64) bool {
	for _, z := range zs {
		if z.Overlaps(price, pad) {
			return true
		}
	}
	return false
}
