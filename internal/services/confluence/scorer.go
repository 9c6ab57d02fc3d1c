package confluence

import (
	"fmt"
	"math"
	"strings"

	"MarketCore/internal/domain/models"
	domsvc "MarketCore/internal/domain/service"
	"MarketCore/internal/services/features"
)

// Factor weights. They sum to 100.
const (
	WeightRegime     = 25
	WeightStructure  = 20
	WeightVolume     = 15
	WeightMomentum   = 15
	WeightSession    = 15
	WeightProjection = 10

	structurePart = 10
	momentumPart  = 5
	sessionPart   = 7
	sweepPart     = 8
)

// Config holds the scorer thresholds.
type Config struct {
	RVOLLookback  int     `yaml:"rvol_lookback" default:"20" validate:"gte=1"`
	RVOLFull      float64 `yaml:"rvol_full" default:"1.5" validate:"gt=0"`
	RVOLHalf      float64 `yaml:"rvol_half" default:"1.0" validate:"gt=0,ltefield=RVOLFull"`
	MinProjection float64 `yaml:"min_projection" default:"55" validate:"gt=0,lte=100"`
	ZonePadATR    float64 `yaml:"zone_pad_atr" default:"1" validate:"gte=0"`
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		RVOLLookback:  features.RVOLLookback,
		RVOLFull:      1.5,
		RVOLHalf:      1.0,
		MinProjection: 55,
		ZonePadATR:    1,
	}
}

var (
	longRegimes  = map[models.RegimeLabel]bool{models.RegimeAccumulation: true, models.RegimeMarkup: true, models.RegimeRanging: true}
	shortRegimes = map[models.RegimeLabel]bool{models.RegimeDistribution: true, models.RegimeMarkdown: true, models.RegimeRanging: true}
)

// Scorer grades candidates. It keeps no state between calls.
type Scorer struct {
	cfg Config
}

var _ domsvc.ConfluenceScorer = (*Scorer)(nil)

// New creates a scorer; zero config fields fall back to defaults.
func New(cfg Config) *Scorer {
	def := DefaultConfig()
	if cfg.RVOLLookback <= 0 {
		cfg.RVOLLookback = def.RVOLLookback
	}
	if cfg.RVOLFull <= 0 {
		cfg.RVOLFull = def.RVOLFull
	}
	if cfg.RVOLHalf <= 0 {
		cfg.RVOLHalf = def.RVOLHalf
	}
	if cfg.MinProjection <= 0 {
		cfg.MinProjection = def.MinProjection
	}
	if cfg.ZonePadATR < 0 {
		cfg.ZonePadATR = def.ZonePadATR
	}
	return &Scorer{cfg: cfg}
}

// evaluation carries the facts the reasoning text is built from.
type evaluation struct {
	long     bool
	regime   models.RegimeLabel
	hasOB    bool
	hasFVG   bool
	rvol     float64
	session  models.ActiveSession
	inWindow bool
	sweep    bool
}

// Score evaluates in.Candidate against the supplied context.
func (s *Scorer) Score(in models.ConfluenceInput) models.ConfluenceResult {
	ev := evaluation{long: in.Candidate.Direction == models.DirectionLong}
	items := []models.ChecklistItem{
		s.regime(in, &ev),
		s.structure(in, &ev),
		s.volume(in, &ev),
		s.momentum(in),
		s.session(in, &ev),
		s.projection(in),
	}

	achieved, total := 0, 0
	for _, it := range items {
		achieved += it.Points
		total += it.Weight
	}
	score := 0
	if total > 0 {
		score = int(math.Round(100 * float64(achieved) / float64(total)))
	}
	score = min(max(score, 0), 100)
	conviction := models.ConvictionFor(score)

	return models.ConfluenceResult{
		Score:      score,
		Conviction: conviction,
		Checklist:  items,
		Reasoning:  reasoning(score, conviction, ev),
		RVOL:       math.Round(ev.rvol*100) / 100,
	}
}

func (s *Scorer) regime(in models.ConfluenceInput, ev *evaluation) models.ChecklistItem {
	label := in.Regime
	if label == "" {
		label = in.Candidate.Regime
	}
	if label == "" {
		label = models.RegimeUnknown
	}
	ev.regime = label

	favourable := shortRegimes
	if ev.long {
		favourable = longRegimes
	}
	it := models.ChecklistItem{Factor: "Regime", Weight: WeightRegime}
	if favourable[label] {
		it.Status, it.Points = models.CheckConfirmed, WeightRegime
		it.Detail = fmt.Sprintf("aligned with %s", label)
	} else {
		it.Status = models.CheckDivergent
		it.Detail = fmt.Sprintf("%s does not favour %s", label, in.Candidate.Direction)
	}
	return it
}

func (s *Scorer) structure(in models.ConfluenceInput, ev *evaluation) models.ChecklistItem {
	obs, gaps := in.Zones.BearishOB, in.Zones.BearishFVG
	if ev.long {
		obs, gaps = in.Zones.BullishOB, in.Zones.BullishFVG
	}
	price := referencePrice(in)
	pad := s.cfg.ZonePadATR * atrOf(in)

	trigger := strings.ToUpper(in.Candidate.Trigger)
	ev.hasOB = nearby(obs, price, pad) || strings.Contains(trigger, "OB") || strings.Contains(trigger, "ORDER BLOCK")
	ev.hasFVG = nearby(gaps, price, pad) || strings.Contains(trigger, "FVG")

	it := models.ChecklistItem{Factor: "Structure", Weight: WeightStructure}
	var tags []string
	if ev.hasOB {
		it.Points += structurePart
		tags = append(tags, "OB")
	}
	if ev.hasFVG {
		it.Points += structurePart
		tags = append(tags, "FVG")
	}
	if it.Points > 0 {
		it.Status = models.CheckConfirmed
		it.Detail = strings.Join(tags, " + ") + " in play"
	} else {
		it.Status = models.CheckNeutral
		it.Detail = "no institutional zone nearby"
	}
	return it
}

func (s *Scorer) volume(in models.ConfluenceInput, ev *evaluation) models.ChecklistItem {
	ev.rvol = features.RVOL(in.Bars, s.cfg.RVOLLookback)
	it := models.ChecklistItem{Factor: "Relative volume", Weight: WeightVolume}
	switch {
	case ev.rvol >= s.cfg.RVOLFull:
		it.Status, it.Points = models.CheckConfirmed, WeightVolume
		it.Detail = fmt.Sprintf("institutional participation (%.2fx)", ev.rvol)
	case ev.rvol >= s.cfg.RVOLHalf:
		it.Status, it.Points = models.CheckPartial, WeightVolume/2
		it.Detail = fmt.Sprintf("above average (%.2fx)", ev.rvol)
	default:
		it.Status = models.CheckLow
		it.Detail = fmt.Sprintf("thin volume (%.2fx)", ev.rvol)
	}
	return it
}

func (s *Scorer) momentum(in models.ConfluenceInput) models.ChecklistItem {
	long := in.Candidate.Direction == models.DirectionLong
	m := in.Momentum
	extreme, cross := m.RSIOverbought, m.MACDBearishCross
	if long {
		extreme, cross = m.RSIOversold, m.MACDBullishCross
	}

	it := models.ChecklistItem{Factor: "Momentum", Weight: WeightMomentum}
	var tags []string
	if extreme {
		it.Points += momentumPart
		tags = append(tags, "RSI extreme")
	}
	if cross {
		it.Points += momentumPart
		tags = append(tags, "MACD cross")
	}
	if m.Squeeze {
		it.Points += momentumPart
		tags = append(tags, "squeeze")
	}
	switch {
	case it.Points >= 2*momentumPart:
		it.Status = models.CheckConfirmed
	case it.Points > 0:
		it.Status = models.CheckPartial
	default:
		it.Status = models.CheckNeutral
		tags = append(tags, "no oscillator extreme")
	}
	it.Detail = strings.Join(tags, " + ")
	return it
}

func (s *Scorer) session(in models.ConfluenceInput, ev *evaluation) models.ChecklistItem {
	ev.session = models.ActiveOffHours
	if in.Session != nil {
		if in.Session.CurrentSession != "" {
			ev.session = in.Session.CurrentSession
		}
		if ev.long {
			ev.sweep = in.Session.AnySweptLow()
		} else {
			ev.sweep = in.Session.AnySweptHigh()
		}
	}
	ev.inWindow = ev.session.Recognized()

	trigger := strings.ToUpper(in.Candidate.Trigger)
	for _, kw := range []string{"SWEEP", "LIQUIDITY", "PDL"} {
		if strings.Contains(trigger, kw) {
			ev.sweep = true
		}
	}

	it := models.ChecklistItem{Factor: "Session/liquidity", Weight: WeightSession}
	var tags []string
	if ev.inWindow {
		it.Points += sessionPart
		tags = append(tags, string(ev.session))
	}
	if ev.sweep {
		it.Points += sweepPart
		tags = append(tags, "sweep")
	}
	if it.Points > 0 {
		it.Status = models.CheckConfirmed
		it.Detail = strings.Join(tags, " + ")
	} else {
		it.Status = models.CheckNeutral
		it.Detail = fmt.Sprintf("outside liquidity windows (%s)", ev.session)
	}
	return it
}

func (s *Scorer) projection(in models.ConfluenceInput) models.ChecklistItem {
	it := models.ChecklistItem{Factor: "Projection", Weight: WeightProjection, Status: models.CheckCaution}
	if in.Projection == nil {
		it.Detail = "no projection available"
		return it
	}
	p := in.Projection
	dir, ok := models.ParseDirection(p.Direction)
	if ok && dir == in.Candidate.Direction && p.Probability > s.cfg.MinProjection {
		it.Status, it.Points = models.CheckConfirmed, WeightProjection
		it.Detail = fmt.Sprintf("%s at %.0f%%", strings.ToUpper(p.Direction), p.Probability)
		return it
	}
	it.Detail = fmt.Sprintf("undecided or divergent (%s %.0f%%)", strings.ToUpper(p.Direction), p.Probability)
	return it
}

func reasoning(score int, conviction models.Conviction, ev evaluation) string {
	dir := models.DirectionShort
	if ev.long {
		dir = models.DirectionLong
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s candidate with %s conviction (%d/100). Regime: %s.", dir, conviction, score, ev.regime)
	if ev.hasOB {
		b.WriteString(" Backed by an order block.")
	}
	if ev.rvol >= 1.5 {
		fmt.Fprintf(&b, " Significant volume (%.1fx).", ev.rvol)
	}
	if ev.sweep {
		b.WriteString(" Liquidity sweep confirmed before entry.")
	}
	if ev.inWindow {
		fmt.Fprintf(&b, " Inside %s.", ev.session)
	} else {
		b.WriteString(" Outside the primary liquidity windows.")
	}
	return b.String()
}

// referencePrice is the candidate price, or the last close when none was given.
func referencePrice(in models.ConfluenceInput) float64 {
	if in.Candidate.SuggestedPrice > 0 {
		return in.Candidate.SuggestedPrice
	}
	if n := len(in.Bars); n > 0 {
		return in.Bars[n-1].Close
	}
	return 0
}

func atrOf(in models.ConfluenceInput) float64 {
	switch {
	case in.ATR > 0 && !math.IsInf(in.ATR, 0):
		return in.ATR
	case in.Candidate.ATR > 0 && !math.IsInf(in.Candidate.ATR, 0):
		return in.Candidate.ATR
	}
	return 0
}

func nearby(zs []models.InstitutionalZone, price, pad float64) bool {
	if price <= 0 {
		return false
	}
	for _, z := range zs {
		if z.Overlaps(price, pad) {
			return true
		}
	}
	return false
}
