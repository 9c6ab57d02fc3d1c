package models

import "strings"

type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// ParseDirection accepts LONG/SHORT in any case, plus BULLISH/BEARISH aliases.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LONG", "BULLISH", "BUY", "UP":
		return DirectionLong, true
	case "SHORT", "BEARISH", "SELL", "DOWN":
		return DirectionShort, true
	default:
		return "", false
	}
}

// Candidate is a trade idea emitted by a downstream strategy.
type Candidate struct {
	Direction      Direction   `json:"direction"`
	SuggestedPrice float64     `json:"suggested_price"`
	Trigger        string      `json:"trigger"`
	Regime         RegimeLabel `json:"regime,omitempty"`
	NearestLevel   *float64    `json:"nearest_structural_level"`
	ATR            float64     `json:"atr_value"`
}

// Projection is an external directional forecast. Probability is 0-100.
type Projection struct {
	Direction   string  `json:"direction"`
	Probability float64 `json:"probability"`
}

// MomentumContext is the oscillator state of the latest bar.
type MomentumContext struct {
	RSI              float64 `json:"rsi"`
	RSIOversold      bool    `json:"rsi_oversold"`
	RSIOverbought    bool    `json:"rsi_overbought"`
	MACDBullishCross bool    `json:"macd_bullish_cross"`
	MACDBearishCross bool    `json:"macd_bearish_cross"`
	BBWP             float64 `json:"bbwp"`
	Squeeze          bool    `json:"squeeze_active"`
}

// ConfluenceInput bundles everything the scorer reads. Bars end with the evaluated bar.
type ConfluenceInput struct {
	Bars       []Bar
	Regime     RegimeLabel
	Momentum   MomentumContext
	Zones      ZoneCatalog
	ATR        float64
	Candidate  Candidate
	Projection *Projection
	Session    *SessionSnapshot
}

type Conviction string

const (
	ConvictionHigh        Conviction = "HIGH"
	ConvictionSolid       Conviction = "SOLID"
	ConvictionSpeculative Conviction = "SPECULATIVE"
	ConvictionHighRisk    Conviction = "HIGH-RISK"
)

// ConvictionFor buckets a 0-100 score.
func ConvictionFor(score int) Conviction {
	switch {
	case score >= 70:
		return ConvictionHigh
	case score >= 50:
		return ConvictionSolid
	case score >= 30:
		return ConvictionSpeculative
	default:
		return ConvictionHighRisk
	}
}

type CheckStatus string

const (
	CheckConfirmed CheckStatus = "CONFIRMED"
	CheckPartial   CheckStatus = "PARTIAL"
	CheckNeutral   CheckStatus = "NEUTRAL"
	CheckDivergent CheckStatus = "DIVERGENT"
	CheckLow       CheckStatus = "LOW"
	CheckCaution   CheckStatus = "CAUTION"
)

// ChecklistItem is one weighted factor of a confluence evaluation.
type ChecklistItem struct {
	Factor string      `json:"factor"`
	Status CheckStatus `json:"status"`
	Detail string      `json:"detail"`
	Points int         `json:"points"`
	Weight int         `json:"weight"`
}

// ConfluenceResult is computed per candidate and never persisted.
type ConfluenceResult struct {
	Score      int             `json:"score"`
	Conviction Conviction      `json:"conviction"`
	Checklist  []ChecklistItem `json:"checklist"`
	Reasoning  string          `json:"reasoning"`
	RVOL       float64         `json:"rvol"`
}
