package models

// Requests for analysis HTTP endpoints. Symbol comes from the path.

type SymbolRequest struct {
	Symbol string `param:"symbol" json:"symbol" validate:"required"`
}

type RegimeRequest struct {
	Symbol string `param:"symbol" json:"symbol" validate:"required"`
	Limit  int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=5000"`
}

type ConfluenceRequest struct {
	Symbol         string      `param:"symbol" json:"symbol" validate:"required"`
	Direction      string      `json:"direction" validate:"required,oneof=LONG SHORT"`
	SuggestedPrice float64     `json:"suggested_price" validate:"gt=0"`
	Trigger        string      `json:"trigger" validate:"max=256"`
	NearestLevel   *float64    `json:"nearest_structural_level"`
	ATR            float64     `json:"atr_value" validate:"gte=0"`
	Projection     *Projection `json:"projection"`
	Project        bool        `json:"project" default:"false"`
}

// Candidate converts the request body to a domain candidate.
func (r ConfluenceRequest) Candidate() Candidate {
	dir, _ := ParseDirection(r.Direction)
	return Candidate{
		Direction:      dir,
		SuggestedPrice: r.SuggestedPrice,
		Trigger:        r.Trigger,
		NearestLevel:   r.NearestLevel,
		ATR:            r.ATR,
	}
}

type BarsRequest struct {
	Symbol   string `param:"symbol" json:"symbol" validate:"required"`
	Interval string `query:"interval" json:"interval" default:"15m"`
	From     string `query:"from" json:"from"`
	To       string `query:"to" json:"to"`
	Limit    int    `query:"limit" json:"limit" default:"500" validate:"gte=1,lte=10000"`
}
