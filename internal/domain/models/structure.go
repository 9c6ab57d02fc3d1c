package models

import "time"

type LevelKind string

const (
	LevelSupport    LevelKind = "SUPPORT"
	LevelResistance LevelKind = "RESISTANCE"
)

// Opposite returns the kind a level takes after a role reversal.
func (k LevelKind) Opposite() LevelKind {
	if k == LevelSupport {
		return LevelResistance
	}
	return LevelSupport
}

type LevelOrigin string

const (
	OriginPivot        LevelOrigin = "PIVOT"
	OriginRoleReversal LevelOrigin = "ROLE_REVERSAL"
)

type Strength string

const (
	StrengthWeak     Strength = "WEAK"
	StrengthModerate Strength = "MODERATE"
	StrengthStrong   Strength = "STRONG"
)

// StrengthForTouches buckets a touch count: 4+ strong, 2-3 moderate, else weak.
func StrengthForTouches(touches int) Strength {
	switch {
	case touches >= 4:
		return StrengthStrong
	case touches >= 2:
		return StrengthModerate
	default:
		return StrengthWeak
	}
}

// StructuralLevel is a clustered support or resistance price.
type StructuralLevel struct {
	Price         float64     `json:"price"`
	Touches       int         `json:"touches"`
	ZoneTop       float64     `json:"zone_top"`
	ZoneBottom    float64     `json:"zone_bottom"`
	Kind          LevelKind   `json:"type"`
	Origin        LevelOrigin `json:"origin"`
	Strength      Strength    `json:"strength"`
	VolumeScore   float64     `json:"volume_score"`
	OBConfluence  bool        `json:"ob_confluence"`
	MTFConfluence bool        `json:"mtf_confluence"`
	MTFScore      int         `json:"mtf_score"`
}

// LevelCatalog holds the nearest unbroken levels on each side of the last close.
// Resistances ascend from price, supports descend from price.
type LevelCatalog struct {
	Resistances       []StructuralLevel `json:"resistances"`
	Supports          []StructuralLevel `json:"supports"`
	NearestSupport    *float64          `json:"nearest_support"`
	NearestResistance *float64          `json:"nearest_resistance"`
	ATR               float64           `json:"atr"`
	LastClose         float64           `json:"last_close"`
}

// SetNearest fills NearestSupport and NearestResistance from the sorted slices.
func (c *LevelCatalog) SetNearest() {
	c.NearestSupport, c.NearestResistance = nil, nil
	if len(c.Supports) > 0 {
		c.NearestSupport = Float(c.Supports[0].Price)
	}
	if len(c.Resistances) > 0 {
		c.NearestResistance = Float(c.Resistances[0].Price)
	}
}

// Clone deep-copies the level slices.
func (c LevelCatalog) Clone() LevelCatalog {
	out := c
	out.Resistances = append([]StructuralLevel(nil), c.Resistances...)
	out.Supports = append([]StructuralLevel(nil), c.Supports...)
	if c.NearestSupport != nil {
		out.NearestSupport = Float(*c.NearestSupport)
	}
	if c.NearestResistance != nil {
		out.NearestResistance = Float(*c.NearestResistance)
	}
	return out
}

type ZoneDirection string

const (
	ZoneBullish ZoneDirection = "bullish"
	ZoneBearish ZoneDirection = "bearish"
)

type ZoneStatus string

// Zones leave the catalog once mitigated, so every listed zone is active.
const ZoneActive ZoneStatus = "active"

type ZoneKind string

const (
	ZoneOrderBlock ZoneKind = "ORDER_BLOCK"
	ZoneFVG        ZoneKind = "FVG"
)

// InstitutionalZone is an order block or fair value gap.
type InstitutionalZone struct {
	Kind             ZoneKind      `json:"kind"`
	Top              float64       `json:"top"`
	Bottom           float64       `json:"bottom"`
	CreationTime     time.Time     `json:"time"`
	ConfirmationTime time.Time     `json:"confirmation_time"`
	Direction        ZoneDirection `json:"direction"`
	Status           ZoneStatus    `json:"status"`
}

// Midpoint is the 50% mitigation threshold.
func (z InstitutionalZone) Midpoint() float64 {
	return z.Bottom + (z.Top-z.Bottom)*0.5
}

// Overlaps reports whether price lies within the zone widened by pad on both sides.
func (z InstitutionalZone) Overlaps(price, pad float64) bool {
	return price >= z.Bottom-pad && price <= z.Top+pad
}

// ZoneCatalog is a read-only snapshot of the zones alive after the last processed bar.
type ZoneCatalog struct {
	BullishOB  []InstitutionalZone `json:"bullish_order_blocks"`
	BearishOB  []InstitutionalZone `json:"bearish_order_blocks"`
	BullishFVG []InstitutionalZone `json:"bullish_fvgs"`
	BearishFVG []InstitutionalZone `json:"bearish_fvgs"`
}

// Bullish returns bullish order blocks followed by bullish gaps.
func (c ZoneCatalog) Bullish() []InstitutionalZone {
	out := make([]InstitutionalZone, 0, len(c.BullishOB)+len(c.BullishFVG))
	out = append(out, c.BullishOB...)
	return append(out, c.BullishFVG...)
}

// Bearish returns bearish order blocks followed by bearish gaps.
func (c ZoneCatalog) Bearish() []InstitutionalZone {
	out := make([]InstitutionalZone, 0, len(c.BearishOB)+len(c.BearishFVG))
	out = append(out, c.BearishOB...)
	return append(out, c.BearishFVG...)
}

// Count is the total number of active zones.
func (c ZoneCatalog) Count() int {
	return len(c.BullishOB) + len(c.BearishOB) + len(c.BullishFVG) + len(c.BearishFVG)
}
