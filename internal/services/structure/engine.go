package structure

import (
	"MarketCore/internal/domain/models"
	"MarketCore/internal/domain/repository"
	domsvc "MarketCore/internal/domain/service"
)

// Config holds level clustering and zone detection thresholds.
type Config struct {
	NumLevels       int     `yaml:"num_levels" default:"5" validate:"gte=1"`
	ToleranceATR    float64 `yaml:"tolerance_atr" default:"0.5" validate:"gt=0"`
	MinTolerance    float64 `yaml:"min_tolerance" default:"0.002" validate:"gt=0"`
	MaxTolerance    float64 `yaml:"max_tolerance" default:"0.008" validate:"gtefield=MinTolerance"`
	BreakATR        float64 `yaml:"break_atr" default:"0.3" validate:"gt=0"`
	ImbalanceFactor float64 `yaml:"imbalance_factor" default:"2" validate:"gt=0"`
	AverageWindow   int     `yaml:"average_window" default:"20" validate:"gte=1"`
	StructLookback  int     `yaml:"struct_lookback" default:"15" validate:"gte=1"`
	Mitigation      float64 `yaml:"mitigation" default:"0.5" validate:"gt=0,lte=1"`
	ConfluenceATR   float64 `yaml:"confluence_atr" default:"1" validate:"gt=0"`
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		NumLevels:       5,
		ToleranceATR:    0.5,
		MinTolerance:    0.002,
		MaxTolerance:    0.008,
		BreakATR:        0.3,
		ImbalanceFactor: 2,
		AverageWindow:   20,
		StructLookback:  15,
		Mitigation:      0.5,
		ConfluenceATR:   1,
	}
}

// Engine computes levels and zones as pure functions of a bar window.
type Engine struct {
	cfg Config
}

var _ domsvc.StructureEngine = (*Engine)(nil)

// New creates an engine; zero config fields fall back to defaults.
func New(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.NumLevels <= 0 {
		cfg.NumLevels = def.NumLevels
	}
	if cfg.ToleranceATR <= 0 {
		cfg.ToleranceATR = def.ToleranceATR
	}
	if cfg.MinTolerance <= 0 {
		cfg.MinTolerance = def.MinTolerance
	}
	if cfg.MaxTolerance < cfg.MinTolerance {
		cfg.MaxTolerance = def.MaxTolerance
	}
	if cfg.BreakATR <= 0 {
		cfg.BreakATR = def.BreakATR
	}
	if cfg.ImbalanceFactor <= 0 {
		cfg.ImbalanceFactor = def.ImbalanceFactor
	}
	if cfg.AverageWindow <= 0 {
		cfg.AverageWindow = def.AverageWindow
	}
	if cfg.StructLookback <= 0 {
		cfg.StructLookback = def.StructLookback
	}
	if cfg.Mitigation <= 0 || cfg.Mitigation > 1 {
		cfg.Mitigation = def.Mitigation
	}
	if cfg.ConfluenceATR <= 0 {
		cfg.ConfluenceATR = def.ConfluenceATR
	}
	return &Engine{cfg: cfg}
}

// Analysis is the combined structure output for one window.
type Analysis struct {
	Levels models.LevelCatalog
	Zones  models.ZoneCatalog
}

// Analyze computes levels and zones and tags levels that sit inside a matching zone.
func (e *Engine) Analyze(bars []models.Bar, iv repository.Interval) Analysis {
	clean := models.CleanBars(bars)
	levels := e.levels(clean, iv)
	zones := e.zones(clean)
	return Analysis{Levels: TagConfluence(levels, zones, e.cfg.ConfluenceATR), Zones: zones}
}

// Levels returns the nearest unbroken support and resistance levels.
func (e *Engine) Levels(bars []models.Bar, iv repository.Interval) models.LevelCatalog {
	return e.levels(models.CleanBars(bars), iv)
}

// Zones returns the order blocks and gaps still alive after the last bar.
func (e *Engine) Zones(bars []models.Bar) models.ZoneCatalog {
	return e.zones(models.CleanBars(bars))
}
