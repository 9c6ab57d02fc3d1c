package models

import "time"

// AnalysisSnapshot is the slow-path output for one symbol after its latest closed bar.
type AnalysisSnapshot struct {
	Symbol    string           `json:"symbol"`
	Interval  string           `json:"interval"`
	Time      time.Time        `json:"time"`
	LastBar   Bar              `json:"last_bar"`
	Regime    RegimePoint      `json:"regime"`
	Levels    LevelCatalog     `json:"levels"`
	Zones     ZoneCatalog      `json:"zones"`
	Momentum  MomentumContext  `json:"momentum"`
	Session   *SessionSnapshot `json:"session,omitempty"`
	BarsInUse int              `json:"bars_in_use"`
}

// AnalysisEvent is the message published for every slow-path run.
type AnalysisEvent struct {
	ID       string           `json:"id"`
	Emitted  time.Time        `json:"emitted_at"`
	Snapshot AnalysisSnapshot `json:"snapshot"`
}
