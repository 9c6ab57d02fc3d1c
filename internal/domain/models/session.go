package models

import "time"

// SessionExtremes accumulates one trading session's range. Nil means no bar seen yet.
type SessionExtremes struct {
	High      *float64 `json:"high"`
	Low       *float64 `json:"low"`
	SweptHigh bool     `json:"swept_high"`
	SweptLow  bool     `json:"swept_low"`
}

// Extend widens the range with a bar's high and low.
func (s *SessionExtremes) Extend(high, low float64) {
	if s.High == nil || high > *s.High {
		h := high
		s.High = &h
	}
	if s.Low == nil || low < *s.Low {
		l := low
		s.Low = &l
	}
}

// SessionState is the persisted per-symbol session record.
type SessionState struct {
	TradingDay string          `json:"trading_day"`
	Asia       SessionExtremes `json:"asia"`
	London     SessionExtremes `json:"london"`
	NY         SessionExtremes `json:"ny"`
	PDH        *float64        `json:"pdh"`
	PDL        *float64        `json:"pdl"`
	PDHSwept   bool            `json:"pdh_swept"`
	PDLSwept   bool            `json:"pdl_swept"`
	LastBar    time.Time       `json:"last_bar_time"`
}

// NewSessionState returns an empty state for the given day (YYYY-MM-DD or empty).
func NewSessionState(day string) SessionState {
	return SessionState{TradingDay: day}
}

// Clone deep-copies the pointer fields.
func (s SessionState) Clone() SessionState {
	out := s
	out.Asia = s.Asia.clone()
	out.London = s.London.clone()
	out.NY = s.NY.clone()
	out.PDH = clonePtr(s.PDH)
	out.PDL = clonePtr(s.PDL)
	return out
}

// Sessions returns pointers to the three session accumulators in Asia, London, NY order.
func (s *SessionState) Sessions() []*SessionExtremes {
	return []*SessionExtremes{&s.Asia, &s.London, &s.NY}
}

func (e SessionExtremes) clone() SessionExtremes {
	e.High = clonePtr(e.High)
	e.Low = clonePtr(e.Low)
	return e
}

func clonePtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

type SessionStatus string

const (
	SessionActive  SessionStatus = "ACTIVE"
	SessionPending SessionStatus = "PENDING"
	SessionClosed  SessionStatus = "CLOSED"
)

// ActiveSession names the liquidity window a timestamp falls in.
type ActiveSession string

const (
	ActiveAsia           ActiveSession = "ASIA"
	ActiveLondonKillzone ActiveSession = "LONDON_KILLZONE"
	ActiveLondon         ActiveSession = "LONDON"
	ActiveNYKillzone     ActiveSession = "NY_KILLZONE"
	ActiveNewYork        ActiveSession = "NEW_YORK"
	ActiveOffHours       ActiveSession = "OFF_HOURS"
)

// Recognized reports whether the session counts as a liquidity window.
func (a ActiveSession) Recognized() bool {
	switch a {
	case ActiveAsia, ActiveLondonKillzone, ActiveLondon, ActiveNYKillzone, ActiveNewYork:
		return true
	default:
		return false
	}
}

// SessionInfo is one session's snapshot view.
type SessionInfo struct {
	SessionExtremes
	StartUTC   int           `json:"start_utc"`
	EndUTC     int           `json:"end_utc"`
	OpenLocal  string        `json:"open_local"`
	CloseLocal string        `json:"close_local"`
	Status     SessionStatus `json:"status"`
}

type SessionInfos struct {
	Asia   SessionInfo `json:"asia"`
	London SessionInfo `json:"london"`
	NY     SessionInfo `json:"ny"`
}

// All returns the three sessions in Asia, London, NY order.
func (s SessionInfos) All() []SessionInfo {
	return []SessionInfo{s.Asia, s.London, s.NY}
}

// SessionSnapshot is the read-only view of a SessionTracker at an instant.
type SessionSnapshot struct {
	Symbol         string        `json:"symbol"`
	CurrentSession ActiveSession `json:"current_session"`
	ClockUTC       string        `json:"current_session_utc"`
	ClockLocal     string        `json:"local_time"`
	IsKillzone     bool          `json:"is_killzone"`
	Sessions       SessionInfos  `json:"sessions"`
	PDH            *float64      `json:"pdh"`
	PDL            *float64      `json:"pdl"`
	PDHSwept       bool          `json:"pdh_swept"`
	PDLSwept       bool          `json:"pdl_swept"`
	TradingDay     string        `json:"trading_day"`
}

// AnySweptLow reports a low sweep on any session.
func (s SessionSnapshot) AnySweptLow() bool {
	for _, info := range s.Sessions.All() {
		if info.SweptLow {
			return true
		}
	}
	return false
}

// AnySweptHigh reports a high sweep on any session.
func (s SessionSnapshot) AnySweptHigh() bool {
	for _, info := range s.Sessions.All() {
		if info.SweptHigh {
			return true
		}
	}
	return false
}
