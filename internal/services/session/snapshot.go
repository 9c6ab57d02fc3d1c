package session

import (
	"time"

	"MarketCore/internal/domain/models"
)

// Snapshot renders the live state as seen at now.
func (t *Tracker) Snapshot(now time.Time) models.SessionSnapshot {
	return t.clock.Render(t.symbol, t.live, now)
}

// Render builds the session view of st at instant now.
func (c *Clock) Render(symbol string, st models.SessionState, now time.Time) models.SessionSnapshot {
	st = st.Clone()
	utcHour := now.UTC().Hour()
	active, killzone := c.Active(now)

	lonStart, lonEnd := c.bounds(now, c.london)
	nyStart, nyEnd := c.bounds(now, c.newYork)

	return models.SessionSnapshot{
		Symbol:         symbol,
		CurrentSession: active,
		ClockUTC:       now.UTC().Format("15:04") + " UTC",
		ClockLocal:     now.In(c.display).Format("15:04") + " " + c.label,
		IsKillzone:     killzone,
		Sessions: models.SessionInfos{
			Asia:   c.info(st.Asia, now, asiaStartUTC, asiaEndUTC, utcHour, false),
			London: c.info(st.London, now, lonStart, lonEnd, utcHour, true),
			NY:     c.info(st.NY, now, nyStart, nyEnd, utcHour, true),
		},
		PDH:        st.PDH,
		PDL:        st.PDL,
		PDHSwept:   st.PDHSwept,
		PDLSwept:   st.PDLSwept,
		TradingDay: st.TradingDay,
	}
}

// info reports ACTIVE inside [start,end), otherwise PENDING before start when
// withPending is set, else CLOSED.
func (c *Clock) info(ext models.SessionExtremes, now time.Time, start, end, utcHour int, withPending bool) models.SessionInfo {
	status := models.SessionClosed
	switch {
	case utcHour >= start && utcHour < end:
		status = models.SessionActive
	case withPending && utcHour < start:
		status = models.SessionPending
	}
	return models.SessionInfo{
		SessionExtremes: ext,
		StartUTC:        start,
		EndUTC:          end,
		OpenLocal:       c.displayHour(now, start),
		CloseLocal:      c.displayHour(now, end),
		Status:          status,
	}
}
