package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"MarketCore/internal/domain/models"
)

func TestClockSessionMembershipFollowsDST(t *testing.T) {
	winter := time.Date(2024, time.January, 10, 7, 30, 0, 0, time.UTC)
	summer := time.Date(2024, time.July, 10, 7, 30, 0, 0, time.UTC)
	assert.False(t, clock.InLondon(winter))
	assert.True(t, clock.InLondon(summer))

	winterNY := time.Date(2024, time.January, 10, 12, 0, 0, 0, time.UTC)
	summerNY := time.Date(2024, time.July, 10, 12, 0, 0, 0, time.UTC)
	assert.False(t, clock.InNewYork(winterNY))
	assert.True(t, clock.InNewYork(summerNY))

	assert.True(t, clock.InAsia(time.Date(2024, time.July, 10, 5, 59, 0, 0, time.UTC)))
	assert.False(t, clock.InAsia(time.Date(2024, time.July, 10, 6, 0, 0, 0, time.UTC)))
}

func TestClockActiveSession(t *testing.T) {
	tests := []struct {
		at       time.Time
		want     models.ActiveSession
		killzone bool
	}{
		{at(10, 1, 0), models.ActiveAsia, false},
		{at(10, 8, 30), models.ActiveLondonKillzone, true},
		{at(10, 12, 0), models.ActiveLondon, false},
		{at(10, 14, 15), models.ActiveNYKillzone, true},
		{at(10, 17, 0), models.ActiveNewYork, false},
		{at(10, 22, 0), models.ActiveOffHours, false},
	}
	for _, tt := range tests {
		t.Run(tt.at.Format("15:04"), func(t *testing.T) {
			got, kz := clock.Active(tt.at)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.killzone, kz)
		})
	}
}

func TestRenderSnapshot(t *testing.T) {
	st := models.NewSessionState("2024-01-10")
	st.London.Extend(110, 100)
	snap := clock.Render("BTCUSDT", st, at(10, 14, 15))

	assert.Equal(t, models.ActiveNYKillzone, snap.CurrentSession)
	assert.True(t, snap.IsKillzone)
	assert.Equal(t, "14:15 UTC", snap.ClockUTC)
	assert.Equal(t, "11:15 Santiago", snap.ClockLocal)
	assert.Equal(t, models.SessionClosed, snap.Sessions.Asia.Status)
	assert.Equal(t, models.SessionActive, snap.Sessions.London.Status)
	assert.Equal(t, models.SessionActive, snap.Sessions.NY.Status)
	assert.Equal(t, 8, snap.Sessions.London.StartUTC)
	assert.Equal(t, 13, snap.Sessions.NY.StartUTC)
	assert.Equal(t, 21, snap.Sessions.NY.EndUTC)
	assert.Equal(t, "05:00", snap.Sessions.London.OpenLocal)
	assert.Equal(t, 110.0, *snap.Sessions.London.High)

	early := clock.Render("BTCUSDT", st, at(10, 7, 0))
	assert.Equal(t, models.SessionPending, early.Sessions.London.Status)
	assert.Equal(t, models.SessionPending, early.Sessions.NY.Status)
	assert.Equal(t, models.SessionClosed, early.Sessions.Asia.Status)

	summer := clock.Render("BTCUSDT", st, time.Date(2024, time.July, 10, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, 7, summer.Sessions.London.StartUTC)
	assert.Equal(t, 12, summer.Sessions.NY.StartUTC)
}

func TestNewClockRejectsUnknownZone(t *testing.T) {
	_, err := NewClock("Mars/Olympus")
	assert.Error(t, err)
}
