package session

import (
	"fmt"
	"path"
	"time"
	_ "time/tzdata"

	"MarketCore/internal/domain/models"
)

// Session hours. Asia is a fixed UTC proxy; London and New York are local
// exchange hours, so their UTC boundaries move with daylight saving.
const (
	asiaStartUTC = 0
	asiaEndUTC   = 6
	localOpen    = 8
	localClose   = 16
	killzoneEnd  = 11
	tokyoOpen    = 9
	tokyoClose   = 15
)

// Clock converts instants into session membership and display strings.
type Clock struct {
	london  *time.Location
	newYork *time.Location
	tokyo   *time.Location
	display *time.Location
	label   string
}

// NewClock loads the exchange zones and the display zone (IANA name).
func NewClock(displayTZ string) (*Clock, error) {
	if displayTZ == "" {
		displayTZ = "America/Santiago"
	}
	c := &Clock{label: path.Base(displayTZ)}
	var err error
	for _, z := range []struct {
		name string
		dst  **time.Location
	}{
		{"Europe/London", &c.london},
		{"America/New_York", &c.newYork},
		{"Asia/Tokyo", &c.tokyo},
		{displayTZ, &c.display},
	} {
		if *z.dst, err = time.LoadLocation(z.name); err != nil {
			return nil, fmt.Errorf("load location %s: %w", z.name, err)
		}
	}
	return c, nil
}

// MustClock is NewClock for static zone names.
func MustClock(displayTZ string) *Clock {
	c, err := NewClock(displayTZ)
	if err != nil {
		panic(err)
	}
	return c
}

// InAsia reports 00:00-06:00 UTC.
func (c *Clock) InAsia(t time.Time) bool {
	h := t.UTC().Hour()
	return h >= asiaStartUTC && h < asiaEndUTC
}

// InLondon reports 08:00-16:00 London local time.
func (c *Clock) InLondon(t time.Time) bool {
	h := t.In(c.london).Hour()
	return h >= localOpen && h < localClose
}

// InNewYork reports 08:00-16:00 New York local time.
func (c *Clock) InNewYork(t time.Time) bool {
	h := t.In(c.newYork).Hour()
	return h >= localOpen && h < localClose
}

// Active names the liquidity window at t and whether it is a killzone.
func (c *Clock) Active(t time.Time) (models.ActiveSession, bool) {
	tokyo := t.In(c.tokyo).Hour()
	lon := t.In(c.london).Hour()
	ny := t.In(c.newYork).Hour()
	switch {
	case tokyo >= tokyoOpen && tokyo < tokyoClose:
		return models.ActiveAsia, false
	case lon >= localOpen && lon < killzoneEnd:
		return models.ActiveLondonKillzone, true
	case lon >= killzoneEnd && lon < localClose && ny < localOpen:
		return models.ActiveLondon, false
	case ny >= localOpen && ny < killzoneEnd:
		return models.ActiveNYKillzone, true
	case ny >= killzoneEnd && ny < localClose:
		return models.ActiveNewYork, false
	default:
		return models.ActiveOffHours, false
	}
}

// bounds returns a session's UTC start and end hours on the day of t.
func (c *Clock) bounds(t time.Time, loc *time.Location) (int, int) {
	_, off := t.In(loc).Zone()
	h := off / 3600
	return localOpen - h, localClose - h
}

// displayHour formats hour h (UTC, on t's date) in the display zone.
func (c *Clock) displayHour(t time.Time, h int) string {
	u := t.UTC()
	at := time.Date(u.Year(), u.Month(), u.Day(), ((h%24)+24)%24, 0, 0, 0, time.UTC)
	return at.In(c.display).Format("15:04")
}

// Day returns the UTC calendar day key of t.
func Day(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}
