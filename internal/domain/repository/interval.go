package repository

import (
	"fmt"
	"time"
)

// Interval is a bar resolution.
type Interval string

const (
	TF1m  Interval = "1m"
	TF3m  Interval = "3m"
	TF5m  Interval = "5m"
	TF15m Interval = "15m"
	TF30m Interval = "30m"
	TF1h  Interval = "1h"
	TF2h  Interval = "2h"
	TF4h  Interval = "4h"
	TF6h  Interval = "6h"
	TF8h  Interval = "8h"
	TF12h Interval = "12h"
	TF1d  Interval = "1d"
	TF3d  Interval = "3d"
	TF1w  Interval = "1w"
)

// DefaultPivotWindow applies to intervals missing from the table.
const DefaultPivotWindow = 21

type intervalSpec struct {
	d      time.Duration
	window int
}

// window ~ number of bars forming one structural swing at that cadence
var intervals = map[Interval]intervalSpec{
	TF1m:  {time.Minute, 5},
	TF3m:  {3 * time.Minute, 7},
	TF5m:  {5 * time.Minute, 10},
	TF15m: {15 * time.Minute, 21},
	TF30m: {30 * time.Minute, 18},
	TF1h:  {time.Hour, 21},
	TF2h:  {2 * time.Hour, 15},
	TF4h:  {4 * time.Hour, 14},
	TF6h:  {6 * time.Hour, 10},
	TF8h:  {8 * time.Hour, 10},
	TF12h: {12 * time.Hour, 8},
	TF1d:  {24 * time.Hour, 8},
	TF3d:  {72 * time.Hour, 5},
	TF1w:  {7 * 24 * time.Hour, 4},
}

// IsValidInterval returns true if iv is a supported interval.
func IsValidInterval(iv Interval) bool {
	_, ok := intervals[iv]
	return ok
}

// DefaultInterval returns the default interval.
func DefaultInterval() Interval { return TF15m }

// ParseInterval validates a raw interval string.
func ParseInterval(s string) (Interval, error) {
	iv := Interval(s)
	if !IsValidInterval(iv) {
		return "", fmt.Errorf("unsupported interval %q", s)
	}
	return iv, nil
}

// NormalizeInterval converts raw string to a valid interval (or default).
func NormalizeInterval(s string) Interval {
	if iv, err := ParseInterval(s); err == nil {
		return iv
	}
	return DefaultInterval()
}

// Duration returns the bar length, zero if unknown.
func (iv Interval) Duration() time.Duration { return intervals[iv].d }

// PivotWindow returns the pivot suppression distance for the interval.
func (iv Interval) PivotWindow() int {
	if spec, ok := intervals[iv]; ok {
		return spec.window
	}
	return DefaultPivotWindow
}

func (iv Interval) String() string { return string(iv) }
