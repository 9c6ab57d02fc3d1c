package features

import (
	"time"

	"MarketCore/internal/domain/models"
)

// Resample aggregates ordered bars into buckets of length d aligned to UTC boundaries.
// A trailing partial bucket is kept only when includePartial is set.
func Resample(bars []models.Bar, d time.Duration, includePartial bool) []models.Bar {
	if d <= 0 || len(bars) == 0 {
		return nil
	}
	out := make([]models.Bar, 0, len(bars)/2+1)
	var cur models.Bar
	var bucket time.Time
	open := false
	for _, b := range bars {
		start := b.Time.UTC().Truncate(d)
		if open && start.Equal(bucket) {
			if b.High > cur.High {
				cur.High = b.High
			}
			if b.Low < cur.Low {
				cur.Low = b.Low
			}
			cur.Close = b.Close
			cur.Volume += b.Volume
			continue
		}
		if open {
			out = append(out, cur)
		}
		bucket = start
		cur = models.Bar{Time: start, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume}
		open = true
	}
	if open {
		last := bars[len(bars)-1].Time.UTC()
		step := last.Sub(bucket)
		if includePartial || len(bars) < 2 || step+inferStep(bars) >= d {
			out = append(out, cur)
		}
	}
	return out
}

// inferStep returns the spacing of the last two bars.
func inferStep(bars []models.Bar) time.Duration {
	if len(bars) < 2 {
		return 0
	}
	return bars[len(bars)-1].Time.Sub(bars[len(bars)-2].Time)
}
