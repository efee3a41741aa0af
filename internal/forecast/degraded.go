package forecast

import (
	"time"

	"goldwatch/internal/pricing"
)

const (
	// DegradedModelVersion labels fallback results so callers can tell them
	// apart from genuine model output.
	DegradedModelVersion = "fallback-trend-v1"

	degradedBandPct  = 0.02
	trendWindow      = 7
	maxDailyTrendPct = 0.005
)

// GenerateDegraded produces a fallback forecast from the last known price
// plus a capped recent-trend extrapolation, with a fixed ±2% band. It is a
// pure function with no I/O and never fails; it is the last line of defense
// when the remote forecaster is unreachable.
//
// History is expected in ascending date order; an empty history yields a
// flat forecast anchored at now with zero prices rather than an error.
func GenerateDegraded(history []pricing.PricePoint, horizonDays int, now time.Time) Result {
	var (
		lastPrice float64
		lastDate  = now.UTC()
	)
	if len(history) > 0 {
		last := history[len(history)-1]
		lastPrice = last.Price.InexactFloat64()
		lastDate = last.Date.UTC()
	}

	trend := recentTrend(history)
	if limit := lastPrice * maxDailyTrendPct; trend > limit {
		trend = limit
	} else if trend < -limit {
		trend = -limit
	}

	points := make([]Point, 0, horizonDays)
	for i := 1; i <= horizonDays; i++ {
		center := lastPrice + trend*float64(i)
		if center < 0 {
			center = 0
		}
		points = append(points, Point{
			DS:        lastDate.AddDate(0, 0, i).Format("2006-01-02"),
			Yhat:      center,
			YhatLower: center * (1 - degradedBandPct),
			YhatUpper: center * (1 + degradedBandPct),
		})
	}

	return Result{
		GeneratedAt:        now.UTC(),
		HorizonDays:        horizonDays,
		Forecast:           points,
		ModelVersion:       DegradedModelVersion,
		TrainingWindowDays: len(history),
		Degraded:           true,
	}
}

// recentTrend is the mean day-over-day change across the last few closes.
func recentTrend(history []pricing.PricePoint) float64 {
	window := history
	if len(window) > trendWindow {
		window = window[len(window)-trendWindow:]
	}
	if len(window) < 2 {
		return 0
	}

	first := window[0].Price.InexactFloat64()
	last := window[len(window)-1].Price.InexactFloat64()
	return (last - first) / float64(len(window)-1)
}
