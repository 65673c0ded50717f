package analytics

import (
	"time"

	"github.com/brandlens/ai-visibility/internal/models"
)

// CalculateTrend splits observations at split (recent = timestamp >= split)
// and returns the presence-rate delta in percentage points.
//
// An empty window contributes a 0% rate, so "no prior data" and "prior data
// with zero visibility" produce the same delta. HasBaseline is false in the
// first case so callers can render "insufficient history" instead.
func CalculateTrend(observations []models.Observation, split time.Time) models.Trend {
	var recent, older accumulator
	for _, obs := range observations {
		if obs.Timestamp.Before(split) {
			older.add(obs)
		} else {
			recent.add(obs)
		}
	}

	recentMetrics := recent.metrics()
	olderMetrics := older.metrics()

	return models.Trend{
		Split:       split,
		Recent:      recentMetrics,
		Older:       olderMetrics,
		DeltaPoints: (recentMetrics.PresenceRate - olderMetrics.PresenceRate) * 100,
		HasBaseline: olderMetrics.TotalChecks > 0,
	}
}

// Window is the lookback/recent policy used by the analytics read
type Window struct {
	Recent   time.Duration
	Lookback time.Duration
}

// DefaultWindow compares the last 7 days against the rest of a 30-day lookback
var DefaultWindow = Window{
	Recent:   7 * 24 * time.Hour,
	Lookback: 30 * 24 * time.Hour,
}

// Bounds returns the lookback start and the recent split relative to now
func (w Window) Bounds(now time.Time) (since, split time.Time) {
	return now.Add(-w.Lookback), now.Add(-w.Recent)
}

// WindowFromDays builds a Window from RECENT_WINDOW_DAYS and LOOKBACK_DAYS
func WindowFromDays(recent, lookback int) Window {
	return Window{
		Recent:   time.Duration(recent) * 24 * time.Hour,
		Lookback: time.Duration(lookback) * 24 * time.Hour,
	}
}
