// Package analytics reduces visibility observations into metrics snapshots
// and presence-rate trends. Everything here is a pure function over an
// in-memory slice; nothing holds locks or mutates shared state.
package analytics

import (
	"time"

	"github.com/brandlens/ai-visibility/internal/models"
)

// DayLayout is the key format of per-day buckets
const DayLayout = "2006-01-02"

// Apply returns the observations that fall inside f. Observations outside
// it are dropped, never counted as zero.
func Apply(f models.ObservationFilter, observations []models.Observation) []models.Observation {
	filtered := make([]models.Observation, 0, len(observations))
	for _, obs := range observations {
		if f.Matches(obs) {
			filtered = append(filtered, obs)
		}
	}
	return filtered
}

// accumulator keeps integer sums only, so the final snapshot does not depend
// on the order observations were added in.
type accumulator struct {
	total          int
	present        int
	positionSum    int
	positioned     int
	totalCitations int
}

func (a *accumulator) add(obs models.Observation) {
	a.total++
	if obs.Presence {
		a.present++
	}
	if obs.Position != nil {
		a.positionSum += *obs.Position
		a.positioned++
	}
	a.totalCitations += obs.CitationsCount
}

func (a *accumulator) metrics() models.Metrics {
	m := models.Metrics{
		TotalChecks:    a.total,
		PresenceCount:  a.present,
		TotalCitations: a.totalCitations,
	}
	if a.total > 0 {
		m.PresenceRate = float64(a.present) / float64(a.total)
	}
	if a.positioned > 0 {
		avg := float64(a.positionSum) / float64(a.positioned)
		m.AvgPosition = &avg
	}
	if a.present > 0 {
		m.AvgCitations = float64(a.totalCitations) / float64(a.present)
	}
	return m
}

// Overall reduces every observation into one snapshot. An empty input yields
// a zero-filled snapshot.
func Overall(observations []models.Observation) models.Metrics {
	var acc accumulator
	for _, obs := range observations {
		acc.add(obs)
	}
	return acc.metrics()
}

// GroupBy buckets observations by key and reduces each bucket.
func GroupBy[K comparable](observations []models.Observation, key func(models.Observation) K) map[K]models.Metrics {
	buckets := make(map[K]*accumulator)
	for _, obs := range observations {
		k := key(obs)
		acc, ok := buckets[k]
		if !ok {
			acc = &accumulator{}
			buckets[k] = acc
		}
		acc.add(obs)
	}

	result := make(map[K]models.Metrics, len(buckets))
	for k, acc := range buckets {
		result[k] = acc.metrics()
	}
	return result
}

// ByEngine groups by engine. Engines with no observations are absent from
// the map rather than zero-counted.
func ByEngine(observations []models.Observation) map[models.Engine]models.Metrics {
	return GroupBy(observations, func(obs models.Observation) models.Engine {
		return obs.Engine
	})
}

// ByKeyword groups by keyword id
func ByKeyword(observations []models.Observation) map[string]models.Metrics {
	return GroupBy(observations, func(obs models.Observation) string {
		return obs.KeywordID
	})
}

// ByDay groups by the calendar date of the timestamp in loc.
func ByDay(observations []models.Observation, loc *time.Location) map[string]models.Metrics {
	if loc == nil {
		loc = time.UTC
	}
	return GroupBy(observations, func(obs models.Observation) string {
		return DayKey(obs.Timestamp, loc)
	})
}

// DayKey formats the calendar date of t in loc
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DayLayout)
}
