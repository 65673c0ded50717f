package models

import "time"

// ObservationFilter narrows observations to a keyword set, engine set and
// time window. Empty sets match everything; Until is exclusive and ignored
// when zero.
type ObservationFilter struct {
	KeywordIDs []string  `json:"keyword_ids"`
	Engines    []Engine  `json:"engines"`
	Since      time.Time `json:"since"`
	Until      time.Time `json:"until"`
}

// Matches reports whether obs falls inside the filter
func (f ObservationFilter) Matches(obs Observation) bool {
	if len(f.KeywordIDs) > 0 && !containsString(f.KeywordIDs, obs.KeywordID) {
		return false
	}
	if len(f.Engines) > 0 && !containsEngine(f.Engines, obs.Engine) {
		return false
	}
	if !f.Since.IsZero() && obs.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !obs.Timestamp.Before(f.Until) {
		return false
	}
	return true
}

func containsString(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}

func containsEngine(items []Engine, target Engine) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}
