package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/brandlens/ai-visibility/internal/models"
	"github.com/brandlens/ai-visibility/internal/storage"
)

// Query selects the project, keywords, engines and window of an analytics
// read. Zero Since/Until fall back to the lookback window ending now.
type Query struct {
	ProjectID  string
	KeywordIDs []string
	Engines    []models.Engine
	Since      time.Time
	Until      time.Time
}

// Snapshot is everything read for one request. Observations are kept so
// callers can drill down without reading the store again.
type Snapshot struct {
	Project      models.Project
	Keywords     []models.Keyword
	Observations []models.Observation
	Analytics    *models.Analytics
}

// Service reads observations once per request and reduces them
type Service struct {
	store    storage.Store
	window   Window
	location *time.Location
	now      func() time.Time
}

func NewService(store storage.Store, window Window, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		store:    store,
		window:   window,
		location: loc,
		now:      time.Now,
	}
}

// Snapshot computes overall, per-engine, per-day and per-keyword metrics
// plus the recent-vs-older trend for q. An empty observation set yields
// zero-filled metrics, not an error.
func (s *Service) Snapshot(ctx context.Context, q Query) (*Snapshot, error) {
	project, err := s.store.GetProject(ctx, q.ProjectID)
	if err != nil {
		return nil, err
	}

	keywords, err := s.store.ListKeywords(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list keywords of %s: %w", project.ID, err)
	}
	keywords, err = selectKeywords(keywords, q.KeywordIDs)
	if err != nil {
		return nil, err
	}

	for _, engine := range q.Engines {
		if !engine.Valid() {
			return nil, &models.ValidationError{Field: "engines", Reason: fmt.Sprintf("unknown engine %s", engine)}
		}
	}

	until := q.Until
	if until.IsZero() {
		until = s.now()
	}
	since := q.Since
	if since.IsZero() {
		since = until.Add(-s.window.Lookback)
	}
	if !since.Before(until) {
		return nil, &models.ValidationError{Field: "since", Reason: "must be before until"}
	}

	// the trend always covers the full lookback ending at until, even when
	// the caller asks for a shorter range
	readSince, _ := s.window.Bounds(until)
	if since.Before(readSince) {
		readSince = since
	}

	var observations []models.Observation
	if len(keywords) > 0 {
		ids := make([]string, 0, len(keywords))
		for _, keyword := range keywords {
			ids = append(ids, keyword.ID)
		}
		observations, err = s.store.Query(ctx, models.ObservationFilter{
			KeywordIDs: ids,
			Engines:    q.Engines,
			Since:      readSince,
			Until:      until,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query observations: %w", err)
		}
	}

	analytics := Summarize(project.ID, keywords, observations, since, until, s.window, s.location)
	return &Snapshot{
		Project:      *project,
		Keywords:     keywords,
		Observations: Apply(models.ObservationFilter{Since: since, Until: until}, observations),
		Analytics:    analytics,
	}, nil
}

// Summarize builds the analytics view of observations already narrowed to
// keywords. Metrics cover [since, until); the trend compares the recent
// window of w against the rest of its lookback, both ending at until.
func Summarize(projectID string, keywords []models.Keyword, observations []models.Observation, since, until time.Time, w Window, loc *time.Location) *models.Analytics {
	inRange := Apply(models.ObservationFilter{Since: since, Until: until}, observations)
	lookbackStart, split := w.Bounds(until)
	inLookback := Apply(models.ObservationFilter{Since: lookbackStart, Until: until}, observations)

	return &models.Analytics{
		ProjectID:     projectID,
		Since:         since,
		Until:         until,
		KeywordsCount: len(keywords),
		Overall:       Overall(inRange),
		ByEngine:      ByEngine(inRange),
		ByDay:         ByDay(inRange, loc),
		Keywords:      KeywordStats(keywords, inRange),
		Trend:         CalculateTrend(inLookback, split),
	}
}

// KeywordStats returns one row per keyword in keyword order. Keywords with
// no observations get zero metrics and a nil LastChecked.
func KeywordStats(keywords []models.Keyword, observations []models.Observation) []models.KeywordStats {
	byKeyword := ByKeyword(observations)

	lastChecked := make(map[string]time.Time, len(byKeyword))
	for _, obs := range observations {
		if last, ok := lastChecked[obs.KeywordID]; !ok || obs.Timestamp.After(last) {
			lastChecked[obs.KeywordID] = obs.Timestamp
		}
	}

	stats := make([]models.KeywordStats, 0, len(keywords))
	for _, keyword := range keywords {
		row := models.KeywordStats{
			Keyword: keyword,
			Metrics: byKeyword[keyword.ID],
		}
		if last, ok := lastChecked[keyword.ID]; ok {
			row.LastChecked = &last
		}
		stats = append(stats, row)
	}
	return stats
}

func selectKeywords(keywords []models.Keyword, ids []string) ([]models.Keyword, error) {
	if len(ids) == 0 {
		return keywords, nil
	}

	byID := make(map[string]models.Keyword, len(keywords))
	for _, keyword := range keywords {
		byID[keyword.ID] = keyword
	}

	selected := make([]models.Keyword, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		keyword, ok := byID[id]
		if !ok {
			return nil, &models.NotFoundError{Kind: "keyword", ID: id}
		}
		selected = append(selected, keyword)
	}
	return selected, nil
}
