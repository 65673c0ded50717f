package models

import "time"

// Project is the brand being tracked
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Domain      string    `json:"domain"`
	BrandName   string    `json:"brand_name"`
	Competitors []string  `json:"competitors"`
	CreatedAt   time.Time `json:"created_at"`
}

// Keyword is a tracked query owned by exactly one project
type Keyword struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Keyword   string    `json:"keyword"`
	Category  *string   `json:"category"`
	Priority  int       `json:"priority"`
	CreatedAt time.Time `json:"created_at"`
}

// Metrics is a derived snapshot over one scope (overall, engine, day or keyword).
// AvgPosition is nil when no observation in scope had a position.
type Metrics struct {
	TotalChecks    int      `json:"total_checks"`
	PresenceCount  int      `json:"presence_count"`
	PresenceRate   float64  `json:"presence_rate"`
	AvgPosition    *float64 `json:"avg_position"`
	TotalCitations int      `json:"total_citations"`
	AvgCitations   float64  `json:"avg_citations"`
}

// Trend compares presence rate across two adjacent windows.
// DeltaPoints is recent minus older in percentage points; an empty window
// counts as a 0% rate, and HasBaseline tells the two cases apart.
type Trend struct {
	Split       time.Time `json:"split"`
	Recent      Metrics   `json:"recent"`
	Older       Metrics   `json:"older"`
	DeltaPoints float64   `json:"delta_points"`
	HasBaseline bool      `json:"has_baseline"`
}

// Priority orders recommendations for presentation
type Priority string

const (
	PriorityHigh    Priority = "high"
	PriorityMedium  Priority = "medium"
	PrioritySuccess Priority = "success"
)

// Recommendation is a human-readable finding derived from metrics
type Recommendation struct {
	Rule        string   `json:"rule"`
	Priority    Priority `json:"priority"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Action      string   `json:"action"`
	Engines     []Engine `json:"engines,omitempty"`
}

// CheckRequest asks for one observation per (keyword, engine) pair
type CheckRequest struct {
	ProjectID  string   `json:"projectId"`
	KeywordIDs []string `json:"keywordIds"`
	Engines    []Engine `json:"engines"`
}

// BatchResult reports how many checks of a batch made it to storage
// Failed counts pairs that produced no observation; FailedBatches lists the
// persistence batch indexes whose write was rejected.
type BatchResult struct {
	Attempted     int       `json:"attempted"`
	Collected     int       `json:"collected"`
	Persisted     int       `json:"persisted"`
	Failed        int       `json:"failed"`
	FailedBatches []int     `json:"failed_batches,omitempty"`
	Errors        []string  `json:"errors,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	Duration      string    `json:"duration"`
}

// KeywordStats is the per-keyword drill-down row
type KeywordStats struct {
	Keyword     Keyword    `json:"keyword"`
	Metrics     Metrics    `json:"metrics"`
	LastChecked *time.Time `json:"last_checked"`
}

// Analytics is the aggregated view handed to presentation
type Analytics struct {
	ProjectID     string             `json:"project_id"`
	Since         time.Time          `json:"since"`
	Until         time.Time          `json:"until"`
	KeywordsCount int                `json:"keywords_count"`
	Overall       Metrics            `json:"overall"`
	ByEngine      map[Engine]Metrics `json:"by_engine"`
	ByDay         map[string]Metrics `json:"by_day"`
	Keywords      []KeywordStats     `json:"keywords"`
	Trend         Trend              `json:"trend"`
}

// VisibilityReport is the periodic digest sent through notification channels
type VisibilityReport struct {
	GeneratedAt     time.Time        `json:"generated_at"`
	Period          string           `json:"period"` // "daily" or "weekly"
	Project         Project          `json:"project"`
	Analytics       *Analytics       `json:"analytics"`
	Recommendations []Recommendation `json:"recommendations"`
	Status          string           `json:"status"`
	Message         string           `json:"message,omitempty"`
}

// Alert represents an urgent notification
type Alert struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"` // "critical", "urgent", "info"
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	ProjectID string    `json:"project_id"`
	Trend     *Trend    `json:"trend,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
