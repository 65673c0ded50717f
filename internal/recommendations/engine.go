// Package recommendations turns aggregated visibility metrics into a short,
// ordered list of findings.
package recommendations

import (
	"github.com/brandlens/ai-visibility/internal/config"
	"github.com/brandlens/ai-visibility/internal/models"
)

// Status summarises a Result for presentation
type Status string

const (
	StatusOK               Status = "ok"
	StatusNoFindings       Status = "no_findings"
	StatusInsufficientData Status = "insufficient_data"
)

const (
	MessageInsufficientData = "No recommendations yet. Run more visibility checks to get insights."
	MessageNoFindings       = "No issues found. Visibility is on track across engines and keywords."
)

// Thresholds are the tunable limits of the built-in rules
type Thresholds struct {
	LowEngineRate      float64
	MinCitationRate    float64
	LowKeywordRate     float64
	MaxUnderperforming int
	StrongEngineRate   float64
}

// DefaultThresholds returns the stock rule limits
func DefaultThresholds() Thresholds {
	return Thresholds{
		LowEngineRate:      0.40,
		MinCitationRate:    1.5,
		LowKeywordRate:     0.30,
		MaxUnderperforming: 3,
		StrongEngineRate:   0.60,
	}
}

// ThresholdsFromConfig reads the REC_* settings
func ThresholdsFromConfig(cfg *config.Config) Thresholds {
	return Thresholds{
		LowEngineRate:      cfg.LowEngineRate,
		MinCitationRate:    cfg.MinCitationRate,
		LowKeywordRate:     cfg.LowKeywordRate,
		MaxUnderperforming: cfg.MaxUnderperforming,
		StrongEngineRate:   cfg.StrongEngineRate,
	}
}

// Input is the slice of analytics the rules look at
type Input struct {
	Overall  models.Metrics
	ByEngine map[models.Engine]models.Metrics
	Keywords []models.KeywordStats
}

// InputFromAnalytics extracts the rule input from an analytics view
func InputFromAnalytics(a *models.Analytics) Input {
	return Input{
		Overall:  a.Overall,
		ByEngine: a.ByEngine,
		Keywords: a.Keywords,
	}
}

// enginesWhere returns matching engines in declaration order so output
// never depends on map iteration
func (in Input) enginesWhere(match func(models.Metrics) bool) []models.Engine {
	var engines []models.Engine
	for _, engine := range models.AllEngines() {
		m, ok := in.ByEngine[engine]
		if ok && m.TotalChecks > 0 && match(m) {
			engines = append(engines, engine)
		}
	}
	return engines
}

// Result is the outcome of one Generate call
type Result struct {
	Status          Status                  `json:"status"`
	Message         string                  `json:"message,omitempty"`
	Recommendations []models.Recommendation `json:"recommendations"`
}

// Engine runs the registered rules in order
type Engine struct {
	rules      []Rule
	thresholds Thresholds
}

// NewEngine creates an engine with the built-in rules registered
func NewEngine(th Thresholds) *Engine {
	return &Engine{
		rules: []Rule{
			LowEngineVisibility,
			LowCitationRate,
			UnderperformingKeywords,
			StrongEngines,
		},
		thresholds: th,
	}
}

// Generate evaluates every rule. Recommendations follow rule order. When no
// check found the brand at all the status is insufficient_data, even if a
// low-visibility rule fired.
func (e *Engine) Generate(in Input) Result {
	recommendations := make([]models.Recommendation, 0, len(e.rules))
	for _, rule := range e.rules {
		if rec := rule(in, e.thresholds); rec != nil {
			recommendations = append(recommendations, *rec)
		}
	}

	result := Result{Recommendations: recommendations}
	switch {
	case in.Overall.TotalChecks == 0 || in.Overall.PresenceCount == 0:
		result.Status = StatusInsufficientData
		result.Message = MessageInsufficientData
	case len(recommendations) == 0:
		result.Status = StatusNoFindings
		result.Message = MessageNoFindings
	default:
		result.Status = StatusOK
	}
	return result
}
