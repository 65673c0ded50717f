package recommendations

import (
	"fmt"
	"strings"

	"github.com/brandlens/ai-visibility/internal/models"
)

// Rule names as reported in models.Recommendation.Rule
const (
	RuleLowEngineVisibility   = "low_engine_visibility"
	RuleLowCitationRate       = "low_citation_rate"
	RuleUnderperformingKeywds = "underperforming_keywords"
	RuleStrongEngines         = "strong_engine_performance"
)

// Rule inspects the input and returns at most one recommendation
type Rule func(in Input, th Thresholds) *models.Recommendation

// LowEngineVisibility names every engine whose presence rate is below th.LowEngineRate
func LowEngineVisibility(in Input, th Thresholds) *models.Recommendation {
	weak := in.enginesWhere(func(m models.Metrics) bool { return m.PresenceRate < th.LowEngineRate })
	if len(weak) == 0 {
		return nil
	}

	return &models.Recommendation{
		Rule:        RuleLowEngineVisibility,
		Priority:    models.PriorityHigh,
		Title:       fmt.Sprintf("Low visibility on %d engine(s)", len(weak)),
		Description: fmt.Sprintf("%s showing <%s presence. Focus on optimizing content for these platforms.", displayNames(weak), percent(th.LowEngineRate)),
		Action:      "Review content structure and E-E-A-T signals",
		Engines:     weak,
	}
}

// LowCitationRate fires when present answers carry too few citations on average
func LowCitationRate(in Input, th Thresholds) *models.Recommendation {
	if in.Overall.PresenceCount == 0 {
		return nil
	}
	rate := float64(in.Overall.TotalCitations) / float64(in.Overall.PresenceCount)
	if rate >= th.MinCitationRate {
		return nil
	}

	return &models.Recommendation{
		Rule:        RuleLowCitationRate,
		Priority:    models.PriorityHigh,
		Title:       "Low citation rate detected",
		Description: fmt.Sprintf("Average %.2f citations per mention. AI engines recognize your brand but don't cite your content as authoritative.", rate),
		Action:      "Improve content authority with original research and structured data",
	}
}

// UnderperformingKeywords fires when more than th.MaxUnderperforming keywords
// sit below th.LowKeywordRate. Keywords never checked count as 0%.
func UnderperformingKeywords(in Input, th Thresholds) *models.Recommendation {
	count := 0
	for _, stats := range in.Keywords {
		if stats.Metrics.PresenceRate < th.LowKeywordRate {
			count++
		}
	}
	if count <= th.MaxUnderperforming {
		return nil
	}

	return &models.Recommendation{
		Rule:        RuleUnderperformingKeywds,
		Priority:    models.PriorityMedium,
		Title:       fmt.Sprintf("%d keywords underperforming", count),
		Description: fmt.Sprintf("Multiple keywords showing <%s visibility. Consider content gaps or optimization opportunities.", percent(th.LowKeywordRate)),
		Action:      "Create targeted content addressing these keyword queries",
	}
}

// StrongEngines names every engine whose presence rate is above th.StrongEngineRate
func StrongEngines(in Input, th Thresholds) *models.Recommendation {
	strong := in.enginesWhere(func(m models.Metrics) bool { return m.PresenceRate > th.StrongEngineRate })
	if len(strong) == 0 {
		return nil
	}

	return &models.Recommendation{
		Rule:        RuleStrongEngines,
		Priority:    models.PrioritySuccess,
		Title:       fmt.Sprintf("Strong performance on %d engine(s)", len(strong)),
		Description: fmt.Sprintf("%s showing >%s visibility. Great job!", displayNames(strong), percent(th.StrongEngineRate)),
		Action:      "Maintain current content strategy for these platforms",
		Engines:     strong,
	}
}

func displayNames(engines []models.Engine) string {
	names := make([]string, 0, len(engines))
	for _, engine := range engines {
		names = append(names, engine.DisplayName())
	}
	return strings.Join(names, ", ")
}

func percent(rate float64) string {
	return fmt.Sprintf("%.0f%%", rate*100)
}
