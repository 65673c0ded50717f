package analytics

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/brandlens/ai-visibility/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC)

func present(t *testing.T, keywordID string, engine models.Engine, position, citations int, at time.Time) models.Observation {
	t.Helper()
	obs, err := models.NewObservation(models.ObservationInput{
		KeywordID:      keywordID,
		Engine:         engine,
		Presence:       true,
		Position:       models.IntPtr(position),
		CitationsCount: citations,
		Sentiment:      models.SentimentPtr(models.SentimentPositive),
		AnswerSnippet:  models.StringPtr("Acme is a solid choice"),
		ObservedURLs:   []string{"https://acme.example/features"},
		Timestamp:      at,
	})
	require.NoError(t, err)
	return obs
}

func absent(t *testing.T, keywordID string, engine models.Engine, at time.Time) models.Observation {
	t.Helper()
	obs, err := models.Absent(keywordID, engine, at)
	require.NoError(t, err)
	return obs
}

// scenarioA is 5 checks on one engine, 2 present at positions 1 and 3 with 2 and 0 citations
func scenarioA(t *testing.T) []models.Observation {
	return []models.Observation{
		present(t, "kw-1", models.EngineChatGPT, 1, 2, base),
		absent(t, "kw-1", models.EngineChatGPT, base.Add(time.Hour)),
		present(t, "kw-2", models.EngineChatGPT, 3, 0, base.Add(2*time.Hour)),
		absent(t, "kw-2", models.EngineChatGPT, base.Add(3*time.Hour)),
		absent(t, "kw-3", models.EngineChatGPT, base.Add(4*time.Hour)),
	}
}

func TestOverall_ScenarioA(t *testing.T) {
	m := Overall(scenarioA(t))

	assert.Equal(t, 5, m.TotalChecks)
	assert.Equal(t, 2, m.PresenceCount)
	assert.InDelta(t, 0.4, m.PresenceRate, 1e-9)
	require.NotNil(t, m.AvgPosition)
	assert.InDelta(t, 2.0, *m.AvgPosition, 1e-9)
	assert.Equal(t, 2, m.TotalCitations)
	assert.InDelta(t, 1.0, m.AvgCitations, 1e-9)
}

func TestByEngine_ScenarioB(t *testing.T) {
	var observations []models.Observation
	for i := 0; i < 10; i++ {
		observations = append(observations, absent(t, "kw-1", models.EngineGemini, base.Add(time.Duration(i)*time.Hour)))
	}

	byEngine := ByEngine(observations)
	require.Len(t, byEngine, 1)

	m := byEngine[models.EngineGemini]
	assert.Equal(t, 10, m.TotalChecks)
	assert.Zero(t, m.PresenceRate)
	assert.Nil(t, m.AvgPosition, "no positions means undefined, not zero")
	assert.Zero(t, m.AvgCitations)
}

func TestOverall_Empty(t *testing.T) {
	m := Overall(nil)

	assert.Zero(t, m.TotalChecks)
	assert.Zero(t, m.PresenceRate)
	assert.False(t, math.IsNaN(m.PresenceRate))
	assert.Nil(t, m.AvgPosition)
	assert.Zero(t, m.AvgCitations)
}

func TestAggregation_OrderIndependent(t *testing.T) {
	observations := append(scenarioA(t),
		present(t, "kw-1", models.EngineClaude, 5, 3, base.AddDate(0, 0, 1)),
		present(t, "kw-3", models.EnginePerplexity, 2, 1, base.AddDate(0, 0, 2)),
		absent(t, "kw-3", models.EngineGoogleAIO, base.AddDate(0, 0, 2)),
	)

	expectedOverall := Overall(observations)
	expectedEngine := ByEngine(observations)
	expectedDay := ByDay(observations, time.UTC)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		shuffled := append([]models.Observation(nil), observations...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		assert.Equal(t, expectedOverall, Overall(shuffled))
		assert.Equal(t, expectedEngine, ByEngine(shuffled))
		assert.Equal(t, expectedDay, ByDay(shuffled, time.UTC))
	}
}

func TestAggregation_RateBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	engines := models.AllEngines()

	for round := 0; round < 25; round++ {
		var observations []models.Observation
		n := rng.Intn(30)
		for i := 0; i < n; i++ {
			engine := engines[rng.Intn(len(engines))]
			at := base.Add(time.Duration(rng.Intn(72)) * time.Hour)
			if rng.Intn(2) == 0 {
				observations = append(observations, present(t, "kw-1", engine, rng.Intn(models.MaxPosition)+1, rng.Intn(4), at))
			} else {
				observations = append(observations, absent(t, "kw-1", engine, at))
			}
		}

		all := []models.Metrics{Overall(observations)}
		for _, m := range ByEngine(observations) {
			all = append(all, m)
		}
		for _, m := range ByDay(observations, time.UTC) {
			all = append(all, m)
		}

		for _, m := range all {
			assert.GreaterOrEqual(t, m.PresenceRate, 0.0)
			assert.LessOrEqual(t, m.PresenceRate, 1.0)
			assert.False(t, math.IsNaN(m.AvgCitations))
		}
	}
}

func TestAggregation_CitationsSumOverScope(t *testing.T) {
	observations := []models.Observation{
		present(t, "kw-1", models.EngineChatGPT, 1, 3, base),
		present(t, "kw-1", models.EngineGemini, 2, 1, base),
		absent(t, "kw-1", models.EngineClaude, base),
	}

	m := Overall(observations)
	sum := 0
	for _, obs := range observations {
		if obs.Presence {
			sum += obs.CitationsCount
		}
	}
	assert.Equal(t, sum, m.TotalCitations)
	assert.InDelta(t, 2.0, m.AvgCitations, 1e-9)
}

func TestByDay_UsesLocation(t *testing.T) {
	// 02:30 UTC on the 13th is still the 12th in New York
	late := time.Date(2026, 10, 13, 2, 30, 0, 0, time.UTC)
	observations := []models.Observation{
		absent(t, "kw-1", models.EngineChatGPT, base),
		present(t, "kw-1", models.EngineChatGPT, 1, 1, late),
	}

	utc := ByDay(observations, time.UTC)
	assert.Equal(t, 1, utc["2026-10-12"].TotalChecks)
	assert.Equal(t, 1, utc["2026-10-13"].TotalChecks)

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	local := ByDay(observations, ny)
	require.Len(t, local, 1)
	assert.Equal(t, 2, local["2026-10-12"].TotalChecks)
	assert.InDelta(t, 0.5, local["2026-10-12"].PresenceRate, 1e-9)
}

func TestApply_ExcludesOutsideFilter(t *testing.T) {
	observations := []models.Observation{
		present(t, "kw-1", models.EngineChatGPT, 1, 1, base),
		absent(t, "kw-2", models.EngineChatGPT, base),
		absent(t, "kw-1", models.EngineGemini, base),
		absent(t, "kw-1", models.EngineChatGPT, base.AddDate(0, 0, -10)),
	}

	filtered := Apply(models.ObservationFilter{
		KeywordIDs: []string{"kw-1"},
		Engines:    []models.Engine{models.EngineChatGPT},
		Since:      base.AddDate(0, 0, -1),
	}, observations)

	m := Overall(filtered)
	assert.Equal(t, 1, m.TotalChecks, "excluded observations are dropped, not zero-counted")
	assert.Equal(t, 1.0, m.PresenceRate)
}

func TestByKeyword(t *testing.T) {
	byKeyword := ByKeyword(scenarioA(t))

	assert.Equal(t, 0.5, byKeyword["kw-1"].PresenceRate)
	assert.Equal(t, 0.5, byKeyword["kw-2"].PresenceRate)
	assert.Equal(t, 0.0, byKeyword["kw-3"].PresenceRate)
}
