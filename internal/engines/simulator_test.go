package engines

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brandlens/ai-visibility/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	monday   = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	saturday = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
)

func testInput(keyword string, at time.Time) CheckInput {
	return CheckInput{
		Keyword:   models.Keyword{ID: "kw-1", ProjectID: "p1", Keyword: keyword},
		Project:   models.Project{ID: "p1", Domain: "acmeprojects.com", BrandName: "Acme Projects"},
		Timestamp: at,
	}
}

func fixedSimulator(engine models.Engine, seed int64) *Simulator {
	sim := NewSimulator(engine, DefaultPolicy(), NewRand(seed))
	sim.now = func() time.Time { return monday }
	return sim
}

func TestSimulationPolicy_Probability(t *testing.T) {
	policy := DefaultPolicy()

	tests := []struct {
		name     string
		keyword  string
		engine   models.Engine
		at       time.Time
		noise    float64
		expected float64
	}{
		{
			name:     "Baseline with engine and full trend bonus",
			keyword:  "crm tools",
			engine:   models.EngineGoogleAIO,
			at:       monday,
			noise:    0.5,
			expected: 0.30 + 0.05 + 14*0.005,
		},
		{
			name:     "High intent term adds keyword bonus",
			keyword:  "Best CRM tools",
			engine:   models.EngineGoogleAIO,
			at:       monday,
			noise:    0.5,
			expected: 0.30 + 0.15 + 0.05 + 14*0.005,
		},
		{
			name:     "Trend bonus shrinks with age",
			keyword:  "crm tools",
			engine:   models.EngineChatGPT,
			at:       monday.AddDate(0, 0, -10),
			noise:    0.5,
			expected: 0.30 + 0.15 + 4*0.005,
		},
		{
			name:     "No trend bonus past the horizon",
			keyword:  "crm tools",
			engine:   models.EngineClaude,
			at:       monday.AddDate(0, 0, -21),
			noise:    0.5,
			expected: 0.30 + 0.10,
		},
		{
			name:     "Weekend dampening",
			keyword:  "crm tools",
			engine:   models.EngineGemini,
			at:       saturday,
			noise:    0.5,
			expected: (0.30 + 0.10 + 12*0.005) * 0.85,
		},
		{
			name:     "Jitter is symmetric around the estimate",
			keyword:  "crm tools",
			engine:   models.EngineGoogleAIO,
			at:       monday,
			noise:    0.0,
			expected: 0.30 + 0.05 + 14*0.005 - 0.075,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := policy.Probability(tt.keyword, tt.engine, tt.at, monday, tt.noise)
			assert.InDelta(t, tt.expected, got, 1e-9)
		})
	}
}

func TestSimulationPolicy_ProbabilityIsClamped(t *testing.T) {
	high := DefaultPolicy()
	high.BaseProbability = 2
	assert.Equal(t, high.MaxProbability, high.Probability("best software", models.EnginePerplexity, monday, monday, 0.99))

	low := DefaultPolicy()
	low.BaseProbability = -1
	assert.Equal(t, low.MinProbability, low.Probability("crm", models.EngineGoogleAIO, saturday, monday, 0))
}

func TestDefaultPolicy_CoversEveryEngine(t *testing.T) {
	policy := DefaultPolicy()
	for _, engine := range models.AllEngines() {
		_, ok := policy.EngineBonus[engine]
		assert.True(t, ok, "missing engine bonus for %s", engine)
	}
}

func TestSimulator_InvariantClosure(t *testing.T) {
	ctx := context.Background()
	present, absent := 0, 0

	for seed := int64(1); seed <= 5; seed++ {
		for _, engine := range models.AllEngines() {
			sim := fixedSimulator(engine, seed)
			for day := 0; day < 30; day++ {
				obs, err := sim.Check(ctx, testInput("best project management software", monday.AddDate(0, 0, -day)))
				require.NoError(t, err)
				require.NoError(t, models.Validate(obs))

				assert.Equal(t, engine, obs.Engine)
				assert.Equal(t, "kw-1", obs.KeywordID)
				assert.NotEmpty(t, obs.ID)

				if !obs.Presence {
					absent++
					assert.Nil(t, obs.Position)
					assert.Nil(t, obs.Sentiment)
					assert.Nil(t, obs.AnswerSnippet)
					assert.Zero(t, obs.CitationsCount)
					assert.Equal(t, []string{}, obs.ObservedURLs)
					continue
				}

				present++
				require.NotNil(t, obs.Position)
				assert.True(t, *obs.Position >= 1 && *obs.Position <= models.MaxPosition)
				assert.True(t, obs.CitationsCount >= 0 && obs.CitationsCount <= 3)
				require.NotNil(t, obs.Sentiment)
				assert.True(t, obs.Sentiment.Valid())
				require.NotNil(t, obs.AnswerSnippet)
				assert.Contains(t, *obs.AnswerSnippet, "Acme Projects")
				assert.Contains(t, *obs.AnswerSnippet, "best project management software")
				assert.True(t, len(obs.ObservedURLs) >= 1 && len(obs.ObservedURLs) <= 3)
				for _, u := range obs.ObservedURLs {
					assert.True(t, strings.HasPrefix(u, "https://acmeprojects.com/"), u)
				}
			}
		}
	}

	// probability is clamped to [0.10, 0.85], so both outcomes must occur
	assert.NotZero(t, present)
	assert.NotZero(t, absent)
}

func TestSimulator_SameSeedSameDraws(t *testing.T) {
	ctx := context.Background()
	first := fixedSimulator(models.EngineChatGPT, 42)
	second := fixedSimulator(models.EngineChatGPT, 42)

	for i := 0; i < 50; i++ {
		in := testInput("project tracking software", monday.Add(-time.Duration(i)*time.Hour))
		a, err := first.Check(ctx, in)
		require.NoError(t, err)
		b, err := second.Check(ctx, in)
		require.NoError(t, err)

		assert.Equal(t, a.Presence, b.Presence)
		assert.Equal(t, a.Position, b.Position)
		assert.Equal(t, a.CitationsCount, b.CitationsCount)
		assert.Equal(t, a.Sentiment, b.Sentiment)
		assert.Equal(t, a.AnswerSnippet, b.AnswerSnippet)
		assert.Equal(t, a.ObservedURLs, b.ObservedURLs)
	}
}

func TestSimulator_DrawsIndependentOfCheckOrder(t *testing.T) {
	ctx := context.Background()
	const n = 40

	inputs := make([]CheckInput, n)
	for i := range inputs {
		inputs[i] = testInput("project tracking software", monday)
		inputs[i].Keyword.ID = fmt.Sprintf("kw-%d", i)
	}

	run := func(reverse bool) []models.Observation {
		sim := fixedSimulator(models.EngineGemini, 42)
		results := make([]models.Observation, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			idx := i
			if reverse {
				idx = n - 1 - i
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				obs, err := sim.Check(ctx, inputs[idx])
				assert.NoError(t, err)
				results[idx] = obs
			}()
		}
		wg.Wait()
		return results
	}

	forward, backward := run(false), run(true)
	for i := range forward {
		assert.Equal(t, forward[i].Presence, backward[i].Presence, "keyword %d", i)
		assert.Equal(t, forward[i].Position, backward[i].Position, "keyword %d", i)
		assert.Equal(t, forward[i].ObservedURLs, backward[i].ObservedURLs, "keyword %d", i)
	}
}

func TestSimulator_FallbackURLsWithoutDomain(t *testing.T) {
	sim := fixedSimulator(models.EnginePerplexity, 7)
	in := testInput("Gantt Chart Software", monday)
	in.Project.Domain = ""

	for i := 0; i < 40; i++ {
		obs, err := sim.Check(context.Background(), in)
		require.NoError(t, err)
		for _, u := range obs.ObservedURLs {
			assert.Regexp(t, `^https://example\d\.com/gantt-chart-software$`, u)
		}
	}
}

func TestSimulator_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fixedSimulator(models.EngineClaude, 1).Check(ctx, testInput("crm", monday))
	require.Error(t, err)

	var collectionErr *models.CollectionError
	require.ErrorAs(t, err, &collectionErr)
	assert.Equal(t, models.CauseEngineUnavailable, collectionErr.Cause)
	assert.Equal(t, models.EngineClaude, collectionErr.Engine)
}

func TestSimulator_DefaultsTimestampToNow(t *testing.T) {
	obs, err := fixedSimulator(models.EngineGemini, 3).Check(context.Background(), testInput("crm", time.Time{}))
	require.NoError(t, err)
	assert.Equal(t, monday, obs.Timestamp)
}
