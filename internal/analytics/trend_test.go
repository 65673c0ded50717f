package analytics

import (
	"testing"
	"time"

	"github.com/brandlens/ai-visibility/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestCalculateTrend(t *testing.T) {
	split := base.AddDate(0, 0, -7)

	tests := []struct {
		name         string
		build        func(t *testing.T) []models.Observation
		expected     float64
		wantBaseline bool
	}{
		{
			name: "Empty older window counts as zero",
			build: func(t *testing.T) []models.Observation {
				var observations []models.Observation
				for i := 0; i < 10; i++ {
					at := base.Add(-time.Duration(i) * time.Hour)
					if i < 5 {
						observations = append(observations, present(t, "kw-1", models.EngineChatGPT, 1, 0, at))
					} else {
						observations = append(observations, absent(t, "kw-1", models.EngineChatGPT, at))
					}
				}
				return observations
			},
			expected:     50,
			wantBaseline: false,
		},
		{
			name: "Improvement over a real baseline",
			build: func(t *testing.T) []models.Observation {
				return []models.Observation{
					absent(t, "kw-1", models.EngineChatGPT, split.AddDate(0, 0, -3)),
					present(t, "kw-1", models.EngineChatGPT, 2, 1, split.AddDate(0, 0, -2)),
					absent(t, "kw-1", models.EngineChatGPT, split.AddDate(0, 0, -1)),
					absent(t, "kw-1", models.EngineChatGPT, split.AddDate(0, 0, -1)),
					present(t, "kw-1", models.EngineChatGPT, 1, 1, split),
					present(t, "kw-1", models.EngineChatGPT, 1, 1, base),
				}
			},
			expected:     75,
			wantBaseline: true,
		},
		{
			name: "Drop after the split",
			build: func(t *testing.T) []models.Observation {
				return []models.Observation{
					present(t, "kw-1", models.EngineGemini, 1, 0, split.Add(-time.Hour)),
					absent(t, "kw-1", models.EngineGemini, split.Add(time.Hour)),
				}
			},
			expected:     -100,
			wantBaseline: true,
		},
		{
			name:     "No observations at all",
			build:    func(t *testing.T) []models.Observation { return nil },
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trend := CalculateTrend(tt.build(t), split)
			assert.InDelta(t, tt.expected, trend.DeltaPoints, 1e-9)
			assert.Equal(t, tt.wantBaseline, trend.HasBaseline)
			assert.Equal(t, split, trend.Split)
		})
	}
}

func TestWindow_Bounds(t *testing.T) {
	since, split := DefaultWindow.Bounds(base)
	assert.Equal(t, base.AddDate(0, 0, -30), since)
	assert.Equal(t, base.AddDate(0, 0, -7), split)

	assert.Equal(t, DefaultWindow, WindowFromDays(7, 30))
}
