package engines

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brandlens/ai-visibility/internal/config"
	"github.com/brandlens/ai-visibility/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPChecker_IsEnabled(t *testing.T) {
	assert.True(t, NewHTTPChecker(models.EngineChatGPT, "http://engine.local", "", 0, time.Second).IsEnabled())
	assert.False(t, NewHTTPChecker(models.EngineChatGPT, "", "", 0, time.Second).IsEnabled())
}

func TestHTTPChecker_Check(t *testing.T) {
	var received visibilityRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/visibility", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"presence": true,
			"position": 2,
			"answer_snippet": "Acme Projects is a leading choice",
			"citations_count": 1,
			"observed_urls": ["https://acmeprojects.com/pricing"],
			"sentiment": "positive",
			"metadata": {"model": "test"}
		}`))
	}))
	defer server.Close()

	checker := NewHTTPChecker(models.EnginePerplexity, server.URL+"/", "secret", 0, time.Second)
	obs, err := checker.Check(context.Background(), testInput("best crm software", monday))
	require.NoError(t, err)

	assert.Equal(t, "perplexity", received.Engine)
	assert.Equal(t, "best crm software", received.Keyword)
	assert.Equal(t, "Acme Projects", received.Brand)
	assert.Equal(t, "acmeprojects.com", received.Domain)

	assert.True(t, obs.Presence)
	assert.Equal(t, 2, *obs.Position)
	assert.Equal(t, models.SentimentPositive, *obs.Sentiment)
	assert.Equal(t, monday, obs.Timestamp)
	assert.Equal(t, "test", obs.Metadata["model"])
}

func TestHTTPChecker_ErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		delay     time.Duration
		expected  models.CollectionCause
		retryable bool
	}{
		{
			name:      "Rate limited",
			status:    http.StatusTooManyRequests,
			expected:  models.CauseRateLimited,
			retryable: true,
		},
		{
			name:     "Server error",
			status:   http.StatusServiceUnavailable,
			expected: models.CauseEngineUnavailable,
		},
		{
			name:     "Client error",
			status:   http.StatusBadRequest,
			body:     `{"error":"bad keyword"}`,
			expected: models.CauseEngineUnavailable,
		},
		{
			name:     "Malformed body",
			status:   http.StatusOK,
			body:     `{"presence": tru`,
			expected: models.CauseParseFailure,
		},
		{
			name:     "Body violating presence invariants",
			status:   http.StatusOK,
			body:     `{"presence": false, "position": 2}`,
			expected: models.CauseParseFailure,
		},
		{
			name:     "Unknown sentiment",
			status:   http.StatusOK,
			body:     `{"presence": true, "position": 1, "answer_snippet": "x", "sentiment": "ecstatic"}`,
			expected: models.CauseParseFailure,
		},
		{
			name:      "Slow engine",
			status:    http.StatusOK,
			body:      `{"presence": false}`,
			delay:     300 * time.Millisecond,
			expected:  models.CauseTimeout,
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.delay > 0 {
					time.Sleep(tt.delay)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			checker := NewHTTPChecker(models.EngineGemini, server.URL, "", 0, 100*time.Millisecond)
			_, err := checker.Check(context.Background(), testInput("crm", monday))
			require.Error(t, err)

			var collectionErr *models.CollectionError
			require.ErrorAs(t, err, &collectionErr)
			assert.Equal(t, tt.expected, collectionErr.Cause)
			assert.Equal(t, tt.retryable, collectionErr.Retryable())
			assert.Equal(t, "kw-1", collectionErr.KeywordID)
		})
	}
}

func TestHTTPChecker_AbsentAnswer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"presence": false, "citations_count": 0}`))
	}))
	defer server.Close()

	obs, err := NewHTTPChecker(models.EngineClaude, server.URL, "", 5, time.Second).Check(context.Background(), testInput("crm", monday))
	require.NoError(t, err)
	assert.False(t, obs.Presence)
	assert.Equal(t, []string{}, obs.ObservedURLs)
}

func TestNewCheckers(t *testing.T) {
	t.Run("Simulated when no engine API is configured", func(t *testing.T) {
		checkers := NewCheckers(&config.Config{SimulationSeed: 9})
		require.Len(t, checkers, len(models.AllEngines()))
		for i, checker := range checkers {
			assert.IsType(t, &Simulator{}, checker)
			assert.Equal(t, models.AllEngines()[i], checker.Engine())
		}
		assert.Len(t, Index(checkers), len(models.AllEngines()))
	})

	t.Run("HTTP adapters when engine API is configured", func(t *testing.T) {
		checkers := NewCheckers(&config.Config{EngineAPIURL: "http://engine.local", CheckTimeout: time.Second})
		require.Len(t, checkers, len(models.AllEngines()))
		for _, checker := range checkers {
			assert.IsType(t, &HTTPChecker{}, checker)
		}
	})
}
