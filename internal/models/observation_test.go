package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewObservation(t *testing.T) {
	at := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		input     ObservationInput
		wantField string
	}{
		{
			name: "Valid present observation",
			input: ObservationInput{
				KeywordID:      "kw-1",
				Engine:         EngineChatGPT,
				Presence:       true,
				Position:       IntPtr(2),
				CitationsCount: 3,
				Sentiment:      SentimentPtr(SentimentPositive),
				AnswerSnippet:  StringPtr("Acme is a leading choice"),
				ObservedURLs:   []string{"https://acme.example/features"},
				Timestamp:      at,
			},
		},
		{
			name: "Valid absent observation",
			input: ObservationInput{
				KeywordID: "kw-1",
				Engine:    EngineGemini,
				Timestamp: at,
			},
		},
		{
			name: "Absent with position is rejected",
			input: ObservationInput{
				KeywordID: "kw-1",
				Engine:    EngineClaude,
				Presence:  false,
				Position:  IntPtr(2),
				Timestamp: at,
			},
			wantField: "position",
		},
		{
			name: "Absent with citations is rejected",
			input: ObservationInput{
				KeywordID:      "kw-1",
				Engine:         EngineClaude,
				CitationsCount: 1,
				Timestamp:      at,
			},
			wantField: "citations_count",
		},
		{
			name: "Absent with URLs is rejected",
			input: ObservationInput{
				KeywordID:    "kw-1",
				Engine:       EnginePerplexity,
				ObservedURLs: []string{"https://acme.example"},
				Timestamp:    at,
			},
			wantField: "observed_urls",
		},
		{
			name: "Absent with sentiment is rejected",
			input: ObservationInput{
				KeywordID: "kw-1",
				Engine:    EnginePerplexity,
				Sentiment: SentimentPtr(SentimentNeutral),
				Timestamp: at,
			},
			wantField: "sentiment",
		},
		{
			name: "Present without position is rejected",
			input: ObservationInput{
				KeywordID:     "kw-1",
				Engine:        EngineGoogleAIO,
				Presence:      true,
				Sentiment:     SentimentPtr(SentimentNeutral),
				AnswerSnippet: StringPtr("snippet"),
				Timestamp:     at,
			},
			wantField: "position",
		},
		{
			name: "Present with out of range position is rejected",
			input: ObservationInput{
				KeywordID:     "kw-1",
				Engine:        EngineGoogleAIO,
				Presence:      true,
				Position:      IntPtr(MaxPosition + 1),
				Sentiment:     SentimentPtr(SentimentNeutral),
				AnswerSnippet: StringPtr("snippet"),
				Timestamp:     at,
			},
			wantField: "position",
		},
		{
			name: "Present without sentiment is rejected",
			input: ObservationInput{
				KeywordID:     "kw-1",
				Engine:        EngineGoogleAIO,
				Presence:      true,
				Position:      IntPtr(1),
				AnswerSnippet: StringPtr("snippet"),
				Timestamp:     at,
			},
			wantField: "sentiment",
		},
		{
			name: "Missing keyword is rejected",
			input: ObservationInput{
				Engine:    EngineChatGPT,
				Timestamp: at,
			},
			wantField: "keyword_id",
		},
		{
			name: "Unknown engine is rejected",
			input: ObservationInput{
				KeywordID: "kw-1",
				Timestamp: at,
			},
			wantField: "engine",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs, err := NewObservation(tt.input)
			if tt.wantField == "" {
				require.NoError(t, err)
				assert.NotEmpty(t, obs.ID)
				assert.NotNil(t, obs.ObservedURLs)
				return
			}

			require.Error(t, err)
			assert.True(t, IsValidation(err))
			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.wantField, validationErr.Field)
		})
	}
}

func TestNewObservation_Defaults(t *testing.T) {
	obs, err := Absent("kw-1", EngineChatGPT, time.Time{})
	require.NoError(t, err)

	assert.False(t, obs.Timestamp.IsZero())
	assert.Equal(t, []string{}, obs.ObservedURLs)
	assert.Nil(t, obs.Position)
	assert.Nil(t, obs.Sentiment)
	assert.Nil(t, obs.AnswerSnippet)
}

func TestObservation_JSONShape(t *testing.T) {
	obs, err := Absent("kw-1", EngineGoogleAIO, time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	data, err := json.Marshal(obs)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "google_aio", raw["engine"])
	assert.Nil(t, raw["position"])
	assert.Nil(t, raw["sentiment"])
	assert.Equal(t, []any{}, raw["observed_urls"])
}

func TestParseEngine(t *testing.T) {
	for _, engine := range AllEngines() {
		parsed, err := ParseEngine(engine.String())
		require.NoError(t, err)
		assert.Equal(t, engine, parsed)
	}

	_, err := ParseEngine("chat-gpt")
	assert.True(t, IsValidation(err))

	var engine Engine
	err = json.Unmarshal([]byte(`"bing"`), &engine)
	assert.Error(t, err)
}

func TestEngine_MapKeysUseNames(t *testing.T) {
	data, err := json.Marshal(map[Engine]int{EngineClaude: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"claude": 2}`, string(data))

	var decoded map[Engine]int
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 2, decoded[EngineClaude])
}

func TestParseSentiment(t *testing.T) {
	for _, sentiment := range AllSentiments() {
		parsed, err := ParseSentiment(sentiment.String())
		require.NoError(t, err)
		assert.Equal(t, sentiment, parsed)
	}

	_, err := ParseSentiment("angry")
	assert.True(t, IsValidation(err))
}
