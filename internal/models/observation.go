package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxPosition is the largest rank an engine answer can assign to the brand.
const MaxPosition = 5

// Observation is one visibility check: whether the brand appeared in one
// engine's answer for one keyword at one point in time.
type Observation struct {
	ID             string         `json:"id"`
	KeywordID      string         `json:"keyword_id"`
	Engine         Engine         `json:"engine"`
	Position       *int           `json:"position"`
	Presence       bool           `json:"presence"`
	AnswerSnippet  *string        `json:"answer_snippet"`
	CitationsCount int            `json:"citations_count"`
	ObservedURLs   []string       `json:"observed_urls"`
	Sentiment      *Sentiment     `json:"sentiment"`
	Timestamp      time.Time      `json:"timestamp"`
	Metadata       map[string]any `json:"metadata"`
}

// ObservationInput carries the raw fields of an observation before validation.
type ObservationInput struct {
	ID             string
	KeywordID      string
	Engine         Engine
	Presence       bool
	Position       *int
	CitationsCount int
	Sentiment      *Sentiment
	AnswerSnippet  *string
	ObservedURLs   []string
	Timestamp      time.Time
	Metadata       map[string]any
}

// NewObservation is the single constructor every producer goes through.
// It assigns an id and timestamp when missing and rejects inputs that break
// the presence invariants.
func NewObservation(in ObservationInput) (Observation, error) {
	obs := Observation{
		ID:             in.ID,
		KeywordID:      in.KeywordID,
		Engine:         in.Engine,
		Position:       in.Position,
		Presence:       in.Presence,
		AnswerSnippet:  in.AnswerSnippet,
		CitationsCount: in.CitationsCount,
		ObservedURLs:   in.ObservedURLs,
		Sentiment:      in.Sentiment,
		Timestamp:      in.Timestamp,
		Metadata:       in.Metadata,
	}
	if obs.ID == "" {
		obs.ID = uuid.NewString()
	}
	if obs.Timestamp.IsZero() {
		obs.Timestamp = time.Now().UTC()
	}
	if obs.ObservedURLs == nil {
		obs.ObservedURLs = []string{}
	}

	if err := Validate(obs); err != nil {
		return Observation{}, err
	}
	return obs, nil
}

// Validate checks the presence invariants:
//
//	presence == false  =>  no position, zero citations, no sentiment, no snippet, no URLs
//	presence == true   =>  position in [1, MaxPosition] and sentiment set
func Validate(o Observation) error {
	if strings.TrimSpace(o.KeywordID) == "" {
		return &ValidationError{Field: "keyword_id", Reason: "is required"}
	}
	if !o.Engine.Valid() {
		return &ValidationError{Field: "engine", Reason: fmt.Sprintf("unknown engine value %d", uint8(o.Engine))}
	}
	if o.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Reason: "is required"}
	}
	if o.CitationsCount < 0 {
		return &ValidationError{Field: "citations_count", Reason: "must not be negative"}
	}

	if !o.Presence {
		switch {
		case o.Position != nil:
			return &ValidationError{Field: "position", Reason: "must be null when presence is false"}
		case o.CitationsCount != 0:
			return &ValidationError{Field: "citations_count", Reason: "must be 0 when presence is false"}
		case o.Sentiment != nil:
			return &ValidationError{Field: "sentiment", Reason: "must be null when presence is false"}
		case o.AnswerSnippet != nil:
			return &ValidationError{Field: "answer_snippet", Reason: "must be null when presence is false"}
		case len(o.ObservedURLs) > 0:
			return &ValidationError{Field: "observed_urls", Reason: "must be empty when presence is false"}
		}
		return nil
	}

	if o.Position == nil {
		return &ValidationError{Field: "position", Reason: "is required when presence is true"}
	}
	if *o.Position < 1 || *o.Position > MaxPosition {
		return &ValidationError{Field: "position", Reason: fmt.Sprintf("must be between 1 and %d, got %d", MaxPosition, *o.Position)}
	}
	if o.Sentiment == nil {
		return &ValidationError{Field: "sentiment", Reason: "is required when presence is true"}
	}
	if !o.Sentiment.Valid() {
		return &ValidationError{Field: "sentiment", Reason: fmt.Sprintf("unknown sentiment value %d", uint8(*o.Sentiment))}
	}
	if o.AnswerSnippet == nil {
		return &ValidationError{Field: "answer_snippet", Reason: "is required when presence is true"}
	}
	return nil
}

// Absent builds the observation of a check where the brand did not appear.
func Absent(keywordID string, engine Engine, at time.Time) (Observation, error) {
	return NewObservation(ObservationInput{
		KeywordID: keywordID,
		Engine:    engine,
		Timestamp: at,
	})
}

func IntPtr(v int) *int {
	return &v
}

func StringPtr(v string) *string {
	return &v
}

func SentimentPtr(v Sentiment) *Sentiment {
	return &v
}
