package models

import (
	"fmt"
	"strings"
)

// Engine identifies one AI answer surface being monitored.
// The set is closed: values outside the declared constants never parse.
type Engine uint8

const (
	EngineChatGPT Engine = iota + 1
	EngineGemini
	EngineClaude
	EnginePerplexity
	EngineGoogleAIO
)

var engineNames = map[Engine]string{
	EngineChatGPT:    "chatgpt",
	EngineGemini:     "gemini",
	EngineClaude:     "claude",
	EnginePerplexity: "perplexity",
	EngineGoogleAIO:  "google_aio",
}

// AllEngines returns every supported engine in declaration order.
func AllEngines() []Engine {
	return []Engine{EngineChatGPT, EngineGemini, EngineClaude, EnginePerplexity, EngineGoogleAIO}
}

// ParseEngine converts a wire name ("chatgpt", "google_aio", ...) into an Engine
func ParseEngine(name string) (Engine, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for engine, engineName := range engineNames {
		if engineName == normalized {
			return engine, nil
		}
	}
	return 0, &ValidationError{Field: "engine", Reason: fmt.Sprintf("unknown engine %q", name)}
}

// Valid reports whether e is one of the declared engines.
func (e Engine) Valid() bool {
	_, ok := engineNames[e]
	return ok
}

func (e Engine) String() string {
	if name, ok := engineNames[e]; ok {
		return name
	}
	return fmt.Sprintf("engine(%d)", uint8(e))
}

// DisplayName is the label used in reports ("ChatGPT", "Google AIO")
func (e Engine) DisplayName() string {
	switch e {
	case EngineChatGPT:
		return "ChatGPT"
	case EngineGemini:
		return "Gemini"
	case EngineClaude:
		return "Claude"
	case EnginePerplexity:
		return "Perplexity"
	case EngineGoogleAIO:
		return "Google AIO"
	default:
		return e.String()
	}
}

func (e Engine) MarshalText() ([]byte, error) {
	if !e.Valid() {
		return nil, &ValidationError{Field: "engine", Reason: fmt.Sprintf("unknown engine value %d", uint8(e))}
	}
	return []byte(e.String()), nil
}

func (e *Engine) UnmarshalText(text []byte) error {
	parsed, err := ParseEngine(string(text))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// Sentiment is the tone of an answer that mentions the brand.
type Sentiment uint8

const (
	SentimentPositive Sentiment = iota + 1
	SentimentNeutral
	SentimentNegative
)

var sentimentNames = map[Sentiment]string{
	SentimentPositive: "positive",
	SentimentNeutral:  "neutral",
	SentimentNegative: "negative",
}

// AllSentiments returns every sentiment in declaration order.
func AllSentiments() []Sentiment {
	return []Sentiment{SentimentPositive, SentimentNeutral, SentimentNegative}
}

func ParseSentiment(name string) (Sentiment, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for sentiment, sentimentName := range sentimentNames {
		if sentimentName == normalized {
			return sentiment, nil
		}
	}
	return 0, &ValidationError{Field: "sentiment", Reason: fmt.Sprintf("unknown sentiment %q", name)}
}

func (s Sentiment) Valid() bool {
	_, ok := sentimentNames[s]
	return ok
}

func (s Sentiment) String() string {
	if name, ok := sentimentNames[s]; ok {
		return name
	}
	return fmt.Sprintf("sentiment(%d)", uint8(s))
}

func (s Sentiment) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, &ValidationError{Field: "sentiment", Reason: fmt.Sprintf("unknown sentiment value %d", uint8(s))}
	}
	return []byte(s.String()), nil
}

func (s *Sentiment) UnmarshalText(text []byte) error {
	parsed, err := ParseSentiment(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
