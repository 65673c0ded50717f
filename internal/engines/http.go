package engines

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/brandlens/ai-visibility/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// HTTPChecker asks an external visibility API whether the brand shows up in
// one engine's answer. Requests are throttled client side.
type HTTPChecker struct {
	engine  models.Engine
	baseURL string
	apiKey  string
	client  *resty.Client
	limiter *rate.Limiter
}

var _ Checker = (*HTTPChecker)(nil)

type visibilityRequest struct {
	Engine      string   `json:"engine"`
	Keyword     string   `json:"keyword"`
	Brand       string   `json:"brand"`
	Domain      string   `json:"domain"`
	Competitors []string `json:"competitors,omitempty"`
}

type visibilityResponse struct {
	Presence       bool           `json:"presence"`
	Position       *int           `json:"position"`
	AnswerSnippet  *string        `json:"answer_snippet"`
	CitationsCount int            `json:"citations_count"`
	ObservedURLs   []string       `json:"observed_urls"`
	Sentiment      *string        `json:"sentiment"`
	Metadata       map[string]any `json:"metadata"`
}

// NewHTTPChecker creates a checker for engine. ratePerSecond <= 0 disables throttling.
func NewHTTPChecker(engine models.Engine, baseURL, apiKey string, ratePerSecond float64, timeout time.Duration) *HTTPChecker {
	limit := rate.Inf
	burst := 1
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
		burst = int(ratePerSecond)
		if burst < 1 {
			burst = 1
		}
	}

	return &HTTPChecker{
		engine:  engine,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  resty.New().SetTimeout(timeout),
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (h *HTTPChecker) Engine() models.Engine {
	return h.engine
}

func (h *HTTPChecker) IsEnabled() bool {
	return h.baseURL != ""
}

func (h *HTTPChecker) Check(ctx context.Context, in CheckInput) (models.Observation, error) {
	fail := func(cause models.CollectionCause, err error) (models.Observation, error) {
		return models.Observation{}, &models.CollectionError{
			Engine:    h.engine,
			KeywordID: in.Keyword.ID,
			Cause:     cause,
			Err:       err,
		}
	}

	if err := h.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return fail(CauseFromContext(ctx.Err()), err)
		}
		// the limiter refuses to wait past the deadline
		return fail(models.CauseRateLimited, err)
	}

	req := h.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", "AI-Visibility-Tracker/1.0").
		SetHeader("Content-Type", "application/json")
	if h.apiKey != "" {
		req.SetAuthToken(h.apiKey)
	}

	resp, err := req.
		SetBody(visibilityRequest{
			Engine:      h.engine.String(),
			Keyword:     in.Keyword.Keyword,
			Brand:       in.Project.BrandName,
			Domain:      in.Project.Domain,
			Competitors: in.Project.Competitors,
		}).
		Post(h.baseURL + "/v1/visibility")
	if err != nil {
		if isTimeout(ctx, err) {
			return fail(models.CauseTimeout, err)
		}
		return fail(models.CauseEngineUnavailable, err)
	}

	switch status := resp.StatusCode(); {
	case status == http.StatusTooManyRequests:
		return fail(models.CauseRateLimited, fmt.Errorf("engine API returned %d", status))
	case status >= http.StatusInternalServerError:
		return fail(models.CauseEngineUnavailable, fmt.Errorf("engine API returned %d", status))
	case status != http.StatusOK:
		return fail(models.CauseEngineUnavailable, fmt.Errorf("engine API returned %d: %s", status, resp.String()))
	}

	var body visibilityResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return fail(models.CauseParseFailure, fmt.Errorf("failed to decode engine response: %w", err))
	}

	obs, err := h.toObservation(in, body)
	if err != nil {
		return fail(models.CauseParseFailure, err)
	}

	logrus.Debugf("%s answered %q: presence=%t", h.engine, in.Keyword.Keyword, obs.Presence)
	return obs, nil
}

func (h *HTTPChecker) toObservation(in CheckInput, body visibilityResponse) (models.Observation, error) {
	input := models.ObservationInput{
		KeywordID:      in.Keyword.ID,
		Engine:         h.engine,
		Presence:       body.Presence,
		Position:       body.Position,
		AnswerSnippet:  body.AnswerSnippet,
		CitationsCount: body.CitationsCount,
		ObservedURLs:   body.ObservedURLs,
		Timestamp:      in.Timestamp,
		Metadata:       body.Metadata,
	}
	if input.Timestamp.IsZero() {
		input.Timestamp = time.Now().UTC()
	}
	if body.Sentiment != nil {
		sentiment, err := models.ParseSentiment(*body.Sentiment)
		if err != nil {
			return models.Observation{}, err
		}
		input.Sentiment = &sentiment
	}
	return models.NewObservation(input)
}

// CauseFromContext classifies a context error: deadlines are timeouts,
// cancellation means the engine was never reached.
func CauseFromContext(err error) models.CollectionCause {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.CauseTimeout
	}
	return models.CauseEngineUnavailable
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
