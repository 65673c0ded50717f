package engines

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"
	"time"

	"github.com/brandlens/ai-visibility/internal/models"
)

// SimulationPolicy holds the tunable calibration of the simulator. None of
// these values are contracts; they only shape plausible demo data.
type SimulationPolicy struct {
	BaseProbability  float64
	HighIntentTerms  []string
	HighIntentBonus  float64
	EngineBonus      map[models.Engine]float64
	TrendHorizonDays int
	TrendStep        float64
	WeekendFactor    float64
	Jitter           float64
	MinProbability   float64
	MaxProbability   float64
	MaxCitations     int
	MaxURLs          int
}

// DefaultPolicy is the calibration used for demo data
func DefaultPolicy() SimulationPolicy {
	return SimulationPolicy{
		BaseProbability: 0.30,
		HighIntentTerms: []string{"best", "software"},
		HighIntentBonus: 0.15,
		EngineBonus: map[models.Engine]float64{
			models.EnginePerplexity: 0.20,
			models.EngineChatGPT:    0.15,
			models.EngineClaude:     0.10,
			models.EngineGemini:     0.10,
			models.EngineGoogleAIO:  0.05,
		},
		TrendHorizonDays: 14,
		TrendStep:        0.005,
		WeekendFactor:    0.85,
		Jitter:           0.15,
		MinProbability:   0.10,
		MaxProbability:   0.85,
		MaxCitations:     3,
		MaxURLs:          3,
	}
}

// Probability returns the presence probability for one check. noise is a
// uniform draw in [0, 1) that becomes symmetric jitter around the estimate.
func (p SimulationPolicy) Probability(keyword string, engine models.Engine, at, now time.Time, noise float64) float64 {
	probability := p.BaseProbability

	lower := strings.ToLower(keyword)
	for _, term := range p.HighIntentTerms {
		if strings.Contains(lower, term) {
			probability += p.HighIntentBonus
			break
		}
	}

	probability += p.EngineBonus[engine]

	daysAgo := int(now.Sub(at) / (24 * time.Hour))
	if daysAgo < 0 {
		daysAgo = 0
	}
	if remaining := p.TrendHorizonDays - daysAgo; remaining > 0 {
		probability += float64(remaining) * p.TrendStep
	}

	if weekday := at.Weekday(); weekday == time.Saturday || weekday == time.Sunday {
		probability *= p.WeekendFactor
	}

	probability += (noise - 0.5) * p.Jitter

	if probability < p.MinProbability {
		return p.MinProbability
	}
	if probability > p.MaxProbability {
		return p.MaxProbability
	}
	return probability
}

// Rand is the seeded randomness source shared by simulators. Every check
// draws from its own stream derived from the seed and the check's identity,
// so results do not depend on the order a worker pool runs checks in.
type Rand struct {
	seed int64
}

func NewRand(seed int64) *Rand {
	return &Rand{seed: seed}
}

// Stream returns the draws for one check, identified by key
func (r *Rand) Stream(key string) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(key))
	return rand.New(rand.NewSource(r.seed ^ int64(h.Sum64())))
}

var snippetTemplates = []string{
	"%[1]s is mentioned as a leading solution for %[2]s with comprehensive features.",
	"When considering %[2]s, %[1]s stands out for its intuitive interface and robust capabilities.",
	"According to recent data, %[1]s is frequently recommended for %[2]s use cases.",
	"%[1]s offers competitive advantages in the %[2]s space, particularly for enterprise users.",
	"For %[2]s, %[1]s provides a balanced approach between functionality and ease of use.",
	"Industry experts highlight %[1]s as a top choice when evaluating %[2]s options.",
	"%[1]s's approach to %[2]s has been well-received by both small teams and large organizations.",
}

var urlPaths = []string{
	"/features", "/pricing", "/blog/guide", "/case-studies",
	"/documentation", "/resources", "/comparison", "/reviews",
}

// Simulator fabricates plausible observations for one engine. It stands in
// for a real engine adapter and honours the same output contract.
type Simulator struct {
	engine models.Engine
	policy SimulationPolicy
	rand   *Rand
	now    func() time.Time
}

var _ Checker = (*Simulator)(nil)

func NewSimulator(engine models.Engine, policy SimulationPolicy, rnd *Rand) *Simulator {
	return &Simulator{
		engine: engine,
		policy: policy,
		rand:   rnd,
		now:    time.Now,
	}
}

func (s *Simulator) Engine() models.Engine {
	return s.engine
}

func (s *Simulator) IsEnabled() bool {
	return true
}

func (s *Simulator) Check(ctx context.Context, in CheckInput) (models.Observation, error) {
	if err := ctx.Err(); err != nil {
		return models.Observation{}, &models.CollectionError{
			Engine:    s.engine,
			KeywordID: in.Keyword.ID,
			Cause:     CauseFromContext(err),
			Err:       err,
		}
	}

	at := in.Timestamp
	if at.IsZero() {
		at = s.now()
	}

	rng := s.rand.Stream(fmt.Sprintf("%s|%s|%d", in.Keyword.ID, s.engine, at.UnixNano()))

	probability := s.policy.Probability(in.Keyword.Keyword, s.engine, at, s.now(), rng.Float64())
	if rng.Float64() >= probability {
		return s.validated(models.ObservationInput{
			KeywordID: in.Keyword.ID,
			Engine:    s.engine,
			Timestamp: at,
			Metadata:  map[string]any{"simulated": true},
		}, in.Keyword.ID)
	}

	sentiments := models.AllSentiments()
	sentiment := sentiments[rng.Intn(len(sentiments))]
	snippet := fmt.Sprintf(snippetTemplates[rng.Intn(len(snippetTemplates))], brandName(in.Project), in.Keyword.Keyword)

	return s.validated(models.ObservationInput{
		KeywordID:      in.Keyword.ID,
		Engine:         s.engine,
		Presence:       true,
		Position:       models.IntPtr(rng.Intn(models.MaxPosition) + 1),
		CitationsCount: rng.Intn(s.policy.MaxCitations + 1),
		Sentiment:      &sentiment,
		AnswerSnippet:  &snippet,
		ObservedURLs:   s.urls(in, rng),
		Timestamp:      at,
		Metadata:       map[string]any{"simulated": true, "probability": probability},
	}, in.Keyword.ID)
}

func (s *Simulator) validated(in models.ObservationInput, keywordID string) (models.Observation, error) {
	obs, err := models.NewObservation(in)
	if err != nil {
		return models.Observation{}, &models.CollectionError{
			Engine:    s.engine,
			KeywordID: keywordID,
			Cause:     models.CauseParseFailure,
			Err:       err,
		}
	}
	return obs, nil
}

func (s *Simulator) urls(in CheckInput, rng *rand.Rand) []string {
	count := 1
	if s.policy.MaxURLs > 1 {
		count = rng.Intn(s.policy.MaxURLs) + 1
	}

	urls := make([]string, 0, count)
	for i := 0; i < count; i++ {
		if in.Project.Domain == "" {
			slug := strings.ToLower(strings.Join(strings.Fields(in.Keyword.Keyword), "-"))
			urls = append(urls, fmt.Sprintf("https://example%d.com/%s", i+1, slug))
			continue
		}
		urls = append(urls, "https://"+in.Project.Domain+urlPaths[rng.Intn(len(urlPaths))])
	}
	return urls
}

func brandName(project models.Project) string {
	if project.BrandName != "" {
		return project.BrandName
	}
	return "The brand"
}
