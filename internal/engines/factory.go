package engines

import (
	"time"

	"github.com/brandlens/ai-visibility/internal/config"
	"github.com/brandlens/ai-visibility/internal/models"
	"github.com/sirupsen/logrus"
)

// NewCheckers builds one checker per engine. A configured ENGINE_API_URL
// selects the HTTP adapter; otherwise every engine is simulated from a
// single seeded source.
func NewCheckers(cfg *config.Config) []Checker {
	engines := models.AllEngines()
	checkers := make([]Checker, 0, len(engines))

	if cfg.EngineAPIURL != "" {
		logrus.Infof("Using engine API at %s for %d engines", cfg.EngineAPIURL, len(engines))
		for _, engine := range engines {
			checkers = append(checkers, NewHTTPChecker(engine, cfg.EngineAPIURL, cfg.EngineAPIKey, cfg.EngineRateLimit, cfg.CheckTimeout))
		}
		return checkers
	}

	seed := cfg.SimulationSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	logrus.Infof("No engine API configured, simulating checks (seed %d)", seed)

	rnd := NewRand(seed)
	policy := DefaultPolicy()
	for _, engine := range engines {
		checkers = append(checkers, NewSimulator(engine, policy, rnd))
	}
	return checkers
}

// Index maps enabled checkers by engine
func Index(checkers []Checker) map[models.Engine]Checker {
	index := make(map[models.Engine]Checker, len(checkers))
	for _, checker := range checkers {
		if checker.IsEnabled() {
			index[checker.Engine()] = checker
		}
	}
	return index
}
