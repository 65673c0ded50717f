package engines

import (
	"context"
	"time"

	"github.com/brandlens/ai-visibility/internal/models"
)

// CheckInput is everything an engine needs to answer one (keyword, engine) pair
type CheckInput struct {
	Keyword   models.Keyword
	Project   models.Project
	Timestamp time.Time
}

// Checker interface defines the contract for every engine adapter. A checker
// either returns a fully validated observation or a *models.CollectionError;
// it never returns a partially filled observation.
type Checker interface {
	Engine() models.Engine
	Check(ctx context.Context, in CheckInput) (models.Observation, error)
	IsEnabled() bool
}
