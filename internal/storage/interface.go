package storage

import (
	"context"
	"fmt"

	"github.com/brandlens/ai-visibility/internal/models"
)

// BlobStore defines the contract for raw blob operations
type BlobStore interface {
	Store(ctx context.Context, name string, data []byte) error
	Retrieve(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
}

// ObservationStore is the append-only persistence boundary for observations.
// Append validates every observation and writes the slice as one unit.
type ObservationStore interface {
	Append(ctx context.Context, observations []models.Observation) error
	Query(ctx context.Context, filter models.ObservationFilter) ([]models.Observation, error)
}

// Catalog resolves the projects and keywords observations refer to
type Catalog interface {
	GetProject(ctx context.Context, id string) (*models.Project, error)
	ListProjects(ctx context.Context) ([]models.Project, error)
	ListKeywords(ctx context.Context, projectID string) ([]models.Keyword, error)
	GetKeywords(ctx context.Context, ids []string) ([]models.Keyword, error)
	SaveProject(ctx context.Context, project *models.Project) error
	SaveKeywords(ctx context.Context, keywords []models.Keyword) error
	// DeleteKeyword removes a keyword together with its observations
	DeleteKeyword(ctx context.Context, id string) error
}

// Store bundles both halves so a backend can be passed around as one value
type Store interface {
	ObservationStore
	Catalog
}

// validateAll rejects the whole slice if any observation breaks an invariant
func validateAll(observations []models.Observation) error {
	for i, obs := range observations {
		if err := models.Validate(obs); err != nil {
			return fmt.Errorf("observation %d (%s): %w", i, obs.ID, err)
		}
	}
	return nil
}
