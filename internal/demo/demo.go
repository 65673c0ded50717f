// Package demo creates the sample project used by the seed and report tools.
package demo

import (
	"context"
	"fmt"
	"time"

	"github.com/brandlens/ai-visibility/internal/models"
	"github.com/brandlens/ai-visibility/internal/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultDays of history generated by Seed
const DefaultDays = 15

// Backfiller generates historical checks for a project
type Backfiller interface {
	Backfill(ctx context.Context, projectID string, days int) (*models.BatchResult, error)
}

type sampleKeyword struct {
	keyword  string
	category string
}

var sampleKeywords = []sampleKeyword{
	{"best project management software", "Product"},
	{"agile project management tools", "Product"},
	{"team collaboration software", "Product"},
	{"how to manage remote teams", "Educational"},
	{"project planning best practices", "Educational"},
	{"scrum vs kanban methodology", "Educational"},
	{"project management certification", "Professional"},
	{"pmp certification requirements", "Professional"},
	{"project manager salary", "Career"},
	{"asana vs monday.com comparison", "Comparison"},
	{"jira alternatives for small teams", "Comparison"},
	{"free project management tools", "Budget"},
	{"enterprise project portfolio management", "Enterprise"},
	{"construction project management software", "Industry"},
	{"IT project management framework", "Industry"},
	{"marketing project management tips", "Industry"},
	{"project tracking software", "Product"},
	{"gantt chart software online", "Product"},
	{"resource allocation tools", "Product"},
	{"project management KPIs", "Analytics"},
}

// Project returns a fresh demo project and its keywords
func Project(now time.Time) (*models.Project, []models.Keyword) {
	project := &models.Project{
		ID:          uuid.NewString(),
		Name:        "Demo Project - Q4 2025",
		Domain:      "acmeprojects.com",
		BrandName:   "Acme Projects",
		Competitors: []string{"CompetitorA", "CompetitorB", "CompetitorC"},
		CreatedAt:   now.UTC(),
	}

	keywords := make([]models.Keyword, 0, len(sampleKeywords))
	for i, sample := range sampleKeywords {
		category := sample.category
		keywords = append(keywords, models.Keyword{
			ID:        uuid.NewString(),
			ProjectID: project.ID,
			Keyword:   sample.keyword,
			Category:  &category,
			Priority:  i%3 + 1,
			// keep insertion order stable for listings sorted by creation time
			CreatedAt: now.UTC().Add(time.Duration(i) * time.Millisecond),
		})
	}
	return project, keywords
}

// Seed saves the demo project and backfills days of checks for it
func Seed(ctx context.Context, catalog storage.Catalog, backfiller Backfiller, days int) (*models.Project, *models.BatchResult, error) {
	project, keywords := Project(time.Now())

	logrus.Infof("Creating project: %s", project.Name)
	if err := catalog.SaveProject(ctx, project); err != nil {
		return nil, nil, fmt.Errorf("failed to save demo project: %w", err)
	}
	if err := catalog.SaveKeywords(ctx, keywords); err != nil {
		return nil, nil, fmt.Errorf("failed to save demo keywords: %w", err)
	}
	logrus.Infof("Added %d keywords, generating %d days of visibility checks", len(keywords), days)

	result, err := backfiller.Backfill(ctx, project.ID, days)
	if err != nil {
		return project, result, fmt.Errorf("failed to backfill demo checks: %w", err)
	}
	return project, result, nil
}
