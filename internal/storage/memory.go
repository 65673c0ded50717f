package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/brandlens/ai-visibility/internal/models"
)

// MemoryStore keeps projects, keywords and observations in process memory.
// It backs STORAGE_BACKEND=memory and the unit tests.
type MemoryStore struct {
	mu           sync.RWMutex
	projects     map[string]models.Project
	keywords     map[string]models.Keyword
	observations []models.Observation
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects: make(map[string]models.Project),
		keywords: make(map[string]models.Keyword),
	}
}

func (m *MemoryStore) Append(ctx context.Context, observations []models.Observation) error {
	if err := validateAll(observations); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.observations = append(m.observations, observations...)
	return nil
}

// Query returns matching observations ordered by timestamp
func (m *MemoryStore) Query(ctx context.Context, filter models.ObservationFilter) ([]models.Observation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []models.Observation
	for _, obs := range m.observations {
		if filter.Matches(obs) {
			result = append(result, obs)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

func (m *MemoryStore) GetProject(ctx context.Context, id string) (*models.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	project, ok := m.projects[id]
	if !ok {
		return nil, &models.NotFoundError{Kind: "project", ID: id}
	}
	return &project, nil
}

// ListProjects returns every project ordered by creation time
func (m *MemoryStore) ListProjects(ctx context.Context) ([]models.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]models.Project, 0, len(m.projects))
	for _, project := range m.projects {
		result = append(result, project)
	}
	sortProjects(result)
	return result, nil
}

func (m *MemoryStore) ListKeywords(ctx context.Context, projectID string) ([]models.Keyword, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []models.Keyword
	for _, keyword := range m.keywords {
		if keyword.ProjectID == projectID {
			result = append(result, keyword)
		}
	}
	sortKeywords(result)
	return result, nil
}

// GetKeywords returns the keywords that exist among ids; unknown ids are skipped
func (m *MemoryStore) GetKeywords(ctx context.Context, ids []string) ([]models.Keyword, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []models.Keyword
	for _, id := range ids {
		if keyword, ok := m.keywords[id]; ok {
			result = append(result, keyword)
		}
	}
	return result, nil
}

func (m *MemoryStore) SaveProject(ctx context.Context, project *models.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[project.ID] = *project
	return nil
}

func (m *MemoryStore) SaveKeywords(ctx context.Context, keywords []models.Keyword) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, keyword := range keywords {
		m.keywords[keyword.ID] = keyword
	}
	return nil
}

func (m *MemoryStore) DeleteKeyword(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.keywords[id]; !ok {
		return &models.NotFoundError{Kind: "keyword", ID: id}
	}
	delete(m.keywords, id)

	kept := m.observations[:0]
	for _, obs := range m.observations {
		if obs.KeywordID != id {
			kept = append(kept, obs)
		}
	}
	m.observations = kept
	return nil
}

// Len returns the number of stored observations
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.observations)
}

func sortProjects(projects []models.Project) {
	sort.Slice(projects, func(i, j int) bool {
		if !projects[i].CreatedAt.Equal(projects[j].CreatedAt) {
			return projects[i].CreatedAt.Before(projects[j].CreatedAt)
		}
		return projects[i].ID < projects[j].ID
	})
}

func sortKeywords(keywords []models.Keyword) {
	sort.Slice(keywords, func(i, j int) bool {
		if !keywords[i].CreatedAt.Equal(keywords[j].CreatedAt) {
			return keywords[i].CreatedAt.Before(keywords[j].CreatedAt)
		}
		return keywords[i].ID < keywords[j].ID
	})
}
