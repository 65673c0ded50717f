package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/brandlens/ai-visibility/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	observationPrefix = "observations/"
	projectPrefix     = "catalog/projects/"
	keywordPrefix     = "catalog/keywords/"
	blobDayLayout     = "2006-01-02"
)

// BlobObservationStore lays observations out as JSON batches partitioned by
// UTC day (observations/2026-10-19/<batch>.json) so a time-window query only
// lists the days it covers. Projects and keywords live as one JSON document each.
type BlobObservationStore struct {
	blobs BlobStore
	now   func() time.Time
}

var _ Store = (*BlobObservationStore)(nil)

func NewBlobObservationStore(blobs BlobStore) *BlobObservationStore {
	return &BlobObservationStore{
		blobs: blobs,
		now:   time.Now,
	}
}

// Append writes one blob per UTC day touched by the slice. A failure part way
// through leaves earlier days written; observations are independent appends.
func (s *BlobObservationStore) Append(ctx context.Context, observations []models.Observation) error {
	if len(observations) == 0 {
		return nil
	}
	if err := validateAll(observations); err != nil {
		return err
	}

	byDay := make(map[string][]models.Observation)
	for _, obs := range observations {
		day := obs.Timestamp.UTC().Format(blobDayLayout)
		byDay[day] = append(byDay[day], obs)
	}

	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)

	batchID := uuid.NewString()
	written := 0
	for _, day := range days {
		data, err := json.Marshal(byDay[day])
		if err != nil {
			return partialWrite(written, fmt.Errorf("failed to marshal observations: %w", err))
		}
		name := fmt.Sprintf("%s%s/%s.json", observationPrefix, day, batchID)
		if err := s.blobs.Store(ctx, name, data); err != nil {
			return partialWrite(written, err)
		}
		written += len(byDay[day])
	}

	logrus.Debugf("Appended %d observations across %d day partitions", len(observations), len(days))
	return nil
}

// day partitions are separate blobs, so earlier partitions survive a failed upload
func partialWrite(written int, err error) error {
	if written == 0 {
		return err
	}
	return &models.PartialWriteError{Written: written, Err: err}
}

// Query lists the day partitions covered by the filter and decodes matching
// observations, ordered by timestamp.
func (s *BlobObservationStore) Query(ctx context.Context, filter models.ObservationFilter) ([]models.Observation, error) {
	names, err := s.partitionBlobs(ctx, filter)
	if err != nil {
		return nil, err
	}

	var result []models.Observation
	for _, name := range names {
		data, err := s.blobs.Retrieve(ctx, name)
		if err != nil {
			return nil, err
		}

		var batch []models.Observation
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, fmt.Errorf("failed to decode observation batch %s: %w", name, err)
		}
		for _, obs := range batch {
			if filter.Matches(obs) {
				result = append(result, obs)
			}
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

func (s *BlobObservationStore) partitionBlobs(ctx context.Context, filter models.ObservationFilter) ([]string, error) {
	if filter.Since.IsZero() {
		return s.blobs.List(ctx, observationPrefix)
	}

	until := filter.Until
	if until.IsZero() {
		until = s.now()
	}

	var names []string
	day := truncateDay(filter.Since.UTC())
	last := truncateDay(until.UTC())
	for !day.After(last) {
		dayNames, err := s.blobs.List(ctx, observationPrefix+day.Format(blobDayLayout)+"/")
		if err != nil {
			return nil, err
		}
		names = append(names, dayNames...)
		day = day.AddDate(0, 0, 1)
	}
	return names, nil
}

func (s *BlobObservationStore) GetProject(ctx context.Context, id string) (*models.Project, error) {
	names, err := s.blobs.List(ctx, projectPrefix+id+".json")
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, &models.NotFoundError{Kind: "project", ID: id}
	}

	data, err := s.blobs.Retrieve(ctx, projectPrefix+id+".json")
	if err != nil {
		return nil, err
	}

	var project models.Project
	if err := json.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("failed to decode project %s: %w", id, err)
	}
	return &project, nil
}

// ListProjects returns every project ordered by creation time
func (s *BlobObservationStore) ListProjects(ctx context.Context) ([]models.Project, error) {
	names, err := s.blobs.List(ctx, projectPrefix)
	if err != nil {
		return nil, err
	}

	projects := make([]models.Project, 0, len(names))
	for _, name := range names {
		data, err := s.blobs.Retrieve(ctx, name)
		if err != nil {
			return nil, err
		}
		var project models.Project
		if err := json.Unmarshal(data, &project); err != nil {
			return nil, fmt.Errorf("failed to decode project %s: %w", name, err)
		}
		projects = append(projects, project)
	}
	sortProjects(projects)
	return projects, nil
}

func (s *BlobObservationStore) ListKeywords(ctx context.Context, projectID string) ([]models.Keyword, error) {
	names, err := s.blobs.List(ctx, keywordPrefix+projectID+"/")
	if err != nil {
		return nil, err
	}
	keywords, err := s.loadKeywords(ctx, names)
	if err != nil {
		return nil, err
	}
	sortKeywords(keywords)
	return keywords, nil
}

// GetKeywords returns the keywords that exist among ids; unknown ids are skipped
func (s *BlobObservationStore) GetKeywords(ctx context.Context, ids []string) ([]models.Keyword, error) {
	names, err := s.blobs.List(ctx, keywordPrefix)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id+".json"] = struct{}{}
	}

	var matched []string
	for _, name := range names {
		if _, ok := wanted[name[strings.LastIndex(name, "/")+1:]]; ok {
			matched = append(matched, name)
		}
	}
	return s.loadKeywords(ctx, matched)
}

func (s *BlobObservationStore) SaveProject(ctx context.Context, project *models.Project) error {
	data, err := json.Marshal(project)
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}
	return s.blobs.Store(ctx, projectPrefix+project.ID+".json", data)
}

func (s *BlobObservationStore) SaveKeywords(ctx context.Context, keywords []models.Keyword) error {
	for _, keyword := range keywords {
		data, err := json.Marshal(keyword)
		if err != nil {
			return fmt.Errorf("failed to marshal keyword: %w", err)
		}
		name := fmt.Sprintf("%s%s/%s.json", keywordPrefix, keyword.ProjectID, keyword.ID)
		if err := s.blobs.Store(ctx, name, data); err != nil {
			return err
		}
	}
	return nil
}

// DeleteKeyword rewrites every observation batch that holds checks of the
// keyword, deleting batches left empty, then removes the keyword document.
// Observations go first so a failed delete can be retried.
func (s *BlobObservationStore) DeleteKeyword(ctx context.Context, id string) error {
	keywords, err := s.GetKeywords(ctx, []string{id})
	if err != nil {
		return err
	}
	if len(keywords) == 0 {
		return &models.NotFoundError{Kind: "keyword", ID: id}
	}

	names, err := s.blobs.List(ctx, observationPrefix)
	if err != nil {
		return err
	}

	removed := 0
	for _, name := range names {
		data, err := s.blobs.Retrieve(ctx, name)
		if err != nil {
			return err
		}
		var batch []models.Observation
		if err := json.Unmarshal(data, &batch); err != nil {
			return fmt.Errorf("failed to decode observation batch %s: %w", name, err)
		}

		kept := make([]models.Observation, 0, len(batch))
		for _, obs := range batch {
			if obs.KeywordID != id {
				kept = append(kept, obs)
			}
		}
		if len(kept) == len(batch) {
			continue
		}
		removed += len(batch) - len(kept)

		if len(kept) == 0 {
			if err := s.blobs.Delete(ctx, name); err != nil {
				return err
			}
			continue
		}
		data, err = json.Marshal(kept)
		if err != nil {
			return fmt.Errorf("failed to marshal observations: %w", err)
		}
		if err := s.blobs.Store(ctx, name, data); err != nil {
			return err
		}
	}

	keyword := keywords[0]
	if err := s.blobs.Delete(ctx, fmt.Sprintf("%s%s/%s.json", keywordPrefix, keyword.ProjectID, keyword.ID)); err != nil {
		return err
	}

	logrus.Infof("Deleted keyword %s and %d observations", id, removed)
	return nil
}

func (s *BlobObservationStore) loadKeywords(ctx context.Context, names []string) ([]models.Keyword, error) {
	keywords := make([]models.Keyword, 0, len(names))
	for _, name := range names {
		data, err := s.blobs.Retrieve(ctx, name)
		if err != nil {
			return nil, err
		}
		var keyword models.Keyword
		if err := json.Unmarshal(data, &keyword); err != nil {
			return nil, fmt.Errorf("failed to decode keyword %s: %w", name, err)
		}
		keywords = append(keywords, keyword)
	}
	return keywords, nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
