package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brandlens/ai-visibility/internal/config"
	"github.com/brandlens/ai-visibility/internal/engines"
	"github.com/brandlens/ai-visibility/internal/models"
	"github.com/brandlens/ai-visibility/internal/storage"
	"github.com/brandlens/ai-visibility/internal/telemetry"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// maxReportedErrors caps the error strings copied into a BatchResult
const maxReportedErrors = 20

// Options bound a collection run
type Options struct {
	Concurrency  int
	CheckTimeout time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	BatchSize    int
	MaxSyncPairs int
	Location     *time.Location
}

// OptionsFromConfig maps the CHECK_* and PERSIST_* settings
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Concurrency:  cfg.CheckConcurrency,
		CheckTimeout: cfg.CheckTimeout,
		MaxRetries:   cfg.CheckMaxRetries,
		RetryBackoff: 500 * time.Millisecond,
		BatchSize:    cfg.PersistBatchSize,
		MaxSyncPairs: cfg.MaxSyncPairs,
		Location:     cfg.Location(),
	}
}

// Pair is one (keyword, engine) check to perform
type Pair struct {
	Keyword models.Keyword
	Engine  models.Engine
}

// Plan is a resolved check request
type Plan struct {
	Project models.Project
	Pairs   []Pair
}

// Service produces one observation per (keyword, engine) pair and persists
// them in bounded batches
type Service struct {
	store    storage.Store
	checkers map[models.Engine]engines.Checker
	metrics  *telemetry.Metrics
	opts     Options
	now      func() time.Time
}

// NewService creates a new collector service
func NewService(store storage.Store, checkers []engines.Checker, metrics *telemetry.Metrics, opts Options) *Service {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 100
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}

	return &Service{
		store:    store,
		checkers: engines.Index(checkers),
		metrics:  metrics,
		opts:     opts,
		now:      time.Now,
	}
}

// Plan resolves the project, keywords and engines of req. An empty keyword
// list selects every keyword of the project; an empty engine list selects
// every engine.
func (s *Service) Plan(ctx context.Context, req models.CheckRequest) (*Plan, error) {
	if req.ProjectID == "" {
		return nil, &models.ValidationError{Field: "projectId", Reason: "is required"}
	}

	project, err := s.store.GetProject(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}

	keywords, err := s.resolveKeywords(ctx, project.ID, req.KeywordIDs)
	if err != nil {
		return nil, err
	}
	if len(keywords) == 0 {
		return nil, &models.ValidationError{Field: "keywordIds", Reason: fmt.Sprintf("project %s has no keywords", project.ID)}
	}

	selected, err := s.resolveEngines(req.Engines)
	if err != nil {
		return nil, err
	}

	plan := &Plan{Project: *project, Pairs: make([]Pair, 0, len(keywords)*len(selected))}
	for _, keyword := range keywords {
		for _, engine := range selected {
			plan.Pairs = append(plan.Pairs, Pair{Keyword: keyword, Engine: engine})
		}
	}
	return plan, nil
}

func (s *Service) resolveKeywords(ctx context.Context, projectID string, ids []string) ([]models.Keyword, error) {
	if len(ids) == 0 {
		return s.store.ListKeywords(ctx, projectID)
	}

	found, err := s.store.GetKeywords(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.Keyword, len(found))
	for _, keyword := range found {
		byID[keyword.ID] = keyword
	}

	keywords := make([]models.Keyword, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		keyword, ok := byID[id]
		if !ok || keyword.ProjectID != projectID {
			return nil, &models.NotFoundError{Kind: "keyword", ID: id}
		}
		keywords = append(keywords, keyword)
	}
	return keywords, nil
}

func (s *Service) resolveEngines(requested []models.Engine) ([]models.Engine, error) {
	if len(requested) == 0 {
		requested = models.AllEngines()
	}

	selected := make([]models.Engine, 0, len(requested))
	seen := make(map[models.Engine]bool, len(requested))
	for _, engine := range requested {
		if !engine.Valid() {
			return nil, &models.ValidationError{Field: "engines", Reason: fmt.Sprintf("unknown engine %s", engine)}
		}
		if seen[engine] {
			continue
		}
		seen[engine] = true

		if _, ok := s.checkers[engine]; !ok {
			return nil, &models.ValidationError{Field: "engines", Reason: fmt.Sprintf("no enabled checker for %s", engine)}
		}
		selected = append(selected, engine)
	}
	return selected, nil
}

// RunChecks is the synchronous, bounded entry point. Requests above
// MaxSyncPairs are rejected and must go through an asynchronous job.
func (s *Service) RunChecks(ctx context.Context, req models.CheckRequest) (*models.BatchResult, error) {
	plan, err := s.Plan(ctx, req)
	if err != nil {
		return nil, err
	}

	if s.opts.MaxSyncPairs > 0 && len(plan.Pairs) > s.opts.MaxSyncPairs {
		return nil, &models.ValidationError{
			Field:  "keywordIds",
			Reason: fmt.Sprintf("%d checks exceed the synchronous limit of %d, submit a job instead", len(plan.Pairs), s.opts.MaxSyncPairs),
		}
	}

	return s.Execute(ctx, plan)
}

// Execute runs every pair of plan at the current time and persists the results
func (s *Service) Execute(ctx context.Context, plan *Plan) (*models.BatchResult, error) {
	at := s.now().UTC()
	tasks := make([]task, 0, len(plan.Pairs))
	for _, pair := range plan.Pairs {
		tasks = append(tasks, task{pair: pair, at: at})
	}
	return s.run(ctx, plan.Project, tasks)
}

// Backfill generates a daily series for every keyword and engine of the
// project, one check per pair per day at 09:00 local time, ending today.
func (s *Service) Backfill(ctx context.Context, projectID string, days int) (*models.BatchResult, error) {
	if days < 1 {
		return nil, &models.ValidationError{Field: "days", Reason: "must be at least 1"}
	}

	plan, err := s.Plan(ctx, models.CheckRequest{ProjectID: projectID})
	if err != nil {
		return nil, err
	}

	today := s.now().In(s.opts.Location)
	tasks := make([]task, 0, len(plan.Pairs)*days)
	for daysAgo := days - 1; daysAgo >= 0; daysAgo-- {
		day := today.AddDate(0, 0, -daysAgo)
		at := time.Date(day.Year(), day.Month(), day.Day(), 9, 0, 0, 0, s.opts.Location)
		for _, pair := range plan.Pairs {
			tasks = append(tasks, task{pair: pair, at: at})
		}
	}

	logrus.WithFields(logrus.Fields{"project_id": projectID, "days": days}).
		Infof("Backfilling %d historical checks", len(tasks))
	return s.run(ctx, plan.Project, tasks)
}

type task struct {
	pair Pair
	at   time.Time
}

type outcome struct {
	obs *models.Observation
	err error
}

func (s *Service) run(ctx context.Context, project models.Project, tasks []task) (*models.BatchResult, error) {
	start := time.Now()
	log := logrus.WithField("project_id", project.ID)
	log.Infof("Starting %d visibility checks (concurrency %d)", len(tasks), s.opts.Concurrency)

	outcomes := s.collect(ctx, project, tasks)

	result := &models.BatchResult{
		Attempted: len(tasks),
		StartedAt: start.UTC(),
	}

	observations := make([]models.Observation, 0, len(outcomes))
	for _, o := range outcomes {
		if o.err != nil {
			result.Failed++
			appendError(result, o.err)
			continue
		}
		observations = append(observations, *o.obs)
	}
	result.Collected = len(observations)

	s.persist(ctx, observations, result)

	result.Duration = time.Since(start).String()
	log.Infof("Visibility checks finished: %d attempted, %d collected, %d persisted, %d failed in %s",
		result.Attempted, result.Collected, result.Persisted, result.Failed, result.Duration)

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("check run interrupted: %w", err)
	}
	return result, nil
}

// collect runs the checks with at most Concurrency in flight. Results are
// written to their own slot, so no locking is needed.
func (s *Service) collect(ctx context.Context, project models.Project, tasks []task) []outcome {
	outcomes := make([]outcome, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	for i, t := range tasks {
		i, t := i, t
		g.Go(func() error {
			began := time.Now()
			obs, err := s.check(gctx, project, t)
			if err != nil {
				outcomes[i] = outcome{err: err}
				s.metrics.RecordCheck(t.pair.Engine, nil, time.Since(began))
				return nil
			}
			outcomes[i] = outcome{obs: &obs}
			s.metrics.RecordCheck(t.pair.Engine, &obs, time.Since(began))
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// check performs one pair with a per-attempt timeout, retrying retryable causes
func (s *Service) check(ctx context.Context, project models.Project, t task) (models.Observation, error) {
	checker := s.checkers[t.pair.Engine]
	in := engines.CheckInput{Keyword: t.pair.Keyword, Project: project, Timestamp: t.at}

	var lastErr *models.CollectionError
	for attempt := 0; attempt <= s.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, s.opts.RetryBackoff*time.Duration(attempt)); err != nil {
				break
			}
		}

		obs, err := s.attempt(ctx, checker, in)
		if err == nil {
			return obs, nil
		}

		lastErr = asCollectionError(err, t.pair)
		s.metrics.RecordCollectionError(t.pair.Engine, lastErr.Cause)
		logrus.Debugf("Check %s/%s attempt %d failed: %v", t.pair.Keyword.ID, t.pair.Engine, attempt+1, err)

		if !lastErr.Retryable() {
			break
		}
	}
	return models.Observation{}, lastErr
}

func (s *Service) attempt(ctx context.Context, checker engines.Checker, in engines.CheckInput) (models.Observation, error) {
	if s.opts.CheckTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.CheckTimeout)
		defer cancel()
	}

	obs, err := checker.Check(ctx, in)
	if err != nil {
		return models.Observation{}, err
	}
	if err := models.Validate(obs); err != nil {
		return models.Observation{}, &models.CollectionError{
			Engine:    checker.Engine(),
			KeywordID: in.Keyword.ID,
			Cause:     models.CauseParseFailure,
			Err:       err,
		}
	}
	return obs, nil
}

// persist writes observations in BatchSize chunks. A failed chunk is
// reported by index; chunks already written stay written, and so does
// the part of a failed chunk the store reports as written.
func (s *Service) persist(ctx context.Context, observations []models.Observation, result *models.BatchResult) {
	for index, start := 0, 0; start < len(observations); index, start = index+1, start+s.opts.BatchSize {
		end := start + s.opts.BatchSize
		if end > len(observations) {
			end = len(observations)
		}
		batch := observations[start:end]

		err := s.store.Append(ctx, batch)
		s.metrics.RecordPersist(len(batch), err)
		if err != nil {
			written := models.WrittenBefore(err)
			persistErr := &models.PersistenceError{BatchIndex: index, Size: len(batch), Written: written, Err: err}
			logrus.Errorf("Failed to persist observations: %v", persistErr)
			result.FailedBatches = append(result.FailedBatches, index)
			result.Persisted += written
			appendError(result, persistErr)
			continue
		}
		result.Persisted += len(batch)
	}
}

func asCollectionError(err error, pair Pair) *models.CollectionError {
	var collectionErr *models.CollectionError
	if errors.As(err, &collectionErr) {
		return collectionErr
	}
	return &models.CollectionError{
		Engine:    pair.Engine,
		KeywordID: pair.Keyword.ID,
		Cause:     models.CauseEngineUnavailable,
		Err:       err,
	}
}

func appendError(result *models.BatchResult, err error) {
	if len(result.Errors) < maxReportedErrors {
		result.Errors = append(result.Errors, err.Error())
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
