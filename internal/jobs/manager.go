package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/brandlens/ai-visibility/internal/collector"
	"github.com/brandlens/ai-visibility/internal/models"
	"github.com/brandlens/ai-visibility/internal/telemetry"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Runner is the part of the collector a job needs
type Runner interface {
	Plan(ctx context.Context, req models.CheckRequest) (*collector.Plan, error)
	Execute(ctx context.Context, plan *collector.Plan) (*models.BatchResult, error)
}

// Manager submits check requests as background jobs
type Manager struct {
	runner  Runner
	store   Store
	metrics *telemetry.Metrics
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	now     func() time.Time
}

func NewManager(runner Runner, store Store, metrics *telemetry.Metrics) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		runner:  runner,
		store:   store,
		metrics: metrics,
		ctx:     ctx,
		cancel:  cancel,
		now:     time.Now,
	}
}

// Submit validates req, records a pending job and starts it. Request errors
// (unknown project or keyword, bad engine) are returned here, not stored.
func (m *Manager) Submit(ctx context.Context, req models.CheckRequest) (*Job, error) {
	plan, err := m.runner.Plan(ctx, req)
	if err != nil {
		return nil, err
	}

	created := m.now().UTC()
	job := &Job{
		ID:        uuid.NewString(),
		ProjectID: plan.Project.ID,
		Status:    StatusPending,
		Pairs:     len(plan.Pairs),
		CreatedAt: created,
		UpdatedAt: created,
	}
	if err := m.store.Save(ctx, job); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"job_id": job.ID, "project_id": job.ProjectID}).
		Infof("Submitted check job with %d pairs", job.Pairs)

	pending := *job
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(pending, plan)
	}()

	return job, nil
}

func (m *Manager) run(job Job, plan *collector.Plan) {
	log := logrus.WithFields(logrus.Fields{"job_id": job.ID, "project_id": job.ProjectID})

	m.metrics.RecordJobStarted()
	job.Status = StatusRunning
	job.UpdatedAt = m.now().UTC()
	m.save(&job)

	result, err := m.runner.Execute(m.ctx, plan)
	job.UpdatedAt = m.now().UTC()
	job.Result = result
	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
		log.Errorf("Check job failed: %v", err)
	} else {
		job.Status = StatusCompleted
		log.Infof("Check job completed: %d/%d persisted", result.Persisted, result.Attempted)
	}
	m.save(&job)
	m.metrics.RecordJobFinished(string(job.Status))
}

func (m *Manager) save(job *Job) {
	// the request context is gone by now
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.Save(ctx, job); err != nil {
		logrus.WithField("job_id", job.ID).Errorf("Failed to save job status %s: %v", job.Status, err)
	}
}

// Get returns the current state of a job
func (m *Manager) Get(ctx context.Context, id string) (*Job, error) {
	return m.store.Get(ctx, id)
}

// Wait blocks until every submitted job has finished
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Close cancels running jobs and waits for them to record their final state
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}
