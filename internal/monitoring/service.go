package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/brandlens/ai-visibility/internal/analytics"
	"github.com/brandlens/ai-visibility/internal/config"
	"github.com/brandlens/ai-visibility/internal/jobs"
	"github.com/brandlens/ai-visibility/internal/models"
	"github.com/brandlens/ai-visibility/internal/notifications"
	"github.com/brandlens/ai-visibility/internal/recommendations"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// JobSubmitter starts asynchronous check runs
type JobSubmitter interface {
	Submit(ctx context.Context, req models.CheckRequest) (*jobs.Job, error)
}

// Snapshotter reads the aggregated analytics of a project
type Snapshotter interface {
	Snapshot(ctx context.Context, q analytics.Query) (*analytics.Snapshot, error)
}

var (
	_ JobSubmitter = (*jobs.Manager)(nil)
	_ Snapshotter  = (*analytics.Service)(nil)
)

// Service orchestrates scheduled checks, digests and drop alerts for tracked projects
type Service struct {
	config              *config.Config
	jobs                JobSubmitter
	analytics           Snapshotter
	recommender         *recommendations.Engine
	notificationService notifications.NotificationInterface
	metrics             *Metrics
	mu                  sync.RWMutex
	now                 func() time.Time
}

// Metrics holds monitoring run counters
type Metrics struct {
	LastCheckRun  time.Time `json:"last_check_run"`
	LastDigest    time.Time `json:"last_digest"`
	LastDropCheck time.Time `json:"last_drop_check"`
	JobsSubmitted int       `json:"jobs_submitted"`
	DigestsSent   int       `json:"digests_sent"`
	AlertsSent    int       `json:"alerts_sent"`
	ErrorCount    int       `json:"error_count"`
}

// NewService creates a new monitoring service
func NewService(cfg *config.Config, jobs JobSubmitter, snapshots Snapshotter, recommender *recommendations.Engine, notificationService notifications.NotificationInterface) *Service {
	return &Service{
		config:              cfg,
		jobs:                jobs,
		analytics:           snapshots,
		recommender:         recommender,
		notificationService: notificationService,
		metrics:             &Metrics{},
		now:                 time.Now,
	}
}

// RunScheduledChecks submits one check job per tracked project covering all of
// its keywords on every engine
func (s *Service) RunScheduledChecks(ctx context.Context) error {
	if len(s.config.TrackedProjects) == 0 {
		logrus.Info("No tracked projects configured, skipping scheduled checks")
		return nil
	}

	logrus.Infof("Starting scheduled checks for %d projects", len(s.config.TrackedProjects))

	var failures []string
	submitted := 0
	for _, projectID := range s.config.TrackedProjects {
		job, err := s.jobs.Submit(ctx, models.CheckRequest{ProjectID: projectID})
		if err != nil {
			logrus.WithField("project_id", projectID).Errorf("Failed to submit scheduled checks: %v", err)
			failures = append(failures, fmt.Sprintf("%s: %v", projectID, err))
			continue
		}

		submitted++
		logrus.WithFields(logrus.Fields{
			"project_id": projectID,
			"job_id":     job.ID,
			"pairs":      job.Pairs,
		}).Info("Scheduled check job submitted")
	}

	s.mu.Lock()
	s.metrics.LastCheckRun = s.now()
	s.metrics.JobsSubmitted += submitted
	s.metrics.ErrorCount += len(failures)
	s.mu.Unlock()

	if len(failures) > 0 {
		return fmt.Errorf("scheduled checks failed for %d projects: %s", len(failures), strings.Join(failures, "; "))
	}
	return nil
}

// BuildReport assembles the visibility digest of one project
func (s *Service) BuildReport(ctx context.Context, projectID string) (*models.VisibilityReport, error) {
	snapshot, err := s.analytics.Snapshot(ctx, analytics.Query{ProjectID: projectID})
	if err != nil {
		return nil, fmt.Errorf("failed to load analytics for project %s: %w", projectID, err)
	}

	result := s.recommender.Generate(recommendations.InputFromAnalytics(snapshot.Analytics))

	return &models.VisibilityReport{
		GeneratedAt:     s.now(),
		Period:          s.config.ReportSchedule,
		Project:         snapshot.Project,
		Analytics:       snapshot.Analytics,
		Recommendations: result.Recommendations,
		Status:          string(result.Status),
		Message:         result.Message,
	}, nil
}

// SendDigest builds and delivers the digest of one project
func (s *Service) SendDigest(ctx context.Context, projectID string) error {
	report, err := s.BuildReport(ctx, projectID)
	if err != nil {
		s.recordError()
		return err
	}

	if err := s.notificationService.SendReport(ctx, report); err != nil {
		s.recordError()
		return fmt.Errorf("failed to send digest for project %s: %w", projectID, err)
	}

	s.mu.Lock()
	s.metrics.LastDigest = s.now()
	s.metrics.DigestsSent++
	s.mu.Unlock()

	logrus.WithField("project_id", projectID).Infof("Sent %s digest with %d recommendations", report.Period, len(report.Recommendations))
	return nil
}

// RunDigests sends the digest of every tracked project
func (s *Service) RunDigests(ctx context.Context) error {
	var errs []error
	for _, projectID := range s.config.TrackedProjects {
		if err := s.SendDigest(ctx, projectID); err != nil {
			logrus.WithField("project_id", projectID).Errorf("Digest failed: %v", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RunDropCheck raises an alert for every tracked project whose presence rate
// fell by at least DropAlertPoints against a real baseline
func (s *Service) RunDropCheck(ctx context.Context) error {
	var errs []error
	alerts := 0

	for _, projectID := range s.config.TrackedProjects {
		alert, err := s.checkDrop(ctx, projectID)
		if err != nil {
			logrus.WithField("project_id", projectID).Errorf("Drop check failed: %v", err)
			errs = append(errs, err)
			continue
		}
		if alert == nil {
			continue
		}

		if err := s.notificationService.SendAlert(ctx, alert); err != nil {
			errs = append(errs, fmt.Errorf("failed to send drop alert for project %s: %w", projectID, err))
			continue
		}
		alerts++
	}

	s.mu.Lock()
	s.metrics.LastDropCheck = s.now()
	s.metrics.AlertsSent += alerts
	s.metrics.ErrorCount += len(errs)
	s.mu.Unlock()

	logrus.Infof("Drop check completed, %d alerts raised", alerts)
	return errors.Join(errs...)
}

// checkDrop returns nil when the project shows no qualifying drop
func (s *Service) checkDrop(ctx context.Context, projectID string) (*models.Alert, error) {
	snapshot, err := s.analytics.Snapshot(ctx, analytics.Query{ProjectID: projectID})
	if err != nil {
		return nil, fmt.Errorf("failed to load analytics for project %s: %w", projectID, err)
	}

	trend := snapshot.Analytics.Trend
	if !trend.HasBaseline {
		logrus.WithField("project_id", projectID).Debug("No baseline window yet, skipping drop check")
		return nil, nil
	}
	if trend.DeltaPoints > -s.config.DropAlertPoints {
		return nil, nil
	}

	severity := "urgent"
	if trend.DeltaPoints <= -2*s.config.DropAlertPoints {
		severity = "critical"
	}

	name := snapshot.Project.BrandName
	if name == "" {
		name = snapshot.Project.Name
	}

	return &models.Alert{
		ID:    uuid.NewString(),
		Type:  severity,
		Title: fmt.Sprintf("AI visibility dropped %.1f points for %s", math.Abs(trend.DeltaPoints), snapshot.Project.Name),
		Message: fmt.Sprintf("%s appeared in %.1f%% of recent AI engine answers, down from %.1f%% in the previous window.",
			name, trend.Recent.PresenceRate*100, trend.Older.PresenceRate*100),
		ProjectID: projectID,
		Trend:     &trend,
		CreatedAt: s.now(),
	}, nil
}

func (s *Service) recordError() {
	s.mu.Lock()
	s.metrics.ErrorCount++
	s.mu.Unlock()
}

// GetMetrics returns current metrics as JSON
func (s *Service) GetMetrics() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, _ := json.MarshalIndent(s.metrics, "", "  ")
	return string(data)
}
