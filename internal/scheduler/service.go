package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/brandlens/ai-visibility/internal/config"
	"github.com/brandlens/ai-visibility/internal/monitoring"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Monitor is the set of operations the scheduler triggers
type Monitor interface {
	RunScheduledChecks(ctx context.Context) error
	RunDigests(ctx context.Context) error
	RunDropCheck(ctx context.Context) error
}

var _ Monitor = (*monitoring.Service)(nil)

// dropCheckSpec runs the drop check every 4 hours
const dropCheckSpec = "0 0 */4 * * *"

// Service handles scheduling of monitoring tasks
type Service struct {
	config            *config.Config
	monitoringService Monitor
	cron              *cron.Cron
	timeout           time.Duration
}

// NewService creates a new scheduler service. Schedules are evaluated in the
// configured TIMEZONE.
func NewService(cfg *config.Config, monitoringService Monitor) *Service {
	return &Service{
		config:            cfg,
		monitoringService: monitoringService,
		cron:              cron.New(cron.WithSeconds(), cron.WithLocation(cfg.Location())),
		timeout:           30 * time.Minute,
	}
}

// DigestSpec returns the cron expression of the digest for a report schedule
func DigestSpec(schedule string) string {
	switch schedule {
	case "daily":
		// Run daily at 9:30 AM, after the morning checks
		return "0 30 9 * * *"
	default:
		// Run weekly on Monday at 9:30 AM
		return "0 30 9 * * MON"
	}
}

// Start registers the check, digest and drop-alert jobs and starts the cron loop
func (s *Service) Start() error {
	if _, err := s.cron.AddFunc(s.config.CheckSchedule, s.wrap("scheduled checks", s.monitoringService.RunScheduledChecks)); err != nil {
		return fmt.Errorf("invalid CHECK_SCHEDULE %q: %w", s.config.CheckSchedule, err)
	}

	if s.config.NotificationsEnabled() {
		if _, err := s.cron.AddFunc(DigestSpec(s.config.ReportSchedule), s.wrap("visibility digest", s.monitoringService.RunDigests)); err != nil {
			return err
		}
		if _, err := s.cron.AddFunc(dropCheckSpec, s.wrap("visibility drop check", s.monitoringService.RunDropCheck)); err != nil {
			return err
		}
	} else {
		logrus.Info("No notification channel configured, digests and drop alerts are disabled")
	}

	s.cron.Start()
	logrus.Infof("Scheduler started: checks %q, %s digest", s.config.CheckSchedule, s.config.ReportSchedule)
	return nil
}

// Entries reports how many jobs are registered
func (s *Service) Entries() int {
	return len(s.cron.Entries())
}

func (s *Service) wrap(name string, run func(ctx context.Context) error) func() {
	return func() {
		logrus.Infof("Starting %s", name)
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		start := time.Now()
		if err := run(ctx); err != nil {
			logrus.Errorf("%s failed: %v", name, err)
			return
		}
		logrus.Infof("Finished %s in %v", name, time.Since(start))
	}
}

// Stop stops the scheduler and waits for running jobs
func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		logrus.Info("Scheduler stopped")
	}
}
