package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/brandlens/ai-visibility/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockMonitor struct {
	mock.Mock
}

func (m *MockMonitor) RunScheduledChecks(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockMonitor) RunDigests(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockMonitor) RunDropCheck(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func TestDigestSpec(t *testing.T) {
	assert.Equal(t, "0 30 9 * * *", DigestSpec("daily"))
	assert.Equal(t, "0 30 9 * * MON", DigestSpec("weekly"))
	assert.Equal(t, "0 30 9 * * MON", DigestSpec(""))
}

func TestService_Start(t *testing.T) {
	tests := []struct {
		name     string
		cfg      *config.Config
		expected int
		wantErr  bool
	}{
		{
			name:     "Checks only without notification channels",
			cfg:      &config.Config{CheckSchedule: "0 0 9 * * *", ReportSchedule: "weekly", TimeZone: "UTC"},
			expected: 1,
		},
		{
			name: "Digest and drop check with Teams configured",
			cfg: &config.Config{
				CheckSchedule:   "0 0 */6 * * *",
				ReportSchedule:  "daily",
				TimeZone:        "Europe/Berlin",
				TeamsWebhookURL: "https://example.com/hook",
			},
			expected: 3,
		},
		{
			name:    "Invalid check schedule",
			cfg:     &config.Config{CheckSchedule: "every morning", ReportSchedule: "weekly", TimeZone: "UTC"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := NewService(tt.cfg, &MockMonitor{})
			err := service.Start()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "CHECK_SCHEDULE")
				return
			}
			require.NoError(t, err)
			defer service.Stop()
			assert.Equal(t, tt.expected, service.Entries())
		})
	}
}

func TestService_WrapRunsWithDeadline(t *testing.T) {
	monitor := &MockMonitor{}
	monitor.On("RunDropCheck", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	})).Return(errors.New("analytics unavailable")).Once()

	service := NewService(&config.Config{TimeZone: "UTC"}, monitor)
	service.wrap("drop check", monitor.RunDropCheck)()

	monitor.AssertExpectations(t)
}
