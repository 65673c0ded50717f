package notifications

import (
	"context"

	"github.com/brandlens/ai-visibility/internal/models"
)

// NotificationInterface defines the contract for notification services
type NotificationInterface interface {
	SendReport(ctx context.Context, report *models.VisibilityReport) error
	SendAlert(ctx context.Context, alert *models.Alert) error
}
