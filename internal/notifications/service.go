package notifications

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/brandlens/ai-visibility/internal/config"
	"github.com/brandlens/ai-visibility/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// mailer is satisfied by *gomail.Dialer
type mailer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Service handles sending notifications via various channels
type Service struct {
	config *config.Config
	client *resty.Client
	mailer mailer
}

// Ensure Service implements NotificationInterface
var _ NotificationInterface = (*Service)(nil)

// TeamsMessage represents a Microsoft Teams message
type TeamsMessage struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor,omitempty"`
	Title      string         `json:"title"`
	Text       string         `json:"text"`
	Sections   []TeamsSection `json:"sections,omitempty"`
}

type TeamsSection struct {
	ActivityTitle    string      `json:"activityTitle,omitempty"`
	ActivitySubtitle string      `json:"activitySubtitle,omitempty"`
	ActivityText     string      `json:"activityText,omitempty"`
	Facts            []TeamsFact `json:"facts,omitempty"`
	Markdown         bool        `json:"markdown,omitempty"`
}

type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewService creates a new notification service
func NewService(cfg *config.Config) *Service {
	return &Service{
		config: cfg,
		client: resty.New().SetTimeout(30 * time.Second),
		mailer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
	}
}

// SendReport sends a visibility digest via configured notification channels
func (s *Service) SendReport(ctx context.Context, report *models.VisibilityReport) error {
	var errors []string

	if s.config.TeamsWebhookURL != "" {
		if err := s.postToTeams(ctx, s.buildTeamsMessage(report)); err != nil {
			logrus.Errorf("Failed to send Teams notification: %v", err)
			errors = append(errors, fmt.Sprintf("Teams: %v", err))
		} else {
			logrus.Infof("Successfully sent %s report for project %s to Teams", report.Period, report.Project.ID)
		}
	}

	if s.config.NotificationEmail != "" {
		if err := s.sendEmail(report); err != nil {
			logrus.Errorf("Failed to send email notification: %v", err)
			errors = append(errors, fmt.Sprintf("Email: %v", err))
		} else {
			logrus.Infof("Successfully sent %s report for project %s via email", report.Period, report.Project.ID)
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// SendAlert posts an urgent alert to Teams. Without a webhook the alert is only logged.
func (s *Service) SendAlert(ctx context.Context, alert *models.Alert) error {
	if s.config.TeamsWebhookURL == "" {
		logrus.Warnf("No Teams webhook configured, alert not delivered: %s - %s", alert.Type, alert.Title)
		return nil
	}

	if err := s.postToTeams(ctx, s.buildAlertMessage(alert)); err != nil {
		return fmt.Errorf("failed to send alert %s: %w", alert.ID, err)
	}

	logrus.Infof("Sent %s alert for project %s: %s", alert.Type, alert.ProjectID, alert.Title)
	return nil
}

func (s *Service) postToTeams(ctx context.Context, message *TeamsMessage) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(message).
		Post(s.config.TeamsWebhookURL)

	if err != nil {
		return fmt.Errorf("failed to send Teams message: %w", err)
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("Teams webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	return nil
}

func (s *Service) buildTeamsMessage(report *models.VisibilityReport) *TeamsMessage {
	a := report.Analytics
	message := &TeamsMessage{
		Type:    "MessageCard",
		Context: "https://schema.org/extensions",
		Title:   fmt.Sprintf("AI Visibility Report - %s - %s", report.Project.Name, titleCase(report.Period)),
		Text: fmt.Sprintf("%s appeared in %d of %d AI engine answers (%s)",
			brandName(report.Project), a.Overall.PresenceCount, a.Overall.TotalChecks, formatRate(a.Overall.PresenceRate)),
	}

	message.Sections = append(message.Sections, TeamsSection{
		ActivityTitle: "Summary",
		Facts: []TeamsFact{
			{Name: "Presence Rate", Value: formatRate(a.Overall.PresenceRate)},
			{Name: "Total Checks", Value: fmt.Sprintf("%d", a.Overall.TotalChecks)},
			{Name: "Keywords", Value: fmt.Sprintf("%d", a.KeywordsCount)},
			{Name: "Avg Position", Value: formatPosition(a.Overall.AvgPosition)},
			{Name: "Avg Citations", Value: fmt.Sprintf("%.2f", a.Overall.AvgCitations)},
			{Name: "Trend", Value: formatTrend(a.Trend)},
			{Name: "Generated", Value: report.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC")},
		},
		Markdown: true,
	})

	var engineFacts []TeamsFact
	for _, row := range engineRows(a) {
		engineFacts = append(engineFacts, TeamsFact{
			Name:  row.Name,
			Value: fmt.Sprintf("%s of %d checks", row.Rate, row.Checks),
		})
	}
	if len(engineFacts) > 0 {
		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle: "By Engine",
			Facts:         engineFacts,
			Markdown:      true,
		})
	}

	if len(report.Recommendations) > 0 {
		var lines []string
		for _, rec := range report.Recommendations {
			lines = append(lines, fmt.Sprintf("**%s** (%s) - %s _%s_", rec.Title, rec.Priority, rec.Description, rec.Action))
		}
		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle: "Recommendations",
			ActivityText:  strings.Join(lines, "\n\n"),
			Markdown:      true,
		})
	} else if report.Message != "" {
		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle: "Recommendations",
			ActivityText:  report.Message,
		})
	}

	return message
}

func (s *Service) buildAlertMessage(alert *models.Alert) *TeamsMessage {
	message := &TeamsMessage{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		ThemeColor: alertColor(alert.Type),
		Title:      alert.Title,
		Text:       alert.Message,
	}

	facts := []TeamsFact{
		{Name: "Project", Value: alert.ProjectID},
		{Name: "Severity", Value: alert.Type},
		{Name: "Raised", Value: alert.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC")},
	}
	if alert.Trend != nil {
		facts = append(facts,
			TeamsFact{Name: "Recent Presence", Value: formatRate(alert.Trend.Recent.PresenceRate)},
			TeamsFact{Name: "Previous Presence", Value: formatRate(alert.Trend.Older.PresenceRate)},
			TeamsFact{Name: "Change", Value: formatTrend(*alert.Trend)},
		)
	}

	message.Sections = append(message.Sections, TeamsSection{Facts: facts})
	return message
}

func (s *Service) sendEmail(report *models.VisibilityReport) error {
	subject := fmt.Sprintf("AI Visibility Report - %s - %s (%s presence)",
		report.Project.Name, titleCase(report.Period), formatRate(report.Analytics.Overall.PresenceRate))

	htmlBody, err := s.buildEmailHTML(report)
	if err != nil {
		return fmt.Errorf("failed to build email HTML: %w", err)
	}

	textBody := s.buildEmailText(report)

	m := gomail.NewMessage()
	m.SetHeader("From", s.config.SMTPUsername)
	m.SetHeader("To", s.config.NotificationEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", textBody)
	m.AddAlternative("text/html", htmlBody)

	if err := s.mailer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

type engineRow struct {
	Name   string
	Rate   string
	Checks int
	AvgPos string
}

func engineRows(a *models.Analytics) []engineRow {
	var rows []engineRow
	for _, engine := range models.AllEngines() {
		m, ok := a.ByEngine[engine]
		if !ok || m.TotalChecks == 0 {
			continue
		}
		rows = append(rows, engineRow{
			Name:   engine.DisplayName(),
			Rate:   formatRate(m.PresenceRate),
			Checks: m.TotalChecks,
			AvgPos: formatPosition(m.AvgPosition),
		})
	}
	return rows
}

const emailTemplate = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>AI Visibility Report</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .header { background-color: #0078d4; color: white; padding: 20px; border-radius: 5px; }
        .summary { background-color: #f5f5f5; padding: 15px; margin: 20px 0; border-radius: 5px; }
        .rec { border-left: 4px solid #0078d4; padding: 10px; margin: 10px 0; background-color: #fafafa; }
        .rec-title { font-weight: bold; margin-bottom: 5px; }
        .rec-action { color: #666; font-size: 0.9em; }
        .high { border-left-color: #d13438; }
        .medium { border-left-color: #ffaa44; }
        .success { border-left-color: #107c10; }
        td, th { padding: 4px 12px; text-align: left; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.Report.Project.Name}} - AI Visibility</h1>
        <p>{{.Report.Period | title}} report generated on {{.Report.GeneratedAt.Format "January 2, 2006 at 3:04 PM MST"}}</p>
    </div>

    <div class="summary">
        <h2>Summary</h2>
        <p><strong>Presence Rate:</strong> {{rate .Report.Analytics.Overall.PresenceRate}} ({{.Report.Analytics.Overall.PresenceCount}} of {{.Report.Analytics.Overall.TotalChecks}} checks)</p>
        <p><strong>Avg Position:</strong> {{position .Report.Analytics.Overall.AvgPosition}}</p>
        <p><strong>Avg Citations:</strong> {{printf "%.2f" .Report.Analytics.Overall.AvgCitations}}</p>
        <p><strong>Trend:</strong> {{trend .Report.Analytics.Trend}}</p>
    </div>

    {{if .Engines}}
    <h2>By Engine</h2>
    <table>
        <tr><th>Engine</th><th>Presence</th><th>Checks</th><th>Avg Position</th></tr>
        {{range .Engines}}
        <tr><td>{{.Name}}</td><td>{{.Rate}}</td><td>{{.Checks}}</td><td>{{.AvgPos}}</td></tr>
        {{end}}
    </table>
    {{end}}

    <h2>Recommendations</h2>
    {{if .Report.Recommendations}}
    {{range .Report.Recommendations}}
        <div class="rec {{.Priority}}">
            <div class="rec-title">{{.Title}}</div>
            <p>{{.Description}}</p>
            <div class="rec-action">{{.Action}}</div>
        </div>
    {{end}}
    {{else}}
    <p>{{.Report.Message}}</p>
    {{end}}

    <hr>
    <p><small>This report was generated automatically by the AI visibility tracker.</small></p>
</body>
</html>
`

func (s *Service) buildEmailHTML(report *models.VisibilityReport) (string, error) {
	t := template.New("email").Funcs(template.FuncMap{
		"title":    titleCase,
		"rate":     formatRate,
		"position": formatPosition,
		"trend":    formatTrend,
	})

	t, err := t.Parse(emailTemplate)
	if err != nil {
		return "", err
	}

	data := struct {
		Report  *models.VisibilityReport
		Engines []engineRow
	}{report, engineRows(report.Analytics)}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func (s *Service) buildEmailText(report *models.VisibilityReport) string {
	var text strings.Builder
	a := report.Analytics

	text.WriteString(fmt.Sprintf("AI Visibility Report - %s - %s\n", report.Project.Name, titleCase(report.Period)))
	text.WriteString(fmt.Sprintf("Generated: %s\n\n", report.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC")))

	text.WriteString("SUMMARY\n")
	text.WriteString("=======\n")
	text.WriteString(fmt.Sprintf("Presence Rate: %s (%d of %d checks)\n", formatRate(a.Overall.PresenceRate), a.Overall.PresenceCount, a.Overall.TotalChecks))
	text.WriteString(fmt.Sprintf("Avg Position: %s\n", formatPosition(a.Overall.AvgPosition)))
	text.WriteString(fmt.Sprintf("Avg Citations: %.2f\n", a.Overall.AvgCitations))
	text.WriteString(fmt.Sprintf("Trend: %s\n", formatTrend(a.Trend)))

	if rows := engineRows(a); len(rows) > 0 {
		text.WriteString("\nBY ENGINE\n")
		text.WriteString("=========\n")
		for _, row := range rows {
			text.WriteString(fmt.Sprintf("%-12s %7s of %d checks, avg position %s\n", row.Name, row.Rate, row.Checks, row.AvgPos))
		}
	}

	text.WriteString("\nRECOMMENDATIONS\n")
	text.WriteString("===============\n")
	if len(report.Recommendations) == 0 {
		text.WriteString(report.Message + "\n")
	}
	for i, rec := range report.Recommendations {
		text.WriteString(fmt.Sprintf("\n%d. [%s] %s\n", i+1, rec.Priority, rec.Title))
		text.WriteString(fmt.Sprintf("   %s\n", rec.Description))
		text.WriteString(fmt.Sprintf("   Action: %s\n", rec.Action))
	}

	text.WriteString("\n---\nThis report was generated automatically by the AI visibility tracker.\n")

	return text.String()
}

func brandName(p models.Project) string {
	if p.BrandName != "" {
		return p.BrandName
	}
	return p.Name
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func formatRate(rate float64) string {
	return fmt.Sprintf("%.1f%%", rate*100)
}

func formatPosition(pos *float64) string {
	if pos == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f", *pos)
}

func formatTrend(t models.Trend) string {
	if !t.HasBaseline {
		return fmt.Sprintf("%+.1f pts (insufficient history)", t.DeltaPoints)
	}
	return fmt.Sprintf("%+.1f pts", t.DeltaPoints)
}

func alertColor(kind string) string {
	switch kind {
	case "critical":
		return "d13438"
	case "urgent":
		return "ffaa44"
	default:
		return "0078d4"
	}
}
