package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/brandlens/ai-visibility/internal/config"
	"github.com/brandlens/ai-visibility/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type fakeMailer struct {
	sent []*gomail.Message
	err  error
}

func (f *fakeMailer) DialAndSend(m ...*gomail.Message) error {
	f.sent = append(f.sent, m...)
	return f.err
}

func newTestService(cfg *config.Config, mail *fakeMailer) *Service {
	return &Service{
		config: cfg,
		client: resty.New().SetTimeout(5 * time.Second),
		mailer: mail,
	}
}

func sampleReport() *models.VisibilityReport {
	position := 2.5
	return &models.VisibilityReport{
		GeneratedAt: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
		Period:      "weekly",
		Project:     models.Project{ID: "p1", Name: "Demo Project", BrandName: "Acme Projects"},
		Analytics: &models.Analytics{
			KeywordsCount: 2,
			Overall: models.Metrics{
				TotalChecks: 10, PresenceCount: 4, PresenceRate: 0.4,
				AvgPosition: &position, TotalCitations: 4, AvgCitations: 1,
			},
			ByEngine: map[models.Engine]models.Metrics{
				models.EngineGemini:  {TotalChecks: 5, PresenceCount: 1, PresenceRate: 0.2},
				models.EngineChatGPT: {TotalChecks: 5, PresenceCount: 3, PresenceRate: 0.6, AvgPosition: &position},
			},
			Trend: models.Trend{DeltaPoints: -12.5, HasBaseline: true},
		},
		Recommendations: []models.Recommendation{{
			Rule:        "low_engine_visibility",
			Priority:    models.PriorityHigh,
			Title:       "Low visibility on 1 engine(s)",
			Description: "Gemini showing <40% presence. Focus on optimizing content for these platforms.",
			Action:      "Review content structure and E-E-A-T signals",
		}},
		Status: "ok",
	}
}

func TestSendReport_Teams(t *testing.T) {
	var received TeamsMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	service := newTestService(&config.Config{TeamsWebhookURL: server.URL}, &fakeMailer{})
	require.NoError(t, service.SendReport(context.Background(), sampleReport()))

	assert.Equal(t, "MessageCard", received.Type)
	assert.Equal(t, "AI Visibility Report - Demo Project - Weekly", received.Title)
	assert.Equal(t, "Acme Projects appeared in 4 of 10 AI engine answers (40.0%)", received.Text)
	require.Len(t, received.Sections, 3)

	summary := received.Sections[0]
	assert.Contains(t, summary.Facts, TeamsFact{Name: "Trend", Value: "-12.5 pts"})
	assert.Contains(t, summary.Facts, TeamsFact{Name: "Avg Position", Value: "2.5"})

	byEngine := received.Sections[1]
	require.Len(t, byEngine.Facts, 2)
	assert.Equal(t, "ChatGPT", byEngine.Facts[0].Name, "engines follow declaration order")
	assert.Equal(t, "Gemini", byEngine.Facts[1].Name)

	assert.Contains(t, received.Sections[2].ActivityText, "Low visibility on 1 engine(s)")
}

func TestSendReport_CollectsChannelErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	mail := &fakeMailer{err: errors.New("smtp refused")}
	service := newTestService(&config.Config{
		TeamsWebhookURL:   server.URL,
		NotificationEmail: "team@example.com",
		SMTPUsername:      "bot@example.com",
	}, mail)

	err := service.SendReport(context.Background(), sampleReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Teams: Teams webhook returned status 502: upstream down")
	assert.Contains(t, err.Error(), "Email: failed to send email: smtp refused")
	assert.Len(t, mail.sent, 1)
}

func TestSendReport_Email(t *testing.T) {
	mail := &fakeMailer{}
	service := newTestService(&config.Config{
		NotificationEmail: "team@example.com",
		SMTPUsername:      "bot@example.com",
	}, mail)

	require.NoError(t, service.SendReport(context.Background(), sampleReport()))
	require.Len(t, mail.sent, 1)

	msg := mail.sent[0]
	assert.Equal(t, []string{"team@example.com"}, msg.GetHeader("To"))
	assert.Equal(t, []string{"AI Visibility Report - Demo Project - Weekly (40.0% presence)"}, msg.GetHeader("Subject"))
}

func TestBuildEmailBodies(t *testing.T) {
	service := newTestService(&config.Config{}, &fakeMailer{})
	report := sampleReport()

	html, err := service.buildEmailHTML(report)
	require.NoError(t, err)
	assert.Contains(t, html, "Demo Project - AI Visibility")
	assert.Contains(t, html, "40.0%")
	assert.Contains(t, html, "Low visibility on 1 engine(s)")
	assert.Less(t, strings.Index(html, "ChatGPT"), strings.Index(html, "Gemini"))

	text := service.buildEmailText(report)
	assert.Contains(t, text, "Presence Rate: 40.0% (4 of 10 checks)")
	assert.Contains(t, text, "1. [high] Low visibility on 1 engine(s)")
	assert.Contains(t, text, "Gemini showing <40% presence")
}

func TestBuildEmailBodies_NoRecommendations(t *testing.T) {
	service := newTestService(&config.Config{}, &fakeMailer{})
	report := sampleReport()
	report.Recommendations = nil
	report.Analytics = &models.Analytics{}
	report.Message = "No recommendations yet. Run more visibility checks to get insights."

	html, err := service.buildEmailHTML(report)
	require.NoError(t, err)
	assert.Contains(t, html, "No recommendations yet.")
	assert.Contains(t, html, "insufficient history")
	assert.NotContains(t, html, "By Engine")

	text := service.buildEmailText(report)
	assert.Contains(t, text, "Avg Position: n/a")
	assert.Contains(t, text, report.Message)
}

func TestSendAlert(t *testing.T) {
	var received TeamsMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	service := newTestService(&config.Config{TeamsWebhookURL: server.URL}, &fakeMailer{})
	alert := &models.Alert{
		ID:        "a1",
		Type:      "urgent",
		Title:     "Visibility dropped 25.0 points",
		Message:   "Acme Projects presence fell",
		ProjectID: "p1",
		Trend: &models.Trend{
			Recent:      models.Metrics{PresenceRate: 0.25},
			Older:       models.Metrics{PresenceRate: 0.5},
			DeltaPoints: -25,
			HasBaseline: true,
		},
		CreatedAt: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
	}

	require.NoError(t, service.SendAlert(context.Background(), alert))
	assert.Equal(t, "Visibility dropped 25.0 points", received.Title)
	assert.Equal(t, "ffaa44", received.ThemeColor)
	require.Len(t, received.Sections, 1)
	assert.Contains(t, received.Sections[0].Facts, TeamsFact{Name: "Change", Value: "-25.0 pts"})
	assert.Contains(t, received.Sections[0].Facts, TeamsFact{Name: "Previous Presence", Value: "50.0%"})
}

func TestSendAlert_NoWebhook(t *testing.T) {
	service := newTestService(&config.Config{}, &fakeMailer{})
	assert.NoError(t, service.SendAlert(context.Background(), &models.Alert{Type: "info", Title: "x"}))
}
