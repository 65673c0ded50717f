package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/brandlens/ai-visibility/internal/analytics"
	"github.com/brandlens/ai-visibility/internal/collector"
	"github.com/brandlens/ai-visibility/internal/config"
	"github.com/brandlens/ai-visibility/internal/demo"
	"github.com/brandlens/ai-visibility/internal/engines"
	"github.com/brandlens/ai-visibility/internal/models"
	"github.com/brandlens/ai-visibility/internal/notifications"
	"github.com/brandlens/ai-visibility/internal/recommendations"
	"github.com/brandlens/ai-visibility/internal/storage"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	projectID := flag.String("project", "", "project id to report on")
	since := flag.String("since", "", "start of the range (RFC3339 or YYYY-MM-DD)")
	until := flag.String("until", "", "end of the range (RFC3339 or YYYY-MM-DD)")
	useDemo := flag.Bool("demo", false, "seed the demo project into memory and report on it")
	send := flag.Bool("send", false, "deliver the report through the configured channels")
	outDir := flag.String("out", "", "directory to save the report as JSON")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	config.ConfigureLogging(cfg)

	ctx := context.Background()

	var store storage.Store
	if *useDemo {
		memory := storage.NewMemoryStore()
		collectorService := collector.NewService(memory, engines.NewCheckers(cfg), nil, collector.OptionsFromConfig(cfg))
		project, _, err := demo.Seed(ctx, memory, collectorService, demo.DefaultDays)
		if err != nil {
			logrus.Fatalf("Failed to seed demo data: %v", err)
		}
		store = memory
		*projectID = project.ID
	} else {
		opened, closeStore, err := storage.Open(ctx, cfg)
		if err != nil {
			logrus.Fatalf("Failed to initialize storage: %v", err)
		}
		defer closeStore()
		store = opened
	}

	if *projectID == "" {
		fmt.Fprintln(os.Stderr, "either -project or -demo is required")
		flag.Usage()
		os.Exit(2)
	}

	query := analytics.Query{ProjectID: *projectID}
	if query.Since, err = parseTime(*since); err != nil {
		logrus.Fatalf("Invalid -since: %v", err)
	}
	if query.Until, err = parseTime(*until); err != nil {
		logrus.Fatalf("Invalid -until: %v", err)
	}

	analyticsService := analytics.NewService(store, analytics.WindowFromDays(cfg.RecentWindowDays, cfg.LookbackDays), cfg.Location())
	snapshot, err := analyticsService.Snapshot(ctx, query)
	if err != nil {
		logrus.Fatalf("Failed to compute analytics: %v", err)
	}

	result := recommendations.NewEngine(recommendations.ThresholdsFromConfig(cfg)).
		Generate(recommendations.InputFromAnalytics(snapshot.Analytics))

	report := &models.VisibilityReport{
		GeneratedAt:     time.Now().UTC(),
		Period:          cfg.ReportSchedule,
		Project:         snapshot.Project,
		Analytics:       snapshot.Analytics,
		Recommendations: result.Recommendations,
		Status:          string(result.Status),
		Message:         result.Message,
	}

	printReport(report)

	if *outDir != "" {
		if err := saveReport(*outDir, report); err != nil {
			logrus.Warnf("Could not save report: %v", err)
		}
	}

	if *send {
		if !cfg.NotificationsEnabled() {
			logrus.Fatal("No notification channel configured, set TEAMS_WEBHOOK_URL or NOTIFICATION_EMAIL")
		}
		if err := notifications.NewService(cfg).SendReport(ctx, report); err != nil {
			logrus.Fatalf("Failed to send report: %v", err)
		}
		fmt.Println("Report sent")
	}
}

func printReport(report *models.VisibilityReport) {
	a := report.Analytics
	fmt.Printf("\nAI Visibility Report - %s (%s)\n", report.Project.Name, report.Project.BrandName)
	fmt.Printf("Range: %s to %s, %d keywords\n\n", a.Since.Format("2006-01-02"), a.Until.Format("2006-01-02"), a.KeywordsCount)

	overall := newTable()
	overall.AppendHeader(table.Row{"Checks", "Appearances", "Presence", "Avg Position", "Citations", "Trend"})
	overall.AppendRow(table.Row{
		a.Overall.TotalChecks,
		a.Overall.PresenceCount,
		formatRate(a.Overall.PresenceRate),
		formatPosition(a.Overall.AvgPosition),
		a.Overall.TotalCitations,
		formatTrend(a.Trend),
	})
	overall.Render()

	byEngine := newTable()
	byEngine.AppendHeader(table.Row{"Engine", "Checks", "Presence", "Avg Position", "Avg Citations"})
	for _, engine := range models.AllEngines() {
		m := a.ByEngine[engine]
		byEngine.AppendRow(table.Row{engine.DisplayName(), m.TotalChecks, formatRate(m.PresenceRate), formatPosition(m.AvgPosition), fmt.Sprintf("%.2f", m.AvgCitations)})
	}
	byEngine.Render()

	days := make([]string, 0, len(a.ByDay))
	for day := range a.ByDay {
		days = append(days, day)
	}
	sort.Strings(days)
	byDay := newTable()
	byDay.AppendHeader(table.Row{"Day", "Checks", "Presence"})
	for _, day := range days {
		m := a.ByDay[day]
		byDay.AppendRow(table.Row{day, m.TotalChecks, formatRate(m.PresenceRate)})
	}
	byDay.Render()

	keywords := newTable()
	keywords.AppendHeader(table.Row{"Keyword", "Checks", "Presence", "Avg Position", "Last Checked"})
	for _, stats := range a.Keywords {
		lastChecked := "never"
		if stats.LastChecked != nil {
			lastChecked = stats.LastChecked.Format("2006-01-02 15:04")
		}
		keywords.AppendRow(table.Row{stats.Keyword.Keyword, stats.Metrics.TotalChecks, formatRate(stats.Metrics.PresenceRate), formatPosition(stats.Metrics.AvgPosition), lastChecked})
	}
	keywords.Render()

	if len(report.Recommendations) == 0 {
		fmt.Printf("\n%s\n", report.Message)
		return
	}
	recs := newTable()
	recs.AppendHeader(table.Row{"Priority", "Recommendation", "Action"})
	for _, rec := range report.Recommendations {
		recs.AppendRow(table.Row{rec.Priority, rec.Title, rec.Action})
	}
	recs.Render()
	if report.Message != "" {
		fmt.Printf("\n%s\n", report.Message)
	}
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	return t
}

func saveReport(dir string, report *models.VisibilityReport) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	timestamp := report.GeneratedAt.Format("2006-01-02_15-04-05")
	filename := filepath.Join(dir, fmt.Sprintf("visibility_report_%s.json", timestamp))

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return err
	}

	fmt.Printf("\nReport saved to: %s\n", filename)
	return nil
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}

func formatRate(rate float64) string {
	return fmt.Sprintf("%.1f%%", rate*100)
}

func formatPosition(position *float64) string {
	if position == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f", *position)
}

func formatTrend(trend models.Trend) string {
	if !trend.HasBaseline {
		return "insufficient history"
	}
	return fmt.Sprintf("%+.1f pts", trend.DeltaPoints)
}
