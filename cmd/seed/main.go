package main

import (
	"context"
	"flag"
	"os"

	"github.com/brandlens/ai-visibility/internal/collector"
	"github.com/brandlens/ai-visibility/internal/config"
	"github.com/brandlens/ai-visibility/internal/demo"
	"github.com/brandlens/ai-visibility/internal/engines"
	"github.com/brandlens/ai-visibility/internal/storage"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	days := flag.Int("days", demo.DefaultDays, "days of history to generate")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	config.ConfigureLogging(cfg)

	if cfg.StorageBackend == "memory" || cfg.StorageBackend == "" {
		logrus.Warn("Seeding the in-memory backend, data is discarded when the command exits")
	}

	ctx := context.Background()

	store, closeStore, err := storage.Open(ctx, cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize storage: %v", err)
	}
	defer closeStore()

	collectorService := collector.NewService(store, engines.NewCheckers(cfg), nil, collector.OptionsFromConfig(cfg))

	project, result, err := demo.Seed(ctx, store, collectorService, *days)
	if err != nil {
		logrus.Fatalf("Seeding failed: %v", err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Project", "Project ID", "Days", "Attempted", "Persisted", "Failed", "Duration"})
	t.AppendRow(table.Row{project.Name, project.ID, *days, result.Attempted, result.Persisted, result.Failed, result.Duration})
	t.Render()

	if len(result.FailedBatches) > 0 {
		logrus.Warnf("Batches %v could not be written", result.FailedBatches)
	}
}
