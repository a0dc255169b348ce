package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"cadenza/internal/amqp"
	"cadenza/internal/config"
	applog "cadenza/internal/log"
	"cadenza/internal/schedule"
	"cadenza/internal/series"
	"cadenza/internal/services"
	ports "cadenza/internal/sheets"
	gsheet "cadenza/internal/sheets/google"
	"cadenza/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.Config{Level: slog.LevelInfo, Component: "worker"})
	applog.SetDefault(logger)

	logger.Info("Starting cadenza-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	gen := schedule.NewWithConfig(schedule.Config{WeekStart: cfg.WeekStart})
	coord := series.NewCoordinator(repo, gen)
	window := services.MonthsWindow(cfg.ProjectionMonthsBack, cfg.ProjectionMonthsForward)
	materializer := services.NewMaterializer(repo, coord, window)
	projection := services.NewProjectionService(repo, gen)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var exporter ports.OccurrenceWriter
	if cfg.SheetsExportEnabled {
		cli, err := gsheet.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets exporter", "error", err)
			os.Exit(1)
		}
		exporter = cli
		logger.Info("Sheets export enabled", "spreadsheet", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)
	}

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, running on timer only", "error", err)
			amqpClient = nil
		} else {
			defer amqpClient.Close()
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	runPass := func(ctx context.Context, now time.Time) {
		created, removed, err := materializer.Run(ctx, now)
		if err != nil {
			logger.Error("Materialization pass failed", "error", err)
			return
		}
		logger.Info("Materialization pass complete", "created", created, "removed", removed)

		if exporter == nil {
			return
		}
		projection.Invalidate()
		occurrences, err := projection.Upcoming(ctx, window(now))
		if err != nil {
			logger.Error("Occurrence export projection failed", "error", err)
			return
		}
		written, err := exporter.AppendOccurrences(ctx, occurrences)
		if err != nil {
			logger.Error("Occurrence export failed", "error", err)
			return
		}
		logger.Info("Occurrence export complete", "rows", written)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(cfg.MaterializeInterval)
		defer ticker.Stop()

		runPass(ctx, time.Now())
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case now := <-ticker.C:
				runPass(ctx, now)
			}
		}
	})

	if amqpClient != nil {
		g.Go(func() error {
			return amqpClient.ConsumeSeriesChanged(ctx, func(msg *amqp.SeriesChangedMessage) error {
				logger.Info("Series change received", "op", msg.Op, "scope", msg.Scope, "roots", len(msg.RootIDs))
				if err := materializer.MaterializeRoots(ctx, msg.RootIDs); err != nil {
					logger.Error("Event-driven materialization failed", "error", err)
					return err
				}
				projection.Invalidate()
				return nil
			})
		})
	}

	logger.Info("Worker running", "interval", cfg.MaterializeInterval)
	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}
