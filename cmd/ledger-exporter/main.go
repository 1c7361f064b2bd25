package main

import (
	"context"
	"errors"
	"os"
	"time"

	"gagyebu/internal/amqp"
	"gagyebu/internal/cli"
	"gagyebu/internal/core"
	applog "gagyebu/internal/log"
	"gagyebu/internal/ratelimit"
	"gagyebu/internal/sheets"
	gsheet "gagyebu/internal/sheets/google"
	sheetsmem "gagyebu/internal/sheets/memory"
	"gagyebu/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentExporter, os.Stdout)

	logger.Info("Starting ledger-exporter")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the ledger-exporter")
		os.Exit(1)
	}

	be := cli.InitBackend(context.Background(), logger, cfg, nil)

	var exporter sheets.Exporter
	if cfg.SheetsEnabled() {
		client, err := gsheet.New(context.Background(), gsheet.Config{
			SpreadsheetID:      cfg.GoogleSpreadsheetID,
			SheetName:          cfg.GoogleSheetName,
			ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
			ServiceAccountFile: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		exporter = client
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		exporter = sheetsmem.New()
		logger.Info("Google Sheets disabled - exporting to an in-memory sheet (dry run)")
	}

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerWindow: cfg.SheetsRequestsPerMinute,
		Window:            time.Minute,
	})
	exporter = sheets.NewThrottled(exporter, limiter)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}

	exportWorker := worker.NewExportWorker(be.Store, exporter)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		limiter.Stop()
		if err := amqpClient.Close(); err != nil {
			logger.Warn("Failed to close AMQP client", "error", err)
		}
		if err := be.Cleanup(); err != nil {
			logger.Warn("Failed to close backend", "error", err)
		}
	})

	// Catch up on events missed while the exporter was down.
	users, err := be.Store.ListUserSettings(ctx)
	if err != nil {
		logger.Error("Failed to list users for backfill", "error", err)
	} else {
		n, err := exportWorker.StartupBackfill(ctx, users, core.DateOf(time.Now()))
		if err != nil {
			logger.Error("Startup backfill failed", "error", err, "exported", n)
		} else {
			logger.Info("Startup backfill complete", "exported", n)
		}
	}

	go func() {
		if err := amqpClient.ConsumeTransactions(ctx, exportWorker.HandleMessage); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", "error", err)
		}
	}()

	cli.WaitForShutdown(ctx, done)
}
