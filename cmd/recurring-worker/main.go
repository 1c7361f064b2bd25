package main

import (
	"context"
	"os"
	"time"

	"gagyebu/internal/amqp"
	"gagyebu/internal/cache"
	"gagyebu/internal/cli"
	applog "gagyebu/internal/log"
	"gagyebu/internal/services"
	"gagyebu/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentGeneration, os.Stdout)

	logger.Info("Starting recurring-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	manager := cache.NewManager()
	be := cli.InitBackend(context.Background(), logger, cfg, manager)

	// Generated occurrences are announced so the ledger-exporter can copy them.
	var publisher services.EventPublisher
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		c, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
		} else {
			amqpClient = c
			publisher = c
			logger.Info("AMQP client initialized",
				"exchange", cfg.AMQPExchange,
				"queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("AMQP disabled - generated occurrences will not be exported")
	}

	txService := services.NewTransactionService(be.Store, be.Store, publisher)
	engine := services.NewGenerationEngine(be.Store, be.Store, services.NewIdempotencyGate(be.Markers), txService)
	generationWorker := worker.NewGenerationWorker(engine, be.Store, cfg.GenerationConcurrency, cfg.DefaultMonthStartDay)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		manager.Stop()
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("Failed to close AMQP client", "error", err)
			}
		}
		if err := be.Cleanup(); err != nil {
			logger.Warn("Failed to close backend", "error", err)
		}
	})

	manager.StartCleanup(ctx, time.Hour)

	logger.Info("Generation worker configured",
		applog.FieldBackend, cfg.DataBackend,
		"interval", cfg.GenerationInterval,
		"concurrency", cfg.GenerationConcurrency)

	go generationWorker.Run(ctx, cfg.GenerationInterval)

	cli.WaitForShutdown(ctx, done)
}
