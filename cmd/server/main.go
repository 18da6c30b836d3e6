// Package main provides the entry point for the Caia OCR server
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Caia-Tech/caia-ocr/internal/api"
	"github.com/Caia-Tech/caia-ocr/internal/backends"
	"github.com/Caia-Tech/caia-ocr/internal/metrics"
	events "github.com/Caia-Tech/caia-ocr/internal/pipeline"
	"github.com/Caia-Tech/caia-ocr/internal/service"
	"github.com/Caia-Tech/caia-ocr/internal/temporal/activities"
	"github.com/Caia-Tech/caia-ocr/internal/temporal/workflows"
	"github.com/Caia-Tech/caia-ocr/pkg/logging"
	"github.com/Caia-Tech/caia-ocr/pkg/pipeline"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/rs/zerolog/log"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

func main() {
	config, err := pipeline.Loader{}.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := logging.SetupLogger(config.Logging); err != nil {
		log.Fatal().Err(err).Msg("Failed to setup logging")
	}
	mainLog := logging.GetLogger("main")
	if err := config.SetupDirectories(); err != nil {
		mainLog.Fatal().Err(err).Msg("Failed to setup directories")
	}

	backend, err := backends.New(config.Engine, log.Logger)
	if err != nil {
		mainLog.Fatal().Err(err).Msg("No engine backend available")
	}

	collector := metrics.NewCollector(0, log.Logger)
	bus := events.NewEventBus(256, 2, log.Logger)
	defer bus.Close()
	subscribeEventLog(bus)

	svc := service.New(backend, service.Options{
		Engine:  config.Engine,
		Metrics: collector,
		Events:  bus,
		Logger:  log.Logger,
	})
	defer svc.Close()

	var temporalClient client.Client
	if config.Worker.Enabled {
		temporalClient, err = client.Dial(client.Options{
			HostPort: config.Worker.TemporalHost,
		})
		if err != nil {
			mainLog.Fatal().Err(err).Str("host", config.Worker.TemporalHost).Msg("Failed to create Temporal client")
		}
		defer temporalClient.Close()

		w := worker.New(temporalClient, config.Worker.TaskQueue, worker.Options{
			MaxConcurrentActivityExecutionSize: config.Worker.MaxConcurrentActivities,
		})
		w.RegisterWorkflow(workflows.BatchRecognitionWorkflow)

		recognizer := activities.NewRecognizer(backend, config.Engine)
		defer recognizer.Close()
		recognizer.Register(w)

		if err := w.Start(); err != nil {
			mainLog.Fatal().Err(err).Msg("Failed to start worker")
		}
		defer w.Stop()
		mainLog.Info().Str("task_queue", config.Worker.TaskQueue).Msg("Temporal worker started")
	}

	app := api.NewApp(config.Server)
	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path} | ${error}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "UTC",
	}))

	h := api.NewHandlers(svc, api.HandlerOptions{
		Temporal:  temporalClient,
		TaskQueue: config.Worker.TaskQueue,
		DumpDir:   config.DataPaths.DumpDir,
		Logger:    log.Logger,
	})
	api.SetupRoutes(app, h)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		mainLog.Info().Msg("Shutting down server...")
		if err := app.Shutdown(); err != nil {
			mainLog.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	mainLog.Info().
		Str("addr", config.Server.Addr()).
		Str("backend", backend.Name()).
		Str("version", svc.Version()).
		Msg("Starting Caia OCR server")
	if err := app.Listen(config.Server.Addr()); err != nil {
		mainLog.Error().Err(err).Msg("Server stopped")
	}
}

func subscribeEventLog(bus *events.EventBus) {
	eventLog := logging.GetLogger("events")
	_, err := bus.Subscribe(events.AllEventTypes, func(ctx context.Context, e *events.EngineEvent) error {
		entry := eventLog.Info()
		if e.Error != "" {
			entry = eventLog.Warn().Str("error", e.Error)
		}
		entry.
			Str("event_type", string(e.Type)).
			Str("handle_id", e.HandleID).
			Str("backend", e.Backend).
			Str("language", e.Language).
			Str("format", e.Format).
			Dur("duration", e.Duration).
			Int("chars", e.Chars).
			Msg("Engine event")
		return nil
	}, 64)
	if err != nil {
		eventLog.Warn().Err(err).Msg("Event log subscription failed")
	}
}
