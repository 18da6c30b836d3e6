package api

import (
	"github.com/Caia-Tech/caia-ocr/pkg/pipeline"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewApp creates the fiber app with the error handler and the middleware
// every deployment runs. Request logging is added by the caller.
func NewApp(cfg *pipeline.ServerConfig) *fiber.App {
	if cfg == nil {
		cfg = pipeline.DefaultServiceConfig().Server
	}
	app := fiber.New(fiber.Config{
		AppName:               "Caia OCR API",
		DisableStartupMessage: true,
		BodyLimit:             cfg.MaxRequestSize,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		ErrorHandler:          ErrorHandler,
	})

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	return app
}

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, h *Handlers) {
	app.Get("/health", h.Health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(h.svc.Metrics().Registry(), promhttp.HandlerOpts{})))

	v1 := app.Group("/api/v1")
	v1.Get("/version", h.Version)

	engines := v1.Group("/engines")
	engines.Post("/", h.CreateEngine)
	engines.Get("/", h.ListEngines)
	engines.Get("/:id", h.GetEngine)
	engines.Delete("/:id", h.DeleteEngine)
	engines.Put("/:id/variables", h.SetVariable)
	engines.Post("/:id/recognize", h.Recognize)
	engines.Post("/:id/dump", h.DumpVariables)

	v1.Post("/options/validate", h.ValidateOptions)

	batches := v1.Group("/batches")
	batches.Post("/", h.CreateBatch)
	batches.Get("/:id", h.GetBatch)

	metrics := v1.Group("/metrics")
	metrics.Get("/", h.GetMetrics)
	metrics.Delete("/", h.ClearMetrics)

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service": "Caia OCR",
			"version": h.svc.Version(),
			"docs":    "https://github.com/Caia-Tech/caia-ocr",
		})
	})
}
