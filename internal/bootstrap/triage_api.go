package bootstrap

import (
	httpadapter "triage_server/adapter/in/http"
	"triage_server/config"
	"triage_server/infra/middleware"
	"triage_server/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

// NewAPI builds the HTTP process: health probes, the Gmail webhook
// receiver, and the job-enqueueing endpoints.
func NewAPI(cfg *config.Config) (*fiber.App, func(), error) {
	logLevel := logger.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = logger.LevelDebug
	}
	logger.Init(logger.Config{
		Level:   logLevel,
		Service: "triage-api",
	})

	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize dependencies")
		return nil, nil, err
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		ReadBufferSize:        16384,
		WriteBufferSize:       16384,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		BodyLimit:             10 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))
	app.Use(cors.New())

	// Health probes (no auth, used by orchestration)
	healthHandler := httpadapter.NewHealthHandler(deps.DB, deps.Redis)
	healthHandler.Register(app)

	// Gmail push notifications, called by Pub/Sub
	webhookHandler := httpadapter.NewWebhookHandler(deps.Bridge, deps.Redis)
	webhookHandler.Register(app)

	// Job-enqueueing API
	api := app.Group("/api/v1")
	triageHandler := httpadapter.NewTriageHandler(deps.MessageProducer, cfg.ImportQuery, cfg.ImportMaxResults)
	triageHandler.Register(api)

	logger.Info("API server initialized")
	return app, cleanup, nil
}
