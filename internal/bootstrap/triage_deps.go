// Package bootstrap wires configuration, stores, adapters, and services
// into runnable API and worker processes.
package bootstrap

import (
	"context"
	"time"

	"triage_server/adapter/out/messaging"
	"triage_server/adapter/out/mongodb"
	"triage_server/adapter/out/persistence"
	"triage_server/adapter/out/provider"
	"triage_server/config"
	"triage_server/core/agent/llm"
	"triage_server/core/port/out"
	"triage_server/core/service/bulkops"
	"triage_server/core/service/importer"
	"triage_server/core/service/watch"
	"triage_server/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"triage_server/infra/database"
)

// Dependencies holds every shared resource for the process. Both the API
// and the worker build from the same set so they stay consistent.
type Dependencies struct {
	Config *config.Config

	// Stores
	DB      *pgxpool.Pool
	SQLDB   *sqlx.DB
	Redis   *redis.Client
	MongoDB *mongo.Database

	// Repositories
	AccountRepo  *persistence.AccountAdapter
	CategoryRepo *persistence.CategoryAdapter
	MessageRepo  *persistence.MessageAdapter
	BodyStore    out.BodyStorePort

	// Outbound adapters
	GmailProvider   *provider.GmailAdapter
	Unsubscriber    *provider.UnsubscribeAdapter
	MessageProducer *messaging.RedisProducer
	LLMClient       *llm.Client

	// Services
	ImportService *importer.Service
	BulkService   *bulkops.Service
	Bridge        *watch.Bridge
	Renewer       *watch.Renewer
}

// NewDependencies builds the dependency graph. The returned cleanup
// closes resources in reverse creation order.
func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// PostgreSQL is the source of truth; nothing works without it
	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	deps.DB = db
	cleanups = append(cleanups, func() { db.Close() })
	logger.Info("PostgreSQL connected")

	deps.SQLDB = database.NewSQLX(db)
	sqlDB := deps.SQLDB
	cleanups = append(cleanups, func() { _ = sqlDB.Close() })

	// Redis backs the job streams and webhook idempotency
	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.Redis = redisClient
	cleanups = append(cleanups, func() { _ = redisClient.Close() })
	logger.Info("Redis connected")

	// MongoDB stores raw bodies; import and delete degrade without it
	if cfg.MongoDBURL != "" {
		mongoClient, err := mongodb.NewClient(cfg.MongoDBURL)
		if err != nil {
			logger.Warn("MongoDB connection failed, body storage disabled: %v", err)
		} else {
			deps.MongoDB = mongoClient.Database(cfg.MongoDBName)
			cleanups = append(cleanups, func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = mongoClient.Disconnect(ctx)
			})

			bodyStore := mongodb.NewBodyAdapter(deps.MongoDB)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := bodyStore.EnsureIndexes(ctx); err != nil {
				logger.Warn("MongoDB index creation failed: %v", err)
			}
			cancel()
			deps.BodyStore = bodyStore
			logger.Info("MongoDB connected")
		}
	} else {
		logger.Warn("MONGODB_URL not set, body storage disabled")
	}

	// Repositories
	deps.AccountRepo = persistence.NewAccountAdapter(deps.SQLDB)
	deps.CategoryRepo = persistence.NewCategoryAdapter(deps.SQLDB)
	deps.MessageRepo = persistence.NewMessageAdapter(deps.SQLDB)

	// Outbound adapters
	deps.GmailProvider = provider.NewGmailAdapter(&provider.GmailConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		ProjectID:    cfg.GoogleProjectID,
	})
	deps.Unsubscriber = provider.NewUnsubscribeAdapter(
		time.Duration(cfg.UnsubscribeTimeoutSec) * time.Second)
	deps.MessageProducer = messaging.NewRedisProducer(deps.Redis)
	deps.LLMClient = llm.NewClientWithConfig(llm.ClientConfig{
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.LLMModel,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
		Timeout:     time.Duration(cfg.LLMTimeoutSec) * time.Second,
	})

	// Services
	deps.ImportService = importer.NewService(
		deps.AccountRepo,
		deps.CategoryRepo,
		deps.MessageRepo,
		deps.BodyStore,
		deps.GmailProvider,
		deps.LLMClient,
	)
	deps.BulkService = bulkops.NewService(
		deps.MessageRepo,
		deps.BodyStore,
		deps.Unsubscriber,
	)
	deps.Bridge = watch.NewBridge(
		deps.AccountRepo,
		deps.MessageProducer,
		cfg.CursorCompareMode,
		cfg.ImportAutoArchive,
	)
	deps.Renewer = watch.NewRenewer(
		deps.AccountRepo,
		deps.GmailProvider,
		time.Duration(cfg.WatchRenewLeadTimeHour)*time.Hour,
	)

	logger.Info("Dependencies initialized")
	return deps, cleanup, nil
}
