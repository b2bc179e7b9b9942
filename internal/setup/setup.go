package setup

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/redis/rueidis"
	"github.com/robalyx/rolesync/internal/database"
	"github.com/robalyx/rolesync/internal/database/migrations"
	"github.com/robalyx/rolesync/internal/discord/roles"
	"github.com/robalyx/rolesync/internal/github/fetcher"
	"github.com/robalyx/rolesync/internal/redis"
	"github.com/robalyx/rolesync/internal/setup/config"
	"github.com/robalyx/rolesync/internal/setup/telemetry"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

// ErrPendingMigrations is returned when the schema is behind and migrations were declined.
var ErrPendingMigrations = errors.New("database migrations are pending")

// App bundles all core dependencies and services needed by the application.
type App struct {
	Config       *config.Config     // Application configuration
	Logger       *zap.Logger        // Main application logger
	DBLogger     *zap.Logger        // Database-specific logger
	DB           database.Client    // Database connection pool
	RedisManager *redis.Manager     // Redis connection manager
	StatusClient rueidis.Client     // Redis client for worker status reporting
	SyncClient   rueidis.Client     // Redis client for scheduler status
	Discord      *roles.Manager     // Discord role REST client
	GitHub       *fetcher.Fetcher   // GitHub membership fetcher
	LogManager   *telemetry.Manager // Log management system
}

// InitializeApp bootstraps all application dependencies in the correct order,
// ensuring each component has its required dependencies available.
func InitializeApp(ctx context.Context, serviceType telemetry.ServiceType, logDir string) (*App, error) {
	// Load app configuration
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	// Logging system is initialized next to capture setup issues
	logManager := telemetry.NewManager(serviceType, logDir, &cfg.Common.Debug)

	logger, dbLogger, err := logManager.GetLoggers()
	if err != nil {
		return nil, err
	}

	// Redis manager provides connection pools for various subsystems
	redisManager := redis.NewManager(&cfg.Common.Redis, logger)

	statusClient, err := redisManager.GetClient(redis.WorkerStatusDBIndex)
	if err != nil {
		redisManager.Close()
		return nil, err
	}

	syncClient, err := redisManager.GetClient(redis.SyncStatusDBIndex)
	if err != nil {
		redisManager.Close()
		return nil, err
	}

	// Initialize database with migration check
	db, err := checkAndRunMigrations(ctx, &cfg.Common.PostgreSQL, dbLogger)
	if err != nil {
		redisManager.Close()
		return nil, err
	}

	requestTimeout := serviceType.GetRequestTimeout(cfg)

	// Discord is used over REST only, no gateway session is opened
	discordManager, err := roles.Connect(cfg.Common.Discord.Token, requestTimeout, logger)
	if err != nil {
		db.Close()
		redisManager.Close()

		return nil, err
	}

	githubFetcher, err := fetcher.New(&cfg.Common.GitHub, requestTimeout, logger)
	if err != nil {
		discordManager.Close(ctx)
		db.Close()
		redisManager.Close()

		return nil, err
	}

	if cfg.Common.GitHub.Token == "" {
		logger.Warn("No GitHub token configured, requests are limited to the unauthenticated quota")
	}

	// Bundle all initialized components
	return &App{
		Config:       cfg,
		Logger:       logger,
		DBLogger:     dbLogger.Named("database"),
		DB:           db,
		RedisManager: redisManager,
		StatusClient: statusClient,
		SyncClient:   syncClient,
		Discord:      discordManager,
		GitHub:       githubFetcher,
		LogManager:   logManager,
	}, nil
}

// Cleanup ensures graceful shutdown of all components in reverse initialization order.
// Logs but does not fail on cleanup errors to ensure all components get cleanup attempts.
func (s *App) Cleanup(ctx context.Context) {
	s.GitHub.Close()
	s.Discord.Close(ctx)

	// Sync buffered logs before shutdown
	if err := s.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	if err := s.DBLogger.Sync(); err != nil {
		log.Printf("Failed to sync DB logger: %v", err)
	}

	// Close database connections
	if err := s.DB.Close(); err != nil {
		log.Printf("Failed to close database connection: %v", err)
	}

	// Close Redis connections last as other components might need it during cleanup
	s.RedisManager.Close()
}

// checkAndRunMigrations runs database migrations if needed.
func checkAndRunMigrations(ctx context.Context, cfg *config.PostgreSQL, dbLogger *zap.Logger) (database.Client, error) {
	tempDB, err := database.NewConnection(ctx, cfg, dbLogger, false)
	if err != nil {
		return nil, err
	}

	migrator := migrate.NewMigrator(tempDB.DB(), migrations.Migrations)

	if err := migrator.Init(ctx); err != nil {
		tempDB.Close()
		return nil, fmt.Errorf("failed to initialize migrations: %w", err)
	}

	ms, err := migrator.MigrationsWithStatus(ctx)
	if err != nil {
		tempDB.Close()
		return nil, fmt.Errorf("failed to check migration status: %w", err)
	}

	unapplied := ms.Unapplied()
	if len(unapplied) == 0 {
		return tempDB, nil
	}

	log.Printf("%d database migrations are pending. Would you like to run them now? (y/N)", len(unapplied))

	var response string

	_, _ = fmt.Scanln(&response)

	tempDB.Close()

	if response != "y" && response != "Y" {
		return nil, ErrPendingMigrations
	}

	return database.NewConnection(ctx, cfg, dbLogger, true)
}
