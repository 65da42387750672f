package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"go.uber.org/zap"

	"github.com/siteforge-ai/siteforge-engine/pkg/auth"
	"github.com/siteforge-ai/siteforge-engine/pkg/config"
	"github.com/siteforge-ai/siteforge-engine/pkg/database"
	"github.com/siteforge-ai/siteforge-engine/pkg/handlers"
	"github.com/siteforge-ai/siteforge-engine/pkg/logging"
	"github.com/siteforge-ai/siteforge-engine/pkg/middleware"
	"github.com/siteforge-ai/siteforge-engine/pkg/repositories"
	"github.com/siteforge-ai/siteforge-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := buildLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
	)

	ctx := context.Background()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := runMigrations(cfg, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	redisClient, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	if redisClient == nil {
		logger.Info("Redis not configured, access cache disabled")
	} else {
		defer redisClient.Close() //nolint:errcheck
	}

	// Repositories
	userRepo := repositories.NewUserRepository(db)
	accessRepo := repositories.NewAccessRepository(db)
	companyRepo := repositories.NewCompanyRepository(db)
	siteRepo := repositories.NewSiteRepository(db)
	schemaRepo := repositories.NewSchemaRepository(db)
	uploadRepo := repositories.NewUploadRepository(db)
	rowRepo := repositories.NewDataRowRepository(db)
	modelRepo := repositories.NewModelVersionRepository(db)
	inferenceRepo := repositories.NewInferenceRepository(db)
	trainingRepo := repositories.NewTrainingJobRepository(db)
	dashboardRepo := repositories.NewDashboardRepository(db)
	cleaningRuleRepo := repositories.NewCleaningRuleRepository(db)
	validationRuleRepo := repositories.NewValidationRuleRepository(db)

	// Services
	userService := services.NewUserService(userRepo, logger)
	accessService := services.NewAccessService(userRepo, accessRepo, siteRepo, redisClient, logger)
	companyService := services.NewCompanyService(companyRepo, logger)
	validator := services.NewSchemaValidator(schemaRepo, logger)
	inferenceService := services.NewInferenceService(modelRepo, inferenceRepo, logger)
	ingestionService := services.NewIngestionService(siteRepo, uploadRepo, rowRepo, validator, inferenceService, logger)
	siteService := services.NewSiteService(siteRepo, schemaRepo, uploadRepo, trainingRepo, rowRepo, accessService, logger)
	dashboardService := services.NewDashboardService(dashboardRepo, logger)
	ruleService := services.NewRuleService(cleaningRuleRepo, validationRuleRepo, logger)

	// Authentication
	jwksClient, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
	})
	if err != nil {
		logger.Fatal("Failed to create JWKS client", zap.Error(err))
	}
	defer jwksClient.Close()

	authService := auth.NewAuthService(jwksClient, logger)
	authMiddleware := auth.NewMiddleware(authService, userService, logger)

	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(cfg, logger)
	healthHandler.RegisterRoutes(mux)

	usersHandler := handlers.NewUsersHandler(logger)
	usersHandler.RegisterRoutes(mux, authMiddleware)

	sitesHandler := handlers.NewSitesHandler(siteService, ingestionService, inferenceService, accessService, logger)
	sitesHandler.RegisterRoutes(mux, authMiddleware)

	dashboardsHandler := handlers.NewDashboardsHandler(dashboardService, ruleService, accessService, logger)
	dashboardsHandler.RegisterRoutes(mux, authMiddleware)

	adminHandler := handlers.NewAdminHandler(companyService, userService, accessService, siteService, logger)
	adminHandler.RegisterRoutes(mux, authMiddleware)

	handler := middleware.RequestLogger(logger)(mux)

	server := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting siteforge-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}

func buildLogger(env string) (*zap.Logger, error) {
	if env == "local" || env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// runMigrations opens a short-lived database/sql connection, which
// golang-migrate requires, and applies pending migrations.
func runMigrations(cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer sqlDB.Close() //nolint:errcheck

	return database.RunMigrations(sqlDB, cfg.MigrationsPath, logger)
}
