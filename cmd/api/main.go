package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"mathquiz-forge/internal/adapter"
	"mathquiz-forge/internal/cache"
	"mathquiz-forge/internal/config"
	"mathquiz-forge/internal/database"
	"mathquiz-forge/internal/domain"
	"mathquiz-forge/internal/handler"
	"mathquiz-forge/internal/logger"
	"mathquiz-forge/internal/middleware"
	"mathquiz-forge/internal/repository"
	"mathquiz-forge/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Initialize(cfg.Logger); err != nil {
		panic(err)
	}
	appLogger := logger.Get()
	defer logger.Sync()

	dsn := cfg.GetDSN()
	if dsn == "" {
		appLogger.Fatal("Database is not configured, set db.host")
	}
	startupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := database.NewSQLXOracleDB(startupCtx, dsn, appLogger)
	cancel()
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	questionRepository := repository.NewQuestionDatabaseAdapter(db, appLogger)
	checks := map[string]handler.HealthCheck{"database": db.PingContext}

	// Redis is optional for the API; without it every request reads the database.
	var runCache domain.Cache
	if cfg.Redis.Address != "" {
		redisClient, err := cache.NewRedisClient(context.Background(), cfg.Redis)
		if err != nil {
			appLogger.Warn("Redis unavailable, run cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			runCache = adapter.NewRedisCacheAdapter(redisClient)
			checks["redis"] = runCache.Ping
			appLogger.Info("Successfully connected to Redis")
		}
	}

	questionService := service.NewQuestionService(questionRepository, runCache, cfg.Redis.RunTTL, appLogger)
	questionHandler := handler.NewQuestionHandler(questionService, checks, appLogger)

	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  20 * time.Second,
		ErrorHandler: middleware.ErrorHandler(appLogger),
	})
	app.Use(middleware.RequestLogger(appLogger))
	app.Use(cors.New(cors.Config{AllowOrigins: "*", AllowMethods: "GET,OPTIONS", AllowHeaders: "Origin,Content-Type,Accept", MaxAge: 300}))
	app.Use(recover.New())
	questionHandler.RegisterRoutes(app)

	go func() {
		appLogger.Info("Starting server", zap.Int("port", cfg.Server.Port), zap.String("env", cfg.Logger.Env))
		if err := app.Listen(":" + strconv.Itoa(cfg.Server.Port)); err != nil {
			appLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(ctx); err != nil {
		appLogger.Fatal("Server forced to shutdown", zap.Error(err))
	}
	appLogger.Info("Server exited gracefully")
}
