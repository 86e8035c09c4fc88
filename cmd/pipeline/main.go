package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"mathquiz-forge/internal/adapter"
	"mathquiz-forge/internal/adapter/llm"
	"mathquiz-forge/internal/cache"
	"mathquiz-forge/internal/config"
	"mathquiz-forge/internal/database"
	"mathquiz-forge/internal/logger"
	"mathquiz-forge/internal/repository"
	"mathquiz-forge/internal/service"
	"mathquiz-forge/internal/store"

	"go.uber.org/zap"
)

func main() {
	stageFlag := flag.String("stage", string(service.StageAll), "stage to run: all, seed-filter, generate, dedup, filter, assemble, evaluate")
	configPath := flag.String("config", "", "path to config.yaml (default: ./config.yaml or ./config/config.yaml)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Initialize(cfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Get()

	if err := run(cfg, *stageFlag, log); err != nil {
		log.Error("Pipeline failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, stageName string, log *zap.Logger) error {
	stage, err := service.ParseStage(stageName)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jsonStore := store.NewJSONStore(cfg.Data.Dir)
	created, err := jsonStore.EnsureSeedFile(cfg.Data.SeedFile)
	if err != nil {
		return err
	}
	if created {
		log.Info("Seed file missing, wrote sample seeds", zap.String("path", cfg.DataPath(cfg.Data.SeedFile)))
	}

	factory := llm.NewClientFactory(cfg.Providers, cfg.Gateway.MaxTokens)
	gateway := llm.NewGateway(factory, cfg.Gateway, cfg.Providers, log)
	pipeline := service.NewPipelineService(cfg, jsonStore, gateway, log)

	if cfg.Redis.Address != "" {
		redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			// scores are recomputed without the checkpoint
			log.Warn("Redis unavailable, score checkpoint disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			checkpoint := service.NewScoreCheckpoint(adapter.NewRedisCacheAdapter(redisClient), cfg.Redis.ScoreTTL, log)
			pipeline.WithCheckpoint(checkpoint)
			log.Info("Score checkpoint enabled", zap.String("redis", cfg.Redis.Address))
		}
	}

	if dsn := cfg.GetDSN(); dsn != "" {
		db, err := database.NewSQLXOracleDB(ctx, dsn, log)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		pipeline.WithRepository(repository.NewQuestionDatabaseAdapter(db, log))
	}

	summary, err := pipeline.Run(ctx, stage)
	if err != nil {
		return err
	}

	fields := []zap.Field{
		zap.String("run_id", summary.RunID),
		zap.String("stage", string(stage)),
		zap.Int("seeds", summary.Seeds),
		zap.Int("packets", summary.Packets),
		zap.Int("candidates", summary.Candidates),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("qualified", summary.Qualified),
		zap.Int("questions", summary.Questions),
	}
	log.Info("Pipeline finished", fields...)
	if summary.Evaluation != nil {
		for _, m := range summary.Evaluation.Models {
			log.Info("Model accuracy",
				zap.String("model", m.Model),
				zap.Int("correct", m.Correct),
				zap.Int("total", m.Total),
				zap.Float64("accuracy", m.Accuracy))
		}
	}
	return nil
}
