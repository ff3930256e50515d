package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/VerticalLabs-ai/recall/internal/api"
	"github.com/VerticalLabs-ai/recall/internal/config"
	"github.com/VerticalLabs-ai/recall/internal/engine"
	"github.com/VerticalLabs-ai/recall/internal/graphstore"
	"github.com/VerticalLabs-ai/recall/internal/notify"
	"github.com/VerticalLabs-ai/recall/internal/store"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	logger.Info("Starting recalld...")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/recall.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// Storage collaborator
	st, err := store.New(cfg.Database.Postgres.DSN, logger)
	if err != nil {
		logger.Fatal("postgres unavailable", zap.Error(err))
	}
	defer st.Close()
	if err := st.Migrate(context.Background(), "migrations"); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	// Notification side effects; audit goes to postgres, notifications to
	// a redis stream when available.
	notifier, err := notify.New(cfg.Database.Redis.URL, st, logger)
	if err != nil {
		logger.Warn("Redis unavailable, notifications logged only", zap.Error(err))
		notifier, _ = notify.New("", st, logger)
	}
	defer notifier.Close()

	eng := engine.New(st, notifier, engineConfig(cfg.Engine), logger)

	// Optional graph mirror
	if cfg.Database.Neo4j.URI != "" {
		mirror, err := graphstore.New(cfg.Database.Neo4j.URI, cfg.Database.Neo4j.User, cfg.Database.Neo4j.Password, logger)
		if err != nil {
			logger.Warn("Neo4j unavailable, running without graph mirror", zap.Error(err))
		} else {
			defer mirror.Close(context.Background())
			eng.SetGraphMirror(mirror)
		}
	}

	// Scheduled consolidation
	if cfg.Schedule.Enabled {
		sched := engine.NewScheduler(eng, cfg.Schedule.NightlyHour, cfg.Schedule.WeeklyDayOrDefault(), logger)
		sched.Start()
		defer sched.Stop()
	}

	handler := api.NewHandler(eng, logger)
	port := cfg.Server.Port
	if port == 0 {
		port = 3310
	}
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("HTTP server listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}

// engineConfig overlays config file tuning onto engine defaults.
func engineConfig(ec config.EngineConfig) engine.Config {
	cfg := engine.DefaultConfig()
	if ec.SimilarityThreshold > 0 {
		cfg.SimilarityThreshold = ec.SimilarityThreshold
	}
	if ec.MergeDeadlineMS > 0 {
		cfg.MergeDeadline = ec.MergeDeadline()
	}
	if ec.MergeMaxIterations > 0 {
		cfg.MergeMaxIterations = ec.MergeMaxIterations
	}
	if ec.MergeMaxCandidates > 0 {
		cfg.MergeMaxCandidates = ec.MergeMaxCandidates
	}
	if ec.DiscardPreference != "" {
		cfg.DiscardPreference = engine.DiscardPolicy(ec.DiscardPreference)
	}
	if ec.DecayWindowDays > 0 {
		cfg.DecayWindowDays = ec.DecayWindowDays
	}
	if ec.DecayRate > 0 {
		cfg.DecayRate = ec.DecayRate
	}
	if ec.ArchiveThreshold > 0 {
		cfg.ArchiveThreshold = ec.ArchiveThreshold
	}
	if ec.PageSize > 0 {
		cfg.PageSize = ec.PageSize
	}
	if ec.YieldEvery > 0 {
		cfg.YieldEvery = ec.YieldEvery
	}
	if ec.StaleAfterHours > 0 {
		cfg.StaleAfter = ec.StaleAfter()
	}
	if ec.GraphMaxItems > 0 {
		cfg.GraphMaxItems = ec.GraphMaxItems
	}
	if ec.MergeTargetFraction > 0 {
		cfg.MergeTargetFraction = ec.MergeTargetFraction
	}
	return cfg
}
