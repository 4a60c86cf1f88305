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

	"github.com/a-lournrose/ai-video-searcher/internal/api"
	"github.com/a-lournrose/ai-video-searcher/internal/config"
	"github.com/a-lournrose/ai-video-searcher/internal/database"
	"github.com/a-lournrose/ai-video-searcher/internal/extractor"
	"github.com/a-lournrose/ai-video-searcher/internal/jobs"
	"github.com/a-lournrose/ai-video-searcher/internal/logging"
	"github.com/a-lournrose/ai-video-searcher/internal/period"
	"github.com/a-lournrose/ai-video-searcher/internal/search"
	"github.com/a-lournrose/ai-video-searcher/internal/storage"
	"github.com/a-lournrose/ai-video-searcher/internal/vectorize"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	db, err := database.NewDB(database.Config{
		Type:       cfg.Database.Type,
		Host:       cfg.Database.Host,
		Port:       cfg.Database.Port,
		User:       cfg.Database.User,
		Password:   cfg.Database.Password,
		Name:       cfg.Database.Name,
		SQLitePath: cfg.Database.SQLitePath,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	if cfg.Database.Type == "postgres" {
		if err := db.RunMigrations(cfg.Database.MigrationsPath, logger); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	sourceRepo := database.NewSourceRepo(db)
	taskRepo := database.NewTaskRepo(db)
	frameRepo := database.NewFrameRepo(db)
	periodRepo := database.NewPeriodRepo(db)
	vecJobRepo := database.NewVectorizationJobRepo(db)
	searchJobRepo := database.NewSearchJobRepo(db)

	tracker := period.NewTracker(periodRepo)

	var snapshots *storage.SnapshotStorage
	if cfg.Vectorize.SnapshotDir != "" {
		snapshots, err = storage.NewSnapshotStorage(cfg.Vectorize.SnapshotDir)
		if err != nil {
			return fmt.Errorf("failed to initialize snapshot storage: %w", err)
		}
	}

	timeout := time.Duration(cfg.Extractors.TimeoutSec) * time.Second
	embedder := extractor.NewHTTPEmbedder(cfg.Extractors.EmbedderURL, timeout)
	detector := extractor.NewHTTPDetector(cfg.Extractors.DetectorURL, timeout)
	frameSource := extractor.NewHTTPFrameSource(cfg.Extractors.MediaURL, timeout)
	limiter := extractor.NewLimiter(cfg.Extractors.MaxConcurrent, timeout)

	// Extractors are probed once at startup; an unreachable service is logged
	// but does not block boot since jobs retry through their own error paths.
	probeCtx, cancelProbe := context.WithTimeout(context.Background(), 10*time.Second)
	if _, err := embedder.EmbedText(probeCtx, "startup probe"); err != nil {
		logger.Warn("embedding service unreachable",
			zap.String("url", cfg.Extractors.EmbedderURL), zap.Error(err))
	} else {
		logger.Info("embedding service reachable", zap.String("url", cfg.Extractors.EmbedderURL))
	}
	cancelProbe()

	retryBackoff := time.Duration(cfg.Vectorize.RetryBackoffMS) * time.Millisecond

	vecEngine := vectorize.NewEngine(vecJobRepo, frameRepo, tracker,
		frameSource, embedder, detector, limiter, snapshotsOrNil(snapshots),
		logger.Named("vectorize"), vectorize.Options{
			FrameIntervalSec: cfg.Vectorize.FrameIntervalSec,
			StoreRetries:     cfg.Vectorize.StoreRetries,
			RetryBackoff:     retryBackoff,
		})

	searchEngine := search.NewEngine(searchJobRepo, frameRepo, embedder, limiter,
		logger.Named("search"), search.Options{
			MaxCandidates: cfg.Search.MaxCandidates,
			TopResults:    cfg.Search.TopResults,
			MinClipScore:  cfg.Search.MinClipScore,
			EventBatch:    cfg.Search.EventBatch,
			Weights: search.Weights{
				Clip:  cfg.Search.ClipWeight,
				Color: cfg.Search.ColorWeight,
				Plate: cfg.Search.PlateWeight,
			},
			StoreRetries: cfg.Vectorize.StoreRetries,
			RetryBackoff: retryBackoff,
		})

	supervisor := jobs.NewSupervisor(cfg.Jobs.Workers, logger.Named("jobs"))

	service := api.NewService(sourceRepo, taskRepo, frameRepo, vecJobRepo, searchJobRepo,
		periodRepo, tracker, supervisor, vecEngine, searchEngine, logger.Named("api"))

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	if err := service.ResubmitPending(startupCtx); err != nil {
		logger.Warn("failed to resubmit pending jobs", zap.Error(err))
	}
	cancelStartup()

	handlers := api.NewHandlers(service, snapshots, logger.Named("http"))
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: api.NewRouter(handlers),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("db_type", cfg.Database.Type),
			zap.Int("workers", cfg.Jobs.Workers))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown error", zap.Error(err))
	}
	if err := supervisor.Shutdown(shutdownCtx); err != nil {
		logger.Warn("job supervisor shutdown error", zap.Error(err))
	}
	return nil
}

// snapshotsOrNil keeps the engine's optional archive genuinely nil when
// snapshots are disabled, instead of a typed nil pointer.
func snapshotsOrNil(s *storage.SnapshotStorage) vectorize.Snapshots {
	if s == nil {
		return nil
	}
	return s
}
